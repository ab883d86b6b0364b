// Package model はドメインモデルを定義する。
package model

import "time"

// DefaultAvatarURL はOAuthプロフィールに画像がない場合のアバター。
const DefaultAvatarURL = "/images/default-avatar.jpg"

// User はサービス利用ユーザー（アイデンティティ）を表す。
// PasswordHash がnilのユーザーはOAuth専用で、パスワードログインは不可。
type User struct {
	ID           string
	Email        string
	Username     string
	PasswordHash *string
	Name         string
	AvatarURL    string
	CoverURL     string
	Bio          string
	Location     string
	Website      string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasPassword はパスワードログインが可能なユーザーかどうかを返す。
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// LinkedAccount は外部IdP（Google, GitHub等）のアカウントとユーザーの紐付けを表す。
// (Provider, ProviderAccountID) は一意で、1つの外部アカウントは1ユーザーにのみ紐付く。
// トークン類はIdPから受け取った値をそのまま保存し、解釈しない。
type LinkedAccount struct {
	ID                string
	UserID            string
	Provider          string
	ProviderAccountID string
	AccessToken       *string
	RefreshToken      *string
	TokenType         *string
	Scope             *string
	IDToken           *string
	ExpiresAt         *time.Time
	CreatedAt         time.Time
}

// Follow はフォロー関係（follower → following）を表す。
type Follow struct {
	ID          string
	FollowerID  string
	FollowingID string
	CreatedAt   time.Time
}

// Profile は公開プロフィールとフォロー数を表す。
type Profile struct {
	User
	FollowersCount int
	FollowingCount int
}
