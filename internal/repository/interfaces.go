// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/konnect/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
	// 比較は保存値そのまま（大文字小文字を区別する）。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByUsername はユーザー名でユーザーを取得する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// ExistsByUsername はユーザー名が使用済みかどうかを返す。
	ExistsByUsername(ctx context.Context, username string) (bool, error)

	// Create はユーザーを作成する。
	// email または username の一意制約違反時は *DuplicateError を返す。
	Create(ctx context.Context, user *model.User) error

	// UpdateProfile はプロフィール属性（name, bio, location, website, avatar_url, cover_url）を更新する。
	// 更新後のユーザーを返す。見つからない場合はnilを返す。
	UpdateProfile(ctx context.Context, user *model.User) (*model.User, error)

	// GetProfileByUsername はユーザー名で公開プロフィールをフォロー数付きで取得する。
	// 見つからない場合はnilを返す。
	GetProfileByUsername(ctx context.Context, username string) (*model.Profile, error)
}

// AccountRepository は外部IdP紐付け情報の永続化インターフェース。
type AccountRepository interface {
	// FindByProviderAccount はproviderとprovider_account_idで紐付けを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAccount(ctx context.Context, provider, providerAccountID string) (*model.LinkedAccount, error)

	// Create は紐付けを作成する。(provider, provider_account_id) の重複時は *DuplicateError を返す。
	Create(ctx context.Context, account *model.LinkedAccount) error

	// ListByUserID はユーザーに紐付く外部アカウント一覧を返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.LinkedAccount, error)
}

// FollowRepository はフォロー関係の永続化インターフェース。
type FollowRepository interface {
	// Toggle はフォロー関係を反転させる。
	// 存在すれば削除してfalseを、存在しなければ作成してtrueを返す。
	// 存在確認と作成/削除は単一のSQL文で行い、同時実行時も一意制約で整合性を保つ。
	Toggle(ctx context.Context, followerID, followingID string) (bool, error)

	// Exists はフォロー関係が存在するかどうかを返す。
	Exists(ctx context.Context, followerID, followingID string) (bool, error)
}
