// Package profile はプロフィールの参照・更新のドメインロジックを提供する。
package profile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/konnect/internal/model"
	"github.com/hitoshi/konnect/internal/repository"
)

const (
	maxNameLength     = 50
	maxBioLength      = 160
	maxLocationLength = 100
)

// URLValidator は外部URLと画像URLを検証する。
type URLValidator interface {
	ValidateURL(rawURL string) error
	ValidateImageURL(rawURL string) error
}

// TextCleaner はプレーンテキスト入力からマークアップを除去する。
type TextCleaner interface {
	Clean(input string) string
}

// FollowChecker はフォロー状態を返す。
type FollowChecker interface {
	IsFollowing(ctx context.Context, followerID, targetID string) (bool, error)
}

// View は閲覧者に応じたプロフィール情報。
// Emailは本人が閲覧する場合のみ設定される。
type View struct {
	ID             string
	Email          string
	Username       string
	Name           string
	AvatarURL      string
	CoverURL       string
	Bio            string
	Location       string
	Website        string
	FollowersCount int
	FollowingCount int
	CreatedAt      time.Time
	IsFollowing    bool
	IsOwnProfile   bool
}

// Summary はログイン中ユーザーの概要。
type Summary struct {
	ID        string
	Username  string
	Name      string
	AvatarURL string
}

// UpdateInput はプロフィール更新の入力。
// AvatarURLとCoverURLはnilの場合は変更しない。
type UpdateInput struct {
	Name      string
	Bio       string
	Location  string
	Website   string
	AvatarURL *string
	CoverURL  *string
}

// Service はプロフィールのサービス層。
type Service struct {
	userRepo  repository.UserRepository
	follows   FollowChecker
	urls      URLValidator
	sanitizer TextCleaner
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	follows FollowChecker,
	urls URLValidator,
	sanitizer TextCleaner,
) *Service {
	return &Service{
		userRepo:  userRepo,
		follows:   follows,
		urls:      urls,
		sanitizer: sanitizer,
	}
}

// GetByUsername はユーザー名でプロフィールを取得する。
// viewerIDが空の場合は未ログインの閲覧として扱う。
func (s *Service) GetByUsername(ctx context.Context, viewerID, username string) (*View, error) {
	p, err := s.userRepo.GetProfileByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	if p == nil {
		return nil, model.NewUserNotFoundError()
	}

	isFollowing, err := s.follows.IsFollowing(ctx, viewerID, p.ID)
	if err != nil {
		return nil, err
	}

	view := &View{
		ID:             p.ID,
		Username:       p.Username,
		Name:           p.Name,
		AvatarURL:      p.AvatarURL,
		CoverURL:       p.CoverURL,
		Bio:            p.Bio,
		Location:       p.Location,
		Website:        p.Website,
		FollowersCount: p.FollowersCount,
		FollowingCount: p.FollowingCount,
		CreatedAt:      p.CreatedAt,
		IsFollowing:    isFollowing,
		IsOwnProfile:   viewerID != "" && viewerID == p.ID,
	}
	if view.IsOwnProfile {
		view.Email = p.Email
	}
	return view, nil
}

// Me はログイン中ユーザーの概要を返す。
func (s *Service) Me(ctx context.Context, userID string) (*Summary, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return &Summary{
		ID:        user.ID,
		Username:  user.Username,
		Name:      user.Name,
		AvatarURL: user.AvatarURL,
	}, nil
}

// Update は本人のプロフィールを更新する。
// テキストはマークアップを除去して前後の空白を取り除いてから長さを検証する。
func (s *Service) Update(ctx context.Context, userID string, input UpdateInput) (*model.User, error) {
	name := s.sanitizer.Clean(input.Name)
	if name == "" {
		return nil, model.NewValidationError("Tên không được để trống")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return nil, model.NewValidationError("Tên không được quá 50 ký tự")
	}

	bio := s.sanitizer.Clean(input.Bio)
	if utf8.RuneCountInString(bio) > maxBioLength {
		return nil, model.NewValidationError("Bio không được quá 160 ký tự")
	}

	location := s.sanitizer.Clean(input.Location)
	if utf8.RuneCountInString(location) > maxLocationLength {
		return nil, model.NewValidationError("Địa điểm không được quá 100 ký tự")
	}

	website := strings.TrimSpace(input.Website)
	if website != "" {
		if err := s.urls.ValidateURL(website); err != nil {
			return nil, model.NewValidationError("Website không hợp lệ")
		}
	}

	current, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if current == nil {
		return nil, model.NewUserNotFoundError()
	}

	updated := *current
	updated.Name = name
	updated.Bio = bio
	updated.Location = location
	updated.Website = website

	if input.AvatarURL != nil {
		avatarURL, err := s.imageURL(*input.AvatarURL)
		if err != nil {
			return nil, err
		}
		updated.AvatarURL = avatarURL
	}
	if input.CoverURL != nil {
		coverURL, err := s.imageURL(*input.CoverURL)
		if err != nil {
			return nil, err
		}
		updated.CoverURL = coverURL
	}

	saved, err := s.userRepo.UpdateProfile(ctx, &updated)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}
	if saved == nil {
		return nil, model.NewUserNotFoundError()
	}

	slog.Info("profile updated", slog.String("user_id", userID))
	return saved, nil
}

// imageURL は画像URLを検証する。空文字は画像の削除として許可する。
func (s *Service) imageURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	if err := s.urls.ValidateImageURL(raw); err != nil {
		return "", model.NewValidationError("Ảnh không hợp lệ")
	}
	return raw, nil
}
