// Package auth はパスワード認証、OAuthアカウント紐付け、セッショントークン発行を提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/hitoshi/konnect/internal/model"
	"github.com/hitoshi/konnect/internal/repository"
)

// users表の列長（文字数）。IdPから届く値はこの長さに合わせる。
const (
	maxEmailLength = 255
	maxNameLength  = 100
)

// RegisterInput はパスワード登録の入力。形式の検証は呼び出し側で済ませておくこと。
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// Service はユーザーの登録と、ログイン時のユーザー解決を行う。
type Service struct {
	users    repository.UserRepository
	accounts repository.AccountRepository
	hasher   PasswordHasher

	intN func(n int) int
	now  func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	users repository.UserRepository,
	accounts repository.AccountRepository,
	hasher PasswordHasher,
) *Service {
	return &Service{
		users:    users,
		accounts: accounts,
		hasher:   hasher,
		intN:     rand.IntN,
		now:      time.Now,
	}
}

// Register はパスワードでログインするユーザーを作成する。
// メールアドレスが使用済みの場合は、OAuthで作成されたユーザーであっても409を返す。
func (s *Service) Register(ctx context.Context, input RegisterInput) (*model.User, error) {
	existing, err := s.users.FindByEmail(ctx, input.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if existing != nil {
		return nil, model.NewEmailConflictError()
	}

	username, err := s.availableUsername(ctx, input.Email)
	if err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        input.Email,
		Username:     username,
		PasswordHash: &hash,
		Name:         input.Name,
		AvatarURL:    model.DefaultAvatarURL,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		switch {
		case repository.IsDuplicateOn(err, repository.ConstraintUsersEmail):
			return nil, model.NewEmailConflictError()
		case repository.IsDuplicateOn(err, repository.ConstraintUsersUsername):
			return nil, model.NewUsernameConflictError()
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
	)
	return user, nil
}

// ResolveCredentials はメールアドレスとパスワードからユーザーを解決する。読み取りのみ。
// 失敗理由は*ErrorのKind（NotFound, WrongLoginMethod, InvalidCredentials, Storage）で返す。
func (s *Service) ResolveCredentials(ctx context.Context, email, password string) (*model.User, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, storageError("find user by email", err)
	}
	if user == nil {
		return nil, newError(KindNotFound)
	}
	if !user.HasPassword() {
		return nil, newError(KindWrongLoginMethod)
	}

	ok, err := s.hasher.Verify(*user.PasswordHash, password)
	if err != nil {
		return nil, storageError("verify password", err)
	}
	if !ok {
		return nil, newError(KindInvalidCredentials)
	}
	return user, nil
}

// ResolveOAuth は外部IdPのプロフィールからユーザーを解決する。
// メールアドレスが未登録ならユーザーを作成し、(provider, provider_account_id) が
// 未紐付けなら紐付けを作成する。同じプロフィールで繰り返し呼んでも
// ユーザーと紐付けはそれぞれ1件のままになる。
// 既存のパスワードユーザーと同じメールアドレスの場合はそのユーザーに紐付け、
// パスワードハッシュはそのまま残す。
func (s *Service) ResolveOAuth(ctx context.Context, profile *OAuthProfile) (*model.User, error) {
	// 保存できない長さのメールアドレスは無いものとして扱う
	if strings.TrimSpace(profile.Email) == "" || utf8.RuneCountInString(profile.Email) > maxEmailLength {
		return nil, newError(KindMissingEmail)
	}

	user, err := s.users.FindByEmail(ctx, profile.Email)
	if err != nil {
		return nil, storageError("find user by email", err)
	}
	if user == nil {
		user, err = s.createOAuthUser(ctx, profile)
		if err != nil {
			return nil, err
		}
	}

	if err := s.linkAccount(ctx, user, profile); err != nil {
		return nil, err
	}
	return user, nil
}

// createOAuthUser はパスワードなしのユーザーを作成する。
// 同時ログインで先にメールアドレスが登録された場合はそのユーザーを返す。
func (s *Service) createOAuthUser(ctx context.Context, profile *OAuthProfile) (*model.User, error) {
	username, err := s.availableUsername(ctx, profile.Email)
	if err != nil {
		return nil, storageError("derive username", err)
	}

	name := truncateRunes(strings.TrimSpace(profile.Name), maxNameLength)
	if name == "" {
		name = username
	}
	avatarURL := profile.AvatarURL
	if avatarURL == "" {
		avatarURL = model.DefaultAvatarURL
	}

	now := s.now()
	user := &model.User{
		ID:        uuid.New().String(),
		Email:     profile.Email,
		Username:  username,
		Name:      name,
		AvatarURL: avatarURL,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.users.Create(ctx, user)
	if err == nil {
		slog.Info("user created from oauth profile",
			slog.String("user_id", user.ID),
			slog.String("provider", profile.Provider),
		)
		return user, nil
	}
	if !repository.IsDuplicateOn(err, repository.ConstraintUsersEmail) {
		return nil, storageError("create user", err)
	}

	existing, findErr := s.users.FindByEmail(ctx, profile.Email)
	if findErr != nil {
		return nil, storageError("find user by email", findErr)
	}
	if existing == nil {
		return nil, storageError("create user", err)
	}
	return existing, nil
}

// linkAccount は外部アカウントが未紐付けの場合に紐付けを作成する。
func (s *Service) linkAccount(ctx context.Context, user *model.User, profile *OAuthProfile) error {
	linked, err := s.accounts.FindByProviderAccount(ctx, profile.Provider, profile.ProviderAccountID)
	if err != nil {
		return storageError("find linked account", err)
	}
	if linked != nil {
		if linked.UserID != user.ID {
			// IdP側でメールアドレスが変わった場合。既存の紐付けは変更しない。
			slog.Warn("linked account belongs to another user",
				slog.String("provider", profile.Provider),
				slog.String("user_id", user.ID),
				slog.String("linked_user_id", linked.UserID),
			)
		}
		return nil
	}

	account := &model.LinkedAccount{
		ID:                uuid.New().String(),
		UserID:            user.ID,
		Provider:          profile.Provider,
		ProviderAccountID: profile.ProviderAccountID,
		AccessToken:       optional(profile.Tokens.AccessToken),
		RefreshToken:      optional(profile.Tokens.RefreshToken),
		TokenType:         optional(profile.Tokens.TokenType),
		Scope:             optional(profile.Tokens.Scope),
		IDToken:           optional(profile.Tokens.IDToken),
		CreatedAt:         s.now(),
	}
	if !profile.Tokens.ExpiresAt.IsZero() {
		expiresAt := profile.Tokens.ExpiresAt
		account.ExpiresAt = &expiresAt
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		if repository.IsDuplicateOn(err, repository.ConstraintAccountProvider) {
			return nil
		}
		return storageError("create linked account", err)
	}

	slog.Info("account linked",
		slog.String("user_id", user.ID),
		slog.String("provider", profile.Provider),
	)
	return nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
