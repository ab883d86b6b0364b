// Package follow はフォロー関係の切り替えを提供する。
package follow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/konnect/internal/model"
	"github.com/hitoshi/konnect/internal/repository"
)

// Action はフォロー切り替えの結果。
type Action string

const (
	ActionFollowed   Action = "followed"
	ActionUnfollowed Action = "unfollowed"
)

// Result はフォロー切り替えの結果とユーザー向けメッセージ。
type Result struct {
	Action  Action
	Message string
}

// Service はフォロー関係のサービス層。
type Service struct {
	userRepo   repository.UserRepository
	followRepo repository.FollowRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, followRepo repository.FollowRepository) *Service {
	return &Service{
		userRepo:   userRepo,
		followRepo: followRepo,
	}
}

// Toggle はfollowerIDからtargetIDへのフォローを切り替える。
// フォロー済みなら解除し、未フォローならフォローする。
// 存在確認と作成/削除はリポジトリの単一操作で行うため、同時実行でも二重作成にならない。
func (s *Service) Toggle(ctx context.Context, followerID, targetID string) (*Result, error) {
	targetID = strings.TrimSpace(targetID)
	if targetID == "" {
		return nil, model.NewValidationError("Thiếu thông tin người dùng")
	}
	if followerID == targetID {
		return nil, model.NewSelfFollowError()
	}

	target, err := s.userRepo.FindByID(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("フォロー対象の取得に失敗しました: %w", err)
	}
	if target == nil {
		return nil, model.NewTargetNotFoundError()
	}

	followed, err := s.followRepo.Toggle(ctx, followerID, targetID)
	switch {
	case repository.IsMissingReferenceOn(err, repository.ConstraintFollowsFollower):
		// 削除済みユーザーのセッションが期限内に残っている場合
		return nil, model.NewUnauthenticatedError()
	case repository.IsMissingReferenceOn(err, repository.ConstraintFollowsFollowing):
		return nil, model.NewTargetNotFoundError()
	case err != nil:
		return nil, fmt.Errorf("フォローの切り替えに失敗しました: %w", err)
	}

	result := &Result{Action: ActionUnfollowed, Message: "Đã hủy theo dõi " + target.Name}
	if followed {
		result = &Result{Action: ActionFollowed, Message: "Đã theo dõi " + target.Name}
	}

	slog.Info("follow toggled",
		slog.String("user_id", followerID),
		slog.String("target_id", targetID),
		slog.String("action", string(result.Action)),
	)
	return result, nil
}

// IsFollowing はfollowerIDがtargetIDをフォローしているかを返す。
// 未ログイン（followerIDが空）や自分自身の場合はfalse。
func (s *Service) IsFollowing(ctx context.Context, followerID, targetID string) (bool, error) {
	if followerID == "" || followerID == targetID {
		return false, nil
	}
	exists, err := s.followRepo.Exists(ctx, followerID, targetID)
	if err != nil {
		return false, fmt.Errorf("フォロー状態の取得に失敗しました: %w", err)
	}
	return exists, nil
}
