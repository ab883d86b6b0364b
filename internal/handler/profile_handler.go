package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/konnect/internal/middleware"
	"github.com/hitoshi/konnect/internal/model"
	"github.com/hitoshi/konnect/internal/profile"
)

// ProfileServiceInterface はプロフィールハンドラーが必要とするサービスインターフェース。
type ProfileServiceInterface interface {
	GetByUsername(ctx context.Context, viewerID, username string) (*profile.View, error)
	Me(ctx context.Context, userID string) (*profile.Summary, error)
	Update(ctx context.Context, userID string, input profile.UpdateInput) (*model.User, error)
}

// ProfileHandler はプロフィール参照・更新のHTTPハンドラー。
type ProfileHandler struct {
	service ProfileServiceInterface
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(service ProfileServiceInterface) *ProfileHandler {
	return &ProfileHandler{service: service}
}

// profileResponse は公開プロフィールのレスポンス。
type profileResponse struct {
	ID             string    `json:"id"`
	Email          string    `json:"email,omitempty"`
	Username       string    `json:"username"`
	Name           string    `json:"name"`
	AvatarURL      string    `json:"avatar_url"`
	CoverURL       string    `json:"cover_url"`
	Bio            string    `json:"bio"`
	Location       string    `json:"location"`
	Website        string    `json:"website"`
	FollowersCount int       `json:"followers_count"`
	FollowingCount int       `json:"following_count"`
	CreatedAt      time.Time `json:"created_at"`
	IsFollowing    bool      `json:"isFollowing"`
	IsOwnProfile   bool      `json:"isOwnProfile"`
}

// GetByUsername はユーザー名でプロフィールを返す。未ログインでも閲覧できる。
// GET /api/profile/{username}
func (h *ProfileHandler) GetByUsername(w http.ResponseWriter, r *http.Request) {
	// 未ログインの場合は空文字のまま
	viewerID, _ := middleware.UserIDFromContext(r.Context())

	view, err := h.service.GetByUsername(r.Context(), viewerID, chi.URLParam(r, "username"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user": profileResponse{
			ID:             view.ID,
			Email:          view.Email,
			Username:       view.Username,
			Name:           view.Name,
			AvatarURL:      view.AvatarURL,
			CoverURL:       view.CoverURL,
			Bio:            view.Bio,
			Location:       view.Location,
			Website:        view.Website,
			FollowersCount: view.FollowersCount,
			FollowingCount: view.FollowingCount,
			CreatedAt:      view.CreatedAt,
			IsFollowing:    view.IsFollowing,
			IsOwnProfile:   view.IsOwnProfile,
		},
	})
}

// Me はログインユーザーの概要を返す。
// GET /api/profile/me
func (h *ProfileHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	summary, err := h.service.Me(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":         summary.ID,
		"username":   summary.Username,
		"name":       summary.Name,
		"avatar_url": summary.AvatarURL,
	})
}

// updateProfileRequest はプロフィール更新リクエストのボディ。
// 画像URLは指定された場合のみ更新する。
type updateProfileRequest struct {
	Name      string  `json:"name"`
	Bio       string  `json:"bio"`
	Location  string  `json:"location"`
	Website   string  `json:"website"`
	AvatarURL *string `json:"avatar_url"`
	CoverURL  *string `json:"cover_url"`
}

// Update はログインユーザー本人のプロフィールを更新する。
// PUT /api/profile
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req updateProfileRequest
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		writeAPIErrorResponse(w, r, http.StatusBadRequest, apiErr)
		return
	}

	user, err := h.service.Update(r.Context(), userID, profile.UpdateInput{
		Name:      req.Name,
		Bio:       req.Bio,
		Location:  req.Location,
		Website:   req.Website,
		AvatarURL: req.AvatarURL,
		CoverURL:  req.CoverURL,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Cập nhật thành công!",
		"user": map[string]any{
			"id":         user.ID,
			"name":       user.Name,
			"username":   user.Username,
			"avatar_url": user.AvatarURL,
			"cover_url":  user.CoverURL,
			"bio":        user.Bio,
			"location":   user.Location,
			"website":    user.Website,
		},
	})
}
