package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/konnect/internal/follow"
	"github.com/hitoshi/konnect/internal/metrics"
)

// FollowServiceInterface はフォローハンドラーが必要とするサービスインターフェース。
type FollowServiceInterface interface {
	Toggle(ctx context.Context, followerID, targetID string) (*follow.Result, error)
}

// FollowHandler はフォロー切り替えのHTTPハンドラー。
type FollowHandler struct {
	service FollowServiceInterface
	metrics metrics.MetricsCollector
}

// NewFollowHandler はFollowHandlerを生成する。
func NewFollowHandler(service FollowServiceInterface, collector metrics.MetricsCollector) *FollowHandler {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &FollowHandler{service: service, metrics: collector}
}

// toggleFollowRequest はフォロー切り替えリクエストのボディ。
type toggleFollowRequest struct {
	TargetUserID string `json:"targetUserId"`
}

// Toggle はログインユーザーから対象ユーザーへのフォローを切り替える。
// POST /api/follow
func (h *FollowHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req toggleFollowRequest
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		writeAPIErrorResponse(w, r, http.StatusBadRequest, apiErr)
		return
	}

	result, err := h.service.Toggle(r.Context(), userID, req.TargetUserID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.metrics.RecordFollowToggle(string(result.Action))
	writeJSON(w, http.StatusOK, map[string]any{
		"action":  result.Action,
		"message": result.Message,
	})
}
