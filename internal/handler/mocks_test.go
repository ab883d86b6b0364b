package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/konnect/internal/auth"
	"github.com/hitoshi/konnect/internal/follow"
	"github.com/hitoshi/konnect/internal/middleware"
	"github.com/hitoshi/konnect/internal/model"
	"github.com/hitoshi/konnect/internal/profile"
)

// --- モック定義 ---

type mockAuthService struct {
	registerFn           func(ctx context.Context, input auth.RegisterInput) (*model.User, error)
	resolveCredentialsFn func(ctx context.Context, email, password string) (*model.User, error)
	resolveOAuthFn       func(ctx context.Context, profile *auth.OAuthProfile) (*model.User, error)
}

func (m *mockAuthService) Register(ctx context.Context, input auth.RegisterInput) (*model.User, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, input)
	}
	return nil, nil
}

func (m *mockAuthService) ResolveCredentials(ctx context.Context, email, password string) (*model.User, error) {
	if m.resolveCredentialsFn != nil {
		return m.resolveCredentialsFn(ctx, email, password)
	}
	return nil, nil
}

func (m *mockAuthService) ResolveOAuth(ctx context.Context, profile *auth.OAuthProfile) (*model.User, error) {
	if m.resolveOAuthFn != nil {
		return m.resolveOAuthFn(ctx, profile)
	}
	return nil, nil
}

type mockIssuer struct {
	issueFn func(user *model.User) (*auth.Token, error)
}

func (m *mockIssuer) Issue(user *model.User) (*auth.Token, error) {
	if m.issueFn != nil {
		return m.issueFn(user)
	}
	return &auth.Token{Value: "token-" + user.ID, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (m *mockIssuer) MaxAge() time.Duration {
	return time.Hour
}

type mockProvider struct {
	name       string
	exchangeFn func(ctx context.Context, code, verifier string) (*auth.OAuthProfile, error)
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) AuthCodeURL(state, verifier string) string {
	return "https://idp.example.com/authorize?state=" + state
}

func (m *mockProvider) Exchange(ctx context.Context, code, verifier string) (*auth.OAuthProfile, error) {
	if m.exchangeFn != nil {
		return m.exchangeFn(ctx, code, verifier)
	}
	return &auth.OAuthProfile{Provider: m.name, ProviderAccountID: "42", Email: "minh@test.com"}, nil
}

type mockUserFinder struct {
	findByIDFn func(ctx context.Context, id string) (*model.User, error)
}

func (m *mockUserFinder) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

type mockFollowService struct {
	toggleFn func(ctx context.Context, followerID, targetID string) (*follow.Result, error)
}

func (m *mockFollowService) Toggle(ctx context.Context, followerID, targetID string) (*follow.Result, error) {
	if m.toggleFn != nil {
		return m.toggleFn(ctx, followerID, targetID)
	}
	return nil, nil
}

type mockProfileService struct {
	getByUsernameFn func(ctx context.Context, viewerID, username string) (*profile.View, error)
	meFn            func(ctx context.Context, userID string) (*profile.Summary, error)
	updateFn        func(ctx context.Context, userID string, input profile.UpdateInput) (*model.User, error)
}

func (m *mockProfileService) GetByUsername(ctx context.Context, viewerID, username string) (*profile.View, error) {
	if m.getByUsernameFn != nil {
		return m.getByUsernameFn(ctx, viewerID, username)
	}
	return nil, nil
}

func (m *mockProfileService) Me(ctx context.Context, userID string) (*profile.Summary, error) {
	if m.meFn != nil {
		return m.meFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockProfileService) Update(ctx context.Context, userID string, input profile.UpdateInput) (*model.User, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, userID, input)
	}
	return nil, nil
}

// mockMetrics は記録された値を保持するMetricsCollector。
type mockMetrics struct {
	logins        []string
	registrations []string
	toggles       []string
}

func (m *mockMetrics) RecordLogin(method, outcome string) {
	m.logins = append(m.logins, method+":"+outcome)
}

func (m *mockMetrics) RecordRegistration(outcome string) {
	m.registrations = append(m.registrations, outcome)
}

func (m *mockMetrics) RecordFollowToggle(action string) {
	m.toggles = append(m.toggles, action)
}

func (m *mockMetrics) RecordHTTPStatus(int)                       {}
func (m *mockMetrics) RecordRequestLatency(string, time.Duration) {}
func (m *mockMetrics) RecordTokensScrubbed(int)                   {}

// --- ヘルパー ---

// withUserID はアクセスゲートが注入する状態を再現する。
func withUserID(r *http.Request, userID string) *http.Request {
	return r.WithContext(middleware.ContextWithUserID(r.Context(), userID))
}

// decodeBody はレスポンスボディをmapにデコードする。
func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return body
}

// assertErrorResponse は統一エラーフォーマットのステータス・コード・メッセージを検証する。
func assertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, wantStatus int, wantCode, wantMessage string) {
	t.Helper()
	if w.Code != wantStatus {
		t.Errorf("status = %d, want %d (body=%s)", w.Code, wantStatus, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["code"] != wantCode {
		t.Errorf("code = %v, want %q", body["code"], wantCode)
	}
	if wantMessage != "" && body["message"] != wantMessage {
		t.Errorf("message = %v, want %q", body["message"], wantMessage)
	}
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func containsStr(s, substr string) bool {
	return strings.Contains(s, substr)
}
