package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/konnect/internal/auth"
	"github.com/hitoshi/konnect/internal/metrics"
	"github.com/hitoshi/konnect/internal/middleware"
	"github.com/hitoshi/konnect/internal/model"
)

const (
	oauthStateCookie    = "oauth_state"
	oauthVerifierCookie = "oauth_verifier"
	oauthCookiePath     = "/api/auth"
	oauthCookieMaxAge   = 600 // 10分

	// loginMethodPassword はメトリクスのmethodラベルに使うパスワードログインの名前。
	loginMethodPassword = "password"
	// oauthErrorParam はOAuth失敗時にログインページへ付与するerrorクエリの値。
	oauthErrorParam = "OAuthSignin"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, input auth.RegisterInput) (*model.User, error)
	ResolveCredentials(ctx context.Context, email, password string) (*model.User, error)
	ResolveOAuth(ctx context.Context, profile *auth.OAuthProfile) (*model.User, error)
}

// SessionTokenIssuer はセッショントークンを発行する。
type SessionTokenIssuer interface {
	Issue(user *model.User) (*auth.Token, error)
	MaxAge() time.Duration
}

// ProviderRegistry は設定済みのOAuthプロバイダーを返す。
type ProviderRegistry interface {
	Get(name string) (auth.OAuthProvider, bool)
	Names() []string
}

// UserFinder はIDでユーザーを取得する。見つからない場合はnilを返す。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL      string
	LoginPath    string
	CookieDomain string
	CookieSecure bool
}

// AuthHandler は登録・ログイン・OAuthフロー・セッション参照のHTTPハンドラー。
type AuthHandler struct {
	service   AuthServiceInterface
	issuer    SessionTokenIssuer
	providers ProviderRegistry
	users     UserFinder
	metrics   metrics.MetricsCollector
	config    AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(
	service AuthServiceInterface,
	issuer SessionTokenIssuer,
	providers ProviderRegistry,
	users UserFinder,
	collector metrics.MetricsCollector,
	config AuthHandlerConfig,
) *AuthHandler {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	if config.LoginPath == "" {
		config.LoginPath = middleware.DefaultLoginPath
	}
	return &AuthHandler{
		service:   service,
		issuer:    issuer,
		providers: providers,
		users:     users,
		metrics:   collector,
		config:    config,
	}
}

// userResponse は登録・ログインで返すユーザー情報。
type userResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatar_url"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Username:  u.Username,
		AvatarURL: u.AvatarURL,
		CreatedAt: u.CreatedAt,
	}
}

// Register はパスワードでログインするユーザーを登録する。
// POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		h.metrics.RecordRegistration(metrics.OutcomeFailure)
		writeAPIErrorResponse(w, r, http.StatusBadRequest, apiErr)
		return
	}
	if apiErr := validateRegister(&req); apiErr != nil {
		h.metrics.RecordRegistration(metrics.OutcomeFailure)
		writeAPIErrorResponse(w, r, http.StatusBadRequest, apiErr)
		return
	}

	user, err := h.service.Register(r.Context(), auth.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.metrics.RecordRegistration(registrationOutcome(err))
		handleServiceError(w, r, err)
		return
	}

	h.metrics.RecordRegistration(metrics.OutcomeSuccess)
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Đăng ký thành công!",
		"user":    toUserResponse(user),
	})
}

// Login はメールアドレスとパスワードでログインし、セッションCookieを発行する。
// 失敗理由は区別せず、常に同じ401を返す。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if apiErr := decodeJSON(w, r, &req); apiErr != nil || !validateLogin(&req) {
		h.metrics.RecordLogin(loginMethodPassword, metrics.OutcomeFailure)
		writeAPIErrorResponse(w, r, http.StatusUnauthorized, model.NewLoginFailedError())
		return
	}

	user, err := h.service.ResolveCredentials(r.Context(), req.Email, req.Password)
	if err != nil {
		kind := auth.KindOf(err)
		if kind == auth.KindStorage || kind == 0 {
			h.metrics.RecordLogin(loginMethodPassword, metrics.OutcomeError)
			handleServiceError(w, r, err)
			return
		}
		slog.Info("password login rejected", slog.String("reason", kind.String()))
		h.metrics.RecordLogin(loginMethodPassword, metrics.OutcomeFailure)
		writeAPIErrorResponse(w, r, http.StatusUnauthorized, model.NewLoginFailedError())
		return
	}

	if err := h.startSession(w, user); err != nil {
		h.metrics.RecordLogin(loginMethodPassword, metrics.OutcomeError)
		handleServiceError(w, r, err)
		return
	}

	h.metrics.RecordLogin(loginMethodPassword, metrics.OutcomeSuccess)
	writeJSON(w, http.StatusOK, map[string]any{
		"user": toUserResponse(user),
	})
}

// SignIn はOAuthフローを開始する。
// GET /api/auth/signin/{provider}
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.providers.Get(chi.URLParam(r, "provider"))
	if !ok {
		h.redirectToLogin(w, r)
		return
	}

	state, err := auth.GenerateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		h.redirectToLogin(w, r)
		return
	}
	verifier := auth.GenerateVerifier()

	// stateとPKCE verifierをCookieに保存
	h.setOAuthCookie(w, oauthStateCookie, state, oauthCookieMaxAge)
	h.setOAuthCookie(w, oauthVerifierCookie, verifier, oauthCookieMaxAge)

	http.Redirect(w, r, provider.AuthCodeURL(state, verifier), http.StatusFound)
}

// Callback はOAuthコールバックを処理する。
// GET /api/auth/callback/{provider}?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	provider, ok := h.providers.Get(name)
	if !ok {
		h.redirectToLogin(w, r)
		return
	}

	// 1. stateの検証（CSRF対策）
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	verifierCookie, verr := r.Cookie(oauthVerifierCookie)

	// stateとverifierのCookieは結果にかかわらず削除する
	h.setOAuthCookie(w, oauthStateCookie, "", -1)
	h.setOAuthCookie(w, oauthVerifierCookie, "", -1)

	if err != nil || verr != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch", slog.String("provider", name))
		h.metrics.RecordLogin(name, metrics.OutcomeFailure)
		h.redirectToLogin(w, r)
		return
	}

	// 2. 認可コードの取得
	code := r.URL.Query().Get("code")
	if code == "" {
		h.metrics.RecordLogin(name, metrics.OutcomeFailure)
		h.redirectToLogin(w, r)
		return
	}

	// 3. トークン交換とユーザー解決
	profile, err := provider.Exchange(r.Context(), code, verifierCookie.Value)
	if err != nil {
		slog.Error("oauth exchange failed",
			slog.String("provider", name),
			slog.String("error", err.Error()),
		)
		h.metrics.RecordLogin(name, metrics.OutcomeError)
		h.redirectToLogin(w, r)
		return
	}

	user, err := h.service.ResolveOAuth(r.Context(), profile)
	if err != nil {
		slog.Error("oauth user resolution failed",
			slog.String("provider", name),
			slog.String("reason", auth.KindOf(err).String()),
			slog.String("error", err.Error()),
		)
		h.metrics.RecordLogin(name, metrics.OutcomeFailure)
		h.redirectToLogin(w, r)
		return
	}

	// 4. セッションCookieを設定
	if err := h.startSession(w, user); err != nil {
		slog.Error("failed to issue session", slog.String("error", err.Error()))
		h.metrics.RecordLogin(name, metrics.OutcomeError)
		h.redirectToLogin(w, r)
		return
	}

	h.metrics.RecordLogin(name, metrics.OutcomeSuccess)
	http.Redirect(w, r, h.config.BaseURL+"/", http.StatusFound)
}

// SignOut はセッションCookieを削除する。
// トークンはサーバー側に保存していないため、クライアント側で破棄するのみ。
// POST /api/auth/signout
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	h.setSessionCookie(w, "", -1)
	writeJSON(w, http.StatusOK, map[string]any{})
}

// sessionUser はセッション参照で返すユーザー情報。
type sessionUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Image string `json:"image"`
}

// Session は現在のセッションのユーザーを返す。未ログインの場合は空オブジェクト。
// GET /api/auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}

	user, err := h.users.FindByID(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if user == nil {
		// 署名は有効だが削除済みのユーザー
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user": sessionUser{
			ID:    user.ID,
			Name:  user.Name,
			Email: user.Email,
			Image: user.AvatarURL,
		},
	})
}

// providerResponse はプロバイダー一覧の要素。
type providerResponse struct {
	ID        string `json:"id"`
	SignInURL string `json:"signinUrl"`
}

// Providers は設定済みのOAuthプロバイダー一覧を返す。
// GET /api/auth/providers
func (h *AuthHandler) Providers(w http.ResponseWriter, r *http.Request) {
	names := h.providers.Names()
	list := make([]providerResponse, 0, len(names))
	for _, name := range names {
		list = append(list, providerResponse{
			ID:        name,
			SignInURL: "/api/auth/signin/" + name,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"providers": list})
}

// startSession はセッショントークンを発行してCookieに設定する。
func (h *AuthHandler) startSession(w http.ResponseWriter, user *model.User) error {
	token, err := h.issuer.Issue(user)
	if err != nil {
		return err
	}
	h.setSessionCookie(w, token.Value, int(h.issuer.MaxAge().Seconds()))
	return nil
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    value,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) setOAuthCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     oauthCookiePath,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// redirectToLogin はOAuth失敗時にログインページへリダイレクトする。
func (h *AuthHandler) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	q := url.Values{"error": {oauthErrorParam}}
	http.Redirect(w, r, h.config.BaseURL+h.config.LoginPath+"?"+q.Encode(), http.StatusFound)
}

// registrationOutcome はRegisterのエラーをメトリクスのoutcomeに変換する。
func registrationOutcome(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case model.ErrCodeConflict, model.ErrCodeUsernameConflict:
			return metrics.OutcomeConflict
		}
		return metrics.OutcomeFailure
	}
	return metrics.OutcomeError
}
