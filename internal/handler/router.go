package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/konnect/internal/metrics"
	"github.com/hitoshi/konnect/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	TokenVerifier     middleware.TokenVerifier
	CORSAllowedOrigin string
	Metrics           metrics.MetricsCollector

	// 認証
	AuthService   AuthServiceInterface
	SessionIssuer SessionTokenIssuer
	Providers     ProviderRegistry
	Users         UserFinder
	AuthConfig    AuthHandlerConfig

	// フォロー・プロフィール
	FollowService  FollowServiceInterface
	ProfileService ProfileServiceInterface

	// ヘルスチェック
	DB Pinger
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → SecurityHeaders → CORS → Metrics → AccessGate → Logging
//
// 保護されたルートの状態変更メソッドにはCSRFミドルウェアを追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.NopCollector{}
	}

	gate := middleware.NewAccessGate(deps.TokenVerifier, deps.AuthConfig.LoginPath)
	csrfConfig := middleware.CSRFConfig{
		CookieSecure:  deps.AuthConfig.CookieSecure,
		CookieDomain:  deps.AuthConfig.CookieDomain,
		TrustedOrigin: deps.CORSAllowedOrigin,
	}
	csrf := middleware.NewCSRFMiddleware(csrfConfig)

	authHandler := NewAuthHandler(deps.AuthService, deps.SessionIssuer, deps.Providers, deps.Users, collector, deps.AuthConfig)
	followHandler := NewFollowHandler(deps.FollowService, collector)
	profileHandler := NewProfileHandler(deps.ProfileService)
	pageHandler := NewPageHandler(deps.Providers, deps.ProfileService, deps.AuthConfig.LoginPath)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(metrics.NewHTTPMiddleware(collector))
	r.Use(gate.Middleware)
	r.Use(middleware.NewLoggingMiddleware(logger))

	// --- 常に公開のルート ---

	if deps.DB != nil {
		r.Get("/health", NewHealthHandler(deps.DB))
	}

	// 認証API（登録・ログイン・OAuthフロー）
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Get("/signin/{provider}", authHandler.SignIn)
		r.Get("/callback/{provider}", authHandler.Callback)
		r.With(csrf).Post("/signout", authHandler.SignOut)
		r.Get("/session", authHandler.Session)
		r.Get("/providers", authHandler.Providers)
		r.Method(http.MethodGet, "/csrf", middleware.NewCSRFTokenHandler(csrfConfig))
	})

	// ログインページ
	r.Get(gate.LoginPath(), pageHandler.Login)

	// --- ゲートで保護されたルート ---
	// 未ログインのリクエストはゲートがログインページへリダイレクトする
	r.Group(func(r chi.Router) {
		r.Use(csrf)

		r.Get("/", pageHandler.Home)

		r.Post("/api/follow", followHandler.Toggle)

		r.Route("/api/profile", func(r chi.Router) {
			r.Put("/", profileHandler.Update)
			r.Get("/me", profileHandler.Me)
			r.Get("/{username}", profileHandler.GetByUsername)
		})
	})

	return r
}
