package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/konnect/internal/auth"
	"github.com/hitoshi/konnect/internal/config"
	"github.com/hitoshi/konnect/internal/database"
	"github.com/hitoshi/konnect/internal/follow"
	"github.com/hitoshi/konnect/internal/handler"
	"github.com/hitoshi/konnect/internal/logger"
	"github.com/hitoshi/konnect/internal/metrics"
	"github.com/hitoshi/konnect/internal/profile"
	"github.com/hitoshi/konnect/internal/repository"
	"github.com/hitoshi/konnect/internal/security"
	"github.com/hitoshi/konnect/internal/worker/cleanup"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// shutdownTimeout はグレースフルシャットダウンの待ち時間。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
// 起動直後にDBが準備中の場合は指数バックオフで再試行する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Connect(context.Background(), cfg.DatabaseURL, cfg.DBConnectAttempts)
	if err != nil {
		return nil, err
	}
	slog.Info("database connection established",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)
	return db, nil
}

// newMetricsRegistry はアプリケーションメトリクスとランタイムメトリクスを登録したレジストリを返す。
func newMetricsRegistry() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// buildProviders は設定済みのOAuthプロバイダーを登録したレジストリを返す。
// IdPとの通信にはSSRF対策済みのクライアントを使う。
func buildProviders(ctx context.Context, cfg *config.Config, client *http.Client) (*auth.Registry, error) {
	var providers []auth.OAuthProvider

	if cfg.GoogleEnabled() {
		google, err := auth.NewGoogleOAuthProvider(ctx, auth.GoogleOAuthConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			IssuerURL:    cfg.GoogleIssuerURL,
			HTTPClient:   client,
		})
		if err != nil {
			return nil, err
		}
		providers = append(providers, google)
	}

	if cfg.GitHubEnabled() {
		github, err := auth.NewGitHubOAuthProvider(auth.GitHubOAuthConfig{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  cfg.GitHubRedirectURL,
			HTTPClient:   client,
		})
		if err != nil {
			return nil, err
		}
		providers = append(providers, github)
	}

	registry := auth.NewRegistry(providers...)
	slog.Info("oauth providers configured", slog.Any("providers", registry.Names()))
	return registry, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーとメトリクスサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	accountRepo := repository.NewPostgresAccountRepo(db)
	followRepo := repository.NewPostgresFollowRepo(db)

	// 3. セキュリティ・メトリクスの初期化
	guard := security.NewURLGuard()
	registry, collector := newMetricsRegistry()

	// 4. 認証の初期化
	issuer, err := auth.NewSessionIssuer(cfg.SessionSecret, cfg.SessionDuration())
	if err != nil {
		return fmt.Errorf("failed to init session issuer: %w", err)
	}
	providers, err := buildProviders(context.Background(), cfg, guard.NewSafeClient(cfg.OAuthHTTPTimeout))
	if err != nil {
		return fmt.Errorf("failed to init oauth providers: %w", err)
	}
	authService := auth.NewService(userRepo, accountRepo, auth.NewBcryptHasher(cfg.BcryptCost))

	// 5. ドメインサービスの初期化
	followService := follow.NewService(userRepo, followRepo)
	profileService := profile.NewService(userRepo, followService, guard, security.NewTextSanitizer())

	// 6. ルーターの構築
	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		TokenVerifier:     issuer,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		Metrics:           collector,

		AuthService:   authService,
		SessionIssuer: issuer,
		Providers:     providers,
		Users:         userRepo,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:      cfg.BaseURL,
			LoginPath:    cfg.LoginPath,
			CookieDomain: cfg.CookieDomain,
			CookieSecure: cfg.CookieSecure,
		},

		FollowService:  followService,
		ProfileService: profileService,

		DB: db,
	})

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	metricsServer := newMetricsServer(cfg.MetricsPort, registry)

	return serveUntilSignal(server, metricsServer)
}

// newMetricsServer は/metricsを提供するHTTPサーバーを返す。
func newMetricsServer(port string, registry *prometheus.Registry) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           metrics.SetupMetricsRoute(registry),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// serveUntilSignal はサーバー群を起動し、シグナル受信またはいずれかの起動失敗で停止する。
func serveUntilSignal(servers ...*http.Server) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			slog.Info("http server starting", slog.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("server %s: %w", srv.Addr, err)
			}
		}(srv)
	}

	var runErr error
	select {
	case <-stop:
		slog.Info("shutting down http servers...")
	case runErr = <-errCh:
		slog.Error("server listen error", slog.String("error", runErr.Error()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			runErr = errors.Join(runErr, fmt.Errorf("server shutdown failed: %w", err))
		}
	}

	if runErr == nil {
		slog.Info("http servers stopped gracefully")
	}
	return runErr
}

// runWorker はワーカーモードで起動する。
// 保持期間を過ぎた外部アカウントトークンの消去ジョブを定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	registry, collector := newMetricsRegistry()
	metricsServer := newMetricsServer(cfg.MetricsPort, registry)
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server listen error", slog.String("error", err.Error()))
		}
	}()

	job := cleanup.NewTokenScrubJob(db, slog.Default(), collector)
	job.RetentionDays = cfg.AccountTokenRetentionDays

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("worker starting",
		slog.Duration("interval", cfg.CleanupInterval),
		slog.Int("retention_days", job.RetentionDays),
	)

	// ctxがキャンセルされるまでブロックする
	job.RunEvery(ctx, cfg.CleanupInterval)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics server shutdown failed: %w", err)
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed", slog.Uint64("schema_version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
// URLとして解釈できない場合は全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
