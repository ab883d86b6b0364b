package handler

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/konnect/internal/middleware"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// loginErrorMessages はログインページのerrorクエリに対応する表示メッセージ。
var loginErrorMessages = map[string]string{
	oauthErrorParam: "Đăng nhập thất bại, vui lòng thử lại",
}

type providerLink struct {
	ID    string
	Label string
}

type loginPage struct {
	Error     string
	Providers []providerLink
}

// PageHandler はログインページとホームページを返す。
type PageHandler struct {
	providers ProviderRegistry
	profiles  ProfileServiceInterface
	loginPath string
}

// NewPageHandler はPageHandlerを生成する。
func NewPageHandler(providers ProviderRegistry, profiles ProfileServiceInterface, loginPath string) *PageHandler {
	if loginPath == "" {
		loginPath = middleware.DefaultLoginPath
	}
	return &PageHandler{providers: providers, profiles: profiles, loginPath: loginPath}
}

// Login はログインページを返す。ログイン済みでも表示する。
// GET /auth
func (h *PageHandler) Login(w http.ResponseWriter, r *http.Request) {
	page := loginPage{Error: loginErrorMessages[r.URL.Query().Get("error")]}
	for _, name := range h.providers.Names() {
		page.Providers = append(page.Providers, providerLink{ID: name, Label: providerLabel(name)})
	}
	renderPage(w, r, "login.html", page)
}

// Home はログインユーザーのホームページを返す。
// GET /
func (h *PageHandler) Home(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		http.Redirect(w, r, h.loginPath, http.StatusFound)
		return
	}

	summary, err := h.profiles.Me(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	renderPage(w, r, "home.html", summary)
}

// renderPage はテンプレートをバッファに描画してから書き込む。
func renderPage(w http.ResponseWriter, r *http.Request, name string, data any) {
	var buf bytes.Buffer
	if err := pageTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		slog.Error("failed to render page",
			slog.String("template", name),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}

func providerLabel(name string) string {
	switch name {
	case "github":
		return "GitHub"
	case "google":
		return "Google"
	}
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
