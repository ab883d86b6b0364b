package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/konnect/internal/model"
)

const (
	// CSRFCookieName はダブルサブミット用トークンのCookie名。
	// クライアントのスクリプトがヘッダーへ写せるようHttpOnlyにしない。
	CSRFCookieName = "csrf_token"
	// CSRFHeaderName は状態変更リクエストでトークンを送るヘッダー名。
	CSRFHeaderName = "X-CSRF-Token"

	csrfCookieMaxAge = 24 * 60 * 60
	csrfTokenBytes   = 32
)

// CSRFConfig はCSRF対策の設定。
// TrustedOriginを設定すると、Originヘッダー付きの状態変更リクエストは
// そのオリジンかリクエスト先ホスト自身からのものに限る。
type CSRFConfig struct {
	CookieSecure  bool
	CookieDomain  string
	TrustedOrigin string
}

// NewCSRFMiddleware はダブルサブミットCookie方式のCSRF対策ミドルウェアを返す。
// GET/HEAD/OPTIONSは検証せず、トークンCookieが無ければ発行する。
// それ以外のメソッドはCookieとヘッダーのトークンが一致しなければ403を返す。
func NewCSRFMiddleware(config CSRFConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				if c, err := r.Cookie(CSRFCookieName); err != nil || c.Value == "" {
					if _, err := issueCSRFToken(w, config); err != nil {
						slog.Error("failed to issue csrf token", slog.String("error", err.Error()))
					}
				}
				next.ServeHTTP(w, r)
				return
			}

			if reason := checkCSRF(r, config); reason != "" {
				slog.Warn("csrf check failed",
					slog.String("reason", reason),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("request_id", chimw.GetReqID(r.Context())),
				)
				WriteErrorResponse(w, r, http.StatusForbidden, newCSRFError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewCSRFTokenHandler は現在のCSRFトークンを{"token": "..."}で返すハンドラー。
// トークンCookieが無ければ発行してから返す。
// GET /api/auth/csrf
func NewCSRFTokenHandler(config CSRFConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ""
		if c, err := r.Cookie(CSRFCookieName); err == nil {
			token = c.Value
		}
		if token == "" {
			issued, err := issueCSRFToken(w, config)
			if err != nil {
				slog.Error("failed to issue csrf token", slog.String("error", err.Error()))
				WriteInternalServerError(w, r)
				return
			}
			token = issued
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]string{"token": token}); err != nil {
			slog.Error("failed to encode csrf token", slog.String("error", err.Error()))
		}
	})
}

// checkCSRF は状態変更リクエストを検証する。問題が無ければ空文字、あればログ用の理由を返す。
func checkCSRF(r *http.Request, config CSRFConfig) string {
	if origin := r.Header.Get("Origin"); origin != "" && config.TrustedOrigin != "" {
		if origin != config.TrustedOrigin && !sameHost(origin, r.Host) {
			return "untrusted origin"
		}
	}

	c, err := r.Cookie(CSRFCookieName)
	if err != nil || c.Value == "" {
		return "missing cookie token"
	}
	header := r.Header.Get(CSRFHeaderName)
	if header == "" {
		return "missing header token"
	}
	if subtle.ConstantTimeCompare([]byte(c.Value), []byte(header)) != 1 {
		return "token mismatch"
	}
	return ""
}

func sameHost(origin, host string) bool {
	u, err := url.Parse(origin)
	return err == nil && u.Host == host
}

// issueCSRFToken は新しいトークンを生成してCookieに設定する。
func issueCSRFToken(w http.ResponseWriter, config CSRFConfig) (string, error) {
	b := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(b)

	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   csrfCookieMaxAge,
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return token, nil
}

func newCSRFError() *model.APIError {
	return &model.APIError{
		Code:     "CSRF_INVALID",
		Message:  "Phiên làm việc không hợp lệ, vui lòng tải lại trang",
		Category: "auth",
		Action:   "ページを再読み込みしてください。",
	}
}
