// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// SessionCookieName はセッショントークンを保持するHTTP Only Cookieの名前。
const SessionCookieName = "session_token"

// DefaultLoginPath はログインページのパス。
const DefaultLoginPath = "/auth"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// publicPrefixes は認証なしで通過させる静的アセットと認証APIのパス。
var publicPrefixes = []string{"/_next", "/images", "/favicon", "/static", "/api/auth", "/health"}

// publicSuffixes は認証なしで通過させる静的ファイルの拡張子。
var publicSuffixes = []string{".png", ".jpg", ".ico"}

// TokenVerifier はセッショントークンを検証してユーザーIDを返す。
// auth.SessionIssuerの部分集合として定義する。
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// RouteClass はアクセスゲートによるパスの分類。
type RouteClass int

const (
	// RoutePublic は認証不要のパス。
	RoutePublic RouteClass = iota
	// RouteLogin はログインページ。未認証でも表示する。
	RouteLogin
	// RouteProtected は有効なセッションが必要なパス。
	RouteProtected
)

// AccessGate はリクエストパスを分類し、保護されたパスへの未認証アクセスを
// ログインページへリダイレクトする。
type AccessGate struct {
	verifier  TokenVerifier
	loginPath string
}

// NewAccessGate はAccessGateを生成する。loginPathが空の場合は/authを使用する。
func NewAccessGate(verifier TokenVerifier, loginPath string) *AccessGate {
	if loginPath == "" {
		loginPath = DefaultLoginPath
	}
	return &AccessGate{verifier: verifier, loginPath: loginPath}
}

// LoginPath はログインページのパスを返す。
func (g *AccessGate) LoginPath() string {
	return g.loginPath
}

// Classify はパスを分類する。最初に一致した規則が優先される。
func (g *AccessGate) Classify(path string) RouteClass {
	for _, p := range publicPrefixes {
		if strings.HasPrefix(path, p) {
			return RoutePublic
		}
	}
	for _, s := range publicSuffixes {
		if strings.HasSuffix(path, s) {
			return RoutePublic
		}
	}
	if strings.HasPrefix(path, g.loginPath) {
		return RouteLogin
	}
	return RouteProtected
}

// Middleware はアクセスゲートのミドルウェアを返す。
// 有効なセッショントークンがあればパスの分類に関わらずユーザーIDをコンテキストに注入する。
// 保護されたパスでトークンが無い、または無効な場合はログインページへ302で誘導する。
func (g *AccessGate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := g.identify(r)
		if userID != "" {
			r = r.WithContext(ContextWithUserID(r.Context(), userID))
		}

		if userID == "" && g.Classify(r.URL.Path) == RouteProtected {
			http.Redirect(w, r, g.loginURL(r), http.StatusFound)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// identify はCookieのセッショントークンを検証してユーザーIDを返す。
// トークンが無い、または無効な場合は空文字を返す。
func (g *AccessGate) identify(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}
	userID, err := g.verifier.Verify(cookie.Value)
	if err != nil {
		return ""
	}
	return userID
}

// loginURL はリクエストのオリジンを基準にしたログインページの絶対URLを返す。
func (g *AccessGate) loginURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}
	u := url.URL{Scheme: scheme, Host: r.Host, Path: g.loginPath}
	return u.String()
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// アクセスゲートで有効なセッションが確認されたリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
