// Package security はSSRF対策と入力テキストのサニタイズを提供する。
package security

import (
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// imagesPathPrefix はアプリ同梱画像の相対パス。プロフィール画像として許可する。
const imagesPathPrefix = "/images/"

// maxURLLength はプロフィールに保存できるURLの最大長。
const maxURLLength = 2048

var allowedSchemes = []string{"http", "https"}

// blockedPrefixes は外部URLとして受け付けないアドレス範囲。
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("127.0.0.0/8"),
	// クラウドメタデータ 169.254.169.254 を含む
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fe80::/10"),
	netip.MustParsePrefix("fc00::/7"),
}

var blockedHostnames = []string{"localhost", "metadata.google.internal"}

// ErrUnsafeURL はURLが許可されない場合に返す。
var ErrUnsafeURL = errors.New("unsafe url")

// URLGuard は外部URLの静的検証と、SSRF防止付きHTTPクライアントの生成を行う。
type URLGuard struct{}

// NewURLGuard はURLGuardを生成する。
func NewURLGuard() *URLGuard {
	return &URLGuard{}
}

// NewSafeClient はOAuthプロバイダーとの通信に使うHTTPクライアントを生成する。
// safeurlはDNS解決後のIPアドレスをDialerで検証するため、
// プライベートIPやメタデータIPへの接続とDNS再バインディングを防げる。
func (g *URLGuard) NewSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(443).
		Build()

	return safeurl.Client(config).Client
}

// ValidateURL はユーザーが入力した外部URLをDNS解決なしで検証する。
// http/httpsのみ許可し、プライベート・ループバック等のアドレスを拒否する。
func (g *URLGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("%w: empty", ErrUnsafeURL)
	}
	if len(rawURL) > maxURLLength {
		return fmt.Errorf("%w: too long", ErrUnsafeURL)
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsafeURL, err)
	}
	if !isAllowedScheme(parsed.Scheme) {
		return fmt.Errorf("%w: scheme %q", ErrUnsafeURL, parsed.Scheme)
	}
	if parsed.User != nil {
		return fmt.Errorf("%w: userinfo", ErrUnsafeURL)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("%w: empty host", ErrUnsafeURL)
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		if isBlockedAddr(addr) {
			return fmt.Errorf("%w: blocked address %s", ErrUnsafeURL, addr)
		}
		return nil
	}
	if isBlockedHostname(host) {
		return fmt.Errorf("%w: blocked host %s", ErrUnsafeURL, host)
	}
	return nil
}

// ValidateImageURL はアバター・カバー画像のURLを検証する。
// 外部URLに加えて、同梱画像（/images/〜）の相対パスを許可する。
func (g *URLGuard) ValidateImageURL(rawURL string) error {
	if strings.HasPrefix(rawURL, imagesPathPrefix) && !strings.Contains(rawURL, "..") {
		return nil
	}
	return g.ValidateURL(rawURL)
}

func isAllowedScheme(scheme string) bool {
	for _, allowed := range allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}

func isBlockedAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	if addr.IsUnspecified() {
		return true
	}
	for _, prefix := range blockedPrefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func isBlockedHostname(host string) bool {
	lower := strings.TrimSuffix(strings.ToLower(host), ".")
	for _, blocked := range blockedHostnames {
		if lower == blocked || strings.HasSuffix(lower, "."+blocked) {
			return true
		}
	}
	return false
}
