package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

type stubProvider struct{ name string }

func (s *stubProvider) Name() string                       { return s.name }
func (s *stubProvider) AuthCodeURL(state, _ string) string { return "https://idp.example/" + state }
func (s *stubProvider) Exchange(context.Context, string, string) (*OAuthProfile, error) {
	return &OAuthProfile{Provider: s.name}, nil
}

func TestRegistry_KeepsOrderAndSkipsNilAndDuplicates(t *testing.T) {
	var nilProvider OAuthProvider
	r := NewRegistry(&stubProvider{"google"}, nilProvider, &stubProvider{"github"}, &stubProvider{"google"})

	names := r.Names()
	if len(names) != 2 || names[0] != "google" || names[1] != "github" {
		t.Errorf("Names() = %v, want [google github]", names)
	}
	if _, ok := r.Get("github"); !ok {
		t.Error("github should be registered")
	}
	if _, ok := r.Get("twitter"); ok {
		t.Error("未登録のプロバイダーは見つからないこと")
	}

	names[0] = "mutated"
	if r.Names()[0] != "google" {
		t.Error("Names()の戻り値を変更しても内部状態に影響しないこと")
	}
}

func TestGenerateState_UniqueHex(t *testing.T) {
	a, err := GenerateState()
	if err != nil {
		t.Fatalf("GenerateState: %v", err)
	}
	b, _ := GenerateState()
	if len(a) != 64 || a == b {
		t.Errorf("state should be 64 hex chars and unique: %q %q", a, b)
	}
}

func TestTokensFrom_ReadsExtras(t *testing.T) {
	expiry := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tok := (&oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenType:    "Bearer",
		Expiry:       expiry,
	}).WithExtra(map[string]any{"scope": "openid email", "id_token": "id.token.value"})

	got := tokensFrom(tok)
	want := ProviderTokens{
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenType:    "Bearer",
		Scope:        "openid email",
		IDToken:      "id.token.value",
		ExpiresAt:    expiry,
	}
	if got != want {
		t.Errorf("tokensFrom() = %+v, want %+v", got, want)
	}
}

// --- GitHub ---

func newGitHubTestServer(t *testing.T, user map[string]any, emails []map[string]any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		if r.PostForm.Get("code_verifier") == "" {
			t.Error("code_verifier should be sent")
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "gh-access",
			"token_type":   "bearer",
			"scope":        "read:user,user:email",
		})
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer gh-access" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(user)
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(emails)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newGitHubForTest(t *testing.T, srv *httptest.Server) *GitHubOAuthProvider {
	t.Helper()
	p, err := NewGitHubOAuthProvider(GitHubOAuthConfig{
		ClientID:     "gh-client",
		ClientSecret: "gh-secret",
		RedirectURL:  "http://localhost:8080/api/auth/callback/github",
		Endpoint: oauth2.Endpoint{
			AuthURL:  srv.URL + "/login/oauth/authorize",
			TokenURL: srv.URL + "/login/oauth/access_token",
		},
		APIBaseURL: srv.URL,
		HTTPClient: srv.Client(),
	})
	if err != nil {
		t.Fatalf("NewGitHubOAuthProvider: %v", err)
	}
	return p
}

func TestNewGitHubOAuthProvider_RequiresCredentials(t *testing.T) {
	if _, err := NewGitHubOAuthProvider(GitHubOAuthConfig{ClientID: "id"}); err == nil {
		t.Error("client secretなしはエラーになること")
	}
}

func TestGitHubOAuthProvider_AuthCodeURL_UsesPKCE(t *testing.T) {
	srv := newGitHubTestServer(t, nil, nil)
	p := newGitHubForTest(t, srv)

	raw := p.AuthCodeURL("state-1", GenerateVerifier())
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("url.Parse: %v", err)
	}
	q := u.Query()
	if q.Get("state") != "state-1" {
		t.Errorf("state = %q", q.Get("state"))
	}
	if q.Get("code_challenge_method") != "S256" || q.Get("code_challenge") == "" {
		t.Errorf("PKCE params missing: %s", raw)
	}
	if !strings.Contains(q.Get("scope"), "user:email") {
		t.Errorf("scope = %q, want user:email", q.Get("scope"))
	}
}

func TestGitHubOAuthProvider_Exchange_PublicEmail(t *testing.T) {
	srv := newGitHubTestServer(t, map[string]any{
		"id": 9001, "login": "lan", "name": "Lan Nguyen", "email": "lan@example.com",
		"avatar_url": "https://avatars.githubusercontent.com/u/9001",
	}, nil)
	p := newGitHubForTest(t, srv)

	profile, err := p.Exchange(context.Background(), "code-1", GenerateVerifier())
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if profile.Provider != "github" || profile.ProviderAccountID != "9001" {
		t.Errorf("profile = %+v", profile)
	}
	if profile.Email != "lan@example.com" || profile.Name != "Lan Nguyen" {
		t.Errorf("profile = %+v", profile)
	}
	if profile.Tokens.AccessToken != "gh-access" || profile.Tokens.Scope != "read:user,user:email" {
		t.Errorf("tokens = %+v", profile.Tokens)
	}
}

func TestGitHubOAuthProvider_Exchange_PrivateEmailUsesPrimaryVerified(t *testing.T) {
	srv := newGitHubTestServer(t,
		map[string]any{"id": 42, "login": "octo", "name": "", "email": ""},
		[]map[string]any{
			{"email": "old@example.com", "primary": false, "verified": true},
			{"email": "octo@example.com", "primary": true, "verified": true},
		},
	)
	p := newGitHubForTest(t, srv)

	profile, err := p.Exchange(context.Background(), "code-1", GenerateVerifier())
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if profile.Email != "octo@example.com" {
		t.Errorf("Email = %q, want %q", profile.Email, "octo@example.com")
	}
	if profile.Name != "octo" {
		t.Errorf("表示名がない場合はloginを使うこと: Name = %q", profile.Name)
	}
}

func TestPrimaryVerifiedEmail_UnverifiedIgnored(t *testing.T) {
	got := primaryVerifiedEmail([]githubEmail{{Email: "a@example.com", Primary: true, Verified: false}})
	if got != "" {
		t.Errorf("未確認のアドレスは使わないこと: %q", got)
	}
}

// --- Google ---

func newGoogleTestServer(t *testing.T, userInfo map[string]any) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"issuer":                                srv.URL,
			"authorization_endpoint":                srv.URL + "/auth",
			"token_endpoint":                        srv.URL + "/token",
			"userinfo_endpoint":                     srv.URL + "/userinfo",
			"jwks_uri":                              srv.URL + "/certs",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "g-access",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer g-access" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(userInfo)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newGoogleForTest(t *testing.T, srv *httptest.Server) *GoogleOAuthProvider {
	t.Helper()
	p, err := NewGoogleOAuthProvider(context.Background(), GoogleOAuthConfig{
		ClientID:     "g-client",
		ClientSecret: "g-secret",
		RedirectURL:  "http://localhost:8080/api/auth/callback/google",
		IssuerURL:    srv.URL,
		HTTPClient:   srv.Client(),
	})
	if err != nil {
		t.Fatalf("NewGoogleOAuthProvider: %v", err)
	}
	return p
}

func TestNewGoogleOAuthProvider_RequiresCredentials(t *testing.T) {
	if _, err := NewGoogleOAuthProvider(context.Background(), GoogleOAuthConfig{}); err == nil {
		t.Error("設定不足はエラーになること")
	}
}

func TestGoogleOAuthProvider_AuthCodeURL_ContainsRequiredParams(t *testing.T) {
	srv := newGoogleTestServer(t, nil)
	p := newGoogleForTest(t, srv)

	raw := p.AuthCodeURL("test-state-value", GenerateVerifier())
	if !strings.HasPrefix(raw, srv.URL+"/auth?") {
		t.Errorf("Discoveryの認可エンドポイントを使うこと: %s", raw)
	}
	u, _ := url.Parse(raw)
	q := u.Query()
	tests := []struct {
		key  string
		want string
	}{
		{"client_id", "g-client"},
		{"state", "test-state-value"},
		{"response_type", "code"},
		{"code_challenge_method", "S256"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := q.Get(tt.key); got != tt.want {
				t.Errorf("%s = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
	for _, scope := range []string{"openid", "email", "profile"} {
		if !strings.Contains(q.Get("scope"), scope) {
			t.Errorf("scope %q missing: %q", scope, q.Get("scope"))
		}
	}
}

func TestGoogleOAuthProvider_Exchange_UsesUserInfo(t *testing.T) {
	srv := newGoogleTestServer(t, map[string]any{
		"sub":            "g-123",
		"email":          "lan@gmail.com",
		"email_verified": true,
		"name":           "Lan Nguyen",
		"picture":        "https://lh3.googleusercontent.com/a/photo",
	})
	p := newGoogleForTest(t, srv)

	profile, err := p.Exchange(context.Background(), "code-1", GenerateVerifier())
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	want := OAuthProfile{
		Provider:          "google",
		ProviderAccountID: "g-123",
		Email:             "lan@gmail.com",
		Name:              "Lan Nguyen",
		AvatarURL:         "https://lh3.googleusercontent.com/a/photo",
	}
	got := *profile
	got.Tokens = ProviderTokens{}
	if got != want {
		t.Errorf("profile = %+v, want %+v", got, want)
	}
	if profile.Tokens.AccessToken != "g-access" || profile.Tokens.ExpiresAt.IsZero() {
		t.Errorf("tokens = %+v", profile.Tokens)
	}
}

func TestGoogleOAuthProvider_Exchange_UnverifiedEmailDropped(t *testing.T) {
	srv := newGoogleTestServer(t, map[string]any{
		"sub":            "g-456",
		"email":          "someone@example.com",
		"email_verified": false,
	})
	p := newGoogleForTest(t, srv)

	profile, err := p.Exchange(context.Background(), "code-1", GenerateVerifier())
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if profile.Email != "" {
		t.Errorf("未確認のメールアドレスは使わないこと: %q", profile.Email)
	}
}
