package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const (
	githubProviderName   = "github"
	defaultGitHubAPIURL  = "https://api.github.com"
	maxGitHubResponseLen = 1 << 20
)

// GitHubOAuthConfig はGitHub OAuthプロバイダーの設定。
type GitHubOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// テスト用にオーバーライド可能なURL
	Endpoint   oauth2.Endpoint
	APIBaseURL string
	// IdPへのリクエストに使うクライアント。nilの場合はhttp.DefaultClient。
	HTTPClient *http.Client
}

// GitHubOAuthProvider はGitHub OAuth 2.0による認証を提供する。
type GitHubOAuthProvider struct {
	oauth      *oauth2.Config
	apiBaseURL string
	client     *http.Client
}

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// NewGitHubOAuthProvider はGitHubOAuthProviderを生成する。
func NewGitHubOAuthProvider(config GitHubOAuthConfig) (*GitHubOAuthProvider, error) {
	if config.ClientID == "" || config.ClientSecret == "" || config.RedirectURL == "" {
		return nil, errors.New("github oauth config missing required fields")
	}
	if config.Endpoint.AuthURL == "" {
		config.Endpoint = github.Endpoint
	}
	if config.APIBaseURL == "" {
		config.APIBaseURL = defaultGitHubAPIURL
	}

	return &GitHubOAuthProvider{
		oauth: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Endpoint:     config.Endpoint,
			Scopes:       []string{"read:user", "user:email"},
		},
		apiBaseURL: strings.TrimRight(config.APIBaseURL, "/"),
		client:     config.HTTPClient,
	}, nil
}

// Name はプロバイダー識別子を返す。
func (p *GitHubOAuthProvider) Name() string {
	return githubProviderName
}

// AuthCodeURL はGitHubの認可URLを生成する。
func (p *GitHubOAuthProvider) AuthCodeURL(state, verifier string) string {
	return p.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

// Exchange は認可コードをトークンに交換し、プロフィールを取得する。
// プロフィールのメールアドレスが非公開の場合は、確認済みのプライマリアドレスを使う。
// 表示名が未設定の場合はloginを使う。
func (p *GitHubOAuthProvider) Exchange(ctx context.Context, code, verifier string) (*OAuthProfile, error) {
	if p.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	}

	tok, err := p.oauth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("github token exchange failed: %w", err)
	}
	client := p.oauth.Client(ctx, tok)

	var user githubUser
	if err := p.getJSON(ctx, client, "/user", &user); err != nil {
		return nil, fmt.Errorf("failed to fetch github user: %w", err)
	}
	if user.ID == 0 {
		return nil, errors.New("github user missing id")
	}

	email := user.Email
	if email == "" {
		var emails []githubEmail
		if err := p.getJSON(ctx, client, "/user/emails", &emails); err != nil {
			return nil, fmt.Errorf("failed to fetch github emails: %w", err)
		}
		email = primaryVerifiedEmail(emails)
	}

	name := user.Name
	if name == "" {
		name = user.Login
	}

	return &OAuthProfile{
		Provider:          githubProviderName,
		ProviderAccountID: strconv.FormatInt(user.ID, 10),
		Email:             email,
		Name:              name,
		AvatarURL:         user.AvatarURL,
		Tokens:            tokensFrom(tok),
	}, nil
}

func (p *GitHubOAuthProvider) getJSON(ctx context.Context, client *http.Client, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxGitHubResponseLen))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// primaryVerifiedEmail は確認済みのプライマリアドレスを返す。なければ空文字。
func primaryVerifiedEmail(emails []githubEmail) string {
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email
		}
	}
	return ""
}

// compile-time interface check
var _ OAuthProvider = (*GitHubOAuthProvider)(nil)
