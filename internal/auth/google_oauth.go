package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const (
	googleProviderName     = "google"
	defaultGoogleIssuerURL = "https://accounts.google.com"
)

// GoogleOAuthConfig はGoogle OAuthプロバイダーの設定。
type GoogleOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// テスト用にオーバーライド可能なIssuer
	IssuerURL string
	// IdPへのリクエストに使うクライアント。nilの場合はhttp.DefaultClient。
	HTTPClient *http.Client
}

// GoogleOAuthProvider はGoogle OpenID Connectによる認証を提供する。
type GoogleOAuthProvider struct {
	oauth    *oauth2.Config
	oidc     *oidc.Provider
	verifier *oidc.IDTokenVerifier
	client   *http.Client
}

// googleClaims はIDトークンおよびUserInfoのクレーム。
type googleClaims struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// NewGoogleOAuthProvider はDiscoveryでエンドポイントを取得してGoogleOAuthProviderを生成する。
func NewGoogleOAuthProvider(ctx context.Context, config GoogleOAuthConfig) (*GoogleOAuthProvider, error) {
	if config.ClientID == "" || config.ClientSecret == "" || config.RedirectURL == "" {
		return nil, errors.New("google oauth config missing required fields")
	}
	if config.IssuerURL == "" {
		config.IssuerURL = defaultGoogleIssuerURL
	}

	p := &GoogleOAuthProvider{client: config.HTTPClient}
	provider, err := oidc.NewProvider(p.withClient(ctx), config.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to init google oidc provider: %w", err)
	}

	p.oidc = provider
	p.verifier = provider.Verifier(&oidc.Config{ClientID: config.ClientID})
	p.oauth = &oauth2.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		RedirectURL:  config.RedirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
	}
	return p, nil
}

// Name はプロバイダー識別子を返す。
func (p *GoogleOAuthProvider) Name() string {
	return googleProviderName
}

// AuthCodeURL はGoogleの認可URLを生成する。
func (p *GoogleOAuthProvider) AuthCodeURL(state, verifier string) string {
	return p.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOnline,
		oauth2.S256ChallengeOption(verifier),
	)
}

// Exchange は認可コードをトークンに交換し、プロフィールを取得する。
// IDトークンがあれば検証してそのクレームを使い、なければUserInfoを参照する。
// 未確認のメールアドレスはメール無しとして扱う。
func (p *GoogleOAuthProvider) Exchange(ctx context.Context, code, verifier string) (*OAuthProfile, error) {
	ctx = p.withClient(ctx)

	tok, err := p.oauth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("google token exchange failed: %w", err)
	}

	var claims googleClaims
	if rawIDToken, ok := tok.Extra("id_token").(string); ok && rawIDToken != "" {
		idToken, err := p.verifier.Verify(ctx, rawIDToken)
		if err != nil {
			return nil, fmt.Errorf("google id_token verification failed: %w", err)
		}
		if err := idToken.Claims(&claims); err != nil {
			return nil, fmt.Errorf("failed to parse id_token claims: %w", err)
		}
	} else {
		info, err := p.oidc.UserInfo(ctx, oauth2.StaticTokenSource(tok))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch user info: %w", err)
		}
		if err := info.Claims(&claims); err != nil {
			return nil, fmt.Errorf("failed to parse user info: %w", err)
		}
		claims.Subject = info.Subject
		claims.EmailVerified = info.EmailVerified
	}

	if claims.Subject == "" {
		return nil, errors.New("google profile missing subject")
	}

	email := claims.Email
	if !claims.EmailVerified {
		email = ""
	}

	return &OAuthProfile{
		Provider:          googleProviderName,
		ProviderAccountID: claims.Subject,
		Email:             email,
		Name:              claims.Name,
		AvatarURL:         claims.Picture,
		Tokens:            tokensFrom(tok),
	}, nil
}

func (p *GoogleOAuthProvider) withClient(ctx context.Context) context.Context {
	if p.client == nil {
		return ctx
	}
	return oidc.ClientContext(ctx, p.client)
}

// compile-time interface check
var _ OAuthProvider = (*GoogleOAuthProvider)(nil)
