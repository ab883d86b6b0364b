package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// OAuthProfile は外部IdPから取得したユーザー情報とトークンを表す。
type OAuthProfile struct {
	Provider          string
	ProviderAccountID string
	Email             string
	Name              string
	AvatarURL         string
	Tokens            ProviderTokens
}

// ProviderTokens はIdPが発行したトークン。解釈せずにそのまま保存する。
type ProviderTokens struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        string
	IDToken      string
	ExpiresAt    time.Time
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// Name はプロバイダー識別子（"google", "github"）を返す。
	Name() string
	// AuthCodeURL はPKCE(S256)付きの認可URLを生成する。
	AuthCodeURL(state, verifier string) string
	// Exchange は認可コードをトークンに交換し、プロフィールを取得する。
	Exchange(ctx context.Context, code, verifier string) (*OAuthProfile, error)
}

// Registry は設定済みのOAuthプロバイダーを名前で引けるようにする。
type Registry struct {
	providers map[string]OAuthProvider
	names     []string
}

// NewRegistry はRegistryを生成する。nilのプロバイダーは無視する。
func NewRegistry(providers ...OAuthProvider) *Registry {
	r := &Registry{providers: make(map[string]OAuthProvider)}
	for _, p := range providers {
		if p == nil {
			continue
		}
		if _, dup := r.providers[p.Name()]; dup {
			continue
		}
		r.providers[p.Name()] = p
		r.names = append(r.names, p.Name())
	}
	return r
}

// Get は名前に対応するプロバイダーを返す。
func (r *Registry) Get(name string) (OAuthProvider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// Names は登録順のプロバイダー名一覧を返す。
func (r *Registry) Names() []string {
	names := make([]string, len(r.names))
	copy(names, r.names)
	return names
}

// GenerateState はCSRF対策用のstate値を生成する。
func GenerateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// GenerateVerifier はPKCEのcode_verifierを生成する。
func GenerateVerifier() string {
	return oauth2.GenerateVerifier()
}

// tokensFrom はoauth2.TokenからProviderTokensを取り出す。
func tokensFrom(tok *oauth2.Token) ProviderTokens {
	tokens := ProviderTokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiresAt:    tok.Expiry,
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		tokens.Scope = scope
	}
	if idToken, ok := tok.Extra("id_token").(string); ok {
		tokens.IDToken = idToken
	}
	return tokens
}
