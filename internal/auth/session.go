package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hitoshi/konnect/internal/model"
)

const (
	// MinSecretLength は署名鍵の最小バイト数。
	MinSecretLength = 32
	// DefaultSessionMaxAge はセッショントークンの既定有効期間。
	DefaultSessionMaxAge = 30 * 24 * time.Hour

	sessionIssuer = "konnect"
)

// ErrInvalidToken はセッショントークンの署名・有効期限・形式が不正な場合に返す。
var ErrInvalidToken = errors.New("invalid session token")

// SessionClaims はセッショントークンのクレーム。ユーザーID以外の情報は含めない。
type SessionClaims struct {
	UserID string `json:"id"`
	jwt.RegisteredClaims
}

// Token は発行済みのセッショントークン。
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// SessionIssuer はHS256署名のセッショントークンを発行・検証する。
// 保存を伴わないため、失効は有効期限と署名鍵の変更のみで行われる。
type SessionIssuer struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

// NewSessionIssuer はSessionIssuerを生成する。署名鍵が短すぎる場合はエラーを返す。
func NewSessionIssuer(secret string, maxAge time.Duration) (*SessionIssuer, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("session secret must be at least %d bytes", MinSecretLength)
	}
	if maxAge <= 0 {
		maxAge = DefaultSessionMaxAge
	}
	return &SessionIssuer{
		secret: []byte(secret),
		maxAge: maxAge,
		now:    time.Now,
	}, nil
}

// MaxAge はトークンの有効期間を返す。
func (i *SessionIssuer) MaxAge() time.Duration {
	return i.maxAge
}

// Issue はユーザーのセッショントークンを発行する。
func (i *SessionIssuer) Issue(user *model.User) (*Token, error) {
	now := i.now().UTC()
	expiresAt := now.Add(i.maxAge)
	claims := &SessionClaims{
		UserID: user.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    sessionIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign session token: %w", err)
	}
	return &Token{Value: signed, ExpiresAt: expiresAt}, nil
}

// Verify はトークンの署名と有効期限を検証し、ユーザーIDを返す。
func (i *SessionIssuer) Verify(tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return i.secret, nil
		},
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
