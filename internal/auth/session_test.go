package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hitoshi/konnect/internal/model"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestIssuer(t *testing.T) *SessionIssuer {
	t.Helper()
	issuer, err := NewSessionIssuer(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewSessionIssuer: %v", err)
	}
	return issuer
}

func TestNewSessionIssuer_ShortSecret(t *testing.T) {
	if _, err := NewSessionIssuer("too-short", time.Hour); err == nil {
		t.Error("32バイト未満の署名鍵はエラーになること")
	}
}

func TestNewSessionIssuer_DefaultMaxAge(t *testing.T) {
	issuer, err := NewSessionIssuer(testSecret, 0)
	if err != nil {
		t.Fatalf("NewSessionIssuer: %v", err)
	}
	if issuer.MaxAge() != DefaultSessionMaxAge {
		t.Errorf("MaxAge = %v, want %v", issuer.MaxAge(), DefaultSessionMaxAge)
	}
}

func TestSessionIssuer_IssueAndVerify(t *testing.T) {
	issuer := newTestIssuer(t)
	hash := "$2a$10$secret"
	user := &model.User{ID: "user-1", Email: "minh@test.com", PasswordHash: &hash}

	token, err := issuer.Issue(user)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if token.ExpiresAt.Before(time.Now().Add(59 * time.Minute)) {
		t.Errorf("ExpiresAt too early: %v", token.ExpiresAt)
	}

	userID, err := issuer.Verify(token.Value)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if userID != "user-1" {
		t.Errorf("userID = %q, want %q", userID, "user-1")
	}
}

func TestSessionIssuer_TokenCarriesNoSecrets(t *testing.T) {
	issuer := newTestIssuer(t)
	hash := "$2a$10$secret-hash"
	token, err := issuer.Issue(&model.User{ID: "user-1", Email: "minh@test.com", PasswordHash: &hash})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token.Value, claims); err != nil {
		t.Fatalf("ParseUnverified: %v", err)
	}
	for _, key := range []string{"sub", "id", "iat", "exp", "iss"} {
		if _, ok := claims[key]; !ok {
			t.Errorf("claim %q missing", key)
		}
	}
	for key, v := range claims {
		if s, ok := v.(string); ok && strings.Contains(s, "secret-hash") {
			t.Errorf("claim %q leaks password hash", key)
		}
	}
}

func TestSessionIssuer_Expired(t *testing.T) {
	issuer := newTestIssuer(t)
	issuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := issuer.Issue(&model.User{ID: "user-1"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	issuer.now = time.Now
	if _, err := issuer.Verify(token.Value); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("期限切れトークンはErrInvalidTokenになること: %v", err)
	}
}

func TestSessionIssuer_WrongSecret(t *testing.T) {
	issuer := newTestIssuer(t)
	token, err := issuer.Issue(&model.User{ID: "user-1"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	other, err := NewSessionIssuer(strings.Repeat("x", MinSecretLength), time.Hour)
	if err != nil {
		t.Fatalf("NewSessionIssuer: %v", err)
	}
	if _, err := other.Verify(token.Value); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("別の鍵で署名されたトークンは拒否すること: %v", err)
	}
}

func TestSessionIssuer_RejectsOtherAlgorithms(t *testing.T) {
	issuer := newTestIssuer(t)
	claims := jwt.MapClaims{
		"sub": "user-1",
		"iss": sessionIssuer,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}

	if _, err := issuer.Verify(unsigned); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("alg=noneのトークンは拒否すること: %v", err)
	}
}

func TestSessionIssuer_MalformedAndEmpty(t *testing.T) {
	issuer := newTestIssuer(t)
	for _, tok := range []string{"", "garbage", "a.b.c"} {
		if _, err := issuer.Verify(tok); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Verify(%q) err = %v, want ErrInvalidToken", tok, err)
		}
	}
}
