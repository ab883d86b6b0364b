package auth

import (
	"errors"
	"fmt"
)

// ErrorKind は認証処理の想定内の失敗理由を表す。
type ErrorKind int

const (
	// KindNotFound はメールアドレスに対応するユーザーが存在しないことを表す。
	KindNotFound ErrorKind = iota + 1
	// KindWrongLoginMethod はOAuth専用ユーザーがパスワードでログインしようとしたことを表す。
	KindWrongLoginMethod
	// KindInvalidCredentials はパスワード不一致を表す。
	KindInvalidCredentials
	// KindMissingEmail は外部プロフィールにメールアドレスがないことを表す。
	KindMissingEmail
	// KindStorage は永続化層の想定外エラーを表す。
	KindStorage
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindWrongLoginMethod:
		return "wrong_login_method"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindMissingEmail:
		return "missing_email"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// Error は認証処理の失敗を表す。errors.Asで取り出してKindで分岐する。
type Error struct {
	Kind ErrorKind
	Err  error
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth %s: %v", e.Kind, e.Err)
	}
	return "auth " + e.Kind.String()
}

// Unwrap は原因エラーを返す。
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind) *Error {
	return &Error{Kind: kind}
}

func storageError(op string, err error) *Error {
	return &Error{Kind: KindStorage, Err: fmt.Errorf("%s: %w", op, err)}
}

// KindOf はerrに含まれる認証エラーの種別を返す。認証エラーでなければ0を返す。
func KindOf(err error) ErrorKind {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr.Kind
	}
	return 0
}
