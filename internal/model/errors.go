// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, follow, profile, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeConflict         = "CONFLICT"
	ErrCodeUsernameConflict = "USERNAME_CONFLICT"
	ErrCodeUnauthenticated  = "UNAUTHENTICATED"
	ErrCodeLoginFailed      = "LOGIN_FAILED"
	ErrCodeUserNotFound     = "USER_NOT_FOUND"
	ErrCodeTargetNotFound   = "TARGET_NOT_FOUND"
	ErrCodeSelfFollow       = "SELF_FOLLOW"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewEmailConflictError はメールアドレス重複エラーを生成する。
func NewEmailConflictError() *APIError {
	return &APIError{
		Code:     ErrCodeConflict,
		Message:  "Email này đã được sử dụng",
		Category: "auth",
		Action:   "別のメールアドレスを使用するか、ログインしてください。",
	}
}

// NewUsernameConflictError はユーザー名の衝突エラーを生成する。
// ランダムサフィックス付与後も衝突した場合に返す。再試行で解消する。
func NewUsernameConflictError() *APIError {
	return &APIError{
		Code:     ErrCodeUsernameConflict,
		Message:  "Tên người dùng đã tồn tại, vui lòng thử lại",
		Category: "auth",
		Action:   "もう一度お試しください。",
	}
}

// NewUnauthenticatedError は未ログインエラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "Chưa đăng nhập",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewLoginFailedError はログイン失敗エラーを生成する。
// どの理由で失敗したか（未登録・OAuth専用・パスワード不一致）は区別しない。
func NewLoginFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeLoginFailed,
		Message:  "Email hoặc mật khẩu không chính xác",
		Category: "auth",
		Action:   "メールアドレスとパスワードを確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "Không tìm thấy người dùng",
		Category: "profile",
		Action:   "ユーザー名を確認してください。",
	}
}

// NewTargetNotFoundError はフォロー対象ユーザーが存在しない場合のエラーを生成する。
func NewTargetNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeTargetNotFound,
		Message:  "Người dùng không tồn tại",
		Category: "follow",
		Action:   "ユーザーIDを確認してください。",
	}
}

// NewSelfFollowError は自分自身をフォローしようとした場合のエラーを生成する。
func NewSelfFollowError() *APIError {
	return &APIError{
		Code:     ErrCodeSelfFollow,
		Message:  "Không thể tự follow chính mình",
		Category: "follow",
		Action:   "他のユーザーを指定してください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Đã xảy ra lỗi, vui lòng thử lại sau",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
