package repository

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// 一意制約名。マイグレーションの定義と一致させること。
const (
	ConstraintUsersEmail      = "users_email_key"
	ConstraintUsersUsername   = "users_username_key"
	ConstraintAccountProvider = "accounts_provider_provider_account_id_key"
	ConstraintFollowsPair     = "follows_follower_id_following_id_key"
)

// 外部キー制約名。
const (
	ConstraintFollowsFollower  = "follows_follower_id_fkey"
	ConstraintFollowsFollowing = "follows_following_id_fkey"
)

// PostgreSQLのSQLSTATE。
const (
	uniqueViolationCode     = "23505"
	foreignKeyViolationCode = "23503"
)

// ErrDuplicate は一意制約違反を表すセンチネルエラー。
var ErrDuplicate = errors.New("duplicate key")

// DuplicateError は違反した一意制約名を保持する。
// errors.Is(err, ErrDuplicate) で判定できる。
type DuplicateError struct {
	Constraint string
}

// Error はerrorインターフェースを実装する。
func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate key violates unique constraint %q", e.Constraint)
}

// Is はErrDuplicateとの比較を可能にする。
func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicate
}

// IsDuplicateOn はerrが指定制約の一意制約違反かどうかを返す。
func IsDuplicateOn(err error, constraint string) bool {
	var dupErr *DuplicateError
	if errors.As(err, &dupErr) {
		return dupErr.Constraint == constraint
	}
	return false
}

// asDuplicate はpqの一意制約違反を*DuplicateErrorに変換する。
// 該当しない場合はnilを返す。
func asDuplicate(err error) *DuplicateError {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolationCode {
		return &DuplicateError{Constraint: pqErr.Constraint}
	}
	return nil
}

// ErrMissingReference は参照先の行が存在しない（外部キー違反）ことを表す。
var ErrMissingReference = errors.New("referenced row does not exist")

// ReferenceError は違反した外部キー制約名を保持する。
// errors.Is(err, ErrMissingReference) で判定できる。
type ReferenceError struct {
	Constraint string
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("insert violates foreign key constraint %q", e.Constraint)
}

// Is はErrMissingReferenceとの比較を可能にする。
func (e *ReferenceError) Is(target error) bool {
	return target == ErrMissingReference
}

// IsMissingReferenceOn はerrが指定制約の外部キー違反かどうかを返す。
func IsMissingReferenceOn(err error, constraint string) bool {
	var refErr *ReferenceError
	if errors.As(err, &refErr) {
		return refErr.Constraint == constraint
	}
	return false
}

// asMissingReference はpqの外部キー違反を*ReferenceErrorに変換する。
// 該当しない場合はnilを返す。
func asMissingReference(err error) *ReferenceError {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == foreignKeyViolationCode {
		return &ReferenceError{Constraint: pqErr.Constraint}
	}
	return nil
}
