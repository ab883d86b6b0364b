package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// toggleFollowQuery はフォロー関係の存在確認と作成/削除を1文で行う。
// 既存行があればdeletedが1行を返しinsertedは何もしない。
// 既存行がなければinsertedが作成する。同時実行で先に作成された場合は
// ON CONFLICT DO NOTHINGにより一意制約が二重作成を防ぐ。
const toggleFollowQuery = `
WITH deleted AS (
	DELETE FROM follows
	WHERE follower_id = $1 AND following_id = $2
	RETURNING id
), inserted AS (
	INSERT INTO follows (id, follower_id, following_id, created_at)
	SELECT $3, $1, $2, $4
	WHERE NOT EXISTS (SELECT 1 FROM deleted)
	ON CONFLICT (follower_id, following_id) DO NOTHING
	RETURNING id
)
SELECT NOT EXISTS (SELECT 1 FROM deleted)`

// PostgresFollowRepo はPostgreSQLを使用したフォローリポジトリ。
type PostgresFollowRepo struct {
	db *sql.DB
}

// NewPostgresFollowRepo はPostgresFollowRepoを生成する。
func NewPostgresFollowRepo(db *sql.DB) *PostgresFollowRepo {
	return &PostgresFollowRepo{db: db}
}

// Toggle はフォロー関係を反転させる。
// 作成した（またはフォロー状態になった）場合はtrue、削除した場合はfalseを返す。
// どちらかのユーザーが存在しない場合は*ReferenceErrorを返す。
func (r *PostgresFollowRepo) Toggle(ctx context.Context, followerID, followingID string) (bool, error) {
	var followed bool
	err := r.db.QueryRowContext(ctx, toggleFollowQuery,
		followerID, followingID, uuid.New().String(), time.Now(),
	).Scan(&followed)
	if err != nil {
		if refErr := asMissingReference(err); refErr != nil {
			return false, refErr
		}
		return false, fmt.Errorf("failed to toggle follow: %w", err)
	}
	return followed, nil
}

// Exists はフォロー関係が存在するかどうかを返す。
func (r *PostgresFollowRepo) Exists(ctx context.Context, followerID, followingID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM follows WHERE follower_id = $1 AND following_id = $2
		)`,
		followerID, followingID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check follow: %w", err)
	}
	return exists, nil
}

// compile-time interface check
var _ FollowRepository = (*PostgresFollowRepo)(nil)
