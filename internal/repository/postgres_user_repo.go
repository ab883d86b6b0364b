package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/hitoshi/konnect/internal/model"
)

// userColumns はusersテーブルのSELECT対象カラム。scanUserの順序と一致させること。
const userColumns = `id, email, username, password_hash, name, avatar_url, cover_url,
	bio, location, website, created_at, updated_at`

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
// UUIDとして解釈できないIDも存在しないユーザーとして扱う。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`,
		email,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// FindByUsername はユーザー名でユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`,
		username,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by username: %w", err)
	}
	return user, nil
}

// ExistsByUsername はユーザー名が使用済みかどうかを返す。
func (r *PostgresUserRepo) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`,
		username,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}
	return exists, nil
}

// Create はユーザーを作成する。
// 一意制約違反（email, username）は*DuplicateErrorとして返す。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, username, password_hash, name, avatar_url, cover_url,
		                    bio, location, website, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		user.ID, user.Email, user.Username, user.PasswordHash, user.Name, user.AvatarURL, user.CoverURL,
		user.Bio, user.Location, user.Website, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if dup := asDuplicate(err); dup != nil {
			return dup
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// UpdateProfile はプロフィール属性を更新し、更新後のユーザーを返す。
// 見つからない場合はnilを返す。
func (r *PostgresUserRepo) UpdateProfile(ctx context.Context, user *model.User) (*model.User, error) {
	updated, err := scanUser(r.db.QueryRowContext(ctx,
		`UPDATE users
		 SET name = $2, bio = $3, location = $4, website = $5,
		     avatar_url = $6, cover_url = $7, updated_at = now()
		 WHERE id = $1
		 RETURNING `+userColumns,
		user.ID, user.Name, user.Bio, user.Location, user.Website, user.AvatarURL, user.CoverURL,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return updated, nil
}

// GetProfileByUsername はユーザー名で公開プロフィールをフォロー数付きで取得する。
// フォロー数は非正規化カウンタを持たず、followsテーブルから都度集計する。
func (r *PostgresUserRepo) GetProfileByUsername(ctx context.Context, username string) (*model.Profile, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+`,
		        (SELECT COUNT(*) FROM follows f WHERE f.following_id = users.id),
		        (SELECT COUNT(*) FROM follows f WHERE f.follower_id = users.id)
		 FROM users WHERE username = $1`,
		username,
	)

	profile := &model.Profile{}
	var passwordHash sql.NullString
	err := row.Scan(
		&profile.ID, &profile.Email, &profile.Username, &passwordHash, &profile.Name,
		&profile.AvatarURL, &profile.CoverURL, &profile.Bio, &profile.Location, &profile.Website,
		&profile.CreatedAt, &profile.UpdatedAt,
		&profile.FollowersCount, &profile.FollowingCount,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	if passwordHash.Valid {
		profile.PasswordHash = &passwordHash.String
	}
	return profile, nil
}

// scanUser はuserColumnsの順序で1行をスキャンする。
func scanUser(row rowScanner) (*model.User, error) {
	user := &model.User{}
	var passwordHash sql.NullString
	err := row.Scan(
		&user.ID, &user.Email, &user.Username, &passwordHash, &user.Name,
		&user.AvatarURL, &user.CoverURL, &user.Bio, &user.Location, &user.Website,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if passwordHash.Valid {
		user.PasswordHash = &passwordHash.String
	}
	return user, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
