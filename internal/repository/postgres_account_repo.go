package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/konnect/internal/model"
)

const accountColumns = `id, user_id, provider, provider_account_id, access_token, refresh_token,
	token_type, scope, id_token, expires_at, created_at`

// PostgresAccountRepo はPostgreSQLを使用した外部アカウント紐付けリポジトリ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

// FindByProviderAccount はproviderとprovider_account_idで紐付けを検索する。
// 見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByProviderAccount(ctx context.Context, provider, providerAccountID string) (*model.LinkedAccount, error) {
	account, err := scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+`
		 FROM accounts
		 WHERE provider = $1 AND provider_account_id = $2`,
		provider, providerAccountID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	return account, nil
}

// Create は紐付けを作成する。
// (provider, provider_account_id) の重複は*DuplicateErrorとして返す。
func (r *PostgresAccountRepo) Create(ctx context.Context, account *model.LinkedAccount) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, user_id, provider, provider_account_id, access_token, refresh_token,
		                       token_type, scope, id_token, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		account.ID, account.UserID, account.Provider, account.ProviderAccountID,
		account.AccessToken, account.RefreshToken, account.TokenType, account.Scope,
		account.IDToken, account.ExpiresAt, account.CreatedAt,
	)
	if err != nil {
		if dup := asDuplicate(err); dup != nil {
			return dup
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

// ListByUserID はユーザーに紐付く外部アカウント一覧を作成日時順で返す。
func (r *PostgresAccountRepo) ListByUserID(ctx context.Context, userID string) ([]*model.LinkedAccount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+accountColumns+`
		 FROM accounts
		 WHERE user_id = $1
		 ORDER BY created_at`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*model.LinkedAccount
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accounts: %w", err)
	}
	return accounts, nil
}

// scanAccount はaccountColumnsの順序で1行をスキャンする。
func scanAccount(row rowScanner) (*model.LinkedAccount, error) {
	account := &model.LinkedAccount{}
	var (
		accessToken, refreshToken, tokenType, scope, idToken sql.NullString
		expiresAt                                            sql.NullTime
	)
	err := row.Scan(
		&account.ID, &account.UserID, &account.Provider, &account.ProviderAccountID,
		&accessToken, &refreshToken, &tokenType, &scope, &idToken, &expiresAt,
		&account.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	account.AccessToken = nullStringPtr(accessToken)
	account.RefreshToken = nullStringPtr(refreshToken)
	account.TokenType = nullStringPtr(tokenType)
	account.Scope = nullStringPtr(scope)
	account.IDToken = nullStringPtr(idToken)
	if expiresAt.Valid {
		t := expiresAt.Time
		account.ExpiresAt = &t
	}
	return account, nil
}

func nullStringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
