package auth

import (
	"context"
	"sync"

	"github.com/hitoshi/konnect/internal/model"
	"github.com/hitoshi/konnect/internal/repository"
)

// --- インメモリのリポジトリ ---

// memUserRepo は一意制約を再現するインメモリのUserRepository。
type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User

	createCalls int
	// createFn が設定されている場合は通常の作成より先に呼ばれる
	createFn func(user *model.User) error
	// findByEmailErr が設定されている場合はFindByEmailがこのエラーを返す
	findByEmailErr error
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]*model.User)}
}

func (m *memUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		c := *u
		return &c, nil
	}
	return nil, nil
}

func (m *memUserRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findByEmailErr != nil {
		return nil, m.findByEmailErr
	}
	for _, u := range m.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (m *memUserRepo) FindByUsername(_ context.Context, username string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (m *memUserRepo) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	u, err := m.FindByUsername(ctx, username)
	return u != nil, err
}

func (m *memUserRepo) Create(_ context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if m.createFn != nil {
		if err := m.createFn(user); err != nil {
			return err
		}
	}
	for _, u := range m.users {
		if u.Email == user.Email {
			return &repository.DuplicateError{Constraint: repository.ConstraintUsersEmail}
		}
		if u.Username == user.Username {
			return &repository.DuplicateError{Constraint: repository.ConstraintUsersUsername}
		}
	}
	c := *user
	m.users[user.ID] = &c
	return nil
}

func (m *memUserRepo) UpdateProfile(_ context.Context, user *model.User) (*model.User, error) {
	return nil, nil
}

func (m *memUserRepo) GetProfileByUsername(_ context.Context, _ string) (*model.Profile, error) {
	return nil, nil
}

func (m *memUserRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

// memAccountRepo は(provider, provider_account_id)の一意制約を再現するインメモリのAccountRepository。
type memAccountRepo struct {
	mu       sync.Mutex
	accounts []*model.LinkedAccount
	// findFn が設定されている場合はFindByProviderAccountの結果を差し替える
	findFn func(provider, providerAccountID string) (*model.LinkedAccount, error)
}

func (m *memAccountRepo) FindByProviderAccount(_ context.Context, provider, providerAccountID string) (*model.LinkedAccount, error) {
	if m.findFn != nil {
		return m.findFn(provider, providerAccountID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Provider == provider && a.ProviderAccountID == providerAccountID {
			return a, nil
		}
	}
	return nil, nil
}

func (m *memAccountRepo) Create(_ context.Context, account *model.LinkedAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Provider == account.Provider && a.ProviderAccountID == account.ProviderAccountID {
			return &repository.DuplicateError{Constraint: repository.ConstraintAccountProvider}
		}
	}
	m.accounts = append(m.accounts, account)
	return nil
}

func (m *memAccountRepo) ListByUserID(_ context.Context, userID string) ([]*model.LinkedAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*model.LinkedAccount
	for _, a := range m.accounts {
		if a.UserID == userID {
			result = append(result, a)
		}
	}
	return result, nil
}

func (m *memAccountRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.accounts)
}

// --- モックハッシャー ---

type mockHasher struct {
	hashFn   func(plain string) (string, error)
	verifyFn func(hash, plain string) (bool, error)
}

func (m *mockHasher) Hash(plain string) (string, error) {
	if m.hashFn != nil {
		return m.hashFn(plain)
	}
	return "hashed:" + plain, nil
}

func (m *mockHasher) Verify(hash, plain string) (bool, error) {
	if m.verifyFn != nil {
		return m.verifyFn(hash, plain)
	}
	return hash == "hashed:"+plain, nil
}
