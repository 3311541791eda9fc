// Package memory keeps users, accounts and transactions in process memory.
// A single mutex serialises every unit of work, which gives the same
// all-or-nothing and isolation guarantees the PostgreSQL store provides.
package memory

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/IlyasAtabaev731/bank-ledger/internal/domain/models"
	"github.com/IlyasAtabaev731/bank-ledger/internal/storage"
	"github.com/shopspring/decimal"
)

type Storage struct {
	mu sync.Mutex

	nextUserID int64
	nextTxID   int64

	users    map[string]models.User
	emails   map[string]struct{}
	accounts map[string]models.Account
	order    []string
	txs      []models.Transaction

	now func() time.Time
	// numbers generates account number candidates; replaceable in tests.
	numbers func() string
}

func New() *Storage {
	return &Storage{
		users:    make(map[string]models.User),
		emails:   make(map[string]struct{}),
		accounts: make(map[string]models.Account),
		now:      time.Now,
		numbers:  storage.NewAccountNumber,
	}
}

func (s *Storage) SaveUser(ctx context.Context, username, email string, passHash []byte) (int64, error) {
	const op = "storage.memory.SaveUser"

	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[username]; ok {
		return 0, fmt.Errorf("%s: %w", op, storage.ErrUserExists)
	}
	if _, ok := s.emails[email]; ok {
		return 0, fmt.Errorf("%s: %w", op, storage.ErrUserExists)
	}

	s.nextUserID++
	hash := make([]byte, len(passHash))
	copy(hash, passHash)
	s.users[username] = models.User{
		ID:           s.nextUserID,
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    s.now(),
	}
	s.emails[email] = struct{}{}

	return s.nextUserID, nil
}

func (s *Storage) User(ctx context.Context, username string) (models.User, error) {
	const op = "storage.memory.User"

	if err := ctx.Err(); err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[username]
	if !ok {
		return models.User{}, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}
	return user, nil
}

func (s *Storage) Account(ctx context.Context, number string) (models.Account, error) {
	const op = "storage.memory.Account"

	if err := ctx.Err(); err != nil {
		return models.Account{}, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[number]
	if !ok {
		return models.Account{}, fmt.Errorf("%s: %w", op, storage.ErrAccountNotFound)
	}
	return acc, nil
}

func (s *Storage) AccountsByOwner(ctx context.Context, ownerID int64) ([]models.Account, error) {
	const op = "storage.memory.AccountsByOwner"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Account
	for _, number := range s.order {
		if acc := s.accounts[number]; acc.OwnerID == ownerID {
			out = append(out, acc)
		}
	}
	return out, nil
}

// History yields the account's transactions newest first. A limit <= 0
// means no bound. Each range takes a fresh snapshot.
func (s *Storage) History(ctx context.Context, number string, limit int) iter.Seq2[models.Transaction, error] {
	return func(yield func(models.Transaction, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(models.Transaction{}, fmt.Errorf("storage.memory.History: %w", err))
			return
		}

		s.mu.Lock()
		var snapshot []models.Transaction
		for i := len(s.txs) - 1; i >= 0; i-- {
			if s.txs[i].AccountNumber != number {
				continue
			}
			snapshot = append(snapshot, s.txs[i])
			if limit > 0 && len(snapshot) == limit {
				break
			}
		}
		s.mu.Unlock()

		for _, t := range snapshot {
			if !yield(t, nil) {
				return
			}
		}
	}
}

// InTx runs fn as one unit of work. Staged writes are applied only when fn
// returns nil; on error or panic nothing becomes visible.
func (s *Storage) InTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	const op = "storage.memory.InTx"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		s:        s,
		accounts: make(map[string]models.Account),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	tx.commit()
	return nil
}

type memTx struct {
	s        *Storage
	accounts map[string]models.Account
	created  []string
	legs     []models.Transaction
}

func (t *memTx) lookup(number string) (models.Account, bool) {
	if acc, ok := t.accounts[number]; ok {
		return acc, true
	}
	acc, ok := t.s.accounts[number]
	return acc, ok
}

func (t *memTx) LockAccount(_ context.Context, number string) (models.Account, error) {
	acc, ok := t.lookup(number)
	if !ok {
		return models.Account{}, fmt.Errorf("storage.memory.LockAccount: %w", storage.ErrAccountNotFound)
	}
	return acc, nil
}

func (t *memTx) CreateAccount(_ context.Context, account models.Account) (models.Account, error) {
	const op = "storage.memory.CreateAccount"

	for range storage.MaxNumberAttempts {
		number := t.s.numbers()
		if _, taken := t.lookup(number); taken {
			continue
		}
		account.Number = number
		account.Balance = decimal.Zero
		if account.Status == "" {
			account.Status = models.StatusActive
		}
		account.CreatedAt = t.s.now()
		t.accounts[number] = account
		t.created = append(t.created, number)
		return account, nil
	}
	return models.Account{}, fmt.Errorf("%s: %w", op, storage.ErrAccountNumberSpace)
}

func (t *memTx) SetBalance(_ context.Context, number string, balance decimal.Decimal) error {
	acc, ok := t.lookup(number)
	if !ok {
		return fmt.Errorf("storage.memory.SetBalance: %w", storage.ErrAccountNotFound)
	}
	acc.Balance = balance
	t.accounts[number] = acc
	return nil
}

func (t *memTx) AppendTransactions(_ context.Context, legs ...models.Transaction) (string, error) {
	ref := storage.NewReference()
	now := t.s.now()
	for _, leg := range legs {
		leg.Reference = ref
		leg.Timestamp = now
		t.legs = append(t.legs, leg)
	}
	return ref, nil
}

func (t *memTx) commit() {
	for number, acc := range t.accounts {
		t.s.accounts[number] = acc
	}
	t.s.order = append(t.s.order, t.created...)
	for _, leg := range t.legs {
		t.s.nextTxID++
		leg.ID = t.s.nextTxID
		t.s.txs = append(t.s.txs, leg)
	}
}
