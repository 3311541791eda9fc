package storage

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/IlyasAtabaev731/bank-ledger/internal/domain/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrAccountNotFound    = errors.New("account not found")
	ErrAccountNumberSpace = errors.New("could not allocate a free account number")
)

// MaxNumberAttempts bounds account-number collision retries.
const MaxNumberAttempts = 16

// Tx is a unit of work. Everything done through it commits or rolls back
// together, and it is only valid inside the InTx callback that produced it.
type Tx interface {
	// LockAccount reads an account and holds it until the unit of work ends.
	LockAccount(ctx context.Context, number string) (models.Account, error)
	// CreateAccount allocates a fresh account number and inserts the
	// account with a zero balance.
	CreateAccount(ctx context.Context, account models.Account) (models.Account, error)
	// SetBalance overwrites a balance without any validation.
	SetBalance(ctx context.Context, number string, balance decimal.Decimal) error
	// AppendTransactions stamps every leg with one new reference and
	// records them. It returns the reference.
	AppendTransactions(ctx context.Context, legs ...models.Transaction) (string, error)
}

// NewAccountNumber returns a random candidate of the form ACC#########.
// Callers check it for collisions.
func NewAccountNumber() string {
	return fmt.Sprintf("ACC%09d", 100000000+rand.IntN(900000000))
}

// NewReference returns a transaction reference of the form TXN + 16 hex digits.
func NewReference() string {
	id := uuid.New()
	return "TXN" + strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:16])
}
