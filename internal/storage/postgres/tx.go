package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IlyasAtabaev731/bank-ledger/internal/domain/models"
	"github.com/IlyasAtabaev731/bank-ledger/internal/storage"
	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
)

// InTx runs fn inside one READ COMMITTED transaction. Rows read through
// LockAccount stay locked until commit. Serialization failures and
// deadlocks restart the whole unit of work with backoff; any other error
// rolls it back and is returned as is.
func (s *Storage) InTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := s.runTx(ctx, fn)
		if err == nil {
			return nil
		}
		if retryable(err) {
			s.logger.Warn("Retrying unit of work", slog.Int("attempt", attempt), slog.Any("error", err))
			return err
		}
		return backoff.Permanent(err)
	}, s.newBackOff(ctx))
}

func (s *Storage) runTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) (err error) {
	const op = "storage.postgres.InTx"

	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.logger.Error("Failed to roll back", slog.Any("error", rbErr))
			}
			return
		}
		if cErr := sqlTx.Commit(); cErr != nil {
			err = fmt.Errorf("%s: commit: %w", op, cErr)
		}
	}()

	return fn(ctx, &pgTx{tx: sqlTx, numbers: s.numbers})
}

type pgTx struct {
	tx      *sql.Tx
	numbers func() string
}

func (t *pgTx) LockAccount(ctx context.Context, number string) (models.Account, error) {
	const op = "storage.postgres.LockAccount"

	acc, err := scanAccount(t.tx.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE account_number = $1 FOR UPDATE", number))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Account{}, fmt.Errorf("%s: %w", op, storage.ErrAccountNotFound)
		}
		return models.Account{}, fmt.Errorf("%s: %w", op, err)
	}

	return acc, nil
}

func (t *pgTx) CreateAccount(ctx context.Context, account models.Account) (models.Account, error) {
	const op = "storage.postgres.CreateAccount"

	if account.Status == "" {
		account.Status = models.StatusActive
	}
	account.Balance = decimal.Zero

	for range storage.MaxNumberAttempts {
		account.Number = t.numbers()
		err := t.tx.QueryRowContext(ctx, `
			INSERT INTO accounts (account_number, owner_id, type, balance, holder_name, phone, address, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (account_number) DO NOTHING
			RETURNING created_at`,
			account.Number, account.OwnerID, account.Type, account.Balance, account.HolderName,
			account.Phone, account.Address, account.Status,
		).Scan(&account.CreatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return models.Account{}, fmt.Errorf("%s: %w", op, err)
		}
		return account, nil
	}

	return models.Account{}, fmt.Errorf("%s: %w", op, storage.ErrAccountNumberSpace)
}

func (t *pgTx) SetBalance(ctx context.Context, number string, balance decimal.Decimal) error {
	const op = "storage.postgres.SetBalance"

	res, err := t.tx.ExecContext(ctx,
		"UPDATE accounts SET balance = $1 WHERE account_number = $2", balance, number)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrAccountNotFound)
	}

	return nil
}

func (t *pgTx) AppendTransactions(ctx context.Context, legs ...models.Transaction) (string, error) {
	const op = "storage.postgres.AppendTransactions"

	// Read after the row locks are held so timestamps follow commit order
	// per account. now() would be the start of the transaction instead.
	var ts time.Time
	if err := t.tx.QueryRowContext(ctx, "SELECT clock_timestamp()").Scan(&ts); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	ref := storage.NewReference()
	for _, leg := range legs {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO transactions (account_number, type, amount, balance_after, description, reference, timestamp)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			leg.AccountNumber, leg.Type, leg.Amount, leg.BalanceAfter, leg.Description, ref, ts,
		)
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
	}

	return ref, nil
}
