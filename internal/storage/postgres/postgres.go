package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/IlyasAtabaev731/bank-ledger/internal/domain/models"
	"github.com/IlyasAtabaev731/bank-ledger/internal/storage"
	"github.com/cenkalti/backoff/v4"
	"github.com/lib/pq"
)

type Storage struct {
	db     *sql.DB
	logger *slog.Logger

	retries uint64
	numbers func() string
}

type Pool struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func New(dbUrl string, pool Pool, logger *slog.Logger) (*Storage, error) {
	db, err := sql.Open("postgres", dbUrl)
	if err != nil {
		return nil, fmt.Errorf("database connection error: %w", err)
	}

	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	return &Storage{
		db:      db,
		logger:  logger,
		retries: 3,
		numbers: storage.NewAccountNumber,
	}, nil
}

func (s *Storage) Stop() error {
	return s.db.Close()
}

func (s *Storage) SaveUser(ctx context.Context, username, email string, passHash []byte) (int64, error) {
	const op = "storage.postgres.SaveUser"

	var id int64
	err := s.db.QueryRowContext(ctx,
		"INSERT INTO users (username, email, password_hash) VALUES ($1, $2, $3) RETURNING id",
		username, email, passHash,
	).Scan(&id)
	if err != nil {
		if isCode(err, "unique_violation") {
			return 0, fmt.Errorf("%s: %w", op, storage.ErrUserExists)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

func (s *Storage) User(ctx context.Context, username string) (models.User, error) {
	const op = "storage.postgres.User"

	var user models.User
	err := s.db.QueryRowContext(ctx,
		"SELECT id, username, email, password_hash, created_at FROM users WHERE username = $1",
		username,
	).Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

const accountColumns = `account_number, owner_id, type, balance, holder_name, phone, address, status, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (models.Account, error) {
	var acc models.Account
	err := row.Scan(&acc.Number, &acc.OwnerID, &acc.Type, &acc.Balance, &acc.HolderName,
		&acc.Phone, &acc.Address, &acc.Status, &acc.CreatedAt)
	return acc, err
}

func (s *Storage) Account(ctx context.Context, number string) (models.Account, error) {
	const op = "storage.postgres.Account"

	acc, err := scanAccount(s.db.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE account_number = $1", number))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Account{}, fmt.Errorf("%s: %w", op, storage.ErrAccountNotFound)
		}
		return models.Account{}, fmt.Errorf("%s: %w", op, err)
	}

	return acc, nil
}

func (s *Storage) AccountsByOwner(ctx context.Context, ownerID int64) ([]models.Account, error) {
	const op = "storage.postgres.AccountsByOwner"

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE owner_id = $1 ORDER BY created_at, account_number",
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer s.closeRows(rows, "accounts")

	var accounts []models.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		accounts = append(accounts, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return accounts, nil
}

// History yields the account's transactions newest first. A limit <= 0
// means no bound. The query runs when iteration starts, so ranging over
// the same sequence twice re-reads the table.
func (s *Storage) History(ctx context.Context, number string, limit int) iter.Seq2[models.Transaction, error] {
	const op = "storage.postgres.History"

	return func(yield func(models.Transaction, error) bool) {
		query := `SELECT id, account_number, type, amount, balance_after, description, timestamp, reference
			FROM transactions WHERE account_number = $1 ORDER BY timestamp DESC, id DESC`
		args := []any{number}
		if limit > 0 {
			query += " LIMIT $2"
			args = append(args, limit)
		}

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			yield(models.Transaction{}, fmt.Errorf("%s: %w", op, err))
			return
		}
		defer s.closeRows(rows, "transactions")

		for rows.Next() {
			var t models.Transaction
			if err := rows.Scan(&t.ID, &t.AccountNumber, &t.Type, &t.Amount, &t.BalanceAfter,
				&t.Description, &t.Timestamp, &t.Reference); err != nil {
				yield(models.Transaction{}, fmt.Errorf("%s: %w", op, err))
				return
			}
			if !yield(t, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(models.Transaction{}, fmt.Errorf("%s: %w", op, err))
		}
	}
}

func (s *Storage) closeRows(rows *sql.Rows, what string) {
	if err := rows.Close(); err != nil {
		s.logger.Error("Failed to close rows", slog.String("rows", what), slog.Any("error", err))
	}
}

// isCode reports whether err carries the named PostgreSQL error condition.
func isCode(err error, name string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code.Name() == name
}

func retryable(err error) bool {
	return isCode(err, "serialization_failure") || isCode(err, "deadlock_detected")
}

func (s *Storage) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	return backoff.WithContext(backoff.WithMaxRetries(b, s.retries), ctx)
}
