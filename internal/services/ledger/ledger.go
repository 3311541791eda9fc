// Package ledger moves money. It is the only code that changes account
// balances, and every change goes through one unit of work that updates the
// balance and appends the matching transaction records together.
package ledger

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"time"

	"github.com/IlyasAtabaev731/bank-ledger/internal/domain/models"
	"github.com/IlyasAtabaev731/bank-ledger/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// DefaultHistoryLimit applies when History is called with limit <= 0.
const DefaultHistoryLimit = 50

type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error
	Account(ctx context.Context, number string) (models.Account, error)
	AccountsByOwner(ctx context.Context, ownerID int64) ([]models.Account, error)
	History(ctx context.Context, number string, limit int) iter.Seq2[models.Transaction, error]
}

type Engine struct {
	log     *slog.Logger
	store   Store
	metrics *metrics
}

// New builds an engine. Its metrics are registered on reg, and engines built
// on the same reg share them; a nil reg disables registration.
func New(log *slog.Logger, store Store, reg prometheus.Registerer) *Engine {
	return &Engine{
		log:     log,
		store:   store,
		metrics: newMetrics(reg),
	}
}

type OpenAccountRequest struct {
	OwnerID        int64
	Type           models.AccountType
	HolderName     string
	Phone          string
	Address        string
	OpeningBalance decimal.Decimal
}

// Receipt describes a committed deposit or withdrawal.
type Receipt struct {
	Reference     string                 `json:"reference"`
	AccountNumber string                 `json:"account_number"`
	Type          models.TransactionType `json:"type"`
	Amount        decimal.Decimal        `json:"amount"`
	BalanceAfter  decimal.Decimal        `json:"balance_after"`
}

// TransferReceipt describes a committed transfer. Both legs share Reference.
type TransferReceipt struct {
	Reference          string          `json:"reference"`
	Source             string          `json:"source"`
	Destination        string          `json:"destination"`
	Amount             decimal.Decimal `json:"amount"`
	SourceBalance      decimal.Decimal `json:"source_balance"`
	DestinationBalance decimal.Decimal `json:"destination_balance"`
}

func validAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() && amount.Equal(amount.Truncate(2))
}

// OpenAccount creates an account. A positive opening balance is booked as
// an "Initial deposit" in the same unit of work, so the new account's
// balance is always backed by its transaction log.
func (e *Engine) OpenAccount(ctx context.Context, req OpenAccountRequest) (acc models.Account, err error) {
	const op = "ledger.OpenAccount"

	start := time.Now()
	defer func() { e.metrics.observe("open_account", start, err) }()

	if !req.Type.Valid() || req.HolderName == "" {
		return models.Account{}, ErrInvalidAccount
	}
	if req.OpeningBalance.IsNegative() || !req.OpeningBalance.Equal(req.OpeningBalance.Truncate(2)) {
		return models.Account{}, ErrInvalidAmount
	}

	err = e.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		created, err := tx.CreateAccount(ctx, models.Account{
			OwnerID:    req.OwnerID,
			Type:       req.Type,
			HolderName: req.HolderName,
			Phone:      req.Phone,
			Address:    req.Address,
			Status:     models.StatusActive,
		})
		if err != nil {
			return err
		}

		if req.OpeningBalance.IsPositive() {
			if err := tx.SetBalance(ctx, created.Number, req.OpeningBalance); err != nil {
				return err
			}
			if _, err := tx.AppendTransactions(ctx, models.Transaction{
				AccountNumber: created.Number,
				Type:          models.TxDeposit,
				Amount:        req.OpeningBalance,
				BalanceAfter:  req.OpeningBalance,
				Description:   "Initial deposit",
			}); err != nil {
				return err
			}
			created.Balance = req.OpeningBalance
		}

		acc = created
		return nil
	})
	if err != nil {
		err = classify(op, err)
		e.log.Error("Failed to open account", slog.String("op", op), slog.Int64("owner_id", req.OwnerID), slog.Any("error", err))
		return models.Account{}, err
	}

	e.log.Info("Account opened", slog.String("op", op), slog.String("account", acc.Number), slog.Int64("owner_id", acc.OwnerID))
	return acc, nil
}

func (e *Engine) Deposit(ctx context.Context, number string, amount decimal.Decimal) (Receipt, error) {
	return e.post(ctx, "ledger.Deposit", "deposit", number, models.TxDeposit, amount, "Deposit")
}

func (e *Engine) Withdraw(ctx context.Context, number string, amount decimal.Decimal) (Receipt, error) {
	return e.post(ctx, "ledger.Withdraw", "withdraw", number, models.TxWithdrawal, amount, "Withdrawal")
}

// post books a single-leg movement. The insufficient-funds check and the
// balance write use the same locked read.
func (e *Engine) post(ctx context.Context, op, metric, number string, typ models.TransactionType, amount decimal.Decimal, description string) (r Receipt, err error) {
	start := time.Now()
	defer func() { e.metrics.observe(metric, start, err) }()

	if !validAmount(amount) {
		return Receipt{}, &AccountError{Op: op, Account: number, Err: ErrInvalidAmount}
	}

	err = e.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		acc, found, err := lock(ctx, tx, number)
		if err != nil {
			return err
		}
		if !found {
			return accountErr(op, number, "", ErrAccountNotFound)
		}
		if !acc.Active() {
			return accountErr(op, number, "", ErrAccountInactive)
		}

		var balance decimal.Decimal
		if typ.Credit() {
			balance = acc.Balance.Add(amount)
		} else {
			if acc.Balance.LessThan(amount) {
				return accountErr(op, number, "", ErrInsufficientFunds)
			}
			balance = acc.Balance.Sub(amount)
		}

		if err := tx.SetBalance(ctx, number, balance); err != nil {
			return err
		}
		ref, err := tx.AppendTransactions(ctx, models.Transaction{
			AccountNumber: number,
			Type:          typ,
			Amount:        amount,
			BalanceAfter:  balance,
			Description:   description,
		})
		if err != nil {
			return err
		}

		r = Receipt{
			Reference:     ref,
			AccountNumber: number,
			Type:          typ,
			Amount:        amount,
			BalanceAfter:  balance,
		}
		return nil
	})
	if err != nil {
		err = classify(op, err)
		e.logFailure(op, err, slog.String("account", number))
		return Receipt{}, err
	}

	e.log.Info("Posted", slog.String("op", op), slog.String("account", number), slog.String("reference", r.Reference))
	return r, nil
}

// Transfer moves amount from one account to another as a single unit of
// work producing exactly two records with one shared reference.
//
// Both rows are locked in lexicographic order of account number so that
// opposite transfers cannot deadlock. Checks then run in a fixed order:
// source exists, source active, source balance, destination exists,
// destination active.
func (e *Engine) Transfer(ctx context.Context, from, to string, amount decimal.Decimal) (r TransferReceipt, err error) {
	const op = "ledger.Transfer"

	start := time.Now()
	defer func() { e.metrics.observe("transfer", start, err) }()

	if !validAmount(amount) {
		return TransferReceipt{}, &AccountError{Op: op, Account: from, Side: SideSource, Err: ErrInvalidAmount}
	}
	if from == to {
		return TransferReceipt{}, &AccountError{Op: op, Account: from, Side: SideSource, Err: ErrSameAccount}
	}

	err = e.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		first, second := from, to
		if second < first {
			first, second = second, first
		}
		locked := make(map[string]models.Account, 2)
		for _, number := range []string{first, second} {
			acc, found, err := lock(ctx, tx, number)
			if err != nil {
				return err
			}
			if found {
				locked[number] = acc
			}
		}

		src, ok := locked[from]
		if !ok {
			return accountErr(op, from, SideSource, ErrAccountNotFound)
		}
		if !src.Active() {
			return accountErr(op, from, SideSource, ErrAccountInactive)
		}
		if src.Balance.LessThan(amount) {
			return accountErr(op, from, SideSource, ErrInsufficientFunds)
		}
		dst, ok := locked[to]
		if !ok {
			return accountErr(op, to, SideDestination, ErrAccountNotFound)
		}
		if !dst.Active() {
			return accountErr(op, to, SideDestination, ErrAccountInactive)
		}

		srcBalance := src.Balance.Sub(amount)
		dstBalance := dst.Balance.Add(amount)

		if err := tx.SetBalance(ctx, from, srcBalance); err != nil {
			return err
		}
		if err := tx.SetBalance(ctx, to, dstBalance); err != nil {
			return err
		}
		ref, err := tx.AppendTransactions(ctx,
			models.Transaction{
				AccountNumber: from,
				Type:          models.TxTransferOut,
				Amount:        amount,
				BalanceAfter:  srcBalance,
				Description:   "Transfer to " + to,
			},
			models.Transaction{
				AccountNumber: to,
				Type:          models.TxTransferIn,
				Amount:        amount,
				BalanceAfter:  dstBalance,
				Description:   "Transfer from " + from,
			},
		)
		if err != nil {
			return err
		}

		r = TransferReceipt{
			Reference:          ref,
			Source:             from,
			Destination:        to,
			Amount:             amount,
			SourceBalance:      srcBalance,
			DestinationBalance: dstBalance,
		}
		return nil
	})
	if err != nil {
		err = classify(op, err)
		e.logFailure(op, err, slog.String("from", from), slog.String("to", to))
		return TransferReceipt{}, err
	}

	e.log.Info("Transferred", slog.String("op", op), slog.String("from", from), slog.String("to", to), slog.String("reference", r.Reference))
	return r, nil
}

func lock(ctx context.Context, tx storage.Tx, number string) (models.Account, bool, error) {
	acc, err := tx.LockAccount(ctx, number)
	if errors.Is(err, storage.ErrAccountNotFound) {
		return models.Account{}, false, nil
	}
	if err != nil {
		return models.Account{}, false, err
	}
	return acc, true, nil
}

// logFailure keeps business rejections at warn level; only persistence
// failures are errors.
func (e *Engine) logFailure(op string, err error, attrs ...any) {
	args := append([]any{slog.String("op", op), slog.String("kind", Kind(err)), slog.Any("error", err)}, attrs...)
	if errors.Is(err, ErrPersistence) {
		e.log.Error("Ledger operation failed", args...)
		return
	}
	e.log.Warn("Ledger operation rejected", args...)
}

func (e *Engine) Account(ctx context.Context, number string) (models.Account, error) {
	const op = "ledger.Account"

	acc, err := e.store.Account(ctx, number)
	if errors.Is(err, storage.ErrAccountNotFound) {
		return models.Account{}, accountErr(op, number, "", ErrAccountNotFound)
	}
	if err != nil {
		return models.Account{}, classify(op, err)
	}
	return acc, nil
}

// Accounts lists the owner's accounts in creation order.
func (e *Engine) Accounts(ctx context.Context, ownerID int64) ([]models.Account, error) {
	accounts, err := e.store.AccountsByOwner(ctx, ownerID)
	if err != nil {
		return nil, classify("ledger.Accounts", err)
	}
	return accounts, nil
}

// History yields up to limit transactions of the account, newest first.
// Nothing is read until the sequence is ranged over, and every range starts
// from scratch.
func (e *Engine) History(ctx context.Context, number string, limit int) iter.Seq2[models.Transaction, error] {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return func(yield func(models.Transaction, error) bool) {
		for t, err := range e.store.History(ctx, number, limit) {
			if err != nil {
				yield(models.Transaction{}, classify("ledger.History", err))
				return
			}
			if !yield(t, nil) {
				return
			}
		}
	}
}
