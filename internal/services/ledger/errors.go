package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount     = errors.New("amount must be positive with at most two decimal places")
	ErrInvalidAccount    = errors.New("invalid account details")
	ErrAccountNotFound   = errors.New("account not found")
	ErrAccountInactive   = errors.New("account is not active")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrSameAccount       = errors.New("source and destination are the same account")
	ErrPersistence       = errors.New("persistence failure")
)

// Side tells which leg of a transfer an AccountError refers to.
type Side string

const (
	SideSource      Side = "source"
	SideDestination Side = "destination"
)

// AccountError ties an error kind to the account that caused it.
type AccountError struct {
	Op      string
	Account string
	Side    Side
	Err     error
}

func (e *AccountError) Error() string {
	if e.Side != "" {
		return fmt.Sprintf("%s: %s account %s: %v", e.Op, e.Side, e.Account, e.Err)
	}
	return fmt.Sprintf("%s: account %s: %v", e.Op, e.Account, e.Err)
}

func (e *AccountError) Unwrap() error { return e.Err }

func accountErr(op, number string, side Side, kind error) error {
	return &AccountError{Op: op, Account: number, Side: side, Err: kind}
}

var kinds = []struct {
	err  error
	name string
}{
	{ErrInvalidAmount, "invalid_amount"},
	{ErrInvalidAccount, "invalid_account"},
	{ErrAccountNotFound, "account_not_found"},
	{ErrAccountInactive, "account_inactive"},
	{ErrInsufficientFunds, "insufficient_funds"},
	{ErrSameAccount, "same_account"},
	{ErrPersistence, "persistence_failure"},
}

// Kind returns a stable label for the error kind, "ok" for nil.
func Kind(err error) string {
	if err == nil {
		return "ok"
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "unknown"
}

// classify leaves ledger errors untouched and marks everything else as a
// persistence failure.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return err
		}
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}
