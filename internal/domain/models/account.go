package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type AccountType string

const (
	AccountSavings AccountType = "savings"
	AccountCurrent AccountType = "current"
)

func (t AccountType) Valid() bool {
	return t == AccountSavings || t == AccountCurrent
}

type AccountStatus string

const (
	StatusActive AccountStatus = "active"
	StatusFrozen AccountStatus = "frozen"
	StatusClosed AccountStatus = "closed"
)

// Account balance is owned by the ledger engine; nothing else writes it.
type Account struct {
	Number     string          `json:"account_number"`
	OwnerID    int64           `json:"owner_id"`
	Type       AccountType     `json:"type"`
	Balance    decimal.Decimal `json:"balance"`
	HolderName string          `json:"holder_name"`
	Phone      string          `json:"phone,omitempty"`
	Address    string          `json:"address,omitempty"`
	Status     AccountStatus   `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
}

func (a Account) Active() bool {
	return a.Status == StatusActive
}
