// Package seed fills a fresh installation with demo users, accounts and a
// little transaction history. Every balance change goes through the ledger
// engine, so seeded data satisfies the same invariants as real traffic.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/IlyasAtabaev731/bank-ledger/internal/domain/models"
	"github.com/IlyasAtabaev731/bank-ledger/internal/services/auth"
	"github.com/IlyasAtabaev731/bank-ledger/internal/services/ledger"
	"github.com/shopspring/decimal"
)

type Identity interface {
	Register(ctx context.Context, username, password, email string) (int64, error)
}

type Ledger interface {
	OpenAccount(ctx context.Context, req ledger.OpenAccountRequest) (models.Account, error)
	Deposit(ctx context.Context, number string, amount decimal.Decimal) (ledger.Receipt, error)
	Withdraw(ctx context.Context, number string, amount decimal.Decimal) (ledger.Receipt, error)
	Transfer(ctx context.Context, from, to string, amount decimal.Decimal) (ledger.TransferReceipt, error)
}

type User struct {
	Username string
	Password string
	Email    string
	Accounts []Account
}

type Account struct {
	Type       models.AccountType
	HolderName string
	Phone      string
	Address    string
	Opening    decimal.Decimal
}

// DemoUsers is the default data set.
var DemoUsers = []User{
	{
		Username: "john_doe", Password: "password123", Email: "john.doe@email.com",
		Accounts: []Account{
			{models.AccountSavings, "John Doe", "+91 9876543210", "123 Main St, Mumbai", decimal.NewFromInt(25000)},
			{models.AccountCurrent, "John Doe", "+91 9876543210", "123 Main St, Mumbai", decimal.NewFromInt(50000)},
		},
	},
	{
		Username: "jane_smith", Password: "mypassword", Email: "jane.smith@email.com",
		Accounts: []Account{
			{models.AccountSavings, "Jane Smith", "+91 8765432109", "456 Park Ave, Delhi", decimal.NewFromInt(35000)},
		},
	},
	{
		Username: "alice_johnson", Password: "securepass", Email: "alice.j@email.com",
		Accounts: []Account{
			{models.AccountSavings, "Alice Johnson", "+91 7654321098", "789 Oak Rd, Bangalore", decimal.NewFromInt(18000)},
			{models.AccountCurrent, "Alice Johnson", "+91 7654321098", "789 Oak Rd, Bangalore", decimal.NewFromInt(75000)},
		},
	},
	{
		Username: "bob_wilson", Password: "bobpass456", Email: "bob.wilson@email.com",
		Accounts: []Account{
			{models.AccountSavings, "Bob Wilson", "+91 6543210987", "321 Pine St, Chennai", decimal.NewFromInt(42000)},
		},
	},
}

type Options struct {
	Users []User
	// Movements is the number of random deposits and withdrawals per account.
	Movements int
	// Transfers is the number of random transfers between seeded accounts.
	Transfers int
	Seed      uint64
}

type Report struct {
	Users     int
	Skipped   []string
	Accounts  []string
	Movements int
	Transfers int
}

type Seeder struct {
	log      *slog.Logger
	identity Identity
	ledger   Ledger
}

func New(log *slog.Logger, identity Identity, ledger Ledger) *Seeder {
	return &Seeder{log: log, identity: identity, ledger: ledger}
}

// Run creates opts.Users. Users whose username or email is already taken
// are skipped together with their accounts, so running twice is harmless.
func (s *Seeder) Run(ctx context.Context, opts Options) (Report, error) {
	const op = "seed.Run"

	rnd := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	var report Report
	balances := make(map[string]decimal.Decimal)

	for _, u := range opts.Users {
		id, err := s.identity.Register(ctx, u.Username, u.Password, u.Email)
		if errors.Is(err, auth.ErrDuplicateIdentity) {
			s.log.Info("User exists, skipping", slog.String("username", u.Username))
			report.Skipped = append(report.Skipped, u.Username)
			continue
		}
		if err != nil {
			return report, fmt.Errorf("%s: register %s: %w", op, u.Username, err)
		}
		report.Users++

		for _, a := range u.Accounts {
			acc, err := s.ledger.OpenAccount(ctx, ledger.OpenAccountRequest{
				OwnerID:        id,
				Type:           a.Type,
				HolderName:     a.HolderName,
				Phone:          a.Phone,
				Address:        a.Address,
				OpeningBalance: a.Opening,
			})
			if err != nil {
				return report, fmt.Errorf("%s: open account for %s: %w", op, u.Username, err)
			}
			report.Accounts = append(report.Accounts, acc.Number)
			balances[acc.Number] = acc.Balance
			s.log.Info("Account created", slog.String("username", u.Username), slog.String("account", acc.Number))
		}
	}

	for _, number := range report.Accounts {
		for range opts.Movements {
			if rnd.IntN(2) == 0 {
				r, err := s.ledger.Deposit(ctx, number, decimal.NewFromInt(int64(1000+rnd.IntN(9001))))
				if err != nil {
					return report, fmt.Errorf("%s: deposit: %w", op, err)
				}
				balances[number] = r.BalanceAfter
				report.Movements++
				continue
			}

			limit := capped(balances[number], 5000)
			if limit <= 100 {
				continue
			}
			r, err := s.ledger.Withdraw(ctx, number, decimal.NewFromInt(int64(100+rnd.IntN(int(limit)-99))))
			if err != nil {
				return report, fmt.Errorf("%s: withdraw: %w", op, err)
			}
			balances[number] = r.BalanceAfter
			report.Movements++
		}
	}

	if len(report.Accounts) < 2 {
		return report, nil
	}
	for range opts.Transfers {
		from := report.Accounts[rnd.IntN(len(report.Accounts))]
		to := report.Accounts[rnd.IntN(len(report.Accounts))]
		if from == to {
			continue
		}
		limit := capped(balances[from], 5000)
		if limit <= 500 {
			continue
		}
		r, err := s.ledger.Transfer(ctx, from, to, decimal.NewFromInt(int64(500+rnd.IntN(int(limit)-499))))
		if err != nil {
			return report, fmt.Errorf("%s: transfer: %w", op, err)
		}
		balances[from] = r.SourceBalance
		balances[to] = r.DestinationBalance
		report.Transfers++
	}

	return report, nil
}

// capped returns a tenth of balance in whole units, at most ceiling.
func capped(balance decimal.Decimal, ceiling int64) int64 {
	return min(balance.Div(decimal.NewFromInt(10)).IntPart(), ceiling)
}
