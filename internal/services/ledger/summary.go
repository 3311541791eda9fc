package ledger

import (
	"context"

	"github.com/IlyasAtabaev731/bank-ledger/internal/domain/models"
	"github.com/shopspring/decimal"
)

type TypeTotal struct {
	Count int             `json:"count"`
	Total decimal.Decimal `json:"total"`
}

// Summary aggregates an account's whole transaction log.
type Summary struct {
	AccountNumber string                               `json:"account_number"`
	Balance       decimal.Decimal                      `json:"balance"`
	Transactions  int                                  `json:"transactions"`
	ByType        map[models.TransactionType]TypeTotal `json:"by_type"`
	MoneyIn       decimal.Decimal                      `json:"money_in"`
	MoneyOut      decimal.Decimal                      `json:"money_out"`
	// Reconciled is true when MoneyIn - MoneyOut equals Balance.
	Reconciled bool `json:"reconciled"`
}

// Summary reads the account and then its log; under concurrent writes the
// two reads may straddle a commit, in which case Reconciled can be false.
func (e *Engine) Summary(ctx context.Context, number string) (Summary, error) {
	const op = "ledger.Summary"

	acc, err := e.Account(ctx, number)
	if err != nil {
		return Summary{}, err
	}

	s := Summary{
		AccountNumber: acc.Number,
		Balance:       acc.Balance,
		ByType:        make(map[models.TransactionType]TypeTotal),
		MoneyIn:       decimal.Zero,
		MoneyOut:      decimal.Zero,
	}
	for t, err := range e.store.History(ctx, number, 0) {
		if err != nil {
			return Summary{}, classify(op, err)
		}
		s.Transactions++
		tt := s.ByType[t.Type]
		tt.Count++
		tt.Total = tt.Total.Add(t.Amount)
		s.ByType[t.Type] = tt
		if t.Type.Credit() {
			s.MoneyIn = s.MoneyIn.Add(t.Amount)
		} else {
			s.MoneyOut = s.MoneyOut.Add(t.Amount)
		}
	}
	s.Reconciled = s.MoneyIn.Sub(s.MoneyOut).Equal(s.Balance)

	return s, nil
}
