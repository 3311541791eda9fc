package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/IlyasAtabaev731/bank-ledger/internal/domain/models"
	"github.com/IlyasAtabaev731/bank-ledger/internal/lib/jwt"
	"github.com/IlyasAtabaev731/bank-ledger/internal/services/ledger"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

type RegisterRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	Email    string `json:"email" validate:"required,email"`
}

type RegisterResponse struct {
	UserID int64 `json:"user_id"`
}

type AuthRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type AuthResponse struct {
	Token string `json:"token"`
}

type OpenAccountRequest struct {
	Type           models.AccountType `json:"type"`
	HolderName     string             `json:"holder_name"`
	Phone          string             `json:"phone" validate:"max=32"`
	Address        string             `json:"address" validate:"max=256"`
	OpeningBalance decimal.Decimal    `json:"opening_balance"`
}

type AmountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type TransferRequest struct {
	From   string          `json:"from" validate:"required"`
	To     string          `json:"to" validate:"required"`
	Amount decimal.Decimal `json:"amount"`
}

type HistoryResponse struct {
	AccountNumber string               `json:"account_number"`
	Transactions  []models.Transaction `json:"transactions"`
}

// decode reads a JSON body into dst and validates its shape.
func (s *APIServer) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	if err := s.validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return nil
}

func (s *APIServer) registerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterRequest
		if err := s.decode(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		id, err := s.identity.Register(r.Context(), req.Username, req.Password, req.Email)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, RegisterResponse{UserID: id})
	}
}

func (s *APIServer) authHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AuthRequest
		if err := s.decode(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		id, err := s.identity.Authenticate(r.Context(), req.Username, req.Password)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		token, err := jwt.NewToken(id, strings.TrimSpace(req.Username), string(s.jwtSecret), s.config.Auth.TokenTTL)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		s.log(r).Info("User logged in", slog.Int64("user_id", id))
		writeJSON(w, http.StatusOK, AuthResponse{Token: token})
	}
}

func (s *APIServer) listAccountsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, _ := sessionFrom(r.Context())

		accounts, err := s.ledger.Accounts(r.Context(), sess.UserID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if accounts == nil {
			accounts = []models.Account{}
		}

		writeJSON(w, http.StatusOK, accounts)
	}
}

func (s *APIServer) openAccountHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, _ := sessionFrom(r.Context())

		var req OpenAccountRequest
		if err := s.decode(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		acc, err := s.ledger.OpenAccount(r.Context(), ledger.OpenAccountRequest{
			OwnerID:        sess.UserID,
			Type:           req.Type,
			HolderName:     req.HolderName,
			Phone:          req.Phone,
			Address:        req.Address,
			OpeningBalance: req.OpeningBalance,
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, acc)
	}
}

// ownedAccount loads the account named in the route and hides accounts of
// other users behind a not-found error.
func (s *APIServer) ownedAccount(r *http.Request, number string) (models.Account, error) {
	sess, _ := sessionFrom(r.Context())

	acc, err := s.ledger.Account(r.Context(), number)
	if err != nil {
		return models.Account{}, err
	}
	if acc.OwnerID != sess.UserID {
		return models.Account{}, &ledger.AccountError{Op: "api", Account: number, Err: ledger.ErrAccountNotFound}
	}
	return acc, nil
}

func (s *APIServer) accountHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acc, err := s.ownedAccount(r, mux.Vars(r)["number"])
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, acc)
	}
}

func (s *APIServer) historyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		number := mux.Vars(r)["number"]
		if _, err := s.ownedAccount(r, number); err != nil {
			s.writeError(w, r, err)
			return
		}

		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				s.writeError(w, r, errBadRequest)
				return
			}
			limit = n
		}

		resp := HistoryResponse{AccountNumber: number, Transactions: []models.Transaction{}}
		for t, err := range s.ledger.History(r.Context(), number, limit) {
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			resp.Transactions = append(resp.Transactions, t)
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *APIServer) summaryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		number := mux.Vars(r)["number"]
		if _, err := s.ownedAccount(r, number); err != nil {
			s.writeError(w, r, err)
			return
		}

		summary, err := s.ledger.Summary(r.Context(), number)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, summary)
	}
}

func (s *APIServer) depositHandler() http.HandlerFunc {
	return s.postHandler(s.ledger.Deposit)
}

func (s *APIServer) withdrawHandler() http.HandlerFunc {
	return s.postHandler(s.ledger.Withdraw)
}

func (s *APIServer) postHandler(post func(ctx context.Context, number string, amount decimal.Decimal) (ledger.Receipt, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		number := mux.Vars(r)["number"]
		if _, err := s.ownedAccount(r, number); err != nil {
			s.writeError(w, r, err)
			return
		}

		var req AmountRequest
		if err := s.decode(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		receipt, err := post(r.Context(), number, req.Amount)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, receipt)
	}
}

func (s *APIServer) transferHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TransferRequest
		if err := s.decode(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		if _, err := s.ownedAccount(r, req.From); err != nil {
			s.writeError(w, r, err)
			return
		}

		receipt, err := s.ledger.Transfer(r.Context(), req.From, req.To, req.Amount)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, receipt)
	}
}
