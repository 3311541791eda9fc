package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/IlyasAtabaev731/bank-ledger/internal/services/auth"
	"github.com/IlyasAtabaev731/bank-ledger/internal/services/ledger"
)

var (
	errUnauthorized    = errors.New("unauthorized")
	errTooManyRequests = errors.New("too many requests")
	errBadRequest      = errors.New("bad request")
)

type ErrorCode struct {
	Code    string
	Status  int
	Message string
}

var (
	codeBadRequest         = ErrorCode{"INVALID_INPUT", http.StatusBadRequest, "invalid request"}
	codeUnauthorized       = ErrorCode{"UNAUTHORIZED", http.StatusUnauthorized, "authentication required"}
	codeTooManyRequests    = ErrorCode{"RATE_LIMITED", http.StatusTooManyRequests, "too many attempts, slow down"}
	codeInvalidCredentials = ErrorCode{"INVALID_CREDENTIALS", http.StatusUnauthorized, "wrong username or password"}
	codeDuplicateIdentity  = ErrorCode{"DUPLICATE_IDENTITY", http.StatusConflict, "username or email already registered"}
	codeInvalidAmount      = ErrorCode{"INVALID_AMOUNT", http.StatusBadRequest, "amount must be positive with at most two decimal places"}
	codeInvalidAccount     = ErrorCode{"INVALID_ACCOUNT", http.StatusBadRequest, "account type must be savings or current and holder name is required"}
	codeSameAccount        = ErrorCode{"SAME_ACCOUNT", http.StatusBadRequest, "cannot transfer to the same account"}
	codeAccountNotFound    = ErrorCode{"ACCOUNT_NOT_FOUND", http.StatusNotFound, "account not found"}
	codeAccountInactive    = ErrorCode{"ACCOUNT_INACTIVE", http.StatusConflict, "account is not active"}
	codeInsufficientFunds  = ErrorCode{"INSUFFICIENT_FUNDS", http.StatusUnprocessableEntity, "insufficient balance"}
	codeInternal           = ErrorCode{"INTERNAL", http.StatusInternalServerError, "internal server error"}
)

var errorCodes = []struct {
	err  error
	code ErrorCode
}{
	{errBadRequest, codeBadRequest},
	{errUnauthorized, codeUnauthorized},
	{errTooManyRequests, codeTooManyRequests},
	{auth.ErrInvalidInput, codeBadRequest},
	{auth.ErrInvalidCredentials, codeInvalidCredentials},
	{auth.ErrDuplicateIdentity, codeDuplicateIdentity},
	{ledger.ErrInvalidAmount, codeInvalidAmount},
	{ledger.ErrInvalidAccount, codeInvalidAccount},
	{ledger.ErrSameAccount, codeSameAccount},
	{ledger.ErrAccountNotFound, codeAccountNotFound},
	{ledger.ErrAccountInactive, codeAccountInactive},
	{ledger.ErrInsufficientFunds, codeInsufficientFunds},
}

type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Account   string `json:"account,omitempty"`
	Side      string `json:"side,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func codeFor(err error) ErrorCode {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return codeInternal
}

func (s *APIServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := codeFor(err)

	resp := ErrorResponse{
		Code:      code.Code,
		Message:   code.Message,
		RequestID: w.Header().Get(HeaderRequestID),
	}
	var accErr *ledger.AccountError
	if errors.As(err, &accErr) {
		resp.Account = accErr.Account
		resp.Side = string(accErr.Side)
	}

	if code.Status >= http.StatusInternalServerError {
		s.log(r).Error("Request failed", slog.Any("error", err))
	}

	writeJSON(w, code.Status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
