package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/IlyasAtabaev731/bank-ledger/internal/config"
	"github.com/IlyasAtabaev731/bank-ledger/internal/domain/models"
	"github.com/IlyasAtabaev731/bank-ledger/internal/lib/jwt"
	"github.com/IlyasAtabaev731/bank-ledger/internal/services/auth"
	"github.com/IlyasAtabaev731/bank-ledger/internal/services/ledger"
	"github.com/IlyasAtabaev731/bank-ledger/internal/storage/memory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T, burst int) http.Handler {
	t.Helper()

	cfg := &config.Config{ApiHost: "localhost", ApiPort: 8080}
	cfg.Auth = config.Auth{
		JWTSecret:  testSecret,
		TokenTTL:   time.Hour,
		LoginRPS:   1,
		LoginBurst: burst,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := memory.New()
	identity := auth.New(logger, store, store, bcrypt.MinCost)
	engine := ledger.New(logger, store, nil)

	return New(cfg, logger, identity, engine, prometheus.NewRegistry()).Router()
}

func do(t *testing.T, h http.Handler, method, url, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rr.Body).Decode(&out); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
	return out
}

func login(t *testing.T, h http.Handler, username string) string {
	t.Helper()

	rr := do(t, h, "POST", "/api/register", "", map[string]string{
		"username": username,
		"password": "password123",
		"email":    username + "@example.com",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("register %s: expected 201, got %d: %s", username, rr.Code, rr.Body.String())
	}

	rr = do(t, h, "POST", "/api/auth", "", map[string]string{
		"username": username,
		"password": "password123",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("auth %s: expected 200, got %d: %s", username, rr.Code, rr.Body.String())
	}
	return decodeBody[AuthResponse](t, rr).Token
}

func openAccount(t *testing.T, h http.Handler, token string, opening string) models.Account {
	t.Helper()

	rr := do(t, h, "POST", "/api/accounts", token, map[string]string{
		"type":            "savings",
		"holder_name":     "John Doe",
		"opening_balance": opening,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("open account: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	return decodeBody[models.Account](t, rr)
}

func TestRegistrationAndLogin(t *testing.T) {
	h := newTestServer(t, 100)

	token := login(t, h, "john_doe")

	claims, err := jwt.ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("failed to parse token: %v", err)
	}
	if claims.Username != "john_doe" || claims.UserID == 0 {
		t.Errorf("unexpected claims: %+v", claims)
	}

	rr := do(t, h, "POST", "/api/register", "", map[string]string{
		"username": "john_doe",
		"password": "another-password",
		"email":    "other@example.com",
	})
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate username, got %d", rr.Code)
	}

	rr = do(t, h, "POST", "/api/auth", "", map[string]string{
		"username": "john_doe",
		"password": "password123",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("original credentials must still work, got %d", rr.Code)
	}

	for _, creds := range []map[string]string{
		{"username": "john_doe", "password": "wrong-password"},
		{"username": "nobody", "password": "password123"},
	} {
		rr = do(t, h, "POST", "/api/auth", "", creds)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 for %v, got %d", creds, rr.Code)
		}
		if resp := decodeBody[ErrorResponse](t, rr); resp.Code != codeInvalidCredentials.Code {
			t.Errorf("expected %s, got %s", codeInvalidCredentials.Code, resp.Code)
		}
	}
}

func TestRegisterValidation(t *testing.T) {
	h := newTestServer(t, 100)

	rr := do(t, h, "POST", "/api/register", "", map[string]string{
		"username": "jane",
		"password": "secret1",
		"email":    "not-an-email",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	req := httptest.NewRequest("POST", "/api/register", strings.NewReader("{"))
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed JSON, got %d", rr.Code)
	}
}

func TestAuthenticationRequired(t *testing.T) {
	h := newTestServer(t, 100)

	for _, header := range []string{"", "Token abc", "Bearer not-a-jwt"} {
		req := httptest.NewRequest("GET", "/api/accounts", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("header %q: expected 401, got %d", header, rr.Code)
		}
	}
}

func TestDepositWithdrawFlow(t *testing.T) {
	h := newTestServer(t, 100)
	token := login(t, h, "john_doe")
	acc := openAccount(t, h, token, "1000")

	if !acc.Balance.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("expected opening balance 1000, got %s", acc.Balance)
	}

	rr := do(t, h, "POST", "/api/accounts/"+acc.Number+"/deposit", token, map[string]string{"amount": "500"})
	if rr.Code != http.StatusOK {
		t.Fatalf("deposit: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	receipt := decodeBody[ledger.Receipt](t, rr)
	if !receipt.BalanceAfter.Equal(decimal.NewFromInt(1500)) || receipt.Reference == "" {
		t.Errorf("unexpected deposit receipt: %+v", receipt)
	}

	rr = do(t, h, "POST", "/api/accounts/"+acc.Number+"/withdraw", token, map[string]string{"amount": "2000"})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("overdraft: expected 422, got %d", rr.Code)
	}
	errResp := decodeBody[ErrorResponse](t, rr)
	if errResp.Code != codeInsufficientFunds.Code || errResp.Account != acc.Number {
		t.Errorf("unexpected error response: %+v", errResp)
	}

	rr = do(t, h, "POST", "/api/accounts/"+acc.Number+"/withdraw", token, map[string]string{"amount": "-5"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("negative amount: expected 400, got %d", rr.Code)
	}

	rr = do(t, h, "POST", "/api/accounts/"+acc.Number+"/withdraw", token, map[string]string{"amount": "500"})
	if rr.Code != http.StatusOK {
		t.Fatalf("withdraw: expected 200, got %d", rr.Code)
	}

	rr = do(t, h, "GET", "/api/accounts/"+acc.Number+"/transactions", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("history: expected 200, got %d", rr.Code)
	}
	history := decodeBody[HistoryResponse](t, rr)
	if len(history.Transactions) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(history.Transactions))
	}
	if history.Transactions[0].Type != models.TxWithdrawal || history.Transactions[2].Type != models.TxDeposit {
		t.Errorf("history not newest first: %+v", history.Transactions)
	}

	rr = do(t, h, "GET", "/api/accounts/"+acc.Number+"/transactions?limit=1", token, nil)
	if got := decodeBody[HistoryResponse](t, rr); len(got.Transactions) != 1 {
		t.Errorf("limit=1: expected 1 transaction, got %d", len(got.Transactions))
	}

	rr = do(t, h, "GET", "/api/accounts/"+acc.Number+"/summary", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("summary: expected 200, got %d", rr.Code)
	}
	summary := decodeBody[ledger.Summary](t, rr)
	if !summary.Reconciled || !summary.Balance.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("unexpected summary: %+v", summary)
	}
}

func TestTransferFlow(t *testing.T) {
	h := newTestServer(t, 100)

	alice := login(t, h, "alice")
	bob := login(t, h, "bob")
	a := openAccount(t, h, alice, "1000")
	b := openAccount(t, h, bob, "300")

	rr := do(t, h, "POST", "/api/transfers", alice, map[string]string{"from": a.Number, "to": b.Number, "amount": "200"})
	if rr.Code != http.StatusOK {
		t.Fatalf("transfer: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	receipt := decodeBody[ledger.TransferReceipt](t, rr)
	if !receipt.SourceBalance.Equal(decimal.NewFromInt(800)) || !receipt.DestinationBalance.Equal(decimal.NewFromInt(500)) {
		t.Errorf("unexpected transfer receipt: %+v", receipt)
	}

	rr = do(t, h, "POST", "/api/transfers", bob, map[string]string{"from": a.Number, "to": b.Number, "amount": "1"})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("transfer from someone else's account: expected 404, got %d", rr.Code)
	}

	rr = do(t, h, "POST", "/api/transfers", alice, map[string]string{"from": a.Number, "to": a.Number, "amount": "1"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("same account: expected 400, got %d", rr.Code)
	}

	rr = do(t, h, "POST", "/api/transfers", alice, map[string]string{"from": a.Number, "to": "ACC000000000", "amount": "1"})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing destination: expected 404, got %d", rr.Code)
	}
	if resp := decodeBody[ErrorResponse](t, rr); resp.Side != string(ledger.SideDestination) {
		t.Errorf("expected destination side, got %+v", resp)
	}

	rr = do(t, h, "GET", "/api/accounts/"+a.Number, bob, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("foreign account: expected 404, got %d", rr.Code)
	}

	rr = do(t, h, "GET", "/api/accounts", bob, nil)
	accounts := decodeBody[[]models.Account](t, rr)
	if len(accounts) != 1 || accounts[0].Number != b.Number || !accounts[0].Balance.Equal(decimal.NewFromInt(500)) {
		t.Errorf("unexpected accounts for bob: %+v", accounts)
	}
}

func TestLoginRateLimit(t *testing.T) {
	h := newTestServer(t, 2)

	creds := map[string]string{"username": "nobody", "password": "password"}
	for i := 0; i < 2; i++ {
		if rr := do(t, h, "POST", "/api/auth", "", creds); rr.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i, rr.Code)
		}
	}
	if rr := do(t, h, "POST", "/api/auth", "", creds); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 once the burst is spent, got %d", rr.Code)
	}
}

func TestRequestIDAndMetrics(t *testing.T) {
	h := newTestServer(t, 100)

	rr := do(t, h, "GET", "/api/accounts", "", nil)
	if rr.Header().Get(HeaderRequestID) == "" {
		t.Error("expected a generated request id")
	}

	req := httptest.NewRequest("GET", "/api/accounts", nil)
	req.Header.Set(HeaderRequestID, "req-42")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get(HeaderRequestID); got != "req-42" {
		t.Errorf("expected request id to be echoed, got %q", got)
	}

	rr = do(t, h, "GET", "/metrics", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `bank_http_requests_total{method="GET",path="/api/accounts",status="401"}`) {
		t.Errorf("expected request counter in metrics output:\n%s", rr.Body.String())
	}
}
