package api

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/IlyasAtabaev731/bank-ledger/internal/config"
	"github.com/IlyasAtabaev731/bank-ledger/internal/domain/models"
	"github.com/IlyasAtabaev731/bank-ledger/internal/services/ledger"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

type Identity interface {
	Register(ctx context.Context, username, password, email string) (int64, error)
	Authenticate(ctx context.Context, username, password string) (int64, error)
}

type Ledger interface {
	OpenAccount(ctx context.Context, req ledger.OpenAccountRequest) (models.Account, error)
	Deposit(ctx context.Context, number string, amount decimal.Decimal) (ledger.Receipt, error)
	Withdraw(ctx context.Context, number string, amount decimal.Decimal) (ledger.Receipt, error)
	Transfer(ctx context.Context, from, to string, amount decimal.Decimal) (ledger.TransferReceipt, error)
	Account(ctx context.Context, number string) (models.Account, error)
	Accounts(ctx context.Context, ownerID int64) ([]models.Account, error)
	History(ctx context.Context, number string, limit int) iter.Seq2[models.Transaction, error]
	Summary(ctx context.Context, number string) (ledger.Summary, error)
}

type APIServer struct {
	config    *config.Config
	logger    *slog.Logger
	server    *http.Server
	identity  Identity
	ledger    Ledger
	jwtSecret []byte
	validate  *validator.Validate
	limiter   *ipLimiter
	metrics   *httpMetrics
	registry  *prometheus.Registry
}

// New wires the HTTP layer. registry receives the HTTP metrics and is
// served on /metrics.
func New(config *config.Config, logger *slog.Logger, identity Identity, ledger Ledger, registry *prometheus.Registry) *APIServer {
	return &APIServer{
		config: config,
		logger: logger,
		server: &http.Server{
			Addr:              config.ApiHost + ":" + strconv.Itoa(config.ApiPort),
			ReadHeaderTimeout: 5 * time.Second,
		},
		identity:  identity,
		ledger:    ledger,
		jwtSecret: []byte(config.Auth.JWTSecret),
		validate:  validator.New(),
		limiter:   newIPLimiter(config.Auth.LoginRPS, config.Auth.LoginBurst),
		metrics:   newHTTPMetrics(registry),
		registry:  registry,
	}
}

func (s *APIServer) Start() error {
	s.logger.Info("Starting server", slog.String("addr", s.server.Addr))

	s.server.Handler = s.Router()

	return s.server.ListenAndServe()
}

func (s *APIServer) MustStart() {
	err := s.Start()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		panic("Failed to start server: " + err.Error())
	}
}

func (s *APIServer) Stop(ctx context.Context) error {
	defer s.logger.Info("Server successfully stopped")
	return s.server.Shutdown(ctx)
}

func (s *APIServer) Router() http.Handler {
	router := mux.NewRouter()
	router.Use(s.requestID, s.instrument)

	router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods("GET")

	router.HandleFunc("/api/register", s.rateLimit(s.registerHandler())).Methods("POST")
	router.HandleFunc("/api/auth", s.rateLimit(s.authHandler())).Methods("POST")

	router.HandleFunc("/api/accounts", s.authenticate(s.listAccountsHandler())).Methods("GET")
	router.HandleFunc("/api/accounts", s.authenticate(s.openAccountHandler())).Methods("POST")
	router.HandleFunc("/api/accounts/{number}", s.authenticate(s.accountHandler())).Methods("GET")
	router.HandleFunc("/api/accounts/{number}/transactions", s.authenticate(s.historyHandler())).Methods("GET")
	router.HandleFunc("/api/accounts/{number}/summary", s.authenticate(s.summaryHandler())).Methods("GET")
	router.HandleFunc("/api/accounts/{number}/deposit", s.authenticate(s.depositHandler())).Methods("POST")
	router.HandleFunc("/api/accounts/{number}/withdraw", s.authenticate(s.withdrawHandler())).Methods("POST")
	router.HandleFunc("/api/transfers", s.authenticate(s.transferHandler())).Methods("POST")

	return router
}
