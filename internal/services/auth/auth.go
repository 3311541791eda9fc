package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/IlyasAtabaev731/bank-ledger/internal/domain/models"
	"github.com/IlyasAtabaev731/bank-ledger/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidInput       = errors.New("username, password and email are required")
	ErrDuplicateIdentity  = errors.New("username or email already taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrPersistence        = errors.New("persistence failure")
)

type UserSaver interface {
	SaveUser(ctx context.Context, username, email string, passHash []byte) (int64, error)
}

type UserProvider interface {
	User(ctx context.Context, username string) (models.User, error)
}

type Auth struct {
	log          *slog.Logger
	userSaver    UserSaver
	userProvider UserProvider
	cost         int
	// dummyHash is compared against when the user does not exist so that
	// unknown users take as long as wrong passwords.
	dummyHash []byte
}

// New builds the identity service. cost <= 0 selects bcrypt.DefaultCost.
func New(log *slog.Logger, userSaver UserSaver, userProvider UserProvider, cost int) *Auth {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("dummy-password"), cost)
	if err != nil {
		panic("failed to prepare dummy hash: " + err.Error())
	}
	return &Auth{
		log:          log,
		userSaver:    userSaver,
		userProvider: userProvider,
		cost:         cost,
		dummyHash:    dummy,
	}
}

// Register stores a new user with a salted bcrypt hash of password and
// returns the new user id.
func (a *Auth) Register(ctx context.Context, username, password, email string) (int64, error) {
	const op = "auth.Register"

	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || password == "" || email == "" {
		return 0, fmt.Errorf("%s: %w", op, ErrInvalidInput)
	}

	log := a.log.With(slog.String("op", op), slog.String("username", username))

	log.Info("Register new user")

	passHash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		log.Error("Failed to hash password", slog.Any("error", err))
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	id, err := a.userSaver.SaveUser(ctx, username, email, passHash)
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			log.Warn("User already exists")
			return 0, fmt.Errorf("%s: %w", op, ErrDuplicateIdentity)
		}
		log.Error("Failed to save user", slog.Any("error", err))
		return 0, fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
	}

	log.Info("User registered", slog.Int64("user_id", id))
	return id, nil
}

// Authenticate returns the user id for a matching username and password.
// Unknown usernames and wrong passwords both yield ErrInvalidCredentials.
func (a *Auth) Authenticate(ctx context.Context, username, password string) (int64, error) {
	const op = "auth.Authenticate"

	// Same normalisation as Register.
	username = strings.TrimSpace(username)

	log := a.log.With(slog.String("op", op), slog.String("username", username))

	user, err := a.userProvider.User(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			_ = bcrypt.CompareHashAndPassword(a.dummyHash, []byte(password))
			log.Warn("Login rejected")
			return 0, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}
		log.Error("Failed to get user", slog.Any("error", err))
		return 0, fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		log.Warn("Login rejected")
		return 0, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	return user.ID, nil
}
