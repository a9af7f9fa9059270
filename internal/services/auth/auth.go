package auth

import (
	"context"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"mocktrader/internal/domain"
	"mocktrader/internal/storage/users"
)

var (
	// ErrInvalidCredentials is returned on login with a wrong email or password.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrEmailTaken is returned on registration with an already used email.
	ErrEmailTaken = errors.New("email already exists")

	// ErrUsernameTaken is returned on registration with an already used username.
	ErrUsernameTaken = errors.New("username already exists")

	// ErrInvalidToken is returned when a bearer token fails verification.
	ErrInvalidToken = errors.New("invalid token")

	// ErrMissingField is returned on registration with a blank field.
	ErrMissingField = errors.New("username, email and password are required")
)

// UserStore is the slice of the users store the service needs.
type UserStore interface {
	Create(ctx context.Context, username, email, passwordHash string) (*users.User, error)
	ByEmail(ctx context.Context, email string) (*users.User, error)
	ByUsername(ctx context.Context, username string) (*users.User, error)
}

// PortfolioCreator provisions the portfolio that every new account gets.
// Satisfied by ledger.Service.
type PortfolioCreator interface {
	Create(ctx context.Context, userID int64, startingCash decimal.Decimal) (*domain.Portfolio, error)
}

// Service issues and verifies access tokens for the HTTP layer. It is a
// collaborator of the trading core, not part of it: the engine only ever
// sees resolved user ids.
type Service struct {
	users        UserStore
	portfolios   PortfolioCreator
	secret       []byte
	tokenTTL     time.Duration
	startingCash decimal.Decimal
	logger       *zap.Logger
}

// New creates the auth service.
func New(userStore UserStore, portfolios PortfolioCreator, secret string, tokenTTL time.Duration, startingCash decimal.Decimal, logger *zap.Logger) *Service {
	return &Service{
		users:        userStore,
		portfolios:   portfolios,
		secret:       []byte(secret),
		tokenTTL:     tokenTTL,
		startingCash: startingCash,
		logger:       logger,
	}
}

// Register creates an account, provisions its portfolio with the configured
// starting cash and returns an access token.
func (s *Service) Register(ctx context.Context, username, email, password string) (string, error) {
	if username == "" || email == "" || password == "" {
		return "", ErrMissingField
	}

	if _, err := s.users.ByEmail(ctx, email); err == nil {
		return "", ErrEmailTaken
	} else if !errors.Is(err, users.ErrNotFound) {
		return "", err
	}
	if _, err := s.users.ByUsername(ctx, username); err == nil {
		return "", ErrUsernameTaken
	} else if !errors.Is(err, users.ErrNotFound) {
		return "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.Wrap(err, "hash password")
	}

	user, err := s.users.Create(ctx, username, email, string(hash))
	if err != nil {
		return "", err
	}

	if _, err := s.portfolios.Create(ctx, user.ID, s.startingCash); err != nil {
		return "", errors.Wrap(err, "provision portfolio")
	}

	s.logger.Info("user registered", zap.Int64("user_id", user.ID), zap.String("username", username))
	return s.issueToken(user.ID)
}

// Login verifies the credentials and returns an access token.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	if email == "" || password == "" {
		return "", ErrInvalidCredentials
	}

	user, err := s.users.ByEmail(ctx, email)
	if errors.Is(err, users.ErrNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", ErrInvalidCredentials
	}

	return s.issueToken(user.ID)
}

// ParseUserID verifies a token and returns the user id it was issued for.
func (s *Service) ParseUserID(token string) (int64, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %s", t.Method.Alg())
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return 0, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return 0, ErrInvalidToken
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, ErrInvalidToken
	}
	return userID, nil
}

func (s *Service) issueToken(userID int64) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return token, nil
}
