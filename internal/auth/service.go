package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"zentum/internal/ids"
	"zentum/internal/model"
	"zentum/internal/storage"
	"zentum/internal/types"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidToken       = errors.New("invalid token")
)

const minPasswordLen = 6

type Store interface {
	Register(ctx context.Context, acc model.Account, passwordHash string) error
	Credential(ctx context.Context, email string) (storage.Credential, error)
	GetAccount(ctx context.Context, id string) (model.Account, error)
}

// Identity is what a verified token says about the caller.
type Identity struct {
	AccountID string
	Role      types.Role
}

type Claims struct {
	Role types.Role `json:"role"`
	jwt.RegisteredClaims
}

type Service struct {
	store  Store
	issuer string
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	log    *zap.Logger
}

func NewService(store Store, issuer string, secret []byte, ttl time.Duration, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, issuer: issuer, secret: secret, ttl: ttl, now: time.Now, log: log.Named("auth")}
}

// Register creates a USER account with empty wallets.
func (s *Service) Register(ctx context.Context, email, password, displayName string) (model.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return model.Account{}, fmt.Errorf("%w: email is not valid", ErrInvalidInput)
	}
	if len(password) < minPasswordLen {
		return model.Account{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return model.Account{}, err
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = strings.SplitN(email, "@", 2)[0]
	}
	acc := model.Account{
		ID:            ids.New(),
		Email:         email,
		DisplayName:   displayName,
		Role:          types.RoleUser,
		ForexBalance:  decimal.Zero,
		CryptoBalance: decimal.Zero,
	}
	if err := s.create(ctx, acc, string(hash)); err != nil {
		return model.Account{}, err
	}
	s.log.Info("account registered", zap.String("account_id", acc.ID))
	return s.store.GetAccount(ctx, acc.ID)
}

// EnsureAdmin seeds an ADMIN account from a precomputed bcrypt hash. An
// existing login with the same email is left as is.
func (s *Service) EnsureAdmin(ctx context.Context, email, passwordHash string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || passwordHash == "" {
		return nil
	}
	if _, err := bcrypt.Cost([]byte(passwordHash)); err != nil {
		return fmt.Errorf("admin password hash: %w", err)
	}
	_, err := s.store.Credential(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	acc := model.Account{ID: ids.New(), Email: email, DisplayName: "admin", Role: types.RoleAdmin}
	if err := s.create(ctx, acc, passwordHash); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil
		}
		return err
	}
	s.log.Info("admin account seeded", zap.String("account_id", acc.ID))
	return nil
}

func (s *Service) Login(ctx context.Context, email, password string) (string, model.Account, error) {
	cred, err := s.store.Credential(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", model.Account{}, ErrInvalidCredentials
		}
		return "", model.Account{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return "", model.Account{}, ErrInvalidCredentials
	}
	acc, err := s.store.GetAccount(ctx, cred.AccountID)
	if err != nil {
		return "", model.Account{}, err
	}
	token, err := s.signToken(acc)
	if err != nil {
		return "", model.Account{}, err
	}
	return token, acc, nil
}

func (s *Service) signToken(acc model.Account) (string, error) {
	now := s.now().UTC()
	claims := Claims{
		Role: acc.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   acc.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(s.secret)
}

func (s *Service) ParseToken(token string) (Identity, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}
	if claims.Issuer != s.issuer {
		return Identity{}, fmt.Errorf("%w: issuer", ErrInvalidToken)
	}
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: subject", ErrInvalidToken)
	}
	if !claims.Role.Valid() {
		return Identity{}, fmt.Errorf("%w: role", ErrInvalidToken)
	}
	return Identity{AccountID: claims.Subject, Role: claims.Role}, nil
}

func (s *Service) create(ctx context.Context, acc model.Account, hash string) error {
	if err := s.store.Register(ctx, acc, hash); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return ErrEmailTaken
		}
		return fmt.Errorf("register account: %w", err)
	}
	return nil
}
