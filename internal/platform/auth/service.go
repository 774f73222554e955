package auth

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"simpellab-backend/internal/platform/apperr"
)

const tokenTTL = 24 * time.Hour

type Service struct {
	store  *Store
	secret []byte
}

// NewService wires the admin account store. secret comes from the
// environment (JWT_SECRET), never from the config file.
func NewService(conn *sql.DB, secret []byte) *Service {
	return &Service{store: NewStore(conn), secret: secret}
}

func (s *Service) Store() *Store { return s.store }

func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	if username == "" || password == "" {
		return "", apperr.Invalid("", "username and password are required")
	}

	acct, err := s.store.GetByUsername(ctx, username)
	if err != nil {
		return "", err
	}
	if acct == nil {
		return "", apperr.Conflict("AUTH_FAILED", "authentication failed")
	}
	if acct.Status != StatusActive {
		return "", apperr.Conflict("AUTH_FAILED", "account disabled")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return "", apperr.Conflict("AUTH_FAILED", "authentication failed")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  strconv.FormatInt(acct.ID, 10),
		"name": acct.Name,
		"exp":  time.Now().Add(tokenTTL).Unix(),
	})
	return token.SignedString(s.secret)
}

func (s *Service) Register(ctx context.Context, username, name, password string) (*Admin, error) {
	if username == "" || password == "" {
		return nil, apperr.Invalid("", "username and password are required")
	}

	existing, err := s.store.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.Conflict("USERNAME_TAKEN", "username already exists")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	a := &Admin{
		Username:     username,
		Name:         name,
		PasswordHash: string(hash),
		Status:       StatusActive,
	}
	if err := s.store.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}
