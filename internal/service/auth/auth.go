package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/valecashback/valecashback/internal/apperrors"
	"github.com/valecashback/valecashback/internal/models"
	"github.com/valecashback/valecashback/internal/repository"
	"github.com/valecashback/valecashback/internal/service/auth/tokenmanager"
)

type Config struct {
	// Hasher to use during registration or login
	// Defaults to bcrypt
	Hasher PasswordHasher
}

type AuthService struct {
	token   *tokenmanager.TokenManager
	hasher  PasswordHasher
	storage repository.Storage
}

func NewService(cfg Config, token *tokenmanager.TokenManager, storage repository.Storage) (*AuthService, error) {
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = DefaultHasher
	}

	if token == nil || storage == nil {
		return nil, errors.New("token manager and storage must not be nil")
	}

	return &AuthService{
		token:   token,
		hasher:  hasher,
		storage: storage,
	}, nil
}

// Register user and create zero cashback balance in one transaction
func (s *AuthService) Register(ctx context.Context, name string, email string, password string, userType string) (models.User, models.TokenPair, error) {
	var user models.User
	var pair models.TokenPair

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return user, pair, fmt.Errorf("can't use this as password. Err: %w", err)
	}

	if userType == "" {
		userType = models.UserTypeClient
	}

	err = s.storage.InTx(ctx, func(storage repository.Storage) error {
		user, err = storage.User().CreateUser(ctx, repository.CreateUserParams{
			Name:           name,
			Email:          email,
			Type:           userType,
			HashedPassword: hash,
		})
		if err != nil {
			return err
		}

		return storage.Balance().CreateBalance(ctx, user.ID)
	})
	if err != nil {
		return user, pair, err
	}

	pair, err = s.token.GeneratePair(ctx, user)
	if err != nil {
		return user, pair, fmt.Errorf("token could not be generated. Err: %w", err)
	}

	return user, pair, nil
}

func (s *AuthService) Login(ctx context.Context, email string, password string) (models.User, models.TokenPair, error) {
	var pair models.TokenPair

	user, err := s.storage.User().GetUserByEmail(ctx, email)
	if err != nil {
		return user, pair, apperrors.ErrUserNotFound
	}

	if err := s.hasher.Compare(user.HashedPassword, password); err != nil {
		return user, pair, apperrors.ErrUserNotFound
	}

	pair, err = s.token.GeneratePair(ctx, user)
	if err != nil {
		return user, pair, fmt.Errorf("token could not be generated. Err: %w", err)
	}

	return user, pair, nil
}

// Refresh tokens using refresh token
// Used tokens can't be reused: every refresh rotates the pair
func (s *AuthService) RefreshPair(ctx context.Context, refresh string) (models.TokenPair, error) {
	var pair models.TokenPair

	token, err := s.token.UseRefresh(ctx, refresh)
	if err != nil {
		return pair, err
	}

	user, err := s.storage.User().GetUserByID(ctx, token.UserID)
	if err != nil {
		return pair, err
	}

	return s.token.GeneratePair(ctx, user)
}

// Get request and return user if it authenticated or error
func (s *AuthService) GetUserFromRequest(ctx context.Context, r *http.Request) (models.User, error) {
	var user models.User

	header := r.Header.Get("Authorization")
	access, found := strings.CutPrefix(header, "Bearer ")
	if !found || access == "" {
		return user, errors.New("no bearer token in request")
	}

	userID, err := s.token.ParseAccess(ctx, access)
	if err != nil {
		return user, err
	}

	return s.storage.User().GetUserByID(ctx, userID)
}
