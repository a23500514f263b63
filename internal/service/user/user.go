package user

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/valecashback/valecashback/internal/models"
	"github.com/valecashback/valecashback/internal/repository"
)

type UserService struct {
	// Repository to access long term data
	storage repository.Storage
}

func NewService(storage repository.Storage) *UserService {
	return &UserService{
		storage: storage,
	}
}

func (s *UserService) GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error) {
	return s.storage.User().GetUserByID(ctx, userID)
}

func (s *UserService) GetBalance(ctx context.Context, userID uuid.UUID) (models.Balance, error) {
	balance, err := s.storage.Balance().GetBalance(ctx, userID)
	if err != nil {
		return balance, fmt.Errorf("can't get balance. Err: %w", err)
	}

	return balance, nil
}

func (s *UserService) GetTransactions(ctx context.Context, userID uuid.UUID) ([]models.Transaction, error) {
	transactions, err := s.storage.Balance().ListTransactions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("can't list transactions. Err: %w", err)
	}

	return transactions, nil
}
