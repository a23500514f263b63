package postgres

import (
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/valecashback/valecashback/internal/apperrors"
	"github.com/valecashback/valecashback/internal/models"
	"github.com/valecashback/valecashback/internal/repository"
	"github.com/valecashback/valecashback/internal/testutil"
)

func TestUser(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	inTx := func(t *testing.T, fn func(repository.Storage)) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			fn(NewStorage(tx))
		})
	}

	t.Run("CreateUser", func(t *testing.T) {
		t.Run("create ok", func(t *testing.T) {
			inTx(t, func(storage repository.Storage) {
				user, err := storage.User().CreateUser(t.Context(), repository.CreateUserParams{
					Name:           "Maria Silva",
					Email:          "maria@example.com",
					Type:           models.UserTypeMerchant,
					HashedPassword: "hash",
				})

				require.NoError(t, err)
				require.NotEqual(t, uuid.Nil, user.ID)
				require.Equal(t, "Maria Silva", user.Name)
				require.Equal(t, "maria@example.com", user.Email)
				require.Equal(t, models.UserTypeMerchant, user.Type)
				require.Nil(t, user.Photo)
				require.NotZero(t, user.CreatedAt)
			})
		})

		t.Run("duplicate email", func(t *testing.T) {
			inTx(t, func(storage repository.Storage) {
				params := repository.CreateUserParams{
					Name:           "Maria Silva",
					Email:          "maria@example.com",
					Type:           models.UserTypeClient,
					HashedPassword: "hash",
				}

				_, err := storage.User().CreateUser(t.Context(), params)
				require.NoError(t, err)

				_, err = storage.User().CreateUser(t.Context(), params)

				require.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
			})
		})
	})

	t.Run("GetUser", func(t *testing.T) {
		inTx(t, func(storage repository.Storage) {
			created, err := storage.User().CreateUser(t.Context(), repository.CreateUserParams{
				Name:           "Maria Silva",
				Email:          "maria@example.com",
				Type:           models.UserTypeClient,
				HashedPassword: "hash",
			})
			require.NoError(t, err)

			t.Run("by id", func(t *testing.T) {
				user, err := storage.User().GetUserByID(t.Context(), created.ID)

				require.NoError(t, err)
				require.Equal(t, created.ID, user.ID)
			})

			t.Run("by email", func(t *testing.T) {
				user, err := storage.User().GetUserByEmail(t.Context(), "maria@example.com")

				require.NoError(t, err)
				require.Equal(t, created.ID, user.ID)
			})

			t.Run("not found", func(t *testing.T) {
				_, err := storage.User().GetUserByID(t.Context(), uuid.New())
				require.ErrorIs(t, err, apperrors.ErrUserNotFound)

				_, err = storage.User().GetUserByEmail(t.Context(), "nobody@example.com")
				require.ErrorIs(t, err, apperrors.ErrUserNotFound)
			})
		})
	})
}
