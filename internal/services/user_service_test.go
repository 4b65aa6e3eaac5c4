package services_test

import (
	"context"
	"testing"

	"mathtutor_go_backend/internal/database/dbtest"
	"mathtutor_go_backend/internal/models"
	"mathtutor_go_backend/internal/services"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUserService(t *testing.T) *services.DefaultUserService {
	db := dbtest.Open(t)
	return services.NewUserService(db, services.NewCreditLedger(db))
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	svc := newUserService(t)

	t.Run("Creates user with default balance", func(t *testing.T) {
		user, err := svc.Register(ctx, services.RegisterInput{
			Email:     "  Ada@Example.com ",
			FirstName: "Ada",
			LastName:  "Lovelace",
			Password:  "correct horse",
		})
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, user.ID)
		assert.Equal(t, "ada@example.com", user.Email)
		assert.False(t, user.IsVerified)
		assert.Equal(t, services.DefaultCredits, user.Balance())
		assert.NotEqual(t, "correct horse", user.PasswordHash)
	})

	t.Run("Rejects duplicate email", func(t *testing.T) {
		_, err := svc.Register(ctx, services.RegisterInput{
			Email:     "ada@example.com",
			FirstName: "Ada",
			Password:  "another password",
		})
		assert.ErrorIs(t, err, services.ErrEmailTaken)
	})

	t.Run("Validates input", func(t *testing.T) {
		cases := []services.RegisterInput{
			{Email: "not-an-email", FirstName: "A", Password: "longenough"},
			{Email: "b@example.com", FirstName: " ", Password: "longenough"},
			{Email: "c@example.com", FirstName: "C", Password: "short"},
		}
		for _, in := range cases {
			_, err := svc.Register(ctx, in)
			var validationErr *services.ValidationError
			assert.ErrorAs(t, err, &validationErr, "input %+v", in)
		}
	})
}

func TestEmailAvailable(t *testing.T) {
	ctx := context.Background()
	svc := newUserService(t)

	available, err := svc.EmailAvailable(ctx, "free@example.com")
	require.NoError(t, err)
	assert.True(t, available)

	_, err = svc.Register(ctx, services.RegisterInput{Email: "free@example.com", FirstName: "F", Password: "password1"})
	require.NoError(t, err)

	available, err = svc.EmailAvailable(ctx, "FREE@example.com")
	require.NoError(t, err)
	assert.False(t, available)
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	svc := newUserService(t)

	registered, err := svc.Register(ctx, services.RegisterInput{Email: "login@example.com", FirstName: "L", Password: "password1"})
	require.NoError(t, err)

	user, err := svc.Authenticate(ctx, "login@example.com", "password1")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)

	_, err = svc.Authenticate(ctx, "login@example.com", "wrong-password")
	assert.ErrorIs(t, err, services.ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "nobody@example.com", "password1")
	assert.ErrorIs(t, err, services.ErrInvalidCredentials)
}

func TestMarkVerifiedAndDetails(t *testing.T) {
	ctx := context.Background()
	svc := newUserService(t)

	user, err := svc.Register(ctx, services.RegisterInput{Email: "v@example.com", FirstName: "V", Password: "password1"})
	require.NoError(t, err)

	require.NoError(t, svc.MarkVerified(ctx, user.ID))
	stored, err := svc.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsVerified)

	assert.ErrorIs(t, svc.MarkVerified(ctx, uuid.New()), services.ErrUserNotFound)

	details, err := svc.Details(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PlanNone, details.Plan)
	assert.Equal(t, services.DefaultCredits, details.Credits)

	_, err = svc.GetByEmail(ctx, "missing@example.com")
	assert.ErrorIs(t, err, services.ErrUserNotFound)
	_, err = svc.GetBySubscriptionID(ctx, "sub_missing")
	assert.ErrorIs(t, err, services.ErrUserNotFound)
}
