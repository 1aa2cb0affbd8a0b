package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fuelscope/internal/models"
	"go.mongodb.org/mongo-driver/bson"
)

func TestMongoUserCollection_InsertUser(t *testing.T) {
	m := testDatabase(t)
	ctx := context.Background()

	user := models.User{
		Name:         "Test User",
		Email:        "Test@Example.com",
		PasswordHash: "hashedpassword",
		Role:         models.RoleAdmin,
	}
	require.NoError(t, m.Users.InsertUser(ctx, user))

	var found models.User
	err := m.Users.Collection.FindOne(ctx, bson.M{"email": "test@example.com"}).Decode(&found)
	require.NoError(t, err)
	assert.Equal(t, user.Name, found.Name)
	assert.Equal(t, user.Role, found.Role)
	assert.True(t, found.IsActive)
	assert.NotZero(t, found.CreatedAt)
}

func TestMongoUserCollection_FindAndLogin(t *testing.T) {
	m := testDatabase(t)
	ctx := context.Background()

	require.NoError(t, m.Users.InsertUser(ctx, models.User{Name: "Ana", Email: "ana@example.com", Role: models.RoleUser}))

	byEmail, err := m.Users.FindUserByEmail(ctx, "ANA@example.com")
	require.NoError(t, err)

	byID, err := m.Users.FindUserByID(ctx, byEmail.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, byEmail.Email, byID.Email)
	assert.Nil(t, byID.LastLogin)

	require.NoError(t, m.Users.UpdateLastLogin(ctx, byID.ID.Hex()))
	byID, err = m.Users.FindUserByID(ctx, byEmail.ID.Hex())
	require.NoError(t, err)
	assert.NotNil(t, byID.LastLogin)

	_, err = m.Users.FindUserByEmail(ctx, "missing@example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.Users.FindUserByID(ctx, "invalid-id")
	assert.Error(t, err)
}
