package auth

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func writeCredentials(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	doc := fmt.Sprintf(`credentials:
  usernames:
    JSmith:
      name: John Smith
      email: jsmith@example.com
      password: %s
cookie:
  name: sda_cookie
  key: some_signature_key
  expiry_days: 30
`, hash)
	path := filepath.Join(t.TempDir(), "credentials.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	return path
}

func TestLoadCredentials(t *testing.T) {
	creds, err := LoadCredentials(writeCredentials(t, "s3cret"))
	require.NoError(t, err)
	assert.Equal(t, []string{"jsmith"}, creds.Usernames())
	assert.Equal(t, "John Smith", creds.Credentials.Usernames["jsmith"].Name)
	assert.Equal(t, 30, creds.Cookie.ExpiryDays)

	_, err = LoadCredentials(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = ParseCredentials([]byte("credentials:\n  usernames: {}\n"))
	assert.ErrorContains(t, err, "no users")

	_, err = ParseCredentials([]byte("credentials:\n  usernames:\n    bob:\n      password: plaintext\n"))
	assert.ErrorContains(t, err, "bcrypt")
}

// TestGateStates tests the pending, success and failure transitions
func TestGateStates(t *testing.T) {
	creds, err := LoadCredentials(writeCredentials(t, "s3cret"))
	require.NoError(t, err)
	a := NewFileAuthenticator(creds, 3, zerolog.Nop())
	ctx := context.Background()

	assert.Equal(t, StatusPending, a.Status())

	res := a.Login(ctx, "jsmith", "wrong")
	assert.Equal(t, StatusFailure, res.Status)
	assert.ErrorIs(t, res.Err, ErrInvalidCredentials)
	assert.Equal(t, StatusFailure, a.Status())

	res = a.Login(ctx, "nobody", "s3cret")
	assert.ErrorIs(t, res.Err, ErrInvalidCredentials)

	res = a.Login(ctx, " JSMITH ", "s3cret")
	require.Equal(t, StatusSuccess, res.Status)
	assert.NoError(t, res.Err)
	assert.Equal(t, Identity{Username: "jsmith", Name: "John Smith", Email: "jsmith@example.com"}, res.Identity)
	id, ok := a.Identity()
	assert.True(t, ok)
	assert.Equal(t, "John Smith", id.Name)

	a.Logout()
	assert.Equal(t, StatusPending, a.Status())
	_, ok = a.Identity()
	assert.False(t, ok)
}

func TestLockout(t *testing.T) {
	creds, err := LoadCredentials(writeCredentials(t, "s3cret"))
	require.NoError(t, err)
	a := NewFileAuthenticator(creds, 2, zerolog.Nop())
	ctx := context.Background()

	a.Login(ctx, "jsmith", "a")
	a.Login(ctx, "jsmith", "b")
	res := a.Login(ctx, "jsmith", "s3cret")
	assert.ErrorIs(t, res.Err, ErrLockedOut)
	assert.Equal(t, StatusFailure, a.Status())

	// a success resets the counter
	b := NewFileAuthenticator(creds, 2, zerolog.Nop())
	b.Login(ctx, "jsmith", "a")
	require.Equal(t, StatusSuccess, b.Login(ctx, "jsmith", "s3cret").Status)
	b.Login(ctx, "jsmith", "a")
	assert.Equal(t, StatusSuccess, b.Login(ctx, "jsmith", "s3cret").Status)
}

func TestLoginHonoursContext(t *testing.T) {
	creds, err := LoadCredentials(writeCredentials(t, "s3cret"))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := NewFileAuthenticator(creds, 0, zerolog.Nop()).Login(ctx, "jsmith", "s3cret")
	assert.Equal(t, StatusFailure, res.Status)
	assert.ErrorIs(t, res.Err, context.Canceled)
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")))

	_, err = HashPassword("")
	assert.Error(t, err)
}
