// Package auth gates the chat behind a username/password login checked
// against a YAML credentials file of bcrypt hashes.
package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// Status is the authentication state of a session.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

var (
	ErrInvalidCredentials = errors.New("username/password is incorrect")
	ErrLockedOut          = errors.New("too many failed login attempts")
)

// Identity is the logged-in user.
type Identity struct {
	Username string
	Name     string
	Email    string
}

// Result is the outcome of a login attempt. Err is set unless Status is success.
type Result struct {
	Status   Status
	Identity Identity
	Err      error
}

// Gate is the authentication collaborator of the chat service.
type Gate interface {
	Login(ctx context.Context, username, password string) Result
	Logout()
	Status() Status
}

// User is one entry of the credentials file.
type User struct {
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"` // bcrypt hash
}

// Cookie settings are read for compatibility with existing credential files; sessions here
// live only as long as the process.
type Cookie struct {
	Name       string `yaml:"name"`
	Key        string `yaml:"key"`
	ExpiryDays int    `yaml:"expiry_days"`
}

// Credentials mirrors the layout
//
//	credentials:
//	  usernames:
//	    jsmith: {name: ..., email: ..., password: $2b$12$...}
//	cookie: {name: ..., key: ..., expiry_days: 30}
type Credentials struct {
	Credentials struct {
		Usernames map[string]User `yaml:"usernames"`
	} `yaml:"credentials"`
	Cookie Cookie `yaml:"cookie"`
}

// Usernames returns the configured user names in order.
func (c *Credentials) Usernames() []string {
	names := make([]string, 0, len(c.Credentials.Usernames))
	for n := range c.Credentials.Usernames {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// LoadCredentials reads and validates a credentials file.
func LoadCredentials(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	return ParseCredentials(data)
}

// ParseCredentials decodes a credentials document. Usernames are case-insensitive.
func ParseCredentials(data []byte) (*Credentials, error) {
	var raw Credentials
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode credentials: %w", err)
	}
	if len(raw.Credentials.Usernames) == 0 {
		return nil, errors.New("credentials: no users configured")
	}

	creds := &Credentials{Cookie: raw.Cookie}
	creds.Credentials.Usernames = make(map[string]User, len(raw.Credentials.Usernames))
	for name, u := range raw.Credentials.Usernames {
		key := strings.ToLower(strings.TrimSpace(name))
		if _, err := bcrypt.Cost([]byte(u.Password)); err != nil {
			return nil, fmt.Errorf("credentials: user %s: password is not a bcrypt hash: %w", name, err)
		}
		if _, dup := creds.Credentials.Usernames[key]; dup {
			return nil, fmt.Errorf("credentials: user %s is listed twice", key)
		}
		creds.Credentials.Usernames[key] = u
	}
	return creds, nil
}

// HashPassword returns the bcrypt hash to store in a credentials file.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

var (
	dummyOnce sync.Once
	dummyHash []byte
)

// FileAuthenticator is a Gate over a Credentials set. It holds the state of a
// single session.
type FileAuthenticator struct {
	creds       *Credentials
	maxAttempts int
	logger      zerolog.Logger

	mu       sync.Mutex
	status   Status
	identity Identity
	failures map[string]int
}

// NewFileAuthenticator locks a username after maxAttempts consecutive failures;
// zero or less disables the lockout.
func NewFileAuthenticator(creds *Credentials, maxAttempts int, logger zerolog.Logger) *FileAuthenticator {
	return &FileAuthenticator{
		creds:       creds,
		maxAttempts: maxAttempts,
		logger:      logger.With().Str("component", "auth").Logger(),
		status:      StatusPending,
		failures:    make(map[string]int),
	}
}

func (a *FileAuthenticator) Login(ctx context.Context, username, password string) Result {
	if err := ctx.Err(); err != nil {
		return a.fail("", err)
	}
	key := strings.ToLower(strings.TrimSpace(username))

	a.mu.Lock()
	locked := a.maxAttempts > 0 && a.failures[key] >= a.maxAttempts
	a.mu.Unlock()
	if locked {
		return a.fail(key, ErrLockedOut)
	}

	user, ok := a.creds.Credentials.Usernames[key]
	if !ok {
		// Compare anyway so unknown users take as long as wrong passwords.
		dummyOnce.Do(func() {
			dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-password"), bcrypt.DefaultCost)
		})
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return a.fail(key, ErrInvalidCredentials)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return a.fail(key, ErrInvalidCredentials)
	}

	id := Identity{Username: key, Name: user.Name, Email: user.Email}
	a.mu.Lock()
	delete(a.failures, key)
	a.status = StatusSuccess
	a.identity = id
	a.mu.Unlock()
	a.logger.Info().Str("user", key).Msg("login succeeded")
	return Result{Status: StatusSuccess, Identity: id}
}

func (a *FileAuthenticator) fail(key string, err error) Result {
	a.mu.Lock()
	if key != "" && !errors.Is(err, ErrLockedOut) {
		a.failures[key]++
	}
	a.status = StatusFailure
	a.identity = Identity{}
	a.mu.Unlock()
	a.logger.Warn().Str("user", key).Err(err).Msg("login failed")
	return Result{Status: StatusFailure, Err: err}
}

// Logout returns the session to pending.
func (a *FileAuthenticator) Logout() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = StatusPending
	a.identity = Identity{}
}

func (a *FileAuthenticator) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Identity returns the logged-in user, if any.
func (a *FileAuthenticator) Identity() (Identity, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.identity, a.status == StatusSuccess
}

var _ Gate = (*FileAuthenticator)(nil)
