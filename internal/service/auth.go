// Package service holds business logic that spans repositories, currently
// account management and sign-in.
package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/chatdesk/internal/logger"
	"github.com/chatdesk/internal/model"
	"github.com/chatdesk/internal/repository"
	"github.com/chatdesk/internal/storage"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailNotVerified   = errors.New("email not verified")
	ErrTooManyAttempts    = errors.New("too many sign-in attempts")
)

// VerificationSender delivers the verification link. Implemented by the email
// package; faked in tests.
type VerificationSender interface {
	SendVerification(ctx context.Context, to, link string) error
}

// UserStore is the slice of the user repository auth needs.
type UserStore interface {
	Create(ctx context.Context, email, name, passwordHash string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	MarkEmailVerified(ctx context.Context, id string) error
}

// SessionWriter is the slice of the session repository auth needs.
type SessionWriter interface {
	Create(ctx context.Context, userID, deviceName, secretHash string) (*model.Session, error)
	Revoke(ctx context.Context, id string) error
}

type Auth struct {
	users    UserStore
	sessions SessionWriter
	store    storage.SessionStore
	sender   VerificationSender
	baseURL  string
}

func NewAuth(users UserStore, sessions SessionWriter, store storage.SessionStore, sender VerificationSender, baseURL string) *Auth {
	return &Auth{users: users, sessions: sessions, store: store, sender: sender, baseURL: baseURL}
}

// SignUp registers an account and mails the verification link. The account
// cannot sign in until the link is used.
func (a *Auth) SignUp(ctx context.Context, email, name, password string) (*model.User, error) {
	defer logger.DeferLogDuration("auth.SignUp", time.Now())()

	if _, err := a.users.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("auth.SignUp: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth.SignUp: hash: %w", err)
	}
	user, err := a.users.Create(ctx, email, name, string(hash))
	if err != nil {
		return nil, fmt.Errorf("auth.SignUp: %w", err)
	}

	token, err := randomToken()
	if err != nil {
		return nil, fmt.Errorf("auth.SignUp: %w", err)
	}
	if err := a.store.SetVerifyToken(ctx, token, user.ID); err != nil {
		return nil, fmt.Errorf("auth.SignUp: store token: %w", err)
	}
	link := a.baseURL + "/api/auth/verify?token=" + token
	if err := a.sender.SendVerification(ctx, email, link); err != nil {
		// The account exists; verification can be re-requested later.
		logger.Errorf("auth: send verification to %s: %v", email, err)
	}
	return user, nil
}

// Verify consumes a verification token and activates the account.
func (a *Auth) Verify(ctx context.Context, token string) error {
	defer logger.DeferLogDuration("auth.Verify", time.Now())()

	userID, err := a.store.GetVerifyToken(ctx, token)
	if err != nil {
		return fmt.Errorf("auth.Verify: %w", err)
	}
	if userID == "" {
		return repository.ErrNotFound
	}
	if err := a.users.MarkEmailVerified(ctx, userID); err != nil {
		return fmt.Errorf("auth.Verify: %w", err)
	}
	if err := a.store.DeleteVerifyToken(ctx, token); err != nil {
		logger.Errorf("auth: delete used token: %v", err)
	}
	return nil
}

// Credentials are what a successful sign-in hands to the client. The secret
// is shown once; only its hash is persisted.
type Credentials struct {
	SessionID string `json:"session_id"`
	Secret    string `json:"secret"`
	User      model.UserPublic
}

// SignIn checks the password and opens a signed session. Unverified accounts
// are rejected even with the right password.
func (a *Auth) SignIn(ctx context.Context, email, password, deviceName string) (*Credentials, error) {
	defer logger.DeferLogDuration("auth.SignIn", time.Now())()

	allowed, err := a.store.CheckLoginRateLimit(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("auth.SignIn: rate limit: %w", err)
	}
	if !allowed {
		return nil, ErrTooManyAttempts
	}

	user, err := a.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		// Burn comparable time so missing accounts are not distinguishable.
		bcrypt.CompareHashAndPassword([]byte("$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5B4Vn7n1lqN8rY5R0eAOhC0R8y1de"), []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("auth.SignIn: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.EmailVerified {
		return nil, ErrEmailNotVerified
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("auth.SignIn: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(secret)
	secretHash := sha256.Sum256(secret)

	sess, err := a.sessions.Create(ctx, user.ID, deviceName, hex.EncodeToString(secretHash[:]))
	if err != nil {
		return nil, fmt.Errorf("auth.SignIn: %w", err)
	}
	if err := a.store.SetSessionSecret(ctx, sess.ID, encoded); err != nil {
		return nil, fmt.Errorf("auth.SignIn: store secret: %w", err)
	}

	return &Credentials{SessionID: sess.ID, Secret: encoded, User: user.ToPublic()}, nil
}

// SignOut revokes the session and forgets its secret.
func (a *Auth) SignOut(ctx context.Context, sessionID string) error {
	defer logger.DeferLogDuration("auth.SignOut", time.Now())()

	if err := a.store.DeleteSessionSecret(ctx, sessionID); err != nil {
		return fmt.Errorf("auth.SignOut: %w", err)
	}
	if err := a.sessions.Revoke(ctx, sessionID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("auth.SignOut: %w", err)
	}
	return nil
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
