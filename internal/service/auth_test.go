package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/chatdesk/internal/model"
	"github.com/chatdesk/internal/repository"
	"github.com/chatdesk/internal/storage/memory"
)

type fakeUsers struct {
	byEmail map[string]*model.User
	nextID  int
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byEmail: map[string]*model.User{}}
}

func (f *fakeUsers) Create(_ context.Context, email, name, passwordHash string) (*model.User, error) {
	f.nextID++
	u := &model.User{
		ID:    fmt.Sprintf("u-%d", f.nextID),
		Email: email, Name: name, PasswordHash: passwordHash,
	}
	f.byEmail[email] = u
	return u, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) MarkEmailVerified(_ context.Context, id string) error {
	for _, u := range f.byEmail {
		if u.ID == id {
			u.EmailVerified = true
			return nil
		}
	}
	return repository.ErrNotFound
}

type fakeSessions struct {
	created int
	revoked []string
}

func (f *fakeSessions) Create(_ context.Context, userID, deviceName, secretHash string) (*model.Session, error) {
	f.created++
	return &model.Session{ID: fmt.Sprintf("s-%d", f.created), UserID: userID, SecretHash: secretHash}, nil
}

func (f *fakeSessions) Revoke(_ context.Context, id string) error {
	f.revoked = append(f.revoked, id)
	return nil
}

type fakeSender struct {
	lastTo, lastLink string
}

func (f *fakeSender) SendVerification(_ context.Context, to, link string) error {
	f.lastTo, f.lastLink = to, link
	return nil
}

func newAuth() (*Auth, *fakeUsers, *fakeSessions, *fakeSender) {
	users := newFakeUsers()
	sessions := &fakeSessions{}
	sender := &fakeSender{}
	a := NewAuth(users, sessions, memory.New(), sender, "http://localhost:8080")
	return a, users, sessions, sender
}

func TestSignUpAndVerify(t *testing.T) {
	a, users, _, sender := newAuth()
	ctx := context.Background()

	u, err := a.SignUp(ctx, "alice@example.com", "Alice", "hunter22")
	if err != nil {
		t.Fatal(err)
	}
	if u.PasswordHash == "hunter22" {
		t.Fatal("password stored in clear")
	}
	if sender.lastTo != "alice@example.com" || sender.lastLink == "" {
		t.Fatalf("verification mail not sent: %+v", sender)
	}

	// Sign-in is rejected until the link is used.
	if _, err := a.SignIn(ctx, "alice@example.com", "hunter22", "test"); !errors.Is(err, ErrEmailNotVerified) {
		t.Fatalf("got %v, want ErrEmailNotVerified", err)
	}

	token := sender.lastLink[strings.LastIndex(sender.lastLink, "=")+1:]
	if err := a.Verify(ctx, token); err != nil {
		t.Fatal(err)
	}
	if !users.byEmail["alice@example.com"].EmailVerified {
		t.Fatal("account not marked verified")
	}

	// A used token is gone.
	if err := a.Verify(ctx, token); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("reused token: %v", err)
	}
}

func TestSignUpDuplicateEmail(t *testing.T) {
	a, _, _, _ := newAuth()
	ctx := context.Background()

	if _, err := a.SignUp(ctx, "alice@example.com", "Alice", "pw1"); err != nil {
		t.Fatal(err)
	}
	if _, err := a.SignUp(ctx, "alice@example.com", "Alice Again", "pw2"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("got %v, want ErrEmailTaken", err)
	}
}

func TestSignInIssuesSignedSession(t *testing.T) {
	a, _, sessions, sender := newAuth()
	ctx := context.Background()

	if _, err := a.SignUp(ctx, "alice@example.com", "Alice", "hunter22"); err != nil {
		t.Fatal(err)
	}
	token := sender.lastLink[strings.LastIndex(sender.lastLink, "=")+1:]
	if err := a.Verify(ctx, token); err != nil {
		t.Fatal(err)
	}

	creds, err := a.SignIn(ctx, "alice@example.com", "hunter22", "laptop")
	if err != nil {
		t.Fatal(err)
	}
	if creds.SessionID == "" || creds.Secret == "" {
		t.Fatalf("incomplete credentials: %+v", creds)
	}
	if sessions.created != 1 {
		t.Errorf("sessions created = %d", sessions.created)
	}

	if _, err := a.SignIn(ctx, "alice@example.com", "wrong", "laptop"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: got %v", err)
	}
	if _, err := a.SignIn(ctx, "nobody@example.com", "hunter22", "laptop"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown account: got %v", err)
	}
}

func TestSignInRateLimited(t *testing.T) {
	a, _, _, _ := newAuth()
	ctx := context.Background()

	var err error
	for i := 0; i < 20; i++ {
		_, err = a.SignIn(ctx, "alice@example.com", "wrong", "laptop")
		if errors.Is(err, ErrTooManyAttempts) {
			return
		}
	}
	t.Fatalf("limiter never tripped, last err: %v", err)
}

func TestSignOutRevokes(t *testing.T) {
	a, _, sessions, _ := newAuth()

	if err := a.SignOut(context.Background(), "s-1"); err != nil {
		t.Fatal(err)
	}
	if len(sessions.revoked) != 1 || sessions.revoked[0] != "s-1" {
		t.Fatalf("revoked = %v", sessions.revoked)
	}
}
