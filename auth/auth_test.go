package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/vasilii314/taskbroker/account"
	apperrors "github.com/vasilii314/taskbroker/errors"
	"github.com/vasilii314/taskbroker/store"
	"golang.org/x/crypto/bcrypt"
)

func seedUser(t *testing.T, accounts store.AccountStore, username, password string) account.User {
	t.Helper()
	u, err := account.NewUser(account.Registration{Username: username, Password: password}, bcrypt.MinCost, time.Now())
	if err != nil {
		t.Fatalf("new user: %v", err)
	}
	if err := accounts.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func TestBasic(t *testing.T) {
	accounts := store.NewInMemoryAccountStore()
	u := seedUser(t, accounts, "alice", "s3cret-pass")
	a := Basic{Accounts: accounts}

	tests := []struct {
		name     string
		user     string
		password string
		setAuth  bool
		wantErr  error
	}{
		{"valid", "alice", "s3cret-pass", true, nil},
		{"wrong password", "alice", "nope", true, apperrors.ErrUnauthenticated},
		{"unknown user", "bob", "s3cret-pass", true, apperrors.ErrUnauthenticated},
		{"no header", "", "", false, ErrNoCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/tasks", nil)
			if tt.setAuth {
				r.SetBasicAuth(tt.user, tt.password)
			}
			got, err := a.Authenticate(r)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("authenticate: %v", err)
			}
			if got.ID != u.ID {
				t.Fatalf("expected user %s, got %s", u.ID, got.ID)
			}
		})
	}
}

func TestTokens(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tokens, err := NewTokens("secret")
	if err != nil {
		t.Fatalf("new tokens: %v", err)
	}
	tokens.Now = func() time.Time { return now }

	userID := uuid.New()
	raw, err := tokens.Mint(userID)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	got, err := tokens.Verify(raw)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got != userID {
		t.Fatalf("expected %s, got %s", userID, got)
	}

	other := &Tokens{Secret: []byte("other"), Issuer: DefaultIssuer, TTL: time.Hour, Now: tokens.Now}
	if _, err := other.Verify(raw); !errors.Is(err, apperrors.ErrUnauthenticated) {
		t.Fatalf("expected wrong secret to fail, got %v", err)
	}

	tokens.Now = func() time.Time { return now.Add(DefaultTokenTTL + time.Minute) }
	if _, err := tokens.Verify(raw); !errors.Is(err, apperrors.ErrUnauthenticated) {
		t.Fatalf("expected expired token to fail, got %v", err)
	}

	if _, err := NewTokens(""); err == nil {
		t.Fatal("expected empty secret to be rejected")
	}
}

func TestChain(t *testing.T) {
	accounts := store.NewInMemoryAccountStore()
	u := seedUser(t, accounts, "carol", "s3cret-pass")
	tokens, err := NewTokens("secret")
	if err != nil {
		t.Fatalf("new tokens: %v", err)
	}
	chain := Chain{Bearer{Accounts: accounts, Tokens: tokens}, Basic{Accounts: accounts}}

	raw, err := tokens.Mint(u.ID)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	r := httptest.NewRequest("GET", "/tasks", nil)
	r.Header.Set("Authorization", "Bearer "+raw)
	got, err := chain.Authenticate(r)
	if err != nil || got.ID != u.ID {
		t.Fatalf("bearer: expected %s, got %s (%v)", u.ID, got.ID, err)
	}

	r = httptest.NewRequest("GET", "/tasks", nil)
	r.SetBasicAuth("carol", "s3cret-pass")
	if got, err = chain.Authenticate(r); err != nil || got.ID != u.ID {
		t.Fatalf("basic: expected %s, got %s (%v)", u.ID, got.ID, err)
	}

	r = httptest.NewRequest("GET", "/tasks", nil)
	r.Header.Set("Authorization", "Bearer garbage")
	if _, err = chain.Authenticate(r); !errors.Is(err, apperrors.ErrUnauthenticated) {
		t.Fatalf("expected bad token to fail, got %v", err)
	}

	stranger, err := tokens.Mint(uuid.New())
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	r = httptest.NewRequest("GET", "/tasks", nil)
	r.Header.Set("Authorization", "Bearer "+stranger)
	if _, err = chain.Authenticate(r); !errors.Is(err, apperrors.ErrUnauthenticated) {
		t.Fatalf("expected unknown subject to fail, got %v", err)
	}

	r = httptest.NewRequest("GET", "/tasks", nil)
	if _, err = chain.Authenticate(r); !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("expected ErrNoCredentials, got %v", err)
	}
}

func TestResolveIdentity(t *testing.T) {
	ctx := context.Background()
	accounts := store.NewInMemoryAccountStore()
	u := seedUser(t, accounts, "dave", "s3cret-pass")

	id, err := ResolveIdentity(ctx, accounts, u)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id.IsCharityOwner() || id.IsBenefactor() || !id.IsAuthenticated() {
		t.Fatalf("expected plain user, got %+v", id)
	}

	c := account.Charity{ID: uuid.New(), UserID: u.ID, Name: "Mahak", RegNumber: "1234567890"}
	if err := accounts.CreateCharity(ctx, c); err != nil {
		t.Fatalf("create charity: %v", err)
	}
	b := account.Benefactor{ID: uuid.New(), UserID: u.ID}
	if err := accounts.CreateBenefactor(ctx, b); err != nil {
		t.Fatalf("create benefactor: %v", err)
	}
	id, err = ResolveIdentity(ctx, accounts, u)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !id.OwnsCharity(c.ID) || !id.IsBenefactor() || id.Benefactor.ID != b.ID {
		t.Fatalf("expected both roles, got %+v", id)
	}
}
