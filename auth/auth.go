// Package auth verifies the credentials carried by API requests and maps
// them to a stored user.
//
// Two schemes are accepted: HTTP Basic, checked against the bcrypt hash in
// the account store, and Bearer tokens signed with the server secret.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/vasilii314/taskbroker/account"
	apperrors "github.com/vasilii314/taskbroker/errors"
	"github.com/vasilii314/taskbroker/store"
)

const (
	MsgNotProvided = "Authentication credentials were not provided."
	MsgInvalid     = "Invalid username/password."
	MsgBadToken    = "Given token not valid for any token type"
)

// ErrNoCredentials is returned by an Authenticator when the request does not
// carry its scheme at all. A Chain moves on to the next authenticator.
var ErrNoCredentials = errors.New("no credentials")

// Authenticator resolves the user behind a request.
type Authenticator interface {
	Authenticate(r *http.Request) (account.User, error)
}

// Basic authenticates HTTP Basic credentials against the account store.
type Basic struct {
	Accounts store.AccountStore
}

func (b Basic) Authenticate(r *http.Request) (account.User, error) {
	username, password, ok := r.BasicAuth()
	if !ok {
		return account.User{}, ErrNoCredentials
	}
	u, err := b.Accounts.GetUserByUsername(r.Context(), username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return account.User{}, apperrors.Unauthenticated(MsgInvalid)
		}
		return account.User{}, err
	}
	if !u.CheckPassword(password) {
		return account.User{}, apperrors.Unauthenticated(MsgInvalid)
	}
	return u, nil
}

// Bearer authenticates "Authorization: Bearer <token>" headers minted by
// Tokens.
type Bearer struct {
	Accounts store.AccountStore
	Tokens   *Tokens
}

func (b Bearer) Authenticate(r *http.Request) (account.User, error) {
	raw, ok := bearerToken(r)
	if !ok {
		return account.User{}, ErrNoCredentials
	}
	userID, err := b.Tokens.Verify(raw)
	if err != nil {
		return account.User{}, err
	}
	u, err := b.Accounts.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return account.User{}, apperrors.Unauthenticated(MsgBadToken)
		}
		return account.User{}, err
	}
	return u, nil
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Chain tries each authenticator in order. The first one that recognises
// its scheme decides the outcome.
type Chain []Authenticator

func (c Chain) Authenticate(r *http.Request) (account.User, error) {
	for _, a := range c {
		u, err := a.Authenticate(r)
		if errors.Is(err, ErrNoCredentials) {
			continue
		}
		return u, err
	}
	return account.User{}, ErrNoCredentials
}

// ResolveIdentity loads the role records owned by u.
func ResolveIdentity(ctx context.Context, accounts store.AccountStore, u account.User) (account.Identity, error) {
	id := account.Identity{User: u}
	c, err := accounts.CharityByUser(ctx, u.ID)
	switch {
	case err == nil:
		id.Charity = &c
	case !errors.Is(err, store.ErrNotFound):
		return account.Identity{}, err
	}
	b, err := accounts.BenefactorByUser(ctx, u.ID)
	switch {
	case err == nil:
		id.Benefactor = &b
	case !errors.Is(err, store.ErrNotFound):
		return account.Identity{}, err
	}
	return id, nil
}
