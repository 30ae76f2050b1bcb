package broker

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/vasilii314/taskbroker/account"
	"github.com/vasilii314/taskbroker/auth"
	apperrors "github.com/vasilii314/taskbroker/errors"
	"github.com/vasilii314/taskbroker/store"
)

// RegisterUser creates a user from a sign-up payload.
func (b *Broker) RegisterUser(ctx context.Context, reg account.Registration) (u account.User, err error) {
	ctx, span := b.startSpan(ctx, "RegisterUser")
	defer func() { endSpan(span, err) }()

	if fields := reg.Validate(); fields != nil {
		return account.User{}, apperrors.ValidationFields(fields)
	}
	u, err = account.NewUser(reg, b.PasswordCost, b.now())
	if err != nil {
		return account.User{}, err
	}
	if err := b.Accounts.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return account.User{}, apperrors.ValidationFields(map[string][]string{
				"username": {msgUsernameTaken},
			})
		}
		return account.User{}, err
	}
	log.Printf("[broker.Broker] [RegisterUser] registered user %s (%s)", u.Username, u.ID)
	return u, nil
}

// RegisterCharity attaches a charity to the authenticated caller.
func (b *Broker) RegisterCharity(ctx context.Context, id account.Identity, reg account.CharityRegistration) (c account.Charity, err error) {
	ctx, span := b.startSpan(ctx, "RegisterCharity")
	defer func() { endSpan(span, err) }()

	if !id.IsAuthenticated() {
		return account.Charity{}, apperrors.Unauthenticated(auth.MsgNotProvided)
	}
	if fields := reg.Validate(); fields != nil {
		return account.Charity{}, apperrors.ValidationFields(fields)
	}
	c = account.Charity{
		ID:        uuid.New(),
		UserID:    id.User.ID,
		Name:      strings.TrimSpace(reg.Name),
		RegNumber: reg.RegNumber,
	}
	if err := b.Accounts.CreateCharity(ctx, c); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return account.Charity{}, apperrors.ValidationFields(map[string][]string{
				"user": {"charity with this user already exists."},
			})
		}
		return account.Charity{}, err
	}
	log.Printf("[broker.Broker] [RegisterCharity] user %s registered charity %s", id.User.ID, c.ID)
	return c, nil
}

// RegisterBenefactor attaches a benefactor record to the authenticated caller.
func (b *Broker) RegisterBenefactor(ctx context.Context, id account.Identity, reg account.BenefactorRegistration) (ben account.Benefactor, err error) {
	ctx, span := b.startSpan(ctx, "RegisterBenefactor")
	defer func() { endSpan(span, err) }()

	if !id.IsAuthenticated() {
		return account.Benefactor{}, apperrors.Unauthenticated(auth.MsgNotProvided)
	}
	if fields := reg.Validate(); fields != nil {
		return account.Benefactor{}, apperrors.ValidationFields(fields)
	}
	ben = account.Benefactor{
		ID:              uuid.New(),
		UserID:          id.User.ID,
		Experience:      reg.Experience,
		FreeTimePerWeek: reg.FreeTimePerWeek,
	}
	if err := b.Accounts.CreateBenefactor(ctx, ben); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return account.Benefactor{}, apperrors.ValidationFields(map[string][]string{
				"user": {"benefactor with this user already exists."},
			})
		}
		return account.Benefactor{}, err
	}
	log.Printf("[broker.Broker] [RegisterBenefactor] user %s registered benefactor %s", id.User.ID, ben.ID)
	return ben, nil
}
