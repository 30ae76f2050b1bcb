// Package account holds the users of the broker and the charity and
// benefactor roles they may register for.
package account

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Email        string    `json:"email,omitempty"`
	FirstName    string    `json:"first_name,omitempty"`
	LastName     string    `json:"last_name,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	Address      string    `json:"address,omitempty"`
	Gender       string    `json:"gender,omitempty"`
	Age          *int      `json:"age,omitempty"`
	Description  string    `json:"description,omitempty"`
	DateJoined   time.Time `json:"date_joined"`
}

// storedUser is the persisted form of a User. PasswordHash is hidden from
// API responses but has to survive a round trip through the stores.
type storedUser struct {
	User
	PasswordHash string `json:"password_hash"`
}

// MarshalUser encodes u, password hash included, for storage.
func MarshalUser(u User) ([]byte, error) {
	return json.Marshal(storedUser{User: u, PasswordHash: u.PasswordHash})
}

// UnmarshalUser is the inverse of MarshalUser.
func UnmarshalUser(data []byte) (User, error) {
	var s storedUser
	if err := json.Unmarshal(data, &s); err != nil {
		return User{}, err
	}
	u := s.User
	u.PasswordHash = s.PasswordHash
	return u, nil
}

// SetPassword hashes password with bcrypt and stores the hash on u.
func (u *User) SetPassword(password string, cost int) error {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = string(hash)
	return nil
}

// CheckPassword reports whether password matches the stored hash.
func (u User) CheckPassword(password string) bool {
	if u.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// Charity is the organisation a user registers to post tasks.
type Charity struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Name      string    `json:"name"`
	RegNumber string    `json:"reg_number"`
}

// Experience levels a benefactor may declare.
const (
	ExperienceBeginner     = 0
	ExperienceIntermediate = 1
	ExperienceExpert       = 2
)

// Benefactor is the role a user registers to perform tasks.
type Benefactor struct {
	ID              uuid.UUID `json:"id"`
	UserID          uuid.UUID `json:"user_id"`
	Experience      int       `json:"experience"`
	FreeTimePerWeek int       `json:"free_time_per_week"`
}

// Identity is an authenticated user together with the role records they own.
type Identity struct {
	User       User
	Charity    *Charity
	Benefactor *Benefactor
}

// IsAuthenticated reports whether the identity belongs to a known user.
func (id Identity) IsAuthenticated() bool {
	return id.User.ID != uuid.Nil
}

// IsCharityOwner reports whether the user owns a charity.
func (id Identity) IsCharityOwner() bool {
	return id.IsAuthenticated() && id.Charity != nil
}

// IsBenefactor reports whether the user is registered as a benefactor.
func (id Identity) IsBenefactor() bool {
	return id.IsAuthenticated() && id.Benefactor != nil
}

// OwnsCharity reports whether charityID is the caller's charity.
func (id Identity) OwnsCharity(charityID uuid.UUID) bool {
	return id.IsCharityOwner() && id.Charity.ID == charityID
}

// NewUser builds a user from a validated registration.
func NewUser(reg Registration, cost int, now time.Time) (User, error) {
	u := User{
		ID:          uuid.New(),
		Username:    strings.TrimSpace(reg.Username),
		Email:       reg.Email,
		FirstName:   reg.FirstName,
		LastName:    reg.LastName,
		Phone:       reg.Phone,
		Address:     reg.Address,
		Gender:      reg.Gender,
		Age:         reg.Age,
		Description: reg.Description,
		DateJoined:  now.UTC(),
	}
	if err := u.SetPassword(reg.Password, cost); err != nil {
		return User{}, err
	}
	return u, nil
}
