package account

import (
	"regexp"
	"strings"
)

const (
	msgRequired = "This field is required."
	maxUsername = 150
	maxName     = 50
	minPassword = 8
)

var (
	usernamePattern  = regexp.MustCompile(`^[\w.@+-]+$`)
	emailPattern     = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	regNumberPattern = regexp.MustCompile(`^\d{10}$`)
)

// FieldErrors collects validation messages per JSON field.
type FieldErrors map[string][]string

// Add appends msg to field.
func (f FieldErrors) Add(field, msg string) {
	f[field] = append(f[field], msg)
}

// Err returns nil when nothing was collected.
func (f FieldErrors) Err() map[string][]string {
	if len(f) == 0 {
		return nil
	}
	return f
}

// Registration is the payload of a user sign-up.
type Registration struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Phone       string `json:"phone"`
	Address     string `json:"address"`
	Gender      string `json:"gender"`
	Age         *int   `json:"age"`
	Description string `json:"description"`
}

// Validate checks the registration fields. Username uniqueness is checked
// by the store.
func (r Registration) Validate() map[string][]string {
	errs := FieldErrors{}
	username := strings.TrimSpace(r.Username)
	switch {
	case username == "":
		errs.Add("username", msgRequired)
	case len(username) > maxUsername:
		errs.Add("username", "Ensure this field has no more than 150 characters.")
	case !usernamePattern.MatchString(username):
		errs.Add("username", "Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters.")
	}
	if r.Password == "" {
		errs.Add("password", msgRequired)
	} else if len(r.Password) < minPassword {
		errs.Add("password", "Ensure this field has at least 8 characters.")
	}
	if r.Email != "" && !emailPattern.MatchString(r.Email) {
		errs.Add("email", "Enter a valid email address.")
	}
	if len(r.FirstName) > maxName {
		errs.Add("first_name", "Ensure this field has no more than 50 characters.")
	}
	if len(r.LastName) > maxName {
		errs.Add("last_name", "Ensure this field has no more than 50 characters.")
	}
	if r.Gender != "" && r.Gender != "M" && r.Gender != "F" {
		errs.Add("gender", `"`+r.Gender+`" is not a valid choice.`)
	}
	if r.Age != nil && *r.Age < 0 {
		errs.Add("age", "Ensure this value is greater than or equal to 0.")
	}
	return errs.Err()
}

// CharityRegistration is the payload of a charity sign-up.
type CharityRegistration struct {
	Name      string `json:"name"`
	RegNumber string `json:"reg_number"`
}

func (r CharityRegistration) Validate() map[string][]string {
	errs := FieldErrors{}
	name := strings.TrimSpace(r.Name)
	if name == "" {
		errs.Add("name", msgRequired)
	} else if len(name) > maxName {
		errs.Add("name", "Ensure this field has no more than 50 characters.")
	}
	if r.RegNumber == "" {
		errs.Add("reg_number", msgRequired)
	} else if !regNumberPattern.MatchString(r.RegNumber) {
		errs.Add("reg_number", "Registration number must be exactly 10 digits.")
	}
	return errs.Err()
}

// BenefactorRegistration is the payload of a benefactor sign-up.
type BenefactorRegistration struct {
	Experience      int `json:"experience"`
	FreeTimePerWeek int `json:"free_time_per_week"`
}

func (r BenefactorRegistration) Validate() map[string][]string {
	errs := FieldErrors{}
	if r.Experience < ExperienceBeginner || r.Experience > ExperienceExpert {
		errs.Add("experience", "Experience must be 0, 1 or 2.")
	}
	if r.FreeTimePerWeek < 0 {
		errs.Add("free_time_per_week", "Ensure this value is greater than or equal to 0.")
	}
	return errs.Err()
}
