package checkout

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/safar/mute-store/internal/apperr"
	"github.com/safar/mute-store/internal/models"
)

const MinPhoneLength = 10

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	validate     = validator.New()
)

type Card struct {
	Number string `validate:"required"`
	Expiry string `validate:"required"`
	CVC    string `validate:"required"`
}

// Form is the shipping and payment input collected on the confirm screen.
// Email is only used when no signed-in session provides one.
type Form struct {
	FullName string           `validate:"required"`
	Email    string           `validate:"-"`
	Phone    string           `validate:"required,min=10"`
	Address  string           `validate:"required"`
	Location *models.Location `validate:"required"`
	Card     Card
}

// Field messages, keyed by struct namespace. Order of the struct fields is
// the order failures are reported in.
var fieldMessages = map[string]string{
	"Form.FullName":    "Full name is required.",
	"Form.Phone":       "Phone number is required.",
	"Form.Address":     "Shipping address is required.",
	"Form.Location":    "Select a delivery location on the map.",
	"Form.Card.Number": "Card number is required.",
	"Form.Card.Expiry": "Card expiry date is required.",
	"Form.Card.CVC":    "Card CVC is required.",
}

const phoneLengthMessage = "Phone number must have at least 10 characters."

func IsValidEmail(s string) bool {
	return emailPattern.MatchString(strings.TrimSpace(s))
}

// IsValidPhone counts characters, the same measure the form's min tag uses.
func IsValidPhone(s string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(s)) >= MinPhoneLength
}

func IsValidCard(card Card) bool {
	return strings.TrimSpace(card.Number) != "" &&
		strings.TrimSpace(card.Expiry) != "" &&
		strings.TrimSpace(card.CVC) != ""
}

func CanSubmit(form Form) bool {
	return Validate(form) == nil
}

// Validate reports the first problem with form. Missing fields win over
// format problems, so a form with a short phone and no address reports the
// address.
func Validate(form Form) error {
	err := validate.Struct(form.normalized())
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return apperr.Wrap(apperr.CodeValidation, err, "invalid checkout form")
	}

	first := fieldErrs[0]
	for _, fe := range fieldErrs {
		if fe.Tag() == "required" {
			first = fe
			break
		}
	}
	return apperr.New(apperr.CodeValidation, messageFor(first)).
		WithDetails(map[string]string{"field": first.StructNamespace()})
}

func messageFor(fe validator.FieldError) string {
	if fe.Tag() == "min" && fe.StructNamespace() == "Form.Phone" {
		return phoneLengthMessage
	}
	if msg, ok := fieldMessages[fe.StructNamespace()]; ok {
		return msg
	}
	return "Invalid checkout form."
}

func (f Form) normalized() Form {
	f.FullName = strings.TrimSpace(f.FullName)
	f.Email = strings.TrimSpace(f.Email)
	f.Phone = strings.TrimSpace(f.Phone)
	f.Address = strings.TrimSpace(f.Address)
	f.Card.Number = strings.TrimSpace(f.Card.Number)
	f.Card.Expiry = strings.TrimSpace(f.Card.Expiry)
	f.Card.CVC = strings.TrimSpace(f.Card.CVC)
	return f
}

// MaskedCard is what leaves the device in place of the card number.
func MaskedCard(number string) string {
	digits := make([]rune, 0, len(number))
	for _, r := range number {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) < 4 {
		return "tarjeta"
	}
	return "tarjeta **** " + string(digits[len(digits)-4:])
}
