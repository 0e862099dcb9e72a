package checkout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safar/mute-store/internal/apperr"
	"github.com/safar/mute-store/internal/models"
)

func validForm() Form {
	return Form{
		FullName: "Ana López",
		Phone:    "5512345678",
		Address:  "Av. Reforma 222, CDMX",
		Location: &models.Location{Latitude: 19.43, Longitude: -99.16},
		Card:     Card{Number: "4242 4242 4242 4242", Expiry: "12/29", CVC: "123"},
	}
}

func TestIsValidEmail(t *testing.T) {
	for _, ok := range []string{"ana@example.com", "a.b+c@mute.store.mx"} {
		assert.True(t, IsValidEmail(ok), ok)
	}
	for _, bad := range []string{"", "ana", "ana@", "ana@example", "a na@example.com", "@example.com"} {
		assert.False(t, IsValidEmail(bad), bad)
	}
}

func TestIsValidPhone(t *testing.T) {
	assert.True(t, IsValidPhone("5512345678"))
	assert.True(t, IsValidPhone("+52 55 1234 5678"))
	assert.False(t, IsValidPhone("551234567"))
	assert.False(t, IsValidPhone(""))
}

func TestPhoneCheckAgreesWithCanSubmit(t *testing.T) {
	for _, phone := range []string{"ñññññ", "ññññññññññ", "5512345678", "55123456ñ", " 5512345678 "} {
		form := validForm()
		form.Phone = phone
		assert.Equalf(t, IsValidPhone(phone), CanSubmit(form), "phone %q", phone)
	}
	assert.False(t, IsValidPhone("ñññññ"))
}

func TestIsValidCard(t *testing.T) {
	assert.True(t, IsValidCard(Card{Number: "1", Expiry: "x", CVC: "y"}))
	assert.False(t, IsValidCard(Card{Number: "1", Expiry: "x"}))
	assert.False(t, IsValidCard(Card{Number: " ", Expiry: "x", CVC: "y"}))
}

func TestCanSubmit(t *testing.T) {
	assert.True(t, CanSubmit(validForm()))

	cases := map[string]func(*Form){
		"name":        func(f *Form) { f.FullName = "  " },
		"phone":       func(f *Form) { f.Phone = "" },
		"short phone": func(f *Form) { f.Phone = "123456789" },
		"address":     func(f *Form) { f.Address = "" },
		"location":    func(f *Form) { f.Location = nil },
		"card number": func(f *Form) { f.Card.Number = "" },
		"card expiry": func(f *Form) { f.Card.Expiry = "" },
		"card cvc":    func(f *Form) { f.Card.CVC = "" },
	}
	for name, breakIt := range cases {
		t.Run(name, func(t *testing.T) {
			form := validForm()
			breakIt(&form)
			assert.False(t, CanSubmit(form))
		})
	}
}

func TestValidateMissingFieldBeatsFormat(t *testing.T) {
	form := validForm()
	form.Phone = "123"
	form.Address = ""

	err := Validate(form)
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
	assert.Equal(t, "Shipping address is required.", apperr.As(err).Message())
}

func TestValidateShortPhone(t *testing.T) {
	form := validForm()
	form.Phone = "123"

	err := Validate(form)
	require.Error(t, err)
	assert.Equal(t, phoneLengthMessage, apperr.As(err).Message())
	assert.Equal(t, map[string]string{"field": "Form.Phone"}, apperr.As(err).Details())
}

func TestValidateReportsFirstMissingInFieldOrder(t *testing.T) {
	err := Validate(Form{})
	require.Error(t, err)
	assert.Equal(t, "Full name is required.", apperr.As(err).Message())
}

func TestMaskedCard(t *testing.T) {
	assert.Equal(t, "tarjeta **** 4242", MaskedCard("4242 4242 4242 4242"))
	assert.Equal(t, "tarjeta", MaskedCard("12"))
}
