package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/safar/mute-store/internal/apperr"
	"github.com/safar/mute-store/internal/logger"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	// Money fields validate as numbers, so gte/lte tags apply to them.
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// errorBody is the error envelope storefront clients read: {"detail": "..."}.
type errorBody struct {
	Detail string `json:"detail"`
}

type messageBody struct {
	Message string `json:"message"`
	Token   string `json:"token,omitempty"`
	ID      string `json:"id,omitempty"`
}

func respondJSON(ctx context.Context, log *logger.Logger, w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error(ctx, "encode response", err)
	}
}

// respondError writes err as {"detail": ...} with the status of its code.
// Errors that are not *apperr.Error are treated as internal and their text
// never reaches the client.
func respondError(ctx context.Context, log *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := apperr.As(err)
	if typed == nil {
		typed = apperr.Wrap(apperr.CodeInternal, err, "unexpected error")
	}
	meta := apperr.MetadataFor(typed.Code())

	fields := map[string]any{"error_code": string(typed.Code()), "status": meta.HTTPStatus}
	if d, ok := typed.Details().(map[string]string); ok {
		for k, v := range d {
			fields["field."+k] = v
		}
	}
	ctx = log.WithFields(ctx, fields)
	if meta.HTTPStatus >= http.StatusInternalServerError {
		log.Error(ctx, "request.error", err)
	} else {
		log.Warn(ctx, "request.rejected")
	}

	respondJSON(ctx, log, w, meta.HTTPStatus, errorBody{Detail: apperr.PublicMessage(typed)})
}

// decodeJSONBody reads one JSON document into dest and runs struct
// validation. Unknown fields are ignored so payloads carrying card data are
// accepted and the card never reaches storage.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dest any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer io.Copy(io.Discard, body)

	if err := json.NewDecoder(body).Decode(dest); err != nil {
		return apperr.Wrap(apperr.CodeValidation, err, "Cuerpo de la solicitud inválido")
	}
	if err := validate.Struct(dest); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

func formatValidationErrors(err error) error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return apperr.Wrap(apperr.CodeValidation, err, "Datos inválidos")
	}
	details := make(map[string]string, len(errs))
	for _, fe := range errs {
		details[fe.Namespace()] = validationMessage(fe)
	}
	first := errs[0]
	return apperr.New(apperr.CodeValidation, fmt.Sprintf("%s: %s", first.Field(), validationMessage(first))).WithDetails(details)
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "es obligatorio"
	case "min":
		return fmt.Sprintf("debe ser al menos %s", fe.Param())
	case "email":
		return "debe ser un correo válido"
	case "gte":
		return fmt.Sprintf("debe ser mayor o igual a %s", fe.Param())
	}
	return "no es válido"
}
