// Package apperror defines the relay's error taxonomy and maps validation errors to API messages.
package apperror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
)

var (
	ErrInvalidIdentifier  = errors.New("invalid identifier")
	ErrInvalidURL         = errors.New("invalid url")
	ErrNotFound           = errors.New("not found")
	ErrIntegrity          = errors.New("integrity check failed")
	ErrIO                 = errors.New("persistence failure")
	ErrDelivery           = errors.New("delivery failed")
	ErrNotAuthorized      = errors.New("number is not whitelisted")
	ErrGatewayUnavailable = errors.New("messaging gateway unavailable")
)

var (
	errRequired         = errors.New("is required")
	errInvalidPhone     = errors.New("must be a phone number such as +55 11 99999-9999")
	errInvalidKind      = errors.New("must be one of text, image, document, audio, video, location")
	errRequiredLocation = errors.New("is required for location messages")
)

var customErrors = map[string]error{
	"AddNumberRequest.Number.required":    errRequired,
	"AddWebhookRequest.URL.required":      errRequired,
	"SendRequest.Number.required":         errRequired,
	"SendRequest.Number.phone":            errInvalidPhone,
	"SendRequest.Message.required_unless": errRequired,
	"SendRequest.Type.oneof":              errInvalidKind,
	"SendRequest.Latitude.required_if":    errRequiredLocation,
	"SendRequest.Longitude.required_if":   errRequiredLocation,
	"InboundMessage.From.required":        errRequired,
}

// CustomValidationError converts validator errors into a list of field messages.
func CustomValidationError(err error) []map[string]string {
	errList := make([]map[string]string, 0)

	var (
		validationErr validator.ValidationErrors
	)

	switch {
	case errors.As(err, &validationErr):
		for _, e := range validationErr {
			field := e.StructNamespace()
			key := field + "." + e.Tag()

			errMsg := fmt.Sprintf("%s is invalid", field)
			if v, ok := customErrors[key]; ok {
				errMsg = v.Error()
			}

			errList = append(errList, map[string]string{e.Field(): errMsg})
		}
	}
	return errList
}

// HTTPStatus picks the response status for an error returned by a relay operation.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidIdentifier), errors.Is(err, ErrInvalidURL):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrIntegrity):
		return http.StatusConflict
	case errors.Is(err, ErrGatewayUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
