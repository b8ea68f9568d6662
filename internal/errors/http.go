package errors

import (
	"errors"

	"github.com/emberleaf/emberleaf/internal/errors/i18n"
)

// DefaultLocale is the default locale for error messages.
const DefaultLocale = "en-US"

// Response is the wire shape for an error returned to API clients.
type Response struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Locale   string            `json:"locale"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// HandleError converts a domain error to an HTTP status plus response body.
// The user-facing message comes from the i18n catalog for the given locale,
// defaulting to en-US if the locale is empty or unsupported.
func HandleError(err error, locale string) (int, Response) {
	if locale == "" {
		locale = DefaultLocale
	}
	catalog := i18n.GetCatalog(locale)

	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code.HTTPStatus(), Response{
			Code:     string(appErr.Code),
			Message:  catalog.Format(string(appErr.Code), appErr.Metadata),
			Locale:   catalog.Locale(),
			Metadata: appErr.Metadata,
		}
	}

	// Unknown error: return internal with a generic message.
	return CodeUnknown.HTTPStatus(), Response{
		Code:    string(CodeUnknown),
		Message: catalog.Format(string(CodeUnknown), nil),
		Locale:  catalog.Locale(),
	}
}
