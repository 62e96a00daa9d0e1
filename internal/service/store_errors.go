package service

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/sma-attendance-api/internal/repository"
	"github.com/noah-isme/sma-attendance-api/pkg/docstore"
	appErrors "github.com/noah-isme/sma-attendance-api/pkg/errors"
)

// storeError translates repository and document store failures. notFound is
// the message used when the addressed document is missing; action names the
// attempted operation for STORE_UNAVAILABLE.
func storeError(err error, notFound, action string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	var dup *repository.DuplicateError
	switch {
	case errors.As(err, &dup):
		if dup.Field == "code" {
			return appErrors.Clone(appErrors.ErrDuplicateCode, fmt.Sprintf("code %q already exists", dup.Value))
		}
		return appErrors.Clone(appErrors.ErrDuplicateName, fmt.Sprintf("%q already exists", dup.Value))
	case errors.Is(err, docstore.ErrNotFound):
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	case errors.Is(err, repository.ErrActiveMismatch):
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "the active session changed; reload and retry")
	case errors.Is(err, repository.ErrInactiveScope):
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "the session is no longer active; reload and retry")
	case errors.Is(err, docstore.ErrInvalidPath):
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return appErrors.Unavailable(err, "failed to "+action)
}

func validationError(err error, message string) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		message = fmt.Sprintf("%s: %s failed on %s", message, verrs[0].Field(), verrs[0].Tag())
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}
