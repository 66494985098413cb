package apperr

import (
	stderrors "errors"
	"net/http"
	"strings"

	apperrors "github.com/goliatone/go-errors"
)

const (
	CodeForbidden        = "FORBIDDEN"
	CodeNotFound         = "NOT_FOUND"
	CodeInvalidState     = "INVALID_STATE"
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeConflict         = "CONFLICT"
	CodeInternal         = "INTERNAL"
)

var (
	ErrForbidden = apperrors.New("you are not allowed to perform this action", apperrors.CategoryBadInput).
			WithTextCode(CodeForbidden)
	ErrNotFound = apperrors.New("resource not found", apperrors.CategoryBadInput).
			WithTextCode(CodeNotFound)
	ErrInvalidState = apperrors.New("action not allowed in current state", apperrors.CategoryBadInput).
			WithTextCode(CodeInvalidState)
	ErrValidationFailed = apperrors.New("validation failed", apperrors.CategoryValidation).
				WithTextCode(CodeValidationFailed)
	ErrConflict = apperrors.New("resource was modified concurrently", apperrors.CategoryConflict).
			WithTextCode(CodeConflict)
	ErrInternal = apperrors.New("internal server error", apperrors.CategoryHandler).
			WithTextCode(CodeInternal)
)

// Fields is a per-field validation message map.
type Fields map[string]string

func (f Fields) Error() string {
	parts := make([]string, 0, len(f))
	for k, v := range f {
		parts = append(parts, k+": "+v)
	}
	return strings.Join(parts, "; ")
}

func clone(base *apperrors.Error, message string, source error, metadata map[string]any) *apperrors.Error {
	err := base.Clone()
	if text := strings.TrimSpace(message); text != "" {
		err.Message = text
	}
	if source != nil {
		err.Source = source
	}
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

func Forbidden(message string) error {
	return clone(ErrForbidden, message, nil, nil)
}

func NotFound(entity string) error {
	return clone(ErrNotFound, entity+" not found", nil, map[string]any{"entity": entity})
}

func InvalidState(message string, current string) error {
	return clone(ErrInvalidState, message, nil, map[string]any{"current_state": current})
}

// Validation builds a ValidationFailed error carrying the field map.
func Validation(fields Fields) error {
	return clone(ErrValidationFailed, "", fields, nil)
}

// Field is shorthand for a single-field validation failure.
func Field(name, message string) error {
	return Validation(Fields{name: message})
}

func Conflict(message string) error {
	return clone(ErrConflict, message, nil, nil)
}

// Internal wraps an unexpected failure. The source is kept for logging only.
func Internal(source error) error {
	return clone(ErrInternal, "", source, nil)
}

// Code returns the text code of err, or empty when err is not typed.
func Code(err error) string {
	var ge *apperrors.Error
	if stderrors.As(err, &ge) {
		return ge.TextCode
	}
	return ""
}

func Is(err error, code string) bool {
	return Code(err) == code
}

// FieldsOf extracts the validation field map, if any.
func FieldsOf(err error) Fields {
	var ge *apperrors.Error
	if !stderrors.As(err, &ge) {
		return nil
	}
	if fields, ok := ge.Source.(Fields); ok {
		return fields
	}
	return nil
}

// Message is the client-safe message for err.
func Message(err error) string {
	var ge *apperrors.Error
	if stderrors.As(err, &ge) && ge.TextCode != CodeInternal && ge.TextCode != "" {
		return ge.Message
	}
	return ErrInternal.Message
}

// HTTPStatus maps an error to its transport status. Untyped errors are 500.
func HTTPStatus(err error) int {
	switch Code(err) {
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidState:
		return http.StatusBadRequest
	case CodeValidationFailed:
		return http.StatusUnprocessableEntity
	case CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
