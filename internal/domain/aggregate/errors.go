package aggregate

import (
	"errors"
	"fmt"
)

// ValidationError reports a precondition violation on an aggregate mutation.
// The aggregate is left unchanged; the error is surfaced to the caller and
// never retried.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func validationErr(code, format string, args ...any) error {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validation error codes.
const (
	CodeInvalidStatus    = "invalid_status"
	CodeMissingField     = "missing_field"
	CodeSchedulePending  = "schedule_pending"
	CodeInvalidSaleValue = "invalid_sale_value"
	CodeInvalidPrice     = "invalid_price"
	CodeSlugTaken        = "slug_taken"
	CodeSlugNotHeld      = "slug_not_held"
	CodeUnknownProduct   = "unknown_product"
	CodeInvalidPosition  = "invalid_position"
	CodePolicyRejected   = "policy_rejected"
)
