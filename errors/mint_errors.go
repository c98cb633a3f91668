package errors

import (
	"fmt"

	"github.com/veilmint/veilmint/jsonx"
)

// MintErrorCode represents standardized error codes for mint operations
type MintErrorCode string

const (
	// General errors
	ErrCodeInternal MintErrorCode = "internal_error"

	// Protocol errors
	ErrCodeInvalidPoint        = "invalid_point"
	ErrCodeUnknownDenomination = "unknown_denomination"
	ErrCodeInvalidSignature    = "invalid_signature"
	ErrCodeAlreadySpent        = "already_spent"
	ErrCodeAmountMismatch      = "amount_mismatch"
	ErrCodeInvalidAmount       = "invalid_amount"

	// Request validation errors
	ErrCodeEmptyInputs         = "empty_inputs"
	ErrCodeEmptyOutputs        = "empty_outputs"
	ErrCodeEmptySecret         = "empty_secret"
	ErrCodeSecretTooLong       = "secret_too_long"
	ErrCodeDuplicateInput      = "duplicate_input"
	ErrCodeDuplicateOutput     = "duplicate_output"
	ErrCodeOutputAlreadySigned = "output_already_signed"
	ErrCodeUnknownKeyset       = "unknown_keyset"
	ErrCodeInactiveKeyset      = "inactive_keyset"
	ErrCodeMixedKeysets        = "mixed_keysets"
	ErrCodeProofPending        = "proof_pending"

	// Quote lifecycle errors
	ErrCodeQuoteNotFound      = "quote_not_found"
	ErrCodeQuoteNotPaid       = "quote_not_paid"
	ErrCodeQuoteAlreadyIssued = "quote_already_issued"
	ErrCodeQuoteExpired       = "quote_expired"
	ErrCodeQuotePending       = "quote_pending"
	ErrCodeQuoteAlreadyPaid   = "quote_already_paid"

	// Settlement errors
	ErrCodeInsufficientFee = "insufficient_fee"
	ErrCodePaymentFailed   = "payment_failed"
	ErrCodeUnsupportedUnit = "unsupported_unit"
)

// MintError represents a standardized mint error
type MintError struct {
	Code    MintErrorCode `json:"code"`
	Message string        `json:"message"`
}

// Error implements the error interface
func (e *MintError) Error() string {
	err, _ := jsonx.Marshal(MintError{
		Code:    e.Code,
		Message: e.Message,
	})
	return string(err)
}

// Is matches mint errors by code so callers can compare against the
// sentinel values below regardless of the message carried.
func (e *MintError) Is(target error) bool {
	t, ok := target.(*MintError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Sentinel errors for the protocol taxonomy. Compare with errors.Is.
var (
	ErrInvalidPoint        = &MintError{Code: ErrCodeInvalidPoint, Message: "point is not on the curve"}
	ErrUnknownDenomination = &MintError{Code: ErrCodeUnknownDenomination, Message: "denomination is not supported by the keyset"}
	ErrInvalidSignature    = &MintError{Code: ErrCodeInvalidSignature, Message: "proof failed signature verification"}
	ErrAlreadySpent        = &MintError{Code: ErrCodeAlreadySpent, Message: "token has already been spent"}
	ErrAmountMismatch      = &MintError{Code: ErrCodeAmountMismatch, Message: "input and output amounts do not match"}
	ErrInvalidAmount       = &MintError{Code: ErrCodeInvalidAmount, Message: "amount is invalid or zero"}

	ErrEmptyInputs         = &MintError{Code: ErrCodeEmptyInputs, Message: "no input proofs provided"}
	ErrEmptyOutputs        = &MintError{Code: ErrCodeEmptyOutputs, Message: "no outputs provided"}
	ErrEmptySecret         = &MintError{Code: ErrCodeEmptySecret, Message: "proof carries no secret"}
	ErrSecretTooLong       = &MintError{Code: ErrCodeSecretTooLong, Message: "secret exceeds maximum length"}
	ErrDuplicateInput      = &MintError{Code: ErrCodeDuplicateInput, Message: "duplicate proofs in request"}
	ErrDuplicateOutput     = &MintError{Code: ErrCodeDuplicateOutput, Message: "duplicate outputs in request"}
	ErrOutputAlreadySigned = &MintError{Code: ErrCodeOutputAlreadySigned, Message: "output has already been signed"}
	ErrUnknownKeyset       = &MintError{Code: ErrCodeUnknownKeyset, Message: "keyset is not known to this mint"}
	ErrInactiveKeyset      = &MintError{Code: ErrCodeInactiveKeyset, Message: "keyset is not active for issuance"}
	ErrMixedKeysets        = &MintError{Code: ErrCodeMixedKeysets, Message: "outputs reference more than one keyset"}
	ErrProofPending        = &MintError{Code: ErrCodeProofPending, Message: "proof is locked by an in-flight operation"}

	ErrQuoteNotFound      = &MintError{Code: ErrCodeQuoteNotFound, Message: "quote could not be found"}
	ErrQuoteNotPaid       = &MintError{Code: ErrCodeQuoteNotPaid, Message: "quote has not been paid"}
	ErrQuoteAlreadyIssued = &MintError{Code: ErrCodeQuoteAlreadyIssued, Message: "tokens were already issued for this quote"}
	ErrQuoteExpired       = &MintError{Code: ErrCodeQuoteExpired, Message: "quote has expired"}
	ErrQuotePending       = &MintError{Code: ErrCodeQuotePending, Message: "quote payment is in flight"}
	ErrQuoteAlreadyPaid   = &MintError{Code: ErrCodeQuoteAlreadyPaid, Message: "quote has already been paid"}

	ErrInsufficientFee = &MintError{Code: ErrCodeInsufficientFee, Message: "provided amount does not cover quote amount and fee reserve"}
	ErrPaymentFailed   = &MintError{Code: ErrCodePaymentFailed, Message: "backend payment failed"}
	ErrUnsupportedUnit = &MintError{Code: ErrCodeUnsupportedUnit, Message: "unit is not supported by this mint"}
)

// NewError creates a new MintError and returns it as error interface
func NewError(code MintErrorCode, message string) error {
	return &MintError{
		Code:    code,
		Message: message,
	}
}

// NewErrorf creates a new MintError with a formatted message
func NewErrorf(code MintErrorCode, format string, args ...interface{}) error {
	return &MintError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}
