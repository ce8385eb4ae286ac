package paper

import (
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"
)

// Error codes returned in the machine-readable "code" field.
const (
	CodeMissingRequiredFields = "MISSING_REQUIRED_FIELDS"
	CodeInvalidAccountID      = "INVALID_ACCOUNT_ID"
	CodeInvalidSpreadType     = "INVALID_SPREAD_TYPE"
	CodeInvalidLegData        = "INVALID_LEG_DATA"
	CodeAccountNotFound       = "ACCOUNT_NOT_FOUND"
	CodeAccountNotActive      = "ACCOUNT_NOT_ACTIVE"
	CodeAssetNotFound         = "ASSET_NOT_FOUND"
	CodeInsufficientFunds     = "INSUFFICIENT_FUNDS"
	CodeNoOpenPosition        = "NO_OPEN_POSITION"
	CodePositionLimit         = "POSITION_LIMIT_EXCEEDED"
	CodeInternal              = "INTERNAL_ERROR"
)

// Error is the structured error returned from every endpoint. Status is
// the HTTP status it renders with; Code is stable and machine-readable.
// Internal errors never leak their underlying message: callers get the
// stable code only.
type Error struct {
	Status         int              `json:"-"`
	Code           string           `json:"code"`
	Message        string           `json:"error"`
	RequiredFunds  *decimal.Decimal `json:"requiredFunds,omitempty"`
	AvailableFunds *decimal.Decimal `json:"availableFunds,omitempty"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

func newError(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

func errMissingFields(msg string) *Error {
	return newError(http.StatusBadRequest, CodeMissingRequiredFields, msg)
}

func errInvalidAccountID() *Error {
	return newError(http.StatusBadRequest, CodeInvalidAccountID,
		"paperAccountId must be a positive integer")
}

func errInvalidSpreadType(got string) *Error {
	return newError(http.StatusBadRequest, CodeInvalidSpreadType,
		"unsupported spread type: "+got)
}

func errInvalidLegData(msg string) *Error {
	return newError(http.StatusBadRequest, CodeInvalidLegData, msg)
}

func errAccountNotFound() *Error {
	return newError(http.StatusNotFound, CodeAccountNotFound, "paper account not found")
}

func errAccountNotActive() *Error {
	return newError(http.StatusBadRequest, CodeAccountNotActive,
		"paper account is not active")
}

func errAssetNotFound() *Error {
	return newError(http.StatusNotFound, CodeAssetNotFound, "asset not found")
}

func errInsufficientFunds(required, available decimal.Decimal) *Error {
	e := newError(http.StatusBadRequest, CodeInsufficientFunds,
		"insufficient funds for debit spread")
	e.RequiredFunds = &required
	e.AvailableFunds = &available
	return e
}

func errNoOpenPosition(msg string) *Error {
	return newError(http.StatusBadRequest, CodeNoOpenPosition, msg)
}

func errPositionLimit(msg string) *Error {
	return newError(http.StatusBadRequest, CodePositionLimit, msg)
}

func errInternal() *Error {
	return newError(http.StatusInternalServerError, CodeInternal, "internal error")
}

// writeError renders a structured error as JSON.
func writeError(w http.ResponseWriter, e *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	json.NewEncoder(w).Encode(e)
}

// writeJSON renders a success payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
