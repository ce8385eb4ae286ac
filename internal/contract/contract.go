// Package contract handles OCC-style option contract symbols: building
// a display symbol for an executed leg and parsing one back into its
// parts.
package contract

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/optiondesk/paper-engine/internal/model"
)

// symbolRegex matches: {underlying}{YYMMDD}{C|P}{strike×1000, 8 digits}
// Example: SPY250815C00450000
var symbolRegex = regexp.MustCompile(
	`^([A-Z]{1,6})(\d{6})([CP])(\d{8})$`,
)

var (
	ErrInvalidSymbol     = errors.New("contract: invalid option symbol")
	ErrInvalidUnderlying = errors.New("contract: invalid underlying symbol")
	ErrInvalidOptionType = errors.New("contract: unsupported option type")
	ErrInvalidStrike     = errors.New("contract: strike must be positive")
)

// underlyingRegex validates the root symbol: 1-6 uppercase letters.
var underlyingRegex = regexp.MustCompile(`^[A-Z]{1,6}$`)

// strikeScale converts a strike price to the 8-digit OCC field (×1000).
var strikeScale = decimal.NewFromInt(1000)

// Option is a parsed option contract.
type Option struct {
	Symbol     string           `json:"symbol"`
	Underlying string           `json:"underlying"`
	Expiry     time.Time        `json:"expiry"`
	Type       model.OptionType `json:"type"`
	Strike     decimal.Decimal  `json:"strike"`
}

// Format builds the OCC-style symbol for an option contract.
// Format: {underlying}{YYMMDD}{C|P}{strike*1000 padded to 8 digits}
func Format(underlying string, expiry time.Time, typ model.OptionType, strike decimal.Decimal) (string, error) {
	root := strings.ToUpper(strings.TrimSpace(underlying))
	if !underlyingRegex.MatchString(root) {
		return "", fmt.Errorf("%w: %q", ErrInvalidUnderlying, underlying)
	}
	if !typ.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidOptionType, typ)
	}
	if !strike.IsPositive() {
		return "", fmt.Errorf("%w: %s", ErrInvalidStrike, strike)
	}

	cp := "C"
	if typ == model.OptionPut {
		cp = "P"
	}

	strikeField := strike.Mul(strikeScale).Round(0).IntPart()
	return fmt.Sprintf("%s%s%s%08d", root, expiry.Format("060102"), cp, strikeField), nil
}

// Parse parses and validates an OCC-style option symbol.
func Parse(symbol string) (*Option, error) {
	matches := symbolRegex.FindStringSubmatch(symbol)
	if matches == nil {
		return nil, fmt.Errorf("%w: %s (expected {underlying}{YYMMDD}{C|P}{strike})",
			ErrInvalidSymbol, symbol)
	}

	expiry, err := time.Parse("060102", matches[2])
	if err != nil {
		return nil, fmt.Errorf("%w: invalid expiry in %s", ErrInvalidSymbol, symbol)
	}

	typ := model.OptionCall
	if matches[3] == "P" {
		typ = model.OptionPut
	}

	strikeField, err := decimal.NewFromString(matches[4])
	if err != nil {
		return nil, fmt.Errorf("%w: invalid strike in %s", ErrInvalidSymbol, symbol)
	}

	return &Option{
		Symbol:     symbol,
		Underlying: matches[1],
		Expiry:     expiry,
		Type:       typ,
		Strike:     strikeField.Div(strikeScale),
	}, nil
}
