package contract

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/optiondesk/paper-engine/internal/model"
)

var expiry = time.Date(2026, 9, 18, 0, 0, 0, 0, time.UTC)

func TestFormat_Call(t *testing.T) {
	sym, err := Format("SPY", expiry, model.OptionCall, decimal.NewFromInt(450))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sym != "SPY260918C00450000" {
		t.Errorf("expected SPY260918C00450000, got %s", sym)
	}
}

func TestFormat_PutWithFractionalStrike(t *testing.T) {
	sym, err := Format("aapl", expiry, model.OptionPut, decimal.NewFromFloat(182.5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sym != "AAPL260918P00182500" {
		t.Errorf("expected AAPL260918P00182500, got %s", sym)
	}
}

func TestFormat_InvalidUnderlying(t *testing.T) {
	_, err := Format("TOOLONGSYM", expiry, model.OptionCall, decimal.NewFromInt(100))
	if !errors.Is(err, ErrInvalidUnderlying) {
		t.Errorf("expected ErrInvalidUnderlying, got %v", err)
	}
}

func TestFormat_InvalidOptionType(t *testing.T) {
	_, err := Format("SPY", expiry, model.OptionType("straddle"), decimal.NewFromInt(100))
	if !errors.Is(err, ErrInvalidOptionType) {
		t.Errorf("expected ErrInvalidOptionType, got %v", err)
	}
}

func TestFormat_NonPositiveStrike(t *testing.T) {
	_, err := Format("SPY", expiry, model.OptionCall, decimal.Zero)
	if !errors.Is(err, ErrInvalidStrike) {
		t.Errorf("expected ErrInvalidStrike, got %v", err)
	}
}

func TestParse_RoundTrip(t *testing.T) {
	sym, err := Format("QQQ", expiry, model.OptionPut, decimal.NewFromFloat(380.5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	opt, err := Parse(sym)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if opt.Underlying != "QQQ" {
		t.Errorf("expected underlying QQQ, got %s", opt.Underlying)
	}
	if !opt.Expiry.Equal(time.Date(2026, 9, 18, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("expected expiry 2026-09-18, got %s", opt.Expiry)
	}
	if opt.Type != model.OptionPut {
		t.Errorf("expected put, got %s", opt.Type)
	}
	if !opt.Strike.Equal(decimal.NewFromFloat(380.5)) {
		t.Errorf("expected strike 380.5, got %s", opt.Strike)
	}
}

func TestParse_InvalidSymbol(t *testing.T) {
	for _, sym := range []string{"", "SPY", "SPY260918X00450000", "spy260918C00450000"} {
		if _, err := Parse(sym); !errors.Is(err, ErrInvalidSymbol) {
			t.Errorf("%q: expected ErrInvalidSymbol, got %v", sym, err)
		}
	}
}
