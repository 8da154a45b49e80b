package currency

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidCurrency = errors.New("invalid currency")
)

// minorUnits lists ISO 4217 exponents that differ from the default of two.
var minorUnits = map[string]int32{
	"JPY": 0,
	"KRW": 0,
	"VND": 0,
	"BHD": 3,
	"KWD": 3,
	"OMR": 3,
}

// Exponent returns the number of decimal places used by the currency.
func Exponent(code string) int32 {
	if exp, ok := minorUnits[strings.ToUpper(code)]; ok {
		return exp
	}
	return 2
}

// NormalizeCode upper-cases and checks a three letter ISO 4217 code.
func NormalizeCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
		}
	}
	return code, nil
}

// Normalize accepts an ISO 4217 code or a CAIP-19 style asset id
// ("eip155:8453/erc20:0x..."). Asset ids are passed through trimmed.
func Normalize(code string) (string, error) {
	code = strings.TrimSpace(code)
	if strings.Contains(code, ":") {
		return code, nil
	}
	return NormalizeCode(code)
}

// ParseAmount parses a positive decimal amount that fits the currency's
// minor unit precision.
func ParseAmount(value, code string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	if err := ValidateAmount(amount, code); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

// ValidateAmount checks that amount is positive and, for ISO currencies,
// fits the minor unit precision.
func ValidateAmount(amount decimal.Decimal, code string) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: must be positive", ErrInvalidAmount)
	}
	if strings.Contains(code, ":") {
		return nil
	}

	exp := Exponent(code)
	if !amount.Equal(amount.Truncate(exp)) {
		return fmt.Errorf("%w: %s allows at most %d decimal places", ErrInvalidAmount, code, exp)
	}
	return nil
}

// Format renders the amount with the currency's fixed precision, e.g. "10.00".
func Format(amount decimal.Decimal, code string) string {
	if strings.Contains(code, ":") {
		return amount.String()
	}
	return amount.StringFixedBank(Exponent(code))
}

// ToMinorUnits converts to the smallest currency unit using banker's rounding.
func ToMinorUnits(amount decimal.Decimal, code string) int64 {
	exp := Exponent(code)
	return amount.RoundBank(exp).Shift(exp).IntPart()
}
