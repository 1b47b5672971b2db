package allocation

import (
	"fmt"
	"math/big"
	"strings"

	"allocation-generator/internal/metrics"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// Decimals token precision of every amount
const Decimals = 18

// HighAmountThreshold 1,000,000 tokens, about 1% of the total token supply.
// Amounts at or above it are logged but still accepted.
var HighAmountThreshold, _ = new(big.Int).SetString("1000000000000000000000000", 10)

// Validator validates raw address and amount columns
type Validator struct {
	logger logrus.FieldLogger
}

// NewValidator creates a validator that reports high amounts to logger
func NewValidator(logger logrus.FieldLogger) *Validator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Validator{logger: logger}
}

var defaultValidator = NewValidator(nil)

// ParseAddress parses and validates an Ethereum address, returning its
// EIP-55 checksummed form. Case variants of one address yield the same value.
func ParseAddress(value string) (string, error) {
	return defaultValidator.ParseAddress(value)
}

// ParseAmount parses and validates a token amount in base units
func ParseAmount(value string) (string, error) {
	return defaultValidator.ParseAmount(value)
}

// ParseAddress see ParseAddress
func (v *Validator) ParseAddress(value string) (string, error) {
	// Lower-casing first means a wrong checksum is never an error, only a
	// malformed value is.
	normalized := strings.ToLower(strings.TrimSpace(value))
	if !common.IsHexAddress(normalized) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, value)
	}

	address := common.HexToAddress(normalized)
	if address == (common.Address{}) {
		return "", ErrZeroAddress
	}

	return address.Hex(), nil
}

// ParseAmount see ParseAmount
func (v *Validator) ParseAmount(value string) (string, error) {
	trimmed := strings.TrimSpace(value)

	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNotANumber, value)
	}

	if amount.Sign() <= 0 {
		return "", fmt.Errorf("%w: %s", ErrNonPositiveAmount, amount.String())
	}

	if amount.Cmp(HighAmountThreshold) >= 0 {
		metrics.HighAmountWarnings.Inc()
		v.logger.WithFields(logrus.Fields{
			"amount": amount.String(),
		}).Warnf("⚠️ WARNING: high token amount detected (%s)", FormatUnits(amount, Decimals))
	}

	return amount.String(), nil
}

// FormatUnits renders a base unit amount with the given number of decimals,
// trimming trailing zeros but keeping at least one fractional digit
// (1000000000000000000000000 -> "1000000.0").
func FormatUnits(amount *big.Int, decimals int) string {
	sign := ""
	abs := new(big.Int).Set(amount)
	if abs.Sign() < 0 {
		sign = "-"
		abs.Neg(abs)
	}

	base := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole, frac := new(big.Int).QuoRem(abs, base, new(big.Int))

	fraction := frac.String()
	if len(fraction) < decimals {
		fraction = strings.Repeat("0", decimals-len(fraction)) + fraction
	}
	fraction = strings.TrimRight(fraction, "0")
	if fraction == "" {
		fraction = "0"
	}

	return sign + whole.String() + "." + fraction
}
