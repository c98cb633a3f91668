package token

import (
	"math/bits"

	"github.com/veilmint/veilmint/errors"
)

// MaxOrder bounds the supported denominations: a keyset carries one key per
// power of two from 2^0 up to 2^(MaxOrder-1).
const MaxOrder = 64

// IsValidDenomination reports whether amount is a supported power of two.
func IsValidDenomination(amount uint64) bool {
	return amount != 0 && amount&(amount-1) == 0
}

// Partition decomposes amount into its canonical power-of-two denominations,
// smallest first: one entry per set bit of the binary representation.
func Partition(amount uint64) ([]uint64, error) {
	if amount == 0 {
		return nil, errors.ErrInvalidAmount
	}
	result := make([]uint64, 0, bits.OnesCount64(amount))
	for i := 0; i < 64; i++ {
		if amount&(1<<uint(i)) != 0 {
			result = append(result, 1<<uint(i))
		}
	}
	return result, nil
}

// NumBlankOutputs returns how many blank outputs a wallet must supply so
// that any overpaid fee up to feeReserve can be returned as change:
// max(ceil(log2(feeReserve)), 1), and 0 when no fee reserve is charged.
func NumBlankOutputs(feeReserve uint64) int {
	if feeReserve == 0 {
		return 0
	}
	n := bits.Len64(feeReserve - 1)
	if n < 1 {
		n = 1
	}
	return n
}

// ChangeAmounts assigns the overpaid value to at most numBlanks change
// outputs. When the decomposition needs more entries than blanks were
// provided, the largest denominations win and the remainder is forfeited.
func ChangeAmounts(overpaid uint64, numBlanks int) []uint64 {
	if overpaid == 0 || numBlanks <= 0 {
		return nil
	}
	parts, err := Partition(overpaid)
	if err != nil {
		return nil
	}
	if len(parts) > numBlanks {
		parts = parts[len(parts)-numBlanks:]
	}
	return parts
}
