package vault

import "math/bits"

// Checked unsigned arithmetic. Balances never wrap or truncate — an
// operation that would overflow fails with ErrMathOverflow instead.

// CheckedAdd returns a+b or ErrMathOverflow if the sum leaves uint64 range.
func CheckedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrMathOverflow
	}
	return sum, nil
}

// CheckedSub returns a-b or ErrMathOverflow if b > a.
func CheckedSub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrMathOverflow
	}
	return diff, nil
}
