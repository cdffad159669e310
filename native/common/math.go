package common

import (
	"math/big"

	"github.com/holiman/uint256"
)

// PPMDenominator is the parts-per-million scale used for split parameters.
const PPMDenominator = 1_000_000

// Scale is the fixed-point precision of reward-per-unit accumulators.
var Scale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Zero returns a fresh zero value.
func Zero() *big.Int { return big.NewInt(0) }

// Copy returns an independent copy of v, mapping nil to zero.
func Copy(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// IsPositive reports whether v is strictly greater than zero.
func IsPositive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}

// CheckAmount rejects negative values and anything beyond 256 bits.
func CheckAmount(v *big.Int) error {
	if v == nil {
		return Wrap(ErrInvalidInput, "amount required")
	}
	if v.Sign() < 0 {
		return Wrap(ErrOverflow, "negative amount %s", v)
	}
	if _, overflow := uint256.FromBig(v); overflow {
		return Wrap(ErrOverflow, "amount %s exceeds 256 bits", v)
	}
	return nil
}

// Add returns a+b, failing when the sum leaves the unsigned 256-bit range.
func Add(a, b *big.Int) (*big.Int, error) {
	x, err := toUint(a)
	if err != nil {
		return nil, err
	}
	y, err := toUint(b)
	if err != nil {
		return nil, err
	}
	sum, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, Wrap(ErrOverflow, "addition overflow")
	}
	return sum.ToBig(), nil
}

// Sub returns a-b, failing with InsufficientBalance when b exceeds a.
func Sub(a, b *big.Int) (*big.Int, error) {
	x, err := toUint(a)
	if err != nil {
		return nil, err
	}
	y, err := toUint(b)
	if err != nil {
		return nil, err
	}
	if x.Lt(y) {
		return nil, Wrap(ErrInsufficientBalance, "have %s, need %s", x.Dec(), y.Dec())
	}
	return new(uint256.Int).Sub(x, y).ToBig(), nil
}

// MulDiv computes a*b/d with a 512-bit intermediate and fails when the
// quotient does not fit into 256 bits.
func MulDiv(a, b, d *big.Int) (*big.Int, error) {
	if d == nil || d.Sign() == 0 {
		return nil, Wrap(ErrInvalidInput, "division by zero")
	}
	x, err := toUint(a)
	if err != nil {
		return nil, err
	}
	y, err := toUint(b)
	if err != nil {
		return nil, err
	}
	z, err := toUint(d)
	if err != nil {
		return nil, err
	}
	out, overflow := new(uint256.Int).MulDivOverflow(x, y, z)
	if overflow {
		return nil, Wrap(ErrOverflow, "multiplication overflow")
	}
	return out.ToBig(), nil
}

// SignedToMagnitude splits a signed delta into its direction and magnitude,
// rejecting magnitudes that do not fit the unsigned range.
func SignedToMagnitude(v *big.Int) (negative bool, magnitude *big.Int, err error) {
	if v == nil {
		return false, nil, Wrap(ErrInvalidInput, "amount required")
	}
	magnitude = new(big.Int).Abs(v)
	if _, overflow := uint256.FromBig(magnitude); overflow {
		return false, nil, Wrap(ErrOverflow, "signed amount %s out of range", v)
	}
	return v.Sign() < 0, magnitude, nil
}

// CheckPPM verifies that shares add up to PPMDenominator.
func CheckPPM(shares []uint32) error {
	if len(shares) == 0 {
		return Wrap(ErrInvalidInput, "no shares")
	}
	var sum uint64
	for _, share := range shares {
		sum += uint64(share)
	}
	if sum != PPMDenominator {
		return Wrap(ErrInvalidInput, "shares sum to %d ppm", sum)
	}
	return nil
}

// SplitPPM divides total across shares expressed in parts-per-million. The
// shares must sum to PPMDenominator. The rounding remainder goes to the last
// slot with a non-zero share, so a zero share always receives zero.
func SplitPPM(total *big.Int, shares []uint32) ([]*big.Int, error) {
	if err := CheckPPM(shares); err != nil {
		return nil, err
	}
	denom := big.NewInt(PPMDenominator)
	parts := make([]*big.Int, len(shares))
	allocated := big.NewInt(0)
	last := -1
	for i, share := range shares {
		part, err := MulDiv(total, big.NewInt(int64(share)), denom)
		if err != nil {
			return nil, err
		}
		parts[i] = part
		allocated.Add(allocated, part)
		if share > 0 {
			last = i
		}
	}
	parts[last].Add(parts[last], new(big.Int).Sub(total, allocated))
	return parts, nil
}

func toUint(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	if v.Sign() < 0 {
		return nil, Wrap(ErrOverflow, "negative operand %s", v)
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, Wrap(ErrOverflow, "operand exceeds 256 bits")
	}
	return out, nil
}
