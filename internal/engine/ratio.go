package engine

import "math/big"

// Scale is the fixed-point denominator of every price ratio.
var Scale = big.NewInt(1_000_000_000_000_000)

// NewRatio computes the canonical (ratio, bigger token) encoding of a quote
// from its two legs: max(a, b) * Scale / min(a, b). Ties classify as B, so
// the bigger token is A only when the A leg is strictly larger. Both legs
// must be positive.
func NewRatio(aAmt, bAmt *big.Int) (*big.Int, Asset) {
	r := new(big.Int)
	if aAmt.Cmp(bAmt) > 0 {
		r.Mul(aAmt, Scale).Quo(r, bAmt)
		return r, AssetA
	}
	r.Mul(bAmt, Scale).Quo(r, aAmt)
	return r, AssetB
}

// counterAmount converts amt, denominated in `from`, into the opposite leg
// at the given ratio. Integer division truncates toward zero.
func counterAmount(ratio *big.Int, bigger Asset, from Asset, amt *big.Int) *big.Int {
	c := new(big.Int)
	if from == bigger {
		return c.Mul(amt, Scale).Quo(c, ratio)
	}
	return c.Mul(amt, ratio).Quo(c, Scale)
}

// better reports whether x is strictly better than y under the price order
// of the given book side.
//
// Asks: within the A class a greater ratio wins (more A given per unit B),
// within the B class a smaller ratio wins (less B demanded per unit A), and
// the B class outranks the A class outright. Bids invert every one of those
// comparisons.
func better(side Side, xRatio *big.Int, xBigger Asset, yRatio *big.Int, yBigger Asset) bool {
	if xBigger != yBigger {
		if side == Ask {
			return xBigger == AssetB
		}
		return xBigger == AssetA
	}
	cmp := xRatio.Cmp(yRatio)
	greaterWins := xBigger == AssetA
	if side == Bid {
		greaterWins = !greaterWins
	}
	if greaterWins {
		return cmp > 0
	}
	return cmp < 0
}

// atLeastAsGood is the non-strict companion of better.
func atLeastAsGood(side Side, xRatio *big.Int, xBigger Asset, yRatio *big.Int, yBigger Asset) bool {
	return xBigger == yBigger && xRatio.Cmp(yRatio) == 0 ||
		better(side, xRatio, xBigger, yRatio, yBigger)
}

// crosses reports whether an incoming quote takes the resting one.
// An incoming seller of A walks the bid book and crosses same-class quotes
// whose ratio is at least its own; a seller of B walks the ask book and
// crosses same-class quotes whose ratio is at most its own. Across classes
// only the dominant class of the walked book crosses.
func crosses(sellingA bool, inRatio *big.Int, inBigger Asset, rRatio *big.Int, rBigger Asset) bool {
	if sellingA {
		if inBigger != rBigger {
			return inBigger == AssetA && rBigger == AssetB
		}
		return inRatio.Cmp(rRatio) <= 0
	}
	if inBigger != rBigger {
		return inBigger == AssetB && rBigger == AssetA
	}
	return inRatio.Cmp(rRatio) >= 0
}
