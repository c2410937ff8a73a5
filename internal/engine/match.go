package engine

import "math/big"

// matchCrossing walks the opposite-side book from the front, settling
// against every crossing order until the incoming selling side is exhausted
// or the front no longer crosses. One settlement per resting order, then the
// walk advances; truncation remainders too small to buy a single unit end
// the walk. The returned remainders may sit off the exact incoming ratio by
// one unit — the admission path repairs that before resting anything.
func (e *Engine) matchCrossing(taker string, ratio *big.Int, bigger Asset, sellingA bool, aAmt, bAmt *big.Int) (aRem, bRem *big.Int, err error) {
	aRem = new(big.Int).Set(aAmt)
	bRem = new(big.Int).Set(bAmt)

	side := Ask
	sellRem, buyRem := bRem, aRem
	if sellingA {
		side = Bid
		sellRem, buyRem = aRem, bRem
	}

	for id := e.book.Front(side); id != 0 && sellRem.Sign() > 0; {
		r, err := e.store.Get(id)
		if err != nil {
			return nil, nil, err
		}
		if !crosses(sellingA, ratio, bigger, r.PriceRatio, r.BiggerToken) {
			break
		}

		// How much of r's inventory the remaining pay amount buys at r's
		// price. The taker always trades at the resting price.
		want := counterAmount(r.PriceRatio, r.BiggerToken, r.Selling().Other(), sellRem)
		if want.Sign() == 0 {
			break
		}
		fill := want
		if r.SellingAmt.Cmp(fill) < 0 {
			fill = new(big.Int).Set(r.SellingAmt)
		}

		next := e.book.NextOf(id, side)
		cost, retired, err := e.buy(taker, id, fill)
		if err != nil {
			return nil, nil, err
		}
		subClamped(sellRem, cost)
		subClamped(buyRem, fill)
		if retired {
			e.book.Unlink(id, side)
			e.store.Remove(id)
		}
		id = next
	}
	return aRem, bRem, nil
}

// takeWalk sweeps the book buying with amt of the pay asset and no price
// limit. Spending A lifts bids (they buy A); spending B lifts asks.
func (e *Engine) takeWalk(taker string, amt *big.Int, spendingA bool) (*big.Int, error) {
	side := Ask
	if spendingA {
		side = Bid
	}

	rem := new(big.Int).Set(amt)
	for id := e.book.Front(side); id != 0 && rem.Sign() > 0; {
		r, err := e.store.Get(id)
		if err != nil {
			return nil, err
		}

		var fill *big.Int
		if rem.Cmp(r.BuyingAmt) >= 0 {
			fill = new(big.Int).Set(r.SellingAmt)
		} else {
			fill = new(big.Int).Mul(rem, r.SellingAmt)
			fill.Quo(fill, r.BuyingAmt)
		}
		if fill.Sign() == 0 {
			break
		}

		next := e.book.NextOf(id, side)
		cost, retired, err := e.buy(taker, id, fill)
		if err != nil {
			return nil, err
		}
		subClamped(rem, cost)
		if retired {
			e.book.Unlink(id, side)
			e.store.Remove(id)
		}
		id = next
	}
	return rem, nil
}

// subClamped sets x to max(x - y, 0) in place.
func subClamped(x, y *big.Int) {
	x.Sub(x, y)
	if x.Sign() < 0 {
		x.SetInt64(0)
	}
}
