package engine

import (
	"math/big"

	"github.com/tidwall/btree"
)

// DepthLevel aggregates the resting orders of one side that quote the same
// price, best level first.
type DepthLevel struct {
	PriceRatio  *big.Int
	BiggerToken Asset
	SellingAmt  *big.Int
	BuyingAmt   *big.Int
	Orders      int
}

type depthLevels = btree.BTreeG[*DepthLevel]

// Depth snapshots one side of the book as aggregated price levels, best
// first. maxLevels caps the result; non-positive means no cap.
func (e *Engine) Depth(side Side, maxLevels int) ([]DepthLevel, error) {
	if !e.busy.CompareAndSwap(false, true) {
		return nil, ErrReentrantCall
	}
	defer e.busy.Store(false)

	// Sorted best level first.
	levels := btree.NewBTreeG(func(a, b *DepthLevel) bool {
		return better(side, a.PriceRatio, a.BiggerToken, b.PriceRatio, b.BiggerToken)
	})
	for id := e.book.Front(side); id != 0; id = e.book.NextOf(id, side) {
		o, err := e.store.Get(id)
		if err != nil {
			return nil, err
		}
		e.accumulate(levels, o)
	}

	out := make([]DepthLevel, 0, levels.Len())
	levels.Scan(func(l *DepthLevel) bool {
		out = append(out, *l)
		return maxLevels <= 0 || len(out) < maxLevels
	})
	return out, nil
}

func (e *Engine) accumulate(levels *depthLevels, o *Order) {
	probe := &DepthLevel{PriceRatio: o.PriceRatio, BiggerToken: o.BiggerToken}
	if l, ok := levels.GetMut(probe); ok {
		l.SellingAmt.Add(l.SellingAmt, o.SellingAmt)
		l.BuyingAmt.Add(l.BuyingAmt, o.BuyingAmt)
		l.Orders++
		return
	}
	levels.Set(&DepthLevel{
		PriceRatio:  new(big.Int).Set(o.PriceRatio),
		BiggerToken: o.BiggerToken,
		SellingAmt:  new(big.Int).Set(o.SellingAmt),
		BuyingAmt:   new(big.Int).Set(o.BuyingAmt),
		Orders:      1,
	})
}
