package engine

import (
	"fmt"
	"math/big"
)

// buy executes a fill of q units of the resting order's selling asset.
// The taker pays the pro-rata cost in the order's buying asset plus the taker
// fee; the maker fee comes out of that cost, so the maker nets cost minus the
// maker fee. The filled units leave escrow for the taker. When
// the order is fully consumed it is deactivated here; unlinking it from the
// book stays with the caller, which owns the topology.
func (e *Engine) buy(taker string, rid uint64, q *big.Int) (cost *big.Int, retired bool, err error) {
	o, err := e.store.Get(rid)
	if err != nil {
		return nil, false, err
	}
	if q == nil || q.Sign() <= 0 {
		return nil, false, ErrZeroBuyQuantity
	}
	if q.Cmp(o.SellingAmt) > 0 {
		return nil, false, ErrQuantityExceedsOrderAmount
	}

	cost = new(big.Int).Mul(o.BuyingAmt, q)
	cost.Quo(cost, o.SellingAmt)

	den := big.NewInt(feeDenominator)
	takerFee := new(big.Int).Mul(cost, new(big.Int).SetUint64(e.takerFeeBPS))
	takerFee.Quo(takerFee, den)
	makerFee := new(big.Int).Mul(cost, new(big.Int).SetUint64(e.makerFeeBPS))
	makerFee.Quo(makerFee, den)

	payLedger := e.ledgerFor(o.Selling().Other())
	recvLedger := e.ledgerFor(o.Selling())

	fees := new(big.Int).Add(takerFee, makerFee)
	if fees.Sign() > 0 {
		if err := payLedger.TransferFrom(taker, e.feeRecipient, fees); err != nil {
			return nil, false, fmt.Errorf("%w: %v", ErrLackingFundsForFees, err)
		}
	}
	toMaker := new(big.Int).Sub(cost, makerFee)
	if toMaker.Sign() > 0 {
		if err := payLedger.TransferFrom(taker, o.Owner, toMaker); err != nil {
			return nil, false, fmt.Errorf("%w: %v", ErrLackingFundsForTransaction, err)
		}
	}
	if err := recvLedger.Transfer(taker, q); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrEscrowToBuyer, err)
	}

	o.SellingAmt.Sub(o.SellingAmt, q)
	o.BuyingAmt.Sub(o.BuyingAmt, cost)

	e.emit(OfferTake{
		ID:       rid,
		Taker:    taker,
		SellingA: o.SellingA,
		Quantity: new(big.Int).Set(q),
		Cost:     new(big.Int).Set(cost),
	})
	retired = o.SellingAmt.Sign() == 0
	if retired {
		o.Active = false
		e.emit(DeleteOffer{ID: rid})
	} else {
		e.emit(OfferUpdate{
			ID:         rid,
			SellingAmt: new(big.Int).Set(o.SellingAmt),
			BuyingAmt:  new(big.Int).Set(o.BuyingAmt),
		})
	}
	if takerFee.Sign() > 0 {
		e.emit(TakerFeePaid{Payer: taker, Amount: takerFee})
	}
	if makerFee.Sign() > 0 {
		e.emit(MakerFeePaid{Maker: o.Owner, Amount: makerFee})
	}
	return cost, retired, nil
}
