package engine

import (
	"fmt"
	"math/big"
	"sync/atomic"

	"unlimited/internal/ledger"
	"unlimited/internal/metrics"
)

const (
	feeDenominator = 10_000
	// MaxFeeBPS caps both fee parameters at 50%.
	MaxFeeBPS = 5_000
)

// Config wires an Engine to its collaborators. LedgerA and LedgerB are the
// transfer surfaces of the two assets; Escrow is the account on both ledgers
// that holds resting-order inventory, and must be the account the ledgers'
// Transfer method spends from.
type Config struct {
	LedgerA      ledger.Ledger
	LedgerB      ledger.Ledger
	Escrow       string
	FeeRecipient string
	FeeAdmin     string
	TakerFeeBPS  uint64
	MakerFeeBPS  uint64
	Sink         EventSink          // optional
	Metrics      *metrics.Collector // optional
}

// Engine is the pair exchange: a price-time-priority book over the A/B pair
// with escrowed maker inventory and proportional fees. Public calls are
// transactional: on any error the store, the book and (when the ledgers
// support snapshots) the balances are exactly as before the call, and no
// events are observed.
//
// The engine expects a serialized caller, as a single driving goroutine or
// an external lock. The guard only rejects re-entry from ledger callbacks.
type Engine struct {
	busy atomic.Bool

	store *Store
	book  *Book

	ledgers      [2]ledger.Ledger
	escrow       string
	feeRecipient string
	feeAdmin     string
	takerFeeBPS  uint64
	makerFeeBPS  uint64

	sink    EventSink
	metrics *metrics.Collector
	pending []Event
}

func New(cfg Config) *Engine {
	return &Engine{
		store:        NewStore(),
		book:         NewBook(),
		ledgers:      [2]ledger.Ledger{cfg.LedgerA, cfg.LedgerB},
		escrow:       cfg.Escrow,
		feeRecipient: cfg.FeeRecipient,
		feeAdmin:     cfg.FeeAdmin,
		takerFeeBPS:  cfg.TakerFeeBPS,
		makerFeeBPS:  cfg.MakerFeeBPS,
		sink:         cfg.Sink,
		metrics:      cfg.Metrics,
	}
}

// MakeOrder matches the incoming quote against the opposite book and rests
// any remainder as a maker order. It returns the rested order id, or 0 when
// the order was fully consumed as a taker. positionHint is the id of the
// order the new one should sit in front of, 1 for the front of the list,
// 0 for the back; a wrong hint costs a rescan, never a failure.
func (e *Engine) MakeOrder(owner string, aAmt, bAmt *big.Int, sellingA bool, positionHint uint64) (uint64, error) {
	snap, err := e.enter()
	if err != nil {
		return 0, err
	}
	id, err := e.makeOrder(owner, aAmt, bAmt, sellingA, positionHint)
	return id, e.exit(snap, err)
}

// Take sweeps the opposite book spending up to amt of the pay asset at
// whatever prices rest there. It returns the unspent remainder.
func (e *Engine) Take(owner string, amt *big.Int, spendingA bool) (*big.Int, error) {
	snap, err := e.enter()
	if err != nil {
		return nil, err
	}
	rem, err := e.take(owner, amt, spendingA)
	if err = e.exit(snap, err); err != nil {
		return nil, err
	}
	return rem, nil
}

// ImmediateOrCancel matches like MakeOrder but never rests a remainder.
// It returns the consumed amounts of both legs.
func (e *Engine) ImmediateOrCancel(owner string, aAmt, bAmt *big.Int, sellingA bool) (aUsed, bUsed *big.Int, err error) {
	snap, err := e.enter()
	if err != nil {
		return nil, nil, err
	}
	aUsed, bUsed, err = e.immediate(owner, aAmt, bAmt, sellingA, false)
	if err = e.exit(snap, err); err != nil {
		return nil, nil, err
	}
	return aUsed, bUsed, nil
}

// FillOrKill matches like ImmediateOrCancel but aborts, discarding every
// effect, unless the selling side is completely exhausted.
func (e *Engine) FillOrKill(owner string, aAmt, bAmt *big.Int, sellingA bool) (aUsed, bUsed *big.Int, err error) {
	snap, err := e.enter()
	if err != nil {
		return nil, nil, err
	}
	aUsed, bUsed, err = e.immediate(owner, aAmt, bAmt, sellingA, true)
	if err = e.exit(snap, err); err != nil {
		return nil, nil, err
	}
	return aUsed, bUsed, nil
}

// Cancel retires the order and returns its unsold remainder from escrow.
// Only the order's owner may cancel, and only once.
func (e *Engine) Cancel(owner string, id uint64) error {
	snap, err := e.enter()
	if err != nil {
		return err
	}
	return e.exit(snap, e.cancel(owner, id))
}

// SetTakerFee updates the taker fee. Restricted to the fee admin.
func (e *Engine) SetTakerFee(caller string, bps uint64) error {
	snap, err := e.enter()
	if err != nil {
		return err
	}
	return e.exit(snap, e.setFee(caller, bps, &e.takerFeeBPS))
}

// SetMakerFee updates the maker fee. Restricted to the fee admin.
func (e *Engine) SetMakerFee(caller string, bps uint64) error {
	snap, err := e.enter()
	if err != nil {
		return err
	}
	return e.exit(snap, e.setFee(caller, bps, &e.makerFeeBPS))
}

// Order returns a copy of an active order's record.
func (e *Engine) Order(id uint64) (Order, error) {
	o, err := e.store.Get(id)
	if err != nil {
		return Order{}, err
	}
	return *o.clone(), nil
}

// Fees returns the current taker and maker fee parameters.
func (e *Engine) Fees() (takerBPS, makerBPS uint64) {
	return e.takerFeeBPS, e.makerFeeBPS
}

// --- Transaction plumbing ---------------------------------------------------

type snapshot struct {
	store       *Store
	book        *Book
	takerFeeBPS uint64
	makerFeeBPS uint64
	marks       [2]int
	snapable    [2]ledger.Snapshotter
}

func (e *Engine) enter() (snapshot, error) {
	if !e.busy.CompareAndSwap(false, true) {
		return snapshot{}, ErrReentrantCall
	}
	snap := snapshot{
		store:       e.store.clone(),
		book:        e.book.clone(),
		takerFeeBPS: e.takerFeeBPS,
		makerFeeBPS: e.makerFeeBPS,
	}
	for i, l := range e.ledgers {
		if s, ok := l.(ledger.Snapshotter); ok {
			snap.snapable[i] = s
			snap.marks[i] = s.Snapshot()
		}
	}
	return snap, nil
}

// exit commits on a nil error and rolls everything back otherwise. The
// buffered events are flushed to the sink only on commit.
func (e *Engine) exit(snap snapshot, err error) error {
	if err != nil {
		e.store = snap.store
		e.book = snap.book
		e.takerFeeBPS = snap.takerFeeBPS
		e.makerFeeBPS = snap.makerFeeBPS
		for i, s := range snap.snapable {
			if s != nil {
				s.RevertToSnapshot(snap.marks[i])
			}
		}
		e.pending = e.pending[:0]
		e.metrics.CallRejected()
		e.busy.Store(false)
		return err
	}
	for _, ev := range e.pending {
		if e.sink != nil {
			e.sink.Emit(ev)
		}
		e.record(ev)
	}
	e.pending = e.pending[:0]
	e.busy.Store(false)
	return nil
}

// record instruments the committed event stream, so aborted calls never
// skew the metrics.
func (e *Engine) record(ev Event) {
	switch v := ev.(type) {
	case OfferTake:
		asset := AssetB
		if v.SellingA {
			asset = AssetA
		}
		e.metrics.Fill(asset.String(), v.Quantity)
	case MakerOrderCreated:
		e.metrics.OrderRested()
	case DeleteOffer:
		e.metrics.OrderRetired()
	case OrderCancelled:
		e.metrics.OrderCancelled()
	}
}

func (e *Engine) emit(ev Event) {
	e.pending = append(e.pending, ev)
}

func (e *Engine) ledgerFor(a Asset) ledger.Ledger {
	return e.ledgers[a]
}

// --- Admission --------------------------------------------------------------

func validateAmounts(amts ...*big.Int) error {
	for _, a := range amts {
		if a == nil || a.Sign() <= 0 {
			return ErrZeroTokenAmount
		}
	}
	return nil
}

func (e *Engine) makeOrder(owner string, aAmt, bAmt *big.Int, sellingA bool, positionHint uint64) (uint64, error) {
	if err := validateAmounts(aAmt, bAmt); err != nil {
		return 0, err
	}
	ratio, bigger := NewRatio(aAmt, bAmt)

	aRem, bRem, err := e.matchCrossing(owner, ratio, bigger, sellingA, aAmt, bAmt)
	if err != nil {
		return 0, err
	}

	sellRem := aRem
	if !sellingA {
		sellRem = bRem
	}
	if sellRem.Sign() == 0 {
		// Fully consumed as a taker, nothing rests.
		return 0, nil
	}

	// Recompute the buying side exactly from the original ratio: the walk
	// decrements it at resting prices and truncation can leave it off by one.
	selling := AssetA
	if !sellingA {
		selling = AssetB
	}
	buyAmt := counterAmount(ratio, bigger, selling, sellRem)
	if buyAmt.Sign() == 0 {
		// The remainder is too small to be quoted at this ratio.
		return 0, nil
	}

	id := e.store.AllocateID()
	if err := e.ledgerFor(selling).TransferFrom(owner, e.escrow, sellRem); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTransferToEscrow, err)
	}

	o := &Order{
		ID:          id,
		Owner:       owner,
		SellingA:    sellingA,
		SellingAmt:  new(big.Int).Set(sellRem),
		BuyingAmt:   buyAmt,
		PriceRatio:  new(big.Int).Set(ratio),
		BiggerToken: bigger,
		Active:      true,
	}
	e.store.Put(o)

	side := o.Side()
	pivot, position := e.resolvePosition(ratio, bigger, side, positionHint)
	e.book.InsertBefore(id, pivot, side)

	e.emit(OfferCreate{
		ID:         id,
		Owner:      owner,
		SellingA:   sellingA,
		SellingAmt: new(big.Int).Set(o.SellingAmt),
		BuyingAmt:  new(big.Int).Set(o.BuyingAmt),
	})
	e.emit(MakerOrderCreated{ID: id, Position: position})
	return id, nil
}

func (e *Engine) take(owner string, amt *big.Int, spendingA bool) (*big.Int, error) {
	if err := validateAmounts(amt); err != nil {
		return nil, err
	}
	rem, err := e.takeWalk(owner, amt, spendingA)
	if err != nil {
		return nil, err
	}
	e.emit(TakerOrder{RemainingAmt: new(big.Int).Set(rem), SpendingA: spendingA})
	return rem, nil
}

func (e *Engine) immediate(owner string, aAmt, bAmt *big.Int, sellingA, killPartial bool) (*big.Int, *big.Int, error) {
	if err := validateAmounts(aAmt, bAmt); err != nil {
		return nil, nil, err
	}
	ratio, bigger := NewRatio(aAmt, bAmt)
	aRem, bRem, err := e.matchCrossing(owner, ratio, bigger, sellingA, aAmt, bAmt)
	if err != nil {
		return nil, nil, err
	}
	if killPartial {
		sellRem := aRem
		if !sellingA {
			sellRem = bRem
		}
		if sellRem.Sign() > 0 {
			return nil, nil, ErrFillOrKillNotFilled
		}
	}
	aUsed := new(big.Int).Sub(aAmt, aRem)
	bUsed := new(big.Int).Sub(bAmt, bRem)
	if killPartial {
		e.emit(FoKOrder{AUsed: aUsed, BUsed: bUsed, SellingA: sellingA})
	} else {
		e.emit(IoCOrder{AUsed: aUsed, BUsed: bUsed, SellingA: sellingA})
	}
	return aUsed, bUsed, nil
}

func (e *Engine) cancel(owner string, id uint64) error {
	o, err := e.store.Get(id)
	if err != nil {
		return err
	}
	if o.Owner != owner {
		return ErrNonOwnerCantCancelOrder
	}
	// Capture before the record goes away.
	side := o.Side()
	refund := new(big.Int).Set(o.SellingAmt)

	if err := e.ledgerFor(o.Selling()).Transfer(owner, refund); err != nil {
		return fmt.Errorf("%w: %v", ErrEscrowToBuyer, err)
	}
	e.store.SetActive(id, false)
	e.book.Unlink(id, side)
	e.store.Remove(id)

	e.emit(OrderCancelled{ID: id, Owner: owner})
	e.emit(DeleteOffer{ID: id})
	return nil
}

func (e *Engine) setFee(caller string, bps uint64, target *uint64) error {
	if caller != e.feeAdmin {
		return ErrNotFeeAdmin
	}
	if bps > MaxFeeBPS {
		return ErrInvalidFeeValue
	}
	*target = bps
	return nil
}

// --- Position hints ---------------------------------------------------------

// resolvePosition turns a client hint into the pivot to link the new order
// before, verifying the hint against the price order and rescanning when it
// lies. The second return is the position reported in MakerOrderCreated.
func (e *Engine) resolvePosition(ratio *big.Int, bigger Asset, side Side, hint uint64) (pivot, position uint64) {
	front := e.book.Front(side)
	if front == 0 {
		return 0, 0
	}

	hintedFront := hint == 1 ||
		(hint != 0 && e.book.Contains(hint, side) && e.book.PrevOf(hint, side) == 0)
	switch {
	case hintedFront:
		f, err := e.store.Get(front)
		if err == nil && better(side, ratio, bigger, f.PriceRatio, f.BiggerToken) {
			return front, 1
		}
	case hint == 0:
		b, err := e.store.Get(e.book.Back(side))
		if err == nil && better(side, b.PriceRatio, b.BiggerToken, ratio, bigger) {
			return 0, 0
		}
	case e.book.Contains(hint, side):
		h, herr := e.store.Get(hint)
		p, perr := e.store.Get(e.book.PrevOf(hint, side))
		if herr == nil && perr == nil &&
			better(side, ratio, bigger, h.PriceRatio, h.BiggerToken) &&
			atLeastAsGood(side, p.PriceRatio, p.BiggerToken, ratio, bigger) {
			return hint, hint
		}
	}

	pivot = e.findInsertPosition(ratio, bigger, side)
	return pivot, pivot
}

// findInsertPosition scans from the front for the first order the new quote
// strictly beats, returning 0 (append at back) when it beats none. Equal
// prices lose the scan, so older orders keep priority.
func (e *Engine) findInsertPosition(ratio *big.Int, bigger Asset, side Side) uint64 {
	for id := e.book.Front(side); id != 0; id = e.book.NextOf(id, side) {
		o, err := e.store.Get(id)
		if err != nil {
			continue
		}
		if better(side, ratio, bigger, o.PriceRatio, o.BiggerToken) {
			return id
		}
	}
	return 0
}
