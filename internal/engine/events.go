package engine

import "math/big"

// Event is the marker for everything the engine can emit. Events are
// buffered for the duration of a public call and delivered only if the call
// commits, so observers never see effects of an aborted call.
type Event interface {
	eventName() string
}

// EventSink receives the event stream of successful calls.
type EventSink interface {
	Emit(Event)
}

// OfferCreate announces a maker order entering the book.
type OfferCreate struct {
	ID         uint64
	Owner      string
	SellingA   bool
	SellingAmt *big.Int
	BuyingAmt  *big.Int
}

// OfferTake records a fill of q units of the resting order's selling asset
// against the given cost in its buying asset. SellingA tells which asset
// the quantity is denominated in.
type OfferTake struct {
	ID       uint64
	Taker    string
	SellingA bool
	Quantity *big.Int
	Cost     *big.Int
}

// OfferUpdate carries the remaining amounts of a partially filled order.
type OfferUpdate struct {
	ID         uint64
	SellingAmt *big.Int
	BuyingAmt  *big.Int
}

// DeleteOffer marks an order leaving the book, by full fill or cancel.
type DeleteOffer struct {
	ID uint64
}

type TakerFeePaid struct {
	Payer  string
	Amount *big.Int
}

type MakerFeePaid struct {
	Maker  string
	Amount *big.Int
}

// MakerOrderCreated reports the rested remainder of a make_order call.
// Position is the pivot the order was linked before: 1 when a front hint was
// confirmed, 0 for the back (or an empty side), otherwise the id of the order
// behind it. An order that reaches the front through a rescan reports the id
// of the order it displaced, not 1.
type MakerOrderCreated struct {
	ID       uint64
	Position uint64
}

// TakerOrder reports a take sweep and the unspent remainder.
type TakerOrder struct {
	RemainingAmt *big.Int
	SpendingA    bool
}

// IoCOrder reports the consumed legs of an immediate-or-cancel order.
type IoCOrder struct {
	AUsed    *big.Int
	BUsed    *big.Int
	SellingA bool
}

// FoKOrder reports the consumed legs of a filled fill-or-kill order.
type FoKOrder struct {
	AUsed    *big.Int
	BUsed    *big.Int
	SellingA bool
}

type OrderCancelled struct {
	ID    uint64
	Owner string
}

func (OfferCreate) eventName() string       { return "OfferCreate" }
func (OfferTake) eventName() string         { return "OfferTake" }
func (OfferUpdate) eventName() string       { return "OfferUpdate" }
func (DeleteOffer) eventName() string       { return "DeleteOffer" }
func (TakerFeePaid) eventName() string      { return "TakerFeePaid" }
func (MakerFeePaid) eventName() string      { return "MakerFeePaid" }
func (MakerOrderCreated) eventName() string { return "MakerOrderCreated" }
func (TakerOrder) eventName() string        { return "TakerOrder" }
func (IoCOrder) eventName() string          { return "IoCOrder" }
func (FoKOrder) eventName() string          { return "FoKOrder" }
func (OrderCancelled) eventName() string    { return "OrderCancelled" }

// Name exposes the event's wire name for logging sinks.
func Name(e Event) string { return e.eventName() }
