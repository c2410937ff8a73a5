package engine

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unlimited/internal/ledger"
)

// --- Setup & Helpers --------------------------------------------------------

const (
	testEscrow   = "exchange"
	testTreasury = "treasury"
	testAdmin    = "admin"

	startingBalance = 1_000_000
)

func amt(v int64) *big.Int { return big.NewInt(v) }

type captureSink struct {
	events []Event
}

func (s *captureSink) Emit(ev Event) {
	s.events = append(s.events, ev)
}

func (s *captureSink) names() []string {
	out := make([]string, len(s.events))
	for i, ev := range s.events {
		out[i] = Name(ev)
	}
	return out
}

type rig struct {
	eng  *Engine
	la   *ledger.Memory
	lb   *ledger.Memory
	sink *captureSink
}

func newRig(t *testing.T, takerBPS, makerBPS uint64) *rig {
	t.Helper()
	la := ledger.NewMemory(testEscrow)
	lb := ledger.NewMemory(testEscrow)
	for _, acct := range []string{"alice", "bob", "carol", "taker"} {
		la.Mint(acct, amt(startingBalance))
		lb.Mint(acct, amt(startingBalance))
	}
	sink := &captureSink{}
	eng := New(Config{
		LedgerA:      la,
		LedgerB:      lb,
		Escrow:       testEscrow,
		FeeRecipient: testTreasury,
		FeeAdmin:     testAdmin,
		TakerFeeBPS:  takerBPS,
		MakerFeeBPS:  makerBPS,
		Sink:         sink,
	})
	return &rig{eng: eng, la: la, lb: lb, sink: sink}
}

func (r *rig) balA(acct string) int64 { return r.la.BalanceOf(acct).Int64() }
func (r *rig) balB(acct string) int64 { return r.lb.BalanceOf(acct).Int64() }

// restAsk parks a sell-A order and returns its id.
func (r *rig) restAsk(t *testing.T, owner string, a, b int64) uint64 {
	t.Helper()
	id, err := r.eng.MakeOrder(owner, amt(a), amt(b), true, 0)
	require.NoError(t, err)
	require.NotZero(t, id)
	return id
}

// restBid parks a sell-B order and returns its id.
func (r *rig) restBid(t *testing.T, owner string, a, b int64) uint64 {
	t.Helper()
	id, err := r.eng.MakeOrder(owner, amt(a), amt(b), false, 0)
	require.NoError(t, err)
	require.NotZero(t, id)
	return id
}

// --- Admission scenarios ----------------------------------------------------

func TestMakeOrderRestsOnEmptyBook(t *testing.T) {
	r := newRig(t, 0, 0)

	id, err := r.eng.MakeOrder("alice", amt(5), amt(1), true, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), id, "first order gets the first non-sentinel id")

	o, err := r.eng.Order(id)
	require.NoError(t, err)
	assert.True(t, o.SellingA)
	assert.Equal(t, amt(5), o.SellingAmt)
	assert.Equal(t, amt(1), o.BuyingAmt)
	assert.Equal(t, new(big.Int).Mul(amt(5), Scale), o.PriceRatio)
	assert.Equal(t, AssetA, o.BiggerToken)

	// Sold inventory moved to escrow.
	assert.EqualValues(t, startingBalance-5, r.balA("alice"))
	assert.EqualValues(t, 5, r.balA(testEscrow))

	assert.Equal(t, []string{"OfferCreate", "MakerOrderCreated"}, r.sink.names())
	assert.Equal(t, MakerOrderCreated{ID: 2, Position: 0}, r.sink.events[1])
}

func TestBidBelowAskDoesNotCross(t *testing.T) {
	r := newRig(t, 0, 0)
	askID := r.restAsk(t, "alice", 5, 1)

	// Wants 4 A per B against an ask quoting 5 A per B: rests instead.
	bidID := r.restBid(t, "bob", 4, 1)

	assert.Equal(t, askID, r.eng.book.Front(Ask))
	assert.Equal(t, bidID, r.eng.book.Front(Bid))
	assert.NotContains(t, r.sink.names(), "OfferTake")

	// The books do not cross each other.
	ask, _ := r.eng.Order(askID)
	bid, _ := r.eng.Order(bidID)
	assert.False(t, crosses(false, bid.PriceRatio, bid.BiggerToken, ask.PriceRatio, ask.BiggerToken))
	assert.False(t, crosses(true, ask.PriceRatio, ask.BiggerToken, bid.PriceRatio, bid.BiggerToken))
}

func TestEvenBidTakesWholeAsk(t *testing.T) {
	r := newRig(t, 0, 0)
	askID := r.restAsk(t, "alice", 5, 1)

	// 1 B buys the whole 5 A inventory at the resting price.
	id, err := r.eng.MakeOrder("bob", amt(1), amt(1), false, 0)
	require.NoError(t, err)
	assert.Zero(t, id, "fully consumed as a taker, nothing rests")

	_, err = r.eng.Order(askID)
	assert.ErrorIs(t, err, ErrInactiveOrder)
	assert.Zero(t, r.eng.book.Len(Ask))
	assert.Zero(t, r.eng.book.Len(Bid))

	assert.EqualValues(t, startingBalance+1, r.balB("alice"))
	assert.EqualValues(t, startingBalance+5, r.balA("bob"))
	assert.EqualValues(t, startingBalance-1, r.balB("bob"))
	assert.EqualValues(t, 0, r.balA(testEscrow))

	assert.Contains(t, r.sink.events, OfferTake{ID: askID, Taker: "bob", SellingA: true, Quantity: amt(5), Cost: amt(1)})
	assert.Contains(t, r.sink.events, DeleteOffer{ID: askID})
}

func TestFillOrKillAbortsOnPartialFill(t *testing.T) {
	r := newRig(t, 0, 0)
	askID := r.restAsk(t, "alice", 5, 1)
	eventsBefore := len(r.sink.events)

	// Only 5 A rest; wanting 10 A for 2 B cannot fully exhaust the 2 B.
	_, _, err := r.eng.FillOrKill("bob", amt(10), amt(2), false)
	assert.ErrorIs(t, err, ErrFillOrKillNotFilled)

	// Nothing observable happened.
	o, err := r.eng.Order(askID)
	require.NoError(t, err)
	assert.Equal(t, amt(5), o.SellingAmt)
	assert.Equal(t, amt(1), o.BuyingAmt)
	assert.EqualValues(t, startingBalance, r.balA("bob"))
	assert.EqualValues(t, startingBalance, r.balB("bob"))
	assert.EqualValues(t, 5, r.balA(testEscrow))
	assert.Len(t, r.sink.events, eventsBefore)
}

func TestImmediateOrCancelConsumesWhatRests(t *testing.T) {
	r := newRig(t, 0, 0)
	askID := r.restAsk(t, "alice", 5, 1)

	aUsed, bUsed, err := r.eng.ImmediateOrCancel("bob", amt(10), amt(2), false)
	require.NoError(t, err)
	assert.Equal(t, amt(5), aUsed)
	assert.Equal(t, amt(1), bUsed)

	_, err = r.eng.Order(askID)
	assert.ErrorIs(t, err, ErrInactiveOrder)
	assert.Zero(t, r.eng.book.Len(Bid), "immediate-or-cancel never rests")
	assert.Contains(t, r.sink.events, IoCOrder{AUsed: amt(5), BUsed: amt(1), SellingA: false})
}

func TestTakeSweepsBids(t *testing.T) {
	r := newRig(t, 0, 0)
	// Three bids buying 10, 20 and 50 A, best payer first.
	r.restBid(t, "carol", 10, 20) // 2 B per A
	r.restBid(t, "carol", 20, 30) // 1.5 B per A
	r.restBid(t, "carol", 50, 60) // 1.2 B per A

	rem, err := r.eng.Take("taker", amt(100), true)
	require.NoError(t, err)
	assert.Equal(t, amt(20), rem, "80 A spent across the three bids")

	assert.Zero(t, r.eng.book.Len(Bid))
	assert.EqualValues(t, startingBalance-80, r.balA("taker"))
	assert.EqualValues(t, startingBalance+110, r.balB("taker"))
	assert.EqualValues(t, startingBalance+80, r.balA("carol"))
	assert.EqualValues(t, 0, r.balB(testEscrow))
	assert.Contains(t, r.sink.events, TakerOrder{RemainingAmt: amt(20), SpendingA: true})
}

func TestPartialFillRemainderRestsOnRepairedRatio(t *testing.T) {
	r := newRig(t, 0, 0)
	r.restAsk(t, "alice", 5, 1)

	// 2 B against a 5-A ask: 1 B fills it, the leftover B rests as a bid
	// whose buying side is recomputed from the original ratio.
	id, err := r.eng.MakeOrder("bob", amt(10), amt(2), false, 0)
	require.NoError(t, err)
	require.NotZero(t, id)

	o, err := r.eng.Order(id)
	require.NoError(t, err)
	assert.False(t, o.SellingA)
	assert.Equal(t, amt(1), o.SellingAmt)
	assert.Equal(t, amt(5), o.BuyingAmt)
	assert.Equal(t, o.BuyingAmt,
		counterAmount(o.PriceRatio, o.BiggerToken, o.Selling(), o.SellingAmt))
	assert.EqualValues(t, 1, r.balB(testEscrow))
}

func TestDustRemainderDoesNotRest(t *testing.T) {
	r := newRig(t, 0, 0)
	r.restAsk(t, "alice", 1, 9) // sells 1 A for 9 B

	// 10 B at 10 B per A: 9 B fill the ask, the leftover 1 B cannot be
	// quoted at the original ratio and stays with the maker.
	id, err := r.eng.MakeOrder("bob", amt(1), amt(10), false, 0)
	require.NoError(t, err)
	assert.Zero(t, id)

	assert.Zero(t, r.eng.book.Len(Bid))
	assert.EqualValues(t, startingBalance-9, r.balB("bob"))
	assert.EqualValues(t, startingBalance+1, r.balA("bob"))
	assert.EqualValues(t, 0, r.balB(testEscrow))
}

func TestMakeOrderValidation(t *testing.T) {
	r := newRig(t, 0, 0)

	_, err := r.eng.MakeOrder("alice", amt(0), amt(1), true, 0)
	assert.ErrorIs(t, err, ErrZeroTokenAmount)
	_, err = r.eng.MakeOrder("alice", amt(1), amt(-1), true, 0)
	assert.ErrorIs(t, err, ErrZeroTokenAmount)
	_, err = r.eng.Take("alice", amt(0), true)
	assert.ErrorIs(t, err, ErrZeroTokenAmount)
	assert.Empty(t, r.sink.events)
}

// --- Cancellation -----------------------------------------------------------

func TestCancelRefundsAndIsIdempotent(t *testing.T) {
	r := newRig(t, 0, 0)
	id := r.restAsk(t, "alice", 5, 1)

	assert.ErrorIs(t, r.eng.Cancel("bob", id), ErrNonOwnerCantCancelOrder)

	require.NoError(t, r.eng.Cancel("alice", id))
	assert.EqualValues(t, startingBalance, r.balA("alice"))
	assert.EqualValues(t, 0, r.balA(testEscrow))
	assert.Zero(t, r.eng.book.Len(Ask))
	assert.Contains(t, r.sink.events, OrderCancelled{ID: id, Owner: "alice"})
	assert.Contains(t, r.sink.events, DeleteOffer{ID: id})

	// A cancelled id never cancels again.
	assert.ErrorIs(t, r.eng.Cancel("alice", id), ErrInactiveOrder)
}

// --- Fees -------------------------------------------------------------------

func TestFeesAreSplitBetweenRecipientAndMaker(t *testing.T) {
	r := newRig(t, 100, 50) // 1% taker, 0.5% maker
	r.restAsk(t, "alice", 20_000, 10_000)

	id, err := r.eng.MakeOrder("bob", amt(20_000), amt(10_000), false, 0)
	require.NoError(t, err)
	assert.Zero(t, id)

	// Cost 10000 B: 100 taker fee + 50 maker fee to the treasury, the maker
	// nets cost minus the maker fee, the taker pays cost plus the taker fee.
	assert.EqualValues(t, 150, r.balB(testTreasury))
	assert.EqualValues(t, startingBalance+9_950, r.balB("alice"))
	assert.EqualValues(t, startingBalance-10_100, r.balB("bob"))
	assert.EqualValues(t, startingBalance+20_000, r.balA("bob"))

	assert.Contains(t, r.sink.events, TakerFeePaid{Payer: "bob", Amount: amt(100)})
	assert.Contains(t, r.sink.events, MakerFeePaid{Maker: "alice", Amount: amt(50)})
}

func TestFeeSettersAreGuarded(t *testing.T) {
	r := newRig(t, 0, 0)

	assert.ErrorIs(t, r.eng.SetTakerFee("alice", 10), ErrNotFeeAdmin)
	assert.ErrorIs(t, r.eng.SetTakerFee(testAdmin, MaxFeeBPS+1), ErrInvalidFeeValue)
	assert.ErrorIs(t, r.eng.SetMakerFee(testAdmin, MaxFeeBPS+1), ErrInvalidFeeValue)

	require.NoError(t, r.eng.SetTakerFee(testAdmin, 250))
	require.NoError(t, r.eng.SetMakerFee(testAdmin, MaxFeeBPS))
	taker, maker := r.eng.Fees()
	assert.EqualValues(t, 250, taker)
	assert.EqualValues(t, MaxFeeBPS, maker)
}

// --- Position hints ---------------------------------------------------------

func askRatios(r *rig) []int64 {
	var out []int64
	for id := r.eng.book.Front(Ask); id != 0; id = r.eng.book.NextOf(id, Ask) {
		o, _ := r.eng.store.Get(id)
		out = append(out, new(big.Int).Quo(o.PriceRatio, Scale).Int64())
	}
	return out
}

func TestHintRepair(t *testing.T) {
	r := newRig(t, 0, 0)

	r.restAsk(t, "alice", 9, 1) // id 2
	r.restAsk(t, "alice", 7, 1) // id 3
	r.restAsk(t, "alice", 5, 1) // id 4
	assert.Equal(t, []int64{9, 7, 5}, askRatios(r))

	// Lying front hint: 8 A per B is not better than 9, rescan slots it
	// before the 7 and reports that pivot.
	id, err := r.eng.MakeOrder("bob", amt(8), amt(1), true, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{9, 8, 7, 5}, askRatios(r))
	assert.Contains(t, r.sink.events, MakerOrderCreated{ID: id, Position: 3})

	// Lying mid hint pointing at the worst order: the rescan walks to the
	// true front position.
	id, err = r.eng.MakeOrder("bob", amt(10), amt(1), true, 4)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 9, 8, 7, 5}, askRatios(r))
	assert.Contains(t, r.sink.events, MakerOrderCreated{ID: id, Position: 2})

	// Equal price loses to the earlier order even with a front hint.
	id9, err := r.eng.MakeOrder("bob", amt(9), amt(1), true, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 9, 9, 8, 7, 5}, askRatios(r))
	assert.Equal(t, uint64(2), r.eng.book.PrevOf(id9, Ask), "newer 9 sits behind the older 9")

	// A correct mid hint is taken as-is.
	id, err = r.eng.MakeOrder("bob", amt(6), amt(1), true, 4)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 9, 9, 8, 7, 6, 5}, askRatios(r))
	assert.Contains(t, r.sink.events, MakerOrderCreated{ID: id, Position: 4})

	// A truthful front insert reports the literal front position 1.
	id, err = r.eng.MakeOrder("bob", amt(12), amt(1), true, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{12, 10, 9, 9, 8, 7, 6, 5}, askRatios(r))
	assert.Contains(t, r.sink.events, MakerOrderCreated{ID: id, Position: 1})

	// Price-time priority holds along the whole list.
	prev := uint64(0)
	for id := r.eng.book.Front(Ask); id != 0; id = r.eng.book.NextOf(id, Ask) {
		if prev != 0 {
			p, _ := r.eng.store.Get(prev)
			q, _ := r.eng.store.Get(id)
			assert.True(t, atLeastAsGood(Ask, p.PriceRatio, p.BiggerToken, q.PriceRatio, q.BiggerToken))
		}
		prev = id
	}
}

// --- Transactional properties ----------------------------------------------

func TestConservationOfEscrowedInventory(t *testing.T) {
	r := newRig(t, 0, 0)
	r.restAsk(t, "alice", 9, 1)
	r.restAsk(t, "alice", 5, 1)
	bobBid := r.restBid(t, "bob", 4, 1)
	r.restBid(t, "carol", 3, 1)
	_, _, err := r.eng.ImmediateOrCancel("carol", amt(9), amt(1), false)
	require.NoError(t, err)
	require.NoError(t, r.eng.Cancel("bob", bobBid))

	sumA, sumB := new(big.Int), new(big.Int)
	for _, o := range r.eng.store.orders {
		if !o.Active {
			continue
		}
		if o.SellingA {
			sumA.Add(sumA, o.SellingAmt)
		} else {
			sumB.Add(sumB, o.SellingAmt)
		}
	}
	assert.Equal(t, sumA, r.la.BalanceOf(testEscrow))
	assert.Equal(t, sumB, r.lb.BalanceOf(testEscrow))
}

func TestLedgerFailureRollsEverythingBack(t *testing.T) {
	r := newRig(t, 0, 0)
	askID := r.restAsk(t, "alice", 5, 1)
	eventsBefore := len(r.sink.events)

	// pauper has no B at all: settlement fails mid-call.
	_, err := r.eng.MakeOrder("pauper", amt(1), amt(1), false, 0)
	assert.ErrorIs(t, err, ErrLackingFundsForTransaction)

	o, getErr := r.eng.Order(askID)
	require.NoError(t, getErr)
	assert.Equal(t, amt(5), o.SellingAmt)
	assert.EqualValues(t, 5, r.balA(testEscrow))
	assert.EqualValues(t, 0, r.balA("pauper"))
	assert.Len(t, r.sink.events, eventsBefore)

	// Escrow failure on the resting path rolls back too, id included.
	_, err = r.eng.MakeOrder("pauper", amt(4), amt(1), false, 0)
	assert.ErrorIs(t, err, ErrTransferToEscrow)
	assert.Zero(t, r.eng.book.Len(Bid))

	nextID := r.restBid(t, "bob", 4, 1)
	assert.Equal(t, askID+1, nextID, "rolled-back calls do not burn ids")
}

type reentrantLedger struct {
	inner    *ledger.Memory
	eng      *Engine
	captured error
}

func (l *reentrantLedger) Transfer(to string, amount *big.Int) error {
	return l.inner.Transfer(to, amount)
}

func (l *reentrantLedger) TransferFrom(from, to string, amount *big.Int) error {
	l.captured = l.eng.Cancel(from, 2)
	return l.captured
}

func TestReentrantLedgerCallbackIsRejected(t *testing.T) {
	evil := &reentrantLedger{inner: ledger.NewMemory(testEscrow)}
	lb := ledger.NewMemory(testEscrow)
	eng := New(Config{
		LedgerA:      evil,
		LedgerB:      lb,
		Escrow:       testEscrow,
		FeeRecipient: testTreasury,
		FeeAdmin:     testAdmin,
	})
	evil.eng = eng

	_, err := eng.MakeOrder("alice", amt(5), amt(1), true, 0)
	assert.ErrorIs(t, err, ErrTransferToEscrow)
	assert.ErrorIs(t, evil.captured, ErrReentrantCall)
	assert.Zero(t, eng.book.Len(Ask))
	assert.Zero(t, eng.store.Len())
}
