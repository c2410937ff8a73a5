package engine

import "errors"

var (
	// Input validation.
	ErrZeroTokenAmount            = errors.New("zero token amount")
	ErrSellingTokenNotBool        = errors.New("selling token flag is not a bool")
	ErrZeroBuyQuantity            = errors.New("zero buy quantity")
	ErrQuantityExceedsOrderAmount = errors.New("quantity exceeds order amount")
	ErrInvalidFeeValue            = errors.New("invalid fee value")

	// State validation.
	ErrInactiveOrder           = errors.New("inactive order")
	ErrNonOwnerCantCancelOrder = errors.New("non-owner cannot cancel order")
	ErrNotFeeAdmin             = errors.New("caller is not the fee admin")
	ErrReentrantCall           = errors.New("reentrant call")

	// Ledger movement failures. Each one aborts the whole public call.
	ErrTransferToEscrow           = errors.New("transfer to escrow failed")
	ErrLackingFundsForFees        = errors.New("lacking funds for fees")
	ErrLackingFundsForTransaction = errors.New("lacking funds for transaction")
	ErrEscrowToBuyer              = errors.New("escrow to buyer transfer failed")

	// Policy.
	ErrFillOrKillNotFilled = errors.New("fill-or-kill order not fully filled")
)
