package trading

import (
	"errors"

	"github.com/uhyunpark/predictcore/pkg/app/core/account"
	"github.com/uhyunpark/predictcore/pkg/app/core/control"
	"github.com/uhyunpark/predictcore/pkg/app/core/market"
	"github.com/uhyunpark/predictcore/pkg/num"
)

var (
	// validation
	ErrZeroAmount     = errors.New("amount must be positive")
	ErrInvalidPrice   = errors.New("price out of range")
	ErrInvalidSide    = errors.New("invalid side")
	ErrInvalidOutcome = errors.New("invalid outcome")

	// authorization
	ErrNotOwner = errors.New("sender does not own the order")

	// resources
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientShares = errors.New("insufficient shares")

	// lookups
	ErrOrderNotFound  = errors.New("order not found")
	ErrMarketNotFound = market.ErrMarketNotFound

	// state
	ErrMarketNotTrading     = errors.New("market is not trading")
	ErrMarketNotFinalized   = errors.New("market is not finalized")
	ErrWaitingPeriodNotOver = errors.New("claim waiting period not over")
	ErrBudgetExhausted      = errors.New("execution budget exhausted")
	ErrSystemStopped        = control.ErrSystemStopped
	ErrNotStopped           = control.ErrNotStopped
)

// Kind groups errors by how a caller should react.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthorization
	KindResource
	KindNotFound
	KindState
	KindArithmetic
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindResource:
		return "insufficient_resource"
	case KindNotFound:
		return "not_found"
	case KindState:
		return "state"
	case KindArithmetic:
		return "arithmetic"
	}
	return "internal"
}

// KindOf classifies err.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrZeroAmount), errors.Is(err, ErrInvalidPrice),
		errors.Is(err, ErrInvalidSide), errors.Is(err, ErrInvalidOutcome):
		return KindValidation
	case errors.Is(err, ErrNotOwner):
		return KindAuthorization
	case errors.Is(err, ErrInsufficientFunds), errors.Is(err, ErrInsufficientShares),
		errors.Is(err, account.ErrInsufficientBalance), errors.Is(err, account.ErrInsufficientAllowance):
		return KindResource
	case errors.Is(err, ErrOrderNotFound), errors.Is(err, ErrMarketNotFound):
		return KindNotFound
	case errors.Is(err, ErrMarketNotTrading), errors.Is(err, ErrMarketNotFinalized),
		errors.Is(err, ErrWaitingPeriodNotOver), errors.Is(err, ErrBudgetExhausted),
		errors.Is(err, ErrSystemStopped), errors.Is(err, ErrNotStopped):
		return KindState
	case errors.Is(err, num.ErrArithmeticOverflow), errors.Is(err, num.ErrDivisionByZero):
		return KindArithmetic
	}
	return KindInternal
}
