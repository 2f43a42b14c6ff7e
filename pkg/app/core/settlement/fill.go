package settlement

import (
	"errors"
	"fmt"

	"github.com/uhyunpark/predictcore/pkg/app/core/orderbook"
	"github.com/uhyunpark/predictcore/pkg/num"
)

var (
	ErrInvalidFill  = errors.New("invalid fill")
	ErrInvalidPrice = errors.New("price must be in (0, numTicks)")
)

// LegKind names one of the four ways a fill can be settled, depending on
// whether each party brings shares or cash.
type LegKind uint8

const (
	// LegShareConversion: both parties bring shares. The opposing shares form
	// complete sets that are destroyed for cash. Fees are charged.
	LegShareConversion LegKind = iota + 1
	// LegMakerSharesForCash: the maker's escrowed shares go to the taker, who
	// pays cash.
	LegMakerSharesForCash
	// LegMakerCashForShares: the taker's shares go to the maker, whose
	// escrowed cash pays for them.
	LegMakerCashForShares
	// LegCashToCash: both parties bring cash. New complete sets are minted
	// and split between them.
	LegCashToCash
)

func (k LegKind) String() string {
	switch k {
	case LegShareConversion:
		return "share_conversion"
	case LegMakerSharesForCash:
		return "maker_shares_for_cash"
	case LegMakerCashForShares:
		return "maker_cash_for_shares"
	case LegCashToCash:
		return "cash_to_cash"
	}
	return fmt.Sprintf("leg(%d)", uint8(k))
}

func (k LegKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *LegKind) UnmarshalText(b []byte) error {
	for c := LegShareConversion; c <= LegCashToCash; c++ {
		if c.String() == string(b) {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("unknown leg kind %q", b)
}

// FeeBearing reports whether settling this leg charges market fees.
// Only destroying complete sets realises a payout.
func (k LegKind) FeeBearing() bool { return k == LegShareConversion }

// Leg is one settled slice of a fill.
type Leg struct {
	Kind   LegKind   `json:"kind"`
	Amount *num.Uint `json:"amount"`
}

// FillInput describes a fill before settlement.
type FillInput struct {
	Amount    *num.Uint
	Price     *num.Uint // maker's price, in ticks
	NumTicks  *num.Uint
	MakerSide orderbook.Side

	// MakerShares is the share escrow still held by the maker's order.
	MakerShares *num.Uint
	// TakerShares is what the taker can supply in shares: the lower of its
	// balance and its allowance to the exchange.
	TakerShares *num.Uint
}

// FillPlan is the leg decomposition of a fill plus the per-share cash each
// party pays when it brings cash.
type FillPlan struct {
	Legs          []Leg
	MakerUnitCost *num.Uint
	TakerUnitCost *num.Uint
}

// Amount returns the size of the leg of kind k, zero if absent.
func (p FillPlan) Amount(k LegKind) *num.Uint {
	for _, l := range p.Legs {
		if l.Kind == k {
			return l.Amount.Clone()
		}
	}
	return num.Zero()
}

// MakerShares returns how many shares the maker delivers.
func (p FillPlan) MakerShares() *num.Uint {
	v, _ := num.Add(p.Amount(LegShareConversion), p.Amount(LegMakerSharesForCash))
	return v
}

// TakerShares returns how many shares the taker delivers.
func (p FillPlan) TakerShares() *num.Uint {
	v, _ := num.Add(p.Amount(LegShareConversion), p.Amount(LegMakerCashForShares))
	return v
}

// UnitCost is the cash per share a party on side pays when it brings cash:
// price for a bid and numTicks-price for an ask.
func UnitCost(side orderbook.Side, price, numTicks *num.Uint) (*num.Uint, error) {
	if price.IsZero() || price.GTE(numTicks) {
		return nil, fmt.Errorf("%w: %s with numTicks %s", ErrInvalidPrice, price, numTicks)
	}
	switch side {
	case orderbook.Bid:
		return price.Clone(), nil
	case orderbook.Ask:
		return num.Sub(numTicks, price)
	}
	return nil, fmt.Errorf("%w: side %s", ErrInvalidFill, side)
}

// EscrowCash is the cash needed to back amount shares bought or sold at
// price by side.
func EscrowCash(side orderbook.Side, price, numTicks, amount *num.Uint) (*num.Uint, error) {
	unit, err := UnitCost(side, price, numTicks)
	if err != nil {
		return nil, err
	}
	return num.Mul(unit, amount)
}

// PlanFill splits a fill into legs. Shares are always matched against shares
// first, then each party's remaining shares against the other's cash, and
// whatever is left is cash against cash. Legs of size zero are omitted and
// the legs always sum to Amount.
func PlanFill(in FillInput) (FillPlan, error) {
	if in.Amount.IsZero() {
		return FillPlan{}, fmt.Errorf("%w: zero amount", ErrInvalidFill)
	}
	if !in.MakerSide.Valid() {
		return FillPlan{}, fmt.Errorf("%w: maker side %d", ErrInvalidFill, in.MakerSide)
	}
	makerUnit, err := UnitCost(in.MakerSide, in.Price, in.NumTicks)
	if err != nil {
		return FillPlan{}, err
	}
	takerUnit, err := UnitCost(in.MakerSide.Opposite(), in.Price, in.NumTicks)
	if err != nil {
		return FillPlan{}, err
	}

	makerSh := num.Min(in.Amount, in.MakerShares)
	takerSh := num.Min(in.Amount, in.TakerShares)
	conv := num.Min(makerSh, takerSh)

	makerForCash, _ := num.Sub(makerSh, conv)
	takerForCash, _ := num.Sub(takerSh, conv)
	used, err := num.Sum(conv, makerForCash, takerForCash)
	if err != nil {
		return FillPlan{}, err
	}
	// conv + makerForCash + takerForCash = max(makerSh, takerSh) <= Amount
	cashToCash, err := num.Sub(in.Amount, used)
	if err != nil {
		return FillPlan{}, fmt.Errorf("%w: %v", ErrInvalidFill, err)
	}

	plan := FillPlan{MakerUnitCost: makerUnit, TakerUnitCost: takerUnit}
	for _, l := range []Leg{
		{LegShareConversion, conv},
		{LegMakerSharesForCash, makerForCash},
		{LegMakerCashForShares, takerForCash},
		{LegCashToCash, cashToCash},
	} {
		if !l.Amount.IsZero() {
			plan.Legs = append(plan.Legs, l)
		}
	}
	return plan, nil
}

// SplitConversion divides the payout of destroying amount complete sets
// between the two parties of a share-conversion leg. The party that held the
// traded outcome (the ask side) receives price/numTicks of the net payout and
// the complement holder the rest, so both shares sum to gross minus fees.
func SplitConversion(amount, price, numTicks *num.Uint, fees Fees) (outcomeHolder, complementHolder *num.Uint, err error) {
	gross, err := CompleteSetCost(numTicks, amount)
	if err != nil {
		return nil, nil, err
	}
	total, err := fees.Total()
	if err != nil {
		return nil, nil, err
	}
	net, err := num.Sub(gross, total)
	if err != nil {
		return nil, nil, fmt.Errorf("fees %s exceed payout %s: %w", total, gross, err)
	}
	outcomeHolder, err = num.MulDiv(net, price, numTicks)
	if err != nil {
		return nil, nil, err
	}
	complementHolder, err = num.Sub(net, outcomeHolder)
	if err != nil {
		return nil, nil, err
	}
	return outcomeHolder, complementHolder, nil
}
