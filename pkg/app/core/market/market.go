package market

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/predictcore/pkg/num"
)

// MaxOutcomes bounds NumOutcomes; outcome indices fit in a uint8.
const MaxOutcomes = 8

var (
	ErrMarketNotFound      = errors.New("market not found")
	ErrMarketExists        = errors.New("market already registered")
	ErrInvalidMarket       = errors.New("invalid market")
	ErrInvalidPayout       = errors.New("invalid payout numerators")
	ErrInvalidStatusChange = errors.New("invalid status transition")
)

// Status defines the lifecycle state of a market
type Status int8

const (
	Trading   Status = iota // Orders and trades accepted
	Finalized               // Outcome known, shares redeemable
)

func (s Status) String() string {
	switch s {
	case Trading:
		return "Trading"
	case Finalized:
		return "Finalized"
	default:
		return "Unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "Trading":
		*s = Trading
	case "Finalized":
		*s = Finalized
	default:
		return fmt.Errorf("unknown market status %q", string(b))
	}
	return nil
}

// Market holds the parameters the exchange needs for one prediction market.
//
// Prices are integer ticks in (0, NumTicks). A complete set (one share of
// every outcome) is always worth NumTicks cash, so a share bought at price p
// costs p and its complement costs NumTicks-p.
type Market struct {
	// Identity. The address also holds the market's escrowed cash and shares.
	Address     common.Address `json:"address"`
	Description string         `json:"description"`
	Creator     common.Address `json:"creator"`

	// Outcome space
	NumOutcomes uint8     `json:"numOutcomes"` // 2 for binary/scalar markets
	NumTicks    *num.Uint `json:"numTicks"`    // price range; e.g. 10000 or 1e18

	// Fees are charged as payout/divisor; a zero divisor disables the fee.
	CreatorFeeDivisor   *num.Uint `json:"creatorFeeDivisor"`
	ReportingFeeDivisor *num.Uint `json:"reportingFeeDivisor"`

	// Resolution
	Status           Status      `json:"status"`
	PayoutNumerators []*num.Uint `json:"payoutNumerators,omitempty"` // sums to NumTicks once finalized
	FinalizedAt      time.Time   `json:"finalizedAt,omitempty"`
}

// Params is the configuration used to open a market
type Params struct {
	Description         string
	Creator             common.Address
	NumOutcomes         uint8
	NumTicks            *num.Uint
	CreatorFeeDivisor   *num.Uint
	ReportingFeeDivisor *num.Uint
}

// NewMarket creates a trading market with validation
func NewMarket(addr common.Address, p Params) (*Market, error) {
	m := &Market{
		Address:             addr,
		Description:         p.Description,
		Creator:             p.Creator,
		NumOutcomes:         p.NumOutcomes,
		NumTicks:            p.NumTicks.Clone(),
		CreatorFeeDivisor:   p.CreatorFeeDivisor.Clone(),
		ReportingFeeDivisor: p.ReportingFeeDivisor.Clone(),
		Status:              Trading,
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid market params: %w", err)
	}
	return m, nil
}

// Validate checks market parameter sanity
func (m *Market) Validate() error {
	if m.Address == (common.Address{}) {
		return fmt.Errorf("%w: address cannot be zero", ErrInvalidMarket)
	}
	if m.NumOutcomes < 2 || m.NumOutcomes > MaxOutcomes {
		return fmt.Errorf("%w: outcomes must be in [2, %d], got %d", ErrInvalidMarket, MaxOutcomes, m.NumOutcomes)
	}
	// numTicks of 1 leaves no valid price
	if m.NumTicks.LT(num.NewUint(2)) {
		return fmt.Errorf("%w: numTicks must be at least 2, got %s", ErrInvalidMarket, m.NumTicks)
	}
	if m.Status == Finalized {
		if err := m.checkPayout(m.PayoutNumerators); err != nil {
			return err
		}
	}
	return nil
}

// ValidOutcome reports whether o indexes an outcome of this market.
func (m *Market) ValidOutcome(o uint8) bool { return o < m.NumOutcomes }

// ValidPrice reports whether 0 < price < NumTicks.
func (m *Market) ValidPrice(price *num.Uint) bool {
	return !price.IsZero() && price.LT(m.NumTicks)
}

// IsFinalized reports whether payouts are known.
func (m *Market) IsFinalized() bool { return m.Status == Finalized }

// Outcomes returns 0..NumOutcomes-1.
func (m *Market) Outcomes() []uint8 {
	out := make([]uint8, m.NumOutcomes)
	for i := range out {
		out[i] = uint8(i)
	}
	return out
}

// OtherOutcomes returns every outcome except o.
func (m *Market) OtherOutcomes(o uint8) []uint8 {
	out := make([]uint8, 0, m.NumOutcomes-1)
	for i := uint8(0); i < m.NumOutcomes; i++ {
		if i != o {
			out = append(out, i)
		}
	}
	return out
}

// PayoutNumerator returns the payout per share of outcome o, zero before
// finalization.
func (m *Market) PayoutNumerator(o uint8) *num.Uint {
	if !m.IsFinalized() || int(o) >= len(m.PayoutNumerators) {
		return num.Zero()
	}
	return m.PayoutNumerators[o].Clone()
}

func (m *Market) checkPayout(numerators []*num.Uint) error {
	if len(numerators) != int(m.NumOutcomes) {
		return fmt.Errorf("%w: want %d numerators, got %d", ErrInvalidPayout, m.NumOutcomes, len(numerators))
	}
	sum, err := num.Sum(numerators...)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayout, err)
	}
	if !sum.EQ(m.NumTicks) {
		return fmt.Errorf("%w: numerators sum to %s, numTicks is %s", ErrInvalidPayout, sum, m.NumTicks)
	}
	return nil
}

// Clone returns a deep copy
func (m *Market) Clone() *Market {
	cp := *m
	cp.NumTicks = m.NumTicks.Clone()
	cp.CreatorFeeDivisor = m.CreatorFeeDivisor.Clone()
	cp.ReportingFeeDivisor = m.ReportingFeeDivisor.Clone()
	if m.PayoutNumerators != nil {
		cp.PayoutNumerators = make([]*num.Uint, len(m.PayoutNumerators))
		for i, p := range m.PayoutNumerators {
			cp.PayoutNumerators[i] = p.Clone()
		}
	}
	return &cp
}
