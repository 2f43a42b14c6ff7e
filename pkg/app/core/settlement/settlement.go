// Package settlement holds the pure arithmetic of the exchange: fill leg
// planning, fee computation, complete set pricing and redemption payouts.
// Nothing here touches balances.
package settlement

import (
	"fmt"

	"github.com/uhyunpark/predictcore/pkg/app/core/market"
	"github.com/uhyunpark/predictcore/pkg/num"
)

// Fees charged on a payout.
type Fees struct {
	Creator   *num.Uint `json:"creator"`
	Reporting *num.Uint `json:"reporting"`
}

// NoFees is the zero fee pair.
func NoFees() Fees { return Fees{Creator: num.Zero(), Reporting: num.Zero()} }

// Total returns Creator + Reporting.
func (f Fees) Total() (*num.Uint, error) { return num.Add(f.Creator, f.Reporting) }

// Add sums two fee pairs.
func (f Fees) Add(o Fees) (Fees, error) {
	c, err := num.Add(f.Creator, o.Creator)
	if err != nil {
		return Fees{}, err
	}
	r, err := num.Add(f.Reporting, o.Reporting)
	if err != nil {
		return Fees{}, err
	}
	return Fees{Creator: c, Reporting: r}, nil
}

func divOrZero(v, divisor *num.Uint) *num.Uint {
	if divisor.IsZero() {
		return num.Zero()
	}
	q, _ := num.Div(v, divisor)
	return q
}

// ComputeFees charges payout/creatorDivisor and payout/reportingDivisor,
// truncated. A zero divisor means no fee of that kind.
func ComputeFees(payout, creatorDivisor, reportingDivisor *num.Uint) Fees {
	return Fees{
		Creator:   divOrZero(payout, creatorDivisor),
		Reporting: divOrZero(payout, reportingDivisor),
	}
}

// MarketFees applies the market's fee divisors to payout.
func MarketFees(m *market.Market, payout *num.Uint) Fees {
	return ComputeFees(payout, m.CreatorFeeDivisor, m.ReportingFeeDivisor)
}

// CompleteSetCost is the cash value of n complete sets: n * numTicks.
func CompleteSetCost(numTicks, n *num.Uint) (*num.Uint, error) {
	return num.Mul(n, numTicks)
}

// CompleteSetSale returns the net cash and fees for selling amount complete
// sets back to the market.
func CompleteSetSale(m *market.Market, amount *num.Uint) (*num.Uint, Fees, error) {
	gross, err := CompleteSetCost(m.NumTicks, amount)
	if err != nil {
		return nil, Fees{}, err
	}
	fees := MarketFees(m, gross)
	total, err := fees.Total()
	if err != nil {
		return nil, Fees{}, err
	}
	net, err := num.Sub(gross, total)
	if err != nil {
		return nil, Fees{}, err
	}
	return net, fees, nil
}

// CalculateProceeds is the gross redemption value of amount shares of
// outcome: amount * payoutNumerator[outcome].
func CalculateProceeds(m *market.Market, outcome uint8, amount *num.Uint) (*num.Uint, error) {
	if !m.ValidOutcome(outcome) {
		return nil, fmt.Errorf("outcome %d out of range for %d outcomes", outcome, m.NumOutcomes)
	}
	return num.Mul(amount, m.PayoutNumerator(outcome))
}

// CalculateCreatorFee is proceeds / creatorFeeDivisor.
func CalculateCreatorFee(m *market.Market, proceeds *num.Uint) *num.Uint {
	return divOrZero(proceeds, m.CreatorFeeDivisor)
}

// CalculateReportingFee is proceeds / reportingFeeDivisor.
func CalculateReportingFee(m *market.Market, proceeds *num.Uint) *num.Uint {
	return divOrZero(proceeds, m.ReportingFeeDivisor)
}

// Winnings is the redemption of one outcome balance.
type Winnings struct {
	Outcome          uint8     `json:"outcome"`
	Amount           *num.Uint `json:"amount"`
	Proceeds         *num.Uint `json:"proceeds"`
	ShareholderShare *num.Uint `json:"shareholderShare"`
	CreatorShare     *num.Uint `json:"creatorShare"`
	ReporterShare    *num.Uint `json:"reporterShare"`
}

// DivideUpWinnings splits the proceeds of amount shares of outcome between
// the shareholder, the market creator and the reporting fee recipient.
func DivideUpWinnings(m *market.Market, outcome uint8, amount *num.Uint) (Winnings, error) {
	proceeds, err := CalculateProceeds(m, outcome, amount)
	if err != nil {
		return Winnings{}, err
	}
	creator := CalculateCreatorFee(m, proceeds)
	reporter := CalculateReportingFee(m, proceeds)
	fees, err := num.Add(creator, reporter)
	if err != nil {
		return Winnings{}, err
	}
	holder, err := num.Sub(proceeds, fees)
	if err != nil {
		return Winnings{}, fmt.Errorf("fees %s exceed proceeds %s: %w", fees, proceeds, err)
	}
	return Winnings{
		Outcome:          outcome,
		Amount:           amount.Clone(),
		Proceeds:         proceeds,
		ShareholderShare: holder,
		CreatorShare:     creator,
		ReporterShare:    reporter,
	}, nil
}
