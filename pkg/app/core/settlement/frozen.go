package settlement

import (
	"fmt"

	"github.com/uhyunpark/predictcore/pkg/app/core/market"
	"github.com/uhyunpark/predictcore/pkg/num"
)

// FrozenShareValues prices one share of every outcome for an emergency
// liquidation. The values always sum to numTicks, so liquidating every
// outstanding complete set drains exactly the cash that backs them.
//
// A finalized market uses its payout numerators. Otherwise the cash of a set
// is split pro-rata over lastPrices, indexed by outcome; a nil entry is an
// outcome that never traded and weighs numTicks/numOutcomes. Truncation dust
// goes to the last outcome.
func FrozenShareValues(m *market.Market, lastPrices []*num.Uint) ([]*num.Uint, error) {
	n := int(m.NumOutcomes)
	if m.IsFinalized() {
		vals := make([]*num.Uint, n)
		for i := range vals {
			vals[i] = m.PayoutNumerator(uint8(i))
		}
		return vals, nil
	}
	if len(lastPrices) > n {
		return nil, fmt.Errorf("%d prices for %d outcomes", len(lastPrices), n)
	}

	untraded, err := num.Div(m.NumTicks, num.NewUint(uint64(n)))
	if err != nil {
		return nil, err
	}
	weights := make([]*num.Uint, n)
	for i := range weights {
		weights[i] = untraded
		if i < len(lastPrices) && lastPrices[i] != nil {
			weights[i] = lastPrices[i]
		}
	}
	total, err := num.Sum(weights...)
	if err != nil {
		return nil, err
	}
	if total.IsZero() {
		return nil, fmt.Errorf("market %s has no share weights", m.Address.Hex())
	}

	vals := make([]*num.Uint, n)
	assigned := num.Zero()
	for i, w := range weights[:n-1] {
		if vals[i], err = num.MulDiv(m.NumTicks, w, total); err != nil {
			return nil, err
		}
		if assigned, err = num.Add(assigned, vals[i]); err != nil {
			return nil, err
		}
	}
	if vals[n-1], err = num.Sub(m.NumTicks, assigned); err != nil {
		return nil, err
	}
	return vals, nil
}
