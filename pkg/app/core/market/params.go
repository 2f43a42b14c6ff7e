package market

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/predictcore/pkg/num"
)

// Kind selects a market template.
type Kind string

const (
	Binary      Kind = "binary"
	Categorical Kind = "categorical"
	Scalar      Kind = "scalar"
)

// Default fee divisors: 1% to the creator and 0.01% to reporting.
var (
	DefaultCreatorFeeDivisor   = num.NewUint(100)
	DefaultReportingFeeDivisor = num.NewUint(10000)
)

// DefaultNumTicks gives binary and categorical markets four decimal places
// of price precision.
var DefaultNumTicks = num.NewUint(10000)

// BinaryParams returns parameters for a yes/no market.
// Outcome 0 is "no" and outcome 1 is "yes".
func BinaryParams(description string, creator common.Address) Params {
	return Params{
		Description:         description,
		Creator:             creator,
		NumOutcomes:         2,
		NumTicks:            DefaultNumTicks.Clone(),
		CreatorFeeDivisor:   DefaultCreatorFeeDivisor.Clone(),
		ReportingFeeDivisor: DefaultReportingFeeDivisor.Clone(),
	}
}

// CategoricalParams returns parameters for a market with n mutually
// exclusive outcomes.
func CategoricalParams(description string, creator common.Address, n uint8) Params {
	p := BinaryParams(description, creator)
	p.NumOutcomes = n
	return p
}

// ScalarParams returns parameters for a market that pays out along a range.
// numTicks is the width of the range in ticks; outcome 0 is the short side
// and outcome 1 the long side.
func ScalarParams(description string, creator common.Address, numTicks *num.Uint) Params {
	p := BinaryParams(description, creator)
	p.NumTicks = numTicks.Clone()
	return p
}

// ParamsFor builds template parameters by kind. outcomes is only used for
// categorical markets and numTicks only for scalar ones; a nil numTicks
// falls back to DefaultNumTicks.
func ParamsFor(kind Kind, description string, creator common.Address, outcomes uint8, numTicks *num.Uint) (Params, error) {
	switch Kind(strings.ToLower(string(kind))) {
	case Binary, "":
		return BinaryParams(description, creator), nil
	case Categorical:
		return CategoricalParams(description, creator, outcomes), nil
	case Scalar:
		if numTicks == nil {
			numTicks = DefaultNumTicks
		}
		return ScalarParams(description, creator, numTicks), nil
	}
	return Params{}, fmt.Errorf("%w: unknown market kind %q", ErrInvalidMarket, kind)
}

// WithFees overrides the fee divisors. A zero divisor disables that fee.
func (p Params) WithFees(creatorDivisor, reportingDivisor uint64) Params {
	p.CreatorFeeDivisor = num.NewUint(creatorDivisor)
	p.ReportingFeeDivisor = num.NewUint(reportingDivisor)
	return p
}
