package account

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/predictcore/pkg/num"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInvalidAmount         = errors.New("amount must be positive")
	ErrBatchClosed           = errors.New("batch already committed or discarded")
)

// Token identifies a fungible balance in the ledger: the cash token, or the
// share token of one outcome of one market.
type Token struct {
	Market  common.Address `json:"market"`
	Outcome uint8          `json:"outcome"`
	IsShare bool           `json:"isShare"`
}

// Cash returns the settlement currency token.
func Cash() Token { return Token{} }

// Share returns the share token for outcome o of market m.
func Share(m common.Address, o uint8) Token {
	return Token{Market: m, Outcome: o, IsShare: true}
}

func (t Token) String() string {
	if !t.IsShare {
		return "cash"
	}
	return fmt.Sprintf("%s:%d", t.Market.Hex(), t.Outcome)
}

// Holding is one non-zero balance of a holder, used for account queries.
type Holding struct {
	Token   Token     `json:"token"`
	Balance *num.Uint `json:"balance"`
}

type balKey struct {
	token  Token
	holder common.Address
}

type allowKey struct {
	token   Token
	owner   common.Address
	spender common.Address
}
