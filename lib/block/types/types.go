// Package types common ledger types.
package types

import (
	"errors"
	"fmt"
	"strings"
)

// Native is the asset type of lumens.
const Native = "native"

// Balance is one balance line of an account.
type Balance struct {
	Type    string `json:"asset_type"`
	Code    string `json:"asset_code,omitempty"`
	Issuer  string `json:"asset_issuer,omitempty"`
	Balance string `json:"balance"`
	Limit   string `json:"limit,omitempty"`
}

// Account contains a simplified number of account fields.
type Account struct {
	ID       string            `json:"id"`
	Sequence string            `json:"sequence"`
	Balances []Balance         `json:"balances"`
	Data     map[string]string `json:"data_attr,omitempty"` // decoded data entries
}

// Bal is the reply to a balance request: lumens and the avatar asset.
type Bal struct {
	XLM  string `json:"xlm"`
	Ever string `json:"ever"`
}

// Trans contains a simplified number of transaction fields.
type Trans struct {
	ID      string `json:"id"`
	Hash    string `json:"hash"`
	Ledger  int32  `json:"ledger"`
	TS      string `json:"ts"`
	Source  string `json:"source"`
	Fee     int64  `json:"fee"`
	Ops     int32  `json:"ops"`
	Memo    string `json:"memo,omitempty"`
	Success bool   `json:"success"`
	Cursor  string `json:"paging_token"`
}

// Txns is a batch of accumulated transactions and the cursor to continue from.
type Txns struct {
	Txns   []Trans `json:"txns"`
	Cursor string  `json:"cursor"`
}

// Claimable is a claimable balance the account can claim.
type Claimable struct {
	ID      string `json:"id"`
	Asset   string `json:"asset"`
	Amount  string `json:"amount"`
	Sponsor string `json:"sponsor,omitempty"`
}

// LedgerError is a problem reported by the ledger gateway.
type LedgerError struct {
	Status int      `json:"status"`
	Title  string   `json:"title"`
	Detail string   `json:"detail,omitempty"`
	Codes  []string `json:"codes,omitempty"` // transaction and operation result codes
}

func (e *LedgerError) Error() string {
	s := fmt.Sprintf("ledger error %d: %s", e.Status, e.Title)
	if len(e.Codes) > 0 {
		s += " (" + strings.Join(e.Codes, ",") + ")"
	}
	return s
}

// Temporary is true for errors that may go away on retry.
func (e *LedgerError) Temporary() bool {
	return e.Status == 0 || e.Status == 429 || e.Status >= 500
}

// Error codes.
var (
	ErrNoAccount = errors.New("account not found on the ledger")
	ErrAmount    = errors.New("amount has to be a positive number with up to 7 decimals")
	ErrNoID      = errors.New("claimable balance id is required")
	ErrAddress   = errors.New("invalid account address")
	ErrNetwork   = errors.New("unknown horizon network")
)
