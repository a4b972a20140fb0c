// Package msg defines the interface for different message brokers and the messages exchanged on the avatar bus.
//
// Services are addressed by a key (ie. "everlife-stellar-svc"). A responder consumes the requests sent to its key
// and replies to each of them; a requester sends requests to other services' keys.
package msg

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
)

// Request types understood by the stellar service.
const (
	AccountID        = "account-id"
	Balance          = "balance"
	Txns             = "txns"
	SetupTrustline   = "setup-ever-trustline"
	PayEver          = "pay-ever"
	ClaimableBalance = "claimable-balance"
	ClaimBalance     = "claim-balance"
	ImportNewWallet  = "import-new-wallet"
	SetNewPw         = "set-new-pw"
	IssuerMetaData   = "issuer-meta-data"
	AccountQR        = "account-qr"
	Ops              = "ops"
	Msg              = "msg"
)

// Request types sent to the communication manager.
const (
	Reply              = "reply"
	RegisterMsgHandler = "register-msg-handler"
)

// Help is one entry of the command help registered with the communication manager.
type Help struct {
	Cmd string `json:"cmd"`
	Txt string `json:"txt"`
}

// Request is a message on the bus. Fields not known to this service are kept in Extra so a request can be sent back
// (ie. as a reply to a chat message) without losing them.
type Request struct {
	Type   string `json:"type"`
	Msg    string `json:"msg,omitempty"`
	Amt    string `json:"amt,omitempty"`
	To     string `json:"to,omitempty"`
	Cursor string `json:"cursor,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Secret string `json:"secret,omitempty"`
	Pw     string `json:"pw,omitempty"`
	ID     string `json:"id,omitempty"`
	// registration
	MsKey  string `json:"mskey,omitempty"`
	MsType string `json:"mstype,omitempty"`
	MsHelp []Help `json:"mshelp,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`

	// transport details, not part of the payload
	ReplyTo string `json:"-"`
	CorrID  string `json:"-"`
}

// requestFields avoids recursion in the json methods.
type requestFields Request

// number decodes a JSON number or string into its text, as requesters may send amounts and limits either way.
type number string

func (n *number) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = number(s)
		return nil
	}
	var v json.Number
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*n = number(v)
	return nil
}

// known returns the json names of the Request fields.
func known() map[string]bool {
	return map[string]bool{
		"type": true, "msg": true, "amt": true, "to": true, "cursor": true, "limit": true, "secret": true,
		"pw": true, "id": true, "mskey": true, "mstype": true, "mshelp": true,
	}
}

// UnmarshalJSON decodes the known fields and keeps the rest in Extra.
func (r *Request) UnmarshalJSON(b []byte) error {
	var w struct {
		requestFields
		Amt   number `json:"amt"`
		Limit number `json:"limit"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	f := w.requestFields
	f.Amt = string(w.Amt)
	if w.Limit != "" {
		limit, err := strconv.Atoi(string(w.Limit))
		if err != nil {
			return fmt.Errorf("invalid limit %q", w.Limit)
		}
		f.Limit = limit
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(b, &all); err != nil {
		return err
	}
	k := known()
	for name, v := range all {
		if k[name] {
			continue
		}
		if f.Extra == nil {
			f.Extra = make(map[string]json.RawMessage)
		}
		f.Extra[name] = v
	}
	f.ReplyTo, f.CorrID = r.ReplyTo, r.CorrID
	*r = Request(f)
	return nil
}

// MarshalJSON encodes the known fields and the Extra ones.
func (r Request) MarshalJSON() ([]byte, error) {
	b, err := json.Marshal(requestFields(r))
	if err != nil || len(r.Extra) == 0 {
		return b, err
	}
	var all map[string]json.RawMessage
	if err = json.Unmarshal(b, &all); err != nil {
		return nil, err
	}
	for name, v := range r.Extra {
		if _, ok := all[name]; !ok {
			all[name] = v
		}
	}
	return json.Marshal(all)
}

// Response is the reply to a request. Body contains the JSON result.
type Response struct {
	Body  json.RawMessage `json:"body,omitempty"`
	Error string          `json:"error,omitempty"`
}

// MsgBroker is implemented by the message brokers.
type MsgBroker interface {
	Setup(interface{}) error
	Close() error

	// methods for responders
	GetReqs(key string, mut *sync.Mutex) (<-chan Request, <-chan error, error)
	Reply(r Request, res Response) error

	// methods for requesters
	SendRequest(key string, r Request) error
}
