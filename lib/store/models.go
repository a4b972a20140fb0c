package store

// Op status values.
const (
	OpOK     = "ok"
	OpFailed = "failed"
)

// Op contains the fields of a ledger operation submitted by the service.
type Op struct {
	ID     []byte `json:"id"`
	Type   string `json:"type"`
	Asset  string `json:"asset,omitempty"`
	Amount string `json:"amount,omitempty"`
	To     string `json:"to,omitempty"`
	Hash   string `json:"hash,omitempty"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	TS     int64  `json:"ts"`
}

// AccountOps contains the operations of one account saved to DB.
type AccountOps struct {
	Account string `json:"account"`
	Ops     []Op   `json:"ops"`
}

// IssuerMeta contains the data attributes of an asset issuer saved to DB.
type IssuerMeta struct {
	Data    map[string]string `json:"data" bson:"data"`
	Updated int64             `json:"updated" bson:"updated"`
}
