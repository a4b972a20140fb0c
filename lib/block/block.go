// Package block defines the interface required for the ledger connection.
package block

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/stellar/go/keypair"

	"github.com/tarancss/stellarsvc/lib/block/horizon"
	"github.com/tarancss/stellarsvc/lib/block/types"
	"github.com/tarancss/stellarsvc/lib/config"
)

// Ledger is an interface that contains the required methods. Operations that change the ledger sign with the given
// key pair and return the transaction hash.
type Ledger interface {
	// member-type methods
	Network() string
	// methods
	Status(ctx context.Context, pub string) (types.Account, error)
	Balances(ctx context.Context, pub, asset, issuer string) (types.Bal, error)
	DataAttrs(ctx context.Context, pub string) (map[string]string, error)
	SetTrustline(ctx context.Context, kp *keypair.Full, asset, issuer, limit string) (string, error)
	Pay(ctx context.Context, kp *keypair.Full, to, asset, issuer, amount string) (string, error)
	Txns(ctx context.Context, pub, cursor string, max int) (types.Txns, error)
	ClaimableBalances(ctx context.Context, pub string) ([]types.Claimable, error)
	Claim(ctx context.Context, kp *keypair.Full, id string) (string, error)
}

// Init returns the ledger client for the horizon network in the config.
func Init(conf config.ServiceConfig) (Ledger, error) {
	switch conf.Horizon {
	case config.HorizonTest, config.HorizonLive:
		h := horizon.Init(conf.Horizon, time.Duration(conf.Timeout)*time.Second)
		log.Printf("[%s] Horizon client ready", conf.Horizon)

		return h, nil
	}

	return nil, fmt.Errorf("%w: %s", types.ErrNetwork, conf.Horizon)
}
