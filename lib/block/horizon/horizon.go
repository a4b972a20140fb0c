// Package horizon implements the ledger interface for the Stellar network through a Horizon server.
package horizon

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/stellar/go/amount"
	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/network"
	hProtocol "github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/txnbuild"

	"github.com/tarancss/stellarsvc/lib/block/types"
)

// Horizon servers.
const (
	TestURL = "https://horizon-testnet.stellar.org/"
	LiveURL = "https://horizon.stellar.org/"
)

// Transaction history paging.
const (
	pageSize   = 200
	maxRetries = 3
	txTimeout  = 300 // seconds a submitted transaction stays valid
)

// retryWait is the back-off unit between history page retries.
var retryWait = 500 * time.Millisecond //nolint:gochecknoglobals // shortened by tests

// Client is the part of the Horizon API used by the ledger. *horizonclient.Client implements it.
type Client interface {
	horizonclient.ClientInterface
	ClaimableBalances(cbr horizonclient.ClaimableBalanceRequest) (hProtocol.ClaimableBalances, error)
}

// Horizon implements a connection to a Stellar network.
type Horizon struct {
	c          Client
	net        string
	passphrase string
}

// Init returns a connection to the "test" or "live" network. Any other name connects to the test network.
func Init(net string, timeout time.Duration) *Horizon {
	url, passphrase := TestURL, network.TestNetworkPassphrase
	if net == "live" {
		url, passphrase = LiveURL, network.PublicNetworkPassphrase
	}
	c := &horizonclient.Client{
		HorizonURL: url,
		HTTP:       &http.Client{Timeout: timeout},
	}
	return New(c, net, passphrase)
}

// New returns a Horizon ledger using client c and the network passphrase used to sign transactions.
func New(c Client, net, passphrase string) *Horizon {
	return &Horizon{c: c, net: net, passphrase: passphrase}
}

// Network returns the network name.
func (h *Horizon) Network() string {
	return h.net
}

// ledgerError converts horizon problems into types.LedgerError.
func ledgerError(err error) error {
	var herr *horizonclient.Error
	if !errors.As(err, &herr) {
		return err
	}
	le := &types.LedgerError{Status: herr.Problem.Status, Title: herr.Problem.Title, Detail: herr.Problem.Detail}
	if rc, errRc := herr.ResultCodes(); errRc == nil && rc != nil {
		if rc.TransactionCode != "" {
			le.Codes = append(le.Codes, rc.TransactionCode)
		}
		le.Codes = append(le.Codes, rc.OperationCodes...)
	}
	return le
}

func notFound(err error) bool {
	var le *types.LedgerError
	return errors.As(err, &le) && le.Status == http.StatusNotFound
}

func temporary(err error) bool {
	var le *types.LedgerError
	if errors.As(err, &le) {
		return le.Temporary()
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (h *Horizon) account(ctx context.Context, pub string) (hProtocol.Account, error) {
	if err := ctx.Err(); err != nil {
		return hProtocol.Account{}, err
	}
	acc, err := h.c.AccountDetail(horizonclient.AccountRequest{AccountID: pub})
	if err != nil {
		if err = ledgerError(err); notFound(err) {
			return acc, fmt.Errorf("%w: %s", types.ErrNoAccount, pub)
		}
		return acc, err
	}
	return acc, nil
}

// Status returns the account details: sequence, balances and decoded data entries.
func (h *Horizon) Status(ctx context.Context, pub string) (types.Account, error) {
	acc, err := h.account(ctx, pub)
	if err != nil {
		return types.Account{}, err
	}
	a := types.Account{ID: acc.AccountID, Sequence: fmt.Sprint(acc.Sequence), Data: decodeData(acc.Data)}
	for _, b := range acc.Balances {
		a.Balances = append(a.Balances, types.Balance{
			Type:    b.Type,
			Code:    b.Code,
			Issuer:  b.Issuer,
			Balance: b.Balance,
			Limit:   b.Limit,
		})
	}
	return a, nil
}

func decodeData(data map[string]string) map[string]string {
	m := make(map[string]string, len(data))
	for k, v := range data {
		d, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			m[k] = v
			continue
		}
		m[k] = string(d)
	}
	return m
}

// Balances returns the lumens balance and the balance of asset issued by issuer. Accounts that do not exist yet on
// the ledger have zero balances.
func (h *Horizon) Balances(ctx context.Context, pub, asset, issuer string) (types.Bal, error) {
	bal := types.Bal{XLM: "0", Ever: "0"}
	a, err := h.Status(ctx, pub)
	if err != nil {
		if errors.Is(err, types.ErrNoAccount) {
			return bal, nil
		}
		return bal, err
	}
	for _, b := range a.Balances {
		if b.Type == types.Native {
			bal.XLM = b.Balance
		}
		if b.Code == asset && b.Issuer == issuer {
			bal.Ever = b.Balance
		}
	}
	return bal, nil
}

// DataAttrs returns the decoded data entries of account pub (ie. the asset issuer meta data).
func (h *Horizon) DataAttrs(ctx context.Context, pub string) (map[string]string, error) {
	a, err := h.Status(ctx, pub)
	if err != nil {
		return nil, err
	}
	return a.Data, nil
}

func asset(code, issuer string) txnbuild.Asset {
	if code == "" || code == "XLM" || code == types.Native {
		return txnbuild.NativeAsset{}
	}
	return txnbuild.CreditAsset{Code: code, Issuer: issuer}
}

// submit builds a transaction with the single operation op from the account of kp, signs it and submits it.
func (h *Horizon) submit(ctx context.Context, kp *keypair.Full, op txnbuild.Operation) (string, error) {
	acc, err := h.account(ctx, kp.Address())
	if err != nil {
		return "", err
	}
	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        &acc,
		IncrementSequenceNum: true,
		BaseFee:              txnbuild.MinBaseFee,
		Preconditions:        txnbuild.Preconditions{TimeBounds: txnbuild.NewTimeout(txTimeout)},
		Operations:           []txnbuild.Operation{op},
	})
	if err != nil {
		return "", fmt.Errorf("cannot build transaction: %w", err)
	}
	if tx, err = tx.Sign(h.passphrase, kp); err != nil {
		return "", fmt.Errorf("cannot sign transaction: %w", err)
	}
	if err = ctx.Err(); err != nil {
		return "", err
	}
	res, err := h.c.SubmitTransaction(tx)
	if err != nil {
		err = ledgerError(err)
		log.Printf("[%s] Transaction from %s failed: %v", h.net, kp.Address(), err)
		return "", err
	}
	return res.Hash, nil
}

// SetTrustline lets the account of kp hold asset issued by issuer. An empty limit means the maximum.
func (h *Horizon) SetTrustline(ctx context.Context, kp *keypair.Full, code, issuer, limit string) (string, error) {
	if _, err := keypair.ParseAddress(issuer); err != nil {
		return "", fmt.Errorf("%w: issuer %s", types.ErrAddress, issuer)
	}
	if limit != "" {
		if err := checkAmount(limit); err != nil {
			return "", err
		}
	}
	line, err := txnbuild.CreditAsset{Code: code, Issuer: issuer}.ToChangeTrustAsset()
	if err != nil {
		return "", fmt.Errorf("cannot build trustline asset: %w", err)
	}
	return h.submit(ctx, kp, &txnbuild.ChangeTrust{Line: line, Limit: limit})
}

func checkAmount(amt string) error {
	v, err := amount.ParseInt64(strings.TrimSpace(amt))
	if err != nil || v <= 0 {
		return fmt.Errorf("%w: %q", types.ErrAmount, amt)
	}
	return nil
}

// Pay sends amount of asset (issued by issuer) from the account of kp to account to. When to is empty the payment is
// sent to the issuer.
func (h *Horizon) Pay(ctx context.Context, kp *keypair.Full, to, code, issuer, amt string) (string, error) {
	if err := checkAmount(amt); err != nil {
		return "", err
	}
	if to == "" {
		to = issuer
	}
	if _, err := keypair.ParseAddress(to); err != nil {
		return "", fmt.Errorf("%w: %s", types.ErrAddress, to)
	}
	return h.submit(ctx, kp, &txnbuild.Payment{
		Destination: to,
		Amount:      strings.TrimSpace(amt),
		Asset:       asset(code, issuer),
	})
}

// Txns accumulates the transactions of account pub after cursor, page by page, until there are no more or max
// transactions have been read. Failed pages are retried with a linear back-off.
func (h *Horizon) Txns(ctx context.Context, pub, cursor string, max int) (types.Txns, error) {
	res := types.Txns{Txns: []types.Trans{}, Cursor: cursor}
	if max <= 0 {
		max = pageSize
	}
	for len(res.Txns) < max {
		limit := pageSize
		if left := max - len(res.Txns); left < limit {
			limit = left
		}
		page, err := h.txnsPage(ctx, pub, res.Cursor, limit)
		if err != nil {
			if notFound(err) {
				if len(res.Txns) == 0 {
					return res, fmt.Errorf("%w: %s", types.ErrNoAccount, pub)
				}
				break
			}
			return res, err
		}
		for _, t := range page.Embedded.Records {
			res.Txns = append(res.Txns, types.Trans{
				ID:      t.ID,
				Hash:    t.Hash,
				Ledger:  t.Ledger,
				TS:      t.LedgerCloseTime.UTC().Format(time.RFC3339),
				Source:  t.Account,
				Fee:     t.FeeCharged,
				Ops:     t.OperationCount,
				Memo:    t.Memo,
				Success: t.Successful,
				Cursor:  t.PagingToken(),
			})
			res.Cursor = t.PagingToken()
		}
		if len(page.Embedded.Records) < limit {
			break
		}
	}
	return res, nil
}

func (h *Horizon) txnsPage(ctx context.Context, pub, cursor string, limit int) (page hProtocol.TransactionsPage,
	err error) {
	req := horizonclient.TransactionRequest{
		ForAccount: pub,
		Cursor:     cursor,
		Limit:      uint(limit),
		Order:      horizonclient.OrderAsc,
	}
	for attempt := 1; ; attempt++ {
		if err = ctx.Err(); err != nil {
			return page, err
		}
		if page, err = h.c.Transactions(req); err == nil {
			return page, nil
		}
		err = ledgerError(err)
		if attempt == maxRetries || !temporary(err) {
			return page, err
		}
		log.Printf("[%s] Transactions page for %s failed (attempt %d/%d): %v", h.net, pub, attempt, maxRetries, err)
		select {
		case <-ctx.Done():
			return page, ctx.Err()
		case <-time.After(time.Duration(attempt) * retryWait):
		}
	}
}

// ClaimableBalances returns the claimable balances that account pub can claim.
func (h *Horizon) ClaimableBalances(ctx context.Context, pub string) ([]types.Claimable, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cbs, err := h.c.ClaimableBalances(horizonclient.ClaimableBalanceRequest{Claimant: pub})
	if err != nil {
		return nil, ledgerError(err)
	}
	res := make([]types.Claimable, 0, len(cbs.Embedded.Records))
	for _, cb := range cbs.Embedded.Records {
		res = append(res, types.Claimable{ID: cb.BalanceID, Asset: cb.Asset, Amount: cb.Amount, Sponsor: cb.Sponsor})
	}
	return res, nil
}

// Claim claims the claimable balance id for the account of kp.
func (h *Horizon) Claim(ctx context.Context, kp *keypair.Full, id string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", types.ErrNoID
	}
	return h.submit(ctx, kp, &txnbuild.ClaimClaimableBalance{BalanceID: strings.TrimSpace(id)})
}
