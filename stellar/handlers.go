package stellar

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/skip2/go-qrcode"

	"github.com/tarancss/stellarsvc/lib/keystore"
	"github.com/tarancss/stellarsvc/lib/msg"
	"github.com/tarancss/stellarsvc/lib/pw"
	"github.com/tarancss/stellarsvc/lib/store"
)

// qrSize is the side in pixels of the account QR code.
const qrSize = 256

// Errors returned to requesters.
var (
	ErrUnknownType = errors.New("unknown request type")
	ErrBadRequest  = errors.New("bad request")
	ErrNoStore     = errors.New("no database configured")
	ErrNoSecret    = errors.New("missing secret in request")
	ErrNoPw        = errors.New("missing password in request")
	ErrStopped     = errors.New("service is stopping")
)

// handler serves one request type. The result is marshalled into the response body, a nil result leaves it empty.
type handler func(ctx context.Context, req msg.Request) (interface{}, error)

func (s *Service) handlers() map[string]handler {
	return map[string]handler{
		msg.AccountID:        s.accountID,
		msg.Balance:          s.balance,
		msg.Txns:             s.txns,
		msg.SetupTrustline:   s.setupTrustline,
		msg.PayEver:          s.payEver,
		msg.ClaimableBalance: s.claimable,
		msg.ClaimBalance:     s.claim,
		msg.ImportNewWallet:  s.importWallet,
		msg.SetNewPw:         s.setNewPw,
		msg.IssuerMetaData:   s.issuerMetaData,
		msg.AccountQR:        s.accountQR,
		msg.Ops:              s.ops,
		msg.Msg:              s.command,
	}
}

// Handle serves a request and returns the response to reply with. Errors are logged and returned in the response.
func (s *Service) Handle(req msg.Request) (res msg.Response) {
	var err error

	var body interface{}

	start, label := time.Now(), req.Type

	defer func() {
		if err != nil {
			res.Error = err.Error()
		} else if body != nil {
			if res.Body, err = json.Marshal(body); err != nil {
				res.Error = err.Error()
			}
		}
		// log request and account metrics
		log.Printf("[%s] req from %s res:%s err:%v", req.Type, req.CorrID, res.Body, err)
		observe(label, start, err)
	}()

	h, ok := s.handlers()[req.Type]
	if !ok {
		label = "unknown"
		err = fmt.Errorf("%w: %q", ErrUnknownType, req.Type)

		return
	}

	ctx, cancel := s.timeout()
	defer cancel()

	body, err = h(ctx, req)

	return
}

func (s *Service) accountID(ctx context.Context, req msg.Request) (interface{}, error) {
	return s.account().Pub(), nil
}

func (s *Service) balance(ctx context.Context, req msg.Request) (interface{}, error) {
	return s.ledger.Balances(ctx, s.account().Pub(), s.conf.Asset, s.conf.Issuer)
}

// txnMax returns the number of transactions to accumulate for a request limit.
func (s *Service) txnMax(limit int) int {
	if limit > 0 && (s.conf.TxnMax <= 0 || limit < s.conf.TxnMax) {
		return limit
	}

	return s.conf.TxnMax
}

func (s *Service) txns(ctx context.Context, req msg.Request) (interface{}, error) {
	return s.ledger.Txns(ctx, s.account().Pub(), req.Cursor, s.txnMax(req.Limit))
}

func (s *Service) setupTrustline(ctx context.Context, req msg.Request) (interface{}, error) {
	acc := s.account()
	hash, err := s.ledger.SetTrustline(ctx, acc.KeyPair(), s.conf.Asset, s.conf.Issuer, "")
	s.record(acc.Pub(), store.Op{Type: msg.SetupTrustline, Asset: s.conf.Asset, To: s.conf.Issuer}, hash, err)

	return hash, err
}

func (s *Service) payEver(ctx context.Context, req msg.Request) (interface{}, error) {
	to := req.To
	if to == "" {
		to = s.conf.Issuer
	}

	acc := s.account()
	hash, err := s.ledger.Pay(ctx, acc.KeyPair(), to, s.conf.Asset, s.conf.Issuer, req.Amt)
	s.record(acc.Pub(), store.Op{Type: msg.PayEver, Asset: s.conf.Asset, Amount: req.Amt, To: to}, hash, err)

	return hash, err
}

func (s *Service) claimable(ctx context.Context, req msg.Request) (interface{}, error) {
	return s.ledger.ClaimableBalances(ctx, s.account().Pub())
}

func (s *Service) claim(ctx context.Context, req msg.Request) (interface{}, error) {
	acc := s.account()
	hash, err := s.ledger.Claim(ctx, acc.KeyPair(), req.ID)
	s.record(acc.Pub(), store.Op{Type: msg.ClaimBalance, To: req.ID}, hash, err)

	return hash, err
}

// importWallet saves the secret as the next wallet, which becomes the active one.
func (s *Service) importWallet(ctx context.Context, req msg.Request) (interface{}, error) {
	secret := strings.TrimSpace(req.Secret)
	if secret == "" {
		return nil, ErrNoSecret
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.conf.WalletDir()

	infos, errs, err := keystore.List(dir)
	if err != nil {
		return nil, err
	}

	for _, e := range errs {
		log.Printf("[%s] Wallet problem: %v", msg.ImportNewWallet, e)
	}

	acc, err := keystore.Import(s.pw, dir, keystore.NextName(infos), secret)
	if err != nil {
		return nil, err
	}

	log.Printf("[%s] Wallet %s is now active: %s", msg.ImportNewWallet, acc.Name(), acc.Pub())
	s.acc = acc

	return acc.Pub(), nil
}

// setNewPw encrypts every wallet with the new password and saves it to the password file.
func (s *Service) setNewPw(ctx context.Context, req msg.Request) (interface{}, error) {
	if req.Pw == "" {
		return nil, ErrNoPw
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.conf.WalletDir()
	if err := keystore.ChangePassword(s.pw, req.Pw, dir); err != nil {
		return nil, err
	}

	if err := pw.Save(s.conf.PasswordFile(), s.conf.PwEnc, req.Pw); err != nil {
		// wallets must stay readable with the password on file
		if errBack := keystore.ChangePassword(req.Pw, s.pw, dir); errBack != nil {
			log.Printf("[%s] Error restoring wallet password: %v", msg.SetNewPw, errBack)
		}

		return nil, err
	}

	s.pw = req.Pw

	return true, nil
}

func (s *Service) issuerMetaData(ctx context.Context, req msg.Request) (interface{}, error) {
	return s.issuerMeta()
}

// accountQR returns the PNG QR code of the account public key, base64 encoded.
func (s *Service) accountQR(ctx context.Context, req msg.Request) (interface{}, error) {
	png, err := qrcode.Encode(s.account().Pub(), qrcode.Medium, qrSize)
	if err != nil {
		return nil, err
	}

	return base64.StdEncoding.EncodeToString(png), nil
}

func (s *Service) ops(ctx context.Context, req msg.Request) (interface{}, error) {
	if s.db == nil {
		return nil, ErrNoStore
	}

	ops, err := s.db.GetOps([]string{s.account().Pub()})
	if err != nil {
		return nil, err
	}

	if len(ops) == 0 {
		return []store.Op{}, nil
	}

	return ops[0].Ops, nil
}

// record saves an operation submitted to the ledger, if a database is configured.
func (s *Service) record(pub string, op store.Op, hash string, err error) {
	if s.db == nil {
		return
	}

	op.Hash, op.Status, op.TS = hash, store.OpOK, time.Now().Unix()
	if err != nil {
		op.Status, op.Error = store.OpFailed, err.Error()
	}

	if _, errAdd := s.db.AddOp(op, pub); errAdd != nil {
		log.Printf("[%s] Error saving operation to DB, err:%v", op.Type, errAdd)
	}
}
