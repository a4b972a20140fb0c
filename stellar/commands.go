package stellar

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/tarancss/stellarsvc/lib/msg"
	"github.com/tarancss/stellarsvc/lib/store"
)

// Chat commands handled by the service.
const (
	CmdSetTrustline = "/wallet_set_trustline"
	CmdSaveKeys     = "/wallet_save_keys"
)

// Replies to chat commands.
const (
	replyTrustlineOK  = "Congratulations! EVER trustline set!"
	replyTrustlineErr = "Error setting EVER trustline"
	replyExportErr    = "Failed writing file"
)

const exportFmt = `# This is your Stellar Wallet SECRET
# Anyone with this information can control your wallet.
#
# Do not share this with anyone!!!

{
    "public": "%s",
    "secret": "%s"
}
`

// help is registered with the communication manager.
func help() []msg.Help {
	return []msg.Help{
		{Cmd: CmdSetTrustline, Txt: "setup EVER trustline"},
		{Cmd: CmdSaveKeys, Txt: "save/export wallet keys"},
	}
}

// command handles the chat messages forwarded by the communication manager. Messages that are not one of our
// commands are left for other handlers (empty reply); ours are accepted at once and run in the background, their
// outcome being sent back to the chat.
func (s *Service) command(ctx context.Context, req msg.Request) (interface{}, error) {
	var fn func(msg.Request)

	switch req.Msg {
	case CmdSaveKeys:
		fn = s.saveAccountKeys
	case CmdSetTrustline:
		fn = s.walletSetTrustline
	default:
		return nil, nil
	}

	// no new work once Stop has cancelled the service, it may be waiting on wg
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()

		return nil, ErrStopped
	}

	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		fn(req)
	}()

	return true, nil
}

// saveAccountKeys dumps the wallet key pair into a plain-text file readable only by the owner.
func (s *Service) saveAccountKeys(req msg.Request) {
	acc := s.account()
	fn := s.conf.ExportFile()

	err := os.MkdirAll(filepath.Dir(fn), 0o700)
	if err == nil {
		err = os.WriteFile(fn, []byte(fmt.Sprintf(exportFmt, acc.Pub(), acc.Secret())), 0o600)
	}

	if err == nil {
		// WriteFile keeps the mode of an existing file
		err = os.Chmod(fn, 0o600)
	}

	if err != nil {
		log.Printf("[%s] Error exporting wallet: %v", CmdSaveKeys, err)
		s.sendReply(replyExportErr, req)

		return
	}

	s.sendReply(fmt.Sprintf(`Exported your wallet to: "%s"`, fn), req)
}

// walletSetTrustline sets the EVER trustline and tells the user how it went.
func (s *Service) walletSetTrustline(req msg.Request) {
	ctx, cancel := s.timeout()
	defer cancel()

	acc := s.account()
	hash, err := s.ledger.SetTrustline(ctx, acc.KeyPair(), s.conf.Asset, s.conf.Issuer, "")
	s.record(acc.Pub(), store.Op{Type: msg.SetupTrustline, Asset: s.conf.Asset, To: s.conf.Issuer}, hash, err)

	if err != nil {
		log.Printf("[%s] Error setting trustline: %v", CmdSetTrustline, err)
		s.sendReply(replyTrustlineErr, req)

		return
	}

	s.sendReply(replyTrustlineOK, req)
}

// sendReply sends text to the chat the request came from.
func (s *Service) sendReply(text string, req msg.Request) {
	req.Type = msg.Reply
	req.Msg = text

	if err := s.mb.SendRequest(s.conf.CommKey, req); err != nil {
		log.Printf("[%s] Error sending reply: %v", s.conf.CommKey, err)
	}
}

// Register registers the service as a chat message handler with the communication manager.
func (s *Service) Register() error {
	return s.mb.SendRequest(s.conf.CommKey, msg.Request{
		Type:   msg.RegisterMsgHandler,
		MsKey:  s.conf.SvcKey,
		MsType: msg.Msg,
		MsHelp: help(),
	})
}
