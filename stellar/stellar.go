// Package stellar implements the stellar wallet microservice.
//
// The service answers the requests other avatar services send to its key on the message bus (balances, payments,
// trustlines, transaction history, ...) using the wallet of the avatar. It also handles the chat commands the
// communication manager forwards to it, and can serve the same operations through a RESTful API for operators.
package stellar

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/tarancss/stellarsvc/lib/block"
	"github.com/tarancss/stellarsvc/lib/config"
	"github.com/tarancss/stellarsvc/lib/keystore"
	"github.com/tarancss/stellarsvc/lib/msg"
	"github.com/tarancss/stellarsvc/lib/store"
	"github.com/tarancss/stellarsvc/lib/store/db"
)

// Service contains the data necessary to deliver the service
type Service struct {
	conf   config.ServiceConfig
	ledger block.Ledger // stellar network client
	mb     msg.MsgBroker
	db     store.DB // optional journal and cache, nil when not configured

	mu   sync.RWMutex // guards acc, pw and meta
	acc  *keystore.Account
	pw   string
	meta map[string]string // issuer data attributes

	ctx    context.Context // cancelled by Stop
	cancel context.CancelFunc
	wg     sync.WaitGroup // running chat commands

	s  *http.Server  // http server
	sc chan struct{} // http server channel used for graceful shutdowns
}

// New returns a pointer to a new stellar Service for the wallet account acc, encrypted with password pw.
func New(conf config.ServiceConfig, ledger block.Ledger, mb msg.MsgBroker, dbConn store.DB, acc *keystore.Account,
	pw string) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	return &Service{
		conf:   conf,
		ledger: ledger,
		mb:     mb,
		db:     dbConn,
		acc:    acc,
		pw:     pw,
		ctx:    ctx,
		cancel: cancel,
		sc:     make(chan struct{}),
	}
}

// account returns the active wallet account.
func (s *Service) account() *keystore.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.acc
}

// timeout returns a context for one ledger call.
func (s *Service) timeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(s.ctx, time.Duration(s.conf.Timeout)*time.Second)
}

// LoadMetaData reads the data attributes of the asset issuer from the ledger. When the ledger cannot be reached the
// attributes cached in the database, if any, are used instead.
func (s *Service) LoadMetaData() error {
	ctx, cancel := s.timeout()
	defer cancel()

	data, err := s.ledger.DataAttrs(ctx, s.conf.Issuer)
	if err == nil {
		s.setMeta(data)

		if s.db != nil {
			im := store.IssuerMeta{Data: data, Updated: time.Now().Unix()}
			if errSave := s.db.SaveMeta(s.conf.Issuer, im); errSave != nil {
				log.Printf("[%s] Error saving issuer meta data to DB, err:%v", s.conf.Issuer, errSave)
			}
		}

		return nil
	}

	log.Printf("[%s] Error loading issuer meta data: %v", s.conf.Issuer, err)

	if s.db != nil {
		im, errLoad := s.db.LoadMeta(s.conf.Issuer)
		if errLoad == nil {
			log.Printf("[%s] Using issuer meta data saved at %s", s.conf.Issuer, time.Unix(im.Updated, 0).UTC())
			s.setMeta(im.Data)

			return nil
		}

		if !errors.Is(errLoad, store.ErrDataNotFound) {
			log.Printf("[%s] Error loading issuer meta data from DB, err:%v", s.conf.Issuer, errLoad)
		}
	}

	return err
}

func (s *Service) setMeta(data map[string]string) {
	s.mu.Lock()
	s.meta = data
	s.mu.Unlock()
}

// issuerMeta returns the issuer data attributes, loading them again if the startup load failed.
func (s *Service) issuerMeta() (map[string]string, error) {
	s.mu.RLock()
	meta := s.meta
	s.mu.RUnlock()

	if meta != nil {
		return meta, nil
	}

	if err := s.LoadMetaData(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.meta, nil
}

// ManageRequests starts a go routine to receive and manage the requests sent to the service key. Each request is
// replied before the next one is read from the broker.
func (s *Service) ManageRequests() error {
	var mut *sync.Mutex = new(sync.Mutex)

	mut.Lock()

	reqCh, errCh, err := s.mb.GetReqs(s.conf.SvcKey, mut)
	if err != nil {
		return err
	}

	// launch request channel reader
	go func() {
		log.Printf("[%s] Start listening to request channel", s.conf.SvcKey)

		for reqCh != nil || errCh != nil {
			select {
			case req, ok := <-reqCh:
				if !ok {
					reqCh = nil

					continue
				}

				res := s.Handle(req)
				if req.ReplyTo != "" {
					if err := s.mb.Reply(req, res); err != nil {
						log.Printf("[%s] Error replying: %v", req.Type, err)
					}
				}

				mut.Unlock()
			case e, ok := <-errCh:
				if !ok {
					errCh = nil

					continue
				}

				log.Printf("[%s] Received error %+v", s.conf.SvcKey, e)
			}
		}

		log.Printf("[%s] Stop listening to request channel", s.conf.SvcKey)
	}()

	return nil
}

// Stop shuts down the http server implementing the RESTful API, waits for the running commands and closes gracefully
// the connections to message broker and database.
func (s *Service) Stop() {
	var err error
	// shutdown http server
	if s.s != nil {
		if err = s.s.Shutdown(context.Background()); err != nil {
			log.Printf("Error in http server shutdown:%v", err)
		}
	}

	select {
	case <-s.sc:
	default:
		close(s.sc) // close server channel to indicate shutdowns have finished
	}
	// cancel ledger calls and wait for commands
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
	s.wg.Wait()
	// close message broker
	if s.mb != nil {
		if err = s.mb.Close(); err != nil {
			log.Printf("Error closing message broker:%v", err)
		}
	}
	// close database
	if s.db != nil {
		err = db.Close(s.conf.DbType, s.db)
		log.Printf("Disconnecting %v database, err:%v\n", s.conf.DbType, err)
	}
}
