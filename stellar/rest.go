package stellar

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/tarancss/stellarsvc/lib/msg"
)

const timeout = 15

// welcome is the body replied by the home page.
const welcome = "Hello, this is your avatar stellar wallet!"

// Router returns the RESTful API serving the wallet operations to operators.
func (s *Service) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", s.homeHandler)
	r.HandleFunc("/account", s.restHandler(msg.AccountID, noParams)).Methods("GET")    // account public key
	r.HandleFunc("/account/qr", s.restHandler(msg.AccountQR, noParams)).Methods("GET") // QR code of public key
	r.HandleFunc("/balance", s.restHandler(msg.Balance, noParams)).Methods("GET")      // lumens and EVER balance
	r.HandleFunc("/txns", s.restHandler(msg.Txns, queryParams)).Methods("GET")         // transaction history
	r.HandleFunc("/claimable", s.restHandler(msg.ClaimableBalance, noParams)).Methods("GET")
	r.HandleFunc("/issuer", s.restHandler(msg.IssuerMetaData, noParams)).Methods("GET") // EVER issuer meta data
	r.HandleFunc("/ops", s.restHandler(msg.Ops, noParams)).Methods("GET")               // journal of operations
	r.HandleFunc("/trustline", s.restHandler(msg.SetupTrustline, noParams)).Methods("POST")
	r.HandleFunc("/pay", s.restHandler(msg.PayEver, bodyParams)).Methods("POST")        // pay EVER
	r.HandleFunc("/claim", s.restHandler(msg.ClaimBalance, bodyParams)).Methods("POST") // claim a claimable balance

	return r
}

// Init sets up and starts the http server to service the RESTful API. It returns once the server is shutdown by
// Stop.
func (s *Service) Init(endpoint, port string) string {
	var err error

	r := s.Router()
	errCh := make(chan error, 1)

	// start http server
	if port != "" {
		s.s = &http.Server{
			Handler: r,
			Addr:    endpoint + ":" + port,
			// Good practice: enforce timeouts for servers you create!
			WriteTimeout: timeout * time.Second,
			ReadTimeout:  timeout * time.Second,
		}

		go func() {
			errCh <- s.s.ListenAndServe()
		}()

		log.Printf("Listening to API http requests on %s:%s", endpoint, port)
	}
	// wait for server to be shutdown
	<-s.sc

	select {
	case err = <-errCh:
	default:
	}

	return fmt.Sprintf("shutdown http server:%v", err)
}

// homeHandler just replies a welcome message to the client.
func (s *Service) homeHandler(rw http.ResponseWriter, r *http.Request) {
	var res msg.Response
	// log request
	log.Printf("httpreq from %v %s\n", r.RemoteAddr, r.RequestURI)
	// just reply a welcome message
	res.Body, _ = json.Marshal(welcome)
	// reply
	rw.Header().Set("Content-Type", "application/json;charset=utf8")
	_ = json.NewEncoder(rw).Encode(res)
}

// params builds the bus request from the http request.
type params func(r *http.Request, req *msg.Request) error

func noParams(r *http.Request, req *msg.Request) error { return nil }

// queryParams reads the transaction history paging from the query: ?cursor=<token>&limit=<n>
func queryParams(r *http.Request, req *msg.Request) (err error) {
	q := r.URL.Query()
	req.Cursor = q.Get("cursor")

	if l := q.Get("limit"); l != "" {
		if req.Limit, err = strconv.Atoi(l); err != nil || req.Limit < 0 {
			return fmt.Errorf("%w: limit %q", ErrBadRequest, l)
		}
	}

	return nil
}

// bodyParams decodes the JSON body, ie. {"amt": "10", "to": "G..."} or {"id": "0000..."}
func bodyParams(r *http.Request, req *msg.Request) error {
	typ := req.Type
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	req.Type = typ

	return nil
}

// restHandler serves the request type typ through the http API, replying the same response as the bus does.
func (s *Service) restHandler(typ string, p params) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		var res msg.Response

		defer func() {
			// reply to requester accordingly
			rw.Header().Set("Content-Type", "application/json;charset=utf8")

			if res.Error != "" {
				rw.WriteHeader(http.StatusBadRequest)
			} else {
				rw.WriteHeader(http.StatusOK)
			}
			// log request
			log.Printf("httpreq from %v %s err:%s\n", r.RemoteAddr, r.RequestURI, res.Error)
			// reply
			_ = json.NewEncoder(rw).Encode(&res)
		}()

		req := msg.Request{Type: typ}
		if err := p(r, &req); err != nil {
			res.Error = err.Error()

			return
		}

		res = s.Handle(req)
	}
}
