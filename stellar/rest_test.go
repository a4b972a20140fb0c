package stellar

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tarancss/stellarsvc/lib/block/types"
	"github.com/tarancss/stellarsvc/lib/msg"
)

func TestAPI(t *testing.T) {
	l := &fakeLedger{
		bal:  types.Bal{XLM: "100", Ever: "5.5"},
		txns: types.Txns{Txns: []types.Trans{{ID: "1", Hash: "h1", Cursor: "c1"}}, Cursor: "c1"},
		data: map[string]string{"name": "Everlife"},
		hash: "abcd",
	}
	s := newTestService(t, l, newBroker(), newDB())

	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	pub := s.account().Pub()

	// define tests
	cases := []struct {
		name, method, uri string      // case name, http method to use and uri
		obj               interface{} // object for POST
		status            int         // http status code
		errExp            string      // error expected
		resExp            string      // body result expected, JSON
	}{
		{"homePage_1", http.MethodGet, "/", nil, http.StatusOK, "", `"` + welcome + `"`},
		{"homePage_2", http.MethodPost, "/", nil, http.StatusOK, "", `"` + welcome + `"`},
		{"account_0", http.MethodPost, "/account", nil, http.StatusMethodNotAllowed, "", ""},
		{"account_1", http.MethodGet, "/account", nil, http.StatusOK, "", `"` + pub + `"`},
		{"balance_1", http.MethodGet, "/balance", nil, http.StatusOK, "", `{"xlm":"100","ever":"5.5"}`},
		{"txns_0", http.MethodGet, "/txns?limit=abc", nil, http.StatusBadRequest, `bad request: limit "abc"`, ""},
		{"txns_1", http.MethodGet, "/txns?cursor=c0&limit=20", nil, http.StatusOK, "",
			`{"txns":[{"id":"1","hash":"h1","ledger":0,"ts":"","source":"","fee":0,"ops":0,"success":false,` +
				`"paging_token":"c1"}],"cursor":"c1"}`},
		{"issuer_1", http.MethodGet, "/issuer", nil, http.StatusOK, "", `{"name":"Everlife"}`},
		{"pay_0", http.MethodGet, "/pay", nil, http.StatusMethodNotAllowed, "", ""},
		{"pay_1", http.MethodPost, "/pay", map[string]string{"amt": "1.5", "to": "GDEST"}, http.StatusOK, "",
			`"abcd"`},
		{"claim_1", http.MethodPost, "/claim", map[string]string{"id": "00"}, http.StatusOK, "", `"abcd"`},
		{"trustline_1", http.MethodPost, "/trustline", nil, http.StatusOK, "", `"abcd"`},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var rd io.Reader = http.NoBody

			if c.obj != nil {
				b, _ := json.Marshal(c.obj)
				rd = bytes.NewReader(b)
			}

			req, err := http.NewRequest(c.method, srv.URL+c.uri, rd)
			if err != nil {
				t.Fatal(err)
			}

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != c.status {
				t.Errorf("expected status %d, got %d", c.status, resp.StatusCode)
			}

			if c.status == http.StatusMethodNotAllowed {
				return
			}

			var res msg.Response
			if err = json.NewDecoder(resp.Body).Decode(&res); err != nil {
				t.Fatalf("cannot decode response: %v", err)
			}

			if res.Error != c.errExp || string(res.Body) != c.resExp {
				t.Errorf("expected %s (%s), got %s (%s)", c.resExp, c.errExp, res.Body, res.Error)
			}
		})
	}

	// query and body reach the ledger
	if l.cursor != "c0" || l.max != 20 || l.to != "GDEST" || l.amt != "1.5" || l.id != "00" {
		t.Errorf("unexpected ledger calls %+v", l)
	}

	// operations were journaled
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/ops", http.NoBody)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var res msg.Response
	if err = json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}

	var ops []json.RawMessage
	if err = json.Unmarshal(res.Body, &ops); err != nil || len(ops) != 3 {
		t.Errorf("expected 3 operations, got %s err:%v", res.Body, err)
	}
}

func TestInitStop(t *testing.T) {
	s := newTestService(t, &fakeLedger{}, newBroker(), nil)

	done := make(chan string, 1)
	go func() { done <- s.Init("localhost", "") }()

	s.Stop()

	select {
	case r := <-done:
		if r != "shutdown http server:<nil>" {
			t.Errorf("unexpected shutdown %q", r)
		}
	case <-time.After(wait):
		t.Fatal("Init did not return after Stop")
	}
}
