package amqp

import (
	"errors"
	"testing"

	"github.com/streadway/amqp"

	"github.com/tarancss/stellarsvc/lib/msg"
)

func TestDecode(t *testing.T) {
	cases := []struct {
		name string
		d    amqp.Delivery
		typ  string
		amt  string
		err  error
	}{
		{"ok", amqp.Delivery{Body: []byte(`{"type":"pay-ever","amt":"1.5"}`)}, msg.PayEver, "1.5", nil},
		{"amtNumber", amqp.Delivery{Body: []byte(`{"type":"pay-ever","amt":10}`)}, msg.PayEver, "10", nil},
		{"typeFromHeader", amqp.Delivery{Type: msg.Balance, Body: []byte(`{}`)}, msg.Balance, "", nil},
		{"badJSON", amqp.Delivery{Type: msg.PayEver, Body: []byte(`{"type":`)}, msg.PayEver, "", ErrDecode},
		{"badAmt", amqp.Delivery{Body: []byte(`{"type":"pay-ever","amt":[1]}`)}, "", "", ErrDecode},
	}
	for _, c := range cases {
		c.d.ReplyTo, c.d.CorrelationId = "amq.gen-"+c.name, "corr-"+c.name
		req, err := decode(c.d)
		if !errors.Is(err, c.err) {
			t.Errorf("[%s] got err %v expected %v", c.name, err, c.err)
		}
		if req.Type != c.typ || req.Amt != c.amt {
			t.Errorf("[%s] got %+v", c.name, req)
		}
		// the requester can always be replied to
		if req.ReplyTo != c.d.ReplyTo || req.CorrID != c.d.CorrelationId {
			t.Errorf("[%s] transport details lost: %+v", c.name, req)
		}
	}
}
