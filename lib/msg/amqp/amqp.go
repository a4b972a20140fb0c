// Package amqp implements the message broker interface for AMQP compliant brokers (ie RabbitMQ)
package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/streadway/amqp"

	"github.com/tarancss/stellarsvc/lib/msg"
)

// Exchange is the direct exchange where requests are published using the service key as routing key.
const Exchange = "ms"

// Errors returned.
var (
	ErrNoReplyTo = errors.New("request has no reply queue")
	ErrDecode    = errors.New("cannot decode request")
)

// Amqp implements a connection to a broker and a channel for reuse.
type Amqp struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	mu   sync.Mutex    // guards ch for publishers
	rq   string        // exclusive queue receiving replies to our requests
	done chan struct{} // closed by Close
}

// New instantiates a new amqp broker.
func New(uri string) (*Amqp, error) {
	r := Amqp{done: make(chan struct{})}
	var err error

	if r.conn, err = amqp.Dial(uri); err != nil {
		return &r, err
	}
	r.ch = nil
	log.Printf("Connected to %s", uri)

	return &r, err
}

// Setup obtains an amqp channel and declares the "ms" exchange, where all the avatar services receive their
// requests.
func (r *Amqp) Setup(x interface{}) error {
	// obtain a one-use channel
	channel, err := r.conn.Channel()
	if err != nil {
		return err
	}
	defer channel.Close()
	// declare exchange
	return channel.ExchangeDeclare(Exchange, amqp.ExchangeDirect, true, false, false, false, nil)
}

// Close terminages gracefully the connection to the AMQP message broker
func (r *Amqp) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	select {
	case <-r.done:
	default:
		close(r.done)
	}
	if r.ch != nil {
		if err := r.ch.Close(); err != nil {
			log.Printf("Error closing amqp.Channel:%v", err)
		}
		r.ch = nil
		log.Printf("amqp.Channel closed!")
	}
	return r.conn.Close()
}

// channel obtains the publishing channel if not present. r.mu must be held.
func (r *Amqp) channel() (*amqp.Channel, error) {
	var err error
	if r.ch == nil {
		if r.ch, err = r.conn.Channel(); err != nil {
			return nil, err
		}
	}
	return r.ch, nil
}

// replyQueue declares the exclusive queue for replies to our requests and starts a routine logging the errors
// replied. r.mu must be held.
func (r *Amqp) replyQueue(ch *amqp.Channel) (string, error) {
	if r.rq != "" {
		return r.rq, nil
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return "", err
	}
	msgs, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return "", err
	}
	r.rq = q.Name
	go func() {
		for m := range msgs {
			var res msg.Response
			if err := json.Unmarshal(m.Body, &res); err != nil {
				log.Printf("[%s] Cannot decode reply %s: %v", m.CorrelationId, m.Body, err)
				continue
			}
			if res.Error != "" {
				log.Printf("[%s] Request failed: %s", m.CorrelationId, res.Error)
			}
		}
	}()
	return r.rq, nil
}

// SendRequest publishes a request to the service key. Replies, if any, are only checked for errors.
func (r *Amqp) SendRequest(key string, req msg.Request) (err error) {
	// marshal to JSON
	var jsonDoc []byte
	if jsonDoc, err = json.Marshal(req); err != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	// obtain channel if not present
	ch, err := r.channel()
	if err != nil {
		return
	}
	rq, err := r.replyQueue(ch)
	if err != nil {
		return
	}
	// build body
	m := amqp.Publishing{
		Type:          req.Type,
		CorrelationId: uuid.NewString(),
		ReplyTo:       rq,
		Body:          jsonDoc,
		ContentType:   "application/json",
	}
	// publish
	if err = ch.Publish(Exchange, key, false, false, m); err != nil {
		log.Printf("[%s] Error sending request to message broker %v", key, err)
	}
	return
}

// Reply publishes the response to the reply queue of the request.
func (r *Amqp) Reply(req msg.Request, res msg.Response) (err error) {
	if req.ReplyTo == "" {
		return ErrNoReplyTo
	}
	var jsonDoc []byte
	if jsonDoc, err = json.Marshal(res); err != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, err := r.channel()
	if err != nil {
		return
	}
	m := amqp.Publishing{
		CorrelationId: req.CorrID,
		Body:          jsonDoc,
		ContentType:   "application/json",
	}
	if err = ch.Publish("", req.ReplyTo, false, false, m); err != nil {
		log.Printf("[%s] Error sending reply to message broker %v", req.Type, err)
	}
	return
}

// GetReqs consumes requests sent to the service key pushing them to the returned channel. The Mutex pointer is
// provided to ensure the consumed message has been fully dealt with by the management function, so the message
// consumed is only acknowledged when the mutex is unlocked.
func (r *Amqp) GetReqs(key string, mut *sync.Mutex) (<-chan msg.Request, <-chan error, error) {
	// consumers get their own channel so publishing replies does not interfere with deliveries
	ch, err := r.conn.Channel()
	if err != nil {
		return nil, nil, err
	}
	// declare queue
	if _, err = ch.QueueDeclare(key, true, false, false, false, nil); err != nil {
		return nil, nil, err
	}
	// bind queue to exchange
	if err = ch.QueueBind(key, key, Exchange, false, nil); err != nil {
		return nil, nil, err
	}
	// one request at a time
	if err = ch.Qos(1, 0, false); err != nil {
		return nil, nil, err
	}
	// create channel for receiving requests
	msgs, errCons := ch.Consume(key, "responder-"+key, false, false, false, false, nil)
	if errCons != nil {
		return nil, nil, errCons
	}
	// define channels to return
	reqs := make(chan msg.Request)
	errs := make(chan error)
	// start routine to consume messages from broker
	go func() {
		defer close(reqs)
		defer close(errs)
		for m := range msgs {
			req, err := decode(m)
			if err != nil {
				// tell the requester before dropping it, it will never decode
				if req.ReplyTo != "" {
					if errRe := r.Reply(req, msg.Response{Error: err.Error()}); errRe != nil {
						log.Printf("[%s] Error replying to undecodable request: %v", key, errRe)
					}
				}
				_ = m.Nack(false, false)
				select {
				case errs <- err:
				case <-r.done:
					return
				}
				continue
			}
			select {
			case reqs <- req:
			case <-r.done:
				return
			}
			mut.Lock() // wait for the responder to finish processing the request
			_ = m.Ack(false)
		}
	}()
	return reqs, errs, nil
}

// decode returns the request carried by delivery m. The transport details are set even if the body cannot be
// decoded, so the requester can be told.
func decode(m amqp.Delivery) (msg.Request, error) {
	req := msg.Request{ReplyTo: m.ReplyTo, CorrID: m.CorrelationId}
	if err := json.Unmarshal(m.Body, &req); err != nil {
		req = msg.Request{Type: m.Type, ReplyTo: m.ReplyTo, CorrID: m.CorrelationId}
		return req, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if req.Type == "" {
		req.Type = m.Type
	}
	return req, nil
}
