// WSClient implements Gateway against a generic JSON-over-websocket quote
// stream. Grounded on internal/ingest/ingest.go's reconnect loop (dial,
// ReadJSON, doubling backoff) from the teacher, with the backoff schedule
// changed to the spec's fixed 2s/4s/8s/steady-10s sequence (spec.md §4.B).
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"spyoptions/internal/contracts"
)

// backoffSchedule is the spec's reconnect backoff: 2s, 4s, 8s, then steady
// at 10s (spec.md §4.B).
var backoffSchedule = []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}

const steadyBackoff = 10 * time.Second

// subscribeRequest is the generic JSON message sent to the gateway's
// websocket endpoint for every action ("resolve", "subscribe",
// "unsubscribe").
type subscribeRequest struct {
	Action string  `json:"action"`
	Strike float64 `json:"strike"`
	Side   string  `json:"side"`
	ReqID  int64   `json:"req_id"`
}

// quoteMessage is the generic JSON tick message read from the gateway.
type quoteMessage struct {
	Type          string  `json:"type"` // "quote", "underlying", "ack", "error"
	Strike        float64 `json:"strike,omitempty"`
	Side          string  `json:"side,omitempty"`
	Bid           float64 `json:"bid,omitempty"`
	Ask           float64 `json:"ask,omitempty"`
	Last          float64 `json:"last,omitempty"`
	Volume        float64 `json:"volume,omitempty"`
	OpenInterest  float64 `json:"open_interest,omitempty"`
	Price         float64 `json:"price,omitempty"`
	ReqID         int64   `json:"req_id,omitempty"`
	Found         bool    `json:"found,omitempty"`
	PreviousClose float64 `json:"previous_close,omitempty"`
}

type handle struct {
	key contracts.ContractKey
}

// WSClient is a websocket-based Gateway implementation.
type WSClient struct {
	url      string
	bus      *Bus
	cache    *quoteCache
	log      *slog.Logger

	connMu sync.Mutex
	conn   *websocket.Conn

	connected atomic.Bool
	price     atomic.Value // float64
	prevClose atomic.Value // float64

	reqSeq atomic.Int64

	pending   sync.Map // reqID -> chan quoteMessage (resolve acks)
}

// NewWSClient builds a websocket Gateway client. url is the broker
// gateway's quote-stream endpoint.
func NewWSClient(url string) *WSClient {
	c := &WSClient{
		url:   url,
		bus:   NewBus(),
		cache: newQuoteCache(),
		log:   slog.With("component", "gateway"),
	}
	return c
}

// Start launches the reconnect loop in a background goroutine and returns
// immediately; the loop exits once ctx is canceled.
func (c *WSClient) Start(ctx context.Context) {
	go c.loop(ctx)
}

func (c *WSClient) loop(ctx context.Context) {
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := c.connectAndConsume(ctx)
		c.connected.Store(false)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			delay := steadyBackoff
			if attempt < len(backoffSchedule) {
				delay = backoffSchedule[attempt]
			}
			c.log.Warn("gateway disconnected, reconnecting", "error", err, "delay", delay)
			attempt++
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		} else {
			attempt = 0
		}
	}
}

func (c *WSClient) connectAndConsume(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	defer conn.Close()

	c.connected.Store(true)
	c.log.Info("gateway connected")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		var msg quoteMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}

		switch msg.Type {
		case "quote":
			side := contracts.Side(msg.Side)
			q := contracts.Quote{
				Strike:       msg.Strike,
				Side:         side,
				Bid:          msg.Bid,
				Ask:          msg.Ask,
				Last:         msg.Last,
				Volume:       msg.Volume,
				OpenInterest: msg.OpenInterest,
			}
			q.ComputeMid()
			c.cache.set(contracts.ContractKey{Strike: msg.Strike, Side: side}, q)
			c.bus.Publish(q)
		case "underlying":
			c.price.Store(msg.Price)
			if msg.PreviousClose > 0 {
				c.prevClose.Store(msg.PreviousClose)
			}
		case "ack", "error":
			if ch, ok := c.pending.LoadAndDelete(msg.ReqID); ok {
				ch.(chan quoteMessage) <- msg
			}
		}
	}
}

// Connected reports whether the websocket connection is currently live.
func (c *WSClient) Connected() bool {
	return c.connected.Load()
}

// UnderlyingPrice returns the latest SPY price observed from the gateway.
func (c *WSClient) UnderlyingPrice() (float64, bool) {
	v := c.price.Load()
	if v == nil {
		return 0, false
	}
	return v.(float64), true
}

// PreviousClose returns the session's previous close, captured once.
func (c *WSClient) PreviousClose() (float64, bool) {
	v := c.prevClose.Load()
	if v == nil {
		return 0, false
	}
	return v.(float64), true
}

// ResolveContract qualifies a contract via the gateway's symbol resolution.
func (c *WSClient) ResolveContract(ctx context.Context, key contracts.ContractKey) error {
	reply, err := c.roundTrip(ctx, subscribeRequest{
		Action: "resolve",
		Strike: key.Strike,
		Side:   string(key.Side),
	})
	if err != nil {
		return err
	}
	if reply.Type == "error" || !reply.Found {
		return ErrNotFound
	}
	return nil
}

// Subscribe requests live market data for a contract.
func (c *WSClient) Subscribe(ctx context.Context, key contracts.ContractKey) (Handle, error) {
	reply, err := c.roundTrip(ctx, subscribeRequest{
		Action: "subscribe",
		Strike: key.Strike,
		Side:   string(key.Side),
	})
	if err != nil {
		return nil, err
	}
	if reply.Type == "error" {
		return nil, fmt.Errorf("gateway rejected subscribe for %+v", key)
	}
	return handle{key: key}, nil
}

// Unsubscribe cancels a subscription.
func (c *WSClient) Unsubscribe(ctx context.Context, h Handle) error {
	hd, ok := h.(handle)
	if !ok {
		return fmt.Errorf("gateway: unrecognized handle type %T", h)
	}
	_, err := c.roundTrip(ctx, subscribeRequest{
		Action: "unsubscribe",
		Strike: hd.key.Strike,
		Side:   string(hd.key.Side),
	})
	return err
}

// LatestQuote returns the latest cached quote for a contract.
func (c *WSClient) LatestQuote(key contracts.ContractKey) (contracts.Quote, bool) {
	return c.cache.get(key)
}

func (c *WSClient) roundTrip(ctx context.Context, req subscribeRequest) (quoteMessage, error) {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return quoteMessage{}, fmt.Errorf("gateway: not connected")
	}

	reqID := c.reqSeq.Add(1)
	req.ReqID = reqID
	ch := make(chan quoteMessage, 1)
	c.pending.Store(reqID, ch)
	defer c.pending.Delete(reqID)

	b, err := json.Marshal(req)
	if err != nil {
		return quoteMessage{}, err
	}
	c.connMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, b)
	c.connMu.Unlock()
	if err != nil {
		return quoteMessage{}, err
	}

	select {
	case <-ctx.Done():
		return quoteMessage{}, ctx.Err()
	case reply := <-ch:
		return reply, nil
	case <-time.After(5 * time.Second):
		return quoteMessage{}, fmt.Errorf("gateway: round-trip timed out")
	}
}
