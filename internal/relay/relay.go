// Package relay implements the relay transport client consumed by the Trade
// Engine (spec §6 "Relay transport (consumed)"): publish(event), query(filter),
// close(), fanned out in parallel across every configured relay with
// disjunctive publish and unioned, deduplicated query semantics (spec §5).
//
// It is grounded on the teacher's internal/rpc/websocket.go hub, adapted from
// a server-side accept loop to a client-side dialer, using the same
// gorilla/websocket library and read/write-deadline discipline.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mostro-trade/mostro-client/internal/relayevent"
	"github.com/mostro-trade/mostro-client/pkg/logging"
)

const (
	dialTimeout  = 10 * time.Second
	writeTimeout = 10 * time.Second
)

// Filter is a relay subscription/query filter (the wire shape consumed by
// query), following the tag-filter convention described in spec §4.G: authors,
// kinds, and arbitrary "#<name>" tag filters, plus the usual time bounds.
type Filter struct {
	IDs     []string            `json:"-"`
	Authors []string            `json:"-"`
	Kinds   []int               `json:"-"`
	Tags    map[string][]string `json:"-"`
	Since   *int64              `json:"-"`
	Until   *int64              `json:"-"`
	Limit   int                 `json:"-"`
}

// MarshalJSON flattens Tags into "#<name>" keys alongside the other filter
// fields, matching the relay convention.
func (f Filter) MarshalJSON() ([]byte, error) {
	m := map[string]interface{}{}
	if len(f.IDs) > 0 {
		m["ids"] = f.IDs
	}
	if len(f.Authors) > 0 {
		m["authors"] = f.Authors
	}
	if len(f.Kinds) > 0 {
		m["kinds"] = f.Kinds
	}
	for name, values := range f.Tags {
		m["#"+name] = values
	}
	if f.Since != nil {
		m["since"] = *f.Since
	}
	if f.Until != nil {
		m["until"] = *f.Until
	}
	if f.Limit > 0 {
		m["limit"] = f.Limit
	}
	return json.Marshal(m)
}

// Relay is a single relay connection's publish/query/close surface.
type Relay interface {
	URL() string
	Publish(ctx context.Context, event *relayevent.Event) error
	Query(ctx context.Context, filter Filter) ([]*relayevent.Event, error)
	Close() error
}

// wsRelay is a gorilla/websocket-backed Relay. It dials lazily on first use
// and keeps the connection open until Close, matching the "release relay
// connections on completion, success or failure" requirement (spec §4.H step 7).
type wsRelay struct {
	url string
	mu  sync.Mutex
	conn *websocket.Conn
	log  *logging.Logger
}

// NewWSRelay constructs a Relay that dials url on first Publish/Query.
func NewWSRelay(url string) Relay {
	return &wsRelay{url: url, log: logging.Default().Component("relay")}
}

func (r *wsRelay) URL() string { return r.url }

func (r *wsRelay) ensureConn(ctx context.Context) (*websocket.Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		return r.conn, nil
	}
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, r.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", r.url, err)
	}
	r.conn = conn
	return conn, nil
}

func (r *wsRelay) dropConn() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		r.conn.Close()
		r.conn = nil
	}
}

// Publish sends ["EVENT", event] and waits for the relay's ["OK", id, ok, msg]
// acknowledgement.
func (r *wsRelay) Publish(ctx context.Context, event *relayevent.Event) error {
	conn, err := r.ensureConn(ctx)
	if err != nil {
		return err
	}

	frame, err := json.Marshal([]interface{}{"EVENT", event})
	if err != nil {
		return fmt.Errorf("marshal EVENT frame: %w", err)
	}

	r.mu.Lock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	writeErr := conn.WriteMessage(websocket.TextMessage, frame)
	r.mu.Unlock()
	if writeErr != nil {
		r.dropConn()
		return fmt.Errorf("write EVENT frame: %w", writeErr)
	}

	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		deadline = time.Now().Add(writeTimeout)
	}
	for {
		conn.SetReadDeadline(deadline)
		_, msg, readErr := conn.ReadMessage()
		if readErr != nil {
			r.dropConn()
			return fmt.Errorf("read OK frame: %w", readErr)
		}

		var frame []json.RawMessage
		if err := json.Unmarshal(msg, &frame); err != nil || len(frame) < 1 {
			continue
		}
		var label string
		json.Unmarshal(frame[0], &label)
		if label != "OK" || len(frame) < 3 {
			continue
		}
		var id string
		var ok bool
		json.Unmarshal(frame[1], &id)
		json.Unmarshal(frame[2], &ok)
		if id != event.ID {
			continue
		}
		if !ok {
			reason := ""
			if len(frame) > 3 {
				json.Unmarshal(frame[3], &reason)
			}
			return fmt.Errorf("relay rejected event: %s", reason)
		}
		return nil
	}
}

// Query sends ["REQ", subID, filter] and collects events until EOSE or ctx
// expires, then closes the subscription.
func (r *wsRelay) Query(ctx context.Context, filter Filter) ([]*relayevent.Event, error) {
	conn, err := r.ensureConn(ctx)
	if err != nil {
		return nil, err
	}

	subID := subscriptionID()
	frame, err := json.Marshal([]interface{}{"REQ", subID, filter})
	if err != nil {
		return nil, fmt.Errorf("marshal REQ frame: %w", err)
	}

	r.mu.Lock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	writeErr := conn.WriteMessage(websocket.TextMessage, frame)
	r.mu.Unlock()
	if writeErr != nil {
		r.dropConn()
		return nil, fmt.Errorf("write REQ frame: %w", writeErr)
	}

	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		deadline = time.Now().Add(writeTimeout)
	}

	var events []*relayevent.Event
	for {
		conn.SetReadDeadline(deadline)
		_, msg, readErr := conn.ReadMessage()
		if readErr != nil {
			r.dropConn()
			return events, fmt.Errorf("read REQ response: %w", readErr)
		}

		var frame []json.RawMessage
		if err := json.Unmarshal(msg, &frame); err != nil || len(frame) < 2 {
			continue
		}
		var label string
		json.Unmarshal(frame[0], &label)
		var gotSubID string
		json.Unmarshal(frame[1], &gotSubID)
		if gotSubID != subID {
			continue
		}

		switch label {
		case "EVENT":
			if len(frame) < 3 {
				continue
			}
			var evt relayevent.Event
			if err := json.Unmarshal(frame[2], &evt); err == nil {
				events = append(events, &evt)
			}
		case "EOSE":
			closeFrame, _ := json.Marshal([]interface{}{"CLOSE", subID})
			r.mu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			conn.WriteMessage(websocket.TextMessage, closeFrame)
			r.mu.Unlock()
			return events, nil
		}
	}
}

func (r *wsRelay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	return err
}

// subscriptionID is grounded on the teacher's stream_handler.go/message_sender.go
// convention of tagging protocol messages with a google/uuid identifier.
func subscriptionID() string {
	return uuid.New().String()
}
