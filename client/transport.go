package client

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"

	"github.com/draftmill/collab/wire"
)

// ErrTransportClosed is returned when submitting on a transport that has been
// closed. The in-flight operation survives in its session; after a reconnect
// the editor resubmits it, and any broadcast missed while disconnected
// surfaces as a version gap and a resync.
var ErrTransportClosed = errors.New("transport closed")

// WSTransport is a WebSocket connection to the collaboration server. Lost
// connections are redialed with exponential backoff; the OnReconnect hook
// lets the owning editor re-hydrate its sections and resubmit pending
// operations once the new connection is up.
type WSTransport struct {
	url string

	// OnReconnect, if set, is called after a dropped connection has been
	// re-established. Set it before the first read arrives.
	OnReconnect func()

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	incoming chan wire.ServerMessage
	quit     chan struct{}
	done     chan struct{}
}

// DialTransport connects to the server, retrying with exponential backoff,
// and starts the read loop.
func DialTransport(url string) (*WSTransport, error) {
	t := &WSTransport{
		url:      url,
		incoming: make(chan wire.ServerMessage, 64),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if err := t.dial(); err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	go t.readLoop()
	return t, nil
}

// Incoming is the stream of server messages. It is closed when the transport
// shuts down for good.
func (t *WSTransport) Incoming() <-chan wire.ServerMessage {
	return t.incoming
}

// Submit sends one client message. Submission order is preserved for a given
// connection; a failed write surfaces as an error, never a silent drop.
func (t *WSTransport) Submit(msg wire.ClientMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.conn == nil {
		return ErrTransportClosed
	}
	if err := t.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("submit %s: %w", msg.Type, err)
	}
	return nil
}

// Close shuts the transport down and stops the read loop.
func (t *WSTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	t.mu.Unlock()
	close(t.quit)

	var err error
	if conn != nil {
		err = conn.Close()
	}
	<-t.done
	return err
}

func (t *WSTransport) dial() error {
	op := func() error {
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			return backoff.Permanent(ErrTransportClosed)
		}
		t.mu.Unlock()

		conn, _, err := websocket.DefaultDialer.Dial(t.url, nil)
		if err != nil {
			return err
		}
		t.mu.Lock()
		t.conn = conn
		t.mu.Unlock()
		return nil
	}
	return backoff.Retry(op, backoff.NewExponentialBackOff())
}

func (t *WSTransport) readLoop() {
	defer close(t.done)
	defer close(t.incoming)

	for {
		t.mu.Lock()
		conn := t.conn
		closed := t.closed
		t.mu.Unlock()
		if closed {
			return
		}

		var msg wire.ServerMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.mu.Lock()
			closed = t.closed
			t.mu.Unlock()
			if closed {
				return
			}
			log.Printf("transport: connection lost, redialing: %v", err)
			conn.Close()
			if err := t.dial(); err != nil {
				log.Printf("transport: redial failed: %v", err)
				return
			}
			if t.OnReconnect != nil {
				t.OnReconnect()
			}
			continue
		}
		// Never wedge on a consumer that stopped draining; Close must
		// always be able to finish.
		select {
		case t.incoming <- msg:
		case <-t.quit:
			return
		}
	}
}
