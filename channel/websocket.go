/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package channel

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait   = 10 * time.Second
	sendBacklog = 16
)

// WebSocket is a Transport speaking Envelope frames to a room hub.
type WebSocket struct {
	url    string
	header http.Header
	dialer *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn
	send chan Envelope
	done chan struct{}
	once sync.Once
}

// NewWebSocket returns a transport for the hub endpoint at url, for example
// ws://localhost:8080/room/lobby/ws. Nothing is dialed until Subscribe.
func NewWebSocket(url string, header http.Header) *WebSocket {
	return &WebSocket{
		url:    url,
		header: header,
		dialer: websocket.DefaultDialer,
		send:   make(chan Envelope, sendBacklog),
		done:   make(chan struct{}),
	}
}

func (w *WebSocket) Subscribe(ctx context.Context, h Handlers) error {
	h = h.withDefaults()

	w.mu.Lock()
	if w.conn != nil {
		w.mu.Unlock()
		return errors.New("websocket transport already subscribed")
	}
	w.mu.Unlock()

	conn, _, err := w.dialer.DialContext(ctx, w.url, w.header)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()

	go w.writePump(conn)
	go w.readPump(conn, h)

	return nil
}

func (w *WebSocket) Broadcast(event string, payload []byte) error {
	return w.enqueue(Envelope{Type: TypeBroadcast, Event: event, Payload: payload})
}

func (w *WebSocket) Track(key string) error {
	return w.enqueue(Envelope{Type: TypeTrack, Key: key})
}

func (w *WebSocket) Unsubscribe() error {
	var err error
	w.once.Do(func() {
		close(w.done)

		w.mu.Lock()
		conn := w.conn
		w.mu.Unlock()
		if conn == nil {
			return
		}

		// The write pump has stopped or is stopping; a close frame may race
		// with its last write, which gorilla reports as an error we ignore.
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = conn.Close()
	})

	return err
}

func (w *WebSocket) enqueue(env Envelope) error {
	select {
	case <-w.done:
		return ErrClosed
	default:
	}

	w.mu.Lock()
	subscribed := w.conn != nil
	w.mu.Unlock()
	if !subscribed {
		return ErrNotSubscribed
	}

	select {
	case w.send <- env:
		return nil
	default:
		return ErrQueueFull
	}
}

func (w *WebSocket) closed() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

func (w *WebSocket) readPump(conn *websocket.Conn, h Handlers) {
	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if !w.closed() {
				h.Status(StatusClosed, err)
			}
			return
		}

		switch env.Type {
		case TypeStatus:
			var err error
			if env.Message != "" {
				err = errors.New(env.Message)
			}
			h.Status(env.Status, err)
		case TypeBroadcast:
			h.Broadcast(env.Event, env.Payload)
		case TypePresenceJoin:
			h.Join(env.Key)
		case TypePresenceLeave:
			h.Leave(env.Key)
		default:
			// ignore unknown types
		}
	}
}

func (w *WebSocket) writePump(conn *websocket.Conn) {
	for {
		select {
		case <-w.done:
			return
		case env := <-w.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(env); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}
