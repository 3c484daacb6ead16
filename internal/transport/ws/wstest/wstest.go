// Package wstest содержит поддельный сокет и dialer для тестов поверх ws.Client.
package wstest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cwrk-planet/chatsync/internal/protocol"
	"github.com/cwrk-planet/chatsync/internal/transport/ws"
	"github.com/cwrk-planet/chatsync/pkg/errs"

	"github.com/gorilla/websocket"
)

var ErrClosed = errors.New("wstest: use of closed connection")

// Conn отвечает на handshake заранее положенным кадром и записывает всё, что в него пишут.
type Conn struct {
	in     chan []byte
	closed chan struct{}

	mu           sync.Mutex
	isClosed     bool
	readDeadline time.Time
	out          []protocol.Envelope
	failWrites   bool
	reads        int
	dropAfter    int // 0: не обрывать
}

func NewConn() *Conn {
	return &Conn{in: make(chan []byte, 64), closed: make(chan struct{})}
}

// Accepting возвращает сокет, который подтвердит CONNECT.
func Accepting() *Conn {
	c := NewConn()
	c.PushEnvelope(protocol.Envelope{Type: protocol.TypeConnected})
	return c
}

// AcceptingThenDrop подтверждает CONNECT и обрывается на следующем чтении.
func AcceptingThenDrop() *Conn {
	c := Accepting()
	c.dropAfter = 1
	return c
}

// Rejecting возвращает сокет, который ответит ERROR на CONNECT.
func Rejecting(msg string) *Conn {
	c := NewConn()
	c.PushEnvelope(protocol.Envelope{Type: protocol.TypeError, Message: msg})
	return c
}

func (c *Conn) Push(data []byte) { c.in <- data }

func (c *Conn) PushEnvelope(env protocol.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		panic(err)
	}
	c.Push(data)
}

// PushFrame доставляет кадр так, как его присылает сервер по подписке.
func (c *Conn) PushFrame(topic string, f protocol.Frame) {
	body, err := json.Marshal(f)
	if err != nil {
		panic(err)
	}
	c.PushEnvelope(protocol.Envelope{Type: protocol.TypeMessage, Destination: topic, Body: body})
}

// Drop имитирует обрыв со стороны сервера.
func (c *Conn) Drop() { _ = c.Close() }

func (c *Conn) FailWrites() {
	c.mu.Lock()
	c.failWrites = true
	c.mu.Unlock()
}

func (c *Conn) ReadMessage() (int, []byte, error) {
	c.mu.Lock()
	dl := c.readDeadline
	c.reads++
	drop := c.dropAfter > 0 && c.reads > c.dropAfter
	c.mu.Unlock()

	if drop {
		_ = c.Close()
		return 0, nil, ErrClosed
	}

	var timeout <-chan time.Time
	if !dl.IsZero() {
		t := time.NewTimer(time.Until(dl))
		defer t.Stop()
		timeout = t.C
	}

	select {
	case <-c.closed:
		return 0, nil, ErrClosed
	default:
	}
	select {
	case data := <-c.in:
		return websocket.TextMessage, data, nil
	case <-c.closed:
		return 0, nil, ErrClosed
	case <-timeout:
		return 0, nil, errors.New("wstest: i/o timeout")
	}
}

func (c *Conn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isClosed {
		return ErrClosed
	}
	if c.failWrites {
		return errors.New("wstest: broken pipe")
	}
	if messageType != websocket.TextMessage {
		return nil
	}
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("wstest: client wrote non-envelope: %w", err)
	}
	c.out = append(c.out, env)
	return nil
}

func (c *Conn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	c.readDeadline = t
	c.mu.Unlock()
	return nil
}

func (c *Conn) SetWriteDeadline(time.Time) error { return nil }

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isClosed {
		c.isClosed = true
		close(c.closed)
	}
	return nil
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isClosed
}

// Written возвращает всё, что клиент записал, в порядке записи.
func (c *Conn) Written() []protocol.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Envelope(nil), c.out...)
}

// Sent возвращает кадры из SEND-конвертов.
func (c *Conn) Sent() []protocol.Frame {
	var out []protocol.Frame
	for _, env := range c.Written() {
		if env.Type != protocol.TypeSend {
			continue
		}
		var f protocol.Frame
		if err := json.Unmarshal(env.Body, &f); err == nil {
			out = append(out, f)
		}
	}
	return out
}

// Dialer отдаёт заготовленные сокеты по очереди; когда они кончились, dial падает как сетевая ошибка.
type Dialer struct {
	mu      sync.Mutex
	queue   []result
	dials   int
	headers []http.Header
}

type result struct {
	conn *Conn
	err  error
}

var _ ws.Dialer = (*Dialer)(nil)

func (d *Dialer) Add(c *Conn) {
	d.mu.Lock()
	d.queue = append(d.queue, result{conn: c})
	d.mu.Unlock()
}

func (d *Dialer) Fail(err error) {
	d.mu.Lock()
	d.queue = append(d.queue, result{err: err})
	d.mu.Unlock()
}

func (d *Dialer) Dial(ctx context.Context, _ string, header http.Header) (ws.Conn, error) {
	d.mu.Lock()
	d.dials++
	d.headers = append(d.headers, header.Clone())
	if len(d.queue) == 0 {
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: wstest: connection refused", errs.ErrTransient)
	}
	r := d.queue[0]
	d.queue = d.queue[1:]
	d.mu.Unlock()

	if r.err != nil {
		return nil, r.err
	}
	return r.conn, nil
}

func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *Dialer) Header(i int) http.Header {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.headers) {
		return nil
	}
	return d.headers[i]
}
