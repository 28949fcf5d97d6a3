package apex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/apexwallet/pkg/logger"
)

// WSConfig configures the websocket transport.
type WSConfig struct {
	URL              string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// PingInterval is how often a Ping call keeps the session alive; zero
	// disables it.
	PingInterval time.Duration
	Header       http.Header
}

func (c *WSConfig) withDefaults() {
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
}

type reply struct {
	frame Frame
	err   error
}

// WSTransport speaks APEX frames over a single websocket connection.
type WSTransport struct {
	conn *websocket.Conn
	cfg  WSConfig
	log  *logrus.Entry

	writeMu sync.Mutex
	seq     atomic.Uint64

	pendingMu sync.Mutex
	pending   map[uint64]chan reply

	handlersMu sync.RWMutex
	handlers   map[string]map[uint64]Handler
	handlerID  uint64

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
	wg        sync.WaitGroup
}

// DialWS connects to the gateway and starts the read loop.
func DialWS(ctx context.Context, cfg WSConfig) (*WSTransport, error) {
	cfg.withDefaults()
	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.HandshakeTimeout,
		Proxy:            http.ProxyFromEnvironment,
	}
	conn, _, err := dialer.DialContext(ctx, cfg.URL, cfg.Header)
	if err != nil {
		return nil, errors.Wrapf(err, "dial apex gateway %s", cfg.URL)
	}

	t := &WSTransport{
		conn:     conn,
		cfg:      cfg,
		log:      logger.WithField("component", "apex.ws"),
		pending:  make(map[uint64]chan reply),
		handlers: make(map[string]map[uint64]Handler),
		done:     make(chan struct{}),
	}

	t.wg.Add(1)
	go t.readLoop()

	if cfg.PingInterval > 0 {
		t.wg.Add(1)
		go t.pingLoop()
	}
	return t, nil
}

// nextSeq returns 0, 2, 4, ...
func (t *WSTransport) nextSeq() uint64 {
	return t.seq.Add(2) - 2
}

// Call implements Transport.
func (t *WSTransport) Call(ctx context.Context, method string, req any) (json.RawMessage, error) {
	seq := t.nextSeq()
	frame, err := NewFrame(TypeRequest, seq, method, req)
	if err != nil {
		return nil, err
	}

	ch := make(chan reply, 1)
	t.pendingMu.Lock()
	t.pending[seq] = ch
	t.pendingMu.Unlock()
	defer func() {
		t.pendingMu.Lock()
		delete(t.pending, seq)
		t.pendingMu.Unlock()
	}()

	if err := t.write(frame); err != nil {
		return nil, err
	}

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		if r.frame.Type == TypeError {
			return nil, frameError(method, r.frame)
		}
		return r.frame.Raw(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.done:
		return nil, t.closedErr()
	}
}

// On implements EventSource. Handlers run on the read loop and must not block.
func (t *WSTransport) On(event string, h Handler) (remove func()) {
	t.handlersMu.Lock()
	t.handlerID++
	id := t.handlerID
	if t.handlers[event] == nil {
		t.handlers[event] = make(map[uint64]Handler)
	}
	t.handlers[event][id] = h
	t.handlersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.handlersMu.Lock()
			delete(t.handlers[event], id)
			if len(t.handlers[event]) == 0 {
				delete(t.handlers, event)
			}
			t.handlersMu.Unlock()
		})
	}
}

// Done is closed once the connection is gone, whether Close was called or
// the gateway dropped it.
func (t *WSTransport) Done() <-chan struct{} { return t.done }

// Close shuts the connection and fails every pending call.
func (t *WSTransport) Close() error {
	t.shutdown(ErrClosed)
	t.wg.Wait()
	return nil
}

func (t *WSTransport) shutdown(cause error) {
	t.closeOnce.Do(func() {
		t.closeErr = cause
		t.writeMu.Lock()
		_ = t.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = t.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		t.writeMu.Unlock()
		_ = t.conn.Close()
		close(t.done)
	})
}

func (t *WSTransport) closedErr() error {
	if t.closeErr == nil || errors.Is(t.closeErr, ErrClosed) {
		return ErrClosed
	}
	return errors.Wrap(ErrClosed, t.closeErr.Error())
}

func (t *WSTransport) write(f Frame) error {
	select {
	case <-t.done:
		return t.closedErr()
	default:
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	if err := t.conn.WriteJSON(f); err != nil {
		return errors.Wrapf(err, "write %s frame", f.Function)
	}
	return nil
}

func (t *WSTransport) readLoop() {
	defer t.wg.Done()
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			select {
			case <-t.done:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					t.log.Warnf("read error: %v", err)
				}
				t.shutdown(err)
			}
			return
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			t.log.Debugf("skipping undecodable frame (len=%d): %v", len(data), err)
			continue
		}
		t.dispatch(f)
	}
}

func (t *WSTransport) dispatch(f Frame) {
	switch f.Type {
	case TypeEvent:
		t.handlersMu.RLock()
		hs := make([]Handler, 0, len(t.handlers[f.Function]))
		for _, h := range t.handlers[f.Function] {
			hs = append(hs, h)
		}
		t.handlersMu.RUnlock()
		for _, h := range hs {
			h(f.Raw())
		}
	default:
		t.pendingMu.Lock()
		ch, ok := t.pending[f.Seq]
		t.pendingMu.Unlock()
		if !ok {
			t.log.Debugf("no pending call for %s seq=%d", f.Function, f.Seq)
			return
		}
		ch <- reply{frame: f}
	}
}

func (t *WSTransport) pingLoop() {
	defer t.wg.Done()
	ticker := time.NewTicker(t.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), t.cfg.PingInterval)
			if _, err := t.Call(ctx, MethodPing, nil); err != nil && !errors.Is(err, ErrClosed) {
				t.log.Warnf("ping failed: %v", err)
			}
			cancel()
		}
	}
}

func frameError(method string, f Frame) error {
	if e, ok := asFailure(method, f.Raw()); ok {
		return e
	}
	var g genericResponse
	if err := json.Unmarshal(f.Raw(), &g); err == nil && g.ErrorMsg != "" {
		return &Error{Method: method, Code: g.ErrorCode, Message: g.ErrorMsg, Detail: g.Detail}
	}
	return &Error{Method: method, Message: fmt.Sprintf("error frame: %s", f.Payload)}
}
