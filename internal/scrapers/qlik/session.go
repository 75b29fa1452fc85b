// Package qlik talks to the analytics engine behind the dashboard over its
// websocket json-rpc protocol.
package qlik

import (
	"context"
	"covid19au/internal/assert"
	"covid19au/internal/components/telemetry"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	report_session_call = "session.call"
	report_session_read = "session.read"
)

// GlobalHandle addresses the engine itself rather than an opened object.
const GlobalHandle = -1

var ErrSessionClosed = errors.New("qlik: session closed")

type request struct {
	Delta   bool   `json:"delta"`
	Method  string `json:"method"`
	Handle  int    `json:"handle"`
	Params  []any  `json:"params"`
	ID      uint64 `json:"id"`
	JSONRPC string `json:"jsonrpc"`
}

type response struct {
	// ID is zero for notifications, request ids start at 1.
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

type RPCError struct {
	Code      int    `json:"code"`
	Parameter string `json:"parameter"`
	Message   string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("qlik: %s (code %d, %s)", e.Message, e.Code, e.Parameter)
}

// Session is one websocket connection to the engine. It owns the request id
// counter and correlates responses to their requests by id, so calls may be
// made concurrently and answered in any order.
type Session struct {
	conn *websocket.Conn
	tel  telemetry.API

	writeMutex sync.Mutex

	mutex   sync.Mutex
	nextID  uint64
	pending map[uint64]chan response
	methods []string

	notified chan struct{}
	done     chan struct{}
	err      error
}

// Dial connects to the engine endpoint at url.
func Dial(ctx context.Context, url string, header http.Header, tel telemetry.API) (*Session, error) {
	assert.NotNil(tel)
	tel = telemetry.NewScopedAPI("qlik", tel)

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 30 * time.Second,
	}
	conn, res, err := dialer.DialContext(ctx, url, header)
	if res != nil && res.Body != nil {
		res.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial engine: %w", err)
	}

	s := &Session{
		conn:     conn,
		tel:      tel,
		pending:  map[uint64]chan response{},
		notified: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

func (s *Session) readLoop() {
	for {
		var res response
		err := s.conn.ReadJSON(&res)
		if err != nil {
			s.fail(err)
			return
		}

		if res.ID == 0 {
			if res.Method == "" {
				s.tel.ReportDebug(report_session_read, "ignored message without id or method")
				continue
			}
			s.mutex.Lock()
			s.methods = append(s.methods, res.Method)
			s.mutex.Unlock()
			select {
			case s.notified <- struct{}{}:
			default:
			}
			continue
		}

		s.mutex.Lock()
		ch, ok := s.pending[res.ID]
		delete(s.pending, res.ID)
		s.mutex.Unlock()
		if !ok {
			s.tel.ReportWarning(report_session_read, fmt.Errorf("response to unknown request %d", res.ID))
			continue
		}
		ch <- res
	}
}

func (s *Session) fail(err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.err != nil {
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure) || errors.Is(err, net.ErrClosed) {
		err = ErrSessionClosed
	}
	s.err = err
	close(s.done)
}

func (s *Session) closedErr() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.err
}

// WaitFor blocks until the engine has sent a notification with the given
// method, notifications received before the call count.
func (s *Session) WaitFor(ctx context.Context, method string) error {
	for {
		s.mutex.Lock()
		for _, m := range s.methods {
			if m == method {
				s.mutex.Unlock()
				return nil
			}
		}
		s.mutex.Unlock()

		select {
		case <-s.notified:
		case <-s.done:
			return fmt.Errorf("wait for %s: %w", method, s.closedErr())
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Call sends a request and waits for its response, results are returned
// as is (delta encoded).
func (s *Session) Call(ctx context.Context, handle int, method string, params ...any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}

	ch := make(chan response, 1)
	s.mutex.Lock()
	if s.err != nil {
		s.mutex.Unlock()
		return nil, s.err
	}
	s.nextID++
	id := s.nextID
	s.pending[id] = ch
	s.mutex.Unlock()

	s.tel.ReportDebug(report_session_call, "id", id, "method", method, "handle", handle)

	s.writeMutex.Lock()
	deadline, ok := ctx.Deadline()
	if ok {
		s.conn.SetWriteDeadline(deadline)
	}
	err := s.conn.WriteJSON(request{
		Delta:   true,
		Method:  method,
		Handle:  handle,
		Params:  params,
		ID:      id,
		JSONRPC: "2.0",
	})
	s.writeMutex.Unlock()
	if err != nil {
		s.forget(id)
		s.tel.ReportBroken(report_session_call, fmt.Errorf("write %s: %w", method, err))
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	select {
	case res := <-ch:
		if res.Error != nil {
			return nil, fmt.Errorf("%s: %w", method, res.Error)
		}
		return res.Result, nil
	case <-s.done:
		return nil, fmt.Errorf("%s: %w", method, s.closedErr())
	case <-ctx.Done():
		s.forget(id)
		return nil, ctx.Err()
	}
}

func (s *Session) forget(id uint64) {
	s.mutex.Lock()
	delete(s.pending, id)
	s.mutex.Unlock()
}

func (s *Session) Close() error {
	// marked before the close handshake starts, the read loop otherwise
	// fails first with whatever the dying connection returns
	s.fail(ErrSessionClosed)

	s.writeMutex.Lock()
	_ = s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	s.writeMutex.Unlock()
	return s.conn.Close()
}
