package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/badvoidstar/astervoids/pkg/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Conn is one live websocket connection. Outbound frames go through a
// buffered send channel drained by writeLoop; inbound frames are rate
// limited and dispatched inline by readLoop.
type Conn struct {
	id     string
	server *Server
	socket *websocket.Conn

	send    chan []byte
	done    chan struct{}
	once    sync.Once
	groups  map[string]struct{} // guarded by server.mu
	limiter *rate.Limiter
}

func newConn(s *Server, socket *websocket.Conn) *Conn {
	return &Conn{
		id:      uuid.NewString(),
		server:  s,
		socket:  socket,
		send:    make(chan []byte, s.opts.SendBufferSize),
		done:    make(chan struct{}),
		groups:  make(map[string]struct{}),
		limiter: rate.NewLimiter(rate.Limit(s.opts.InboundRate), s.opts.InboundBurst),
	}
}

// readLoop consumes inbound frames until the socket dies. It returns the
// close error for abnormal closes and nil for expected ones.
func (c *Conn) readLoop() error {
	c.socket.SetReadLimit(c.server.opts.MaxMessageBytes)
	_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return err
			}
			return nil
		}
		if len(payload) == 0 {
			continue
		}

		if !c.limiter.Allow() {
			c.server.log.Warn("inbound rate limit exceeded",
				zap.String("connection_id", c.id),
			)
			continue
		}

		var req request
		if err := json.Unmarshal(payload, &req); err != nil {
			c.server.log.Warn("invalid request envelope",
				zap.String("connection_id", c.id),
				zap.Error(err),
			)
			continue
		}
		c.dispatch(&req)
	}
}

// dispatch resolves the handler and replies. Domain rejections and
// malformed payloads both answer null; only the log distinguishes them.
func (c *Conn) dispatch(req *request) {
	handler := c.server.handler(req.Method)
	if handler == nil {
		c.server.log.Warn("unknown method",
			zap.String("method", req.Method),
			zap.String("connection_id", c.id),
		)
		c.reply(req.ID, nil)
		return
	}

	start := time.Now()
	result, err := handler(&Context{ConnectionID: c.id}, req.Data)
	metrics.RPCLatency.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())

	if err != nil {
		c.server.log.Warn("rpc rejected",
			zap.String("method", req.Method),
			zap.String("connection_id", c.id),
			zap.Error(err),
		)
		c.reply(req.ID, nil)
		return
	}
	c.reply(req.ID, result)
}

// reply enqueues the response envelope. Notifications (id 0) get none.
func (c *Conn) reply(id uint64, result any) {
	if id == 0 {
		return
	}

	payload, err := json.Marshal(response{ID: id, Result: result})
	if err != nil {
		c.server.log.Error("marshal response",
			zap.String("connection_id", c.id),
			zap.Error(err),
		)
		return
	}
	if !c.trySend(payload) {
		c.server.log.Warn("dropping backpressure connection",
			zap.String("connection_id", c.id),
		)
		c.close()
	}
}

// trySend enqueues without blocking. It reports false only when the buffer
// is full on a live connection; a closing connection swallows the frame.
func (c *Conn) trySend(payload []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}

	select {
	case c.send <- payload:
		return true
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Conn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.close()

	for {
		select {
		case payload := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.socket.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// close unregisters the connection and tears the socket down. Idempotent;
// callers must not hold the server lock.
func (c *Conn) close() {
	c.once.Do(func() {
		c.server.unregister(c)
		close(c.done)
		_ = c.socket.Close()
	})
}
