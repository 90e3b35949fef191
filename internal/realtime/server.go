package realtime

import (
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/badvoidstar/astervoids/pkg/logger"
	"github.com/badvoidstar/astervoids/pkg/metrics"
)

const (
	defaultBufferSize   = 64
	defaultInboundRate  = 120
	defaultInboundBurst = 240
	defaultMaxMessage   = 64 << 10 // 64 KiB
)

// HandlerFunc handles one RPC invocation. The returned value becomes the
// response result; returning an error produces a null result and a warning,
// never a transport failure.
type HandlerFunc func(ctx *Context, data json.RawMessage) (any, error)

// Context carries per-connection request context to handlers.
type Context struct {
	ConnectionID string
}

// Options tunes the websocket transport.
type Options struct {
	SendBufferSize  int
	InboundRate     float64
	InboundBurst    int
	MaxMessageBytes int64
	AllowedOrigins  []string
}

// Server owns the live connections, the named broadcast groups and the RPC
// handler table. Handlers run inline on the connection's read loop, so
// calls from one connection are FIFO while distinct connections run
// concurrently.
type Server struct {
	mu       sync.RWMutex
	conns    map[string]*Conn
	groups   map[string]map[string]*Conn
	handlers map[string]HandlerFunc

	onConnect    func(connectionID string)
	onDisconnect func(connectionID string, err error)

	upgrader websocket.Upgrader
	opts     Options
	log      *zap.Logger
}

// NewServer constructs a Server. Zero option fields fall back to defaults.
func NewServer(opts Options) *Server {
	if opts.SendBufferSize <= 0 {
		opts.SendBufferSize = defaultBufferSize
	}
	if opts.InboundRate <= 0 {
		opts.InboundRate = defaultInboundRate
	}
	if opts.InboundBurst <= 0 {
		opts.InboundBurst = defaultInboundBurst
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = defaultMaxMessage
	}

	s := &Server{
		conns:    make(map[string]*Conn),
		groups:   make(map[string]map[string]*Conn),
		handlers: make(map[string]HandlerFunc),
		opts:     opts,
		log:      logger.WithModule("realtime"),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Handle registers the handler for an RPC method. Register everything
// before the server starts accepting connections.
func (s *Server) Handle(method string, fn HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = fn
}

// OnConnect registers the callback invoked after a connection is accepted,
// before its first message is read.
func (s *Server) OnConnect(fn func(connectionID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onConnect = fn
}

// OnDisconnect registers the callback invoked exactly once when a
// connection goes away. err is nil on a clean close.
func (s *Server) OnDisconnect(fn func(connectionID string, err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDisconnect = fn
}

// Serve upgrades the HTTP request into a realtime connection and blocks
// until it closes. The disconnect callback fires on this goroutine after
// the connection has been removed from every group.
func (s *Server) Serve(w http.ResponseWriter, r *http.Request) {
	socket, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade failed", zap.Error(err))
		return
	}

	conn := newConn(s, socket)

	s.mu.Lock()
	s.conns[conn.id] = conn
	onConnect := s.onConnect
	onDisconnect := s.onDisconnect
	s.mu.Unlock()
	metrics.ConnectedClients.Inc()

	s.log.Debug("connection opened", zap.String("connection_id", conn.id))

	if onConnect != nil {
		onConnect(conn.id)
	}

	go conn.writeLoop()
	cause := conn.readLoop()
	conn.close()

	if onDisconnect != nil {
		onDisconnect(conn.id, cause)
	}
	s.log.Debug("connection closed", zap.String("connection_id", conn.id), zap.Error(cause))
}

// ConnectionCount returns the number of live connections.
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// AddToGroup subscribes the connection to a named broadcast group. Unknown
// connections are ignored.
func (s *Server) AddToGroup(connectionID, group string) {
	if group == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conn, ok := s.conns[connectionID]
	if !ok {
		return
	}
	members, ok := s.groups[group]
	if !ok {
		members = make(map[string]*Conn)
		s.groups[group] = members
	}
	members[connectionID] = conn
	conn.groups[group] = struct{}{}
}

// RemoveFromGroup drops the connection from the group.
func (s *Server) RemoveFromGroup(connectionID, group string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conn, ok := s.conns[connectionID]; ok {
		delete(conn.groups, group)
	}
	s.dropFromGroup(connectionID, group)
}

// Broadcast marshals the event once and fans it out to every member of the
// group. Delivery per member is FIFO through its send channel; members that
// cannot keep up are dropped and closed.
func (s *Server) Broadcast(group, eventName string, data any) {
	s.broadcast(group, eventName, data, "")
}

// BroadcastExcept fans out like Broadcast, skipping one connection.
func (s *Server) BroadcastExcept(group, eventName string, data any, exceptConnectionID string) {
	s.broadcast(group, eventName, data, exceptConnectionID)
}

// Shutdown closes every live connection.
func (s *Server) Shutdown() {
	s.mu.RLock()
	conns := make([]*Conn, 0, len(s.conns))
	for _, conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.RUnlock()

	for _, conn := range conns {
		conn.close()
	}
}

func (s *Server) broadcast(group, eventName string, data any, except string) {
	payload, err := json.Marshal(event{Event: eventName, Data: data})
	if err != nil {
		s.log.Error("marshal event", zap.String("event", eventName), zap.Error(err))
		return
	}
	metrics.EventsBroadcast.WithLabelValues(eventName).Inc()

	// Closing a victim takes the write lock, so collect first.
	var victims []*Conn
	s.mu.RLock()
	for id, conn := range s.groups[group] {
		if id == except {
			continue
		}
		if !conn.trySend(payload) {
			victims = append(victims, conn)
		}
	}
	s.mu.RUnlock()

	for _, conn := range victims {
		s.log.Warn("dropping backpressure connection",
			zap.String("connection_id", conn.id),
			zap.String("group", group),
		)
		conn.close()
	}
}

func (s *Server) handler(method string) HandlerFunc {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handlers[method]
}

// unregister removes the connection from the table and every group it
// joined. Safe to call more than once.
func (s *Server) unregister(c *Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conns[c.id]; !ok {
		return
	}
	delete(s.conns, c.id)
	for group := range c.groups {
		s.dropFromGroup(c.id, group)
	}
	c.groups = nil
	metrics.ConnectedClients.Dec()
}

// dropFromGroup removes the connection id from the group table. The caller
// holds the write lock.
func (s *Server) dropFromGroup(connectionID, group string) {
	members, ok := s.groups[group]
	if !ok {
		return
	}
	delete(members, connectionID)
	if len(members) == 0 {
		delete(s.groups, group)
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	originHost := hostWithoutPort(origin)
	requestHost := hostWithoutPort(r.Host)
	if originHost == requestHost || isLoopback(originHost) {
		return true
	}

	for _, allowed := range s.opts.AllowedOrigins {
		if strings.EqualFold(strings.TrimRight(allowed, "/"), strings.TrimRight(origin, "/")) {
			return true
		}
	}
	return false
}

func hostWithoutPort(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}

	if strings.Contains(host, "://") {
		if parsed, err := url.Parse(host); err == nil && parsed.Host != "" {
			host = parsed.Host
		}
	}

	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func isLoopback(host string) bool {
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost")
}
