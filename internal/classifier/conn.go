package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/signstream/streamer/internal/models"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30 * time.Second
	PongWait     = 60 * time.Second

	writeWait      = 10 * time.Second
	sendBufferSize = 16
	maxMessageSize = 1 << 20
)

// Callbacks receive connection events. They run on the connection's goroutines and
// must not block; any of them may be nil.
type Callbacks struct {
	OnConnected    func()
	OnDisconnected func(err error)
	OnReconnecting func(attempt int, delay time.Duration)
	OnResult       func(obs models.Observation)
	OnStale        func(idle time.Duration)
	OnServerError  func(msg string)
}

// Options tune a Conn. Zero values select the defaults.
type Options struct {
	HandshakeTimeout time.Duration
	FrameTimeout     time.Duration
	PingInterval     time.Duration
	Reconnect        backoff.BackOff
	// Config, when set, is sent once after every successful handshake.
	Config *ConfigMessage
}

// Conn owns one persistent websocket to the remote classifier and reconnects it
// while the owner still wants a connection.
type Conn struct {
	opts   Options
	dialer *websocket.Dialer
	logger *zap.Logger
	now    func() time.Time

	mu           sync.Mutex
	phase        models.ConnectionPhase
	wants        bool
	epoch        uint64
	endpoint     string
	cb           Callbacks
	link         *link
	timer        *time.Timer
	dialCancel   context.CancelFunc
	attempt      int
	lastActivity time.Time
	lastStale    time.Time
}

// link is one established websocket and its pumps.
type link struct {
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (l *link) close() {
	l.once.Do(func() { close(l.done) })
}

// NewConn creates a disconnected classifier connection.
func NewConn(opts Options, logger *zap.Logger) *Conn {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	if opts.FrameTimeout <= 0 {
		opts.FrameTimeout = 10 * time.Second
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = PingInterval
	}
	if opts.Reconnect == nil {
		opts.Reconnect = backoff.NewConstantBackOff(2 * time.Second)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Conn{
		opts:   opts,
		dialer: &websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout},
		logger: logger,
		now:    time.Now,
		phase:  models.PhaseDisconnected,
	}
}

// Connect tears down any existing connection and dials endpoint, blocking until the
// handshake completes or fails. A failure is also handed to OnDisconnected and, since
// the caller now wants a connection, a reconnect is scheduled.
func (c *Conn) Connect(ctx context.Context, endpoint string, cb Callbacks) error {
	c.mu.Lock()
	old := c.teardownLocked()
	c.wants = true
	c.endpoint = endpoint
	c.cb = cb
	c.attempt = 0
	c.opts.Reconnect.Reset()
	epoch := c.epoch
	c.mu.Unlock()

	if old != nil {
		old.close()
	}
	return c.dial(ctx, epoch)
}

// Disconnect stops wanting a connection, cancels any pending reconnect and closes the
// socket. No callback fires for the torn-down connection. Safe to call more than once.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	wasConnected := c.link != nil
	old := c.teardownLocked()
	c.wants = false
	c.mu.Unlock()

	if old != nil {
		old.close()
	}
	if wasConnected {
		c.logger.Info("classifier disconnected")
	}
}

// teardownLocked invalidates the current epoch and detaches the live link, which the
// caller closes after releasing the lock.
func (c *Conn) teardownLocked() *link {
	c.epoch++
	if c.dialCancel != nil {
		c.dialCancel()
		c.dialCancel = nil
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	old := c.link
	c.link = nil
	c.phase = models.PhaseDisconnected
	return old
}

// Send queues an encoded frame. Frames are dropped, never queued for later, when the
// connection is not up or the outbound buffer is full.
func (c *Conn) Send(p models.Payload) bool {
	c.mu.Lock()
	l := c.link
	up := c.phase == models.PhaseConnected && l != nil
	c.mu.Unlock()
	if !up {
		return false
	}
	data, err := json.Marshal(newFrameMessage(p))
	if err != nil {
		c.logger.Warn("marshal frame failed", zap.Error(err))
		return false
	}
	return l.enqueue(data)
}

func (l *link) enqueue(data []byte) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.send <- data:
		return true
	default:
		return false
	}
}

// State returns a snapshot of the connection lifecycle.
func (c *Conn) State() models.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return models.ConnectionState{Phase: c.phase, LastActivity: c.lastActivity, Attempt: c.attempt}
}

// Wants reports whether the owner currently wants a connection.
func (c *Conn) Wants() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wants
}

func (c *Conn) dial(ctx context.Context, epoch uint64) error {
	c.mu.Lock()
	if epoch != c.epoch || !c.wants {
		c.mu.Unlock()
		return &ConnectError{Endpoint: c.endpoint, Err: context.Canceled}
	}
	c.phase = models.PhaseConnecting
	endpoint := c.endpoint
	dctx, cancel := context.WithTimeout(ctx, c.opts.HandshakeTimeout)
	c.dialCancel = cancel
	c.mu.Unlock()

	ws, resp, err := c.dialer.DialContext(dctx, endpoint, nil)
	cancel()
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	c.mu.Lock()
	if epoch != c.epoch {
		// Disconnect or a newer Connect won while we were dialing.
		c.mu.Unlock()
		if ws != nil {
			_ = ws.Close()
		}
		return &ConnectError{Endpoint: endpoint, Err: context.Canceled}
	}
	c.dialCancel = nil
	if err != nil {
		cerr := &ConnectError{Endpoint: endpoint, Err: err}
		c.logger.Warn("classifier connect failed", zap.String("endpoint", endpoint), zap.Error(err))
		c.downLocked(epoch, cerr)
		return cerr
	}

	l := &link{ws: ws, send: make(chan []byte, sendBufferSize), done: make(chan struct{})}
	c.link = l
	c.phase = models.PhaseConnected
	c.attempt = 0
	c.opts.Reconnect.Reset()
	c.lastActivity = c.now()
	c.lastStale = time.Time{}
	cb := c.cb
	c.mu.Unlock()

	go c.writePump(l)
	go c.readPump(epoch, l)
	go c.watchdog(epoch, l)

	c.logger.Info("classifier connected", zap.String("endpoint", endpoint))
	if cb.OnConnected != nil {
		cb.OnConnected()
	}
	if c.opts.Config != nil {
		if data, err := json.Marshal(c.opts.Config); err == nil {
			l.enqueue(data)
		}
	}
	return nil
}

// downLocked moves to Reconnecting or Disconnected after a failure of the current
// epoch and releases the lock before running callbacks.
func (c *Conn) downLocked(epoch uint64, cause error) {
	cb := c.cb
	var (
		reconnect bool
		attempt   int
		delay     time.Duration
	)
	if c.wants {
		delay = c.opts.Reconnect.NextBackOff()
		if delay != backoff.Stop {
			reconnect = true
			c.attempt++
			attempt = c.attempt
			c.phase = models.PhaseReconnecting
			c.timer = time.AfterFunc(delay, func() { c.reconnect(epoch) })
		}
	}
	if !reconnect {
		c.phase = models.PhaseDisconnected
	}
	c.mu.Unlock()

	if cb.OnDisconnected != nil {
		cb.OnDisconnected(cause)
	}
	if reconnect {
		c.logger.Info("classifier reconnect scheduled", zap.Int("attempt", attempt), zap.Duration("delay", delay))
		if cb.OnReconnecting != nil {
			cb.OnReconnecting(attempt, delay)
		}
	}
}

func (c *Conn) reconnect(epoch uint64) {
	c.mu.Lock()
	if epoch != c.epoch || !c.wants {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.mu.Unlock()
	_ = c.dial(context.Background(), epoch)
}

// linkDown handles a dead link reported by the read pump.
func (c *Conn) linkDown(epoch uint64, l *link, err error) {
	l.close()
	c.mu.Lock()
	if epoch != c.epoch || c.link != l {
		c.mu.Unlock()
		return
	}
	c.link = nil
	c.logger.Warn("classifier connection lost", zap.Error(err))
	c.downLocked(epoch, &ClosedError{Err: err})
}

// current returns the callbacks if l is still the live link of epoch.
func (c *Conn) current(epoch uint64, l *link) (Callbacks, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch || c.link != l {
		return Callbacks{}, false
	}
	return c.cb, true
}

func (c *Conn) readPump(epoch uint64, l *link) {
	var readErr error
	defer func() {
		c.linkDown(epoch, l, readErr)
	}()

	l.ws.SetReadLimit(maxMessageSize)
	_ = l.ws.SetReadDeadline(time.Now().Add(PongWait))
	l.ws.SetPongHandler(func(string) error {
		_ = l.ws.SetReadDeadline(time.Now().Add(PongWait))
		return nil
	})

	for {
		_, data, err := l.ws.ReadMessage()
		if err != nil {
			readErr = err
			return
		}
		_ = l.ws.SetReadDeadline(time.Now().Add(PongWait))

		c.mu.Lock()
		if epoch == c.epoch && c.link == l {
			c.lastActivity = c.now()
		}
		c.mu.Unlock()

		c.handleMessage(epoch, l, data)
	}
}

func (c *Conn) handleMessage(epoch uint64, l *link, data []byte) {
	obs, serverErr, err := parseInbound(data)
	if err != nil {
		var perr *ProtocolError
		if errors.As(err, &perr) {
			c.logger.Warn("dropping malformed classifier message", zap.String("raw", perr.Raw), zap.Error(perr.Err))
		}
		return
	}
	cb, ok := c.current(epoch, l)
	if !ok {
		return
	}
	if serverErr != "" {
		if isIgnoredServerError(serverErr) {
			c.logger.Debug("classifier frame error", zap.String("error", serverErr))
			return
		}
		c.logger.Warn("classifier error", zap.String("error", serverErr))
		if cb.OnServerError != nil {
			cb.OnServerError(serverErr)
		}
		return
	}
	obs.ReceivedAt = c.now()
	if cb.OnResult != nil {
		cb.OnResult(obs)
	}
}

func (c *Conn) writePump(l *link) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = l.ws.Close()
	}()

	for {
		select {
		case <-l.done:
			_ = l.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case data := <-l.send:
			_ = l.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("classifier write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = l.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// watchdog raises OnStale once per FrameTimeout of inbound silence. It never closes
// the socket; a dead socket surfaces through the read pump.
func (c *Conn) watchdog(epoch uint64, l *link) {
	timeout := c.opts.FrameTimeout
	check := timeout / 4
	if check < 10*time.Millisecond {
		check = 10 * time.Millisecond
	}
	ticker := time.NewTicker(check)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			if epoch != c.epoch || c.link != l {
				c.mu.Unlock()
				return
			}
			now := c.now()
			since := c.lastActivity
			if c.lastStale.After(since) {
				since = c.lastStale
			}
			idle := now.Sub(c.lastActivity)
			fire := now.Sub(since) >= timeout
			if fire {
				c.lastStale = now
			}
			cb := c.cb
			c.mu.Unlock()

			if fire {
				c.logger.Warn("classifier connection stale", zap.Duration("idle", idle))
				if cb.OnStale != nil {
					cb.OnStale(idle)
				}
			}
		}
	}
}
