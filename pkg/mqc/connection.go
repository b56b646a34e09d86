package mqc

import (
	"sync"
	"time"

	"github.com/nclabs/mqgo/pkg/mqerr"
)

// Connection is one physical broker connection: one Transport, one
// read-dispatcher goroutine, and the sessions/consumers/producers hung off
// it.
type Connection struct {
	cfg    *Config
	engine *Engine
	hooks  hooks
	logger Logger

	clientID string

	flowLimitEnabled bool
	flowChunkCount   int32
	flowWaterMark    int32

	// flowController tracks the connection-wide undelivered message
	// count, independent of any consumer's own FlowController: a message
	// carrying the FlowPaused flag asks this controller to resume the
	// whole connection, while ConsumerFlowPaused asks only the specific
	// consumer's own controller to resume.
	flowController *FlowController

	mu             sync.Mutex
	isClosed       bool
	isAborted      bool
	isStopped      bool
	sessions       map[uint64]*Session
	consumersByID  map[uint64]*Consumer
	producerFlows  map[uint64]*ProducerFlow
	exceptionFired bool

	readerDone chan struct{}
	ping       *pingTimer
}

// Open dials the broker, completes the HELLO/auth handshake, and starts
// the read dispatcher and ping timer: resolve transport, build engine,
// start dispatcher, hello, set client id, start ping timer, leave delivery
// stopped until Start is called.
func Open(cfg *Config) (*Connection, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = nopLogger{}
	}

	dialStart := time.Now()
	transport, _, err := connectTransport(cfg.Host, cfg.BootstrapPort, cfg.PortmapperService,
		cfg.ConnectionType, cfg.TLSConfig, cfg.PortmapperTimeout)
	dialDur := time.Since(dialStart)
	if err != nil {
		hooks(cfg.Hooks).onConnect(cfg.Host, dialDur, nil, err)
		return nil, mqerr.Wrap(mqerr.CouldNotConnect, err, cfg.Host)
	}

	engine := NewEngine(transport, logger, cfg.WriteTimeout, cfg.AckTimeout, hooks(cfg.Hooks))

	conn := &Connection{
		cfg:              cfg,
		engine:           engine,
		hooks:            hooks(cfg.Hooks),
		logger:           logger,
		flowLimitEnabled: cfg.FlowLimitEnabled,
		flowChunkCount:   cfg.FlowChunkCount,
		flowWaterMark:    cfg.FlowWaterMark,
		isStopped:        true,
		sessions:         make(map[uint64]*Session),
		consumersByID:    make(map[uint64]*Consumer),
		producerFlows:    make(map[uint64]*ProducerFlow),
		readerDone:       make(chan struct{}),
	}
	conn.flowController = NewFlowController(cfg.FlowLimitEnabled, cfg.FlowChunkCount, cfg.FlowWaterMark,
		func() error { return engine.resumeFlow(0, cfg.FlowChunkCount) })

	conn.hooks.onConnect(cfg.Host, dialDur, transport.Conn(), nil)

	go conn.dispatchLoop()

	connID, err := engine.hello(cfg.Username, cfg.Password, cfg.AuthType)
	if err != nil {
		conn.exitConnection(err, false, true)
		return nil, err
	}
	_ = connID

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = generateClientID()
	}
	if err := engine.setClientID(clientID); err != nil {
		conn.exitConnection(err, false, true)
		return nil, err
	}
	conn.clientID = clientID

	conn.ping = newPingTimer(conn, cfg.PingInterval)
	conn.ping.start()

	return conn, nil
}

// ClientID returns the client id this connection registered with the
// broker.
func (c *Connection) ClientID() string { return c.clientID }

func (c *Connection) onThrottle(producerID uint64) {
	c.hooks.onThrottle(producerID, 0)
}

func (c *Connection) registerConsumerByID(cons *Consumer) {
	c.mu.Lock()
	c.consumersByID[cons.id] = cons
	c.mu.Unlock()
}

func (c *Connection) unregisterConsumerByID(id uint64) {
	c.mu.Lock()
	delete(c.consumersByID, id)
	c.mu.Unlock()
}

func (c *Connection) consumerByID(id uint64) (*Consumer, bool) {
	c.mu.Lock()
	cons, ok := c.consumersByID[id]
	c.mu.Unlock()
	return cons, ok
}

func (c *Connection) registerProducerFlow(id uint64, f *ProducerFlow) {
	c.mu.Lock()
	c.producerFlows[id] = f
	c.mu.Unlock()
}

func (c *Connection) unregisterProducerFlow(id uint64) {
	c.mu.Lock()
	delete(c.producerFlows, id)
	c.mu.Unlock()
}

func (c *Connection) producerFlowByID(id uint64) (*ProducerFlow, bool) {
	c.mu.Lock()
	f, ok := c.producerFlows[id]
	c.mu.Unlock()
	return f, ok
}

func (c *Connection) unregisterSessionByID(id uint64) {
	c.mu.Lock()
	delete(c.sessions, id)
	c.mu.Unlock()
}

// CreateSession registers a new session in the given acknowledgement mode
// and receive mode (Sync for blocking Receive calls, Async for a
// dedicated delivery goroutine feeding each consumer's MessageListener).
func (c *Connection) CreateSession(ackMode AckMode, receiveMode ReceiveMode) (*Session, error) {
	id, err := c.engine.registerSession(int32(ackMode))
	if err != nil {
		return nil, err
	}
	s, err := newSession(c, id, ackMode, receiveMode)
	if err != nil {
		_ = c.engine.unregisterSession(id)
		return nil, err
	}
	c.mu.Lock()
	c.sessions[id] = s
	c.mu.Unlock()
	return s, nil
}

// Start resumes delivery across every session on this connection.
func (c *Connection) Start() error {
	c.mu.Lock()
	c.isStopped = false
	c.mu.Unlock()
	return c.engine.start(0)
}

// Stop pauses delivery across every session on this connection.
func (c *Connection) Stop() error {
	c.mu.Lock()
	c.isStopped = true
	c.mu.Unlock()
	return c.engine.stop(0)
}

// Close performs the orderly shutdown sequence: stop delivery, close every
// session (which in turn closes its own producers and consumers, and
// rolls back any open non-XA transacted session), send GOODBYE if the
// reader is still healthy, then tear down the reader goroutine, ping
// timer, and transport. Every step tolerates BrokerConnectionClosed and
// continues, since a concurrent read error may already be unwinding the
// connection underneath this call.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.isClosed {
		c.mu.Unlock()
		return nil
	}
	sessions := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.mu.Unlock()

	if c.ping != nil {
		c.ping.stop()
	}

	if err := c.Stop(); err != nil && !isClosedErr(err) {
		c.logger.Log(LogLevelWarn, "stop failed during close", "err", err)
	}

	for _, s := range sessions {
		if err := s.Close(); err != nil && !isClosedErr(err) {
			c.logger.Log(LogLevelWarn, "session close failed during close", "sessionId", s.id, "err", err)
		}
	}

	err := c.engine.goodBye(true)
	if err != nil && !isClosedErr(err) {
		c.logger.Log(LogLevelWarn, "goodbye failed during close", "err", err)
	}
	c.exitConnection(err, false, false)
	<-c.readerDone
	return nil
}

func isClosedErr(err error) bool {
	kind, ok := mqerr.KindOf(err)
	return ok && kind == mqerr.BrokerConnectionClosed
}

// exitConnection performs the idempotent abort/close path: it marks the
// connection closed, closes every outstanding ack queue (waking any
// goroutine blocked in writeAckedN), closes every consumer's receive
// queue, and fires the exception listener at most once. fromReader
// indicates the dispatcher goroutine itself is calling this as it exits;
// abort indicates a hard failure (I/O error, protocol violation) rather
// than a clean GOODBYE.
func (c *Connection) exitConnection(cause error, fromReader bool, abort bool) {
	c.mu.Lock()
	if c.isClosed {
		c.mu.Unlock()
		return
	}
	c.isClosed = true
	c.isAborted = abort
	sessions := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.mu.Unlock()

	c.engine.ackQueues.closeAll()
	for _, s := range sessions {
		s.mu.Lock()
		consumers := make([]*Consumer, 0, len(s.consumers))
		for _, cons := range s.consumers {
			consumers = append(consumers, cons)
		}
		s.mu.Unlock()
		for _, cons := range consumers {
			cons.queue.Close(false)
		}
	}

	c.engine.transport.Close()
	c.hooks.onDisconnect(c.cfg.Host, c.engine.transport.Conn())

	if cause != nil && abort {
		c.notifyExceptionListener(cause)
	}
}

// notifyExceptionListener invokes the configured exception listener at
// most once per connection. The listener runs in its own goroutine, never
// the dispatcher's, so a listener that calls Connection.Close cannot
// deadlock waiting on the dispatcher's own exit.
func (c *Connection) notifyExceptionListener(err error) {
	c.mu.Lock()
	if c.exceptionFired || c.cfg.ExceptionListener == nil {
		c.mu.Unlock()
		return
	}
	c.exceptionFired = true
	listener := c.cfg.ExceptionListener
	c.mu.Unlock()
	go listener(err)
}
