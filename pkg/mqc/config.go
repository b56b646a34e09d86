package mqc

import (
	"crypto/tls"
	"time"

	"github.com/google/uuid"
	"github.com/nclabs/mqgo/pkg/wire"
)

// Config holds every connection-configuration knob this client exposes.
// Functional options below set individual fields; DefaultConfig, not the
// zero value, supplies broker-reasonable defaults for everything except
// Host/Port/Username/Password.
type Config struct {
	Host              string
	BootstrapPort     int
	PortmapperService string
	ConnectionType    ConnectionType
	TLSConfig         *tls.Config
	PortmapperTimeout time.Duration

	Username string
	Password string
	AuthType string

	ClientID string

	WriteTimeout time.Duration
	AckTimeout   time.Duration
	PingInterval time.Duration

	FlowLimitEnabled bool
	FlowChunkCount   int32
	FlowWaterMark    int32

	Logger Logger
	Hooks  []Hook

	ExceptionListener func(error)
}

// Option mutates a Config; see With* constructors below.
type Option func(*Config)

// DefaultConfig returns the baseline configuration this client falls back
// to when an Option does not override a field.
func DefaultConfig() *Config {
	return &Config{
		BootstrapPort:     DefaultPortmapperPort,
		PortmapperService: "jms",
		ConnectionType:    ConnectionTypeTCP,
		PortmapperTimeout: 30 * time.Second,
		AuthType:          wire.AuthTypeBasic,
		WriteTimeout:      30 * time.Second,
		AckTimeout:        60 * time.Second,
		PingInterval:      30 * time.Second,
		FlowLimitEnabled:  true,
		FlowChunkCount:    1000,
		FlowWaterMark:     500,
	}
}

func WithAddress(host string, bootstrapPort int) Option {
	return func(c *Config) { c.Host = host; c.BootstrapPort = bootstrapPort }
}

func WithPortmapperService(service string) Option {
	return func(c *Config) { c.PortmapperService = service }
}

func WithTLS(cfg *tls.Config) Option {
	return func(c *Config) { c.ConnectionType = ConnectionTypeTLS; c.TLSConfig = cfg }
}

func WithCredentials(username, password string) Option {
	return func(c *Config) { c.Username = username; c.Password = password }
}

func WithClientID(id string) Option {
	return func(c *Config) { c.ClientID = id }
}

func WithTimeouts(write, ack, pingInterval time.Duration) Option {
	return func(c *Config) { c.WriteTimeout = write; c.AckTimeout = ack; c.PingInterval = pingInterval }
}

func WithFlowControl(enabled bool, chunkCount, waterMark int32) Option {
	return func(c *Config) { c.FlowLimitEnabled = enabled; c.FlowChunkCount = chunkCount; c.FlowWaterMark = waterMark }
}

func WithLogger(l Logger) Option {
	return func(c *Config) { c.Logger = l }
}

func WithHooks(hooks ...Hook) Option {
	return func(c *Config) { c.Hooks = append(c.Hooks, hooks...) }
}

func WithExceptionListener(f func(error)) Option {
	return func(c *Config) { c.ExceptionListener = f }
}

// NewConfig builds a Config from DefaultConfig plus the given options.
func NewConfig(opts ...Option) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Connect builds a Config from opts and opens a Connection, the usual
// entry point applications use instead of calling NewConfig/Open
// separately.
func Connect(opts ...Option) (*Connection, error) {
	return Open(NewConfig(opts...))
}

func generateClientID() string {
	return "mqgo-" + uuid.New().String()
}
