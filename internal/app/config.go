package app

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"cipherchat/internal/log"
	"cipherchat/internal/relay"
	"cipherchat/internal/services/message"
	"cipherchat/internal/transport/websocket"
)

const (
	// DefaultLogLevel is used when Logging.Level is empty.
	DefaultLogLevel = "NOTICE"

	// DefaultRelayAddress is where the relay listens by default.
	DefaultRelayAddress = "0.0.0.0:3000"

	// DefaultRelayURL is the websocket endpoint clients dial by default.
	DefaultRelayURL = "wss://localhost:3000/ws"

	// DefaultDialTimeout bounds the websocket handshake.
	DefaultDialTimeout = 15 * time.Second
)

// Duration is a time.Duration written as a string ("10s") in TOML.
type Duration struct {
	time.Duration
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Logging is the logging configuration shared by both binaries.
type Logging struct {
	// Disable disables logging entirely.
	Disable bool

	// File specifies the log file, if omitted stdout will be used.
	File string

	// Level specifies the log level.
	Level string
}

// DefaultLogging returns the default logging configuration.
func DefaultLogging() Logging {
	return Logging{Level: DefaultLogLevel}
}

// Validate validates and normalises the logging configuration.
func (l *Logging) Validate() error {
	if _, err := log.ParseLevel(l.Level); err != nil {
		return fmt.Errorf("config: Logging: Level '%v' is invalid", l.Level)
	}
	if l.Level == "" {
		l.Level = DefaultLogLevel
	}
	l.Level = strings.ToUpper(l.Level)
	return nil
}

// Server is the relay's listener configuration.
type Server struct {
	// Address is the host:port to listen on.
	Address string

	// CertFile and KeyFile enable TLS. Both or neither must be set.
	CertFile string
	KeyFile  string

	// AllowAnyOrigin disables the browser same-origin check on upgrade.
	AllowAnyOrigin bool
}

// Limits bound per-connection resources on the relay.
type Limits struct {
	// MaxMessageBytes is the largest accepted frame.
	MaxMessageBytes int64

	// SendQueue is the outbound queue length; a client that lets it fill
	// is disconnected.
	SendQueue int

	// WriteTimeout bounds one frame write.
	WriteTimeout Duration
}

// Metrics toggles the prometheus endpoint.
type Metrics struct {
	Enable bool
}

// RelayConfig is the relay's top level configuration.
type RelayConfig struct {
	Server  *Server
	Logging *Logging
	Limits  *Limits
	Metrics *Metrics
}

// FixupAndValidate applies defaults and checks the configuration.
func (c *RelayConfig) FixupAndValidate() error {
	if c.Server == nil {
		c.Server = &Server{}
	}
	if c.Server.Address == "" {
		c.Server.Address = DefaultRelayAddress
	}
	if (c.Server.CertFile == "") != (c.Server.KeyFile == "") {
		return errors.New("config: Server: CertFile and KeyFile must be set together")
	}
	if c.Logging == nil {
		l := DefaultLogging()
		c.Logging = &l
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	if c.Limits == nil {
		c.Limits = &Limits{}
	}
	if c.Limits.MaxMessageBytes <= 0 {
		c.Limits.MaxMessageBytes = websocket.DefaultMaxMessageBytes
	}
	if c.Limits.SendQueue <= 0 {
		c.Limits.SendQueue = relay.DefaultSendQueue
	}
	if c.Limits.WriteTimeout.Duration <= 0 {
		c.Limits.WriteTimeout.Duration = websocket.DefaultWriteTimeout
	}
	if c.Metrics == nil {
		c.Metrics = &Metrics{}
	}
	return nil
}

// Relay is the client's view of the relay endpoint.
type Relay struct {
	// URL is the websocket endpoint, ws:// or wss://.
	URL string

	// InsecureSkipVerify accepts any server certificate. Development only.
	InsecureSkipVerify bool

	// DialTimeout bounds the websocket handshake.
	DialTimeout Duration
}

// Handshake configures key exchange on the client.
type Handshake struct {
	// Timeout is how long a send waits for the recipient's public key.
	Timeout Duration
}

// ClientConfig is the client's top level configuration.
type ClientConfig struct {
	Relay     *Relay
	Handshake *Handshake
	Logging   *Logging
}

// FixupAndValidate applies defaults and checks the configuration.
func (c *ClientConfig) FixupAndValidate() error {
	if c.Relay == nil {
		c.Relay = &Relay{}
	}
	if c.Relay.URL == "" {
		c.Relay.URL = DefaultRelayURL
	}
	u, err := url.Parse(c.Relay.URL)
	if err != nil {
		return fmt.Errorf("config: Relay: URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("config: Relay: URL '%v' must use ws:// or wss://", c.Relay.URL)
	}
	if c.Relay.DialTimeout.Duration <= 0 {
		c.Relay.DialTimeout.Duration = DefaultDialTimeout
	}
	if c.Handshake == nil {
		c.Handshake = &Handshake{}
	}
	if c.Handshake.Timeout.Duration <= 0 {
		c.Handshake.Timeout.Duration = message.DefaultHandshakeTimeout
	}
	if c.Logging == nil {
		l := DefaultLogging()
		c.Logging = &l
	}
	return c.Logging.Validate()
}

// LoadRelay parses and validates b as a relay config file body.
func LoadRelay(b []byte) (*RelayConfig, error) {
	cfg := new(RelayConfig)
	if err := toml.Unmarshal(b, cfg); err != nil {
		return nil, err
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadRelayFile loads, parses and validates the relay config file f.
func LoadRelayFile(f string) (*RelayConfig, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return LoadRelay(b)
}

// LoadClient parses and validates b as a client config file body.
func LoadClient(b []byte) (*ClientConfig, error) {
	cfg := new(ClientConfig)
	if err := toml.Unmarshal(b, cfg); err != nil {
		return nil, err
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadClientFile loads, parses and validates the client config file f.
func LoadClientFile(f string) (*ClientConfig, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return LoadClient(b)
}

// Encode renders a config as TOML.
func Encode(cfg any) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
