package app

import (
	"context"
	"crypto/tls"
	"fmt"

	"cipherchat/internal/instrument"
	"cipherchat/internal/log"
	"cipherchat/internal/relay"
	"cipherchat/internal/services/message"
	"cipherchat/internal/services/session"
	"cipherchat/internal/transport/websocket"
)

// NewRelay constructs the relay's dependency graph from cfg, which must
// have passed FixupAndValidate.
func NewRelay(cfg *RelayConfig) (*RelayApp, error) {
	logs, err := log.New(cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Disable)
	if err != nil {
		return nil, err
	}

	var metrics *instrument.Metrics
	if cfg.Metrics.Enable {
		metrics = instrument.New()
	}

	engine := relay.NewEngine(relay.NewDirectory(), logs.GetLogger("engine"), metrics, relay.EngineConfig{
		SendQueue: cfg.Limits.SendQueue,
	})
	server := relay.NewServer(relay.ServerConfig{
		Address:        cfg.Server.Address,
		CertFile:       cfg.Server.CertFile,
		KeyFile:        cfg.Server.KeyFile,
		AllowAnyOrigin: cfg.Server.AllowAnyOrigin,
		Transport: websocket.Options{
			MaxMessageBytes: cfg.Limits.MaxMessageBytes,
			WriteTimeout:    cfg.Limits.WriteTimeout.Duration,
		},
	}, engine, metrics, logs.GetLogger("relay"))

	return &RelayApp{
		Config:  cfg,
		Logs:    logs,
		Metrics: metrics,
		Engine:  engine,
		Server:  server,
		log:     logs.GetLogger("app"),
	}, nil
}

// NewClient generates a fresh key pair, dials the relay and builds the
// message service. The caller owns the returned client and must Close it.
func NewClient(ctx context.Context, cfg *ClientConfig) (*ClientApp, error) {
	logs, err := log.New(cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Disable)
	if err != nil {
		return nil, err
	}

	sessions, err := session.New()
	if err != nil {
		logs.Close()
		return nil, err
	}

	opts := websocket.DialOptions{HandshakeTimeout: cfg.Relay.DialTimeout.Duration}
	if cfg.Relay.InsecureSkipVerify {
		opts.TLS = &tls.Config{InsecureSkipVerify: true}
	}
	conn, err := websocket.Dial(ctx, cfg.Relay.URL, opts)
	if err != nil {
		sessions.Close()
		logs.Close()
		return nil, fmt.Errorf("connecting to relay: %w", err)
	}

	msgs := message.New(conn, sessions, message.Config{
		HandshakeTimeout: cfg.Handshake.Timeout.Duration,
	}, logs.GetLogger("client"))

	return &ClientApp{
		Config:   cfg,
		Logs:     logs,
		Sessions: sessions,
		Messages: msgs,
		conn:     conn,
	}, nil
}
