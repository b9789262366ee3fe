package app

import (
	"context"
	"errors"
	"time"

	"gopkg.in/op/go-logging.v1"

	"cipherchat/internal/domain"
	"cipherchat/internal/instrument"
	"cipherchat/internal/log"
	"cipherchat/internal/relay"
	"cipherchat/internal/services/message"
	"cipherchat/internal/services/session"
)

// ShutdownTimeout bounds a graceful relay shutdown.
const ShutdownTimeout = 5 * time.Second

// RelayApp is the wired relay.
type RelayApp struct {
	Config  *RelayConfig
	Logs    *log.Backend
	Metrics *instrument.Metrics
	Engine  *relay.Engine
	Server  *relay.Server

	log *logging.Logger
}

// Run serves until ctx is done, then shuts down gracefully.
func (a *RelayApp) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() { errc <- a.Server.ListenAndServe() }()

	select {
	case err := <-errc:
		a.Engine.Shutdown()
		return err
	case <-ctx.Done():
	}

	a.log.Notice("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	err := a.Server.Shutdown(sctx)
	if serr := <-errc; serr != nil && err == nil {
		err = serr
	}
	return err
}

// Close releases the log backend.
func (a *RelayApp) Close() error { return a.Logs.Close() }

// ClientApp is a wired, connected client.
type ClientApp struct {
	Config   *ClientConfig
	Logs     *log.Backend
	Sessions *session.Manager
	Messages *message.Service

	conn domain.Conn
}

// Close disconnects from the relay and wipes every secret.
func (c *ClientApp) Close() error {
	err := c.conn.Close()
	c.Sessions.Close()
	return errors.Join(err, c.Logs.Close())
}
