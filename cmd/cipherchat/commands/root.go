package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"cipherchat/internal/app"
)

// Environment overrides, applied between the config file and the flags.
const (
	envRelayURL = "CIPHERCHAT_RELAY_URL"
	envInsecure = "CIPHERCHAT_INSECURE"
	envLogLevel = "CIPHERCHAT_LOG_LEVEL"
)

var (
	envFile    string
	configFile string
	relayURL   string
	insecure   bool
	logLevel   string
	handshake  time.Duration

	cfg *app.ClientConfig
)

func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "cipherchat",
		Short:        "End-to-end encrypted chat over a websocket relay",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadEnvFile(envFile, cmd.Flags().Changed("env-file")); err != nil {
				return err
			}

			var err error
			if configFile != "" {
				cfg, err = app.LoadClientFile(configFile)
			} else {
				cfg, err = app.LoadClient(nil)
			}
			if err != nil {
				return err
			}
			if err := applyEnv(cfg); err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("relay") {
				cfg.Relay.URL = relayURL
			}
			if flags.Changed("insecure") {
				cfg.Relay.InsecureSkipVerify = insecure
			}
			if flags.Changed("log-level") {
				cfg.Logging.Level = logLevel
			}
			if flags.Changed("handshake-timeout") {
				cfg.Handshake.Timeout.Duration = handshake
			}
			return cfg.FixupAndValidate()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&configFile, "config", "f", "", "client TOML config file")
	pf.StringVar(&envFile, "env-file", ".env", "dotenv file with "+envRelayURL+" and friends; ignored if absent")
	pf.StringVar(&relayURL, "relay", app.DefaultRelayURL, "relay websocket URL (ws:// or wss://)")
	pf.BoolVar(&insecure, "insecure", false, "accept any relay TLS certificate (development only)")
	pf.StringVar(&logLevel, "log-level", app.DefaultLogLevel, "ERROR, WARNING, NOTICE, INFO or DEBUG")
	pf.DurationVar(&handshake, "handshake-timeout", 10*time.Second, "how long send waits for the peer's key")

	root.AddCommand(chatCmd(), sendCmd(), peersCmd(), genconfigCmd())
	return root
}

// loadEnvFile loads path into the process environment without overriding
// variables that are already set. A missing default file is not an error.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *app.ClientConfig) error {
	if v, ok := os.LookupEnv(envRelayURL); ok && v != "" {
		cfg.Relay.URL = v
	}
	if v, ok := os.LookupEnv(envInsecure); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envInsecure, err)
		}
		cfg.Relay.InsecureSkipVerify = b
	}
	if v, ok := os.LookupEnv(envLogLevel); ok && v != "" {
		cfg.Logging.Level = v
	}
	return nil
}

// connect dials the relay, starts the read loop and waits for our identity.
// The returned stop function disconnects and waits for the loop to end.
func connect(ctx context.Context) (*app.ClientApp, <-chan error, func(), error) {
	c, err := app.NewClient(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- c.Messages.Run(runCtx) }()

	stop := func() {
		cancel()
		_ = c.Close()
	}
	if err := c.Messages.WaitReady(ctx); err != nil {
		stop()
		return nil, nil, nil, fmt.Errorf("waiting for relay identity: %w", err)
	}
	return c, done, stop, nil
}
