package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"cipherchat/internal/app"
)

var (
	configFile string
	addr       string
	certFile   string
	keyFile    string
	logLevel   string
	metrics    bool
	anyOrigin  bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig(cmd *cobra.Command) (*app.RelayConfig, error) {
	var (
		cfg *app.RelayConfig
		err error
	)
	if configFile != "" {
		cfg, err = app.LoadRelayFile(configFile)
	} else {
		cfg, err = app.LoadRelay(nil)
	}
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Server.Address = addr
	}
	if flags.Changed("cert") {
		cfg.Server.CertFile = certFile
	}
	if flags.Changed("key") {
		cfg.Server.KeyFile = keyFile
	}
	if flags.Changed("allow-any-origin") {
		cfg.Server.AllowAnyOrigin = anyOrigin
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	if flags.Changed("metrics") {
		cfg.Metrics.Enable = metrics
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "relay",
		Short:        "Websocket relay for end-to-end encrypted chat",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			r, err := app.NewRelay(cfg)
			if err != nil {
				return err
			}
			defer r.Close()
			return r.Run(cmd.Context())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&configFile, "config", "f", "", "relay TOML config file")
	pf.StringVar(&addr, "addr", app.DefaultRelayAddress, "listen address")
	pf.StringVar(&certFile, "cert", "", "TLS certificate (PEM)")
	pf.StringVar(&keyFile, "key", "", "TLS private key (PEM)")
	pf.StringVar(&logLevel, "log-level", app.DefaultLogLevel, "ERROR, WARNING, NOTICE, INFO or DEBUG")
	pf.BoolVar(&metrics, "metrics", false, "serve prometheus metrics on /metrics")
	pf.BoolVar(&anyOrigin, "allow-any-origin", false, "accept websocket upgrades from any browser origin")

	root.AddCommand(&cobra.Command{
		Use:   "genconfig",
		Short: "Print the effective relay configuration as TOML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			b, err := app.Encode(cfg)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), string(b))
			return err
		},
	})
	return root
}
