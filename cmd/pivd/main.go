// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/pivd/lib/config"
	"github.com/bureau-foundation/pivd/lib/logging"
	"github.com/bureau-foundation/pivd/lib/process"
	"github.com/bureau-foundation/pivd/lib/protocol"
	"github.com/bureau-foundation/pivd/lib/secret"
	"github.com/bureau-foundation/pivd/lib/service"
	"github.com/bureau-foundation/pivd/lib/token"
	"github.com/bureau-foundation/pivd/lib/token/pivtoken"
	"github.com/bureau-foundation/pivd/lib/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		stop()
		process.Fatal(err)
	}
}

// errExit ends run successfully without starting the daemon (--help,
// --version).
var errExit = errors.New("exit")

// options holds command-line flags. Fields are applied to the config
// only when the flag was set.
type options struct {
	flagSet    *pflag.FlagSet
	configPath string
	socketPath string
	backend    string
	card       string
	keyFile    string
	logLevel   string
	logFormat  string
}

func parseOptions(args []string, stdout io.Writer) (*options, error) {
	var opts options
	flagSet := pflag.NewFlagSet("pivd", pflag.ContinueOnError)
	flagSet.SetOutput(stdout)
	flagSet.StringVar(&opts.configPath, "config", "", "path to pivd.yaml (default: $PIVD_CONFIG, else built-in defaults)")
	flagSet.StringVar(&opts.socketPath, "socket", "", "Unix socket path (overrides socket_path)")
	flagSet.StringVar(&opts.backend, "backend", "", "token backend: piv or software (overrides token.backend)")
	flagSet.StringVar(&opts.card, "card", "", "PC/SC reader name substring (overrides token.card)")
	flagSet.StringVar(&opts.keyFile, "key-file", "", "software token key file (overrides token.key_file)")
	flagSet.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn, or error (overrides log.level)")
	flagSet.StringVar(&opts.logFormat, "log-format", "", "auto, text, or json (overrides log.format)")
	showVersion := flagSet.Bool("version", false, "print version information and exit")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, errExit
		}
		return nil, err
	}
	if help, _ := flagSet.GetBool("help"); help {
		fmt.Fprintf(stdout, "Usage: pivd [flags]\n\n%s", flagSet.FlagUsages())
		return nil, errExit
	}
	if *showVersion {
		fmt.Fprintf(stdout, "pivd %s\n", version.Full())
		return nil, errExit
	}
	if flagSet.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}

	opts.flagSet = flagSet
	return &opts, nil
}

// resolveConfig loads the config file (if any), applies flag overrides,
// and validates the result.
func resolveConfig(opts *options) (*config.Config, error) {
	var cfg *config.Config
	var err error
	switch {
	case opts.configPath != "":
		cfg, err = config.LoadFile(opts.configPath)
	case os.Getenv(config.EnvironmentVariable) != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	changed := opts.flagSet.Changed
	if changed("socket") {
		cfg.SocketPath = opts.socketPath
	}
	if changed("backend") {
		cfg.Token.Backend = opts.backend
	}
	if changed("card") {
		cfg.Token.Card = opts.card
	}
	if changed("key-file") {
		cfg.Token.KeyFile = opts.keyFile
	}
	if changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	if changed("log-format") {
		cfg.Log.Format = opts.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, err := parseOptions(args, stdout)
	if err != nil {
		if errors.Is(err, errExit) {
			return nil
		}
		return err
	}

	cfg, err := resolveConfig(opts)
	if err != nil {
		return err
	}

	logger, err := logging.New(stderr, cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return err
	}
	logger.Info("starting pivd", "version", version.Info(), "backend", cfg.Token.Backend)

	socketConfig, err := socketConfigFrom(cfg)
	if err != nil {
		return err
	}

	session, closeSession, err := openSession(cfg.Token, logger)
	if err != nil {
		return fmt.Errorf("opening token: %w", err)
	}
	defer closeSession()

	server := service.NewSocketServer(socketConfig, protocol.NewDispatcher(session, logger), logger)
	if err := server.Serve(ctx); err != nil {
		return err
	}
	logger.Info("pivd stopped")
	return nil
}

func socketConfigFrom(cfg *config.Config) (service.SocketConfig, error) {
	mode, err := cfg.FileMode()
	if err != nil {
		return service.SocketConfig{}, err
	}
	readTimeout, writeTimeout, err := cfg.Timeouts()
	if err != nil {
		return service.SocketConfig{}, err
	}
	return service.SocketConfig{
		Path:         cfg.SocketPath,
		Mode:         mode,
		AllowedUIDs:  cfg.AllowedUIDs,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}, nil
}

// openSession opens the one token session the process will use. The
// returned cleanup closes the session and releases any PIN.
func openSession(cfg config.TokenConfig, logger *slog.Logger) (token.Session, func(), error) {
	switch cfg.Backend {
	case config.BackendSoftware:
		session, err := token.OpenSoftware(token.SoftwareConfig{
			KeyFile:     cfg.KeyFile,
			AgeIdentity: cfg.AgeIdentity,
		})
		if err != nil {
			return nil, nil, err
		}
		logger.Warn("using software token; private keys are in process memory", "key_file", cfg.KeyFile)
		return session, func() { session.Close() }, nil

	case config.BackendPIV:
		pin, err := readPIN(cfg)
		if err != nil {
			return nil, nil, err
		}
		session, err := pivtoken.Open(pivtoken.Config{Card: cfg.Card, PIN: pin})
		if err != nil {
			if pin != nil {
				pin.Close()
			}
			return nil, nil, err
		}
		logger.Info("opened PIV token", "card", session.Card())
		return session, func() {
			if err := session.Close(); err != nil {
				logger.Warn("closing PIV token", "error", err)
			}
			if pin != nil {
				pin.Close()
			}
		}, nil

	default:
		return nil, nil, fmt.Errorf("unknown token backend %q", cfg.Backend)
	}
}

// readPIN returns the configured PIN, or nil when none is configured.
func readPIN(cfg config.TokenConfig) (*secret.Buffer, error) {
	switch {
	case cfg.PINFile != "":
		pin, err := secret.ReadFromPath(cfg.PINFile)
		if err != nil {
			return nil, fmt.Errorf("reading PIN: %w", err)
		}
		return pin, nil
	case cfg.PINPrompt:
		pin, err := secret.ReadFromTerminal(int(os.Stdin.Fd()), "PIV PIN: ", os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("reading PIN: %w", err)
		}
		return pin, nil
	default:
		return nil, nil
	}
}
