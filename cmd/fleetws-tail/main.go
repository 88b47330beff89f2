// fleetws-tail connects to the live fleet stream, subscribes to a set of
// vehicles and prints every position update as one JSON line on stdout.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sonirico/fleetws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		endpoint   string
		token      string
		tokenEnv   string
		vehicles   []string
		verbose    bool
	)

	flagSet := pflag.NewFlagSet("fleetws-tail", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to a YAML config file")
	flagSet.StringVar(&endpoint, "endpoint", "", "HTTP(S) base URL of the fleet API (overrides config)")
	flagSet.StringVar(&token, "token", "", "bearer token used to open the stream")
	flagSet.StringVar(&tokenEnv, "token-env", "FLEET_TOKEN", "environment variable holding the token when --token is empty")
	flagSet.StringSliceVar(&vehicles, "vehicle", nil, "vehicle id to track (repeatable)")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	cfg, err := loadConfig(configPath, endpoint)
	if err != nil {
		return err
	}

	zapLogger, err := newZap(verbose)
	if err != nil {
		return errors.Wrap(err, "build logger")
	}
	defer func() { _ = zapLogger.Sync() }()

	manager, err := fleetws.NewManager(cfg, fleetws.NewZapLogger(zapLogger))
	if err != nil {
		return err
	}
	defer manager.Close()

	encoder := json.NewEncoder(os.Stdout)
	manager.OnPositionUpdate(func(update fleetws.PositionUpdate) {
		_ = encoder.Encode(update)
	})

	giveUp := make(chan error, 1)
	manager.OnEvent(fleetws.EventGiveUp, func(ev fleetws.Event) {
		select {
		case giveUp <- ev.Err:
		default:
		}
	})

	var provider fleetws.TokenProvider = fleetws.EnvToken(tokenEnv)
	if token != "" {
		provider = fleetws.StaticToken(token)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager.SetDesired(vehicles...)
	if err := manager.ConnectWith(ctx, provider); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-giveUp:
		return err
	}
}

func loadConfig(path, endpoint string) (fleetws.Config, error) {
	var cfg fleetws.Config
	if path != "" {
		loaded, err := fleetws.LoadConfig(path)
		if err != nil {
			return fleetws.Config{}, err
		}
		cfg = loaded
	}
	if endpoint != "" {
		cfg.Endpoint = endpoint
	}
	if cfg.Endpoint == "" {
		return fleetws.Config{}, errors.New("--endpoint or a config file with an endpoint is required")
	}
	return cfg, nil
}

func newZap(verbose bool) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	zapCfg.OutputPaths = []string{"stderr"}
	zapCfg.EncoderConfig.TimeKey = "ts"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if verbose {
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return zapCfg.Build()
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `fleetws-tail streams live vehicle positions as JSON lines.

Usage: fleetws-tail --endpoint https://api.example.com --vehicle v1 --vehicle v2

Flags:
%s`, flagSet.FlagUsages())
}
