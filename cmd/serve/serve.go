package serve

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
	"golang.org/x/sync/errgroup"

	"github.com/bergamot1144/P2P-Monitor/cmd/env"
	"github.com/bergamot1144/P2P-Monitor/provider/binance"
	"github.com/bergamot1144/P2P-Monitor/provider/bybit"
	"github.com/bergamot1144/P2P-Monitor/provider/gfinance"
	"github.com/bergamot1144/P2P-Monitor/provider/xe"
	"github.com/bergamot1144/P2P-Monitor/refdata"
	"github.com/bergamot1144/P2P-Monitor/server"
	"github.com/bergamot1144/P2P-Monitor/server/config"
)

const defaultUpstreamTimeout = 25 * time.Second

// serveCfg wraps the serve configuration
type serveCfg struct {
	config *config.Config

	configPath      string
	payMethodsPath  string
	codesPath       string
	upstreamTimeout time.Duration
}

// NewServeCmd creates the serve subcommand
func NewServeCmd() *ffcli.Command {
	cfg := &serveCfg{
		config: config.DefaultConfig(),
	}

	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfg.registerFlags(fs)

	return &ffcli.Command{
		Name:       "serve",
		ShortUsage: "serve [flags]",
		LongHelp:   "Serves the P2P monitor dashboard and API",
		FlagSet:    fs,
		Exec:       cfg.exec,
		Options: []ff.Option{
			// Allow using ENV variables
			ff.WithEnvVars(),
			ff.WithEnvVarPrefix(env.Prefix),
		},
	}
}

func (c *serveCfg) registerFlags(fs *flag.FlagSet) {
	fs.StringVar(
		&c.config.ListenAddress,
		"listen",
		config.DefaultListenAddress,
		"the IP:PORT URL for the server",
	)

	fs.StringVar(
		&c.configPath,
		"config",
		"",
		"the path to the server TOML configuration, if any",
	)

	fs.StringVar(
		&c.payMethodsPath,
		"paymethods",
		"",
		"the path to the Bybit payment method reference file, if any",
	)

	fs.StringVar(
		&c.codesPath,
		"codes",
		"",
		"the path to the currency code reference file, if any",
	)

	fs.DurationVar(
		&c.upstreamTimeout,
		"upstream-timeout",
		defaultUpstreamTimeout,
		"the timeout for upstream exchange requests",
	)
}

func (c *serveCfg) exec(ctx context.Context, _ []string) error {
	// Read the server configuration, if any
	if c.configPath != "" {
		serverCfg, err := config.Read(c.configPath)
		if err != nil {
			return fmt.Errorf("unable to read server config, %w", err)
		}

		c.config = serverCfg
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	// Load .env
	if err := godotenv.Load(); err != nil {
		logger.Warn("unable to load .env file")
	}

	// Session cookies are optional, the exchanges rate limit
	// anonymous traffic more aggressively
	sources := server.Sources{
		Binance:  binance.New(c.upstreamTimeout, os.Getenv("BINANCE_COOKIE")),
		Bybit:    bybit.New(c.upstreamTimeout, os.Getenv("BYBIT_COOKIE")),
		GFinance: gfinance.New("", c.upstreamTimeout),
		XE:       xe.New("", xe.NewRenderer(c.upstreamTimeout)),
		Tables:   refdata.Load(c.payMethodsPath, c.codesPath),
	}

	s, err := server.New(
		sources,
		server.WithLogger(logger),
		server.WithConfig(c.config),
	)
	if err != nil {
		return fmt.Errorf("unable to create server, %w", err)
	}

	runCtx, cancelFn := signal.NotifyContext(
		ctx,
		os.Interrupt,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)
	defer cancelFn()

	group, gCtx := errgroup.WithContext(runCtx)

	group.Go(func() error {
		return s.Serve(gCtx)
	})

	return group.Wait()
}
