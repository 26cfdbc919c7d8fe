package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/scrapenet/internal/api"
	"github.com/ppiankov/scrapenet/internal/httputil"
	"github.com/ppiankov/scrapenet/internal/loop"
	"github.com/ppiankov/scrapenet/internal/model"
	"github.com/ppiankov/scrapenet/internal/network"
	"github.com/ppiankov/scrapenet/internal/oracle"
	"github.com/ppiankov/scrapenet/internal/pipeline"
	"github.com/ppiankov/scrapenet/internal/sink"
	"github.com/ppiankov/scrapenet/internal/trust"
)

// validatorCmd runs the weight-commit loop until interrupted
var validatorCmd = &cobra.Command{
	Use:   "validator",
	Short: "Run the validator loop",
	Long: `Validator syncs the metagraph, queries a random sample of reachable
miners every cycle, scores their batches and blends the scores into the
trust vector. Weights are committed through the chain bridge once more than
commit_every_blocks blocks have passed since the last commit.

Startup fails fast when the hotkey is not registered on the subnet, an
oracle is misconfigured or the trust store is unreachable.

Example:
  scrapenet validator --hotkey 5F...
  scrapenet validator --api --api-addr 127.0.0.1:8091
  SCRAPENET_TRUST_BACKEND=redis scrapenet validator`,
	Args: cobra.NoArgs,
	RunE: runValidator,
}

func init() {
	rootCmd.AddCommand(validatorCmd)

	// Flag defaults mirror the config defaults since viper reports them for unset flags
	defaults := model.DefaultConfig()
	flags := validatorCmd.Flags()
	flags.String("hotkey", defaults.Hotkey, "validator hotkey ss58 address")
	flags.String("bridge-url", defaults.Chain.BridgeURL, "chain bridge sidecar URL")
	flags.String("keywords", "", "search key file, one per line (default: built-in list)")
	flags.Bool("api", false, "serve the status API")
	flags.String("api-addr", defaults.API.Addr, "status API listen address")

	_ = viper.BindPFlag("hotkey", flags.Lookup("hotkey"))
	_ = viper.BindPFlag("chain.bridge_url", flags.Lookup("bridge-url"))
	_ = viper.BindPFlag("query.keyword_file", flags.Lookup("keywords"))
	_ = viper.BindPFlag("api.enabled", flags.Lookup("api"))
	_ = viper.BindPFlag("api.addr", flags.Lookup("api-addr"))
}

// pinger is implemented by trust stores backed by a remote service
type pinger interface {
	Ping(ctx context.Context) error
}

// validator holds the wired components of a running validator
type validator struct {
	cfg     *model.Config
	oracles map[model.Platform]oracle.Oracle
	ledger  network.Ledger
	store   trust.Store
	sinks   *sink.Multi
	loop    *loop.Loop
	api     *api.Server
}

func runValidator(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	v, err := newValidator(ctx, cfg)
	if err != nil {
		return err
	}
	defer v.Close()

	uid, err := v.preflight(ctx)
	if err != nil {
		return fmt.Errorf("preflight: %w", err)
	}
	slog.Info("validator: starting", "uid", uid, "hotkey", cfg.Hotkey, "netuid", cfg.NetUID, "version", cfg.Version)

	apiErr := make(chan error, 1)
	if cfg.API.Enabled {
		go func() { apiErr <- v.api.Serve(ctx, cfg.API.Addr) }()
	}

	runErr := v.loop.Run(ctx)
	stop()
	if cfg.API.Enabled {
		if err := <-apiErr; err != nil {
			slog.Error("validator: status api stopped", "error", err)
		}
	}
	return runErr
}

// newValidator builds every component from cfg
func newValidator(ctx context.Context, cfg *model.Config) (*validator, error) {
	if cfg.Hotkey == "" {
		return nil, errors.New("hotkey is required: set hotkey in the config file, SCRAPENET_HOTKEY or --hotkey")
	}

	keywords, err := loop.LoadKeywords(cfg.Query.KeywordFile)
	if err != nil {
		return nil, err
	}

	oracles, err := oracle.NewAll(cfg, oracle.NewDeps(cfg))
	if err != nil {
		return nil, err
	}
	scorer, err := pipeline.NewPipeline(cfg, oracles)
	if err != nil {
		return nil, err
	}

	chainClient := httputil.NewClient(cfg.Chain.Timeout, cfg.HTTP.HTTPProxy, cfg.HTTP.HTTPSProxy, cfg.HTTP.NoProxy)
	ledger := network.NewBridgeClient(cfg.Chain.BridgeURL, cfg.NetUID, cfg.Hotkey, cfg.Version, chainClient)

	// Miners are dialed directly, never through the outbound proxy
	peerClient := &http.Client{Transport: &http.Transport{MaxIdleConnsPerHost: 4}}
	querier := network.NewQuerier(peerClient, cfg.Query.Workers, cfg.Hotkey)

	store, err := trust.NewStore(cfg.Trust)
	if err != nil {
		return nil, err
	}

	sinks, err := sink.New(ctx, cfg.Sinks)
	if err != nil {
		return nil, err
	}

	l, err := loop.New(cfg, ledger, querier, scorer, store, sinks, keywords)
	if err != nil {
		_ = sinks.Close()
		return nil, err
	}

	var archive api.Archive
	if db := sinks.Archive(); db != nil {
		archive = db
	}

	return &validator{
		cfg:     cfg,
		oracles: oracles,
		ledger:  ledger,
		store:   store,
		sinks:   sinks,
		loop:    l,
		api:     api.NewServer(l, archive),
	}, nil
}

// preflight checks the external dependencies once and returns the
// validator's own uid
func (v *validator) preflight(ctx context.Context) (int, error) {
	platforms := make([]string, 0, len(v.oracles))
	for p := range v.oracles {
		platforms = append(platforms, string(p))
	}
	sort.Strings(platforms)
	slog.Info("validator: oracles configured", "platforms", platforms)

	if p, ok := v.store.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return 0, fmt.Errorf("trust store unreachable: %w", err)
		}
	}

	uid, err := network.RegisteredUID(ctx, v.ledger, v.cfg.Hotkey)
	if err != nil {
		return 0, err
	}
	return uid, nil
}

// Close releases the sinks
func (v *validator) Close() {
	if err := v.sinks.Close(); err != nil {
		slog.Warn("validator: closing sinks", "error", err)
	}
}
