package commands

import (
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/warren-hq/warren/internal/botconfig"
	"github.com/warren-hq/warren/internal/config"
	"github.com/warren-hq/warren/internal/printer"
	"github.com/warren-hq/warren/internal/runtime"
	"github.com/warren-hq/warren/pkg/bothandler"
	"github.com/warren-hq/warren/pkg/statestore"
)

var runConfigPath string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bot runtime for an instance",
	Long: `Run loads warren.yml, connects to Redis, wires up every enabled
embedded bot, and serves incoming events until interrupted.

Configured bots whose service name is not compiled into this binary are
skipped with a warning rather than failing startup.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "warren.yml", "Path to warren.yml")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(runConfigPath)
	if err != nil {
		return printer.Error("Failed to load configuration", err.Error(), []string{
			"Check the path passed via --config",
			"Validate the YAML against the documented warren.yml schema",
		})
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return printer.Error("Invalid Redis URL", err.Error(), []string{
			"Use the form redis://host:port (set via redis_url or REDIS_URL)",
		})
	}

	backend, err := statestore.NewRedisBackend(redisOpts, cfg.Instance)
	if err != nil {
		return printer.Error("Failed to create state backend", err.Error(), nil)
	}
	defer backend.Close()

	deliverer, err := bothandler.NewRedisDeliverer(redisOpts, cfg.Instance)
	if err != nil {
		return printer.Error("Failed to create deliverer", err.Error(), nil)
	}
	defer deliverer.Close()

	reg, err := builtinRegistry()
	if err != nil {
		return printer.Error("Failed to build bot registry", err.Error(), nil)
	}

	stores := statestore.NewManager(backend, statestore.WithSizeLimit(cfg.StateSizeLimit))

	engine, err := runtime.New(
		runtime.Config{
			InstanceName: cfg.Instance,
			Workers:      cfg.Workers,
			RateBurst:    cfg.RateLimit.Burst,
			RateWindow:   cfg.RateLimit.Window(),
		},
		redisOpts,
		reg,
		stores,
		deliverer,
		botconfig.NewLoader(cfg.BotsDir),
	)
	if err != nil {
		return printer.Error("Failed to create runtime", err.Error(), nil)
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	printer.Step("Connecting to Redis at %s\n", cfg.RedisURL)
	if err := engine.Ping(ctx); err != nil {
		return printer.Error("Cannot reach Redis", err.Error(), []string{
			"Check that Redis is running and reachable at " + cfg.RedisURL,
		})
	}

	hosted := 0
	for _, bot := range cfg.Bots {
		if !bot.IsEnabled() {
			printer.Info("Skipping disabled bot %q\n", bot.Service)
			continue
		}
		if !reg.Contains(bot.Service) {
			printer.Warning("Bot service %q is not compiled into this binary, skipping\n", bot.Service)
			continue
		}
		if err := engine.Host(ctx, bot.Identity(cfg.Realm)); err != nil {
			return printer.Error("Failed to host bot "+bot.Service, err.Error(), nil)
		}
		hosted++
	}

	if hosted == 0 {
		return printer.Error("No bots to host", "Every configured bot is disabled or unknown.", []string{
			"Enable at least one bot in warren.yml",
			"Check service names against `warren bots`",
		})
	}

	printer.Success("Warren instance %q serving %d bot(s)\n", cfg.Instance, hosted)

	if err := engine.Start(ctx); err != nil {
		return printer.Error("Runtime failed", err.Error(), nil)
	}
	return nil
}
