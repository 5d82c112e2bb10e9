package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/arc-components/arcci/internal/buildlog"
	"github.com/arc-components/arcci/internal/catalog"
	"github.com/arc-components/arcci/internal/classify"
	"github.com/arc-components/arcci/internal/config"
	"github.com/arc-components/arcci/internal/docs"
	"github.com/arc-components/arcci/internal/janitor"
	"github.com/arc-components/arcci/internal/logfields"
	"github.com/arc-components/arcci/internal/metrics"
	"github.com/arc-components/arcci/internal/orchestrator"
	"github.com/arc-components/arcci/internal/script"
	"github.com/arc-components/arcci/internal/server"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"config.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Serve struct {
	} `cmd:"" help:"Run the webhook server"`

	Run struct {
		Component string `arg:"" help:"Component repository to build"`
	} `cmd:"" help:"Run one stage pipeline for a component and exit"`
}

func main() {
	ctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfg, err := loadConfig(CLI.Config)
	if err != nil {
		slog.Error("Failed to load configuration", logfields.Error(err))
		os.Exit(1)
	}

	switch ctx.Command() {
	case "serve":
		if err := runServe(cfg); err != nil {
			slog.Error("Server failed", logfields.Error(err))
			os.Exit(1)
		}
	case "run <component>":
		if err := runOnce(cfg, CLI.Run.Component); err != nil {
			slog.Error("Pipeline failed", logfields.Error(err))
			os.Exit(1)
		}
	}
}

// loadConfig reads the config file; a missing file with the default name
// falls back to built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) && path == "config.yaml" {
		slog.Info("No configuration file found, using defaults")
		return config.Default(), nil
	}
	return config.Load(path)
}

// components assembles the service graph from configuration.
type components struct {
	orch       *orchestrator.Orchestrator
	dispatcher *orchestrator.Dispatcher
	classifier *classify.Classifier
	log        *buildlog.Store
	recorder   metrics.Recorder
	registry   *prom.Registry
	natsStore  *catalog.NATSStore
}

func (c *components) close() {
	if c.natsStore != nil {
		c.natsStore.Close()
	}
	if c.log != nil {
		if err := c.log.Close(); err != nil {
			slog.Warn("Failed to close build log", logfields.Error(err))
		}
	}
}

func build(cfg *config.Config) (*components, error) {
	c := &components{}

	c.registry = prom.NewRegistry()
	c.recorder = metrics.NewPrometheusRecorder(c.registry)

	log, err := buildlog.Open(cfg.BuildLog.Path)
	if err != nil {
		return nil, err
	}
	c.log = log

	var kv catalog.KV
	if cfg.Catalog.NATSURL != "" {
		ns, err := catalog.NewNATSStore(cfg.Catalog.NATSURL, cfg.Catalog.Bucket)
		if err != nil {
			c.close()
			return nil, err
		}
		c.natsStore = ns
		kv = ns
	} else {
		slog.Warn("No NATS URL configured, catalog writes are in-memory only")
		kv = catalog.NewMemoryStore()
	}

	runner := script.NewRunner(cfg.Build.Dir, cfg.Scripts.Timeout.Std())
	analyzer := docs.NewScriptAnalyzer(runner, scriptPath(cfg, cfg.Scripts.Analyze))

	c.orch = orchestrator.New(orchestrator.Options{
		Scripts: orchestrator.Scripts{
			TagRelease:      scriptPath(cfg, cfg.Scripts.TagRelease),
			UpdateStructure: scriptPath(cfg, cfg.Scripts.UpdateStructure),
			UpdateElement:   scriptPath(cfg, cfg.Scripts.UpdateElement),
			FinishStage:     scriptPath(cfg, cfg.Scripts.FinishStage),
		},
		BuildDir:    cfg.Build.Dir,
		SettleDelay: cfg.Build.SettleDelay.Std(),
		TokenEnv:    cfg.TokenEnv,
		Runner:      runner,
		Analyzer:    analyzer,
		Catalog:     catalog.NewStore(kv),
		Log:         c.log,
		Recorder:    c.recorder,
	})
	c.dispatcher = orchestrator.NewDispatcher(c.orch, c.recorder, cfg.Build.QueueSize)
	c.classifier = classify.New(classify.Config{
		IgnoredRepos: cfg.Repos.Ignored,
		ParentRepos:  cfg.Repos.Parents,
	})
	return c, nil
}

// scriptPath resolves a script name against the configured script
// directory; absolute names pass through.
func scriptPath(cfg *config.Config, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(cfg.Scripts.Dir, name)
}

func runServe(cfg *config.Config) error {
	c, err := build(cfg)
	if err != nil {
		return err
	}
	defer c.close()

	srv := server.New(server.Options{
		Addr:       cfg.Server.Addr,
		Classifier: c.classifier,
		Dispatcher: c.dispatcher,
		Log:        c.log,
		Recorder:   c.recorder,
		Registry:   c.registry,
	})

	jan, err := janitor.New(c.log, cfg.BuildLog.Retention.Std(), cfg.BuildLog.PruneInterval.Std())
	if err != nil {
		return err
	}
	jan.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher, err := config.NewWatcher(CLI.Config, func(newCfg *config.Config) {
		srv.SetClassifier(classify.New(classify.Config{
			IgnoredRepos: newCfg.Repos.Ignored,
			ParentRepos:  newCfg.Repos.Parents,
		}))
	})
	if err != nil {
		slog.Warn("Configuration watching unavailable", logfields.Error(err))
	} else if err := watcher.Start(ctx); err != nil {
		slog.Warn("Failed to start configuration watcher", logfields.Error(err))
	} else {
		defer watcher.Stop()
	}

	srv.Start()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	slog.Info("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown incomplete", logfields.Error(err))
	}
	if err := jan.Stop(); err != nil {
		slog.Warn("Janitor shutdown incomplete", logfields.Error(err))
	}
	if err := c.dispatcher.Stop(shutdownCtx); err != nil {
		slog.Warn("Pipelines did not drain before timeout", logfields.Error(err))
	}
	return nil
}

// runOnce executes a single stage pipeline in the foreground, the CLI
// equivalent of the force-stage endpoint.
func runOnce(cfg *config.Config, component string) error {
	c, err := build(cfg)
	if err != nil {
		return err
	}
	defer c.close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return c.orch.Execute(ctx, classify.Intent{
		Kind:        classify.IntentStageBuild,
		RepoName:    component,
		BuildNumber: "force",
		JobNumber:   "0",
	})
}
