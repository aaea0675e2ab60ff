package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/draftforge/contentplan/internal/api"
	"github.com/draftforge/contentplan/internal/config"
	"github.com/draftforge/contentplan/internal/genservice"
	"github.com/draftforge/contentplan/internal/logging"
	"github.com/draftforge/contentplan/internal/mcptools"
	"github.com/draftforge/contentplan/internal/pipeline"
	"github.com/draftforge/contentplan/internal/store"
)

// janitorInterval is how often the in-memory store sweeps expired sessions.
const janitorInterval = time.Minute

// runServe wires config, store, generation client, manager, and servers,
// then blocks until a signal or the first server failure.
func runServe(flags cliFlags) error {
	cfg, err := config.Load(flags.ConfigDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if flags.Listen != "" {
		cfg.ListenAddr = flags.Listen
	}
	if flags.GeneratorURL != "" {
		cfg.GeneratorURL = flags.GeneratorURL
	}
	if flags.StagesFile != "" {
		cfg.StagesFile = flags.StagesFile
	}

	log, err := logging.Init(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return err
	}

	registry := pipeline.DefaultRegistry()
	if cfg.StagesFile != "" {
		registry, err = pipeline.LoadRegistry(cfg.StagesFile)
		if err != nil {
			return fmt.Errorf("load stage definitions: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	var devgen *genservice.Server
	if flags.DevGenerator {
		devgen = genservice.NewServer(newDevGenerator())
		if err := devgen.Start(ctx, devGeneratorAddr); err != nil {
			return fmt.Errorf("start dev generator: %w", err)
		}
		cfg.GeneratorURL = "http://localhost" + devGeneratorAddr
		log.Info().Str("addr", devGeneratorAddr).Msg("dev generator running")
	}

	client := genservice.NewHTTPClient(cfg.GeneratorURL)

	var mgr *pipeline.Manager
	var sessionStore pipeline.Store
	if cfg.RedisURL != "" {
		rs, err := store.NewRedisStore(ctx, cfg.RedisURL, cfg.SessionTTL)
		if err != nil {
			return err
		}
		sessionStore = rs
		log.Info().Msg("using redis session store")
	} else {
		ms := store.NewMemoryStore(
			store.WithTTL(cfg.SessionTTL),
			store.WithEvictFunc(func(id string) {
				if mgr != nil {
					mgr.Forget(id)
				}
			}),
		)
		g.Go(func() error {
			ms.RunJanitor(ctx, janitorInterval)
			return nil
		})
		sessionStore = ms
		log.Info().Msg("using in-memory session store")
	}
	defer sessionStore.Close()

	mgr = pipeline.NewManager(registry, sessionStore, client,
		pipeline.WithLogger(log.With().Str("component", "pipeline").Logger()),
	)
	defer mgr.Close()

	if cfg.RedisURL != "" {
		// Redis expires session keys natively, with no callback into the
		// manager. Sweep tracker state for expired sessions periodically so
		// event logs do not accumulate for the life of the process.
		g.Go(func() error {
			ticker := time.NewTicker(janitorInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					mgr.SweepTracker(ctx)
				}
			}
		})
	}

	apiServer := api.NewServer(mgr,
		api.WithLogger(log.With().Str("component", "api").Logger()),
	)
	if err := apiServer.Start(ctx, cfg.ListenAddr); err != nil {
		return fmt.Errorf("start api server: %w", err)
	}

	if flags.ServeMCP {
		svc := mcptools.NewPipelineService(mgr)
		g.Go(func() error {
			log.Info().Str("addr", cfg.MCPAddr).Msg("mcp server listening")
			return mcptools.RunMCPServer(ctx, svc, cfg.MCPAddr, version)
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if devgen != nil {
			devgen.Stop(shutdownCtx)
		}
		return apiServer.Stop(shutdownCtx)
	})

	log.Info().Str("version", version).Msg("contentplan started")
	return g.Wait()
}
