package main

import (
	"context"
	"fmt"
	"time"

	"github.com/arpanauts/biomapper-sub002/internal/adapter"
	"github.com/arpanauts/biomapper-sub002/internal/cache"
	"github.com/arpanauts/biomapper-sub002/internal/config"
	"github.com/arpanauts/biomapper-sub002/internal/dispatcher"
	"github.com/arpanauts/biomapper-sub002/internal/logging"
	"github.com/arpanauts/biomapper-sub002/internal/monitor"
	"github.com/arpanauts/biomapper-sub002/internal/rag"
	"github.com/arpanauts/biomapper-sub002/internal/registry"
	"github.com/arpanauts/biomapper-sub002/internal/security/cabundle"
	"github.com/arpanauts/biomapper-sub002/internal/storage/weaviate"
	"github.com/arpanauts/biomapper-sub002/internal/strategy"
	"github.com/arpanauts/biomapper-sub002/internal/tracing"
	"github.com/arpanauts/biomapper-sub002/internal/transitivity"
	pkgcache "github.com/arpanauts/biomapper-sub002/pkg/cache"
	"github.com/arpanauts/biomapper-sub002/pkg/logger"
)

// app holds every long-lived component the subcommands share. It is built
// once per process invocation and torn down on exit.
type app struct {
	cfg        *config.Config
	log        logger.Logger
	reg        *registry.Registry
	cacheStore *cache.Store
	manager    *cache.Manager
	dispatch   *dispatcher.Dispatcher
	mon        *monitor.Monitor
	tracer     *tracing.Tracer
	tracerProv *tracing.Provider
	wclient    *weaviate.Client
	transit    *transitivity.Builder
	runner     *strategy.Runner
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg.LogLevel)
	coreLog := logging.FromCoreLogger(log)

	mon := monitor.New(cfg.Monitor.RingBufferSize)

	var tracer *tracing.Tracer
	var tracerProv *tracing.Provider
	if cfg.Tracing.Enabled {
		tracerProv, err = tracing.NewProvider("biomapper", version, cfg.Tracing.OTLPEndpoint)
		if err != nil {
			return nil, fmt.Errorf("init tracing: %w", err)
		}
		tracer = tracing.NewTracer("biomapper")
	}

	reg, err := registry.Open(cfg.Registry.DSN, cfg.Registry.MaxOpenConns, cfg.Registry.MaxIdleConns, coreLog)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}

	cacheStore, err := cache.Open(cfg.CacheStore.DSN, cfg.CacheStore.MaxOpenConns, cfg.CacheStore.MaxIdleConns, coreLog)
	if err != nil {
		return nil, fmt.Errorf("open cache store: %w", err)
	}
	manager := cache.NewManager(cacheStore, cfg.CacheStore, coreLog)
	manager.WithMonitor(mon)
	if tracer != nil {
		manager.WithTracer(tracer)
	}

	dispatch := dispatcher.New(reg, cfg.Dispatcher, mon, coreLog)
	if tracer != nil {
		dispatch.WithTracer(tracer)
	}

	dispatch.RegisterAdapter(adapter.NewCacheAdapter("local_cache", manager))

	var wclient *weaviate.Client
	if cfg.Weaviate.Host != "" {
		wclient, err = weaviate.New(cfg.Weaviate)
		if err != nil {
			return nil, fmt.Errorf("init weaviate client: %w", err)
		}
		if err := wclient.EnsureSchema(context.Background()); err != nil {
			return nil, fmt.Errorf("ensure weaviate schema: %w", err)
		}
		if _, err := wclient.DiscoverCapabilities(context.Background()); err != nil {
			log.Warn("weaviate capability discovery failed, falling back to equivalentTo edges", "error", err)
		}
		dispatch.RegisterAdapter(adapter.NewGraphAdapter("knowledge_graph", wclient))
	}

	var caMgr *cabundle.Manager
	if cfg.Security.CABundlePath != "" {
		caMgr, err = cabundle.NewManager(cfg.Security.CABundlePath)
		if err != nil {
			return nil, fmt.Errorf("load ca bundle: %w", err)
		}
	}

	if cfg.RAG.LLMProvider != "" && wclient != nil {
		llmProvider, err := rag.NewLLMProvider(cfg.RAG, coreLog)
		if err != nil {
			return nil, fmt.Errorf("init llm provider: %w", err)
		}
		embedEndpoint := cfg.RAG.LLMEndpoint
		if embedEndpoint == "" {
			embedEndpoint = fmt.Sprintf("http://%s:%d/v1/embeddings", cfg.RAG.VectorHost, cfg.RAG.VectorPort)
		}
		embedder := rag.NewHTTPEmbedder(embedEndpoint, cfg.RAG.LLMModelName, cfg.RAG.LLMTimeout)
		annot := rag.NewPubChemFetcher(cfg.RAG.LLMTimeout, caMgr, coreLog)

		var respCache pkgcache.ValkeyCache
		if cfg.Valkey.Enabled {
			respCache, err = pkgcache.NewValkeySingle(cfg.Valkey.Addr, cfg.Valkey.DB, cfg.Valkey.Password, cfg.Valkey.TTL)
			if err != nil {
				log.Warn("valkey unavailable, falling back to in-memory response cache", "error", err)
				fallback := pkgcache.NewNoopValkeyCache(log)
				respCache = pkgcache.NewAutoSwapForSingle(cfg.Valkey.Addr, cfg.Valkey.DB, cfg.Valkey.Password, cfg.Valkey.TTL, log, fallback)
			}
		}

		orchestrator := rag.New(cfg.RAG, embedder, wclient, annot, llmProvider, respCache, mon, coreLog)
		if tracer != nil {
			orchestrator.WithTracer(tracer)
		}
		dispatch.RegisterAdapter(adapter.NewRAGAdapter("rag_arbitration", orchestrator))
	}

	transit := transitivity.New(manager, manager, coreLog)

	actions := strategy.NewRegistry()
	actions.Register("dispatch", strategy.NewDispatchAction(dispatch, "dispatch"))

	runner := strategy.NewRunner(actions, coreLog)
	runner.AddStrategy(strategy.Strategy{
		Name: "resolve_to_pubchem",
		Steps: []strategy.Step{
			{Action: "dispatch", Params: map[string]any{"target_type": "pubchem"}},
		},
	})

	return &app{
		cfg: cfg, log: log, reg: reg, cacheStore: cacheStore, manager: manager,
		dispatch: dispatch, mon: mon, tracer: tracer, tracerProv: tracerProv,
		wclient: wclient, transit: transit, runner: runner,
	}, nil
}

func (a *app) close() {
	if a.tracerProv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.tracerProv.Shutdown(ctx)
	}
	if a.reg != nil {
		_ = a.reg.Close()
	}
}
