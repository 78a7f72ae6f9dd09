package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/WessleyAI/transit-mvp/engine/compose"
	"github.com/WessleyAI/transit-mvp/engine/domain"
	"github.com/WessleyAI/transit-mvp/engine/fleet"
	"github.com/WessleyAI/transit-mvp/engine/guardrail"
	"github.com/WessleyAI/transit-mvp/engine/notify"
	"github.com/WessleyAI/transit-mvp/engine/planner"
	"github.com/WessleyAI/transit-mvp/engine/rag"
	"github.com/WessleyAI/transit-mvp/engine/semantic"
	"github.com/WessleyAI/transit-mvp/engine/subscription"
	"github.com/WessleyAI/transit-mvp/engine/tools"
	"github.com/WessleyAI/transit-mvp/pkg/config"
	"github.com/WessleyAI/transit-mvp/pkg/fn"
	"github.com/WessleyAI/transit-mvp/pkg/kv"
	"github.com/WessleyAI/transit-mvp/pkg/llm"
	"github.com/WessleyAI/transit-mvp/pkg/metrics"
	"github.com/WessleyAI/transit-mvp/pkg/natsutil"
	"github.com/WessleyAI/transit-mvp/pkg/ollama"
	"github.com/WessleyAI/transit-mvp/pkg/repo"
	"github.com/WessleyAI/transit-mvp/pkg/resilience"
)

// memoryCacheEntries bounds the in-process cache backend.
const memoryCacheEntries = 10_000

// app owns every long-lived component of a process. Close releases them in
// reverse order of construction.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *metrics.Registry
	registry fleet.Registry
	// memory is set when the registry accepts driver location updates.
	memory  *fleet.MemoryRegistry
	index   *semantic.Index
	answers *rag.Service

	closers []func() error
}

func (a *app) onClose(f func() error) { a.closers = append(a.closers, f) }

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// buildApp wires the answer pipeline. On error every component opened so far
// is closed.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger, metrics: metrics.New()}
	a.metrics.CollectRuntime()
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if err := a.openRegistry(ctx); err != nil {
		return nil, err
	}
	if err := a.buildIndex(ctx); err != nil {
		return nil, err
	}
	store, err := a.openCacheStore(ctx)
	if err != nil {
		return nil, err
	}
	completer, err := a.completer()
	if err != nil {
		return nil, err
	}

	lookups := a.metrics.Counter("transit_cache_lookups_total", "Cache lookups by cache and result", "cache", "result")
	cacheOpts := func(name string) kv.CacheOpts {
		return kv.CacheOpts{
			Timeout: cfg.Cache.OpTimeout,
			Logger:  logger,
			OnLookup: func(hit bool) {
				result := "miss"
				if hit {
					result = "hit"
				}
				lookups.WithLabelValues(name, result).Inc()
			},
		}
	}

	live := tools.NewLivePositions(cfg.Fleet.LiveURL, cfg.Fleet.LiveTimeout, a.breaker("live-position"), nil)
	executor := tools.NewExecutor(tools.Config{
		Registry:     a.registry,
		Positions:    tools.PositionChain{live, tools.NewMockPositions(a.registry)},
		Weather:      tools.NewOpenWeather(cfg.Weather.URL, cfg.Weather.APIKey, cfg.Weather.Timeout, logger),
		WeatherCache: kv.NewCache[domain.WeatherResult](store, "weather:", tools.WeatherTTL, cacheOpts("weather")),
		ETACache:     kv.NewCache[domain.ETAResult](store, "eta:", tools.ETATTL, cacheOpts("eta")),
		Metrics:      a.metrics,
		Logger:       logger,
	})

	gopts := guardrail.DefaultOptions()
	gopts.MinSimilarity = cfg.RAG.MinSimilarity
	gopts.TopK = cfg.RAG.TopK

	// Interface fields stay nil when no model is configured.
	var plannerLLM planner.Completer
	var composerLLM compose.Completer
	if completer != nil {
		plannerLLM, composerLLM = completer, completer
	}

	a.answers = rag.New(rag.Config{
		Gate:      guardrail.New(a.registry, a.index, gopts, logger),
		Retriever: a.index,
		Planner:   planner.New(plannerLLM, logger),
		Executor:  executor,
		Composer:  compose.New(composerLLM, a.registry, logger),
		Cache:     kv.NewCache[domain.Answer](store, "ask:", rag.CacheTTL, cacheOpts("answer")),
		TopK:      cfg.RAG.TopK,
		Metrics:   a.metrics,
		Logger:    logger,
	})
	return a, nil
}

func (a *app) openRegistry(ctx context.Context) error {
	switch a.cfg.Fleet.Backend {
	case "neo4j":
		sessions, err := a.openNeo4j(ctx)
		if err != nil {
			return err
		}
		a.registry = fleet.NewNeo4jRegistry(sessions)
	default:
		snap, err := fleet.LoadSnapshot(a.cfg.Fleet.DataDir)
		if err != nil {
			return err
		}
		a.memory = fleet.NewMemoryRegistry(snap)
		a.registry = a.memory
		a.logger.Info("fleet loaded", "buses", len(snap.Buses), "routes", len(snap.Routes), "dir", a.cfg.Fleet.DataDir)
	}
	return nil
}

func (a *app) openNeo4j(ctx context.Context) (repo.SessionFunc, error) {
	driver, err := neo4j.NewDriverWithContext(a.cfg.Neo4j.URL, neo4j.BasicAuth(a.cfg.Neo4j.User, a.cfg.Neo4j.Pass, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	a.onClose(func() error { return driver.Close(context.Background()) })

	opts := fn.DefaultRetry
	opts.MaxAttempts = 5
	opts.OnRetry = func(attempt int, err error, wait time.Duration) {
		a.logger.Warn("neo4j not reachable, retrying", "url", a.cfg.Neo4j.URL, "attempt", attempt, "wait", wait.String(), "err", err)
	}
	verified := fn.Retry(ctx, opts, func(ctx context.Context) fn.Result[struct{}] {
		return fn.FromPair(struct{}{}, driver.VerifyConnectivity(ctx))
	})
	if _, err := verified.Unwrap(); err != nil {
		return nil, fmt.Errorf("neo4j connect %s: %w", a.cfg.Neo4j.URL, err)
	}
	return repo.DriverSessions(driver), nil
}

// buildIndex embeds the fleet snapshot, static hints and hint files. Hint
// files that cannot be read are logged and skipped.
func (a *app) buildIndex(ctx context.Context) error {
	snap, err := a.registry.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("fleet snapshot: %w", err)
	}
	hints, err := semantic.LoadHintFiles(a.cfg.RAG.HintsGlob)
	if err != nil {
		a.logger.Warn("hint files skipped", "glob", a.cfg.RAG.HintsGlob, "err", err)
	}

	opts := semantic.Options{Logger: a.logger}
	switch a.cfg.Embed.Backend {
	case "ollama":
		opts.Embedder = ollama.New(a.cfg.Embed.OllamaURL, a.cfg.Embed.Model, a.httpClient(a.cfg.Embed.Timeout))
	default:
		opts.Embedder = semantic.HashEmbedder{Dims: a.cfg.Embed.Dims}
	}
	if a.cfg.Qdrant.Addr != "" {
		vs, err := semantic.NewVectorStore(a.cfg.Qdrant.Addr, a.cfg.Qdrant.Collection)
		if err != nil {
			a.logger.Warn("qdrant unavailable, using in-memory scan", "addr", a.cfg.Qdrant.Addr, "err", err)
		} else {
			a.onClose(vs.Close)
			opts.Nearest = vs
		}
	}

	start := time.Now()
	a.index = semantic.Build(ctx, semantic.BuildCorpus(snap, hints...), opts)
	a.logger.Info("context index built",
		"documents", a.index.Len(),
		"degraded", a.index.Degraded(),
		"took", time.Since(start).String(),
	)
	return nil
}

func (a *app) openCacheStore(ctx context.Context) (kv.Store, error) {
	switch a.cfg.Cache.Backend {
	case "bolt":
		b, err := kv.OpenBolt(a.cfg.Cache.BoltPath)
		if err != nil {
			return nil, err
		}
		a.onClose(b.Close)
		return b, nil
	case "nats":
		nc, err := a.connectNATS("transit-cache")
		if err != nil {
			return nil, err
		}
		js, err := jetstream.New(nc)
		if err != nil {
			return nil, fmt.Errorf("jetstream: %w", err)
		}
		return kv.NewNATS(ctx, js, "transit_cache", tools.ETATTL, rag.CacheTTL, tools.WeatherTTL)
	default:
		return kv.NewMemory(memoryCacheEntries), nil
	}
}

// completer returns the generative model behind a breaker and timeout, or
// nil when none is configured.
func (a *app) completer() (llm.Completer, error) {
	var c llm.Completer
	switch a.cfg.LLM.Backend {
	case "openai":
		if a.cfg.LLM.APIKey == "" {
			return nil, errors.New("llm.api_key is required for the openai backend")
		}
		c = llm.NewOpenAI(llm.OpenAIOptions{
			BaseURL:    a.cfg.LLM.BaseURL,
			APIKey:     a.cfg.LLM.APIKey,
			Model:      a.cfg.LLM.Model,
			HTTPClient: a.httpClient(0),
		})
	case "ollama":
		c = ollama.New(a.cfg.Embed.OllamaURL, a.cfg.LLM.Model, a.httpClient(0))
	default:
		return nil, nil
	}
	a.logger.Info("generative model enabled", "backend", a.cfg.LLM.Backend, "model", a.cfg.LLM.Model)
	return llm.Guard(c, a.breaker("llm"), a.cfg.LLM.Timeout), nil
}

func (a *app) breaker(name string) *resilience.Breaker {
	opts := resilience.DefaultBreakerOpts
	opts.Name = name
	opts.OnStateChange = func(name string, from, to resilience.State) {
		a.logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
	}
	return resilience.NewBreaker(opts)
}

func (a *app) httpClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)}
}

func (a *app) connectNATS(name string) (*nats.Conn, error) {
	nc, err := natsutil.Connect(a.cfg.NATS.URL, name, a.logger)
	if err != nil {
		return nil, err
	}
	a.onClose(func() error {
		nc.Close()
		return nil
	})
	return nc, nil
}

// openSubscriptions opens the configured subscription store.
func openSubscriptions(cfg *config.Config, logger *slog.Logger) (subscription.Store, error) {
	if cfg.Subscriptions.Backend == "file" {
		return subscription.OpenFile(cfg.Subscriptions.File)
	}
	return subscription.OpenSQLite(cfg.Subscriptions.DSN, logger)
}

// notifier wires the proactive notifier over the app's answer pipeline.
// notificationFeed mirrors events published by notifiers in other processes.
func (a *app) notificationFeed() (*notify.Feed, error) {
	nc, err := a.connectNATS("transit-feed")
	if err != nil {
		return nil, err
	}
	feed, err := notify.WatchFeed(nc, a.cfg.NATS.SubjectPrefix)
	if err != nil {
		return nil, err
	}
	a.onClose(feed.Close)
	return feed, nil
}

func (a *app) notifier() (*notify.Notifier, error) {
	subs, err := openSubscriptions(a.cfg, a.logger)
	if err != nil {
		return nil, err
	}
	a.onClose(subs.Close)

	var ch notify.Channel = notify.NewConsoleChannel(a.logger)
	if a.cfg.Notify.ChannelBackend == "nats" {
		nc, err := a.connectNATS("transit-notifier")
		if err != nil {
			return nil, err
		}
		ch = notify.NewNATSChannel(nc, a.cfg.NATS.SubjectPrefix, ch, a.logger)
	}

	return notify.New(a.answers, subs, ch, notify.Options{
		Interval: a.cfg.Notify.Interval,
		Batch:    a.cfg.Notify.Batch,
		Limiter:  rate.NewLimiter(rate.Every(a.cfg.Notify.Pacing), 1),
		Metrics:  a.metrics,
		Logger:   a.logger,
	}), nil
}
