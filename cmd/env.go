package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/multiplier-cli/internal/config"
	"github.com/sells-group/multiplier-cli/internal/metrics"
	"github.com/sells-group/multiplier-cli/internal/ocr"
	"github.com/sells-group/multiplier-cli/internal/pipeline"
	"github.com/sells-group/multiplier-cli/internal/plot"
	"github.com/sells-group/multiplier-cli/internal/predictor"
	"github.com/sells-group/multiplier-cli/internal/store"
)

// appEnv holds everything the predict and serve commands need.
type appEnv struct {
	Store    store.Store
	Adapter  *predictor.Adapter
	Service  *pipeline.Service
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
}

// Close releases the model and the store.
func (e *appEnv) Close() {
	if e.Adapter != nil {
		if err := e.Adapter.Close(); err != nil {
			zap.L().Warn("close model", zap.Error(err))
		}
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite", "":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "multiplier.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, poolConfig(cfg.Store))
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// poolConfig maps the store section onto Postgres pool sizing.
func poolConfig(c config.StoreConfig) *store.PoolConfig {
	return &store.PoolConfig{MaxConns: c.MaxConns, MinConns: c.MinConns}
}

// openStore opens and migrates the configured history store.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initEnv validates config for mode and wires the store, model, OCR engine,
// plot renderer and metrics into a pipeline.Service.
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	env := &appEnv{Store: st}

	env.Adapter, err = predictor.NewAdapterFromConfig(cfg.Model)
	if err != nil {
		env.Close()
		return nil, eris.Wrap(err, "load model")
	}

	extractor, err := ocr.NewExtractor(cfg.OCR)
	if err != nil {
		env.Close()
		return nil, err
	}

	env.Registry = prometheus.NewRegistry()
	env.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	env.Metrics = metrics.New(env.Registry)

	opts := []pipeline.Option{
		pipeline.WithOCR(extractor),
		pipeline.WithHistory(st),
		pipeline.WithMetrics(env.Metrics),
		pipeline.WithInferenceTimeout(time.Duration(cfg.Pipeline.InferenceTimeoutSecs) * time.Second),
	}
	graphDir := "disabled"
	if !cfg.Artifacts.Disabled {
		renderer := plot.NewRenderer(cfg.Artifacts.GraphDir)
		opts = append(opts, pipeline.WithPlotter(renderer))
		graphDir = renderer.Dir()
	}
	env.Service = pipeline.New(env.Adapter, opts...)

	zap.L().Info("environment ready",
		zap.String("model", env.Adapter.ModelName()),
		zap.String("ocr", cfg.OCR.Provider),
		zap.String("store", cfg.Store.Driver),
		zap.String("graphs", graphDir),
	)
	return env, nil
}
