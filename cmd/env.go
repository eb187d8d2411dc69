package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/atelierlabs/nameplate-cli/internal/blob"
	"github.com/atelierlabs/nameplate-cli/internal/config"
	"github.com/atelierlabs/nameplate-cli/internal/extract"
	"github.com/atelierlabs/nameplate-cli/internal/model"
	"github.com/atelierlabs/nameplate-cli/internal/store"
	"github.com/atelierlabs/nameplate-cli/internal/throttle"
	"github.com/atelierlabs/nameplate-cli/pkg/ocrspace"
	"github.com/atelierlabs/nameplate-cli/pkg/vision"
)

// pipelineEnv holds the initialized store, blob client, and extraction
// pipeline shared by the extraction commands.
type pipelineEnv struct {
	Store    store.Store
	Blobs    blob.Store
	Pipeline *extract.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Blobs != nil {
		_ = pe.Blobs.Close()
	}
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initStore opens the configured database backend and runs migrations.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	case "sqlite", "":
		st, err = store.NewSQLite(cfg.Store.Path)
	default:
		return nil, eris.Errorf("unknown store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initBlobs opens the object-storage client for both storage tiers.
func initBlobs(ctx context.Context) (blob.Store, error) {
	if cfg.Blob.ProductionBucket == "" {
		return nil, eris.New("blob.production_bucket is not configured")
	}
	return blob.NewGCS(ctx, cfg.Blob.ProductionBucket, cfg.Blob.EphemeralBucket)
}

// initPipeline sets up the store, blob client, and extractors. Callers
// should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	blobs, err := initBlobs(ctx)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	limiter := throttle.New(throttle.Config{
		RequestsPerMinute: cfg.Throttle.RequestsPerMinute,
		TokensPerMinute:   cfg.Throttle.TokensPerMinute,
		TokensPerCall:     cfg.Throttle.TokensPerCall,
	})
	llm := extract.NewLLMExtractor(vision.NewClient(cfg.Anthropic.Key), limiter).
		WithModel(cfg.Anthropic.Model)

	ocrClient := ocrspace.NewClient(cfg.OCR.Key, cfg.OCR.Language, time.Duration(cfg.OCR.TimeoutSecs)*time.Second).
		WithEndpoint(cfg.OCR.Endpoint)
	ocr := extract.NewOCRExtractor(ocrClient).
		WithMaxImageBytes(cfg.OCR.MaxImageBytes)

	pipeline := extract.NewPipeline(blobs, llm, ocr).
		WithSignedURLTTL(time.Duration(cfg.Blob.SignedURLTTLMins) * time.Minute)

	return &pipelineEnv{
		Store:    st,
		Blobs:    blobs,
		Pipeline: pipeline,
	}, nil
}

// pipelineOptions resolves method and storage mode from config plus the
// per-command flags.
func pipelineOptions(cfg *config.Config, method string, ephemeral bool) extract.Options {
	m := model.Method(method)
	if method == "" {
		m = model.Method(cfg.Pipeline.Method)
	}
	mode := blob.Production
	if ephemeral || cfg.Pipeline.Mode == string(blob.Ephemeral) {
		mode = blob.Ephemeral
	}
	return extract.Options{Method: m, Mode: mode}
}
