package cmd

import (
	"context"
	"fmt"

	"github.com/bluebridge/termsheet-ingest/backend/config"
	"github.com/bluebridge/termsheet-ingest/backend/pipeline"
	"github.com/bluebridge/termsheet-ingest/backend/service"
)

// components are the collaborators shared by serve and ingest
type components struct {
	repo         *service.ProductRepository
	blobs        *service.BlobStore
	orchestrator *pipeline.Orchestrator
}

func buildComponents(ctx context.Context, cfg *config.Config) (*components, error) {
	repo, err := service.NewProductRepository(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	blobs, err := service.NewBlobStore(&cfg.Minio)
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("create blob store: %w", err)
	}
	if err := blobs.EnsureBucket(ctx); err != nil {
		repo.Close()
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}

	chat := service.NewChatClient(&cfg.LLM)
	orchestrator := pipeline.New(pipeline.Dependencies{
		Text:       textExtractor(cfg, blobs),
		Structured: service.NewLLMExtractor(chat, &cfg.LLM),
		Blobs:      blobs,
		Repository: repo,
	})

	return &components{
		repo:         repo,
		blobs:        blobs,
		orchestrator: orchestrator,
	}, nil
}

func (c *components) Close() {
	c.repo.Close()
}

// textExtractor picks the document-to-text backend for extractor.mode
func textExtractor(cfg *config.Config, blobs *service.BlobStore) pipeline.TextExtractor {
	if cfg.Extractor.Mode == config.ExtractorMineru {
		return service.NewMineruExtractor(service.NewMineruService(&cfg.Mineru), blobs, cfg.Extractor)
	}
	return service.NewFitzExtractor()
}
