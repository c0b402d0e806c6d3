package cmd

import (
	"github.com/felixgeelhaar/storyboard/internal/config"
	"github.com/felixgeelhaar/storyboard/internal/event"
	"github.com/felixgeelhaar/storyboard/internal/log"
	"github.com/felixgeelhaar/storyboard/internal/orchestrate"
	"github.com/felixgeelhaar/storyboard/internal/plan"
	"github.com/felixgeelhaar/storyboard/internal/provider"
	"github.com/felixgeelhaar/storyboard/internal/research"
	"github.com/felixgeelhaar/storyboard/internal/resolve"
	"github.com/felixgeelhaar/storyboard/internal/retry"
	"github.com/felixgeelhaar/storyboard/internal/store"
	"github.com/felixgeelhaar/storyboard/internal/supervisor"
	"github.com/felixgeelhaar/storyboard/internal/worker"
)

// buildEngine assembles the full orchestration stack from configuration.
func buildEngine(cfg *config.Config, logger *log.Logger) (*orchestrate.Engine, error) {
	if logger == nil {
		logger = log.DefaultLogger()
	}
	invoker, err := provider.NewAnthropicInvoker(provider.AnthropicConfig{
		APIKey:    cfg.Provider.APIKey,
		BaseURL:   cfg.Provider.BaseURL,
		Model:     cfg.Provider.Model,
		MaxTokens: cfg.Provider.MaxTokens,
		Timeout:   cfg.Provider.Timeout(),
	})
	if err != nil {
		return nil, err
	}

	var artifacts store.ArtifactStore
	if cfg.Artifact.Dir != "" {
		artifacts = store.NewFileStore(cfg.Artifact.Dir)
	} else {
		artifacts = store.NewMemoryStore()
	}

	resolver := resolve.New(artifacts, store.NewHTTPBlobFetcher(cfg.Artifact.MaxBlobBytes), resolve.Config{
		ResearchCharBudget: cfg.Engine.ResearchCharBudget,
		LegacyResearchScan: cfg.Engine.LegacyResearchScan,
	}, logger)

	scheduler := research.NewScheduler(
		invoker, research.NewLLMTaskRunner(invoker), artifacts, cfg.Engine.ResearchFanOut, logger)

	registry := worker.NewRegistry()
	registry.Register(plan.CapabilityWriter, worker.NewLLMWorker(invoker, plan.CapabilityWriter))
	registry.Register(plan.CapabilityVisualizer, worker.NewLLMWorker(invoker, plan.CapabilityVisualizer))
	registry.Register(plan.CapabilityDataAnalyst, worker.NewLLMWorker(invoker, plan.CapabilityDataAnalyst))
	registry.Register(plan.CapabilityResearcher, worker.NewResearchWorker(scheduler))

	sup := supervisor.New(registry, resolver, retry.NewController(logger),
		artifacts, event.NewLogSink(logger), logger)

	return orchestrate.NewEngine(
		orchestrate.NewManager(logger),
		orchestrate.NewPlanner(invoker, logger),
		sup, logger), nil
}
