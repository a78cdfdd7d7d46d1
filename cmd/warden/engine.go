package main

import (
	"tangled.org/studyhub.social/warden/internal/classifier"
	"tangled.org/studyhub.social/warden/internal/config"
	"tangled.org/studyhub.social/warden/internal/filter"
	"tangled.org/studyhub.social/warden/internal/moderation"
	"tangled.org/studyhub.social/warden/internal/reputation"
	"tangled.org/studyhub.social/warden/internal/worker"

	"github.com/rs/zerolog/log"
)

// engine is the moderation library as the platform embeds it. The daemon
// itself only runs maintenance on it (block compaction, dictionary reload,
// gauges); chat and upload handlers in the host process call Chain.Submit,
// Chain.FilterOutgoingContent, Service.CreateReport and Ledger.Increment.
type engine struct {
	ledger  *reputation.Ledger
	service *moderation.Service
	chain   *filter.Chain
	pool    *worker.Pool
}

// newEngine wires the service, ledger and filter chain over b. cls may be nil,
// in which case the chain only runs the blocking stage.
func newEngine(cfg config.Config, b *backend, dict *filter.Dictionary, cls filter.Classifier, opts moderation.Options) *engine {
	ledger := reputation.NewLedger(b.reputation)
	if opts.Notifier == nil {
		opts.Notifier = b.notifier
	}
	opts.Reputation = ledger
	svc := moderation.NewService(b.moderation, opts)

	pool := worker.NewPool(worker.Options{
		Workers:     cfg.Workers,
		QueueSize:   cfg.QueueSize,
		TaskTimeout: cfg.ClassifierTimeout,
		OnFailure:   reportTaskFailure,
	})

	stages := []filter.Stage{filter.NewBlockingStage(dict)}
	if cls != nil {
		stages = append(stages, filter.NewClassificationStage(cls, dict, svc, pool))
	}
	chain := filter.NewChain(stages...)
	for _, st := range chain.Stages() {
		log.Info().Str("stage", st.Name()).Stringer("mode", st.Mode()).Msg("Filter stage registered")
	}

	return &engine{ledger: ledger, service: svc, chain: chain, pool: pool}
}

// newClassifier returns the remote classifier, or nil when none is configured.
func newClassifier(cfg config.Config) filter.Classifier {
	if !cfg.ClassifierEnabled() {
		log.Warn().Msg("WARDEN_CLASSIFIER_API_KEY not set, content classification disabled")
		return nil
	}
	return classifier.New(classifier.Config{
		Endpoint: cfg.ClassifierURL,
		APIKey:   cfg.ClassifierAPIKey,
		Model:    cfg.ClassifierModel,
		Timeout:  cfg.ClassifierTimeout,
	})
}
