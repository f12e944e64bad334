// Package aggregator orchestrates a pipeline run: load the store, fetch
// usage from every configured provider, merge the samples and save. A
// provider failure degrades the run to partial success; only store load
// and save failures are fatal.
package aggregator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bond/tokenash/internal/logger"
	"github.com/bond/tokenash/internal/model"
	"github.com/bond/tokenash/internal/provider"
	"github.com/bond/tokenash/internal/store"
)

// phase tracks where a run is; FailedFatal is reachable only from Loading
// and Saving.
type phase int

const (
	phaseIdle phase = iota
	phaseLoading
	phaseFetching
	phaseMerging
	phaseSaving
	phaseDone
	phaseFailedFatal
)

func (p phase) String() string {
	switch p {
	case phaseIdle:
		return "idle"
	case phaseLoading:
		return "loading"
	case phaseFetching:
		return "fetching"
	case phaseMerging:
		return "merging"
	case phaseSaving:
		return "saving"
	case phaseDone:
		return "done"
	case phaseFailedFatal:
		return "failed"
	}
	return "unknown"
}

// Options configures a run.
type Options struct {
	// FetchDays is the trailing window fetched per run, including today.
	FetchDays int
	// FetchTimeout bounds each provider fetch.
	FetchTimeout time.Duration
	// MaxConcurrent caps concurrent provider fetches.
	MaxConcurrent int
	// RetryBackoff is the pause before the single retry of a transient
	// fetch failure.
	RetryBackoff time.Duration
	// DryRun merges but skips the save.
	DryRun bool
	// Location is the reference timezone for calendar days.
	Location *time.Location
}

// DefaultOptions returns the default run configuration.
func DefaultOptions() Options {
	return Options{
		FetchDays:     7,
		FetchTimeout:  60 * time.Second,
		MaxConcurrent: 4,
		RetryBackoff:  2 * time.Second,
		Location:      time.UTC,
	}
}

// Aggregator runs the fetch/merge/save pipeline against one store.
type Aggregator struct {
	store    *store.Store
	adapters []provider.Adapter
	opts     Options
}

// New creates an aggregator for the given store and adapters.
func New(st *store.Store, adapters []provider.Adapter, opts Options) *Aggregator {
	if opts.FetchDays <= 0 {
		opts.FetchDays = DefaultOptions().FetchDays
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultOptions().FetchTimeout
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultOptions().MaxConcurrent
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = DefaultOptions().RetryBackoff
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Aggregator{store: st, adapters: adapters, opts: opts}
}

// fetchOutcome holds one adapter's result; results are collected
// concurrently and applied to the store sequentially.
type fetchOutcome struct {
	samples []model.Sample
	failure *model.ProviderFailure
}

// Run executes one pipeline run. The returned RunResult is always valid
// when err is nil, even if every provider failed. A non-nil err means the
// store could not be loaded or saved and nothing was persisted.
func (a *Aggregator) Run(ctx context.Context, now time.Time) (*model.RunResult, *store.State, error) {
	result := &model.RunResult{
		RunID:     uuid.NewString(),
		StartedAt: now,
	}
	log := logger.Get().With("run_id", result.RunID)

	log.Debugw("run starting", "phase", phaseLoading.String())
	state, err := a.store.Load()
	if err != nil {
		log.Errorw("store load failed", "phase", phaseFailedFatal.String(), "error", err)
		return nil, nil, err
	}

	log.Debugw("fetching providers", "phase", phaseFetching.String(),
		"providers", len(a.adapters), "days", a.opts.FetchDays)
	outcomes := a.fetchAll(ctx, now)

	var samples []model.Sample
	for _, out := range outcomes {
		if out.failure != nil {
			result.Failures = append(result.Failures, *out.failure)
			continue
		}
		samples = append(samples, out.samples...)
	}

	// Deterministic merge order regardless of fetch completion order:
	// sort by (provider, date) so the last-processed-wins rule has a
	// stable outcome.
	sort.SliceStable(samples, func(i, j int) bool {
		if samples[i].Provider != samples[j].Provider {
			return samples[i].Provider < samples[j].Provider
		}
		return samples[i].Date < samples[j].Date
	})

	log.Debugw("merging samples", "phase", phaseMerging.String(), "samples", len(samples))
	// Every attempted provider gets a history, so a provider that failed
	// this run still shows up in the rollup as gaps rather than vanishing.
	for _, ad := range a.adapters {
		state.History(ad.ID())
	}
	result.Report = state.Merge(samples)
	state.LastUpdated = now.UTC()

	if !a.opts.DryRun {
		log.Debugw("saving store", "phase", phaseSaving.String(), "path", a.store.Path())
		if err := a.store.Save(state); err != nil {
			log.Errorw("store save failed", "phase", phaseFailedFatal.String(), "error", err)
			return nil, nil, err
		}
	}

	result.FinishedAt = time.Now()
	log.Infow("run finished", "phase", phaseDone.String(),
		"inserted", result.Report.Inserted,
		"overwritten", result.Report.Overwritten,
		"rejected", len(result.Report.Rejected),
		"failures", len(result.Failures))
	return result, state, nil
}

// fetchAll runs every adapter concurrently under a semaphore and collects
// per-provider outcomes.
func (a *Aggregator) fetchAll(ctx context.Context, now time.Time) []fetchOutcome {
	dateRange := provider.DateRange{
		Start: now.In(a.opts.Location).AddDate(0, 0, -(a.opts.FetchDays - 1)),
		End:   now.In(a.opts.Location),
	}

	outcomes := make([]fetchOutcome, len(a.adapters))
	sem := make(chan struct{}, a.opts.MaxConcurrent)
	var wg sync.WaitGroup

	for i, ad := range a.adapters {
		wg.Add(1)
		go func(i int, ad provider.Adapter) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			outcomes[i] = a.fetchOne(ctx, ad, dateRange)
		}(i, ad)
	}
	wg.Wait()

	return outcomes
}

// fetchOne fetches and normalizes one provider, retrying once with backoff
// on transient errors. Authentication and malformed-response errors are
// never retried.
func (a *Aggregator) fetchOne(ctx context.Context, ad provider.Adapter, r provider.DateRange) fetchOutcome {
	fetchCtx, cancel := context.WithTimeout(ctx, a.opts.FetchTimeout)
	defer cancel()

	raw, err := ad.FetchUsage(fetchCtx, r)
	if err != nil && provider.Retryable(err) {
		logger.Warnw("provider fetch failed, retrying",
			"provider", ad.ID(), "error", err, "backoff", a.opts.RetryBackoff)
		select {
		case <-time.After(a.opts.RetryBackoff):
		case <-ctx.Done():
			return failureOutcome(ad.ID(), "fetch canceled", ctx.Err())
		}
		retryCtx, retryCancel := context.WithTimeout(ctx, a.opts.FetchTimeout)
		defer retryCancel()
		raw, err = ad.FetchUsage(retryCtx, r)
	}
	if err != nil {
		return failureOutcome(ad.ID(), "fetch error", err)
	}

	samples, err := ad.Normalize(raw)
	if err != nil {
		return failureOutcome(ad.ID(), "malformed response", err)
	}
	return fetchOutcome{samples: samples}
}

func failureOutcome(p model.Provider, reason string, err error) fetchOutcome {
	logger.Warnw("provider degraded", "provider", p, "reason", reason, "error", err)
	return fetchOutcome{failure: &model.ProviderFailure{
		Provider: p,
		Reason:   reason,
		Err:      err,
	}}
}
