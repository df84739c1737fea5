package resolver

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oceanstate-routing/pinpoint/internal/metrics"
	"github.com/oceanstate-routing/pinpoint/internal/models"
	"github.com/oceanstate-routing/pinpoint/internal/repository"
)

// AddressResolver is what the batch service needs from the orchestrator.
type AddressResolver interface {
	Resolve(ctx context.Context, raw models.RawAddress) models.ResolutionRecord
}

// BatchService periodically pulls pending addresses and resolves them with a
// bounded worker pool. Each worker owns one address end-to-end; a failed
// address never aborts the batch.
type BatchService struct {
	log          *slog.Logger
	repo         repository.Interface
	resolver     AddressResolver
	metrics      *metrics.Metrics
	numWorkers   int
	batchSize    int
	pollInterval time.Duration
}

// NewBatchService creates a new instance of BatchService.
func NewBatchService(
	log *slog.Logger,
	repo repository.Interface,
	resolver AddressResolver,
	mtr *metrics.Metrics,
	numWorkers int,
	batchSize int,
	pollInterval time.Duration,
) *BatchService {
	const defaultBatch = 100
	if batchSize <= 0 {
		batchSize = defaultBatch
	}
	if numWorkers <= 0 {
		numWorkers = 1
	}
	return &BatchService{
		log:          log,
		repo:         repo,
		resolver:     resolver,
		metrics:      mtr,
		numWorkers:   numWorkers,
		batchSize:    batchSize,
		pollInterval: pollInterval,
	}
}

// Run starts the resolution service, which periodically polls for pending
// addresses. It stops when the context is canceled.
func (bs *BatchService) Run(ctx context.Context) {
	ticker := time.NewTicker(bs.pollInterval)
	defer ticker.Stop()

	bs.log.InfoContext(ctx, "Resolution service started...")

	for {
		select {
		case <-ctx.Done():
			bs.log.InfoContext(ctx, "Resolution service stopped.")
			return
		case <-ticker.C:
			bs.log.InfoContext(ctx, "Polling for pending addresses...")
			bs.processBatch(ctx)
		}
	}
}

// processBatch fetches one batch of pending addresses, fans them out over the
// worker pool, and waits for every worker to finish.
func (bs *BatchService) processBatch(ctx context.Context) {
	pending, err := bs.repo.FetchPendingAddresses(ctx, bs.batchSize)
	if err != nil {
		bs.log.ErrorContext(ctx, "Failed to fetch pending addresses", "error", err)
		return
	}
	if len(pending) == 0 {
		bs.log.InfoContext(ctx, "No addresses to process.")
		return
	}

	bs.log.InfoContext(ctx, "Found addresses to process. Starting worker pool.",
		"jobs", len(pending),
		"num_workers", bs.numWorkers,
	)

	jobs := make(chan models.RawAddress, len(pending))
	var wgr sync.WaitGroup

	for i := 1; i <= bs.numWorkers; i++ {
		wgr.Add(1)
		go bs.worker(ctx, i, &wgr, jobs)
	}

	for _, raw := range pending {
		jobs <- raw
	}
	close(jobs)

	wgr.Wait()
	bs.log.InfoContext(ctx, "Processing batch finished")
}

// worker resolves addresses from the jobs channel one at a time and persists
// each record. Persistence errors are logged, never fatal.
func (bs *BatchService) worker(ctx context.Context, idx int, wg *sync.WaitGroup, jobs <-chan models.RawAddress) {
	defer wg.Done()
	for raw := range jobs {
		bs.metrics.ActiveWorkers.Inc()
		bs.log.DebugContext(ctx, "Processing address", "worker", idx, "stop", raw.ID)

		record := bs.resolver.Resolve(ctx, raw)

		status := "failure"
		switch {
		case record.TagMetadata.FromCache:
			status = "cached"
		case record.Search.Successful:
			status = "success"
		}
		bs.metrics.AddressesProcessed.WithLabelValues(status).Inc()

		if err := bs.repo.SaveResolution(ctx, record); err != nil {
			bs.log.ErrorContext(ctx, "Failed to save resolution record",
				"worker", idx,
				"stop", raw.ID,
				"error", err,
			)
		} else {
			bs.log.DebugContext(ctx, "Worker finished address",
				"worker", idx,
				"stop", raw.ID,
				"status", status,
				"method", record.Search.AcceptedMethod,
			)
		}

		bs.metrics.ActiveWorkers.Dec()
	}
}
