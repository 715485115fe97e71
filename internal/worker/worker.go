package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/adforge/backend/pkg/queue"
	"github.com/adforge/backend/pkg/storage"
)

// CleanupProcessor deletes storage objects that are no longer referenced by
// any database row (deleted campaigns, replaced regenerations, orphaned
// uploads from failed runs).
type CleanupProcessor struct {
	s3     *storage.S3
	queue  *queue.Queue
	logger *zap.Logger
}

// NewCleanupProcessor creates a storage cleanup processor.
func NewCleanupProcessor(s3 *storage.S3, q *queue.Queue, logger *zap.Logger) *CleanupProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CleanupProcessor{s3: s3, queue: q, logger: logger}
}

// Process executes one storage cleanup job. Keys that are already gone count
// as success; the job fails only when a delete call itself errors.
func (p *CleanupProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeStorageCleanup {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.StorageCleanupPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	var failed int
	for _, key := range payload.Keys {
		if key == "" {
			continue
		}
		if err := p.s3.DeleteObject(ctx, key); err != nil {
			p.logger.Warn("object delete failed",
				zap.String("campaign_id", payload.CampaignID.String()),
				zap.String("key", key),
				zap.Error(err))
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d objects failed to delete", failed, len(payload.Keys))
	}

	p.logger.Info("storage cleanup completed",
		zap.String("campaign_id", payload.CampaignID.String()),
		zap.Int("objects", len(payload.Keys)))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *CleanupProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("cleanup worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}
