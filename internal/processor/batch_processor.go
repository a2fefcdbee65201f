package processor

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"estatedesk/server/config"
	"estatedesk/server/internal/database"
	"estatedesk/server/internal/models"
)

// Transactor is the part of *gorm.DB the persister needs.
type Transactor interface {
	Transaction(fc func(tx *gorm.DB) error, opts ...*sql.TxOptions) error
}

// BatchPersister writes comparable transactions in bounded batches, each in
// its own database transaction with retries.
type BatchPersister struct {
	db     Transactor
	logger *logrus.Logger
	config *config.Config
}

// NewBatchPersister creates a new batch persister instance
func NewBatchPersister(db Transactor, config *config.Config, logger *logrus.Logger) *BatchPersister {
	return &BatchPersister{
		db:     db,
		config: config,
		logger: logger,
	}
}

func (p *BatchPersister) batchSize() int {
	if p.config.BatchProcessing.MaxBatchSize <= 0 {
		return 100
	}
	return p.config.BatchProcessing.MaxBatchSize
}

// SaveTransactions persists rows batch by batch and stops at the first batch
// that still fails after all retries.
func (p *BatchPersister) SaveTransactions(ctx context.Context, rows []models.ComparableTransaction) error {
	size := p.batchSize()
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		if err := p.processBatch(ctx, rows[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// processBatch handles a single batch of transactions with transaction and retry logic
func (p *BatchPersister) processBatch(ctx context.Context, batch []models.ComparableTransaction) error {
	var err error
	for attempt := 0; attempt <= p.config.BatchProcessing.MaxRetries; attempt++ {
		if attempt > 0 {
			p.logger.Infof("Retrying batch persistence, attempt %d of %d", attempt, p.config.BatchProcessing.MaxRetries)
			select {
			case <-ctx.Done():
				return fmt.Errorf("batch persistence cancelled: %w", ctx.Err())
			case <-time.After(p.config.BatchProcessing.RetryDelay):
			}
		}

		var inserted int64
		err = p.db.Transaction(func(tx *gorm.DB) error {
			n, err := database.UpsertTransactions(tx.WithContext(ctx), batch)
			if err != nil {
				return err
			}
			inserted = n
			return nil
		})

		if err == nil {
			p.logger.WithFields(logrus.Fields{
				"batch":    len(batch),
				"inserted": inserted,
			}).Debug("Persisted comparable transactions batch")
			return nil
		}

		p.logger.Errorf("Batch persistence failed: %v", err)
	}

	return fmt.Errorf("failed to process batch after %d attempts: %w", p.config.BatchProcessing.MaxRetries, err)
}
