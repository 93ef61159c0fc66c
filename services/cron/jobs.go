package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sahilchouksey/exam-prep-api/model"
	"github.com/sahilchouksey/exam-prep-api/utils/auth"
)

// Job names as recorded in cron_job_logs
const (
	JobFailStaleIngestions = "fail_stale_ingestions"
	JobPurgeIngestionLogs  = "purge_ingestion_logs"
	JobCleanupCronLogs     = "cleanup_cron_logs"
	JobCleanupRevoked      = "cleanup_revoked_tokens"
)

// purgeBatchSize bounds how many logs one purge pass loads at a time
const purgeBatchSize = 500

// FailStaleIngestions marks ingestions still in processing after StaleAfter
// as failed. A request that dies mid-call never updates its own log.
func (m *CronManager) FailStaleIngestions(ctx context.Context) (string, error) {
	cutoff := time.Now().Add(-m.opts.StaleAfter)

	result := m.db.WithContext(ctx).Model(&model.IngestionLog{}).
		Where("status = ? AND created_at < ?", model.IngestionStatusProcessing, cutoff).
		Updates(map[string]interface{}{
			"status":        model.IngestionStatusFailed,
			"error_code":    "ABANDONED",
			"error_message": "ingestion did not finish",
		})
	if result.Error != nil {
		return "", fmt.Errorf("failed to update stale ingestions: %w", result.Error)
	}

	return fmt.Sprintf("marked %d stale ingestions as failed", result.RowsAffected), nil
}

// PurgeExpiredIngestionLogs deletes ingestion logs older than the retention
// window, removing archived payloads first when an archive is configured.
func (m *CronManager) PurgeExpiredIngestionLogs(ctx context.Context) (string, error) {
	cutoff := time.Now().Add(-m.opts.IngestionRetention)

	var purged, archiveFailures int
	for {
		var logs []model.IngestionLog
		err := m.db.WithContext(ctx).
			Select("id", "archive_key").
			Where("created_at < ?", cutoff).
			Order("created_at").
			Limit(purgeBatchSize).
			Find(&logs).Error
		if err != nil {
			return "", fmt.Errorf("failed to query expired ingestion logs: %w", err)
		}
		if len(logs) == 0 {
			break
		}

		ids := make([]uuid.UUID, 0, len(logs))
		for _, l := range logs {
			if l.ArchiveKey != "" && m.opts.Archive != nil {
				if err := m.opts.Archive.Delete(ctx, l.ArchiveKey); err != nil {
					archiveFailures++
					m.log.Warn("failed to delete archived ingestion", "ingestion_id", l.ID, "key", l.ArchiveKey, "error", err)
				}
			}
			ids = append(ids, l.ID)
		}

		if err := m.db.WithContext(ctx).Where("id IN ?", ids).Delete(&model.IngestionLog{}).Error; err != nil {
			return "", fmt.Errorf("failed to delete expired ingestion logs: %w", err)
		}
		purged += len(logs)

		if len(logs) < purgeBatchSize {
			break
		}
	}

	msg := fmt.Sprintf("purged %d ingestion logs", purged)
	if archiveFailures > 0 {
		msg += fmt.Sprintf(" (%d archive deletions failed)", archiveFailures)
	}
	return msg, nil
}

// CleanupCronLogs removes job logs older than CronLogRetention
func (m *CronManager) CleanupCronLogs(ctx context.Context) (string, error) {
	cutoff := time.Now().Add(-m.opts.CronLogRetention)

	result := m.db.WithContext(ctx).Where("started_at < ?", cutoff).Delete(&model.CronJobLog{})
	if result.Error != nil {
		return "", fmt.Errorf("failed to delete old cron logs: %w", result.Error)
	}
	return fmt.Sprintf("deleted %d cron logs", result.RowsAffected), nil
}

// CleanupRevokedTokens drops blacklist entries whose tokens have expired anyway
func (m *CronManager) CleanupRevokedTokens(ctx context.Context) (string, error) {
	deleted, err := auth.NewBlacklistService(m.db).CleanupExpiredTokens(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to delete expired revoked tokens: %w", err)
	}
	return fmt.Sprintf("deleted %d revoked tokens", deleted), nil
}
