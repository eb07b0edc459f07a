package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/licensor-backend/pkg/logger"
)

// HeartbeatRetentionJobName is the registry name of the heartbeat purge.
const HeartbeatRetentionJobName = "heartbeat-retention"

type heartbeatPurger interface {
	PurgeHeartbeats(ctx context.Context, olderThan time.Duration) (int64, error)
}

// NewHeartbeatRetentionJob deletes heartbeat log entries older than retention.
func NewHeartbeatRetentionJob(logg *logger.Logger, licenses heartbeatPurger, retention time.Duration) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if licenses == nil {
		return nil, fmt.Errorf("license service required")
	}
	if retention <= 0 {
		return nil, fmt.Errorf("heartbeat retention must be positive")
	}
	return &heartbeatRetentionJob{logg: logg, licenses: licenses, retention: retention}, nil
}

type heartbeatRetentionJob struct {
	logg      *logger.Logger
	licenses  heartbeatPurger
	retention time.Duration
}

func (j *heartbeatRetentionJob) Name() string { return HeartbeatRetentionJobName }

func (j *heartbeatRetentionJob) Run(ctx context.Context) error {
	deleted, err := j.licenses.PurgeHeartbeats(ctx, j.retention)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"deleted":        deleted,
		"retention_days": int(j.retention / (24 * time.Hour)),
	})
	if err != nil {
		return fmt.Errorf("purge heartbeats: %w", err)
	}
	j.logg.Info(logCtx, "heartbeat retention complete")
	return nil
}
