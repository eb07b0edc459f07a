package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/licensor-backend/pkg/logger"
)

// LicenseExpiryJobName is the registry name of the expiry sweep.
const LicenseExpiryJobName = "license-expiry"

// maxExpiryBatches caps one run so a backlog cannot hold the cron lock forever.
const maxExpiryBatches = 20

type licenseExpirer interface {
	ExpireOverdue(ctx context.Context) (int, error)
}

// NewLicenseExpiryJob drives overdue licenses through the engine's expire
// transition, batch by batch, until a batch comes back empty.
func NewLicenseExpiryJob(logg *logger.Logger, licenses licenseExpirer) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if licenses == nil {
		return nil, fmt.Errorf("license service required")
	}
	return &licenseExpiryJob{logg: logg, licenses: licenses}, nil
}

type licenseExpiryJob struct {
	logg     *logger.Logger
	licenses licenseExpirer
}

func (j *licenseExpiryJob) Name() string { return LicenseExpiryJobName }

func (j *licenseExpiryJob) Run(ctx context.Context) error {
	total := 0
	for batch := 0; batch < maxExpiryBatches; batch++ {
		n, err := j.licenses.ExpireOverdue(ctx)
		total += n
		if err != nil {
			j.logg.Info(j.logg.WithField(ctx, "expired", total), "license expiry sweep aborted")
			return fmt.Errorf("expire overdue licenses: %w", err)
		}
		if n == 0 {
			break
		}
	}
	j.logg.Info(j.logg.WithField(ctx, "expired", total), "license expiry sweep complete")
	return nil
}
