package storage

import (
	"context"
	"errors"
	"time"

	"approvalScope/internal/model"
)

// Report is one finished scan handed to sinks.
type Report struct {
	ScanID    string
	ScannedAt time.Time
	Result    model.ScanResult
}

// Storage defines a sink for scan reports.
type Storage interface {
	PutReport(ctx context.Context, report Report) error
}

// Multi writes a report to every sink and joins their errors.
type Multi []Storage

func (m Multi) PutReport(ctx context.Context, report Report) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.PutReport(ctx, report); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
