package repository

import (
	"context"

	"hazard-reporter/pkg/models"
)

// ReportRepository defines the data access operations on hazard reports
type ReportRepository interface {
	// ListReportIDs returns the id of every stored report
	ListReportIDs(ctx context.Context) ([]string, error)

	// Save writes a new report keyed by id. It never overwrites an existing report.
	Save(ctx context.Context, id string, report *models.Report) error

	// List returns up to limit reports, newest first. limit <= 0 means no limit.
	List(ctx context.Context, limit int) ([]models.Report, error)

	Close() error
}
