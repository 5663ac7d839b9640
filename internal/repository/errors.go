package repository

import "errors"

var (
	// ErrDuplicateReport indicates a report with the same id is already stored
	ErrDuplicateReport = errors.New("report id already exists")

	// ErrReportNotPersistable indicates the record lacks coordinates, an image URL or an id
	ErrReportNotPersistable = errors.New("report is missing required fields")

	// ErrRepositoryUnavailable indicates the repository is unavailable
	ErrRepositoryUnavailable = errors.New("repository unavailable")
)
