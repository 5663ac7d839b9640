package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	apperrors "hazard-reporter/internal/errors"
	"hazard-reporter/internal/logger"
	"hazard-reporter/pkg/models"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sirupsen/logrus"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteReportRepository stores reports in a local SQLite database
type SQLiteReportRepository struct {
	db *sql.DB
}

// NewSQLiteReportRepository opens the database at path and applies pending migrations
func NewSQLiteReportRepository(path string) (*SQLiteReportRepository, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrRepositoryUnavailable, err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}

	logger.WithField("path", path).Info("Report database ready")
	return &SQLiteReportRepository{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}

	// m is not closed: that would close db as well
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	logger.Logger.Debugf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}

// ListReportIDs returns every stored id in insertion order
func (r *SQLiteReportRepository) ListReportIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM reports ORDER BY rowid`)
	if err != nil {
		return nil, apperrors.NewStoreReadError("failed to list report ids", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.NewStoreReadError("failed to read report id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStoreReadError("failed to list report ids", err)
	}
	return ids, nil
}

// Save inserts the report. A duplicate id is a write error, not an overwrite.
func (r *SQLiteReportRepository) Save(ctx context.Context, id string, report *models.Report) error {
	if report == nil {
		return apperrors.NewStoreWriteError("nil report", ErrReportNotPersistable)
	}
	record := *report
	record.ID = id
	if err := record.Persistable(); err != nil {
		return apperrors.NewStoreWriteError(err.Error(), ErrReportNotPersistable)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reports (id, hazard_type, location, latitude, longitude, reported_date, image_url, status, reported_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.HazardType,
		record.Location,
		record.Coordinates.Latitude,
		record.Coordinates.Longitude,
		record.Date,
		record.ImageURL,
		record.Status,
		record.ReportedBy,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return apperrors.NewStoreWriteError(fmt.Sprintf("report %s already exists", id), fmt.Errorf("%w: %v", ErrDuplicateReport, err))
		}
		return apperrors.NewStoreWriteError("failed to save report", err)
	}

	logger.WithFields(logrus.Fields{
		"report_id":   id,
		"hazard_type": record.HazardType,
	}).Info("Report saved")
	return nil
}

// List returns the newest reports first, with read defaults applied
func (r *SQLiteReportRepository) List(ctx context.Context, limit int) ([]models.Report, error) {
	query := `
		SELECT id, hazard_type, location, latitude, longitude, reported_date, image_url, status, reported_by
		FROM reports
		ORDER BY created_at DESC, rowid DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewStoreReadError("failed to list reports", err)
	}
	defer rows.Close()

	reports := []models.Report{}
	for rows.Next() {
		var (
			rep      models.Report
			lat, lon float64
		)
		if err := rows.Scan(&rep.ID, &rep.HazardType, &rep.Location, &lat, &lon, &rep.Date, &rep.ImageURL, &rep.Status, &rep.ReportedBy); err != nil {
			return nil, apperrors.NewStoreReadError("failed to read report", err)
		}
		rep.Coordinates = &models.GeoCoordinate{Latitude: lat, Longitude: lon}
		rep.ApplyReadDefaults()
		reports = append(reports, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStoreReadError("failed to list reports", err)
	}
	return reports, nil
}

// Close releases the database handle
func (r *SQLiteReportRepository) Close() error {
	return r.db.Close()
}

func isConstraintViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY ||
		code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
		code&0xff == sqlite3.SQLITE_CONSTRAINT
}
