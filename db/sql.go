package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3" // SQLite driver registration

	"rtl-ml/models"
	"rtl-ml/radio"
	"rtl-ml/utils"
)

const (
	DriverSQLite = "sqlite3"
	DriverMySQL  = "mysql"
)

// SQLClient stores detections and validation reports in SQLite or MySQL.
type SQLClient struct {
	db     *sql.DB
	driver string
}

// MySQLDSN builds a TCP DSN for MySQL.
func MySQLDSN(user, password, addr, dbName string) string {
	cfg := mysql.Config{
		User:                 user,
		Passwd:               password,
		Net:                  "tcp",
		Addr:                 addr,
		DBName:               dbName,
		AllowNativePasswords: true,
	}
	return cfg.FormatDSN()
}

// NewSQLClient opens the database and creates the tables if needed.
func NewSQLClient(driver, dataSourceName string) (*SQLClient, error) {
	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case DriverSQLite:
		db, err = openSQLite(dataSourceName)
	case DriverMySQL:
		db, err = sql.Open(DriverMySQL, dataSourceName)
		if err == nil {
			db.SetConnMaxLifetime(3 * time.Minute)
			db.SetMaxOpenConns(10)
			db.SetMaxIdleConns(10)
		}
	default:
		return nil, fmt.Errorf("%q is not a supported database driver, pick one of: sqlite3, mysql", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("error connecting to %s: %s", driver, err)
	}

	client := &SQLClient{db: db, driver: driver}
	if err := client.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating tables: %s", err)
	}
	return client, nil
}

func openSQLite(dataSourceName string) (*sql.DB, error) {
	// Extract the file path before query parameters
	dbPath := dataSourceName
	if idx := strings.Index(dataSourceName, "?"); idx != -1 {
		dbPath = dataSourceName[:idx]
	}

	dbDir := filepath.Dir(dbPath)
	if dbDir != "." && dbDir != "" && !strings.HasPrefix(dbPath, ":memory:") {
		if err := utils.CreateFolder(dbDir); err != nil {
			return nil, fmt.Errorf("error creating database directory: %s", err)
		}
	}

	// Add busy timeout param to DSN (milliseconds)
	if !strings.Contains(dataSourceName, "_busy_timeout") {
		if strings.Contains(dataSourceName, "?") {
			dataSourceName += "&_busy_timeout=5000"
		} else {
			dataSourceName += "?_busy_timeout=5000"
		}
	}

	db, err := sql.Open(DriverSQLite, dataSourceName)
	if err != nil {
		return nil, err
	}
	// one writer keeps sqlite from reporting SQLITE_BUSY under concurrent saves
	db.SetMaxOpenConns(1)
	return db, nil
}

func (c *SQLClient) createTables() error {
	idType, textType := "TEXT", "TEXT"
	if c.driver == DriverMySQL {
		idType, textType = "VARCHAR(64)", "LONGTEXT"
	}

	createDetectionsTable := fmt.Sprintf(`
    CREATE TABLE IF NOT EXISTS detections (
        id %[1]s PRIMARY KEY,
        timestamp_ns BIGINT NOT NULL,
        target %[1]s NOT NULL,
        frequency DOUBLE NOT NULL,
        label %[1]s NOT NULL,
        family %[1]s NOT NULL,
        confidence DOUBLE,
        latency_ms DOUBLE NOT NULL DEFAULT 0,
        expected %[1]s,
        features %[2]s,
        validation %[2]s,
        predictions %[2]s
    )`, idType, textType)

	createValidationsTable := fmt.Sprintf(`
    CREATE TABLE IF NOT EXISTS validations (
        label %[1]s PRIMARY KEY,
        check_name %[1]s NOT NULL,
        passed INTEGER NOT NULL DEFAULT 0,
        record %[2]s NOT NULL,
        updated_ns BIGINT NOT NULL
    )`, idType, textType)

	if _, err := c.db.Exec(createDetectionsTable); err != nil {
		return fmt.Errorf("error creating detections table: %s", err)
	}
	if _, err := c.db.Exec(createValidationsTable); err != nil {
		return fmt.Errorf("error creating validations table: %s", err)
	}
	return nil
}

func (c *SQLClient) Name() string {
	return c.driver
}

func (c *SQLClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Save stores a detection. Missing IDs and timestamps are filled in.
func (c *SQLClient) Save(ctx context.Context, detection models.Detection) error {
	if detection.ID == "" {
		detection.ID = utils.NewRecordID()
	}
	if detection.Timestamp.IsZero() {
		detection.Timestamp = time.Now()
	}

	features, err := nullableJSON(detection.Features, len(detection.Features) > 0)
	if err != nil {
		return fmt.Errorf("error marshaling features: %s", err)
	}
	validation, err := nullableJSON(detection.Validation, detection.Validation != nil)
	if err != nil {
		return fmt.Errorf("error marshaling validation: %s", err)
	}
	predictions, err := nullableJSON(detection.Predictions, len(detection.Predictions) > 0)
	if err != nil {
		return fmt.Errorf("error marshaling predictions: %s", err)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO detections (
			id, timestamp_ns, target, frequency, label, family,
			confidence, latency_ms, expected, features, validation, predictions
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		detection.ID,
		detection.Timestamp.UnixNano(),
		detection.Target,
		detection.Frequency,
		detection.Label,
		detection.Family,
		detection.Confidence,
		detection.LatencyMs,
		detection.Expected,
		features,
		validation,
		predictions,
	)
	if err != nil {
		return fmt.Errorf("error storing detection: %s", err)
	}
	return nil
}

// List returns all detections, newest first.
func (c *SQLClient) List(ctx context.Context) ([]models.Detection, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, timestamp_ns, target, frequency, label, family,
		       confidence, latency_ms, expected, features, validation, predictions
		FROM detections
		ORDER BY timestamp_ns DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("error querying detections: %s", err)
	}
	defer rows.Close()

	detections := []models.Detection{}
	for rows.Next() {
		var (
			d                                 models.Detection
			timestampNs                       int64
			confidence                        sql.NullFloat64
			expected                          sql.NullString
			features, validation, predictions sql.NullString
		)
		err := rows.Scan(
			&d.ID,
			&timestampNs,
			&d.Target,
			&d.Frequency,
			&d.Label,
			&d.Family,
			&confidence,
			&d.LatencyMs,
			&expected,
			&features,
			&validation,
			&predictions,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning detection: %s", err)
		}

		d.Timestamp = time.Unix(0, timestampNs)
		d.Expected = expected.String
		if confidence.Valid {
			value := confidence.Float64
			d.Confidence = &value
		}
		if features.Valid {
			if err := json.Unmarshal([]byte(features.String), &d.Features); err != nil {
				return nil, fmt.Errorf("error unmarshaling features: %s", err)
			}
		}
		if validation.Valid {
			var record radio.ValidationRecord
			if err := json.Unmarshal([]byte(validation.String), &record); err != nil {
				return nil, fmt.Errorf("error unmarshaling validation: %s", err)
			}
			d.Validation = &record
		}
		if predictions.Valid {
			if err := json.Unmarshal([]byte(predictions.String), &d.Predictions); err != nil {
				return nil, fmt.Errorf("error unmarshaling predictions: %s", err)
			}
		}

		detections = append(detections, d)
	}
	return detections, rows.Err()
}

// SaveReport replaces the stored validation record of every label in report.
func (c *SQLClient) SaveReport(ctx context.Context, report radio.ValidationReport) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %s", err)
	}

	stmt, err := tx.PrepareContext(ctx, "REPLACE INTO validations (label, check_name, passed, record, updated_ns) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("error preparing statement: %s", err)
	}
	defer stmt.Close()

	now := time.Now().UnixNano()
	for _, label := range report.Labels() {
		record := report[label]
		data, err := json.Marshal(record)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("error marshaling validation record: %s", err)
		}
		passed := 0
		if record.Passed() {
			passed = 1
		}
		if _, err := stmt.ExecContext(ctx, label, record.Check, passed, string(data), now); err != nil {
			tx.Rollback()
			return fmt.Errorf("error executing statement: %s", err)
		}
	}

	return tx.Commit()
}

// LoadReport returns the stored validation records keyed by label.
func (c *SQLClient) LoadReport(ctx context.Context) (radio.ValidationReport, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT label, record FROM validations")
	if err != nil {
		return nil, fmt.Errorf("error querying validations: %s", err)
	}
	defer rows.Close()

	report := radio.ValidationReport{}
	for rows.Next() {
		var label, data string
		if err := rows.Scan(&label, &data); err != nil {
			return nil, fmt.Errorf("error scanning row: %s", err)
		}
		var record radio.ValidationRecord
		if err := json.Unmarshal([]byte(data), &record); err != nil {
			return nil, fmt.Errorf("error unmarshaling validation record: %s", err)
		}
		report[label] = record
	}
	return report, rows.Err()
}

func nullableJSON(v any, present bool) (sql.NullString, error) {
	if !present {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
