package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"report-intake-pipeline/config"
	"report-intake-pipeline/models"

	"github.com/apex/log"
	_ "github.com/go-sql-driver/mysql"
)

const maxPingWait = 30 * time.Second

// Database stores intake decisions in MySQL
type Database struct {
	db *sql.DB
}

// NewDatabase opens the MySQL connection, retrying until the server answers
func NewDatabase(ctx context.Context, cfg *config.Config) (*Database, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection with exponential backoff retry
	waitInterval := 1 * time.Second
	for {
		err := db.PingContext(ctx)
		if err == nil {
			break
		}
		log.Warnf("Database connection failed, retrying in %v: %v", waitInterval, err)
		select {
		case <-ctx.Done():
			db.Close()
			return nil, fmt.Errorf("database not reachable: %w", ctx.Err())
		case <-time.After(waitInterval):
		}
		if waitInterval < maxPingWait {
			waitInterval *= 2
		}
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	return NewWithDB(db), nil
}

// NewWithDB wraps an already open handle
func NewWithDB(db *sql.DB) *Database {
	return &Database{db: db}
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) Name() string { return "mysql" }

// CreateDecisionsTable creates the report_decisions table if it doesn't exist
func (d *Database) CreateDecisionsTable(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS report_decisions (
		seq INT AUTO_INCREMENT PRIMARY KEY,
		report_id VARCHAR(64) NOT NULL,
		user_id VARCHAR(255) NOT NULL,
		description TEXT,
		submitted_category VARCHAR(64) DEFAULT '',
		image_url TEXT,
		latitude DOUBLE NULL,
		longitude DOUBLE NULL,
		accepted BOOLEAN NOT NULL,
		status ENUM('accepted', 'rejected') NOT NULL,
		category VARCHAR(64) NOT NULL,
		department VARCHAR(64) NOT NULL,
		urgency VARCHAR(16) DEFAULT '',
		priority VARCHAR(16) DEFAULT '',
		reason VARCHAR(255) NOT NULL,
		reason_code VARCHAR(64) NOT NULL,
		rules_version VARCHAR(64) NOT NULL,
		decided_at TIMESTAMP NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		INDEX report_id_index (report_id),
		INDEX status_index (status),
		INDEX category_index (category),
		INDEX reason_code_index (reason_code)
	)`

	if _, err := d.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create report_decisions table: %w", err)
	}
	log.Info("report_decisions table ready")
	return nil
}

// Save inserts one decision
func (d *Database) Save(ctx context.Context, r models.DecisionRecord) error {
	query := `
	INSERT INTO report_decisions (
		report_id, user_id, description, submitted_category, image_url,
		latitude, longitude, accepted, status, category, department,
		urgency, priority, reason, reason_code, rules_version, decided_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := d.db.ExecContext(ctx, query,
		r.ReportID, r.UserID, r.Description, r.SubmittedCategory, r.ImageURL,
		nullFloat(r.Latitude), nullFloat(r.Longitude), r.Accept, string(r.Status),
		string(r.Category), string(r.Department), string(r.Urgency), string(r.Priority),
		r.Reason, string(r.ReasonCode), r.RulesVersion, r.DecidedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert decision %s: %w", r.ReportID, err)
	}
	return nil
}

// CountByStatus returns the number of stored decisions per status
func (d *Database) CountByStatus(ctx context.Context) (map[models.Status]int, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM report_decisions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count decisions: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan decision count: %w", err)
		}
		counts[models.Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate decision counts: %w", err)
	}
	return counts, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
