package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"signalTrader/internal/domain"
	"signalTrader/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// AuditRepository implements the ports.AuditRepository interface using SQLite.
// Records are append-only; nothing ever updates or deletes a row.
type AuditRepository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite audit repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewAuditRepository creates a new SQLite audit repository instance.
func NewAuditRepository(cfg Config) (*AuditRepository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite audit repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/signal_audit.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite audit repository initialization failed")
		return nil, err
	}

	// WAL mode keeps appends crash-safe and cheap under a single writer.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite audit repository initialization failed")
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite audit repository initialization failed")
		return nil, err
	}

	// SQLite handles concurrency internally; the Go driver benefits from a
	// single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &AuditRepository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize audit schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite audit repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Audit database ready", map[string]interface{}{"path": dbPath})
	return repo, nil
}

func (r *AuditRepository) initializeSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS signal_audit (
		id TEXT PRIMARY KEY,
		channel TEXT NOT NULL,
		raw_text TEXT NOT NULL,
		parsed_ok INTEGER NOT NULL,
		parse_reason TEXT NOT NULL DEFAULT '',
		symbol TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL DEFAULT '',
		entry_min REAL NOT NULL DEFAULT 0,
		entry_max REAL NOT NULL DEFAULT 0,
		stop_loss REAL NOT NULL DEFAULT 0,
		take_profits TEXT NOT NULL DEFAULT '',
		executed INTEGER NOT NULL,
		success INTEGER NOT NULL DEFAULT 0,
		outcome_reason TEXT NOT NULL DEFAULT '',
		tickets TEXT NOT NULL DEFAULT '',
		total_volume REAL NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_signal_audit_created_at ON signal_audit(created_at);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%w: %v", ports.ErrAuditWriteFailed, err)
	}
	return nil
}

// Append durably stores one audit record.
func (r *AuditRepository) Append(ctx context.Context, rec *domain.AuditRecord) error {
	var symbol, action, takeProfits string
	var entryMin, entryMax, stopLoss float64
	if rec.Signal != nil {
		symbol = rec.Signal.Symbol
		action = string(rec.Signal.Action)
		entryMin = rec.Signal.EntryMin
		entryMax = rec.Signal.EntryMax
		stopLoss = rec.Signal.StopLoss
		takeProfits = joinFloats(rec.Signal.TakeProfits)
	}
	var success bool
	var outcomeReason, tickets string
	var totalVolume float64
	if rec.Outcome != nil {
		success = rec.Outcome.Success
		outcomeReason = rec.Outcome.Reason
		tickets = joinInts(rec.Outcome.Tickets)
		totalVolume = rec.Outcome.TotalVolume
	}

	query := `INSERT INTO signal_audit
		(id, channel, raw_text, parsed_ok, parse_reason, symbol, action,
		 entry_min, entry_max, stop_loss, take_profits, executed, success,
		 outcome_reason, tickets, total_volume, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.Channel, rec.RawText, rec.ParsedOK, rec.ParseReason,
		symbol, action, entryMin, entryMax, stopLoss, takeProfits,
		rec.Executed, success, outcomeReason, tickets, totalVolume,
		rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: %v", ports.ErrAuditWriteFailed, err)
	}
	return nil
}

// FindRecent retrieves the most recent records, newest first, up to limit.
func (r *AuditRepository) FindRecent(ctx context.Context, limit int) ([]*domain.AuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, channel, raw_text, parsed_ok, parse_reason, symbol,
		action, entry_min, entry_max, stop_loss, take_profits, executed,
		success, outcome_reason, tickets, total_volume, created_at
		FROM signal_audit ORDER BY created_at DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("audit query failed: %w", err)
	}
	defer rows.Close()

	var records []*domain.AuditRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanRecord(rows *sql.Rows) (*domain.AuditRecord, error) {
	var rec domain.AuditRecord
	var symbol, action, takeProfits, outcomeReason, tickets string
	var entryMin, entryMax, stopLoss, totalVolume float64
	var success bool
	err := rows.Scan(&rec.ID, &rec.Channel, &rec.RawText, &rec.ParsedOK,
		&rec.ParseReason, &symbol, &action, &entryMin, &entryMax, &stopLoss,
		&takeProfits, &rec.Executed, &success, &outcomeReason, &tickets,
		&totalVolume, &rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("audit scan failed: %w", err)
	}
	if rec.ParsedOK {
		rec.Signal = &domain.ParsedSignal{
			Symbol:      symbol,
			Action:      domain.OrderSide(action),
			EntryMin:    entryMin,
			EntryMax:    entryMax,
			StopLoss:    stopLoss,
			TakeProfits: splitFloats(takeProfits),
			RawText:     rec.RawText,
		}
	}
	// An outcome can exist without execution, e.g. requests still queued when
	// the monitor died.
	if rec.Executed || outcomeReason != "" {
		rec.Outcome = &domain.ExecutionOutcome{
			Success:     success,
			Reason:      outcomeReason,
			Tickets:     splitInts(tickets),
			TotalVolume: totalVolume,
		}
	}
	return &rec, nil
}

// Close closes the underlying database connection.
func (r *AuditRepository) Close() error {
	return r.db.Close()
}

func joinFloats(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, ",")
}

func splitFloats(s string) []float64 {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		if v, err := strconv.ParseFloat(p, 64); err == nil {
			out = append(out, v)
		}
	}
	return out
}

func joinInts(values []int64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatInt(v, 10)
	}
	return strings.Join(parts, ",")
}

func splitInts(s string) []int64 {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		if v, err := strconv.ParseInt(p, 10, 64); err == nil {
			out = append(out, v)
		}
	}
	return out
}
