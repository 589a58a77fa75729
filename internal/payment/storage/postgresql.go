package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"ms-boxoffice/internal/config"
	"ms-boxoffice/internal/logger"
)

type PostgreSQLStore struct {
	db  *sql.DB
	log *logger.Logger
}

// NewPostgreSQLStoreWithDB creates a reconciliation store using an existing
// database connection.
func NewPostgreSQLStoreWithDB(db *sql.DB, log *logger.Logger) (*PostgreSQLStore, error) {
	store := &PostgreSQLStore{
		db:  db,
		log: log,
	}

	if err := store.initTables(); err != nil {
		log.Error("DATABASE", "Failed to initialize reconciliation table: "+err.Error())
		return nil, fmt.Errorf("failed to initialize reconciliation table: %w", err)
	}

	return store, nil
}

func NewPostgreSQLStore(cfg config.DatabaseConfig, log *logger.Logger) (*PostgreSQLStore, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		log.Error("DATABASE", "Failed to open PostgreSQL connection: "+err.Error())
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	if err := db.Ping(); err != nil {
		log.Error("DATABASE", "Failed to ping PostgreSQL: "+err.Error())
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewPostgreSQLStoreWithDB(db, log)
}

func (s *PostgreSQLStore) initTables() error {
	query := `
    CREATE TABLE IF NOT EXISTS payment_reconciliation (
        record_id VARCHAR(36) PRIMARY KEY,
        payment_intent_id VARCHAR(255) NOT NULL,
        cart_id VARCHAR(36) NOT NULL,
        user_id VARCHAR(36) NOT NULL,
        event_id VARCHAR(36) NOT NULL,
        seat_ids TEXT NOT NULL,
        amount_cents BIGINT NOT NULL,
        reason TEXT NOT NULL,
        status VARCHAR(20) NOT NULL DEFAULT 'OPEN',
        created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
    );
    `

	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create payment_reconciliation table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_reconciliation_intent ON payment_reconciliation(payment_intent_id);",
		"CREATE INDEX IF NOT EXISTS idx_reconciliation_status ON payment_reconciliation(status);",
	}

	for _, indexQuery := range indexes {
		if _, err := s.db.Exec(indexQuery); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// SaveRecord persists a reconciliation record. This is called from the
// failure path after the purchase transaction rolled back, so it must not
// itself depend on that transaction.
func (s *PostgreSQLStore) SaveRecord(ctx context.Context, record *ReconciliationRecord) error {
	s.log.Warn("RECONCILIATION", fmt.Sprintf("Recording unfinalized payment %s for cart %s", record.PaymentIntentID, record.CartID))

	query := `
    INSERT INTO payment_reconciliation (
        record_id, payment_intent_id, cart_id, user_id, event_id, seat_ids, amount_cents, reason, status, created_at
    ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `

	_, err := s.db.ExecContext(ctx, query,
		record.RecordID, record.PaymentIntentID, record.CartID, record.UserID,
		record.EventID, record.SeatIDs, record.AmountCents, record.Reason,
		record.Status, record.CreatedAt,
	)
	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to save reconciliation record %s: %s", record.RecordID, err.Error()))
		return fmt.Errorf("failed to save reconciliation record: %w", err)
	}
	return nil
}

func (s *PostgreSQLStore) GetRecord(ctx context.Context, id string) (*ReconciliationRecord, error) {
	query := `
    SELECT record_id, payment_intent_id, cart_id, user_id, event_id, seat_ids, amount_cents, reason, status, created_at
    FROM payment_reconciliation WHERE record_id = $1
    `
	return s.scanOne(s.db.QueryRowContext(ctx, query, id))
}

// GetByPaymentIntent returns the reconciliation record for a provider
// authorization, or nil when none exists.
func (s *PostgreSQLStore) GetByPaymentIntent(ctx context.Context, paymentIntentID string) (*ReconciliationRecord, error) {
	query := `
    SELECT record_id, payment_intent_id, cart_id, user_id, event_id, seat_ids, amount_cents, reason, status, created_at
    FROM payment_reconciliation WHERE payment_intent_id = $1
    ORDER BY created_at DESC LIMIT 1
    `
	record, err := s.scanOne(s.db.QueryRowContext(ctx, query, paymentIntentID))
	if err != nil && err.Error() == "reconciliation record not found" {
		return nil, nil
	}
	return record, err
}

func (s *PostgreSQLStore) ListOpen(ctx context.Context, limit, offset int) ([]*ReconciliationRecord, error) {
	query := `
    SELECT record_id, payment_intent_id, cart_id, user_id, event_id, seat_ids, amount_cents, reason, status, created_at
    FROM payment_reconciliation
    WHERE status = $1
    ORDER BY created_at ASC
    LIMIT $2 OFFSET $3
    `

	rows, err := s.db.QueryContext(ctx, query, ReconciliationOpen, limit, offset)
	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to list reconciliation records: %s", err.Error()))
		return nil, fmt.Errorf("failed to list reconciliation records: %w", err)
	}
	defer rows.Close()

	var records []*ReconciliationRecord
	for rows.Next() {
		record := &ReconciliationRecord{}
		err := rows.Scan(
			&record.RecordID, &record.PaymentIntentID, &record.CartID, &record.UserID,
			&record.EventID, &record.SeatIDs, &record.AmountCents, &record.Reason,
			&record.Status, &record.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reconciliation record: %w", err)
		}
		records = append(records, record)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return records, nil
}

func (s *PostgreSQLStore) Resolve(ctx context.Context, id string) error {
	query := `UPDATE payment_reconciliation SET status = $1 WHERE record_id = $2`
	res, err := s.db.ExecContext(ctx, query, ReconciliationResolved, id)
	if err != nil {
		return fmt.Errorf("failed to resolve reconciliation record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("reconciliation record not found")
	}
	return nil
}

func (s *PostgreSQLStore) scanOne(row *sql.Row) (*ReconciliationRecord, error) {
	record := &ReconciliationRecord{}
	err := row.Scan(
		&record.RecordID, &record.PaymentIntentID, &record.CartID, &record.UserID,
		&record.EventID, &record.SeatIDs, &record.AmountCents, &record.Reason,
		&record.Status, &record.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("reconciliation record not found")
		}
		return nil, fmt.Errorf("failed to get reconciliation record: %w", err)
	}
	return record, nil
}

func (s *PostgreSQLStore) Close() error {
	return s.db.Close()
}

func (s *PostgreSQLStore) HealthCheck() error {
	return s.db.Ping()
}
