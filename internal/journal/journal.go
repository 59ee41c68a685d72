// Package journal persists top-up attempts to Postgres.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	coredatabase "github.com/m3rciful/topupbot/core/database"
	"github.com/m3rciful/topupbot/core/logger"
	"github.com/m3rciful/topupbot/internal/topup"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsDir = "migrations"

// Migrate applies the journal schema to the configured database.
func Migrate(ctx context.Context, cfg coredatabase.Config) error {
	return coredatabase.RunMigrations(ctx, cfg, migrationsFS, migrationsDir)
}

// Entry is one row of topup_payments.
type Entry struct {
	ID          uuid.UUID       `db:"id"`
	ChatID      int64           `db:"chat_id"`
	PhoneNumber string          `db:"phone_number"`
	SpinbetID   string          `db:"spinbet_id"`
	Amount      decimal.Decimal `db:"amount"`
	MaskedCard  string          `db:"masked_card"`
	Status      string          `db:"status"`
	ErrorCode   int             `db:"error_code"`
	ErrorNote   string          `db:"error_note"`
	PaymentID   sql.NullInt64   `db:"payment_id"`
	CreatedAt   time.Time       `db:"created_at"`
}

const insertEntry = `
INSERT INTO topup_payments
    (id, chat_id, phone_number, spinbet_id, amount, masked_card, status, error_code, error_note, payment_id, created_at)
VALUES
    (:id, :chat_id, :phone_number, :spinbet_id, :amount, :masked_card, :status, :error_code, :error_note, :payment_id, :created_at)`

// Store writes attempts through sqlx.
type Store struct {
	db    *sqlx.DB
	now   func() time.Time
	newID func() uuid.UUID
}

// New returns a Store backed by db.
func New(db *sqlx.DB) *Store {
	return &Store{db: db, now: time.Now, newID: uuid.New}
}

// Record inserts a. The card number is stored masked only.
func (s *Store) Record(ctx context.Context, a topup.Attempt) error {
	e := Entry{
		ID:          s.newID(),
		ChatID:      a.ChatID,
		PhoneNumber: a.PhoneNumber,
		SpinbetID:   a.SpinbetID,
		Amount:      a.Amount,
		MaskedCard:  a.MaskedCard,
		Status:      a.Status,
		ErrorCode:   a.ErrorCode,
		ErrorNote:   a.ErrorNote,
		PaymentID:   sql.NullInt64{Int64: a.PaymentID, Valid: a.PaymentID != 0},
		CreatedAt:   s.now().UTC(),
	}
	start := time.Now()
	if _, err := s.db.NamedExecContext(ctx, insertEntry, e); err != nil {
		return fmt.Errorf("journal: insert attempt: %w", err)
	}
	logger.Journal.LogAttrs(ctx, slog.LevelDebug, "attempt stored",
		slog.String("event", "journal.write"),
		slog.String("status", "ok"),
		slog.String("id", e.ID.String()),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}
