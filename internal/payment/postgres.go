package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/remip/satgate/internal/tracing"
)

// pqUniqueViolation is the PostgreSQL error code for unique constraint
// violations, raised by the unique index on invoice_id.
const pqUniqueViolation = "23505"

const paymentColumns = `id, invoice_id, amount_sats, amount_btc, email, description,
	status, checkout_link, bolt11, payment_hash, metadata, created_at, updated_at, paid_at`

// PostgresPaymentRepository implements PaymentRepository backed by PostgreSQL.
type PostgresPaymentRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresPaymentRepository creates a new PostgresPaymentRepository.
func NewPostgresPaymentRepository(db *sql.DB, logger *slog.Logger) *PostgresPaymentRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresPaymentRepository{db: db, logger: logger}
}

// Create inserts a new pending payment and returns its row id.
// Returns ErrDuplicateInvoice when the invoice id is already recorded.
func (r *PostgresPaymentRepository) Create(ctx context.Context, p *Payment) (retID int64, retErr error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "payments", tracing.DBOperationInsert)
	defer func() { endSpan(retErr) }()

	query := `
		INSERT INTO payments (invoice_id, amount_sats, amount_btc, email, description,
			status, checkout_link, bolt11, payment_hash, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	var metadata interface{}
	if len(p.Metadata) > 0 {
		metadata = []byte(p.Metadata)
	}

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		p.InvoiceID,
		p.AmountSats,
		FormatBTC(p.AmountSats),
		p.Email,
		p.Description,
		StatusPending,
		p.CheckoutLink,
		p.Bolt11,
		p.PaymentHash,
		metadata,
	).Scan(&id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return 0, ErrDuplicateInvoice
		}
		r.logger.ErrorContext(ctx, "failed to insert payment", "invoice_id", p.InvoiceID, "error", err)
		return 0, fmt.Errorf("insert payment: %w", err)
	}
	return id, nil
}

// GetByInvoiceID retrieves a payment by invoice id.
func (r *PostgresPaymentRepository) GetByInvoiceID(ctx context.Context, invoiceID string) (retP *Payment, retErr error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "payments", tracing.DBOperationQuery)
	defer func() { endSpan(retErr) }()

	query := fmt.Sprintf(`SELECT %s FROM payments WHERE invoice_id = $1`, paymentColumns)

	p, err := scanPayment(r.db.QueryRowContext(ctx, query, invoiceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("select payment: %w", err)
	}
	return p, nil
}

// UpdateStatus writes the given status and paid-at timestamp in a single
// atomic row update. The caller decides transition legality.
func (r *PostgresPaymentRepository) UpdateStatus(ctx context.Context, invoiceID, status string, paidAt *time.Time) (retErr error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "payments", tracing.DBOperationUpdate)
	defer func() { endSpan(retErr) }()

	query := `
		UPDATE payments
		SET status = $1, paid_at = COALESCE($2, paid_at), updated_at = NOW()
		WHERE invoice_id = $3
	`

	res, err := r.db.ExecContext(ctx, query, status, paidAt, invoiceID)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to update payment status", "invoice_id", invoiceID, "error", err)
		return fmt.Errorf("update payment status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	if affected == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

// List returns payments ordered by creation time descending, optionally
// filtered by status.
func (r *PostgresPaymentRepository) List(ctx context.Context, limit, offset int, status string) (retList []*Payment, retErr error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "payments", tracing.DBOperationQuery)
	defer func() { endSpan(retErr) }()

	query := fmt.Sprintf(`SELECT %s FROM payments`, paymentColumns)
	args := []interface{}{}

	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to list payments", "error", err)
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.Warn("failed to close rows", "error", err)
		}
	}()

	payments := []*Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return payments, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanPayment.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPayment(row rowScanner) (*Payment, error) {
	var (
		p        Payment
		email    sql.NullString
		desc     sql.NullString
		checkout sql.NullString
		bolt11   sql.NullString
		hash     sql.NullString
		metadata []byte
		paidAt   sql.NullTime
	)

	err := row.Scan(
		&p.ID,
		&p.InvoiceID,
		&p.AmountSats,
		&p.AmountBTC,
		&email,
		&desc,
		&p.Status,
		&checkout,
		&bolt11,
		&hash,
		&metadata,
		&p.CreatedAt,
		&p.UpdatedAt,
		&paidAt,
	)
	if err != nil {
		return nil, err
	}

	if email.Valid {
		p.Email = &email.String
	}
	if desc.Valid {
		p.Description = &desc.String
	}
	if checkout.Valid {
		p.CheckoutLink = &checkout.String
	}
	if bolt11.Valid {
		p.Bolt11 = &bolt11.String
	}
	if hash.Valid {
		p.PaymentHash = &hash.String
	}
	if len(metadata) > 0 {
		p.Metadata = metadata
	}
	if paidAt.Valid {
		p.PaidAt = &paidAt.Time
	}
	return &p, nil
}
