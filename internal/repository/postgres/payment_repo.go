// internal/repository/postgres/payment_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"

	"sokopay-service/internal/domain/payment"
	xerrors "sokopay-service/internal/pkg/errors"
)

const paymentColumns = `id, checkout_request_id, merchant_request_id, receipt_number,
	       status, amount, payer_phone, result_desc, paid_at, raw_callback,
	       created_at, updated_at`

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so single-statement
// helpers can run inside or outside a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PaymentRepository struct {
	db *pgxpool.Pool
}

func NewPaymentRepository(db *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// InTx runs fn inside a transaction, committing on nil and rolling back on
// error. The reconciler's read-modify-write lives behind this.
func (r *PaymentRepository) InTx(ctx context.Context, fn func(tx payment.StoreTx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&paymentTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *PaymentRepository) Create(ctx context.Context, rec *payment.Record) error {
	return createPayment(ctx, r.db, rec)
}

func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*payment.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE id = $1`, paymentColumns)
	return scanPayment(r.db.QueryRow(ctx, query, id))
}

func (r *PaymentRepository) FindByKey(ctx context.Context, key payment.Key, value string) (*payment.Record, error) {
	column, err := keyColumn(key)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE %s = $1`, paymentColumns, column)
	return scanPayment(r.db.QueryRow(ctx, query, value))
}

// List retrieves payment records with filters, newest first.
func (r *PaymentRepository) List(ctx context.Context, filters payment.ListFilters) ([]payment.Record, int64, error) {
	conditions := []string{"TRUE"}
	args := []interface{}{}
	argPos := 1

	if len(filters.Statuses) > 0 {
		statuses := make([]string, len(filters.Statuses))
		for i, s := range filters.Statuses {
			statuses[i] = string(s)
		}
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", argPos))
		args = append(args, pq.Array(statuses))
		argPos++
	}

	if filters.Phone != "" {
		conditions = append(conditions, fmt.Sprintf("payer_phone = $%d", argPos))
		args = append(args, filters.Phone)
		argPos++
	}

	if filters.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argPos))
		args = append(args, *filters.DateFrom)
		argPos++
	}

	if filters.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", argPos))
		args = append(args, *filters.DateTo)
		argPos++
	}

	whereClause := strings.Join(conditions, " AND ")

	// Count total
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM payments WHERE %s", whereClause)
	var total int64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count payments: %w", err)
	}

	// Pagination
	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.PageSize < 1 {
		filters.PageSize = 20
	}
	if filters.PageSize > 100 {
		filters.PageSize = 100
	}

	offset := (filters.Page - 1) * filters.PageSize

	query := fmt.Sprintf(`
		SELECT %s
		FROM payments
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, paymentColumns, whereClause, argPos, argPos+1)

	args = append(args, filters.PageSize, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	records := []payment.Record{}
	for rows.Next() {
		rec, err := scanPaymentRow(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, *rec)
	}

	return records, total, nil
}

// Stats aggregates record counts by status plus the confirmed revenue.
func (r *PaymentRepository) Stats(ctx context.Context) (*payment.PaymentStats, error) {
	query := `
		SELECT
			COUNT(*) as total,
			COUNT(CASE WHEN status = 'PENDING' THEN 1 END) as pending,
			COUNT(CASE WHEN status = 'PAID' THEN 1 END) as paid,
			COUNT(CASE WHEN status = 'FAILED' THEN 1 END) as failed,
			COALESCE(SUM(CASE WHEN status = 'PAID' THEN amount ELSE 0 END), 0) as paid_amount
		FROM payments
	`

	var stats payment.PaymentStats
	err := r.db.QueryRow(ctx, query).Scan(
		&stats.TotalPayments,
		&stats.PendingCount,
		&stats.PaidCount,
		&stats.FailedCount,
		&stats.PaidAmount,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment stats: %w", err)
	}

	return &stats, nil
}

// paymentTx is the transactional view handed to the reconciler.
type paymentTx struct {
	tx pgx.Tx
}

// FindByKeyForUpdate locks the matched row until the enclosing transaction
// ends so concurrent callback deliveries for one key serialize.
func (t *paymentTx) FindByKeyForUpdate(ctx context.Context, key payment.Key, value string) (*payment.Record, error) {
	column, err := keyColumn(key)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE %s = $1 FOR UPDATE`, paymentColumns, column)
	return scanPayment(t.tx.QueryRow(ctx, query, value))
}

func (t *paymentTx) Create(ctx context.Context, rec *payment.Record) error {
	return createPayment(ctx, t.tx, rec)
}

func (t *paymentTx) Update(ctx context.Context, rec *payment.Record) error {
	query := `
		UPDATE payments
		SET checkout_request_id = $1, merchant_request_id = $2, receipt_number = $3,
		    status = $4, amount = $5, payer_phone = $6, result_desc = $7,
		    paid_at = $8, raw_callback = $9, updated_at = now()
		WHERE id = $10
	`

	result, err := t.tx.Exec(ctx, query,
		rec.CheckoutRequestID, rec.MerchantRequestID, rec.ReceiptNumber,
		rec.Status, rec.Amount, rec.PayerPhone, rec.ResultDesc,
		rec.PaidAt, rec.RawCallback, rec.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to update payment %s: %w", rec.ID, xerrors.ErrConflict)
		}
		return fmt.Errorf("failed to update payment: %w", err)
	}

	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func createPayment(ctx context.Context, q querier, rec *payment.Record) error {
	query := `
		INSERT INTO payments (
			id, checkout_request_id, merchant_request_id, receipt_number,
			status, amount, payer_phone, result_desc, paid_at, raw_callback
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`

	err := q.QueryRow(ctx, query,
		rec.ID, rec.CheckoutRequestID, rec.MerchantRequestID, rec.ReceiptNumber,
		rec.Status, rec.Amount, rec.PayerPhone, rec.ResultDesc,
		rec.PaidAt, rec.RawCallback,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to create payment %s: %w", rec.ID, xerrors.ErrConflict)
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func scanPayment(row pgx.Row) (*payment.Record, error) {
	var rec payment.Record
	err := row.Scan(
		&rec.ID, &rec.CheckoutRequestID, &rec.MerchantRequestID, &rec.ReceiptNumber,
		&rec.Status, &rec.Amount, &rec.PayerPhone, &rec.ResultDesc, &rec.PaidAt,
		&rec.RawCallback, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan payment: %w", err)
	}
	return &rec, nil
}

func scanPaymentRow(rows pgx.Rows) (*payment.Record, error) {
	var rec payment.Record
	err := rows.Scan(
		&rec.ID, &rec.CheckoutRequestID, &rec.MerchantRequestID, &rec.ReceiptNumber,
		&rec.Status, &rec.Amount, &rec.PayerPhone, &rec.ResultDesc, &rec.PaidAt,
		&rec.RawCallback, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan payment: %w", err)
	}
	return &rec, nil
}

// keyColumn maps a dedupe key to its column through a closed switch; values
// never reach the SQL text any other way.
func keyColumn(key payment.Key) (string, error) {
	switch key {
	case payment.KeyCheckoutRequestID:
		return "checkout_request_id", nil
	case payment.KeyMerchantRequestID:
		return "merchant_request_id", nil
	case payment.KeyReceiptNumber:
		return "receipt_number", nil
	default:
		return "", fmt.Errorf("unknown payment key %q: %w", key, xerrors.ErrInvalidInput)
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
