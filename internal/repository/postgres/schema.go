// internal/repository/postgres/schema.go
package postgres

import (
	"context"
	"fmt"
)

// InitSchema creates the payments table and its indexes if they do not
// exist. The three alternate keys are individually unique; NULLs do not
// collide, so records identified by different key subsets coexist.
func (r *PaymentRepository) InitSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS payments (
			id TEXT PRIMARY KEY,
			checkout_request_id TEXT UNIQUE,
			merchant_request_id TEXT UNIQUE,
			receipt_number TEXT UNIQUE,
			status TEXT NOT NULL,
			amount BIGINT,
			payer_phone TEXT,
			result_desc TEXT,
			paid_at TIMESTAMPTZ,
			raw_callback JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_status ON payments(status)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_payer_phone ON payments(payer_phone)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_created_at ON payments(created_at)`,
	}

	for _, query := range queries {
		if _, err := r.db.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to initialize payments schema: %w", err)
		}
	}
	return nil
}
