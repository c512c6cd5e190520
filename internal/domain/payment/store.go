// internal/domain/payment/store.go
package payment

import "context"

// Store is the persistence contract for payment records. Reconciliation's
// read-modify-write runs inside InTx; everything visible here is explicit so
// optional columns stay optional in the type system instead of being papered
// over at runtime.
type Store interface {
	// InTx runs fn inside a transaction, committing when fn returns nil
	// and rolling back otherwise.
	InTx(ctx context.Context, fn func(tx StoreTx) error) error

	Create(ctx context.Context, rec *Record) error
	FindByID(ctx context.Context, id string) (*Record, error)
	FindByKey(ctx context.Context, key Key, value string) (*Record, error)
	List(ctx context.Context, filters ListFilters) ([]Record, int64, error)
	Stats(ctx context.Context) (*PaymentStats, error)
}

// StoreTx is the transactional view used by the reconciler. FindByKeyForUpdate
// must lock the matched row until the transaction ends so that concurrent
// deliveries for one key serialize instead of producing lost updates.
type StoreTx interface {
	FindByKeyForUpdate(ctx context.Context, key Key, value string) (*Record, error)
	Create(ctx context.Context, rec *Record) error
	Update(ctx context.Context, rec *Record) error
}
