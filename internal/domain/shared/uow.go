package shared

import "context"

// TxRunner runs a function within a storage transaction. Implementations
// carry the transaction in the context so that repositories called inside
// fn join it transparently. The evaluation engine uses this to keep rank
// writes, unlock inserts and outbox entries atomic.
type TxRunner interface {
	// WithinTx begins a transaction, runs fn and commits. Any error from
	// fn rolls the transaction back and is returned as-is.
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// NopTxRunner executes fn without transactional guarantees. Used in tests
// and for backends that do not support transactions.
type NopTxRunner struct{}

// WithinTx implements TxRunner.
func (NopTxRunner) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
