package repositories

import "context"

// TxFn runs within a transaction; any error rolls the transaction back.
type TxFn func(ctx context.Context) error

// TransactionManager executes functions within database transactions.
// A commit that fails its CAS guard returns the guard error and nothing
// written inside the transaction survives.
type TransactionManager interface {
	ExecTx(ctx context.Context, fn TxFn) error
}
