package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
)

const (
	defaultTxAttempts = 5
	defaultTxTimeout  = 15 * time.Second
)

// TxFunc is executed within a Firestore transaction. All reads must happen
// before the first write, per Firestore transaction semantics.
type TxFunc func(ctx context.Context, tx *firestore.Transaction) error

// TxOption customises transaction behaviour.
type TxOption func(*txConfig)

type txConfig struct {
	attempts int
	timeout  time.Duration
}

// WithTxAttempts overrides the retry attempts for a transaction.
func WithTxAttempts(attempts int) TxOption {
	return func(cfg *txConfig) {
		if attempts > 0 {
			cfg.attempts = attempts
		}
	}
}

// WithTxTimeout sets a timeout for the transaction context.
func WithTxTimeout(timeout time.Duration) TxOption {
	return func(cfg *txConfig) {
		if timeout > 0 {
			cfg.timeout = timeout
		}
	}
}

// RunTransaction executes fn within a transaction on the provided client.
// Contention aborts are retried by the client up to the configured attempts,
// which also resolves the first-allocation race on brand-new counter scopes.
func RunTransaction(ctx context.Context, client *firestore.Client, fn TxFunc, opts ...TxOption) error {
	if client == nil {
		return WrapError("transaction", errors.New("firestore: client is nil"))
	}
	if fn == nil {
		return WrapError("transaction", errors.New("firestore: transaction function is nil"))
	}

	cfg := txConfig{attempts: defaultTxAttempts, timeout: defaultTxTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	if cfg.timeout > 0 {
		deadline, hasDeadline := ctx.Deadline()
		if !hasDeadline || time.Until(deadline) > cfg.timeout {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
			defer cancel()
		}
	}

	var txOpts []firestore.TransactionOption
	if cfg.attempts > 0 {
		txOpts = append(txOpts, firestore.MaxAttempts(cfg.attempts))
	}

	err := client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(ctx, tx)
	}, txOpts...)

	return WrapError("transaction", err)
}
