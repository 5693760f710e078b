package journal

import "context"

// Record is one key/value pair returned by a prefix scan.
type Record struct {
	Key   string
	Value []byte
}

type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Scan returns every record whose key starts with prefix, in key order.
	Scan(ctx context.Context, prefix string) ([]Record, error)
	Close() error
}
