package lock

import (
	"context"
	"errors"
	"slices"
)

var ErrBusy = errors.New("ledger is busy, try again")

// Locker guards one ledger write. Keys name the transaction and every product
// the write touches; the returned func releases everything that was obtained.
type Locker interface {
	Lock(ctx context.Context, keys ...string) (func(), error)
}

// Local serialises every write in the process regardless of keys.
type Local struct {
	sem chan struct{}
}

func NewLocal() *Local {
	return &Local{sem: make(chan struct{}, 1)}
}

func (l *Local) Lock(ctx context.Context, _ ...string) (func(), error) {
	select {
	case l.sem <- struct{}{}:
		return func() { <-l.sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TransactionKey(id string) string {
	return "tx:" + id
}

func ProductKey(id string) string {
	return "product:" + id
}

// normalizeKeys sorts and deduplicates keys so that concurrent writers always
// acquire overlapping locks in the same order.
func normalizeKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if key == "" {
			continue
		}
		out = append(out, key)
	}
	slices.Sort(out)
	return slices.Compact(out)
}
