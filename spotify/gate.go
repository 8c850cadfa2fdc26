package spotify

import "context"

// Collection is a cacheable remote collection: a completion flag, a durable
// record store, and a full network sweep to populate it.
type Collection[T any] interface {
	Complete(ctx context.Context) (bool, error)
	MarkComplete(ctx context.Context) error
	Load(ctx context.Context) ([]T, error)
	Save(ctx context.Context, items []T) error
	Fetch(ctx context.Context) ([]T, error)
}

// Ensure returns the collection's records, sweeping the network only when
// the completion flag is unset or forceRefresh demands it. The returned
// records are always read back from the store after persisting, so the
// result reflects durable state rather than the in-memory sweep.
func Ensure[T any](ctx context.Context, col Collection[T], forceRefresh bool) ([]T, error) {
	complete, err := col.Complete(ctx)
	if nil != err {
		return nil, err
	}

	if !complete || forceRefresh {
		items, err := col.Fetch(ctx)
		if nil != err {
			return nil, err
		}
		if err := col.Save(ctx, items); nil != err {
			return nil, err
		}
		if err := col.MarkComplete(ctx); nil != err {
			return nil, err
		}
	}

	return col.Load(ctx)
}
