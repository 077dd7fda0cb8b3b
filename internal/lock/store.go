package lock

import "context"

// UnlockFunc releases a guard taken by Store.Exclusive or Store.Shared.
type UnlockFunc func() error

// Store persists lock records. Read returns (nil, nil) for a missing record.
// Write replaces a record atomically so readers see either the old or the new
// content. Exclusive and Shared take the store-wide guard that serializes
// read-decide-write cycles against protected-path scans.
type Store interface {
	Read(ctx context.Context, issueID string) (*Record, error)
	Write(ctx context.Context, record Record) error
	Remove(ctx context.Context, issueID string) error
	List(ctx context.Context) ([]Record, error)
	Exclusive(ctx context.Context) (UnlockFunc, error)
	Shared(ctx context.Context) (UnlockFunc, error)
}
