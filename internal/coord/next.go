package coord

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/cmtonkinson/worksync/internal/resolver"
	"github.com/cmtonkinson/worksync/internal/watch"
)

// Next resolves the next executable issue for the session. Cycle and blocked
// outcomes are returned as values; err is reserved for read failures.
func (c *Coordinator) Next(ctx context.Context) (resolver.Outcome, error) {
	var out resolver.Outcome
	err := c.withSpan(ctx, "coord.next", "", func(ctx context.Context) error {
		issues, err := c.issues.Scan(ctx)
		if err != nil {
			return err
		}
		held, err := c.locks.Held(ctx)
		if err != nil {
			return err
		}
		out = resolver.FindNextExecutable(resolver.Input{
			Issues:  issues,
			Held:    held,
			Session: c.session,
		})
		return nil
	})
	return out, err
}

// WaitNext blocks until Next reports something other than blocked: an
// executable issue, all-closed, or a cycle. It re-resolves whenever the issue
// tree or lock directory changes, and every poll interval so locks that go
// stale by age alone are noticed.
func (c *Coordinator) WaitNext(ctx context.Context, opts watch.Options) (resolver.Outcome, error) {
	if opts.Poll == 0 {
		opts.Poll = watch.DefaultPoll
	}
	w, err := watch.New([]string{c.layout.IssuesDir, c.layout.LocksDir}, opts)
	if err != nil {
		return resolver.Outcome{}, err
	}
	defer w.Close()

	var out resolver.Outcome
	err = w.Until(ctx, func(ctx context.Context) (bool, error) {
		next, err := c.Next(ctx)
		if err != nil {
			return false, err
		}
		out = next
		return next.Kind != resolver.KindBlocked, nil
	})
	return out, err
}

func issueAttr(issueID string) []attribute.KeyValue {
	if issueID == "" {
		return nil
	}
	return []attribute.KeyValue{attribute.String("worksync.issue", issueID)}
}
