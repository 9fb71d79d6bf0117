package batch

import (
	"context"

	"github.com/jcailloux/relais-core/reactor"
	"github.com/joeycumines/logiface"
)

// watchCancellation mirrors backendconn's helper of the same name: a
// goroutine races ctx.Done() against done, posting mark onto rt's loop
// thread only if cancellation wins, so a long-lived never-cancelled
// context never leaks a goroutine past the lookup's own completion.
func watchCancellation(ctx context.Context, rt *reactor.Context, done <-chan struct{}, mark func()) {
	if ctx.Done() == nil {
		return
	}
	go func() {
		select {
		case <-ctx.Done():
			_ = rt.Post(mark)
		case <-done:
		}
	}()
}

func logEvent(log *logiface.Logger[logiface.Event], msg string) { log.Info().Log(msg) }

// dedupOrdered returns the distinct keys among pending's lookups, in first
// -occurrence order, per spec.md 4.7's "ordered distinct keys".
func dedupOrdered(pending []*PendingLookup) []string {
	seen := make(map[string]struct{}, len(pending))
	keys := make([]string, 0, len(pending))
	for _, pl := range pending {
		if _, ok := seen[pl.Key]; ok {
			continue
		}
		seen[pl.Key] = struct{}{}
		keys = append(keys, pl.Key)
	}
	return keys
}
