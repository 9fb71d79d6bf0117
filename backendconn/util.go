package backendconn

import (
	"context"

	"github.com/jcailloux/relais-core/reactor"
	"github.com/joeycumines/logiface"
)

// watchCancellation arranges for mark to run on the reactor's loop thread if
// ctx is cancelled before done is closed. done must be closed exactly once,
// when the operation settles, so the monitoring goroutine never outlives
// the op it watches — per spec.md 8's "a cancelled Task never resumes past
// its next suspension point", mark only flips a flag the op checks at its
// own next settlement point, it never unwinds anything directly.
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

func logEvent(log *logiface.Logger[logiface.Event], msg string) {
	log.Info().Log(msg)
}

func errString(err error) string {
	if err == nil {
		return "<nil>"
	}
	return err.Error()
}
