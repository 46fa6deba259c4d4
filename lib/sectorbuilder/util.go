package sectorbuilder

import "context"

type opFinishKey struct{}

// opFinishWait blocks a seal, after its sector was marked Sealing, until
// the channel installed by AddOpFinish is closed.
func opFinishWait(ctx context.Context) {
	val, ok := ctx.Value(opFinishKey{}).(chan struct{})
	if !ok {
		return
	}
	<-val
}

func AddOpFinish(ctx context.Context) (context.Context, func()) {
	done := make(chan struct{})

	return context.WithValue(ctx, opFinishKey{}, done), func() {
		close(done)
	}
}
