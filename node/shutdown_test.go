package node

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stopRecorder struct {
	lk    sync.Mutex
	order []string
}

func (r *stopRecorder) handler(name string, err error) ShutdownHandler {
	return ShutdownHandler{
		Component: name,
		StopFunc: func(context.Context) error {
			r.lk.Lock()
			defer r.lk.Unlock()
			r.order = append(r.order, name)
			return err
		},
	}
}

func (r *stopRecorder) stopped() []string {
	r.lk.Lock()
	defer r.lk.Unlock()
	return append([]string(nil), r.order...)
}

func TestMonitorShutdown(t *testing.T) {
	triggerCh := make(chan struct{})
	r := &stopRecorder{}

	finishCh := MonitorShutdown(triggerCh,
		r.handler("command server", nil),
		r.handler("metadata store", errors.New("flush failed")),
		r.handler("metrics endpoint", nil),
	)

	// nothing stops before the trigger
	time.Sleep(10 * time.Millisecond)
	require.Len(t, finishCh, 0)
	require.Empty(t, r.stopped())

	close(triggerCh)

	select {
	case <-finishCh:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not finish")
	}

	require.Equal(t, []string{"command server", "metadata store", "metrics endpoint"}, r.stopped())
}
