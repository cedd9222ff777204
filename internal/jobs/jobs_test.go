package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reconcilerStub struct {
	calls atomic.Int32
	err   error
}

func (r *reconcilerStub) Reconcile(ctx context.Context) (int, error) {
	r.calls.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return 0, errors.New("missing deadline")
	}
	return 1, r.err
}

func TestReconcileJob_Execute(t *testing.T) {
	stub := &reconcilerStub{}
	job := NewReconcileJob(stub, 0)
	assert.Equal(t, DefaultReconcileInterval, job.interval)
	assert.Equal(t, "deletion_intent_reconciler", job.Name())

	job.Execute()
	assert.EqualValues(t, 1, stub.calls.Load())

	stub.err = errors.New("store down")
	job.Execute()
	assert.EqualValues(t, 2, stub.calls.Load())
}

func TestManager_RunsRegisteredJob(t *testing.T) {
	stub := &reconcilerStub{}
	m, err := NewManager()
	require.NoError(t, err)
	require.NoError(t, m.Register(NewReconcileJob(stub, 20*time.Millisecond)))

	m.Start()
	assert.Eventually(t, func() bool { return stub.calls.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, m.Stop())
}
