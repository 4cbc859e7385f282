package fleet_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/hdistcc/internal/fleet"
	"github.com/imamik/hdistcc/internal/observe"
	"github.com/imamik/hdistcc/internal/platform/fake"
	"github.com/imamik/hdistcc/internal/util/clock"
)

func TestOperationWaiter_Wait(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		setup     func(b *fake.Backend)
		wantErr   error
		wantOpErr bool
		wantTicks int
	}{
		{
			name:      "completes after polls",
			setup:     func(b *fake.Backend) { b.OperationPolls = 3 },
			wantTicks: 3,
		},
		{
			name:      "error payload",
			setup:     func(b *fake.Backend) { b.FailCreate("n-1", "quota exceeded") },
			wantOpErr: true,
			wantTicks: 1,
		},
		{
			name:      "transient poll errors are retried",
			setup:     func(b *fake.Backend) { b.FailPolls(4) },
			wantTicks: 5,
		},
		{
			name:      "repeated poll errors",
			setup:     func(b *fake.Backend) { b.FailPolls(10) },
			wantErr:   fleet.ErrBackendUnavailable,
			wantTicks: fleet.DefaultMaxPollErrors,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			b := fake.NewBackend()
			tt.setup(b)
			rec := observe.NewRecorder()

			op, err := b.CreateNode(ctx, testProject, testZone, fleet.NodeSpec{Name: "n-1"})
			require.NoError(t, err)

			w := fleet.NewOperationWaiter(b, clock.Stepping(epoch), 0)
			err = w.Wait(ctx, testProject, testZone, op, 2*time.Second, rec)

			switch {
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
			case tt.wantOpErr:
				var opErr *fleet.OperationError
				require.ErrorAs(t, err, &opErr)
				assert.Equal(t, "quota exceeded", opErr.Message)
				assert.Equal(t, op.ID, opErr.ID)
			default:
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantTicks, rec.Ticks())
		})
	}
}

func TestOperationWaiter_NeverCompletingOperationTimesOut(t *testing.T) {
	t.Parallel()

	b := fake.NewBackend()
	b.Hang("n-1")
	op, err := b.CreateNode(context.Background(), testProject, testZone, fleet.NodeSpec{Name: "n-1"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	w := fleet.NewOperationWaiter(b, clock.Real(), 0)
	start := time.Now()
	err = w.Wait(ctx, testProject, testZone, op, 5*time.Millisecond, nil)

	require.ErrorIs(t, err, fleet.ErrOperationTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestOperationWaiter_EmptyOperationIsDone(t *testing.T) {
	t.Parallel()

	b := fake.NewBackend()
	w := fleet.NewOperationWaiter(b, nil, 0)
	require.NoError(t, w.Wait(context.Background(), testProject, testZone, fleet.Operation{}, time.Second, nil))
	assert.Zero(t, b.CallCounts().Poll)
}
