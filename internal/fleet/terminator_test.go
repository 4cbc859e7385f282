package fleet_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/hdistcc/internal/fleet"
	"github.com/imamik/hdistcc/internal/platform/fake"
	"github.com/imamik/hdistcc/internal/util/clock"
)

func TestTerminator_Delete(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		seed    bool
		failMsg string
		wantErr bool
	}{
		{name: "deletes running node", seed: true},
		{name: "already gone is success"},
		{name: "operation error", seed: true, failMsg: "locked", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b := fake.NewBackend()
			if tt.seed {
				b.AddNode(testProject, testZone, "n-1", fleet.StatusRunning)
			}
			if tt.failMsg != "" {
				b.FailDelete("n-1", tt.failMsg)
			}
			w := fleet.NewOperationWaiter(b, clock.Stepping(epoch), 0)
			err := fleet.NewTerminator(b, w, time.Second, 0).Delete(context.Background(), testIdentity(), "n-1", nil)

			if tt.wantErr {
				var terr *fleet.TerminateError
				require.ErrorAs(t, err, &terr)
				assert.Equal(t, "n-1", terr.Name)
				return
			}
			require.NoError(t, err)
			assert.Empty(t, b.Nodes())
		})
	}
}
