package fleet_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/hdistcc/internal/fleet"
	"github.com/imamik/hdistcc/internal/platform/fake"
)

func TestDirectory_List(t *testing.T) {
	t.Parallel()

	b := fake.NewBackend()
	b.AddNode(testProject, testZone, "hd-ubuntu-0a1b2c3d-10", fleet.StatusRunning)
	b.AddNode(testProject, testZone, "hd-ubuntu-0a1b2c3d-2", fleet.StatusRunning)
	b.AddNode(testProject, testZone, "hd-ubuntu-0a1b2c3d-1", "STARTING")
	b.AddNode(testProject, testZone, "hd-ubuntu-ffffffff-1", fleet.StatusRunning)
	b.AddNode(testProject, testZone, "other-ubuntu-0a1b2c3d-1", fleet.StatusRunning)
	b.AddNode(testProject, "nbg1", "hd-ubuntu-0a1b2c3d-3", fleet.StatusRunning)

	d := fleet.NewDirectory(b)
	ctx := context.Background()

	running, err := d.List(ctx, testIdentity(), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"hd-ubuntu-0a1b2c3d-2", "hd-ubuntu-0a1b2c3d-10"}, running.Names())

	all, err := d.List(ctx, testIdentity(), true)
	require.NoError(t, err)
	assert.Equal(t, []string{"hd-ubuntu-0a1b2c3d-1", "hd-ubuntu-0a1b2c3d-2", "hd-ubuntu-0a1b2c3d-10"}, all.Names())

	global := testIdentity()
	global.Global = true
	everyone, err := d.List(ctx, global, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"hd-ubuntu-ffffffff-1", "hd-ubuntu-0a1b2c3d-2", "hd-ubuntu-0a1b2c3d-10"}, everyone.Names())
}

func TestDirectory_EmptyIsNotAnError(t *testing.T) {
	t.Parallel()

	view, err := fleet.NewDirectory(fake.NewBackend()).List(context.Background(), testIdentity(), true)
	require.NoError(t, err)
	assert.Zero(t, view.Len())
}

func TestDirectory_ListError(t *testing.T) {
	t.Parallel()

	b := fake.NewBackend()
	b.FailList(errors.New("api down"))
	_, err := fleet.NewDirectory(b).List(context.Background(), testIdentity(), false)
	assert.ErrorContains(t, err, "api down")
}
