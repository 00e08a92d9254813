package tracker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/docintel/internal/domain"
)

func TestRegistry_TrackerPerSlot(t *testing.T) {
	reg := NewRegistry(Options{})

	a := reg.Tracker("doc-1/analysis")
	b := reg.Tracker("doc-1/video")

	assert.Same(t, a, reg.Tracker("doc-1/analysis"))
	assert.NotSame(t, a, b)
}

func TestRegistry_CancelAll(t *testing.T) {
	reg := NewRegistry(Options{})
	poll := func(context.Context, int) (domain.Snapshot, error) { return working(5) }

	for _, slot := range []string{"b", "a", "c"} {
		_, err := reg.Tracker(slot).Start(context.Background(), newFake(poll), nil, Callbacks{})
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"a", "b", "c"}, reg.Active())

	reg.Cancel("b")
	assert.Equal(t, []string{"a", "c"}, reg.Active())

	reg.Cancel("missing")
	reg.CancelAll()
	assert.Empty(t, reg.Active())
}
