package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arc-components/arcci/internal/classify"
)

func TestDispatcherSerializesPerRepo(t *testing.T) {
	f := newFixture(t, "api-button")
	orch, _, _ := f.orchestrator(t, func(o *Options) {
		// The sync script records interleaving: overlapping runs would
		// produce start,start instead of start,end pairs.
		o.Scripts.UpdateElement = f.script(t, "update-git-element.sh",
			"echo start >> order.txt\nsleep 0.2\necho end >> order.txt\n")
	})
	d := NewDispatcher(orch, nil, 8)

	require.NoError(t, d.Dispatch(stageIntent("api-button")))
	require.NoError(t, d.Dispatch(stageIntent("api-button")))

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))

	data, err := os.ReadFile(filepath.Join(f.buildDir, "order.txt"))
	require.NoError(t, err)
	require.Equal(t, []string{"start", "end", "start", "end"},
		strings.Fields(string(data)))
}

func TestDispatcherRejectsWhenQueueFull(t *testing.T) {
	f := newFixture(t, "api-button")
	orch, _, _ := f.orchestrator(t, func(o *Options) {
		o.Scripts.UpdateElement = f.script(t, "update-git-element.sh", "sleep 2\n")
	})
	d := NewDispatcher(orch, nil, 1)

	require.NoError(t, d.Dispatch(stageIntent("api-button")))
	// Give the worker time to take the first intent off the queue.
	time.Sleep(200 * time.Millisecond)

	require.NoError(t, d.Dispatch(stageIntent("api-button")))
	err := d.Dispatch(stageIntent("api-button"))
	require.Error(t, err, "third intent exceeds the queue bound")

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))
}

func TestDispatcherIgnoreIsNoOp(t *testing.T) {
	f := newFixture(t, "api-button")
	orch, _, _ := f.orchestrator(t, nil)
	d := NewDispatcher(orch, nil, 1)

	for range 10 {
		require.NoError(t, d.Dispatch(classify.Intent{Kind: classify.IntentIgnore}))
	}
	require.NoError(t, d.Stop(context.Background()))
}

func TestDispatcherRejectsAfterStop(t *testing.T) {
	f := newFixture(t, "api-button")
	orch, _, _ := f.orchestrator(t, nil)
	d := NewDispatcher(orch, nil, 1)

	require.NoError(t, d.Stop(context.Background()))
	require.NoError(t, d.Stop(context.Background()), "stop is idempotent")
	require.Error(t, d.Dispatch(stageIntent("api-button")))
}
