package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/arc-components/arcci/internal/classify"
	"github.com/arc-components/arcci/internal/logfields"
	"github.com/arc-components/arcci/internal/metrics"
)

// Dispatcher fans intents out to per-repository workers. Each repository
// gets one worker goroutine and a bounded queue, so pipelines for the same
// repository run serially while different repositories run concurrently.
type Dispatcher struct {
	orch      *Orchestrator
	recorder  metrics.Recorder
	queueSize int

	mu      sync.Mutex
	queues  map[string]chan classify.Intent
	closed  bool
	workers sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

func NewDispatcher(orch *Orchestrator, recorder metrics.Recorder, queueSize int) *Dispatcher {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	if queueSize < 1 {
		queueSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		orch:      orch,
		recorder:  recorder,
		queueSize: queueSize,
		queues:    make(map[string]chan classify.Intent),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Dispatch enqueues an intent for its repository without blocking. A full
// queue rejects the intent; the webhook response already went out, so the
// caller can only log the loss.
func (d *Dispatcher) Dispatch(intent classify.Intent) error {
	if intent.Ignored() {
		return nil
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher is stopped")
	}
	queue, ok := d.queues[intent.RepoName]
	if !ok {
		queue = make(chan classify.Intent, d.queueSize)
		d.queues[intent.RepoName] = queue
		d.workers.Add(1)
		go d.worker(intent.RepoName, queue)
	}
	d.mu.Unlock()

	select {
	case queue <- intent:
		d.recorder.SetQueueDepth(intent.RepoName, len(queue))
		return nil
	default:
		return fmt.Errorf("pipeline queue full for repository %s", intent.RepoName)
	}
}

// Stop rejects further intents, waits for in-flight pipelines to drain
// their queues, then returns. Pipelines receive ctx cancellation when the
// passed context expires first.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	for _, queue := range d.queues {
		close(queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		return ctx.Err()
	}
}

func (d *Dispatcher) worker(repo string, queue chan classify.Intent) {
	defer d.workers.Done()

	for intent := range queue {
		d.recorder.SetQueueDepth(repo, len(queue))
		if err := d.orch.Execute(d.ctx, intent); err != nil {
			// Execute already logged the failure with pipeline context.
			slog.Debug("Pipeline ended with error", logfields.Repository(repo), logfields.Error(err))
		}
	}
}
