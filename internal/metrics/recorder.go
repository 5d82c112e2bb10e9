// Package metrics provides observability hooks for webhook intake and
// pipeline execution. Components receive a Recorder by injection; the
// default NoopRecorder keeps metrics optional with zero overhead.
package metrics

import "time"

// ResultLabel enumerates stage result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultFailed   ResultLabel = "failed"
	ResultCanceled ResultLabel = "canceled"
)

// Recorder defines observability hooks for intent classification and
// pipeline metrics. Implementations may forward to Prometheus etc.
type Recorder interface {
	IncIntent(kind string)
	IncStageResult(stage string, result ResultLabel)
	IncPipelineOutcome(outcome string) // outcome: success|failed|precondition_failed|canceled
	ObserveStageDuration(stage string, d time.Duration)
	ObservePipelineDuration(d time.Duration)
	SetQueueDepth(repo string, n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) IncIntent(string)                           {}
func (NoopRecorder) IncStageResult(string, ResultLabel)         {}
func (NoopRecorder) IncPipelineOutcome(string)                  {}
func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}
func (NoopRecorder) ObservePipelineDuration(time.Duration)      {}
func (NoopRecorder) SetQueueDepth(string, int)                  {}
