package photoactivation

import (
	"context"
	"time"

	"go.uber.org/multierr"
)

// Feature is a device sequence driven by the host in phases
type Feature interface {
	Prepare(ctx context.Context) error
	Execute(ctx context.Context) error
	Cleanup() error
}

// Finalizer is implemented by features with an end phase
type Finalizer interface {
	Finalize(ctx context.Context) error
}

// Run drives f through its phases and cleans up exactly once after Prepare,
// whatever the outcome.  The error of the failing phase is returned together
// with any error from Cleanup.
func Run(ctx context.Context, f Feature) error {
	err := f.Prepare(ctx)
	if err == nil {
		err = f.Execute(ctx)
	}
	if fin, ok := f.(Finalizer); ok && err == nil {
		err = fin.Finalize(ctx)
	}
	return multierr.Append(err, f.Cleanup())
}

// Report summarizes one run
type Report struct {
	// ID identifies the run in the logs
	ID string `json:"id"`

	// State is the state the run ended in
	State string `json:"state"`

	Started time.Time `json:"started"`

	// ElapsedMs is the time from Prepare to the end of Cleanup
	ElapsedMs float64 `json:"elapsed_ms"`

	// Samples is the number of samples per channel played out
	Samples int `json:"samples"`

	Parameters *Parameters `json:"parameters,omitempty"`

	Warnings []string `json:"warnings,omitempty"`

	// Error is the error that failed the run
	Error string `json:"error,omitempty"`

	// CleanupError is the error returned by Cleanup
	CleanupError string `json:"cleanup_error,omitempty"`
}

// buildReport is called by Cleanup with s.mu held
func (s *Sequencer) buildReport(cleanupErr error) Report {
	r := Report{
		ID:        s.id.String(),
		State:     s.state.String(),
		Started:   s.started,
		ElapsedMs: float64(time.Since(s.started)) / float64(time.Millisecond),
		Samples:   s.nSamples,
	}
	if s.params != (Parameters{}) {
		p := s.params
		r.Parameters = &p
	}
	for _, w := range s.warnings {
		r.Warnings = append(r.Warnings, w.Error())
	}
	if s.err != nil {
		r.Error = s.err.Error()
	}
	if cleanupErr != nil {
		r.CleanupError = cleanupErr.Error()
	}
	return r
}
