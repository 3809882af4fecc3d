package photoactivation

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrConfigurationMissing is generated when a required key is absent
	// from the configuration record.  No hardware has been touched.
	ErrConfigurationMissing = errors.New("photoactivation: configuration missing")

	// ErrInvalidParameter is generated when a key is present but its value
	// cannot be used, e.g. a negative duration
	ErrInvalidParameter = errors.New("photoactivation: invalid parameter")

	// ErrUnsupportedPattern is generated for stimulation patterns other than Point
	ErrUnsupportedPattern = errors.New("photoactivation: unsupported pattern")

	// ErrHardwareAcquisition is generated when a task or channel could not be
	// created or configured
	ErrHardwareAcquisition = errors.New("photoactivation: hardware acquisition failed")

	// ErrWaveformWrite classifies a failed write of the galvo waveform.  It is
	// never returned from a phase; see WaveformWarning.
	ErrWaveformWrite = errors.New("photoactivation: waveform write failed")

	// ErrHardwareExecution is generated when the laser, the trigger pulse, or
	// the wait for the galvos fails
	ErrHardwareExecution = errors.New("photoactivation: hardware execution failed")

	// ErrBusy is generated when the sequencer or one of its channels is
	// already in use by another run
	ErrBusy = errors.New("photoactivation: hardware is busy")

	// ErrInvalidState is generated when a phase is called out of order
	ErrInvalidState = errors.New("photoactivation: invalid state")
)

// WaveformWarning records a waveform write that failed.  The run carries on
// to trigger, wait, and clean up; the warning is kept on the sequencer and
// in the run report.
type WaveformWarning struct {
	// Task is the name of the analog task the write was for
	Task string

	// Err is the error returned by the driver
	Err error

	// Time is when the write failed
	Time time.Time
}

func (w WaveformWarning) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrWaveformWrite, w.Task, w.Err)
}

// Unwrap makes errors.Is(w, ErrWaveformWrite) and errors.Is(w, w.Err) true
func (w WaveformWarning) Unwrap() []error {
	return []error{ErrWaveformWrite, w.Err}
}
