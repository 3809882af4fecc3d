// Package daq describes the timed analog and digital output tasks used to
// steer galvos and switch TTL lines, in the shape exposed by NI-DAQmx style
// drivers.
//
// Drivers are external to this module; the simulated device in mock.go
// satisfies the same interfaces for tests and dry runs.
package daq

import (
	"errors"
	"time"
)

var (
	// ErrTimeout is generated when a task does not finish generating samples
	// within the allotted time
	ErrTimeout = errors.New("daq: timed out waiting for task to complete")

	// ErrResourceReserved is generated when a channel, line, or timing engine
	// is still held by another task.  It is usually transient after the
	// owner of the resource has been asked to stop.
	ErrResourceReserved = errors.New("daq: resource is reserved by another task")

	// ErrTaskClosed is generated when a closed task is used
	ErrTaskClosed = errors.New("daq: task is closed")

	// ErrNotStarted is generated when a task is waited on before it was started
	ErrNotStarted = errors.New("daq: task was never started")
)

// AcquisitionType is the sample mode of a hardware timed task
type AcquisitionType int

const (
	// Finite tasks generate a fixed number of samples and then stop
	Finite AcquisitionType = iota

	// Continuous tasks regenerate their buffer until stopped
	Continuous
)

func (a AcquisitionType) String() string {
	if a == Continuous {
		return "continuous"
	}
	return "finite"
}

// AnalogTask is a hardware timed analog output task spanning one or more
// channels.  Multi-channel buffers are interleaved, one sample per channel
// per clock tick.
type AnalogTask interface {
	// ConfigureSampleClock sets the rate, sample mode, and samples per channel
	ConfigureSampleClock(rate float64, mode AcquisitionType, samplesPerChannel int) error

	// ConfigureStartTrigger arms the task to start on a digital edge from source
	ConfigureStartTrigger(source string, retriggerable bool) error

	// Write loads samples into the task buffer, optionally starting the task
	Write(samples []float64, autoStart bool) error

	// Start begins the task, or arms it if a start trigger is configured
	Start() error

	// WaitUntilDone blocks until generation is complete or timeout elapses,
	// in which case ErrTimeout is returned
	WaitUntilDone(timeout time.Duration) error

	// Stop halts generation
	Stop() error

	// Close releases the task and its channels
	Close() error
}

// DigitalTask is a software timed digital output task on one line or port
type DigitalTask interface {
	// Write drives the line through levels in order.  A single level is a
	// one element slice.
	Write(levels []bool, autoStart bool) error

	// Stop halts the task
	Stop() error

	// Close releases the task and its lines
	Close() error
}

// TaskFactory creates tasks on a device
type TaskFactory interface {
	// NewAnalogTask creates an analog output task with one voltage channel
	// per entry in channels, in order
	NewAnalogTask(name string, channels ...string) (AnalogTask, error)

	// NewDigitalTask creates a digital output task on lines
	NewDigitalTask(name string, lines string) (DigitalTask, error)
}

// Clock is the acquisition clock shared with the imaging pipeline
type Clock interface {
	// SampleRate is the rate of the shared sample clock, in Hz
	SampleRate() float64

	// StopAcquisition asks the imaging pipeline to release the timing engine
	StopAcquisition() error

	// LaserSwitchTask returns the laser path switch task owned by the host,
	// if it has one.  Tasks returned here must not be closed by the caller.
	LaserSwitchTask() (DigitalTask, bool)
}

// Device is a DAQ that can create tasks and shares its clock with the host
type Device interface {
	TaskFactory
	Clock
}
