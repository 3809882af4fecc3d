// Package photoactivation steers a pair of galvos to a marked position,
// switches a laser onto the photoactivation path, and fires it for a set
// duration, in lock step with the acquisition clock of the microscope.
//
// A run is driven by the host through Prepare, Execute, an optional
// Finalize, and Cleanup.  Cleanup must follow every Prepare, whether or not
// the phases in between succeeded; Run does this for callers that have no
// scheduler of their own.
package photoactivation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/nasa-jpl/photoactivation/daq"
	"github.com/nasa-jpl/photoactivation/lasers"
	"github.com/nasa-jpl/photoactivation/util"
)

const (
	// DefaultSettleDelay is how long the laser path switch is given to move
	// before anything else happens
	DefaultSettleDelay = 100 * time.Millisecond

	// DefaultWaitTimeout is the slack allowed on top of the stimulation
	// duration before the galvos are declared hung
	DefaultWaitTimeout = time.Second

	// DefaultOutputRange is the symmetric limit of the galvo drive, volts
	DefaultOutputRange = 10.

	xGalvoTask  = "X-Galvo - Photoactivation"
	yGalvoTask  = "Y-Galvo - Photoactivation"
	xyGalvoTask = "XY-Galvo - Photoactivation"
	switchTask  = "Laser Switch - Photoactivation"
	triggerTask = "Trigger - Photoactivation"
)

// pulse is written to the trigger line to release the armed galvo tasks
var pulse = []bool{false, true, true, true, false}

// ErrRunInProgress is generated when Prepare is called before the previous
// run on the same sequencer was cleaned up
var ErrRunInProgress = fmt.Errorf("%w: a run is already in progress", ErrBusy)

// State is the phase of a run
type State int

const (
	// Idle is the state before Prepare and after an aborted run is cleaned up
	Idle State = iota

	// Prepared means the galvos are armed and waiting on the trigger
	Prepared

	// Triggered means the laser is on and the trigger pulse has been sent
	Triggered

	// Done means the stimulation completed
	Done

	// Failed means a phase returned a fatal error
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Prepared:
		return "prepared"
	case Triggered:
		return "triggered"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// NodeType is how the host schedules a feature
type NodeType int

const (
	// OneStep features run their sequence once per invocation
	OneStep NodeType = iota

	// MultiStep features repeat across acquisition frames until told to end
	MultiStep
)

func (n NodeType) String() string {
	if n == MultiStep {
		return "multi-step"
	}
	return "one-step"
}

// Node describes how the host should schedule a feature
type Node struct {
	Type          NodeType `json:"node_type"`
	DeviceRelated bool     `json:"device_related"`
	NeedResponse  bool     `json:"need_response"`
}

// Options tune a Sequencer.  The zero value is usable.
type Options struct {
	// SettleDelay follows engaging the laser path switch
	SettleDelay time.Duration

	// WaitTimeout is added to the stimulation duration to bound the wait for
	// the galvos to finish
	WaitTimeout time.Duration

	// OutputRange bounds the galvo voltage of a run.  Positions beyond it
	// are refused before any hardware is touched.
	OutputRange float64

	// DualChannel drives both galvos from one two channel task instead of
	// one task per axis
	DualChannel bool

	// Logger receives progress and warnings.  Defaults to log.Default().
	Logger *log.Logger

	// Metrics, if not nil, is updated at the end of every run
	Metrics *Metrics

	// Retry returns the policy used when a channel is still reserved by
	// the imaging pipeline.  Defaults to a 3 s exponential backoff.
	Retry func() backoff.BackOff
}

type galvo struct {
	name string
	task daq.AnalogTask
}

// Sequencer runs photoactivation events.  One sequencer runs one event at a
// time; sequencers that share channels exclude each other.
type Sequencer struct {
	// Config is read once at the start of every run
	Config Source

	// DAQ creates the tasks and provides the sample clock
	DAQ daq.Device

	// Lasers are addressed by the configured wavelength
	Lasers lasers.Bank

	Options

	runMu sync.Mutex // held by Run

	mu       sync.Mutex
	state    State
	active   bool
	refused  int // Prepare calls refused while active, each owed a Cleanup
	warnings []WaveformWarning
	report   Report

	// the fields below belong to the goroutine between Prepare and Cleanup
	id           uuid.UUID
	started      time.Time
	params       Parameters
	nSamples     int
	wave         Waveform
	laser        lasers.Laser
	laserOn      bool
	switchTask   daq.DigitalTask
	switchShared bool
	trigger      daq.DigitalTask
	galvos       []galvo
	err          error

	// the laser switch task this sequencer created, kept open between runs
	ownedSwitch     daq.DigitalTask
	ownedSwitchLine string
}

// New returns a sequencer with defaults filled in for unset options
func New(cfg Source, dev daq.Device, bank lasers.Bank, opts Options) *Sequencer {
	if opts.SettleDelay == 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	if opts.WaitTimeout == 0 {
		opts.WaitTimeout = DefaultWaitTimeout
	}
	if opts.OutputRange == 0 {
		opts.OutputRange = DefaultOutputRange
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Sequencer{Config: cfg, DAQ: dev, Lasers: bank, Options: opts}
}

func (s *Sequencer) logf(format string, a ...interface{}) {
	if s.Logger == nil {
		log.Printf(format, a...)
		return
	}
	s.Logger.Printf(format, a...)
}

// Node reports that the sequencer is a one-step, device related feature
func (s *Sequencer) Node() Node {
	return Node{Type: OneStep, DeviceRelated: true, NeedResponse: true}
}

// State returns the phase of the current or most recent run
func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Sequencer) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

// Warnings returns the waveform write failures of the current or most
// recent run
func (s *Sequencer) Warnings() []WaveformWarning {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]WaveformWarning, len(s.warnings))
	copy(out, s.warnings)
	return out
}

// LastReport returns the report of the most recently cleaned up run
func (s *Sequencer) LastReport() Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

// fail records err as the reason the run failed and returns it
func (s *Sequencer) fail(err error) error {
	if s.err == nil {
		s.err = err
	}
	s.setState(Failed)
	s.logf("photoactivation %s: %v", s.id, err)
	return err
}

func (s *Sequencer) warn(task string, err error) {
	w := WaveformWarning{Task: task, Err: err, Time: time.Now()}
	s.mu.Lock()
	s.warnings = append(s.warnings, w)
	s.mu.Unlock()
	s.logf("photoactivation %s: warning, continuing without a waveform: %v", s.id, w)
	s.Metrics.warn()
}

// retry calls op until it succeeds, fails with something other than a
// reserved resource, or the backoff policy gives up
func (s *Sequencer) retry(op func() error) error {
	var b backoff.BackOff
	if s.Retry != nil {
		b = s.Retry()
	} else {
		// the imaging pipeline can take a moment to give up the timing engine
		b = &backoff.ExponentialBackOff{
			InitialInterval:     25 * time.Millisecond,
			RandomizationFactor: 0.,
			Multiplier:          2.,
			MaxInterval:         1 * time.Second,
			MaxElapsedTime:      3 * time.Second,
			Clock:               backoff.SystemClock}
	}
	return backoff.Retry(func() error {
		err := op()
		if err != nil && !errors.Is(err, daq.ErrResourceReserved) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}

func (s *Sequencer) newDigitalTask(name, line string) (daq.DigitalTask, error) {
	var t daq.DigitalTask
	err := s.retry(func() (err error) {
		t, err = s.DAQ.NewDigitalTask(name, line)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: creating %s on %s: %w", ErrHardwareAcquisition, name, line, err)
	}
	return t, nil
}

// Prepare reads the configuration, engages the laser path, and arms the
// galvos on the trigger input.  Nothing touches hardware until the
// configuration has been read and the waveform computed.
//
// Cleanup must be called after Prepare, even if it fails.  The Cleanup that
// follows a Prepare refused with ErrRunInProgress does nothing, so the run
// in progress is left alone.
func (s *Sequencer) Prepare(ctx context.Context) error {
	s.mu.Lock()
	if s.active {
		st := s.state
		s.refused++
		s.mu.Unlock()
		return fmt.Errorf("%w (%s)", ErrRunInProgress, st)
	}
	s.active = true
	s.state = Idle
	s.warnings = nil
	s.mu.Unlock()

	s.id = uuid.New()
	s.started = time.Now()
	s.params, s.nSamples, s.wave = Parameters{}, 0, Waveform{}
	s.laser, s.laserOn = nil, false
	s.switchTask, s.switchShared, s.trigger, s.galvos = nil, false, nil, nil
	s.err = nil
	s.Metrics.begin()

	if err := s.prepare(ctx); err != nil {
		return s.fail(err)
	}
	s.setState(Prepared)
	s.logf("photoactivation %s: armed %d samples per axis at (%g, %g) um with %d nm at %g%%",
		s.id, s.nSamples, s.params.LocationX, s.params.LocationY, s.params.Wavelength, s.params.LaserPower)
	return nil
}

func (s *Sequencer) prepare(ctx context.Context) error {
	p, err := LoadParameters(s.Config.Snapshot())
	if err != nil {
		return err
	}
	if err = p.Validate(); err != nil {
		return err
	}
	s.params = p
	s.laser, err = s.Lasers.Get(p.Wavelength)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}
	rate := s.DAQ.SampleRate()
	s.nSamples = SampleCount(p.Duration, rate)
	if s.nSamples < 1 {
		return fmt.Errorf("%w: %d ms at %g Hz is less than one sample", ErrInvalidParameter, p.Duration, rate)
	}
	if s.nSamples > MaxSamples {
		return fmt.Errorf("%w: %d ms at %g Hz is more than %d samples", ErrInvalidParameter, p.Duration, rate, MaxSamples)
	}
	s.wave, err = BuildWaveform(p, s.nSamples)
	if err != nil {
		return err
	}
	if peak := s.wave.Peak(); !(peak <= s.OutputRange) {
		return fmt.Errorf("%w: (%g, %g) um needs %g V, beyond the +/-%g V galvo range",
			ErrInvalidParameter, p.LocationX, p.LocationY, peak, s.OutputRange)
	}

	err = claim(s.id, p.XPinout, p.YPinout, p.PhotoactivationTrigger, p.PhotoactivationSource)
	if err != nil {
		return err
	}
	// the galvo and trigger tasks need the timing engine the camera uses
	if err = s.DAQ.StopAcquisition(); err != nil {
		return fmt.Errorf("%w: stopping acquisition: %w", ErrHardwareAcquisition, err)
	}
	if err = s.engageLaserSwitch(ctx); err != nil {
		return err
	}
	s.trigger, err = s.newDigitalTask(triggerTask, p.PhotoactivationTrigger)
	if err != nil {
		return err
	}
	return s.armGalvos(rate)
}

// engageLaserSwitch moves the laser onto the photoactivation path.  The
// host's switch task is used if it has one; otherwise the sequencer's own,
// which is created on first use and kept open between runs.
func (s *Sequencer) engageLaserSwitch(ctx context.Context) error {
	line := s.params.LaserPortSwitcher
	if t, ok := s.DAQ.LaserSwitchTask(); ok {
		s.switchTask, s.switchShared = t, true
	} else {
		if s.ownedSwitch != nil && s.ownedSwitchLine != line {
			if err := s.ownedSwitch.Close(); err != nil {
				s.logf("photoactivation %s: closing laser switch on %s: %v", s.id, s.ownedSwitchLine, err)
			}
			s.ownedSwitch = nil
		}
		if s.ownedSwitch == nil {
			t, err := s.newDigitalTask(switchTask, line)
			if err != nil {
				return err
			}
			s.ownedSwitch, s.ownedSwitchLine = t, line
		}
		s.switchTask = s.ownedSwitch
	}
	if err := s.switchTask.Write([]bool{true}, true); err != nil {
		return fmt.Errorf("%w: engaging laser switch on %s: %w", ErrHardwareAcquisition, line, err)
	}
	timer := time.NewTimer(s.SettleDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("photoactivation: waiting for the laser switch to settle: %w", ctx.Err())
	}
}

// armGalvos creates, loads, and starts the galvo tasks so that they wait on
// the trigger input.  A failed waveform write is a warning, not an error.
func (s *Sequencer) armGalvos(rate float64) error {
	p := s.params
	type plan struct {
		name     string
		channels []string
		buf      []float64
	}
	plans := []plan{
		{xGalvoTask, []string{p.XPinout}, s.wave.X},
		{yGalvoTask, []string{p.YPinout}, s.wave.Y},
	}
	if s.DualChannel {
		plans = []plan{{xyGalvoTask, []string{p.XPinout, p.YPinout}, s.wave.Interleaved()}}
	}
	for _, pl := range plans {
		var task daq.AnalogTask
		err := s.retry(func() (err error) {
			task, err = s.DAQ.NewAnalogTask(pl.name, pl.channels...)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: creating %s: %w", ErrHardwareAcquisition, pl.name, err)
		}
		s.galvos = append(s.galvos, galvo{name: pl.name, task: task})

		err = task.ConfigureSampleClock(rate, daq.Finite, s.nSamples)
		if err != nil {
			return fmt.Errorf("%w: configuring sample clock of %s: %w", ErrHardwareAcquisition, pl.name, err)
		}
		if err = task.Write(pl.buf, false); err != nil {
			s.warn(pl.name, err)
		}
		err = task.ConfigureStartTrigger(p.PhotoactivationSource, false)
		if err != nil {
			return fmt.Errorf("%w: configuring start trigger of %s: %w", ErrHardwareAcquisition, pl.name, err)
		}
		if err = task.Start(); err != nil {
			return fmt.Errorf("%w: arming %s: %w", ErrHardwareAcquisition, pl.name, err)
		}
	}
	return nil
}

// Execute sets the laser power, turns the laser on, pulses the trigger line,
// waits for the galvos to finish, and turns the laser off.  It blocks for
// about the stimulation duration and is not interrupted by ctx once the
// laser is on.
func (s *Sequencer) Execute(ctx context.Context) error {
	if st := s.State(); st != Prepared {
		return fmt.Errorf("%w: execute called while %s", ErrInvalidState, st)
	}
	if err := ctx.Err(); err != nil {
		return s.fail(err)
	}
	p := s.params
	if err := s.laser.SetPower(p.LaserPower); err != nil {
		return s.fail(fmt.Errorf("%w: setting %d nm laser to %g%%: %w", ErrHardwareExecution, p.Wavelength, p.LaserPower, err))
	}
	// assume the laser may be on even if the call failed
	s.laserOn = true
	if err := s.laser.SetEmission(true); err != nil {
		return s.fail(fmt.Errorf("%w: turning on %d nm laser: %w", ErrHardwareExecution, p.Wavelength, err))
	}
	if err := s.trigger.Write(pulse, true); err != nil {
		return s.fail(fmt.Errorf("%w: pulsing trigger on %s: %w", ErrHardwareExecution, p.PhotoactivationTrigger, err))
	}
	s.setState(Triggered)

	timeout := util.MsToDuration(p.Duration) + s.WaitTimeout
	var waitErr error
	for _, g := range s.galvos {
		if err := g.task.WaitUntilDone(timeout); err != nil {
			waitErr = fmt.Errorf("%w: waiting for %s: %w", ErrHardwareExecution, g.name, err)
			break
		}
	}
	offErr := s.laserOff()
	if waitErr != nil {
		return s.fail(waitErr)
	}
	if offErr != nil {
		return s.fail(offErr)
	}
	s.setState(Done)
	s.logf("photoactivation %s: done", s.id)
	return nil
}

func (s *Sequencer) laserOff() error {
	if !s.laserOn {
		return nil
	}
	if err := s.laser.SetEmission(false); err != nil {
		return fmt.Errorf("%w: turning off %d nm laser: %w", ErrHardwareExecution, s.params.Wavelength, err)
	}
	s.laserOn = false
	return nil
}

// Finalize ends a triggered run.  Execute already turns the laser off, so
// for a completed run this does nothing; it exists for hosts that schedule
// an end phase.
func (s *Sequencer) Finalize(ctx context.Context) error {
	switch st := s.State(); st {
	case Done:
		return nil
	case Triggered:
		if err := s.laserOff(); err != nil {
			return s.fail(err)
		}
		s.setState(Done)
		return nil
	default:
		return fmt.Errorf("%w: finalize called while %s", ErrInvalidState, st)
	}
}

func released(name, op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("photoactivation: %s %s: %w", op, name, err)
}

// Cleanup releases everything the run acquired, in order: the laser if it
// is still on, the galvo tasks, the laser path switch (returned to false and
// stopped, never closed), and the trigger task.  Every step is attempted;
// the errors of all of them are returned together.  Calling Cleanup without
// a run in progress, or after a refused Prepare, does nothing.
//
// The phases of one sequencer are driven from one goroutine; concurrent
// callers go through Sequencer.Run.
func (s *Sequencer) Cleanup() error {
	s.mu.Lock()
	if s.refused > 0 {
		s.refused--
		s.mu.Unlock()
		return nil
	}
	active := s.active
	s.mu.Unlock()
	if !active {
		return nil
	}

	var err error
	err = multierr.Append(err, s.laserOff())
	for _, g := range s.galvos {
		err = multierr.Append(err, released(g.name, "stop", g.task.Stop()))
		err = multierr.Append(err, released(g.name, "close", g.task.Close()))
	}
	if s.switchTask != nil {
		err = multierr.Append(err, released(switchTask, "disengage", s.switchTask.Write([]bool{false}, true)))
		err = multierr.Append(err, released(switchTask, "stop", s.switchTask.Stop()))
	}
	if s.trigger != nil {
		err = multierr.Append(err, released(triggerTask, "stop", s.trigger.Stop()))
		err = multierr.Append(err, released(triggerTask, "close", s.trigger.Close()))
	}
	release(s.id)
	s.galvos, s.switchTask, s.trigger = nil, nil, nil

	s.mu.Lock()
	if s.state == Prepared || s.state == Triggered {
		s.state = Idle
	}
	s.active = false
	s.report = s.buildReport(err)
	report := s.report
	s.mu.Unlock()

	s.Metrics.observe(report)
	if err != nil {
		s.logf("photoactivation %s: cleanup: %v", s.id, err)
	}
	return err
}

// Busy returns ErrRunInProgress between Prepare and Cleanup of a run and
// nil otherwise.  It gates manual control of the lasers.
func (s *Sequencer) Busy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return ErrRunInProgress
	}
	return nil
}

// Close releases the laser switch task the sequencer created for itself.
// It is for shutdown, after the last run.
func (s *Sequencer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return ErrRunInProgress
	}
	if s.ownedSwitch == nil {
		return nil
	}
	err := s.ownedSwitch.Close()
	s.ownedSwitch = nil
	return err
}

// Run performs one complete run on the sequencer.  A second call while a
// run is in progress fails immediately with ErrBusy.
func (s *Sequencer) Run(ctx context.Context) (Report, error) {
	if !s.runMu.TryLock() {
		return Report{}, ErrRunInProgress
	}
	defer s.runMu.Unlock()
	err := Run(ctx, s)
	return s.LastReport(), err
}
