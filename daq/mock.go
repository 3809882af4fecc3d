package daq

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/nasa-jpl/photoactivation/util"
)

// OutputRange is the symmetric voltage limit of the simulated analog outputs
const OutputRange = 10.

type fault struct {
	err       error
	remaining int // < 0 => forever
}

// Mock is a simulated DAQ.  It keeps a journal of every call made to it and
// its tasks, routes digital edges from output lines to trigger inputs, and
// can be told to fail individual operations.
//
// Journal entries look like "<op> <target>[ <detail>]", e.g.
// "analog.write ao0,ao1 n=2000" or "digital.write line1 [false true]".
type Mock struct {
	sync.Mutex
	rate      float64
	acquiring bool
	routes    map[string]string
	faults    map[string]*fault
	journal   []string
	analog    []*MockAnalogTask
	digital   []*MockDigitalTask
	shared    *MockDigitalTask
}

// NewMock returns a simulated DAQ whose shared clock runs at rate Hz, with
// the imaging pipeline acquiring
func NewMock(rate float64) *Mock {
	return &Mock{
		rate:      rate,
		acquiring: true,
		routes:    make(map[string]string),
		faults:    make(map[string]*fault)}
}

// Route wires the digital output line out to the trigger input terminal in.
// Lines without a route trigger the terminal of the same name.
func (m *Mock) Route(out, in string) {
	m.Lock()
	defer m.Unlock()
	m.routes[out] = in
}

// Fail makes op fail with err until cleared with Fail(op, nil).
// op is an operation name such as "analog.write", optionally suffixed with
// a space and a target, "digital.write PXI1/port0/line0", to fail only that
// target.
func (m *Mock) Fail(op string, err error) {
	m.FailN(op, err, -1)
}

// FailN makes op fail with err the next n times it is attempted
func (m *Mock) FailN(op string, err error, n int) {
	m.Lock()
	defer m.Unlock()
	if err == nil {
		delete(m.faults, op)
		return
	}
	m.faults[op] = &fault{err: err, remaining: n}
}

// ShareLaserSwitch creates a laser switch task owned by the host on line,
// which is handed out by LaserSwitchTask
func (m *Mock) ShareLaserSwitch(line string) *MockDigitalTask {
	m.Lock()
	defer m.Unlock()
	t := &MockDigitalTask{m: m, name: "host laser switch", line: line}
	m.digital = append(m.digital, t)
	m.shared = t
	return t
}

// Record appends an entry to the journal.  It allows other simulated
// hardware to interleave its calls with the DAQ's.
func (m *Mock) Record(entry string) {
	m.Lock()
	defer m.Unlock()
	m.journal = append(m.journal, entry)
}

// Journal returns a copy of the calls made so far
func (m *Mock) Journal() []string {
	m.Lock()
	defer m.Unlock()
	out := make([]string, len(m.journal))
	copy(out, m.journal)
	return out
}

// ResetJournal clears the journal
func (m *Mock) ResetJournal() {
	m.Lock()
	defer m.Unlock()
	m.journal = nil
}

// Acquiring returns true if the imaging pipeline has not been stopped
func (m *Mock) Acquiring() bool {
	m.Lock()
	defer m.Unlock()
	return m.acquiring
}

// OpenTasks returns the names of the tasks that were created and not closed
func (m *Mock) OpenTasks() []string {
	m.Lock()
	defer m.Unlock()
	var out []string
	for _, t := range m.analog {
		if !t.closed {
			out = append(out, t.name)
		}
	}
	for _, t := range m.digital {
		if !t.closed {
			out = append(out, t.name)
		}
	}
	return out
}

// Created returns the number of tasks created with the given name
func (m *Mock) Created(name string) int {
	m.Lock()
	defer m.Unlock()
	n := 0
	for _, t := range m.analog {
		if t.name == name {
			n++
		}
	}
	for _, t := range m.digital {
		if t.name == name && t != m.shared {
			n++
		}
	}
	return n
}

// SampleRate satisfies Clock
func (m *Mock) SampleRate() float64 {
	m.Lock()
	defer m.Unlock()
	return m.rate
}

// StopAcquisition satisfies Clock
func (m *Mock) StopAcquisition() error {
	m.Lock()
	defer m.Unlock()
	if err := m.check("acquisition.stop", ""); err != nil {
		return err
	}
	m.record("acquisition.stop", "")
	m.acquiring = false
	return nil
}

// LaserSwitchTask satisfies Clock
func (m *Mock) LaserSwitchTask() (DigitalTask, bool) {
	m.Lock()
	defer m.Unlock()
	if m.shared == nil {
		return nil, false
	}
	return m.shared, true
}

// NewAnalogTask satisfies TaskFactory
func (m *Mock) NewAnalogTask(name string, channels ...string) (AnalogTask, error) {
	m.Lock()
	defer m.Unlock()
	target := strings.Join(channels, ",")
	if len(channels) == 0 {
		return nil, errors.New("daq: analog task needs at least one channel")
	}
	if err := m.check("analog.new", target); err != nil {
		return nil, err
	}
	for _, t := range m.analog {
		if t.closed {
			continue
		}
		for _, c := range t.channels {
			for _, c2 := range channels {
				if c == c2 {
					return nil, fmt.Errorf("%w: channel %s is used by task %q", ErrResourceReserved, c, t.name)
				}
			}
		}
	}
	m.record("analog.new", target)
	t := &MockAnalogTask{m: m, name: name, channels: channels}
	m.analog = append(m.analog, t)
	return t, nil
}

// NewDigitalTask satisfies TaskFactory
func (m *Mock) NewDigitalTask(name string, lines string) (DigitalTask, error) {
	m.Lock()
	defer m.Unlock()
	if err := m.check("digital.new", lines); err != nil {
		return nil, err
	}
	for _, t := range m.digital {
		if !t.closed && t.line == lines {
			return nil, fmt.Errorf("%w: line %s is used by task %q", ErrResourceReserved, lines, t.name)
		}
	}
	m.record("digital.new", lines)
	t := &MockDigitalTask{m: m, name: name, line: lines}
	m.digital = append(m.digital, t)
	return t, nil
}

// check returns the injected fault for op, if any.  The caller holds the lock.
func (m *Mock) check(op, target string) error {
	for _, key := range []string{op + " " + target, op} {
		f, ok := m.faults[key]
		if !ok {
			continue
		}
		if f.remaining == 0 {
			continue
		}
		if f.remaining > 0 {
			f.remaining--
		}
		m.record(op+"!", target)
		return f.err
	}
	return nil
}

func (m *Mock) record(op, target string, detail ...string) {
	entry := op
	if target != "" {
		entry += " " + target
	}
	if len(detail) > 0 {
		entry += " " + strings.Join(detail, " ")
	}
	m.journal = append(m.journal, entry)
}

// edge fires every armed analog task listening on the terminal wired to line.
// The caller holds the lock.
func (m *Mock) edge(line string) {
	terminal, ok := m.routes[line]
	if !ok {
		terminal = line
	}
	now := time.Now()
	for _, t := range m.analog {
		if t.armed && t.source == terminal {
			t.armed = false
			t.firedAt = now
			close(t.fired)
		}
	}
}

// MockAnalogTask is an analog output task on a Mock
type MockAnalogTask struct {
	m        *Mock
	name     string
	channels []string

	rate          float64
	mode          AcquisitionType
	samples       int
	source        string
	retriggerable bool
	buffer        []float64

	started bool
	armed   bool
	closed  bool
	fired   chan struct{}
	firedAt time.Time
}

func (t *MockAnalogTask) target() string {
	return strings.Join(t.channels, ",")
}

// Buffer returns a copy of the last buffer written to the task
func (t *MockAnalogTask) Buffer() []float64 {
	t.m.Lock()
	defer t.m.Unlock()
	out := make([]float64, len(t.buffer))
	copy(out, t.buffer)
	return out
}

// ConfigureSampleClock satisfies AnalogTask
func (t *MockAnalogTask) ConfigureSampleClock(rate float64, mode AcquisitionType, samplesPerChannel int) error {
	t.m.Lock()
	defer t.m.Unlock()
	if t.closed {
		return ErrTaskClosed
	}
	if err := t.m.check("analog.clock", t.target()); err != nil {
		return err
	}
	if rate <= 0 || samplesPerChannel <= 0 {
		return fmt.Errorf("daq: invalid sample clock, rate=%g samples=%d", rate, samplesPerChannel)
	}
	t.rate, t.mode, t.samples = rate, mode, samplesPerChannel
	t.m.record("analog.clock", t.target(), fmt.Sprintf("rate=%g mode=%s n=%d", rate, mode, samplesPerChannel))
	return nil
}

// ConfigureStartTrigger satisfies AnalogTask
func (t *MockAnalogTask) ConfigureStartTrigger(source string, retriggerable bool) error {
	t.m.Lock()
	defer t.m.Unlock()
	if t.closed {
		return ErrTaskClosed
	}
	if err := t.m.check("analog.trigger", t.target()); err != nil {
		return err
	}
	t.source, t.retriggerable = source, retriggerable
	t.m.record("analog.trigger", t.target(), fmt.Sprintf("source=%s retriggerable=%t", source, retriggerable))
	return nil
}

// Write satisfies AnalogTask
func (t *MockAnalogTask) Write(samples []float64, autoStart bool) error {
	t.m.Lock()
	if t.closed {
		t.m.Unlock()
		return ErrTaskClosed
	}
	if err := t.m.check("analog.write", t.target()); err != nil {
		t.m.Unlock()
		return err
	}
	if want := t.samples * len(t.channels); t.samples > 0 && len(samples) != want {
		t.m.Unlock()
		return fmt.Errorf("daq: buffer of %d samples does not fit %d channels x %d samples", len(samples), len(t.channels), t.samples)
	}
	for _, v := range samples {
		if math.Abs(v) > OutputRange {
			t.m.Unlock()
			return fmt.Errorf("daq: sample %g V is outside the output range of +/-%g V", v, OutputRange)
		}
	}
	t.buffer = append(t.buffer[:0], samples...)
	t.m.record("analog.write", t.target(), fmt.Sprintf("n=%d", len(samples)))
	t.m.Unlock()
	if autoStart {
		return t.Start()
	}
	return nil
}

// Start satisfies AnalogTask
func (t *MockAnalogTask) Start() error {
	t.m.Lock()
	defer t.m.Unlock()
	if t.closed {
		return ErrTaskClosed
	}
	if err := t.m.check("analog.start", t.target()); err != nil {
		return err
	}
	t.m.record("analog.start", t.target())
	t.started = true
	// every start is a new generation with its own completion
	t.fired = make(chan struct{})
	if t.source == "" {
		t.firedAt = time.Now()
		close(t.fired)
		return nil
	}
	t.armed = true
	return nil
}

// generation is the time it takes to play out the buffer.  The caller holds the lock.
func (t *MockAnalogTask) generation() time.Duration {
	if t.rate <= 0 {
		return 0
	}
	return util.SecsToDuration(float64(t.samples) / t.rate)
}

// WaitUntilDone satisfies AnalogTask
func (t *MockAnalogTask) WaitUntilDone(timeout time.Duration) error {
	t.m.Lock()
	if t.closed {
		t.m.Unlock()
		return ErrTaskClosed
	}
	if err := t.m.check("analog.wait", t.target()); err != nil {
		t.m.Unlock()
		return err
	}
	if !t.started {
		t.m.Unlock()
		return ErrNotStarted
	}
	t.m.record("analog.wait", t.target())
	fired := t.fired
	t.m.Unlock()

	deadline := time.Now().Add(timeout)
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-fired:
	case <-timer.C:
		return ErrTimeout
	}

	t.m.Lock()
	done := t.firedAt.Add(t.generation())
	t.m.Unlock()
	if done.After(deadline) {
		time.Sleep(time.Until(deadline))
		return ErrTimeout
	}
	time.Sleep(time.Until(done))
	return nil
}

// Stop satisfies AnalogTask
func (t *MockAnalogTask) Stop() error {
	t.m.Lock()
	defer t.m.Unlock()
	if t.closed {
		return ErrTaskClosed
	}
	if err := t.m.check("analog.stop", t.target()); err != nil {
		return err
	}
	t.m.record("analog.stop", t.target())
	t.started, t.armed = false, false
	return nil
}

// Close satisfies AnalogTask
func (t *MockAnalogTask) Close() error {
	t.m.Lock()
	defer t.m.Unlock()
	if t.closed {
		return ErrTaskClosed
	}
	if err := t.m.check("analog.close", t.target()); err != nil {
		return err
	}
	t.m.record("analog.close", t.target())
	t.started, t.armed, t.closed = false, false, true
	return nil
}

// MockDigitalTask is a digital output task on a Mock
type MockDigitalTask struct {
	m       *Mock
	name    string
	line    string
	level   bool
	started bool
	closed  bool
}

// Level returns the last level written to the line
func (t *MockDigitalTask) Level() bool {
	t.m.Lock()
	defer t.m.Unlock()
	return t.level
}

// Closed returns true if the task was closed
func (t *MockDigitalTask) Closed() bool {
	t.m.Lock()
	defer t.m.Unlock()
	return t.closed
}

// Write satisfies DigitalTask
func (t *MockDigitalTask) Write(levels []bool, autoStart bool) error {
	t.m.Lock()
	defer t.m.Unlock()
	if t.closed {
		return ErrTaskClosed
	}
	if err := t.m.check("digital.write", t.line); err != nil {
		return err
	}
	t.m.record("digital.write", t.line, fmt.Sprint(levels))
	if autoStart {
		t.started = true
	}
	if !t.started {
		return nil
	}
	for _, lvl := range levels {
		if lvl && !t.level {
			t.m.edge(t.line)
		}
		t.level = lvl
	}
	return nil
}

// Stop satisfies DigitalTask
func (t *MockDigitalTask) Stop() error {
	t.m.Lock()
	defer t.m.Unlock()
	if t.closed {
		return ErrTaskClosed
	}
	if err := t.m.check("digital.stop", t.line); err != nil {
		return err
	}
	t.m.record("digital.stop", t.line)
	t.started = false
	return nil
}

// Close satisfies DigitalTask
func (t *MockDigitalTask) Close() error {
	t.m.Lock()
	defer t.m.Unlock()
	if t.closed {
		return ErrTaskClosed
	}
	if err := t.m.check("digital.close", t.line); err != nil {
		return err
	}
	t.m.record("digital.close", t.line)
	t.started, t.closed = false, true
	return nil
}
