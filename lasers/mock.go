package lasers

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Recorder receives a line for every call made to a mock laser
type Recorder interface {
	Record(string)
}

// Mock is a simulated laser
type Mock struct {
	sync.Mutex
	wavelength int
	power      float64
	emission   bool
	onSince    time.Time
	onTime     time.Duration
	rec        Recorder
}

// NewMock returns a simulated laser at wavelength nm.  rec may be nil.
func NewMock(wavelength int, rec Recorder) *Mock {
	return &Mock{wavelength: wavelength, rec: rec}
}

func (m *Mock) record(op string, detail ...interface{}) {
	if m.rec == nil {
		return
	}
	entry := fmt.Sprintf("laser.%s %d", op, m.wavelength)
	for _, d := range detail {
		entry += fmt.Sprintf(" %v", d)
	}
	m.rec.Record(entry)
}

// SetEmission satisfies laser.Controller
func (m *Mock) SetEmission(b bool) error {
	m.Lock()
	defer m.Unlock()
	if b {
		m.record("on")
	} else {
		m.record("off")
	}
	// if we are already emitting and the user wants us to emit, do nothing
	if m.emission == b {
		return nil
	}
	if b {
		m.onSince = time.Now()
	} else {
		m.onTime += time.Since(m.onSince)
	}
	m.emission = b
	return nil
}

// GetEmission satisfies laser.Controller
func (m *Mock) GetEmission() (bool, error) {
	m.Lock()
	defer m.Unlock()
	return m.emission, nil
}

// SetPower satisfies laser.PowerController
func (m *Mock) SetPower(p float64) error {
	m.Lock()
	defer m.Unlock()
	if p > 100 || p < 0 {
		return errors.New("lasers: commanded power was outside the range [0,100]")
	}
	m.record("power", p)
	m.power = p
	return nil
}

// GetPower satisfies laser.PowerController
func (m *Mock) GetPower() (float64, error) {
	m.Lock()
	defer m.Unlock()
	return m.power, nil
}

// OnTime is the total time the laser has been emitting, excluding a
// currently running emission
func (m *Mock) OnTime() time.Duration {
	m.Lock()
	defer m.Unlock()
	return m.onTime
}
