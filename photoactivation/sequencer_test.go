package photoactivation

import (
	"context"
	"errors"
	"io"
	"log"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nasa-jpl/photoactivation/daq"
	"github.com/nasa-jpl/photoactivation/lasers"
)

const (
	xLine       = "PCIE6738/ao0"
	yLine       = "PCIE6738/ao1"
	switchLine  = "PCIE6738/port0/line0"
	triggerLine = "PCIE6738/port0/line1"
	source      = "/PCIE6738/PFI4"
)

type rig struct {
	dev   *daq.Mock
	laser *lasers.Mock
	store *Store
	seq   *Sequencer
}

// newRig builds a sequencer on a simulated DAQ at rate Hz with the trigger
// line wired to the trigger input, set up for a 100 ms point at (20, -10)
func newRig(t *testing.T, rate float64, opts Options) *rig {
	t.Helper()
	dev := daq.NewMock(rate)
	dev.Route(triggerLine, source)
	l := lasers.NewMock(488, dev)
	store := NewStore(DefaultRecord())
	store.Set(KeyDuration, 100)
	store.Mark(20, -10)
	if opts.SettleDelay == 0 {
		opts.SettleDelay = time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	seq := New(store, dev, lasers.Bank{488: l}, opts)
	t.Cleanup(func() {
		seq.Cleanup()
		seq.Close()
	})
	return &rig{dev: dev, laser: l, store: store, seq: seq}
}

func count(journal []string, entry string) int {
	n := 0
	for _, e := range journal {
		if e == entry {
			n++
		}
	}
	return n
}

func prefixed(journal []string, prefix string) []string {
	var out []string
	for _, e := range journal {
		if strings.HasPrefix(e, prefix) {
			out = append(out, e)
		}
	}
	return out
}

func TestPointRunEndToEnd(t *testing.T) {
	r := newRig(t, 10000, Options{})
	if err := Run(context.Background(), r.seq); err != nil {
		t.Fatal(err)
	}
	want := []string{
		"acquisition.stop",
		"digital.new " + switchLine,
		"digital.write " + switchLine + " [true]",
		"digital.new " + triggerLine,
		"analog.new " + xLine,
		"analog.clock " + xLine + " rate=10000 mode=finite n=1000",
		"analog.write " + xLine + " n=1000",
		"analog.trigger " + xLine + " source=" + source + " retriggerable=false",
		"analog.start " + xLine,
		"analog.new " + yLine,
		"analog.clock " + yLine + " rate=10000 mode=finite n=1000",
		"analog.write " + yLine + " n=1000",
		"analog.trigger " + yLine + " source=" + source + " retriggerable=false",
		"analog.start " + yLine,
		"laser.power 488 10",
		"laser.on 488",
		"digital.write " + triggerLine + " [false true true true false]",
		"analog.wait " + xLine,
		"analog.wait " + yLine,
		"laser.off 488",
		"analog.stop " + xLine,
		"analog.close " + xLine,
		"analog.stop " + yLine,
		"analog.close " + yLine,
		"digital.write " + switchLine + " [false]",
		"digital.stop " + switchLine,
		"digital.stop " + triggerLine,
		"digital.close " + triggerLine,
	}
	if diff := cmp.Diff(want, r.dev.Journal()); diff != "" {
		t.Errorf("journal mismatch (-want +got):\n%s", diff)
	}
	if st := r.seq.State(); st != Done {
		t.Errorf("expected Done, got %s", st)
	}
	if on, _ := r.laser.GetEmission(); on {
		t.Error("expected the laser to be off")
	}
	if on := r.laser.OnTime(); on < 100*time.Millisecond {
		t.Errorf("expected the laser to be on for the whole stimulation, was on for %v", on)
	}
	if r.dev.Acquiring() {
		t.Error("expected acquisition to have been stopped")
	}
	if diff := cmp.Diff([]string{switchTask}, r.dev.OpenTasks()); diff != "" {
		t.Errorf("expected only the laser switch to stay open (-want +got):\n%s", diff)
	}
	rep := r.seq.LastReport()
	if rep.State != "done" || rep.Samples != 1000 || rep.Error != "" || rep.Parameters == nil {
		t.Errorf("unexpected report %+v", rep)
	}
}

func TestWaveformMatchesSnapshotTakenAtPrepare(t *testing.T) {
	r := newRig(t, 10000, Options{})
	if err := r.seq.Prepare(context.Background()); err != nil {
		t.Fatal(err)
	}
	r.store.Mark(100, 100)
	if len(r.seq.galvos) != 2 {
		t.Fatalf("expected two galvo tasks, got %d", len(r.seq.galvos))
	}
	for i, want := range []float64{1.0, -0.5} {
		buf := r.seq.galvos[i].task.(*daq.MockAnalogTask).Buffer()
		if len(buf) != 1000 {
			t.Fatalf("axis %d: expected 1000 samples, got %d", i, len(buf))
		}
		for j, v := range buf {
			if math.Abs(v-want) > 1e-9 {
				t.Fatalf("axis %d sample %d: expected %g V, got %g V", i, j, want, v)
			}
		}
	}
	if err := r.seq.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := r.seq.Cleanup(); err != nil {
		t.Fatal(err)
	}
	if p := r.seq.LastReport().Parameters; p.LocationX != 20 || p.LocationY != -10 {
		t.Errorf("expected the run to report the location it started with, got (%g, %g)", p.LocationX, p.LocationY)
	}
}

func TestDualChannelInterleaves(t *testing.T) {
	r := newRig(t, 10000, Options{DualChannel: true})
	if err := r.seq.Prepare(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(r.seq.galvos) != 1 {
		t.Fatalf("expected one galvo task, got %d", len(r.seq.galvos))
	}
	buf := r.seq.galvos[0].task.(*daq.MockAnalogTask).Buffer()
	if len(buf) != 2000 {
		t.Fatalf("expected 2000 interleaved samples, got %d", len(buf))
	}
	if math.Abs(buf[0]-1.0) > 1e-9 || math.Abs(buf[1]+0.5) > 1e-9 {
		t.Errorf("expected x0=1.0 y0=-0.5, got %g %g", buf[0], buf[1])
	}
	if err := r.seq.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := r.seq.Cleanup(); err != nil {
		t.Fatal(err)
	}
	j := r.dev.Journal()
	if count(j, "analog.write "+xLine+","+yLine+" n=2000") != 1 {
		t.Errorf("expected one interleaved write, journal:\n%s", strings.Join(j, "\n"))
	}
}

func TestRefusedConfigurationTouchesNoHardware(t *testing.T) {
	cases := []struct {
		name string
		rate float64
		edit func(*Store)
		want error
	}{
		{"unsupported pattern", 0, func(s *Store) { s.Set(KeyPattern, "Circle") }, ErrUnsupportedPattern},
		{"unknown pattern", 0, func(s *Store) { s.Set(KeyPattern, "zigzag") }, ErrUnsupportedPattern},
		{"missing key", 0, func(s *Store) { s.Delete(KeyDuration) }, ErrConfigurationMissing},
		{"zero duration", 0, func(s *Store) { s.Set(KeyDuration, 0) }, ErrInvalidParameter},
		{"excess power", 0, func(s *Store) { s.Set(KeyLaserPower, 150.) }, ErrInvalidParameter},
		{"no such laser", 0, func(s *Store) { s.Set(KeyWavelength, 405) }, ErrInvalidParameter},
		{"too short for one sample", 100, func(s *Store) { s.Set(KeyDuration, 1) }, ErrInvalidParameter},
		{"huge duration", 100000, func(s *Store) { s.Set(KeyDuration, 1e12) }, ErrInvalidParameter},
		{"too many samples", 100000, func(s *Store) { s.Set(KeyDuration, MaxDuration) }, ErrInvalidParameter},
		{"NaN power", 0, func(s *Store) { s.Set(KeyLaserPower, "NaN") }, ErrInvalidParameter},
		{"infinite location", 0, func(s *Store) { s.Set(KeyLocationX, math.Inf(1)) }, ErrInvalidParameter},
		{"beyond galvo range", 0, func(s *Store) { s.Mark(300, 0) }, ErrInvalidParameter},
		{"NaN scaling", 0, func(s *Store) { s.Set(KeyYScalingFactor, math.NaN()) }, ErrInvalidParameter},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rate := c.rate
			if rate == 0 {
				rate = 10000
			}
			r := newRig(t, rate, Options{})
			c.edit(r.store)
			err := Run(context.Background(), r.seq)
			if !errors.Is(err, c.want) {
				t.Fatalf("expected %v, got %v", c.want, err)
			}
			if j := r.dev.Journal(); len(j) != 0 {
				t.Errorf("expected no hardware calls, got %v", j)
			}
			if !r.dev.Acquiring() {
				t.Error("expected acquisition to be left running")
			}
			if st := r.seq.State(); st != Failed {
				t.Errorf("expected Failed, got %s", st)
			}
		})
	}
}

func TestRefusedConfigurationDoesNotWedge(t *testing.T) {
	r := newRig(t, 100000, Options{})
	r.store.Set(KeyDuration, 1e12)
	if err := Run(context.Background(), r.seq); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
	r.store.Set(KeyDuration, 10)
	if err := Run(context.Background(), r.seq); err != nil {
		t.Fatalf("expected the next run to go ahead, got %v", err)
	}
	if st := r.seq.State(); st != Done {
		t.Errorf("expected Done, got %s", st)
	}
}

func TestSharedLaserSwitchIsNeverClosed(t *testing.T) {
	r := newRig(t, 10000, Options{})
	r.store.Set(KeyDuration, 10)
	shared := r.dev.ShareLaserSwitch(switchLine)
	for i := 0; i < 2; i++ {
		if err := Run(context.Background(), r.seq); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	if n := r.dev.Created(switchTask); n != 0 {
		t.Errorf("expected no laser switch task to be created, got %d", n)
	}
	if shared.Closed() {
		t.Error("expected the host's laser switch to stay open")
	}
	if shared.Level() {
		t.Error("expected the laser switch to be returned to false")
	}
	if err := r.seq.Close(); err != nil {
		t.Error(err)
	}
	if shared.Closed() {
		t.Error("expected Close to leave the host's laser switch alone")
	}
}

func TestOwnedLaserSwitchIsReused(t *testing.T) {
	r := newRig(t, 10000, Options{})
	r.store.Set(KeyDuration, 10)
	for i := 0; i < 2; i++ {
		if err := Run(context.Background(), r.seq); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	if n := r.dev.Created(switchTask); n != 1 {
		t.Errorf("expected the laser switch to be created once, got %d", n)
	}
	if n := count(r.dev.Journal(), "digital.close "+switchLine); n != 0 {
		t.Errorf("expected the laser switch to stay open between runs, closed %d times", n)
	}
	if err := r.seq.Close(); err != nil {
		t.Fatal(err)
	}
	if open := r.dev.OpenTasks(); len(open) != 0 {
		t.Errorf("expected Close to release the laser switch, open: %v", open)
	}
}

func TestWaveformWriteFailureIsAWarning(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	r := newRig(t, 10000, Options{Metrics: m})
	boom := errors.New("buffer underflow")
	r.dev.Fail("analog.write", boom)
	if err := Run(context.Background(), r.seq); err != nil {
		t.Fatalf("expected the run to complete, got %v", err)
	}
	ws := r.seq.Warnings()
	if len(ws) != 2 {
		t.Fatalf("expected a warning per galvo task, got %v", ws)
	}
	for _, w := range ws {
		if !errors.Is(w, ErrWaveformWrite) || !errors.Is(w, boom) {
			t.Errorf("expected warning to wrap ErrWaveformWrite and the driver error, got %v", w)
		}
	}
	j := r.dev.Journal()
	if n := count(j, "laser.off 488"); n != 1 {
		t.Errorf("expected the laser to be turned off once, got %d", n)
	}
	if n := len(prefixed(j, "analog.wait")); n != 2 {
		t.Errorf("expected both galvos to be waited on, got %d", n)
	}
	if got := r.seq.LastReport().Warnings; len(got) != 2 {
		t.Errorf("expected the report to carry the warnings, got %v", got)
	}
	if got := testutil.ToFloat64(m.Warnings); got != 2 {
		t.Errorf("expected 2 warnings counted, got %g", got)
	}
	if got := testutil.ToFloat64(m.Runs.WithLabelValues("done")); got != 1 {
		t.Errorf("expected 1 done run counted, got %g", got)
	}
}

func TestTriggerFailureCleansUp(t *testing.T) {
	r := newRig(t, 10000, Options{})
	boom := errors.New("line stuck")
	r.dev.Fail("digital.write "+triggerLine, boom)
	err := Run(context.Background(), r.seq)
	if !errors.Is(err, ErrHardwareExecution) || !errors.Is(err, boom) {
		t.Fatalf("expected execution failure wrapping the driver error, got %v", err)
	}
	if st := r.seq.State(); st != Failed {
		t.Errorf("expected Failed, got %s", st)
	}
	if on, _ := r.laser.GetEmission(); on {
		t.Error("expected cleanup to turn the laser off")
	}
	if diff := cmp.Diff([]string{switchTask}, r.dev.OpenTasks()); diff != "" {
		t.Errorf("expected every task but the laser switch to be closed (-want +got):\n%s", diff)
	}
	if rep := r.seq.LastReport(); !strings.Contains(rep.Error, "line stuck") {
		t.Errorf("expected the report to carry the error, got %q", rep.Error)
	}
}

func TestGalvoFailureCleansUpArmedTasks(t *testing.T) {
	cases := []struct {
		name   string
		dual   bool
		fault  string
		closed []string // analog targets that must be stopped and closed
	}{
		{"second trigger", false, "analog.trigger " + yLine, []string{xLine, yLine}},
		{"second task", false, "analog.new " + yLine, []string{xLine}},
		{"second clock", false, "analog.clock " + yLine, []string{xLine, yLine}},
		{"dual trigger", true, "analog.trigger " + xLine + "," + yLine, []string{xLine + "," + yLine}},
		{"dual start", true, "analog.start " + xLine + "," + yLine, []string{xLine + "," + yLine}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := newRig(t, 10000, Options{DualChannel: c.dual})
			boom := errors.New("card fault")
			r.dev.Fail(c.fault, boom)
			err := Run(context.Background(), r.seq)
			if !errors.Is(err, ErrHardwareAcquisition) || !errors.Is(err, boom) {
				t.Fatalf("expected acquisition failure wrapping the driver error, got %v", err)
			}
			j := r.dev.Journal()
			for _, target := range c.closed {
				for _, op := range []string{"analog.stop ", "analog.close "} {
					if n := count(j, op+target); n != 1 {
						t.Errorf("expected %q once, got %d in %v", op+target, n, j)
					}
				}
			}
			for _, want := range []string{"digital.stop " + triggerLine, "digital.close " + triggerLine, "digital.write " + switchLine + " [false]"} {
				if n := count(j, want); n != 1 {
					t.Errorf("expected %q once, got %d", want, n)
				}
			}
			if n := len(prefixed(j, "laser.")); n != 0 {
				t.Errorf("expected the laser to never be touched, got %d calls", n)
			}
			if diff := cmp.Diff([]string{switchTask}, r.dev.OpenTasks()); diff != "" {
				t.Errorf("expected every task but the laser switch to be closed (-want +got):\n%s", diff)
			}
			if st := r.seq.State(); st != Failed {
				t.Errorf("expected Failed, got %s", st)
			}
			r.dev.Fail(c.fault, nil)
			r.store.Set(KeyDuration, 10)
			if err = Run(context.Background(), r.seq); err != nil {
				t.Errorf("expected the channels to be free for the next run, got %v", err)
			}
		})
	}
}

func TestTimeoutTurnsLaserOffOnce(t *testing.T) {
	r := newRig(t, 10000, Options{WaitTimeout: 20 * time.Millisecond})
	r.store.Set(KeyDuration, 10)
	r.dev.Route(triggerLine, "PFI9") // the galvos never see the edge
	err := Run(context.Background(), r.seq)
	if !errors.Is(err, ErrHardwareExecution) || !errors.Is(err, daq.ErrTimeout) {
		t.Fatalf("expected a timeout, got %v", err)
	}
	j := r.dev.Journal()
	if n := count(j, "laser.off 488"); n != 1 {
		t.Errorf("expected the laser to be turned off once, got %d", n)
	}
	if open := r.dev.OpenTasks(); len(open) != 1 {
		t.Errorf("expected only the laser switch open, got %v", open)
	}
}

func TestPrepareCanceledDuringSettle(t *testing.T) {
	r := newRig(t, 10000, Options{SettleDelay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Run(ctx, r.seq)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := r.dev.Journal(); count(got, "digital.write "+switchLine+" [false]") != 1 {
		t.Errorf("expected the laser switch to be disengaged, journal %v", got)
	}
}

func TestChannelsExcludeOtherSequencers(t *testing.T) {
	a := newRig(t, 10000, Options{})
	b := newRig(t, 10000, Options{})
	a.store.Set(KeyDuration, 10)
	ctx := context.Background()
	if err := a.seq.Prepare(ctx); err != nil {
		t.Fatal(err)
	}
	err := Run(ctx, b.seq)
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if errors.Is(err, ErrRunInProgress) {
		t.Error("expected a claim conflict, not a run in progress")
	}
	if j := b.dev.Journal(); len(j) != 0 {
		t.Errorf("expected the refused run to touch no hardware, got %v", j)
	}
	if err = a.seq.Execute(ctx); err != nil {
		t.Fatalf("expected the first run to be unaffected, got %v", err)
	}
	if err = a.seq.Cleanup(); err != nil {
		t.Fatal(err)
	}
	if err = Run(ctx, b.seq); err != nil {
		t.Errorf("expected the channels to be free after cleanup, got %v", err)
	}
}

func TestPrepareTwiceIsRefused(t *testing.T) {
	r := newRig(t, 10000, Options{})
	ctx := context.Background()
	if err := r.seq.Prepare(ctx); err != nil {
		t.Fatal(err)
	}
	err := Run(ctx, r.seq)
	if !errors.Is(err, ErrRunInProgress) || !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}
	if st := r.seq.State(); st != Prepared {
		t.Errorf("expected the first run to be left alone, got %s", st)
	}
	if err = r.seq.Close(); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("expected Close to refuse during a run, got %v", err)
	}
	if err = r.seq.Cleanup(); err != nil {
		t.Fatal(err)
	}
	if st := r.seq.State(); st != Idle {
		t.Errorf("expected a prepared run to clean up to Idle, got %s", st)
	}
	if n := len(prefixed(r.dev.Journal(), "laser.")); n != 0 {
		t.Errorf("expected the laser to never be touched, got %d calls", n)
	}
}

func TestRefusedPrepareCleanupLeavesRunAlone(t *testing.T) {
	r := newRig(t, 10000, Options{})
	r.store.Set(KeyDuration, 10)
	ctx := context.Background()
	if err := r.seq.Prepare(ctx); err != nil {
		t.Fatal(err)
	}
	if err := r.seq.Prepare(ctx); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}
	if err := r.seq.Cleanup(); err != nil {
		t.Fatal(err)
	}
	if st := r.seq.State(); st != Prepared {
		t.Fatalf("expected the refused caller's cleanup to leave the run Prepared, got %s", st)
	}
	if n := len(r.dev.OpenTasks()); n != 4 {
		t.Errorf("expected the run's 4 tasks to stay open, got %v", r.dev.OpenTasks())
	}
	if err := r.seq.Execute(ctx); err != nil {
		t.Fatalf("expected the run to execute, got %v", err)
	}
	if err := r.seq.Cleanup(); err != nil {
		t.Fatal(err)
	}
	if st := r.seq.State(); st != Done {
		t.Errorf("expected Done, got %s", st)
	}
	if diff := cmp.Diff([]string{switchTask}, r.dev.OpenTasks()); diff != "" {
		t.Errorf("expected the run's cleanup to close its tasks (-want +got):\n%s", diff)
	}
	if err := Run(ctx, r.seq); err != nil {
		t.Errorf("expected the channels to be free again, got %v", err)
	}
}

func TestSequencerRunIsExclusive(t *testing.T) {
	r := newRig(t, 10000, Options{})
	r.seq.runMu.Lock()
	_, err := r.seq.Run(context.Background())
	r.seq.runMu.Unlock()
	if !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}
	r.store.Set(KeyDuration, 10)
	rep, err := r.seq.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.State != "done" {
		t.Errorf("expected a done report, got %+v", rep)
	}
}

func TestReservedChannelIsRetried(t *testing.T) {
	r := newRig(t, 10000, Options{Retry: func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ConstantBackOff{Interval: time.Millisecond}, 5)
	}})
	r.store.Set(KeyDuration, 10)
	r.dev.FailN("analog.new", daq.ErrResourceReserved, 2)
	if err := Run(context.Background(), r.seq); err != nil {
		t.Fatalf("expected the run to succeed after retrying, got %v", err)
	}
	if n := len(prefixed(r.dev.Journal(), "analog.new!")); n != 2 {
		t.Errorf("expected 2 refused attempts, got %d", n)
	}
}

func TestOtherErrorsAreNotRetried(t *testing.T) {
	r := newRig(t, 10000, Options{})
	boom := errors.New("no such device")
	r.dev.Fail("digital.new", boom)
	err := Run(context.Background(), r.seq)
	if !errors.Is(err, ErrHardwareAcquisition) || !errors.Is(err, boom) {
		t.Fatalf("expected an acquisition failure, got %v", err)
	}
	if n := len(prefixed(r.dev.Journal(), "digital.new!")); n != 1 {
		t.Errorf("expected a single attempt, got %d", n)
	}
}

func TestPhasesOutOfOrder(t *testing.T) {
	r := newRig(t, 10000, Options{})
	ctx := context.Background()
	if err := r.seq.Execute(ctx); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState from Execute, got %v", err)
	}
	if err := r.seq.Finalize(ctx); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState from Finalize, got %v", err)
	}
	if err := r.seq.Cleanup(); err != nil {
		t.Errorf("expected Cleanup without a run to do nothing, got %v", err)
	}
	if j := r.dev.Journal(); len(j) != 0 {
		t.Errorf("expected no hardware calls, got %v", j)
	}
}

func TestCleanupTwiceIsHarmless(t *testing.T) {
	r := newRig(t, 10000, Options{})
	r.store.Set(KeyDuration, 10)
	if err := Run(context.Background(), r.seq); err != nil {
		t.Fatal(err)
	}
	r.dev.ResetJournal()
	if err := r.seq.Cleanup(); err != nil {
		t.Fatal(err)
	}
	if j := r.dev.Journal(); len(j) != 0 {
		t.Errorf("expected the second cleanup to do nothing, got %v", j)
	}
	if st := r.seq.State(); st != Done {
		t.Errorf("expected Done to survive cleanup, got %s", st)
	}
}

func TestNode(t *testing.T) {
	r := newRig(t, 10000, Options{})
	want := Node{Type: OneStep, DeviceRelated: true, NeedResponse: true}
	if got := r.seq.Node(); got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}
