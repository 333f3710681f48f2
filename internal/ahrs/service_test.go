package ahrs

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"ahrs-ng/internal/filter"
	"ahrs-ng/internal/rotation"
	"ahrs-ng/internal/sensors/icm20948"
)

var testT0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, cfg Config) *Service {
	t.Helper()
	if cfg.Method == "" {
		cfg.Method = filter.MethodAccelerometerMagnetometer
	}
	if cfg.Options.Clock == nil {
		cfg.Options.Clock = func() time.Time { return testT0 }
	}
	if cfg.Interval == 0 {
		cfg.Interval = time.Hour
	}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

// syncService waits until every sample submitted so far has been applied.
func syncService(t *testing.T, s *Service) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.SetDeviceRotation(ctx, rotation.DeviceRotation(s.Snapshot().DeviceRotation)); err != nil {
		t.Fatalf("SetDeviceRotation: %v", err)
	}
	return s.Snapshot()
}

func submitFlat(t *testing.T, s *Service) {
	t.Helper()
	ctx := context.Background()
	if err := s.Submit(ctx, filter.Magnetometer, []float64{0, 18, -44}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := s.Submit(ctx, filter.Accelerometer, []float64{0, 0, 9.81}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
}

func near(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestNew_UnknownMethod(t *testing.T) {
	if _, err := New(Config{Method: "bogus"}); !errors.Is(err, filter.ErrUnknownMethod) {
		t.Fatalf("err=%v want ErrUnknownMethod", err)
	}
}

func TestNew_Defaults(t *testing.T) {
	s, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()
	if s.cfg.Interval != DefaultInterval || s.cfg.IMU.RateHz != DefaultIMURateHz {
		t.Fatalf("cfg=%+v", s.cfg)
	}
	snap := s.Snapshot()
	if snap.Valid || snap.Method != filter.MethodComplementary || snap.Orientation != rotation.DefaultOrientation {
		t.Fatalf("snap=%+v", snap)
	}
}

func TestService_SubmitProducesSnapshot(t *testing.T) {
	s := newTestService(t, Config{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	submitFlat(t, s)
	snap := syncService(t, s)
	if !snap.Valid || snap.Samples != 2 || snap.Rejected != 0 {
		t.Fatalf("snap=%+v", snap)
	}
	o := snap.Orientation
	if !near(o.Azimuth, 0, 1e-6) || !near(o.Pitch, 0, 1e-6) || !near(o.Roll, 0, 1e-6) {
		t.Fatalf("orientation=%+v want flat", o)
	}
	if !snap.UpdatedAt.Equal(testT0) {
		t.Fatalf("UpdatedAt=%v want %v", snap.UpdatedAt, testT0)
	}
}

func TestService_CountsRejectedSamples(t *testing.T) {
	s := newTestService(t, Config{})
	_ = s.Start(context.Background())
	if err := s.Submit(context.Background(), filter.Accelerometer, []float64{1, 2}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	snap := syncService(t, s)
	if snap.Rejected != 1 || snap.Samples != 0 {
		t.Fatalf("snap=%+v", snap)
	}
	if !strings.Contains(snap.LastError, "invalid reading") {
		t.Fatalf("LastError=%q", snap.LastError)
	}
}

func TestService_Reset(t *testing.T) {
	resets := 0
	s := newTestService(t, Config{OnReset: func() { resets++ }})
	_ = s.Start(context.Background())
	submitFlat(t, s)
	if !syncService(t, s).Valid {
		t.Fatalf("expected a valid snapshot before reset")
	}
	if err := s.Reset(context.Background()); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	snap := s.Snapshot()
	if snap.Valid || snap.Orientation != rotation.DefaultOrientation {
		t.Fatalf("snap after reset=%+v", snap)
	}
	// Reset returns after the hook ran on the service goroutine.
	if resets != 1 {
		t.Fatalf("OnReset calls=%d want 1", resets)
	}
}

func TestService_SetDeviceRotation(t *testing.T) {
	s := newTestService(t, Config{})
	_ = s.Start(context.Background())
	ctx := context.Background()
	if err := s.SetDeviceRotation(ctx, 45); err == nil {
		t.Fatalf("expected error for 45 degrees")
	}
	if err := s.SetDeviceRotation(ctx, rotation.Rotation90); err != nil {
		t.Fatalf("SetDeviceRotation: %v", err)
	}
	if got := s.Snapshot().DeviceRotation; got != 90 {
		t.Fatalf("DeviceRotation=%d want 90", got)
	}
}

type fakeWriter struct {
	mu      sync.Mutex
	sensors []filter.SensorType
	times   []time.Time
}

func (w *fakeWriter) WriteSample(now time.Time, sensor filter.SensorType, values []float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sensors = append(w.sensors, sensor)
	w.times = append(w.times, now)
	return nil
}

func TestService_RecordsSamples(t *testing.T) {
	w := &fakeWriter{}
	s := newTestService(t, Config{Record: w})
	_ = s.Start(context.Background())
	submitFlat(t, s)
	_ = s.Submit(context.Background(), filter.Gyroscope, []float64{0, 0})
	syncService(t, s)

	w.mu.Lock()
	defer w.mu.Unlock()
	want := []filter.SensorType{filter.Magnetometer, filter.Accelerometer, filter.Gyroscope}
	if len(w.sensors) != len(want) {
		t.Fatalf("recorded=%v want %v", w.sensors, want)
	}
	for i := range want {
		if w.sensors[i] != want[i] {
			t.Fatalf("recorded=%v want %v", w.sensors, want)
		}
	}
}

type fakeIMU struct{}

func (fakeIMU) Read() (icm20948.Sample, error) {
	return icm20948.Sample{
		Time: testT0,
		Az:   9.81,
		My:   18, Mz: -44,
		HasMag: true,
	}, nil
}

func TestService_PollsIMU(t *testing.T) {
	s := newTestService(t, Config{Interval: 5 * time.Millisecond, IMU: IMUConfig{RateHz: 1000}})
	if !s.startLoop(context.Background(), nil, fakeIMU{}) {
		t.Fatalf("startLoop returned false")
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		snap := s.Snapshot()
		if snap.Valid {
			if !snap.IMUDetected || !snap.IMULastUpdateAt.Equal(testT0) {
				t.Fatalf("snap=%+v", snap)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("no valid snapshot from the IMU: %+v", snap)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestService_SubscribeReceivesSnapshots(t *testing.T) {
	s := newTestService(t, Config{Interval: 5 * time.Millisecond})
	_ = s.Start(context.Background())
	id, ch := s.Subscribe(4)
	defer s.Unsubscribe(id)
	submitFlat(t, s)

	timeout := time.After(2 * time.Second)
	for {
		select {
		case snap := <-ch:
			if snap.Valid {
				return
			}
		case <-timeout:
			t.Fatalf("no valid snapshot published")
		}
	}
}

func TestService_CloseStopsEverything(t *testing.T) {
	s := newTestService(t, Config{})
	_ = s.Start(context.Background())
	_, ch := s.Subscribe(1)
	s.Close()

	if err := s.Submit(context.Background(), filter.Gyroscope, []float64{0, 0, 0}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Submit err=%v want ErrClosed", err)
	}
	if err := s.Reset(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Reset err=%v want ErrClosed", err)
	}
	if _, ok := <-ch; ok {
		t.Fatalf("subscription still open after Close")
	}
	if err := s.Start(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Start after Close err=%v want ErrClosed", err)
	}
}

func TestService_ContextCancelCloses(t *testing.T) {
	s := newTestService(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	_ = s.Start(ctx)
	cancel()
	select {
	case <-s.doneCh:
	case <-time.After(2 * time.Second):
		t.Fatalf("run loop did not stop")
	}
	if err := s.Submit(context.Background(), filter.Gyroscope, []float64{0, 0, 0}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Submit err=%v want ErrClosed", err)
	}
}

func TestBroadcaster_SubscribeGetsLast(t *testing.T) {
	b := NewBroadcaster()
	b.Publish(Snapshot{Samples: 7})
	id, ch := b.Subscribe(0)
	select {
	case snap := <-ch:
		if snap.Samples != 7 {
			t.Fatalf("snap=%+v", snap)
		}
	default:
		t.Fatalf("new subscriber got no snapshot")
	}
	if b.Subscribers() != 1 {
		t.Fatalf("Subscribers=%d want 1", b.Subscribers())
	}
	b.Unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Fatalf("channel open after Unsubscribe")
	}
	// Slow subscribers drop instead of blocking.
	_, slow := b.Subscribe(1)
	for i := 0; i < 5; i++ {
		b.Publish(Snapshot{Samples: uint64(i)})
	}
	if got := (<-slow).Samples; got != 7 {
		t.Fatalf("first buffered=%d want 7", got)
	}
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type lastEstimate struct {
	mu sync.Mutex
	o  rotation.Orientation
	n  int
}

func (l *lastEstimate) Record(_ filter.Method, o rotation.Orientation) {
	l.mu.Lock()
	l.o = o
	l.n++
	l.mu.Unlock()
}

func (l *lastEstimate) get() (rotation.Orientation, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.o, l.n
}

func TestService_GyroStepsUseSubmitTime(t *testing.T) {
	clk := &manualClock{now: testT0}
	est := &lastEstimate{}
	opts := filter.DefaultOptions()
	opts.Clock = clk.Now
	opts.FilterCoefficient = 1
	opts.Recorder = est
	s := newTestService(t, Config{Method: filter.MethodComplementary, Options: opts})

	// Queue everything before the loop runs so no sample is applied at the
	// time it was submitted.
	ctx := context.Background()
	submitFlat(t, s)
	yaw := []float64{0, 0, -math.Pi / 2}
	for i := 0; i < 3; i++ {
		if err := s.Submit(ctx, filter.Gyroscope, yaw); err != nil {
			t.Fatalf("Submit: %v", err)
		}
		clk.Advance(250 * time.Millisecond)
	}
	clk.Advance(time.Minute)
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	syncService(t, s)

	o, n := est.get()
	if n != 3 || !near(o.Azimuth, 45, 1e-6) {
		t.Fatalf("azimuth=%v estimates=%d want 45 after 0.5s at 90 deg/s", o.Azimuth, n)
	}
}

func TestService_SubmitAtStampsRecording(t *testing.T) {
	w := &fakeWriter{}
	s := newTestService(t, Config{Record: w})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	at := testT0.Add(90 * time.Second)
	if err := s.SubmitAt(context.Background(), at, filter.Accelerometer, []float64{0, 0, 9.81}); err != nil {
		t.Fatalf("SubmitAt: %v", err)
	}
	syncService(t, s)
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.times) != 1 || !w.times[0].Equal(at) {
		t.Fatalf("recorded at %v want one sample at %s", w.times, at)
	}
}

func TestService_SubscribeAfterClose(t *testing.T) {
	for _, started := range []bool{true, false} {
		s := newTestService(t, Config{})
		if started {
			_ = s.Start(context.Background())
			submitFlat(t, s)
			syncService(t, s)
		}
		s.Close()

		_, ch := s.Subscribe(1)
		deadline := time.After(time.Second)
		for open := true; open; {
			select {
			case _, open = <-ch:
			case <-deadline:
				t.Fatalf("started=%t: subscription after Close never closed", started)
			}
		}
	}
}

func TestBroadcaster_SubscribeAfterCloseAll(t *testing.T) {
	b := NewBroadcaster()
	b.Publish(Snapshot{Samples: 3})
	b.closeAll()

	_, ch := b.Subscribe(1)
	snap, ok := <-ch
	if !ok || snap.Samples != 3 {
		t.Fatalf("first receive=%+v ok=%t want the last snapshot", snap, ok)
	}
	if _, ok := <-ch; ok {
		t.Fatalf("channel open after closeAll")
	}
	if b.Subscribers() != 0 {
		t.Fatalf("Subscribers=%d want 0", b.Subscribers())
	}
}
