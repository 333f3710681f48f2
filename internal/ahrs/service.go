// Package ahrs runs one orientation filter on its own goroutine, feeds it from
// submitted or polled sensor samples and publishes snapshots on a timer.
package ahrs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ahrs-ng/internal/filter"
	"ahrs-ng/internal/i2c"
	"ahrs-ng/internal/rotation"
	"ahrs-ng/internal/sensors/icm20948"
)

var ErrClosed = errors.New("ahrs: service is closed")

const (
	DefaultInterval  = 100 * time.Millisecond
	DefaultQueueSize = 256
	DefaultIMURateHz = 100
)

type Config struct {
	Method  filter.Method
	Options filter.Options

	// Interval between published snapshots.
	Interval  time.Duration
	QueueSize int

	IMU IMUConfig

	// Record receives every sample handed to the filter, accepted or not.
	Record SampleWriter

	// OnReset runs on the service goroutine right after the filter is reset,
	// before any later sample is applied.
	OnReset func()
}

// IMUConfig enables polling an ICM-20948 directly. Disabled, the service only
// sees what is passed to Submit.
type IMUConfig struct {
	Enable  bool
	I2CBus  int
	IMUAddr uint16
	MagAddr uint16
	RateHz  int
}

type SampleWriter interface {
	WriteSample(now time.Time, sensor filter.SensorType, values []float64) error
}

type Snapshot struct {
	Valid          bool                 `json:"valid"`
	Method         filter.Method        `json:"method"`
	DeviceRotation int                  `json:"device_rotation"`
	Orientation    rotation.Orientation `json:"orientation"`

	Samples  uint64 `json:"samples"`
	Rejected uint64 `json:"rejected"`

	IMUDetected     bool      `json:"imu_detected"`
	IMULastUpdateAt time.Time `json:"imu_last_update_at"`

	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

type sample struct {
	at     time.Time
	sensor filter.SensorType
	values []float64
}

type rotationReq struct {
	rotation rotation.DeviceRotation
	done     chan error
}

type imuReader interface {
	Read() (icm20948.Sample, error)
}

type Service struct {
	cfg    Config
	filter filter.Filter
	now    func() time.Time
	out    *Broadcaster

	samples    chan sample
	resetCh    chan chan error
	rotationCh chan rotationReq

	// Touched only by the run goroutine. filterAt is what the filter sees as
	// the current time: the stamp of the sample being applied, or the tick time.
	filterAt           time.Time
	accepted, rejected uint64
	lastErr            string
	imuLastUpdate      time.Time

	mu   sync.RWMutex
	snap Snapshot

	bus *i2c.Bus
	imu imuReader

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

func New(cfg Config) (*Service, error) {
	if cfg.Method == "" {
		cfg.Method = filter.MethodComplementary
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.IMU.I2CBus == 0 {
		cfg.IMU.I2CBus = 1
	}
	if cfg.IMU.IMUAddr == 0 {
		cfg.IMU.IMUAddr = icm20948.DefaultAddress()
	}
	if cfg.IMU.MagAddr == 0 {
		cfg.IMU.MagAddr = icm20948.MagnetometerAddress()
	}
	if cfg.IMU.RateHz <= 0 {
		cfg.IMU.RateHz = DefaultIMURateHz
	}
	now := cfg.Options.Clock
	if now == nil {
		now = time.Now
	}
	s := &Service{
		cfg:        cfg,
		now:        now,
		filterAt:   now(),
		out:        NewBroadcaster(),
		samples:    make(chan sample, cfg.QueueSize),
		resetCh:    make(chan chan error, 1),
		rotationCh: make(chan rotationReq, 1),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
	opts := cfg.Options
	opts.Clock = s.filterNow
	f, err := filter.New(cfg.Method, opts)
	if err != nil {
		return nil, fmt.Errorf("ahrs: %w", err)
	}
	s.filter = f
	s.snap = Snapshot{
		Method:         f.Method(),
		DeviceRotation: int(f.DeviceRotation()),
		Orientation:    rotation.DefaultOrientation,
	}
	return s, nil
}

// Start opens the IMU when enabled and launches the run loop. Cancelling ctx
// closes the service.
func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("ahrs: service is nil")
	}
	if !s.cfg.IMU.Enable {
		if !s.startLoop(ctx, nil, nil) {
			return ErrClosed
		}
		return nil
	}

	busPath := fmt.Sprintf("/dev/i2c-%d", s.cfg.IMU.I2CBus)
	bus, err := i2c.Open(busPath)
	if err != nil {
		s.setErr(fmt.Sprintf("open %s: %v", busPath, err))
		return err
	}
	imu, err := icm20948.New(bus.Dev(s.cfg.IMU.IMUAddr), bus.Dev(s.cfg.IMU.MagAddr))
	if err != nil {
		s.setErr(fmt.Sprintf("imu init: %v", err))
		_ = bus.Close()
		return err
	}
	if !s.startLoop(ctx, bus, imu) {
		_ = bus.Close()
		return ErrClosed
	}
	return nil
}

// startLoop launches run once. It reports false when the service was already
// started or closed.
func (s *Service) startLoop(ctx context.Context, bus *i2c.Bus, imu imuReader) bool {
	started := false
	s.startOnce.Do(func() {
		s.bus = bus
		if imu != nil {
			s.imu = imu
			s.mu.Lock()
			s.snap.IMUDetected = true
			s.mu.Unlock()
		}
		started = true
		go s.run(ctx)
	})
	return started
}

// Close stops the run loop and waits for it to release the IMU.
func (s *Service) Close() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	// Never started: there is no loop to wait for, and Start becomes a no-op.
	s.startOnce.Do(func() {
		s.out.closeAll()
		close(s.doneCh)
	})
	<-s.doneCh
}

func (s *Service) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Subscribe returns a channel of published snapshots; Unsubscribe releases it.
func (s *Service) Subscribe(buffer int) (int, <-chan Snapshot) { return s.out.Subscribe(buffer) }

func (s *Service) Unsubscribe(id int) { s.out.Unsubscribe(id) }

// Submit queues one sample stamped with the current time. Invalid samples are
// counted in the snapshot, not reported here.
func (s *Service) Submit(ctx context.Context, sensor filter.SensorType, values []float64) error {
	if s == nil {
		return fmt.Errorf("ahrs: service is nil")
	}
	return s.SubmitAt(ctx, s.now(), sensor, values)
}

// SubmitAt queues one sample measured at at. The filter integrates gyroscope
// samples over the differences between these stamps, so a replayed log keeps
// its recorded timing however fast it is fed.
func (s *Service) SubmitAt(ctx context.Context, at time.Time, sensor filter.SensorType, values []float64) error {
	if s == nil {
		return fmt.Errorf("ahrs: service is nil")
	}
	sm := sample{at: at, sensor: sensor, values: append([]float64(nil), values...)}
	select {
	case <-s.stopCh:
		return ErrClosed
	default:
	}
	select {
	case s.samples <- sm:
		return nil
	case <-s.stopCh:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset clears the filter state once every sample queued before it has been
// applied.
func (s *Service) Reset(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("ahrs: service is nil")
	}
	done := make(chan error, 1)
	select {
	case s.resetCh <- done:
	case <-s.stopCh:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.wait(ctx, done)
}

func (s *Service) SetDeviceRotation(ctx context.Context, r rotation.DeviceRotation) error {
	if s == nil {
		return fmt.Errorf("ahrs: service is nil")
	}
	if _, err := rotation.ParseDeviceRotation(int(r)); err != nil {
		return err
	}
	done := make(chan error, 1)
	select {
	case s.rotationCh <- rotationReq{rotation: r, done: done}:
	case <-s.stopCh:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.wait(ctx, done)
}

func (s *Service) wait(ctx context.Context, done chan error) error {
	select {
	case err := <-done:
		return err
	case <-s.doneCh:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) run(ctx context.Context) {
	defer func() {
		if s.bus != nil {
			_ = s.bus.Close()
		}
		s.out.closeAll()
		close(s.doneCh)
	}()

	outTick := time.NewTicker(s.cfg.Interval)
	defer outTick.Stop()
	var imuC <-chan time.Time
	if s.imu != nil {
		imuTick := time.NewTicker(time.Second / time.Duration(s.cfg.IMU.RateHz))
		defer imuTick.Stop()
		imuC = imuTick.C
	}

	for {
		select {
		case <-ctx.Done():
			s.stopOnce.Do(func() { close(s.stopCh) })
			return
		case <-s.stopCh:
			return
		case sm := <-s.samples:
			s.apply(sm)
		case done := <-s.resetCh:
			s.drain()
			s.filterAt = s.now()
			s.filter.Reset()
			if s.cfg.OnReset != nil {
				s.cfg.OnReset()
			}
			s.publish()
			done <- nil
		case req := <-s.rotationCh:
			s.drain()
			s.filterAt = s.now()
			s.filter.SetDeviceRotation(req.rotation)
			s.publish()
			req.done <- nil
		case <-imuC:
			s.pollIMU()
		case <-outTick.C:
			s.filterAt = s.now()
			s.filter.FuseSensors()
			s.publish()
		}
	}
}

// drain applies samples that were queued before a control request.
func (s *Service) drain() {
	for {
		select {
		case sm := <-s.samples:
			s.apply(sm)
		default:
			return
		}
	}
}

func (s *Service) filterNow() time.Time { return s.filterAt }

func (s *Service) apply(sm sample) {
	if s.cfg.Record != nil {
		if err := s.cfg.Record.WriteSample(sm.at, sm.sensor, sm.values); err != nil {
			s.lastErr = fmt.Sprintf("record: %v", err)
		}
	}
	s.filterAt = sm.at
	if err := s.filter.UpdateReadings(sm.sensor, sm.values); err != nil {
		s.rejected++
		s.lastErr = err.Error()
		return
	}
	s.accepted++
}

func (s *Service) pollIMU() {
	smp, err := s.imu.Read()
	if err != nil {
		s.lastErr = fmt.Sprintf("imu read: %v", err)
		return
	}
	at := smp.Time
	if at.IsZero() {
		at = s.now()
	}
	s.imuLastUpdate = at
	if smp.HasMag {
		s.apply(sample{at: at, sensor: filter.Magnetometer, values: []float64{smp.Mx, smp.My, smp.Mz}})
	}
	s.apply(sample{at: at, sensor: filter.Accelerometer, values: []float64{smp.Ax, smp.Ay, smp.Az}})
	s.apply(sample{at: at, sensor: filter.Gyroscope, values: []float64{smp.Gx, smp.Gy, smp.Gz}})
}

func (s *Service) publish() {
	s.mu.Lock()
	s.snap.Valid = filter.HasEstimate(s.filter)
	s.snap.Method = s.filter.Method()
	s.snap.DeviceRotation = int(s.filter.DeviceRotation())
	s.snap.Orientation = s.filter.CurrentOrientation()
	s.snap.Samples = s.accepted
	s.snap.Rejected = s.rejected
	s.snap.IMULastUpdateAt = s.imuLastUpdate
	if s.lastErr != "" {
		s.snap.LastError = s.lastErr
	}
	s.snap.UpdatedAt = s.now().UTC()
	snap := s.snap
	s.mu.Unlock()
	s.out.Publish(snap)
}

func (s *Service) setErr(msg string) {
	s.mu.Lock()
	s.snap.LastError = msg
	s.snap.UpdatedAt = s.now().UTC()
	s.mu.Unlock()
}
