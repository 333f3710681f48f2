package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"ahrs-ng/internal/ahrs"
	"ahrs-ng/internal/config"
	"ahrs-ng/internal/filter"
	"ahrs-ng/internal/gdl90"
	"ahrs-ng/internal/history"
	"ahrs-ng/internal/replay"
	"ahrs-ng/internal/udp"
	"ahrs-ng/internal/web"
)

// run wires the configured source, the AHRS service and the outputs, and blocks
// until ctx is done.
func run(ctx context.Context, cfg config.Config, logs *web.LogBuffer) error {
	var hist *history.Ring
	if cfg.Output.HistorySize > 0 {
		hist = history.NewRing(cfg.Output.HistorySize, time.Now)
	}
	var clock *replayClock
	if cfg.Source.Kind == config.SourceReplay {
		clock = newReplayClock(time.Now, cfg.Source.Replay.Speed)
	}
	svcCfg := serviceConfig(cfg, hist, clock)

	if cfg.Output.Record.Enable {
		w, err := replay.CreateWriter(cfg.Output.Record.Path)
		if err != nil {
			return fmt.Errorf("record init failed: %w", err)
		}
		defer func() {
			if err := w.Close(); err != nil {
				log.Printf("record close failed path=%s err=%v", cfg.Output.Record.Path, err)
			}
		}()
		svcCfg.Record = w
		log.Printf("recording samples path=%s", cfg.Output.Record.Path)
	}

	svc, err := ahrs.New(svcCfg)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("ahrs start failed: %w", err)
	}
	defer svc.Close()
	log.Printf("ahrs service started method=%s interval=%s source=%s device_rotation=%d",
		svcCfg.Method, cfg.Output.Interval, cfg.Source.Kind, int(svcCfg.Options.DeviceRotation))

	if cfg.Output.UDP.Enable {
		b, err := udp.NewBroadcaster(cfg.Output.UDP.Dest)
		if err != nil {
			return fmt.Errorf("udp broadcaster init failed: %w", err)
		}
		defer b.Close()
		log.Printf("udp dest=%s format=%s", b.Dest(), cfg.Output.UDP.Format)
		go forwardUDP(ctx, svc, udpSender(cfg.Output.UDP.Format, b))
	}

	if cfg.Output.Web.Enable {
		var h web.History
		if hist != nil {
			h = hist
		}
		go func() {
			log.Printf("web listen=%s", cfg.Output.Web.Listen)
			if err := web.Serve(ctx, cfg.Output.Web.Listen, svc, h, logs); err != nil && ctx.Err() == nil {
				log.Printf("web server stopped: %v", err)
			}
		}()
	}

	if cfg.Source.Kind == config.SourceReplay {
		go func() {
			rc := cfg.Source.Replay
			log.Printf("replay path=%s speed=%.2f loop=%t", rc.Path, rc.Speed, rc.Loop)
			err := runReplay(ctx, rc, nil, clock, func(at time.Time, sensor filter.SensorType, values []float64) error {
				return svc.SubmitAt(ctx, at, sensor, values)
			})
			if err != nil && ctx.Err() == nil {
				log.Printf("replay stopped: %v", err)
				return
			}
			if ctx.Err() == nil {
				log.Printf("replay finished path=%s", rc.Path)
			}
		}()
	}

	<-ctx.Done()
	snap := svc.Snapshot()
	log.Printf("ahrs summary samples=%d rejected=%d valid=%t last_error=%q", snap.Samples, snap.Rejected, snap.Valid, snap.LastError)
	return nil
}

// serviceConfig maps the configuration onto the service. hist, when set,
// records raw estimates and is cleared by every reset; clock, when set,
// replaces wall time for the filter.
func serviceConfig(cfg config.Config, hist *history.Ring, clock *replayClock) ahrs.Config {
	opts := cfg.FilterOptions()
	if clock != nil {
		opts.Clock = clock.Now
	}
	svcCfg := ahrs.Config{
		Method:   cfg.FilterMethod(),
		Options:  opts,
		Interval: cfg.Output.Interval,
	}
	if hist != nil {
		svcCfg.Options.Recorder = hist
		svcCfg.OnReset = hist.Clear
	}
	if cfg.Source.Kind == config.SourceICM20948 {
		ic := cfg.Source.ICM20948
		svcCfg.IMU = ahrs.IMUConfig{
			Enable:  true,
			I2CBus:  ic.I2CBus,
			IMUAddr: ic.IMUAddr,
			MagAddr: ic.MagAddr,
			RateHz:  ic.RateHz,
		}
	}
	return svcCfg
}

// replayClock runs on the sample log timeline. Records are stamped with
// their logged offsets; between records the clock advances at the playback
// speed, so display smoothing keeps moving after the last record.
type replayClock struct {
	mu    sync.Mutex
	wall  func() time.Time
	speed float64

	base   time.Time     // timeline origin of the current pass
	last   time.Duration // offset of the latest record
	at     time.Time     // timeline time of the latest record
	wallAt time.Time     // wall time when at was set
}

func newReplayClock(wall func() time.Time, speed float64) *replayClock {
	if speed <= 0 {
		speed = 1
	}
	now := wall()
	return &replayClock{wall: wall, speed: speed, base: now, at: now, wallAt: now}
}

func (c *replayClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at.Add(time.Duration(float64(c.wall().Sub(c.wallAt)) * c.speed))
}

// stamp moves the timeline to a record logged at offset. An offset that goes
// backwards (a START marker or a loop) starts a new pass where the previous
// one stopped.
func (c *replayClock) stamp(offset time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if offset < c.last {
		c.base = c.at.Add(-offset)
	}
	c.last = offset
	c.at = c.base.Add(offset)
	c.wallAt = c.wall()
	return c.at
}

type submitFunc func(at time.Time, sensor filter.SensorType, values []float64) error

// runReplay plays a sample log into submit with its recorded timing. Each
// sample carries its logged time on clock's timeline.
func runReplay(ctx context.Context, rc config.ReplayConfig, sleeper replay.Sleeper, clock *replayClock, submit submitFunc) error {
	records, err := replay.Open(rc.Path)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if clock == nil {
		clock = newReplayClock(time.Now, rc.Speed)
	}
	err = replay.Play(records, rc.Speed, rc.Loop, sleeper, ctx.Done(), func(r replay.Record) error {
		return submit(clock.stamp(r.At), r.Sensor, r.Values)
	})
	if err != nil {
		return err
	}
	return ctx.Err()
}

type datagramSender interface {
	Send(payload []byte) error
	SendJSON(v any) error
}

// udpSender encodes one snapshot for the configured wire format.
func udpSender(format string, b datagramSender) func(ahrs.Snapshot) error {
	if format != config.UDPFormatGDL90 {
		return func(snap ahrs.Snapshot) error { return b.SendJSON(snap) }
	}
	enc := &gdl90.Encoder{}
	return func(snap ahrs.Snapshot) error {
		att := gdl90.AttitudeFromOrientation(snap.Orientation, snap.Valid)
		for _, frame := range enc.Frames(time.Now(), att) {
			if err := b.Send(frame); err != nil {
				return err
			}
		}
		return nil
	}
}

type subscriber interface {
	Subscribe(buffer int) (int, <-chan ahrs.Snapshot)
	Unsubscribe(id int)
}

// forwardUDP hands every published snapshot to send. A failing
// destination is logged once per outage.
func forwardUDP(ctx context.Context, sub subscriber, send func(ahrs.Snapshot) error) {
	id, snaps := sub.Subscribe(4)
	defer sub.Unsubscribe(id)
	failing := false
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			err := send(snap)
			switch {
			case err != nil && !failing:
				log.Printf("udp send failed: %v", err)
				failing = true
			case err == nil && failing:
				log.Printf("udp send recovered")
				failing = false
			}
		}
	}
}
