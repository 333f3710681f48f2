package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ahrs-ng/internal/damping"
	"ahrs-ng/internal/filter"
	"ahrs-ng/internal/rotation"
)

type Config struct {
	Filter FilterConfig `yaml:"filter"`
	Source SourceConfig `yaml:"source"`
	Output OutputConfig `yaml:"output"`
}

type FilterConfig struct {
	Method             string  `yaml:"method"`
	AccelerationFactor float64 `yaml:"acceleration_factor"`
	DeviceRotation     int     `yaml:"device_rotation"`

	Complementary       ComplementaryConfig       `yaml:"complementary"`
	Madgwick            MadgwickConfig            `yaml:"madgwick"`
	SeparatedCorrection SeparatedCorrectionConfig `yaml:"separated_correction"`
	Kalman              KalmanConfig              `yaml:"kalman"`
}

type ComplementaryConfig struct {
	FilterCoefficient float64 `yaml:"filter_coefficient"`
}

type MadgwickConfig struct {
	Mode                  string  `yaml:"mode"`
	GyroscopeMeanErrorDeg float64 `yaml:"gyroscope_mean_error_deg"`
	GyroscopeDriftDeg     float64 `yaml:"gyroscope_drift_deg"`
}

type SeparatedCorrectionConfig struct {
	Mode    string  `yaml:"mode"`
	Lambda1 float64 `yaml:"lambda1"`
	Lambda2 float64 `yaml:"lambda2"`
}

type KalmanConfig struct {
	ProcessNoise     float64 `yaml:"process_noise"`
	MeasurementNoise float64 `yaml:"measurement_noise"`
}

const (
	SourceReplay   = "replay"
	SourceICM20948 = "icm20948"
)

type SourceConfig struct {
	Kind     string         `yaml:"kind"`
	Replay   ReplayConfig   `yaml:"replay"`
	ICM20948 ICM20948Config `yaml:"icm20948"`
}

type ReplayConfig struct {
	Path  string  `yaml:"path"`
	Speed float64 `yaml:"speed"`
	Loop  bool    `yaml:"loop"`
}

type ICM20948Config struct {
	I2CBus  int    `yaml:"i2c_bus"`
	IMUAddr uint16 `yaml:"imu_addr"`
	MagAddr uint16 `yaml:"mag_addr"`
	RateHz  int    `yaml:"rate_hz"`
}

type OutputConfig struct {
	Interval    time.Duration `yaml:"interval"`
	HistorySize int           `yaml:"history_size"`
	UDP         UDPConfig     `yaml:"udp"`
	Web         WebConfig     `yaml:"web"`
	Record      RecordConfig  `yaml:"record"`
}

const (
	UDPFormatJSON  = "json"
	UDPFormatGDL90 = "gdl90"
)

type UDPConfig struct {
	Enable bool   `yaml:"enable"`
	Dest   string `yaml:"dest"`
	// Format is json (one snapshot per datagram) or gdl90 (AHRS messages).
	Format string `yaml:"format"`
}

type WebConfig struct {
	Enable bool   `yaml:"enable"`
	Listen string `yaml:"listen"`
}

type RecordConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

// Parse decodes YAML, rejecting unknown keys, then applies defaults and
// validates.
func Parse(b []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		var te *yaml.TypeError
		if errors.As(err, &te) && onlyUnknownFields(te.Errors) {
			return Config{}, fmt.Errorf("config contains unknown fields: %s", strings.Join(te.Errors, "; "))
		}
		return Config{}, fmt.Errorf("config decode failed: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func onlyUnknownFields(errs []string) bool {
	for _, e := range errs {
		if !strings.Contains(e, "not found in type") {
			return false
		}
	}
	return len(errs) > 0
}

func (c *Config) applyDefaults() {
	f := &c.Filter
	if strings.TrimSpace(f.Method) == "" {
		f.Method = string(filter.MethodComplementary)
	}
	if f.AccelerationFactor == 0 {
		f.AccelerationFactor = damping.DefaultFactor
	}
	if f.Complementary.FilterCoefficient == 0 {
		f.Complementary.FilterCoefficient = filter.DefaultFilterCoefficient
	}
	if f.Madgwick.GyroscopeMeanErrorDeg == 0 {
		f.Madgwick.GyroscopeMeanErrorDeg = 5
	}
	if f.Madgwick.GyroscopeDriftDeg == 0 {
		f.Madgwick.GyroscopeDriftDeg = 0.2
	}
	if f.SeparatedCorrection.Lambda1 == 0 {
		f.SeparatedCorrection.Lambda1 = filter.DefaultLambda1
	}
	if f.SeparatedCorrection.Lambda2 == 0 {
		f.SeparatedCorrection.Lambda2 = filter.DefaultLambda2
	}
	if f.Kalman.ProcessNoise == 0 {
		f.Kalman.ProcessNoise = filter.DefaultKalmanProcessNoise
	}
	if f.Kalman.MeasurementNoise == 0 {
		f.Kalman.MeasurementNoise = filter.DefaultKalmanMeasurementNoise
	}

	s := &c.Source
	if s.Kind == "" {
		s.Kind = SourceReplay
	}
	if s.Replay.Speed == 0 {
		s.Replay.Speed = 1
	}
	if s.ICM20948.I2CBus == 0 {
		s.ICM20948.I2CBus = 1
	}
	if s.ICM20948.IMUAddr == 0 {
		s.ICM20948.IMUAddr = 0x68
	}
	if s.ICM20948.MagAddr == 0 {
		s.ICM20948.MagAddr = 0x0C
	}
	if s.ICM20948.RateHz == 0 {
		s.ICM20948.RateHz = 100
	}

	o := &c.Output
	if o.Interval == 0 {
		o.Interval = 100 * time.Millisecond
	}
	if o.HistorySize == 0 {
		o.HistorySize = 256
	}
	if o.UDP.Format == "" {
		o.UDP.Format = UDPFormatJSON
	}
	if o.Web.Listen == "" {
		o.Web.Listen = ":8080"
	}
}

func (c Config) validate() error {
	f := c.Filter
	if _, err := filter.ParseMethod(f.Method); err != nil {
		return fmt.Errorf("filter.method is invalid: %q", f.Method)
	}
	if f.AccelerationFactor < 0 {
		return fmt.Errorf("filter.acceleration_factor must be > 0")
	}
	if _, err := rotation.ParseDeviceRotation(f.DeviceRotation); err != nil {
		return fmt.Errorf("filter.device_rotation must be one of 0, 90, 180, 270")
	}
	if f.Complementary.FilterCoefficient < 0 || f.Complementary.FilterCoefficient > 1 {
		return fmt.Errorf("filter.complementary.filter_coefficient must be in [0,1]")
	}
	if _, err := filter.ParseMadgwickMode(f.Madgwick.Mode); err != nil {
		return fmt.Errorf("filter.madgwick.mode is invalid: %q", f.Madgwick.Mode)
	}
	if f.Madgwick.GyroscopeMeanErrorDeg < 0 || f.Madgwick.GyroscopeDriftDeg < 0 {
		return fmt.Errorf("filter.madgwick gyroscope errors must be > 0")
	}
	if _, err := filter.ParseSeparatedCorrectionMode(f.SeparatedCorrection.Mode); err != nil {
		return fmt.Errorf("filter.separated_correction.mode is invalid: %q", f.SeparatedCorrection.Mode)
	}
	if f.SeparatedCorrection.Lambda1 < 0 || f.SeparatedCorrection.Lambda2 < 0 {
		return fmt.Errorf("filter.separated_correction lambdas must be > 0")
	}
	if f.Kalman.ProcessNoise < 0 || f.Kalman.MeasurementNoise < 0 {
		return fmt.Errorf("filter.kalman noise must be > 0")
	}

	s := c.Source
	switch s.Kind {
	case SourceReplay:
		if s.Replay.Path == "" {
			return fmt.Errorf("source.replay.path is required when source.kind is replay")
		}
		if s.Replay.Speed < 0 {
			return fmt.Errorf("source.replay.speed must be > 0")
		}
	case SourceICM20948:
		if s.ICM20948.I2CBus < 0 {
			return fmt.Errorf("source.icm20948.i2c_bus must be >= 0")
		}
		if s.ICM20948.RateHz < 0 || s.ICM20948.RateHz > 1000 {
			return fmt.Errorf("source.icm20948.rate_hz must be in [1,1000]")
		}
	default:
		return fmt.Errorf("source.kind is invalid: %q", s.Kind)
	}

	o := c.Output
	if o.Interval < 0 {
		return fmt.Errorf("output.interval must be > 0")
	}
	if o.HistorySize < 0 {
		return fmt.Errorf("output.history_size must be >= 0")
	}
	if o.UDP.Enable && strings.TrimSpace(o.UDP.Dest) == "" {
		return fmt.Errorf("output.udp.dest is required when output.udp.enable is true")
	}
	if o.UDP.Format != UDPFormatJSON && o.UDP.Format != UDPFormatGDL90 {
		return fmt.Errorf("output.udp.format is invalid: %q", o.UDP.Format)
	}
	if o.Record.Enable {
		if o.Record.Path == "" {
			return fmt.Errorf("output.record.path is required when output.record.enable is true")
		}
		if s.Kind == SourceReplay && o.Record.Path == s.Replay.Path {
			return fmt.Errorf("output.record.path must differ from source.replay.path")
		}
	}
	return nil
}

// FilterMethod returns the validated filter.method.
func (c Config) FilterMethod() filter.Method {
	m, _ := filter.ParseMethod(c.Filter.Method)
	return m
}

// FilterOptions converts the filter section; degree-valued keys become radians.
func (c Config) FilterOptions() filter.Options {
	f := c.Filter
	opts := filter.DefaultOptions()
	opts.AccelerationFactor = f.AccelerationFactor
	opts.DeviceRotation, _ = rotation.ParseDeviceRotation(f.DeviceRotation)
	opts.FilterCoefficient = f.Complementary.FilterCoefficient
	opts.GyroscopeMeanError = rotation.ToRadians(f.Madgwick.GyroscopeMeanErrorDeg)
	opts.GyroscopeDrift = rotation.ToRadians(f.Madgwick.GyroscopeDriftDeg)
	opts.MadgwickMode, _ = filter.ParseMadgwickMode(f.Madgwick.Mode)
	opts.Lambda1 = f.SeparatedCorrection.Lambda1
	opts.Lambda2 = f.SeparatedCorrection.Lambda2
	opts.SeparatedCorrectionMode, _ = filter.ParseSeparatedCorrectionMode(f.SeparatedCorrection.Mode)
	opts.KalmanProcessNoise = f.Kalman.ProcessNoise
	opts.KalmanMeasurementNoise = f.Kalman.MeasurementNoise
	return opts
}
