package config

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ahrs-ng/internal/filter"
	"ahrs-ng/internal/rotation"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "cfg.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

func requireErrEq(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", want)
	}
	if err.Error() != want {
		t.Fatalf("error=%q want %q", err.Error(), want)
	}
}

const minimal = "source:\n  replay:\n    path: ./samples.log\n"

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, minimal))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.FilterMethod() != filter.MethodComplementary {
		t.Fatalf("method=%q want complementary", cfg.Filter.Method)
	}
	if cfg.Source.Kind != SourceReplay || cfg.Source.Replay.Speed != 1 {
		t.Fatalf("source=%+v", cfg.Source)
	}
	if cfg.Output.Interval != 100*time.Millisecond {
		t.Fatalf("interval=%s want 100ms", cfg.Output.Interval)
	}
	if cfg.Output.HistorySize != 256 || cfg.Output.Web.Listen != ":8080" || cfg.Output.UDP.Format != UDPFormatJSON {
		t.Fatalf("output=%+v", cfg.Output)
	}
	ic := cfg.Source.ICM20948
	if ic.I2CBus != 1 || ic.IMUAddr != 0x68 || ic.MagAddr != 0x0C || ic.RateHz != 100 {
		t.Fatalf("icm20948=%+v", ic)
	}
}

func TestLoad_FilterOptions(t *testing.T) {
	path := writeTempConfig(t, minimal+`filter:
  method: Madgwick
  acceleration_factor: 0.5
  device_rotation: 270
  complementary:
    filter_coefficient: 0.9
  madgwick:
    mode: modified
    gyroscope_mean_error_deg: 10
    gyroscope_drift_deg: 1
  separated_correction:
    mode: fscf
    lambda1: 0.2
    lambda2: 0.5
  kalman:
    process_noise: 0.01
    measurement_noise: 0.5
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.FilterMethod() != filter.MethodMadgwick {
		t.Fatalf("method=%q", cfg.FilterMethod())
	}
	opts := cfg.FilterOptions()
	if opts.AccelerationFactor != 0.5 || opts.DeviceRotation != rotation.Rotation270 || opts.FilterCoefficient != 0.9 {
		t.Fatalf("opts=%+v", opts)
	}
	if opts.MadgwickMode != filter.MadgwickModified || opts.SeparatedCorrectionMode != filter.FSCF {
		t.Fatalf("modes=%v %v", opts.MadgwickMode, opts.SeparatedCorrectionMode)
	}
	if math.Abs(opts.GyroscopeMeanError-rotation.ToRadians(10)) > 1e-12 || math.Abs(opts.GyroscopeDrift-rotation.ToRadians(1)) > 1e-12 {
		t.Fatalf("gyro errors=%v %v", opts.GyroscopeMeanError, opts.GyroscopeDrift)
	}
	if opts.Lambda1 != 0.2 || opts.Lambda2 != 0.5 || opts.KalmanProcessNoise != 0.01 || opts.KalmanMeasurementNoise != 0.5 {
		t.Fatalf("opts=%+v", opts)
	}
	if opts.Clock == nil {
		t.Fatalf("expected a default clock")
	}
}

func TestLoad_UnknownFieldsRejected(t *testing.T) {
	_, err := Load(writeTempConfig(t, minimal+"filter:\n  methd: kalman\n"))
	if err == nil || !strings.HasPrefix(err.Error(), "config contains unknown fields: ") {
		t.Fatalf("err=%v", err)
	}
}

func TestLoad_TypeErrorIsNotUnknownField(t *testing.T) {
	_, err := Load(writeTempConfig(t, minimal+"filter:\n  device_rotation: sideways\n"))
	if err == nil || !strings.HasPrefix(err.Error(), "config decode failed: ") {
		t.Fatalf("err=%v", err)
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"method", minimal + "filter:\n  method: ukf\n", `filter.method is invalid: "ukf"`},
		{"device rotation", minimal + "filter:\n  device_rotation: 45\n", "filter.device_rotation must be one of 0, 90, 180, 270"},
		{"coefficient", minimal + "filter:\n  complementary:\n    filter_coefficient: 1.5\n", "filter.complementary.filter_coefficient must be in [0,1]"},
		{"madgwick mode", minimal + "filter:\n  madgwick:\n    mode: fast\n", `filter.madgwick.mode is invalid: "fast"`},
		{"scf mode", minimal + "filter:\n  separated_correction:\n    mode: x\n", `filter.separated_correction.mode is invalid: "x"`},
		{"replay path", "source:\n  kind: replay\n", "source.replay.path is required when source.kind is replay"},
		{"replay speed", "source:\n  replay:\n    path: a.log\n    speed: -1\n", "source.replay.speed must be > 0"},
		{"source kind", "source:\n  kind: serial\n", `source.kind is invalid: "serial"`},
		{"rate", "source:\n  kind: icm20948\n  icm20948:\n    rate_hz: 5000\n", "source.icm20948.rate_hz must be in [1,1000]"},
		{"udp dest", minimal + "output:\n  udp:\n    enable: true\n", "output.udp.dest is required when output.udp.enable is true"},
		{"udp format", minimal + "output:\n  udp:\n    format: xml\n", `output.udp.format is invalid: "xml"`},
		{"record path", minimal + "output:\n  record:\n    enable: true\n", "output.record.path is required when output.record.enable is true"},
		{"record over replay", minimal + "output:\n  record:\n    enable: true\n    path: ./samples.log\n", "output.record.path must differ from source.replay.path"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeTempConfig(t, tc.yaml))
			requireErrEq(t, err, tc.want)
		})
	}
}

func TestLoad_ICM20948Source(t *testing.T) {
	path := writeTempConfig(t, `source:
  kind: icm20948
  icm20948:
    i2c_bus: 3
    imu_addr: 0x69
    rate_hz: 200
output:
  udp:
    enable: true
    dest: 192.168.10.255:4000
    format: gdl90
  record:
    enable: true
    path: /tmp/samples.log
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	ic := cfg.Source.ICM20948
	if ic.I2CBus != 3 || ic.IMUAddr != 0x69 || ic.MagAddr != 0x0C || ic.RateHz != 200 {
		t.Fatalf("icm20948=%+v", ic)
	}
	if !cfg.Output.UDP.Enable || cfg.Output.UDP.Dest != "192.168.10.255:4000" || cfg.Output.UDP.Format != UDPFormatGDL90 {
		t.Fatalf("udp=%+v", cfg.Output.UDP)
	}
}
