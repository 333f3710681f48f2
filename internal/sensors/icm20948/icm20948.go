// Package icm20948 reads the ICM-20948 9-axis IMU: accelerometer and
// gyroscope from the main die, magnetometer from the AK09916 reached through
// I2C bypass mode.
package icm20948

import (
	"fmt"
	"math"
	"time"

	"ahrs-ng/internal/i2c"
)

var sleep = time.Sleep

const (
	addrDefault = 0x68

	regWhoAmI  = 0x00
	whoAmIVal  = 0xEA
	regBankSel = 0x7F

	// Bank 0.
	regUserCtrl   = 0x03
	regPwrMgmt1   = 0x06
	bitReset      = 0x80
	regIntPinCfg  = 0x0F
	bitBypassEn   = 0x02
	regIntEnable  = 0x10
	regAccelXoutH = 0x2D // contiguous accel+gyro block

	// Bank 2.
	bank2           = 2
	regGyroSmplrt   = 0x00
	regGyroConfig   = 0x01
	regAccelSmplrt2 = 0x11
	regAccelConfig  = 0x14

	fsGyro250dps = 0x00
	fsAccel4g    = 0x02

	standardGravity = 9.81
)

// AK09916 magnetometer, visible on the host bus once bypass is enabled.
const (
	magAddr     = 0x0C
	magRegWIA2  = 0x01
	magWhoAmI   = 0x09
	magRegST1   = 0x10
	magBitDRDY  = 0x01
	magRegHXL   = 0x11
	magRegCNTL2 = 0x31
	magRegCNTL3 = 0x32
	// Continuous measurement mode 4 (100 Hz).
	magMode100Hz = 0x08
	magSoftReset = 0x01
	// ST2 overflow flag.
	magBitHOFL = 0x08

	magScale = 0.15 // µT per LSB
)

// Sample is one reading in the units the orientation filters consume.
type Sample struct {
	Time time.Time
	// Accel in m/s².
	Ax, Ay, Az float64
	// Gyro in rad/s.
	Gx, Gy, Gz float64
	// Mag in µT, aligned with the accelerometer axes. Valid only if HasMag.
	Mx, My, Mz float64
	HasMag     bool
}

type Device struct {
	dev regIO
	mag regIO

	curBank byte
	// scales based on configured full-scale.
	scaleAccel float64
	scaleGyro  float64
}

type regIO interface {
	ReadRegU8(reg byte) (byte, error)
	ReadReg(reg byte, dst []byte) error
	WriteReg(reg, value byte) error
}

func DefaultAddress() uint16 { return addrDefault }

func MagnetometerAddress() uint16 { return magAddr }

// New probes the IMU on dev. A nil mag skips the magnetometer, leaving
// Sample.HasMag false.
func New(dev, mag *i2c.Dev) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("icm20948: dev is nil")
	}
	if mag == nil {
		return newWithIO(dev, nil)
	}
	return newWithIO(dev, mag)
}

func newWithIO(dev, mag regIO) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("icm20948: dev is nil")
	}
	d := &Device{dev: dev, curBank: 0xFF}

	who, err := d.dev.ReadRegU8(regWhoAmI)
	if err != nil {
		return nil, fmt.Errorf("icm20948: whoami read failed: %w", err)
	}
	if who != whoAmIVal {
		return nil, fmt.Errorf("icm20948: whoami=0x%02X want 0x%02X", who, whoAmIVal)
	}

	if err := d.init(); err != nil {
		return nil, err
	}
	if mag != nil {
		if err := d.initMag(mag); err != nil {
			return nil, err
		}
		d.mag = mag
	}
	return d, nil
}

func (d *Device) init() error {
	if err := d.setBank(0); err != nil {
		return err
	}
	_ = d.dev.WriteReg(regIntEnable, 0x00)

	if err := d.dev.WriteReg(regPwrMgmt1, bitReset); err != nil {
		return fmt.Errorf("icm20948: reset failed: %w", err)
	}
	sleep(100 * time.Millisecond)

	// Wake with auto-selected PLL clock.
	if err := d.dev.WriteReg(regPwrMgmt1, 0x01); err != nil {
		return fmt.Errorf("icm20948: wake failed: %w", err)
	}
	sleep(10 * time.Millisecond)

	if err := d.setBank(bank2); err != nil {
		return err
	}
	// Sample rate divider from the 1125 Hz base, ~100 Hz.
	div := byte(1125/100 - 1)
	_ = d.dev.WriteReg(regGyroSmplrt, div)
	_ = d.dev.WriteReg(regAccelSmplrt2, div)

	if err := d.dev.WriteReg(regGyroConfig, fsGyro250dps); err != nil {
		return fmt.Errorf("icm20948: gyro config failed: %w", err)
	}
	if err := d.dev.WriteReg(regAccelConfig, fsAccel4g); err != nil {
		return fmt.Errorf("icm20948: accel config failed: %w", err)
	}
	if err := d.setBank(0); err != nil {
		return err
	}

	d.scaleAccel = 4.0 / 32768.0 * standardGravity
	d.scaleGyro = 250.0 / 32768.0 * math.Pi / 180
	return nil
}

// initMag routes the AK09916 onto the host bus and starts continuous mode.
func (d *Device) initMag(mag regIO) error {
	// I2C master off, then bypass on.
	if err := d.dev.WriteReg(regUserCtrl, 0x00); err != nil {
		return fmt.Errorf("icm20948: user ctrl failed: %w", err)
	}
	if err := d.dev.WriteReg(regIntPinCfg, bitBypassEn); err != nil {
		return fmt.Errorf("icm20948: bypass enable failed: %w", err)
	}
	sleep(10 * time.Millisecond)

	who, err := mag.ReadRegU8(magRegWIA2)
	if err != nil {
		return fmt.Errorf("ak09916: whoami read failed: %w", err)
	}
	if who != magWhoAmI {
		return fmt.Errorf("ak09916: whoami=0x%02X want 0x%02X", who, magWhoAmI)
	}
	if err := mag.WriteReg(magRegCNTL3, magSoftReset); err != nil {
		return fmt.Errorf("ak09916: reset failed: %w", err)
	}
	sleep(10 * time.Millisecond)
	if err := mag.WriteReg(magRegCNTL2, magMode100Hz); err != nil {
		return fmt.Errorf("ak09916: mode set failed: %w", err)
	}
	return nil
}

func (d *Device) setBank(bank byte) error {
	if d.curBank == bank {
		return nil
	}
	if err := d.dev.WriteReg(regBankSel, bank<<4); err != nil {
		return fmt.Errorf("icm20948: set bank %d failed: %w", bank, err)
	}
	d.curBank = bank
	return nil
}

func (d *Device) Read() (Sample, error) {
	if d == nil {
		return Sample{}, fmt.Errorf("icm20948: device is nil")
	}
	if err := d.setBank(0); err != nil {
		return Sample{}, err
	}

	buf := make([]byte, 12)
	if err := d.dev.ReadReg(regAccelXoutH, buf); err != nil {
		return Sample{}, fmt.Errorf("icm20948: read sensors failed: %w", err)
	}

	be := func(i int) float64 { return float64(int16(buf[i])<<8 | int16(buf[i+1])) }
	s := Sample{
		Time: time.Now(),
		Ax:   be(0) * d.scaleAccel,
		Ay:   be(2) * d.scaleAccel,
		Az:   be(4) * d.scaleAccel,
		Gx:   be(6) * d.scaleGyro,
		Gy:   be(8) * d.scaleGyro,
		Gz:   be(10) * d.scaleGyro,
	}
	if d.mag != nil {
		if err := d.readMag(&s); err != nil {
			return Sample{}, err
		}
	}
	return s, nil
}

// readMag fills the magnetometer fields when a fresh, non-saturated
// measurement is ready. Reading through ST2 releases the data registers.
func (d *Device) readMag(s *Sample) error {
	st1, err := d.mag.ReadRegU8(magRegST1)
	if err != nil {
		return fmt.Errorf("ak09916: status read failed: %w", err)
	}
	if st1&magBitDRDY == 0 {
		return nil
	}
	// HXL..HZH, TMPS, ST2.
	buf := make([]byte, 8)
	if err := d.mag.ReadReg(magRegHXL, buf); err != nil {
		return fmt.Errorf("ak09916: read failed: %w", err)
	}
	if buf[7]&magBitHOFL != 0 {
		return nil
	}
	le := func(i int) float64 { return float64(int16(buf[i+1])<<8 | int16(buf[i])) }
	// The magnetometer die has y and z flipped relative to the accelerometer.
	s.Mx = le(0) * magScale
	s.My = -le(2) * magScale
	s.Mz = -le(4) * magScale
	s.HasMag = true
	return nil
}
