// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package gassensor

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/multierr"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"

	"github.com/GermanBionicSystems/gassensor/ads1x15"
	"github.com/GermanBionicSystems/gassensor/lmp91000"
)

const (
	// DefaultADCAddress is the converter address on the reference breakout.
	DefaultADCAddress uint16 = 0x49
	// FrontEndAddress is the fixed address of the LMP91000.
	FrontEndAddress = lmp91000.Address

	// ReferenceVoltage is the front end's regulated reference rail, in volts.
	ReferenceVoltage = 2.5

	// The front end output is wired to AIN0.
	sensorChannel = 0

	continuousBuffer = 16
)

var (
	errNotConfigured  = errors.New("gassensor: front end not configured")
	errExternalGain   = errors.New("gassensor: profile uses an external TIA resistor, set its value first")
	errInvalidGain    = errors.New("gassensor: TIA gain must be a positive number of ohms")
	errZeroBypassed   = errors.New("gassensor: bypassed internal zero is not supported")
	errNotMeasuring   = errors.New("gassensor: front end mode does not measure the cell current")
	errInvalidCount   = errors.New("gassensor: sample count must be positive")
	errInvalidPeriod  = errors.New("gassensor: interval must be positive")
	errAlreadySensing = errors.New("gassensor: continuous sensing already running")
)

// ADC is the converter sampling the front end output. *ads1x15.Dev
// implements it.
type ADC interface {
	SetGain(g ads1x15.Gain) error
	SetDataRate(r ads1x15.DataRate) error
	ReadRaw(channel int) (int16, error)
	ToVoltage(raw int16) physic.ElectricPotential
}

// FrontEnd is the analog front end receiving the TIACN, REFCN and MODECN
// values. *lmp91000.Dev implements it.
type FrontEnd interface {
	Configure(tiacn, refcn, modecn byte) error
}

// Opts holds the board specific settings.
type Opts struct {
	// ADCAddress defaults to DefaultADCAddress.
	ADCAddress uint16
	// ADCVariant defaults to ads1x15.ADS1015.
	ADCVariant ads1x15.Variant
	// EnablePin is the active low MENB line. Leave nil when MENB is tied to
	// GND.
	EnablePin gpio.PinOut
	// ExternalTIAGain is the resistance, in ohms, fitted between C1 and C2.
	// Required when the profile uses lmp91000.TIAGainExternal.
	ExternalTIAGain float64
}

// Reading is one sample of the sensor.
type Reading struct {
	Voltage physic.ElectricPotential
	// PPM is the concentration in parts per million, never negative.
	PPM float64
}

// PPB returns the concentration in parts per billion.
func (r Reading) PPB() float64 {
	return r.PPM * 1000
}

// conversion turns a front end output voltage into a concentration.
type conversion struct {
	zeroPercent       float64
	calibration       float64
	tiaOhms           float64
	nanoAmperesPerPPM float64
}

func (c conversion) ppm(v physic.ElectricPotential) float64 {
	volts := float64(v) / float64(physic.Volt)
	return Concentration(volts, c.zeroPercent, c.calibration, c.tiaOhms, c.nanoAmperesPerPPM)
}

// Concentration converts a TIA output, in volts, into parts per million.
//
// zeroPercent is the internal zero as a percentage of ReferenceVoltage,
// calibration is added to the output after removing the internal zero and
// tiaOhms is the transimpedance gain. Negative results are reported as 0.
func Concentration(volts, zeroPercent, calibration, tiaOhms, nanoAmperesPerPPM float64) float64 {
	volts -= ReferenceVoltage * zeroPercent / 100
	volts += calibration
	current := volts / tiaOhms
	ppm := current / (nanoAmperesPerPPM * 1e-9)
	if ppm < 0 {
		return 0
	}
	return ppm
}

// Dev is a gas sensor made of a front end and a converter. It owns both.
type Dev struct {
	mu         sync.Mutex
	adc        ADC
	afe        FrontEnd
	profile    Profile
	enable     gpio.PinOut
	customGain float64
	configured bool
	conv       conversion
	stop       chan struct{}
}

// New initializes the sensor described by p on bus: it opens the converter
// and the front end, selects the profile's ADC range and the slowest data
// rate, releases the enable pin and configures the front end.
func New(bus i2c.Bus, p Profile, opts *Opts) (*Dev, error) {
	o := Opts{}
	if opts != nil {
		o = *opts
	}
	if o.ADCAddress == 0 {
		o.ADCAddress = DefaultADCAddress
	}
	if o.ADCVariant == "" {
		o.ADCVariant = ads1x15.ADS1015
	}
	adc, err := ads1x15.New(bus, o.ADCAddress, o.ADCVariant)
	if err != nil {
		return nil, fmt.Errorf("gassensor: %w", err)
	}
	afe, err := lmp91000.New(bus)
	if err != nil {
		return nil, fmt.Errorf("gassensor: %w", err)
	}
	return NewWithDevices(adc, afe, p, &o)
}

// NewWithDevices is New with caller supplied devices. opts.ADCAddress and
// opts.ADCVariant are ignored.
func NewWithDevices(adc ADC, afe FrontEnd, p Profile, opts *Opts) (*Dev, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &Opts{}
	}
	d := &Dev{adc: adc, afe: afe, profile: p, enable: opts.EnablePin}
	if opts.ExternalTIAGain != 0 {
		if err := d.SetCustomTIAGain(opts.ExternalTIAGain); err != nil {
			return nil, err
		}
	}
	if err := adc.SetGain(p.ADCGain); err != nil {
		return nil, fmt.Errorf("gassensor: setting ADC gain: %w", err)
	}
	if err := adc.SetDataRate(ads1x15.RateSlowest); err != nil {
		return nil, fmt.Errorf("gassensor: setting ADC data rate: %w", err)
	}
	if d.enable != nil {
		if err := d.enable.Out(gpio.High); err != nil {
			return nil, fmt.Errorf("gassensor: releasing enable pin: %w", err)
		}
	}
	if err := d.Configure(); err != nil {
		return nil, err
	}
	return d, nil
}

// Configure writes the profile's settings to the front end and caches the
// TIA gain and internal zero used by the conversion. The enable pin, if
// any, is held low for the duration of the write. It may be called again
// to re-apply the settings after the front end lost power.
func (d *Dev) Configure() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.configure()
}

func (d *Dev) configure() (err error) {
	gain, err := d.tiaGain()
	if err != nil {
		return err
	}
	zero, ok := d.profile.FrontEnd.InternalZero.Percent()
	if !ok {
		return errZeroBypassed
	}

	if d.enable != nil {
		if err = d.enable.Out(gpio.Low); err != nil {
			return fmt.Errorf("gassensor: asserting enable pin: %w", err)
		}
		defer func() {
			if perr := d.enable.Out(gpio.High); perr != nil {
				err = multierr.Append(err, fmt.Errorf("gassensor: releasing enable pin: %w", perr))
			}
		}()
	}

	tiacn, refcn, modecn := d.profile.Registers()
	if err = d.afe.Configure(tiacn, refcn, modecn); err != nil {
		d.configured = false
		return fmt.Errorf("gassensor: configuring front end: %w", err)
	}
	d.conv = conversion{
		zeroPercent:       zero,
		calibration:       d.profile.InternalZeroCalibration,
		tiaOhms:           gain,
		nanoAmperesPerPPM: d.profile.NanoAmperesPerPPM,
	}
	d.configured = true
	return nil
}

// tiaGain returns the custom gain when set, the decoded profile gain
// otherwise.
func (d *Dev) tiaGain() (float64, error) {
	if d.customGain > 0 {
		return d.customGain, nil
	}
	if ohms, ok := d.profile.FrontEnd.TIAGain.Ohms(); ok {
		return ohms, nil
	}
	return 0, errExternalGain
}

// SetCustomTIAGain overrides the TIA gain, in ohms. It is required before
// configuring a profile using lmp91000.TIAGainExternal and takes precedence
// over the profile's gain from then on.
func (d *Dev) SetCustomTIAGain(ohms float64) error {
	if !(ohms > 0) || math.IsInf(ohms, 0) {
		return errInvalidGain
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.customGain = ohms
	d.conv.tiaOhms = ohms
	return nil
}

// TIAGain returns the TIA gain, in ohms, used by the conversion.
func (d *Dev) TIAGain() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conv.tiaOhms
}

// Profile returns the profile the sensor was created with.
func (d *Dev) Profile() Profile {
	return d.profile
}

// ReadVoltage samples the front end output. Each call performs a new
// conversion.
func (d *Dev) ReadVoltage() (physic.ElectricPotential, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readVoltage()
}

func (d *Dev) readVoltage() (physic.ElectricPotential, error) {
	raw, err := d.adc.ReadRaw(sensorChannel)
	if err != nil {
		return 0, fmt.Errorf("gassensor: %w", err)
	}
	return d.adc.ToVoltage(raw), nil
}

// Sense takes a new sample and stores the voltage and concentration in r.
func (d *Dev) Sense(r *Reading) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.configured {
		return errNotConfigured
	}
	v, err := d.readVoltage()
	if err != nil {
		return err
	}
	r.Voltage = v
	r.PPM = d.conv.ppm(v)
	return nil
}

// ReadPPM takes a new sample and returns the concentration in parts per
// million.
func (d *Dev) ReadPPM() (float64, error) {
	var r Reading
	err := d.Sense(&r)
	return r.PPM, err
}

// ReadPPB takes a new sample and returns the concentration in parts per
// billion.
func (d *Dev) ReadPPB() (float64, error) {
	var r Reading
	err := d.Sense(&r)
	return r.PPB(), err
}

// ReadAveragedPPM returns the mean of count samples, waiting interval after
// each one. It blocks for at least count*interval plus the conversion
// times. The first failing sample aborts the average.
func (d *Dev) ReadAveragedPPM(count int, interval time.Duration) (float64, error) {
	if count <= 0 {
		return 0, errInvalidCount
	}
	var sum float64
	for i := 0; i < count; i++ {
		ppm, err := d.ReadPPM()
		if err != nil {
			return 0, err
		}
		sum += ppm
		time.Sleep(interval)
	}
	return sum / float64(count), nil
}

// ReadAveragedPPB is ReadAveragedPPM in parts per billion.
func (d *Dev) ReadAveragedPPB(count int, interval time.Duration) (float64, error) {
	ppm, err := d.ReadAveragedPPM(count, interval)
	return ppm * 1000, err
}

// SenseContinuous samples the sensor every interval and sends the readings
// on the returned channel. Failed samples are skipped, and readings are
// dropped while the channel is full. Call Halt to stop; the channel is then
// closed.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan Reading, error) {
	if interval <= 0 {
		return nil, errInvalidPeriod
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return nil, errAlreadySensing
	}
	d.stop = make(chan struct{})
	ch := make(chan Reading, continuousBuffer)
	go d.senseLoop(ch, d.stop, interval)
	return ch, nil
}

func (d *Dev) senseLoop(ch chan<- Reading, stop <-chan struct{}, interval time.Duration) {
	defer close(ch)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			var r Reading
			if err := d.Sense(&r); err != nil {
				continue
			}
			select {
			case ch <- r:
			default:
			}
		}
	}
}

// Halt stops continuous sensing and halts both devices. Implements
// conn.Resource.
func (d *Dev) Halt() error {
	d.mu.Lock()
	if d.stop != nil {
		close(d.stop)
		d.stop = nil
	}
	d.mu.Unlock()
	var err error
	if r, ok := d.adc.(conn.Resource); ok {
		err = multierr.Append(err, r.Halt())
	}
	if r, ok := d.afe.(conn.Resource); ok {
		err = multierr.Append(err, r.Halt())
	}
	return err
}

func (d *Dev) String() string {
	return fmt.Sprintf("gassensor: %s", d.profile.Name)
}

var _ conn.Resource = &Dev{}
var _ ADC = &ads1x15.Dev{}
var _ FrontEnd = &lmp91000.Dev{}
