// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package gassensor

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"

	"github.com/GermanBionicSystems/gassensor/ads1x15"
	"github.com/GermanBionicSystems/gassensor/lmp91000"
)

// fakeADC returns the voltages in volts, in a loop. The raw value is the
// index into volts.
type fakeADC struct {
	volts  []physic.ElectricPotential
	reads  int
	gain   ads1x15.Gain
	rate   ads1x15.DataRate
	err    error
	halted bool
}

func (f *fakeADC) SetGain(g ads1x15.Gain) error {
	f.gain = g
	return nil
}

func (f *fakeADC) SetDataRate(r ads1x15.DataRate) error {
	f.rate = r
	return nil
}

func (f *fakeADC) ReadRaw(channel int) (int16, error) {
	if f.err != nil {
		return 0, f.err
	}
	if channel != sensorChannel {
		return 0, errors.New("unexpected channel")
	}
	i := f.reads % len(f.volts)
	f.reads++
	return int16(i), nil
}

func (f *fakeADC) ToVoltage(raw int16) physic.ElectricPotential {
	return f.volts[raw]
}

func (f *fakeADC) Halt() error {
	f.halted = true
	return nil
}

func (f *fakeADC) String() string {
	return "fakeADC"
}

type registers struct {
	TIACN  byte
	REFCN  byte
	MODECN byte
	Enable gpio.Level
}

// fakeFrontEnd records every configuration and the enable pin level at the
// time of the write.
type fakeFrontEnd struct {
	pin *gpiotest.Pin
	got []registers
	err error
}

func (f *fakeFrontEnd) Configure(tiacn, refcn, modecn byte) error {
	r := registers{TIACN: tiacn, REFCN: refcn, MODECN: modecn}
	if f.pin != nil {
		r.Enable = f.pin.Read()
	}
	f.got = append(f.got, r)
	return f.err
}

func volts(v float64) physic.ElectricPotential {
	return physic.ElectricPotential(math.Round(v * float64(physic.Volt)))
}

func approx(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(1, math.Abs(b))
}

func newFake(t *testing.T, p Profile, v ...float64) (*Dev, *fakeADC, *fakeFrontEnd) {
	t.Helper()
	adc := &fakeADC{}
	for _, x := range v {
		adc.volts = append(adc.volts, volts(x))
	}
	afe := &fakeFrontEnd{}
	d, err := NewWithDevices(adc, afe, p, nil)
	if err != nil {
		t.Fatal(err)
	}
	return d, adc, afe
}

func TestScenarioCO(t *testing.T) {
	d, _, _ := newFake(t, Catalog["CO"], 1.2)
	ppm, err := d.ReadPPM()
	if err != nil {
		t.Fatal(err)
	}
	// (1.2 - 2.5*0.2 + 0.078) / 350kΩ / 70nA
	if want := 0.778 / 350000 / 70e-9; !approx(ppm, want) {
		t.Errorf("ppm=%v expected %v", ppm, want)
	}
	if math.Abs(ppm-31.76) > 0.01 {
		t.Errorf("ppm=%v expected about 31.76", ppm)
	}
}

func TestConversion(t *testing.T) {
	c := conversion{zeroPercent: 20, calibration: 0.078, tiaOhms: 350000, nanoAmperesPerPPM: 70}
	if got := c.ppm(volts(1.2)); !approx(got, 31.755102040816325) {
		t.Errorf("ppm=%v", got)
	}
	// The zero point is 0.422V.
	if got := c.ppm(volts(0.4)); got != 0 {
		t.Errorf("ppm=%v expected 0", got)
	}
}

func TestConcentration(t *testing.T) {
	tests := []struct {
		volts, zero, cal, ohms, sens float64
		want                         float64
	}{
		{1.2, 20, 0.078, 350000, 70, 31.755102040816325},
		{0.422, 20, 0.078, 350000, 70, 0},
		// Reducing gas: the output drops below the internal zero.
		{1.0, 67, -0.015, 350000, -600, 0.69 / 350000 / 600e-9},
		{2.0, 67, -0.015, 350000, -600, 0},
		{1.5, 50, 0, 120000, 400, 0.25 / 120000 / 400e-9},
	}
	for _, tc := range tests {
		got := Concentration(tc.volts, tc.zero, tc.cal, tc.ohms, tc.sens)
		if !approx(got, tc.want) && !(tc.want == 0 && math.Abs(got) < 1e-9) {
			t.Errorf("Concentration(%v, %v, %v, %v, %v)=%v expected %v", tc.volts, tc.zero, tc.cal, tc.ohms, tc.sens, got, tc.want)
		}
	}
}

func TestClampToZero(t *testing.T) {
	for _, gas := range Gases() {
		p := Catalog[gas]
		// Sweep the voltages on the wrong side of the zero point for the
		// sensitivity sign.
		for v := 0.0; v <= 3.0; v += 0.05 {
			d, _, _ := newFake(t, p, v)
			ppm, err := d.ReadPPM()
			if err != nil {
				t.Fatal(err)
			}
			if ppm < 0 {
				t.Errorf("%s: ppm=%v at %vV", gas, ppm, v)
			}
			zero, _ := p.FrontEnd.InternalZero.Percent()
			raw := (v - ReferenceVoltage*zero/100 + p.InternalZeroCalibration) / p.NanoAmperesPerPPM
			if raw < -1e-9 && ppm != 0 {
				t.Errorf("%s: ppm=%v at %vV expected exactly 0", gas, ppm, v)
			}
		}
	}
}

func TestMonotonic(t *testing.T) {
	for _, gas := range Gases() {
		p := Catalog[gas]
		var samples []float64
		for v := 0.0; v <= 3.0; v += 0.01 {
			samples = append(samples, v)
		}
		d, _, _ := newFake(t, p, samples...)
		prev := math.NaN()
		for range samples {
			ppm, err := d.ReadPPM()
			if err != nil {
				t.Fatal(err)
			}
			if !math.IsNaN(prev) {
				if p.NanoAmperesPerPPM > 0 && ppm < prev {
					t.Errorf("%s: ppm decreased from %v to %v", gas, prev, ppm)
				}
				if p.NanoAmperesPerPPM < 0 && ppm > prev {
					t.Errorf("%s: ppm increased from %v to %v", gas, prev, ppm)
				}
			}
			prev = ppm
		}
	}
}

func TestReadPPB(t *testing.T) {
	d, _, _ := newFake(t, Catalog["H2S"], 0.6)
	ppm, err := d.ReadPPM()
	if err != nil {
		t.Fatal(err)
	}
	ppb, err := d.ReadPPB()
	if err != nil {
		t.Fatal(err)
	}
	if ppb != ppm*1000 {
		t.Errorf("ppb=%v ppm=%v", ppb, ppm)
	}
}

func TestReadAveraged(t *testing.T) {
	p := Catalog["CO"]
	// Voltages for 10, 20 and 30 ppm.
	var v []float64
	for _, ppm := range []float64{10, 20, 30} {
		v = append(v, ppm*p.NanoAmperesPerPPM*1e-9*350000+0.5-p.InternalZeroCalibration)
	}
	d, adc, _ := newFake(t, p, v...)
	avg, err := d.ReadAveragedPPM(3, time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(avg-20) > 1e-6 {
		t.Errorf("average=%v expected 20", avg)
	}
	if adc.reads != 3 {
		t.Errorf("reads=%d expected 3", adc.reads)
	}

	avgPPB, err := d.ReadAveragedPPB(3, 0)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(avgPPB-20000) > 1e-3 {
		t.Errorf("average=%v ppb expected 20000", avgPPB)
	}
}

func TestReadAveragedConstant(t *testing.T) {
	d, _, _ := newFake(t, Catalog["SO2"], 0.9)
	single, err := d.ReadPPM()
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range []int{1, 2, 5, 10} {
		avg, err := d.ReadAveragedPPM(n, 0)
		if err != nil {
			t.Fatal(err)
		}
		if !approx(avg, single) {
			t.Errorf("count=%d average=%v single=%v", n, avg, single)
		}
	}
}

func TestReadAveragedDuration(t *testing.T) {
	d, _, _ := newFake(t, Catalog["CO"], 1.2)
	const interval = 20 * time.Millisecond
	start := time.Now()
	if _, err := d.ReadAveragedPPM(3, interval); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 3*interval {
		t.Errorf("3 samples took %s, expected at least %s", elapsed, 3*interval)
	}
}

func TestReadAveragedInvalidCount(t *testing.T) {
	d, adc, _ := newFake(t, Catalog["CO"], 1)
	for _, n := range []int{0, -1} {
		if _, err := d.ReadAveragedPPM(n, 0); !errors.Is(err, errInvalidCount) {
			t.Errorf("count=%d expected errInvalidCount, got %v", n, err)
		}
	}
	if adc.reads != 0 {
		t.Errorf("reads=%d expected none", adc.reads)
	}
}

func TestReadError(t *testing.T) {
	d, adc, _ := newFake(t, Catalog["CO"], 1)
	busErr := errors.New("bus fault")
	adc.err = busErr
	if _, err := d.ReadPPM(); !errors.Is(err, busErr) {
		t.Errorf("expected bus fault, got %v", err)
	}
	if _, err := d.ReadAveragedPPM(3, 0); !errors.Is(err, busErr) {
		t.Errorf("expected bus fault, got %v", err)
	}
	if _, err := d.ReadVoltage(); !errors.Is(err, busErr) {
		t.Errorf("expected bus fault, got %v", err)
	}
}

func TestNewWithDevices(t *testing.T) {
	pin := &gpiotest.Pin{N: "MENB", Num: 17}
	adc := &fakeADC{volts: []physic.ElectricPotential{physic.Volt}}
	afe := &fakeFrontEnd{pin: pin}
	d, err := NewWithDevices(adc, afe, Catalog["NO"], &Opts{EnablePin: pin})
	if err != nil {
		t.Fatal(err)
	}
	if adc.gain != ads1x15.Gain2048mV {
		t.Errorf("gain=%s", adc.gain)
	}
	if adc.rate != ads1x15.RateSlowest {
		t.Errorf("rate=%d", adc.rate)
	}
	want := []registers{{TIACN: 0x18, REFCN: 0x97, MODECN: 0x03, Enable: gpio.Low}}
	if diff := cmp.Diff(want, afe.got); diff != "" {
		t.Errorf("front end writes (-want +got):\n%s", diff)
	}
	if pin.Read() != gpio.High {
		t.Error("enable pin must be released after configuration")
	}
	if g := d.TIAGain(); g != 120000 {
		t.Errorf("TIA gain=%v", g)
	}

	// Re-applying the settings writes the same registers.
	if err = d.Configure(); err != nil {
		t.Fatal(err)
	}
	want = append(want, want[0])
	if diff := cmp.Diff(want, afe.got); diff != "" {
		t.Errorf("front end writes (-want +got):\n%s", diff)
	}
	if v, err := d.ReadVoltage(); err != nil || v != physic.Volt {
		t.Errorf("voltage=%s err=%v", v, err)
	}
	if d.Profile().Name != "NO" {
		t.Errorf("profile=%s", d.Profile().Name)
	}
	if s := d.String(); s != "gassensor: NO" {
		t.Errorf("String()=%q", s)
	}
	if err = d.Halt(); err != nil {
		t.Error(err)
	}
	if !adc.halted {
		t.Error("ADC not halted")
	}
}

func TestConfigureFailure(t *testing.T) {
	pin := &gpiotest.Pin{N: "MENB", Num: 17}
	afeErr := errors.New("nack")
	afe := &fakeFrontEnd{pin: pin, err: afeErr}
	adc := &fakeADC{volts: []physic.ElectricPotential{physic.Volt}}
	if _, err := NewWithDevices(adc, afe, Catalog["CO"], &Opts{EnablePin: pin}); !errors.Is(err, afeErr) {
		t.Errorf("expected nack, got %v", err)
	}
	if pin.Read() != gpio.High {
		t.Error("enable pin must be released after a failed configuration")
	}

	// A reader whose configuration later fails refuses to convert.
	afe.err = nil
	d, err := NewWithDevices(adc, afe, Catalog["CO"], nil)
	if err != nil {
		t.Fatal(err)
	}
	afe.err = afeErr
	if err = d.Configure(); !errors.Is(err, afeErr) {
		t.Errorf("expected nack, got %v", err)
	}
	if _, err = d.ReadPPM(); !errors.Is(err, errNotConfigured) {
		t.Errorf("expected errNotConfigured, got %v", err)
	}
}

func TestExternalTIAGain(t *testing.T) {
	p := Catalog["CO"]
	p.Name = "CO-ext"
	p.FrontEnd.TIAGain = lmp91000.TIAGainExternal
	adc := &fakeADC{volts: []physic.ElectricPotential{volts(1.2)}}

	if _, err := NewWithDevices(adc, &fakeFrontEnd{}, p, nil); !errors.Is(err, errExternalGain) {
		t.Errorf("expected errExternalGain, got %v", err)
	}
	if _, err := NewWithDevices(adc, &fakeFrontEnd{}, p, &Opts{ExternalTIAGain: -5}); !errors.Is(err, errInvalidGain) {
		t.Errorf("expected errInvalidGain, got %v", err)
	}

	afe := &fakeFrontEnd{}
	d, err := NewWithDevices(adc, afe, p, &Opts{ExternalTIAGain: 350000})
	if err != nil {
		t.Fatal(err)
	}
	if afe.got[0].TIACN != 0x00 {
		t.Errorf("TIACN=0x%02x", afe.got[0].TIACN)
	}
	ppm, err := d.ReadPPM()
	if err != nil {
		t.Fatal(err)
	}
	if !approx(ppm, 31.755102040816325) {
		t.Errorf("ppm=%v", ppm)
	}

	// Halving the resistance doubles the concentration.
	if err = d.SetCustomTIAGain(175000); err != nil {
		t.Fatal(err)
	}
	if ppm2, _ := d.ReadPPM(); !approx(ppm2, 2*ppm) {
		t.Errorf("ppm=%v expected %v", ppm2, 2*ppm)
	}
	// The override survives a reconfiguration.
	if err = d.Configure(); err != nil {
		t.Fatal(err)
	}
	if g := d.TIAGain(); g != 175000 {
		t.Errorf("TIA gain=%v", g)
	}
	for _, bad := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if err = d.SetCustomTIAGain(bad); !errors.Is(err, errInvalidGain) {
			t.Errorf("SetCustomTIAGain(%v) expected errInvalidGain, got %v", bad, err)
		}
	}
}

func TestInvalidProfile(t *testing.T) {
	p := Catalog["CO"]
	p.FrontEnd.InternalZero = lmp91000.InternalZeroBypassed
	if _, err := NewWithDevices(&fakeADC{}, &fakeFrontEnd{}, p, nil); !errors.Is(err, errZeroBypassed) {
		t.Errorf("expected errZeroBypassed, got %v", err)
	}
	p = Catalog["CO"]
	p.FrontEnd.OpMode = lmp91000.ModeDeepSleep
	afe := &fakeFrontEnd{}
	if _, err := NewWithDevices(&fakeADC{}, afe, p, nil); !errors.Is(err, errNotMeasuring) {
		t.Errorf("expected errNotMeasuring, got %v", err)
	}
	if len(afe.got) != 0 {
		t.Errorf("front end configured with an invalid profile: %+v", afe.got)
	}
	p = Catalog["CO"]
	p.NanoAmperesPerPPM = 0
	if _, err := NewWithDevices(&fakeADC{}, &fakeFrontEnd{}, p, nil); err == nil {
		t.Error("expected error for zero sensitivity")
	}
}

func TestSenseContinuous(t *testing.T) {
	d, _, _ := newFake(t, Catalog["CO"], 1.2)
	if _, err := d.SenseContinuous(0); !errors.Is(err, errInvalidPeriod) {
		t.Errorf("expected errInvalidPeriod, got %v", err)
	}
	ch, err := d.SenseContinuous(5 * time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if _, err = d.SenseContinuous(5 * time.Millisecond); !errors.Is(err, errAlreadySensing) {
		t.Errorf("expected errAlreadySensing, got %v", err)
	}
	for i := 0; i < 3; i++ {
		r := <-ch
		if r.Voltage != volts(1.2) || !approx(r.PPM, 31.755102040816325) {
			t.Errorf("reading=%+v", r)
		}
		if r.PPB() != r.PPM*1000 {
			t.Errorf("ppb=%v", r.PPB())
		}
	}
	if err = d.Halt(); err != nil {
		t.Error(err)
	}
	for range ch {
	}
}

// adcPresence is the config register read done when opening the converter.
var adcPresence = i2ctest.IO{Addr: DefaultADCAddress, W: []byte{0x01}, R: []byte{0x85, 0x83}}

// coFrontEnd is the LMP91000 configuration of the CO profile.
var coFrontEnd = []i2ctest.IO{
	{Addr: FrontEndAddress, W: []byte{0x00}, R: []byte{0x01}},
	{Addr: FrontEndAddress, W: []byte{0x01, 0x00}},
	{Addr: FrontEndAddress, W: []byte{0x10, 0x1c}},
	{Addr: FrontEndAddress, W: []byte{0x11, 0x80}},
	{Addr: FrontEndAddress, W: []byte{0x12, 0x03}},
	{Addr: FrontEndAddress, W: []byte{0x01, 0x01}},
}

// TestNewI2C replays the bus traffic of a CO sensor on the reference
// breakout: converter presence check, front end configuration then one
// conversion.
func TestNewI2C(t *testing.T) {
	ops := append([]i2ctest.IO{adcPresence}, coFrontEnd...)
	ops = append(ops, []i2ctest.IO{
		// ±4.096V, 128 SPS, AIN0 single shot.
		{Addr: DefaultADCAddress, W: []byte{0x01, 0xc3, 0x03}},
		{Addr: DefaultADCAddress, W: []byte{0x01}, R: []byte{0xc3, 0x03}},
		{Addr: DefaultADCAddress, W: []byte{0x00}, R: []byte{0x25, 0x80}},
	}...)
	pb := &i2ctest.Playback{Ops: ops, DontPanic: true}
	d, err := New(pb, Catalog["CO"], nil)
	if err != nil {
		t.Fatal(err)
	}
	var r Reading
	if err = d.Sense(&r); err != nil {
		t.Fatal(err)
	}
	if r.Voltage != 1200586223*physic.NanoVolt {
		t.Errorf("voltage=%s", r.Voltage)
	}
	if math.Abs(r.PPM-31.779) > 0.001 {
		t.Errorf("ppm=%v expected about 31.779", r.PPM)
	}
	if err = pb.Close(); err != nil {
		t.Error(err)
	}
}

func TestNewI2CFailure(t *testing.T) {
	pb := &i2ctest.Playback{DontPanic: true}
	if _, err := New(pb, Catalog["CO"], nil); err == nil {
		t.Error("expected error from empty playback")
	}
	if _, err := New(pb, Catalog["CO"], &Opts{ADCVariant: "ADS1234"}); err == nil {
		t.Error("expected error for unknown variant")
	}

	// Only the front end answers: the missing converter fails New.
	pb = &i2ctest.Playback{Ops: coFrontEnd, DontPanic: true}
	if _, err := New(pb, Catalog["CO"], nil); err == nil {
		t.Error("expected error without a converter")
	}
	// Converter at the wrong address.
	pb = &i2ctest.Playback{Ops: append([]i2ctest.IO{adcPresence}, coFrontEnd...), DontPanic: true}
	if _, err := New(pb, Catalog["CO"], &Opts{ADCAddress: 0x4a}); err == nil {
		t.Error("expected error with the converter at another address")
	}
}
