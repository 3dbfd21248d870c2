// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ads1x15 controls a Texas Instruments ADS1015 (12 bit) or ADS1115
// (16 bit) analog to digital converter over an I²C bus.
//
// Conversions are performed in single-shot mode: the driver starts a
// conversion, waits for it to complete and reads the result. Only
// single-ended inputs measured against GND are supported.
//
// # Datasheets
//
// https://www.ti.com/lit/ds/symlink/ads1015.pdf
//
// https://www.ti.com/lit/ds/symlink/ads1115.pdf
package ads1x15

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// Variant represents the model of the device.
type Variant string

const (
	ADS1015 Variant = "ADS1015"
	ADS1115 Variant = "ADS1115"

	// DefaultAddress is the address with ADDR tied to GND.
	DefaultAddress uint16 = 0x48

	// Channels is the number of single-ended inputs.
	Channels = 4

	regConversion byte = 0x00
	regConfig     byte = 0x01

	cfgOSSingle   uint16 = 1 << 15
	cfgMuxShift          = 12
	cfgMuxSingle  uint16 = 0x4 // AINx against GND
	cfgPGAShift          = 9
	cfgModeSingle uint16 = 1 << 8
	cfgDRShift           = 5
	cfgCompQueOff uint16 = 0x0003

	// Extra margin on top of the nominal conversion period, the internal
	// oscillator is only accurate to 10%.
	conversionMargin = 100 * time.Microsecond
	readyPolls       = 10
)

// Gain selects the programmable gain amplifier full-scale range.
type Gain uint8

const (
	Gain6144mV Gain = iota
	Gain4096mV
	Gain2048mV
	Gain1024mV
	Gain512mV
	Gain256mV
)

var gainFullScale = [...]physic.ElectricPotential{
	6144 * physic.MilliVolt,
	4096 * physic.MilliVolt,
	2048 * physic.MilliVolt,
	1024 * physic.MilliVolt,
	512 * physic.MilliVolt,
	256 * physic.MilliVolt,
}

var gainNames = []string{"6.144V", "4.096V", "2.048V", "1.024V", "0.512V", "0.256V"}

// FullScale returns the positive full-scale voltage of the range.
func (g Gain) FullScale() physic.ElectricPotential {
	if int(g) >= len(gainFullScale) {
		return 0
	}
	return gainFullScale[g]
}

// Valid reports whether g is one of the six ranges.
func (g Gain) Valid() bool {
	return int(g) < len(gainFullScale)
}

func (g Gain) String() string {
	if !g.Valid() {
		return fmt.Sprintf("invalid(%d)", uint8(g))
	}
	return "±" + gainNames[g]
}

// MarshalText implements encoding.TextMarshaler.
func (g Gain) MarshalText() ([]byte, error) {
	if !g.Valid() {
		return nil, errInvalidGain
	}
	return []byte(gainNames[g]), nil
}

// UnmarshalText accepts the range written as "4.096V" or "±4.096V".
func (g *Gain) UnmarshalText(b []byte) error {
	s := strings.TrimPrefix(string(b), "±")
	for i, n := range gainNames {
		if strings.EqualFold(n, s) {
			*g = Gain(i)
			return nil
		}
	}
	return fmt.Errorf("%w %q", errInvalidGain, string(b))
}

// DataRate is the index into the variant's table of sample rates. 0 is the
// slowest and least noisy rate.
type DataRate uint8

const (
	RateSlowest DataRate = 0
)

var samplesPerSecond = map[Variant][]int{
	ADS1015: {128, 250, 490, 920, 1600, 2400, 3300, 3300},
	ADS1115: {8, 16, 32, 64, 128, 250, 475, 860},
}

// SamplesPerSecond returns the conversion rate for r, or 0 if r is not valid
// for the variant.
func (v Variant) SamplesPerSecond(r DataRate) int {
	rates := samplesPerSecond[v]
	if int(r) >= len(rates) {
		return 0
	}
	return rates[r]
}

func (v Variant) bits() uint {
	if v == ADS1015 {
		return 12
	}
	return 16
}

var (
	errInvalidVariant  = errors.New("ads1x15: invalid variant")
	errInvalidGain     = errors.New("ads1x15: invalid gain")
	errInvalidDataRate = errors.New("ads1x15: invalid data rate")
	errInvalidChannel  = errors.New("ads1x15: invalid channel")
	errTimeout         = errors.New("ads1x15: conversion did not complete")
)

// Dev represents an ADS1015 or ADS1115.
type Dev struct {
	d       *i2c.Dev
	mu      sync.Mutex
	variant Variant
	gain    Gain
	rate    DataRate
}

// New returns a handle to the converter at addr. The device starts with the
// ±2.048V range and the slowest data rate.
//
// The config register is read once to verify that the converter answers.
func New(bus i2c.Bus, addr uint16, variant Variant) (*Dev, error) {
	if _, ok := samplesPerSecond[variant]; !ok {
		return nil, errInvalidVariant
	}
	dev := &Dev{
		d:       &i2c.Dev{Bus: bus, Addr: addr},
		variant: variant,
		gain:    Gain2048mV,
		rate:    RateSlowest,
	}
	r := make([]byte, 2)
	if err := dev.d.Tx([]byte{regConfig}, r); err != nil {
		return nil, fmt.Errorf("ads1x15: no converter at 0x%02x: %w", addr, err)
	}
	return dev, nil
}

// SetGain selects the full-scale range used by subsequent conversions.
func (dev *Dev) SetGain(g Gain) error {
	if !g.Valid() {
		return errInvalidGain
	}
	dev.mu.Lock()
	dev.gain = g
	dev.mu.Unlock()
	return nil
}

// Gain returns the configured range.
func (dev *Dev) Gain() Gain {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.gain
}

// SetDataRate selects the conversion rate used by subsequent conversions.
func (dev *Dev) SetDataRate(r DataRate) error {
	if dev.variant.SamplesPerSecond(r) == 0 {
		return errInvalidDataRate
	}
	dev.mu.Lock()
	dev.rate = r
	dev.mu.Unlock()
	return nil
}

// config returns the configuration word for a single-shot conversion of
// channel.
func (dev *Dev) config(channel int) uint16 {
	return cfgOSSingle |
		(cfgMuxSingle+uint16(channel))<<cfgMuxShift |
		uint16(dev.gain)<<cfgPGAShift |
		cfgModeSingle |
		uint16(dev.rate)<<cfgDRShift |
		cfgCompQueOff
}

func (dev *Dev) conversionTime() time.Duration {
	return time.Second/time.Duration(dev.variant.SamplesPerSecond(dev.rate)) + conversionMargin
}

// ReadRaw performs a single-shot conversion of the single-ended input
// channel and returns the signed result, right aligned. It blocks for one
// conversion period.
func (dev *Dev) ReadRaw(channel int) (int16, error) {
	if channel < 0 || channel >= Channels {
		return 0, errInvalidChannel
	}
	dev.mu.Lock()
	defer dev.mu.Unlock()

	cfg := dev.config(channel)
	w := []byte{regConfig, byte(cfg >> 8), byte(cfg)}
	if err := dev.d.Tx(w, nil); err != nil {
		return 0, fmt.Errorf("ads1x15: starting conversion: %w", err)
	}
	wait := dev.conversionTime()
	time.Sleep(wait)

	r := make([]byte, 2)
	ready := false
	for i := 0; i < readyPolls; i++ {
		if err := dev.d.Tx([]byte{regConfig}, r); err != nil {
			return 0, fmt.Errorf("ads1x15: polling conversion: %w", err)
		}
		if uint16(r[0])<<8&cfgOSSingle != 0 {
			ready = true
			break
		}
		time.Sleep(wait / 10)
	}
	if !ready {
		return 0, errTimeout
	}

	if err := dev.d.Tx([]byte{regConversion}, r); err != nil {
		return 0, fmt.Errorf("ads1x15: reading conversion: %w", err)
	}
	raw := int16(uint16(r[0])<<8 | uint16(r[1]))
	// 12 bit results are left aligned.
	return raw >> (16 - dev.variant.bits()), nil
}

// ToVoltage converts a raw result to the input voltage for the configured
// range.
func (dev *Dev) ToVoltage(raw int16) physic.ElectricPotential {
	dev.mu.Lock()
	fs := dev.gain.FullScale()
	dev.mu.Unlock()
	maxCode := int64(1)<<(dev.variant.bits()-1) - 1
	return physic.ElectricPotential(int64(raw) * int64(fs) / maxCode)
}

// Read converts channel and returns its voltage.
func (dev *Dev) Read(channel int) (physic.ElectricPotential, error) {
	raw, err := dev.ReadRaw(channel)
	if err != nil {
		return 0, err
	}
	return dev.ToVoltage(raw), nil
}

// Halt implements conn.Resource. In single-shot mode the converter powers
// down after each conversion.
func (dev *Dev) Halt() error {
	return nil
}

func (dev *Dev) String() string {
	return fmt.Sprintf("%s: %s", strings.ToLower(string(dev.variant)), dev.d.String())
}

var _ conn.Resource = &Dev{}
