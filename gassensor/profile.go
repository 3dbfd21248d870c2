// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package gassensor

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/GermanBionicSystems/gassensor/ads1x15"
	"github.com/GermanBionicSystems/gassensor/lmp91000"
)

// Profile describes one gas sensor type: its datasheet sensitivity, the
// calibration offset, the ADC range and the front end settings. Register
// values are always derived from the discrete front end fields.
type Profile struct {
	Name string `json:"name"`
	// NanoAmperesPerPPM is the cell sensitivity. Negative values are used for
	// gases which reduce the cell current (e.g. NO2, O3).
	NanoAmperesPerPPM float64 `json:"nanoamperes_per_ppm"`
	// InternalZeroCalibration is added, in volts, to the reading once the
	// internal zero has been removed.
	InternalZeroCalibration float64         `json:"internal_zero_calibration"`
	ADCGain                 ads1x15.Gain    `json:"adc_gain"`
	FrontEnd                lmp91000.Config `json:"front_end"`
}

// Validate reports whether the profile can be used to configure the front
// end and compute concentrations.
func (p *Profile) Validate() error {
	if p.NanoAmperesPerPPM == 0 || math.IsNaN(p.NanoAmperesPerPPM) || math.IsInf(p.NanoAmperesPerPPM, 0) {
		return fmt.Errorf("gassensor: profile %q: invalid sensitivity %v nA/ppm", p.Name, p.NanoAmperesPerPPM)
	}
	if math.IsNaN(p.InternalZeroCalibration) || math.IsInf(p.InternalZeroCalibration, 0) {
		return fmt.Errorf("gassensor: profile %q: invalid internal zero calibration", p.Name)
	}
	if !p.ADCGain.Valid() {
		return fmt.Errorf("gassensor: profile %q: invalid ADC gain %d", p.Name, p.ADCGain)
	}
	if err := p.FrontEnd.Validate(); err != nil {
		return fmt.Errorf("gassensor: profile %q: %w", p.Name, err)
	}
	if _, ok := p.FrontEnd.InternalZero.Percent(); !ok {
		return fmt.Errorf("gassensor: profile %q: %w", p.Name, errZeroBypassed)
	}
	switch p.FrontEnd.OpMode {
	case lmp91000.ModeThreeLeadAmp, lmp91000.ModeTwoLeadGround:
	default:
		return fmt.Errorf("gassensor: profile %q: mode %s: %w", p.Name, p.FrontEnd.OpMode, errNotMeasuring)
	}
	return nil
}

// Registers returns the TIACN, REFCN and MODECN values for the profile.
func (p *Profile) Registers() (tiacn, refcn, modecn byte) {
	return p.FrontEnd.Registers()
}

// Catalog holds the built-in sensor profiles keyed by gas. The values are
// for the SGX Sensortech 4-series cells on the reference breakout. They are
// calibration data; integrators with different cells should supply their
// own through ParseProfiles.
//
// Do not modify.
var Catalog = map[string]Profile{
	"CO": {
		Name:                    "CO",
		NanoAmperesPerPPM:       70,
		InternalZeroCalibration: 0.078,
		ADCGain:                 ads1x15.Gain4096mV,
		FrontEnd:                amperometric(lmp91000.TIAGain350k, lmp91000.InternalZero20, lmp91000.BiasNegative, lmp91000.Bias0),
	},
	"NO2": {
		Name:                    "NO2",
		NanoAmperesPerPPM:       -600,
		InternalZeroCalibration: -0.015,
		ADCGain:                 ads1x15.Gain2048mV,
		FrontEnd:                amperometric(lmp91000.TIAGain350k, lmp91000.InternalZero67, lmp91000.BiasNegative, lmp91000.Bias0),
	},
	"SO2": {
		Name:                    "SO2",
		NanoAmperesPerPPM:       400,
		InternalZeroCalibration: 0.1,
		ADCGain:                 ads1x15.Gain2048mV,
		FrontEnd:                amperometric(lmp91000.TIAGain120k, lmp91000.InternalZero20, lmp91000.BiasPositive, lmp91000.Bias0),
	},
	"O3": {
		Name:                    "O3",
		NanoAmperesPerPPM:       -1000,
		InternalZeroCalibration: -1.65,
		ADCGain:                 ads1x15.Gain2048mV,
		FrontEnd:                amperometric(lmp91000.TIAGain120k, lmp91000.InternalZero20, lmp91000.BiasPositive, lmp91000.Bias0),
	},
	"NO": {
		Name:                    "NO",
		NanoAmperesPerPPM:       400,
		InternalZeroCalibration: 0.5,
		ADCGain:                 ads1x15.Gain2048mV,
		FrontEnd:                amperometric(lmp91000.TIAGain120k, lmp91000.InternalZero20, lmp91000.BiasPositive, lmp91000.Bias12),
	},
	"H2S": {
		Name:                    "H2S",
		NanoAmperesPerPPM:       1200,
		InternalZeroCalibration: 0.1,
		ADCGain:                 ads1x15.Gain2048mV,
		FrontEnd:                amperometric(lmp91000.TIAGain350k, lmp91000.InternalZero20, lmp91000.BiasPositive, lmp91000.Bias0),
	},
	"NH3": {
		Name:                    "NH3",
		NanoAmperesPerPPM:       40,
		InternalZeroCalibration: 0.5,
		ADCGain:                 ads1x15.Gain2048mV,
		FrontEnd:                amperometric(lmp91000.TIAGain120k, lmp91000.InternalZero20, lmp91000.BiasPositive, lmp91000.Bias0),
	},
}

// amperometric returns the 3-lead cell settings shared by every catalog
// entry: 10Ω load, external reference, FET short disabled.
func amperometric(g lmp91000.TIAGain, z lmp91000.InternalZero, s lmp91000.BiasSign, b lmp91000.Bias) lmp91000.Config {
	return lmp91000.Config{
		TIAGain:      g,
		RLoad:        lmp91000.RLoad10,
		RefSource:    lmp91000.RefExternal,
		InternalZero: z,
		BiasSign:     s,
		Bias:         b,
		FETShort:     lmp91000.FETShortDisabled,
		OpMode:       lmp91000.ModeThreeLeadAmp,
	}
}

// Lookup returns the catalog profile for gas, ignoring case.
func Lookup(gas string) (Profile, bool) {
	p, ok := Catalog[strings.ToUpper(gas)]
	return p, ok
}

// Gases returns the sorted names of the catalog profiles.
func Gases() []string {
	names := make([]string, 0, len(Catalog))
	for n := range Catalog {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ParseProfiles decodes a JSON array of profiles and validates each of them.
// Front end fields are written by name, for example:
//
//	[{"name": "CO", "nanoamperes_per_ppm": 75, "internal_zero_calibration": 0.078,
//	  "adc_gain": "4.096V",
//	  "front_end": {"tia_gain": "350k", "rload": "10", "ref_source": "external",
//	    "internal_zero": "20%", "bias_sign": "negative", "bias": "0%",
//	    "fet_short": "disabled", "op_mode": "3-lead-amperometric"}}]
//
// The result is keyed by upper-cased name. Duplicate names are rejected.
func ParseProfiles(r io.Reader) (map[string]Profile, error) {
	var list []Profile
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&list); err != nil {
		return nil, fmt.Errorf("gassensor: decoding profiles: %w", err)
	}
	out := make(map[string]Profile, len(list))
	for i := range list {
		p := list[i]
		if p.Name == "" {
			return nil, fmt.Errorf("gassensor: profile #%d has no name", i)
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		key := strings.ToUpper(p.Name)
		if _, dup := out[key]; dup {
			return nil, fmt.Errorf("gassensor: duplicate profile %q", p.Name)
		}
		out[key] = p
	}
	return out, nil
}
