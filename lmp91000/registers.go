// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package lmp91000

import (
	"errors"
	"fmt"
	"strings"
)

// TIAGain selects the transimpedance amplifier feedback resistor.
type TIAGain uint8

const (
	// TIAGainExternal uses a resistor wired between pins C1 and C2. The gain
	// has no fixed value and must be supplied by the caller.
	TIAGainExternal TIAGain = iota
	TIAGain2750
	TIAGain3500
	TIAGain7000
	TIAGain14k
	TIAGain35k
	TIAGain120k
	TIAGain350k
)

// RLoad selects the load resistor in series with the working electrode.
type RLoad uint8

const (
	RLoad10 RLoad = iota
	RLoad33
	RLoad50
	RLoad100
)

// RefSource selects the voltage reference.
type RefSource uint8

const (
	RefInternal RefSource = iota
	RefExternal
)

// InternalZero selects the fraction of the reference applied as the TIA
// working point.
type InternalZero uint8

const (
	InternalZero20 InternalZero = iota
	InternalZero50
	InternalZero67
	InternalZeroBypassed
)

// BiasSign selects the polarity of the cell bias.
type BiasSign uint8

const (
	BiasNegative BiasSign = iota
	BiasPositive
)

// Bias selects the cell bias as a percentage of the reference.
type Bias uint8

const (
	Bias0 Bias = iota
	Bias1
	Bias2
	Bias4
	Bias6
	Bias8
	Bias10
	Bias12
	Bias14
	Bias16
	Bias18
	Bias20
	Bias22
	Bias24
)

// FETShort enables the shorting FET between the reference and working
// electrodes.
type FETShort uint8

const (
	FETShortDisabled FETShort = iota
	FETShortEnabled
)

// OpMode is the operating mode written to MODECN.
type OpMode uint8

const (
	ModeDeepSleep         OpMode = 0
	ModeTwoLeadGround     OpMode = 1
	ModeStandby           OpMode = 2
	ModeThreeLeadAmp      OpMode = 3
	ModeTemperatureTIAOff OpMode = 6
	ModeTemperatureTIAOn  OpMode = 7
)

const (
	tiaGainShift      = 2
	refSourceShift    = 7
	internalZeroShift = 5
	biasSignShift     = 4
	fetShortShift     = 7

	rloadMask  byte = 0x03
	biasMask   byte = 0x0f
	opModeMask byte = 0x07
)

// Config holds the discrete settings of the three configuration registers.
type Config struct {
	TIAGain      TIAGain      `json:"tia_gain"`
	RLoad        RLoad        `json:"rload"`
	RefSource    RefSource    `json:"ref_source"`
	InternalZero InternalZero `json:"internal_zero"`
	BiasSign     BiasSign     `json:"bias_sign"`
	Bias         Bias         `json:"bias"`
	FETShort     FETShort     `json:"fet_short"`
	OpMode       OpMode       `json:"op_mode"`
}

// Registers packs the configuration into the TIACN, REFCN and MODECN
// register values.
//
//	TIACN:  [7:2] TIA gain, [1:0] load resistor
//	REFCN:  [7] reference source, [6:5] internal zero, [4] bias sign, [3:0] bias
//	MODECN: [7] FET short, [2:0] operating mode
func (c Config) Registers() (tiacn, refcn, modecn byte) {
	tiacn = byte(c.TIAGain)<<tiaGainShift | byte(c.RLoad)&rloadMask
	refcn = byte(c.RefSource&1)<<refSourceShift |
		byte(c.InternalZero&3)<<internalZeroShift |
		byte(c.BiasSign&1)<<biasSignShift |
		byte(c.Bias)&biasMask
	modecn = byte(c.FETShort&1)<<fetShortShift | byte(c.OpMode)&opModeMask
	return
}

// Validate reports the first field holding a code the device does not
// define.
func (c Config) Validate() error {
	switch {
	case c.TIAGain > TIAGain350k:
		return fmt.Errorf("lmp91000: invalid TIA gain code %d", c.TIAGain)
	case c.RLoad > RLoad100:
		return fmt.Errorf("lmp91000: invalid load resistor code %d", c.RLoad)
	case c.RefSource > RefExternal:
		return fmt.Errorf("lmp91000: invalid reference source code %d", c.RefSource)
	case c.InternalZero > InternalZeroBypassed:
		return fmt.Errorf("lmp91000: invalid internal zero code %d", c.InternalZero)
	case c.BiasSign > BiasPositive:
		return fmt.Errorf("lmp91000: invalid bias sign code %d", c.BiasSign)
	case c.Bias > Bias24:
		return fmt.Errorf("lmp91000: invalid bias code %d", c.Bias)
	case c.FETShort > FETShortEnabled:
		return fmt.Errorf("lmp91000: invalid FET short code %d", c.FETShort)
	}
	if _, ok := opModeNames[c.OpMode]; !ok {
		return fmt.Errorf("lmp91000: invalid operating mode code %d", c.OpMode)
	}
	return nil
}

var tiaGainOhms = [...]float64{-1, 2750, 3500, 7000, 14000, 35000, 120000, 350000}

// Ohms returns the feedback resistance. It returns false for
// TIAGainExternal and unknown codes.
func (g TIAGain) Ohms() (float64, bool) {
	if g == TIAGainExternal || int(g) >= len(tiaGainOhms) {
		return 0, false
	}
	return tiaGainOhms[g], true
}

var internalZeroPercent = [...]float64{20, 50, 67}

// Percent returns the internal zero as a percentage of the reference. It
// returns false when the internal zero is bypassed.
func (z InternalZero) Percent() (float64, bool) {
	if int(z) >= len(internalZeroPercent) {
		return 0, false
	}
	return internalZeroPercent[z], true
}

var biasPercent = [...]int{0, 1, 2, 4, 6, 8, 10, 12, 14, 16, 18, 20, 22, 24}

// Percent returns the bias as a percentage of the reference.
func (b Bias) Percent() (int, bool) {
	if int(b) >= len(biasPercent) {
		return 0, false
	}
	return biasPercent[b], true
}

// Names used for text encoding.
var (
	tiaGainNames      = []string{"external", "2.75k", "3.5k", "7k", "14k", "35k", "120k", "350k"}
	rloadNames        = []string{"10", "33", "50", "100"}
	refSourceNames    = []string{"internal", "external"}
	internalZeroNames = []string{"20%", "50%", "67%", "bypassed"}
	biasSignNames     = []string{"negative", "positive"}
	biasNames         = []string{"0%", "1%", "2%", "4%", "6%", "8%", "10%", "12%", "14%", "16%", "18%", "20%", "22%", "24%"}
	fetShortNames     = []string{"disabled", "enabled"}
	opModeNames       = map[OpMode]string{
		ModeDeepSleep:         "deep-sleep",
		ModeTwoLeadGround:     "2-lead-ground",
		ModeStandby:           "standby",
		ModeThreeLeadAmp:      "3-lead-amperometric",
		ModeTemperatureTIAOff: "temperature-tia-off",
		ModeTemperatureTIAOn:  "temperature-tia-on",
	}
)

var errUnknownName = errors.New("lmp91000: unknown setting")

func name(names []string, v uint8) string {
	if int(v) < len(names) {
		return names[v]
	}
	return fmt.Sprintf("invalid(%d)", v)
}

func parse(names []string, s string) (uint8, error) {
	for i, n := range names {
		if strings.EqualFold(n, s) {
			return uint8(i), nil
		}
	}
	return 0, fmt.Errorf("%w %q", errUnknownName, s)
}

func (g TIAGain) String() string      { return name(tiaGainNames, uint8(g)) }
func (r RLoad) String() string        { return name(rloadNames, uint8(r)) }
func (r RefSource) String() string    { return name(refSourceNames, uint8(r)) }
func (z InternalZero) String() string { return name(internalZeroNames, uint8(z)) }
func (s BiasSign) String() string     { return name(biasSignNames, uint8(s)) }
func (b Bias) String() string         { return name(biasNames, uint8(b)) }
func (f FETShort) String() string     { return name(fetShortNames, uint8(f)) }

func (m OpMode) String() string {
	if n, ok := opModeNames[m]; ok {
		return n
	}
	return fmt.Sprintf("invalid(%d)", uint8(m))
}

func (g TIAGain) MarshalText() ([]byte, error)      { return []byte(g.String()), nil }
func (r RLoad) MarshalText() ([]byte, error)        { return []byte(r.String()), nil }
func (r RefSource) MarshalText() ([]byte, error)    { return []byte(r.String()), nil }
func (z InternalZero) MarshalText() ([]byte, error) { return []byte(z.String()), nil }
func (s BiasSign) MarshalText() ([]byte, error)     { return []byte(s.String()), nil }
func (b Bias) MarshalText() ([]byte, error)         { return []byte(b.String()), nil }
func (f FETShort) MarshalText() ([]byte, error)     { return []byte(f.String()), nil }
func (m OpMode) MarshalText() ([]byte, error)       { return []byte(m.String()), nil }

func (g *TIAGain) UnmarshalText(b []byte) error {
	v, err := parse(tiaGainNames, string(b))
	*g = TIAGain(v)
	return err
}

func (r *RLoad) UnmarshalText(b []byte) error {
	v, err := parse(rloadNames, string(b))
	*r = RLoad(v)
	return err
}

func (r *RefSource) UnmarshalText(b []byte) error {
	v, err := parse(refSourceNames, string(b))
	*r = RefSource(v)
	return err
}

func (z *InternalZero) UnmarshalText(b []byte) error {
	v, err := parse(internalZeroNames, string(b))
	*z = InternalZero(v)
	return err
}

func (s *BiasSign) UnmarshalText(b []byte) error {
	v, err := parse(biasSignNames, string(b))
	*s = BiasSign(v)
	return err
}

func (bs *Bias) UnmarshalText(b []byte) error {
	v, err := parse(biasNames, string(b))
	*bs = Bias(v)
	return err
}

func (f *FETShort) UnmarshalText(b []byte) error {
	v, err := parse(fetShortNames, string(b))
	*f = FETShort(v)
	return err
}

func (m *OpMode) UnmarshalText(b []byte) error {
	for k, n := range opModeNames {
		if strings.EqualFold(n, string(b)) {
			*m = k
			return nil
		}
	}
	return fmt.Errorf("%w %q", errUnknownName, string(b))
}
