// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ppmbar renders a gas concentration as a one line bar gauge on a
// terminal using ANSI color codes.
//
// Useful to watch a sensor settle from a shell on the board.
package ppmbar

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"

	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
)

// Opts represents the options available for the gauge.
type Opts struct {
	// Width is the number of cells. Defaults to 40.
	Width int
	// FullScale is the value shown as a full bar.
	FullScale float64
	// Unit is printed after the value. Defaults to "ppm".
	Unit string
	// Palette defaults to ansi256.Default.
	Palette *ansi256.Palette
	// W defaults to stdout.
	W io.Writer

	_ struct{}
}

// Dev is a bar gauge printing to a terminal.
type Dev struct {
	w         io.Writer
	width     int
	fullScale float64
	unit      string
	palette   ansi256.Palette

	buf bytes.Buffer
}

var off = color.NRGBA{0x30, 0x30, 0x30, 0xff}

var errInvalidScale = errors.New("ppmbar: full scale must be positive")

// New returns a gauge. FullScale is required, so nil opts is an error.
func New(opts *Opts) (*Dev, error) {
	if opts == nil {
		return nil, errInvalidScale
	}
	if !(opts.FullScale > 0) || math.IsInf(opts.FullScale, 0) {
		return nil, errInvalidScale
	}
	p := opts.Palette
	if p == nil {
		p = ansi256.Default
	}
	d := &Dev{
		w:         opts.W,
		width:     opts.Width,
		fullScale: opts.FullScale,
		unit:      opts.Unit,
		palette:   *p,
	}
	if d.w == nil {
		d.w = colorable.NewColorableStdout()
	}
	if d.width <= 0 {
		d.width = 40
	}
	if d.unit == "" {
		d.unit = "ppm"
	}
	return d, nil
}

func (d *Dev) String() string {
	return "PPMBar"
}

// Halt implements conn.Resource.
//
// It resets the colors and moves to the next line.
func (d *Dev) Halt() error {
	_, err := d.w.Write([]byte("\n\033[0m"))
	return err
}

// lit returns the number of cells to light for v.
func (d *Dev) lit(v float64) int {
	if !(v > 0) {
		return 0
	}
	n := int(math.Round(v / d.fullScale * float64(d.width)))
	if n > d.width {
		n = d.width
	}
	return n
}

// cellColor returns the color of lit cell i, going from green to red along
// the bar.
func (d *Dev) cellColor(i int) color.NRGBA {
	f := 0.0
	if d.width > 1 {
		f = float64(i) / float64(d.width-1)
	}
	if f < 0.5 {
		return color.NRGBA{byte(510 * f), 0xff, 0, 0xff}
	}
	return color.NRGBA{0xff, byte(510 * (1 - f)), 0, 0xff}
}

// Show redraws the gauge in place with v.
func (d *Dev) Show(v float64) error {
	// This code is designed to minimize the amount of memory allocated per call.
	d.buf.Reset()
	_, _ = d.buf.WriteString("\r\033[0m")
	n := d.lit(v)
	for i := 0; i < d.width; i++ {
		c := off
		if i < n {
			c = d.cellColor(i)
		}
		_, _ = io.WriteString(&d.buf, d.palette.Block(c))
	}
	_, _ = fmt.Fprintf(&d.buf, "\033[0m %9.3f %s ", v, d.unit)
	_, err := d.buf.WriteTo(d.w)
	return err
}

var _ fmt.Stringer = &Dev{}
