// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package gassensor reads an electrochemical gas cell through an LMP91000
// analog front end and an ADS1015/ADS1115 converter, and reports the gas
// concentration in parts per million or parts per billion.
//
// The front end holds the cell at its bias and converts the cell current
// into a voltage with its transimpedance amplifier. The converter samples
// that voltage on channel 0. A reading is turned into a concentration by
// removing the internal zero (a fixed fraction of the 2.5V reference),
// applying the profile's calibration offset, dividing by the TIA gain to
// recover the cell current and dividing by the cell sensitivity. Negative
// results are noise around the true zero and are reported as 0.
//
// Every sensor type is described by a Profile. The built-in Catalog covers
// the SGX Sensortech CO, NO2, SO2, O3, NO, H2S and NH3 cells; other cells are
// described with ParseProfiles.
//
// Some boards route the front end's MENB pin to a GPIO. It is active low and
// is only asserted while the front end is being configured.
//
// # Datasheets
//
// https://www.ti.com/lit/ds/symlink/lmp91000.pdf
//
// https://www.ti.com/lit/ds/symlink/ads1015.pdf
package gassensor
