// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package lmp91000 controls a Texas Instruments LMP91000 configurable
// potentiostat analog front end over an I²C bus.
//
// The LMP91000 sits between an electrochemical gas cell and an ADC. Its
// transimpedance amplifier (TIA) converts the cell current into a voltage on
// VOUT, offset by an internal zero that centers the amplifier's working
// point. Three registers configure it: TIACN (gain and load), REFCN
// (reference, internal zero, bias) and MODECN (FET short and operating mode).
//
// The device has a fixed I²C address and is usually paired with a MENB
// (module enable) pin which must be held low while the bus talks to it.
//
// # Datasheet
//
// https://www.ti.com/lit/ds/symlink/lmp91000.pdf
package lmp91000
