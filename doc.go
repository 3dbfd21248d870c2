// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package gassensor is a container for the electrochemical gas sensor
// drivers.
//
// lmp91000 drives the potentiostat front end, ads1x15 the converter and
// gassensor combines both into ppm and ppb readings. cmd/gasexporter
// publishes the readings to Prometheus.
package gassensor
