// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/physic"
)

// reader is the part of gassensor.Dev used by the exporter.
type reader interface {
	ReadVoltage() (physic.ElectricPotential, error)
	ReadAveragedPPM(count int, interval time.Duration) (float64, error)
}

// shower draws the latest concentration, e.g. a ppmbar.Dev.
type shower interface {
	Show(v float64) error
}

// metrics to expose to Prometheus
type metrics struct {
	concentration *prometheus.GaugeVec
	voltage       *prometheus.GaugeVec
	readErrors    *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		concentration: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gas_concentration_ppm",
				Help: "Gas concentration averaged over the read interval (units: ppm)",
			},
			[]string{"sensor"},
		),
		voltage: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gas_sensor_voltage_volts",
				Help: "Last TIA output voltage sampled by the ADC (units: V)",
			},
			[]string{"sensor"},
		),
		readErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gas_sensor_read_errors_total",
				Help: "Number of failed sensor reads",
			},
			[]string{"sensor"},
		),
	}
	reg.MustRegister(m.concentration, m.voltage, m.readErrors)
	return m
}

type exporter struct {
	name    string
	r       reader
	samples int
	spacing time.Duration
	m       *metrics
	bar     shower
}

// collect takes one averaged reading and publishes it.
func (e *exporter) collect() error {
	ppm, err := e.r.ReadAveragedPPM(e.samples, e.spacing)
	if err != nil {
		e.m.readErrors.WithLabelValues(e.name).Inc()
		return errors.Wrap(err, "failed to read concentration")
	}
	v, err := e.r.ReadVoltage()
	if err != nil {
		e.m.readErrors.WithLabelValues(e.name).Inc()
		return errors.Wrap(err, "failed to read voltage")
	}
	volts := float64(v) / float64(physic.Volt)
	e.m.concentration.WithLabelValues(e.name).Set(ppm)
	e.m.voltage.WithLabelValues(e.name).Set(volts)
	if e.bar != nil {
		if err := e.bar.Show(ppm); err != nil {
			return errors.Wrap(err, "failed to draw gauge")
		}
		return nil
	}
	log.WithFields(log.Fields{
		"sensor": e.name,
		"ppm":    ppm,
		"volts":  volts,
	}).Info("reading")
	return nil
}

// run collects every interval until stop is closed.
func (e *exporter) run(interval time.Duration, stop <-chan struct{}) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if err := e.collect(); err != nil {
			log.Errorf("sensor %s: %s", e.name, err)
		}
		select {
		case <-stop:
			return
		case <-t.C:
		}
	}
}
