// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// gasexporter reads an electrochemical gas sensor and exposes the
// concentration to Prometheus.
package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/GermanBionicSystems/gassensor/ads1x15"
	"github.com/GermanBionicSystems/gassensor/gassensor"
	"github.com/GermanBionicSystems/gassensor/ppmbar"
)

// CLI args
var (
	sensorName   = flag.String("sensor", "CO", "sensor profile name")
	profilesPath = flag.String("profiles", "", "JSON file with additional sensor profiles")
	busName      = flag.String("bus", "", "I²C bus to use")
	adcAddr      = flag.String("adc-addr", "0x49", "ADC I²C address")
	adcVariant   = flag.String("adc", "ads1015", "ADC model: ads1015 or ads1115")
	enablePin    = flag.String("enable-pin", "", "GPIO wired to the front end MENB pin, if any")
	externalGain = flag.Float64("external-gain", 0, "external TIA resistor in ohms")
	readInterval = flag.Duration("interval", 30*time.Second, "time interval between published readings")
	samples      = flag.Int("samples", 10, "number of samples averaged per reading")
	listenAddr   = flag.String("listen-address", ":8080", "The address to listen on for HTTP requests.")
	showBar      = flag.Bool("bar", false, "draw a bar gauge on the terminal instead of logging readings")
)

func init() {
	// Add Go module build info.
	prometheus.MustRegister(prometheus.NewBuildInfoCollector())

	formatter := &log.TextFormatter{
		FullTimestamp: true,
	}
	log.SetFormatter(formatter)
}

func main() {
	flag.Parse()
	if err := mainImpl(); err != nil {
		log.Fatal(err)
	}
}

func mainImpl() error {
	profile, err := loadProfile(*sensorName, *profilesPath)
	if err != nil {
		return err
	}
	opts, err := adcOpts(*adcVariant, *adcAddr)
	if err != nil {
		return err
	}
	opts.ExternalTIAGain = *externalGain
	if err = checkTiming(*samples, *readInterval); err != nil {
		return err
	}

	if _, err = host.Init(); err != nil {
		return errors.Wrap(err, "failed to initialize host")
	}
	if *enablePin != "" {
		p := gpioreg.ByName(*enablePin)
		if p == nil {
			return errors.Errorf("unknown pin %q", *enablePin)
		}
		opts.EnablePin = p
	}
	bus, err := i2creg.Open(*busName)
	if err != nil {
		return errors.Wrap(err, "failed to open I²C bus")
	}
	defer bus.Close()

	dev, err := gassensor.New(bus, profile, opts)
	if err != nil {
		return errors.Wrapf(err, "failed to initialize %s sensor", profile.Name)
	}
	defer dev.Halt()
	log.Printf("Started %s: TIA gain %.0fΩ, ADC %s at %s", dev, dev.TIAGain(), opts.ADCVariant, *adcAddr)

	e := &exporter{
		name:    profile.Name,
		r:       dev,
		samples: *samples,
		spacing: *readInterval / time.Duration(2*(*samples)),
		m:       newMetrics(prometheus.DefaultRegisterer),
	}
	if *showBar {
		b, err := ppmbar.New(&ppmbar.Opts{FullScale: fullScale(profile, *externalGain)})
		if err != nil {
			return err
		}
		defer b.Halt()
		e.bar = b
	}

	go func() {
		// Expose the registered metrics via HTTP.
		http.Handle("/metrics", promhttp.HandlerFor(
			prometheus.DefaultGatherer,
			promhttp.HandlerOpts{
				// Opt into OpenMetrics to support exemplars.
				EnableOpenMetrics: true,
			},
		))
		log.Panic(http.ListenAndServe(*listenAddr, nil))
	}()

	stop := make(chan struct{})
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		close(stop)
	}()
	e.run(*readInterval, stop)
	return nil
}

// checkTiming validates the -samples and -interval flags.
func checkTiming(samples int, interval time.Duration) error {
	if samples <= 0 {
		return errors.Errorf("invalid -samples %d", samples)
	}
	if interval <= 0 {
		return errors.Errorf("invalid -interval %s", interval)
	}
	return nil
}

// loadProfile returns the named profile, looking in path first when set.
func loadProfile(name, path string) (gassensor.Profile, error) {
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return gassensor.Profile{}, errors.Wrap(err, "failed to open profiles")
		}
		defer f.Close()
		profiles, err := gassensor.ParseProfiles(f)
		if err != nil {
			return gassensor.Profile{}, errors.Wrapf(err, "failed to load %s", path)
		}
		if p, ok := profiles[strings.ToUpper(name)]; ok {
			return p, nil
		}
	}
	if p, ok := gassensor.Lookup(name); ok {
		return p, nil
	}
	return gassensor.Profile{}, errors.Errorf("unknown sensor %q, built-in sensors are %s", name, strings.Join(gassensor.Gases(), ", "))
}

func adcOpts(variant, addr string) (*gassensor.Opts, error) {
	opts := &gassensor.Opts{}
	switch strings.ToLower(variant) {
	case "ads1015":
		opts.ADCVariant = ads1x15.ADS1015
	case "ads1115":
		opts.ADCVariant = ads1x15.ADS1115
	default:
		return nil, errors.Errorf("unknown ADC %q", variant)
	}
	a, err := strconv.ParseUint(addr, 0, 7)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid ADC address %q", addr)
	}
	opts.ADCAddress = uint16(a)
	return opts, nil
}

// fullScale is the concentration read when the TIA output reaches the ADC
// full scale range.
func fullScale(p gassensor.Profile, external float64) float64 {
	ohms, ok := p.FrontEnd.TIAGain.Ohms()
	if !ok {
		ohms = external
	}
	zero, _ := p.FrontEnd.InternalZero.Percent()
	fsr := float64(p.ADCGain.FullScale()) / 1e9
	span := fsr - gassensor.ReferenceVoltage*zero/100
	if p.NanoAmperesPerPPM < 0 {
		span = gassensor.ReferenceVoltage * zero / 100
	}
	fs := span / ohms / (p.NanoAmperesPerPPM * 1e-9)
	if fs < 0 {
		fs = -fs
	}
	if !(fs > 0) || fs > 1e6 {
		return 100
	}
	return fs
}
