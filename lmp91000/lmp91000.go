// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package lmp91000

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
)

const (
	// Address is the fixed I²C address of the LMP91000.
	Address uint16 = 0x48

	regStatus byte = 0x00
	regLock   byte = 0x01
	regTIACN  byte = 0x10
	regREFCN  byte = 0x11
	regMODECN byte = 0x12

	statusReady byte = 0x01
	lockLocked  byte = 0x01
	lockOpen    byte = 0x00
)

var errNotReady = errors.New("lmp91000: device not ready")

// Dev represents an LMP91000 analog front end.
type Dev struct {
	d  *i2c.Dev
	mu sync.Mutex
}

// New returns a handle to the LMP91000 on bus. No bus traffic is generated.
func New(bus i2c.Bus) (*Dev, error) {
	return &Dev{d: &i2c.Dev{Bus: bus, Addr: Address}}, nil
}

// Ready reports whether the device accepts I²C commands.
func (dev *Dev) Ready() (bool, error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.ready()
}

func (dev *Dev) ready() (bool, error) {
	r := make([]byte, 1)
	if err := dev.d.Tx([]byte{regStatus}, r); err != nil {
		return false, fmt.Errorf("lmp91000: reading status: %w", err)
	}
	return r[0]&statusReady == statusReady, nil
}

// Configure writes the TIACN, REFCN and MODECN registers. TIACN and REFCN are
// write protected, so the lock register is cleared before the writes and set
// again afterwards. Use Config.Registers to build the values.
func (dev *Dev) Configure(tiacn, refcn, modecn byte) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	ok, err := dev.ready()
	if err != nil {
		return err
	}
	if !ok {
		return errNotReady
	}
	writes := [][]byte{
		{regLock, lockOpen},
		{regTIACN, tiacn},
		{regREFCN, refcn},
		{regMODECN, modecn},
		{regLock, lockLocked},
	}
	for _, w := range writes {
		if err := dev.d.Tx(w, nil); err != nil {
			return fmt.Errorf("lmp91000: writing register 0x%02x: %w", w[0], err)
		}
	}
	return nil
}

// ReadRegisters returns the current TIACN, REFCN and MODECN values.
func (dev *Dev) ReadRegisters() (tiacn, refcn, modecn byte, err error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	r := make([]byte, 1)
	regs := []*byte{&tiacn, &refcn, &modecn}
	for i, reg := range []byte{regTIACN, regREFCN, regMODECN} {
		if err = dev.d.Tx([]byte{reg}, r); err != nil {
			err = fmt.Errorf("lmp91000: reading register 0x%02x: %w", reg, err)
			return
		}
		*regs[i] = r[0]
	}
	return
}

// Halt implements conn.Resource. The front end keeps its configuration.
func (dev *Dev) Halt() error {
	return nil
}

func (dev *Dev) String() string {
	return fmt.Sprintf("lmp91000: %s", dev.d.String())
}

var _ conn.Resource = &Dev{}
