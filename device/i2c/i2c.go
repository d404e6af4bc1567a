// Package i2c is a thin wrapper around the periph.io library for the
// register style I2C devices on the mux boards (GPIO expanders, trimpots,
// LM75 temperature sensors). It avoids cgo, unsafe and raw syscalls.
package i2c

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

const (
	// mux boards hang off the first host controller
	BUS_BOARD = 0
)

// Dev is a single addressed device on a bus.
type Dev interface {
	ReadReg(reg byte, buf []byte) error
	WriteReg(reg byte, buf []byte) error
	Close() error
}

type busDev struct {
	dev *i2c.Dev
	bus i2c.BusCloser
	mu  *sync.Mutex
}

var (
	busMu    sync.Mutex
	openBus  = map[int]i2c.BusCloser{}
	busLocks = map[int]*sync.Mutex{}
)

// Open is swapped out by tests for a scripted fake.
var Open = func(bus int, addr uint16) (Dev, error) {
	if _, err := host.Init(); err != nil {
		return nil, err
	}

	busMu.Lock()
	defer busMu.Unlock()
	b, ok := openBus[bus]
	if !ok {
		var err error
		b, err = i2creg.Open(fmt.Sprintf("/dev/i2c-%d", bus))
		if err != nil {
			return nil, err
		}
		openBus[bus] = b
		busLocks[bus] = &sync.Mutex{}
	}
	return &busDev{
		dev: &i2c.Dev{Addr: addr, Bus: b},
		bus: b,
		mu:  busLocks[bus],
	}, nil
}

func (my *busDev) ReadReg(reg byte, buf []byte) error {
	my.mu.Lock()
	defer my.mu.Unlock()
	return my.dev.Tx([]byte{reg}, buf)
}

func (my *busDev) WriteReg(reg byte, buf []byte) error {
	my.mu.Lock()
	defer my.mu.Unlock()
	return my.dev.Tx(append([]byte{reg}, buf...), nil)
}

// Close releases the handle. The underlying bus stays open for the other
// devices sharing it.
func (my *busDev) Close() error {
	return nil
}
