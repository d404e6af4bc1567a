// Package spi wraps the periph.io SPI port used to talk to an A1 chain.
// The chain protocol clocks commands through the chip daisy-chain, so
// every transfer is full duplex with equal tx and rx lengths.
package spi

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"a1miner/log"
)

// Transport is what the chain code drives. Tests substitute a scripted
// fake implementing the same interface.
type Transport interface {
	Transfer(tx, rx []byte) error
	SetSpeed(khz uint32) error
	Close() error
}

// Context is a periph backed SPI port in mode 1. The A1 samples MOSI on
// the falling edge.
type Context struct {
	name string
	port spi.PortCloser
	conn spi.Conn
	khz  uint32
	mu   sync.Mutex
}

func Open(name string, khz uint32) (*Context, error) {
	if _, err := host.Init(); err != nil {
		return nil, err
	}

	port, err := spireg.Open(name)
	if err != nil {
		return nil, err
	}
	my := &Context{name: name, port: port}
	if err := my.connect(khz); err != nil {
		_ = port.Close()
		return nil, err
	}
	log.Infof("SPI %s open at %d kHz", name, khz)
	return my, nil
}

func (my *Context) connect(khz uint32) error {
	conn, err := my.port.Connect(physic.Frequency(khz)*physic.KiloHertz, spi.Mode1, 8)
	if err != nil {
		return fmt.Errorf("spi %s connect: %w", my.name, err)
	}
	my.conn = conn
	my.khz = khz
	return nil
}

func (my *Context) Transfer(tx, rx []byte) error {
	my.mu.Lock()
	defer my.mu.Unlock()

	if len(tx) != len(rx) {
		return fmt.Errorf("spi %s: tx/rx length mismatch %d != %d", my.name, len(tx), len(rx))
	}
	return my.conn.Tx(tx, rx)
}

// SetSpeed reconnects the port at a new clock. The chain init sequence
// drops to 100 kHz while the PLL is still on its power-up setting.
func (my *Context) SetSpeed(khz uint32) error {
	my.mu.Lock()
	defer my.mu.Unlock()

	if khz == my.khz {
		return nil
	}
	log.Debugf("SPI %s: switching to %d kHz", my.name, khz)
	return my.connect(khz)
}

func (my *Context) Close() error {
	my.mu.Lock()
	defer my.mu.Unlock()
	return my.port.Close()
}
