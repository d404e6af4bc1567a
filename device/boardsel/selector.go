// Package boardsel arbitrates the shared SPI bus across the chip chains
// of multi board products. An I2C GPIO expander routes MISO/MOSI/CS to
// one chain at a time; the selector's mutex is held from Select to
// Release and is the outer lock of the driver.
package boardsel

import (
	"sync"
	"time"

	"github.com/warthog618/gpiod"

	"a1miner/log"
)

const (
	RESET_LOW_TIME_MS = 200
	RESET_HI_TIME_MS  = 100
)

// sleepMs is swapped out by tests to keep reset pulses instant.
var sleepMs = func(ms int) {
	time.Sleep(time.Duration(ms) * time.Millisecond)
}

// Selector routes the SPI bus to one chain and owns the bus mutex.
// Every successful Select must be paired with exactly one Release;
// Reset and GetTemp are only valid between the two. ResetAll takes the
// mutex itself.
type Selector interface {
	Select(chain uint8) bool
	Release()
	Reset() bool
	ResetAll() bool
	GetTemp(sensor uint8) uint8
	Exit()
}

// dummy is the single chain selector. There is no mux to drive; the
// mutex still serialises scanwork against flush. Bring-up rigs that
// wire the chain RST pin to a host GPIO get a working Reset through
// gpiod, everyone else gets a no-op.
type dummy struct {
	mu  sync.Mutex
	rst *gpiod.Line
}

// NewDummy returns the single chain selector. resetGpio is the chip
// reset line offset on gpiochip0, or -1 when the line is not wired.
func NewDummy(resetGpio int) Selector {
	my := &dummy{}
	if resetGpio >= 0 {
		line, err := gpiod.RequestLine("gpiochip0", resetGpio, gpiod.AsOutput(1))
		if err != nil {
			log.Errorf("boardsel: reset gpio %d unavailable: %s", resetGpio, err)
		} else {
			my.rst = line
		}
	}
	return my
}

func (my *dummy) Select(chain uint8) bool {
	my.mu.Lock()
	return true
}

func (my *dummy) Release() {
	my.mu.Unlock()
}

func (my *dummy) Reset() bool {
	if my.rst == nil {
		return true
	}
	if err := my.rst.SetValue(0); err != nil {
		return false
	}
	sleepMs(RESET_LOW_TIME_MS)
	if err := my.rst.SetValue(1); err != nil {
		return false
	}
	sleepMs(RESET_HI_TIME_MS)
	return true
}

func (my *dummy) ResetAll() bool {
	my.mu.Lock()
	defer my.mu.Unlock()
	return my.Reset()
}

func (my *dummy) GetTemp(sensor uint8) uint8 { return 0 }

func (my *dummy) Exit() {
	if my.rst != nil {
		_ = my.rst.Close()
	}
}
