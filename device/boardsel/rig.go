package boardsel

import (
	"sync"

	"a1miner/device/i2c"
	"a1miner/log"
)

// Rig v3: 16 chains on 8 boards. A PCA9548 bus switch at 0x70 routes
// the I2C segment of the active board; the TCA9535 at 0x23 on each
// backplane half drives the pair's chain select and reset lines. The
// rig carries no per chain temperature sensors.
const (
	RIG_SWITCH_ADDR   = 0x70
	RIG_EXPANDER_ADDR = 0x23
	RIG_MAX_CHAINS    = 16
)

type rig struct {
	mu  sync.Mutex
	sw  i2c.Dev
	dev i2c.Dev

	activeChain int
	activeBoard int
}

// NewRig probes for the Rig bus switch and backplane expander. Returns
// nil when either does not answer.
func NewRig() Selector {
	sw, err := i2c.Open(i2c.BUS_BOARD, RIG_SWITCH_ADDR)
	if err != nil {
		return nil
	}
	my := &rig{sw: sw, activeChain: -1, activeBoard: -1}
	// route board 0 so the expander probe has a segment to answer on
	if err := my.route(0); err != nil {
		_ = sw.Close()
		return nil
	}
	dev, err := i2c.Open(i2c.BUS_BOARD, RIG_EXPANDER_ADDR)
	if err != nil {
		_ = sw.Close()
		return nil
	}
	my.dev = dev
	for _, init := range []struct {
		reg byte
		val byte
	}{
		{tcaConfigPort1, 0x00},
		{tcaOutputPort1, 0xff},
		{tcaConfigPort0, 0x00},
		{tcaOutputPort0, 0x00},
	} {
		if err := my.write(init.reg, init.val); err != nil {
			_ = dev.Close()
			_ = sw.Close()
			return nil
		}
	}
	log.Info("boardsel: Rig v3 backplane found")
	return my
}

// route opens one channel of the bus switch. The PCA9548 has a single
// control byte instead of a register file, so the mask goes out as the
// register address with no payload.
func (my *rig) route(board int) error {
	return my.sw.WriteReg(uint8(1)<<board, nil)
}

func (my *rig) write(reg, val byte) error {
	return my.dev.WriteReg(reg, []byte{val})
}

func (my *rig) Select(chain uint8) bool {
	if chain >= RIG_MAX_CHAINS {
		return false
	}
	my.mu.Lock()
	if my.activeChain == int(chain) {
		return true
	}
	my.activeChain = int(chain)
	board := int(chain) / 2
	if my.activeBoard != board {
		my.activeBoard = board
		if err := my.route(board); err != nil {
			my.activeChain, my.activeBoard = -1, -1
			my.mu.Unlock()
			return false
		}
	}
	if err := my.write(tcaOutputPort1, 0xff); err != nil {
		my.activeChain = -1
		my.mu.Unlock()
		return false
	}
	if err := my.write(tcaOutputPort1, ^(uint8(0x80) >> (chain & 1))); err != nil {
		my.activeChain = -1
		my.mu.Unlock()
		return false
	}
	return true
}

func (my *rig) Release() {
	my.mu.Unlock()
}

func (my *rig) reset(mask uint8) bool {
	if err := my.write(tcaOutputPort0, 0x00); err != nil {
		return false
	}
	if err := my.write(tcaOutputPort0, mask); err != nil {
		return false
	}
	sleepMs(RESET_LOW_TIME_MS)
	if err := my.write(tcaOutputPort0, 0x00); err != nil {
		return false
	}
	sleepMs(RESET_HI_TIME_MS)
	return true
}

func (my *rig) Reset() bool {
	return my.reset(uint8(1) << (my.activeChain & 1))
}

// ResetAll walks every board through the bus switch and pulses both
// reset lines, then restores the active route.
func (my *rig) ResetAll() bool {
	my.mu.Lock()
	defer my.mu.Unlock()
	ok := true
	for board := 0; board < RIG_MAX_CHAINS/2; board++ {
		if err := my.route(board); err != nil {
			ok = false
			continue
		}
		if !my.reset(0x03) {
			ok = false
		}
	}
	if my.activeBoard >= 0 {
		if err := my.route(my.activeBoard); err != nil {
			ok = false
		}
	}
	return ok
}

func (my *rig) GetTemp(sensor uint8) uint8 { return 0 }

func (my *rig) Exit() {
	_ = my.dev.Close()
	_ = my.sw.Close()
}
