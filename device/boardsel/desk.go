package boardsel

import (
	"sync"

	"a1miner/device/i2c"
	"a1miner/log"
)

// Desk: 5 boards with one chain each behind a PCA9555 at 0x20. Output
// port 1 carries the active-low chain selects, output port 0 the per
// board reset lines. Each board also has an MCP4x trimpot for the core
// voltage; those are driven by the detect code, not the selector.
const (
	DESK_EXPANDER_ADDR = 0x20
	DESK_MAX_CHAINS    = 5
)

type desk struct {
	mu  sync.Mutex
	dev i2c.Dev

	activeChain int
}

// NewDesk probes for the Desk expander. Returns nil when it does not
// answer.
func NewDesk() Selector {
	dev, err := i2c.Open(i2c.BUS_BOARD, DESK_EXPANDER_ADDR)
	if err != nil {
		return nil
	}
	my := &desk{dev: dev, activeChain: -1}
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
			return nil
		}
	}
	log.Info("boardsel: Desk backplane found")
	return my
}

func (my *desk) write(reg, val byte) error {
	return my.dev.WriteReg(reg, []byte{val})
}

func (my *desk) Select(chain uint8) bool {
	if chain >= DESK_MAX_CHAINS {
		return false
	}
	my.mu.Lock()
	if my.activeChain == int(chain) {
		return true
	}
	my.activeChain = int(chain)
	if err := my.write(tcaOutputPort1, 0xff); err != nil {
		my.activeChain = -1
		my.mu.Unlock()
		return false
	}
	if err := my.write(tcaOutputPort1, ^(uint8(0x80) >> chain)); err != nil {
		my.activeChain = -1
		my.mu.Unlock()
		return false
	}
	return true
}

func (my *desk) Release() {
	my.mu.Unlock()
}

func (my *desk) reset(mask uint8) bool {
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

func (my *desk) Reset() bool {
	return my.reset(uint8(1) << my.activeChain)
}

func (my *desk) ResetAll() bool {
	my.mu.Lock()
	defer my.mu.Unlock()
	return my.reset(0x1f)
}

func (my *desk) GetTemp(sensor uint8) uint8 {
	if sensor != 0 {
		return 0
	}
	return readLM75(uint16(LM75_BASE_ADDR + my.activeChain))
}

func (my *desk) Exit() {
	_ = my.dev.Close()
}
