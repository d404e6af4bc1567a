package boardsel

import (
	"sync"

	"a1miner/device/i2c"
	"a1miner/log"
)

// Blade: 8 chains packed two per board, selected through a TCA9535 at
// 0x27. Output port 1 drives the active-low board select lines, output
// port 0 the reset lines. The two chains of a board share the reset
// line and the temperature sensor.
const (
	BLADE_EXPANDER_ADDR = 0x27
	BLADE_MAX_CHAINS    = 8
	BLADE_MAX_BOARDS    = 4
)

// TCA9535 register map
const (
	tcaOutputPort0 = 0x02
	tcaOutputPort1 = 0x03
	tcaConfigPort0 = 0x06
	tcaConfigPort1 = 0x07
)

type blade struct {
	mu  sync.Mutex
	dev i2c.Dev

	activeChain int
	activeBoard int
	boardMask   uint8
	lastTemp    [BLADE_MAX_BOARDS]uint8
}

// NewBlade probes for the Blade backplane expander. Both ports are
// configured as outputs, selects deasserted, resets released. Returns
// nil when the expander does not answer.
func NewBlade() Selector {
	dev, err := i2c.Open(i2c.BUS_BOARD, BLADE_EXPANDER_ADDR)
	if err != nil {
		return nil
	}
	my := &blade{dev: dev, activeChain: -1, activeBoard: -1}
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
	log.Info("boardsel: Blade backplane found")
	return my
}

func (my *blade) write(reg, val byte) error {
	return my.dev.WriteReg(reg, []byte{val})
}

func (my *blade) Select(chain uint8) bool {
	if chain >= BLADE_MAX_CHAINS {
		return false
	}
	my.mu.Lock()
	if my.activeChain == int(chain) {
		return true
	}
	my.activeChain = int(chain)
	board := int(chain) / 2
	if my.activeBoard == board {
		return true
	}
	my.activeBoard = board
	my.boardMask = uint8(1) << board
	if err := my.write(tcaOutputPort1, 0xff); err != nil {
		my.activeChain, my.activeBoard = -1, -1
		my.mu.Unlock()
		return false
	}
	if err := my.write(tcaOutputPort1, ^(uint8(0x80) >> board)); err != nil {
		my.activeChain, my.activeBoard = -1, -1
		my.mu.Unlock()
		return false
	}
	return true
}

func (my *blade) Release() {
	my.mu.Unlock()
}

// reset pulses the given port 0 bits low-active through the expander.
func (my *blade) reset(mask uint8) bool {
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

// Reset resets the active board. The odd chain of a pair shares the
// line with the even one, so it reports success without pulsing again.
func (my *blade) Reset() bool {
	if my.activeChain&1 != 0 {
		return true
	}
	return my.reset(my.boardMask)
}

func (my *blade) ResetAll() bool {
	my.mu.Lock()
	defer my.mu.Unlock()
	return my.reset(0xff)
}

// GetTemp reads the board's LM75. The odd chain returns the value
// cached when its even partner last read the shared sensor.
func (my *blade) GetTemp(sensor uint8) uint8 {
	if sensor != 0 {
		return 0
	}
	if my.activeChain&1 != 0 {
		return my.lastTemp[my.activeBoard]
	}
	temp := readLM75(uint16(LM75_BASE_ADDR + my.activeBoard))
	my.lastTemp[my.activeBoard] = temp
	return temp
}

func (my *blade) Exit() {
	_ = my.dev.Close()
}
