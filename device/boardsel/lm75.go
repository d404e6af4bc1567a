package boardsel

import (
	"a1miner/device/i2c"
	"a1miner/log"
)

// LM75 class sensors sit at 0x48 plus the board index.
const LM75_BASE_ADDR = 0x48

// readLM75 returns the integer degrees from the sensor's temperature
// register. Readings above 100 degC are bus glitches: a sign bit alone
// is cleared, anything else reads as 0. The underlying bus stays open,
// so opening the device per read is cheap.
func readLM75(addr uint16) uint8 {
	dev, err := i2c.Open(i2c.BUS_BOARD, addr)
	if err != nil {
		log.Debugf("boardsel: temp sensor 0x%02x: %s", addr, err)
		return 0
	}
	defer dev.Close()

	buf := make([]byte, 2)
	if err := dev.ReadReg(0, buf); err != nil {
		log.Debugf("boardsel: temp sensor 0x%02x read: %s", addr, err)
		return 0
	}
	temp := buf[0]
	if temp > 100 {
		if temp&0x80 != 0 {
			temp -= 0x80
		} else {
			temp = 0
		}
	}
	return temp
}
