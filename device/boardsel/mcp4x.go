package boardsel

import (
	"a1miner/device/i2c"
	"a1miner/log"
)

// MCP4x digital trimpots set the core voltage per board. The command
// byte carries the volatile wiper register in the high nibble; reads
// use the same address with the read command bits set.
const mcp4xCmdRead = 0x0c

type MCP4x struct {
	addr uint16
	dev  i2c.Dev
}

// NewMCP4x probes the trimpot at addr. A wiper read confirms the part
// answers; nil means nothing there.
func NewMCP4x(addr uint16) *MCP4x {
	dev, err := i2c.Open(i2c.BUS_BOARD, addr)
	if err != nil {
		return nil
	}
	my := &MCP4x{addr: addr, dev: dev}
	if _, err := my.GetWiper(0); err != nil {
		_ = dev.Close()
		return nil
	}
	return my
}

// GetWiper reads back the volatile wiper value.
func (my *MCP4x) GetWiper(id uint8) (uint8, error) {
	buf := make([]byte, 2)
	if err := my.dev.ReadReg(id<<4|mcp4xCmdRead, buf); err != nil {
		return 0, err
	}
	return buf[1], nil
}

// SetWiper writes the volatile wiper value and verifies the readback.
func (my *MCP4x) SetWiper(id, val uint8) bool {
	if err := my.dev.WriteReg(id<<4, []byte{val}); err != nil {
		log.Errorf("mcp4x 0x%02x: wiper %d write: %s", my.addr, id, err)
		return false
	}
	got, err := my.GetWiper(id)
	if err != nil || got != val {
		log.Errorf("mcp4x 0x%02x: wiper %d set %#02x, read %#02x", my.addr, id, val, got)
		return false
	}
	log.Infof("mcp4x 0x%02x: wiper %d set to %#02x", my.addr, id, val)
	return true
}

func (my *MCP4x) Exit() {
	_ = my.dev.Close()
}
