package device

import (
	"a1miner/config"
	"a1miner/device/asicio"
	"a1miner/device/boardsel"
	"a1miner/device/power"
	"a1miner/device/spi"
	"a1miner/log"
)

const (
	SPI_BUS0 = "SPI0.0"
	SPI_BUS1 = "SPI0.1"
)

// trimpot addresses of the five Desk boards, board 0 first
var deskWiperAddr = [boardsel.DESK_MAX_CHAINS]uint16{0x2c, 0x2b, 0x2a, 0x29, 0x28}

// Rig boards carry their trimpot on the routed segment at a fixed
// address
const RIG_WIPER_ADDR = 0x28

// Detect probes the SPI buses and the known backplanes and builds a
// driver around whatever answers. Nil means no hardware; the products
// cannot hotplug.
func Detect(opts *config.Options, host Host, hotplug bool) *Driver {
	if hotplug {
		return nil
	}

	power.EnableGpios = opts.PowerGpios
	power.Reset()
	power.AllOn()

	spi0, err := spi.Open(SPI_BUS0, uint32(opts.SpiClkKhz))
	if err != nil {
		log.Errorf("detect: %s: %s", SPI_BUS0, err)
		return nil
	}
	spi1, err := spi.Open(SPI_BUS1, uint32(opts.SpiClkKhz))
	if err != nil {
		log.Infof("detect: %s not available, sharing %s", SPI_BUS1, SPI_BUS0)
		spi1 = nil
	}

	var drv *Driver
	if sel := boardsel.NewDesk(); sel != nil {
		drv = NewDriver("BitmineA1.CCD", opts, host, sel, spi0, spi0)
		drv.detectDesk()
	} else if sel := boardsel.NewBlade(); sel != nil {
		drv = NewDriver("BitmineA1.CCB", opts, host, sel, spi0, spi0)
		if spi1 != nil {
			drv.spi1 = spi1
		}
		drv.detectBlade()
	} else if sel := boardsel.NewRig(); sel != nil {
		drv = NewDriver("BitmineA1.CCR", opts, host, sel, spi0, spi0)
		drv.detectRig()
	} else {
		drv = NewDriver("BitmineA1", opts, host, boardsel.NewDummy(-1), spi0, spi0)
		drv.detectSingle()
	}
	if spi1 != nil && drv.spi1 != spi1 {
		_ = spi1.Close()
	}

	if len(drv.Chains) == 0 {
		log.Errorf("detect: no chains found")
		drv.Shutdown()
		return nil
	}

	drv.stats = NewStats(opts.StatsFileName)
	log.Infof("detect: %s with %d chains, %d cores", drv.Name, len(drv.Chains), drv.NumCores())
	return drv
}

// initOne brings up one chain with the selector held.
func (my *Driver) initOne(chainID int, port spi.Transport) *Chain {
	if !my.sel.Select(uint8(chainID)) {
		return nil
	}
	defer my.sel.Release()

	io := asicio.NewChainIO(chainID, port)
	ch, err := my.initChain(chainID, io)
	if err != nil {
		return nil
	}
	return ch
}

// detectDesk walks the five Desk boards. Each board carries a trimpot
// for the core voltage; a configured wiper value is pushed before the
// chain comes up.
func (my *Driver) detectDesk() {
	my.sel.ResetAll()
	for board := 0; board < boardsel.DESK_MAX_CHAINS; board++ {
		if w := my.opts.WiperForChain(board); w != 0 {
			if pot := boardsel.NewMCP4x(deskWiperAddr[board]); pot != nil {
				pot.SetWiper(0, uint8(w))
				pot.Exit()
			}
		}
		if ch := my.initOne(board, my.spi0); ch != nil {
			my.Chains = append(my.Chains, ch)
		}
	}
}

// detectBlade walks the eight Blade chains. Odd chains hang off the
// second SPI bus.
func (my *Driver) detectBlade() {
	my.sel.ResetAll()
	for chain := 0; chain < boardsel.BLADE_MAX_CHAINS; chain++ {
		port := my.spi0
		if chain&1 != 0 {
			port = my.spi1
		}
		if ch := my.initOne(chain, port); ch != nil {
			my.Chains = append(my.Chains, ch)
		}
	}
}

// detectRig walks the sixteen Rig chains. The even chain of each board
// pair programs both trimpot wipers through the routed segment.
func (my *Driver) detectRig() {
	my.sel.ResetAll()
	for chain := 0; chain < boardsel.RIG_MAX_CHAINS; chain++ {
		ch := my.initOne(chain, my.spi0)
		if ch == nil {
			continue
		}
		if w := my.opts.WiperForChain(chain); w != 0 && chain&1 == 0 {
			if !my.sel.Select(uint8(chain)) {
				my.Chains = append(my.Chains, ch)
				continue
			}
			if pot := boardsel.NewMCP4x(RIG_WIPER_ADDR); pot != nil {
				pot.SetWiper(0, uint8(w))
				pot.SetWiper(1, uint8(w))
				pot.Exit()
			}
			my.sel.Release()
		}
		my.Chains = append(my.Chains, ch)
	}
}

// detectSingle brings up the one chain of a bare dev board.
func (my *Driver) detectSingle() {
	if ch := my.initOne(0, my.spi0); ch != nil {
		my.Chains = append(my.Chains, ch)
	}
}
