package device

import (
	"sync"

	"a1miner/device/asicio"
	"a1miner/device/chip"
	"a1miner/log"
	"a1miner/util"
)

// SPI clock used while the chain enumerates and the PLLs settle
const INIT_SPI_CLK_KHZ = 100

// initial PLL register: a safe low clock every chip accepts before the
// real configuration goes out
var initialPLL = [6]byte{0x82, 0x19, 0x21, 0x84, 0x00, 0x00}

// Chain is one daisy chain of A1 chips behind a chain select line.
type Chain struct {
	ChainID int

	drv *Driver
	io  *asicio.ChainIO

	NumChips       int
	NumActiveChips int
	NumCores       int
	Chips          []*chip.Chip

	mu sync.Mutex
	wq *asicio.Fifo

	SysClkKhz int
	SpiClkKhz int

	Temp       uint8
	lastTempMs int64

	nonceRangesProcessed int64

	Disabled bool
}

// chipByID maps the 1 based wire address to the chip record.
func (my *Chain) chipByID(chipID uint8) *chip.Chip {
	return my.Chips[int(chipID)-1]
}

// setSpiClk pushes the chain's SPI clock to the port. Chains on a
// shared port can run different clocks, so this goes out on every
// select.
func (my *Chain) setSpiClk() {
	_ = my.io.SetSpeed(my.SpiClkKhz)
}

// initChain enumerates one chain and brings every chip to the target
// clock. Returns an error when the chain is masked out or empty.
func (my *Driver) initChain(chainID int, io *asicio.ChainIO) (*Chain, error) {
	if my.opts.BoardMask&(1<<chainID) != 0 {
		log.Infof("chain %d: masked out", chainID)
		return nil, ErrChainMasked
	}

	ch := &Chain{
		ChainID:   chainID,
		drv:       my,
		io:        io,
		wq:        asicio.NewFifo(),
		SysClkKhz: my.opts.SysClkForChain(chainID),
		SpiClkKhz: my.opts.SpiClkForChain(chainID),
	}

	_ = io.SetSpeed(INIT_SPI_CLK_KHZ)

	n, err := io.DetectChips()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		log.Errorf("chain %d: no chips found", chainID)
		return nil, ErrNoChips
	}
	ch.NumChips = n
	log.Infof("chain %d: detected %d chips", chainID, n)

	pll := initialPLL
	if err := io.WriteReg(asicio.BROADCAST_ID, pll[:]); err != nil {
		log.Errorf("chain %d: initial PLL write: %s", chainID, err)
		return nil, err
	}
	if err := io.BistStart(); err != nil {
		log.Errorf("chain %d: BIST start: %s", chainID, err)
		return nil, err
	}

	if !ch.setPLLConfig(asicio.BROADCAST_ID, ch.SysClkKhz) {
		return nil, ErrPLLNotLocked
	}

	ch.setSpiClk()

	ch.NumActiveChips = ch.NumChips
	if my.opts.OverrideChipNum > 0 && ch.NumActiveChips > my.opts.OverrideChipNum {
		ch.NumActiveChips = my.opts.OverrideChipNum
		log.Infof("chain %d: using %d of %d chips", chainID, ch.NumActiveChips, ch.NumChips)
	}

	ch.Chips = make([]*chip.Chip, ch.NumActiveChips)
	for i := range ch.Chips {
		ch.Chips[i] = &chip.Chip{ID: i + 1}
	}

	if err := io.BistFix(); err != nil {
		log.Errorf("chain %d: BIST fix: %s", chainID, err)
		return nil, err
	}

	for i := range ch.Chips {
		ch.checkChip(ch.Chips[i])
	}

	log.Infof("chain %d: %d chips, %d cores at %d kHz",
		chainID, ch.NumActiveChips, ch.NumCores, ch.SysClkKhz)
	return ch, nil
}

// setPLLConfig writes the PLL register and waits for the lock bit. A
// broadcast write verifies every active chip; a unicast write only the
// addressed one.
func (my *Chain) setPLLConfig(chipID uint8, sysClkKhz int) bool {
	reg := chip.GetPLLReg(my.drv.opts.RefClkKhz, sysClkKhz)
	if err := my.io.WriteReg(chipID, reg[:]); err != nil {
		log.Errorf("chain %d: PLL write chip %d: %s", my.ChainID, chipID, err)
		return false
	}
	if chipID == asicio.BROADCAST_ID {
		n := my.NumActiveChips
		if n == 0 {
			n = my.NumChips
		}
		for cid := 1; cid <= n; cid++ {
			if len(my.Chips) >= cid && my.Chips[cid-1].IsDisabled() {
				continue
			}
			if !my.pllLockWait(uint8(cid), reg) {
				return false
			}
		}
		return true
	}
	return my.pllLockWait(chipID, reg)
}

// pllLockWait polls the chip's register file until the lock bit comes
// up, then checks the readback against what was written.
func (my *Chain) pllLockWait(chipID uint8, wr [6]byte) bool {
	for i := 0; i < MAX_PLL_WAIT_CYCLES; i++ {
		rx, err := my.io.ReadReg(chipID)
		if err == nil && rx[4]&1 != 0 {
			if wr[0] == rx[2] && wr[1] == rx[3] {
				return true
			}
			log.Errorf("chain %d: chip %d PLL readback %#02x%02x, wrote %#02x%02x",
				my.ChainID, chipID, rx[2], rx[3], wr[0], wr[1])
			return false
		}
		sleepMs(PLL_CYCLE_WAIT_TIME)
	}
	log.Errorf("chain %d: chip %d PLL not locked after %d cycles",
		my.ChainID, chipID, MAX_PLL_WAIT_CYCLES)
	return false
}

// checkChip classifies a chip after BIST: read its core count, park
// broken chips at a low clock and disable them, keep weak chips
// running slower. Returns true for a fully healthy chip.
func (my *Chain) checkChip(c *chip.Chip) bool {
	c.Current.SysClk = my.SysClkKhz
	c.ResetNonceStats(nowMs())
	c.ResetNonceStats(nowMs())

	if my.drv.opts.ChipBitmaskForChain(my.ChainID)&(1<<(c.ID-1)) != 0 {
		log.Infof("chain %d: chip %d bypassed by mask", my.ChainID, c.ID)
		c.Disabled = true
		return false
	}

	rx, err := my.io.ReadReg(uint8(c.ID))
	if err != nil {
		log.Errorf("chain %d: chip %d register read: %s", my.ChainID, c.ID, err)
		c.Disabled = true
		return false
	}
	c.NumCores = int(rx[7])
	my.NumCores += c.NumCores

	if c.NumCores < chip.BROKEN_CHIP_THRESHOLD {
		log.Errorf("chain %d: chip %d broken with %d cores", my.ChainID, c.ID, c.NumCores)
		my.setPLLConfig(uint8(c.ID), chip.BROKEN_CHIP_SYS_CLK)
		if rx, err := my.io.ReadReg(uint8(c.ID)); err == nil {
			log.Debug(util.HexDump("new.PLL", rx))
		}
		c.Disabled = true
		my.NumCores -= c.NumCores
		return false
	}
	if c.NumCores < chip.WEAK_CHIP_THRESHOLD {
		log.Errorf("chain %d: chip %d weak with %d cores", my.ChainID, c.ID, c.NumCores)
		my.setPLLConfig(uint8(c.ID), chip.WEAK_CHIP_SYS_CLK)
		if rx, err := my.io.ReadReg(uint8(c.ID)); err == nil {
			log.Debug(util.HexDump("new.PLL", rx))
		}
		return false
	}
	return true
}

// disableChip parks a chip after a failed command. Its queued work goes
// back to the host and a cooldown starts before any revival attempt.
func (my *Chain) disableChip(c *chip.Chip) {
	my.flushChip(c)
	if c.IsDisabled() {
		return
	}
	log.Errorf("chain %d: disabling chip %d", my.ChainID, c.ID)
	c.CooldownBeginMs = nowMs()
}

// checkDisabledChips retries chips in cooldown. A chip that fails more
// than FAIL_THRESHOLD revivals in a row is disabled for good and its
// cores leave the chain total.
func (my *Chain) checkDisabledChips() {
	for _, c := range my.Chips {
		if c.CooldownBeginMs == 0 || c.Disabled {
			continue
		}
		if nowMs() < c.CooldownBeginMs+chip.COOLDOWN_MS {
			continue
		}
		if _, err := my.io.ReadReg(uint8(c.ID)); err != nil {
			c.FailCount++
			log.Errorf("chain %d: chip %d revival %d failed", my.ChainID, c.ID, c.FailCount)
			if c.FailCount > chip.FAIL_THRESHOLD {
				log.Errorf("chain %d: chip %d given up", my.ChainID, c.ID)
				c.Disabled = true
				my.NumCores -= c.NumCores
				continue
			}
			c.CooldownBeginMs = nowMs()
			continue
		}
		log.Infof("chain %d: chip %d back alive", my.ChainID, c.ID)
		c.CooldownBeginMs = 0
		c.FailCount = 0
	}
}
