package device

import (
	"a1miner/device/asicio"
	"a1miner/device/chip"
	"a1miner/log"
)

// The tuner climbs the clock while a chip's window stays clean and
// backs off when bad shares pile up. Once a chip sits at or below the
// clock of its previous window it stays there; the peak was already
// found and good shares alone never push it up again.

// addNonceGood books a valid share and considers an uptune.
func (my *Chain) addNonceGood(c *chip.Chip) {
	c.NoncesFound++
	c.Current.SharesOK++
	if c.Current.SysClk <= c.Prev.SysClk {
		return
	}
	my.checkUptune(c)
}

// checkUptune raises the clock when a window completed cleanly.
// Returns true when the chip was restarted on a new clock. A completed
// window too dirty to climb on is evicted so the next verdict starts
// fresh.
func (my *Chain) checkUptune(c *chip.Chip) bool {
	if nowMs() < c.Current.EndMs {
		return false
	}
	ratio := c.Current.Ratio()
	if ratio < 0 || !my.drv.opts.EnableAutoTune {
		return false
	}
	if ratio >= my.drv.opts.LowerRatioPm {
		c.ResetNonceStats(nowMs())
		return false
	}
	return my.adjustClock(c, CLOCK_DELTA)
}

// addNonceBad books a hardware error. Five bad shares in one window
// force a verdict: downtune when the error ratio is over the limit,
// otherwise evict the window and measure again.
func (my *Chain) addNonceBad(c *chip.Chip) {
	c.HwErrors++
	c.Current.SharesNOK++
	if c.Current.SharesNOK < BAD_NONCE_COUNT {
		return
	}
	// no minimum share gate here: five bad shares are a verdict on
	// their own even in a nearly empty window
	all := c.Current.SharesOK + c.Current.SharesNOK
	ratio := (c.Current.SharesNOK*1000 + all/2) / all
	if ratio > my.drv.opts.UpperRatioPm {
		if c.Current.SysClk <= my.drv.opts.LowerClkKhz {
			my.drv.stats.LogLimit(my.ChainID, c)
			c.ResetNonceStats(nowMs())
			return
		}
		my.adjustClock(c, -CLOCK_DELTA)
		return
	}
	c.ResetNonceStats(nowMs())
}

// adjustClock moves the chip's clock by delta, clamped to the
// configured range, and restarts the chip on the new setting. The
// window that triggered the move is kept as the previous window with
// its old clock.
func (my *Chain) adjustClock(c *chip.Chip, delta int) bool {
	newClk := c.Current.SysClk + delta
	if newClk < my.drv.opts.LowerClkKhz {
		newClk = my.drv.opts.LowerClkKhz
	}
	if newClk > my.drv.opts.UpperClkKhz {
		newClk = my.drv.opts.UpperClkKhz
	}
	if newClk == c.Current.SysClk {
		return false
	}
	my.drv.stats.LogStat(delta > 0, my.ChainID, c)
	snapshot := c.Current
	if !my.restartChip(c, newClk) {
		return false
	}
	c.Current.SysClk = newClk
	c.ResetNonceStats(nowMs())
	c.Prev = snapshot
	my.drv.stats.LogChange(my.ChainID, c, newClk)
	log.Infof("chain %d: chip %d clock %d -> %d kHz (ratio %d)",
		my.ChainID, c.ID, snapshot.SysClk, newClk, snapshot.Ratio())
	return true
}

// restartChip drops the chip's queued jobs and reprograms its PLL.
func (my *Chain) restartChip(c *chip.Chip, newClkKhz int) bool {
	if err := my.io.Reset(uint8(c.ID), RESET_STRATEGY); err != nil {
		log.Errorf("chain %d: chip %d reset: %s", my.ChainID, c.ID, err)
		return false
	}
	my.flushChip(c)
	if !my.setPLLConfig(uint8(c.ID), newClkKhz) {
		return false
	}
	return true
}

// abortWork discards every queued job in the chain.
func (my *Chain) abortWork() error {
	return my.io.Reset(asicio.BROADCAST_ID, RESET_STRATEGY)
}
