package device

import (
	"fmt"

	"a1miner/device/chip"
	"a1miner/log"
)

// ScanWork is one scheduler tick for a chain: harvest results, keep
// every chip's queue filled, retry cooled down chips. Returns the
// hashes credited to the host for this tick.
func (my *Chain) ScanWork() int64 {
	if my.NumCores == 0 {
		log.Errorf("chain %d: no cores left, disabling", my.ChainID)
		my.Disabled = true
		return 0
	}
	if my.drv.host.WorkRestart() {
		return 0
	}

	if !my.drv.sel.Select(uint8(my.ChainID)) {
		return 0
	}
	my.setSpiClk()
	my.mu.Lock()

	now := nowMs()
	if my.lastTempMs+TEMP_UPDATE_INT_MS < now {
		my.Temp = my.drv.sel.GetTemp(0)
		my.lastTempMs = now
	}

	my.harvest()

	throttled := false
	if int(my.Temp) > my.drv.opts.CutoffTemp {
		log.Warnf("chain %d: %dC over cutoff, throttling", my.ChainID, my.Temp)
		throttled = true
	} else {
		my.dispatch()
	}

	my.checkDisabledChips()

	my.mu.Unlock()
	my.drv.sel.Release()

	ret := int64(0)
	if my.nonceRangesProcessed < 0 {
		log.Debugf("chain %d: negative nonce ranges %d", my.ChainID, my.nonceRangesProcessed)
	} else {
		ret = my.nonceRangesProcessed << 32
		my.nonceRangesProcessed = 0
	}

	if throttled {
		sleepMs(TEMP_THROTTLE_SLEEP_MS)
	} else {
		sleepMs(IDLE_SLEEP_MS)
	}
	return ret
}

// harvest drains the chain's result queue and feeds the tuner.
func (my *Chain) harvest() {
	for {
		jobID, chipID, nonce, found, err := my.io.GetNonce()
		if err != nil || !found {
			return
		}
		if chipID < 1 || int(chipID) > my.NumActiveChips {
			log.Warnf("chain %d: result from unknown chip %d", my.ChainID, chipID)
			continue
		}
		if jobID < 1 || jobID > 4 {
			log.Warnf("chain %d: chip %d bad job id %d, flushing", my.ChainID, chipID, jobID)
			_ = my.io.Flush()
			continue
		}
		c := my.chipByID(chipID)
		w := c.Work[jobID-1]
		if w == nil {
			c.Stales++
			continue
		}
		if !my.drv.host.SubmitNonce(w, nonce) {
			my.nonceRangesProcessed -= int64(w.DeviceDiff)
			my.addNonceBad(c)
			continue
		}
		my.addNonceGood(c)
	}
}

// dispatch walks the chips farthest from the host first so a long
// chain gets even SPI time, refilling every free job slot.
func (my *Chain) dispatch() {
	for i := my.NumActiveChips; i >= 1; i-- {
		if my.drv.host.WorkRestart() {
			return
		}
		c := my.Chips[i-1]
		if c.IsDisabled() {
			continue
		}
		rx, err := my.io.ReadReg(uint8(i))
		if err != nil {
			log.Errorf("chain %d: chip %d register read: %s", my.ChainID, i, err)
			my.disableChip(c)
			continue
		}
		qstate := rx[5] & 3
		qbuff := rx[6]
		switch qstate {
		case 3:
			continue
		case 2:
			log.Errorf("chain %d: chip %d invalid queue state %d", my.ChainID, i, qstate)
			continue
		case 0:
			my.queueOne(c, qbuff)
			fallthrough
		case 1:
			my.queueOne(c, qbuff)
			log.Debugf("chain %d: chip %d refilled from state %d", my.ChainID, i, qstate)
		}
	}
}

// queueOne moves one work item from the chain queue onto a chip.
func (my *Chain) queueOne(c *chip.Chip, qbuff uint8) {
	w, _ := my.wq.Pop().(*chip.Work)
	if w == nil {
		return
	}
	if my.setWork(c, w, qbuff) {
		c.NonceRangesDone++
		my.nonceRangesProcessed++
	}
}

// QueueFull keeps two work items per active chip buffered in the
// chain queue. Returns true once the queue is topped up.
func (my *Chain) QueueFull() bool {
	my.mu.Lock()
	defer my.mu.Unlock()
	if my.wq.Len() >= 2*my.NumActiveChips {
		return true
	}
	if w := my.drv.host.GetQueued(); w != nil {
		my.wq.Push(w)
	}
	return false
}

// FlushWork discards all queued jobs after a block change. Chips due
// for an uptune restart anyway skip the explicit flush; the restart
// already reset them.
func (my *Chain) FlushWork() {
	if !my.drv.sel.Select(uint8(my.ChainID)) {
		return
	}
	my.setSpiClk()
	my.mu.Lock()

	if err := my.abortWork(); err != nil {
		log.Errorf("chain %d: abort: %s", my.ChainID, err)
	}
	for _, c := range my.Chips {
		if my.checkUptune(c) {
			continue
		}
		my.flushChip(c)
	}
	for {
		w, _ := my.wq.Pop().(*chip.Work)
		if w == nil {
			break
		}
		my.drv.host.WorkCompleted(w)
	}

	my.mu.Unlock()
	my.drv.sel.Release()
}

// Statline is the short per-chain status the host prints before its
// own columns.
func (my *Chain) Statline() string {
	temp := "   "
	if my.Temp != 0 {
		temp = fmt.Sprintf("%2dC", my.Temp)
	}
	return fmt.Sprintf(" %2d:%2d/%3d %s", my.ChainID, my.NumActiveChips, my.NumCores, temp)
}
