package device

import (
	"math"

	"a1miner/device/asicio"
	"a1miner/device/chip"
	"a1miner/log"
)

// createJob serialises a work item into the chip's job frame. The
// frame carries the difficulty 1 target unless an override difficulty
// is configured; -1 keeps the pool difficulty untouched.
func (my *Chain) createJob(chipID, jobID uint8, w *chip.Work) ([]byte, error) {
	diff := w.DeviceDiff
	nbits := asicio.DIFF1_NBITS
	if od := my.drv.opts.OverrideDiff; od != 0 {
		if od != -1 && float64(od) < diff {
			diff = float64(od)
		}
		if float64(od) != math.Round(w.DeviceDiff) {
			log.Debugf("job-target: %d / %d / %f", od, int(diff), w.DeviceDiff)
		}
		nbits = asicio.GetTarget(diff)
	}
	return asicio.BuildJob(chipID, jobID, w.Midstate, w.Tail, nbits)
}

// setWork queues one work item on a chip. When the target slot still
// holds work the old item retires first; the caller counts a retired
// slot as a processed nonce range.
func (my *Chain) setWork(c *chip.Chip, w *chip.Work, qstates uint8) bool {
	jobID := uint8(c.LastQueuedID + 1)
	if jobID == qstates&0x0f || jobID == qstates>>4 {
		log.Warnf("chain %d: chip %d job %d overlaps queue state %#02x",
			my.ChainID, c.ID, jobID, qstates)
	}

	retired := false
	if old := c.Work[c.LastQueuedID]; old != nil {
		my.drv.host.WorkCompleted(old)
		c.Work[c.LastQueuedID] = nil
		retired = true
	}

	job, err := my.createJob(uint8(c.ID), jobID, w)
	if err != nil {
		log.Errorf("chain %d: chip %d job build: %s", my.ChainID, c.ID, err)
		my.drv.host.WorkCompleted(w)
		return retired
	}
	if err := my.io.WriteJob(uint8(c.ID), job); err != nil {
		log.Errorf("chain %d: chip %d job write: %s", my.ChainID, c.ID, err)
		my.drv.host.WorkCompleted(w)
		my.disableChip(c)
		return retired
	}
	c.Work[c.LastQueuedID] = w
	c.LastQueuedID = (c.LastQueuedID + 1) & 3
	return retired
}

// flushChip returns every queued work item on a chip to the host.
func (my *Chain) flushChip(c *chip.Chip) {
	for i := range c.Work {
		if c.Work[i] != nil {
			my.drv.host.WorkCompleted(c.Work[i])
			c.Work[i] = nil
		}
	}
	c.LastQueuedID = 0
}
