package device

import (
	"sync"
	"sync/atomic"

	"a1miner/log"
)

// Manager runs one hashing loop per chain. Each loop keeps the chain's
// work queue topped up from the host, then scans the chain; the hash
// credit from every tick accumulates for the host's rate display.
type Manager struct {
	drv *Driver

	bExit       atomic.Bool
	wg          sync.WaitGroup
	totalHashes atomic.Int64
}

func NewManager(drv *Driver) *Manager {
	return &Manager{drv: drv}
}

// Run starts the per chain loops and returns.
func (my *Manager) Run() {
	for _, ch := range my.drv.Chains {
		my.wg.Add(1)
		go my.runChain(ch)
	}
	log.Infof("manager: %d chain threads running", len(my.drv.Chains))
}

func (my *Manager) runChain(ch *Chain) {
	defer my.wg.Done()
	for !my.bExit.Load() {
		if ch.Disabled {
			sleepMs(TEMP_THROTTLE_SLEEP_MS)
			continue
		}
		for !ch.QueueFull() {
			if my.bExit.Load() {
				return
			}
		}
		my.totalHashes.Add(ch.ScanWork())
	}
}

// FlushAll discards queued work on every chain after a block change.
func (my *Manager) FlushAll() {
	for _, ch := range my.drv.Chains {
		ch.FlushWork()
	}
}

// Hashes returns the hash credit accumulated since the last call.
func (my *Manager) Hashes() int64 {
	return my.totalHashes.Swap(0)
}

// Statline joins the per chain status columns.
func (my *Manager) Statline() string {
	s := ""
	for _, ch := range my.drv.Chains {
		s += ch.Statline()
	}
	return s
}

// Exit stops the chain loops and releases the hardware.
func (my *Manager) Exit() {
	my.bExit.Store(true)
	my.wg.Wait()
	my.drv.Shutdown()
}
