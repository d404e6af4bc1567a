// Package device drives Bitmine A1 chains: chain bring-up, the job
// pipeline, the per chip clock tuner and the scan loop the manager
// calls into. One Driver owns the board selector, the SPI ports and
// every detected Chain.
package device

import (
	"errors"
	"sync"
	"time"

	"a1miner/config"
	"a1miner/device/boardsel"
	"a1miner/device/chip"
	"a1miner/device/spi"
	"a1miner/util"
)

const (
	// reset strategy byte pushed with CMD_RESET on a tuning restart
	RESET_STRATEGY = 0xe5

	MAX_PLL_WAIT_CYCLES = 25
	PLL_CYCLE_WAIT_TIME = 40

	TEMP_UPDATE_INT_MS     = 2000
	TEMP_THROTTLE_SLEEP_MS = 5000
	IDLE_SLEEP_MS          = 120

	BAD_NONCE_COUNT = 5
	CLOCK_DELTA     = 4000
)

// test seams
var (
	nowMs   = util.NowMs
	sleepMs = func(ms int) { time.Sleep(time.Duration(ms) * time.Millisecond) }
)

var (
	ErrNoChips      = errors.New("no chips detected")
	ErrChainMasked  = errors.New("chain masked out")
	ErrResetFailed  = errors.New("chain reset failed")
	ErrPLLNotLocked = errors.New("PLL did not lock")
)

// Host is the work source the driver runs against. GetQueued hands out
// the next queued work item or nil; SubmitNonce reports false when the
// host rejects the nonce as invalid; WorkRestart tells the scan loop to
// bail out so stale jobs get flushed.
type Host interface {
	GetQueued() *chip.Work
	SubmitNonce(w *chip.Work, nonce uint32) bool
	WorkCompleted(w *chip.Work)
	WorkRestart() bool
}

// Driver ties the board selector, the SPI ports and the chains of one
// product together.
type Driver struct {
	Name string

	opts  *config.Options
	host  Host
	sel   boardsel.Selector
	spi0  spi.Transport
	spi1  spi.Transport
	stats *Stats

	mu     sync.Mutex
	Chains []*Chain
}

// NewDriver wires a driver around an already probed selector and SPI
// ports. Detection decides which product it is.
func NewDriver(name string, opts *config.Options, host Host, sel boardsel.Selector, spi0, spi1 spi.Transport) *Driver {
	return &Driver{
		Name: name,
		opts: opts,
		host: host,
		sel:  sel,
		spi0: spi0,
		spi1: spi1,
	}
}

// NumCores sums the active cores over all chains.
func (my *Driver) NumCores() int {
	total := 0
	for _, ch := range my.Chains {
		total += ch.NumCores
	}
	return total
}

// Shutdown closes the stats file, the selector and the SPI ports.
func (my *Driver) Shutdown() {
	if my.stats != nil {
		my.stats.Exit()
	}
	if my.sel != nil {
		my.sel.Exit()
	}
	if my.spi0 != nil {
		_ = my.spi0.Close()
	}
	if my.spi1 != nil && my.spi1 != my.spi0 {
		_ = my.spi1.Close()
	}
}
