package device

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"a1miner/device/chip"
)

func TestDowntuneAfterBadNonces(t *testing.T) {
	ch, sim, _, _, _ := newTestChain(t, 1, 32)
	c := ch.Chips[0]

	for i := 0; i < BAD_NONCE_COUNT; i++ {
		ch.addNonceBad(c)
	}

	assert.Equal(t, BAD_NONCE_COUNT, c.HwErrors)
	assert.Equal(t, 796000, c.Current.SysClk)
	assert.Equal(t, 800000, c.Prev.SysClk)
	assert.Equal(t, BAD_NONCE_COUNT, c.Prev.SharesNOK)
	assert.Equal(t, 0, c.Current.SharesNOK)

	reg := chip.GetPLLReg(16000, 796000)
	assert.Equal(t, reg[0], sim.regs[1][0])
	assert.Equal(t, reg[1], sim.regs[1][1])
}

func TestDowntuneFlushesQueuedWork(t *testing.T) {
	ch, sim, host, _, _ := newTestChain(t, 1, 32)
	sim.setQueueState(1, 0)
	fillQueue(t, ch)
	ch.ScanWork()
	c := ch.Chips[0]
	require.NotNil(t, c.Work[0])

	for i := 0; i < BAD_NONCE_COUNT; i++ {
		ch.addNonceBad(c)
	}

	for i := range c.Work {
		assert.Nil(t, c.Work[i])
	}
	assert.Equal(t, 0, c.LastQueuedID)
	assert.Equal(t, host.issued, len(host.completed))
}

func TestDowntuneStopsAtLowerLimit(t *testing.T) {
	ch, _, _, _, _ := newTestChain(t, 1, 32)
	c := ch.Chips[0]
	c.Current.SysClk = 400000

	for i := 0; i < BAD_NONCE_COUNT; i++ {
		ch.addNonceBad(c)
	}

	assert.Equal(t, 400000, c.Current.SysClk)
	// window evicted so the next verdict starts fresh
	assert.Equal(t, 0, c.Current.SharesNOK)
}

func TestBadNoncesUnderRatioResetWindow(t *testing.T) {
	ch, _, _, _, _ := newTestChain(t, 1, 32)
	c := ch.Chips[0]
	c.Current.SharesOK = 995

	for i := 0; i < BAD_NONCE_COUNT; i++ {
		ch.addNonceBad(c)
	}

	// 5 of 1000 is 5 permille, under the 20 permille limit
	assert.Equal(t, 800000, c.Current.SysClk)
	assert.Equal(t, 0, c.Current.SharesNOK)
	assert.Equal(t, 0, c.Current.SharesOK)
}

func TestUptuneAfterCleanWindow(t *testing.T) {
	ch, _, _, _, now := newTestChain(t, 1, 32)
	c := ch.Chips[0]
	c.Prev.SysClk = 796000
	c.Current.SharesOK = 39
	c.Current.EndMs = *now - 1

	ch.addNonceGood(c)

	assert.Equal(t, 804000, c.Current.SysClk)
	assert.Equal(t, 800000, c.Prev.SysClk)
	assert.Equal(t, 40, c.Prev.SharesOK)
}

func TestUptunePeakStickiness(t *testing.T) {
	ch, _, _, _, now := newTestChain(t, 1, 32)
	c := ch.Chips[0]
	// already at the clock of the previous window
	c.Prev.SysClk = 800000
	c.Current.SharesOK = 199
	c.Current.EndMs = *now - 1

	ch.addNonceGood(c)

	assert.Equal(t, 800000, c.Current.SysClk)
	assert.Equal(t, 200, c.Current.SharesOK)
}

func TestUptuneNeedsWindowEnd(t *testing.T) {
	ch, _, _, _, now := newTestChain(t, 1, 32)
	c := ch.Chips[0]
	c.Prev.SysClk = 796000
	c.Current.SharesOK = 199
	c.Current.EndMs = *now + 1000

	ch.addNonceGood(c)
	assert.Equal(t, 800000, c.Current.SysClk)
}

func TestUptuneNeedsEnoughShares(t *testing.T) {
	ch, _, _, _, now := newTestChain(t, 1, 32)
	c := ch.Chips[0]
	c.Prev.SysClk = 796000
	c.Current.SharesOK = 10
	c.Current.EndMs = *now - 1

	ch.addNonceGood(c)
	assert.Equal(t, 800000, c.Current.SysClk)
}

func TestUptuneDirtyWindowEvicted(t *testing.T) {
	ch, _, _, _, now := newTestChain(t, 1, 32)
	c := ch.Chips[0]
	c.Prev.SysClk = 796000
	c.Current.SharesOK = 194
	c.Current.SharesNOK = 5
	c.Current.EndMs = *now - 1

	ch.addNonceGood(c)

	// 25 permille is over the 3 permille uptune limit: no climb, but
	// the completed window rolls over
	assert.Equal(t, 800000, c.Current.SysClk)
	assert.Equal(t, 0, c.Current.SharesOK)
	assert.Equal(t, 0, c.Current.SharesNOK)
	assert.Equal(t, 195, c.Prev.SharesOK)
	assert.Equal(t, 5, c.Prev.SharesNOK)
}

func TestUptuneDisabled(t *testing.T) {
	ch, _, _, _, now := newTestChain(t, 1, 32)
	ch.drv.opts.EnableAutoTune = false
	c := ch.Chips[0]
	c.Prev.SysClk = 796000
	c.Current.SharesOK = 199
	c.Current.EndMs = *now - 1

	ch.addNonceGood(c)
	assert.Equal(t, 800000, c.Current.SysClk)
}

func TestAdjustClockClampsAtUpper(t *testing.T) {
	ch, _, _, _, _ := newTestChain(t, 1, 32)
	c := ch.Chips[0]
	c.Current.SysClk = 1100000

	assert.False(t, ch.adjustClock(c, CLOCK_DELTA))
	assert.Equal(t, 1100000, c.Current.SysClk)
}

func TestStatsFile(t *testing.T) {
	name := filepath.Join(t.TempDir(), "stats.log")
	s := NewStats(name)

	c := &chip.Chip{ID: 3}
	c.Current = chip.TuneWindow{SysClk: 800000, SharesOK: 30, SharesNOK: 6}
	c.Prev = chip.TuneWindow{SysClk: 796000}
	s.LogStat(false, 1, c)

	c.Prev = chip.TuneWindow{SysClk: 800000, SharesOK: 30, SharesNOK: 6}
	s.LogChange(1, c, 796000)

	c.Current.SysClk = 400000
	s.LogLimit(1, c)
	s.Exit()

	data, err := os.ReadFile(name)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "--- 1/3: 6/30-167, 800 (796)")
	assert.Contains(t, lines[1], "--- CHANGE: 1/3: 6/30/167 800->796")
	assert.Contains(t, lines[2], "1/3: limit reached: clk=400000")
}

func TestStatsDisabled(t *testing.T) {
	s := NewStats("")
	s.LogLimit(0, &chip.Chip{ID: 1})
	s.Exit()
}
