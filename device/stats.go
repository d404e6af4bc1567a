package device

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"a1miner/device/chip"
	"a1miner/log"
	"a1miner/util"
)

// Stats appends tuner events to a plain text file so a long run can be
// analysed offline. Every line is synced out immediately; the file is
// worthless if the power cuts with lines still in the page cache.
type Stats struct {
	file *os.File
}

// NewStats opens the stats file. An empty name disables logging; open
// failure only logs, a miner without a stats file still mines.
func NewStats(name string) *Stats {
	if name == "" {
		return &Stats{}
	}
	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		log.Errorf("stats: cannot open %s: %s", name, err)
		return &Stats{}
	}
	log.Infof("stats: logging to %s", name)
	return &Stats{file: f}
}

func (my *Stats) write(line string) {
	if my.file == nil {
		return
	}
	if _, err := my.file.WriteString(line); err != nil {
		log.Errorf("stats: write: %s", err)
		return
	}
	_ = unix.Fsync(int(my.file.Fd()))
}

func marker(up bool) string {
	if up {
		return "+++"
	}
	return "---"
}

// LogStat records one window decision for a chip.
func (my *Stats) LogStat(up bool, chainID int, c *chip.Chip) {
	my.write(fmt.Sprintf("%s %s %d/%d: %d/%d-%d, %d (%d)\n",
		util.TimeString(), marker(up), chainID, c.ID,
		c.Current.SharesNOK, c.Current.SharesOK, c.Current.Ratio(),
		c.Current.SysClk/1000, c.Prev.SysClk/1000))
}

// LogChange records a completed clock change with the window that
// triggered it.
func (my *Stats) LogChange(chainID int, c *chip.Chip, newClkKhz int) {
	my.write(fmt.Sprintf("%s %s CHANGE: %d/%d: %d/%d/%d %d->%d\n",
		util.TimeString(), marker(c.Prev.SysClk < newClkKhz), chainID, c.ID,
		c.Prev.SharesNOK, c.Prev.SharesOK, c.Prev.Ratio(),
		c.Prev.SysClk/1000, newClkKhz/1000))
}

// LogLimit records a downtune that could not go any lower.
func (my *Stats) LogLimit(chainID int, c *chip.Chip) {
	my.write(fmt.Sprintf("%s %d/%d: limit reached: clk=%d\n",
		util.TimeString(), chainID, c.ID, c.Current.SysClk))
}

func (my *Stats) Exit() {
	if my.file != nil {
		_ = my.file.Close()
		my.file = nil
	}
}
