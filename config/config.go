// Package config holds the chain driver options. A single option string
// configures the common clocks plus per board overrides:
//
//	"ref:sys:spi:chipnum:wiper:override_diff:board_mask clk wiper cmask sclk"
//
// Six decimal fields, one hex mask, then four dash separated per board
// arrays. Zero valued fields keep their defaults; short arrays repeat
// their last entry.
package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"a1miner/log"
)

const MAX_BOARDS = 16

// clock and ratio defaults, khz and permille
const (
	DEFAULT_REF_CLK   = 16000
	DEFAULT_SYS_CLK   = 800000
	DEFAULT_SPI_CLK   = 2000
	DEFAULT_LOWER_CLK = 400000
	DEFAULT_UPPER_CLK = 1100000

	DEFAULT_LOWER_RATIO_PM = 3
	DEFAULT_UPPER_RATIO_PM = 20

	DEFAULT_CUTOFF_TEMP = 95
)

type Options struct {
	RefClkKhz int
	SysClkKhz int
	SpiClkKhz int

	// cap the number of chips used per chain, 0 keeps all detected
	OverrideChipNum int
	// trimpot wiper value for boards that carry one, 0 leaves it alone
	Wiper int
	// share difficulty ceiling pushed into the job target; -1 lifts it
	OverrideDiff int
	MaxDiff      float64
	// hex mask of chains to bypass
	BoardMask int

	EnableAutoTune bool
	LowerClkKhz    int
	UpperClkKhz    int
	LowerRatioPm   int
	UpperRatioPm   int

	StatsFileName string
	CutoffTemp    int

	// sysfs GPIO numbers of the board power-enable lines, board 0
	// first; empty when the platform has no switchable supplies
	PowerGpios []int

	// per board overrides, 0 falls back to the common value
	SysClkExtra [MAX_BOARDS]int
	WiperExtra  [MAX_BOARDS]int
	ChipBitmask [MAX_BOARDS]int
	SpiClkExtra [MAX_BOARDS]int
}

// NewOptions returns the defaults the A1 products ship with.
func NewOptions() *Options {
	return &Options{
		RefClkKhz:    DEFAULT_REF_CLK,
		SysClkKhz:    DEFAULT_SYS_CLK,
		SpiClkKhz:    DEFAULT_SPI_CLK,
		MaxDiff:      math.MaxFloat64,
		LowerClkKhz:  DEFAULT_LOWER_CLK,
		UpperClkKhz:  DEFAULT_UPPER_CLK,
		LowerRatioPm: DEFAULT_LOWER_RATIO_PM,
		UpperRatioPm: DEFAULT_UPPER_RATIO_PM,
		CutoffTemp:   DEFAULT_CUTOFF_TEMP,
	}
}

// Parse applies an option string on top of the defaults.
func (my *Options) Parse(opts string) error {
	if opts == "" {
		return nil
	}

	var ref, sys, spi, chipNum, wiper, oDiff, mask int
	var clkTmp, wiperTmp, cmaskTmp, sclkTmp string
	n, _ := fmt.Sscanf(opts, "%d:%d:%d:%d:%d:%d:%x %s %s %s %s",
		&ref, &sys, &spi, &chipNum, &wiper, &oDiff, &mask,
		&clkTmp, &wiperTmp, &cmaskTmp, &sclkTmp)
	if n < 1 {
		return fmt.Errorf("config: unparseable option string %q", opts)
	}

	if ref != 0 {
		my.RefClkKhz = ref
	}
	if sys != 0 {
		my.SysClkKhz = sys
	}
	if spi != 0 {
		my.SpiClkKhz = spi
	}
	if chipNum != 0 {
		my.OverrideChipNum = chipNum
	}
	if wiper != 0 {
		my.Wiper = wiper
	}
	if oDiff != 0 {
		my.OverrideDiff = oDiff
	}
	if mask != 0 {
		my.BoardMask = mask
	}

	if clkTmp != "" {
		parseDashArray(clkTmp, 10, &my.SysClkExtra)
	}
	if wiperTmp != "" {
		parseDashArray(wiperTmp, 16, &my.WiperExtra)
	}
	if cmaskTmp != "" {
		parseDashArray(cmaskTmp, 16, &my.ChipBitmask)
	}
	if sclkTmp != "" {
		parseDashArray(sclkTmp, 10, &my.SpiClkExtra)
	}

	if my.SysClkKhz < 100000 {
		return fmt.Errorf("config: system clock must be above 100MHz")
	}
	switch {
	case my.OverrideDiff == -1:
		my.MaxDiff = math.MaxFloat64
	case my.OverrideDiff > 1:
		my.MaxDiff = float64(my.OverrideDiff)
	}

	log.Infof("config: ref=%d sys=%d spi=%d chips=%d wiper=0x%02x diff=%d mask=0x%x",
		my.RefClkKhz, my.SysClkKhz, my.SpiClkKhz, my.OverrideChipNum,
		my.Wiper, my.OverrideDiff, my.BoardMask)
	return nil
}

// parseDashArray fills out with "v0-v1-..." entries; a short list
// repeats its last value up to MAX_BOARDS.
func parseDashArray(s string, base int, out *[MAX_BOARDS]int) {
	last := 0
	fields := strings.Split(s, "-")
	for i := 0; i < MAX_BOARDS; i++ {
		if i < len(fields) {
			v, err := strconv.ParseInt(fields[i], base, 32)
			if err != nil {
				log.Errorf("config: bad array entry %q: %s", fields[i], err)
			} else {
				last = int(v)
			}
		}
		out[i] = last
	}
}

// ParseGpioList parses a dash separated GPIO list ("20-21-22") into
// sysfs pin numbers. Bad entries are dropped with a log line.
func ParseGpioList(s string) []int {
	if s == "" {
		return nil
	}
	var out []int
	for _, f := range strings.Split(s, "-") {
		v, err := strconv.Atoi(f)
		if err != nil {
			log.Errorf("config: bad gpio entry %q: %s", f, err)
			continue
		}
		out = append(out, v)
	}
	return out
}

// SysClkForChain resolves the per board clock override.
func (my *Options) SysClkForChain(chain int) int {
	if chain < MAX_BOARDS && my.SysClkExtra[chain] != 0 {
		return my.SysClkExtra[chain]
	}
	return my.SysClkKhz
}

// SpiClkForChain resolves the per board SPI clock override.
func (my *Options) SpiClkForChain(chain int) int {
	if chain < MAX_BOARDS && my.SpiClkExtra[chain] != 0 {
		return my.SpiClkExtra[chain]
	}
	return my.SpiClkKhz
}

// WiperForChain resolves the per board wiper override.
func (my *Options) WiperForChain(chain int) int {
	if chain < MAX_BOARDS && my.WiperExtra[chain] != 0 {
		return my.WiperExtra[chain]
	}
	return my.Wiper
}

// ChipBitmaskForChain is the mask of chips to bypass on one chain.
func (my *Options) ChipBitmaskForChain(chain int) int {
	if chain < MAX_BOARDS {
		return my.ChipBitmask[chain]
	}
	return 0
}
