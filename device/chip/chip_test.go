package chip

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPLLReg(t *testing.T) {
	tests := []struct {
		name string
		ref  int
		sys  int
		reg0 byte
		reg1 byte
	}{
		{"default 800MHz", 16000, 800000, 0x42, 0x32},
		{"broken park 400MHz", 16000, 400000, 0x42, 0x19},
		{"weak park 600MHz", 16000, 600000, 0x82, 0x4b},
		{"upper limit 1100MHz", 16000, 1100000, 0xc3, 0x13},
		{"one step down 796MHz", 16000, 796000, 0xc2, 0xc7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := GetPLLReg(tt.ref, tt.sys)
			assert.Equal(t, tt.reg0, reg[0], "reg[0]")
			assert.Equal(t, tt.reg1, reg[1], "reg[1]")
			assert.Equal(t, byte(0x21), reg[2])
			assert.Equal(t, byte(0x84), reg[3])
			assert.Equal(t, byte(0), reg[4])
			assert.Equal(t, byte(0), reg[5])
		})
	}
}

func TestGetPLLRegRoundTrip(t *testing.T) {
	// decoding the divider fields must reproduce the requested clock
	ref := 16000
	for sys := 400000; sys <= 1100000; sys += 4000 {
		reg := GetPLLReg(ref, sys)
		postDiv := int(reg[0] >> 6)
		preDiv := int(reg[0]>>1) & 0x1f
		fbDiv := int(reg[0]&1)<<8 | int(reg[1])
		require.NotZero(t, preDiv, "pre divider at %d", sys)
		got := ref * fbDiv / (preDiv * (1 << (postDiv - 1)))
		require.Equal(t, sys, got, "clock round trip at %d", sys)
	}
}

func TestTuneWindowRatio(t *testing.T) {
	tests := []struct {
		name string
		ok   int
		nok  int
		want int
	}{
		{"too few shares", 29, 0, -1},
		{"threshold reached", 30, 0, 0},
		{"healthy window", 197, 3, 15},
		{"noisy window", 170, 30, 150},
		{"all bad", 0, 30, 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := TuneWindow{SharesOK: tt.ok, SharesNOK: tt.nok}
			assert.Equal(t, tt.want, w.Ratio())
		})
	}
}

func TestResetNonceStats(t *testing.T) {
	c := &Chip{ID: 1, NumCores: 32}
	c.Current.SysClk = 800000
	c.Current.SharesOK = 170
	c.Current.SharesNOK = 30

	c.ResetNonceStats(1000)

	assert.Equal(t, 170, c.Prev.SharesOK)
	assert.Equal(t, 30, c.Prev.SharesNOK)
	assert.Equal(t, 800000, c.Prev.SysClk)
	assert.Zero(t, c.Current.SharesOK)
	assert.Zero(t, c.Current.SharesNOK)
	assert.Equal(t, int64(1000), c.Current.StartMs)
	// 32 cores at 800 MHz walk 200 nonce ranges in ~33.5 s
	assert.Equal(t, int64(1000+33554), c.Current.EndMs)
}

func TestResetNonceStatsNoCores(t *testing.T) {
	c := &Chip{ID: 1}
	c.Current.SysClk = 800000
	c.ResetNonceStats(5000)
	assert.Equal(t, int64(5000), c.Current.EndMs)
}

func TestIsDisabled(t *testing.T) {
	c := &Chip{}
	assert.False(t, c.IsDisabled())
	c.CooldownBeginMs = 123
	assert.True(t, c.IsDisabled())
	c.CooldownBeginMs = 0
	c.Disabled = true
	assert.True(t, c.IsDisabled())
}
