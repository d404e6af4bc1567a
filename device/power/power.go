// Package power sequences the board power-enable lines. Rigs gate the
// hash board supplies behind host GPIOs so a cold start can bring boards
// up one at a time instead of slamming the PSU.
package power

import (
	"errors"
	"time"

	"gobot.io/x/gobot/sysfs"

	"a1miner/log"
)

const INTER_BOARD_DELAY = 500 // msec between enabling boards

var (
	// sysfs GPIO numbers of the power-enable lines, in board order.
	// Empty means the platform has no switchable supplies.
	EnableGpios []int

	boardIsOn []bool
)

func init() {
	Reset()
}

// Reset forgets the on/off bookkeeping and sizes it to EnableGpios.
// Detect calls it after setting EnableGpios.
func Reset() {
	boardIsOn = make([]bool, len(EnableGpios))
}

func BoardOn(board int) error {
	if board < 0 || board >= len(EnableGpios) {
		return errors.New("invalid board index")
	}

	// 500 msec between boards so the supply current ramps in steps
	time.Sleep(INTER_BOARD_DELAY * time.Millisecond)

	pin := sysfs.NewDigitalPin(EnableGpios[board])
	_ = pin.Export()
	_ = pin.Direction("out")
	err := pin.Write(1)
	_ = pin.Unexport()
	if err != nil {
		return err
	}

	boardIsOn[board] = true
	log.Infof("power: board %d enabled (gpio %d)", board, EnableGpios[board])
	return nil
}

func BoardOff(board int) error {
	if board < 0 || board >= len(EnableGpios) {
		return errors.New("invalid board index")
	}

	pin := sysfs.NewDigitalPin(EnableGpios[board])
	_ = pin.Export()
	_ = pin.Direction("out")
	err := pin.Write(0)
	_ = pin.Unexport()
	if err != nil {
		return err
	}

	boardIsOn[board] = false
	return nil
}

// AllOn walks every configured enable line. Called once before chain
// detection probes the SPI buses. Boards already on are left alone.
func AllOn() {
	for ii := range EnableGpios {
		if IsOn(ii) {
			continue
		}
		if err := BoardOn(ii); err != nil {
			log.Errorf("power: board %d enable failed: %s", ii, err)
		}
	}
}

func AllOff() {
	if len(EnableGpios) == 0 {
		return
	}
	log.Error("power: powering down all boards")
	for ii := range EnableGpios {
		_ = BoardOff(ii)
	}
}

func IsOn(board int) bool {
	if board < 0 || board >= len(boardIsOn) {
		return false
	}
	return boardIsOn[board]
}
