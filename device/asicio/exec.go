package asicio

import (
	"a1miner/device/spi"
	"a1miner/log"
	"a1miner/util"
)

// ChainIO drives one chip chain on one SPI port. NumChips is 0 until
// DetectChips has counted the chain; the poll length math falls back to
// an 8 chip guess for broadcasts sent before that.
type ChainIO struct {
	ChainID  int
	NumChips int

	spi spi.Transport
}

func NewChainIO(chainID int, port spi.Transport) *ChainIO {
	return &ChainIO{
		ChainID: chainID,
		spi:     port,
	}
}

// Exec sends one command frame and clocks the chain until the ack comes
// back. Every chip in front of the addressed one delays the response by
// 4 bytes, so the poll length scales with the chip position (or with the
// whole chain for broadcasts). The returned slice starts at the ack byte
// and is respLen+2 bytes of valid data; for chips near the chain head
// the ack sits inside the command echo, so tx echo and poll bytes are
// kept in one contiguous buffer.
func (my *ChainIO) Exec(cmd, chipID uint8, payload []byte, respLen int) ([]byte, error) {
	txLen := 4 + len(payload)

	pollLen := respLen
	if chipID == BROADCAST_ID {
		if my.NumChips == 0 {
			log.Debugf("%d: unknown chips in chain, assuming 8", my.ChainID)
			pollLen += 32
		}
		pollLen += 4 * my.NumChips
	} else {
		pollLen += 4*int(chipID) - 2
	}

	buf := make([]byte, txLen+pollLen)
	tx := make([]byte, txLen+pollLen)
	tx[0] = cmd
	tx[1] = chipID
	copy(tx[2:], payload)

	if err := my.spi.Transfer(tx[:txLen], buf[:txLen]); err != nil {
		return nil, err
	}
	log.Debug(util.HexDump("send: TX", tx[:txLen]))
	log.Debug(util.HexDump("send: RX", buf[:txLen]))

	if err := my.spi.Transfer(tx[txLen:], buf[txLen:]); err != nil {
		return nil, err
	}
	log.Debug(util.HexDump("poll: RX", buf[txLen:]))

	ackLen := txLen + respLen
	ackPos := txLen + pollLen - ackLen
	log.Debug(util.HexDump("poll: ACK", buf[ackPos:ackPos+respLen+2]))

	return buf[ackPos:], nil
}

// SetSpeed changes the SPI clock of the underlying port.
func (my *ChainIO) SetSpeed(khz int) error {
	return my.spi.SetSpeed(uint32(khz))
}

// Flush clocks a run of zero bytes through the chain to push out any
// half shifted command left behind by a failed exchange.
func (my *ChainIO) Flush() error {
	tx := make([]byte, FLUSH_LENGTH)
	rx := make([]byte, FLUSH_LENGTH)
	return my.spi.Transfer(tx, rx)
}

// DetectChips counts the chips on the chain. A broadcast RESET header is
// clocked in and then the chain is polled two bytes at a time until the
// command echo falls out of the last chip; the number of two byte waits
// gives the chain length. Returns 0 if nothing echoes back within the
// longest supported chain.
func (my *ChainIO) DetectChips() (int, error) {
	tx := make([]byte, 6)
	rx := make([]byte, 6)
	tx[0] = CMD_RESET
	tx[1] = BROADCAST_ID

	if err := my.spi.Transfer(tx, rx); err != nil {
		return 0, err
	}
	log.Debug(util.HexDump("detect: RX", rx))

	zero := make([]byte, 2)
	for i := 1; i < MAX_CHAIN_LENGTH*2; i++ {
		if rx[0] == CMD_RESET && rx[1] == BROADCAST_ID {
			my.NumChips = (i / 2) + 1
			log.Debugf("%d: detected %d chips after %d poll words",
				my.ChainID, my.NumChips, i)
			return my.NumChips, nil
		}
		if err := my.spi.Transfer(zero, rx[:2]); err != nil {
			return 0, err
		}
	}

	log.Debugf("%d: no chip echo seen, empty chain", my.ChainID)
	return 0, nil
}
