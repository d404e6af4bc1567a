package asicio

import (
	"encoding/binary"

	"a1miner/log"
	"a1miner/util"
)

// BistStart kicks off the built-in self test on every chip. The chips
// count their working cores while it runs.
func (my *ChainIO) BistStart() error {
	ret, err := my.Exec(CMD_BIST_START, BROADCAST_ID, []byte{0, 0}, 0)
	if err != nil {
		return err
	}
	if ret[0] != CMD_BIST_START {
		log.Errorf("%d: BIST_START failed", my.ChainID)
		return ErrBadAck
	}
	return nil
}

// BistFix latches the BIST results so the core counts become readable
// through the chip registers.
func (my *ChainIO) BistFix() error {
	ret, err := my.Exec(CMD_BIST_FIX, BROADCAST_ID, nil, 0)
	if err != nil {
		return err
	}
	if ret[0] != CMD_BIST_FIX {
		log.Errorf("%d: BIST_FIX failed", my.ChainID)
		return ErrBadAck
	}
	return nil
}

// Reset resets one chip, or the whole chain with BROADCAST_ID. The
// strategy byte is doubled in the payload. A missing ack only counts as
// an error once the chain length is known; before detection nothing can
// echo a sensible ack back.
func (my *ChainIO) Reset(chipID, strategy uint8) error {
	s := []byte{strategy, strategy}
	ret, err := my.Exec(CMD_RESET, chipID, s, 0)
	if err != nil {
		return err
	}
	if ret[0] != CMD_RESET && my.NumChips != 0 {
		log.Errorf("%d: RESET chip %d failed", my.ChainID, chipID)
		return ErrNoAck
	}
	return nil
}

// WriteReg writes the 6 byte register block of one chip, or of all
// chips with BROADCAST_ID.
func (my *ChainIO) WriteReg(chipID uint8, reg []byte) error {
	ret, err := my.Exec(CMD_WRITE_REG, chipID, reg[:6], 0)
	if err != nil {
		return err
	}
	if ret[0] != CMD_WRITE_REG {
		log.Errorf("%d: WRITE_REG chip %d failed", my.ChainID, chipID)
		return ErrBadAck
	}
	return nil
}

// ReadReg reads the 6 byte register block of one chip. The returned
// slice is 8 bytes: response opcode, chip id, then the register data,
// so callers index the register bytes at 2..7.
func (my *ChainIO) ReadReg(chipID uint8) ([]byte, error) {
	ret, err := my.Exec(CMD_READ_REG, chipID, nil, 6)
	if err != nil {
		return nil, err
	}
	if ret[0] != CMD_READ_REG_RESP || ret[1] != chipID {
		log.Debugf("%d: READ_REG chip %d bad response", my.ChainID, chipID)
		return nil, ErrBadRegResp
	}
	out := make([]byte, 8)
	copy(out, ret[:8])
	return out, nil
}

// WriteJob pushes a serialized job frame into one chip's work queue.
// Two pad bytes behind the frame make sure the command is clocked all
// the way into the addressed chip before polling starts.
func (my *ChainIO) WriteJob(chipID uint8, job []byte) error {
	txLen := WRITE_JOB_LENGTH + 2
	pollLen := 4*int(chipID) - 2

	buf := make([]byte, txLen+pollLen)
	tx := make([]byte, txLen+pollLen)
	copy(tx, job[:WRITE_JOB_LENGTH])

	if err := my.spi.Transfer(tx[:txLen], buf[:txLen]); err != nil {
		return err
	}
	if err := my.spi.Transfer(tx[txLen:], buf[txLen:]); err != nil {
		return err
	}

	// the ack is as long as the frame, so it starts pollLen bytes in
	ret := buf[pollLen:]
	if ret[0] != tx[0] || ret[1] != tx[1] {
		log.Errorf("%d: WRITE_JOB chip %d not acked", my.ChainID, chipID)
		log.Debug(util.HexDump("job: ACK", ret[:2]))
		return ErrJobNotAcked
	}
	return nil
}

// GetNonce polls the chain for a finished nonce. The READ_RESULT
// broadcast makes every chip shift its oldest result towards the host;
// the response is found by scanning the clocked back bytes word by word
// for the result opcode. found is false when every result queue was
// empty.
func (my *ChainIO) GetNonce() (jobID, chipID uint8, nonce uint32, found bool, err error) {
	txLen := 8
	pollLen := txLen + 4*my.NumChips

	buf := make([]byte, txLen+pollLen)
	tx := make([]byte, txLen+pollLen)
	tx[0] = CMD_READ_RESULT

	if err = my.spi.Transfer(tx[:txLen], buf[:txLen]); err != nil {
		return
	}
	if err = my.spi.Transfer(tx[txLen:], buf[txLen:]); err != nil {
		return
	}

	for i := 0; i < pollLen; i += 2 {
		if buf[i]&0x0f != CMD_READ_RESULT {
			continue
		}
		res := buf[i : i+8]
		log.Debug(util.HexDump("result:", res))
		if res[1] == 0 {
			// result queues all empty
			return
		}
		jobID = res[0] >> 4
		chipID = res[1]
		nonce = binary.BigEndian.Uint32(res[2:6])
		found = true
		return
	}
	return
}
