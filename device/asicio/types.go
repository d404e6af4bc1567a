// Package asicio implements the A1 chain command protocol. Commands are
// clocked through the chip daisy-chain over SPI, so every exchange is a
// full duplex transfer followed by a poll phase whose length depends on
// the position of the addressed chip in the chain.
package asicio

import (
	"errors"
)

// Chain command opcodes. The low nibble of a response byte carries the
// opcode; register read responses come back with 0x10 set.
const (
	CMD_BIST_START    uint8 = 0x01
	CMD_BIST_FIX      uint8 = 0x03
	CMD_RESET         uint8 = 0x04
	CMD_WRITE_JOB     uint8 = 0x07
	CMD_READ_RESULT   uint8 = 0x08
	CMD_WRITE_REG     uint8 = 0x09
	CMD_READ_REG      uint8 = 0x0a
	CMD_READ_REG_RESP uint8 = 0x1a
)

const (
	// chip address 0 addresses every chip in the chain
	BROADCAST_ID = 0

	// the address byte carries chip ids 1..64 plus broadcast
	MAX_CHAIN_LENGTH = 64

	// serialized job frame, without the trailing clock-through pad
	WRITE_JOB_LENGTH = 58

	// zero bytes clocked through to clear a wedged chain
	FLUSH_LENGTH = 64
)

var (
	ErrNoAck        = errors.New("no command ack from chain")
	ErrBadAck       = errors.New("unexpected command ack from chain")
	ErrBadRegResp   = errors.New("bad register read response")
	ErrJobNotAcked  = errors.New("job write not acknowledged")
	ErrBadChipID    = errors.New("chip id out of range")
	ErrBadMidstate  = errors.New("midstate must be 32 bytes")
	ErrBadBlockTail = errors.New("block tail must be 12 bytes")
)
