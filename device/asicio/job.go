package asicio

import (
	"encoding/binary"
	"sync"
)

// DIFF1_NBITS is the compact encoding of the difficulty 1 target. Job
// frames carry it by default unless the caller overrides the target.
const DIFF1_NBITS uint32 = 0x1d00ffff

// BuildJob serializes a work item into the 58 byte chain job frame.
// The chip hashes over a byte reversed midstate and byte swapped tail
// words, so both are reordered here. The frame carries the search range
// 0..0xffffffff and the compact target nbits.
//
//	offset  0: (job_id << 4) | WRITE_JOB opcode, chip id
//	offset  2: midstate, byte reversed
//	offset 34: merkle root tail, ntime, nbits (4 byte groups reversed)
//	offset 46: start nonce
//	offset 50: compact target
//	offset 54: end nonce
func BuildJob(chipID, jobID uint8, midstate, tail []byte, nbits uint32) ([]byte, error) {
	if len(midstate) != 32 {
		return nil, ErrBadMidstate
	}
	if len(tail) != 12 {
		return nil, ErrBadBlockTail
	}

	job := make([]byte, WRITE_JOB_LENGTH)
	job[0] = (jobID << 4) | CMD_WRITE_JOB
	job[1] = chipID

	for i := 0; i < 32; i++ {
		job[2+i] = midstate[31-i]
	}
	for k := 0; k < 3; k++ {
		for j := 0; j < 4; j++ {
			job[34+4*k+j] = tail[4*k+3-j]
		}
	}

	// start nonce stays 0
	binary.LittleEndian.PutUint32(job[50:], nbits)
	job[54] = 0xff
	job[55] = 0xff
	job[56] = 0xff
	job[57] = 0xff
	return job, nil
}

var (
	targetMu  sync.Mutex
	prevDiff  float64
	prevNbits uint32
)

// GetTarget converts a share difficulty into the compact nbits encoding
// the chip compares hashes against. The mantissa is normalized into
// 0x8000..0x7fffff the way bitcoin's compact format expects. The last
// conversion is cached since difficulty rarely changes between jobs.
func GetTarget(diff float64) uint32 {
	targetMu.Lock()
	defer targetMu.Unlock()

	if diff == prevDiff {
		return prevNbits
	}
	shift := 29
	f := float64(0x0000ffff) / diff
	for f < float64(0x00008000) {
		shift--
		f *= 256.0
	}
	for f >= float64(0x00800000) {
		shift++
		f /= 256.0
	}
	prevNbits = uint32(int(f) + shift<<24)
	prevDiff = diff
	return prevNbits
}
