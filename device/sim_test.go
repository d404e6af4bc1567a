package device

import (
	"sync"
	"testing"

	"a1miner/device/asicio"
	"a1miner/device/chip"
)

// simChain emulates a chain of A1 chips behind the SPI port: it parses
// the command frames the codec clocks out and serves the echo and poll
// bytes of the combined exchange buffer.
type simChain struct {
	numChips int

	// 6 register data bytes per chip, keyed by 1 based chip id:
	// {pll0, pll1, status, qstate, qbuff, cores}
	regs map[uint8][6]byte

	// chips whose READ_REG answers garbage
	failRead map[uint8]bool

	// recorded job frames, oldest first
	jobs [][]byte

	// queued 8 byte result frames served by READ_RESULT
	results [][]byte

	detectDone bool
	speedKhz   []int
	pending    []byte
}

func newSimChain(numChips int, cores uint8) *simChain {
	my := &simChain{
		numChips: numChips,
		regs:     make(map[uint8][6]byte),
		failRead: make(map[uint8]bool),
	}
	for i := 1; i <= numChips; i++ {
		my.regs[uint8(i)] = [6]byte{0, 0, 0x01, 3, 0, cores}
	}
	return my
}

func (my *simChain) SetSpeed(khz uint32) error {
	my.speedKhz = append(my.speedKhz, int(khz))
	return nil
}

func (my *simChain) Close() error { return nil }

func (my *simChain) queueResult(jobID, chipID uint8, nonce uint32) {
	res := []byte{
		jobID<<4 | asicio.CMD_READ_RESULT, chipID,
		byte(nonce >> 24), byte(nonce >> 16), byte(nonce >> 8), byte(nonce),
		0, 0,
	}
	my.results = append(my.results, res)
}

func (my *simChain) setQueueState(chipID, qstate uint8) {
	d := my.regs[chipID]
	d[3] = qstate
	my.regs[chipID] = d
}

func (my *simChain) Transfer(tx, rx []byte) error {
	if len(my.pending) > 0 {
		copy(rx, my.pending[:len(rx)])
		my.pending = my.pending[len(rx):]
		return nil
	}

	cmd := tx[0] & 0x0f
	switch {
	case !my.detectDone && cmd == asicio.CMD_RESET && len(tx) == 6:
		my.detectDone = true
		if my.numChips == 0 {
			my.pending = make([]byte, 6+2*(asicio.MAX_CHAIN_LENGTH*2-1))
			break
		}
		// command echo falls out of the last chip after 4n clocked bytes
		if my.numChips == 1 {
			my.pending = make([]byte, 6)
			my.pending[0] = asicio.CMD_RESET
			break
		}
		my.pending = make([]byte, 4*my.numChips+2)
		my.pending[4*my.numChips] = asicio.CMD_RESET

	case cmd == asicio.CMD_WRITE_JOB && len(tx) >= asicio.WRITE_JOB_LENGTH:
		chipID := tx[1]
		job := make([]byte, asicio.WRITE_JOB_LENGTH)
		copy(job, tx)
		my.jobs = append(my.jobs, job)
		pollLen := 4*int(chipID) - 2
		my.pending = make([]byte, len(tx)+pollLen)
		my.pending[pollLen] = tx[0]
		my.pending[pollLen+1] = tx[1]

	case cmd == asicio.CMD_READ_RESULT && len(tx) == 8:
		pollLen := 8 + 4*my.numChips
		my.pending = make([]byte, 8+pollLen)
		if len(my.results) > 0 {
			copy(my.pending[8:], my.results[0])
			my.results = my.results[1:]
		} else {
			my.pending[0] = asicio.CMD_READ_RESULT
		}

	case cmd == 0:
		// flush, all zero bytes clocked straight through
		my.pending = make([]byte, len(tx))

	default:
		my.execFrame(tx)
	}

	copy(rx, my.pending[:len(rx)])
	my.pending = my.pending[len(rx):]
	return nil
}

// execFrame serves the Exec style commands: fixed 4 byte header plus
// payload, ack at the chip's position in the combined buffer.
func (my *simChain) execFrame(tx []byte) {
	cmd := tx[0]
	chipID := tx[1]
	respLen := 0
	if cmd == asicio.CMD_READ_REG {
		respLen = 6
	}
	pollLen := respLen
	if chipID == asicio.BROADCAST_ID {
		pollLen += 4 * my.numChips
	} else {
		pollLen += 4*int(chipID) - 2
	}
	ackPos := pollLen - respLen

	my.pending = make([]byte, len(tx)+pollLen)
	switch cmd {
	case asicio.CMD_WRITE_REG:
		my.writeReg(chipID, tx[2:8])
		my.pending[ackPos] = cmd
		my.pending[ackPos+1] = chipID
	case asicio.CMD_READ_REG:
		if my.failRead[chipID] {
			break
		}
		d := my.regs[chipID]
		my.pending[ackPos] = asicio.CMD_READ_REG_RESP
		my.pending[ackPos+1] = chipID
		copy(my.pending[ackPos+2:], d[:])
	default:
		my.pending[ackPos] = cmd
		my.pending[ackPos+1] = chipID
	}
}

func (my *simChain) writeReg(chipID uint8, reg []byte) {
	set := func(id uint8) {
		d := my.regs[id]
		d[0] = reg[0]
		d[1] = reg[1]
		my.regs[id] = d
	}
	if chipID == asicio.BROADCAST_ID {
		for i := 1; i <= my.numChips; i++ {
			set(uint8(i))
		}
		return
	}
	set(chipID)
}

// fakeHost hands out canned work and records what comes back.
type fakeHost struct {
	mu        sync.Mutex
	issued    int
	completed []*chip.Work
	accept    bool
	restart   bool
	nonces    []uint32
}

func (my *fakeHost) GetQueued() *chip.Work {
	my.mu.Lock()
	defer my.mu.Unlock()
	my.issued++
	return &chip.Work{
		Midstate:   make([]byte, 32),
		Tail:       make([]byte, 12),
		DeviceDiff: 1.0,
	}
}

func (my *fakeHost) SubmitNonce(w *chip.Work, nonce uint32) bool {
	my.mu.Lock()
	defer my.mu.Unlock()
	my.nonces = append(my.nonces, nonce)
	return my.accept
}

func (my *fakeHost) WorkCompleted(w *chip.Work) {
	my.mu.Lock()
	defer my.mu.Unlock()
	my.completed = append(my.completed, w)
}

func (my *fakeHost) WorkRestart() bool { return my.restart }

// fakeSelector satisfies the board selector without hardware.
type fakeSelector struct {
	mu       sync.Mutex
	selects  []uint8
	releases int
	temp     uint8
}

func (my *fakeSelector) Select(chain uint8) bool {
	my.mu.Lock()
	my.selects = append(my.selects, chain)
	return true
}

func (my *fakeSelector) Release() {
	my.releases++
	my.mu.Unlock()
}

func (my *fakeSelector) Reset() bool { return true }

func (my *fakeSelector) ResetAll() bool { return true }

func (my *fakeSelector) GetTemp(sensor uint8) uint8 { return my.temp }

func (my *fakeSelector) Exit() {}

// withFrozenClock pins nowMs and disables sleeps for the test.
func withFrozenClock(t *testing.T, start int64) *int64 {
	t.Helper()
	now := start
	origNow, origSleep := nowMs, sleepMs
	nowMs = func() int64 { return now }
	sleepMs = func(ms int) {}
	t.Cleanup(func() {
		nowMs = origNow
		sleepMs = origSleep
	})
	return &now
}
