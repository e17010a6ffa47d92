// Package harq implements the per-UE HARQ entity: up to sixteen DL and
// sixteen UL processes per cell, each tracking new-transmission and
// retransmission state, the redundancy-version sequence walk, and the
// consecutive-KO count that feeds radio-link-failure detection.
package harq

import (
	"sync"

	"github.com/signalsfoundry/du-scheduler/internal/dciproto"
	"github.com/signalsfoundry/du-scheduler/internal/slotpoint"
)

const MaxProcesses = 16

// State is the lifecycle of a single HARQ process.
type State int

const (
	// StateEmpty means the process holds no in-flight transmission and
	// is available for a new transmission.
	StateEmpty State = iota
	// StateWaitingFeedback means a TB was sent and the entity is
	// waiting for the ACK/NACK (DL) or CRC result (UL).
	StateWaitingFeedback
	// StatePendingRetx means feedback was negative and a retransmission
	// is owed before the process can accept a new transmission.
	StatePendingRetx
)

// AllocParams is the subset of a transmission's parameters the process
// must remember to validate and reuse on a retransmission.
type AllocParams struct {
	DCIFormat dciproto.Format
	MCS       uint8
	TBSBytes  int
	NofCRBs   int
}

// Process is one HARQ process (DL or UL symmetrically).
type Process struct {
	ID    uint8
	state State

	rvSeq []uint8
	rvIdx int

	allocSlot   slotpoint.SlotPoint
	feedbackSlot slotpoint.SlotPoint // k1 for DL, implicit for UL CRC
	dai         uint8

	retxCount uint8
	maxRetx   uint8

	last AllocParams
}

func newProcess(id uint8, rvSeq []uint8) *Process {
	return &Process{ID: id, rvSeq: rvSeq}
}

// Empty reports whether the process currently holds no transmission.
func (p *Process) Empty() bool { return p.state == StateEmpty }

// PendingRetx reports whether a retransmission is owed.
func (p *Process) PendingRetx() bool { return p.state == StatePendingRetx }

// LastAllocParams returns the parameters of the most recent
// transmission, valid once the process has left StateEmpty at least once.
func (p *Process) LastAllocParams() AllocParams { return p.last }

// RV returns the redundancy version to use for the next transmission.
func (p *Process) RV() uint8 { return p.rvSeq[p.rvIdx%len(p.rvSeq)] }

// NewTx starts a fresh transmission, resetting the RV sequence to its
// first entry.
func (p *Process) NewTx(allocSlot, feedbackSlot slotpoint.SlotPoint, maxRetx uint8, dai uint8, params AllocParams) {
	p.state = StateWaitingFeedback
	p.rvIdx = 0
	p.allocSlot = allocSlot
	p.feedbackSlot = feedbackSlot
	p.maxRetx = maxRetx
	p.dai = dai
	p.retxCount = 0
	p.last = params
}

// NewRetx continues an existing transmission after negative feedback,
// advancing the RV sequence by one step.
func (p *Process) NewRetx(allocSlot, feedbackSlot slotpoint.SlotPoint, dai uint8) {
	p.state = StateWaitingFeedback
	p.rvIdx++
	p.allocSlot = allocSlot
	p.feedbackSlot = feedbackSlot
	p.dai = dai
	p.retxCount++
}

// AllocSlot returns the slot the current/last transmission was sent on.
func (p *Process) AllocSlot() slotpoint.SlotPoint { return p.allocSlot }

// FeedbackSlot returns the slot feedback is expected on.
func (p *Process) FeedbackSlot() slotpoint.SlotPoint { return p.feedbackSlot }

// DAI returns the downlink assignment index recorded at grant time.
func (p *Process) DAI() uint8 { return p.dai }

// RetxExhausted reports whether another retransmission would exceed
// the configured maximum.
func (p *Process) RetxExhausted() bool { return p.retxCount >= p.maxRetx }

// resolve applies a feedback outcome to the process: ok (ack or crc-ok)
// frees it; a failure leaves it pending retransmission, or frees it once
// retransmissions are exhausted. It returns the TBS to credit and
// whether this outcome counts as a KO.
func (p *Process) resolve(ok bool) (tbsBytes int, isKO bool) {
	tbsBytes = p.last.TBSBytes
	if ok {
		p.state = StateEmpty
		return tbsBytes, false
	}
	if p.RetxExhausted() {
		p.state = StateEmpty
		return tbsBytes, true
	}
	p.state = StatePendingRetx
	return tbsBytes, true
}

// Entity owns the full set of DL or UL HARQ processes for one UE on
// one cell, plus the consecutive-KO counter that feeds RLF detection.
type Entity struct {
	mu        sync.Mutex
	processes [MaxProcesses]*Process

	consecutiveKOs    uint32
	maxConsecutiveKOs uint32
}

// NewEntity allocates MaxProcesses processes sharing the given RV sequence.
func NewEntity(rvSeq []uint8, maxConsecutiveKOs uint32) *Entity {
	e := &Entity{maxConsecutiveKOs: maxConsecutiveKOs}
	for i := range e.processes {
		e.processes[i] = newProcess(uint8(i), rvSeq)
	}
	return e
}

// Process returns the process with the given id, or nil if out of range.
func (e *Entity) Process(id uint8) *Process {
	e.mu.Lock()
	defer e.mu.Unlock()
	if int(id) >= len(e.processes) {
		return nil
	}
	return e.processes[id]
}

// FindAvailable returns the first process that is either empty or has
// a retransmission pending, preferring a pending retransmission so
// outstanding data isn't starved by new traffic.
func (e *Entity) FindAvailable() *Process {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range e.processes {
		if p.PendingRetx() {
			return p
		}
	}
	for _, p := range e.processes {
		if p.Empty() {
			return p
		}
	}
	return nil
}

// FindEmpty returns the first process holding no transmission at all,
// ignoring any process with a retransmission pending. Unlike
// FindAvailable, this never returns a process the caller would then
// have to reject — it is the correct finder for a brand-new
// transmission, which must never displace a retransmission owed on an
// unrelated process.
func (e *Entity) FindEmpty() *Process {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range e.processes {
		if p.Empty() {
			return p
		}
	}
	return nil
}

// Resolve applies a terminal feedback outcome (DL ACK/NACK or UL CRC
// pass/fail) to the named process and updates the consecutive-KO
// counter accordingly.
func (e *Entity) Resolve(id uint8, ok bool) (tbsBytes int, rlfTriggered bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if int(id) >= len(e.processes) {
		return 0, false
	}
	tbs, isKO := e.processes[id].resolve(ok)
	if isKO {
		e.consecutiveKOs++
	} else {
		e.consecutiveKOs = 0
	}
	return tbs, e.consecutiveKOs >= e.maxConsecutiveKOs && e.maxConsecutiveKOs > 0
}

// ConsecutiveKOs returns the current consecutive-KO count.
func (e *Entity) ConsecutiveKOs() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.consecutiveKOs
}

// AwaitingFeedbackIDs returns the ids of every process currently
// waiting on ACK/NACK or CRC feedback, in ascending id order — the
// order a batched uci_indication's HARQ-bit payload is positionally
// matched against.
func (e *Entity) AwaitingFeedbackIDs() []uint8 {
	e.mu.Lock()
	defer e.mu.Unlock()
	var ids []uint8
	for _, p := range e.processes {
		if p.state == StateWaitingFeedback {
			ids = append(ids, p.ID)
		}
	}
	return ids
}
