// Package events implements the scheduler's two-tier event queue: a
// common queue for events that touch the UE repository or per-UE state
// (create, reconfigure, remove, BSR, DL buffer state, MAC CE) and one
// bounded queue per cell for events tied to that cell (CRC, UCI). Both
// tiers are bounded, non-blocking MPSC queues: producers never suspend
// on a full queue, they drop and count the drop instead, preserving the
// slot driver's no-suspension-point guarantee on the hot path.
package events

import (
	"sync"

	"github.com/google/uuid"
)

// CommonEvent is a deferred mutation of the UE repository, applied
// once per slot outside the cell-pinned hot path window.
type CommonEvent func()

// CellEvent is a deferred mutation scoped to one cell's scheduling
// state for the current slot.
type CellEvent func()

// DropReason classifies why an event was discarded instead of queued.
type DropReason int

const (
	DropReasonQueueFull DropReason = iota
	DropReasonUnknownCell
)

// String renders a DropReason for use as a metric label.
func (r DropReason) String() string {
	switch r {
	case DropReasonQueueFull:
		return "queue_full"
	case DropReasonUnknownCell:
		return "unknown_cell"
	default:
		return "unknown"
	}
}

// NewCorrelationID mints an identifier callers can attach to a
// deferred event's log lines so a drop, its eventual apply, and any
// trace span can be tied back together across the common/cell-tier
// split.
func NewCorrelationID() string {
	return uuid.NewString()
}

// Manager owns the common queue and one bounded queue per registered
// cell.
type Manager struct {
	mu sync.Mutex

	common   chan CommonEvent
	perCell  map[uint8]chan CellEvent
	capacity int

	onDrop func(cell uint8, reason DropReason)
}

// NewManager builds a Manager with the given per-queue capacity. cells
// lists the cell indices to pre-register a cell-specific queue for;
// RegisterCell can add more later.
func NewManager(capacity int, cells []uint8, onDrop func(cell uint8, reason DropReason)) *Manager {
	m := &Manager{
		common:   make(chan CommonEvent, capacity),
		perCell:  make(map[uint8]chan CellEvent),
		capacity: capacity,
		onDrop:   onDrop,
	}
	for _, c := range cells {
		m.perCell[c] = make(chan CellEvent, capacity)
	}
	return m
}

// RegisterCell adds a cell-specific queue if one doesn't already exist.
func (m *Manager) RegisterCell(cell uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.perCell[cell]; !ok {
		m.perCell[cell] = make(chan CellEvent, m.capacity)
	}
}

// EnqueueCommon submits a common-tier event. It never blocks: if the
// queue is full the event is dropped and onDrop is invoked.
func (m *Manager) EnqueueCommon(ev CommonEvent) bool {
	select {
	case m.common <- ev:
		return true
	default:
		if m.onDrop != nil {
			m.onDrop(0, DropReasonQueueFull)
		}
		return false
	}
}

// EnqueueCellSpecific submits a cell-tier event for the named cell. It
// never blocks.
func (m *Manager) EnqueueCellSpecific(cell uint8, ev CellEvent) bool {
	m.mu.Lock()
	ch, ok := m.perCell[cell]
	m.mu.Unlock()
	if !ok {
		if m.onDrop != nil {
			m.onDrop(cell, DropReasonUnknownCell)
		}
		return false
	}
	select {
	case ch <- ev:
		return true
	default:
		if m.onDrop != nil {
			m.onDrop(cell, DropReasonQueueFull)
		}
		return false
	}
}

// DrainCommon removes and returns every currently queued common event,
// in FIFO order, without blocking.
func (m *Manager) DrainCommon() []CommonEvent {
	var out []CommonEvent
	for {
		select {
		case ev := <-m.common:
			out = append(out, ev)
		default:
			return out
		}
	}
}

// DrainCellSpecific removes and returns every currently queued event
// for the given cell, in FIFO order, without blocking.
func (m *Manager) DrainCellSpecific(cell uint8) []CellEvent {
	m.mu.Lock()
	ch, ok := m.perCell[cell]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	var out []CellEvent
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

// RunCommon drains and executes every queued common event, in FIFO
// order. The slot driver calls this once
// per slot before invoking the RA/SIB/UE schedulers.
func (m *Manager) RunCommon() {
	for _, ev := range m.DrainCommon() {
		ev()
	}
}

// RunCellSpecific drains and executes every queued event for the given
// cell.
func (m *Manager) RunCellSpecific(cell uint8) {
	for _, ev := range m.DrainCellSpecific(cell) {
		ev()
	}
}
