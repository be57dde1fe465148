package regbus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
)

// ErrNak is returned by MemBus for transactions addressed to another device.
var ErrNak = errors.New("membus: no acknowledge")

// Op is a register transaction kind.
type Op int

const (
	OpRead Op = iota
	OpWrite
)

func (o Op) String() string {
	if o == OpWrite {
		return "write"
	}
	return "read"
}

// Access is one register transaction observed by a MemBus.
type Access struct {
	Op   Op
	Reg  uint16
	Data []byte // bytes written, or bytes returned by a read
}

// MemBus is an in-memory register file implementing Bus. Registers are byte
// addressed and multi-byte accesses auto-increment, as on the device. Hooks
// replace read results or observe writes; faults fail selected registers.
type MemBus struct {
	mu         sync.Mutex
	addr       uint8
	mem        map[uint16]byte
	readHooks  map[uint16]func(n int) []byte
	writeHooks map[uint16]func(data []byte)
	readFaults map[uint16]error
	wrFaults   map[uint16]error
	log        []Access
	closed     bool
}

// NewMemBus returns an empty register file answering at addr.
func NewMemBus(addr uint8) *MemBus {
	return &MemBus{
		addr:       addr,
		mem:        make(map[uint16]byte),
		readHooks:  make(map[uint16]func(int) []byte),
		writeHooks: make(map[uint16]func([]byte)),
		readFaults: make(map[uint16]error),
		wrFaults:   make(map[uint16]error),
	}
}

// Tx implements Bus.
func (m *MemBus) Tx(addr uint16, w, r []byte) error {
	if addr != uint16(m.addr) {
		return ErrNak
	}
	if len(w) < 2 {
		return fmt.Errorf("membus: transaction without register address (%d bytes)", len(w))
	}
	reg := binary.BigEndian.Uint16(w)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errors.New("membus: closed")
	}

	if len(r) == 0 {
		if err := m.wrFaults[reg]; err != nil {
			m.mu.Unlock()
			return err
		}
		data := append([]byte(nil), w[2:]...)
		for i, b := range data {
			m.mem[reg+uint16(i)] = b
		}
		m.log = append(m.log, Access{Op: OpWrite, Reg: reg, Data: data})
		hook := m.writeHooks[reg]
		m.mu.Unlock()
		if hook != nil {
			hook(data)
		}
		return nil
	}

	if len(w) != 2 {
		m.mu.Unlock()
		return fmt.Errorf("membus: read with %d address bytes", len(w))
	}
	if err := m.readFaults[reg]; err != nil {
		m.mu.Unlock()
		return err
	}
	hook := m.readHooks[reg]
	m.mu.Unlock()

	var data []byte
	if hook != nil {
		data = hook(len(r))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if data == nil {
		data = make([]byte, len(r))
		for i := range data {
			data[i] = m.mem[reg+uint16(i)]
		}
	}
	copy(r, data)
	m.log = append(m.log, Access{Op: OpRead, Reg: reg, Data: append([]byte(nil), r...)})
	return nil
}

// Set stores v at reg as width big-endian bytes.
func (m *MemBus) Set(reg uint16, v uint32, width Width) {
	buf := make([]byte, width)
	putValue(buf, v)
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, b := range buf {
		m.mem[reg+uint16(i)] = b
	}
}

// Get returns width bytes at reg decoded big-endian.
func (m *MemBus) Get(reg uint16, width Width) uint32 {
	buf := make([]byte, width)
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range buf {
		buf[i] = m.mem[reg+uint16(i)]
	}
	return getValue(buf)
}

// OnRead installs fn to produce the result of reads starting at reg. A nil
// result from fn falls back to the register file.
func (m *MemBus) OnRead(reg uint16, fn func(n int) []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readHooks[reg] = fn
}

// OnWrite installs fn to observe writes starting at reg, after they are
// stored.
func (m *MemBus) OnWrite(reg uint16, fn func(data []byte)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeHooks[reg] = fn
}

// FailRead makes every read starting at reg fail with err until ClearFaults.
func (m *MemBus) FailRead(reg uint16, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readFaults[reg] = err
}

// FailWrite makes every write starting at reg fail with err until
// ClearFaults.
func (m *MemBus) FailWrite(reg uint16, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wrFaults[reg] = err
}

// ClearFaults removes all injected faults.
func (m *MemBus) ClearFaults() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readFaults = make(map[uint16]error)
	m.wrFaults = make(map[uint16]error)
}

// Log returns a copy of all completed transactions in order.
func (m *MemBus) Log() []Access {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Access(nil), m.log...)
}

// Writes returns the completed write transactions in order.
func (m *MemBus) Writes() []Access {
	return m.filter(OpWrite)
}

// Reads returns the completed read transactions in order.
func (m *MemBus) Reads() []Access {
	return m.filter(OpRead)
}

// ReadCount returns how many reads started at reg.
func (m *MemBus) ReadCount(reg uint16) int {
	n := 0
	for _, a := range m.filter(OpRead) {
		if a.Reg == reg {
			n++
		}
	}
	return n
}

// ResetLog clears the transaction log.
func (m *MemBus) ResetLog() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log = nil
}

func (m *MemBus) filter(op Op) []Access {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Access
	for _, a := range m.log {
		if a.Op == op {
			out = append(out, a)
		}
	}
	return out
}

// String implements fmt.Stringer.
func (m *MemBus) String() string { return "membus" }

// Close marks the bus closed; later transactions fail.
func (m *MemBus) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MemBus) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
