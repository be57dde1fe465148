// Package regbus performs addressed register transactions against a device
// with a 16-bit register space on an I2C bus.
//
// Every transaction starts with the register address as two big-endian bytes.
// A write is one contiguous block [addr_hi, addr_lo, data...]. A read writes
// the two address bytes without a stop condition and reads N bytes in the
// same transaction (repeated start). Multi-byte values are big-endian.
//
// The transport performs no retries; failures are returned to the caller as
// *TxError, which matches ErrTransport.
package regbus

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"
)

// DefaultAddress is the 7-bit address of the sensor.
const DefaultAddress uint8 = 0x29

// Bus performs one combined bus transaction addressed to a 7-bit device.
// When both w and r are non-empty the write and read are joined by a
// repeated start. It is satisfied by periph.io i2c.Bus implementations.
type Bus interface {
	Tx(addr uint16, w, r []byte) error
}

// Width is a register value width in bytes.
type Width uint8

const (
	Width8  Width = 1
	Width16 Width = 2
	Width32 Width = 4
)

func (w Width) valid() bool {
	return w == Width8 || w == Width16 || w == Width32
}

// Bits returns the width in bits.
func (w Width) Bits() int { return int(w) * 8 }

// Transport owns one (bus, address) pair. Transactions on a Transport never
// interleave.
type Transport struct {
	mu     sync.Mutex
	bus    Bus
	busID  string
	addr   uint8
	closer io.Closer
	closed bool
}

// New claims (busID, addr) and returns a Transport over bus. closer, when
// non-nil, is closed together with the Transport. A second claim on the same
// pair while the first Transport is open fails with ErrHandleInUse.
func New(bus Bus, busID string, addr uint8, closer io.Closer) (*Transport, error) {
	if addr > 0x7F {
		return nil, &OpenError{Bus: busID, Addr: addr, Err: fmt.Errorf("address %#x is not a 7-bit address", addr)}
	}
	if err := claim(busID, addr); err != nil {
		return nil, &OpenError{Bus: busID, Addr: addr, Err: err}
	}
	return &Transport{
		bus:    bus,
		busID:  busID,
		addr:   addr,
		closer: closer,
	}, nil
}

// String returns bus@address.
func (t *Transport) String() string {
	return fmt.Sprintf("%s@%#02x", t.busID, t.addr)
}

// WriteRegister writes value to reg as width big-endian bytes in a single
// write transaction.
func (t *Transport) WriteRegister(reg uint16, value uint32, width Width) error {
	if !width.valid() {
		return fmt.Errorf("%w: %d bytes", ErrInvalidWidth, width)
	}
	if width < Width32 && value>>uint(width.Bits()) != 0 {
		return fmt.Errorf("regbus: value %#x does not fit in %d bits", value, width.Bits())
	}

	buf := make([]byte, 2+int(width))
	binary.BigEndian.PutUint16(buf, reg)
	putValue(buf[2:], value)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if err := t.bus.Tx(uint16(t.addr), buf, nil); err != nil {
		return &TxError{Op: "write", Bus: t.busID, Addr: t.addr, Reg: reg, Err: err}
	}
	return nil
}

// ReadRegister reads width bytes starting at reg and returns them decoded
// as a big-endian value.
func (t *Transport) ReadRegister(reg uint16, width Width) (uint32, error) {
	if !width.valid() {
		return 0, fmt.Errorf("%w: %d bytes", ErrInvalidWidth, width)
	}

	var w [2]byte
	binary.BigEndian.PutUint16(w[:], reg)
	r := make([]byte, width)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, ErrClosed
	}
	if err := t.bus.Tx(uint16(t.addr), w[:], r); err != nil {
		return 0, &TxError{Op: "read", Bus: t.busID, Addr: t.addr, Reg: reg, Err: err}
	}
	return getValue(r), nil
}

// Close releases the (bus, address) claim and closes the underlying bus if
// one was supplied. Closing twice is a no-op.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	release(t.busID, t.addr)
	if t.closer != nil {
		return t.closer.Close()
	}
	return nil
}

func putValue(b []byte, v uint32) {
	switch len(b) {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.BigEndian.PutUint16(b, uint16(v))
	case 4:
		binary.BigEndian.PutUint32(b, v)
	}
}

func getValue(b []byte) uint32 {
	switch len(b) {
	case 1:
		return uint32(b[0])
	case 2:
		return uint32(binary.BigEndian.Uint16(b))
	case 4:
		return binary.BigEndian.Uint32(b)
	}
	return 0
}
