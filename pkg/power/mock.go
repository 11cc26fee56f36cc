package power

import (
	"encoding/binary"
	"math"
	"sync"
)

// MockBus implements Bus for testing with an in-memory register file.
type MockBus struct {
	mu        sync.Mutex
	regs      map[uint8][]byte
	readErrs  map[uint8]error
	writeErrs map[uint8]error
	writes    []MockWrite
	closed    bool
}

// MockWrite records a register write.
type MockWrite struct {
	Register uint8
	Data     []byte
}

// NewMockBus creates an empty register file.
func NewMockBus() *MockBus {
	return &MockBus{
		regs:      make(map[uint8][]byte),
		readErrs:  make(map[uint8]error),
		writeErrs: make(map[uint8]error),
	}
}

// SetWord stores a big-endian register value.
func (m *MockBus) SetWord(reg uint8, v uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	m.regs[reg] = b
}

// SetReading encodes voltage (V), signed current (mA) and power (mW) into
// the INA219 result registers.
func (m *MockBus) SetReading(voltage, current, power float64) {
	m.SetWord(RegBusVoltage, uint16(math.Round(voltage/busVoltageLSB))<<3)
	m.SetWord(RegCurrent, uint16(int16(math.Round(current/currentLSB))))
	m.SetWord(RegPower, uint16(math.Round(power/powerLSB)))
}

// FailRead makes reads of reg return err (nil clears it).
func (m *MockBus) FailRead(reg uint8, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.readErrs, reg)
		return
	}
	m.readErrs[reg] = err
}

// FailWrite makes writes to reg return err (nil clears it).
func (m *MockBus) FailWrite(reg uint8, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.writeErrs, reg)
		return
	}
	m.writeErrs[reg] = err
}

// ReadRegister returns the stored register bytes.
func (m *MockBus) ReadRegister(reg uint8, n int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrBusClosed
	}
	if err := m.readErrs[reg]; err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, m.regs[reg])
	return out, nil
}

// WriteRegister records the write and stores the value.
func (m *MockBus) WriteRegister(reg uint8, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrBusClosed
	}
	if err := m.writeErrs[reg]; err != nil {
		return err
	}
	cp := append([]byte(nil), data...)
	m.writes = append(m.writes, MockWrite{Register: reg, Data: cp})
	m.regs[reg] = cp
	return nil
}

// Writes returns all recorded writes.
func (m *MockBus) Writes() []MockWrite {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockWrite, len(m.writes))
	copy(out, m.writes)
	return out
}

// Close marks the bus closed.
func (m *MockBus) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockBus) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

var _ Bus = (*MockBus)(nil)
