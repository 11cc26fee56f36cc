//go:build linux

package power

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// i2cSlave is the i2c-dev ioctl selecting the target device address.
const i2cSlave = 0x0703

// I2CBus is a Linux i2c-dev handle bound to one device address.
type I2CBus struct {
	mu   sync.Mutex
	fd   int
	path string
	addr uint16
}

// OpenI2C opens /dev/i2c-<bus> and selects addr.
func OpenI2C(bus int, addr uint16) (*I2CBus, error) {
	path := fmt.Sprintf("/dev/i2c-%d", bus)
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := unix.IoctlSetInt(fd, i2cSlave, int(addr)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("select address %#02x on %s: %w", addr, path, err)
	}
	return &I2CBus{fd: fd, path: path, addr: addr}, nil
}

// ReadRegister writes the register pointer, then reads n bytes.
func (b *I2CBus) ReadRegister(reg uint8, n int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fd < 0 {
		return nil, ErrBusClosed
	}

	if _, err := unix.Write(b.fd, []byte{reg}); err != nil {
		return nil, fmt.Errorf("%s: set register %#02x: %w", b.path, reg, err)
	}
	buf := make([]byte, n)
	got, err := unix.Read(b.fd, buf)
	if err != nil {
		return nil, fmt.Errorf("%s: read register %#02x: %w", b.path, reg, err)
	}
	return buf[:got], nil
}

// WriteRegister writes the register pointer followed by data in one transfer.
func (b *I2CBus) WriteRegister(reg uint8, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fd < 0 {
		return ErrBusClosed
	}

	msg := append([]byte{reg}, data...)
	n, err := unix.Write(b.fd, msg)
	if err != nil {
		return fmt.Errorf("%s: write register %#02x: %w", b.path, reg, err)
	}
	if n != len(msg) {
		return fmt.Errorf("%s: write register %#02x: short write %d/%d", b.path, reg, n, len(msg))
	}
	return nil
}

// Close releases the device handle.
func (b *I2CBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fd < 0 {
		return nil
	}
	err := unix.Close(b.fd)
	b.fd = -1
	return err
}

var _ Bus = (*I2CBus)(nil)
