//go:build !linux

package power

// I2CBus is unavailable outside Linux.
type I2CBus struct{}

// OpenI2C always fails on this platform.
func OpenI2C(bus int, addr uint16) (*I2CBus, error) {
	return nil, ErrUnsupported
}

// ReadRegister always fails on this platform.
func (b *I2CBus) ReadRegister(reg uint8, n int) ([]byte, error) {
	return nil, ErrUnsupported
}

// WriteRegister always fails on this platform.
func (b *I2CBus) WriteRegister(reg uint8, data []byte) error {
	return ErrUnsupported
}

// Close is a no-op.
func (b *I2CBus) Close() error {
	return nil
}

var _ Bus = (*I2CBus)(nil)
