package power

// Bus is a register-addressable device on an I2C bus.
type Bus interface {
	// ReadRegister reads n bytes starting at register reg.
	ReadRegister(reg uint8, n int) ([]byte, error)

	// WriteRegister writes data starting at register reg.
	WriteRegister(reg uint8, data []byte) error

	// Close releases the device handle.
	Close() error
}
