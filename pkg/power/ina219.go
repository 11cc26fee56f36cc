package power

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/teslashibe/go-visionvoice/internal/log"
)

// INA219 register map.
const (
	RegConfig       uint8 = 0x00
	RegShuntVoltage uint8 = 0x01
	RegBusVoltage   uint8 = 0x02
	RegPower        uint8 = 0x03
	RegCurrent      uint8 = 0x04
	RegCalibration  uint8 = 0x05
)

// Chip programming for the UPS HAT: 32 V bus range, ±320 mV shunt range,
// 12-bit continuous shunt and bus conversion; calibration for a 0.1 Ω shunt.
const (
	ConfigValue      uint16 = 0x219F
	CalibrationValue uint16 = 4096
)

// Scale factors for the calibration above.
const (
	busVoltageLSB = 0.004 // V
	currentLSB    = 0.1   // mA
	powerLSB      = 2.0   // mW

	// minPlausibleVoltage rejects an all-zero read from a bus glitch.
	minPlausibleVoltage = 0.1
)

// Config holds monitor configuration.
type Config struct {
	// ShutdownVoltage is the empty point of the percentage scale.
	ShutdownVoltage float64

	// FullVoltage is the full point of the percentage scale.
	FullVoltage float64

	Logger *slog.Logger
}

// DefaultConfig returns thresholds for a 2S 18650 pack.
func DefaultConfig() Config {
	return Config{
		ShutdownVoltage: 6.4,
		FullVoltage:     8.4,
	}
}

// Monitor owns the sensor bus handle exclusively.
// It is not safe for concurrent use.
type Monitor struct {
	bus    Bus
	cfg    Config
	logger *slog.Logger
}

// New programs the configuration and calibration registers on bus.
// Any write failure is returned; there is no partial-configuration fallback.
func New(bus Bus, cfg Config) (*Monitor, error) {
	m := &Monitor{
		bus:    bus,
		cfg:    cfg,
		logger: log.Or(cfg.Logger).With("component", "power"),
	}

	if err := m.writeWord(RegConfig, ConfigValue); err != nil {
		return nil, fmt.Errorf("power: configure INA219: %w", err)
	}
	if err := m.writeWord(RegCalibration, CalibrationValue); err != nil {
		return nil, fmt.Errorf("power: calibrate INA219: %w", err)
	}

	m.logger.Info("INA219 initialized", "config", fmt.Sprintf("%#04x", ConfigValue), "calibration", CalibrationValue)
	return m, nil
}

// Open opens the I2C device at bus/addr and programs it.
func Open(busNum int, addr uint16, cfg Config) (*Monitor, error) {
	bus, err := OpenI2C(busNum, addr)
	if err != nil {
		return nil, fmt.Errorf("power: %w", err)
	}
	m, err := New(bus, cfg)
	if err != nil {
		bus.Close()
		return nil, err
	}
	return m, nil
}

// ReadStatus reads bus voltage, current and power and decodes them.
// A failed read is returned as-is; there is no retry.
func (m *Monitor) ReadStatus() (Status, error) {
	busRaw, err := m.readWord(RegBusVoltage)
	if err != nil {
		return Status{}, err
	}
	currentRaw, err := m.readWord(RegCurrent)
	if err != nil {
		return Status{}, err
	}
	powerRaw, err := m.readWord(RegPower)
	if err != nil {
		return Status{}, err
	}

	voltage := DecodeBusVoltage(busRaw)
	if voltage < minPlausibleVoltage {
		return Status{}, &ReadingError{Register: RegBusVoltage, Err: ErrImplausible}
	}
	current := DecodeCurrent(currentRaw)

	return Status{
		Voltage:    voltage,
		Current:    abs(current),
		Power:      DecodePower(powerRaw),
		Charging:   current > 0,
		Percentage: Percentage(voltage, m.cfg.ShutdownVoltage, m.cfg.FullVoltage),
	}, nil
}

// Close releases the bus.
func (m *Monitor) Close() error {
	return m.bus.Close()
}

// DecodeBusVoltage converts the bus voltage register to volts.
// The low three bits are status flags.
func DecodeBusVoltage(raw uint16) float64 {
	return float64(raw>>3) * busVoltageLSB
}

// DecodeCurrent converts the signed current register to mA.
// Positive means the battery is charging.
func DecodeCurrent(raw uint16) float64 {
	return float64(int16(raw)) * currentLSB
}

// DecodePower converts the power register to mW.
func DecodePower(raw uint16) float64 {
	return float64(raw) * powerLSB
}

func (m *Monitor) readWord(reg uint8) (uint16, error) {
	b, err := m.bus.ReadRegister(reg, 2)
	if err != nil {
		return 0, &ReadingError{Register: reg, Err: err}
	}
	if len(b) != 2 {
		return 0, &ReadingError{Register: reg, Err: fmt.Errorf("short read: %d bytes", len(b))}
	}
	return binary.BigEndian.Uint16(b), nil
}

func (m *Monitor) writeWord(reg uint8, v uint16) error {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return m.bus.WriteRegister(reg, b[:])
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
