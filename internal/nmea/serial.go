package nmea

import (
	"fmt"

	"go.bug.st/serial"
)

// defaultBaudRate matches modern GNSS modules. The classic NMEA 0183
// rate is 4800 and remains selectable through the baudRate argument.
const defaultBaudRate = 9600

// NewSerialFeed opens the serial device at path and returns a Feed
// over it. GNSS receivers speak 8N1, so only the baud rate varies;
// zero or negative selects the default.
func NewSerialFeed(path string, baudRate int) (*Feed[serial.Port], error) {
	if baudRate <= 0 {
		baudRate = defaultBaudRate
	}

	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}

	return NewFeed[serial.Port](port), nil
}
