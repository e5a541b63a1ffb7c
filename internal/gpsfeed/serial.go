package gpsfeed

import (
	"fmt"
	"io"

	"go.bug.st/serial"
)

const DefaultBaud = 9600

var openPortFn = func(path string, mode *serial.Mode) (io.ReadCloser, error) {
	return serial.Open(path, mode)
}

// OpenSerial opens a GPS receiver at 8N1. The caller closes the port.
func OpenSerial(path string, baud int) (io.ReadCloser, error) {
	if baud <= 0 {
		baud = DefaultBaud
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := openPortFn(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open gps port %s: %w", path, err)
	}
	return port, nil
}

// Ports lists serial devices present on the host.
func Ports() ([]string, error) {
	return serial.GetPortsList()
}
