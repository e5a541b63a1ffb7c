package gpsfeed

import (
	"errors"
	"io"
	"math"
	"strings"
	"testing"
	"time"

	"go.bug.st/serial"
)

const walkLog = `$GPRMC,120000.00,A,5231.2000,N,01324.3000,E,0.5,0.0,150524,,,A*5F
$GPGGA,120000.00,5231.2000,N,01324.3000,E,1,08,0.9,35.0,M,40.0,M,,*5C
not a sentence
$GPGGA,120005.00,5231.2100,N,01324.3000,E,1,08,0.9,35.0,M,40.0,M,,*00

$GPGGA,120005.00,5231.2100,N,01324.3000,E,1,08,0.9,35.0,M,40.0,M,,*58
$GPRMC,120010.00,V,5231.2200,N,01324.3000,E,0.5,0.0,150524,,,N*44
$GPGGA,120015.00,5231.2300,N,01324.3000,E,0,00,99.9,0.0,M,0.0,M,,*60
$GPRMC,120020.00,A,5231.2400,N,01324.3100,E,0.5,0.0,150524,,,A*58
`

func TestNMEAReaderFixes(t *testing.T) {
	r := NewNMEAReader(strings.NewReader(walkLog))
	points, err := r.ReadAll()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("expected 3 fixes, got %d: %+v", len(points), points)
	}

	start := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC).UnixMilli()
	wantOffsets := []int64{0, 5000, 20000}
	for i, p := range points {
		if p.TimestampMs != start+wantOffsets[i] {
			t.Fatalf("point %d timestamp = %d, want %d", i, p.TimestampMs, start+wantOffsets[i])
		}
	}
	if math.Abs(points[0].Latitude-52.52) > 1e-9 || math.Abs(points[0].Longitude-13.405) > 1e-9 {
		t.Fatalf("unexpected first fix: %+v", points[0])
	}
	if r.Skipped == 0 {
		t.Fatalf("expected skipped sentences to be counted")
	}

	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF after drain, got %v", err)
	}
}

func TestNMEAReaderUsesClockDateBeforeRMC(t *testing.T) {
	r := NewNMEAReader(strings.NewReader("$GPGGA,115959.00,5231.2000,N,01324.3000,E,1,08,0.9,35.0,M,40.0,M,,*5F\n"))
	r.now = func() time.Time { return time.Date(2024, 5, 15, 20, 0, 0, 0, time.UTC) }

	p, err := r.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if want := time.Date(2024, 5, 15, 11, 59, 59, 0, time.UTC).UnixMilli(); p.TimestampMs != want {
		t.Fatalf("timestamp = %d, want %d", p.TimestampMs, want)
	}
}

func TestNMEAReaderCrossesMidnightWithoutRMC(t *testing.T) {
	log := "$GPGGA,235950.00,5231.2000,N,01324.3000,E,1,08,0.9,35.0,M,40.0,M,,*57\n" +
		"$GPGGA,000010.00,5231.2100,N,01324.3000,E,1,08,0.9,35.0,M,40.0,M,,*5F\n"
	r := NewNMEAReader(strings.NewReader(log))
	r.now = func() time.Time { return time.Date(2024, 5, 15, 23, 59, 55, 0, time.UTC) }

	points, err := r.ReadAll()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("expected both fixes across midnight, got %d (skipped %d)", len(points), r.Skipped)
	}
	want := time.Date(2024, 5, 15, 23, 59, 50, 0, time.UTC).UnixMilli()
	if points[0].TimestampMs != want {
		t.Fatalf("first timestamp = %d, want %d", points[0].TimestampMs, want)
	}
	if points[1].TimestampMs != want+20000 {
		t.Fatalf("second timestamp = %d, want %d", points[1].TimestampMs, want+20000)
	}
}

func TestOpenSerialMode(t *testing.T) {
	old := openPortFn
	defer func() { openPortFn = old }()

	var got *serial.Mode
	openPortFn = func(_ string, mode *serial.Mode) (io.ReadCloser, error) {
		got = mode
		return io.NopCloser(strings.NewReader("")), nil
	}
	port, err := OpenSerial("/dev/ttyUSB0", 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = port.Close()
	if got.BaudRate != DefaultBaud || got.DataBits != 8 || got.Parity != serial.NoParity || got.StopBits != serial.OneStopBit {
		t.Fatalf("unexpected mode: %+v", got)
	}

	openPortFn = func(string, *serial.Mode) (io.ReadCloser, error) { return nil, errors.New("busy") }
	if _, err := OpenSerial("/dev/ttyUSB0", 4800); err == nil {
		t.Fatalf("expected open error")
	}
}
