// Package gpsfeed provides location streams for the loop detector: replayed
// NMEA logs and live serial GPS receivers.
package gpsfeed

import (
	"bufio"
	"io"
	"strings"
	"time"

	"backend-territory/internal/loop"

	"github.com/adrianmo/go-nmea"
)

// NMEAReader yields fixes from RMC and GGA sentences. Malformed sentences,
// sentences without a fix and fixes that do not advance time are skipped.
type NMEAReader struct {
	scanner *bufio.Scanner
	lastMs  int64
	date    nmea.Date
	now     func() time.Time

	// base is the UTC date used before any RMC date is seen.
	base     time.Time
	lastTOD  time.Duration
	seenTOD  bool
	dayShift int

	Skipped int
}

func NewNMEAReader(r io.Reader) *NMEAReader {
	return &NMEAReader{scanner: bufio.NewScanner(r), now: time.Now}
}

// Next returns the next usable fix, or io.EOF when the input is exhausted.
func (r *NMEAReader) Next() (loop.GpsPoint, error) {
	for r.scanner.Scan() {
		line := strings.TrimSpace(r.scanner.Text())
		if line == "" {
			continue
		}
		p, ok := r.parse(line)
		if !ok {
			continue
		}
		if p.TimestampMs <= r.lastMs {
			r.Skipped++
			continue
		}
		r.lastMs = p.TimestampMs
		return p, nil
	}
	if err := r.scanner.Err(); err != nil {
		return loop.GpsPoint{}, err
	}
	return loop.GpsPoint{}, io.EOF
}

// ReadAll drains the reader.
func (r *NMEAReader) ReadAll() ([]loop.GpsPoint, error) {
	var points []loop.GpsPoint
	for {
		p, err := r.Next()
		if err == io.EOF {
			return points, nil
		}
		if err != nil {
			return points, err
		}
		points = append(points, p)
	}
}

func (r *NMEAReader) parse(line string) (loop.GpsPoint, bool) {
	s, err := nmea.Parse(line)
	if err != nil {
		r.Skipped++
		return loop.GpsPoint{}, false
	}

	switch m := s.(type) {
	case nmea.RMC:
		if m.Validity != nmea.ValidRMC {
			r.Skipped++
			return loop.GpsPoint{}, false
		}
		if m.Date.Valid && m.Date != r.date {
			r.date = m.Date
			r.dayShift = 0
			r.seenTOD = false
		}
		return loop.GpsPoint{Latitude: m.Latitude, Longitude: m.Longitude, TimestampMs: r.stamp(m.Time)}, true
	case nmea.GGA:
		if m.FixQuality == "" || m.FixQuality == nmea.Invalid {
			r.Skipped++
			return loop.GpsPoint{}, false
		}
		return loop.GpsPoint{Latitude: m.Latitude, Longitude: m.Longitude, TimestampMs: r.stamp(m.Time)}, true
	}
	return loop.GpsPoint{}, false
}

// stamp combines a time of day with the last RMC date, or today's UTC date
// before any RMC date has been seen. A time of day more than twelve hours
// behind the previous one is taken as a wrap past midnight.
func (r *NMEAReader) stamp(t nmea.Time) int64 {
	tod := time.Duration(t.Hour)*time.Hour + time.Duration(t.Minute)*time.Minute +
		time.Duration(t.Second)*time.Second + time.Duration(t.Millisecond)*time.Millisecond
	if r.seenTOD && tod < r.lastTOD-12*time.Hour {
		r.dayShift++
	}
	r.lastTOD, r.seenTOD = tod, true

	var day time.Time
	if r.date.Valid {
		day = time.Date(2000+r.date.YY, time.Month(r.date.MM), r.date.DD, 0, 0, 0, 0, time.UTC)
	} else {
		if r.base.IsZero() {
			y, m, d := r.now().UTC().Date()
			r.base = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		}
		day = r.base
	}
	return day.AddDate(0, 0, r.dayShift).Add(tod).UnixMilli()
}
