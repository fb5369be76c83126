package location

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/adrianmo/go-nmea"
	"github.com/tarm/serial"
)

const (
	ggaFixInvalid = "0"
	rmcValid      = "A"
)

// ErrNoFix is returned when the GPS output ends without a usable fix.
var ErrNoFix = errors.New("no valid GPS data found")

// DeviceSensorProvider is responsible for retrieving location data from a GPS device connected via serial port.
type DeviceSensorProvider struct {
	port     string // Serial port to which the GPS device is connected
	baudRate int    // Baud rate for the serial communication

	open func() (io.ReadCloser, error)

	mu      sync.Mutex
	streams []io.Closer
}

// NewDeviceSensorProvider creates a new instance of DeviceSensorProvider with the specified port and baud rate.
func NewDeviceSensorProvider(port string, baudRate int) *DeviceSensorProvider {
	d := &DeviceSensorProvider{
		port:     port,
		baudRate: baudRate,
	}
	d.open = d.openSerial
	return d
}

func (d *DeviceSensorProvider) openSerial() (io.ReadCloser, error) {
	return serial.OpenPort(&serial.Config{Name: d.port, Baud: d.baudRate})
}

// GetLocation reads GPS data from the device and returns the first valid fix.
func (d *DeviceSensorProvider) GetLocation(ctx context.Context) (Location, error) {
	s, err := d.open()
	if err != nil {
		return Location{}, err
	}
	defer s.Close()

	// Closing the port is the only way to unblock a pending read.
	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	var fix Location
	found := false
	err = scanFixes(s, func(loc Location) bool {
		fix, found = loc, true
		return false
	})
	if found {
		return fix, nil
	}
	if ctx.Err() != nil {
		return Location{}, ctx.Err()
	}
	if err != nil {
		return Location{}, err
	}
	return Location{}, ErrNoFix
}

// Stream keeps the serial port open and emits every valid fix until ctx is done.
func (d *DeviceSensorProvider) Stream(ctx context.Context) (<-chan Location, error) {
	s, err := d.open()
	if err != nil {
		return nil, err
	}
	d.track(s)

	out := make(chan Location)
	go func() {
		defer close(out)
		defer d.untrack(s)
		stop := context.AfterFunc(ctx, func() { s.Close() })
		defer stop()

		_ = scanFixes(s, func(loc Location) bool {
			select {
			case out <- loc:
				return true
			case <-ctx.Done():
				return false
			}
		})
	}()
	return out, nil
}

// Close releases any serial ports held open by streams.
func (d *DeviceSensorProvider) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var errs []error
	for _, s := range d.streams {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	d.streams = nil
	return errors.Join(errs...)
}

func (d *DeviceSensorProvider) track(c io.Closer) {
	d.mu.Lock()
	d.streams = append(d.streams, c)
	d.mu.Unlock()
}

func (d *DeviceSensorProvider) untrack(c io.Closer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, s := range d.streams {
		if s == c {
			d.streams = append(d.streams[:i], d.streams[i+1:]...)
			break
		}
	}
	c.Close()
}

// scanFixes reads NMEA sentences from r and calls emit for every valid fix until
// emit returns false or the reader is exhausted.
func scanFixes(r io.Reader, emit func(Location) bool) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		loc, ok := parseFix(scanner.Text())
		if !ok {
			continue
		}
		if !emit(loc) {
			return nil
		}
	}
	return scanner.Err()
}

// parseFix extracts a position from a GGA or RMC sentence of any talker.
// Malformed sentences and sentences without a fix are ignored.
func parseFix(line string) (Location, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return Location{}, false
	}
	sentence, err := nmea.Parse(line)
	if err != nil {
		return Location{}, false
	}

	switch s := sentence.(type) {
	case nmea.GGA:
		if s.FixQuality == ggaFixInvalid {
			return Location{}, false
		}
		return Location{
			Latitude:  s.Latitude,
			Longitude: s.Longitude,
			Accuracy:  s.HDOP, // Use HDOP as a proxy for accuracy
		}, true
	case nmea.RMC:
		if s.Validity != rmcValid {
			return Location{}, false
		}
		return Location{Latitude: s.Latitude, Longitude: s.Longitude}, true
	}
	return Location{}, false
}
