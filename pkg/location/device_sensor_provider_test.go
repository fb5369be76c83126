package location

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withChecksum wraps an NMEA body in "$" and "*XX".
func withChecksum(body string) string {
	var sum byte
	for i := 0; i < len(body); i++ {
		sum ^= body[i]
	}
	return fmt.Sprintf("$%s*%02X", body, sum)
}

var (
	ggaFix   = withChecksum("GPGGA,172814.0,3723.46587704,N,12202.26957864,W,2,6,1.2,18.893,M,-25.669,M,2.0,0031")
	ggaNoFix = withChecksum("GPGGA,172814.0,3723.46587704,N,12202.26957864,W,0,0,,,M,,M,,")
	rmcFix   = withChecksum("GNRMC,220516,A,5133.82,N,00042.24,W,173.8,231.8,130694,004.2,W")
	rmcVoid  = withChecksum("GPRMC,220516,V,5133.82,N,00042.24,W,173.8,231.8,130694,004.2,W")
)

func TestParseFix_GGA(t *testing.T) {
	loc, ok := parseFix(ggaFix)
	require.True(t, ok)
	assert.InDelta(t, 37.391098, loc.Latitude, 1e-5)
	assert.InDelta(t, -122.037826, loc.Longitude, 1e-5)
	assert.InDelta(t, 1.2, loc.Accuracy, 1e-9)
}

func TestParseFix_RMCFromAnyTalker(t *testing.T) {
	loc, ok := parseFix(rmcFix)
	require.True(t, ok)
	assert.InDelta(t, 51.563667, loc.Latitude, 1e-5)
	assert.InDelta(t, -0.704, loc.Longitude, 1e-5)
}

func TestParseFix_Rejects(t *testing.T) {
	for name, line := range map[string]string{
		"gga without fix": ggaNoFix,
		"rmc void":        rmcVoid,
		"bad checksum":    strings.Replace(ggaFix, "*", "0*", 1),
		"not nmea":        "hello",
		"empty":           "",
		"unsupported":     withChecksum("GPGSA,A,3,04,05,,09,12,,,24,,,,,2.5,1.3,2.1"),
	} {
		t.Run(name, func(t *testing.T) {
			_, ok := parseFix(line)
			assert.False(t, ok)
		})
	}
}

func TestScanFixes_StopsWhenEmitDeclines(t *testing.T) {
	input := strings.Join([]string{ggaNoFix, ggaFix, rmcFix}, "\r\n")
	var got []Location
	err := scanFixes(strings.NewReader(input), func(loc Location) bool {
		got = append(got, loc)
		return false
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 37.391098, got[0].Latitude, 1e-5)
}

type nopReadCloser struct{ io.Reader }

func (nopReadCloser) Close() error { return nil }

func newTestSensor(input string) *DeviceSensorProvider {
	d := NewDeviceSensorProvider("/dev/null", 9600)
	d.open = func() (io.ReadCloser, error) {
		return nopReadCloser{strings.NewReader(input)}, nil
	}
	return d
}

func TestDeviceSensorProvider_GetLocation(t *testing.T) {
	d := newTestSensor(ggaNoFix + "\n" + rmcFix + "\n")
	loc, err := d.GetLocation(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 51.563667, loc.Latitude, 1e-5)
}

func TestDeviceSensorProvider_GetLocation_NoFix(t *testing.T) {
	d := newTestSensor(ggaNoFix + "\n")
	_, err := d.GetLocation(context.Background())
	assert.ErrorIs(t, err, ErrNoFix)
}

func TestDeviceSensorProvider_GetLocation_OpenError(t *testing.T) {
	d := NewDeviceSensorProvider("/dev/null", 9600)
	d.open = func() (io.ReadCloser, error) { return nil, io.ErrClosedPipe }
	_, err := d.GetLocation(context.Background())
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestDeviceSensorProvider_Stream(t *testing.T) {
	d := newTestSensor(strings.Join([]string{ggaFix, rmcVoid, rmcFix}, "\n"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := d.Stream(ctx)
	require.NoError(t, err)

	var got []Location
	timeout := time.After(time.Second)
	for done := false; !done; {
		select {
		case loc, ok := <-ch:
			if !ok {
				done = true
				continue
			}
			got = append(got, loc)
		case <-timeout:
			t.Fatal("stream did not close")
		}
	}
	require.Len(t, got, 2)
	assert.InDelta(t, 37.391098, got[0].Latitude, 1e-5)
	assert.InDelta(t, 51.563667, got[1].Latitude, 1e-5)
	assert.NoError(t, d.Close())
}
