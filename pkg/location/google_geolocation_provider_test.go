package location

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"googlemaps.github.io/maps"
)

type fakeGeolocator struct {
	req  *maps.GeolocationRequest
	resp *maps.GeolocationResult
	err  error
}

func (f *fakeGeolocator) Geolocate(ctx context.Context, r *maps.GeolocationRequest) (*maps.GeolocationResult, error) {
	f.req = r
	return f.resp, f.err
}

func TestGoogleGeolocationProvider_UsesScans(t *testing.T) {
	geo := &fakeGeolocator{resp: &maps.GeolocationResult{
		Location: maps.LatLng{Lat: 6.5244, Lng: 3.3792},
		Accuracy: 35,
	}}
	p := newGoogleGeolocationProvider(geo, 2, zerolog.Nop())
	p.scanWiFi = func(ctx context.Context) ([]maps.WiFiAccessPoint, error) {
		return []maps.WiFiAccessPoint{{MACAddress: "00:14:22:01:23:45", SignalStrength: 70}}, nil
	}
	var modem int
	p.scanCells = func(ctx context.Context, modemIndex int) ([]maps.CellTower, error) {
		modem = modemIndex
		return []maps.CellTower{{MobileCountryCode: 621, MobileNetworkCode: 20}}, nil
	}

	loc, err := p.GetLocation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Location{Latitude: 6.5244, Longitude: 3.3792, Accuracy: 35}, loc)
	assert.Equal(t, 2, modem)
	assert.True(t, geo.req.ConsiderIP)
	assert.Len(t, geo.req.WiFiAccessPoints, 1)
	assert.Len(t, geo.req.CellTowers, 1)
	assert.NoError(t, p.Close())
}

func TestGoogleGeolocationProvider_ScanFailuresFallBackToIP(t *testing.T) {
	geo := &fakeGeolocator{resp: &maps.GeolocationResult{Location: maps.LatLng{Lat: 1, Lng: 2}}}
	p := newGoogleGeolocationProvider(geo, 0, zerolog.Nop())
	p.scanWiFi = func(ctx context.Context) ([]maps.WiFiAccessPoint, error) {
		return nil, errors.New("nmcli not found")
	}
	p.scanCells = func(ctx context.Context, modemIndex int) ([]maps.CellTower, error) {
		return nil, errors.New("mmcli not found")
	}

	loc, err := p.GetLocation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.0, loc.Latitude)
	assert.True(t, geo.req.ConsiderIP)
	assert.Empty(t, geo.req.WiFiAccessPoints)
	assert.Empty(t, geo.req.CellTowers)
}

func TestGoogleGeolocationProvider_APIError(t *testing.T) {
	geo := &fakeGeolocator{err: errors.New("REQUEST_DENIED")}
	p := newGoogleGeolocationProvider(geo, 0, zerolog.Nop())
	p.scanWiFi = func(ctx context.Context) ([]maps.WiFiAccessPoint, error) { return nil, nil }
	p.scanCells = func(ctx context.Context, modemIndex int) ([]maps.CellTower, error) { return nil, nil }

	_, err := p.GetLocation(context.Background())
	assert.EqualError(t, err, "REQUEST_DENIED")
}

func TestSplitNmcliLine(t *testing.T) {
	mac, signal, ok := splitNmcliLine(`AA\:BB\:CC\:DD\:EE\:FF:72`)
	require.True(t, ok)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", mac)
	assert.Equal(t, "72", signal)
	assert.True(t, isValidMAC(mac))

	_, _, ok = splitNmcliLine("garbage")
	assert.False(t, ok)
}

func TestIsValidMAC(t *testing.T) {
	assert.True(t, isValidMAC("00:14:22:01:23:45"))
	assert.True(t, isValidMAC("ff:ff:ff:ff:ff:ff"))
	assert.False(t, isValidMAC("00:14:22:01:23"))
	assert.False(t, isValidMAC("00:14:22:01:23:4G"))
	assert.False(t, isValidMAC("0:14:22:01:23:45"))
}

func TestParseNmcliOutput(t *testing.T) {
	out := "AA\\:BB\\:CC\\:DD\\:EE\\:FF:72\nnot-a-row\n11\\:22\\:33\\:44\\:55\\:66:weak\n00\\:14\\:22\\:01\\:23\\:45:40\n"
	aps, err := parseNmcliOutput(out)
	require.NoError(t, err)
	require.Len(t, aps, 2)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", aps[0].MACAddress)
	assert.Equal(t, 72.0, aps[0].SignalStrength)
	assert.Equal(t, "00:14:22:01:23:45", aps[1].MACAddress)
}

func TestParseMmcliOutput(t *testing.T) {
	out := "modem.3gpp.mcc : 621\nmodem.3gpp.mnc : 20\nmodem.3gpp.lac : 1A2B\nmodem.3gpp.cid : FF\nmodem.generic.state : connected\n"
	cells, err := parseMmcliOutput(out)
	require.NoError(t, err)
	require.Len(t, cells, 1)
	assert.Equal(t, 621, cells[0].MobileCountryCode)
	assert.Equal(t, 20, cells[0].MobileNetworkCode)
	assert.Equal(t, 0x1A2B, cells[0].LocationAreaCode)
	assert.Equal(t, 0xFF, cells[0].CellID)

	_, err = parseMmcliOutput("modem.3gpp.mcc : 621\n")
	assert.ErrorIs(t, err, errIncompleteCell)
}
