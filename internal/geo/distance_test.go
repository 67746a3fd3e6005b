package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"fieldroute/internal/model"
)

func TestHaversineKm(t *testing.T) {
	tests := []struct {
		name             string
		lat1, lon1       float64
		lat2, lon2       float64
		wantKm           float64
		tolerancePercent float64
	}{
		{
			name: "Manhattan to Brooklyn",
			lat1: 40.7128, lon1: -74.0060,
			lat2: 40.6782, lon2: -73.9442,
			wantKm:           6.4,
			tolerancePercent: 3,
		},
		{
			name: "London to Paris",
			lat1: 51.5074, lon1: -0.1278,
			lat2: 48.8566, lon2: 2.3522,
			wantKm:           343.5,
			tolerancePercent: 1,
		},
		{
			name: "Same point",
			lat1: 40.7128, lon1: -74.0060,
			lat2: 40.7128, lon2: -74.0060,
			wantKm: 0,
		},
		{
			name: "One degree of latitude",
			lat1: 0, lon1: 0,
			lat2: 1, lon2: 0,
			wantKm:           111.19,
			tolerancePercent: 0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HaversineKm(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if tt.wantKm == 0 {
				require.Zero(t, got)
				return
			}
			diff := math.Abs(got-tt.wantKm) / tt.wantKm * 100
			require.LessOrEqualf(t, diff, tt.tolerancePercent, "got %.3f km, want %.3f km", got, tt.wantKm)
		})
	}
}

func TestDistanceSymmetric(t *testing.T) {
	pts := []model.Coordinate{
		{Lat: 40.7128, Lng: -74.0060},
		{Lat: 34.0522, Lng: -118.2437},
		{Lat: -33.8688, Lng: 151.2093},
		{Lat: 0, Lng: 0},
	}
	for _, a := range pts {
		require.Zero(t, Distance(a, a))
		for _, b := range pts {
			require.InDelta(t, Distance(a, b), Distance(b, a), 1e-9)
		}
	}
}

func TestDistanceAntipodalFinite(t *testing.T) {
	d := Distance(model.Coordinate{Lat: 0, Lng: 0}, model.Coordinate{Lat: 0, Lng: 180})
	require.False(t, math.IsNaN(d))
	require.InDelta(t, math.Pi*earthRadiusKm, d, 1e-6)

	d = Distance(model.Coordinate{Lat: 90, Lng: 0}, model.Coordinate{Lat: -90, Lng: 0})
	require.False(t, math.IsNaN(d))
	require.False(t, math.IsInf(d, 0))
}

func TestPathKmAndDriveMinutes(t *testing.T) {
	require.Zero(t, PathKm(nil))
	one := []model.Location{{Coordinate: model.Coordinate{Lat: 1, Lng: 1}}}
	require.Zero(t, PathKm(one))

	stops := []model.Location{
		{Coordinate: model.Coordinate{Lat: 0, Lng: 0}},
		{Coordinate: model.Coordinate{Lat: 1, Lng: 0}},
		{Coordinate: model.Coordinate{Lat: 2, Lng: 0}},
	}
	leg := HaversineKm(0, 0, 1, 0)
	require.InDelta(t, 2*leg, PathKm(stops), 1e-9)

	require.InDelta(t, 60.0, DriveMinutes(50, 50), 1e-9)
	require.Zero(t, DriveMinutes(10, 0))
}
