package forecast

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResampleAveragesOverlap(t *testing.T) {
	s := Series{Begin: 0, SlotLength: 600, Values: []float64{1000, 2000, 3000}}
	got, err := s.Resample(0, 900, 2)
	require.NoError(t, err)
	// slot 0: 600s at 1000 W + 300s at 2000 W; slot 1: 300s at 2000 W + 600s at 3000 W
	assert.InDelta(t, (600*1000.0+300*2000)/900, got[0], 1e-9)
	assert.InDelta(t, (300*2000.0+600*3000)/900, got[1], 1e-9)
}

func TestResampleOutsideCoverageIsZero(t *testing.T) {
	s := Series{Begin: 900, SlotLength: 900, Values: []float64{500}}
	got, err := s.Resample(0, 900, 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 500, 0}, got)

	_, err = s.Resample(0, 0, 1)
	assert.Error(t, err)
}

func TestEnergyWh(t *testing.T) {
	got := EnergyWh([]float64{1000, -400}, 900)
	assert.Equal(t, []float64{250, -100}, got)
	assert.Equal(t, []float64{3, 5}, Sum([]float64{1, 2}, []float64{2, 3}, []float64{9}))
}

func TestStaticForecaster(t *testing.T) {
	var profile [24]float64
	for h := range profile {
		profile[h] = float64(h * 100)
	}
	f := Static{Profiles: map[Kind][24]float64{SolarPower: profile}, Location: time.UTC}
	assert.True(t, f.CanForecast(SolarPower))
	assert.False(t, f.CanForecast(ElectricityDemand))

	from := time.Date(2026, 6, 1, 10, 30, 0, 0, time.UTC).Unix()
	s, err := f.Forecast(context.Background(), from, from+2*3600, SolarPower, "")
	require.NoError(t, err)
	assert.Equal(t, []float64{1000, 1100, 1200}, s.Values)
	_, err = f.Forecast(context.Background(), from, from+1, ElectricityDemand, "")
	assert.Error(t, err)
}

func TestMockForecaster(t *testing.T) {
	m := Mock{Values: map[Kind]float64{ElectricityDemand: 400}}
	s, err := m.Forecast(context.Background(), 0, 900, ElectricityDemand, "house")
	require.NoError(t, err)
	got, err := s.Resample(0, 900, 1)
	require.NoError(t, err)
	assert.InDelta(t, 400, got[0], 1e-9)
}
