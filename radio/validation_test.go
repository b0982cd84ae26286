package radio

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtl-ml/synth"
)

func TestValidateBurstDetection(t *testing.T) {
	t.Parallel()

	samples := make([]complex128, 1000)
	for i := range samples {
		samples[i] = 1
	}
	samples[500] = 100

	record := Validate("ADS_B", mustBuffer(t, samples, 2e6))
	assert.Equal(t, CheckBurst, record.Check)
	assert.True(t, record.Flags["has_bursts"])
	assert.Greater(t, record.Metrics["burst_ratio"], 10.0)
	assert.NotEmpty(t, record.Note)

	flat := make([]complex128, 1000)
	for i := range flat {
		flat[i] = 1
	}
	record = Validate("ADS_B", mustBuffer(t, flat, 2e6))
	assert.False(t, record.Flags["has_bursts"])
}

func TestValidateSporadicUsesLowerThreshold(t *testing.T) {
	t.Parallel()

	samples := make([]complex128, 10000)
	for i := range samples {
		samples[i] = 1
	}
	samples[42] = complex(math.Sqrt(7), 0)
	buf := mustBuffer(t, samples, 1e6)

	activity := Validate("ISM_sensors", buf)
	assert.Equal(t, CheckSporadic, activity.Check)
	assert.True(t, activity.Flags["has_activity"])

	bursts := Validate("ADS_B", buf)
	assert.False(t, bursts.Flags["has_bursts"])
}

func TestValidateSyncTones(t *testing.T) {
	t.Parallel()

	const rate = 48000.0
	record := Validate("NOAA_APT", mustBuffer(t, synth.APT(4800, rate, 0.05, 5), rate))
	assert.Equal(t, CheckSyncTone, record.Check)
	assert.True(t, record.Flags["sync_tone_present"])
	assert.Greater(t, record.Metrics["power_2080"], 0.0)

	record = Validate("NOAA_APT", mustBuffer(t, synth.Noise(4800, 0.1, 5), rate))
	assert.False(t, record.Flags["sync_tone_present"])
}

func TestValidateWideband(t *testing.T) {
	t.Parallel()

	const rate = 1.024e6
	record := Validate("FM_broadcast", mustBuffer(t, synth.Noise(8192, 0.1, 9), rate))
	assert.Equal(t, CheckWideband, record.Check)
	assert.True(t, record.Flags["is_wideband"])
	assert.Greater(t, record.Metrics["bandwidth_hz"], 50e3)

	record = Validate("FM_broadcast", mustBuffer(t, synth.Tone(8192, rate, 10e3, 1, 0, 9), rate))
	assert.False(t, record.Flags["is_wideband"])
	assert.InDelta(t, rate/8192, record.Metrics["bandwidth_hz"], 1e-9)
}

func TestValidateFallsBackToSNR(t *testing.T) {
	t.Parallel()

	record := Validate("pager", mustBuffer(t, make([]complex128, 64), 1e6))
	assert.Equal(t, CheckSNR, record.Check)
	assert.Empty(t, record.Flags)
	snr := record.Metrics["snr_db"]
	assert.False(t, math.IsNaN(snr) || math.IsInf(snr, 0))
	assert.InDelta(t, 0.0, snr, 1e-9)
	assert.True(t, record.Passed())
}

func TestValidateWithUnknownCheck(t *testing.T) {
	t.Parallel()

	_, err := ValidateWith("morse", mustBuffer(t, make([]complex128, 8), 1e6))
	assert.ErrorIs(t, err, ErrUnknownCheck)
}

func TestValidationRecordFlattensToJSON(t *testing.T) {
	t.Parallel()

	record := ValidationRecord{
		Check:   CheckBurst,
		Metrics: map[string]float64{"burst_ratio": 42},
		Flags:   map[string]bool{"has_bursts": true},
		Note:    "pulses",
	}
	data, err := json.Marshal(ValidationReport{"ADS_B": record})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ADS_B":{"check":"burst","burst_ratio":42,"has_bursts":true,"note":"pulses"}}`, string(data))

	var decoded ValidationReport
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, record, decoded["ADS_B"])
	assert.Equal(t, []string{"ADS_B"}, decoded.Labels())
}

func TestValidateEmptyBufferDoesNotPass(t *testing.T) {
	t.Parallel()

	record := Validate("ADS_B", Buffer{SampleRate: 1e6})
	assert.False(t, record.Passed())
	assert.Empty(t, record.Check)
	assert.Contains(t, record.Note, "empty buffer")

	assert.False(t, ValidationRecord{}.Passed())
	assert.True(t, ValidationRecord{Check: CheckSNR}.Passed())
}
