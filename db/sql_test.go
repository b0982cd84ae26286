package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtl-ml/models"
	"rtl-ml/radio"
)

func newTestClient(t *testing.T) *SQLClient {
	t.Helper()
	client, err := NewSQLClient(DriverSQLite, filepath.Join(t.TempDir(), "db", "rtl_ml.sqlite3"))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestSQLClientDetections(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	conf := 0.8
	older := models.Detection{
		Timestamp:  time.Unix(100, 0),
		Target:     "ADS_B",
		Frequency:  1090e6,
		Label:      "ADS_B",
		Family:     radio.FamilyKNN,
		Confidence: &conf,
		Features:   map[string]float64{"power_mean": 0.5},
		Validation: &radio.ValidationRecord{
			Check:   radio.CheckBurst,
			Metrics: map[string]float64{"burst_ratio": 12},
			Flags:   map[string]bool{"has_bursts": true},
		},
		Predictions: []radio.ClassProbability{{Label: "ADS_B", Probability: 0.8}},
	}
	newer := models.Detection{
		Timestamp: time.Unix(200, 0),
		Target:    "FM",
		Frequency: 98.7e6,
		Label:     "FM_broadcast",
		Family:    radio.FamilySVM,
	}
	require.NoError(t, client.Save(ctx, older))
	require.NoError(t, client.Save(ctx, newer))

	got, err := client.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "FM_broadcast", got[0].Label)
	assert.Nil(t, got[0].Confidence)
	assert.Nil(t, got[0].Validation)
	assert.NotEmpty(t, got[0].ID)

	assert.Equal(t, "ADS_B", got[1].Label)
	require.NotNil(t, got[1].Confidence)
	assert.InDelta(t, 0.8, *got[1].Confidence, 1e-12)
	assert.Equal(t, older.Features, got[1].Features)
	require.NotNil(t, got[1].Validation)
	assert.True(t, got[1].Validation.Flags["has_bursts"])
	assert.Equal(t, older.Predictions, got[1].Predictions)
	assert.True(t, got[1].Timestamp.Equal(older.Timestamp))
}

func TestSQLClientReportReplaces(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	first := radio.ValidationReport{
		"ADS_B": {Check: radio.CheckBurst, Flags: map[string]bool{"has_bursts": false}},
		"noise": {Check: radio.CheckSNR, Metrics: map[string]float64{"snr_db": 1.5}},
	}
	require.NoError(t, client.SaveReport(ctx, first))
	require.NoError(t, client.SaveReport(ctx, radio.ValidationReport{
		"ADS_B": {Check: radio.CheckBurst, Flags: map[string]bool{"has_bursts": true}},
	}))

	report, err := client.LoadReport(ctx)
	require.NoError(t, err)
	require.Len(t, report, 2)
	assert.True(t, report["ADS_B"].Flags["has_bursts"])
	assert.InDelta(t, 1.5, report["noise"].Metrics["snr_db"], 1e-12)
}

func TestNewSQLClientRejectsUnknownDriver(t *testing.T) {
	_, err := NewSQLClient("postgres", "whatever")
	assert.Error(t, err)
}

func TestMySQLDSN(t *testing.T) {
	dsn := MySQLDSN("radio", "secret", "127.0.0.1:3306", "rtl_ml")
	assert.Contains(t, dsn, "radio:secret@tcp(127.0.0.1:3306)/rtl_ml")
}
