package ops

import (
	"testing"
	"time"

	"main/internal/model"
	"main/internal/model/enum"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullConfig = `{
	"universe": {
		"autoDiscover": false,
		"instruments": [
			{"code": "005930", "market": "kospi"},
			{"code": "086520", "market": "kosdaq"}
		]
	},
	"strategy": {
		"capitalKrw": 10000000,
		"capitalFractionBps": 1000,
		"nearHighBps": 300,
		"minVolumeRateBps": 20000,
		"quoteTtlMs": 3000,
		"volumeWindowSec": 60
	},
	"risk": {
		"killSwitch": false,
		"maxInstrumentNotional": 2000000,
		"maxPortfolioNotional": 8000000,
		"stopLossBps": 500,
		"takeProfitBps": 1000
	},
	"executor": {
		"workers": 2,
		"queueCap": 64,
		"ordersPerSec": 5,
		"burst": 2,
		"maxRetries": 3,
		"retryBaseMs": 1000,
		"retryCeilingMs": 10000,
		"submitTimeoutMs": 10000,
		"drainTimeoutMs": 5000
	},
	"pipeline": {
		"lanes": 8,
		"laneDepth": 1024,
		"releaseCooldownSec": 180
	},
	"feed": {"url": "wss://example.test/websocket", "token": "feed-token"},
	"broker": {
		"url": "https://example.test",
		"ackUrl": "wss://example.test/websocket",
		"token": "broker-token",
		"accountNo": "12345678",
		"timeoutMs": 10000,
		"breakerFailures": 5,
		"breakerCooldownSec": 30
	},
	"journal": {"enabled": true, "dsn": "postgres://vimon@localhost/vimon"},
	"profile": {"enabled": false}
}`

func TestParseFullConfig(t *testing.T) {
	loaded, err := Parse([]byte(fullConfig))
	require.NoError(t, err)

	require.Len(t, loaded.Universe, 2)
	assert.Equal(t, model.Instrument("005930"), loaded.Universe[0].Instrument)
	assert.Equal(t, enum.MarketKospi, loaded.Universe[0].Market)
	assert.Equal(t, enum.MarketKosdaq, loaded.Universe[1].Market)

	assert.Equal(t, model.Notional(10_000_000), loaded.Strategy.Capital)
	assert.Equal(t, int64(20_000), loaded.Strategy.MinVolumeRateBps)
	assert.Equal(t, 3*time.Second, loaded.Strategy.QuoteTTL)
	assert.Equal(t, time.Minute, loaded.VolumeWindow)

	assert.Equal(t, model.Notional(2_000_000), loaded.Risk.MaxInstrumentNotional)
	assert.Equal(t, int64(500), loaded.Risk.StopLossBps)

	assert.Equal(t, 3, loaded.Executor.MaxRetries)
	assert.Equal(t, time.Second, loaded.Executor.RetryBase)
	assert.Equal(t, 10*time.Second, loaded.Executor.SubmitTimeout)

	assert.Equal(t, 3*time.Minute, loaded.Pipeline.ReleaseCooldown)
	assert.True(t, loaded.Journal.Enabled)
}

func TestParseRejectsEmptyUniverse(t *testing.T) {
	_, err := Parse([]byte(`{
		"universe": {"autoDiscover": false, "instruments": []},
		"strategy": {"capitalKrw": 1000, "capitalFractionBps": 100}
	}`))
	assert.Error(t, err)
}

func TestParseAllowsAutoDiscoverWithoutInstruments(t *testing.T) {
	loaded, err := Parse([]byte(`{
		"universe": {"autoDiscover": true},
		"strategy": {"capitalKrw": 1000, "capitalFractionBps": 100}
	}`))
	require.NoError(t, err)
	assert.True(t, loaded.AutoDiscover)
	assert.Empty(t, loaded.Universe)
}

func TestParseValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"unknown market", `{
			"universe": {"instruments": [{"code": "005930", "market": "nyse"}]},
			"strategy": {"capitalKrw": 1000, "capitalFractionBps": 100}
		}`},
		{"zero capital", `{
			"universe": {"autoDiscover": true},
			"strategy": {"capitalKrw": 0, "capitalFractionBps": 100}
		}`},
		{"fraction above whole", `{
			"universe": {"autoDiscover": true},
			"strategy": {"capitalKrw": 1000, "capitalFractionBps": 10001}
		}`},
		{"negative cap", `{
			"universe": {"autoDiscover": true},
			"strategy": {"capitalKrw": 1000, "capitalFractionBps": 100},
			"risk": {"maxInstrumentNotional": -1}
		}`},
		{"stop loss out of range", `{
			"universe": {"autoDiscover": true},
			"strategy": {"capitalKrw": 1000, "capitalFractionBps": 100},
			"risk": {"stopLossBps": 10000}
		}`},
		{"not json", `{`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.body))
			assert.Error(t, err)
		})
	}
}
