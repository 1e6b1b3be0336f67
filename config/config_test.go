package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ReportInterval(t *testing.T) {
	t.Setenv("TRADING_MODE", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, cfg.Trading.ReportInterval)

	t.Setenv("REPORT_INTERVAL", "5m")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.Trading.ReportInterval)
}
