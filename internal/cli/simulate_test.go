package cli

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commodity-price-alerts/internal/app"
	"commodity-price-alerts/internal/config"
)

func TestSimulateReportsMissingInput(t *testing.T) {
	appHandle = app.NewApp(&config.Config{}, zerolog.Nop())
	t.Cleanup(func() {
		appHandle = nil
		simulateOpts = app.SimulateOptions{}
	})

	out := &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)

	rootCmd.SetArgs([]string{"simulate", "--target", "18"})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Equal(t, "--instrument and --target are required", err.Error())

	rootCmd.SetArgs([]string{"simulate", "--instrument", "onion", "--target", "18"})
	err = rootCmd.Execute()
	require.Error(t, err)
	assert.Equal(t, "at least one price is required", err.Error())
}
