package cmd

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestBarcodeCommand(t *testing.T) {
	resetConfig(t)
	t.Cleanup(
		func() {
			showCodes = false
		},
	)

	output, err := executeCommand(t, "barcode", "ABC")
	require.NoError(t, err)
	assert.Equal(t, "ÌABC!Î\n", output)

	output, err = executeCommand(t, "barcode", "--codes", "ABC")
	require.NoError(t, err)
	assert.Equal(
		t,
		"ÌABC!Î\ncodes: 104 33 34 35 1 106\nchecksum: 1\n",
		output,
	)
}

func TestBarcodeCommandInvalid(t *testing.T) {
	resetConfig(t)

	_, err := executeCommand(t, "barcode", "café")
	assert.Error(t, err)

	_, err = executeCommand(t, "barcode")
	assert.Error(t, err)
}
