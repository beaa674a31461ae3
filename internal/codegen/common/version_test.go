package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetVersion(t *testing.T) {
	orig := Version
	t.Cleanup(func() { Version = orig })

	Version = ""
	v, err := GetVersion()
	require.NoError(t, err)
	assert.Equal(t, "0.0.1-dev", v)

	Version = "v1.4.2-rc1"
	v, err = GetVersion()
	require.NoError(t, err)
	assert.Equal(t, "1.4.2-rc1", v)

	Version = "nightly"
	_, err = GetVersion()
	assert.Error(t, err)
}

func TestCrateVersion(t *testing.T) {
	assert.Equal(t, "2.0.0", CrateVersion("2.0"))
	assert.Equal(t, "4.0.0", CrateVersion("4"))
	assert.Equal(t, "1.2.3", CrateVersion("1.2.3.4"))
}
