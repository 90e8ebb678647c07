package zips

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticSourceSortsAndGroups(t *testing.T) {
	src, err := NewStaticSource("CA,90003\nAZ,85001\nCA,90001\nAZ,85002\n")
	require.NoError(t, err)

	az, err := src.ZipsForState("az")
	require.NoError(t, err)
	assert.Equal(t, []string{"85001", "85002"}, az)

	ca, err := src.ZipsForState("CA")
	require.NoError(t, err)
	assert.Equal(t, []string{"90001", "90003"}, ca)
}

func TestStaticSourceUnknownState(t *testing.T) {
	src, err := NewStaticSource("AZ,85001\n")
	require.NoError(t, err)
	_, err = src.ZipsForState("ZZ")
	assert.Error(t, err)
}

func TestSampleCSVLoads(t *testing.T) {
	src, err := NewStaticSource(SampleCSV)
	require.NoError(t, err)
	zips, err := src.ZipsForState("AZ")
	require.NoError(t, err)
	assert.NotEmpty(t, zips)
}
