package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spyroot/benchctl/pkg/api"
)

func TestDefaultCounterParserBuildsOrderedPerKeySeries(t *testing.T) {
	data := []byte(
		"2026-01-01T00:00:00Z,pkts_tx=100,port_opackets=90\n" +
			"2026-01-01T00:00:05Z,pkts_tx=200,port_opackets=180\n",
	)

	series, err := DefaultCounterParser{}.Parse(data)
	assert.NoError(t, err)
	assert.Len(t, series, 2)

	assert.Equal(t, "pkts_tx", series[0].Name)
	assert.Equal(t, []int64{100, 200}, series[0].Values)
	assert.Equal(t, api.FamilyRateCounter, series[0].Family)

	assert.Equal(t, "port_opackets", series[1].Name)
	assert.Equal(t, []int64{90, 180}, series[1].Values)
}

func TestDefaultCounterParserSkipsBlankAndMalformedLines(t *testing.T) {
	data := []byte("\n2026-01-01T00:00:00Z\n2026-01-01T00:00:05Z,pkts_tx=100,bad_field\n")
	series, err := DefaultCounterParser{}.Parse(data)
	assert.NoError(t, err)
	assert.Len(t, series, 1)
	assert.Equal(t, []int64{100}, series[0].Values)
}

func TestDefaultCounterParserIgnoresNonIntegerValues(t *testing.T) {
	data := []byte("2026-01-01T00:00:00Z,pkts_tx=notanumber,port_opackets=5\n")
	series, err := DefaultCounterParser{}.Parse(data)
	assert.NoError(t, err)
	assert.Len(t, series, 1)
	assert.Equal(t, "port_opackets", series[0].Name)
}
