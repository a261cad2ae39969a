package npz

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spyroot/benchctl/pkg/api"
)

func series(name string, values ...int64) api.SampleSeries {
	return api.SampleSeries{Name: name, Values: values}
}

func TestValidatePassesWhenAllRequiredPresentAndEqualLength(t *testing.T) {
	s := []api.SampleSeries{
		series("pkts_tx", 1, 2, 3),
		series("port_opackets", 1, 2, 3),
		series("port_obytes", 10, 20, 30),
	}
	assert.NoError(t, Validate(s, RequiredTXSeries))
}

func TestValidateFailsOnMissingSeries(t *testing.T) {
	s := []api.SampleSeries{series("pkts_tx", 1, 2, 3)}
	err := Validate(s, RequiredTXSeries)
	assert.ErrorIs(t, err, api.ErrMissingSeries)
}

func TestValidateFailsOnEmptySeries(t *testing.T) {
	s := []api.SampleSeries{
		series("pkts_tx"),
		series("port_opackets", 1),
		series("port_obytes", 1),
	}
	err := Validate(s, RequiredTXSeries)
	assert.ErrorIs(t, err, api.ErrMissingSeries)
}

func TestValidateFailsOnLengthMismatch(t *testing.T) {
	s := []api.SampleSeries{
		series("pkts_tx", 1, 2, 3),
		series("port_opackets", 1, 2),
		series("port_obytes", 1, 2, 3),
	}
	assert.Error(t, Validate(s, RequiredTXSeries))
}

func TestPadZeroFillsShorterSeriesAtTail(t *testing.T) {
	s := []api.SampleSeries{
		series("a", 1, 2, 3),
		series("b", 1),
	}
	padded := Pad(s)
	assert.Len(t, padded[0].Values, 3)
	assert.Len(t, padded[1].Values, 3)
	assert.Equal(t, []int64{1, 0, 0}, padded[1].Values)
}

func TestPadLeavesEqualLengthSeriesUntouched(t *testing.T) {
	s := []api.SampleSeries{
		series("a", 1, 2),
		series("b", 3, 4),
	}
	padded := Pad(s)
	assert.Equal(t, []int64{1, 2}, padded[0].Values)
	assert.Equal(t, []int64{3, 4}, padded[1].Values)
}
