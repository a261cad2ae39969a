package cluster

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCPUListExpandsRangesAndDedupes(t *testing.T) {
	got, err := parseCPUList("0-3,8,2")
	assert.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 8}, got)
}

func TestParseCPUListRejectsMalformedRange(t *testing.T) {
	_, err := parseCPUList("0-x")
	assert.Error(t, err)
}

func TestExitCodeFromErrReturnsOneWhenErrorHasNoExitStatus(t *testing.T) {
	assert.Equal(t, 0, exitCodeFromErr(nil))
	assert.Equal(t, 1, exitCodeFromErr(errors.New("boom")))
}

type exitStatusErr struct{ code int }

func (e exitStatusErr) Error() string  { return "exit" }
func (e exitStatusErr) ExitStatus() int { return e.code }

func TestExitCodeFromErrReadsExitStatusInterface(t *testing.T) {
	assert.Equal(t, 17, exitCodeFromErr(exitStatusErr{code: 17}))
}
