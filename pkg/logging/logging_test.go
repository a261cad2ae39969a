package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestLAndSReturnNonNilProcessWideLoggers(t *testing.T) {
	assert.NotNil(t, L())
	assert.NotNil(t, S())
}

func TestSetLevelAdjustsSharedAtomicLevel(t *testing.T) {
	SetLevel(zapcore.DebugLevel)
	assert.Equal(t, zapcore.DebugLevel, level.Level())

	SetLevel(zapcore.InfoLevel)
	assert.Equal(t, zapcore.InfoLevel, level.Level())
}
