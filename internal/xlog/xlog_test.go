package xlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggerModuleReturnsUsableLogger(t *testing.T) {
	Init(Options{Console: true, Level: LevelInfo})
	log := LoggerModule("test")
	assert.NotNil(t, log)
	// zap.Logger has no direct field inspector; the meaningful assertion
	// here is that Init/LoggerModule don't panic across repeated calls.
	log.Info("hello")
}

func TestLevelOffProducesNopLogger(t *testing.T) {
	Init(Options{Console: true, Level: LevelOff})
	log := LoggerModule("test")
	assert.NotNil(t, log)
	log.Error("should be discarded")
}

func TestTraceLevelMapsToDebug(t *testing.T) {
	Init(Options{Console: true, Level: LevelTrace})
	assert.Equal(t, -1, int(LevelTrace.zapLevel()))
}
