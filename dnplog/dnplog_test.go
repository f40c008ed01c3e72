package dnplog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingProvider struct {
	criticalCount, errorCount, warnCount, debugCount int
}

func (p *recordingProvider) Critical(format string, v ...interface{}) { p.criticalCount++ }
func (p *recordingProvider) Error(format string, v ...interface{})    { p.errorCount++ }
func (p *recordingProvider) Warn(format string, v ...interface{})     { p.warnCount++ }
func (p *recordingProvider) Debug(format string, v ...interface{})    { p.debugCount++ }

func TestDisabledLoggerDropsMessagesUntilLogModeEnabled(t *testing.T) {
	rec := &recordingProvider{}
	log := NewDisabled()
	log.SetProvider(rec)

	log.Warn("ignored %d", 1)
	log.Error("ignored %d", 2)
	assert.Equal(t, 0, rec.warnCount)
	assert.Equal(t, 0, rec.errorCount)

	log.LogMode(true)
	log.Warn("seen %d", 1)
	log.Critical("seen %d", 2)
	log.Debug("seen %d", 3)
	assert.Equal(t, 1, rec.warnCount)
	assert.Equal(t, 1, rec.criticalCount)
	assert.Equal(t, 1, rec.debugCount)

	log.LogMode(false)
	log.Error("ignored again")
	assert.Equal(t, 0, rec.errorCount)
}

func TestSetProviderIgnoresNil(t *testing.T) {
	rec := &recordingProvider{}
	log := NewDisabled()
	log.SetProvider(rec)
	log.SetProvider(nil)
	log.LogMode(true)

	log.Error("still routed to rec")
	assert.Equal(t, 1, rec.errorCount)
}
