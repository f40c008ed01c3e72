package serial

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfigFillsDnp3Defaults(t *testing.T) {
	c := DefaultConfig("/dev/ttyUSB0")
	assert.Equal(t, "/dev/ttyUSB0", c.Device)
	assert.Equal(t, Baud9600, c.Baud)
	assert.Equal(t, 8, c.DataBits)
	assert.Equal(t, ParityNone, c.Parity)
	assert.Equal(t, StopBitsOne, c.StopBits)
	assert.Greater(t, c.IdleTimeout, time.Duration(0))
}

func TestApplyDefaultsPreservesExplicitBaud(t *testing.T) {
	c := Config{Baud: Baud115200}
	c.applyDefaults()
	assert.Equal(t, Baud115200, c.Baud)
	assert.Less(t, c.IdleTimeout, DefaultConfig("").IdleTimeout)
}

func TestCharTimeoutScalesInverselyWithBaud(t *testing.T) {
	slow := charTimeout(Baud1200)
	fast := charTimeout(Baud115200)
	assert.Greater(t, slow, fast)
}
