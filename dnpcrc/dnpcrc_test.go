package dnpcrc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChecksumCheckValue(t *testing.T) {
	// CRC-16/DNP reference check value for the ASCII string "123456789".
	assert.EqualValues(t, 0xEA82, Checksum([]byte("123456789")))
}

func TestUpdateMatchesChecksum(t *testing.T) {
	data := []byte{0x05, 0x64, 0x05, 0xC9, 0x01, 0x00, 0x00, 0x04}

	var c CRC16
	for _, b := range data {
		c.Update(b)
	}
	assert.EqualValues(t, Checksum(data), c.Final())
}

func TestVerifyRoundTrip(t *testing.T) {
	body := []byte{0x05, 0x64, 0x05, 0xC9, 0x01, 0x00, 0x00, 0x04}
	framed := AppendChecksum(append([]byte{}, body...))
	assert.True(t, Verify(framed))

	framed[0] ^= 0xFF
	assert.False(t, Verify(framed))
}
