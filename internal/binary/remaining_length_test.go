package binary

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRemainingLengthRoundTrip(t *testing.T) {
	cases := []int{0, 1, 127, 128, 16383, 16384, 2097151, 2097152, MaxRemainingLength}
	for _, n := range cases {
		buf := &bytes.Buffer{}
		err := WriteRemainingLength(buf, n)
		assert.NoError(t, err)
		assert.Equal(t, RemainingLengthSize(n), buf.Len())

		got, err := ReadRemainingLength(bytes.NewReader(buf.Bytes()))
		assert.NoError(t, err)
		assert.Equal(t, n, got)
	}
}

func TestWriteRemainingLengthOverflow(t *testing.T) {
	buf := &bytes.Buffer{}
	err := WriteRemainingLength(buf, MaxRemainingLength+1)
	assert.Error(t, err)
}

func TestReadRemainingLengthMalformed(t *testing.T) {
	// four bytes, all with the continuation bit set: never terminates.
	_, err := ReadRemainingLength(bytes.NewReader([]byte{0x80, 0x80, 0x80, 0x80}))
	assert.Error(t, err)
}

func TestValidUTF8(t *testing.T) {
	assert.True(t, ValidUTF8("sport/tennis"))
	assert.False(t, ValidUTF8("bad\x00null"))
	assert.False(t, ValidUTF8(string([]byte{0xed, 0xa0, 0x80}))) // encoded surrogate half, invalid UTF-8
}
