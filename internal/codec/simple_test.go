package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringCodec(t *testing.T) {
	buf, err := Text.EncodeMessage(String("hello"))
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), buf)

	v, err := Text.DecodeMessage(buf)
	require.NoError(t, err)
	assert.True(t, String("hello").Equal(v))

	buf, err = Text.EncodeMessage(Null())
	require.NoError(t, err)
	assert.Empty(t, buf)

	v, err = Text.DecodeMessage(nil)
	require.NoError(t, err)
	assert.True(t, v.IsNull())

	_, err = Text.EncodeMessage(Int(1))
	assert.ErrorIs(t, err, ErrUnsupportedValue)

	_, err = Text.DecodeMessage([]byte{0xff})
	assert.ErrorIs(t, err, ErrDecode)
}

func TestBinaryCodec(t *testing.T) {
	raw := []byte{0, 1, 2}
	buf, err := Bytes.EncodeMessage(Binary(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, buf)

	v, err := Bytes.DecodeMessage(buf)
	require.NoError(t, err)
	assert.True(t, Binary(raw).Equal(v))

	v, err = Bytes.DecodeMessage(nil)
	require.NoError(t, err)
	assert.True(t, v.IsNull())

	_, err = Bytes.EncodeMessage(String("x"))
	assert.ErrorIs(t, err, ErrUnsupportedValue)
}

func TestLookupMessage(t *testing.T) {
	for _, name := range []string{"json", "standard", "string", "binary"} {
		c, ok := LookupMessage(name)
		require.True(t, ok, name)
		assert.Equal(t, name, c.Name())
	}
	_, ok := LookupMessage("msgpack")
	assert.False(t, ok)
}
