package decode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type sample struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

func TestObject(t *testing.T) {
	m, err := Object([]byte(`{"id": 9007199254740993, "name": "x"}`))
	require.NoError(t, err)
	require.Equal(t, "9007199254740993", m["id"].(interface{ String() string }).String())

	for _, bad := range []string{``, `nope`, `[1,2]`, `null`, `"str"`} {
		_, err := Object([]byte(bad))
		require.Error(t, err, bad)
	}
}

func TestDecodeMapWeak(t *testing.T) {
	m, err := Object([]byte(`{"id":" 42 ","name":"  keep  ","code":7}`))
	require.NoError(t, err)

	v, err := DecodeMap[sample](m)
	require.NoError(t, err)
	require.Equal(t, int64(42), v.ID)
	require.Equal(t, "  keep  ", v.Name)
	require.Equal(t, "7", v.Code)
}

func TestDecodeMapLargeNumber(t *testing.T) {
	m, err := Object([]byte(`{"id":9007199254740993}`))
	require.NoError(t, err)
	v, err := DecodeMap[sample](m)
	require.NoError(t, err)
	require.Equal(t, int64(9007199254740993), v.ID)
}

func TestDecodeMapStrict(t *testing.T) {
	m := map[string]any{"id": "42"}
	_, err := DecodeMap[sample](m, WithWeaklyTypedInput(false))
	require.Error(t, err)
}

func TestDecodeMapTypeMismatch(t *testing.T) {
	m, err := Object([]byte(`{"id":{"nested":true}}`))
	require.NoError(t, err)
	_, err = DecodeMap[sample](m)
	require.Error(t, err)
}

func TestReadString(t *testing.T) {
	m := map[string]any{"type": "auth", "n": 1}
	s, err := ReadString(m, "type")
	require.NoError(t, err)
	require.Equal(t, "auth", s)

	s, err = ReadString(m, "missing")
	require.NoError(t, err)
	require.Empty(t, s)

	_, err = ReadString(m, "n")
	require.Error(t, err)
}
