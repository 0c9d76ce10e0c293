package hashalgo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByGTIDKnown(t *testing.T) {
	a, err := ByGTID(1)
	require.NoError(t, err)
	assert.Equal(t, SHA256, a)
}

func TestByGTIDUnsupported(t *testing.T) {
	_, err := ByGTID(50)
	require.Error(t, err)
	assert.Equal(t, "unsupported algorithm GTID: 50", err.Error())
}

func TestByOIDUnsupported(t *testing.T) {
	_, err := ByOID(mustOID(9, 9, 9))
	require.Error(t, err)
	var argErr *ArgumentError
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, "OID", argErr.Kind)
}

func TestImprintRoundTrip(t *testing.T) {
	im := SHA256.Hash([]byte("hello"))
	b := im.Bytes()
	require.Len(t, b, 1+SHA256.Length)
	assert.Equal(t, SHA256.GTID, b[0])

	parsed, n, err := ParseImprint(b)
	require.NoError(t, err)
	assert.Equal(t, len(b), n)
	assert.Equal(t, im.Digest, parsed.Digest)
}

func TestParseImprintTruncated(t *testing.T) {
	_, _, err := ParseImprint([]byte{SHA256.GTID, 0x01, 0x02})
	require.Error(t, err)
}
