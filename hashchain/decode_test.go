package hashchain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dfi/tsconv/hashalgo"
)

func seedZero(hashalgo.HashAlgo) hashalgo.Imprint {
	return hashalgo.Imprint{Algo: hashalgo.SHA256, Digest: make([]byte, hashalgo.SHA256.Length)}
}

// makeLink assembles one §4.2 wire link: algo-id, direction, sibling-algo,
// sibling digest, level.
func makeLink(algo byte, dir byte, siblingAlgo hashalgo.HashAlgo, digest []byte, level byte) []byte {
	out := []byte{algo, dir, siblingAlgo.GTID}
	out = append(out, digest...)
	out = append(out, level)
	return out
}

func zeroDigest(n int) []byte { return make([]byte, n) }

// S5 — truncated after the algorithm byte.
func TestDecodeLinksTruncatedAfterAlgo(t *testing.T) {
	_, err := decodeLinks([]byte{0x01}, seedZero, true)
	require.Error(t, err)
	assert.Equal(t, "Invalid link, end of stream after algorithm byte.", err.Error())
}

// S6 — invalid direction byte.
func TestDecodeLinksInvalidDirection(t *testing.T) {
	_, err := decodeLinks([]byte{0x01, 0x02}, seedZero, true)
	require.Error(t, err)
	assert.Equal(t, "Invalid hash step direction: 2", err.Error())
}

// S7 — unknown sibling algorithm GTID surfaces as an ArgumentError, not a
// FormatError, even though the blob is otherwise too short to be a link.
func TestDecodeLinksUnknownAlgorithm(t *testing.T) {
	_, err := decodeLinks([]byte{0x01, 0x00, 0x32}, seedZero, true)
	require.Error(t, err)
	var argErr *hashalgo.ArgumentError
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, "unsupported algorithm GTID: 50", err.Error())
}

func TestDecodeLinksTruncatedImprint(t *testing.T) {
	blob := []byte{0x01, 0x00, 0x01, 0x00, 0x00}
	_, err := decodeLinks(blob, seedZero, true)
	require.Error(t, err)
	assert.Equal(t, "Invalid link, not enough data for hash imprint.", err.Error())
}

func TestDecodeLinksEnforcesIncreasingLevel(t *testing.T) {
	blob := append(
		makeLink(0x01, 0x00, hashalgo.SHA256, zeroDigest(32), 5),
		makeLink(0x01, 0x00, hashalgo.SHA256, zeroDigest(32), 3)...,
	)
	_, err := decodeLinks(blob, seedZero, true)
	require.Error(t, err)
	assert.Equal(t, "Invalid hash step level: 3", err.Error())
}

func TestDecodeLinksCalendarAllowsNonIncreasingLevel(t *testing.T) {
	blob := append(
		makeLink(0x01, 0x00, hashalgo.SHA256, zeroDigest(32), 5),
		makeLink(0x01, 0x01, hashalgo.SHA256, zeroDigest(32), 3)...,
	)
	links, err := decodeLinks(blob, seedZero, false)
	require.NoError(t, err)
	assert.Len(t, links, 2)
}

func TestDecodeLinksDirectionAffectsResult(t *testing.T) {
	left := makeLink(0x01, 0x00, hashalgo.SHA256, zeroDigest(32), 1)
	right := makeLink(0x01, 0x01, hashalgo.SHA256, zeroDigest(32), 1)

	leftLinks, err := decodeLinks(left, seedZero, true)
	require.NoError(t, err)
	rightLinks, err := decodeLinks(right, seedZero, true)
	require.NoError(t, err)

	assert.NotEqual(t, leftLinks[0].ResultHash.Digest, rightLinks[0].ResultHash.Digest)
}

func TestEncodeUint(t *testing.T) {
	assert.Equal(t, []byte{0}, EncodeUint(0))
	assert.Equal(t, []byte{0x01}, EncodeUint(1))
	assert.Equal(t, []byte{0x01, 0x00}, EncodeUint(256))
}
