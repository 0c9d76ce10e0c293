package hashchain

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dfi/tsconv/hashalgo"
	"dfi/tsconv/tlv"
)

func zeroImprint() hashalgo.Imprint {
	return hashalgo.Imprint{Algo: hashalgo.SHA256, Digest: make([]byte, hashalgo.SHA256.Length)}
}

// S4 — an empty aggregation blob is rejected outright.
func TestBuildAggregationChainsEmptyBlob(t *testing.T) {
	_, err := BuildAggregationChains(nil, zeroImprint())
	require.Error(t, err)
	assert.Equal(t, "No links found in aggregation hash chain.", err.Error())
}

// S1-shaped single link: one aggregation chain, input-hash/algorithm
// children present, output hash equals the link's own result hash.
func TestBuildAggregationChainsSingleLink(t *testing.T) {
	sibling := append(bytes.Repeat([]byte{0}, hashalgo.SHA256.Length-1), 0x01)
	blob := append([]byte{0x01, 0x00, 0x01}, sibling...)
	blob = append(blob, 0x01) // level 1

	res, err := BuildAggregationChains(blob, zeroImprint())
	require.NoError(t, err)
	require.Len(t, res.Chains, 1)

	chain := res.Chains[0]
	assert.Equal(t, tlv.TypeAggregationTag, chain.Type)
	require.NotNil(t, chain.FirstChildOfType(tlv.TagInputHash))
	algoChild := chain.FirstChildOfType(tlv.TagAlgorithm)
	require.NotNil(t, algoChild)
	assert.Equal(t, []byte{hashalgo.SHA256.GTID}, algoChild.Content())

	linkChild := chain.FirstChildOfType(tlv.TagSiblingLeft)
	require.NotNil(t, linkChild)
	siblingImprint := linkChild.FirstChildOfType(tlv.TagSiblingImprint)
	require.NotNil(t, siblingImprint)

	// Decoding independently confirms the output hash matches the last
	// (only) link's computed result.
	links, err := decodeLinks(blob, func(first hashalgo.HashAlgo) hashalgo.Imprint {
		return first.Hash(zeroImprint().Bytes())
	}, true)
	require.NoError(t, err)
	assert.Equal(t, links[len(links)-1].ResultHash.Digest, res.OutputHash.Digest)
}

// S2-shaped single link with direction=R: the sibling ends up tagged
// TagSiblingRight instead of TagSiblingLeft. The matching result-hash
// difference between directions is checked at the decoder level in
// decode_test.go; this test checks only the TLV tagging.
func TestBuildAggregationChainsRightDirection(t *testing.T) {
	sibling := append(bytes.Repeat([]byte{0}, hashalgo.SHA256.Length-1), 0x01)
	blob := append([]byte{0x01, 0x01, 0x01}, sibling...)
	blob = append(blob, 0x01)

	res, err := BuildAggregationChains(blob, zeroImprint())
	require.NoError(t, err)
	require.Len(t, res.Chains, 1)
	require.NotNil(t, res.Chains[0].FirstChildOfType(tlv.TagSiblingRight))
	assert.Nil(t, res.Chains[0].FirstChildOfType(tlv.TagSiblingLeft))
}

// S3-shaped split: a link landing on a gateway level (19/39/60) starts a
// new chain rather than extending the current one.
func TestBuildAggregationChainsSplitsAtGatewayLevel(t *testing.T) {
	sibling := bytes.Repeat([]byte{0}, hashalgo.SHA256.Length)
	link := func(level byte) []byte {
		return append(append([]byte{0x01, 0x00, 0x01}, sibling...), level)
	}
	blob := append(link(1), link(19)...)

	res, err := BuildAggregationChains(blob, zeroImprint())
	require.NoError(t, err)
	require.Len(t, res.Chains, 2)

	// The second (root-most) chain carries only its own chain index; the
	// first (leaf-most) chain carries its own index plus every index of
	// the chains closer to the root, per §4.3.
	assert.Len(t, res.Chains[1].ChildrenOfType(tlv.TagChainIndex), 1)
	assert.Len(t, res.Chains[0].ChildrenOfType(tlv.TagChainIndex), 2)
}

// A lone level-19 link with no preceding link in its chain does not
// trigger a split — §4.3 requires the current chain to already carry at
// least one link.
func TestBuildAggregationChainsNoSplitOnFirstLink(t *testing.T) {
	sibling := bytes.Repeat([]byte{0}, hashalgo.SHA256.Length)
	blob := append([]byte{0x01, 0x00, 0x01}, sibling...)
	blob = append(blob, 0x13) // level 19, but it's the only/first link

	res, err := BuildAggregationChains(blob, zeroImprint())
	require.NoError(t, err)
	assert.Len(t, res.Chains, 1)
}

// A pad field (tag 0x1) appears inside a link whenever its level skips
// ahead of the previous link's level by more than one.
func TestBuildAggregationChainsEmitsPadOnLevelGap(t *testing.T) {
	sibling := bytes.Repeat([]byte{0}, hashalgo.SHA256.Length)
	link := func(level byte) []byte {
		return append(append([]byte{0x01, 0x00, 0x01}, sibling...), level)
	}
	blob := append(link(1), link(5)...)

	res, err := BuildAggregationChains(blob, zeroImprint())
	require.NoError(t, err)
	require.Len(t, res.Chains, 1)

	linkChildren := res.Chains[0].ChildrenOfType(tlv.TagSiblingLeft)
	require.Len(t, linkChildren, 2)
	assert.Nil(t, linkChildren[0].FirstChildOfType(tlv.TagAggregationPad))
	pad := linkChildren[1].FirstChildOfType(tlv.TagAggregationPad)
	require.NotNil(t, pad)
	assert.Equal(t, []byte{3}, pad.Content()) // gap = 5 - 1 - 1 = 3
}

// S8 — a SHA-224 ("legacy ID") sibling whose second byte is not 0 is
// rejected.
func TestBuildAggregationChainsLegacyIDSecondByteMustBeZero(t *testing.T) {
	// link.Sibling.Bytes() prepends the GTID byte, so legacyID[0] lands at
	// b[1] (the "second byte" the wire layout in §4.3 refers to).
	legacyID := make([]byte, hashalgo.SHA224.Length)
	legacyID[0] = 1 // must be 0

	blob := append([]byte{0x01, 0x00, hashalgo.SHA224.GTID}, legacyID...)
	blob = append(blob, 0x01)

	_, err := BuildAggregationChains(blob, zeroImprint())
	require.Error(t, err)
	assert.Equal(t, "Legacy ID second byte must be 0", err.Error())
}

// A SHA-224 sibling with trailing non-zero bytes after the embedded label
// is also rejected.
func TestBuildAggregationChainsLegacyIDTrailingBytesMustBeZero(t *testing.T) {
	// b[1]=legacyID[0]=0 (valid), b[2]=legacyID[1]=label length 2, so
	// label_end = 2+3 = 5 and b[5]=legacyID[4] must be 0.
	legacyID := make([]byte, hashalgo.SHA224.Length)
	legacyID[1] = 2
	legacyID[4] = 0xFF

	blob := append([]byte{0x01, 0x00, hashalgo.SHA224.GTID}, legacyID...)
	blob = append(blob, 0x01)

	_, err := BuildAggregationChains(blob, zeroImprint())
	require.Error(t, err)
	assert.Equal(t, "Bytes after the legacy ID string must be 0", err.Error())
}
