package tlv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func containerTypes(types ...uint16) IsContainer {
	set := make(map[uint16]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return func(t uint16) bool { return set[t] }
}

func TestLeafRoundTrip(t *testing.T) {
	n := New(TagInputHash, []byte{0x01, 0x02, 0x03})
	encoded := n.Bytes()

	decoded, rest, err := Parse(encoded, containerTypes())
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.Equal(t, TagInputHash, decoded.Type)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, decoded.Content())
}

func TestContainerRoundTrip(t *testing.T) {
	root := NewContainer(TypeAggregationTag,
		New(TagInputHash, []byte{0xaa}),
		New(TagAlgorithm, []byte{0x01}),
	)
	encoded := root.Bytes()

	decoded, rest, err := Parse(encoded, containerTypes(TypeAggregationTag))
	require.NoError(t, err)
	assert.Empty(t, rest)
	require.Len(t, decoded.Children(), 2)
	assert.Equal(t, TagInputHash, decoded.Children()[0].Type)
	assert.Equal(t, []byte{0xaa}, decoded.Children()[0].Content())
}

func TestWideTypeAndLongLength(t *testing.T) {
	content := make([]byte, 300)
	for i := range content {
		content[i] = byte(i)
	}
	n := New(TypeSignature, content)
	encoded := n.Bytes()

	decoded, rest, err := Parse(encoded, containerTypes())
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.Equal(t, TypeSignature, decoded.Type)
	assert.Equal(t, content, decoded.Content())
}

func TestAppendConvertsLeafToContainer(t *testing.T) {
	n := New(TagInputHash, []byte{0x01})
	n.Append(New(TagAlgorithm, []byte{0x02}))
	assert.Nil(t, n.Content())
	require.Len(t, n.Children(), 1)
}

func TestFirstAndChildrenOfType(t *testing.T) {
	root := NewContainer(TypeAggregationTag,
		New(TagSiblingLeft, []byte{0x01}),
		New(TagSiblingLeft, []byte{0x02}),
		New(TagSiblingRight, []byte{0x03}),
	)
	assert.Len(t, root.ChildrenOfType(TagSiblingLeft), 2)
	assert.Equal(t, []byte{0x01}, root.FirstChildOfType(TagSiblingLeft).Content())
	assert.Nil(t, root.FirstChildOfType(TagChainIndex))
}

func TestParseTruncated(t *testing.T) {
	_, _, err := Parse([]byte{0x85}, containerTypes())
	assert.Error(t, err)
}
