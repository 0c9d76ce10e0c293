// Package tlv implements the nested tag-length-value encoding the modern
// keyless signature format uses. It stands in for the "TLV library"
// external collaborator of spec.md §6: a real host SDK would replace this
// package's Bytes() with its own wire writer, but the tree shape
// (type, two header flags, raw content XOR ordered children) is exactly
// what that collaborator consumes.
package tlv

import (
	"encoding/binary"
	"fmt"
)

// Well-known element types used by this transcoder. Names follow the
// sections of spec.md that define them.
const (
	TypeSignature      uint16 = 0x800
	TypeAggregationTag uint16 = 0x801
	TypeCalendarTag    uint16 = 0x802
	TypeRFC3161Record  uint16 = 0x806
)

// Child tags shared across aggregation/calendar chains and the RFC3161
// record, per spec.md §4.3/§4.4/§4.5. The same numeric tag is reused with
// different meaning in different parent contexts, exactly as spec.md
// defines it (e.g. 0x1 is a calendar chain's publication-time leaf but an
// aggregation link's pad field; 0x2/0x3 are RFC3161Record leaves but also
// the sibling-imprint/legacy-id wrapper tags inside an aggregation link).
const (
	TagPublicationTime  uint16 = 0x1
	TagAggregationPad   uint16 = 0x1
	TagRegistrationTime uint16 = 0x2
	TagSiblingImprint   uint16 = 0x2
	TagChainIndex       uint16 = 0x3
	TagSiblingLegacyID  uint16 = 0x3
	TagInputHash        uint16 = 0x5
	TagAlgorithm        uint16 = 0x6
	TagSiblingLeft      uint16 = 0x7
	TagSiblingRight     uint16 = 0x8

	TagTSTInfoPrefix     uint16 = 0x10
	TagTSTInfoSuffix     uint16 = 0x11
	TagDocumentHashAlgo  uint16 = 0x12
	TagSignedAttrsPrefix uint16 = 0x13
	TagSignedAttrsSuffix uint16 = 0x14
	TagSignerDigestAlgo  uint16 = 0x15
)

// Node is one element of the TLV tree: either raw content, or an ordered
// list of children, never both.
type Node struct {
	Type uint16

	// NonCritical and Forward are the two header bit-flags this format
	// defines. Every node emitted by this transcoder sets them to the
	// values a conformant verifier expects for non-critical, forward
	// elements — see New/NewContainer.
	NonCritical bool
	Forward     bool

	content  []byte
	children []*Node
}

// New creates a leaf node carrying raw content.
func New(t uint16, content []byte) *Node {
	cp := make([]byte, len(content))
	copy(cp, content)
	return &Node{Type: t, NonCritical: true, Forward: true, content: cp}
}

// NewContainer creates a node carrying an ordered list of children.
func NewContainer(t uint16, children ...*Node) *Node {
	return &Node{Type: t, NonCritical: true, Forward: true, children: append([]*Node(nil), children...)}
}

// Append adds a child to a container node. Appending to a leaf node
// (one created with New) converts it into a container and discards its
// raw content — callers should not mix the two.
func (n *Node) Append(child *Node) *Node {
	n.content = nil
	n.children = append(n.children, child)
	return n
}

// Content returns the raw content of a leaf node, or nil for a container.
func (n *Node) Content() []byte {
	if n == nil || n.content == nil {
		return nil
	}
	out := make([]byte, len(n.content))
	copy(out, n.content)
	return out
}

// Children returns the ordered children of a container node.
func (n *Node) Children() []*Node {
	if n == nil {
		return nil
	}
	return append([]*Node(nil), n.children...)
}

// ChildrenOfType returns, in order, every direct child whose Type equals t.
func (n *Node) ChildrenOfType(t uint16) []*Node {
	var out []*Node
	for _, c := range n.Children() {
		if c.Type == t {
			out = append(out, c)
		}
	}
	return out
}

// FirstChildOfType returns the first direct child whose Type equals t, or
// nil if there is none.
func (n *Node) FirstChildOfType(t uint16) *Node {
	for _, c := range n.Children() {
		if c.Type == t {
			return c
		}
	}
	return nil
}

// Bytes serializes the node (and its children, recursively) into this
// format's TLV wire encoding:
//
//	byte 0: bit7=NonCritical, bit6=Forward, bit5=wide Type, bit4=long length,
//	        bits[3:0]=Type when Type <= 0xf (see encodeHeader)
//	then 2 big-endian Type bytes if the wide bit is set
//	then 1 or 2 length bytes depending on content size
//	then content bytes (leaf) or the concatenated encoding of children (container)
//
// This is a faithful, minimal stand-in for the host SDK's wire writer —
// good enough to make the round-trip property in spec.md §8.6 checkable
// without a real SDK dependency.
func (n *Node) Bytes() []byte {
	body := n.content
	if n.children != nil {
		for _, c := range n.children {
			body = append(body, c.Bytes()...)
		}
	}
	header := encodeHeader(n.Type, n.NonCritical, n.Forward, len(body))
	return append(header, body...)
}

func encodeHeader(t uint16, nonCritical, forward bool, length int) []byte {
	flags := byte(0)
	if nonCritical {
		flags |= 0x80
	}
	if forward {
		flags |= 0x40
	}
	wide := t > 0x0f
	if wide {
		flags |= 0x20
	}
	if length > 0xff {
		flags |= 0x10
	}

	var out []byte
	if wide {
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, t)
		out = append(out, flags, b[0], b[1])
	} else {
		out = append(out, flags|byte(t))
	}
	if length > 0xff {
		lb := make([]byte, 2)
		binary.BigEndian.PutUint16(lb, uint16(length))
		out = append(out, lb[0], lb[1])
	} else {
		out = append(out, byte(length))
	}
	return out
}

// IsContainer tells Parse whether a node of a given type holds children
// (true) or raw content (false). There is no way to tell from the header
// bytes alone — exactly like the real format, whose wire form is
// ambiguous without the schema the host SDK already knows — so every
// caller of Parse must supply one.
type IsContainer func(t uint16) bool

// Parse decodes a single TLV element (and, recursively, its children, per
// schema) from the front of b. It is the inverse of Bytes and exists so
// the round-trip property in spec.md §8.6 is independently checkable
// without a real host SDK.
func Parse(b []byte, schema IsContainer) (*Node, []byte, error) {
	if len(b) < 2 {
		return nil, nil, fmt.Errorf("tlv: truncated header")
	}
	flags := b[0]
	nonCritical := flags&0x80 != 0
	forward := flags&0x40 != 0
	wide := flags&0x20 != 0
	longLen := flags&0x10 != 0

	off := 1
	var t uint16
	if wide {
		if len(b) < off+2 {
			return nil, nil, fmt.Errorf("tlv: truncated wide type")
		}
		t = binary.BigEndian.Uint16(b[off : off+2])
		off += 2
	} else {
		t = uint16(flags & 0x0f)
	}

	var length int
	if longLen {
		if len(b) < off+2 {
			return nil, nil, fmt.Errorf("tlv: truncated long length")
		}
		length = int(binary.BigEndian.Uint16(b[off : off+2]))
		off += 2
	} else {
		if len(b) < off+1 {
			return nil, nil, fmt.Errorf("tlv: truncated short length")
		}
		length = int(b[off])
		off++
	}

	if len(b) < off+length {
		return nil, nil, fmt.Errorf("tlv: truncated content: need %d, have %d", length, len(b)-off)
	}
	content := b[off : off+length]
	rest := b[off+length:]

	n := &Node{Type: t, NonCritical: nonCritical, Forward: forward}
	if schema != nil && schema(t) {
		rem := content
		for len(rem) > 0 {
			child, next, err := Parse(rem, schema)
			if err != nil {
				return nil, nil, fmt.Errorf("tlv: child of type 0x%x: %w", t, err)
			}
			n.children = append(n.children, child)
			rem = next
		}
	} else {
		n.content = append([]byte(nil), content...)
	}
	return n, rest, nil
}
