// Package hashchain implements the shared compact hash-chain link decoder
// of spec.md §4.2 and its two specializations: the aggregation chain
// builder (§4.3) and the calendar chain builder (§4.4).
package hashchain

import "dfi/tsconv/hashalgo"

// Direction is the per-link side of the sibling imprint relative to the
// input hash, read straight off the wire byte (0 = L, 1 = R per §4.2).
type Direction byte

const (
	DirLeft  Direction = 0
	DirRight Direction = 1
)

// Link is one decoded, hash-chained step: the sibling and level read off
// the wire, plus the input/result hashes computed while decoding.
type Link struct {
	Algo       hashalgo.HashAlgo
	Direction  Direction
	Sibling    hashalgo.Imprint
	Level      int
	InputHash  hashalgo.Imprint
	ResultHash hashalgo.Imprint
}

// seedFunc produces the input hash fed to the first link, given that
// link's own algorithm — aggregation chains hash the caller's input
// imprint once more before the first step; calendar chains feed the
// caller's input hash through unchanged.
type seedFunc func(first hashalgo.HashAlgo) hashalgo.Imprint

// decodeLinks parses the shared link encoding of §4.2 from blob end to
// end — chain splitting into multiple TLV elements is a presentation
// concern layered on top by the aggregation builder; the underlying hash
// chain here is always one continuous sequence.
//
// enforceIncreasingLevel selects the aggregation-chain rule that each
// link's level must exceed the previous one; calendar chains carry the
// same wire layout but impose no such constraint.
func decodeLinks(blob []byte, seed seedFunc, enforceIncreasingLevel bool) ([]Link, error) {
	var links []Link
	pos := 0
	prevLevel := -1

	for pos < len(blob) {
		algoByte := blob[pos]
		algo, err := hashalgo.ByGTID(algoByte)
		if err != nil {
			return nil, err
		}
		pos++

		if pos >= len(blob) {
			return nil, newFormatError("Invalid link, end of stream after algorithm byte.")
		}
		dirByte := blob[pos]
		if dirByte > 1 {
			return nil, newFormatError("Invalid hash step direction: %d", dirByte)
		}
		direction := Direction(dirByte)
		pos++

		if pos >= len(blob) {
			return nil, newFormatError("Invalid link, end of stream after direction byte.")
		}
		siblingAlgo, err := hashalgo.ByGTID(blob[pos])
		if err != nil {
			return nil, err // ArgumentError — unsupported sibling algorithm GTID, e.g. S7
		}
		pos++
		if pos+siblingAlgo.Length > len(blob) {
			return nil, newFormatError("Invalid link, not enough data for hash imprint.")
		}
		digest := append([]byte(nil), blob[pos:pos+siblingAlgo.Length]...)
		sibling := hashalgo.Imprint{Algo: siblingAlgo, Digest: digest}
		pos += siblingAlgo.Length

		if pos >= len(blob) {
			return nil, newFormatError("Invalid link, not enough data for hash imprint.")
		}
		level := int(blob[pos])
		pos++

		if enforceIncreasingLevel && level <= prevLevel {
			return nil, newFormatError("Invalid hash step level: %d", level)
		}
		prevLevel = level

		var input hashalgo.Imprint
		if len(links) == 0 {
			input = seed(algo)
		} else {
			input = links[len(links)-1].ResultHash
		}
		result := hashStep(algo, direction, sibling, input, level)

		links = append(links, Link{
			Algo:       algo,
			Direction:  direction,
			Sibling:    sibling,
			Level:      level,
			InputHash:  input,
			ResultHash: result,
		})
	}
	return links, nil
}

// hashStep implements the §4.2 per-link hash step:
//
//	output = algo.hash( (direction == L ? sibling‖input : input‖sibling) ‖ [level] )
//
// "imprint bytes" means the full wire imprint — algorithm-id byte plus
// digest — for both sibling and input, matching the legacy format's own
// chain-step definition.
func hashStep(algo hashalgo.HashAlgo, direction Direction, sibling, input hashalgo.Imprint, level int) hashalgo.Imprint {
	buf := make([]byte, 0, len(sibling.Bytes())+len(input.Bytes())+1)
	if direction == DirLeft {
		buf = append(buf, sibling.Bytes()...)
		buf = append(buf, input.Bytes()...)
	} else {
		buf = append(buf, input.Bytes()...)
		buf = append(buf, sibling.Bytes()...)
	}
	buf = append(buf, byte(level))
	return algo.Hash(buf)
}

// EncodeUint returns the minimal big-endian encoding of v (at least one
// byte, no leading zero byte unless v itself is 0) used for every
// integer-valued TLV leaf this package emits (publication time,
// registration time, chain index).
func EncodeUint(v uint64) []byte {
	if v == 0 {
		return []byte{0}
	}
	var b []byte
	for v > 0 {
		b = append([]byte{byte(v & 0xff)}, b...)
		v >>= 8
	}
	return b
}
