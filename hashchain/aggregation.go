package hashchain

import (
	"dfi/tsconv/hashalgo"
	"dfi/tsconv/tlv"
)

// gatewayLevels are the level values at which an aggregation chain splits
// into a new TLV element, per §4.3.
var gatewayLevels = map[int]bool{19: true, 39: true, 60: true}

// AggregationResult is the output of BuildAggregationChains: the ordered
// TLV chain elements and the hash fed onward into the calendar chain.
type AggregationResult struct {
	Chains     []*tlv.Node
	OutputHash hashalgo.Imprint
}

// BuildAggregationChains decodes blob per §4.2 and emits one or more
// aggregation-chain TLV elements per §4.3, splitting at the gateway
// levels {19, 39, 60}.
func BuildAggregationChains(blob []byte, inputImprint hashalgo.Imprint) (*AggregationResult, error) {
	links, err := decodeLinks(blob, func(first hashalgo.HashAlgo) hashalgo.Imprint {
		return first.Hash(inputImprint.Bytes())
	}, true)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return nil, newFormatError("No links found in aggregation hash chain.")
	}

	var chains []*tlv.Node
	var bounds [][2]int
	chainStart := 0
	for i, link := range links {
		if i > 0 && gatewayLevels[link.Level] && i-chainStart >= 1 {
			bounds = append(bounds, [2]int{chainStart, i})
			chainStart = i
		}
	}
	bounds = append(bounds, [2]int{chainStart, len(links)})

	for _, b := range bounds {
		node, err := buildAggregationChainNode(links, b[0], b[1])
		if err != nil {
			return nil, err
		}
		chains = append(chains, node)
	}

	attachChainIndices(chains, links, bounds)

	return &AggregationResult{
		Chains:     chains,
		OutputHash: links[len(links)-1].ResultHash,
	}, nil
}

// buildAggregationChainNode builds the TLV element for links[start:end]:
// input-hash, algorithm, then one child per link carrying its optional
// pad and wrapped sibling imprint. Level gaps are computed against the
// whole decoded sequence, not reset per chain, matching §4.2's "previous
// link" rule; the very first link is measured against level 0.
func buildAggregationChainNode(links []Link, start, end int) (*tlv.Node, error) {
	group := links[start:end]
	node := tlv.NewContainer(tlv.TypeAggregationTag)
	node.Append(tlv.New(tlv.TagInputHash, group[0].InputHash.Bytes()))
	node.Append(tlv.New(tlv.TagAlgorithm, []byte{group[0].Algo.GTID}))

	for i, link := range group {
		globalIdx := start + i
		prevLevel := 0
		if globalIdx > 0 {
			prevLevel = links[globalIdx-1].Level
		}

		linkTag := tlv.TagSiblingRight
		if link.Direction == DirLeft {
			linkTag = tlv.TagSiblingLeft
		}
		linkNode := tlv.NewContainer(linkTag)

		if gap := link.Level - prevLevel - 1; gap > 0 {
			linkNode.Append(tlv.New(tlv.TagAggregationPad, []byte{byte(gap)}))
		}

		siblingNode, err := wrapSibling(link)
		if err != nil {
			return nil, err
		}
		linkNode.Append(siblingNode)

		node.Append(linkNode)
	}
	return node, nil
}

// wrapSibling wraps a link's sibling imprint as tag 0x2, except for
// SHA-224 which uses the "legacy ID" form (tag 0x3) and carries an
// embedded ASCII label instead of a plain digest.
func wrapSibling(link Link) (*tlv.Node, error) {
	b := link.Sibling.Bytes()
	if link.Sibling.Algo.GTID != hashalgo.SHA224.GTID {
		return tlv.New(tlv.TagSiblingImprint, b), nil
	}
	if len(b) < 3 || b[1] != 0 {
		return nil, newFormatError("Legacy ID second byte must be 0")
	}
	labelEnd := int(b[2]) + 3
	if labelEnd > len(b) {
		return nil, newFormatError("Legacy ID second byte must be 0")
	}
	for i := labelEnd; i < len(b); i++ {
		if b[i] != 0 {
			return nil, newFormatError("Bytes after the legacy ID string must be 0")
		}
	}
	return tlv.New(tlv.TagSiblingLegacyID, b), nil
}

// attachChainIndices computes, for every chain, a bit-reconstructed index
// from its link directions (walked in reverse), then gives each chain its
// own index followed by the indices of every chain closer to the root —
// processing from the last (root-most) chain back to the first, per §4.3.
func attachChainIndices(chains []*tlv.Node, links []Link, bounds [][2]int) {
	var acc []*tlv.Node
	for i := len(chains) - 1; i >= 0; i-- {
		group := links[bounds[i][0]:bounds[i][1]]
		idx := uint64(1)
		for j := len(group) - 1; j >= 0; j-- {
			bit := uint64(0)
			if group[j].Direction == DirLeft {
				bit = 1
			}
			idx = (idx << 1) | bit
		}
		idxNode := tlv.New(tlv.TagChainIndex, EncodeUint(idx))
		acc = append([]*tlv.Node{idxNode}, acc...)
		for _, n := range acc {
			chains[i].Append(n)
		}
	}
}
