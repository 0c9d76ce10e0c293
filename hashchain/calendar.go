package hashchain

import (
	"math/bits"

	"dfi/tsconv/hashalgo"
	"dfi/tsconv/tlv"
)

// CalendarResult is the output of BuildCalendarChain.
type CalendarResult struct {
	Node    *tlv.Node
	RegTime uint64
}

// BuildCalendarChain decodes blob per §4.2 and emits a single
// calendar-chain TLV element per §4.4, reconstructing the registration
// time from the links' directions.
func BuildCalendarChain(blob []byte, inputHash hashalgo.Imprint, publicationID uint64) (*CalendarResult, error) {
	links, err := decodeLinks(blob, func(hashalgo.HashAlgo) hashalgo.Imprint {
		return inputHash
	}, false)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return nil, newFormatError("No links found in calendar hash chain.")
	}

	regTime, err := reconstructRegistrationTime(links, publicationID)
	if err != nil {
		return nil, err
	}

	node := tlv.NewContainer(tlv.TypeCalendarTag)
	node.Append(tlv.New(tlv.TagPublicationTime, EncodeUint(publicationID)))
	node.Append(tlv.New(tlv.TagInputHash, inputHash.Bytes()))
	for _, link := range links {
		tag := tlv.TagSiblingRight
		if link.Direction == DirLeft {
			tag = tlv.TagSiblingLeft
		}
		node.Append(tlv.New(tag, link.Sibling.Bytes()))
	}
	node.Append(tlv.New(tlv.TagRegistrationTime, EncodeUint(regTime)))

	return &CalendarResult{Node: node, RegTime: regTime}, nil
}

// reconstructRegistrationTime implements the §4.4 bit-reconstruction:
// walking links in reverse, a left-sibling (tag 0x7) is a descent step
// and a right-sibling (tag 0x8) accumulates into the registration time.
// Publication time must reach exactly 0; the Open Question in spec.md §9
// calls for asserting reg <= publicationTime explicitly rather than
// relying on it falling out of the loop.
func reconstructRegistrationTime(links []Link, publicationTime uint64) (uint64, error) {
	p := publicationTime
	var reg uint64
	for i := len(links) - 1; i >= 0; i-- {
		if p == 0 {
			return 0, newFormatError("Calendar hash chain shape is inconsistent with publication time")
		}
		hb := highestSetBit(p)
		if links[i].Direction == DirLeft {
			p = hb - 1
		} else {
			reg += hb
			p -= hb
		}
	}
	if p != 0 {
		return 0, newFormatError("Calendar hash chain shape is inconsistent with publication time")
	}
	if reg > publicationTime {
		return 0, newFormatError("Calendar hash chain shape is inconsistent with publication time")
	}
	return reg, nil
}

func highestSetBit(p uint64) uint64 {
	return uint64(1) << (63 - bits.LeadingZeros64(p))
}
