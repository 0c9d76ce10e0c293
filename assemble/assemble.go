// Package assemble implements the §4.5 signature assembler: it stitches
// aggregation chains, the calendar chain and an RFC3161Record into the
// single root TLV element a host KSI SDK would serialize and verify.
package assemble

import (
	"dfi/tsconv/der"
	"dfi/tsconv/hashalgo"
	"dfi/tsconv/hashchain"
	"dfi/tsconv/tlv"
)

// Result is the assembled signature: the root TLV tree plus the values a
// caller (or test) most often wants without re-walking it.
type Result struct {
	Root       *tlv.Node
	OutputHash hashalgo.Imprint
	RegTime    uint64
}

// Assemble builds the root 0x800 signature TLV from a parsed legacy
// ContentInfo's TimeSignature, per §4.5.
func Assemble(ci *der.ContentInfo) (*Result, error) {
	ts := ci.SignedData.SignerInfo.TimeSignature
	tstInfo := ci.SignedData.TSTInfo
	signerInfo := ci.SignedData.SignerInfo

	agg, err := hashchain.BuildAggregationChains(ts.Location, tstInfo.MessageImprint)
	if err != nil {
		return nil, err
	}

	cal, err := hashchain.BuildCalendarChain(ts.History, agg.OutputHash, ts.PublicationID)
	if err != nil {
		return nil, err
	}

	regTimeNode := tlv.New(tlv.TagRegistrationTime, hashchain.EncodeUint(cal.RegTime))
	for _, chain := range agg.Chains {
		chain.Append(tlv.New(tlv.TagRegistrationTime, hashchain.EncodeUint(cal.RegTime)))
	}

	record := tlv.NewContainer(tlv.TypeRFC3161Record,
		// "publication-time" here is §4.5's name for the value copied
		// from the calendar chain's registration-time child — same tag
		// (0x2), different label, matching the legacy record's own
		// reuse of the wire tag.
		regTimeNode,
	)
	for _, idx := range agg.Chains[0].ChildrenOfType(tlv.TagChainIndex) {
		record.Append(idx)
	}
	record.Append(tlv.New(tlv.TagInputHash, tstInfo.MessageImprint.Bytes()))
	record.Append(tlv.New(tlv.TagTSTInfoPrefix, tstInfo.TSTInfoPrefix))
	record.Append(tlv.New(tlv.TagTSTInfoSuffix, tstInfo.TSTInfoSuffix))
	record.Append(tlv.New(tlv.TagDocumentHashAlgo, []byte{tstInfo.MessageImprint.Algo.GTID}))
	record.Append(tlv.New(tlv.TagSignedAttrsPrefix, signerInfo.SignedAttrsPrefix))
	record.Append(tlv.New(tlv.TagSignedAttrsSuffix, signerInfo.SignedAttrsSuffix))
	record.Append(tlv.New(tlv.TagSignerDigestAlgo, []byte{signerInfo.DigestAlgorithm.GTID}))

	root := tlv.NewContainer(tlv.TypeSignature)
	for _, chain := range agg.Chains {
		root.Append(chain)
	}
	root.Append(cal.Node)
	root.Append(record)

	return &Result{Root: root, OutputHash: agg.OutputHash, RegTime: cal.RegTime}, nil
}
