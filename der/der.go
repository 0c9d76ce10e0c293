// Package der implements the strict ASN.1/DER reader of spec.md §4.1: it
// decodes the legacy CMS ContentInfo → SignedData → SignerInfo → TSTInfo →
// TimeSignature nesting and, beyond ordinary decoding, captures byte-exact
// slices of the DER straddling TSTInfo's hashedMessage and SignerInfo's
// signed-attributes message-digest value.
//
// Routine fields (OIDs, integers, the X.509 certificate, GeneralizedTime)
// are decoded with stdlib encoding/asn1 and crypto/x509, exactly as the
// teacher package does it — only the two bracket captures need a
// byte-position-aware reader, built on golang.org/x/crypto/cryptobyte.
package der

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/digitorus/pkcs7"
	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"

	"dfi/tsconv/hashalgo"
)

// OIDs fixed by spec.md §3/§4.1.
var (
	OIDSignedData        = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 2}
	OIDTSTInfoContent    = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 1, 4}
	OIDTimeSignatureAlgo = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 27868, 4, 1}
	OIDContentType       = pkcs7.OIDAttributeContentType
	OIDMessageDigest     = pkcs7.OIDAttributeMessageDigest
)

// maxUint64 bounds PublishedData.publicationId, which the wire format
// encodes as an ASN.1 INTEGER but which must fit a 64-bit unsigned value.
var maxUint64 = new(big.Int).SetUint64(^uint64(0))

// ContentInfo is the root of the decoded tree.
type ContentInfo struct {
	ContentType asn1.ObjectIdentifier
	SignedData  SignedData
}

// SignedData corresponds to spec.md §3's SignedData entity.
type SignedData struct {
	Version          int
	DigestAlgorithms []hashalgo.HashAlgo
	Certificate      *x509.Certificate // nil if SignedData carried none
	SignerInfo       SignerInfo
	TSTInfo          TSTInfo
}

// SignerInfo corresponds to spec.md §3's SignerInfo entity, including the
// two captured byte ranges bracketing the message-digest attribute value.
type SignerInfo struct {
	Version            int
	DigestAlgorithm    hashalgo.HashAlgo
	SignatureAlgorithm asn1.ObjectIdentifier
	TimeSignature      TimeSignature

	// SignedAttrsPrefix is a synthetic UNIVERSAL SET header (required by
	// the CMS convention of re-tagging the IMPLICIT [0] signed-attributes
	// set for digest computation — a deliberate resynthesis, not the bug
	// this reader otherwise avoids) ‖ the content-type attribute (full,
	// verbatim) ‖ the message-digest attribute's SEQUENCE header ‖ its OID
	// field ‖ its inner SET header ‖ its OCTET STRING header.
	SignedAttrsPrefix []byte
	// SignedAttrsSuffix is the verbatim DER of every signed attribute
	// following message-digest (possibly empty).
	SignedAttrsSuffix []byte
	// MessageDigest is the value of the message-digest signed attribute.
	MessageDigest []byte
}

// TSTInfo corresponds to spec.md §3's TSTInfo entity.
type TSTInfo struct {
	Version        int
	Policy         asn1.ObjectIdentifier
	MessageImprint hashalgo.Imprint
	SerialNumber   *big.Int
	GenTime        time.Time

	// TSTInfoPrefix is TSTInfo's own SEQUENCE header ‖ version ‖ policy ‖
	// messageImprint's SEQUENCE header ‖ hashAlgorithm field ‖ hashedMessage
	// OCTET STRING header.
	TSTInfoPrefix []byte
	// TSTInfoSuffix is the verbatim DER of every TSTInfo field following
	// hashedMessage (serialNumber, genTime, and any optional fields).
	TSTInfoSuffix []byte
}

// TimeSignature corresponds to spec.md §3's TimeSignature entity.
type TimeSignature struct {
	Location           []byte
	History            []byte
	PublicationID      uint64
	PublicationImprint hashalgo.Imprint
	Extended           bool // true if no embedded PKI signature was present
}

// timeSignatureWire is the ASN.1 shape of TimeSignature, decoded with
// stdlib encoding/asn1 since none of its fields need byte capture.
type timeSignatureWire struct {
	Location      []byte
	History       []byte
	PublishedData struct {
		PublicationID      *big.Int
		PublicationImprint []byte
	}
	PkiSignature asn1.RawValue   `asn1:"optional"`
	PubRef       []asn1.RawValue `asn1:"optional,omitempty"`
}

// Parse reads a full DER-encoded ContentInfo from r and returns the
// decoded tree, or a FormatError / IoError per spec.md §7.
func Parse(r io.Reader) (*ContentInfo, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, &IoError{Cause: err}
	}
	return ParseBytes(raw)
}

// ParseBytes is Parse for callers who already hold the encoded bytes.
func ParseBytes(raw []byte) (*ContentInfo, error) {
	var ci struct {
		ContentType asn1.ObjectIdentifier
		Content     asn1.RawValue `asn1:"explicit,tag:0"`
	}
	if _, err := asn1.Unmarshal(raw, &ci); err != nil {
		return nil, wrapAsFormatError("content info", err)
	}
	if !ci.ContentType.Equal(OIDSignedData) {
		return nil, newFormatError(KindInvalidContentType,
			fmt.Sprintf("unexpected ContentInfo contentType OID: %s", ci.ContentType.String()))
	}

	var sd cmsSignedData
	if _, err := asn1.Unmarshal(ci.Content.FullBytes, &sd); err != nil {
		return nil, wrapAsFormatError("signed data", err)
	}
	if sd.Version != 3 {
		return nil, newFormatError(KindBadVersion, fmt.Sprintf("unexpected SignedData version: %d", sd.Version))
	}

	digestAlgos := make([]hashalgo.HashAlgo, 0, len(sd.DigestAlgorithms))
	for _, ai := range sd.DigestAlgorithms {
		a, err := hashalgo.ByOID(ai.Algorithm)
		if err != nil {
			return nil, newFormatError(KindUnsupportedAlgo, err.Error())
		}
		digestAlgos = append(digestAlgos, a)
	}

	if !sd.EncapContentInfo.EContentType.Equal(OIDTSTInfoContent) {
		return nil, newFormatError(KindInvalidContentType,
			fmt.Sprintf("unexpected EncapsulatedContentInfo eContentType OID: %s", sd.EncapContentInfo.EContentType.String()))
	}
	if len(sd.EncapContentInfo.EContent) == 0 {
		return nil, newFormatError(KindBadStructure, "empty TSTInfo content")
	}

	var cert *x509.Certificate
	if len(sd.Certificates) > 0 {
		// Only existence is asserted — spec.md §3 treats the certificate
		// as opaque beyond "one was present".
		parsed, err := x509.ParseCertificate(sd.Certificates[0].FullBytes)
		if err != nil {
			return nil, wrapAsFormatError("certificate", err)
		}
		if len(parsed.UnhandledCriticalExtensions) > 0 {
			return nil, newFormatError(KindCriticalExtension, "certificate has unsupported critical extensions")
		}
		cert = parsed
	}

	if len(sd.SignerInfos) != 1 {
		return nil, newFormatError(KindBadStructure, fmt.Sprintf("expected exactly one SignerInfo, got %d", len(sd.SignerInfos)))
	}

	si, err := parseSignerInfo(sd.SignerInfos[0].FullBytes)
	if err != nil {
		return nil, err
	}

	tst, err := parseTSTInfo(sd.EncapContentInfo.EContent)
	if err != nil {
		return nil, err
	}

	return &ContentInfo{
		ContentType: ci.ContentType,
		SignedData: SignedData{
			Version:          sd.Version,
			DigestAlgorithms: digestAlgos,
			Certificate:      cert,
			SignerInfo:       *si,
			TSTInfo:          *tst,
		},
	}, nil
}

// --- wire-level structs, decoded with stdlib encoding/asn1 ---
// These mirror the teacher's tspAsn.go cmsSignedData/cmsSignerInfo shapes;
// SignedAttrs is kept as a raw IMPLICIT [0] SET so its content bytes can be
// walked byte-exactly afterwards.

type cmsSignedData struct {
	Version          int
	DigestAlgorithms []pkix.AlgorithmIdentifier `asn1:"set"`
	EncapContentInfo cmsEncapsulatedContentInfo
	Certificates     []asn1.RawValue `asn1:"optional,omitempty,tag:0"`
	CRLs             []asn1.RawValue `asn1:"optional,omitempty,tag:1"`
	SignerInfos      []asn1.RawValue `asn1:"set"`
}

type cmsEncapsulatedContentInfo struct {
	EContentType asn1.ObjectIdentifier
	EContent     []byte `asn1:"optional,omitempty,explicit,tag:0"`
}

type cmsSignerInfo struct {
	Version             int
	RawSignerIdentifier asn1.RawValue
	DigestAlgorithm     pkix.AlgorithmIdentifier
	SignedAttrs         asn1.RawValue `asn1:"optional,tag:0"`
	SignatureAlgorithm  pkix.AlgorithmIdentifier
	Signature           []byte
	UnsignedAttrs       asn1.RawValue `asn1:"optional,tag:1"`
}

func parseSignerInfo(raw []byte) (*SignerInfo, error) {
	var si cmsSignerInfo
	if _, err := asn1.Unmarshal(raw, &si); err != nil {
		return nil, wrapAsFormatError("signer info", err)
	}
	if si.Version != 1 {
		return nil, newFormatError(KindBadVersion, fmt.Sprintf("unexpected SignerInfo version: %d", si.Version))
	}
	if !si.SignatureAlgorithm.Algorithm.Equal(OIDTimeSignatureAlgo) {
		return nil, newFormatError(KindBadStructure,
			fmt.Sprintf("unexpected SignerInfo signatureAlgorithm OID: %s", si.SignatureAlgorithm.Algorithm.String()))
	}
	digestAlgo, err := hashalgo.ByOID(si.DigestAlgorithm.Algorithm)
	if err != nil {
		return nil, newFormatError(KindUnsupportedAlgo, err.Error())
	}

	prefix, suffix, digest, err := captureSignedAttrs(si.SignedAttrs.Bytes)
	if err != nil {
		return nil, err
	}

	ts, err := parseTimeSignature(si.Signature)
	if err != nil {
		return nil, err
	}

	return &SignerInfo{
		Version:            si.Version,
		DigestAlgorithm:    digestAlgo,
		SignatureAlgorithm: si.SignatureAlgorithm.Algorithm,
		TimeSignature:      *ts,
		SignedAttrsPrefix:  prefix,
		SignedAttrsSuffix:  suffix,
		MessageDigest:      digest,
	}, nil
}

func parseTimeSignature(der []byte) (*TimeSignature, error) {
	var w timeSignatureWire
	if _, err := asn1.Unmarshal(der, &w); err != nil {
		return nil, wrapAsFormatError("time signature", err)
	}
	if w.PublishedData.PublicationID == nil || w.PublishedData.PublicationID.Sign() < 0 ||
		w.PublishedData.PublicationID.Cmp(maxUint64) > 0 {
		return nil, newFormatError(KindBadStructure, "publicationId does not fit in a 64-bit unsigned integer")
	}
	imprint, _, err := hashalgo.ParseImprint(w.PublishedData.PublicationImprint)
	if err != nil {
		return nil, newFormatError(KindUnsupportedAlgo, err.Error())
	}
	return &TimeSignature{
		Location:           w.Location,
		History:            w.History,
		PublicationID:      w.PublishedData.PublicationID.Uint64(),
		PublicationImprint: imprint,
		Extended:           len(w.PkiSignature.Bytes) == 0,
	}, nil
}

func parseTSTInfo(der []byte) (*TSTInfo, error) {
	header, content, err := splitHeaderContent(der)
	if err != nil {
		return nil, wrapAsFormatError("TSTInfo", err)
	}
	cursor := cryptobyte.String(content)

	var verElem cryptobyte.String
	if !cursor.ReadASN1Element(&verElem, cbasn1.INTEGER) {
		return nil, wrapAsFormatError("TSTInfo version", fmt.Errorf("malformed INTEGER"))
	}
	var polElem cryptobyte.String
	if !cursor.ReadASN1Element(&polElem, cbasn1.OBJECT_IDENTIFIER) {
		return nil, wrapAsFormatError("TSTInfo policy", fmt.Errorf("malformed OBJECT IDENTIFIER"))
	}
	var miElem cryptobyte.String
	if !cursor.ReadASN1Element(&miElem, cbasn1.SEQUENCE) {
		return nil, wrapAsFormatError("TSTInfo messageImprint", fmt.Errorf("malformed SEQUENCE"))
	}

	miHeader, miContent, err := splitHeaderContent([]byte(miElem))
	if err != nil {
		return nil, wrapAsFormatError("TSTInfo messageImprint", err)
	}
	miCursor := cryptobyte.String(miContent)
	var algElem cryptobyte.String
	if !miCursor.ReadASN1Element(&algElem, cbasn1.SEQUENCE) {
		return nil, wrapAsFormatError("TSTInfo messageImprint hashAlgorithm", fmt.Errorf("malformed SEQUENCE"))
	}
	var hashedMsgElem cryptobyte.String
	if !miCursor.ReadASN1Element(&hashedMsgElem, cbasn1.OCTET_STRING) {
		return nil, wrapAsFormatError("TSTInfo messageImprint hashedMessage", fmt.Errorf("malformed OCTET STRING"))
	}
	hmHeader, hmContent, err := splitHeaderContent([]byte(hashedMsgElem))
	if err != nil {
		return nil, wrapAsFormatError("TSTInfo messageImprint hashedMessage", err)
	}

	var algID pkix.AlgorithmIdentifier
	if _, err := asn1.Unmarshal([]byte(algElem), &algID); err != nil {
		return nil, wrapAsFormatError("TSTInfo messageImprint hashAlgorithm", err)
	}
	digestAlgo, err := hashalgo.ByOID(algID.Algorithm)
	if err != nil {
		return nil, newFormatError(KindUnsupportedAlgo, err.Error())
	}
	if len(hmContent) != digestAlgo.Length {
		return nil, newFormatError(KindBadStructure,
			fmt.Sprintf("hashedMessage length %d does not match algorithm %s", len(hmContent), digestAlgo.Name))
	}

	var version int
	if _, err := asn1.Unmarshal([]byte(verElem), &version); err != nil {
		return nil, wrapAsFormatError("TSTInfo version", err)
	}
	var policy asn1.ObjectIdentifier
	if _, err := asn1.Unmarshal([]byte(polElem), &policy); err != nil {
		return nil, wrapAsFormatError("TSTInfo policy", err)
	}

	prefix := concat(header, []byte(verElem), []byte(polElem), miHeader, []byte(algElem), hmHeader)
	suffix := append([]byte(nil), []byte(cursor)...) // whatever DER remains after version, policy, messageImprint

	var tail struct {
		SerialNumber *big.Int
		GenTime      time.Time `asn1:"generalized"`
	}
	synthetic := append(derHeader(0x30, len(suffix)), suffix...)
	if _, err := asn1.Unmarshal(synthetic, &tail); err != nil {
		return nil, wrapAsFormatError("TSTInfo serialNumber/genTime", err)
	}

	return &TSTInfo{
		Version:        version,
		Policy:         policy,
		MessageImprint: hashalgo.Imprint{Algo: digestAlgo, Digest: append([]byte(nil), hmContent...)},
		SerialNumber:   tail.SerialNumber,
		GenTime:        tail.GenTime,
		TSTInfoPrefix:  prefix,
		TSTInfoSuffix:  suffix,
	}, nil
}

// captureSignedAttrs walks the content of SignerInfo's IMPLICIT [0] signed
// attributes SET — which spec.md §4.1 requires to be exactly
// { content-type, message-digest, ... } in that order — and returns the
// byte ranges bracketing the message-digest attribute's value.
func captureSignedAttrs(attrs []byte) (prefix, suffix, digest []byte, err error) {
	if len(attrs) == 0 {
		return nil, nil, nil, newFormatError(KindMissingAttribute, "SignerInfo has no signed attributes")
	}
	cursor := cryptobyte.String(attrs)

	var elem0 cryptobyte.String
	if !cursor.ReadASN1Element(&elem0, cbasn1.SEQUENCE) {
		return nil, nil, nil, wrapAsFormatError("signed attribute", fmt.Errorf("malformed SEQUENCE"))
	}
	if err := checkAttributeOID([]byte(elem0), OIDContentType); err != nil {
		return nil, nil, nil, newFormatError(KindMissingAttribute, "first signed attribute is not content-type: "+err.Error())
	}

	var elem1 cryptobyte.String
	if !cursor.ReadASN1Element(&elem1, cbasn1.SEQUENCE) {
		return nil, nil, nil, newFormatError(KindMissingAttribute, "message-digest signed attribute is missing")
	}

	attr1Header, attr1Content, err := splitHeaderContent([]byte(elem1))
	if err != nil {
		return nil, nil, nil, wrapAsFormatError("message-digest attribute", err)
	}
	attr1Cursor := cryptobyte.String(attr1Content)
	var oidElem, valuesElem cryptobyte.String
	if !attr1Cursor.ReadASN1Element(&oidElem, cbasn1.OBJECT_IDENTIFIER) ||
		!attr1Cursor.ReadASN1Element(&valuesElem, cbasn1.SET) {
		return nil, nil, nil, wrapAsFormatError("message-digest attribute", fmt.Errorf("malformed structure"))
	}
	var mdOID asn1.ObjectIdentifier
	if _, err := asn1.Unmarshal([]byte(oidElem), &mdOID); err != nil {
		return nil, nil, nil, wrapAsFormatError("message-digest attribute OID", err)
	}
	if !mdOID.Equal(OIDMessageDigest) {
		return nil, nil, nil, newFormatError(KindMissingAttribute, "second signed attribute is not message-digest")
	}

	valuesHeader, valuesContent, err := splitHeaderContent([]byte(valuesElem))
	if err != nil {
		return nil, nil, nil, wrapAsFormatError("message-digest attribute values", err)
	}
	valuesCursor := cryptobyte.String(valuesContent)
	var digestElem cryptobyte.String
	if !valuesCursor.ReadASN1Element(&digestElem, cbasn1.OCTET_STRING) {
		return nil, nil, nil, wrapAsFormatError("message-digest attribute value", fmt.Errorf("malformed OCTET STRING"))
	}
	if !valuesCursor.Empty() {
		return nil, nil, nil, newFormatError(KindMultiValuedAttr, "message-digest attribute has more than one value")
	}
	digestHeader, digestContent, err := splitHeaderContent([]byte(digestElem))
	if err != nil {
		return nil, nil, nil, wrapAsFormatError("message-digest attribute value", err)
	}

	setHeader := derHeader(0x31, len(attrs))
	prefix = concat(setHeader, []byte(elem0), attr1Header, []byte(oidElem), valuesHeader, digestHeader)
	suffix = append([]byte(nil), []byte(cursor)...)
	digest = append([]byte(nil), digestContent...)
	return prefix, suffix, digest, nil
}

func checkAttributeOID(attrElem []byte, want asn1.ObjectIdentifier) error {
	_, content, err := splitHeaderContent(attrElem)
	if err != nil {
		return err
	}
	c := cryptobyte.String(content)
	var oidElem cryptobyte.String
	if !c.ReadASN1Element(&oidElem, cbasn1.OBJECT_IDENTIFIER) {
		return fmt.Errorf("malformed OBJECT IDENTIFIER")
	}
	var got asn1.ObjectIdentifier
	if _, err := asn1.Unmarshal([]byte(oidElem), &got); err != nil {
		return err
	}
	if !got.Equal(want) {
		return fmt.Errorf("unexpected attribute OID %s", got.String())
	}
	return nil
}

// splitHeaderContent splits a single, already-extracted DER TLV element
// (as produced by cryptobyte's ReadASN1Element, which returns the full
// tag+length+content bytes) into its header and content. It never
// re-derives or re-encodes a length — only slices bytes already present
// in elem — so the header returned is always byte-identical to the
// original wire encoding.
func splitHeaderContent(elem []byte) (header, content []byte, err error) {
	if len(elem) < 2 {
		return nil, nil, fmt.Errorf("truncated element")
	}
	lenByte := elem[1]
	off := 2
	var length int
	if lenByte&0x80 == 0 {
		length = int(lenByte)
	} else {
		n := int(lenByte & 0x7f)
		if n == 0 || n > 4 || len(elem) < 2+n {
			return nil, nil, fmt.Errorf("unsupported or truncated long-form length")
		}
		for i := 0; i < n; i++ {
			length = length<<8 | int(elem[2+i])
		}
		off = 2 + n
	}
	if len(elem) != off+length {
		return nil, nil, fmt.Errorf("length mismatch: header declares %d, have %d", length, len(elem)-off)
	}
	return elem[:off], elem[off:], nil
}

// derHeader synthesizes a DER tag+length header for length bytes of
// content. It is used in two places, neither of which rebuilds a header
// that already exists verbatim in the input: re-tagging the
// signed-attributes IMPLICIT [0] SET as a UNIVERSAL SET (tag 0x31) per CMS
// digest-computation convention, and wrapping TSTInfo's trailing fields in
// a SEQUENCE so they can be decoded.
func derHeader(tag byte, length int) []byte {
	if length < 0x80 {
		return []byte{tag, byte(length)}
	}
	var lb []byte
	for n := length; n > 0; n >>= 8 {
		lb = append([]byte{byte(n & 0xff)}, lb...)
	}
	return append([]byte{tag, 0x80 | byte(len(lb))}, lb...)
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
