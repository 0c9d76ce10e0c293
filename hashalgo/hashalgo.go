// Package hashalgo holds the fixed, immutable table of hash algorithms the
// legacy timestamp format is allowed to reference: their dotted OIDs, their
// vendor-specific numeric ids ("GTID" in the wire format) and their digest
// lengths.
package hashalgo

import (
	"crypto/sha1"  //nolint:gosec // SHA-1 imprints are part of the legacy wire format, not used for new signatures
	"crypto/sha256"
	"crypto/sha512"
	"encoding/asn1"
	"fmt"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // legacy format requires RIPEMD-160 imprints
)

// MaxDigestLength is the largest digest length any supported algorithm produces.
const MaxDigestLength = 64

// HashAlgo describes one supported hash algorithm: its name, its OID, its
// vendor numeric id (GTID) and its digest length in bytes.
type HashAlgo struct {
	Name   string
	OID    asn1.ObjectIdentifier
	GTID   byte
	Length int
}

func mustOID(parts ...int) asn1.ObjectIdentifier {
	return asn1.ObjectIdentifier(parts)
}

// The fixed, ordered set of supported algorithms. GTID values 0..5 are
// assigned by the legacy wire format and must not be renumbered.
var (
	SHA1      = HashAlgo{Name: "SHA-1", OID: mustOID(1, 3, 14, 3, 2, 26), GTID: 0, Length: 20}
	SHA256    = HashAlgo{Name: "SHA-256", OID: mustOID(2, 16, 840, 1, 101, 3, 4, 2, 1), GTID: 1, Length: 32}
	RIPEMD160 = HashAlgo{Name: "RIPEMD-160", OID: mustOID(1, 3, 36, 3, 2, 1), GTID: 2, Length: 20}
	SHA224    = HashAlgo{Name: "SHA-224", OID: mustOID(2, 16, 840, 1, 101, 3, 4, 2, 4), GTID: 3, Length: 28}
	SHA384    = HashAlgo{Name: "SHA-384", OID: mustOID(2, 16, 840, 1, 101, 3, 4, 2, 2), GTID: 4, Length: 48}
	SHA512    = HashAlgo{Name: "SHA-512", OID: mustOID(2, 16, 840, 1, 101, 3, 4, 2, 3), GTID: 5, Length: 64}
)

var all = []HashAlgo{SHA1, SHA256, RIPEMD160, SHA224, SHA384, SHA512}

var (
	byOID  = make(map[string]HashAlgo, len(all))
	byGTID = make(map[byte]HashAlgo, len(all))
)

func init() {
	for _, a := range all {
		byOID[a.OID.String()] = a
		byGTID[a.GTID] = a
	}
}

// ArgumentError is returned for registry lookups against unsupported
// algorithms, per §7 of the spec ("unsupported-algorithm cases surface as
// ArgumentError from the registry").
type ArgumentError struct {
	Kind  string
	Value string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("unsupported algorithm %s: %s", e.Kind, e.Value)
}

// ByOID looks up an algorithm by its dotted OID.
func ByOID(oid asn1.ObjectIdentifier) (HashAlgo, error) {
	a, ok := byOID[oid.String()]
	if !ok {
		return HashAlgo{}, &ArgumentError{Kind: "OID", Value: oid.String()}
	}
	return a, nil
}

// ByGTID looks up an algorithm by its vendor numeric id.
func ByGTID(gtid byte) (HashAlgo, error) {
	a, ok := byGTID[gtid]
	if !ok {
		return HashAlgo{}, &ArgumentError{Kind: "GTID", Value: fmt.Sprintf("%d", gtid)}
	}
	return a, nil
}

// Hash computes the digest of data using a, returning it wrapped as an Imprint.
func (a HashAlgo) Hash(data []byte) Imprint {
	var digest []byte
	switch a.GTID {
	case SHA1.GTID:
		sum := sha1.Sum(data) //nolint:gosec
		digest = sum[:]
	case SHA256.GTID:
		sum := sha256.Sum256(data)
		digest = sum[:]
	case RIPEMD160.GTID:
		h := ripemd160.New() //nolint:staticcheck
		h.Write(data)         //nolint:errcheck // hash.Hash.Write never fails
		digest = h.Sum(nil)
	case SHA224.GTID:
		sum := sha256.Sum224(data)
		digest = sum[:]
	case SHA384.GTID:
		sum := sha512.Sum384(data)
		digest = sum[:]
	case SHA512.GTID:
		sum := sha512.Sum512(data)
		digest = sum[:]
	default:
		panic(fmt.Sprintf("hashalgo: unreachable GTID %d", a.GTID))
	}
	return Imprint{Algo: a, Digest: digest}
}

// Imprint is a (HashAlgo, digest) pair. Its wire form is one algorithm-id
// byte followed by Algo.Length digest bytes.
type Imprint struct {
	Algo   HashAlgo
	Digest []byte
}

// Bytes returns the wire form of the imprint: GTID byte followed by the
// digest. The returned slice is a fresh copy — callers may mutate it freely.
func (im Imprint) Bytes() []byte {
	out := make([]byte, 1+len(im.Digest))
	out[0] = im.Algo.GTID
	copy(out[1:], im.Digest)
	return out
}

// ParseImprint reads a GTID byte followed by that algorithm's digest length
// from b, returning the Imprint and the number of bytes consumed.
func ParseImprint(b []byte) (Imprint, int, error) {
	if len(b) < 1 {
		return Imprint{}, 0, fmt.Errorf("imprint: empty input")
	}
	a, err := ByGTID(b[0])
	if err != nil {
		return Imprint{}, 0, err
	}
	if len(b) < 1+a.Length {
		return Imprint{}, 0, fmt.Errorf("imprint: not enough data for algorithm %s: need %d, have %d", a.Name, a.Length, len(b)-1)
	}
	digest := make([]byte, a.Length)
	copy(digest, b[1:1+a.Length])
	return Imprint{Algo: a, Digest: digest}, 1 + a.Length, nil
}
