// Package convert is the thin driver of spec.md §2 step 5: parameter
// validation and wiring of der → hashchain → assemble into one call. This
// is the package an external KSI SDK (out of scope per spec.md §1) would
// import to turn a legacy timestamp token into a keyless signature TLV.
package convert

import (
	"io"

	"github.com/rs/zerolog"

	"dfi/tsconv/assemble"
	"dfi/tsconv/der"
)

// ArgumentError reports a null or structurally invalid caller argument,
// per spec.md §7 — distinct from the der/hashchain FormatError taxonomy,
// which reports rejections of the input bytes themselves.
type ArgumentError struct {
	Message string
}

func (e *ArgumentError) Error() string { return e.Message }

// Options controls Convert's optional ambient behavior. The core
// (der/hashchain/tlv/assemble) never logs — per spec.md §6 "emits no
// logs" — so this is the one place a caller can observe progress.
type Options struct {
	// Logger receives debug/info/error events for one Convert call. Nil
	// (the default) disables logging entirely.
	Logger *zerolog.Logger
}

// Convert reads a legacy DER-encoded ContentInfo from r and returns the
// assembled keyless-signature TLV tree, or the first FormatError, IoError
// or ArgumentError encountered. Errors from der and assemble propagate
// unchanged, per spec.md §7 — Convert never rewraps them.
func Convert(r io.Reader, opts *Options) (*assemble.Result, error) {
	if r == nil {
		return nil, &ArgumentError{Message: "input stream must not be nil"}
	}

	log := zerolog.Nop()
	if opts != nil && opts.Logger != nil {
		log = *opts.Logger
	}

	log.Debug().Msg("parsing legacy timestamp token")
	ci, err := der.Parse(r)
	if err != nil {
		log.Error().Err(err).Msg("legacy timestamp token rejected")
		return nil, err
	}

	log.Debug().Msg("assembling keyless signature")
	result, err := assemble.Assemble(ci)
	if err != nil {
		log.Error().Err(err).Msg("signature assembly failed")
		return nil, err
	}

	log.Info().
		Str("output_hash_algo", result.OutputHash.Algo.Name).
		Uint64("registration_time", result.RegTime).
		Msg("conversion complete")
	return result, nil
}
