package jpegx

import (
	"errors"
	"fmt"
)

// Error classes. Every error returned by the decoder wraps exactly one of these,
// so callers can tell a broken file from a feature this decoder lacks.
var (
	// ErrSyntax reports a structurally invalid stream: bad markers, truncated or
	// malformed segments, illegal table or scan settings.
	ErrSyntax = errors.New("syntax error")
	// ErrCorrupt reports damaged entropy-coded data.
	ErrCorrupt = errors.New("corrupt entropy-coded data")
	// ErrUnsupported reports a valid stream using a feature this decoder does not implement.
	ErrUnsupported = errors.New("unsupported format")
	// ErrInternal reports a decoder invariant violation.
	ErrInternal = errors.New("internal error")
)

// Structural errors.
var (
	ErrDataTooSmall                  = fmt.Errorf("data too small: %w", ErrSyntax)
	ErrNoSOIMarker                   = fmt.Errorf("not a JPEG file: missing SOI marker: %w", ErrSyntax)
	ErrBadSegmentLength              = fmt.Errorf("bad segment length: %w", ErrSyntax)
	ErrDuplicateComponent            = fmt.Errorf("duplicate component id: %w", ErrSyntax)
	ErrHuffmanTableNotInstalled      = fmt.Errorf("huffman table not installed: %w", ErrSyntax)
	ErrQuantizationTableNotInstalled = fmt.Errorf("quantization table not installed: %w", ErrSyntax)
	ErrBaselineBitDepth              = fmt.Errorf("baseline frame requires 8-bit samples: %w", ErrSyntax)
	ErrExtendedBitDepth              = fmt.Errorf("extended sequential frame requires 8 or 12-bit samples: %w", ErrSyntax)
	ErrProgressiveBitDepth           = fmt.Errorf("progressive frame requires 8 or 12-bit samples: %w", ErrSyntax)
	ErrLosslessBitDepth              = fmt.Errorf("lossless frame requires 2 to 16-bit samples: %w", ErrSyntax)
	ErrBadDNL                        = fmt.Errorf("missing or invalid DNL segment: %w", ErrSyntax)
)

// Stream corruption errors.
var (
	ErrUnexpectedEnd      = fmt.Errorf("unexpected end of entropy-coded data: %w", ErrCorrupt)
	ErrBadHuffmanCode     = fmt.Errorf("invalid huffman code: %w", ErrCorrupt)
	ErrArithmeticRenorm   = fmt.Errorf("arithmetic decoder renormalization overflow: %w", ErrCorrupt)
	ErrArithmeticOverflow = fmt.Errorf("arithmetic decoder magnitude overflow: %w", ErrCorrupt)
)

// Unsupported feature errors.
var (
	ErrProgressiveDecode  = fmt.Errorf("progressive pixel decode: %w", ErrUnsupported)
	ErrArithmeticLossless = fmt.Errorf("arithmetic-coded lossless: %w", ErrUnsupported)
	ErrHierarchical       = fmt.Errorf("hierarchical (differential) frames: %w", ErrUnsupported)
	ErrColorTransform     = fmt.Errorf("color transform for this component count: %w", ErrUnsupported)
	ErrEmbeddedThumbnail  = fmt.Errorf("embedded JPEG thumbnail: %w", ErrUnsupported)
)

// errDecode is used for internal panics during the hot decoding path.
type errDecode struct{ error }

// syntaxf returns a structural error with context.
func syntaxf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrSyntax)
}

// unsupportedf returns an unsupported-feature error with context.
func unsupportedf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrUnsupported)
}
