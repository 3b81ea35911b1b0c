// Package jpegx decodes baseline, extended (8 and 12-bit, Huffman and
// arithmetic coded) and lossless JPEG images.
//
// Progressive frames are parsed and validated but not decoded; the io.Reader
// entry points hand such streams, like every other unsupported feature, to
// the standard library decoder.
package jpegx

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"log/slog"
	"sync"
)

// Options specifies decoding parameters. A nil *Options selects the defaults.
type Options struct {
	// Format is the requested output format. FormatGray on a color image
	// returns its luma, FormatRGB on a grayscale image replicates it. The
	// 8 or 16-bit variant always follows the coded precision. It does not
	// change how the stream is decoded.
	Format PixelFormat
	// UpsampleMethod defines the algorithm used for chroma upsampling.
	UpsampleMethod UpsampleMethod
	// AutoRotate enables automatic image rotation based on the EXIF orientation tag.
	AutoRotate bool
	// Scalar forces the scalar IDCT even where the lane-parallel one is available.
	Scalar bool
	// Logger receives warnings about recoverable problems in the stream.
	// A nil Logger discards them.
	Logger *slog.Logger
}

var discardLogger = slog.New(slog.DiscardHandler)

// A reasonable upper limit for the size of JPEG headers.
// Most headers are well under this size (64KB).
const maxHeaderSize = 65536

// A pool for header-sized buffers to reduce allocations in DecodeConfig.
var headerBufferPool = sync.Pool{
	New: func() any {
		b := make([]byte, maxHeaderSize)

		return &b
	},
}

// decoderPool is a pool of decoder structs to reduce allocation overhead.
var decoderPool = sync.Pool{
	New: func() any {
		return newDecoder()
	},
}

// Interface to check if a reader knows its remaining length.
type readerWithLen interface {
	Len() int
}

// readAllData reads data from r, pre-allocating if the size is known.
func readAllData(r io.Reader) ([]byte, error) {
	if rl, ok := r.(readerWithLen); ok {
		if size := rl.Len(); size > 0 {
			data := make([]byte, size)
			if _, err := io.ReadFull(r, data); err != nil {
				return nil, fmt.Errorf("failed to read image data: %w", err)
			}

			return data, nil
		}
	}

	return io.ReadAll(r)
}

// DecodeBytes decodes a complete JPEG stream held in memory. The returned
// image is only produced by a fully successful decode; on error it is nil.
// Errors wrap ErrSyntax, ErrCorrupt, ErrUnsupported or ErrInternal.
func DecodeBytes(data []byte, opts ...*Options) (*Image, error) {
	d := decoderPool.Get().(*decoder)
	defer func() {
		d.reset()
		decoderPool.Put(d)
	}()

	if len(opts) > 0 {
		d.configure(opts[0])
	}

	return d.decode(data, false)
}

// Decode reads a JPEG image from r and returns it as an [image.Image].
// It accepts an optional Options struct to control decoding parameters.
// If the stream uses a feature this package does not decode (e.g., progressive, or CMYK),
// it falls back to the standard library's decoder.
func Decode(r io.Reader, opts ...*Options) (image.Image, error) {
	data, err := readAllData(r)
	if err != nil {
		return nil, err
	}

	img, err := DecodeBytes(data, opts...)
	if err != nil {
		if errors.Is(err, ErrUnsupported) {
			// Note: The standard library's jpeg.Decode does not auto-rotate based on EXIF.
			return jpeg.Decode(bytes.NewReader(data))
		}

		return nil, err
	}

	return img.Image(), nil
}

// DecodeConfig returns the color model and dimensions of a JPEG image without decoding the entire image data.
// The dimensions returned are as stored in the file (SOF marker), ignoring any EXIF orientation tags.
func DecodeConfig(r io.Reader) (image.Config, error) {
	bufPtr := headerBufferPool.Get().(*[]byte)
	defer headerBufferPool.Put(bufPtr)
	headerData := *bufPtr

	// Read the start of the file into the pooled buffer. We expect an
	// io.ErrUnexpectedEOF if the file is smaller than our buffer, which is normal.
	n, err := io.ReadFull(r, headerData)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return image.Config{}, err
	}

	d := decoderPool.Get().(*decoder)
	defer func() {
		d.reset()
		decoderPool.Put(d)
	}()

	if _, err := d.decode(headerData[:n], true); err != nil {
		if errors.Is(err, ErrUnsupported) {
			// The standard library's decoder needs the full stream.
			return jpeg.DecodeConfig(io.MultiReader(bytes.NewReader(headerData[:n]), r))
		}

		return image.Config{}, err
	}

	f := d.frame

	var cm color.Model
	switch len(f.comps) {
	case 1:
		cm = color.GrayModel
		if f.precision > 8 {
			cm = color.Gray16Model
		}
	case 3:
		cm = color.RGBAModel
		if f.precision > 8 {
			cm = color.RGBA64Model
		}
	default:
		// Decode hands these frames to the standard library, so report what it reports.
		return jpeg.DecodeConfig(io.MultiReader(bytes.NewReader(headerData[:n]), r))
	}

	return image.Config{
		ColorModel: cm,
		Width:      f.samples,
		Height:     f.lines,
	}, nil
}

// init registers the JPEG format with the standard library's image package.
func init() {
	decodeWrapper := func(r io.Reader) (image.Image, error) {
		return Decode(r)
	}

	image.RegisterFormat("jpeg", "\xff\xd8", decodeWrapper, DecodeConfig)
}
