package loader

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/h2non/filetype"
	"golang.org/x/image/tiff"

	"github.com/gogpu/volstream/brick"
)

// Codec errors.
var (
	// ErrUnknownCodec is returned for a codec tag the loader does not know.
	ErrUnknownCodec = errors.New("loader: unknown codec")

	// ErrCodecFormat is returned when a decoded image does not match the
	// brick's layout or byte width.
	ErrCodecFormat = errors.New("loader: decoded image does not match brick")

	// ErrShortData is returned when a payload holds fewer voxels than the
	// brick requires.
	ErrShortData = errors.New("loader: payload shorter than brick")
)

// Codec tags the encoding of a brick payload.
type Codec uint8

const (
	// CodecRaw is uncompressed voxels, x-fastest, little-endian.
	CodecRaw Codec = iota
	// CodecJPEG is a single-channel JPEG of nx × (ny*nz) pixels.
	CodecJPEG
	// CodecTIFF is a grayscale TIFF of nx × (ny*nz) pixels, 8 or 16 bit.
	CodecTIFF
	// CodecAuto detects JPEG and TIFF by magic bytes and falls back to raw.
	CodecAuto
)

// String returns the codec name.
func (c Codec) String() string {
	switch c {
	case CodecRaw:
		return "raw"
	case CodecJPEG:
		return "jpeg"
	case CodecTIFF:
		return "tiff"
	case CodecAuto:
		return "auto"
	default:
		return fmt.Sprintf("Codec(%d)", c)
	}
}

// ParseCodec parses a codec name.
func ParseCodec(s string) (Codec, error) {
	switch s {
	case "raw", "":
		return CodecRaw, nil
	case "jpeg", "jpg":
		return CodecJPEG, nil
	case "tiff", "tif":
		return CodecTIFF, nil
	case "auto":
		return CodecAuto, nil
	default:
		return CodecRaw, fmt.Errorf("%w: %q", ErrUnknownCodec, s)
	}
}

// Decode decodes a payload into exactly shape.Bytes() voxel bytes.
func Decode(c Codec, data []byte, shape brick.Shape) ([]byte, error) {
	if c == CodecAuto {
		c = Sniff(data)
	}
	switch c {
	case CodecRaw:
		return decodeRaw(data, shape)
	case CodecJPEG:
		return decodeJPEG(data, shape)
	case CodecTIFF:
		return decodeTIFF(data, shape)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCodec, c)
	}
}

// Sniff returns the codec a payload is encoded with.
func Sniff(data []byte) Codec {
	switch {
	case filetype.Is(data, "jpg"):
		return CodecJPEG
	case filetype.Is(data, "tif"):
		return CodecTIFF
	default:
		return CodecRaw
	}
}

func decodeRaw(data []byte, shape brick.Shape) ([]byte, error) {
	want := shape.Bytes()
	if len(data) < want {
		return nil, fmt.Errorf("%w: %d of %d bytes", ErrShortData, len(data), want)
	}
	return data[:want:want], nil
}

func decodeJPEG(data []byte, shape brick.Shape) ([]byte, error) {
	if shape.BytesPerVoxel != 1 {
		return nil, fmt.Errorf("%w: jpeg needs 1 byte per voxel, brick has %d", ErrCodecFormat, shape.BytesPerVoxel)
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("loader: jpeg: %w", err)
	}
	gray, ok := img.(*image.Gray)
	if !ok {
		return nil, fmt.Errorf("%w: jpeg is %T, not grayscale", ErrCodecFormat, img)
	}
	return unstack(gray.Pix, gray.Stride, gray.Rect, shape, 1)
}

func decodeTIFF(data []byte, shape brick.Shape) ([]byte, error) {
	img, err := tiff.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("loader: tiff: %w", err)
	}
	switch m := img.(type) {
	case *image.Gray:
		if shape.BytesPerVoxel != 1 {
			return nil, fmt.Errorf("%w: 8-bit tiff for %d-byte voxels", ErrCodecFormat, shape.BytesPerVoxel)
		}
		return unstack(m.Pix, m.Stride, m.Rect, shape, 1)
	case *image.Gray16:
		if shape.BytesPerVoxel != 2 {
			return nil, fmt.Errorf("%w: 16-bit tiff for %d-byte voxels", ErrCodecFormat, shape.BytesPerVoxel)
		}
		out, err := unstack(m.Pix, m.Stride, m.Rect, shape, 2)
		if err != nil {
			return nil, err
		}
		// image.Gray16 is big-endian; voxels are little-endian.
		for i := 0; i+1 < len(out); i += 2 {
			out[i], out[i+1] = out[i+1], out[i]
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: tiff is %T, not grayscale", ErrCodecFormat, img)
	}
}

// unstack copies an image of nx × (ny*nz) pixels into a tight voxel slice.
// Images wider than nx are cropped; fewer rows than ny*nz is a short read.
func unstack(pix []byte, stride int, rect image.Rectangle, shape brick.Shape, bpp int) ([]byte, error) {
	rows := shape.Ny * shape.Nz
	if rect.Dx() < shape.Nx || rect.Dy() < rows {
		return nil, fmt.Errorf("%w: image %dx%d for brick %dx%dx%d",
			ErrShortData, rect.Dx(), rect.Dy(), shape.Nx, shape.Ny, shape.Nz)
	}
	rowBytes := shape.Nx * bpp
	out := make([]byte, rows*rowBytes)
	for y := 0; y < rows; y++ {
		copy(out[y*rowBytes:(y+1)*rowBytes], pix[y*stride:y*stride+rowBytes])
	}
	return out, nil
}
