package loader

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"golang.org/x/image/tiff"

	"github.com/gogpu/volstream/brick"
)

func encodeJPEG(t *testing.T, w, h int, v uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 100}); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDecodeRaw(t *testing.T) {
	shape := brick.Shape{Nx: 2, Ny: 2, Nz: 2, BytesPerVoxel: 2}
	data := make([]byte, 20)
	out, err := Decode(CodecRaw, data, shape)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 16 || cap(out) != 16 {
		t.Errorf("len/cap = %d/%d, want 16/16", len(out), cap(out))
	}

	if _, err := Decode(CodecRaw, data[:15], shape); !errors.Is(err, ErrShortData) {
		t.Errorf("short raw error = %v, want ErrShortData", err)
	}
}

func TestDecodeJPEG(t *testing.T) {
	shape := brick.Shape{Nx: 8, Ny: 4, Nz: 2, BytesPerVoxel: 1}
	data := encodeJPEG(t, 8, 8, 128)

	out, err := Decode(CodecJPEG, data, shape)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(out) != shape.Bytes() {
		t.Fatalf("len = %d, want %d", len(out), shape.Bytes())
	}
	for i, v := range out {
		if v < 126 || v > 130 {
			t.Fatalf("voxel %d = %d, want ~128", i, v)
		}
	}

	tests := []struct {
		name  string
		shape brick.Shape
		want  error
	}{
		{"too few rows", brick.Shape{Nx: 8, Ny: 4, Nz: 3, BytesPerVoxel: 1}, ErrShortData},
		{"wrong width", brick.Shape{Nx: 8, Ny: 4, Nz: 2, BytesPerVoxel: 2}, ErrCodecFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(CodecJPEG, data, tt.shape); !errors.Is(err, tt.want) {
				t.Errorf("Decode() error = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := Decode(CodecJPEG, []byte("not a jpeg"), shape); err == nil {
		t.Error("garbage jpeg should fail")
	}
}

func TestDecodeTIFF16(t *testing.T) {
	img := image.NewGray16(image.Rect(0, 0, 3, 4))
	for i := 0; i < 12; i++ {
		img.SetGray16(i%3, i/3, color.Gray16{Y: uint16(0x0100 + i)})
	}
	var buf bytes.Buffer
	if err := tiff.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}

	shape := brick.Shape{Nx: 3, Ny: 2, Nz: 2, BytesPerVoxel: 2}
	out, err := Decode(CodecAuto, buf.Bytes(), shape)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	for i := 0; i < 12; i++ {
		got := uint16(out[2*i]) | uint16(out[2*i+1])<<8
		if want := uint16(0x0100 + i); got != want {
			t.Errorf("voxel %d = %#x, want %#x", i, got, want)
		}
	}
}

func TestSniff(t *testing.T) {
	var tif bytes.Buffer
	if err := tiff.Encode(&tif, image.NewGray(image.Rect(0, 0, 1, 1)), nil); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		data []byte
		want Codec
	}{
		{"jpeg", encodeJPEG(t, 8, 8, 0), CodecJPEG},
		{"tiff", tif.Bytes(), CodecTIFF},
		{"raw", make([]byte, 64), CodecRaw},
	}
	for _, tt := range tests {
		if got := Sniff(tt.data); got != tt.want {
			t.Errorf("Sniff(%s) = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestParseCodec(t *testing.T) {
	for _, s := range []string{"raw", "jpeg", "jpg", "tiff", "auto"} {
		if _, err := ParseCodec(s); err != nil {
			t.Errorf("ParseCodec(%q) error = %v", s, err)
		}
	}
	if _, err := ParseCodec("png"); !errors.Is(err, ErrUnknownCodec) {
		t.Errorf("ParseCodec(png) error = %v, want ErrUnknownCodec", err)
	}
}
