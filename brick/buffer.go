package brick

import "errors"

// ErrBufferSize is returned when a buffer's data length does not match its
// declared dimensions.
var ErrBufferSize = errors.New("brick: buffer length does not match dimensions")

// Buffer is an in-core voxel buffer owned by a volume. Voxels are stored
// x-fastest, then y, then z.
type Buffer struct {
	Data          []byte
	Nx, Ny, Nz    int
	BytesPerVoxel int
}

// NewBuffer allocates a zeroed buffer.
func NewBuffer(nx, ny, nz, bytesPerVoxel int) *Buffer {
	return &Buffer{
		Data:          make([]byte, nx*ny*nz*bytesPerVoxel),
		Nx:            nx,
		Ny:            ny,
		Nz:            nz,
		BytesPerVoxel: bytesPerVoxel,
	}
}

// Len returns the expected data length in bytes.
func (b *Buffer) Len() int {
	return b.Nx * b.Ny * b.Nz * b.BytesPerVoxel
}

// Validate checks that Data matches the dimensions.
func (b *Buffer) Validate() error {
	if b == nil || len(b.Data) != b.Len() {
		return ErrBufferSize
	}
	return nil
}

// Shape is the voxel extent and width of a brick's data.
type Shape struct {
	Nx, Ny, Nz    int
	BytesPerVoxel int
}

// Bytes returns the tightly packed size of the shape.
func (s Shape) Bytes() int {
	return s.Nx * s.Ny * s.Nz * s.BytesPerVoxel
}

// Region is a borrowed view of a brick's voxels. Data starts at the brick's
// first voxel; rows and images may be strided when the region points into a
// larger parent buffer. A Region is only valid while its owner is alive.
type Region struct {
	Data          []byte
	Nx, Ny, Nz    int
	BytesPerVoxel int
	BytesPerRow   int
	RowsPerImage  int
}

// Shape returns the region's extent.
func (r Region) Shape() Shape {
	return Shape{Nx: r.Nx, Ny: r.Ny, Nz: r.Nz, BytesPerVoxel: r.BytesPerVoxel}
}

// Bytes returns the tightly packed size of the region.
func (r Region) Bytes() int {
	return r.Shape().Bytes()
}

// Tight reports whether the region is stored without row or image padding.
func (r Region) Tight() bool {
	return r.BytesPerRow == r.Nx*r.BytesPerVoxel && r.RowsPerImage == r.Ny
}

// Row returns the bytes of row y in image z.
func (r Region) Row(y, z int) []byte {
	off := (z*r.RowsPerImage+y)*r.BytesPerRow
	return r.Data[off : off+r.Nx*r.BytesPerVoxel]
}

// Pack copies the region into a new tightly packed slice.
func (r Region) Pack() []byte {
	if r.Tight() {
		out := make([]byte, r.Bytes())
		copy(out, r.Data)
		return out
	}
	out := make([]byte, 0, r.Bytes())
	for z := 0; z < r.Nz; z++ {
		for y := 0; y < r.Ny; y++ {
			out = append(out, r.Row(y, z)...)
		}
	}
	return out
}

// minLen returns the minimum Data length the region addresses.
func (r Region) minLen() int {
	if r.Nx == 0 || r.Ny == 0 || r.Nz == 0 {
		return 0
	}
	return ((r.Nz-1)*r.RowsPerImage+(r.Ny-1))*r.BytesPerRow + r.Nx*r.BytesPerVoxel
}

// Valid reports whether Data is long enough for the region's strides.
func (r Region) Valid() bool {
	return r.Nx > 0 && r.Ny > 0 && r.Nz > 0 && len(r.Data) >= r.minLen()
}

// AllZero reports whether every voxel byte in the region is zero.
func (r Region) AllZero() bool {
	for z := 0; z < r.Nz; z++ {
		for y := 0; y < r.Ny; y++ {
			for _, v := range r.Row(y, z) {
				if v != 0 {
					return false
				}
			}
		}
	}
	return true
}
