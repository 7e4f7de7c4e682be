package pool

import "github.com/gogpu/volstream/brick"

// TextureDesc describes a 3-D brick texture.
type TextureDesc struct {
	Label                string
	Width, Height, Depth int
	Format               Format
}

// Bytes returns the texture's memory footprint.
func (d TextureDesc) Bytes() int64 {
	return int64(d.Width) * int64(d.Height) * int64(d.Depth) * int64(d.Format.BytesPerTexel())
}

// Texture is a device texture handle owned by the pool.
type Texture interface {
	Desc() TextureDesc
}

// Device creates, fills and destroys brick textures. Implementations are
// called with the pool lock held and must not call back into the pool.
type Device interface {
	CreateTexture(desc TextureDesc) (Texture, error)
	WriteTexture(tex Texture, data brick.Region) error
	DestroyTexture(tex Texture)
}
