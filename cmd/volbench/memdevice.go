package main

import (
	"github.com/gogpu/volstream/brick"
	"github.com/gogpu/volstream/pool"
)

// memTexture holds a brick's packed texels in main memory.
type memTexture struct {
	desc pool.TextureDesc
	data []byte
}

func (t *memTexture) Desc() pool.TextureDesc { return t.desc }

// memDevice is a pool.Device that keeps textures in main memory.
type memDevice struct{}

func newMemDevice() *memDevice { return &memDevice{} }

func (*memDevice) CreateTexture(desc pool.TextureDesc) (pool.Texture, error) {
	return &memTexture{desc: desc}, nil
}

func (*memDevice) WriteTexture(t pool.Texture, r brick.Region) error {
	if mt, ok := t.(*memTexture); ok {
		mt.data = r.Pack()
	}
	return nil
}

func (*memDevice) DestroyTexture(t pool.Texture) {
	if mt, ok := t.(*memTexture); ok {
		mt.data = nil
	}
}
