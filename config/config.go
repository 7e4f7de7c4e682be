// Package config loads and validates volume streaming settings.
//
// Settings are stored as YAML. A missing file yields [Default]; unknown keys
// are ignored and absent keys keep their default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned by Validate for out-of-range settings.
var ErrInvalid = errors.New("config: invalid settings")

// Memory configures the GPU brick pool and the main-memory brick cache.
type Memory struct {
	// UseLimit selects a fixed LimitMB budget; otherwise the budget is
	// derived from free device memory.
	UseLimit bool `yaml:"useLimit"`

	LimitMB int `yaml:"limitMB"`

	// AutoFraction is the share of free device memory used in auto mode.
	AutoFraction float64 `yaml:"autoFraction"`

	// RefreshInterval is the minimum time between device memory queries.
	RefreshInterval time.Duration `yaml:"refreshInterval"`

	// MainMemory enables a separate budget for decoded bricks in host memory.
	MainMemory        bool `yaml:"mainMemory"`
	MainMemoryLimitMB int  `yaml:"mainMemoryLimitMB"`
}

// Render configures brick building and the frame scheduler.
type Render struct {
	// LargeDataMB is the size below which an in-core volume is drawn in a
	// single frame.
	LargeDataMB int `yaml:"largeDataMB"`

	// BrickSize forces the brick edge length when > 0.
	BrickSize      int `yaml:"brickSize"`
	MaxTextureSize int `yaml:"maxTextureSize"`

	// ResponseTime is the per-frame time budget.
	ResponseTime time.Duration `yaml:"responseTime"`

	// UpdateOrder is "ascending" (front to back) or "descending".
	UpdateOrder string `yaml:"updateOrder"`

	// SliceDistance is the slice spacing in units of the smallest voxel.
	SliceDistance float64 `yaml:"sliceDistance"`

	MaskUndoDepth int `yaml:"maskUndoDepth"`
}

// Levels holds the pyramid level selection constants.
type Levels struct {
	// PixelsPerVoxel is the largest on-screen voxel size, in pixels, a level
	// may have before a finer level is selected.
	PixelsPerVoxel float64 `yaml:"pixelsPerVoxel"`

	// DPIScale multiplies PixelsPerVoxel on high density displays.
	DPIScale float64 `yaml:"dpiScale"`

	// InteractiveMultiplier relaxes the threshold while the camera moves.
	InteractiveMultiplier float64 `yaml:"interactiveMultiplier"`
}

// Threshold returns the effective voxel size threshold in pixels.
func (l Levels) Threshold(interactive bool) float64 {
	t := l.PixelsPerVoxel * l.DPIScale
	if interactive {
		t *= l.InteractiveMultiplier
	}
	return t
}

// Network configures remote brick transfers.
type Network struct {
	// CacheDir holds downloaded bricks. A leading ~ is expanded. Empty
	// disables the disk cache.
	CacheDir     string        `yaml:"cacheDir"`
	MaxTransfers int           `yaml:"maxTransfers"`
	Timeout      time.Duration `yaml:"timeout"`
}

// Settings is the complete configuration.
type Settings struct {
	Memory  Memory  `yaml:"memory"`
	Render  Render  `yaml:"render"`
	Levels  Levels  `yaml:"levels"`
	Network Network `yaml:"network"`
}

// Default returns the default settings.
func Default() *Settings {
	s := &Settings{}

	s.Memory.UseLimit = true
	s.Memory.LimitMB = 256
	s.Memory.AutoFraction = 0.8
	s.Memory.RefreshInterval = 2 * time.Second
	s.Memory.MainMemoryLimitMB = 1024

	s.Render.LargeDataMB = 200
	s.Render.MaxTextureSize = 2048
	s.Render.ResponseTime = 100 * time.Millisecond
	s.Render.UpdateOrder = "ascending"
	s.Render.SliceDistance = 1
	s.Render.MaskUndoDepth = 10

	s.Levels.PixelsPerVoxel = 1
	s.Levels.DPIScale = 1
	s.Levels.InteractiveMultiplier = 16

	s.Network.CacheDir = "~/.cache/volstream"
	s.Network.MaxTransfers = 8
	s.Network.Timeout = 30 * time.Second

	return s
}

// Clone returns a deep copy of s.
func (s *Settings) Clone() *Settings {
	c := *s
	return &c
}

// Validate checks that every setting is in range.
func (s *Settings) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
		}
	}
	check(!s.Memory.UseLimit || s.Memory.LimitMB > 0, "memory.limitMB %d must be positive", s.Memory.LimitMB)
	check(s.Memory.AutoFraction > 0 && s.Memory.AutoFraction <= 1, "memory.autoFraction %g must be in (0, 1]", s.Memory.AutoFraction)
	check(s.Memory.RefreshInterval >= 0, "memory.refreshInterval %s is negative", s.Memory.RefreshInterval)
	check(!s.Memory.MainMemory || s.Memory.MainMemoryLimitMB > 0, "memory.mainMemoryLimitMB %d must be positive", s.Memory.MainMemoryLimitMB)
	check(s.Render.LargeDataMB >= 0, "render.largeDataMB %d is negative", s.Render.LargeDataMB)
	check(s.Render.BrickSize >= 0, "render.brickSize %d is negative", s.Render.BrickSize)
	check(s.Render.BrickSize == 0 || s.Render.BrickSize >= 2, "render.brickSize %d is below 2", s.Render.BrickSize)
	check(s.Render.MaxTextureSize >= 2, "render.maxTextureSize %d is below 2", s.Render.MaxTextureSize)
	check(s.Render.ResponseTime >= 0, "render.responseTime %s is negative", s.Render.ResponseTime)
	check(validOrder(s.Render.UpdateOrder), "render.updateOrder %q is unknown", s.Render.UpdateOrder)
	check(s.Render.SliceDistance > 0, "render.sliceDistance %g must be positive", s.Render.SliceDistance)
	check(s.Render.MaskUndoDepth >= 1, "render.maskUndoDepth %d is below 1", s.Render.MaskUndoDepth)
	check(s.Levels.PixelsPerVoxel > 0, "levels.pixelsPerVoxel %g must be positive", s.Levels.PixelsPerVoxel)
	check(s.Levels.DPIScale > 0, "levels.dpiScale %g must be positive", s.Levels.DPIScale)
	check(s.Levels.InteractiveMultiplier >= 1, "levels.interactiveMultiplier %g is below 1", s.Levels.InteractiveMultiplier)
	check(s.Network.MaxTransfers >= 1, "network.maxTransfers %d is below 1", s.Network.MaxTransfers)
	check(s.Network.Timeout >= 0, "network.timeout %s is negative", s.Network.Timeout)
	return errors.Join(errs...)
}

func validOrder(s string) bool {
	switch s {
	case "", "ascending", "front-to-back", "descending", "back-to-front":
		return true
	}
	return false
}

// Load reads settings from a YAML file on top of the defaults. A missing
// file returns the defaults. The result is validated.
func Load(path string) (*Settings, error) {
	s := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Save writes settings to a YAML file, creating its directory.
func Save(s *Settings, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // settings are not secret
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
