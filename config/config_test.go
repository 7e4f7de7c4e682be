package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if *s != *Default() {
		t.Errorf("Load() of a missing file = %+v, want defaults", s)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "volstream.yaml")
	s := Default()
	s.Memory.UseLimit = false
	s.Memory.AutoFraction = 0.5
	s.Render.ResponseTime = 40 * time.Millisecond
	s.Render.UpdateOrder = "descending"
	s.Levels.InteractiveMultiplier = 3
	s.Network.CacheDir = "/tmp/bricks"

	if err := Save(s, path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if *got != *s {
		t.Errorf("round trip = %+v, want %+v", got, s)
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	data := "render:\n  responseTime: 25ms\nmemory:\n  limitMB: 64\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	s, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if s.Render.ResponseTime != 25*time.Millisecond || s.Memory.LimitMB != 64 {
		t.Errorf("loaded %+v", s)
	}
	if s.Render.MaxTextureSize != Default().Render.MaxTextureSize {
		t.Error("absent key lost its default")
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"bad yaml", "render: [", nil},
		{"invalid value", "render:\n  updateOrder: sideways\n", ErrInvalid},
		{"zero fraction", "memory:\n  autoFraction: 0\n", ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.yaml")
			if err := os.WriteFile(path, []byte(tt.data), 0o600); err != nil {
				t.Fatal(err)
			}
			s, err := Load(path)
			if err == nil || s != nil {
				t.Fatalf("Load() = %v, %v; want error", s, err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("Load() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestValidateReportsAll(t *testing.T) {
	s := Default()
	s.Render.MaskUndoDepth = 0
	s.Network.MaxTransfers = 0
	err := s.Validate()
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("Validate() = %v", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, "maskUndoDepth") || !strings.Contains(msg, "maxTransfers") {
		t.Errorf("Validate() = %q, want both fields named", msg)
	}
}

func TestLevelsThreshold(t *testing.T) {
	l := Levels{PixelsPerVoxel: 1.5, DPIScale: 2, InteractiveMultiplier: 2}
	if got := l.Threshold(false); got != 3 {
		t.Errorf("Threshold(false) = %v, want 3", got)
	}
	if got := l.Threshold(true); got != 6 {
		t.Errorf("Threshold(true) = %v, want 6", got)
	}
	if got := Default().Levels.Threshold(true); got != 16 {
		t.Errorf("default interactive threshold = %v, want 16", got)
	}
}

func TestWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watched.yaml")
	if err := Save(Default(), path); err != nil {
		t.Fatal(err)
	}

	got := make(chan *Settings, 16)
	w, err := Watch(path, func(s *Settings, err error) {
		if err == nil {
			select {
			case got <- s:
			default:
			}
		}
	})
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer w.Close()

	s := Default()
	s.Memory.LimitMB = 512
	if err := Save(s, path); err != nil {
		t.Fatal(err)
	}

	timeout := time.After(5 * time.Second)
	for {
		select {
		case s := <-got:
			if s.Memory.LimitMB == 512 {
				if err := w.Close(); err != nil {
					t.Errorf("Close() error = %v", err)
				}
				return
			}
		case <-timeout:
			t.Fatal("no reload after the settings file changed")
		}
	}
}
