// Package volstream streams large volumes to the GPU in bricks and draws
// them progressively within a per-frame time budget.
//
// # Overview
//
// A volume is partitioned into bricks (package brick). In-core volumes keep
// their voxels in memory; pyramid volumes stream bricks of the active
// resolution level through a loader (package loader) that reads raw, JPEG
// or TIFF payloads from local files, packed files or HTTP. Decoded bricks
// are kept in a bounded main-memory cache, and uploaded bricks live in a
// GPU brick pool (package pool) bounded by a byte budget.
//
// Each frame, a RenderResourceContext sorts the bricks by view distance,
// makes them resident and hands them to a Drawer until the frame budget
// runs out (package schedule). The next frame resumes where the previous
// one stopped, until the pass is done. A camera move starts a new pass.
// While the camera moves, only a quota of bricks nearest the focus is
// drawn, shared fairly between the rendered volumes.
//
// # Quick Start
//
//	settings, err := config.Load(path)
//	if err != nil {
//	    return err
//	}
//	rc, err := volstream.NewRenderResourceContext(dev, volstream.WithSettings(settings))
//	if err != nil {
//	    return err
//	}
//	defer rc.Close()
//
//	// Once per frame.
//	res, err := rc.Render(frame, []*volume.Texture{tex}, drawer)
//
// # GPU Device
//
// The context uploads through the pool.Device interface. Package gpu
// implements it on a gogpu/wgpu HAL device with 3-D textures, shared with a
// host through gpucontext.DeviceProvider, and its Drawer renders the slice
// polygons of every drawn brick. Tests use in-memory fakes.
//
// # Logging
//
// volstream is silent by default. SetLogger installs a log/slog logger for
// the context and every sub-package.
package volstream
