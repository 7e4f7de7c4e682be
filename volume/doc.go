// Package volume owns the channels of one volume and its decomposition
// into bricks.
//
// An in-core volume is created with [Build] from voxel buffers. The grid is
// sized so no brick edge exceeds the maximum texture size, and neighbouring
// bricks overlap by one voxel. A multi-resolution dataset is created with
// [NewPyramid] from a table of immutable [LevelDesc]s; [Texture.SetLevel]
// rebuilds the grid from the descriptor of the new level, so switching
// back and forth between levels never drifts.
//
// Slot layout is fixed: intensity (or packed intensity+gradient) in slot 0,
// gradient in slot 1, mask in slot 2 and label in slot 3. The mask keeps a
// bounded ring of snapshots for undo and redo of paint operations.
package volume
