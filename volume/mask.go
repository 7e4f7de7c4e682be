package volume

import (
	"fmt"

	"github.com/gogpu/volstream/brick"
)

// DefaultMaskUndoDepth is the number of mask snapshots kept when none is
// configured.
const DefaultMaskUndoDepth = 10

// MergeOp combines a painted mask with the current one.
type MergeOp uint8

const (
	// MergeReplace overwrites the mask.
	MergeReplace MergeOp = iota
	// MergeUnion keeps the maximum of both masks.
	MergeUnion
	// MergeSubtract clears voxels set in the painted mask.
	MergeSubtract
	// MergeIntersect keeps voxels set in both masks.
	MergeIntersect
)

// String returns the op name.
func (op MergeOp) String() string {
	switch op {
	case MergeReplace:
		return "replace"
	case MergeUnion:
		return "union"
	case MergeSubtract:
		return "subtract"
	case MergeIntersect:
		return "intersect"
	default:
		return fmt.Sprintf("MergeOp(%d)", op)
	}
}

// maskRing holds mask snapshots oldest first. pos is the snapshot equal to
// the live mask; states after pos are redo history.
type maskRing struct {
	depth  int
	states [][]byte
	pos    int
}

func newMaskRing(depth int) *maskRing {
	if depth <= 0 {
		depth = DefaultMaskUndoDepth
	}
	return &maskRing{depth: depth, pos: -1}
}

// reset drops all history and records mask as the only state.
func (r *maskRing) reset(mask []byte) {
	r.states = r.states[:0]
	r.pos = -1
	if mask != nil {
		r.push(mask)
	}
}

// push records a copy of mask as the newest state, dropping redo history
// and evicting the oldest state beyond depth.
func (r *maskRing) push(mask []byte) {
	r.states = append(r.states[:r.pos+1], append([]byte(nil), mask...))
	if over := len(r.states) - r.depth; over > 0 {
		r.states = append(r.states[:0], r.states[over:]...)
	}
	r.pos = len(r.states) - 1
}

// PushMask records the current mask as a new undo state. Pushing beyond
// the undo depth evicts the oldest state. Callers that edit the mask buffer
// in place call PushMask afterwards so the change is also re-uploaded.
func (t *Texture) PushMask() error {
	m := t.data[brick.Mask]
	if m == nil {
		return ErrNoMask
	}
	t.masks.push(m.Data)
	t.maskVersion++
	return nil
}

// MaskUndosBackward restores the previous mask state. It reports false
// when there is nothing to undo.
func (t *Texture) MaskUndosBackward() bool {
	m := t.data[brick.Mask]
	if m == nil || t.masks.pos <= 0 {
		return false
	}
	t.masks.pos--
	copy(m.Data, t.masks.states[t.masks.pos])
	t.maskVersion++
	return true
}

// MaskUndosForward re-applies an undone mask state. It reports false when
// there is nothing to redo.
func (t *Texture) MaskUndosForward() bool {
	m := t.data[brick.Mask]
	if m == nil || t.masks.pos >= len(t.masks.states)-1 {
		return false
	}
	t.masks.pos++
	copy(m.Data, t.masks.states[t.masks.pos])
	t.maskVersion++
	return true
}

// MaskUndoLevels returns how many undo and redo steps are available.
func (t *Texture) MaskUndoLevels() (undo, redo int) {
	if t.masks.pos < 0 {
		return 0, 0
	}
	return t.masks.pos, len(t.masks.states) - 1 - t.masks.pos
}

// MergeMask merges a painted mask into the current one and records the
// result as a new undo state.
func (t *Texture) MergeMask(paint []byte, op MergeOp) error {
	m := t.data[brick.Mask]
	if m == nil {
		return ErrNoMask
	}
	if len(paint) != len(m.Data) {
		return fmt.Errorf("%w: mask of %d bytes for %d voxels", ErrDimMismatch, len(paint), len(m.Data))
	}
	dst := m.Data
	switch op {
	case MergeReplace:
		copy(dst, paint)
	case MergeUnion:
		for i, v := range paint {
			dst[i] = max(dst[i], v)
		}
	case MergeSubtract:
		for i, v := range paint {
			if v != 0 {
				dst[i] = 0
			}
		}
	case MergeIntersect:
		for i, v := range paint {
			if v == 0 {
				dst[i] = 0
			}
		}
	default:
		return fmt.Errorf("volume: unknown merge op %s", op)
	}
	t.masks.push(dst)
	t.maskVersion++
	return nil
}
