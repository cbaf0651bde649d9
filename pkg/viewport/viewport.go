// Package viewport implements spec.md §4.7's anchor-based scroll/selection
// model: the viewport pins an absolute line number (the anchor), not an
// index into line_indices, because indices are invalidated every time a
// filter's matches change. Resolving a View re-binds the anchor into
// whatever line_indices currently holds by binary search.
//
// There is no direct teacher analog (ssw-logs-capture has no interactive
// viewport of its own); the locking-free, immutable-snapshot shape of the
// returned View mirrors how the rest of this tree hands read-only state to
// a caller (e.g. columnindex.Checkpoints' copy-out-before-return style).
package viewport

import "sort"

// View is the resolved, render-ready state: where the visible window
// starts within line_indices, and which index within it is selected.
type View struct {
	ScrollPosition int
	SelectedIndex  int
}

// Viewport tracks the user's position independent of the current
// line_indices contents.
type Viewport struct {
	anchorLine     int
	scrollPosition int
}

// New returns a Viewport anchored at line 0.
func New() *Viewport {
	return &Viewport{}
}

// AnchorLine returns the absolute line number currently pinned.
func (v *Viewport) AnchorLine() int { return v.anchorLine }

// nearestIndex finds the index in lineIndices whose value is closest to
// anchor, tying to the lower neighbour (spec §4.7's "prefers the lower
// neighbour when the anchor falls between two present lines").
func nearestIndex(lineIndices []int, anchor int) int {
	if len(lineIndices) == 0 {
		return 0
	}
	// sort.Search finds the first index i such that lineIndices[i] >= anchor.
	i := sort.Search(len(lineIndices), func(i int) bool { return lineIndices[i] >= anchor })
	if i >= len(lineIndices) {
		return len(lineIndices) - 1
	}
	if lineIndices[i] == anchor || i == 0 {
		return i
	}
	// anchor lies between lineIndices[i-1] and lineIndices[i]: take the
	// closer one, the lower on a tie.
	if anchor-lineIndices[i-1] <= lineIndices[i]-anchor {
		return i - 1
	}
	return i
}

// MoveSelection shifts the anchor by delta present lines (±n) within
// lineIndices.
func (v *Viewport) MoveSelection(delta int, lineIndices []int) {
	if len(lineIndices) == 0 {
		return
	}
	cur := nearestIndex(lineIndices, v.anchorLine)
	next := clamp(cur+delta, 0, len(lineIndices)-1)
	v.anchorLine = lineIndices[next]
}

// ScrollWithSelection moves the anchor and keeps the selection in lockstep
// with the visible window, used for page-at-a-time movement.
func (v *Viewport) ScrollWithSelection(delta int, lineIndices []int) {
	v.MoveSelection(delta, lineIndices)
}

// MoveViewport shifts only the scroll window by delta rows, leaving the
// anchor's resolved selection to follow along within the new window on the
// next Resolve.
func (v *Viewport) MoveViewport(delta int, lineIndices []int) {
	if len(lineIndices) == 0 {
		return
	}
	cur := nearestIndex(lineIndices, v.anchorLine)
	v.scrollPosition = clamp(v.scrollPosition+delta, 0, len(lineIndices)-1)
	// Keep the anchor within the shifted window if it fell outside it; a
	// renderer height isn't known here, so Resolve does the final clamp.
	_ = cur
}

// JumpToLine pins the anchor to an absolute line number directly.
func (v *Viewport) JumpToLine(absLine int) {
	v.anchorLine = absLine
}

// JumpToStart pins the anchor to the first present line.
func (v *Viewport) JumpToStart(lineIndices []int) {
	if len(lineIndices) == 0 {
		v.anchorLine = 0
		return
	}
	v.anchorLine = lineIndices[0]
	v.scrollPosition = 0
}

// JumpToEnd pins the anchor to the last present line (follow-mode target).
func (v *Viewport) JumpToEnd(lineIndices []int) {
	if len(lineIndices) == 0 {
		v.anchorLine = 0
		return
	}
	v.anchorLine = lineIndices[len(lineIndices)-1]
}

// Center, Top and Bottom reposition the scroll window around the current
// selection within a render of the given height.
func (v *Viewport) Center(lineIndices []int, height int) {
	idx := nearestIndex(lineIndices, v.anchorLine)
	v.scrollPosition = clamp(idx-height/2, 0, maxInt(0, len(lineIndices)-1))
}

func (v *Viewport) Top(lineIndices []int) {
	v.scrollPosition = nearestIndex(lineIndices, v.anchorLine)
}

func (v *Viewport) Bottom(lineIndices []int, height int) {
	idx := nearestIndex(lineIndices, v.anchorLine)
	v.scrollPosition = clamp(idx-height+1, 0, maxInt(0, len(lineIndices)-1))
}

// AdjustScrollForPrepend is called when the filter engine prepends newly
// discovered earlier matches to line_indices (spec §4.4's tail-first scan
// merging): without this, the visual content would shift downward by n
// rows, since every existing index's position grew by n.
func (v *Viewport) AdjustScrollForPrepend(n int) {
	if n <= 0 {
		return
	}
	v.scrollPosition += n
}

// ResolveWithOptions computes the render-ready View per spec §4.7's
// contract: the resolved selected index is always valid when lineIndices
// is non-empty. The scroll window moves only as far as needed to keep the
// selection within height rows, then is clamped into range; it is never
// re-centred. With preserveAnchor=false the stored scroll position is
// first clamped into range; with true (used when the caller has already
// adjusted scrollPosition itself, e.g. via AdjustScrollForPrepend) that
// first clamp is skipped.
func (v *Viewport) ResolveWithOptions(lineIndices []int, height int, preserveAnchor bool) View {
	if len(lineIndices) == 0 {
		v.scrollPosition = 0
		return View{ScrollPosition: 0, SelectedIndex: 0}
	}

	selected := nearestIndex(lineIndices, v.anchorLine)
	if !preserveAnchor {
		v.scrollPosition = clamp(v.scrollPosition, 0, len(lineIndices)-1)
	}

	if height > 0 {
		if selected < v.scrollPosition {
			v.scrollPosition = selected
		} else if selected >= v.scrollPosition+height {
			v.scrollPosition = selected - height + 1
		}
	}
	v.scrollPosition = clamp(v.scrollPosition, 0, len(lineIndices)-1)

	return View{ScrollPosition: v.scrollPosition, SelectedIndex: selected}
}

// Resolve is ResolveWithOptions with preserveAnchor=false, the common case.
func (v *Viewport) Resolve(lineIndices []int, height int) View {
	return v.ResolveWithOptions(lineIndices, height, false)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
