package detector

import "gocv.io/x/gocv"

// matArena tracks the native Mats created during one detection cycle so
// they can all be released together on every exit path.
type matArena struct {
	mats []*gocv.Mat
}

// track registers m with the arena and returns it.
func (a *matArena) track(m gocv.Mat) *gocv.Mat {
	p := &m
	a.mats = append(a.mats, p)
	return p
}

// release closes every tracked Mat in reverse order of creation.
func (a *matArena) release() {
	for i := len(a.mats) - 1; i >= 0; i-- {
		a.mats[i].Close()
	}
	a.mats = a.mats[:0]
}
