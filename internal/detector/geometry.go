package detector

import "image"

// Verdict is the outcome of validating a detection against the framing rules.
type Verdict int

const (
	VerdictFaceNotFound Verdict = iota
	VerdictEyesNotFound
	VerdictTooSmall
	VerdictTooBig
	VerdictTooCloseToTop
	VerdictTooCloseToBottom
	VerdictTooCloseToLeft
	VerdictTooCloseToRight
	VerdictSuccess
	// VerdictFailure means the input was malformed or absent, as opposed to a
	// face that was found but not acceptable.
	VerdictFailure
)

var verdictNames = [...]string{
	VerdictFaceNotFound:     "FaceNotFound",
	VerdictEyesNotFound:     "EyesNotFound",
	VerdictTooSmall:         "TooSmall",
	VerdictTooBig:           "TooBig",
	VerdictTooCloseToTop:    "TooCloseToTopBorder",
	VerdictTooCloseToBottom: "TooCloseToBottomBorder",
	VerdictTooCloseToLeft:   "TooCloseToLeftBorder",
	VerdictTooCloseToRight:  "TooCloseToRightBorder",
	VerdictSuccess:          "Success",
	VerdictFailure:          "Failure",
}

func (v Verdict) String() string {
	if v < 0 || int(v) >= len(verdictNames) {
		return "Unknown"
	}
	return verdictNames[v]
}

// FaceDetected reports whether the verdict implies that a face was found.
func (v Verdict) FaceDetected() bool {
	return v != VerdictFaceNotFound && v != VerdictFailure
}

// ScaleContext maps detector coordinates back to source frame coordinates.
type ScaleContext struct {
	ScaleX float64
	ScaleY float64
	Source image.Point
}

// ToSource maps a rectangle from detector space to source frame space.
func (sc ScaleContext) ToSource(r image.Rectangle) image.Rectangle {
	return image.Rect(
		int(float64(r.Min.X)*sc.ScaleX),
		int(float64(r.Min.Y)*sc.ScaleY),
		int(float64(r.Max.X)*sc.ScaleX),
		int(float64(r.Max.Y)*sc.ScaleY),
	)
}

// Thresholds are the framing limits, expressed as fractions of the source frame.
type Thresholds struct {
	// Center is the allowed offset of the face center from the frame center,
	// as a fraction of the half dimension on each axis.
	Center float64
	// MinHeight and MaxHeight bound the face height relative to the frame height.
	MinHeight float64
	MaxHeight float64
}

// DefaultThresholds returns the framing limits used for selfies.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Center:    0.2,
		MinHeight: 0.25,
		MaxHeight: 0.85,
	}
}

// BiggestFace returns the index of the widest face. The first one wins on ties.
func BiggestFace(faces []image.Rectangle) (int, bool) {
	best := -1
	for i, f := range faces {
		if best < 0 || f.Dx() > faces[best].Dx() {
			best = i
		}
	}
	return best, best >= 0
}

// Validate checks the biggest face against the framing thresholds.
//
// Border checks run in the order bottom, top, right, left and the first
// violation is returned. The horizontal checks follow the mirrored preview:
// a face left of center is reported as too close to the right border.
func Validate(faces, eyes []image.Rectangle, sc ScaleContext, th Thresholds) Verdict {
	i, ok := BiggestFace(faces)
	if !ok {
		return VerdictFaceNotFound
	}

	if len(eyes) == 0 {
		return VerdictEyesNotFound
	}

	if sc.Source.X <= 0 || sc.Source.Y <= 0 || sc.ScaleX <= 0 || sc.ScaleY <= 0 {
		return VerdictFailure
	}

	face := faces[i]
	faceCenterX := float64(face.Min.X)*sc.ScaleX + float64(face.Dx())*sc.ScaleX/2
	faceCenterY := float64(face.Min.Y)*sc.ScaleY + float64(face.Dy())*sc.ScaleY/2

	targetX := float64(sc.Source.X) / 2
	targetY := float64(sc.Source.Y) / 2

	switch {
	case faceCenterY > targetY+targetY*th.Center:
		return VerdictTooCloseToBottom
	case faceCenterY < targetY-targetY*th.Center:
		return VerdictTooCloseToTop
	case faceCenterX < targetX-targetX*th.Center:
		return VerdictTooCloseToRight
	case faceCenterX > targetX+targetX*th.Center:
		return VerdictTooCloseToLeft
	}

	height := float64(face.Dy()) * sc.ScaleY
	if height < float64(sc.Source.Y)*th.MinHeight {
		return VerdictTooSmall
	}
	if height > float64(sc.Source.Y)*th.MaxHeight {
		return VerdictTooBig
	}

	return VerdictSuccess
}
