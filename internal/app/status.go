package app

import "github.com/ayusman/autoselfie/internal/detector"

// Status is the capture status of an App.
type Status int

const (
	StatusIdle Status = iota
	StatusPending
	StatusFaceNotFound
	StatusReady
	StatusDone
	StatusConfirmation
)

var statusNames = [...]string{
	StatusIdle:         "idle",
	StatusPending:      "pending",
	StatusFaceNotFound: "face_not_found",
	StatusReady:        "ready",
	StatusDone:         "done",
	StatusConfirmation: "confirmation",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

// Captured reports whether a frame is held in this status.
func (s Status) Captured() bool {
	return s == StatusDone || s == StatusConfirmation
}

// StatusFor maps a detector verdict to the coarse status published by the loop.
func StatusFor(v detector.Verdict) Status {
	switch v {
	case detector.VerdictSuccess:
		return StatusReady
	case detector.VerdictFaceNotFound:
		return StatusFaceNotFound
	default:
		return StatusPending
	}
}
