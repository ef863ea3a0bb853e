// Package uiface declares the interfaces an interactive UI collaborator
// would implement against. The UI itself — the drawing surface, the
// desktop windowing, the parameter dialogs — is out of scope per the
// specification; only the seams it needs are defined here.
package uiface

// Snapshot is a read-only view of the global search state: the current
// best energy, which pool slot holds it, and how long it's been since that
// best last improved.
type Snapshot struct {
	BestStress           float64
	SlotIndex            int
	SecondsSinceLastBest int64
}

// Controller is the pause/resume and status-read seam a UI drives the
// search through.
type Controller interface {
	Pause()
	Resume()
	Paused() bool
	Snapshot() Snapshot
}

// ModelParams parameterizes an STL emission: the face-to-center (inradius)
// distance and the outer sphere radius.
type ModelParams struct {
	FaceToCenter float64
	OuterRadius  float64
}

// ModelWriter invokes the STL builder against a user-chosen path, the seam
// a UI's "export" action drives.
type ModelWriter interface {
	WriteModel(params ModelParams, path string) error
}
