// Package checkpoint owns the capture checkpoints of a session.
//
// A Layout is the immutable geometry: one to three concentric rings of
// equally spaced checkpoints around the target, each facing the ring
// center. A Store tracks the per-checkpoint Status on top of a Layout and
// is safe for one writer and any number of readers.
//
// Rendering of checkpoint markers is not modelled here. Presentation code
// maps a checkpoint index to whatever handle it draws and calls
// Store.MarkReady once its markers are loaded.
package checkpoint
