// Package inference implements the analysis stages backed by local model
// sidecars: voice activity detection, overlap detection, diarization,
// transcription, and emotion labeling.
package inference
