package inference

// Span is a time interval within the call audio, in seconds.
type Span struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Turn is a diarized speaker interval.
type Turn struct {
	Span
	Speaker string `json:"speaker"`
}

// VADArtifact records the speech regions found by voice activity detection.
type VADArtifact struct {
	Segments    []Span  `json:"segments"`
	SpeechRatio float64 `json:"speech_ratio"`
}

// OverlapArtifact records regions where more than one speaker talks at once.
type OverlapArtifact struct {
	Regions []Span `json:"regions"`
}

// DiarizeArtifact records who spoke when.
type DiarizeArtifact struct {
	Turns       []Turn `json:"turns"`
	NumSpeakers int    `json:"num_speakers"`
}

// TranscribeArtifact summarizes the transcript persisted to the ledger.
type TranscribeArtifact struct {
	SegmentCount int    `json:"segment_count"`
	Language     string `json:"language"`
	WordCount    int    `json:"word_count"`
}

// EmotionArtifact summarizes the per-segment emotion labels.
type EmotionArtifact struct {
	Counts map[string]int `json:"counts"`
}
