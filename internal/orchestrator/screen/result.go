package screen

import (
	"errors"
	"slices"
	"time"

	"github.com/GriffinCanCode/hudreader/internal/ocr"
)

var (
	// ErrEngineFailed ends Run after too many consecutive engine failures.
	ErrEngineFailed = errors.New("recognition engine failed repeatedly")
	// ErrOutputFull means the command channel had no room.
	ErrOutputFull = errors.New("command channel full")
)

// AnalysisResult is the outcome of one processed frame. Texts has one
// entry per configured region, in table order.
type AnalysisResult struct {
	Seq              uint64            `json:"seq"`
	Texts            []ocr.ShortString `json:"texts"`
	IconPresent      bool              `json:"icon_present"`
	IconDetectTime   time.Duration     `json:"icon_detect_ns"`
	ConvertColorTime time.Duration     `json:"convert_color_ns"`
	RecognitionTime  time.Duration     `json:"recognition_ns"`
	DroppedFrames    uint32            `json:"dropped_frames"`
	CapturedAt       time.Time         `json:"captured_at"`
}

// Clone returns a copy that shares nothing with r.
func (r AnalysisResult) Clone() AnalysisResult {
	r.Texts = slices.Clone(r.Texts)
	return r
}

// Text returns the string read for region i, or "" when out of range.
func (r AnalysisResult) Text(i int) string {
	if i < 0 || i >= len(r.Texts) {
		return ""
	}
	return r.Texts[i].String()
}

// CommandKind tags messages on the command channel.
type CommandKind int

const (
	ProcessedFrame CommandKind = iota
	AboutToProcessFrames
	Quit
)

func (k CommandKind) String() string {
	switch k {
	case ProcessedFrame:
		return "processed_frame"
	case AboutToProcessFrames:
		return "about_to_process_frames"
	case Quit:
		return "quit"
	}
	return "unknown"
}

// Command is sent from the processor to the presentation side. Result is
// only set for ProcessedFrame.
type Command struct {
	Kind   CommandKind
	Result AnalysisResult
}
