package core

import (
	"time"

	"github.com/JonMunkholm/mailclean/internal/engine"
	"github.com/JonMunkholm/mailclean/internal/tabular"
)

// RunPhase indicates the current stage of a run.
type RunPhase string

const (
	PhaseStarting      RunPhase = "starting"
	PhaseReading       RunPhase = "reading"
	PhaseAnalyzing     RunPhase = "analyzing"
	PhaseDeduplicating RunPhase = "deduplicating"
	PhaseComplete      RunPhase = "complete"
	PhaseFailed        RunPhase = "failed"
	PhaseCancelled     RunPhase = "cancelled"
)

// Terminal reports whether no further progress will follow.
func (p RunPhase) Terminal() bool {
	return p == PhaseComplete || p == PhaseFailed || p == PhaseCancelled
}

// RunProgress is a snapshot of a run.
type RunProgress struct {
	RunID    string          `json:"run_id"`
	Phase    RunPhase        `json:"phase"`
	FileName string          `json:"file_name"`
	Entries  int             `json:"entries"`
	Routed   int             `json:"routed"`
	Counters engine.Counters `json:"counters"`
	Error    string          `json:"error,omitempty"`

	// Byte counts drive Percent while the file is still being read.
	BytesRead  int64 `json:"bytes_read"`
	BytesTotal int64 `json:"bytes_total"`
}

// Percent returns progress in 0-100. Routed entries win once extraction has
// counted them; before that the read position is used.
func (p RunProgress) Percent() int {
	if p.Phase == PhaseComplete {
		return 100
	}
	if p.Entries > 0 {
		return p.Routed * 100 / p.Entries
	}
	if p.BytesTotal > 0 {
		return int(p.BytesRead * 100 / p.BytesTotal)
	}
	return 0
}

// ProgressCallback receives progress snapshots while a run executes.
type ProgressCallback func(RunProgress)

// Input is one file to clean.
type Input struct {
	FileName string
	Data     []byte
	// Columns names email columns explicitly; empty means detect.
	Columns []string
}

// RunResult is the outcome of a run. A cancelled run still carries the
// entries it finalized.
type RunResult struct {
	RunID    string           `json:"run_id"`
	FileName string           `json:"file_name"`
	Phase    RunPhase         `json:"phase"`
	Counters engine.Counters  `json:"counters"`
	Columns  []tabular.Column `json:"columns"`
	Entries  []*engine.Entry  `json:"entries"`
	Reports  engine.Reports   `json:"reports"`
	Duration time.Duration    `json:"duration_ns"`
	Error    string           `json:"error,omitempty"`

	// Output is the cleaned workbook in the input's format.
	Output *tabular.Workbook `json:"-"`
}
