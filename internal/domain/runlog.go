package domain

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// StepName identifies a pipeline step in the run log.
type StepName string

const (
	StepAcquire          StepName = "acquire"
	StepCombine          StepName = "combine"
	StepPrimaryCluster   StepName = "primary_cluster"
	StepAlias            StepName = "alias"
	StepSecondaryCluster StepName = "secondary_cluster"
	StepExport           StepName = "export"
	StepPartition        StepName = "partition"
)

// StepStatus is the recorded outcome of a step.
type StepStatus string

const (
	StatusPending StepStatus = "PENDING"
	StatusOK      StepStatus = "OK"
	StatusFail    StepStatus = "FAIL"
	StatusSkipped StepStatus = "SKIPPED"
)

// MaxNoteLength bounds RunLogEntry.Note in runes.
const MaxNoteLength = 2000

// RunLogEntry is one append-only audit record.
type RunLogEntry struct {
	RunID     string     `json:"run_id"`
	Partition string     `json:"partition"`
	Step      StepName   `json:"step"`
	Status    StepStatus `json:"status"`
	Note      string     `json:"note,omitempty"`
	Timestamp time.Time  `json:"ts"`
}

// NewRunLogEntry builds an entry stamped with the package clock and a truncated note.
func NewRunLogEntry(runID, partition string, step StepName, status StepStatus, note string) RunLogEntry {
	return RunLogEntry{
		RunID:     runID,
		Partition: partition,
		Step:      step,
		Status:    status,
		Note:      TruncateNote(note),
		Timestamp: clock.Now().UTC(),
	}
}

// TruncateNote cuts s to at most MaxNoteLength runes.
func TruncateNote(s string) string {
	if utf8.RuneCountInString(s) <= MaxNoteLength {
		return s
	}
	n := 0
	for i := range s {
		if n == MaxNoteLength {
			return s[:i]
		}
		n++
	}
	return s
}

// WriteMode is the policy for replacing an existing output.
type WriteMode string

const (
	// WriteReplaceDrop drops the destination and recreates it. Readers may
	// briefly observe it missing.
	WriteReplaceDrop WriteMode = "replace-drop"
	// WriteReplaceStaging writes to a staging table and swaps it in atomically.
	WriteReplaceStaging WriteMode = "replace-staging"
	// WriteAppend adds rows to the destination, creating it if needed.
	WriteAppend WriteMode = "append"
)

// ParseWriteMode validates s. An empty string selects WriteReplaceStaging.
func ParseWriteMode(s string) (WriteMode, error) {
	switch WriteMode(s) {
	case "":
		return WriteReplaceStaging, nil
	case WriteReplaceDrop, WriteReplaceStaging, WriteAppend:
		return WriteMode(s), nil
	default:
		return "", fmt.Errorf("unknown write mode %q (want replace-drop, replace-staging or append)", s)
	}
}
