// Package status renders session snapshots for CLI output.
package status

import (
	"fmt"
	"strings"

	"github.com/draftforge/contentplan/internal/pipeline"
)

// stageLabel maps a stage status to its display label.
func stageLabel(s pipeline.StageStatus) string {
	switch s {
	case pipeline.StagePending:
		return "pending"
	case pipeline.StageRunning:
		return "running"
	case pipeline.StageSucceeded:
		return "done"
	case pipeline.StageFailedRetryable:
		return "retrying"
	case pipeline.StageFailedTerminal:
		return "failed"
	}
	return string(s)
}

// FormatSnapshot renders a session snapshot as a stage table:
//
//	Session 2f9c... [running]
//	     brand-brief           [done]     score 92
//	  -> audience-personas     [running]  attempt 2
//	     content-themes        [pending]
func FormatSnapshot(snap *pipeline.SessionSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session %s [%s]\n", snap.SessionID, snap.Status)

	for i, st := range snap.Stages {
		marker := "  "
		if i == snap.CurrentStage {
			marker = "->"
		}
		fmt.Fprintf(&b, "  %s %-24s [%s]", marker, st.ID, stageLabel(st.Status))

		if st.Score != nil {
			fmt.Fprintf(&b, "  score %d", *st.Score)
		}
		if st.Attempts > 1 || st.Status == pipeline.StageFailedRetryable {
			fmt.Fprintf(&b, "  attempt %d", st.Attempts)
		}
		if st.Reason != pipeline.ReasonNone && st.Status == pipeline.StageFailedTerminal {
			fmt.Fprintf(&b, "  (%s)", st.Reason)
		}
		b.WriteByte('\n')

		for _, d := range st.Deficiencies {
			fmt.Fprintf(&b, "       - %s\n", d)
		}
	}

	if snap.Status == pipeline.SessionCompleted {
		b.WriteString("  All stages complete.\n")
	}
	return b.String()
}

// FormatEvent renders one progress event as a single log-style line.
func FormatEvent(ev pipeline.ProgressEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s", ev.Timestamp.Format("15:04:05"))

	if ev.StageID != "" {
		fmt.Fprintf(&b, "  %-24s %s", ev.StageID, ev.Status)
	} else {
		fmt.Fprintf(&b, "  session                  %s", ev.Status)
	}

	if ev.Attempt > 0 {
		fmt.Fprintf(&b, " (attempt %d)", ev.Attempt)
	}
	if ev.Score != nil {
		fmt.Fprintf(&b, " score=%d", *ev.Score)
	}
	if ev.Reason != pipeline.ReasonNone {
		fmt.Fprintf(&b, " reason=%s", ev.Reason)
	}
	if ev.Message != "" {
		fmt.Fprintf(&b, ": %s", ev.Message)
	}
	return b.String()
}

// FormatSessionList renders one line per session for the list view.
func FormatSessionList(snaps []pipeline.SessionSnapshot) string {
	if len(snaps) == 0 {
		return "No sessions found.\n"
	}

	var b strings.Builder
	for _, snap := range snaps {
		done := 0
		for _, st := range snap.Stages {
			if st.Status == pipeline.StageSucceeded {
				done++
			}
		}
		fmt.Fprintf(&b, "%s  [%s]  %d/%d stages\n", snap.SessionID, snap.Status, done, len(snap.Stages))
	}
	return b.String()
}
