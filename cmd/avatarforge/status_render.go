package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"avatarforge/internal/entity"
	"avatarforge/internal/jobstate"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

var titleCaser = cases.Title(language.English)

// titleLabel turns a status value such as "processing" into "Processing".
func titleLabel(value string) string {
	return titleCaser.String(strings.ReplaceAll(value, "_", " "))
}

func statusColor(status jobstate.Status) string {
	switch status {
	case jobstate.StatusDone:
		return ansiGreen
	case jobstate.StatusError:
		return ansiRed
	case jobstate.StatusCancelled:
		return ansiYellow
	case jobstate.StatusQueued, jobstate.StatusProcessing:
		return ansiBlue
	default:
		return ""
	}
}

func colorStatus(status jobstate.Status, colorize bool) string {
	label := titleLabel(string(status))
	if !colorize {
		return label
	}
	if color := statusColor(status); color != "" {
		return color + label + ansiReset
	}
	return label
}

func renderJobStatus(status jobstate.JobStatus, colorize bool) string {
	rows := [][]string{{"Status", colorStatus(status.Status, colorize)}}
	if status.Status.Active() {
		rows = append(rows,
			[]string{"Job", status.JobID},
			[]string{"Kind", titleLabel(string(status.Kind))},
			[]string{"Targets", joinRefs(status.Targets)},
			[]string{"Progress", fmt.Sprintf("%d%%", status.Progress)},
			[]string{"Message", status.Message},
			[]string{"Cancel requested", yesNo(status.CancelRequested)},
		)
		if status.StartedAt != nil {
			rows = append(rows, []string{"Running for", formatElapsed(time.Since(*status.StartedAt))})
		}
	}
	if !status.UpdatedAt.IsZero() {
		rows = append(rows, []string{"Updated", status.UpdatedAt.Local().Format(time.DateTime)})
	}
	if status.Degraded {
		rows = append(rows, []string{"Store", "unreachable, showing last known state"})
	}
	if last := status.Last; last != nil {
		outcome := colorStatus(last.Status, colorize)
		if last.Message != "" {
			outcome += " - " + last.Message
		}
		rows = append(rows,
			[]string{"Last job", last.JobID},
			[]string{"Last outcome", outcome},
			[]string{"Finished", last.FinishedAt.Local().Format(time.DateTime)},
		)
		if last.Error != "" {
			rows = append(rows, []string{"Last error", last.Error})
		}
	}
	return renderFields(rows, colorize)
}

func joinRefs(refs []entity.Ref) string {
	parts := make([]string, 0, len(refs))
	for _, ref := range refs {
		parts = append(parts, ref.String())
	}
	return strings.Join(parts, ", ")
}

func formatElapsed(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	return d.Round(time.Second).String()
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
