package event

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tss-calculator/firmware-tools/pkg/configurator/application/model"
)

var (
	timeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#999999", Dark: "#666666"})
	stageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#0066CC", Dark: "#00AAFF"})
	startedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#7D56F4", Dark: "#AD8EE6"})
	successStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#00AA00", Dark: "#00FF00"})
	failedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#CC0000", Dark: "#FF5555"})
	busyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#AA7700", Dark: "#FFCC00"})
)

// ConsoleSink prints events as status lines.
type ConsoleSink struct {
	out io.Writer
}

func NewConsoleSink(out io.Writer) *ConsoleSink {
	return &ConsoleSink{out: out}
}

func (sink *ConsoleSink) Publish(event model.Event) {
	_, _ = fmt.Fprintln(sink.out, FormatEvent(event))
}

func FormatEvent(event model.Event) string {
	parts := []string{
		timeStyle.Render(event.Time.Format("15:04:05")),
		styleFor(event).Render(event.Name),
	}
	if event.Stage != "" {
		parts = append(parts, event.Stage)
	}
	if event.Target != "" {
		parts = append(parts, "target="+event.Target)
	}
	if len(event.Branches) > 0 {
		parts = append(parts, "branches="+strings.Join(event.Branches, ","))
	}
	if len(event.Tags) > 0 {
		parts = append(parts, "tags="+strings.Join(event.Tags, ","))
	}
	if event.CurrentRemote != nil {
		parts = append(parts, "current="+*event.CurrentRemote)
	}
	if len(event.Targets) > 0 {
		parts = append(parts, "targets="+strings.Join(event.Targets, ","))
	}
	if event.Error != "" {
		parts = append(parts, failedStyle.Render(event.Error))
	}
	return strings.Join(parts, " ")
}

func styleFor(event model.Event) lipgloss.Style {
	if event.Name == model.StageStartedEvent {
		return stageStyle
	}
	switch event.Phase {
	case model.PhaseSuccess:
		return successStyle
	case model.PhaseFailed:
		return failedStyle
	case model.PhaseBusy:
		return busyStyle
	default:
		return startedStyle
	}
}
