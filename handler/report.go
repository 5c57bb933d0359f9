package handler

import (
	"fmt"
	"strings"
	"time"

	"github.com/pyama86/bellhop/domain/entity"
)

// IncidentReportMarkdown renders a resolved incident as a markdown report
// for the Confluence exporter.
func IncidentReportMarkdown(incident *entity.Incident) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", incident.AlarmName)
	fmt.Fprintf(&b, "- **Incident**: %s\n", incident.IncidentID)
	fmt.Fprintf(&b, "- **Team**: %s\n", incident.TeamID)
	fmt.Fprintf(&b, "- **Severity**: %s\n", incident.Severity)
	fmt.Fprintf(&b, "- **Assigned to**: %s\n", incident.AssignedTo)
	fmt.Fprintf(&b, "- **Triggered**: %s\n", formatMillis(incident.TriggeredAt))
	if incident.AckedAt != 0 {
		fmt.Fprintf(&b, "- **Acknowledged**: %s\n", formatMillis(incident.AckedAt))
	}
	if incident.ResolvedAt != 0 {
		fmt.Fprintf(&b, "- **Resolved**: %s\n", formatMillis(incident.ResolvedAt))
	}

	b.WriteString("\n## Timeline\n\n")
	for _, entry := range incident.Timeline {
		line := fmt.Sprintf("- %s **%s** by %s", formatMillis(entry.Timestamp), entry.Event, entry.Actor)
		if entry.Note != "" {
			line += ": " + entry.Note
		}
		b.WriteString(line + "\n")
	}

	return b.String()
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
