package notifier

import (
	"fmt"
	"strings"

	"github.com/signalshift-data/pkg/incidents/models"
)

const (
	AlertSubject = "ALERT: National Rail Incident Detection"

	alertTimeLayout = "02/01/2006 15:04:05"
	noSummary       = "National Rail has not provided much information on this incident"
)

// Compose renders the alert email for an incident. Times are shown in UK
// local time.
func Compose(inc *models.PersistedIncident, details []models.ServiceDetail) (string, string) {
	var b strings.Builder

	summary := strings.TrimRight(strings.TrimSpace(inc.Summary), ".")
	if summary == "" {
		summary = noSummary
	}

	b.WriteString("We recently detected an incident affecting a station you are subscribed to.\n\n")
	fmt.Fprintf(&b, "%s.\n\n", summary)
	fmt.Fprintf(&b, "This incident %s.\n", timing(inc))

	if len(details) > 0 {
		b.WriteString("\nServices affected include:\n")
		for _, d := range details {
			fmt.Fprintf(&b, "- %s and %s (%s)\n", d.OriginStation, d.DestinationStation, d.OperatorName)
		}
	}

	b.WriteString("\n")
	b.WriteString(plannedSentence(inc.Planned))
	b.WriteString("\n\n")

	if inc.URL != "" {
		fmt.Fprintf(&b, "More information on the incident can be found at this link: %s.\n\n", inc.URL)
	} else {
		b.WriteString("More information on the incident can be found on the National Rail website.\n\n")
	}

	b.WriteString("Kind regards,\n\nSignal Shift Team")

	return AlertSubject, b.String()
}

func timing(inc *models.PersistedIncident) string {
	start := inc.Start.In(models.FeedLocation).Format(alertTimeLayout)
	if inc.End == nil {
		return "occurred at " + start
	}
	end := inc.End.In(models.FeedLocation).Format(alertTimeLayout)
	return fmt.Sprintf("is expected to last from %s to %s", start, end)
}

func plannedSentence(planned *bool) string {
	switch {
	case planned == nil:
		return "It is not known whether this was planned by National Rail in advance."
	case *planned:
		return "This was planned by National Rail in advance."
	default:
		return "This was not planned by National Rail in advance."
	}
}
