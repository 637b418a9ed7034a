package alert

import (
	"context"
	"fmt"
	"strings"

	"github.com/orgball2608/content-publisher/internal/domain"
)

//go:generate go run go.uber.org/mock/mockgen -source=alert.go -destination=mocks/mock.go
type Notifier interface {
	// NotifyRun reports a run that failed or had undelivered platforms.
	NotifyRun(ctx context.Context, report domain.Report) error
}

type Nop struct{}

func (Nop) NotifyRun(context.Context, domain.Report) error { return nil }

const maxListed = 10

// Summary renders a plain-text digest of the failures in report.
func Summary(report domain.Report) string {
	var sb strings.Builder
	if !report.Success {
		fmt.Fprintf(&sb, "Scheduled publication run failed: %s", report.Error)
		if report.Details != "" {
			fmt.Fprintf(&sb, "\n%s", report.Details)
		}
		return sb.String()
	}

	fmt.Fprintf(&sb, "Scheduled publication: %d item(s) processed with failures", report.Published)

	listed := 0
	for _, res := range report.Results {
		if res.Error == "" && len(res.Errors) == 0 {
			continue
		}
		if listed == maxListed {
			sb.WriteString("\n...")
			break
		}
		listed++

		fmt.Fprintf(&sb, "\n\n%q (%s)", res.Title, res.ContentID)
		if res.Error != "" {
			fmt.Fprintf(&sb, "\n- %s", res.Error)
		}
		for _, e := range res.Errors {
			fmt.Fprintf(&sb, "\n- %s: %s", e.Platform, e.Error)
		}
	}

	return sb.String()
}
