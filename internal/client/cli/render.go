package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/taxdesk/internal/client/staging"
	"github.com/dmitrijs2005/taxdesk/internal/client/workflow"
	"github.com/dmitrijs2005/taxdesk/internal/filing"
	"github.com/dmitrijs2005/taxdesk/internal/upload"
)

const dateLayout = "2006-01-02 15:04"

func (a *App) printRequests(list []*filing.Request) {
	if len(list) == 0 {
		fmt.Fprintln(a.out, "No requests")
		return
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tYEAR\tINCOME\tSTATUS\tFILES\tCREATED")
	for _, r := range list {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%d\t%s\n",
			r.ID, r.TaxYear, r.IncomeType, r.Status, len(r.AttachedFiles), r.CreatedAt.Local().Format(dateLayout))
	}
	_ = tw.Flush()
}

func (a *App) printRequest(r *filing.Request) {
	fmt.Fprintf(a.out, "Request %s\n", r.ID)
	fmt.Fprintf(a.out, "  Status:      %s\n", r.Status)
	fmt.Fprintf(a.out, "  Tax year:    %d\n", r.TaxYear)
	fmt.Fprintf(a.out, "  Income type: %s\n", r.IncomeType)
	if r.EstimatedIncome != nil {
		fmt.Fprintf(a.out, "  Estimated:   %.0f\n", *r.EstimatedIncome)
	}
	if r.Details != nil {
		fmt.Fprintf(a.out, "  Details:     %s\n", *r.Details)
	}
	if r.AssignedProfessionalID != nil {
		fmt.Fprintf(a.out, "  Assigned to: %s\n", *r.AssignedProfessionalID)
	}
	fmt.Fprintf(a.out, "  Created:     %s\n", r.CreatedAt.Local().Format(dateLayout))
	a.printAttachments(r.AttachedFiles)
}

func (a *App) printAttachments(files []filing.AttachedFile) {
	if len(files) == 0 {
		fmt.Fprintln(a.out, "  No attachments")
		return
	}
	fmt.Fprintln(a.out, "  Attachments:")
	for i, f := range files {
		fmt.Fprintf(a.out, "  %2d) %s (%s, %s)\n      %s\n", i+1, f.Name, humanSize(f.Size), f.Type, f.Path)
	}
}

func (a *App) printStaged(files []staging.File) {
	if len(files) == 0 {
		fmt.Fprintln(a.out, "Nothing staged")
		return
	}
	for i, f := range files {
		fmt.Fprintf(a.out, "%2d) %s (%s, %s)\n", i+1, f.Name, humanSize(f.Size), f.Type)
	}
}

func (a *App) printWarnings(res staging.Result) {
	for _, w := range res.Warnings {
		fmt.Fprintf(a.out, "  ! %s: %s (%s)\n", w.File, w.Detail, w.Reason)
	}
	if res.Excluded > 0 {
		fmt.Fprintf(a.out, "  ! %d file(s) left out, at most %d can be attached\n", res.Excluded, a.limits.MaxFiles)
	}
}

// progress prints one line per task change.
func (a *App) progress(t upload.Task) {
	switch {
	case t.Percent == upload.FailedPercent:
		fmt.Fprintf(a.out, "  %s: failed\n", t.File)
	case t.Retries > 0:
		fmt.Fprintf(a.out, "  %s: chunk %d/%d retry %d\n", t.File, t.ChunksCompleted+1, t.TotalChunks, t.Retries)
	default:
		fmt.Fprintf(a.out, "  %s: %d/%d chunks %d%%\n", t.File, t.ChunksCompleted, t.TotalChunks, t.Percent)
	}
}

// render prints a loaded state.
func render[T any](a *App, s workflow.State[T], ready func(T)) error {
	return workflow.Match(s, workflow.Cases[T, error]{
		Loading: func() error {
			fmt.Fprintln(a.out, "Loading...")
			return nil
		},
		Unauthorized: func() error {
			fmt.Fprintln(a.out, "Not available: sign in (professional views need a verified profile)")
			return nil
		},
		Ready: func(v T) error {
			ready(v)
			return nil
		},
		Failed: func(err error) error { return err },
	})
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func formatExpiry(t time.Time) string {
	return t.Local().Format(dateLayout)
}
