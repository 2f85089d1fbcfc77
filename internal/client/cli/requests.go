package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/taxdesk/internal/client/apiclient"
	"github.com/dmitrijs2005/taxdesk/internal/client/session"
	"github.com/dmitrijs2005/taxdesk/internal/client/workflow"
	"github.com/dmitrijs2005/taxdesk/internal/common"
	"github.com/dmitrijs2005/taxdesk/internal/filing"
)

// clearField blanks an optional field in the edit prompts.
const clearField = "-"

// New creates a filing request from prompted fields and the staged files.
func (a *App) New(ctx context.Context, _ []string) error {
	s := a.session.Current()
	if !s.Authenticated {
		return common.ErrorUnauthorized
	}

	d, err := a.promptDraft(filing.Draft{TaxYear: a.now().Year() - 1, IncomeType: filing.IncomeTypes[0]})
	if err != nil {
		return err
	}

	attached, err := a.uploadStaged(ctx, s.UserID, "")
	if err != nil {
		return err
	}

	r, err := a.api.CreateRequest(ctx, d, attached)
	if err != nil {
		return err
	}
	a.area().Clear()
	fmt.Fprintln(a.out, "Request created")
	a.printRequest(r)
	return nil
}

// Edit changes the owner-editable fields of a request, removes picked
// attachments and adds the staged files.
func (a *App) Edit(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: edit <requestId>")
	}
	id := args[0]

	det, err := a.api.Get(ctx, id)
	if err != nil {
		return err
	}
	r := det.Request
	if !filing.CanEdit(det.Role, r.Status) {
		return fmt.Errorf("a %s request cannot be edited: %w", r.Status, common.ErrorForbidden)
	}

	d, err := a.promptDraft(filing.Draft{
		TaxYear:         r.TaxYear,
		IncomeType:      r.IncomeType,
		EstimatedIncome: r.EstimatedIncome,
		Details:         r.Details,
	})
	if err != nil {
		return err
	}

	keep, err := a.promptKeep(r.AttachedFiles)
	if err != nil {
		return err
	}

	added, err := a.uploadStaged(ctx, a.session.Current().UserID, id)
	if err != nil {
		return err
	}

	updated, report, err := a.api.Edit(ctx, id, d, keep, added)
	if err != nil {
		return err
	}
	a.area().Clear()

	if report != nil {
		for _, p := range report.Removed {
			fmt.Fprintf(a.out, "  removed %s\n", p)
		}
		for _, f := range report.Retained {
			fmt.Fprintf(a.out, "  ! kept %s: %s\n", f.Path, f.Err)
		}
	}
	a.printRequest(updated)
	return nil
}

// promptDraft asks for every draft field, offering def as the answer to
// an empty line.
func (a *App) promptDraft(def filing.Draft) (filing.Draft, error) {
	d := def

	for {
		answer, err := GetSimpleText(a.reader, fmt.Sprintf("Tax year [%d]", def.TaxYear), a.out)
		if err != nil {
			return d, err
		}
		if answer == "" {
			break
		}
		if y, err := strconv.Atoi(answer); err == nil {
			d.TaxYear = y
			break
		}
		fmt.Fprintln(a.out, "Enter a year, e.g. 2024")
	}

	options := make([]string, len(filing.IncomeTypes))
	for i, t := range filing.IncomeTypes {
		options[i] = string(t)
	}
	it, err := GetChoice(a.reader, "Income type", options, string(def.IncomeType), a.out)
	if err != nil {
		return d, err
	}
	d.IncomeType = filing.IncomeType(it)

	for {
		answer, err := GetSimpleText(a.reader, "Estimated income ("+describeOptional(formatAmount(def.EstimatedIncome))+")", a.out)
		if err != nil {
			return d, err
		}
		if answer == "" {
			break
		}
		if answer == clearField {
			d.EstimatedIncome = nil
			break
		}
		if v, err := strconv.ParseFloat(answer, 64); err == nil {
			d.EstimatedIncome = &v
			break
		}
		fmt.Fprintln(a.out, "Enter an amount, e.g. 52000")
	}

	current := ""
	if def.Details != nil {
		current = *def.Details
	}
	answer, err := GetSimpleText(a.reader, "Details ("+describeOptional(current)+")", a.out)
	if err != nil {
		return d, err
	}
	switch answer {
	case "":
	case clearField:
		d.Details = nil
	default:
		d.Details = &answer
	}

	d.Normalize()
	if err := d.Validate(a.now()); err != nil {
		return d, err
	}
	return d, nil
}

// promptKeep lists the attachments and returns the paths not picked for
// removal.
func (a *App) promptKeep(files []filing.AttachedFile) ([]string, error) {
	keep := make([]string, 0, len(files))
	if len(files) == 0 {
		return keep, nil
	}

	a.printAttachments(files)
	answer, err := GetSimpleText(a.reader, "Numbers of attachments to remove (empty keeps all)", a.out)
	if err != nil {
		return nil, err
	}

	drop := make(map[int]struct{})
	for _, f := range strings.Fields(answer) {
		i, err := pickIndex([]string{f}, len(files))
		if err != nil {
			return nil, err
		}
		drop[i] = struct{}{}
	}
	for i, f := range files {
		if _, ok := drop[i]; !ok {
			keep = append(keep, f.Path)
		}
	}
	return keep, nil
}

func describeOptional(current string) string {
	if current == "" {
		return "optional"
	}
	return fmt.Sprintf("[%s], %q clears", current, clearField)
}

func formatAmount(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// List shows the caller's own requests.
func (a *App) List(ctx context.Context, _ []string) error {
	st := workflow.Load(ctx, a.session.Current(), false, func(ctx context.Context, _ session.Context) ([]*filing.Request, error) {
		return a.api.ListOwned(ctx)
	})
	return render(a, st, a.printRequests)
}

// Assigned shows requests assigned to the verified professional.
func (a *App) Assigned(ctx context.Context, _ []string) error {
	st := workflow.Load(ctx, a.session.Current(), true, func(ctx context.Context, _ session.Context) ([]*filing.Request, error) {
		return a.api.ListAssigned(ctx)
	})
	return render(a, st, a.printRequests)
}

func (a *App) Dashboard(ctx context.Context, _ []string) error {
	st := workflow.Load(ctx, a.session.Current(), true, func(ctx context.Context, _ session.Context) (*filing.Dashboard, error) {
		return a.api.Dashboard(ctx)
	})
	return render(a, st, func(d *filing.Dashboard) {
		fmt.Fprintf(a.out, "Assigned:   %d\n", d.Assigned)
		fmt.Fprintf(a.out, "Processing: %d\n", d.Processing)
		fmt.Fprintf(a.out, "Completed:  %d\n", d.Completed)
		if len(d.Recent) == 0 {
			return
		}
		fmt.Fprintln(a.out, "Recent:")
		recent := make([]*filing.Request, len(d.Recent))
		for i := range d.Recent {
			recent[i] = &d.Recent[i]
		}
		a.printRequests(recent)
	})
}

// Experts lists verified professionals.
func (a *App) Experts(ctx context.Context, _ []string) error {
	st := workflow.Load(ctx, a.session.Current(), false, func(ctx context.Context, _ session.Context) ([]apiclient.Professional, error) {
		return a.api.Professionals(ctx)
	})
	return render(a, st, func(pros []apiclient.Professional) {
		if len(pros) == 0 {
			fmt.Fprintln(a.out, "No verified professionals yet.")
			return
		}
		for _, p := range pros {
			fmt.Fprintf(a.out, "%s  %s  %.1f (%d reviews)", p.ID, p.Name, p.Rating, p.ReviewCount)
			if p.Location != "" {
				fmt.Fprintf(a.out, "  %s", p.Location)
			}
			fmt.Fprintln(a.out)
		}
	})
}

func (a *App) Expert(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: expert <professionalId>")
	}
	p, err := a.api.Professional(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s (%s)\n", p.Name, p.ID)
	if len(p.Specialties) > 0 {
		fmt.Fprintf(a.out, "  Specialties: %s\n", strings.Join(p.Specialties, ", "))
	}
	if p.Location != "" {
		fmt.Fprintf(a.out, "  Location:    %s\n", p.Location)
	}
	fmt.Fprintf(a.out, "  Rating:      %.1f (%d reviews)\n", p.Rating, p.ReviewCount)
	if p.Email != "" {
		fmt.Fprintf(a.out, "  Contact:     %s\n", p.Email)
	}
	if p.Introduction != "" {
		fmt.Fprintf(a.out, "\n%s\n", p.Introduction)
	}
	return nil
}

func (a *App) Show(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: show <requestId>")
	}
	d, err := a.api.Get(ctx, args[0])
	if err != nil {
		return err
	}
	a.printRequest(d.Request)
	fmt.Fprintf(a.out, "  Your role:   %s\n", d.Role)
	if d.ClientEmail != "" {
		fmt.Fprintf(a.out, "  Client:      %s\n", d.ClientEmail)
	}
	return nil
}

func (a *App) Cancel(ctx context.Context, args []string) error {
	return a.transition(ctx, args, "cancel", a.api.Cancel)
}

func (a *App) Start(ctx context.Context, args []string) error {
	return a.transition(ctx, args, "start", a.api.Start)
}

func (a *App) Complete(ctx context.Context, args []string) error {
	return a.transition(ctx, args, "complete", a.api.Complete)
}

func (a *App) Assign(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: assign <requestId> <professionalId>")
	}
	r, err := a.api.Assign(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Request %s assigned to %s\n", r.ID, args[1])
	return nil
}

func (a *App) transition(ctx context.Context, args []string, name string, fn func(context.Context, string) (*filing.Request, error)) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s <requestId>", name)
	}
	r, err := fn(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Request %s is now %s\n", r.ID, r.Status)
	return nil
}
