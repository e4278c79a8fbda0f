package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/hazyhaar/prospect/hunt/internal/github"
	"github.com/hazyhaar/prospect/hunt/internal/slicer"
	"github.com/hazyhaar/prospect/taskq"
)

// handleSearch runs one paginated query and fans out a fetch task per
// result item.
func (m *Manager) handleSearch(ctx context.Context, p SearchPayload) error {
	if err := m.monitor.Checkpoint(ctx, "scout"); err != nil {
		return err
	}
	if err := m.pacer.Wait(ctx); err != nil {
		return err
	}

	res, hdr, err := m.search.Search(ctx, github.Query{
		Text:    p.Query,
		Page:    p.Page,
		PerPage: p.PerPage,
		Sort:    p.Sort,
		Order:   p.Order,
	})
	if hdr != nil {
		m.monitor.UpdateFromHeaders(hdr)
	}
	if err != nil {
		return fmt.Errorf("search page %d: %w", p.Page, err)
	}

	for _, repo := range res.Items {
		fp := FetchPayload{Mission: p.Mission, Tactic: p.Tactic, Repo: repo, CycleID: p.CycleID}
		if _, err := m.queue.Enqueue(ctx, taskq.TypeFetchReadme, fp, PriorityFetch); err != nil {
			return fmt.Errorf("enqueue fetch for %s: %w", repo.FullName, err)
		}
	}

	if p.CycleID != "" && len(res.Items) > 0 {
		if err := m.store.AddFound(ctx, p.CycleID, len(res.Items)); err != nil {
			return err
		}
	}

	m.logger.Debug("scout: searched",
		"query", p.Query, "page", p.Page, "items", len(res.Items), "total", res.TotalCount)
	return nil
}

// handleDiscovery probes one date window and either bisects it or fans
// out the search tasks that enumerate it. Every window ends up covered
// by exactly one of the two outcomes.
func (m *Manager) handleDiscovery(ctx context.Context, task *taskq.Task, p DiscoveryPayload) error {
	start, err := time.Parse("2006-01-02", p.Start)
	if err != nil {
		return fmt.Errorf("%w: bad start date %q", ErrMalformedPayload, p.Start)
	}
	end, err := time.Parse("2006-01-02", p.End)
	if err != nil {
		return fmt.Errorf("%w: bad end date %q", ErrMalformedPayload, p.End)
	}
	window := slicer.NewWindow(start, end)
	field := p.DateField
	if field == "" {
		field = "created"
	}
	dated := p.Query + " " + window.Filter(field)

	if err := m.monitor.Checkpoint(ctx, "scout"); err != nil {
		return err
	}
	if err := m.pacer.Wait(ctx); err != nil {
		return err
	}

	// Count-only probe: page 1 at the smallest page size.
	res, hdr, err := m.search.Search(ctx, github.Query{Text: dated, Page: 1, PerPage: 1})
	if hdr != nil {
		m.monitor.UpdateFromHeaders(hdr)
	}
	if err != nil {
		return fmt.Errorf("probe window %s: %w", window, err)
	}

	plan := slicer.Decide(res.TotalCount, m.opts.ResultCap, p.PerPage, window)

	if plan.Split {
		// Children run one priority above the parent so deep recursion
		// drains before breadth.
		for _, w := range []slicer.Window{plan.Left, plan.Right} {
			child := DiscoveryPayload{
				Mission:   p.Mission,
				Tactic:    p.Tactic,
				Query:     p.Query,
				DateField: p.DateField,
				Start:     w.Start.Format("2006-01-02"),
				End:       w.End.Format("2006-01-02"),
				PerPage:   p.PerPage,
				CycleID:   p.CycleID,
			}
			if _, err := m.queue.Enqueue(ctx, taskq.TypeDiscovery, child, task.Priority+1); err != nil {
				return fmt.Errorf("enqueue discovery %s: %w", w, err)
			}
		}
		m.logger.Debug("scout: window bisected", "window", window.String(), "total", res.TotalCount)
		return nil
	}

	if plan.Forced {
		m.logger.Warn("scout: window at floor still over cap, enumerating reachable part",
			"window", window.String(), "total", res.TotalCount, "cap", m.opts.ResultCap)
	}

	for page := 1; page <= plan.Pages; page++ {
		sp := SearchPayload{
			Mission: p.Mission,
			Tactic:  p.Tactic,
			Query:   dated,
			Page:    page,
			PerPage: p.PerPage,
			CycleID: p.CycleID,
		}
		if _, err := m.queue.Enqueue(ctx, taskq.TypeSearch, sp, task.Priority); err != nil {
			return fmt.Errorf("enqueue search page %d: %w", page, err)
		}
	}
	m.logger.Debug("scout: window enumerable",
		"window", window.String(), "total", res.TotalCount, "pages", plan.Pages)
	return nil
}
