// Package match finds candidate found items for a lost report. Matching is
// best-effort enrichment: it runs after report submission and its failures
// never surface to the submitter.
package match

import (
	"context"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/LancemDev/LostLink/internal/model"
	"github.com/LancemDev/LostLink/internal/repository"
)

// Engine scans the found collection for plausible matches.
type Engine struct {
	repo *repository.Items

	// minDescription is the minimum report description length in runes
	// before matching runs at all. An empty needle is a substring of every
	// description, so short reports would match the whole category; below
	// the threshold we skip instead.
	minDescription int
}

// NewEngine constructs an Engine.
func NewEngine(repo *repository.Items, minDescription int) *Engine {
	return &Engine{repo: repo, minDescription: minDescription}
}

// FindCandidates returns ids of found items in the report's category whose
// description contains the report's description, case-insensitive. This is a
// literal substring test, not fuzzy matching. Ids come back in store order;
// ordering beyond that is unspecified.
func (e *Engine) FindCandidates(ctx context.Context, report *model.LostReport) ([]string, error) {
	if utf8.RuneCountInString(strings.TrimSpace(report.Description)) < e.minDescription {
		return nil, nil
	}
	items, err := e.repo.ListFoundByCategory(ctx, report.Category)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(report.Description)
	var ids []string
	for _, item := range items {
		if strings.Contains(strings.ToLower(item.Description), needle) {
			ids = append(ids, item.ID)
		}
	}
	return ids, nil
}

// Run loads the report, finds candidates, and writes them back. When the
// candidate list is empty no write happens and the report status is left
// alone. Every failure is logged and swallowed; a report submission must
// never fail or roll back because matching broke.
func (e *Engine) Run(ctx context.Context, reportID string) {
	report, err := e.repo.GetReport(ctx, reportID)
	if err != nil {
		log.Printf("match: load report %s: %v", reportID, err)
		return
	}
	ids, err := e.FindCandidates(ctx, report)
	if err != nil {
		log.Printf("match: find candidates for %s: %v", reportID, err)
		return
	}
	if len(ids) == 0 {
		return
	}
	if err := e.repo.UpdateReportMatches(ctx, reportID, ids); err != nil {
		log.Printf("match: write back %s: %v", reportID, err)
		return
	}
	log.Printf("match: report %s matched %d found item(s)", reportID, len(ids))
}
