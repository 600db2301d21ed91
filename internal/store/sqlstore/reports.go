package sqlstore

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/attackguard/attackctl/internal/fusion"
	"github.com/attackguard/attackctl/internal/matcher"
	"github.com/attackguard/attackctl/internal/report"
)

// SaveReport persists a Report and its matches in one transaction,
// satisfying internal/analysis.ReportStore.
func (s *Store) SaveReport(ctx context.Context, r report.Report) error {
	rec, matches, err := toRecords(r)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(rec).Error; err != nil {
			return err
		}
		if len(matches) > 0 {
			if err := tx.Create(&matches).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetReport loads one report with all of its matches.
func (s *Store) GetReport(ctx context.Context, id string) (report.Report, bool, error) {
	var rec ReportRecord
	err := s.db.WithContext(ctx).Preload("Matches").First(&rec, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return report.Report{}, false, nil
	}
	if err != nil {
		return report.Report{}, false, err
	}
	r, err := fromRecord(rec)
	return r, true, err
}

// DeleteReport removes a report and its matches atomically.
func (s *Store) DeleteReport(ctx context.Context, id string) (bool, error) {
	var found bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&ReportRecord{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		found = true
		return tx.Delete(&MatchRecord{}, "report_id = ?", id).Error
	})
	return found, err
}

// ReportFilter is the §6 GET /api/reports query, zero-valued fields meaning
// "no constraint".
type ReportFilter struct {
	Page       int
	Limit      int
	DateFrom   *int64 // unix millis
	DateTo     *int64
	URL        string
	MinMatches int
	Techniques []string
	Tactics    []string
	SortBy     string // timestamp | url | matchCount
	SortOrder  string // asc | desc
}

// ListReports returns the page of reports matching filter plus the total
// matching count (for the caller to compute total pages).
func (s *Store) ListReports(ctx context.Context, filter ReportFilter) ([]report.Report, int64, error) {
	q := s.db.WithContext(ctx).Model(&ReportRecord{})

	if filter.DateFrom != nil {
		q = q.Where("created_at >= ?", time.UnixMilli(*filter.DateFrom))
	}
	if filter.DateTo != nil {
		q = q.Where("created_at <= ?", time.UnixMilli(*filter.DateTo))
	}
	if filter.URL != "" {
		q = q.Where("source_url = ?", filter.URL)
	}
	if filter.MinMatches > 0 {
		q = q.Where("match_count >= ?", filter.MinMatches)
	}
	if len(filter.Techniques) > 0 {
		q = q.Where("id IN (SELECT report_id FROM match_records WHERE technique_id IN ?)", filter.Techniques)
	}
	if len(filter.Tactics) > 0 {
		// TacticsBreakdown is a JSON map keyed by tactic short-name; Postgres'
		// jsonb containment isn't available on the plain `text` column this
		// schema uses, so tactic filtering is matched on the serialized form.
		// Each tactic contributes a parameterized clause; only the fixed
		// clause text is joined, never the tactic value itself.
		clauses := make([]string, len(filter.Tactics))
		args := make([]any, len(filter.Tactics))
		for i, t := range filter.Tactics {
			clauses[i] = "tactics_breakdown LIKE ?"
			args[i] = `%"` + t + `"%`
		}
		q = q.Where(strings.Join(clauses, " OR "), args...)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	q = q.Order(orderClause(filter.SortBy, filter.SortOrder))

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	q = q.Limit(limit).Offset((page - 1) * limit)

	var recs []ReportRecord
	if err := q.Preload("Matches").Find(&recs).Error; err != nil {
		return nil, 0, err
	}

	reports := make([]report.Report, 0, len(recs))
	for _, rec := range recs {
		r, err := fromRecord(rec)
		if err != nil {
			return nil, 0, err
		}
		reports = append(reports, r)
	}
	return reports, total, nil
}

func orderClause(sortBy, sortOrder string) string {
	column := "created_at"
	switch sortBy {
	case "url":
		column = "source_url"
	case "matchCount":
		column = "match_count"
	case "timestamp", "":
		column = "created_at"
	}
	direction := "DESC"
	if sortOrder == "asc" {
		direction = "ASC"
	}
	return column + " " + direction
}

func toRecords(r report.Report) (*ReportRecord, []MatchRecord, error) {
	breakdown, err := json.Marshal(r.Summary.TacticsBreakdown)
	if err != nil {
		return nil, nil, err
	}
	findings, err := json.Marshal(r.Summary.KeyFindings)
	if err != nil {
		return nil, nil, err
	}

	matches := make([]MatchRecord, 0, len(r.Matches))
	for _, m := range r.Matches {
		matches = append(matches, MatchRecord{
			ReportID:      r.ID,
			TechniqueID:   m.TechniqueID,
			TechniqueName: m.TechniqueName,
			Score:         m.Score,
			MatchedText:   m.MatchedText,
			Context:       m.Context,
			StartChar:     m.StartChar,
			EndChar:       m.EndChar,
			MultiSource:   m.MultiSource,
			Dominant:      string(m.DominantSource),
		})
	}

	rec := &ReportRecord{
		ID:                  r.ID,
		WorkflowID:          r.WorkflowID,
		SourceURL:           r.SourceURL,
		SourceFilename:      r.SourceFilename,
		CreatedAt:           r.CreatedAt,
		MitreVersion:        r.MitreVersion,
		MatchCount:          r.Summary.MatchCount,
		HighConfidenceCount: r.Summary.HighConfidenceCount,
		TacticsBreakdown:    string(breakdown),
		KeyFindings:         string(findings),
	}
	return rec, matches, nil
}

func fromRecord(rec ReportRecord) (report.Report, error) {
	var breakdown map[string]int
	if rec.TacticsBreakdown != "" {
		if err := json.Unmarshal([]byte(rec.TacticsBreakdown), &breakdown); err != nil {
			return report.Report{}, err
		}
	}
	var findings []string
	if rec.KeyFindings != "" {
		if err := json.Unmarshal([]byte(rec.KeyFindings), &findings); err != nil {
			return report.Report{}, err
		}
	}

	matches := make([]fusion.EvalMatch, 0, len(rec.Matches))
	top := make([]report.TopTechnique, 0, 5)
	for _, m := range rec.Matches {
		matches = append(matches, fusion.EvalMatch{
			TechniqueID:    m.TechniqueID,
			TechniqueName:  m.TechniqueName,
			Score:          m.Score,
			MatchedText:    m.MatchedText,
			Context:        m.Context,
			StartChar:      m.StartChar,
			EndChar:        m.EndChar,
			MultiSource:    m.MultiSource,
			DominantSource: matcher.Source(m.Dominant),
		})
	}
	for i, m := range matches {
		if i >= 5 {
			break
		}
		top = append(top, report.TopTechnique{ID: m.TechniqueID, Name: m.TechniqueName, Score: m.Score})
	}

	return report.Report{
		ID:             rec.ID,
		WorkflowID:     rec.WorkflowID,
		SourceURL:      rec.SourceURL,
		SourceFilename: rec.SourceFilename,
		CreatedAt:      rec.CreatedAt,
		MitreVersion:   rec.MitreVersion,
		Summary: report.ReportSummary{
			MatchCount:          rec.MatchCount,
			HighConfidenceCount: rec.HighConfidenceCount,
			TacticsBreakdown:    breakdown,
			TopTechniques:       top,
			KeyFindings:         findings,
		},
		Matches: matches,
	}, nil
}
