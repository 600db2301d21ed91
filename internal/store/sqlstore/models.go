// Package sqlstore implements the external-facing relational schema (§6)
// on top of GORM/Postgres. Reports and their matches are written and queried
// here, with the pagination/filter/sort the BoltDB-backed workflow store
// cannot offer; the workflow, task-result and MITRE technique tables are
// created by Open, but this package writes no rows to them.
package sqlstore

import "time"

// WorkflowRecord is the row shape of the workflows table. No rows are
// written to it; workflow status and the crash-recovery sweep are served
// from the BoltStore.
type WorkflowRecord struct {
	ID           string `gorm:"primaryKey"`
	WorkflowType string
	Status       string
	CurrentTask  string
	StartTime    time.Time
	UpdatedAt    time.Time
}

// TaskResultRecord is one task's terminal output or error within a workflow.
type TaskResultRecord struct {
	ID         uint `gorm:"primaryKey;autoIncrement"`
	WorkflowID string `gorm:"index"`
	TaskName   string
	Output     string `gorm:"type:text"` // JSON-encoded
	ErrorKind  string
	ErrorMsg   string
	CreatedAt  time.Time
}

// ReportRecord is the durable row for one finished analysis report.
type ReportRecord struct {
	ID                  string `gorm:"primaryKey"`
	WorkflowID          string `gorm:"index"`
	SourceURL           string `gorm:"index"`
	SourceFilename      string
	CreatedAt           time.Time `gorm:"index"`
	MitreVersion        string
	MatchCount          int `gorm:"index"`
	HighConfidenceCount int
	TacticsBreakdown    string `gorm:"type:text"` // JSON-encoded map[string]int
	KeyFindings         string `gorm:"type:text"` // JSON-encoded []string
	Matches             []MatchRecord `gorm:"foreignKey:ReportID"`
}

// MatchRecord is one technique match belonging to a report.
type MatchRecord struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	ReportID      string `gorm:"index"`
	TechniqueID   string `gorm:"index"`
	TechniqueName string
	Score         int `gorm:"index"`
	MatchedText   string
	Context       string `gorm:"type:text"`
	StartChar     int
	EndChar       int
	MultiSource   bool
	Dominant      string
}

// MitreTechniqueRecord is the row shape of a denormalized mirror of the
// in-memory TechniqueIndex. No rows are written to it; report tactic filters
// match on ReportRecord.TacticsBreakdown instead.
type MitreTechniqueRecord struct {
	ID      string `gorm:"primaryKey"`
	Name    string
	Tactics string `gorm:"type:text"` // JSON-encoded []string
	Version string `gorm:"index"`
}
