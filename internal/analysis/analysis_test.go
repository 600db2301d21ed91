package analysis

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/attackguard/attackctl/internal/mitre"
	"github.com/attackguard/attackctl/internal/report"
	"github.com/attackguard/attackctl/internal/textproc"
	"github.com/attackguard/attackctl/internal/workflow"
)

func testIndex() *mitre.TechniqueIndex {
	return &mitre.TechniqueIndex{
		Version: "v1",
		ByID: map[string]mitre.Technique{
			"T1566": {ID: "T1566", Name: "Phishing", Tactics: []string{"initial-access"}, Keywords: []string{"phishing"}},
		},
		ByTactic: map[string][]string{"initial-access": {"T1566"}},
	}
}

type fakeCatalog struct {
	index   *mitre.TechniqueIndex
	version string
	stale   bool
}

func (f fakeCatalog) Index() (*mitre.TechniqueIndex, string, bool) { return f.index, f.version, f.stale }

type memReportStore struct {
	saved []report.Report
}

func (s *memReportStore) SaveReport(ctx context.Context, r report.Report) error {
	s.saved = append(s.saved, r)
	return nil
}

func TestPrepareDocumentFromUpload(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "sample.txt"), []byte("A phishing email was used for initial access."), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	handler := NewPrepareDocument(PrepareDeps{
		UploadDir:     dir,
		MaxUploadSize: 1 << 20,
		Extractors:    textproc.NewRegistry(),
		ChunkOptions:  textproc.DefaultChunkOptions(),
	})

	out, err := handler(context.Background(), &workflow.ExecContext{}, SubmissionInput{
		DocumentPath: "sample.txt",
		DocumentName: "sample.txt",
	})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	prep := out.(prepareOutput)
	if prep.Bundle.NormalizedText == "" {
		t.Fatalf("expected non-empty normalized text")
	}
	if prep.Options.MinConfidence != DefaultOptions().MinConfidence {
		t.Fatalf("expected default options to be applied")
	}
}

func TestPrepareDocumentRejectsEscapingPath(t *testing.T) {
	dir := t.TempDir()
	handler := NewPrepareDocument(PrepareDeps{
		UploadDir:     dir,
		MaxUploadSize: 1 << 20,
		Extractors:    textproc.NewRegistry(),
	})
	_, err := handler(context.Background(), &workflow.ExecContext{}, SubmissionInput{
		DocumentPath: "../../etc/passwd",
		DocumentName: "passwd.txt",
	})
	if err == nil {
		t.Fatalf("expected escaping upload path to be rejected")
	}
}

func TestPrepareDocumentFromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", string(textproc.FormatPlainText))
		w.Write([]byte("Adversaries used a backdoor for persistence."))
	}))
	defer srv.Close()

	handler := NewPrepareDocument(PrepareDeps{
		MaxUploadSize: 1 << 20,
		Extractors:    textproc.NewRegistry(),
	})
	out, err := handler(context.Background(), &workflow.ExecContext{}, SubmissionInput{
		URL:          srv.URL + "/report.txt",
		DocumentName: "report.txt",
	})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	prep := out.(prepareOutput)
	if prep.Source.URL != srv.URL+"/report.txt" {
		t.Fatalf("expected source url to be recorded, got %q", prep.Source.URL)
	}
}

func TestGetMitreDataCarriesBundleForward(t *testing.T) {
	handler := NewGetMitreData(fakeCatalog{index: testIndex(), version: "v1"})
	prep := prepareOutput{
		Bundle:  textproc.NewBundle("text", textproc.Metadata{}, textproc.DefaultChunkOptions()),
		Source:  report.Source{Filename: "doc.txt"},
		Options: DefaultOptions(),
	}
	out, err := handler(context.Background(), &workflow.ExecContext{}, prep)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	mo := out.(mitreOutput)
	if mo.CatalogVersion != "v1" {
		t.Fatalf("expected version v1, got %q", mo.CatalogVersion)
	}
	if mo.Bundle.NormalizedText != prep.Bundle.NormalizedText {
		t.Fatalf("expected bundle to be threaded through unchanged")
	}
}

func TestGetMitreDataFailsWithoutSnapshot(t *testing.T) {
	handler := NewGetMitreData(fakeCatalog{})
	_, err := handler(context.Background(), &workflow.ExecContext{}, prepareOutput{})
	if err == nil {
		t.Fatalf("expected failure when no catalog snapshot is available")
	}
}

func TestEvaluateDocumentFindsKeywordMatch(t *testing.T) {
	handler := NewEvaluateDocument(fakeCatalog{index: testIndex(), version: "v1"}, DefaultMatcherSet())
	mo := mitreOutput{
		Bundle:         textproc.NewBundle("Attackers relied on phishing to gain initial access to the network.", textproc.Metadata{}, textproc.DefaultChunkOptions()),
		Source:         report.Source{Filename: "doc.txt"},
		Options:        Options{MinConfidence: 1, MaxResults: 10},
		CatalogVersion: "v1",
	}
	out, err := handler(context.Background(), &workflow.ExecContext{}, mo)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	eo := out.(evaluateOutput)
	if len(eo.Eval.Matches) == 0 {
		t.Fatalf("expected at least one match for an obvious phishing reference")
	}
	if eo.Eval.Matches[0].TechniqueID != "T1566" {
		t.Fatalf("expected T1566 match, got %+v", eo.Eval.Matches[0])
	}
}

func TestGenerateReportPersistsAndReturnsID(t *testing.T) {
	store := &memReportStore{}
	handler := NewGenerateReport(store)
	eo := evaluateOutput{
		Source:         report.Source{Filename: "doc.txt"},
		CatalogVersion: "v1",
	}
	out, err := handler(context.Background(), &workflow.ExecContext{WorkflowID: "wf-1"}, eo)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	res := out.(GenerateOutput)
	if res.ReportID == "" {
		t.Fatalf("expected a non-empty report id")
	}
	if len(store.saved) != 1 {
		t.Fatalf("expected exactly one saved report, got %d", len(store.saved))
	}
	if store.saved[0].WorkflowID != "wf-1" {
		t.Fatalf("expected workflow id to be stamped onto the report")
	}
}

func TestBuildDefinitionIsStrictlyLinear(t *testing.T) {
	def := BuildDefinition(DefinitionDeps{
		Prepare: PrepareDeps{Extractors: textproc.NewRegistry()},
		Fetcher: fakeCatalog{index: testIndex(), version: "v1"},
		Signals: DefaultMatcherSet(),
		Reports: &memReportStore{},
	})
	if len(def.Tasks) != 4 {
		t.Fatalf("expected exactly 4 tasks, got %d", len(def.Tasks))
	}
	want := map[string][]string{
		"get-mitre-data":    {"prepare-document"},
		"evaluate-document": {"get-mitre-data"},
		"generate-report":   {"evaluate-document"},
	}
	for task, prereqs := range want {
		got := def.DependsOn[task]
		if len(got) != 1 || got[0] != prereqs[0] {
			t.Fatalf("expected %s to depend only on %v, got %v", task, prereqs, got)
		}
	}

	e := workflow.NewEngine(nil)
	if err := e.Register(def); err != nil {
		t.Fatalf("register should accept a strictly linear chain: %v", err)
	}
}
