package main

import (
	"bytes"
	"encoding/csv"
	"os"
	"strings"
	"testing"
)

func TestWriteAggregatedCSV(t *testing.T) {
	cfg := testConfig()
	rows := []AggregatedRow{
		{
			ArticleID: 1, PMID: 123, Title: "Alpha", Year: 2020,
			Counts: [3]int{0, 2, 0}, HasVotes: true, Aggregated: DecisionAdopt,
			Voters:          []string{"alice:1", "bob:1"},
			CombinedComment: "alice:fine",
			Categories: [NumCategories]CategoryAgg{
				{Votes: "1+0", Final: true, Conflict: true},
			},
		},
		{ArticleID: 2, Title: "Beta, with comma"},
	}

	var buf bytes.Buffer
	if err := WriteAggregatedCSV(&buf, cfg, rows); err != nil {
		t.Fatalf("WriteAggregatedCSV failed: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "\uFEFF") {
		t.Fatal("missing BOM prefix")
	}

	r := csv.NewReader(strings.NewReader(strings.TrimPrefix(out, "\uFEFF")))
	records, err := r.ReadAll()
	if err != nil {
		t.Fatalf("parsing output failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want header + 2 rows", len(records))
	}

	header := records[0]
	wantStart := []string{"article_id", "pmid", "title", "aggregated_decision", "decision_counts", "voters_and_decisions", "combined_comment"}
	for i, col := range wantStart {
		if header[i] != col {
			t.Errorf("header[%d] = %q, want %q", i, header[i], col)
		}
	}
	if header[7] != "cat_physical_votes" || header[8] != "cat_physical_final" || header[9] != "cat_physical_conflict" {
		t.Errorf("category headers = %v", header[7:10])
	}
	if header[len(header)-1] != "year" {
		t.Errorf("last header = %q, want year", header[len(header)-1])
	}

	first := records[1]
	if first[0] != "1" || first[1] != "123" || first[3] != "1" || first[4] != "0:0|1:2|2:0" {
		t.Errorf("first row = %v", first)
	}
	if first[5] != "alice:1;bob:1" {
		t.Errorf("voters cell = %q", first[5])
	}
	if first[7] != "1+0" || first[8] != "1" || first[9] != "1" {
		t.Errorf("category cells = %v", first[7:10])
	}

	second := records[2]
	if second[2] != "Beta, with comma" {
		t.Errorf("comma not preserved: %q", second[2])
	}
	if second[1] != "" || second[3] != "" || second[len(second)-1] != "" {
		t.Errorf("absent pmid/decision/year should be empty: %v", second)
	}
}

func TestWriteDecisionsCSV(t *testing.T) {
	cfg := testConfig()
	articles := []Article{
		{ID: 1, PMID: 10, Title: "One", Year: 2020, LLMJudgement: "adopt"},
	}
	byArticle := map[int64][]Decision{
		1: {
			{Username: "alice", ArticleID: 1, Code: DecisionExclude, Decided: true, Comment: "off topic", CatPsycho: true},
			{Username: "bob", ArticleID: 1, Comment: "not sure"},
		},
	}

	var buf bytes.Buffer
	if err := WriteDecisionsCSV(&buf, cfg, articles, byArticle); err != nil {
		t.Fatalf("WriteDecisionsCSV failed: %v", err)
	}
	r := csv.NewReader(strings.NewReader(strings.TrimPrefix(buf.String(), "\uFEFF")))
	records, err := r.ReadAll()
	if err != nil {
		t.Fatalf("parsing output failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want header + 2 rows", len(records))
	}

	alice := records[1]
	if alice[3] != "alice" || alice[4] != "0" || alice[5] != "off topic" {
		t.Errorf("alice row = %v", alice)
	}
	if alice[8] != "1" {
		t.Errorf("cat_psycho cell = %q", alice[8])
	}
	bob := records[2]
	if bob[4] != "" {
		t.Errorf("undecided code cell = %q, want empty", bob[4])
	}
	if got := alice[10]; got != "adopt" {
		t.Errorf("llm_judgement cell = %q", got)
	}
}

func TestExportCandidatesGate(t *testing.T) {
	db := newTestDB(t)
	cfg := testConfig()
	cfg.OutputDir = t.TempDir()

	alice := mustCreateUser(t, db, cfg, "alice", 1)
	bob := mustCreateUser(t, db, cfg, "bob", 1)
	a1 := mustInsertArticle(t, db, Article{PMID: 501, Title: "one", Authors: "A", Year: 2020})
	a2 := mustInsertArticle(t, db, Article{PMID: 502, Title: "two", Authors: "B", Year: 2020})

	mustDecide(t, db, alice.ID, a1, DecisionAdopt)
	mustDecide(t, db, alice.ID, a2, DecisionExclude)

	// Group export refuses while screening is incomplete.
	if _, err := ExportCandidates(db, cfg, 1); err == nil {
		t.Fatal("expected gate error for incomplete group")
	}
	// All-groups export is unconditional.
	path, err := ExportCandidates(db, cfg, 0)
	if err != nil {
		t.Fatalf("all-groups ExportCandidates failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading export failed: %v", err)
	}
	if strings.TrimSpace(string(data)) != "501" {
		t.Fatalf("all-groups candidates = %q, want 501", string(data))
	}

	mustDecide(t, db, bob.ID, a1, DecisionAdopt)
	mustDecide(t, db, bob.ID, a2, DecisionExclude)

	path, err = ExportCandidates(db, cfg, 1)
	if err != nil {
		t.Fatalf("ExportCandidates failed after completion: %v", err)
	}
	data, err = os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading export failed: %v", err)
	}
	if strings.TrimSpace(string(data)) != "501" {
		t.Fatalf("candidates = %q, want 501", string(data))
	}
}

func TestExportCandidatesBlockedByConflict(t *testing.T) {
	db := newTestDB(t)
	cfg := testConfig()
	cfg.OutputDir = t.TempDir()

	alice := mustCreateUser(t, db, cfg, "alice", 1)
	bob := mustCreateUser(t, db, cfg, "bob", 1)
	a1 := mustInsertArticle(t, db, Article{PMID: 601, Title: "contested", Authors: "A", Year: 2020})

	mustDecide(t, db, alice.ID, a1, DecisionAdopt)
	mustDecide(t, db, bob.ID, a1, DecisionExclude)

	if _, err := ExportCandidates(db, cfg, 1); err == nil {
		t.Fatal("expected gate error for conflicted group")
	}

	if _, err := ResolveDecisions(db, a1, DecisionAdopt); err != nil {
		t.Fatalf("ResolveDecisions failed: %v", err)
	}
	path, err := ExportCandidates(db, cfg, 1)
	if err != nil {
		t.Fatalf("ExportCandidates failed after resolution: %v", err)
	}
	data, _ := os.ReadFile(path)
	if strings.TrimSpace(string(data)) != "601" {
		t.Fatalf("candidates = %q, want 601", string(data))
	}
}

func TestExportAggregatedEndToEnd(t *testing.T) {
	db := newTestDB(t)
	cfg := testConfig()
	cfg.OutputDir = t.TempDir()

	alice := mustCreateUser(t, db, cfg, "alice", 1)
	a1 := mustInsertArticle(t, db, Article{PMID: 701, Title: "solo", Authors: "A", Year: 2020})
	mustDecide(t, db, alice.ID, a1, DecisionHold)

	path, err := ExportAggregatedCSV(db, cfg, 0)
	if err != nil {
		t.Fatalf("ExportAggregatedCSV failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading export failed: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "solo") || !strings.Contains(out, "alice:2") {
		t.Fatalf("export missing expected cells:\n%s", out)
	}
}

func TestScopedName(t *testing.T) {
	if got := scopedName("candidates", 2); got != "candidates_g2" {
		t.Errorf("scopedName = %q", got)
	}
	if got := scopedName("candidates", 0); got != "candidates_allgroups" {
		t.Errorf("scopedName = %q", got)
	}
}
