package main

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// loadScopeAggregates builds aggregated rows for one group's slice, or for
// the whole in-scope corpus when groupNo is 0.
func loadScopeAggregates(db *sql.DB, cfg Config, groupNo int) ([]AggregatedRow, error) {
	records, err := ListPartitionRecords(db)
	if err != nil {
		return nil, err
	}
	yearMin, err := GetYearMin(db, cfg.DefaultYearMin)
	if err != nil {
		return nil, err
	}
	ids, err := ScopeArticleIDs(records, yearMin, cfg.GroupCount, groupNo)
	if err != nil {
		return nil, err
	}

	inScope := make(map[int64]bool, len(ids))
	for _, id := range ids {
		inScope[id] = true
	}
	all, err := ListArticles(db)
	if err != nil {
		return nil, err
	}
	articles := make([]Article, 0, len(ids))
	for _, a := range all {
		if inScope[a.ID] {
			articles = append(articles, a)
		}
	}

	decisions, err := GetDecisionsForArticles(db, ids)
	if err != nil {
		return nil, err
	}
	byArticle := make(map[int64][]Decision)
	for _, d := range decisions {
		byArticle[d.ArticleID] = append(byArticle[d.ArticleID], d)
	}
	return AggregateArticles(articles, byArticle), nil
}

// WriteAggregatedCSV streams one row per article: histogram, aggregated
// decision, per-reviewer votes, combined comments and the per-category
// votes/final/conflict triples.
func WriteAggregatedCSV(w io.Writer, cfg Config, rows []AggregatedRow) error {
	if _, err := io.WriteString(w, "\uFEFF"); err != nil {
		return err
	}
	cw := csv.NewWriter(w)

	header := []string{"article_id", "pmid", "title", "aggregated_decision", "decision_counts", "voters_and_decisions", "combined_comment"}
	for i := 0; i < NumCategories; i++ {
		label := cfg.CategoryLabel(i)
		header = append(header, "cat_"+label+"_votes", "cat_"+label+"_final", "cat_"+label+"_conflict")
	}
	header = append(header, "year")
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, r := range rows {
		agg := ""
		if r.HasVotes {
			agg = strconv.Itoa(r.Aggregated)
		}
		rec := []string{
			strconv.FormatInt(r.ArticleID, 10),
			formatPMID(r.PMID),
			r.Title,
			agg,
			r.CountsString(),
			strings.Join(r.Voters, ";"),
			r.CombinedComment,
		}
		for _, c := range r.Categories {
			rec = append(rec, c.Votes, boolFlag(c.Final), boolFlag(c.Conflict))
		}
		rec = append(rec, formatYear(r.Year))
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportAggregatedCSV writes the aggregated report for one group (or all
// groups when groupNo is 0) into the output dir and returns the file path.
func ExportAggregatedCSV(db *sql.DB, cfg Config, groupNo int) (string, error) {
	rows, err := loadScopeAggregates(db, cfg, groupNo)
	if err != nil {
		return "", err
	}
	path := exportPath(cfg.OutputDir, scopedName("aggregated", groupNo), "csv")
	f, err := createExportFile(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := WriteAggregatedCSV(f, cfg, rows); err != nil {
		return "", err
	}
	return path, nil
}

// WriteDecisionsCSV streams the raw store: one row per (reviewer, article)
// decision with comment and category flags.
func WriteDecisionsCSV(w io.Writer, cfg Config, articles []Article, decisionsByArticle map[int64][]Decision) error {
	if _, err := io.WriteString(w, "\uFEFF"); err != nil {
		return err
	}
	cw := csv.NewWriter(w)

	header := []string{"article_id", "pmid", "title", "username", "decision", "comment"}
	for i := 0; i < NumCategories; i++ {
		header = append(header, "cat_"+cfg.CategoryLabel(i))
	}
	header = append(header, "llm_judgement", "year")
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, a := range articles {
		for _, d := range decisionsByArticle[a.ID] {
			code := ""
			if d.Decided {
				code = strconv.Itoa(d.Code)
			}
			rec := []string{
				strconv.FormatInt(a.ID, 10),
				formatPMID(a.PMID),
				a.Title,
				d.Username,
				code,
				d.Comment,
			}
			for _, f := range d.CategoryFlags() {
				rec = append(rec, boolFlag(f))
			}
			rec = append(rec, a.LLMJudgement, formatYear(a.Year))
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func ExportDecisionsCSV(db *sql.DB, cfg Config) (string, error) {
	articles, err := ListArticles(db)
	if err != nil {
		return "", err
	}
	ids := make([]int64, len(articles))
	for i, a := range articles {
		ids[i] = a.ID
	}
	decisions, err := GetDecisionsForArticles(db, ids)
	if err != nil {
		return "", err
	}
	byArticle := make(map[int64][]Decision)
	for _, d := range decisions {
		byArticle[d.ArticleID] = append(byArticle[d.ArticleID], d)
	}

	path := exportPath(cfg.OutputDir, "decisions", "csv")
	f, err := createExportFile(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := WriteDecisionsCSV(f, cfg, articles, byArticle); err != nil {
		return "", err
	}
	return path, nil
}

// ExportCandidates writes the secondary-screening candidate list: one pmid
// per line for articles whose aggregated decision reached adopt. A specific
// group must be complete and conflict-free; the all-groups export (groupNo 0)
// runs unconditionally so the current union is always downloadable.
func ExportCandidates(db *sql.DB, cfg Config, groupNo int) (string, error) {
	if groupNo > 0 {
		complete, conflicts, err := CheckGroupStatus(db, cfg, groupNo)
		if err != nil {
			return "", err
		}
		if !complete || conflicts {
			return "", fmt.Errorf("group %d screening is incomplete or has unresolved conflicts", groupNo)
		}
	}

	rows, err := loadScopeAggregates(db, cfg, groupNo)
	if err != nil {
		return "", err
	}
	pmids := CandidatePMIDs(rows)

	path := exportPath(cfg.OutputDir, scopedName("candidates", groupNo), "txt")
	f, err := createExportFile(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	for _, pmid := range pmids {
		if _, err := fmt.Fprintf(f, "%d\n", pmid); err != nil {
			return "", err
		}
	}
	return path, nil
}

// WriteCategoryListsCSV writes per-category sections of accepted/hold
// articles with their vote summaries, always across all groups.
func WriteCategoryListsCSV(w io.Writer, cfg Config, rows []AggregatedRow) error {
	if _, err := io.WriteString(w, "\uFEFF"); err != nil {
		return err
	}
	cw := csv.NewWriter(w)

	for i := 0; i < NumCategories; i++ {
		if err := cw.Write([]string{"cat_" + cfg.CategoryLabel(i)}); err != nil {
			return err
		}
		if err := cw.Write([]string{"article_id", "pmid", "title", "status", "votes_summary"}); err != nil {
			return err
		}
		for _, r := range rows {
			c := r.Categories[i]
			if c.Votes == "" {
				continue
			}
			status := "hold"
			if c.Final {
				status = "accepted"
			}
			rec := []string{
				strconv.FormatInt(r.ArticleID, 10),
				formatPMID(r.PMID),
				r.Title,
				status,
				c.Votes,
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
		if err := cw.Write([]string{}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func ExportCategoryLists(db *sql.DB, cfg Config) (string, error) {
	rows, err := loadScopeAggregates(db, cfg, 0)
	if err != nil {
		return "", err
	}
	path := exportPath(cfg.OutputDir, "category_lists", "csv")
	f, err := createExportFile(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := WriteCategoryListsCSV(f, cfg, rows); err != nil {
		return "", err
	}
	return path, nil
}

// --- file helpers ---

func scopedName(base string, groupNo int) string {
	if groupNo > 0 {
		return fmt.Sprintf("%s_g%d", base, groupNo)
	}
	return base + "_allgroups"
}

func exportPath(outputDir, name, ext string) string {
	ts := time.Now().UTC().Format("20060102_150405")
	return filepath.Join(outputDir, fmt.Sprintf("%s_%s.%s", name, ts, ext))
}

func createExportFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.Create(path)
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func formatPMID(pmid int64) string {
	if pmid == 0 {
		return ""
	}
	return strconv.FormatInt(pmid, 10)
}

func formatYear(year int) string {
	if year == 0 {
		return ""
	}
	return strconv.Itoa(year)
}
