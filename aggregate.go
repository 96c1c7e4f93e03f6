package main

import (
	"fmt"
	"sort"
	"strings"
)

// CategoryAgg summarizes one category flag across reviewers.
type CategoryAgg struct {
	Votes    string // explicit votes joined with "+", e.g. "1+0+1"
	Final    bool   // true iff at least one reviewer set the flag
	Conflict bool   // true iff flags both set and explicitly unset
}

// AggregatedRow is one article's fold of all reviewer decisions.
type AggregatedRow struct {
	ArticleID int64
	PMID      int64
	Title     string
	Year      int

	Counts     [3]int // histogram over exclude/adopt/hold
	HasVotes   bool
	Aggregated int // valid only when HasVotes

	Voters          []string // "username:code", "-" when undecided
	CombinedComment string

	Categories [NumCategories]CategoryAgg
}

// CountsString renders the histogram in the export's "0:n|1:n|2:n" shape.
func (r AggregatedRow) CountsString() string {
	return fmt.Sprintf("0:%d|1:%d|2:%d", r.Counts[DecisionExclude], r.Counts[DecisionAdopt], r.Counts[DecisionHold])
}

// AggregateDecision picks the code with the highest count; ties go to the
// larger code, so hold beats adopt beats exclude. Returns false when there
// are no submitted codes.
func AggregateDecision(codes []int) (int, bool) {
	var counts [3]int
	total := 0
	for _, c := range codes {
		if c >= 0 && c < len(counts) {
			counts[c]++
			total++
		}
	}
	if total == 0 {
		return 0, false
	}
	best := DecisionExclude
	for c := DecisionAdopt; c <= DecisionHold; c++ {
		if counts[c] >= counts[best] {
			best = c
		}
	}
	return best, true
}

// AggregateArticle folds all decision rows for one article into a single
// export row. Rows carrying neither a code, a comment nor any category flag
// are ignored. Articles without any decision rows still produce a row with
// empty aggregate fields.
func AggregateArticle(art Article, decisions []Decision) AggregatedRow {
	row := AggregatedRow{
		ArticleID: art.ID,
		PMID:      art.PMID,
		Title:     art.Title,
		Year:      art.Year,
	}

	rows := make([]Decision, 0, len(decisions))
	for _, d := range decisions {
		if !d.Decided && d.Comment == "" && d.CategoryFlags() == [NumCategories]bool{} {
			continue
		}
		rows = append(rows, d)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Username < rows[j].Username })

	var codes []int
	var comments []string
	var catVotes [NumCategories][]bool
	for _, d := range rows {
		if d.Decided {
			codes = append(codes, d.Code)
			row.Voters = append(row.Voters, fmt.Sprintf("%s:%d", d.Username, d.Code))
		} else {
			row.Voters = append(row.Voters, d.Username+":-")
		}
		if d.Comment != "" {
			comments = append(comments, fmt.Sprintf("%s:%s", d.Username, d.Comment))
		}
		flags := d.CategoryFlags()
		for i := range flags {
			catVotes[i] = append(catVotes[i], flags[i])
		}
	}

	for _, c := range codes {
		if c >= 0 && c < len(row.Counts) {
			row.Counts[c]++
		}
	}
	row.Aggregated, row.HasVotes = AggregateDecision(codes)
	row.CombinedComment = strings.Join(comments, ";")

	for i, votes := range catVotes {
		var agg CategoryAgg
		var hasTrue, hasFalse bool
		parts := make([]string, 0, len(votes))
		for _, v := range votes {
			if v {
				hasTrue = true
				parts = append(parts, "1")
			} else {
				hasFalse = true
				parts = append(parts, "0")
			}
		}
		agg.Votes = strings.Join(parts, "+")
		agg.Final = hasTrue
		agg.Conflict = hasTrue && hasFalse
		row.Categories[i] = agg
	}
	return row
}

// AggregateArticles folds every article in the given order-independent set,
// returning rows sorted by article id. Pure given a fixed decision snapshot.
func AggregateArticles(articles []Article, decisionsByArticle map[int64][]Decision) []AggregatedRow {
	rows := make([]AggregatedRow, 0, len(articles))
	for _, art := range articles {
		rows = append(rows, AggregateArticle(art, decisionsByArticle[art.ID]))
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ArticleID < rows[j].ArticleID })
	return rows
}

// CandidatePMIDs lists the external ids whose aggregated decision reached
// adopt, sorted ascending and deduplicated. Articles without a pmid are
// skipped.
func CandidatePMIDs(rows []AggregatedRow) []int64 {
	seen := make(map[int64]bool)
	var out []int64
	for _, r := range rows {
		if !r.HasVotes || r.Aggregated < DecisionAdopt || r.PMID == 0 {
			continue
		}
		if !seen[r.PMID] {
			seen[r.PMID] = true
			out = append(out, r.PMID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
