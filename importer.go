package main

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
)

// ImportResult summarizes one CSV import run.
type ImportResult struct {
	Inserted int
	Skipped  int // duplicate pmids and unparsable rows
}

// ImportCSV loads the screening corpus from a CSV file. The header row names
// the columns; pmid, title, abstract, authors, journal, year and doi are
// recognized, anything else is ignored. Rows whose pmid is already stored are
// skipped so re-importing the same file is safe.
func ImportCSV(db *sql.DB, path string) (ImportResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return ImportResult{}, err
	}
	defer f.Close()
	return importCSVReader(db, f)
}

func importCSVReader(db *sql.DB, r io.Reader) (ImportResult, error) {
	var result ImportResult

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return result, fmt.Errorf("empty CSV")
	}
	if err != nil {
		return result, err
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\uFEFF")))
		col[name] = i
	}
	if _, ok := col["title"]; !ok {
		return result, fmt.Errorf("CSV has no title column")
	}

	field := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	seen := make(map[int64]bool)
	var batch []Article
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return result, err
		}

		a := Article{
			Title:    field(rec, "title"),
			Abstract: field(rec, "abstract"),
			Authors:  field(rec, "authors"),
			Journal:  field(rec, "journal"),
			DOI:      field(rec, "doi"),
		}
		if a.Title == "" {
			result.Skipped++
			continue
		}
		if s := field(rec, "pmid"); s != "" {
			pmid, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				log.Printf("Skipping row with bad pmid %q", s)
				result.Skipped++
				continue
			}
			a.PMID = pmid
		}
		if s := field(rec, "year"); s != "" {
			if year, err := strconv.Atoi(s); err == nil {
				a.Year = year
			}
		}

		if a.PMID != 0 {
			if seen[a.PMID] {
				result.Skipped++
				continue
			}
			exists, err := ArticlePMIDExists(db, a.PMID)
			if err != nil {
				return result, err
			}
			if exists {
				result.Skipped++
				continue
			}
			seen[a.PMID] = true
		}
		batch = append(batch, a)
	}

	inserted, err := InsertArticles(db, batch)
	result.Inserted = inserted
	if err != nil {
		return result, err
	}
	return result, nil
}
