package main

import (
	"fmt"
	"log"
	"sort"
)

// PartitionRecord is the minimal projection of an article needed to slice the
// corpus into reviewer groups.
type PartitionRecord struct {
	ID      int64
	Authors string
	PMID    int64
	Year    int // 0 when unknown
}

// filterByYear keeps records with year >= yearMin (yearMin <= 0 disables the
// filter). If the filter would leave nothing, the full set is returned so an
// over-tight threshold never empties everyone's workload.
func filterByYear(records []PartitionRecord, yearMin int) []PartitionRecord {
	if yearMin <= 0 {
		return records
	}
	filtered := make([]PartitionRecord, 0, len(records))
	for _, r := range records {
		if r.Year >= yearMin {
			filtered = append(filtered, r)
		}
	}
	if len(filtered) == 0 {
		if len(records) > 0 {
			log.Printf("year filter >= %d matched nothing, using the full set of %d records", yearMin, len(records))
		}
		return records
	}
	return filtered
}

// PartitionGroups buckets records into groupCount disjoint, nearly
// size-balanced groups keyed 1..groupCount.
//
// Survivors of the year filter are stable-sorted by (authors, pmid) and
// record i of n goes to group (i*groupCount)/n + 1, so group sizes differ by
// at most one and sorted neighbours land in the same group. Missing sort keys
// fall back to "" and 0. The assignment is a pure function of the inputs.
func PartitionGroups(records []PartitionRecord, yearMin, groupCount int) (map[int][]int64, error) {
	if groupCount <= 0 {
		return nil, fmt.Errorf("invalid group count %d", groupCount)
	}

	groups := make(map[int][]int64, groupCount)
	for g := 1; g <= groupCount; g++ {
		groups[g] = nil
	}

	rows := filterByYear(records, yearMin)
	n := len(rows)
	if n == 0 {
		return groups, nil
	}

	sorted := make([]PartitionRecord, n)
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Authors != sorted[j].Authors {
			return sorted[i].Authors < sorted[j].Authors
		}
		return sorted[i].PMID < sorted[j].PMID
	})

	for i, r := range sorted {
		g := (i*groupCount)/n + 1
		groups[g] = append(groups[g], r.ID)
	}
	return groups, nil
}

// GroupArticleIDs returns the ids assigned to one group, in partition order.
func GroupArticleIDs(records []PartitionRecord, yearMin, groupCount, groupNo int) ([]int64, error) {
	groups, err := PartitionGroups(records, yearMin, groupCount)
	if err != nil {
		return nil, err
	}
	return groups[groupNo], nil
}

// ScopeArticleIDs returns the ids in screening scope: one group's slice, or
// the whole year-filtered corpus when groupNo is 0.
func ScopeArticleIDs(records []PartitionRecord, yearMin, groupCount, groupNo int) ([]int64, error) {
	if groupNo > 0 {
		return GroupArticleIDs(records, yearMin, groupCount, groupNo)
	}
	rows := filterByYear(records, yearMin)
	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	return ids, nil
}
