package main

import (
	"database/sql"
	"fmt"
)

// GroupVotes maps article id -> reviewer id -> decision code. Rows with a
// NULL decision are absent.
type GroupVotes map[int64]map[int64]int

// IsConflict reports whether a set of submitted codes for one article splits
// strictly between adopt and exclude. Any hold vote suppresses the conflict.
func IsConflict(codes []int) bool {
	var hasAdopt, hasHold, hasExclude bool
	for _, c := range codes {
		switch c {
		case DecisionAdopt:
			hasAdopt = true
		case DecisionHold:
			hasHold = true
		case DecisionExclude:
			hasExclude = true
		}
	}
	return !hasHold && hasAdopt && hasExclude
}

// EvaluateGroupStatus determines whether every reviewer has decided every
// assigned article and, only once that gate passes, whether any article's
// votes are in conflict. Empty reviewer or article sets are benign incomplete
// states, never an error.
func EvaluateGroupStatus(articleIDs, reviewerIDs []int64, votes GroupVotes) (complete, conflicts bool) {
	if len(reviewerIDs) == 0 || len(articleIDs) == 0 {
		return false, false
	}

	for _, uid := range reviewerIDs {
		for _, aid := range articleIDs {
			if _, ok := votes[aid][uid]; !ok {
				return false, false
			}
		}
	}

	for _, aid := range articleIDs {
		codes := make([]int, 0, len(votes[aid]))
		for _, c := range votes[aid] {
			codes = append(codes, c)
		}
		if IsConflict(codes) {
			return true, true
		}
	}
	return true, false
}

// CheckGroupStatus recomputes a group's completion and conflict state from
// the store. Nothing is cached: the year threshold can change between calls.
func CheckGroupStatus(db *sql.DB, cfg Config, groupNo int) (complete, conflicts bool, err error) {
	users, err := GetUsersByGroup(db, groupNo)
	if err != nil {
		return false, false, err
	}
	articleIDs, err := groupSliceIDs(db, cfg, groupNo)
	if err != nil {
		return false, false, err
	}
	votes, err := GetDecisionCodes(db, articleIDs)
	if err != nil {
		return false, false, err
	}

	reviewerIDs := make([]int64, 0, len(users))
	for _, u := range users {
		reviewerIDs = append(reviewerIDs, u.ID)
	}
	complete, conflicts = EvaluateGroupStatus(articleIDs, reviewerIDs, votes)
	return complete, conflicts, nil
}

// ConflictedArticle pairs an article with the votes that disagree on it.
type ConflictedArticle struct {
	Article Article
	Votes   []Decision
}

// ConflictedArticles lists the group's conflicts. The list is empty unless
// the group has completed screening: partial disagreement is not surfaced.
func ConflictedArticles(db *sql.DB, cfg Config, groupNo int) ([]ConflictedArticle, error) {
	complete, hasConflicts, err := CheckGroupStatus(db, cfg, groupNo)
	if err != nil {
		return nil, err
	}
	if !complete || !hasConflicts {
		return nil, nil
	}

	articleIDs, err := groupSliceIDs(db, cfg, groupNo)
	if err != nil {
		return nil, err
	}
	decisions, err := GetDecisionsForArticles(db, articleIDs)
	if err != nil {
		return nil, err
	}
	byArticle := make(map[int64][]Decision)
	for _, d := range decisions {
		if d.Decided {
			byArticle[d.ArticleID] = append(byArticle[d.ArticleID], d)
		}
	}

	var out []ConflictedArticle
	for _, aid := range articleIDs {
		votes := byArticle[aid]
		codes := make([]int, 0, len(votes))
		for _, v := range votes {
			codes = append(codes, v.Code)
		}
		if !IsConflict(codes) {
			continue
		}
		art, err := GetArticleByID(db, aid)
		if err != nil {
			return nil, fmt.Errorf("loading article %d: %w", aid, err)
		}
		out = append(out, ConflictedArticle{Article: art, Votes: votes})
	}
	return out, nil
}

// UserProgress recomputes one reviewer's completion against their group's
// current slice.
func UserProgress(db *sql.DB, cfg Config, user User) (ProgressRow, error) {
	row := ProgressRow{UserID: user.ID, Username: user.Username, GroupNo: user.GroupNo}
	articleIDs, err := groupSliceIDs(db, cfg, user.GroupNo)
	if err != nil {
		return row, err
	}
	done, err := CountDecidedByUser(db, user.ID, articleIDs)
	if err != nil {
		return row, err
	}
	row.Done = done
	row.Total = len(articleIDs)
	return row, nil
}

// ProgressReport computes progress for every reviewer, ordered by group then
// username.
func ProgressReport(db *sql.DB, cfg Config) ([]ProgressRow, error) {
	users, err := ListUsers(db)
	if err != nil {
		return nil, err
	}
	rows := make([]ProgressRow, 0, len(users))
	for _, u := range users {
		row, err := UserProgress(db, cfg, u)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// groupSliceIDs derives a group's assigned articles from the partitioner
// under the current year threshold (0 means the whole in-scope corpus).
func groupSliceIDs(db *sql.DB, cfg Config, groupNo int) ([]int64, error) {
	records, err := ListPartitionRecords(db)
	if err != nil {
		return nil, err
	}
	yearMin, err := GetYearMin(db, cfg.DefaultYearMin)
	if err != nil {
		return nil, err
	}
	return ScopeArticleIDs(records, yearMin, cfg.GroupCount, groupNo)
}
