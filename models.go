package main

import "time"

// Decision codes. A decision row with Decided=false means the reviewer has
// saved notes but not yet rendered a judgement.
const (
	DecisionExclude = 0
	DecisionAdopt   = 1
	DecisionHold    = 2
)

func DecisionLabel(code int) string {
	switch code {
	case DecisionExclude:
		return "exclude"
	case DecisionAdopt:
		return "adopt"
	case DecisionHold:
		return "hold"
	}
	return "unknown"
}

// Category flags carried on every decision row. The column set is fixed;
// display labels come from config.
const NumCategories = 4

var CategoryColumns = [NumCategories]string{"cat_physical", "cat_brain", "cat_psycho", "cat_drug"}

type User struct {
	ID           int64
	Username     string
	PasswordHash string
	GroupNo      int // 1..GroupCount
	IsAdmin      bool
}

type Article struct {
	ID       int64
	PMID     int64 // external id, 0 when absent
	Title    string
	Abstract string
	Authors  string
	Journal  string
	Year     int // 0 when unknown
	DOI      string

	// Machine pre-screening suggestion, advisory only.
	LLMJudgement string
	LLMReason    string

	CreatedAt time.Time
}

type Decision struct {
	ID        int64
	UserID    int64
	Username  string // filled by queries that join users
	ArticleID int64
	Code      int  // valid only when Decided
	Decided   bool // false maps to NULL in the store
	Comment   string

	CatPhysical bool
	CatBrain    bool
	CatPsycho   bool
	CatDrug     bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (d Decision) CategoryFlags() [NumCategories]bool {
	return [NumCategories]bool{d.CatPhysical, d.CatBrain, d.CatPsycho, d.CatDrug}
}

type ProgressRow struct {
	UserID   int64
	Username string
	GroupNo  int
	Done     int
	Total    int
}

func (p ProgressRow) Percent() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Done) / float64(p.Total) * 100
}
