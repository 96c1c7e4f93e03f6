package main

import (
	"strings"
	"testing"
)

func TestBuildDigestMessage(t *testing.T) {
	cfg := testConfig()
	cfg.GroupCount = 2
	cfg.GroupNames = []string{"Team Red", "Team Blue"}

	data := DigestData{
		Groups: []GroupStatus{
			{GroupNo: 1, Complete: true, Conflicts: true},
			{GroupNo: 2},
		},
		Progress: []ProgressRow{
			{Username: "bob", GroupNo: 2, Done: 3, Total: 10},
			{Username: "alice", GroupNo: 1, Done: 10, Total: 10},
		},
	}

	msg := BuildDigestMessage(cfg, data)
	if !strings.Contains(msg, "Team Red: complete, conflicts to resolve") {
		t.Errorf("digest missing group 1 state:\n%s", msg)
	}
	if !strings.Contains(msg, "Team Blue: in progress") {
		t.Errorf("digest missing group 2 state:\n%s", msg)
	}
	if !strings.Contains(msg, "alice (Team Red): 10/10 (100%)") {
		t.Errorf("digest missing alice:\n%s", msg)
	}
	if !strings.Contains(msg, "bob (Team Blue): 3/10 (30%)") {
		t.Errorf("digest missing bob:\n%s", msg)
	}
	// Rows are grouped: alice (group 1) before bob (group 2).
	if strings.Index(msg, "alice") > strings.Index(msg, "bob") {
		t.Errorf("progress rows not sorted by group:\n%s", msg)
	}
}

func TestBuildNudgeMessage(t *testing.T) {
	cfg := testConfig()
	msg := BuildNudgeMessage(cfg, ProgressRow{Username: "alice", GroupNo: 1, Done: 7, Total: 10})
	if !strings.Contains(msg, "3 article(s)") {
		t.Errorf("nudge = %q", msg)
	}
	if !strings.Contains(msg, "7/10") {
		t.Errorf("nudge = %q", msg)
	}
}

func TestCollectDigest(t *testing.T) {
	db := newTestDB(t)
	cfg := testConfig()

	alice := mustCreateUser(t, db, cfg, "alice", 1)
	a1 := mustInsertArticle(t, db, Article{PMID: 801, Title: "one", Authors: "A", Year: 2020})
	mustDecide(t, db, alice.ID, a1, DecisionAdopt)

	data, err := CollectDigest(db, cfg)
	if err != nil {
		t.Fatalf("CollectDigest failed: %v", err)
	}
	if len(data.Groups) != cfg.GroupCount {
		t.Fatalf("groups = %d, want %d", len(data.Groups), cfg.GroupCount)
	}
	if !data.Groups[0].Complete || data.Groups[0].Conflicts {
		t.Errorf("group 1 status = %+v", data.Groups[0])
	}
	if len(data.Progress) != 1 || data.Progress[0].Done != 1 {
		t.Errorf("progress = %+v", data.Progress)
	}
}
