package main

import "testing"

func TestParseDecisionFlag(t *testing.T) {
	cases := []struct {
		in          string
		wantCode    int
		wantDecided bool
		wantErr     bool
	}{
		{"exclude", DecisionExclude, true, false},
		{"adopt", DecisionAdopt, true, false},
		{"hold", DecisionHold, true, false},
		{"HOLD", DecisionHold, true, false},
		{" adopt ", DecisionAdopt, true, false},
		{"1", DecisionAdopt, true, false},
		{"none", 0, false, false},
		{"", 0, false, false},
		{"maybe", 0, false, true},
	}
	for _, tc := range cases {
		code, decided, err := parseDecisionFlag(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("parseDecisionFlag(%q) err = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if err == nil && (code != tc.wantCode || decided != tc.wantDecided) {
			t.Errorf("parseDecisionFlag(%q) = (%d, %v), want (%d, %v)", tc.in, code, decided, tc.wantCode, tc.wantDecided)
		}
	}
}

func TestParseCategoryFlags(t *testing.T) {
	cfg := testConfig()

	flags, err := parseCategoryFlags(cfg, "physical, drug")
	if err != nil {
		t.Fatalf("parseCategoryFlags failed: %v", err)
	}
	if !flags[0] || flags[1] || flags[2] || !flags[3] {
		t.Errorf("flags = %v", flags)
	}

	// Column names are accepted too.
	flags, err = parseCategoryFlags(cfg, "cat_brain")
	if err != nil {
		t.Fatalf("parseCategoryFlags failed: %v", err)
	}
	if !flags[1] {
		t.Errorf("flags = %v", flags)
	}

	if _, err := parseCategoryFlags(cfg, "bogus"); err == nil {
		t.Error("unknown category accepted")
	}
}
