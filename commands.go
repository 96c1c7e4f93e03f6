package main

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/slack-go/slack"
	"github.com/spf13/cobra"
)

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "litscreen",
		Short:         "Multi-reviewer literature screening for systematic reviews",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(
		initCmd(),
		importCmd(),
		usersCmd(),
		assignCmd(),
		decideCmd(),
		progressCmd(),
		statusCmd(),
		conflictsCmd(),
		resolveCmd(),
		yearMinCmd(),
		exportCmd(),
		assistCmd(),
		watchCmd(),
	)
	return cmd
}

// openStore loads config and opens the database for a command run.
func openStore() (*sql.DB, Config, error) {
	cfg := LoadConfig()
	db, err := InitDB(cfg.DBPath)
	if err != nil {
		return nil, cfg, fmt.Errorf("opening database %s: %w", cfg.DBPath, err)
	}
	return db, cfg, nil
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, cfg, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			fmt.Printf("Initialized %s\n", cfg.DBPath)
			return nil
		},
	}
}

func importCmd() *cobra.Command {
	var csvPath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import the screening corpus from a CSV file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			result, err := ImportCSV(db, csvPath)
			if err != nil {
				return err
			}
			fmt.Printf("Imported %d article(s), skipped %d\n", result.Inserted, result.Skipped)
			return nil
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "path to the corpus CSV")
	cmd.MarkFlagRequired("csv")
	return cmd
}

func usersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage reviewers",
	}

	var password string
	var groupNo int
	var admin bool
	add := &cobra.Command{
		Use:   "add <username>",
		Short: "Provision a reviewer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, cfg, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			u, err := CreateUser(db, cfg, args[0], password, groupNo, admin)
			if err != nil {
				return err
			}
			fmt.Printf("Created %s (id %d) in %s\n", u.Username, u.ID, cfg.GroupName(u.GroupNo))
			return nil
		},
	}
	add.Flags().StringVar(&password, "password", "", "login password")
	add.Flags().IntVar(&groupNo, "group", 1, "reviewer group")
	add.Flags().BoolVar(&admin, "admin", false, "grant admin rights")
	add.MarkFlagRequired("password")

	list := &cobra.Command{
		Use:   "list",
		Short: "List reviewers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, cfg, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			users, err := ListUsers(db)
			if err != nil {
				return err
			}
			for _, u := range users {
				role := ""
				if u.IsAdmin {
					role = " (admin)"
				}
				fmt.Printf("%d\t%s\t%s%s\n", u.ID, u.Username, cfg.GroupName(u.GroupNo), role)
			}
			return nil
		},
	}

	var newGroup int
	setGroup := &cobra.Command{
		Use:   "set-group <username>",
		Short: "Move a reviewer to another group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, cfg, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			if newGroup < 1 || newGroup > cfg.GroupCount {
				return fmt.Errorf("group %d out of range 1..%d", newGroup, cfg.GroupCount)
			}
			if err := UpdateUserGroup(db, args[0], newGroup); err != nil {
				return err
			}
			fmt.Printf("Moved %s to %s\n", args[0], cfg.GroupName(newGroup))
			return nil
		},
	}
	setGroup.Flags().IntVar(&newGroup, "group", 0, "target group")
	setGroup.MarkFlagRequired("group")

	cmd.AddCommand(add, list, setGroup)
	return cmd
}

func assignCmd() *cobra.Command {
	var groupCount int
	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Show the current corpus partition",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, cfg, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			if groupCount == 0 {
				groupCount = cfg.GroupCount
			}
			records, err := ListPartitionRecords(db)
			if err != nil {
				return err
			}
			yearMin, err := GetYearMin(db, cfg.DefaultYearMin)
			if err != nil {
				return err
			}
			groups, err := PartitionGroups(records, yearMin, groupCount)
			if err != nil {
				return err
			}

			if yearMin > 0 {
				fmt.Printf("Year threshold: >= %d\n", yearMin)
			}
			for g := 1; g <= groupCount; g++ {
				fmt.Printf("%s: %d article(s)\n", cfg.GroupName(g), len(groups[g]))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&groupCount, "groups", 0, "partition into this many groups instead of the configured count")
	return cmd
}

func parseDecisionFlag(s string) (code int, decided bool, err error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "exclude", "0":
		return DecisionExclude, true, nil
	case "adopt", "1":
		return DecisionAdopt, true, nil
	case "hold", "2":
		return DecisionHold, true, nil
	case "none", "":
		return 0, false, nil
	}
	return 0, false, fmt.Errorf("unknown decision %q (want exclude, adopt, hold or none)", s)
}

func decideCmd() *cobra.Command {
	var username, decision, comment, categories string
	var articleID int64
	cmd := &cobra.Command{
		Use:   "decide",
		Short: "Record or update one reviewer's decision on an article",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, cfg, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			user, err := GetUserByUsername(db, username)
			if err == sql.ErrNoRows {
				return fmt.Errorf("no such user %q", username)
			}
			if err != nil {
				return err
			}
			if _, err := GetArticleByID(db, articleID); err == sql.ErrNoRows {
				return fmt.Errorf("no such article %d", articleID)
			} else if err != nil {
				return err
			}

			code, decided, err := parseDecisionFlag(decision)
			if err != nil {
				return err
			}
			d := Decision{
				UserID:    user.ID,
				ArticleID: articleID,
				Code:      code,
				Decided:   decided,
				Comment:   comment,
			}
			if categories != "" {
				flags, err := parseCategoryFlags(cfg, categories)
				if err != nil {
					return err
				}
				d.CatPhysical, d.CatBrain, d.CatPsycho, d.CatDrug = flags[0], flags[1], flags[2], flags[3]
			}
			if err := UpsertDecision(db, d); err != nil {
				return err
			}
			label := "cleared"
			if decided {
				label = DecisionLabel(code)
			}
			fmt.Printf("Saved %s on article %d for %s\n", label, articleID, username)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "user", "", "reviewer username")
	cmd.Flags().Int64Var(&articleID, "article", 0, "article id")
	cmd.Flags().StringVar(&decision, "decision", "none", "exclude, adopt, hold or none")
	cmd.Flags().StringVar(&comment, "comment", "", "reviewer comment")
	cmd.Flags().StringVar(&categories, "categories", "", "comma-separated category labels")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("article")
	return cmd
}

// parseCategoryFlags maps comma-separated labels to the fixed flag columns.
func parseCategoryFlags(cfg Config, s string) ([NumCategories]bool, error) {
	var flags [NumCategories]bool
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		found := false
		for i := 0; i < NumCategories; i++ {
			if part == strings.ToLower(cfg.CategoryLabel(i)) || part == CategoryColumns[i] {
				flags[i] = true
				found = true
				break
			}
		}
		if !found {
			return flags, fmt.Errorf("unknown category %q", part)
		}
	}
	return flags, nil
}

func progressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "progress",
		Short: "Show per-reviewer screening progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, cfg, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			rows, err := ProgressReport(db, cfg)
			if err != nil {
				return err
			}
			for _, r := range rows {
				fmt.Printf("%s\t%s\t%d/%d\t%.0f%%\n", r.Username, cfg.GroupName(r.GroupNo), r.Done, r.Total, r.Percent())
			}
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	var groupNo int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a group's completion and conflict state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, cfg, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			groups := []int{groupNo}
			if groupNo == 0 {
				groups = groups[:0]
				for g := 1; g <= cfg.GroupCount; g++ {
					groups = append(groups, g)
				}
			}
			for _, g := range groups {
				complete, conflicts, err := CheckGroupStatus(db, cfg, g)
				if err != nil {
					return err
				}
				state := "in progress"
				switch {
				case complete && conflicts:
					state = "complete, conflicts to resolve"
				case complete:
					state = "complete"
				}
				fmt.Printf("%s: %s\n", cfg.GroupName(g), state)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&groupNo, "group", 0, "group number (0 = all groups)")
	return cmd
}

func conflictsCmd() *cobra.Command {
	var groupNo int
	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "List a group's conflicted articles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, cfg, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			conflicted, err := ConflictedArticles(db, cfg, groupNo)
			if err != nil {
				return err
			}
			if len(conflicted) == 0 {
				fmt.Printf("%s: no conflicts\n", cfg.GroupName(groupNo))
				return nil
			}
			for _, c := range conflicted {
				votes := make([]string, 0, len(c.Votes))
				for _, v := range c.Votes {
					votes = append(votes, fmt.Sprintf("%s:%s", v.Username, DecisionLabel(v.Code)))
				}
				sort.Strings(votes)
				fmt.Printf("%d\t%s\t%s\n", c.Article.ID, c.Article.Title, strings.Join(votes, " "))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&groupNo, "group", 0, "group number")
	cmd.MarkFlagRequired("group")
	return cmd
}

func resolveCmd() *cobra.Command {
	var articleID int64
	var decision string
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Overwrite every reviewer's decision on an article",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			code, decided, err := parseDecisionFlag(decision)
			if err != nil {
				return err
			}
			if !decided {
				return fmt.Errorf("resolution needs a concrete decision (exclude, adopt or hold)")
			}
			affected, err := ResolveDecisions(db, articleID, code)
			if err != nil {
				return err
			}
			if affected == 0 {
				fmt.Printf("Article %d has no decisions, nothing to resolve\n", articleID)
				return nil
			}
			fmt.Printf("Resolved article %d to %s (%d row(s))\n", articleID, DecisionLabel(code), affected)
			return nil
		},
	}
	cmd.Flags().Int64Var(&articleID, "article", 0, "article id")
	cmd.Flags().StringVar(&decision, "decision", "", "exclude, adopt or hold")
	cmd.MarkFlagRequired("article")
	cmd.MarkFlagRequired("decision")
	return cmd
}

func yearMinCmd() *cobra.Command {
	var set int
	cmd := &cobra.Command{
		Use:   "year-min",
		Short: "Show or change the publication year threshold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, cfg, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			if cmd.Flags().Changed("set") {
				if set < 0 {
					return fmt.Errorf("year threshold must be >= 0")
				}
				if err := SetYearMin(db, set); err != nil {
					return err
				}
			}
			yearMin, err := GetYearMin(db, cfg.DefaultYearMin)
			if err != nil {
				return err
			}
			if yearMin == 0 {
				fmt.Println("Year threshold: disabled")
			} else {
				fmt.Printf("Year threshold: >= %d\n", yearMin)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&set, "set", 0, "new threshold (0 disables)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write screening exports",
	}

	var aggGroup int
	aggregated := &cobra.Command{
		Use:   "aggregated",
		Short: "Aggregated decisions per article (CSV)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, cfg, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			path, err := ExportAggregatedCSV(db, cfg, aggGroup)
			if err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	aggregated.Flags().IntVar(&aggGroup, "group", 0, "group number (0 = all groups)")

	decisions := &cobra.Command{
		Use:   "decisions",
		Short: "Raw per-reviewer decisions (CSV)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, cfg, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			path, err := ExportDecisionsCSV(db, cfg)
			if err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}

	var candGroup int
	candidates := &cobra.Command{
		Use:   "candidates",
		Short: "Secondary-screening pmid list (one per line)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, cfg, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			path, err := ExportCandidates(db, cfg, candGroup)
			if err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	candidates.Flags().IntVar(&candGroup, "group", 0, "group number (0 = all groups, no completeness gate)")

	categories := &cobra.Command{
		Use:   "categories",
		Short: "Per-category article lists (CSV)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, cfg, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			path, err := ExportCategoryLists(db, cfg)
			if err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}

	cmd.AddCommand(aggregated, decisions, candidates, categories)
	return cmd
}

func assistCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "assist",
		Short: "Generate machine pre-screening suggestions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, cfg, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			n, usage, err := RunAssist(db, cfg, limit)
			if err != nil {
				return err
			}
			fmt.Printf("Stored %d suggestion(s), tokens in=%d out=%d\n", n, usage.InputTokens, usage.OutputTokens)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "max articles to process (0 = all)")
	return cmd
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run the scheduled progress digest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, cfg, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			api := slack.New(cfg.SlackBotToken)
			return StartNudgeScheduler(db, cfg, api)
		},
	}
}
