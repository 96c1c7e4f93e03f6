package main

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		username      TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		group_no      INTEGER NOT NULL DEFAULT 1,
		is_admin      INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS articles (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		pmid       INTEGER DEFAULT 0,
		title      TEXT DEFAULT '',
		abstract   TEXT DEFAULT '',
		authors    TEXT DEFAULT '',
		journal    TEXT DEFAULT '',
		year       INTEGER DEFAULT 0,
		doi        TEXT DEFAULT '',
		llm_judgement TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_articles_pmid ON articles(pmid);

	CREATE TABLE IF NOT EXISTS decisions (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id      INTEGER NOT NULL,
		article_id   INTEGER NOT NULL,
		decision     INTEGER,
		comment      TEXT NOT NULL DEFAULT '',
		cat_physical INTEGER NOT NULL DEFAULT 0,
		cat_brain    INTEGER NOT NULL DEFAULT 0,
		cat_psycho   INTEGER NOT NULL DEFAULT 0,
		cat_drug     INTEGER NOT NULL DEFAULT 0,
		created_at   DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at   DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(user_id, article_id)
	);
	CREATE INDEX IF NOT EXISTS idx_decisions_article ON decisions(article_id);
	CREATE INDEX IF NOT EXISTS idx_decisions_user ON decisions(user_id);

	CREATE TABLE IF NOT EXISTS app_config (
		id       INTEGER PRIMARY KEY CHECK (id = 1),
		year_min INTEGER
	);
	`
	if _, err = db.Exec(schema); err != nil {
		return nil, err
	}

	// Migration: add llm_reason column if missing.
	var colCount int
	_ = db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('articles') WHERE name = 'llm_reason'`).Scan(&colCount)
	if colCount == 0 {
		_, _ = db.Exec(`ALTER TABLE articles ADD COLUMN llm_reason TEXT DEFAULT ''`)
	}

	return db, nil
}

// --- Articles ---

func InsertArticles(db *sql.DB, articles []Article) (int, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO articles (pmid, title, abstract, authors, journal, year, doi)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	inserted := 0
	for _, a := range articles {
		if _, err := stmt.Exec(a.PMID, a.Title, a.Abstract, a.Authors, a.Journal, a.Year, a.DOI); err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, tx.Commit()
}

func GetArticleByID(db *sql.DB, id int64) (Article, error) {
	var a Article
	err := db.QueryRow(
		`SELECT id, pmid, title, abstract, authors, journal, year, doi, llm_judgement, llm_reason, created_at
		 FROM articles WHERE id = ?`,
		id,
	).Scan(
		&a.ID, &a.PMID, &a.Title, &a.Abstract, &a.Authors, &a.Journal,
		&a.Year, &a.DOI, &a.LLMJudgement, &a.LLMReason, &a.CreatedAt,
	)
	return a, err
}

func ListArticles(db *sql.DB) ([]Article, error) {
	rows, err := db.Query(
		`SELECT id, pmid, title, abstract, authors, journal, year, doi, llm_judgement, llm_reason, created_at
		 FROM articles ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Article
	for rows.Next() {
		var a Article
		if err := rows.Scan(
			&a.ID, &a.PMID, &a.Title, &a.Abstract, &a.Authors, &a.Journal,
			&a.Year, &a.DOI, &a.LLMJudgement, &a.LLMReason, &a.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func ListPartitionRecords(db *sql.DB) ([]PartitionRecord, error) {
	rows, err := db.Query(`SELECT id, authors, pmid, year FROM articles ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PartitionRecord
	for rows.Next() {
		var r PartitionRecord
		if err := rows.Scan(&r.ID, &r.Authors, &r.PMID, &r.Year); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func ArticlePMIDExists(db *sql.DB, pmid int64) (bool, error) {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM articles WHERE pmid = ?`, pmid).Scan(&count)
	return count > 0, err
}

// ListArticlesNeedingAssist returns articles with no machine suggestion yet,
// oldest first. limit <= 0 means no limit.
func ListArticlesNeedingAssist(db *sql.DB, limit int) ([]Article, error) {
	query := `SELECT id, pmid, title, abstract, authors, journal, year, doi, llm_judgement, llm_reason, created_at
		 FROM articles WHERE llm_judgement = '' ORDER BY id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Article
	for rows.Next() {
		var a Article
		if err := rows.Scan(
			&a.ID, &a.PMID, &a.Title, &a.Abstract, &a.Authors, &a.Journal,
			&a.Year, &a.DOI, &a.LLMJudgement, &a.LLMReason, &a.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func SaveAssistSuggestions(db *sql.DB, suggestions map[int64]AssistSuggestion) error {
	if len(suggestions) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`UPDATE articles SET llm_judgement = ?, llm_reason = ? WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for id, s := range suggestions {
		if _, err := stmt.Exec(s.Judgement, s.Reason, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// --- Users ---

func InsertUser(db *sql.DB, u User) (int64, error) {
	res, err := db.Exec(
		`INSERT INTO users (username, password_hash, group_no, is_admin) VALUES (?, ?, ?, ?)`,
		u.Username, u.PasswordHash, u.GroupNo, u.IsAdmin,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func GetUserByUsername(db *sql.DB, username string) (User, error) {
	var u User
	err := db.QueryRow(
		`SELECT id, username, password_hash, group_no, is_admin FROM users WHERE username = ?`,
		username,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.GroupNo, &u.IsAdmin)
	return u, err
}

func ListUsers(db *sql.DB) ([]User, error) {
	rows, err := db.Query(`SELECT id, username, password_hash, group_no, is_admin FROM users ORDER BY group_no, username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.GroupNo, &u.IsAdmin); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func GetUsersByGroup(db *sql.DB, groupNo int) ([]User, error) {
	rows, err := db.Query(
		`SELECT id, username, password_hash, group_no, is_admin FROM users WHERE group_no = ? ORDER BY username`,
		groupNo,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.GroupNo, &u.IsAdmin); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func UpdateUserGroup(db *sql.DB, username string, groupNo int) error {
	res, err := db.Exec(`UPDATE users SET group_no = ? WHERE username = ?`, groupNo, username)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("no such user %q", username)
	}
	return nil
}

// --- Decisions ---

// UpsertDecision creates or overwrites the one decision row per
// (reviewer, article) pair. Resubmitting without a code clears the stored
// code to NULL; comment and category flags are always overwritten. Last
// writer wins.
func UpsertDecision(db *sql.DB, d Decision) error {
	var code any
	if d.Decided {
		code = d.Code
	}
	_, err := db.Exec(
		`INSERT INTO decisions (user_id, article_id, decision, comment, cat_physical, cat_brain, cat_psycho, cat_drug)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, article_id) DO UPDATE SET
		   decision = excluded.decision,
		   comment = excluded.comment,
		   cat_physical = excluded.cat_physical,
		   cat_brain = excluded.cat_brain,
		   cat_psycho = excluded.cat_psycho,
		   cat_drug = excluded.cat_drug,
		   updated_at = CURRENT_TIMESTAMP`,
		d.UserID, d.ArticleID, code, d.Comment, d.CatPhysical, d.CatBrain, d.CatPsycho, d.CatDrug,
	)
	return err
}

func scanDecision(rows *sql.Rows) (Decision, error) {
	var d Decision
	var code sql.NullInt64
	err := rows.Scan(
		&d.ID, &d.UserID, &d.Username, &d.ArticleID, &code, &d.Comment,
		&d.CatPhysical, &d.CatBrain, &d.CatPsycho, &d.CatDrug,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return d, err
	}
	if code.Valid {
		d.Code = int(code.Int64)
		d.Decided = true
	}
	return d, nil
}

const decisionColumns = `d.id, d.user_id, u.username, d.article_id, d.decision, d.comment,
		 d.cat_physical, d.cat_brain, d.cat_psycho, d.cat_drug, d.created_at, d.updated_at`

// GetDecisionsForArticles loads all decision rows (joined with usernames) for
// the given articles, ordered by article then username.
func GetDecisionsForArticles(db *sql.DB, articleIDs []int64) ([]Decision, error) {
	if len(articleIDs) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(
		`SELECT `+decisionColumns+`
		 FROM decisions d JOIN users u ON u.id = d.user_id
		 WHERE d.article_id IN (%s)
		 ORDER BY d.article_id, u.username`,
		placeholders(len(articleIDs)),
	)
	rows, err := db.Query(query, int64Args(articleIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func GetDecisionForPair(db *sql.DB, userID, articleID int64) (Decision, error) {
	rows, err := db.Query(
		`SELECT `+decisionColumns+`
		 FROM decisions d JOIN users u ON u.id = d.user_id
		 WHERE d.user_id = ? AND d.article_id = ?`,
		userID, articleID,
	)
	if err != nil {
		return Decision{}, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return Decision{}, err
		}
		return Decision{}, sql.ErrNoRows
	}
	return scanDecision(rows)
}

// GetDecisionCodes maps article -> reviewer -> submitted code, skipping NULL
// decisions.
func GetDecisionCodes(db *sql.DB, articleIDs []int64) (GroupVotes, error) {
	votes := make(GroupVotes)
	if len(articleIDs) == 0 {
		return votes, nil
	}
	query := fmt.Sprintf(
		`SELECT article_id, user_id, decision FROM decisions
		 WHERE article_id IN (%s) AND decision IS NOT NULL`,
		placeholders(len(articleIDs)),
	)
	rows, err := db.Query(query, int64Args(articleIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var aid, uid int64
		var code int
		if err := rows.Scan(&aid, &uid, &code); err != nil {
			return nil, err
		}
		if votes[aid] == nil {
			votes[aid] = make(map[int64]int)
		}
		votes[aid][uid] = code
	}
	return votes, rows.Err()
}

func CountDecidedByUser(db *sql.DB, userID int64, articleIDs []int64) (int, error) {
	if len(articleIDs) == 0 {
		return 0, nil
	}
	query := fmt.Sprintf(
		`SELECT COUNT(*) FROM decisions
		 WHERE user_id = ? AND decision IS NOT NULL AND article_id IN (%s)`,
		placeholders(len(articleIDs)),
	)
	args := append([]any{userID}, int64Args(articleIDs)...)
	var count int
	err := db.QueryRow(query, args...).Scan(&count)
	return count, err
}

// ResolveDecisions overwrites every reviewer's decision code for one article
// with the administrator's resolution. Comments and category flags are left
// untouched; an article with no decision rows is a silent no-op.
func ResolveDecisions(db *sql.DB, articleID int64, code int) (int64, error) {
	res, err := db.Exec(
		`UPDATE decisions SET decision = ?, updated_at = CURRENT_TIMESTAMP WHERE article_id = ?`,
		code, articleID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- App config ---

// GetYearMin reads the year threshold, lazily creating the singleton row with
// the configured default on first read. 0 means no threshold.
func GetYearMin(db *sql.DB, defaultYearMin int) (int, error) {
	var yearMin sql.NullInt64
	err := db.QueryRow(`SELECT year_min FROM app_config WHERE id = 1`).Scan(&yearMin)
	if err == sql.ErrNoRows {
		var def any
		if defaultYearMin > 0 {
			def = defaultYearMin
		}
		if _, err := db.Exec(`INSERT INTO app_config (id, year_min) VALUES (1, ?)`, def); err != nil {
			return 0, err
		}
		return defaultYearMin, nil
	}
	if err != nil {
		return 0, err
	}
	if !yearMin.Valid {
		return 0, nil
	}
	return int(yearMin.Int64), nil
}

// SetYearMin updates the year threshold; 0 clears it.
func SetYearMin(db *sql.DB, yearMin int) error {
	var val any
	if yearMin > 0 {
		val = yearMin
	}
	_, err := db.Exec(
		`INSERT INTO app_config (id, year_min) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET year_min = excluded.year_min`,
		val,
	)
	return err
}

// --- helpers ---

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
