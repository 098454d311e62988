// Package migration はドキュメントストアのスキーマ適用を管理する。
// embedされたSQLファイルを番号順に実行し、適用済みバージョンを
// schema_migrationsテーブルで追跡する。
package migration

import (
	"database/sql"
	"fmt"
	"io/fs"
	"log"
	"slices"
	"strconv"
	"strings"
)

// script は1つのマイグレーションSQLファイルを表す。
// ファイル名形式: 000001_description.up.sql
type script struct {
	version int
	name    string
	path    string
}

// Run は未適用のマイグレーションをバージョン順にすべて適用する。
// 各マイグレーションは個別のトランザクションで実行され、
// 適用済みのバージョンはスキップされる。
func Run(db *sql.DB, fsys fs.FS, dir string) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
		)
	`); err != nil {
		return fmt.Errorf("マイグレーション管理テーブルの作成に失敗: %w", err)
	}

	applied, err := appliedVersions(db)
	if err != nil {
		return fmt.Errorf("適用済みバージョンの取得に失敗: %w", err)
	}

	scripts, err := pendingScripts(fsys, dir, applied)
	if err != nil {
		return fmt.Errorf("マイグレーションファイルの収集に失敗: %w", err)
	}

	for _, sc := range scripts {
		if err := apply(db, fsys, sc); err != nil {
			return fmt.Errorf("マイグレーション %06d_%s の適用に失敗: %w", sc.version, sc.name, err)
		}
		log.Printf("スキーマを適用しました: %06d_%s", sc.version, sc.name)
	}

	return nil
}

// appliedVersions は適用済みのマイグレーションバージョン集合を取得する。
func appliedVersions(db *sql.DB) (map[int]bool, error) {
	rows, err := db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// pendingScripts はディレクトリから未適用のup.sqlファイルを収集し、
// バージョンの昇順に並べて返す。形式に合わない名前のファイルは無視する。
func pendingScripts(fsys fs.FS, dir string, applied map[int]bool) ([]script, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	var scripts []script
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".up.sql") {
			continue
		}

		prefix, rest, found := strings.Cut(entry.Name(), "_")
		if !found {
			continue
		}
		version, err := strconv.Atoi(prefix)
		if err != nil || applied[version] {
			continue
		}

		scripts = append(scripts, script{
			version: version,
			name:    strings.TrimSuffix(rest, ".up.sql"),
			path:    dir + "/" + entry.Name(),
		})
	}

	slices.SortFunc(scripts, func(a, b script) int { return a.version - b.version })
	return scripts, nil
}

// apply は1つのマイグレーションをトランザクション内で実行し、バージョンを記録する。
func apply(db *sql.DB, fsys fs.FS, sc script) error {
	content, err := fs.ReadFile(fsys, sc.path)
	if err != nil {
		return fmt.Errorf("ファイル読み込みに失敗: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(string(content)); err != nil {
		return fmt.Errorf("SQL実行に失敗: %w", err)
	}

	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", sc.version); err != nil {
		return fmt.Errorf("バージョン記録に失敗: %w", err)
	}

	return tx.Commit()
}
