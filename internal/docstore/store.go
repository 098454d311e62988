package docstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/smartpost/smartpost/pkg/migration"
)

//go:embed migrations/*.up.sql
var migrationsFS embed.FS

// ErrNotFound は指定されたドキュメントが存在しないことを表す。
var ErrNotFound = errors.New("ドキュメントが見つかりません")

// timeLayout はcreated_at/updated_atの保存形式。
// 固定幅のためテキスト比較と日時の大小比較が一致する。
const timeLayout = "2006-01-02 15:04:05.000000000"

// Store はSQLiteベースのドキュメントストア。
type Store struct {
	// db はSQLiteデータベース接続。
	db *sql.DB
}

// Open は指定パスのSQLiteデータベースを開き、スキーマを適用したStoreを返す。
func Open(path string) (*Store, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	return New(sqlDB)
}

// New は既存のデータベース接続からStoreを生成する。
// 未適用のマイグレーションがあれば適用する。
func New(db *sql.DB) (*Store, error) {
	if err := migration.Run(db, migrationsFS, "migrations"); err != nil {
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}
	return &Store{db: db}, nil
}

// Close はデータベース接続を閉じる。
func (s *Store) Close() error {
	return s.db.Close()
}

// Put はドキュメントをJSONにシリアライズして保存する。
// 同一の(コレクション, キー)が存在する場合は本体を上書きし、作成日時は維持する。
func (s *Store) Put(ctx context.Context, collection, key string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("ドキュメントのシリアライズに失敗: %w", err)
	}

	now := time.Now().UTC().Format(timeLayout)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, key, doc, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (collection, key)
		DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at
	`, collection, key, string(data), now, now)
	if err != nil {
		return fmt.Errorf("ドキュメントの保存に失敗: %w", err)
	}
	return nil
}

// Get は指定された(コレクション, キー)のドキュメントをoutにデシリアライズする。
// ドキュメントが存在しない場合はErrNotFoundを返す。
func (s *Store) Get(ctx context.Context, collection, key string, out any) error {
	var data string
	err := s.db.QueryRowContext(ctx,
		"SELECT doc FROM documents WHERE collection = ? AND key = ?",
		collection, key,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("ドキュメントの取得に失敗: %w", err)
	}

	if err := json.Unmarshal([]byte(data), out); err != nil {
		return fmt.Errorf("ドキュメントのデシリアライズに失敗: %w", err)
	}
	return nil
}

// Delete は指定された(コレクション, キー)のドキュメントを削除する。
// ドキュメントが存在しない場合はErrNotFoundを返す。
func (s *Store) Delete(ctx context.Context, collection, key string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM documents WHERE collection = ? AND key = ?",
		collection, key,
	)
	if err != nil {
		return fmt.Errorf("ドキュメントの削除に失敗: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("削除結果の確認に失敗: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Filter はクエリで適用するJSONフィールドの等値条件を表す。
type Filter struct {
	// Field は比較対象のトップレベルJSONフィールド名。
	Field string
	// Value は比較する値。boolは0/1として比較する。
	Value any
}

// Query はコレクション内のドキュメントをフィルタ条件で絞り込み、
// 作成日時の降順（新しい順）で返す。limitが1以上の場合は件数を制限する。
func (s *Store) Query(ctx context.Context, collection string, filters []Filter, limit int) ([]json.RawMessage, error) {
	query, args, err := buildWhere(
		"SELECT doc FROM documents WHERE collection = ?", collection, filters)
	if err != nil {
		return nil, err
	}

	query += " ORDER BY created_at DESC, key DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ドキュメントのクエリに失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	docs := make([]json.RawMessage, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("ドキュメントの読み取りに失敗: %w", err)
		}
		docs = append(docs, json.RawMessage(data))
	}
	return docs, rows.Err()
}

// Count はコレクション内でフィルタ条件に一致するドキュメント数を返す。
func (s *Store) Count(ctx context.Context, collection string, filters []Filter) (int64, error) {
	query, args, err := buildWhere(
		"SELECT COUNT(*) FROM documents WHERE collection = ?", collection, filters)
	if err != nil {
		return 0, err
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("ドキュメント数の取得に失敗: %w", err)
	}
	return count, nil
}

// buildWhere はフィルタ条件をjson_extractのWHERE句に組み立てる。
func buildWhere(base, collection string, filters []Filter) (string, []any, error) {
	var b strings.Builder
	b.WriteString(base)

	args := []any{collection}
	for _, f := range filters {
		if !isValidFieldName(f.Field) {
			return "", nil, fmt.Errorf("不正なフィールド名: %q", f.Field)
		}
		fmt.Fprintf(&b, " AND json_extract(doc, '$.%s') = ?", f.Field)
		args = append(args, bindValue(f.Value))
	}
	return b.String(), args, nil
}

// isValidFieldName はフィールド名が英小文字・数字・アンダースコアのみかを検証する。
// json_extractのパスはプレースホルダにできないため、組み立て前に必ず検証する。
func isValidFieldName(field string) bool {
	if field == "" {
		return false
	}
	for _, r := range field {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' {
			return false
		}
	}
	return true
}

// bindValue はGoの値をSQLiteのjson_extract結果と比較可能な形に変換する。
// SQLiteはJSONの真偽値を0/1として取り出すため、boolは整数に揃える。
func bindValue(v any) any {
	if b, ok := v.(bool); ok {
		if b {
			return 1
		}
		return 0
	}
	return v
}
