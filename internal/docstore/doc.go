// Package docstore はSQLiteを利用したドキュメントストアを提供する。
//
// ドキュメントは(コレクション, キー)の組で一意に識別されるJSONとして保存する。
// 同一キーへの書き込みは上書きとなり、作成日時は初回の値が維持される。
// クエリはJSONフィールドに対するフィルタを保存層で適用し、作成日時の降順で返す。
package docstore
