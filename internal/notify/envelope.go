package notify

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Severity は通知の重要度を表す。
type Severity string

const (
	// SeverityInfo は情報通知を表す。
	SeverityInfo Severity = "info"
	// SeveritySuccess は正常完了の通知を表す。
	SeveritySuccess Severity = "success"
	// SeverityWarning は注意が必要な状態の通知を表す。
	SeverityWarning Severity = "warning"
	// SeverityError は異常発生の通知を表す。
	SeverityError Severity = "error"
)

// Valid は定義済みの重要度かどうかを返す。
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeveritySuccess, SeverityWarning, SeverityError:
		return true
	}
	return false
}

// ParseSeverity は文字列を重要度に変換する。未定義の値はエラーを返す。
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(s)
	if !sev.Valid() {
		return "", fmt.Errorf("未定義の重要度です: %q", s)
	}
	return sev, nil
}

// Envelope は1件の通知イベントを表す不変のレコード。
// Publish時に一度だけ構築され、以降は変更されない。
// EventIDは全チャネル共通の保存キーとなり、再配信時の重複を防ぐ。
type Envelope struct {
	// EventID はイベントの一意識別子（UUID）。Publishごとに1回だけ生成される。
	EventID string `json:"event_id"`
	// Type はイベントの種類（例: package_detected, device_command）。
	Type string `json:"type"`
	// Title は通知のタイトル。
	Title string `json:"title"`
	// Body は通知の本文。
	Body string `json:"body"`
	// Severity は通知の重要度。
	Severity Severity `json:"severity"`
	// Actor はイベントを発生させたユーザー。システム起因の場合は空。
	Actor string `json:"actor,omitempty"`
	// DeviceID は対象デバイスの識別子。デバイスに紐づかない場合は空。
	DeviceID string `json:"device_id,omitempty"`
	// Data はイベント固有の補助フィールド。スキーマ検証は行わない。
	Data map[string]any `json:"data,omitempty"`
	// CreatedAtClient はクライアントが申告した発生日時（参考値）。
	CreatedAtClient *time.Time `json:"created_at_client,omitempty"`
	// CreatedAt はサーバーが採番した作成日時。一度設定したら変更しない。
	CreatedAt time.Time `json:"created_at"`
}

// PublishParams はPublishに渡すイベントの内容。
type PublishParams struct {
	// Type はイベントの種類。必須。
	Type string
	// Title は通知のタイトル。必須。
	Title string
	// Body は通知の本文。
	Body string
	// Severity は通知の重要度。必須。
	Severity Severity
	// Actor はイベントを発生させたユーザー。システム起因の場合は空。
	Actor string
	// DeviceID は対象デバイスの識別子。
	DeviceID string
	// Data はイベント固有の補助フィールド。
	Data map[string]any
	// ClientTime はクライアントが申告した発生日時。
	ClientTime *time.Time
}

// newEnvelope はPublishParamsを検証し、新しいエンベロープを構築する。
// 検証エラーはチャネルへの配信前に呼び出し元へ返される唯一のエラー。
func newEnvelope(p PublishParams) (*Envelope, error) {
	if p.Type == "" {
		return nil, fmt.Errorf("イベント種別は必須です")
	}
	if p.Title == "" {
		return nil, fmt.Errorf("通知タイトルは必須です")
	}
	if !p.Severity.Valid() {
		return nil, fmt.Errorf("未定義の重要度です: %q", p.Severity)
	}

	return &Envelope{
		EventID:         uuid.New().String(),
		Type:            p.Type,
		Title:           p.Title,
		Body:            p.Body,
		Severity:        p.Severity,
		Actor:           p.Actor,
		DeviceID:        p.DeviceID,
		Data:            p.Data,
		CreatedAtClient: p.ClientTime,
		CreatedAt:       time.Now().UTC(),
	}, nil
}
