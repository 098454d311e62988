package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/smartpost/smartpost/internal/docstore"
)

// ErrNotFound は指定された通知が受信者のインボックスに存在しないことを表す。
// 他の受信者に属する通知を指定した場合も同じエラーになり、存在の有無は漏れない。
var ErrNotFound = errors.New("通知が見つかりません")

// collectionInbox は受信者別の通知レコードを保存するコレクション名。
const collectionInbox = "inbox"

// Record は受信者別の通知レコード。
// エンベロープから派生し、既読状態の遷移によってのみ更新される。削除経路はない。
type Record struct {
	// EventID は元イベントの一意識別子。
	EventID string `json:"event_id"`
	// Recipient は通知先の受信者。
	Recipient string `json:"recipient"`
	// Type はイベントの種類。
	Type string `json:"type"`
	// Title は通知のタイトル。
	Title string `json:"title"`
	// Body は通知の本文。
	Body string `json:"body"`
	// Severity は通知の重要度。
	Severity Severity `json:"severity"`
	// Actor はイベントを発生させたユーザー。
	Actor string `json:"actor,omitempty"`
	// DeviceID は対象デバイスの識別子。
	DeviceID string `json:"device_id,omitempty"`
	// Data はイベント固有の補助フィールド。
	Data map[string]any `json:"data,omitempty"`
	// Read は既読状態。一度trueになったらfalseには戻らない。
	Read bool `json:"read"`
	// ReadAt は初回既読日時。最初の既読化で一度だけ設定される。
	ReadAt *time.Time `json:"read_at,omitempty"`
	// Delivery はチャネル名ごとの配信結果。参考情報であり配信を制御しない。
	Delivery map[string]DeliveryStatus `json:"delivery,omitempty"`
	// CreatedAtClient はクライアントが申告した発生日時。
	CreatedAtClient *time.Time `json:"created_at_client,omitempty"`
	// CreatedAt はエンベロープの作成日時。
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt は最終更新日時。既読状態の変更で更新される。
	UpdatedAt time.Time `json:"updated_at"`
}

// InboxChannel は受信者ごとの通知レコードを書き込む配信チャネル。
// 一覧・未読数・既読化の各クエリ操作はこのチャネルの保存先を参照する。
type InboxChannel struct {
	// store は保存先のドキュメントストア。
	store *docstore.Store
}

// NewInboxChannel は新しいインボックスチャネルを生成する。
func NewInboxChannel(store *docstore.Store) *InboxChannel {
	return &InboxChannel{store: store}
}

// Name はチャネル名 "inbox" を返す。
func (c *InboxChannel) Name() string { return "inbox" }

// recordKey は(受信者, イベントID)の複合キーを組み立てる。
// 受信者がキーに含まれるため、他受信者のレコードには到達できない。
func recordKey(recipient, eventID string) string {
	return recipient + "/" + eventID
}

// Deliver は受信者ごとに未読の通知レコードを1件ずつ書き込む。
// 同一イベントIDの再配信は同じキーへの上書きとなり、レコードは増えない。
func (c *InboxChannel) Deliver(ctx context.Context, env *Envelope, recipients []string) (DeliveryStatus, error) {
	for _, recipient := range recipients {
		record := Record{
			EventID:         env.EventID,
			Recipient:       recipient,
			Type:            env.Type,
			Title:           env.Title,
			Body:            env.Body,
			Severity:        env.Severity,
			Actor:           env.Actor,
			DeviceID:        env.DeviceID,
			Data:            env.Data,
			Read:            false,
			CreatedAtClient: env.CreatedAtClient,
			CreatedAt:       env.CreatedAt,
			UpdatedAt:       env.CreatedAt,
		}
		if err := c.store.Put(ctx, collectionInbox, recordKey(recipient, env.EventID), record); err != nil {
			return StatusFailed, fmt.Errorf("受信者 %s への通知保存に失敗: %w", recipient, err)
		}
	}
	return StatusDelivered, nil
}

// List は1人の受信者の通知レコードを作成日時の降順で返す。
// unreadOnlyがtrueの場合は未読のみに絞り込んでからlimitを適用する。
// 絞り込みは保存層のクエリで行い、他受信者のレコードは読み出さない。
func (c *InboxChannel) List(ctx context.Context, recipient string, limit int, unreadOnly bool) ([]Record, error) {
	filters := []docstore.Filter{{Field: "recipient", Value: recipient}}
	if unreadOnly {
		filters = append(filters, docstore.Filter{Field: "read", Value: false})
	}

	docs, err := c.store.Query(ctx, collectionInbox, filters, limit)
	if err != nil {
		return nil, fmt.Errorf("通知一覧の取得に失敗: %w", err)
	}

	records := make([]Record, 0, len(docs))
	for _, doc := range docs {
		var r Record
		if err := json.Unmarshal(doc, &r); err != nil {
			return nil, fmt.Errorf("通知レコードのデシリアライズに失敗: %w", err)
		}
		records = append(records, r)
	}
	return records, nil
}

// UnreadCount は1人の受信者の未読通知数を返す。
func (c *InboxChannel) UnreadCount(ctx context.Context, recipient string) (int64, error) {
	count, err := c.store.Count(ctx, collectionInbox, []docstore.Filter{
		{Field: "recipient", Value: recipient},
		{Field: "read", Value: false},
	})
	if err != nil {
		return 0, fmt.Errorf("未読通知数の取得に失敗: %w", err)
	}
	return count, nil
}

// MarkRead は1件の通知を既読にする。
// 既読済みの通知への再実行は何もしない（ReadAtも変わらない）。
// 指定受信者のキーにレコードが存在しない場合はErrNotFoundを返す。
func (c *InboxChannel) MarkRead(ctx context.Context, recipient, eventID string) error {
	key := recordKey(recipient, eventID)

	var record Record
	if err := c.store.Get(ctx, collectionInbox, key, &record); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("通知の取得に失敗: %w", err)
	}

	if record.Read {
		return nil
	}

	now := time.Now().UTC()
	record.Read = true
	record.ReadAt = &now
	record.UpdatedAt = now

	if err := c.store.Put(ctx, collectionInbox, key, record); err != nil {
		return fmt.Errorf("既読状態の保存に失敗: %w", err)
	}
	return nil
}

// MarkAllRead は1人の受信者の未読通知をすべて既読にし、変更した件数を返す。
// 未読の取得後に到着した通知は未読のまま残ることがある（スナップショット分離なし）。
func (c *InboxChannel) MarkAllRead(ctx context.Context, recipient string) (int64, error) {
	unread, err := c.List(ctx, recipient, 0, true)
	if err != nil {
		return 0, err
	}

	var count int64
	for _, record := range unread {
		if err := c.MarkRead(ctx, recipient, record.EventID); err != nil {
			return count, fmt.Errorf("通知 %s の既読化に失敗: %w", record.EventID, err)
		}
		count++
	}
	return count, nil
}

// setDelivery はファンアウト完了後にチャネルごとの配信結果をレコードへ記録する。
// 参考情報の更新であり、失敗しても配信自体は成立している。
func (c *InboxChannel) setDelivery(ctx context.Context, recipients []string, eventID string, statuses map[string]DeliveryStatus) error {
	for _, recipient := range recipients {
		key := recordKey(recipient, eventID)

		var record Record
		if err := c.store.Get(ctx, collectionInbox, key, &record); err != nil {
			return fmt.Errorf("受信者 %s の通知取得に失敗: %w", recipient, err)
		}

		record.Delivery = statuses
		record.UpdatedAt = time.Now().UTC()

		if err := c.store.Put(ctx, collectionInbox, key, record); err != nil {
			return fmt.Errorf("受信者 %s の配信結果の記録に失敗: %w", recipient, err)
		}
	}
	return nil
}
