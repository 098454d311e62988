package notify

import (
	"context"

	"github.com/smartpost/smartpost/internal/docstore"
)

// DeliveryStatus はチャネルごとの配信結果を表す。
// 通知レコードに参考情報として記録されるだけで、他チャネルの配信を妨げない。
type DeliveryStatus string

const (
	// StatusDelivered は配信先ストアへの書き込みが完了したことを表す。
	StatusDelivered DeliveryStatus = "delivered"
	// StatusFailed は配信が失敗したことを表す。
	StatusFailed DeliveryStatus = "failed"
	// StatusUnsupported はチャネルが未実装であることを表す。
	StatusUnsupported DeliveryStatus = "unsupported"
)

// Channel は1つの配信先を表す。
// オーケストレータ構築時に固定順で登録され、その順序が配信順になる。
// どのチャネルも他のチャネルが実行済みであることを前提にしてはならない。
type Channel interface {
	// Name はチャネル名を返す。配信ステータスの記録キーとして使用する。
	Name() string
	// Deliver はエンベロープを受信者集合へ配信する。
	Deliver(ctx context.Context, env *Envelope, recipients []string) (DeliveryStatus, error)
}

// collectionEventLog は全イベントを記録する追記専用コレクション名。
const collectionEventLog = "event_log"

// LogChannel は全イベントをイベントIDをキーに記録する監査用チャネル。
// 受信者の解決結果に依存せず、受信者が空でも必ず書き込む。
// 記録したドキュメントを変更・削除する手段は持たない。
type LogChannel struct {
	// store は記録先のドキュメントストア。
	store *docstore.Store
}

// NewLogChannel は新しい監査ログチャネルを生成する。
func NewLogChannel(store *docstore.Store) *LogChannel {
	return &LogChannel{store: store}
}

// Name はチャネル名 "log" を返す。
func (c *LogChannel) Name() string { return "log" }

// Deliver はエンベロープをイベントIDをキーに1件書き込む。
// 同一イベントIDの再配信は同じキーへの上書きとなる。
func (c *LogChannel) Deliver(ctx context.Context, env *Envelope, _ []string) (DeliveryStatus, error) {
	if err := c.store.Put(ctx, collectionEventLog, env.EventID, env); err != nil {
		return StatusFailed, err
	}
	return StatusDelivered, nil
}

// WebPushChannel はWebプッシュ配信の拡張ポイントを示すスタブ。
// 外部への配信は行わず、常に未実装ステータスを返す。
type WebPushChannel struct{}

// Name はチャネル名 "web_push" を返す。
func (WebPushChannel) Name() string { return "web_push" }

// Deliver は何も配信せずStatusUnsupportedを返す。
func (WebPushChannel) Deliver(_ context.Context, _ *Envelope, _ []string) (DeliveryStatus, error) {
	return StatusUnsupported, nil
}

// MobilePushChannel はモバイルプッシュ配信の拡張ポイントを示すスタブ。
// 外部への配信は行わず、常に未実装ステータスを返す。
type MobilePushChannel struct{}

// Name はチャネル名 "mobile_push" を返す。
func (MobilePushChannel) Name() string { return "mobile_push" }

// Deliver は何も配信せずStatusUnsupportedを返す。
func (MobilePushChannel) Deliver(_ context.Context, _ *Envelope, _ []string) (DeliveryStatus, error) {
	return StatusUnsupported, nil
}
