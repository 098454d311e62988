package notify

import (
	"context"
	"log"

	"github.com/smartpost/smartpost/internal/docstore"
)

// 一覧取得のlimitの境界値。呼び出し元の指定値はこの範囲に丸められる。
const (
	minListLimit = 1
	maxListLimit = 100
)

// Orchestrator は通知の発行と照会の単一の入口。
// Publishでエンベロープを構築して全チャネルへファンアウトし、
// 一覧・未読数・既読化の各操作をインボックスチャネルに対して提供する。
type Orchestrator struct {
	// channels は登録順に配信される配信チャネルの列。
	channels []Channel
	// resolver はイベントの文脈から受信者集合を解決する。
	resolver Resolver
	// inbox は照会操作が参照するインボックスチャネル。channelsにも含まれる。
	inbox *InboxChannel
}

// NewOrchestrator は標準のチャネル構成でオーケストレータを生成する。
// 配信順: 監査ログ → Webプッシュ（スタブ）→ モバイルプッシュ（スタブ）→ インボックス。
// 配信順に正しさの依存はなく、順序は登録順で固定されるのみ。
func NewOrchestrator(store *docstore.Store) *Orchestrator {
	inbox := NewInboxChannel(store)
	return &Orchestrator{
		channels: []Channel{
			NewLogChannel(store),
			WebPushChannel{},
			MobilePushChannel{},
			inbox,
		},
		resolver: ActorResolver{},
		inbox:    inbox,
	}
}

// Publish は1件のイベントを構築し、全チャネルへ配信してイベントIDを返す。
// エラーを返すのはエンベロープの検証に失敗した場合だけで、その場合は
// どのチャネルも実行されない。チャネルの失敗は配信ステータスとして記録し、
// 残りのチャネルの配信を妨げない。インボックスへの書き込みは戻り値を
// 返す前に完了しているため、直後の一覧・未読数の照会に必ず反映される。
func (o *Orchestrator) Publish(ctx context.Context, p PublishParams) (string, error) {
	env, err := newEnvelope(p)
	if err != nil {
		return "", err
	}

	recipients, err := o.resolver.Resolve(ctx, EventContext{Actor: p.Actor, DeviceID: p.DeviceID})
	if err != nil {
		// 受信者が解決できなくても監査ログは残すべきなので、空集合として続行する
		log.Printf("受信者の解決に失敗: event=%s, error=%v", env.EventID, err)
		recipients = nil
	}

	statuses := make(map[string]DeliveryStatus, len(o.channels))
	for _, ch := range o.channels {
		status, err := ch.Deliver(ctx, env, recipients)
		if err != nil {
			log.Printf("チャネル %s の配信に失敗: event=%s, error=%v", ch.Name(), env.EventID, err)
			status = StatusFailed
		}
		statuses[ch.Name()] = status
	}

	if len(recipients) > 0 && statuses[o.inbox.Name()] == StatusDelivered {
		if err := o.inbox.setDelivery(ctx, recipients, env.EventID, statuses); err != nil {
			log.Printf("配信結果の記録に失敗: event=%s, error=%v", env.EventID, err)
		}
	}

	return env.EventID, nil
}

// List は1人の受信者の通知を新しい順に返す。
// limitは[1,100]に丸められ、0以下の指定は最小値になる。
func (o *Orchestrator) List(ctx context.Context, recipient string, limit int, unreadOnly bool) ([]Record, error) {
	return o.inbox.List(ctx, recipient, clampLimit(limit), unreadOnly)
}

// UnreadCount は1人の受信者の未読通知数を返す。
func (o *Orchestrator) UnreadCount(ctx context.Context, recipient string) (int64, error) {
	return o.inbox.UnreadCount(ctx, recipient)
}

// MarkRead は1件の通知を既読にする。
// 指定受信者のインボックスに存在しない場合はErrNotFoundを返す。
func (o *Orchestrator) MarkRead(ctx context.Context, recipient, eventID string) error {
	return o.inbox.MarkRead(ctx, recipient, eventID)
}

// MarkAllRead は1人の受信者の未読通知をすべて既読にし、変更した件数を返す。
// 0件は正常な結果でありエラーではない。
func (o *Orchestrator) MarkAllRead(ctx context.Context, recipient string) (int64, error) {
	return o.inbox.MarkAllRead(ctx, recipient)
}

// clampLimit は一覧取得のlimitを[minListLimit, maxListLimit]に丸める。
func clampLimit(limit int) int {
	if limit < minListLimit {
		return minListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
