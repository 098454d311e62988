package notify

import "context"

// EventContext は受信者の解決に使用するイベントの文脈。
type EventContext struct {
	// Actor はイベントを発生させたユーザー。システム起因の場合は空。
	Actor string
	// DeviceID は対象デバイスの識別子。
	DeviceID string
}

// Resolver はイベントの文脈から通知を受け取るべき受信者集合を解決する。
// Publishごとに1回だけ呼び出され、結果がそのイベントの受信者集合のすべてとなる。
// オーケストレータの呼び出し契約を変えずに実装を差し替えられる。
type Resolver interface {
	Resolve(ctx context.Context, ec EventContext) ([]string, error)
}

// ActorResolver はイベントを発生させたユーザー本人だけを受信者とする実装。
// デバイスの共有・複数所有者への展開はこのインターフェースの差し替えで行う。
type ActorResolver struct{}

// Resolve はActorが設定されていれば{Actor}を、なければ空集合を返す。
// 空集合はエラーではなく、監査ログチャネルのみが記録を残す。
func (ActorResolver) Resolve(_ context.Context, ec EventContext) ([]string, error) {
	if ec.Actor == "" {
		return nil, nil
	}
	return []string{ec.Actor}, nil
}
