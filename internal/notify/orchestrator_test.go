package notify

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/smartpost/smartpost/internal/docstore"
)

// setupTestOrchestrator はテスト用のオーケストレータをインメモリSQLiteで構築する。
func setupTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("インメモリDBの作成に失敗: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := docstore.New(db)
	if err != nil {
		t.Fatalf("ストアの初期化に失敗: %v", err)
	}
	return NewOrchestrator(store)
}

// publishTestEvent はテスト用イベントを発行するヘルパー関数。
func publishTestEvent(t *testing.T, o *Orchestrator, actor, title string) string {
	t.Helper()

	eventID, err := o.Publish(t.Context(), PublishParams{
		Type:     TypePackageDetected,
		Title:    title,
		Body:     "テスト本文",
		Severity: SeveritySuccess,
		Actor:    actor,
		DeviceID: "dev-1",
	})
	if err != nil {
		t.Fatalf("Publishに失敗: %v", err)
	}
	return eventID
}

// TestPublish はイベント発行とファンアウトを検証する。
func TestPublish(t *testing.T) {
	t.Parallel()

	t.Run("発行した通知が未読として受信箱に届く", func(t *testing.T) {
		t.Parallel()
		o := setupTestOrchestrator(t)

		eventID := publishTestEvent(t, o, "user-1", "荷物が届きました")

		records, err := o.List(t.Context(), "user-1", 10, false)
		if err != nil {
			t.Fatalf("Listに失敗: %v", err)
		}
		if len(records) != 1 {
			t.Fatalf("件数: got %d, want 1", len(records))
		}

		rec := records[0]
		if rec.EventID != eventID {
			t.Errorf("event_id: got %s, want %s", rec.EventID, eventID)
		}
		if rec.Read {
			t.Error("発行直後の通知が既読になっている")
		}
		if rec.ReadAt != nil {
			t.Errorf("read_at: got %v, want nil", rec.ReadAt)
		}
		if rec.Title != "荷物が届きました" {
			t.Errorf("title: got %s, want 荷物が届きました", rec.Title)
		}
	})

	t.Run("配信結果がチャネルごとに記録される", func(t *testing.T) {
		t.Parallel()
		o := setupTestOrchestrator(t)

		publishTestEvent(t, o, "user-1", "配信結果テスト")

		records, err := o.List(t.Context(), "user-1", 10, false)
		if err != nil {
			t.Fatalf("Listに失敗: %v", err)
		}
		if len(records) != 1 {
			t.Fatalf("件数: got %d, want 1", len(records))
		}

		delivery := records[0].Delivery
		if delivery["log"] != StatusDelivered {
			t.Errorf("log: got %s, want %s", delivery["log"], StatusDelivered)
		}
		if delivery["web_push"] != StatusUnsupported {
			t.Errorf("web_push: got %s, want %s", delivery["web_push"], StatusUnsupported)
		}
		if delivery["mobile_push"] != StatusUnsupported {
			t.Errorf("mobile_push: got %s, want %s", delivery["mobile_push"], StatusUnsupported)
		}
		if delivery["inbox"] != StatusDelivered {
			t.Errorf("inbox: got %s, want %s", delivery["inbox"], StatusDelivered)
		}
	})

	t.Run("種別が空の場合はエラーを返す", func(t *testing.T) {
		t.Parallel()
		o := setupTestOrchestrator(t)

		_, err := o.Publish(t.Context(), PublishParams{
			Title:    "タイトルのみ",
			Severity: SeverityInfo,
			Actor:    "user-1",
		})
		if err == nil {
			t.Error("種別が空なのにエラーにならなかった")
		}
	})

	t.Run("不正な重要度はエラーを返す", func(t *testing.T) {
		t.Parallel()
		o := setupTestOrchestrator(t)

		_, err := o.Publish(t.Context(), PublishParams{
			Type:     TypePackageDetected,
			Title:    "タイトル",
			Severity: Severity("critical"),
			Actor:    "user-1",
		})
		if err == nil {
			t.Error("不正な重要度なのにエラーにならなかった")
		}
	})

	t.Run("受信者が空でも発行は成功する", func(t *testing.T) {
		t.Parallel()
		o := setupTestOrchestrator(t)

		// Actorが空のため受信者は空集合になるが、監査ログには残る
		eventID, err := o.Publish(t.Context(), PublishParams{
			Type:     TypeDeviceOffline,
			Title:    "デバイスがオフラインです",
			Severity: SeverityWarning,
			DeviceID: "dev-1",
		})
		if err != nil {
			t.Fatalf("Publishに失敗: %v", err)
		}
		if eventID == "" {
			t.Error("event_idが空で返された")
		}
	})
}

// failingChannel は常に配信に失敗するテスト用チャネル。
type failingChannel struct{}

func (failingChannel) Name() string { return "failing" }

func (failingChannel) Deliver(_ context.Context, _ *Envelope, _ []string) (DeliveryStatus, error) {
	return StatusFailed, errors.New("配信先に接続できません")
}

// TestPublishWithFailingChannel はチャネルの失敗が他チャネルの配信を妨げないことを検証する。
func TestPublishWithFailingChannel(t *testing.T) {
	t.Parallel()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("インメモリDBの作成に失敗: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := docstore.New(db)
	if err != nil {
		t.Fatalf("ストアの初期化に失敗: %v", err)
	}

	inbox := NewInboxChannel(store)
	o := &Orchestrator{
		channels: []Channel{failingChannel{}, inbox},
		resolver: ActorResolver{},
		inbox:    inbox,
	}

	eventID, err := o.Publish(t.Context(), PublishParams{
		Type:     TypeDoorLeftOpen,
		Title:    "扉が開いたままです",
		Severity: SeverityWarning,
		Actor:    "user-1",
		DeviceID: "dev-1",
	})
	if err != nil {
		t.Fatalf("Publishに失敗: %v", err)
	}
	if eventID == "" {
		t.Error("event_idが空で返された")
	}

	records, err := o.List(t.Context(), "user-1", 10, false)
	if err != nil {
		t.Fatalf("Listに失敗: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("件数: got %d, want 1", len(records))
	}
	if records[0].Delivery["failing"] != StatusFailed {
		t.Errorf("failing: got %s, want %s", records[0].Delivery["failing"], StatusFailed)
	}
	if records[0].Delivery["inbox"] != StatusDelivered {
		t.Errorf("inbox: got %s, want %s", records[0].Delivery["inbox"], StatusDelivered)
	}
}

// TestList は通知一覧の並び順と絞り込みを検証する。
func TestList(t *testing.T) {
	t.Parallel()

	t.Run("新しい順に返す", func(t *testing.T) {
		t.Parallel()
		o := setupTestOrchestrator(t)

		publishTestEvent(t, o, "user-1", "1件目")
		publishTestEvent(t, o, "user-1", "2件目")
		publishTestEvent(t, o, "user-1", "3件目")

		records, err := o.List(t.Context(), "user-1", 10, false)
		if err != nil {
			t.Fatalf("Listに失敗: %v", err)
		}
		if len(records) != 3 {
			t.Fatalf("件数: got %d, want 3", len(records))
		}
		if records[0].Title != "3件目" {
			t.Errorf("先頭: got %s, want 3件目", records[0].Title)
		}
		if records[2].Title != "1件目" {
			t.Errorf("末尾: got %s, want 1件目", records[2].Title)
		}
	})

	t.Run("unreadOnlyで未読のみ返す", func(t *testing.T) {
		t.Parallel()
		o := setupTestOrchestrator(t)

		readID := publishTestEvent(t, o, "user-1", "既読にする通知")
		publishTestEvent(t, o, "user-1", "未読のまま")

		if err := o.MarkRead(t.Context(), "user-1", readID); err != nil {
			t.Fatalf("MarkReadに失敗: %v", err)
		}

		records, err := o.List(t.Context(), "user-1", 10, true)
		if err != nil {
			t.Fatalf("Listに失敗: %v", err)
		}
		if len(records) != 1 {
			t.Fatalf("件数: got %d, want 1", len(records))
		}
		if records[0].Title != "未読のまま" {
			t.Errorf("title: got %s, want 未読のまま", records[0].Title)
		}
	})

	t.Run("他の受信者の通知は含まれない", func(t *testing.T) {
		t.Parallel()
		o := setupTestOrchestrator(t)

		publishTestEvent(t, o, "user-1", "user-1宛")
		publishTestEvent(t, o, "user-2", "user-2宛")

		records, err := o.List(t.Context(), "user-1", 10, false)
		if err != nil {
			t.Fatalf("Listに失敗: %v", err)
		}
		if len(records) != 1 {
			t.Fatalf("件数: got %d, want 1", len(records))
		}
		if records[0].Title != "user-1宛" {
			t.Errorf("title: got %s, want user-1宛", records[0].Title)
		}
	})

	t.Run("limitは1から100に丸められる", func(t *testing.T) {
		t.Parallel()
		o := setupTestOrchestrator(t)

		publishTestEvent(t, o, "user-1", "1件目")
		publishTestEvent(t, o, "user-1", "2件目")

		// 0以下は最小値1に丸められる
		records, err := o.List(t.Context(), "user-1", 0, false)
		if err != nil {
			t.Fatalf("Listに失敗: %v", err)
		}
		if len(records) != 1 {
			t.Errorf("limit=0の件数: got %d, want 1", len(records))
		}

		// 上限を超える指定は100に丸められるだけでエラーにはならない
		records, err = o.List(t.Context(), "user-1", 10000, false)
		if err != nil {
			t.Fatalf("Listに失敗: %v", err)
		}
		if len(records) != 2 {
			t.Errorf("limit=10000の件数: got %d, want 2", len(records))
		}
	})
}

// TestUnreadCount は未読数の取得を検証する。
func TestUnreadCount(t *testing.T) {
	t.Parallel()

	o := setupTestOrchestrator(t)

	count, err := o.UnreadCount(t.Context(), "user-1")
	if err != nil {
		t.Fatalf("UnreadCountに失敗: %v", err)
	}
	if count != 0 {
		t.Errorf("初期状態の未読数: got %d, want 0", count)
	}

	readID := publishTestEvent(t, o, "user-1", "1件目")
	publishTestEvent(t, o, "user-1", "2件目")
	publishTestEvent(t, o, "user-2", "別ユーザー宛")

	count, err = o.UnreadCount(t.Context(), "user-1")
	if err != nil {
		t.Fatalf("UnreadCountに失敗: %v", err)
	}
	if count != 2 {
		t.Errorf("未読数: got %d, want 2", count)
	}

	if err := o.MarkRead(t.Context(), "user-1", readID); err != nil {
		t.Fatalf("MarkReadに失敗: %v", err)
	}

	count, err = o.UnreadCount(t.Context(), "user-1")
	if err != nil {
		t.Fatalf("UnreadCountに失敗: %v", err)
	}
	if count != 1 {
		t.Errorf("既読化後の未読数: got %d, want 1", count)
	}
}

// TestMarkRead は個別既読化の動作を検証する。
func TestMarkRead(t *testing.T) {
	t.Parallel()

	t.Run("既読化でread_atが記録される", func(t *testing.T) {
		t.Parallel()
		o := setupTestOrchestrator(t)

		eventID := publishTestEvent(t, o, "user-1", "既読テスト")

		if err := o.MarkRead(t.Context(), "user-1", eventID); err != nil {
			t.Fatalf("MarkReadに失敗: %v", err)
		}

		records, err := o.List(t.Context(), "user-1", 10, false)
		if err != nil {
			t.Fatalf("Listに失敗: %v", err)
		}
		if !records[0].Read {
			t.Error("既読になっていない")
		}
		if records[0].ReadAt == nil {
			t.Fatal("read_atが記録されていない")
		}
	})

	t.Run("再既読化は冪等でread_atが変わらない", func(t *testing.T) {
		t.Parallel()
		o := setupTestOrchestrator(t)

		eventID := publishTestEvent(t, o, "user-1", "冪等テスト")

		if err := o.MarkRead(t.Context(), "user-1", eventID); err != nil {
			t.Fatalf("1回目のMarkReadに失敗: %v", err)
		}

		records, err := o.List(t.Context(), "user-1", 10, false)
		if err != nil {
			t.Fatalf("Listに失敗: %v", err)
		}
		firstReadAt := *records[0].ReadAt

		if err := o.MarkRead(t.Context(), "user-1", eventID); err != nil {
			t.Fatalf("2回目のMarkReadに失敗: %v", err)
		}

		records, err = o.List(t.Context(), "user-1", 10, false)
		if err != nil {
			t.Fatalf("Listに失敗: %v", err)
		}
		if !records[0].ReadAt.Equal(firstReadAt) {
			t.Errorf("read_atが変化した: got %v, want %v", records[0].ReadAt, firstReadAt)
		}
	})

	t.Run("存在しない通知はErrNotFoundを返す", func(t *testing.T) {
		t.Parallel()
		o := setupTestOrchestrator(t)

		err := o.MarkRead(t.Context(), "user-1", "missing-event")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("エラー: got %v, want ErrNotFound", err)
		}
	})

	t.Run("他の受信者の通知は既読化できない", func(t *testing.T) {
		t.Parallel()
		o := setupTestOrchestrator(t)

		eventID := publishTestEvent(t, o, "user-1", "user-1宛")

		// user-2からは存在しない扱いになる
		err := o.MarkRead(t.Context(), "user-2", eventID)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("エラー: got %v, want ErrNotFound", err)
		}

		// user-1側の未読状態は変わらない
		records, err := o.List(t.Context(), "user-1", 10, false)
		if err != nil {
			t.Fatalf("Listに失敗: %v", err)
		}
		if records[0].Read {
			t.Error("他受信者からの既読化でuser-1の通知が既読になった")
		}
	})
}

// TestMarkAllRead は一括既読化の動作を検証する。
func TestMarkAllRead(t *testing.T) {
	t.Parallel()

	o := setupTestOrchestrator(t)

	publishTestEvent(t, o, "user-1", "1件目")
	publishTestEvent(t, o, "user-1", "2件目")
	publishTestEvent(t, o, "user-1", "3件目")
	publishTestEvent(t, o, "user-2", "別ユーザー宛")

	updated, err := o.MarkAllRead(t.Context(), "user-1")
	if err != nil {
		t.Fatalf("MarkAllReadに失敗: %v", err)
	}
	if updated != 3 {
		t.Errorf("更新件数: got %d, want 3", updated)
	}

	count, err := o.UnreadCount(t.Context(), "user-1")
	if err != nil {
		t.Fatalf("UnreadCountに失敗: %v", err)
	}
	if count != 0 {
		t.Errorf("未読数: got %d, want 0", count)
	}

	// 2回目は更新対象がないため0件
	updated, err = o.MarkAllRead(t.Context(), "user-1")
	if err != nil {
		t.Fatalf("2回目のMarkAllReadに失敗: %v", err)
	}
	if updated != 0 {
		t.Errorf("2回目の更新件数: got %d, want 0", updated)
	}

	// 別ユーザーの未読は影響を受けない
	count, err = o.UnreadCount(t.Context(), "user-2")
	if err != nil {
		t.Fatalf("UnreadCountに失敗: %v", err)
	}
	if count != 1 {
		t.Errorf("user-2の未読数: got %d, want 1", count)
	}
}
