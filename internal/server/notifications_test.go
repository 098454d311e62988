package server

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
)

// publishTestNotification は定型イベント発行APIを通じて通知を作成するヘルパー関数。
func publishTestNotification(t *testing.T, router *gin.Engine, userID, preset string) string {
	t.Helper()

	w := doRequest(router, http.MethodPost, "/api/v1/devices/dev-1/notify", userID, map[string]string{
		"preset": preset,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("通知の発行に失敗: %d, body=%s", w.Code, w.Body.String())
	}
	result := parseJSON(t, w)
	eventID, _ := result["event_id"].(string)
	if eventID == "" {
		t.Fatal("event_idが返されていない")
	}
	return eventID
}

// TestHandleNotificationList は通知一覧取得ハンドラのテスト。
func TestHandleNotificationList(t *testing.T) {
	t.Parallel()

	t.Run("通知が存在しない場合は空配列を返す", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		w := doRequest(router, http.MethodGet, "/api/v1/notifications", "user-1", nil)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		result := parseJSON(t, w)
		if result["count"] != float64(0) {
			t.Errorf("count: got %v, want 0", result["count"])
		}
	})

	t.Run("limitで件数を制限できる", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		for range 3 {
			publishTestNotification(t, router, "user-1", "package_detected")
		}

		w := doRequest(router, http.MethodGet, "/api/v1/notifications?limit=2", "user-1", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		result := parseJSON(t, w)
		if result["count"] != float64(2) {
			t.Errorf("count: got %v, want 2", result["count"])
		}
	})

	t.Run("数値でないlimitは400を返す", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		w := doRequest(router, http.MethodGet, "/api/v1/notifications?limit=abc", "user-1", nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("unread_only=trueで未読のみ返す", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		readID := publishTestNotification(t, router, "user-1", "package_detected")
		publishTestNotification(t, router, "user-1", "door_left_open")

		w := doRequest(router, http.MethodPut, fmt.Sprintf("/api/v1/notifications/%s/read", readID), "user-1", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("既読化に失敗: %d", w.Code)
		}

		w = doRequest(router, http.MethodGet, "/api/v1/notifications?unread_only=true", "user-1", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		result := parseJSON(t, w)
		if result["count"] != float64(1) {
			t.Errorf("count: got %v, want 1", result["count"])
		}
	})
}

// TestHandleUnreadCount は未読通知数取得ハンドラのテスト。
func TestHandleUnreadCount(t *testing.T) {
	t.Parallel()

	_, router := setupTestServer(t)

	w := doRequest(router, http.MethodGet, "/api/v1/notifications/unread-count", "user-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
	}
	if result := parseJSON(t, w); result["count"] != float64(0) {
		t.Errorf("初期状態のcount: got %v, want 0", result["count"])
	}

	publishTestNotification(t, router, "user-1", "package_detected")
	publishTestNotification(t, router, "user-1", "device_offline")

	w = doRequest(router, http.MethodGet, "/api/v1/notifications/unread-count", "user-1", nil)
	if result := parseJSON(t, w); result["count"] != float64(2) {
		t.Errorf("count: got %v, want 2", result["count"])
	}

	// 別ユーザーの未読数には影響しない
	w = doRequest(router, http.MethodGet, "/api/v1/notifications/unread-count", "user-2", nil)
	if result := parseJSON(t, w); result["count"] != float64(0) {
		t.Errorf("user-2のcount: got %v, want 0", result["count"])
	}
}

// TestHandleMarkRead は既読化ハンドラのテスト。
func TestHandleMarkRead(t *testing.T) {
	t.Parallel()

	t.Run("既読化すると未読一覧から消える", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		eventID := publishTestNotification(t, router, "user-1", "package_detected")

		w := doRequest(router, http.MethodPut, fmt.Sprintf("/api/v1/notifications/%s/read", eventID), "user-1", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}

		w = doRequest(router, http.MethodGet, "/api/v1/notifications/unread-count", "user-1", nil)
		if result := parseJSON(t, w); result["count"] != float64(0) {
			t.Errorf("count: got %v, want 0", result["count"])
		}
	})

	t.Run("再既読化も200を返す", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		eventID := publishTestNotification(t, router, "user-1", "package_detected")

		path := fmt.Sprintf("/api/v1/notifications/%s/read", eventID)
		if w := doRequest(router, http.MethodPut, path, "user-1", nil); w.Code != http.StatusOK {
			t.Fatalf("1回目: got %d, want %d", w.Code, http.StatusOK)
		}
		if w := doRequest(router, http.MethodPut, path, "user-1", nil); w.Code != http.StatusOK {
			t.Errorf("2回目: got %d, want %d", w.Code, http.StatusOK)
		}
	})

	t.Run("存在しない通知は404を返す", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		w := doRequest(router, http.MethodPut, "/api/v1/notifications/missing-id/read", "user-1", nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("他ユーザーの通知は404を返す", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		eventID := publishTestNotification(t, router, "user-1", "package_detected")

		w := doRequest(router, http.MethodPut, fmt.Sprintf("/api/v1/notifications/%s/read", eventID), "user-2", nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusNotFound)
		}
	})
}

// TestHandleMarkAllRead は一括既読化ハンドラのテスト。
func TestHandleMarkAllRead(t *testing.T) {
	t.Parallel()

	_, router := setupTestServer(t)

	publishTestNotification(t, router, "user-1", "package_detected")
	publishTestNotification(t, router, "user-1", "door_left_open")
	publishTestNotification(t, router, "user-2", "package_detected")

	w := doRequest(router, http.MethodPut, "/api/v1/notifications/read-all", "user-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
	}
	if result := parseJSON(t, w); result["updated"] != float64(2) {
		t.Errorf("updated: got %v, want 2", result["updated"])
	}

	// 2回目は更新対象なし
	w = doRequest(router, http.MethodPut, "/api/v1/notifications/read-all", "user-1", nil)
	if result := parseJSON(t, w); result["updated"] != float64(0) {
		t.Errorf("2回目のupdated: got %v, want 0", result["updated"])
	}

	// 別ユーザーの未読は残る
	w = doRequest(router, http.MethodGet, "/api/v1/notifications/unread-count", "user-2", nil)
	if result := parseJSON(t, w); result["count"] != float64(1) {
		t.Errorf("user-2のcount: got %v, want 1", result["count"])
	}
}
