package server

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/smartpost/smartpost/internal/notify"
)

// notificationResponse は通知一覧APIのレスポンス形式。
// 受信箱レコードのタイムスタンプをRFC3339文字列に整形して返す。
type notificationResponse struct {
	// EventID はイベントの一意識別子。
	EventID string `json:"event_id"`
	// Type はイベント種別。
	Type string `json:"type"`
	// Title は通知のタイトル。
	Title string `json:"title"`
	// Body は通知の本文。
	Body string `json:"body"`
	// Severity は通知の重要度。
	Severity string `json:"severity"`
	// Actor はイベントを発生させたユーザーID。
	Actor string `json:"actor,omitempty"`
	// DeviceID は関連するデバイスの識別子。
	DeviceID string `json:"device_id,omitempty"`
	// Data はイベント固有の追加データ。
	Data map[string]any `json:"data,omitempty"`
	// Read は既読フラグ。
	Read bool `json:"read"`
	// ReadAt は既読にした日時（未読の場合は省略）。
	ReadAt string `json:"read_at,omitempty"`
	// Delivery はチャネルごとの配信結果。
	Delivery map[string]notify.DeliveryStatus `json:"delivery,omitempty"`
	// CreatedAt は通知の作成日時。
	CreatedAt string `json:"created_at"`
}

// toNotificationResponse は受信箱レコードをAPIレスポンス形式に変換する。
func toNotificationResponse(rec notify.Record) notificationResponse {
	resp := notificationResponse{
		EventID:   rec.EventID,
		Type:      rec.Type,
		Title:     rec.Title,
		Body:      rec.Body,
		Severity:  string(rec.Severity),
		Actor:     rec.Actor,
		DeviceID:  rec.DeviceID,
		Data:      rec.Data,
		Read:      rec.Read,
		Delivery:  rec.Delivery,
		CreatedAt: rec.CreatedAt.Format(time.RFC3339),
	}
	if rec.ReadAt != nil {
		resp.ReadAt = rec.ReadAt.Format(time.RFC3339)
	}
	return resp
}

// handleNotificationList は通知一覧取得を処理するハンドラを返す。
// limitクエリパラメータ（デフォルト20）とunread_only=trueによる絞り込みに対応する。
func (s *Server) handleNotificationList() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := ensureUserID(c)
		if !ok {
			return
		}

		limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limitは数値で指定してください"})
			return
		}
		unreadOnly := c.Query("unread_only") == "true"

		records, err := s.notifier.List(c.Request.Context(), userID, limit, unreadOnly)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知一覧の取得に失敗しました"})
			log.Printf("通知一覧取得エラー: %v", err)
			return
		}

		notifications := make([]notificationResponse, 0, len(records))
		for _, rec := range records {
			notifications = append(notifications, toNotificationResponse(rec))
		}

		c.JSON(http.StatusOK, gin.H{
			"notifications": notifications,
			"count":         len(notifications),
		})
	}
}

// handleUnreadCount は未読通知数の取得を処理するハンドラを返す。
func (s *Server) handleUnreadCount() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := ensureUserID(c)
		if !ok {
			return
		}

		count, err := s.notifier.UnreadCount(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "未読数の取得に失敗しました"})
			log.Printf("未読数取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"count": count})
	}
}

// handleMarkRead は通知の既読化を処理するハンドラを返す。
// すでに既読の通知に対しても成功を返す（冪等）。
func (s *Server) handleMarkRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := ensureUserID(c)
		if !ok {
			return
		}

		eventID := c.Param("id")

		err := s.notifier.MarkRead(c.Request.Context(), userID, eventID)
		if errors.Is(err, notify.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "通知が見つかりません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "既読化に失敗しました"})
			log.Printf("既読化エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "既読にしました"})
	}
}

// handleMarkAllRead は全通知の一括既読化を処理するハンドラを返す。
// 実際に既読へ更新した件数を返す。
func (s *Server) handleMarkAllRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := ensureUserID(c)
		if !ok {
			return
		}

		updated, err := s.notifier.MarkAllRead(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "一括既読化に失敗しました"})
			log.Printf("一括既読化エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"updated": updated})
	}
}
