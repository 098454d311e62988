package server

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/smartpost/smartpost/internal/notify"
	"github.com/smartpost/smartpost/pkg/httpclient"
)

// deviceCommandRequest は開閉コマンドリクエストのJSON構造。
type deviceCommandRequest struct {
	// Command は実行するコマンド。"open" または "close" のみ許可する。
	Command string `json:"command" binding:"required"`
}

// deviceNotifyRequest は定型イベント発行リクエストのJSON構造。
type deviceNotifyRequest struct {
	// Preset は定型イベント名（例: package_detected）。
	Preset string `json:"preset" binding:"required"`
	// Data はイベントに付与する補助フィールド。
	Data map[string]any `json:"data"`
	// ClientTime はクライアントが申告した発生日時（RFC3339形式、任意）。
	ClientTime string `json:"client_time"`
}

// handleDeviceState はデバイスの状態スナップショットを返すハンドラを返す。
// デバイス制御経路は外部コラボレータのため、固定のスナップショットを返す。
func (s *Server) handleDeviceState() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := ensureUserID(c); !ok {
			return
		}

		deviceID := c.Param("id")
		c.JSON(http.StatusOK, gin.H{
			"device_id":       deviceID,
			"door_state":      "closed",
			"weight_g":        0,
			"last_update_iso": time.Now().UTC().Format(time.RFC3339),
			"cameras": gin.H{
				"cam1": "/static/placeholder.jpg",
				"cam2": "/static/placeholder.jpg",
				"cam3": "/static/placeholder.jpg",
			},
		})
	}
}

// handleDeviceCommand は開閉コマンドを処理するハンドラを返す。
// コマンドを検証して通知を発行し、ブリッジが設定されていればコマンドを転送する。
// ブリッジへの転送失敗はログに記録するだけで、リクエスト自体は成功として扱う。
func (s *Server) handleDeviceCommand() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := ensureUserID(c)
		if !ok {
			return
		}

		deviceID := c.Param("id")

		var req deviceCommandRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "commandは必須です"})
			return
		}
		if req.Command != "open" && req.Command != "close" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "commandは 'open' または 'close' を指定してください"})
			return
		}

		log.Printf("コマンド受信: user=%s, device=%s, command=%s", userID, deviceID, req.Command)

		preset, _ := notify.LookupPreset(notify.TypeDeviceCommand)
		eventID, err := s.notifier.Publish(c.Request.Context(), notify.PublishParams{
			Type:     preset.Type,
			Title:    preset.Title,
			Body:     preset.Body(deviceID),
			Severity: preset.Severity,
			Actor:    userID,
			DeviceID: deviceID,
			Data:     map[string]any{"command": req.Command},
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の発行に失敗しました"})
			log.Printf("通知発行エラー: %v", err)
			return
		}

		// ブリッジが設定されている場合のみデバイスへ転送する
		if s.bridgeClient != nil {
			ctx := httpclient.WithUserID(c.Request.Context(), userID)
			bridgeReq := gin.H{"device_id": deviceID, "command": req.Command}
			if err := s.bridgeClient.PostJSON(ctx, "/commands", bridgeReq, nil); err != nil {
				log.Printf("デバイスブリッジへの転送に失敗: device=%s, error=%v", deviceID, err)
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"message":  "コマンド '" + req.Command + "' を受け付けました",
			"event_id": eventID,
		})
	}
}

// handleDeviceNotify は定型イベントの発行を処理するハンドラを返す。
// デモ用トリガーとして、名前で指定された定型イベントを通知として発行する。
func (s *Server) handleDeviceNotify() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := ensureUserID(c)
		if !ok {
			return
		}

		deviceID := c.Param("id")

		var req deviceNotifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "presetは必須です"})
			return
		}

		preset, found := notify.LookupPreset(req.Preset)
		if !found {
			c.JSON(http.StatusBadRequest, gin.H{"error": "未定義の定型イベントです: " + req.Preset})
			return
		}

		var clientTime *time.Time
		if req.ClientTime != "" {
			t, err := time.Parse(time.RFC3339, req.ClientTime)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "client_timeはRFC3339形式で指定してください"})
				return
			}
			clientTime = &t
		}

		eventID, err := s.notifier.Publish(c.Request.Context(), notify.PublishParams{
			Type:       preset.Type,
			Title:      preset.Title,
			Body:       preset.Body(deviceID),
			Severity:   preset.Severity,
			Actor:      userID,
			DeviceID:   deviceID,
			Data:       req.Data,
			ClientTime: clientTime,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の発行に失敗しました"})
			log.Printf("通知発行エラー: %v", err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{"event_id": eventID})
	}
}
