package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/smartpost/smartpost/internal/docstore"
	"github.com/smartpost/smartpost/internal/notify"
)

// maxUploadSize はアップロード可能なファイルの最大サイズ（50MB）。
// テスト時に差し替え可能にするためvarとして宣言する。
var maxUploadSize int64 = 50 << 20

// collectionMedia はメディアメタデータを保存するコレクション名。
const collectionMedia = "media"

// mediaDocument はアップロードされたメディアのメタデータ。
// 有効期限を過ぎたレコードは一覧・詳細の両方から除外される。
type mediaDocument struct {
	// ID はメディアの一意識別子（UUID）。
	ID string `json:"id"`
	// DeviceID は撮影元デバイスの識別子。
	DeviceID string `json:"device_id"`
	// Filename は元のファイル名。
	Filename string `json:"filename"`
	// StoragePath はファイルの保存パス。
	StoragePath string `json:"storage_path"`
	// ContentType はファイルのMIMEタイプ。
	ContentType string `json:"content_type"`
	// Size はファイルサイズ（バイト）。
	Size int64 `json:"size"`
	// CreatedAt はアップロード日時。
	CreatedAt time.Time `json:"created_at"`
	// ExpiresAt はメタデータの有効期限。
	ExpiresAt time.Time `json:"expires_at"`
}

// handleMediaUpload はカメラ画像のアップロードを処理するハンドラを返す。
// マルチパートフォームからファイルを受け取ってディスクに保存し、
// 有効期限付きのメタデータを記録したうえでmedia_uploaded通知を発行する。
func (s *Server) handleMediaUpload() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := ensureUserID(c)
		if !ok {
			return
		}

		deviceID := c.PostForm("device_id")
		if deviceID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "device_idは必須です"})
			return
		}

		file, header, err := c.Request.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ファイルの取得に失敗しました"})
			return
		}
		defer file.Close()

		if header.Size > maxUploadSize {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ファイルサイズが上限を超えています"})
			return
		}

		contentType := header.Header.Get("Content-Type")
		if !isAllowedContentType(contentType) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "許可されていないContent-Typeです（image/*またはvideo/*のみ）"})
			return
		}

		mediaID := uuid.New().String()
		mediaDir := filepath.Join(s.mediaDir, mediaID)
		if err := os.MkdirAll(mediaDir, 0o755); err != nil {
			log.Printf("メディアディレクトリの作成に失敗: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ファイル保存先の作成に失敗しました"})
			return
		}

		filename := filepath.Base(header.Filename)
		storagePath := filepath.Join(mediaDir, filename)
		dst, err := os.Create(storagePath)
		if err != nil {
			log.Printf("ファイルの作成に失敗: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ファイルの保存に失敗しました"})
			return
		}
		defer dst.Close()

		written, err := io.Copy(dst, file)
		if err != nil {
			log.Printf("ファイルの書き込みに失敗: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ファイルの書き込みに失敗しました"})
			return
		}

		now := time.Now().UTC()
		doc := mediaDocument{
			ID:          mediaID,
			DeviceID:    deviceID,
			Filename:    filename,
			StoragePath: storagePath,
			ContentType: contentType,
			Size:        written,
			CreatedAt:   now,
			ExpiresAt:   now.Add(s.mediaTTL),
		}
		if err := s.store.Put(c.Request.Context(), collectionMedia, mediaID, doc); err != nil {
			log.Printf("メディアメタデータの保存に失敗: %v", err)
			// ファイルは保存済みだがメタデータ保存に失敗した場合、ファイルをクリーンアップする
			if removeErr := os.RemoveAll(mediaDir); removeErr != nil {
				log.Printf("クリーンアップ失敗: %v", removeErr)
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "メタデータの保存に失敗しました"})
			return
		}

		preset, _ := notify.LookupPreset(notify.TypeMediaUploaded)
		eventID, err := s.notifier.Publish(c.Request.Context(), notify.PublishParams{
			Type:     preset.Type,
			Title:    preset.Title,
			Body:     preset.Body(deviceID),
			Severity: preset.Severity,
			Actor:    userID,
			DeviceID: deviceID,
			Data:     map[string]any{"media_id": mediaID, "filename": filename},
		})
		if err != nil {
			log.Printf("media_uploaded通知の発行に失敗: %v", err)
		}

		c.JSON(http.StatusCreated, gin.H{
			"id":           mediaID,
			"device_id":    deviceID,
			"filename":     filename,
			"content_type": contentType,
			"size":         written,
			"expires_at":   doc.ExpiresAt.Format(time.RFC3339),
			"event_id":     eventID,
		})
	}
}

// handleMediaList はメディア一覧取得を処理するハンドラを返す。
// device_idクエリパラメータで絞り込み、有効期限を過ぎたレコードは除外する。
func (s *Server) handleMediaList() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := ensureUserID(c); !ok {
			return
		}

		var filters []docstore.Filter
		if deviceID := c.Query("device_id"); deviceID != "" {
			filters = append(filters, docstore.Filter{Field: "device_id", Value: deviceID})
		}

		docs, err := s.store.Query(c.Request.Context(), collectionMedia, filters, 0)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "メディア一覧の取得に失敗しました"})
			log.Printf("メディア一覧取得エラー: %v", err)
			return
		}

		now := time.Now().UTC()
		media := make([]mediaDocument, 0, len(docs))
		for _, raw := range docs {
			var doc mediaDocument
			if err := json.Unmarshal(raw, &doc); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "メタデータの読み取りに失敗しました"})
				log.Printf("メディアメタデータのデシリアライズエラー: %v", err)
				return
			}
			if doc.ExpiresAt.Before(now) {
				continue
			}
			media = append(media, doc)
		}

		c.JSON(http.StatusOK, gin.H{
			"media": media,
			"count": len(media),
		})
	}
}

// handleMediaGet はメディア詳細取得を処理するハンドラを返す。
// 有効期限を過ぎたレコードは存在しないものとして404を返す。
func (s *Server) handleMediaGet() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := ensureUserID(c); !ok {
			return
		}

		mediaID := c.Param("id")

		var doc mediaDocument
		err := s.store.Get(c.Request.Context(), collectionMedia, mediaID, &doc)
		if errors.Is(err, docstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "メディアが見つかりません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "メディアの取得に失敗しました"})
			log.Printf("メディア取得エラー: %v", err)
			return
		}

		if doc.ExpiresAt.Before(time.Now().UTC()) {
			c.JSON(http.StatusNotFound, gin.H{"error": "メディアが見つかりません"})
			return
		}

		c.JSON(http.StatusOK, doc)
	}
}

// isAllowedContentType は許可されたContent-Typeかどうかを判定する。
// image/* または video/* のみ許可する。
func isAllowedContentType(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.HasPrefix(ct, "image/") || strings.HasPrefix(ct, "video/")
}
