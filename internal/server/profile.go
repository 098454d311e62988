package server

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/smartpost/smartpost/internal/docstore"
)

// collectionProfiles はユーザープロフィールを保存するコレクション名。
const collectionProfiles = "profiles"

// handleProfileCreate はプロフィール作成を処理するハンドラを返す。
// 任意のフィールドを持つJSONドキュメントとして保存する。
func (s *Server) handleProfileCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := ensureUserID(c); !ok {
			return
		}

		var doc map[string]any
		if err := c.ShouldBindJSON(&doc); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストボディが不正です"})
			return
		}

		username, _ := doc["username"].(string)
		if username == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "usernameは必須です"})
			return
		}

		doc["updated_at"] = time.Now().UTC().Format(time.RFC3339)

		if err := s.store.Put(c.Request.Context(), collectionProfiles, username, doc); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "プロフィールの保存に失敗しました"})
			log.Printf("プロフィール保存エラー: %v", err)
			return
		}

		c.JSON(http.StatusCreated, doc)
	}
}

// handleProfileGet はプロフィール取得を処理するハンドラを返す。
func (s *Server) handleProfileGet() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := ensureUserID(c); !ok {
			return
		}

		username := c.Param("username")

		var doc map[string]any
		err := s.store.Get(c.Request.Context(), collectionProfiles, username, &doc)
		if errors.Is(err, docstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "プロフィールが見つかりません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "プロフィールの取得に失敗しました"})
			log.Printf("プロフィール取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, doc)
	}
}

// handleProfileUpdate はプロフィールの部分更新を処理するハンドラを返す。
// リクエストボディに含まれるフィールドのみ既存ドキュメントへマージする。
func (s *Server) handleProfileUpdate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := ensureUserID(c); !ok {
			return
		}

		username := c.Param("username")

		var updates map[string]any
		if err := c.ShouldBindJSON(&updates); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストボディが不正です"})
			return
		}
		if len(updates) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "更新するフィールドがありません"})
			return
		}

		var doc map[string]any
		err := s.store.Get(c.Request.Context(), collectionProfiles, username, &doc)
		if errors.Is(err, docstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "プロフィールが見つかりません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "プロフィールの取得に失敗しました"})
			log.Printf("プロフィール取得エラー: %v", err)
			return
		}

		for key, value := range updates {
			// キー（ユーザー名）の書き換えは許可しない
			if key == "username" {
				continue
			}
			doc[key] = value
		}
		doc["updated_at"] = time.Now().UTC().Format(time.RFC3339)

		if err := s.store.Put(c.Request.Context(), collectionProfiles, username, doc); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "プロフィールの更新に失敗しました"})
			log.Printf("プロフィール更新エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, doc)
	}
}

// handleProfileDelete はプロフィール削除を処理するハンドラを返す。
func (s *Server) handleProfileDelete() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := ensureUserID(c); !ok {
			return
		}

		username := c.Param("username")

		err := s.store.Delete(c.Request.Context(), collectionProfiles, username)
		if errors.Is(err, docstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "プロフィールが見つかりません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "プロフィールの削除に失敗しました"})
			log.Printf("プロフィール削除エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "プロフィールを削除しました"})
	}
}
