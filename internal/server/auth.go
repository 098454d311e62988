package server

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/smartpost/smartpost/internal/docstore"
	"github.com/smartpost/smartpost/pkg/middleware"
)

// collectionUsers はユーザー資格情報を保存するコレクション名。
const collectionUsers = "users"

// userDocument はユーザー資格情報のドキュメント構造。
type userDocument struct {
	// Username はユーザー名。ドキュメントキーと同じ値。
	Username string `json:"username"`
	// PasswordHash はbcryptでハッシュ化されたパスワード。
	PasswordHash string `json:"password_hash"`
	// CreatedAt はアカウント作成日時。
	CreatedAt time.Time `json:"created_at"`
}

// authRequest はサインアップ・ログイン共通のリクエストのJSON構造。
type authRequest struct {
	// Username はユーザー名。
	Username string `json:"username" binding:"required"`
	// Password はパスワード。
	Password string `json:"password" binding:"required"`
}

// handleSignup は新規ユーザー登録を処理するハンドラを返す。
// パスワードをbcryptでハッシュ化して保存し、JWTトークンを発行する。
func (s *Server) handleSignup() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req authRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ユーザー名とパスワードは必須です"})
			return
		}

		username := strings.TrimSpace(req.Username)
		if username == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ユーザー名とパスワードは必須です"})
			return
		}

		// 既存ユーザーの確認
		var existing userDocument
		err := s.store.Get(c.Request.Context(), collectionUsers, username, &existing)
		if err == nil {
			c.JSON(http.StatusConflict, gin.H{"error": "このユーザー名は既に使用されています"})
			return
		}
		if !errors.Is(err, docstore.ErrNotFound) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの確認に失敗しました"})
			log.Printf("ユーザー確認エラー: %v", err)
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "パスワードのハッシュ化に失敗しました"})
			log.Printf("パスワードハッシュ化エラー: %v", err)
			return
		}

		user := userDocument{
			Username:     username,
			PasswordHash: string(hash),
			CreatedAt:    time.Now().UTC(),
		}
		if err := s.store.Put(c.Request.Context(), collectionUsers, username, user); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの作成に失敗しました"})
			log.Printf("ユーザー作成エラー: %v", err)
			return
		}

		token, err := middleware.GenerateJWT(s.jwtSecret, username)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "トークン生成に失敗しました"})
			log.Printf("JWT生成エラー: %v", err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"token":   token,
			"user_id": username,
		})
	}
}

// handleLogin はログインを処理するハンドラを返す。
// 資格情報を検証し、成功した場合はJWTトークンを発行する。
// ユーザーの有無とパスワード不一致は同じエラーメッセージで返す。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req authRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ユーザー名とパスワードは必須です"})
			return
		}

		username := strings.TrimSpace(req.Username)

		var user userDocument
		err := s.store.Get(c.Request.Context(), collectionUsers, username, &user)
		if errors.Is(err, docstore.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "認証情報が正しくありません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの取得に失敗しました"})
			log.Printf("ユーザー取得エラー: %v", err)
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "認証情報が正しくありません"})
			return
		}

		token, err := middleware.GenerateJWT(s.jwtSecret, username)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "トークン生成に失敗しました"})
			log.Printf("JWT生成エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token":   token,
			"user_id": username,
		})
	}
}

// ensureUserID は認証済みユーザーIDを取得する。未設定の場合は401を返してfalseを返す。
func ensureUserID(c *gin.Context) (string, bool) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
		return "", false
	}
	return userID, true
}
