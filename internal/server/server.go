package server

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/smartpost/smartpost/internal/docstore"
	"github.com/smartpost/smartpost/internal/notify"
	"github.com/smartpost/smartpost/pkg/httpclient"
	"github.com/smartpost/smartpost/pkg/middleware"
)

// Server は宅配ロッカー操作アプリのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// store はドキュメントストア。ユーザー・プロファイル・メディア・通知を保存する。
	store *docstore.Store
	// notifier は通知のオーケストレータ。
	notifier *notify.Orchestrator
	// jwtSecret はJWT署名用の秘密鍵。
	jwtSecret string
	// bridgeClient はデバイスブリッジへのHTTPクライアント。未設定の場合はnil。
	bridgeClient *httpclient.Client
	// mediaDir はアップロードファイルの保存先ディレクトリ。
	mediaDir string
	// mediaTTL はメディアメタデータの有効期間。
	mediaTTL time.Duration
}

// NewServer は新しいサーバーを生成する。
// SQLiteドキュメントストアの初期化とスキーマ適用を行う。
func NewServer(port string) (*Server, error) {
	dbPath := getEnvOr("SMARTPOST_DB", "/data/smartpost.db?_journal_mode=WAL&_busy_timeout=5000")
	store, err := docstore.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("ドキュメントストアの初期化に失敗: %w", err)
	}

	jwtSecret := getEnvOr("JWT_SECRET", "dev-secret-key")
	frontendURL := getEnvOr("FRONTEND_URL", "http://localhost:3000")

	var bridgeClient *httpclient.Client
	if bridgeURL := os.Getenv("DEVICE_BRIDGE_URL"); bridgeURL != "" {
		bridgeClient = httpclient.New(bridgeURL)
	}

	mediaTTL := 168 * time.Hour
	if v := os.Getenv("MEDIA_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("MEDIA_TTLの解析に失敗: %w", err)
		}
		mediaTTL = d
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORS([]string{frontendURL}))

	s := &Server{
		router:       router,
		port:         port,
		store:        store,
		notifier:     notify.NewOrchestrator(store),
		jwtSecret:    jwtSecret,
		bridgeClient: bridgeClient,
		mediaDir:     getEnvOr("MEDIA_DIR", "/data/media"),
		mediaTTL:     mediaTTL,
	}
	s.setupRoutes()

	return s, nil
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	// 認証エンドポイント（認証不要）
	auth := s.router.Group("/auth")
	{
		auth.POST("/signup", s.handleSignup())
		auth.POST("/login", s.handleLogin())
	}

	// 認証必須のAPIエンドポイント
	api := s.router.Group("/api/v1")
	api.Use(middleware.JWTAuth(s.jwtSecret))
	{
		devices := api.Group("/devices")
		{
			// デバイス状態の取得
			devices.GET("/:id/state", s.handleDeviceState())
			// 開閉コマンドの送信
			devices.POST("/:id/command", s.handleDeviceCommand())
			// 定型イベントの発行（デモ用トリガー）
			devices.POST("/:id/notify", s.handleDeviceNotify())
		}

		media := api.Group("/media")
		{
			// カメラ画像のアップロード（マルチパートフォーム）
			media.POST("", s.handleMediaUpload())
			// メディア一覧取得（期限切れは除外）
			media.GET("", s.handleMediaList())
			// メディア詳細取得
			media.GET("/:id", s.handleMediaGet())
		}

		notifications := api.Group("/notifications")
		{
			// 通知一覧取得
			notifications.GET("", s.handleNotificationList())
			// 未読通知数の取得
			notifications.GET("/unread-count", s.handleUnreadCount())
			// 通知を既読にする
			notifications.PUT("/:id/read", s.handleMarkRead())
			// 全通知を既読にする
			notifications.PUT("/read-all", s.handleMarkAllRead())
		}

		// プロファイル管理
		api.POST("/profile", s.handleProfileCreate())
		api.GET("/profile/:username", s.handleProfileGet())
		api.PUT("/profile/:username", s.handleProfileUpdate())
		api.DELETE("/profile/:username", s.handleProfileDelete())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "smartpost"})
	})
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
