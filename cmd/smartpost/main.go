// スマートポストサービスのエントリポイント。
// 宅配ボックスのデバイス操作・メディア管理・通知配信を
// ひとつのHTTPサーバーとして提供する。
package main

import (
	"log"
	"os"

	"github.com/smartpost/smartpost/internal/server"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	srv, err := server.NewServer(port)
	if err != nil {
		log.Fatalf("サーバーの初期化に失敗: %v", err)
	}

	log.Printf("スマートポストサービスを起動します: :%s", port)
	if err := srv.Run(); err != nil {
		log.Fatalf("サーバーの起動に失敗: %v", err)
	}
}
