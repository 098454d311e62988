// Package httpclient は外部サービスとのJSON通信用HTTPクライアントを提供する。
//
// デバイスブリッジへのコマンド転送など、サーバーから外部エンドポイントへの
// リクエスト送信に使用する。
package httpclient
