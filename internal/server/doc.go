// Package server は宅配ロッカー操作アプリのHTTP APIを提供する。
//
// 認証、デバイス操作、カメラ画像のアップロード、プロファイル管理の各ルートと、
// 通知のオーケストレーション（internal/notify）への照会ルートを1つの
// Ginエンジンに集約する。
package server
