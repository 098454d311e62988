// Package notify は通知のオーケストレーションと配信チャネルへのファンアウトを提供する。
//
// 1回のPublishで不変のイベントエンベロープを構築し、受信者を解決したうえで、
// 登録済みの全チャネル（監査ログ・受信者別インボックス・プッシュ系スタブ）へ
// 順に配信する。個々のチャネルの失敗は配信ステータスとして記録するだけで、
// 他チャネルの配信や呼び出し元を失敗させない。
package notify
