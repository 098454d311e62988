package notify

import "fmt"

// イベント種別の定義。トリガー側のルートが固定の種別でPublishする。
const (
	// TypeDeviceCommand はロッカーへの開閉コマンド送信を表す。
	TypeDeviceCommand = "device_command"
	// TypePackageDetected はロッカー内での荷物検知を表す。
	TypePackageDetected = "package_detected"
	// TypeDoorLeftOpen は扉の閉め忘れを表す。
	TypeDoorLeftOpen = "door_left_open"
	// TypeDeviceOffline はデバイスとの通信途絶を表す。
	TypeDeviceOffline = "device_offline"
	// TypeMediaUploaded はカメラ画像のアップロードを表す。
	TypeMediaUploaded = "media_uploaded"
)

// Preset は定型イベントの種別・重要度・文面テンプレートの組。
// タイトルと本文はデバイスIDを埋め込んで生成する。
type Preset struct {
	// Type はイベントの種類。
	Type string
	// Severity は通知の重要度。
	Severity Severity
	// Title は通知のタイトル。
	Title string
	// bodyFormat は本文のテンプレート。%sにデバイスIDが入る。
	bodyFormat string
}

// Body はデバイスIDを埋め込んだ通知本文を返す。
func (p Preset) Body(deviceID string) string {
	return fmt.Sprintf(p.bodyFormat, deviceID)
}

// presets は名前から定型イベントへの対応表。
var presets = map[string]Preset{
	TypePackageDetected: {
		Type:       TypePackageDetected,
		Severity:   SeveritySuccess,
		Title:      "荷物が届きました",
		bodyFormat: "デバイス %s で新しい荷物を検知しました。",
	},
	TypeDoorLeftOpen: {
		Type:       TypeDoorLeftOpen,
		Severity:   SeverityWarning,
		Title:      "扉が開いたままです",
		bodyFormat: "デバイス %s の扉が開いたままになっています。",
	},
	TypeDeviceOffline: {
		Type:       TypeDeviceOffline,
		Severity:   SeverityError,
		Title:      "デバイスがオフラインです",
		bodyFormat: "デバイス %s との通信が途絶えました。",
	},
	TypeDeviceCommand: {
		Type:       TypeDeviceCommand,
		Severity:   SeverityInfo,
		Title:      "コマンドを受け付けました",
		bodyFormat: "デバイス %s への操作コマンドを受け付けました。",
	},
	TypeMediaUploaded: {
		Type:       TypeMediaUploaded,
		Severity:   SeverityInfo,
		Title:      "カメラ画像が保存されました",
		bodyFormat: "デバイス %s の新しいカメラ画像が保存されました。",
	},
}

// LookupPreset は名前に対応する定型イベントを返す。
// 未定義の名前の場合は第2戻り値がfalseになる。
func LookupPreset(name string) (Preset, bool) {
	p, ok := presets[name]
	return p, ok
}
