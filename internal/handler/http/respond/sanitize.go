package respond

import (
	"regexp"
)

var (
	// OpenAI APIキーのパターン（sk-、sk-proj- 両形式）
	apiKeyPattern = regexp.MustCompile(`sk-[a-zA-Z0-9_-]{10,}`)

	// URL内の認証情報（postgres:// と redis:// の両方に対応）
	// redis://:password@host のようにユーザー名が空の場合もマスクする
	urlCredentialsPattern = regexp.MustCompile(`://([^:/@]*):([^@/]+)@`)
)

// SanitizeError は機密情報をマスクしたエラーメッセージを返す
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}

	msg := err.Error()

	// APIキーのマスク
	msg = apiKeyPattern.ReplaceAllString(msg, "sk-****")

	// DSNやRedis URL内のパスワードのマスク
	msg = urlCredentialsPattern.ReplaceAllString(msg, "://$1:****@")

	return msg
}
