package geminiweb

import "strings"

// EmptyReplyFallback 是后端返回空文本时替换给调用方的固定提示，
// 通常意味着 Cookie 凭据失效。
const EmptyReplyFallback = "服务器返回了空响应。请检查 Gemini API 凭据是否有效。"

// unescaper 还原网页版输出里的转义痕迹。
var unescaper = strings.NewReplacer(
	"&lt;", "<",
	`\<`, "<",
	`\_`, "_",
	`\>`, ">",
)

// FormatReply 把后端应答整理成最终回复文本：
//   - thoughts 存在时以 <think>...</think> 前缀拼接
//   - 还原转义字符并修正 Markdown
//   - 空白应答替换为 EmptyReplyFallback
func FormatReply(reply *Reply) string {
	var b strings.Builder
	if reply != nil {
		if reply.Thoughts != "" {
			b.WriteString("<think>")
			b.WriteString(reply.Thoughts)
			b.WriteString("</think>")
		}
		b.WriteString(reply.Text)
	}

	text := CorrectMarkdown(unescaper.Replace(b.String()))
	if strings.TrimSpace(text) == "" {
		return EmptyReplyFallback
	}
	return text
}
