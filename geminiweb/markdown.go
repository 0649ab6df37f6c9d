package geminiweb

import (
	"regexp"
	"strings"
)

const searchLinkPrefix = "](https://www.google.com/search?q="

var (
	// pathLineRe 匹配 "path:line" 形状的显示文本前缀，例如 foo.py:42。
	pathLineRe = regexp.MustCompile(`^[^:]+:\d+`)
	// wrappedLinkRe 匹配被单层反引号误包裹的 markdown 链接。
	wrappedLinkRe = regexp.MustCompile("`(\\[[^\\]]+\\]\\([^)]+\\))`")
)

// CorrectMarkdown 修正网页版返回的 Markdown：
//  1. 移除 Google 搜索链接包装器，并根据显示文本简化目标 URL；
//     网页版偶尔会输出嵌套错乱的括号，多余的右括号会被一并吞掉；
//  2. 解开被反引号包裹的 markdown 链接。
//
// 该函数满足幂等性：CorrectMarkdown(CorrectMarkdown(x)) == CorrectMarkdown(x)。
func CorrectMarkdown(md string) string {
	fixed := rewriteSearchLinks(md)
	return wrappedLinkRe.ReplaceAllString(fixed, "$1")
}

// rewriteSearchLinks 把 [`display`](https://www.google.com/search?q=...) 形状
// 重写为 [`display`](target)。RE2 不支持反向断言，这里用手写扫描处理
// URL 内的 \) 转义和末尾的多余右括号。
func rewriteSearchLinks(md string) string {
	var out strings.Builder
	i := 0
	for i < len(md) {
		idx := strings.Index(md[i:], "[`")
		if idx < 0 {
			out.WriteString(md[i:])
			break
		}
		idx += i

		display, rest, ok := parseSearchLink(md[idx:])
		if !ok {
			out.WriteString(md[i : idx+1])
			i = idx + 1
			continue
		}

		// 链接前紧邻的 "(" 属于包装层，替换时保留并重新闭合。
		pre := md[i:idx]
		leading := false
		if strings.HasSuffix(pre, "(") {
			leading = true
			pre = pre[:len(pre)-1]
		}
		out.WriteString(pre)

		target := display
		if m := pathLineRe.FindString(display); m != "" {
			target = m
		}
		if leading {
			out.WriteString("(")
		}
		out.WriteString("[`" + display + "`](" + target + ")")
		if leading {
			out.WriteString(")")
		}
		i = idx + rest
	}
	return out.String()
}

// parseSearchLink 尝试从 s 开头解析一个搜索链接，
// 返回显示文本和整个匹配（含末尾多余右括号）的长度。
func parseSearchLink(s string) (display string, length int, ok bool) {
	if !strings.HasPrefix(s, "[`") {
		return "", 0, false
	}
	dispEnd := strings.Index(s[2:], "`]")
	if dispEnd < 0 {
		return "", 0, false
	}
	dispEnd += 2
	display = s[2:dispEnd]
	if display == "" {
		return "", 0, false
	}

	rest := s[dispEnd+1:] // 从 "](" 开始
	if !strings.HasPrefix(rest, searchLinkPrefix) {
		return "", 0, false
	}
	j := dispEnd + 1 + len(searchLinkPrefix)

	// 扫描 query 直到未被 \ 转义的右括号
	for j < len(s) {
		switch s[j] {
		case '\\':
			j += 2
			continue
		case ')':
			// 吞掉紧随其后的多余右括号
			j++
			for j < len(s) && s[j] == ')' {
				j++
			}
			return display, j, true
		}
		j++
	}
	return "", 0, false
}
