package gemini2o

import "strings"

// Model 是网页版后端可选模型的一项。
// Header 是请求头 x-goog-ext-525001261-jspb 的取值，用于网页版切换模型。
type Model struct {
	Name   string
	Header string
}

// models 为固定枚举，顺序即匹配优先级，不允许用户扩展。
var models = []Model{
	{Name: "gemini-2.5-flash", Header: `[null,null,null,null,"71c2d248d3b102ff"]`},
	{Name: "gemini-2.5-pro", Header: `[null,null,null,null,"2525e3954d185b3c"]`},
	{Name: "gemini-2.0-flash", Header: `[null,null,null,null,"f299729663a2343f"]`},
	{Name: "gemini-2.0-flash-thinking", Header: `[null,null,null,null,"7ca48d02d802f20a"]`},
}

// modelKeywords 是 OpenAI 风格模型名到关键词的映射，
// 找不到精确条目时默认按 "pro" 匹配。
var modelKeywords = map[string][]string{
	"gemini-pro":        {"pro", "2.0"},
	"gemini-pro-vision": {"vision", "pro"},
	"gemini-flash":      {"flash", "2.0"},
	"gemini-1.5-pro":    {"1.5", "pro"},
	"gemini-1.5-flash":  {"1.5", "flash"},
}

// DefaultModelName 是 upload 接口未指定模型时的默认值。
const DefaultModelName = "gemini-2.5-flash"

// Models 返回内置的模型列表（用于 /v1/models 输出），调用方不得修改。
func Models() []Model {
	out := make([]Model, len(models))
	copy(out, models)
	return out
}

// MapModelName 将任意 OpenAI 风格模型名解析为一个枚举内的 Model。
// 匹配顺序：
//  1. 请求名是某个枚举名的子串（不区分大小写），取枚举序第一个；
//  2. 按 modelKeywords 查关键词（未知名称默认 ["pro"]），
//     取第一个包含全部关键词的枚举项；
//  3. 兜底返回枚举第一项。
//
// 任何输入都能解析成功，不会报错。
func MapModelName(name string) Model {
	lower := strings.ToLower(strings.TrimSpace(name))

	for _, m := range models {
		if strings.Contains(strings.ToLower(m.Name), lower) {
			return m
		}
	}

	keywords, ok := modelKeywords[lower]
	if !ok {
		keywords = []string{"pro"}
	}
	for _, m := range models {
		canonical := strings.ToLower(m.Name)
		matched := true
		for _, kw := range keywords {
			if !strings.Contains(canonical, strings.ToLower(kw)) {
				matched = false
				break
			}
		}
		if matched {
			return m
		}
	}

	return models[0]
}

// ModelByName 返回枚举中名称精确相等的模型。
func ModelByName(name string) (Model, bool) {
	for _, m := range models {
		if m.Name == name {
			return m, true
		}
	}
	return Model{}, false
}
