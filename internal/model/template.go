package model

import (
	"bytes"
	"encoding/json"
	"regexp"
	"sort"
	"strings"
	"time"
)

// 语言标签
const (
	LangZh = "zh"
	LangEn = "en"
)

// Status 模板状态
type Status string

const (
	StatusActive   Status = "active"
	StatusDraft    Status = "draft"
	StatusInactive Status = "inactive"
)

// Valid 判断状态是否为已知枚举值
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusDraft, StatusInactive:
		return true
	}
	return false
}

// LocalizedText 多语言文本,键为语言标签
type LocalizedText map[string]string

// Get 获取指定语言的文本,缺失或为空时回退到 zh
func (t LocalizedText) Get(lang string) string {
	if v, ok := t[lang]; ok && v != "" {
		return v
	}
	return t[LangZh]
}

// Clone 复制文本
func (t LocalizedText) Clone() LocalizedText {
	if t == nil {
		return nil
	}
	out := make(LocalizedText, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// UnmarshalJSON 兼容旧数据: 空数组 [] 视为空对象, 纯字符串视为 zh 文本
func (t *LocalizedText) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case bytes.Equal(trimmed, []byte("null")):
		*t = nil
		return nil
	case len(trimmed) > 0 && trimmed[0] == '[':
		var arr []json.RawMessage
		if err := json.Unmarshal(trimmed, &arr); err != nil {
			return err
		}
		*t = LocalizedText{}
		return nil
	case len(trimmed) > 0 && trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*t = LocalizedText{LangZh: s}
		return nil
	}
	m := map[string]string{}
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return err
	}
	*t = m
	return nil
}

// Image 模板附带的图片
type Image struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url"`
	AddedAt     string `json:"addedAt,omitempty"`
	UpdatedAt   string `json:"updatedAt,omitempty"`
}

// Variable 内容中的占位变量说明
type Variable struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Template 消息模板
type Template struct {
	ID          string        `json:"id"`
	Code        string        `json:"code"`
	Category    string        `json:"category"`
	Title       LocalizedText `json:"title"`
	Description LocalizedText `json:"description,omitempty"`
	Content     LocalizedText `json:"content"`
	Status      Status        `json:"status,omitempty"`
	UsageCount  int           `json:"usageCount"`
	LastUsed    string        `json:"lastUsed,omitempty"`
	CreatedAt   string        `json:"createdAt,omitempty"`
	UpdatedAt   string        `json:"updatedAt,omitempty"`
	Images      []Image       `json:"images,omitempty"`
	Variables   []Variable    `json:"variables,omitempty"`

	// Extra 未识别的字段,原样保留
	Extra map[string]json.RawMessage `json:"-"`
}

var knownTemplateKeys = map[string]struct{}{
	"id": {}, "code": {}, "category": {}, "title": {}, "description": {}, "content": {},
	"status": {}, "usageCount": {}, "lastUsed": {}, "createdAt": {}, "updatedAt": {},
	"images": {}, "variables": {},
}

type templateAlias Template

// MarshalJSON 输出已知字段后追加 Extra 中的字段(按键排序)
func (t Template) MarshalJSON() ([]byte, error) {
	base, err := MarshalNoEscape(templateAlias(t))
	if err != nil {
		return nil, err
	}
	if len(t.Extra) == 0 {
		return base, nil
	}

	keys := make([]string, 0, len(t.Extra))
	for k := range t.Extra {
		if _, known := knownTemplateKeys[k]; known {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return base, nil
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.Write(base[:len(base)-1])
	for _, k := range keys {
		name, err := MarshalNoEscape(k)
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(t.Extra[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON 解析已知字段并收集其余字段到 Extra
func (t *Template) UnmarshalJSON(data []byte) error {
	var alias templateAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for k := range knownTemplateKeys {
		delete(raw, k)
	}
	*t = Template(alias)
	if len(raw) > 0 {
		t.Extra = raw
	}
	return nil
}

// Clone 深拷贝模板
func (t Template) Clone() Template {
	out := t
	out.Title = t.Title.Clone()
	out.Description = t.Description.Clone()
	out.Content = t.Content.Clone()
	if t.Images != nil {
		out.Images = append([]Image(nil), t.Images...)
	}
	if t.Variables != nil {
		out.Variables = append([]Variable(nil), t.Variables...)
	}
	if t.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(t.Extra))
		for k, v := range t.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// SearchText 返回用于全文搜索的小写文本
func (t *Template) SearchText() string {
	parts := []string{
		t.Title[LangZh], t.Title[LangEn],
		t.Description[LangZh], t.Description[LangEn],
		t.Content[LangZh], t.Content[LangEn],
		t.Code,
	}
	return strings.ToLower(strings.Join(parts, " "))
}

var variablePattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// ExtractVariables 从内容中提取 {{name}} 占位变量,按出现顺序去重
func ExtractVariables(content string) []Variable {
	matches := variablePattern.FindAllStringSubmatch(content, -1)
	seen := make(map[string]struct{}, len(matches))
	vars := make([]Variable, 0, len(matches))
	for _, m := range matches {
		name := strings.TrimSpace(m[1])
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		vars = append(vars, Variable{Name: name})
	}
	return vars
}

// Timestamp 格式化为 ISO-8601 时间戳
func Timestamp(t time.Time) string {
	return t.Format(time.RFC3339)
}

// MarshalNoEscape 序列化 JSON,不转义 HTML 字符
func MarshalNoEscape(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// MarshalPretty 缩进 4 空格、不转义 HTML 字符
func MarshalPretty(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
