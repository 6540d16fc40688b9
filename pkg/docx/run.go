package docx

import "strings"

// Format 字符级格式描述，nil 表示未设置（沿用容器默认值）
type Format struct {
	Bold      *bool
	Italic    *bool
	Underline *bool
	FontName  *string
	FontSize  *float64 // 磅值，OOXML 中 w:sz 为半磅
}

// Equal 判断两个格式描述是否完全一致
func (f Format) Equal(o Format) bool {
	return eqBool(f.Bold, o.Bold) &&
		eqBool(f.Italic, o.Italic) &&
		eqBool(f.Underline, o.Underline) &&
		eqString(f.FontName, o.FontName) &&
		eqFloat(f.FontSize, o.FontSize)
}

// IsZero 所有字段均未设置
func (f Format) IsZero() bool {
	return f.Bold == nil && f.Italic == nil && f.Underline == nil && f.FontName == nil && f.FontSize == nil
}

func eqBool(a, b *bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func eqString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func eqFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Bool 返回 b 的指针，便于构造 Format
func Bool(b bool) *bool { return &b }

// String 返回 s 的指针
func String(s string) *string { return &s }

// Size 返回字号指针
func Size(pt float64) *float64 { return &pt }

// Run 共享同一格式的连续文本片段
type Run struct {
	Text   string
	Format Format
}

// Paragraph 段落类容器（正文段落、表格单元格段落、页眉、页脚）
type Paragraph struct {
	Runs []Run
}

// Text 返回所有 run 拼接后的完整文本
func (p *Paragraph) Text() string {
	var sb strings.Builder
	for _, r := range p.Runs {
		sb.WriteString(r.Text)
	}
	return sb.String()
}

// Placeholder 单个占位符及其替换值
type Placeholder struct {
	Key   string
	Value string
}

// PlaceholderMap 有序的占位符映射，按顺序依次替换
type PlaceholderMap []Placeholder

// Keys 返回所有占位符
func (m PlaceholderMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for _, p := range m {
		keys = append(keys, p.Key)
	}
	return keys
}


// ContainsAny 文本中是否出现任一占位符
func (m PlaceholderMap) ContainsAny(text string) bool {
	for _, p := range m {
		if p.Key != "" && strings.Contains(text, p.Key) {
			return true
		}
	}
	return false
}
