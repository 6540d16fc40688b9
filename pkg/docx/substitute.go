package docx

import (
	"fmt"
	"strings"
)

// Mode 格式保留模式
type Mode int

const (
	// ModeAuto 格式统一的段落走简单模式，否则走字符级模式
	ModeAuto Mode = iota
	// ModeCharacter 逐字符追踪格式，替换后重新合成最少的 run
	ModeCharacter
	// ModeSimple 直接替换文本，合并为一个沿用首个 run 格式的 run
	ModeSimple
)

func (m Mode) String() string {
	switch m {
	case ModeCharacter:
		return "character"
	case ModeSimple:
		return "simple"
	default:
		return "auto"
	}
}

// ParseMode 解析配置中的格式保留模式
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ModeAuto, nil
	case "character", "char":
		return ModeCharacter, nil
	case "simple":
		return ModeSimple, nil
	}
	return ModeAuto, fmt.Errorf("未知的格式保留模式: %s", s)
}

// Result 单个段落的替换结果
type Result struct {
	Changed      bool
	Replacements int
	Mode         Mode
	// Residual 替换后仍残留的占位符
	Residual []string
}

// Substitute 替换段落中所有占位符，并按 mode 保留字符格式。
// 不包含任何占位符的段落保持原样，run 结构不会被改动。
func Substitute(p *Paragraph, m PlaceholderMap, mode Mode) Result {
	text := p.Text()
	if !m.ContainsAny(text) {
		return Result{Mode: mode}
	}

	if mode == ModeAuto {
		if isUniform(p.Runs) {
			mode = ModeSimple
		} else {
			mode = ModeCharacter
		}
	}

	var formats []Format
	if mode == ModeCharacter {
		formats = expandFormats(p.Runs)
	}

	sp := newSplicer([]rune(text), formats)
	count := sp.replaceAll(m)

	switch mode {
	case ModeSimple:
		p.Runs = simpleRuns(p.Runs, string(sp.text))
	default:
		p.Runs = synthesizeRuns(sp.text, sp.formats)
	}

	return Result{
		Changed:      true,
		Replacements: count,
		Mode:         mode,
		Residual:     sp.residual(m),
	}
}

// isUniform 所有非空 run 的格式完全一致
func isUniform(runs []Run) bool {
	var first *Format
	for i := range runs {
		if runs[i].Text == "" {
			continue
		}
		if first == nil {
			first = &runs[i].Format
			continue
		}
		if !first.Equal(runs[i].Format) {
			return false
		}
	}
	return true
}

// expandFormats 将每个 run 的格式展开到它覆盖的每个字符
func expandFormats(runs []Run) []Format {
	var formats []Format
	for _, r := range runs {
		for range []rune(r.Text) {
			formats = append(formats, r.Format)
		}
	}
	return formats
}

// synthesizeRuns 从左向右扫描，格式变化时开启新的 run
func synthesizeRuns(text []rune, formats []Format) []Run {
	var runs []Run
	start := 0
	for i := 1; i <= len(text); i++ {
		if i < len(text) && formats[i].Equal(formats[start]) {
			continue
		}
		runs = append(runs, Run{Text: string(text[start:i]), Format: formats[start]})
		start = i
	}
	return runs
}

// simpleRuns 合并为单个 run，格式取第一个非空 run（全部为空时取最后一个）。
// 空 run 不显示文字，其格式不参与 isUniform 判断，也不沿用。
func simpleRuns(original []Run, text string) []Run {
	if text == "" {
		return nil
	}
	var format Format
	for i, r := range original {
		if r.Text != "" || i == len(original)-1 {
			format = r.Format
			break
		}
	}
	return []Run{{Text: text, Format: format}}
}

// splicer 在文本上执行替换，同时维护格式数组与已插入区域
type splicer struct {
	text      []rune
	protected []bool
	formats   []Format // 简单模式下为 nil
}

func newSplicer(text []rune, formats []Format) *splicer {
	return &splicer{
		text:      text,
		protected: make([]bool, len(text)),
		formats:   formats,
	}
}

// replaceAll 按映射顺序处理每个占位符，返回替换次数
func (s *splicer) replaceAll(m PlaceholderMap) int {
	count := 0
	for _, ph := range m {
		if ph.Key == "" {
			continue
		}
		key := []rune(ph.Key)
		value := []rune(ph.Value)
		start := 0
		for {
			pos := s.find(key, start)
			if pos < 0 {
				break
			}
			s.splice(pos, len(key), value)
			count++
			// 从插入文本之后继续，替换值本身不再参与扫描
			start = pos + len(value)
		}
	}
	return count
}

// find 查找 start 之后第一个不与已插入文本重叠的匹配位置
func (s *splicer) find(key []rune, start int) int {
	for i := start; i+len(key) <= len(s.text); i++ {
		if s.matchAt(i, key) && !s.touchesProtected(i, len(key)) {
			return i
		}
	}
	return -1
}

func (s *splicer) matchAt(pos int, key []rune) bool {
	for j, r := range key {
		if s.text[pos+j] != r {
			return false
		}
	}
	return true
}

func (s *splicer) touchesProtected(pos, n int) bool {
	for j := pos; j < pos+n; j++ {
		if s.protected[j] {
			return true
		}
	}
	return false
}

func (s *splicer) allProtected(pos, n int) bool {
	for j := pos; j < pos+n; j++ {
		if !s.protected[j] {
			return false
		}
	}
	return true
}

func (s *splicer) splice(pos, removed int, value []rune) {
	var inherit Format
	if s.formats != nil {
		switch {
		case pos > 0:
			inherit = s.formats[pos-1]
		case len(s.formats) > 0:
			inherit = s.formats[0]
		}
	}

	n := len(s.text) - removed + len(value)
	text := make([]rune, 0, n)
	text = append(text, s.text[:pos]...)
	text = append(text, value...)
	text = append(text, s.text[pos+removed:]...)

	protected := make([]bool, 0, n)
	protected = append(protected, s.protected[:pos]...)
	for range value {
		protected = append(protected, true)
	}
	protected = append(protected, s.protected[pos+removed:]...)

	if s.formats != nil {
		formats := make([]Format, 0, n)
		formats = append(formats, s.formats[:pos]...)
		for range value {
			formats = append(formats, inherit)
		}
		formats = append(formats, s.formats[pos+removed:]...)
		s.formats = formats
	}

	s.text = text
	s.protected = protected
}

// residual 返回仍出现在原始文本区域中的占位符
func (s *splicer) residual(m PlaceholderMap) []string {
	var keys []string
	for _, ph := range m {
		if ph.Key == "" {
			continue
		}
		key := []rune(ph.Key)
		for i := 0; i+len(key) <= len(s.text); i++ {
			if s.matchAt(i, key) && !s.allProtected(i, len(key)) {
				keys = append(keys, ph.Key)
				break
			}
		}
	}
	return keys
}

// FindResidual 检查文本中残留的占位符
func FindResidual(text string, m PlaceholderMap) []string {
	var keys []string
	for _, ph := range m {
		if ph.Key != "" && strings.Contains(text, ph.Key) {
			keys = append(keys, ph.Key)
		}
	}
	return keys
}
