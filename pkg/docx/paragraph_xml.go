package docx

import (
	"encoding/xml"
	"html"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	paragraphTagPattern = regexp.MustCompile(`<w:p(?:\s[^>]*)?/?>|</w:p>`)
	pPrTagPattern       = regexp.MustCompile(`<w:pPr(?:\s[^>]*)?/?>|</w:pPr>`)
	runPattern          = regexp.MustCompile(`(?s)<w:r(?:\s[^>]*)?>.*?</w:r>`)
	rPrTagPattern       = regexp.MustCompile(`<w:rPr(?:\s[^>]*)?/?>|</w:rPr>`)
	rPrChangePattern    = regexp.MustCompile(`(?s)<w:rPrChange(?:\s[^>]*)?(?:/>|>.*?</w:rPrChange>)`)
	runContentPattern   = regexp.MustCompile(`<w:t(?:\s[^>]*)?>([^<]*)</w:t>|<w:t(?:\s[^>]*)?/>|<w:tab(?:\s[^>]*)?/>|<w:(?:br|cr)(?:\s[^>]*)?/>`)

	boldPattern      = regexp.MustCompile(`<w:b(\s[^>]*)?/?>`)
	italicPattern    = regexp.MustCompile(`<w:i(\s[^>]*)?/?>`)
	underlinePattern = regexp.MustCompile(`<w:u(\s[^>]*)?/?>`)
	fontsPattern     = regexp.MustCompile(`<w:rFonts(\s[^>]*)?/?>`)
	sizePattern      = regexp.MustCompile(`<w:sz(\s[^>]*)?/?>`)
)

// paragraphSpan 部件中一个 <w:p> 元素的位置
type paragraphSpan struct {
	start, end int
	// children 直接嵌套的子段落（文本框、形状中的文字）
	children []paragraphSpan
}

func (s paragraphSpan) leaf() bool {
	return len(s.children) == 0
}

// ownText 段落自身 run 的文本，不含子段落
func (s paragraphSpan) ownText(content string) string {
	var sb strings.Builder
	last := s.start
	// 段落属性中的 w:tab 是制表位，不是文本
	if len(s.children) > 0 {
		if _, end, ok := balancedElement(content[s.start:s.children[0].start], pPrTagPattern); ok {
			last = s.start + end
		}
	}
	for _, c := range s.children {
		sb.WriteString(runText(content[last:c.start]))
		last = c.end
	}
	sb.WriteString(runText(content[last:s.end]))
	return sb.String()
}

// findParagraphs 找出部件中的所有 <w:p> 元素，按结束位置排列。
// 叶子段落之间互不重叠，且按文档顺序出现。
func findParagraphs(content string) []paragraphSpan {
	var stack []paragraphSpan
	var spans []paragraphSpan

	for _, loc := range paragraphTagPattern.FindAllStringIndex(content, -1) {
		tok := content[loc[0]:loc[1]]
		switch {
		case strings.HasPrefix(tok, "</"):
			if len(stack) == 0 {
				continue
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			top.end = loc[1]
			spans = append(spans, top)
			if len(stack) > 0 {
				parent := &stack[len(stack)-1]
				parent.children = append(parent.children, top)
			}
		case strings.HasSuffix(tok, "/>"):
			if len(stack) > 0 {
				parent := &stack[len(stack)-1]
				parent.children = append(parent.children, paragraphSpan{start: loc[0], end: loc[1]})
			}
		default:
			stack = append(stack, paragraphSpan{start: loc[0]})
		}
	}
	return spans
}

// balancedElement 返回 s 中第一个由 tags 描述的元素的范围，按嵌套层级配对结束标签
func balancedElement(s string, tags *regexp.Regexp) (start, end int, ok bool) {
	depth := 0
	for _, loc := range tags.FindAllStringIndex(s, -1) {
		tok := s[loc[0]:loc[1]]
		switch {
		case strings.HasPrefix(tok, "</"):
			if depth == 0 {
				return 0, 0, false
			}
			depth--
			if depth == 0 {
				return start, loc[1], true
			}
		case strings.HasSuffix(tok, "/>"):
			if depth == 0 {
				return loc[0], loc[1], true
			}
		default:
			if depth == 0 {
				start = loc[0]
			}
			depth++
		}
	}
	return 0, 0, false
}

// paragraphXML 叶子段落的原始 XML 与解析出的 run
type paragraphXML struct {
	open  string // <w:p ...>
	props string // <w:pPr>...</w:pPr>
	para  Paragraph
}

func parseParagraphXML(raw string) *paragraphXML {
	openEnd := strings.Index(raw, ">") + 1
	inner := strings.TrimSuffix(raw[openEnd:], "</w:p>")

	px := &paragraphXML{open: raw[:openEnd]}
	if start, end, ok := balancedElement(inner, pPrTagPattern); ok && strings.TrimSpace(inner[:start]) == "" {
		px.props = inner[start:end]
		inner = inner[end:]
	}

	for _, runXML := range runPattern.FindAllString(inner, -1) {
		px.para.Runs = append(px.para.Runs, parseRunXML(runXML))
	}
	return px
}

func parseRunXML(raw string) Run {
	var run Run
	if start, end, ok := balancedElement(raw, rPrTagPattern); ok {
		run.Format = parseRunProperties(raw[start:end])
	}
	run.Text = runText(raw)
	return run
}

// runText 提取片段中 w:t、w:tab、w:br 表示的文本
func runText(raw string) string {
	var sb strings.Builder
	for _, m := range runContentPattern.FindAllStringSubmatch(raw, -1) {
		tok := m[0]
		switch {
		case strings.HasPrefix(tok, "<w:tab"):
			sb.WriteByte('\t')
		case strings.HasPrefix(tok, "<w:br"), strings.HasPrefix(tok, "<w:cr"):
			sb.WriteByte('\n')
		default:
			sb.WriteString(html.UnescapeString(m[1]))
		}
	}
	return sb.String()
}

// parseRunProperties 从 <w:rPr> 中提取支持的格式字段。
// 修订记录 w:rPrChange 中的是旧格式，不参与解析。
func parseRunProperties(rPr string) Format {
	rPr = rPrChangePattern.ReplaceAllString(rPr, "")
	var f Format
	if m := boldPattern.FindStringSubmatch(rPr); m != nil {
		f.Bold = Bool(toggleValue(m[1]))
	}
	if m := italicPattern.FindStringSubmatch(rPr); m != nil {
		f.Italic = Bool(toggleValue(m[1]))
	}
	if m := underlinePattern.FindStringSubmatch(rPr); m != nil {
		val, ok := attrValue(m[1], "w:val")
		f.Underline = Bool(!ok || (val != "none" && val != "0" && val != "false"))
	}
	if m := fontsPattern.FindStringSubmatch(rPr); m != nil {
		for _, name := range []string{"w:ascii", "w:hAnsi", "w:eastAsia", "w:cs"} {
			if val, ok := attrValue(m[1], name); ok && val != "" {
				f.FontName = String(val)
				break
			}
		}
	}
	if m := sizePattern.FindStringSubmatch(rPr); m != nil {
		if val, ok := attrValue(m[1], "w:val"); ok {
			if half, err := strconv.ParseFloat(val, 64); err == nil {
				f.FontSize = Size(half / 2)
			}
		}
	}
	return f
}

// toggleValue 解析 ST_OnOff，缺省 w:val 表示开启
func toggleValue(attrs string) bool {
	val, ok := attrValue(attrs, "w:val")
	if !ok {
		return true
	}
	switch val {
	case "0", "false", "off":
		return false
	}
	return true
}

func attrValue(attrs, name string) (string, bool) {
	idx := strings.Index(attrs, name+`="`)
	if idx < 0 {
		return "", false
	}
	rest := attrs[idx+len(name)+2:]
	end := strings.IndexByte(rest, '"')
	if end < 0 {
		return "", false
	}
	return html.UnescapeString(rest[:end]), true
}

// render 用新的 run 序列重新生成段落 XML
func (px *paragraphXML) render() string {
	var sb strings.Builder
	sb.WriteString(px.open)
	sb.WriteString(px.props)
	for _, r := range px.para.Runs {
		writeRun(&sb, r)
	}
	sb.WriteString("</w:p>")
	return sb.String()
}

func writeRun(sb *strings.Builder, r Run) {
	sb.WriteString("<w:r>")
	writeRunProperties(sb, r.Format)

	var chunk strings.Builder
	flush := func() {
		if chunk.Len() == 0 {
			return
		}
		sb.WriteString(`<w:t xml:space="preserve">`)
		_ = xml.EscapeText(sb, []byte(chunk.String()))
		sb.WriteString("</w:t>")
		chunk.Reset()
	}
	for _, c := range r.Text {
		switch c {
		case '\t':
			flush()
			sb.WriteString("<w:tab/>")
		case '\n':
			flush()
			sb.WriteString("<w:br/>")
		default:
			chunk.WriteRune(c)
		}
	}
	flush()
	sb.WriteString("</w:r>")
}

// writeRunProperties 按 CT_RPr 的元素顺序输出 rFonts, b, i, sz, u
func writeRunProperties(sb *strings.Builder, f Format) {
	if f.IsZero() {
		return
	}
	sb.WriteString("<w:rPr>")
	if f.FontName != nil {
		var name strings.Builder
		_ = xml.EscapeText(&name, []byte(*f.FontName))
		n := name.String()
		sb.WriteString(`<w:rFonts w:ascii="` + n + `" w:hAnsi="` + n + `" w:cs="` + n + `"/>`)
	}
	writeToggle(sb, "w:b", f.Bold)
	writeToggle(sb, "w:i", f.Italic)
	if f.FontSize != nil {
		half := strconv.Itoa(int(math.Round(*f.FontSize * 2)))
		sb.WriteString(`<w:sz w:val="` + half + `"/><w:szCs w:val="` + half + `"/>`)
	}
	if f.Underline != nil {
		if *f.Underline {
			sb.WriteString(`<w:u w:val="single"/>`)
		} else {
			sb.WriteString(`<w:u w:val="none"/>`)
		}
	}
	sb.WriteString("</w:rPr>")
}

func writeToggle(sb *strings.Builder, tag string, v *bool) {
	if v == nil {
		return
	}
	if *v {
		sb.WriteString("<" + tag + "/>")
	} else {
		sb.WriteString("<" + tag + ` w:val="0"/>`)
	}
}
