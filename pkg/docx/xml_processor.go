package docx

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
)

var (
	textPartPattern    = regexp.MustCompile(`^word/(document|header\d*|footer\d*)\.xml$`)
	placeholderPattern = regexp.MustCompile(`\[[^\[\]\r\n]+\]`)
)

// XMLProcessor 基于ZIP文件结构的DOCX处理器
type XMLProcessor struct {
	filePath string
	mode     Mode
}

// NewXMLProcessor 创建新的XML处理器
func NewXMLProcessor(filePath string, mode Mode) *XMLProcessor {
	return &XMLProcessor{
		filePath: filePath,
		mode:     mode,
	}
}

// FillReport 一次模板填充的统计
type FillReport struct {
	Parts        int
	Paragraphs   int
	Replacements int
	// Residual 占位符 -> 仍残留该占位符的部件
	Residual map[string][]string
}

// ResidualKeys 返回排序后的残留占位符
func (r *FillReport) ResidualKeys() []string {
	keys := make([]string, 0, len(r.Residual))
	for k := range r.Residual {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsTextPart 正文、页眉、页脚部件
func IsTextPart(name string) bool {
	return textPartPattern.MatchString(name)
}

// FillPlaceholders 替换文档正文、表格、页眉、页脚中的占位符并写入 outputPath
func (xp *XMLProcessor) FillPlaceholders(m PlaceholderMap, outputPath string) (*FillReport, error) {
	reader, err := zip.OpenReader(xp.filePath)
	if err != nil {
		return nil, fmt.Errorf("打开DOCX文件失败: %w", err)
	}
	defer reader.Close()

	outputFile, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("创建输出文件失败: %w", err)
	}

	report, err := xp.fill(reader, m, outputFile)
	if cerr := outputFile.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("关闭输出文件失败: %w", cerr)
	}
	if err != nil {
		os.Remove(outputPath)
		return nil, err
	}
	return report, nil
}

func (xp *XMLProcessor) fill(reader *zip.ReadCloser, m PlaceholderMap, w io.Writer) (*FillReport, error) {
	zipWriter := zip.NewWriter(w)
	report := &FillReport{Residual: make(map[string][]string)}
	foundDocument := false

	for _, file := range reader.File {
		content, err := readZipFile(file)
		if err != nil {
			return nil, err
		}

		if IsTextPart(file.Name) {
			if file.Name == "word/document.xml" {
				foundDocument = true
			}
			updated, stats := FillPart(string(content), m, xp.mode)
			content = []byte(updated)
			report.Parts++
			report.Paragraphs += stats.Paragraphs
			report.Replacements += stats.Replacements
			for _, key := range stats.Residual {
				report.Residual[key] = append(report.Residual[key], file.Name)
			}
		}

		header := file.FileHeader
		writer, err := zipWriter.CreateHeader(&header)
		if err != nil {
			return nil, fmt.Errorf("创建ZIP文件头失败: %w", err)
		}
		if _, err := writer.Write(content); err != nil {
			return nil, fmt.Errorf("写入文件内容失败: %w", err)
		}
	}

	if !foundDocument {
		return nil, fmt.Errorf("未找到document.xml文件")
	}
	if err := zipWriter.Close(); err != nil {
		return nil, fmt.Errorf("写入ZIP失败: %w", err)
	}
	return report, nil
}

func readZipFile(file *zip.File) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("打开文件 %s 失败: %w", file.Name, err)
	}
	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("读取文件 %s 失败: %w", file.Name, err)
	}
	return content, nil
}

// PartStats 单个 XML 部件的替换统计
type PartStats struct {
	Paragraphs   int
	Replacements int
	Residual     []string
}

// FillPart 替换一个 XML 部件中所有叶子段落的占位符。
// 未包含占位符的段落按原字节保留；含文本框等子段落的段落不改写，
// 其自身 run 中的占位符计入残留。
func FillPart(content string, m PlaceholderMap, mode Mode) (string, PartStats) {
	var stats PartStats
	var sb strings.Builder
	residual := make(map[string]bool)
	last := 0

	for _, span := range findParagraphs(content) {
		if !span.leaf() {
			for _, key := range FindResidual(span.ownText(content), m) {
				residual[key] = true
			}
			continue
		}

		raw := content[span.start:span.end]
		px := parseParagraphXML(raw)
		if !m.ContainsAny(px.para.Text()) {
			continue
		}

		result := Substitute(&px.para, m, mode)
		if !result.Changed {
			continue
		}
		stats.Paragraphs++
		stats.Replacements += result.Replacements
		for _, key := range result.Residual {
			residual[key] = true
		}

		sb.WriteString(content[last:span.start])
		sb.WriteString(px.render())
		last = span.end
	}

	for _, key := range m.Keys() {
		if residual[key] {
			stats.Residual = append(stats.Residual, key)
		}
	}

	if last == 0 {
		return content, stats
	}
	sb.WriteString(content[last:])
	return sb.String(), stats
}

// ExtractTextContent 提取正文、页眉、页脚的纯文本，每个段落一行。
// 含子段落的外层段落排在其子段落之后，只输出自身文本。
func (xp *XMLProcessor) ExtractTextContent() (string, error) {
	reader, err := zip.OpenReader(xp.filePath)
	if err != nil {
		return "", fmt.Errorf("打开DOCX文件失败: %w", err)
	}
	defer reader.Close()

	var lines []string
	found := false
	for _, file := range reader.File {
		if !IsTextPart(file.Name) {
			continue
		}
		if file.Name == "word/document.xml" {
			found = true
		}
		content, err := readZipFile(file)
		if err != nil {
			return "", err
		}
		part := string(content)
		for _, span := range findParagraphs(part) {
			if !span.leaf() {
				if text := span.ownText(part); text != "" {
					lines = append(lines, text)
				}
				continue
			}
			px := parseParagraphXML(part[span.start:span.end])
			lines = append(lines, px.para.Text())
		}
	}
	if !found {
		return "", fmt.Errorf("未找到document.xml文件")
	}
	return strings.Join(lines, "\n"), nil
}

// FindPlaceholders 列出文档中出现的方括号占位符及次数
func (xp *XMLProcessor) FindPlaceholders() (map[string]int, error) {
	text, err := xp.ExtractTextContent()
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, token := range placeholderPattern.FindAllString(text, -1) {
		counts[token]++
	}
	return counts, nil
}
