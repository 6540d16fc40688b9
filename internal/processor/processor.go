package processor

import (
	"context"
	"fmt"
	"strings"

	ndocx "github.com/nguyenthenguyen/docx"
	"go.uber.org/zap"

	"github.com/allanpk716/docx_stamper/internal/domain"
	"github.com/allanpk716/docx_stamper/pkg/docx"
)

// TemplateReport 模板检查结果
type TemplateReport struct {
	Path string
	// Placeholders 方括号占位符及出现次数
	Placeholders map[string]int
	// Missing 映射中有但模板文本中找不到的键
	Missing []string
	// SplitKeys 在正文 XML 中被拆分到多个 run 的键
	SplitKeys []string
}

// TemplateProcessor 模板填充与检查
type TemplateProcessor interface {
	domain.DocumentFiller
	InspectTemplate(templatePath string, placeholders docx.PlaceholderMap) (*TemplateReport, error)
}

// documentProcessor 文档处理器实现
type documentProcessor struct {
	mode     docx.Mode
	detector *splitDetector
	logger   *zap.Logger
}

// NewDocumentProcessor 创建新的文档处理器
func NewDocumentProcessor(mode docx.Mode, logger *zap.Logger) TemplateProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &documentProcessor{
		mode:     mode,
		detector: newSplitDetector(),
		logger:   logger,
	}
}

// FillDocument 填充模板占位符并写入 outputPath
func (dp *documentProcessor) FillDocument(ctx context.Context, templatePath, outputPath string, placeholders docx.PlaceholderMap) (*docx.FillReport, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if err := dp.ValidateDocument(templatePath); err != nil {
		return nil, fmt.Errorf("文档验证失败: %w", err)
	}

	if outputPath == "" {
		return nil, fmt.Errorf("输出路径不能为空")
	}

	if len(placeholders) == 0 {
		return nil, fmt.Errorf("占位符映射不能为空")
	}

	report, err := docx.NewXMLProcessor(templatePath, dp.mode).FillPlaceholders(placeholders, outputPath)
	if err != nil {
		return nil, fmt.Errorf("处理文档失败: %w", err)
	}

	dp.logger.Debug("文档填充完成",
		zap.String("template", templatePath),
		zap.String("output", outputPath),
		zap.Int("paragraphs", report.Paragraphs),
		zap.Int("replacements", report.Replacements))
	return report, nil
}

// ValidateDocument 验证文档是否能作为 .docx 打开
func (dp *documentProcessor) ValidateDocument(inputPath string) error {
	if inputPath == "" {
		return fmt.Errorf("输入路径不能为空")
	}

	r, err := ndocx.ReadDocxFile(inputPath)
	if err != nil {
		return fmt.Errorf("无法打开文档: %w", err)
	}
	defer r.Close()

	if strings.TrimSpace(r.Editable().GetContent()) == "" {
		return fmt.Errorf("文档正文为空: %s", inputPath)
	}
	return nil
}

// InspectTemplate 统计模板中的占位符，并找出缺失与被拆分的键
func (dp *documentProcessor) InspectTemplate(templatePath string, placeholders docx.PlaceholderMap) (*TemplateReport, error) {
	if err := dp.ValidateDocument(templatePath); err != nil {
		return nil, err
	}

	xp := docx.NewXMLProcessor(templatePath, dp.mode)
	found, err := xp.FindPlaceholders()
	if err != nil {
		return nil, err
	}
	text, err := xp.ExtractTextContent()
	if err != nil {
		return nil, err
	}

	r, err := ndocx.ReadDocxFile(templatePath)
	if err != nil {
		return nil, fmt.Errorf("无法打开文档: %w", err)
	}
	defer r.Close()

	keys := placeholders.Keys()
	report := &TemplateReport{
		Path:         templatePath,
		Placeholders: found,
		SplitKeys:    dp.detector.SplitKeys(r.Editable().GetContent(), keys),
	}
	for _, key := range keys {
		if !strings.Contains(text, key) {
			report.Missing = append(report.Missing, key)
		}
	}
	return report, nil
}
