package domain

import (
	"context"

	"github.com/allanpk716/docx_stamper/pkg/docx"
)

// EntityIndividual 实体类型为空时的默认值
const (
	EntityIndividual = "Individual"
	EntityEntity     = "Entity"
)

// Record 表格中的一行股东记录
type Record struct {
	Index   int // 从 1 开始的记录序号（不含表头与空行）
	Name    string
	Entity  string
	Email   string
	Address string
	Fields  map[string]string // 表头 -> 单元格原始值
}

// CoverPage 候选的印花纸封面 PDF
type CoverPage struct {
	Path        string
	DisplayName string
}

// MatchRule 命中的匹配规则
type MatchRule string

const (
	RuleNone        MatchRule = "none"
	RuleExact       MatchRule = "exact"
	RuleContainment MatchRule = "containment"
	RuleSimilarity  MatchRule = "similarity"
	RuleRandom      MatchRule = "random"
)

// MatchResult 封面匹配结果
type MatchResult struct {
	Cover   *CoverPage
	Score   float64
	Partial bool
	Rule    MatchRule
}

// Matched 是否选中了封面
func (r MatchResult) Matched() bool {
	return r.Cover != nil
}

// CoverSelector 封面选择策略
type CoverSelector interface {
	Select(targetName string, candidates []CoverPage) MatchResult
}

// DocumentFiller 模板填充器
type DocumentFiller interface {
	FillDocument(ctx context.Context, templatePath, outputPath string, placeholders docx.PlaceholderMap) (*docx.FillReport, error)
	ValidateDocument(templatePath string) error
}

// Converter 文档转 PDF 转换器
type Converter interface {
	Name() string
	// Convert 将 documentPath 转换为 outputDir 下的 PDF，返回 PDF 路径
	Convert(ctx context.Context, documentPath, outputDir string) (string, error)
}

// PDFMerger 封面与文档合并
type PDFMerger interface {
	// Merge 封面在前、文档在后写入 outputPath；coverPath 为空时直接复制文档
	Merge(coverPath, documentPath, outputPath string) error
}

// RecordFailure 失败记录
type RecordFailure struct {
	Index  int
	Name   string
	Stage  string
	Reason string
}

// RecordWarning 非致命警告（残留占位符、未匹配封面等）
type RecordWarning struct {
	Index   int
	Name    string
	Message string
}

// BatchSummary 批处理汇总
type BatchSummary struct {
	BatchID     string
	Processed   int
	Succeeded   int
	Failed      int
	Failures    []RecordFailure
	Warnings    []RecordWarning
	Outputs     []string
	Interrupted bool
}

// FailedNames 失败记录的名称列表
func (s *BatchSummary) FailedNames() []string {
	names := make([]string, 0, len(s.Failures))
	for _, f := range s.Failures {
		names = append(names, f.Name)
	}
	return names
}
