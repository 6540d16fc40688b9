package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/allanpk716/docx_stamper/internal/domain"
	"github.com/allanpk716/docx_stamper/pkg/docx"
)

// PlaceholderBuilder 为单条记录构造占位符映射
type PlaceholderBuilder func(rec domain.Record, now time.Time) docx.PlaceholderMap

// Templates 两类实体对应的模板路径
type Templates struct {
	Entity     string
	Individual string
}

// For 实体类型为 Entity（不区分大小写）时使用实体模板，其余一律使用个人模板
func (t Templates) For(entity string) string {
	if strings.EqualFold(strings.TrimSpace(entity), domain.EntityEntity) {
		return t.Entity
	}
	return t.Individual
}

// Pipeline 逐条处理记录：填充、转换、选封面、合并
type Pipeline struct {
	Filler       domain.DocumentFiller
	Converter    domain.Converter
	Selector     domain.CoverSelector
	Merger       domain.PDFMerger
	Placeholders PlaceholderBuilder

	Templates Templates
	Covers    []domain.CoverPage
	OutputDir string
	// TempRoot 临时目录的父目录，为空时使用系统默认
	TempRoot string

	Logger *zap.Logger
	Now    func() time.Time
}

// RecordOutcome 单条记录的处理结果
type RecordOutcome struct {
	Output   string
	Report   *docx.FillReport
	Match    domain.MatchResult
	Warnings []string
}

func (p *Pipeline) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

func (p *Pipeline) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

// RunBatch 顺序处理所有记录。单条失败不影响其余记录；
// ctx 取消只在记录之间生效，返回已处理部分的汇总与 ctx 错误
func (p *Pipeline) RunBatch(ctx context.Context, records []domain.Record) (*domain.BatchSummary, error) {
	log := p.logger()
	summary := &domain.BatchSummary{BatchID: uuid.NewString()}

	if err := os.MkdirAll(p.OutputDir, 0755); err != nil {
		return summary, fmt.Errorf("创建输出目录失败: %w", err)
	}

	tempDir, err := os.MkdirTemp(p.TempRoot, "docx-stamper-")
	if err != nil {
		return summary, fmt.Errorf("创建临时目录失败: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tempDir); err != nil {
			log.Warn("清理临时目录失败", zap.String("dir", tempDir), zap.Error(err))
		}
	}()

	log.Info("开始批处理",
		zap.String("batch", summary.BatchID),
		zap.Int("records", len(records)),
		zap.Int("covers", len(p.Covers)))

	for i, rec := range records {
		select {
		case <-ctx.Done():
			summary.Interrupted = true
			log.Warn("批处理被中断",
				zap.Int("processed", summary.Processed),
				zap.Int("remaining", len(records)-i))
			return summary, ctx.Err()
		default:
		}

		log.Info("处理记录",
			zap.Int("index", rec.Index),
			zap.String("name", rec.Name),
			zap.String("entity", rec.Entity),
			zap.String("progress", fmt.Sprintf("%d/%d", i+1, len(records))))

		workDir := filepath.Join(tempDir, fmt.Sprintf("%05d", rec.Index))
		outcome, err := p.processInDir(context.WithoutCancel(ctx), rec, workDir)
		summary.Processed++

		for _, w := range outcome.Warnings {
			summary.Warnings = append(summary.Warnings, domain.RecordWarning{Index: rec.Index, Name: rec.Name, Message: w})
			log.Warn(w, zap.Int("index", rec.Index), zap.String("name", rec.Name))
		}

		if err != nil {
			summary.Failed++
			stage := ""
			var recErr *domain.RecordError
			if errors.As(err, &recErr) {
				stage = recErr.Stage
			}
			summary.Failures = append(summary.Failures, domain.RecordFailure{
				Index:  rec.Index,
				Name:   rec.Name,
				Stage:  stage,
				Reason: err.Error(),
			})
			log.Error("记录处理失败",
				zap.Int("index", rec.Index),
				zap.String("name", rec.Name),
				zap.String("stage", stage),
				zap.Error(err))
			continue
		}

		summary.Succeeded++
		summary.Outputs = append(summary.Outputs, outcome.Output)
		log.Info("记录处理完成", zap.String("output", outcome.Output))
	}

	log.Info("批处理完成",
		zap.String("batch", summary.BatchID),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed))
	return summary, nil
}

func (p *Pipeline) processInDir(ctx context.Context, rec domain.Record, workDir string) (RecordOutcome, error) {
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return RecordOutcome{}, &domain.RecordError{Index: rec.Index, Name: rec.Name, Stage: domain.StageTemplate, Err: err}
	}
	defer os.RemoveAll(workDir)
	return p.ProcessRecord(ctx, rec, workDir)
}

// ProcessRecord 处理单条记录，中间文件写入 workDir
func (p *Pipeline) ProcessRecord(ctx context.Context, rec domain.Record, workDir string) (RecordOutcome, error) {
	var outcome RecordOutcome
	fail := func(stage string, err error) (RecordOutcome, error) {
		return outcome, &domain.RecordError{Index: rec.Index, Name: rec.Name, Stage: stage, Err: err}
	}

	template := p.Templates.For(rec.Entity)
	if _, err := os.Stat(template); err != nil {
		return fail(domain.StageTemplate, fmt.Errorf("%w: %s", domain.ErrTemplateNotFound, template))
	}

	base := RecordBaseName(rec)
	filled := filepath.Join(workDir, base+".docx")
	report, err := p.Filler.FillDocument(ctx, template, filled, p.Placeholders(rec, p.now()))
	if err != nil {
		return fail(domain.StageSubstitute, fmt.Errorf("%w: %w", domain.ErrSubstitution, err))
	}
	outcome.Report = report
	if keys := report.ResidualKeys(); len(keys) > 0 {
		outcome.Warnings = append(outcome.Warnings, domain.ResidualPlaceholderWarning{Keys: keys}.String())
	}

	pdfPath, err := p.Converter.Convert(ctx, filled, workDir)
	if err != nil {
		if !errors.Is(err, domain.ErrConversion) {
			err = fmt.Errorf("%w: %w", domain.ErrConversion, err)
		}
		return fail(domain.StageConvert, err)
	}

	coverPath := ""
	if len(p.Covers) > 0 {
		outcome.Match = p.Selector.Select(rec.Name, p.Covers)
		switch {
		case !outcome.Match.Matched():
			outcome.Warnings = append(outcome.Warnings, fmt.Sprintf("%v (最高分 %.2f)", domain.ErrNoCoverMatch, outcome.Match.Score))
		case outcome.Match.Partial:
			outcome.Warnings = append(outcome.Warnings, fmt.Sprintf("封面部分匹配: %s (%.2f)", outcome.Match.Cover.DisplayName, outcome.Match.Score))
		}
		if outcome.Match.Matched() {
			coverPath = outcome.Match.Cover.Path
		}
	}

	output := filepath.Join(p.OutputDir, OutputFileName(rec))
	if err := p.Merger.Merge(coverPath, pdfPath, output); err != nil {
		if !errors.Is(err, domain.ErrMerge) {
			err = fmt.Errorf("%w: %w", domain.ErrMerge, err)
		}
		return fail(domain.StageMerge, err)
	}
	outcome.Output = output
	return outcome, nil
}
