package cmd

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/allanpk716/docx_stamper/internal/config"
	"github.com/allanpk716/docx_stamper/internal/convert"
	"github.com/allanpk716/docx_stamper/internal/domain"
	"github.com/allanpk716/docx_stamper/internal/matcher"
	"github.com/allanpk716/docx_stamper/internal/pdf"
	"github.com/allanpk716/docx_stamper/internal/processor"
	"github.com/allanpk716/docx_stamper/internal/records"
	"github.com/allanpk716/docx_stamper/pkg/docx"
)

// newRand 配置了种子时结果可复现
func newRand(seed *uint64) *rand.Rand {
	if seed != nil {
		return rand.New(rand.NewPCG(*seed, *seed))
	}
	now := uint64(time.Now().UnixNano())
	return rand.New(rand.NewPCG(now, now>>1))
}

// BuildPipeline 按配置组装批处理流水线
func BuildPipeline(cfg *config.Config, runner convert.Runner, logger *zap.Logger) (*processor.Pipeline, error) {
	mode, err := docx.ParseMode(cfg.Formatting.Mode)
	if err != nil {
		return nil, err
	}

	converter, err := convert.New(cfg.Converter.Order, cfg.Converter.SofficePath, cfg.Converter.Timeout, runner, logger)
	if err != nil {
		return nil, err
	}

	selector, err := matcher.NewSelector(cfg.Covers.Strategy, cfg.Covers.OnNoMatch, newRand(cfg.Covers.Seed))
	if err != nil {
		return nil, err
	}

	var covers []domain.CoverPage
	if !strings.EqualFold(cfg.Covers.Strategy, matcher.StrategyNone) {
		covers, err = pdf.LoadCoverPages(cfg.Covers.Dir)
		if err != nil {
			return nil, err
		}
	}

	manager := config.NewConfigManager()
	return &processor.Pipeline{
		Filler:    processor.NewDocumentProcessor(mode, logger),
		Converter: converter,
		Selector:  selector,
		Merger:    pdf.NewMerger(logger),
		Placeholders: func(rec domain.Record, now time.Time) docx.PlaceholderMap {
			return manager.GetPlaceholderMap(cfg, rec, now)
		},
		Templates: processor.Templates{
			Entity:     filepath.Join(cfg.Templates.Dir, cfg.Templates.Entity),
			Individual: filepath.Join(cfg.Templates.Dir, cfg.Templates.Individual),
		},
		Covers:    covers,
		OutputDir: cfg.Output.Dir,
		Logger:    logger,
	}, nil
}

// LoadRecords 读取记录并截取处理范围
func LoadRecords(cfg *config.Config, start, count int) ([]domain.Record, int, error) {
	if cfg.Records.Path == "" {
		return nil, 0, fmt.Errorf("未指定记录文件")
	}
	all, err := records.Read(cfg.Records.Path, cfg.Records.Sheet, records.Columns{
		Name:    cfg.Records.Columns.Name,
		Entity:  cfg.Records.Columns.Entity,
		Email:   cfg.Records.Columns.Email,
		Address: cfg.Records.Columns.Address,
	})
	if err != nil {
		return nil, 0, err
	}
	selected, err := records.Slice(all, start, count)
	if err != nil {
		return nil, len(all), err
	}
	return selected, len(all), nil
}

// ExecuteRun 执行 run 命令，返回批处理汇总
func ExecuteRun(ctx context.Context, cfg *config.Config, args *RunArgs, logger *zap.Logger) (*domain.BatchSummary, error) {
	recs, total, err := LoadRecords(cfg, args.Start, args.Count)
	if err != nil {
		return nil, fmt.Errorf("读取记录失败: %w", err)
	}
	logger.Info("已读取记录",
		zap.String("file", cfg.Records.Path),
		zap.Int("total", total),
		zap.Int("selected", len(recs)))

	pipeline, err := BuildPipeline(cfg, nil, logger)
	if err != nil {
		return nil, err
	}
	return pipeline.RunBatch(ctx, recs)
}

// PrintSummary 输出批处理汇总
func PrintSummary(w io.Writer, s *domain.BatchSummary) {
	if s == nil {
		return
	}
	fmt.Fprintf(w, "批次: %s\n", s.BatchID)
	fmt.Fprintf(w, "已处理: %d  成功: %d  失败: %d\n", s.Processed, s.Succeeded, s.Failed)
	if s.Interrupted {
		fmt.Fprintln(w, "批处理被中断，剩余记录未处理")
	}
	if len(s.Failures) > 0 {
		fmt.Fprintf(w, "失败记录: %s\n", strings.Join(s.FailedNames(), ", "))
		for _, f := range s.Failures {
			fmt.Fprintf(w, "  [%d] %s (%s): %s\n", f.Index, f.Name, f.Stage, f.Reason)
		}
	}
	if len(s.Warnings) > 0 {
		fmt.Fprintln(w, "警告:")
		for _, wn := range s.Warnings {
			fmt.Fprintf(w, "  [%d] %s: %s\n", wn.Index, wn.Name, wn.Message)
		}
	}
}

// ExecuteMatch 为每个名称输出选中的封面与分数
func ExecuteMatch(w io.Writer, cfg *config.Config, names []string) error {
	covers, err := pdf.LoadCoverPages(cfg.Covers.Dir)
	if err != nil {
		return err
	}
	if len(covers) == 0 {
		return fmt.Errorf("封面目录中没有 PDF: %s", cfg.Covers.Dir)
	}
	selector, err := matcher.NewSelector(cfg.Covers.Strategy, cfg.Covers.OnNoMatch, newRand(cfg.Covers.Seed))
	if err != nil {
		return err
	}

	for _, name := range names {
		r := selector.Select(name, covers)
		switch {
		case !r.Matched():
			fmt.Fprintf(w, "%s\t-\t%.3f\t%s\n", name, r.Score, r.Rule)
		case r.Partial:
			fmt.Fprintf(w, "%s\t%s\t%.3f\t%s (partial)\n", name, r.Cover.DisplayName, r.Score, r.Rule)
		default:
			fmt.Fprintf(w, "%s\t%s\t%.3f\t%s\n", name, r.Cover.DisplayName, r.Score, r.Rule)
		}
	}
	return nil
}

// ExecuteInspect 检查模板目录下的所有 .docx
func ExecuteInspect(w io.Writer, cfg *config.Config, paths []string) error {
	if len(paths) == 0 {
		found, err := FindDocxFiles(cfg.Templates.Dir)
		if err != nil {
			return fmt.Errorf("查找 DOCX 文件失败: %w", err)
		}
		paths = found
	}
	if len(paths) == 0 {
		return fmt.Errorf("在目录 %s 中没有找到 DOCX 文件", cfg.Templates.Dir)
	}

	mode, err := docx.ParseMode(cfg.Formatting.Mode)
	if err != nil {
		return err
	}
	inspector := processor.NewDocumentProcessor(mode, nil)
	sample := config.NewConfigManager().GetPlaceholderMap(cfg, domain.Record{}, time.Now())

	for _, path := range paths {
		report, err := inspector.InspectTemplate(path, sample)
		if err != nil {
			fmt.Fprintf(w, "%s: %v\n", path, err)
			continue
		}
		fmt.Fprintf(w, "%s\n", path)
		keys := make([]string, 0, len(report.Placeholders))
		for k := range report.Placeholders {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %s x%d\n", k, report.Placeholders[k])
		}
		if len(report.Missing) > 0 {
			fmt.Fprintf(w, "  未出现: %s\n", strings.Join(report.Missing, ", "))
		}
		if len(report.SplitKeys) > 0 {
			fmt.Fprintf(w, "  跨 run 拆分: %s\n", strings.Join(report.SplitKeys, ", "))
		}
	}
	return nil
}

// FindDocxFiles 查找目录中的所有 DOCX 文件
func FindDocxFiles(dir string) ([]string, error) {
	var docxFiles []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() && strings.ToLower(filepath.Ext(path)) == ".docx" {
			// 排除 Word 锁文件
			if !strings.HasPrefix(filepath.Base(path), "~$") {
				docxFiles = append(docxFiles, path)
			}
		}

		return nil
	})

	return docxFiles, err
}
