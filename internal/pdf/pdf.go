// Package pdf 加载印花纸封面并将封面与正文合并为最终 PDF
package pdf

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.uber.org/zap"

	"github.com/allanpk716/docx_stamper/internal/domain"
	"github.com/allanpk716/docx_stamper/internal/matcher"
)

// LoadCoverPages 列出目录下的 PDF 封面，按文件名排序；目录不存在时返回空集合
func LoadCoverPages(dir string) ([]domain.CoverPage, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取封面目录失败: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	pages := make([]domain.CoverPage, 0, len(names))
	for _, n := range names {
		pages = append(pages, matcher.NewCoverPage(filepath.Join(dir, n)))
	}
	return pages, nil
}

// merger 基于 pdfcpu 的合并器
type merger struct {
	conf   *model.Configuration
	logger *zap.Logger
}

// NewMerger 创建 PDF 合并器
func NewMerger(logger *zap.Logger) domain.PDFMerger {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if logger == nil {
		logger = zap.NewNop()
	}
	return &merger{conf: conf, logger: logger}
}

// Merge 封面在前、正文在后；coverPath 为空时直接复制正文
func (m *merger) Merge(coverPath, documentPath, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("%w: 创建输出目录失败: %v", domain.ErrMerge, err)
	}

	if coverPath == "" {
		if err := Validate(documentPath); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrMerge, err)
		}
		if err := copyFile(documentPath, outputPath); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrMerge, err)
		}
		return nil
	}

	if err := api.MergeCreateFile([]string{coverPath, documentPath}, outputPath, false, m.conf); err != nil {
		os.Remove(outputPath)
		return fmt.Errorf("%w: %s + %s: %v", domain.ErrMerge, filepath.Base(coverPath), filepath.Base(documentPath), err)
	}

	m.logger.Debug("合并完成",
		zap.String("cover", filepath.Base(coverPath)),
		zap.String("output", outputPath))
	return nil
}

// PageCount 返回 PDF 页数
func PageCount(path string) (int, error) {
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("读取页数失败: %w", err)
	}
	return n, nil
}

// Validate 校验 PDF 结构
func Validate(path string) error {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.ValidateFile(path, conf); err != nil {
		return fmt.Errorf("PDF 校验失败: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("打开文件失败: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("创建文件失败: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("复制文件失败: %w", err)
	}
	return out.Close()
}
