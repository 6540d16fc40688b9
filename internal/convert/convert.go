// Package convert 通过外部程序将 .docx 转换为 PDF
package convert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/allanpk716/docx_stamper/internal/domain"
)

// 转换器名称
const (
	NameLibreOffice = "libreoffice"
	NameWord        = "word"
)

// maxOutputInError 错误信息中保留的命令输出长度
const maxOutputInError = 512

// Runner 执行外部命令并返回合并后的输出
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner 基于 os/exec 的 Runner
type ExecRunner struct{}

// Run 执行命令，ctx 取消时终止进程
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = 2 * time.Second
	return cmd.CombinedOutput()
}

// commandConverter 一次命令调用完成转换的通用实现
type commandConverter struct {
	name    string
	timeout time.Duration
	runner  Runner
	logger  *zap.Logger
	command func(documentPath, pdfPath, outputDir string) (string, []string)
}

func (c *commandConverter) Name() string {
	return c.name
}

// Convert 在超时限制内执行转换命令，并确认 PDF 已生成
func (c *commandConverter) Convert(ctx context.Context, documentPath, outputDir string) (string, error) {
	pdfPath := PDFPath(documentPath, outputDir)
	bin, args := c.command(documentPath, pdfPath, outputDir)

	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	out, err := c.runner.Run(runCtx, bin, args...)
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("%w: %s 超过 %s", domain.ErrConversionTimeout, c.name, c.timeout)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v: %s", domain.ErrConversion, c.name, err, truncate(out))
	}

	if _, err := os.Stat(pdfPath); err != nil {
		return "", fmt.Errorf("%w: %s 未生成 %s", domain.ErrConversion, c.name, filepath.Base(pdfPath))
	}

	c.logger.Debug("转换完成",
		zap.String("converter", c.name),
		zap.String("pdf", pdfPath),
		zap.Duration("elapsed", time.Since(start)))
	return pdfPath, nil
}

// NewLibreOffice 使用 soffice --headless 转换
func NewLibreOffice(sofficePath string, timeout time.Duration, runner Runner, logger *zap.Logger) domain.Converter {
	return &commandConverter{
		name:    NameLibreOffice,
		timeout: timeout,
		runner:  runner,
		logger:  logger,
		command: func(documentPath, _, outputDir string) (string, []string) {
			return sofficePath, []string{"--headless", "--convert-to", "pdf", "--outdir", outputDir, documentPath}
		},
	}
}

// NewWord 通过 osascript 驱动 Microsoft Word 另存为 PDF，仅 macOS 可用
func NewWord(timeout time.Duration, runner Runner, logger *zap.Logger) domain.Converter {
	return &commandConverter{
		name:    NameWord,
		timeout: timeout,
		runner:  runner,
		logger:  logger,
		command: func(documentPath, pdfPath, _ string) (string, []string) {
			return "osascript", []string{"-e", wordScript(documentPath, pdfPath)}
		},
	}
}

func wordScript(documentPath, pdfPath string) string {
	return fmt.Sprintf(`on run
	set inputFile to POSIX file "%s"
	set outputFile to POSIX file "%s"
	tell application "Microsoft Word"
		open inputFile
		set activeDoc to active document
		save as activeDoc file name (outputFile as string) file format format PDF
		close activeDoc saving no
	end tell
end run`, appleScriptQuote(documentPath), appleScriptQuote(pdfPath))
}

func appleScriptQuote(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

// PDFPath 转换输出路径：outputDir 下与文档同名的 .pdf
func PDFPath(documentPath, outputDir string) string {
	base := filepath.Base(documentPath)
	return filepath.Join(outputDir, strings.TrimSuffix(base, filepath.Ext(base))+".pdf")
}

func truncate(out []byte) string {
	s := strings.TrimSpace(string(out))
	if len(s) > maxOutputInError {
		s = s[:maxOutputInError] + "..."
	}
	return s
}

// chain 按声明顺序依次尝试各转换器
type chain struct {
	converters []domain.Converter
	logger     *zap.Logger
}

// NewChain 组合多个转换器，前一个失败时尝试下一个
func NewChain(logger *zap.Logger, converters ...domain.Converter) domain.Converter {
	if len(converters) == 1 {
		return converters[0]
	}
	return &chain{converters: converters, logger: logger}
}

func (c *chain) Name() string {
	names := make([]string, len(c.converters))
	for i, conv := range c.converters {
		names[i] = conv.Name()
	}
	return strings.Join(names, ",")
}

func (c *chain) Convert(ctx context.Context, documentPath, outputDir string) (string, error) {
	var errs []error
	for _, conv := range c.converters {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		pdfPath, err := conv.Convert(ctx, documentPath, outputDir)
		if err == nil {
			return pdfPath, nil
		}
		c.logger.Warn("转换器失败，尝试下一个",
			zap.String("converter", conv.Name()),
			zap.Error(err))
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return "", fmt.Errorf("%w: 未配置转换器", domain.ErrConversion)
	}
	return "", errors.Join(errs...)
}

// New 按名称顺序构造转换器链
func New(names []string, sofficePath string, timeout time.Duration, runner Runner, logger *zap.Logger) (domain.Converter, error) {
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var converters []domain.Converter
	for _, name := range names {
		switch strings.ToLower(name) {
		case NameLibreOffice:
			converters = append(converters, NewLibreOffice(sofficePath, timeout, runner, logger))
		case NameWord:
			converters = append(converters, NewWord(timeout, runner, logger))
		default:
			return nil, fmt.Errorf("未知的转换器: %s", name)
		}
	}
	if len(converters) == 0 {
		return nil, fmt.Errorf("至少需要一个转换器")
	}
	return NewChain(logger, converters...), nil
}
