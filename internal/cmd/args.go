package cmd

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/allanpk716/docx_stamper/internal/config"
	"github.com/allanpk716/docx_stamper/internal/matcher"
	"github.com/allanpk716/docx_stamper/pkg/docx"
)

// 应用信息
const (
	AppName    = "docx-stamper"
	AppVersion = "1.0.0"
)

// DefaultConfigFile 默认项目配置文件
const DefaultConfigFile = "docx-stamper.yaml"

// RunArgs run 命令参数，非空值覆盖配置文件
type RunArgs struct {
	RecordsFile string
	Sheet       string
	OutputDir   string
	CoverDir    string
	Strategy    string
	OnNoMatch   string
	Mode        string
	Start       int
	Count       int
	Seed        uint64
	SeedSet     bool
}

// BindRunFlags 注册 run 命令参数
func BindRunFlags(fs *pflag.FlagSet, args *RunArgs) {
	fs.StringVar(&args.RecordsFile, "records", "", "股东表格路径（.xlsx / .csv）")
	fs.StringVar(&args.Sheet, "sheet", "", "工作表名称，默认第一个")
	fs.StringVar(&args.OutputDir, "output-dir", "", "输出目录")
	fs.StringVar(&args.CoverDir, "covers", "", "印花纸封面目录")
	fs.StringVar(&args.Strategy, "strategy", "", "封面选择策略：fuzzy / exact / random / none")
	fs.StringVar(&args.OnNoMatch, "on-no-match", "", "未匹配时的处理：skip / random")
	fs.StringVar(&args.Mode, "mode", "", "格式保留方式：auto / character / simple")
	fs.IntVar(&args.Start, "start", 1, "起始记录（从 1 开始）")
	fs.IntVar(&args.Count, "count", 0, "处理记录数，0 表示全部")
	fs.Uint64Var(&args.Seed, "seed", 0, "随机封面的种子")
}

// ValidateArgs 验证命令行参数
func ValidateArgs(args *RunArgs) error {
	if args.Start < 1 {
		return fmt.Errorf("起始记录必须从 1 开始: %d", args.Start)
	}
	if args.Count < 0 {
		return fmt.Errorf("记录数量不能为负数: %d", args.Count)
	}
	if args.Mode != "" {
		if _, err := docx.ParseMode(args.Mode); err != nil {
			return err
		}
	}
	if args.Strategy != "" || args.OnNoMatch != "" {
		if _, err := matcher.NewSelector(args.Strategy, args.OnNoMatch, nil); err != nil {
			return err
		}
	}
	return nil
}

// ApplyArgs 用命令行参数覆盖配置
func ApplyArgs(cfg *config.Config, args *RunArgs) {
	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&cfg.Records.Path, args.RecordsFile)
	override(&cfg.Records.Sheet, args.Sheet)
	override(&cfg.Output.Dir, args.OutputDir)
	override(&cfg.Covers.Dir, args.CoverDir)
	override(&cfg.Covers.Strategy, args.Strategy)
	override(&cfg.Covers.OnNoMatch, args.OnNoMatch)
	override(&cfg.Formatting.Mode, args.Mode)
	if args.SeedSet {
		seed := args.Seed
		cfg.Covers.Seed = &seed
	}
}
