package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/allanpk716/docx_stamper/internal/cmd"
	"github.com/allanpk716/docx_stamper/internal/config"
)

var (
	configFile string
	envFile    string
	verbose    bool
	coverDir   string
	runArgs    cmd.RunArgs

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   cmd.AppName,
	Short: "为股东记录填充 Word 模板、转换为 PDF 并加印花纸封面",
	PersistentPreRunE: func(c *cobra.Command, args []string) error {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("加载 %s 失败: %w", envFile, err)
		}

		zc := zap.NewProductionConfig()
		if verbose {
			zc = zap.NewDevelopmentConfig()
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("初始化日志失败: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(c *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "批量处理表格中的记录",
	RunE: func(c *cobra.Command, args []string) error {
		runArgs.SeedSet = c.Flags().Changed("seed")
		if err := cmd.ValidateArgs(&runArgs); err != nil {
			return fmt.Errorf("参数验证失败: %w", err)
		}

		cfg, err := loadConfig(false)
		if err != nil {
			return err
		}
		cmd.ApplyArgs(cfg, &runArgs)
		if err := config.NewConfigManager().ValidateConfig(cfg); err != nil {
			return fmt.Errorf("配置验证失败: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.Info("启动", zap.String("app", cmd.AppName), zap.String("version", cmd.AppVersion), zap.String("project", cfg.ProjectName))
		summary, err := cmd.ExecuteRun(ctx, cfg, &runArgs, logger)
		cmd.PrintSummary(c.OutOrStdout(), summary)
		if err != nil {
			return err
		}
		if summary.Failed > 0 {
			return fmt.Errorf("%d 条记录处理失败", summary.Failed)
		}
		return nil
	},
}

var matchCmd = &cobra.Command{
	Use:   "match NAME...",
	Short: "显示名称对应的封面及匹配分数",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		cfg, err := loadConfig(true)
		if err != nil {
			return err
		}
		if coverDir != "" {
			cfg.Covers.Dir = coverDir
		}
		return cmd.ExecuteMatch(c.OutOrStdout(), cfg, args)
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect [TEMPLATE...]",
	Short: "列出模板中的占位符，检查缺失与跨 run 拆分",
	RunE: func(c *cobra.Command, args []string) error {
		cfg, err := loadConfig(true)
		if err != nil {
			return err
		}
		return cmd.ExecuteInspect(c.OutOrStdout(), cfg, args)
	},
}

var initCmd = &cobra.Command{
	Use:   "init [PROJECT_NAME]",
	Short: "生成示例配置文件",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		name := "Shareholder Notices"
		if len(args) == 1 {
			name = args[0]
		}
		backup, err := config.SaveConfig(config.Sample(name), configFile)
		if err != nil {
			return err
		}
		if backup != "" {
			fmt.Fprintf(c.OutOrStdout(), "配置备份已创建: %s\n", backup)
		}
		fmt.Fprintf(c.OutOrStdout(), "已生成配置文件: %s\n", configFile)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Run: func(c *cobra.Command, args []string) {
		fmt.Fprintf(c.OutOrStdout(), "%s v%s\n", cmd.AppName, cmd.AppVersion)
	},
}

// loadConfig 加载配置文件；optional 时默认配置文件不存在则使用内置默认值
func loadConfig(optional bool) (*config.Config, error) {
	if optional && configFile == cmd.DefaultConfigFile {
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			cfg := config.Default()
			cfg.ProjectName = cmd.AppName
			return cfg, nil
		}
	}
	cfg, err := config.NewConfigManager().LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("加载配置文件失败: %w", err)
	}
	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", cmd.DefaultConfigFile, "项目配置文件（YAML）")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "环境变量文件")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出")

	cmd.BindRunFlags(runCmd.Flags(), &runArgs)
	matchCmd.Flags().StringVar(&coverDir, "covers", "", "印花纸封面目录")

	rootCmd.AddCommand(runCmd, matchCmd, inspectCmd, initCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
