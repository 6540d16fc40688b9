package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/allanpk716/docx_stamper/internal/domain"
	"github.com/allanpk716/docx_stamper/pkg/docx"
)

// 环境变量覆盖项
const (
	EnvSofficePath = "DOCX_STAMPER_SOFFICE"
	EnvTimeout     = "DOCX_STAMPER_TIMEOUT"
	EnvOutputDir   = "DOCX_STAMPER_OUTPUT_DIR"
)

// 占位符取值字段
const (
	FieldName    = "name"
	FieldEmail   = "email"
	FieldAddress = "address"
	FieldEntity  = "entity"
	FieldDay     = "day"
	// FieldColumnPrefix 后接表头名，取该列原始值
	FieldColumnPrefix = "column:"
)

// DefaultTimeout 单次转换的默认超时
const DefaultTimeout = 30 * time.Second

// Placeholder 一个占位符配置项，Field 与 Value 二选一
type Placeholder struct {
	Key   string `yaml:"key"`
	Field string `yaml:"field,omitempty"`
	Value string `yaml:"value,omitempty"`
}

// ColumnsConfig 表头到记录字段的映射
type ColumnsConfig struct {
	Name    string `yaml:"name"`
	Entity  string `yaml:"entity"`
	Email   string `yaml:"email"`
	Address string `yaml:"address"`
}

// RecordsConfig 记录来源
type RecordsConfig struct {
	Path    string        `yaml:"path"`
	Sheet   string        `yaml:"sheet"`
	Columns ColumnsConfig `yaml:"columns"`
}

// TemplatesConfig 两类实体对应的模板
type TemplatesConfig struct {
	Dir        string `yaml:"dir"`
	Entity     string `yaml:"entity"`
	Individual string `yaml:"individual"`
}

// CoversConfig 印花纸封面
type CoversConfig struct {
	Dir       string  `yaml:"dir"`
	Strategy  string  `yaml:"strategy"`
	OnNoMatch string  `yaml:"on_no_match"`
	Seed      *uint64 `yaml:"seed,omitempty"`
}

// ConverterConfig PDF 转换器
type ConverterConfig struct {
	Order       []string      `yaml:"order"`
	Timeout     time.Duration `yaml:"timeout"`
	SofficePath string        `yaml:"soffice_path"`
}

// OutputConfig 输出
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// FormattingConfig 格式保留方式：auto / character / simple
type FormattingConfig struct {
	Mode string `yaml:"mode"`
}

// Config 表示完整的项目配置
type Config struct {
	ProjectName  string           `yaml:"project_name"`
	Records      RecordsConfig    `yaml:"records"`
	Templates    TemplatesConfig  `yaml:"templates"`
	Covers       CoversConfig     `yaml:"covers"`
	Converter    ConverterConfig  `yaml:"converter"`
	Output       OutputConfig     `yaml:"output"`
	Formatting   FormattingConfig `yaml:"formatting"`
	Placeholders []Placeholder    `yaml:"placeholders"`
}

// ConfigManager 配置管理接口
type ConfigManager interface {
	LoadConfig(filePath string) (*Config, error)
	ValidateConfig(config *Config) error
	GetPlaceholderMap(config *Config, record domain.Record, now time.Time) docx.PlaceholderMap
}

// configManager 配置管理器实现
type configManager struct {
	lookupEnv func(string) (string, bool)
}

// NewConfigManager 创建新的配置管理器
func NewConfigManager() ConfigManager {
	return &configManager{lookupEnv: os.LookupEnv}
}

// DefaultPlaceholders 股东通知模板使用的占位符
func DefaultPlaceholders() []Placeholder {
	return []Placeholder{
		{Key: "[Name of the Shareholder]", Field: FieldName},
		{Key: "[Email]", Field: FieldEmail},
		{Key: "[Address]", Field: FieldAddress},
		{Key: "[Date]", Field: FieldDay},
		{Key: "[date]", Field: FieldDay},
	}
}

// Default 返回填充了默认值的配置
func Default() *Config {
	cfg := &Config{}
	cfg.defaults()
	return cfg
}

func (c *Config) defaults() {
	if c.Records.Columns.Name == "" {
		c.Records.Columns.Name = "Name of the Shareholder"
	}
	if c.Records.Columns.Entity == "" {
		c.Records.Columns.Entity = "Entity"
	}
	if c.Records.Columns.Email == "" {
		c.Records.Columns.Email = "Email"
	}
	if c.Records.Columns.Address == "" {
		c.Records.Columns.Address = "Address"
	}
	if c.Templates.Dir == "" {
		c.Templates.Dir = "Documents"
	}
	if c.Templates.Entity == "" {
		c.Templates.Entity = "Entity.docx"
	}
	if c.Templates.Individual == "" {
		c.Templates.Individual = "Individual.docx"
	}
	if c.Covers.Dir == "" {
		c.Covers.Dir = "stamp_papers"
	}
	if c.Covers.Strategy == "" {
		c.Covers.Strategy = "fuzzy"
	}
	if c.Covers.OnNoMatch == "" {
		c.Covers.OnNoMatch = "skip"
	}
	if len(c.Converter.Order) == 0 {
		c.Converter.Order = []string{"libreoffice", "word"}
	}
	if c.Converter.Timeout <= 0 {
		c.Converter.Timeout = DefaultTimeout
	}
	if c.Converter.SofficePath == "" {
		c.Converter.SofficePath = "soffice"
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "output"
	}
	if c.Formatting.Mode == "" {
		c.Formatting.Mode = docx.ModeAuto.String()
	}
	if len(c.Placeholders) == 0 {
		c.Placeholders = DefaultPlaceholders()
	}
}

// LoadConfig 从 YAML 文件加载配置，相对路径以配置文件所在目录为基准
func (cm *configManager) LoadConfig(filePath string) (*Config, error) {
	if filePath == "" {
		return nil, fmt.Errorf("配置文件路径不能为空")
	}

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("配置文件不存在: %s", filePath)
	}

	switch ext := strings.ToLower(filepath.Ext(filePath)); ext {
	case ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("配置文件必须是 YAML 格式，当前文件: %s", ext)
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var config Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	config.defaults()
	if err := cm.applyEnv(&config); err != nil {
		return nil, err
	}
	config.resolvePaths(filepath.Dir(filePath))

	if err := cm.ValidateConfig(&config); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return &config, nil
}

// applyEnv 用环境变量覆盖配置
func (cm *configManager) applyEnv(c *Config) error {
	if v, ok := cm.lookupEnv(EnvSofficePath); ok && v != "" {
		c.Converter.SofficePath = v
	}
	if v, ok := cm.lookupEnv(EnvOutputDir); ok && v != "" {
		c.Output.Dir = v
	}
	if v, ok := cm.lookupEnv(EnvTimeout); ok && v != "" {
		d, err := parseTimeout(v)
		if err != nil {
			return fmt.Errorf("环境变量 %s 无效: %w", EnvTimeout, err)
		}
		c.Converter.Timeout = d
	}
	return nil
}

// parseTimeout 接受 "45s" 形式或纯秒数
func parseTimeout(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(v)
}

func (c *Config) resolvePaths(base string) {
	for _, p := range []*string{&c.Records.Path, &c.Templates.Dir, &c.Covers.Dir, &c.Output.Dir} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
}

// ValidateConfig 验证配置的有效性
func (cm *configManager) ValidateConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("配置不能为空")
	}

	if config.ProjectName == "" {
		return fmt.Errorf("项目名称不能为空")
	}

	if len(config.Placeholders) == 0 {
		return fmt.Errorf("占位符列表不能为空")
	}

	keySet := make(map[string]bool)
	for i, p := range config.Placeholders {
		if p.Key == "" {
			return fmt.Errorf("第 %d 个占位符的 key 不能为空", i+1)
		}
		if keySet[p.Key] {
			return fmt.Errorf("占位符重复: %s", p.Key)
		}
		keySet[p.Key] = true
		if p.Field != "" && p.Value != "" {
			return fmt.Errorf("占位符 %s 不能同时指定 field 和 value", p.Key)
		}
		if p.Field != "" && !validField(p.Field) {
			return fmt.Errorf("占位符 %s 的字段无效: %s", p.Key, p.Field)
		}
	}

	if _, err := docx.ParseMode(config.Formatting.Mode); err != nil {
		return err
	}

	if config.Converter.Timeout <= 0 {
		return fmt.Errorf("转换超时必须大于 0")
	}
	for _, name := range config.Converter.Order {
		switch strings.ToLower(name) {
		case "libreoffice", "word":
		default:
			return fmt.Errorf("未知的转换器: %s", name)
		}
	}

	return nil
}

func validField(field string) bool {
	switch field {
	case FieldName, FieldEmail, FieldAddress, FieldEntity, FieldDay:
		return true
	}
	return strings.HasPrefix(field, FieldColumnPrefix) && len(field) > len(FieldColumnPrefix)
}

// GetPlaceholderMap 按配置顺序为单条记录构造占位符映射
func (cm *configManager) GetPlaceholderMap(config *Config, record domain.Record, now time.Time) docx.PlaceholderMap {
	if config == nil {
		return nil
	}

	m := make(docx.PlaceholderMap, 0, len(config.Placeholders))
	for _, p := range config.Placeholders {
		value := p.Value
		if p.Field != "" {
			value = fieldValue(p.Field, record, now)
		}
		m = append(m, docx.Placeholder{Key: p.Key, Value: value})
	}
	return m
}

func fieldValue(field string, record domain.Record, now time.Time) string {
	switch field {
	case FieldName:
		return record.Name
	case FieldEmail:
		return record.Email
	case FieldAddress:
		return record.Address
	case FieldEntity:
		return record.Entity
	case FieldDay:
		return strconv.Itoa(now.Day())
	}
	if column, ok := strings.CutPrefix(field, FieldColumnPrefix); ok {
		return record.Fields[column]
	}
	return ""
}
