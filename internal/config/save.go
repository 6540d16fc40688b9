package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// SaveConfig 保存配置到 YAML 文件，已存在的文件先备份
func SaveConfig(config *Config, filePath string) (backupPath string, err error) {
	if config == nil {
		return "", fmt.Errorf("配置不能为空")
	}

	if err := NewConfigManager().ValidateConfig(config); err != nil {
		return "", fmt.Errorf("配置验证失败: %w", err)
	}

	backupPath, err = createBackup(filePath, time.Now())
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return "", fmt.Errorf("序列化配置失败: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return "", fmt.Errorf("创建目录失败: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return "", fmt.Errorf("写入配置文件失败: %w", err)
	}

	return backupPath, nil
}

// createBackup 创建配置文件备份，文件不存在时返回空路径
func createBackup(filePath string, now time.Time) (string, error) {
	src, err := os.ReadFile(filePath)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("读取原文件失败: %w", err)
	}

	base := filepath.Base(filePath)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	backupPath := filepath.Join(filepath.Dir(filePath), fmt.Sprintf("%s_backup_%s%s", name, now.Format("20060102_150405"), ext))

	if err := os.WriteFile(backupPath, src, 0644); err != nil {
		return "", fmt.Errorf("写入备份文件失败: %w", err)
	}
	return backupPath, nil
}

// Sample 生成示例项目配置
func Sample(projectName string) *Config {
	cfg := Default()
	cfg.ProjectName = projectName
	cfg.Records.Path = "shareholders.xlsx"
	return cfg
}
