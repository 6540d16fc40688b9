package config

import (
	"testing"
)

func TestConfigManager_ValidateConfig(t *testing.T) {
	valid := func() *Config {
		c := Default()
		c.ProjectName = "Test Project"
		return c
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		nilCfg  bool
		wantErr bool
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "nil config",
			nilCfg:  true,
			wantErr: true,
		},
		{
			name:    "empty project name",
			mutate:  func(c *Config) { c.ProjectName = "" },
			wantErr: true,
		},
		{
			name:    "empty placeholders",
			mutate:  func(c *Config) { c.Placeholders = nil },
			wantErr: true,
		},
		{
			name: "empty key",
			mutate: func(c *Config) {
				c.Placeholders = []Placeholder{{Key: "", Field: FieldName}}
			},
			wantErr: true,
		},
		{
			name: "duplicate keys",
			mutate: func(c *Config) {
				c.Placeholders = []Placeholder{{Key: "[Email]", Field: FieldEmail}, {Key: "[Email]", Value: "x"}}
			},
			wantErr: true,
		},
		{
			name: "case variants are distinct keys",
			mutate: func(c *Config) {
				c.Placeholders = []Placeholder{{Key: "[Date]", Field: FieldDay}, {Key: "[date]", Field: FieldDay}}
			},
		},
		{
			name: "field and value together",
			mutate: func(c *Config) {
				c.Placeholders = []Placeholder{{Key: "[Email]", Field: FieldEmail, Value: "x"}}
			},
			wantErr: true,
		},
		{
			name: "unknown field",
			mutate: func(c *Config) {
				c.Placeholders = []Placeholder{{Key: "[Phone]", Field: "phone"}}
			},
			wantErr: true,
		},
		{
			name: "empty column name",
			mutate: func(c *Config) {
				c.Placeholders = []Placeholder{{Key: "[Folio]", Field: FieldColumnPrefix}}
			},
			wantErr: true,
		},
		{
			name: "empty literal value is allowed",
			mutate: func(c *Config) {
				c.Placeholders = []Placeholder{{Key: "[Remarks]"}}
			},
		},
		{
			name:    "unknown converter",
			mutate:  func(c *Config) { c.Converter.Order = []string{"pandoc"} },
			wantErr: true,
		},
		{
			name:    "zero timeout",
			mutate:  func(c *Config) { c.Converter.Timeout = 0 },
			wantErr: true,
		},
		{
			name:   "character mode",
			mutate: func(c *Config) { c.Formatting.Mode = "character" },
		},
	}

	manager := NewConfigManager()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var config *Config
			if !tt.nilCfg {
				config = valid()
				tt.mutate(config)
			}
			err := manager.ValidateConfig(config)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
