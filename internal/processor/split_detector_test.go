package processor

import (
	"strings"
	"testing"
)

func TestSplitDetector_SplitKeys(t *testing.T) {
	detector := newSplitDetector()
	keys := []string{"[Name of the Shareholder]", "[Email]", "[Address]"}

	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{
			name:    "intact keys",
			content: "<w:r><w:t>[Email]</w:t></w:r><w:r><w:t>[Address]</w:t></w:r>",
			want:    nil,
		},
		{
			name:    "key split across runs",
			content: "<w:r><w:t>[Em</w:t></w:r><w:r><w:rPr><w:b/></w:rPr><w:t>ail]</w:t></w:r>",
			want:    []string{"[Email]"},
		},
		{
			name:    "one intact and one split occurrence",
			content: "<w:t>[Address]</w:t> <w:t>[Addr</w:t><w:t>ess]</w:t>",
			want:    []string{"[Address]"},
		},
		{
			name:    "split on every character",
			content: "<w:t>[</w:t><w:t>E</w:t><w:t>m</w:t><w:t>a</w:t><w:t>i</w:t><w:t>l</w:t><w:t>]</w:t>",
			want:    []string{"[Email]"},
		},
		{
			name:    "absent",
			content: "<w:t>Dear Sir</w:t>",
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := detector.SplitKeys(tt.content, keys)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("SplitKeys() = %v, 期望 %v", got, tt.want)
			}
		})
	}
}

func TestSplitDetector_CleanXMLTags(t *testing.T) {
	detector := newSplitDetector()
	got := detector.cleanXMLTags(`<w:p><w:r><w:t xml:space="preserve">Dear </w:t></w:r><w:r><w:t>[Email]</w:t></w:r></w:p>`)
	if got != "Dear [Email]" {
		t.Errorf("cleanXMLTags() = %q", got)
	}
}

func TestSplitDetector_ShortKey(t *testing.T) {
	if newSplitDetector().createSplitPattern("]") != nil {
		t.Error("单字符占位符不应生成模式")
	}
}

func BenchmarkSplitDetector_SplitKeys(b *testing.B) {
	detector := newSplitDetector()
	content := strings.Repeat("<w:r><w:t>[Na</w:t></w:r><w:r><w:t>me of the Shareholder]</w:t></w:r>", 200)
	keys := []string{"[Name of the Shareholder]", "[Email]", "[Address]", "[Date]"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		detector.SplitKeys(content, keys)
	}
}
