package processor

import (
	"regexp"
	"strings"
)

// splitDetector 检测在 XML 中被标签拆开的占位符
type splitDetector struct {
	// XML 标签模式
	xmlTagPattern *regexp.Regexp
}

func newSplitDetector() *splitDetector {
	return &splitDetector{
		xmlTagPattern: regexp.MustCompile(`<[^>]*>`),
	}
}

// SplitKeys 返回至少有一处出现被拆分到多个 run 的占位符
func (sd *splitDetector) SplitKeys(content string, keys []string) []string {
	var split []string
	text := sd.cleanXMLTags(content)
	for _, key := range keys {
		if strings.Count(text, key) <= strings.Count(content, key) {
			continue
		}
		pattern := sd.createSplitPattern(key)
		if pattern == nil {
			continue
		}
		if len(pattern.FindAllStringIndex(content, -1)) > strings.Count(content, key) {
			split = append(split, key)
		}
	}
	return split
}

// createSplitPattern 为占位符创建跨标签匹配模式
// 例如：[Email] 可能被拆为 [E</w:t></w:r><w:r><w:t>mail]
func (sd *splitDetector) createSplitPattern(key string) *regexp.Regexp {
	runes := []rune(key)
	if len(runes) < 2 {
		return nil
	}

	var parts []string
	for i, r := range runes {
		if i > 0 {
			parts = append(parts, `(?:<[^>]*>)*`)
		}
		parts = append(parts, regexp.QuoteMeta(string(r)))
	}

	pattern, err := regexp.Compile(strings.Join(parts, ""))
	if err != nil {
		return nil
	}
	return pattern
}

// cleanXMLTags 清理 XML 标签，返回纯文本
func (sd *splitDetector) cleanXMLTags(content string) string {
	return sd.xmlTagPattern.ReplaceAllString(content, "")
}
