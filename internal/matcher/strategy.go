package matcher

import (
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"strings"

	"github.com/allanpk716/docx_stamper/internal/domain"
)

// 封面选择策略名称
const (
	StrategyFuzzy  = "fuzzy"
	StrategyExact  = "exact"
	StrategyRandom = "random"
	StrategyNone   = "none"
)

// 未匹配时的处理方式
const (
	OnNoMatchSkip   = "skip"
	OnNoMatchRandom = "random"
)

// NewSelector 根据配置构造封面选择策略，rng 供随机策略使用
func NewSelector(strategy, onNoMatch string, rng *rand.Rand) (domain.CoverSelector, error) {
	var selector domain.CoverSelector
	switch strings.ToLower(strategy) {
	case "", StrategyFuzzy:
		selector = NewFuzzyMatcher()
	case StrategyExact:
		selector = NewExactMatcher()
	case StrategyRandom:
		return NewRandomSelector(rng), nil
	case StrategyNone:
		return NewNoCover(), nil
	default:
		return nil, fmt.Errorf("未知的封面匹配策略: %s", strategy)
	}

	switch strings.ToLower(onNoMatch) {
	case "", OnNoMatchSkip:
		return selector, nil
	case OnNoMatchRandom:
		return WithFallback(selector, NewRandomSelector(rng)), nil
	}
	return nil, fmt.Errorf("未知的未匹配处理方式: %s", onNoMatch)
}

// NewCoverPage 由 PDF 路径构造候选封面，显示名为去掉扩展名的文件名
func NewCoverPage(path string) domain.CoverPage {
	base := filepath.Base(path)
	return domain.CoverPage{
		Path:        path,
		DisplayName: strings.TrimSuffix(base, filepath.Ext(base)),
	}
}
