package matcher

import (
	"math/rand/v2"
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
	"golang.org/x/text/unicode/norm"

	"github.com/allanpk716/docx_stamper/internal/domain"
)

const (
	// ConfidentThreshold 高于该分数视为可靠匹配
	ConfidentThreshold = 0.8
	// PartialThreshold 高于该分数视为部分匹配，调用方应记录警告
	PartialThreshold = 0.7
	// containmentScore 简称互相包含时的保底分数
	containmentScore = 0.9
	// minContainmentLen 包含判断要求两个简称都长于该长度
	minContainmentLen = 5
)

// legalSuffixes 依次各去除一次，顺序不可调换
var legalSuffixes = []string{"PRIVATE LIMITED", "PVT LTD", "LIMITED", "LTD", "LLP", "HUF"}

// Normalize 统一为 NFC、大写并去除首尾空白
func Normalize(name string) string {
	return strings.TrimSpace(strings.ToUpper(norm.NFC.String(name)))
}

// ShortForm 去除公司后缀后的简称，仅用于相似度与包含判断
func ShortForm(normalized string) string {
	short := normalized
	for _, suffix := range legalSuffixes {
		short = strings.TrimSpace(strings.Replace(short, suffix, "", 1))
	}
	return short
}

// fuzzyMatcher 精确 / 包含 / 相似度三级匹配
type fuzzyMatcher struct {
	dmp *diffmatchpatch.DiffMatchPatch
}

// NewFuzzyMatcher 创建模糊封面匹配器
func NewFuzzyMatcher() domain.CoverSelector {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0
	return &fuzzyMatcher{dmp: dmp}
}

// Select 选出与 targetName 最相近的封面
func (fm *fuzzyMatcher) Select(targetName string, candidates []domain.CoverPage) domain.MatchResult {
	target := Normalize(targetName)
	targetShort := ShortForm(target)

	var best *domain.CoverPage
	bestScore := 0.0
	bestRule := domain.RuleNone

	for i := range candidates {
		candidate := Normalize(candidates[i].DisplayName)
		if candidate == target {
			return domain.MatchResult{Cover: &candidates[i], Score: 1.0, Rule: domain.RuleExact}
		}

		candidateShort := ShortForm(candidate)
		score := fm.Ratio(targetShort, candidateShort)
		rule := domain.RuleSimilarity
		if contains(targetShort, candidateShort) && score < containmentScore {
			score = containmentScore
			rule = domain.RuleContainment
		}

		if score > bestScore {
			best = &candidates[i]
			bestScore = score
			bestRule = rule
		}
	}

	return decide(best, bestScore, bestRule)
}

func contains(a, b string) bool {
	if utf8.RuneCountInString(a) <= minContainmentLen || utf8.RuneCountInString(b) <= minContainmentLen {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// decide 按阈值给出最终结果
func decide(best *domain.CoverPage, score float64, rule domain.MatchRule) domain.MatchResult {
	switch {
	case best != nil && score > ConfidentThreshold:
		return domain.MatchResult{Cover: best, Score: score, Rule: rule}
	case best != nil && score > PartialThreshold:
		return domain.MatchResult{Cover: best, Score: score, Rule: rule, Partial: true}
	default:
		return domain.MatchResult{Score: score, Rule: domain.RuleNone}
	}
}

// Ratio 基于最长公共子序列的相似度 2*M/T，取值 [0,1]
func (fm *fuzzyMatcher) Ratio(a, b string) float64 {
	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if total == 0 {
		return 1.0
	}
	matched := 0
	for _, d := range fm.dmp.DiffMain(a, b, false) {
		if d.Type == diffmatchpatch.DiffEqual {
			matched += utf8.RuneCountInString(d.Text)
		}
	}
	return 2 * float64(matched) / float64(total)
}

// exactMatcher 只接受规范化后完全相同的名称
type exactMatcher struct{}

// NewExactMatcher 创建精确匹配器
func NewExactMatcher() domain.CoverSelector {
	return exactMatcher{}
}

func (exactMatcher) Select(targetName string, candidates []domain.CoverPage) domain.MatchResult {
	target := Normalize(targetName)
	for i := range candidates {
		if Normalize(candidates[i].DisplayName) == target {
			return domain.MatchResult{Cover: &candidates[i], Score: 1.0, Rule: domain.RuleExact}
		}
	}
	return domain.MatchResult{Rule: domain.RuleNone}
}

// randomSelector 均匀随机选择封面
type randomSelector struct {
	rng *rand.Rand
}

// NewRandomSelector 使用注入的随机源创建随机选择器
func NewRandomSelector(rng *rand.Rand) domain.CoverSelector {
	return &randomSelector{rng: rng}
}

func (rs *randomSelector) Select(_ string, candidates []domain.CoverPage) domain.MatchResult {
	if len(candidates) == 0 {
		return domain.MatchResult{Rule: domain.RuleNone}
	}
	return domain.MatchResult{Cover: &candidates[rs.rng.IntN(len(candidates))], Rule: domain.RuleRandom}
}

// noCover 从不选择封面
type noCover struct{}

// NewNoCover 创建不加封面的策略
func NewNoCover() domain.CoverSelector {
	return noCover{}
}

func (noCover) Select(string, []domain.CoverPage) domain.MatchResult {
	return domain.MatchResult{Rule: domain.RuleNone}
}

// fallbackSelector 主策略未命中时改用备用策略
type fallbackSelector struct {
	primary  domain.CoverSelector
	fallback domain.CoverSelector
}

// WithFallback 主策略未命中时使用 fallback
func WithFallback(primary, fallback domain.CoverSelector) domain.CoverSelector {
	return &fallbackSelector{primary: primary, fallback: fallback}
}

func (fs *fallbackSelector) Select(targetName string, candidates []domain.CoverPage) domain.MatchResult {
	result := fs.primary.Select(targetName, candidates)
	if result.Matched() {
		return result
	}
	return fs.fallback.Select(targetName, candidates)
}
