package processor

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/allanpk716/docx_stamper/internal/domain"
)

// maxSafeNameRunes 文件名主体的最大字符数
const maxSafeNameRunes = 50

// SafeName 只保留字母、数字、空格、- 和 _，去掉尾部空格后截断到 50 个字符
func SafeName(name string) string {
	kept := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			return r
		}
		return -1
	}, name)
	kept = strings.TrimRight(kept, " ")

	runes := []rune(kept)
	if len(runes) > maxSafeNameRunes {
		runes = runes[:maxSafeNameRunes]
	}
	return string(runes)
}

// RecordBaseName 记录对应的文件名主体，名称清理后为空时使用 record_<序号>
func RecordBaseName(rec domain.Record) string {
	if safe := SafeName(rec.Name); safe != "" {
		return safe
	}
	return fmt.Sprintf("record_%d", rec.Index)
}

// OutputFileName 最终 PDF 文件名：<名称>_<实体类型>.pdf
func OutputFileName(rec domain.Record) string {
	entity := SafeName(rec.Entity)
	if entity == "" {
		entity = domain.EntityIndividual
	}
	return RecordBaseName(rec) + "_" + entity + ".pdf"
}
