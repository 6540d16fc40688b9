package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTemplateNotFound = errors.New("模板不存在")
	ErrSubstitution     = errors.New("占位符填充失败")
	ErrConversion       = errors.New("PDF 转换失败")
	// ErrConversionTimeout 是 ErrConversion 的一种
	ErrConversionTimeout = fmt.Errorf("%w: 转换超时", ErrConversion)
	ErrMerge             = errors.New("PDF 合并失败")
	// ErrNoCoverMatch 非致命，记录继续处理但不加封面
	ErrNoCoverMatch = errors.New("未找到匹配的封面")
)

// 记录处理阶段
const (
	StageTemplate   = "template"
	StageSubstitute = "substitute"
	StageConvert    = "convert"
	StageMerge      = "merge"
)

// ResidualPlaceholderWarning 填充后仍存在的占位符，非致命
type ResidualPlaceholderWarning struct {
	Keys []string
}

func (w ResidualPlaceholderWarning) String() string {
	return "残留占位符: " + strings.Join(w.Keys, ", ")
}

// RecordError 单条记录的失败原因
type RecordError struct {
	Index int
	Name  string
	Stage string
	Err   error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("记录 %d (%s) 在 %s 阶段失败: %v", e.Index, e.Name, e.Stage, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}
