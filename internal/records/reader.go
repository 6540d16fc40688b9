// Package records 读取股东表格（.xlsx / .csv）并映射为记录
package records

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/allanpk716/docx_stamper/internal/domain"
)

// UnknownName 姓名为空时使用的名称
const UnknownName = "Unknown"

// ErrNoRows 表格没有表头
var ErrNoRows = errors.New("表格为空")

// Columns 各字段对应的表头名
type Columns struct {
	Name    string
	Entity  string
	Email   string
	Address string
}

// Read 按扩展名读取记录文件，sheet 仅对 .xlsx 有效，为空时取第一个工作表
func Read(path, sheet string, cols Columns) ([]domain.Record, error) {
	var (
		rows [][]string
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".xlsx", ".xlsm":
		rows, err = readXLSX(path, sheet)
	case ".csv":
		rows, err = readCSV(path)
	default:
		return nil, fmt.Errorf("不支持的记录文件格式: %s", ext)
	}
	if err != nil {
		return nil, err
	}
	return FromRows(rows, cols)
}

func readXLSX(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("打开表格失败: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, ErrNoRows
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("读取工作表 %s 失败: %w", sheet, err)
	}
	return rows, nil
}

func readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开 CSV 失败: %w", err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	var rows [][]string
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("解析 CSV 失败: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// FromRows 第一行为表头，其余每个非空行映射为一条记录
func FromRows(rows [][]string, cols Columns) ([]domain.Record, error) {
	if len(rows) == 0 {
		return nil, ErrNoRows
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	var records []domain.Record
	for _, row := range rows[1:] {
		fields := make(map[string]string, len(header))
		blank := true
		for i, h := range header {
			if h == "" {
				continue
			}
			v := ""
			if i < len(row) {
				v = strings.TrimSpace(row[i])
			}
			if v != "" {
				blank = false
			}
			fields[h] = v
		}
		if blank {
			continue
		}

		rec := domain.Record{
			Index:   len(records) + 1,
			Name:    fields[cols.Name],
			Entity:  fields[cols.Entity],
			Email:   fields[cols.Email],
			Address: fields[cols.Address],
			Fields:  fields,
		}
		if rec.Name == "" {
			rec.Name = UnknownName
		}
		if rec.Entity == "" {
			rec.Entity = domain.EntityIndividual
		}
		records = append(records, rec)
	}
	return records, nil
}

// Slice 取从 start（从 1 开始）起的 count 条记录，count 为 0 表示到末尾
func Slice(records []domain.Record, start, count int) ([]domain.Record, error) {
	if start < 1 {
		start = 1
	}
	if len(records) == 0 {
		return nil, nil
	}
	if start > len(records) {
		return nil, fmt.Errorf("起始记录 %d 超出范围 (1-%d)", start, len(records))
	}
	if count < 0 {
		return nil, fmt.Errorf("记录数量不能为负数: %d", count)
	}
	end := len(records)
	if count > 0 && start-1+count < end {
		end = start - 1 + count
	}
	return records[start-1 : end], nil
}
