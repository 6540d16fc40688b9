package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/allanpk716/docx_stamper/internal/convert"
	"github.com/allanpk716/docx_stamper/internal/domain"
	"github.com/allanpk716/docx_stamper/internal/matcher"
	"github.com/allanpk716/docx_stamper/internal/pdf"
	"github.com/allanpk716/docx_stamper/pkg/docx"
)

// fakeFiller 复制模板并返回预设报告
type fakeFiller struct {
	residual map[string][]string
	failFor  string
}

func (f *fakeFiller) FillDocument(_ context.Context, templatePath, outputPath string, m docx.PlaceholderMap) (*docx.FillReport, error) {
	if len(m) > 0 && m[0].Value == f.failFor {
		return nil, errors.New("模板损坏")
	}
	data, err := os.ReadFile(templatePath)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return nil, err
	}
	return &docx.FillReport{Residual: f.residual}, nil
}

func (f *fakeFiller) ValidateDocument(string) error { return nil }

// fakeConverter 写出单页 PDF，可按文档名失败
type fakeConverter struct {
	mu      sync.Mutex
	fail    map[string]error
	onCall  func(ctx context.Context)
	calls   int
	lastCtx context.Context
}

func (f *fakeConverter) Name() string { return "fake" }

func (f *fakeConverter) Convert(ctx context.Context, documentPath, outputDir string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.lastCtx = ctx
	onCall := f.onCall
	f.mu.Unlock()
	if onCall != nil {
		onCall(ctx)
	}
	if err := f.fail[filepath.Base(documentPath)]; err != nil {
		return "", err
	}
	pdfPath := convert.PDFPath(documentPath, outputDir)
	return pdfPath, os.WriteFile(pdfPath, buildTextPDF(filepath.Base(documentPath)), 0644)
}

// fakeMerger 记录封面路径并复制正文
type fakeMerger struct {
	covers map[string]string
	fail   error
}

func (f *fakeMerger) Merge(coverPath, documentPath, outputPath string) error {
	if f.fail != nil {
		return f.fail
	}
	if f.covers == nil {
		f.covers = make(map[string]string)
	}
	f.covers[filepath.Base(outputPath)] = coverPath
	data, err := os.ReadFile(documentPath)
	if err != nil {
		return err
	}
	return os.WriteFile(outputPath, data, 0644)
}

func placeholdersFor(rec domain.Record, now time.Time) docx.PlaceholderMap {
	return docx.PlaceholderMap{
		{Key: "[Name of the Shareholder]", Value: rec.Name},
		{Key: "[Address]", Value: rec.Address},
		{Key: "[Date]", Value: fmt.Sprint(now.Day())},
	}
}

type pipelineFixture struct {
	pipeline  *Pipeline
	converter *fakeConverter
	merger    *fakeMerger
	tempRoot  string
}

func newFixture(t *testing.T, withEntityTemplate bool) *pipelineFixture {
	t.Helper()
	dir := t.TempDir()
	templates := Templates{
		Entity:     filepath.Join(dir, "Entity.docx"),
		Individual: writeTemplate(t, dir, "Individual.docx", noticeBody),
	}
	if withEntityTemplate {
		writeTemplate(t, dir, "Entity.docx", noticeBody)
	}

	fx := &pipelineFixture{
		converter: &fakeConverter{fail: map[string]error{}},
		merger:    &fakeMerger{},
		tempRoot:  filepath.Join(dir, "tmp"),
	}
	require.NoError(t, os.Mkdir(fx.tempRoot, 0755))

	fx.pipeline = &Pipeline{
		Filler:       &fakeFiller{},
		Converter:    fx.converter,
		Selector:     matcher.NewFuzzyMatcher(),
		Merger:       fx.merger,
		Placeholders: placeholdersFor,
		Templates:    templates,
		OutputDir:    filepath.Join(dir, "output"),
		TempRoot:     fx.tempRoot,
		Logger:       zaptest.NewLogger(t),
		Now:          func() time.Time { return time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC) },
	}
	return fx
}

func (fx *pipelineFixture) assertTempCleaned(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(fx.tempRoot)
	require.NoError(t, err)
	assert.Empty(t, entries, "临时目录应被清理")
}

func TestTemplates_For(t *testing.T) {
	tpl := Templates{Entity: "E.docx", Individual: "I.docx"}
	tests := []struct {
		entity string
		want   string
	}{
		{"Entity", "E.docx"},
		{"ENTITY", "E.docx"},
		{" entity ", "E.docx"},
		{"Individual", "I.docx"},
		{"", "I.docx"},
		{"Trust", "I.docx"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tpl.For(tt.entity), tt.entity)
	}
}

func TestPipeline_RunBatch_IsolatesFailures(t *testing.T) {
	fx := newFixture(t, false)
	fx.converter.fail["Broken Doc.docx"] = fmt.Errorf("%w: 转换超时", domain.ErrConversionTimeout)

	records := []domain.Record{
		{Index: 1, Name: "Jane Doe", Entity: domain.EntityIndividual},
		{Index: 2, Name: "Broken Doc", Entity: domain.EntityIndividual},
		{Index: 3, Name: "Sunrise Holdings Pvt Ltd", Entity: "Entity"},
		{Index: 4, Name: "Priya Nair", Entity: domain.EntityIndividual},
	}

	summary, err := fx.pipeline.RunBatch(context.Background(), records)
	require.NoError(t, err)

	assert.NotEmpty(t, summary.BatchID)
	assert.Equal(t, 4, summary.Processed)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 2, summary.Failed)
	assert.False(t, summary.Interrupted)
	assert.Equal(t, []string{"Broken Doc", "Sunrise Holdings Pvt Ltd"}, summary.FailedNames())

	assert.Equal(t, domain.StageConvert, summary.Failures[0].Stage)
	assert.Equal(t, domain.StageTemplate, summary.Failures[1].Stage)

	out := fx.pipeline.OutputDir
	assert.Equal(t, []string{
		filepath.Join(out, "Jane Doe_Individual.pdf"),
		filepath.Join(out, "Priya Nair_Individual.pdf"),
	}, summary.Outputs)
	for _, o := range summary.Outputs {
		assert.FileExists(t, o)
	}
	fx.assertTempCleaned(t)
}

func TestPipeline_ProcessRecord_Errors(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(fx *pipelineFixture)
		record    domain.Record
		wantStage string
		wantErr   error
	}{
		{
			name:      "missing entity template",
			record:    domain.Record{Index: 1, Name: "Rao HUF", Entity: "entity"},
			wantStage: domain.StageTemplate,
			wantErr:   domain.ErrTemplateNotFound,
		},
		{
			name:      "filler failure",
			setup:     func(fx *pipelineFixture) { fx.pipeline.Filler = &fakeFiller{failFor: "Jane Doe"} },
			record:    domain.Record{Index: 1, Name: "Jane Doe"},
			wantStage: domain.StageSubstitute,
			wantErr:   domain.ErrSubstitution,
		},
		{
			name: "conversion timeout",
			setup: func(fx *pipelineFixture) {
				fx.converter.fail["Jane Doe.docx"] = fmt.Errorf("%w: soffice", domain.ErrConversionTimeout)
			},
			record:    domain.Record{Index: 1, Name: "Jane Doe"},
			wantStage: domain.StageConvert,
			wantErr:   domain.ErrConversionTimeout,
		},
		{
			name: "unwrapped converter error",
			setup: func(fx *pipelineFixture) {
				fx.converter.fail["Jane Doe.docx"] = errors.New("boom")
			},
			record:    domain.Record{Index: 1, Name: "Jane Doe"},
			wantStage: domain.StageConvert,
			wantErr:   domain.ErrConversion,
		},
		{
			name:      "merge failure",
			setup:     func(fx *pipelineFixture) { fx.merger.fail = errors.New("disk full") },
			record:    domain.Record{Index: 1, Name: "Jane Doe"},
			wantStage: domain.StageMerge,
			wantErr:   domain.ErrMerge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t, false)
			if tt.setup != nil {
				tt.setup(fx)
			}
			require.NoError(t, os.MkdirAll(fx.pipeline.OutputDir, 0755))

			_, err := fx.pipeline.ProcessRecord(context.Background(), tt.record, t.TempDir())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			var recErr *domain.RecordError
			require.ErrorAs(t, err, &recErr)
			assert.Equal(t, tt.wantStage, recErr.Stage)
			assert.Equal(t, tt.record.Name, recErr.Name)
		})
	}
}

func TestPipeline_CoverSelection(t *testing.T) {
	fx := newFixture(t, true)
	fx.pipeline.Covers = []domain.CoverPage{
		matcher.NewCoverPage("/stamps/ABCDEFGHXY.pdf"),
		matcher.NewCoverPage("/stamps/SUNRISE HOLDINGS.pdf"),
	}

	records := []domain.Record{
		{Index: 1, Name: "Sunrise Holdings Private Limited", Entity: "Entity"},
		{Index: 2, Name: "ABCDEFGHIJ", Entity: domain.EntityIndividual},
		{Index: 3, Name: "Zephyr Holdings", Entity: domain.EntityIndividual},
	}

	summary, err := fx.pipeline.RunBatch(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Succeeded)

	assert.Equal(t, "/stamps/SUNRISE HOLDINGS.pdf", fx.merger.covers["Sunrise Holdings Private Limited_Entity.pdf"])
	assert.Equal(t, "/stamps/ABCDEFGHXY.pdf", fx.merger.covers["ABCDEFGHIJ_Individual.pdf"])
	assert.Equal(t, "", fx.merger.covers["Zephyr Holdings_Individual.pdf"])

	require.Len(t, summary.Warnings, 2)
	assert.Equal(t, 2, summary.Warnings[0].Index)
	assert.Contains(t, summary.Warnings[0].Message, "部分匹配")
	assert.Equal(t, 3, summary.Warnings[1].Index)
	assert.Contains(t, summary.Warnings[1].Message, domain.ErrNoCoverMatch.Error())
}

func TestPipeline_NoCoversNoWarning(t *testing.T) {
	fx := newFixture(t, false)
	summary, err := fx.pipeline.RunBatch(context.Background(), []domain.Record{{Index: 1, Name: "Jane Doe"}})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Empty(t, summary.Warnings)
	assert.Equal(t, "", fx.merger.covers["Jane Doe_Individual.pdf"])
}

func TestPipeline_ResidualIsWarningNotFailure(t *testing.T) {
	fx := newFixture(t, false)
	fx.pipeline.Filler = &fakeFiller{residual: map[string][]string{"[Email]": {"word/footer1.xml"}}}

	summary, err := fx.pipeline.RunBatch(context.Background(), []domain.Record{{Index: 1, Name: "Jane Doe"}})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	require.Len(t, summary.Warnings, 1)
	assert.Equal(t, "残留占位符: [Email]", summary.Warnings[0].Message)
}

func TestPipeline_InterruptBetweenRecords(t *testing.T) {
	fx := newFixture(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var inFlightErr error
	fx.converter.onCall = func(c context.Context) {
		cancel()
		inFlightErr = c.Err()
	}

	records := []domain.Record{
		{Index: 1, Name: "Jane Doe"},
		{Index: 2, Name: "Priya Nair"},
		{Index: 3, Name: "Rao"},
	}
	summary, err := fx.pipeline.RunBatch(ctx, records)

	assert.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, inFlightErr, "进行中的记录不应被取消")
	assert.True(t, summary.Interrupted)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, fx.converter.calls)
	assert.FileExists(t, filepath.Join(fx.pipeline.OutputDir, "Jane Doe_Individual.pdf"))
	fx.assertTempCleaned(t)
}

func TestPipeline_EmptyBatch(t *testing.T) {
	fx := newFixture(t, false)
	summary, err := fx.pipeline.RunBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, summary.Processed)
	fx.assertTempCleaned(t)
}

func TestPipeline_EndToEnd(t *testing.T) {
	fx := newFixture(t, false)
	coverDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(coverDir, "JANE DOE.pdf"), buildTextPDF("STAMP"), 0644))
	covers, err := pdf.LoadCoverPages(coverDir)
	require.NoError(t, err)

	var filledText string
	fx.converter.onCall = nil
	fx.pipeline.Filler = NewDocumentProcessor(docx.ModeAuto, zaptest.NewLogger(t))
	fx.pipeline.Merger = pdf.NewMerger(zaptest.NewLogger(t))
	fx.pipeline.Covers = covers
	fx.pipeline.Converter = &inspectingConverter{inner: fx.converter, text: &filledText}

	summary, err := fx.pipeline.RunBatch(context.Background(), []domain.Record{
		{Index: 1, Name: "Jane Doe", Entity: domain.EntityIndividual, Address: "12 Main St"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Succeeded, "%+v", summary.Failures)

	assert.Equal(t, "Dear Jane Doe, your address is 12 Main St.\nDated 7", filledText)

	n, err := pdf.PageCount(summary.Outputs[0])
	require.NoError(t, err)
	assert.Equal(t, 2, n, "封面在前，正文在后")
}

// inspectingConverter 转换前读取已填充文档的文本
type inspectingConverter struct {
	inner domain.Converter
	text  *string
}

func (c *inspectingConverter) Name() string { return "inspecting" }

func (c *inspectingConverter) Convert(ctx context.Context, documentPath, outputDir string) (string, error) {
	text, err := docx.NewXMLProcessor(documentPath, docx.ModeAuto).ExtractTextContent()
	if err != nil {
		return "", err
	}
	*c.text = text
	return c.inner.Convert(ctx, documentPath, outputDir)
}
