package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/model"
)

func batch() *model.BatchResult {
	var ranked model.Drafts
	ranked.Set(model.DraftVariant{Key: "a", Subject: "A", Body: "a body", Ranking: &model.RankingAnnotation{RankScore: 3.1}})
	ranked.Set(model.DraftVariant{Key: "b", Subject: "B", Body: "b \"quoted\", body", Ranking: &model.RankingAnnotation{RankScore: 4.2, IsTopPick: true}})
	ranked.Set(model.DraftVariant{Key: "c", Subject: "C", Body: "c body", Ranking: &model.RankingAnnotation{RankScore: 3.5}})

	var plain model.Drafts
	for _, k := range []string{"v1", "v2", "v3", "v4", "v5"} {
		plain.Set(model.DraftVariant{Key: k, Subject: "S " + k, Body: "B " + k})
	}

	return &model.BatchResult{
		ID: "batch-1",
		Results: []model.CompanyResult{
			{Company: model.NewCompanyRecord(0, "회사명", "Acme", "대표이메일", "a@acme.io"), Drafts: ranked},
			{Company: model.NewCompanyRecord(1, "회사명", "Globex", "업종", "retail"), Drafts: plain},
			model.FailedCompany(model.NewCompanyRecord(2, "회사명", "Initech"), model.NewFailure(model.ErrService, model.StageDraft, "x")),
		},
	}
}

func TestTable(t *testing.T) {
	header, rows := Table(batch())

	assert.Equal(t, []string{"회사명", "대표이메일", "업종",
		"메일문안1_제목", "메일문안1_본문", "메일문안2_제목", "메일문안2_본문",
		"메일문안3_제목", "메일문안3_본문", "메일문안4_제목", "메일문안4_본문"}, header)
	require.Len(t, rows, 3)

	// Ranked: top pick first, then by score.
	assert.Equal(t, []string{"Acme", "a@acme.io", "", "B", "b \"quoted\", body", "C", "c body", "A", "a body", "", ""}, rows[0])
	// Unranked: insertion order, capped at four.
	assert.Equal(t, "", rows[1][1])
	assert.Equal(t, "retail", rows[1][2])
	assert.Equal(t, "S v1", rows[1][3])
	assert.Equal(t, "B v4", rows[1][10])
	// Failed: empty draft columns.
	assert.Equal(t, "Initech", rows[2][0])
	for _, v := range rows[2][3:] {
		assert.Empty(t, v)
	}
}

func TestWriteCSV_RoundTrips(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, batch()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, "b \"quoted\", body", records[1][4])
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, batch()))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)
	sheet := f.Sheets[0]
	require.Len(t, sheet.Rows, 4)
	assert.Equal(t, "회사명", sheet.Rows[0].Cells[0].String())
	assert.Equal(t, "B", sheet.Rows[1].Cells[3].String())
}

func TestWrite_UnknownFormat(t *testing.T) {
	assert.ErrorContains(t, Write(io.Discard, batch(), "pdf"), "unknown format")
	assert.Equal(t, "text/csv; charset=utf-8", ContentType(FormatCSV))
}

type fakeS3 struct {
	in   *s3.PutObjectInput
	body []byte
	err  error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.in = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestUploader(t *testing.T) {
	fake := &fakeS3{}
	key, err := NewUploader(fake, "outreach-exports", "batches").Upload(context.Background(), batch(), FormatCSV)
	require.NoError(t, err)

	assert.Equal(t, "batches/batch-1.csv", key)
	assert.Equal(t, "outreach-exports", *fake.in.Bucket)
	assert.Equal(t, "text/csv; charset=utf-8", *fake.in.ContentType)
	assert.Contains(t, string(fake.body), "메일문안1_제목")
}

func TestUploader_Error(t *testing.T) {
	_, err := NewUploader(&fakeS3{err: errors.New("denied")}, "b", "").Upload(context.Background(), batch(), FormatXLSX)
	assert.ErrorContains(t, err, "export: put s3://b/batch-1.xlsx")
}

func TestNewS3Uploader_NoBucket(t *testing.T) {
	u, err := NewS3Uploader(context.Background(), config.ExportConfig{})
	require.NoError(t, err)
	assert.Nil(t, u)
}
