package normalize

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/fetcher"
	"github.com/sells-group/outreach-cli/internal/model"
)

func TestRead_DropsWhitespaceOnlyCompanyName(t *testing.T) {
	input := "companyName,contactName\nAcme,Kim\n\"  \",Lee\nBeta,Park\n"

	recs, err := Read(context.Background(), strings.NewReader(input), fetcher.ReadOptions{})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "Acme", recs[0].Name())
	assert.Equal(t, "Beta", recs[1].Name())
	assert.Equal(t, 1, recs[1].Index)
	for _, r := range recs {
		assert.NotEqual(t, "Lee", r.Get(model.ColContactName))
	}
}

func TestRead_StrayQuoteKeepsRow(t *testing.T) {
	input := "companyName,contactName\nAcme \"Best\" Inc,Kim\nBeta,Lee\n"

	recs, err := Read(context.Background(), strings.NewReader(input), fetcher.ReadOptions{})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, `Acme "Best" Inc`, recs[0].Name())
	assert.Equal(t, "Kim", recs[0].Get(model.ColContactName))
	assert.Equal(t, "Beta", recs[1].Name())
}

func TestRead_MissingAndExtraCells(t *testing.T) {
	input := "companyName,email,industry\nAcme\nBeta,b@beta.io,fintech,EXTRA\n"

	recs, err := Read(context.Background(), strings.NewReader(input), fetcher.ReadOptions{})
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "", recs[0].Get(model.ColEmail))
	assert.Equal(t, "", recs[0].Get(model.ColIndustry))
	assert.Equal(t, []string{"companyName", "email", "industry"}, recs[1].Keys())
	assert.Equal(t, "fintech", recs[1].Get("industry"))
}

func TestRead_KoreanHeadersTab(t *testing.T) {
	input := "회사명\t대표자명\t대표이메일\n포트원\t김대표\tceo@portone.io\n"

	recs, err := Read(context.Background(), strings.NewReader(input), fetcher.ReadOptions{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "포트원", recs[0].Name())
	assert.Equal(t, "김대표", recs[0].Get(model.ColContactName))
	assert.Equal(t, "ceo@portone.io", recs[0].Get(model.ColEmail))
}

func TestRecords_NoCompanyColumn(t *testing.T) {
	_, err := Records(&fetcher.Table{Header: []string{"name", "email"}})
	require.Error(t, err)

	var f *model.Failure
	require.True(t, errors.As(err, &f))
	assert.Equal(t, model.ErrValidation, f.Kind)

	_, err = Records(&fetcher.Table{})
	require.Error(t, err)
}

func TestFromMaps(t *testing.T) {
	in := []model.CompanyRecord{
		model.NewCompanyRecord(0, "companyName", "Acme"),
		model.NewCompanyRecord(1, "companyName", " "),
		model.NewCompanyRecord(2, "회사명", "포트원"),
	}
	out := FromMaps(in)
	require.Len(t, out, 2)
	assert.Equal(t, 1, out[1].Index)
	assert.Equal(t, "포트원", out[1].Name())
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.csv")
	require.NoError(t, os.WriteFile(path, []byte("company,website\nAcme,https://acme.io\n,\n"), 0o644))

	recs, err := ReadFile(context.Background(), path, fetcher.ReadOptions{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "https://acme.io", recs[0].Get(model.ColWebsite))
}
