package importer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func createTestXLSX(t *testing.T, sheets map[string][][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				row.AddCell().SetString(cellData)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "candidates.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadCSV_MapsAliases(t *testing.T) {
	data := "First Name,Last Name,Work Email,LinkedIn URL,Job Title,Company,Skills,Years of Experience,GitHub,Notes\n" +
		"Jane,Doe,jane@acme.com,linkedin.com/in/janedoe,Engineer,Acme,\"Go; SQL|Rust\",7,github.com/jd,ignored\n"

	got, err := ReadCSV(context.Background(), strings.NewReader(data), Options{Source: "referral", JobID: "job-1"})
	require.NoError(t, err)
	require.Len(t, got, 1)

	in := got[0]
	assert.Equal(t, "Jane", in.FirstName)
	assert.Equal(t, "Doe", in.LastName)
	assert.Equal(t, "jane@acme.com", in.Email)
	assert.Equal(t, "linkedin.com/in/janedoe", in.LinkedInURL)
	assert.Equal(t, "Engineer", in.CurrentTitle)
	assert.Equal(t, "Acme", in.CurrentCompany)
	assert.Equal(t, []string{"Go", "SQL", "Rust"}, in.Skills)
	assert.Equal(t, 7, in.ExperienceYears)
	assert.Equal(t, "referral", in.Source)
	assert.Equal(t, "job-1", in.JobID)
	v, ok := in.SocialProfiles.Get("github")
	assert.True(t, ok)
	assert.Equal(t, "github.com/jd", v)
}

func TestReadCSV_FullNameAndOverrides(t *testing.T) {
	data := "name,email,source,job_id,score\n" +
		"Mary Ann Smith,mary@x.com,sourcer,job-9,88\n" +
		",,,,\n" +
		"Solo,solo@x.com,,,abc\n"

	got, err := ReadCSV(context.Background(), strings.NewReader(data), Options{Source: "csv"})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "Mary", got[0].FirstName)
	assert.Equal(t, "Ann Smith", got[0].LastName)
	assert.Equal(t, "sourcer", got[0].Source)
	assert.Equal(t, "job-9", got[0].JobID)
	require.NotNil(t, got[0].AIScore)
	assert.Equal(t, 88, *got[0].AIScore)

	assert.Equal(t, "Solo", got[1].FirstName)
	assert.Empty(t, got[1].LastName)
	assert.Equal(t, "csv", got[1].Source)
	assert.Nil(t, got[1].AIScore)
}

func TestReadCSV_ShortRowsAndDelimiter(t *testing.T) {
	data := "email\tfirst_name\tcompany\nbob@x.com\tBob\n"
	got, err := ReadCSV(context.Background(), strings.NewReader(data), Options{Delimiter: '\t'})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "bob@x.com", got[0].Email)
	assert.Equal(t, "Bob", got[0].FirstName)
	assert.Empty(t, got[0].CurrentCompany)
}

func TestReadCSV_Errors(t *testing.T) {
	_, err := ReadCSV(context.Background(), strings.NewReader(""), Options{})
	assert.Error(t, err)

	_, err = ReadCSV(context.Background(), strings.NewReader("foo,bar\n1,2\n"), Options{})
	assert.ErrorIs(t, err, ErrNoColumns)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ReadCSV(ctx, strings.NewReader("email\na@x.com\n"), Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadXLSX(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Candidates": {
			{"Email", "First", "Last", "Current Company"},
			{"ann@x.com", "Ann", "Lee", "Globex"},
			{"", "", "", ""},
			{"ben@x.com", "Ben", "Ray", "Initech"},
		},
	})

	got, err := ReadXLSX(context.Background(), path, Options{Source: "xlsx"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "ann@x.com", got[0].Email)
	assert.Equal(t, "Globex", got[0].CurrentCompany)
	assert.Equal(t, "Ben", got[1].FirstName)
	assert.Equal(t, "xlsx", got[1].Source)
}

func TestReadXLSX_SheetName(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Other": {{"email"}, {"other@x.com"}},
		"Leads": {{"email"}, {"lead@x.com"}},
	})

	got, err := ReadXLSX(context.Background(), path, Options{SheetName: "Leads"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "lead@x.com", got[0].Email)

	_, err = ReadXLSX(context.Background(), path, Options{SheetName: "Missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "in.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("email\na@x.com\n"), 0o600))
	tsvPath := filepath.Join(dir, "in.tsv")
	require.NoError(t, os.WriteFile(tsvPath, []byte("email\tfirst_name\nb@x.com\tBea\n"), 0o600))

	got, err := ReadFile(context.Background(), csvPath, Options{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a@x.com", got[0].Email)

	got, err = ReadFile(context.Background(), tsvPath, Options{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Bea", got[0].FirstName)

	xlsxPath := createTestXLSX(t, map[string][][]string{"Sheet1": {{"email"}, {"c@x.com"}}})
	got, err = ReadFile(context.Background(), xlsxPath, Options{})
	require.NoError(t, err)
	require.Len(t, got, 1)

	_, err = ReadFile(context.Background(), filepath.Join(dir, "in.json"), Options{})
	assert.Error(t, err)

	_, err = ReadFile(context.Background(), filepath.Join(dir, "missing.csv"), Options{})
	assert.Error(t, err)
}

func TestNormalizeHeader(t *testing.T) {
	assert.Equal(t, "first_name", normalizeHeader("\ufeffFirst Name "))
	assert.Equal(t, "e_mail", normalizeHeader("E-Mail"))
	assert.Equal(t, "linkedin_url", normalizeHeader("LinkedIn.URL"))
}
