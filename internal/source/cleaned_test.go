package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTempCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadCleanedSheet(t *testing.T) {
	csvData := "Parcel ID,Property Address,Full Name,Land Value\n" +
		"141/005/072,224 Oak Avenue,SMITH JOHN,45000\n" +
		"142/001/001,10 Main Street,DOE JANE,\n"

	set, err := ReadCleanedSheet(writeTempCSV(t, "cleaned.csv", csvData))
	require.NoError(t, err)
	require.Len(t, set.Records, 2)
	require.Equal(t, 0, set.Skipped)

	first := set.Records[0]
	require.Equal(t, CleanedSheet, first.Kind)
	require.Equal(t, 0, first.Row)
	require.Equal(t, "141/5/72", first.Key.String())
	require.Equal(t, "224 OAK AVE", first.Address)
	require.Equal(t, "SMITH JOHN", first.Fields[FieldOwnerName])
	require.Equal(t, "45000", first.Fields[FieldLandValue])

	// Row order is preserved for the positional fallback.
	require.Equal(t, 1, set.Records[1].Row)
}

func TestReadCleanedSheetSkipsTrackingRow(t *testing.T) {
	csvData := "Parcel ID,Property Address,Full Name\n" +
		",,replaced by clerk 2024\n" +
		"141/005/072,224 Oak Avenue,SMITH JOHN\n"

	set, err := ReadCleanedSheet(writeTempCSV(t, "cleaned.csv", csvData))
	require.NoError(t, err)
	require.Equal(t, 1, set.Skipped)
	require.Len(t, set.Records, 1)
	require.Equal(t, "SMITH JOHN", set.Records[0].Fields[FieldOwnerName])
}

// The tracking-row heuristic applies only to the first physical data
// row. A malformed first row still advances the position, so a marker
// phrase further down stays data.
func TestReadCleanedSheetTrackingHeuristicFirstRowOnly(t *testing.T) {
	csvData := "Parcel ID,Property Address,Full Name\n" +
		"141/005/072,\"224 Oak\" Avenue,SMITH JOHN\n" +
		",,replaced by clerk 2024\n" +
		"142/001/001,10 Main Street,DOE JANE\n"

	set, err := ReadCleanedSheet(writeTempCSV(t, "cleaned.csv", csvData))
	require.NoError(t, err)
	require.Equal(t, 1, set.Malformed)
	require.Equal(t, 0, set.Skipped)
	require.Len(t, set.Records, 2)
	require.Equal(t, "replaced by clerk 2024", set.Records[0].Fields[FieldOwnerName])
	require.Equal(t, "DOE JANE", set.Records[1].Fields[FieldOwnerName])
}

func TestReadCleanedSheetEmpty(t *testing.T) {
	// Zero data rows is a valid, empty sheet, not an error.
	set, err := ReadCleanedSheet(writeTempCSV(t, "cleaned.csv", "Parcel ID,Property Address,Full Name\n"))
	require.NoError(t, err)
	require.Empty(t, set.Records)
}

func TestReadCleanedSheetMissingColumn(t *testing.T) {
	_, err := ReadCleanedSheet(writeTempCSV(t, "cleaned.csv", "Parcel ID,Somewhere\n1/2/3,x\n"))
	require.ErrorIs(t, err, ErrSourceUnreadable)
}

func TestReadCleanedSheetMissingFile(t *testing.T) {
	_, err := ReadCleanedSheet(filepath.Join(t.TempDir(), "nope.csv"))
	require.ErrorIs(t, err, ErrSourceUnreadable)
}

func TestColumnMapResolve(t *testing.T) {
	cm := ColumnMap{
		Required: map[string]string{FieldParcelID: "Parcel ID"},
		Optional: map[string]string{FieldLandValue: "Land Value"},
	}

	// Header matching tolerates case and underscore drift.
	cols, err := cm.Resolve([]string{"PARCEL_ID", "land value"})
	require.NoError(t, err)
	require.Equal(t, 0, cols[FieldParcelID])
	require.Equal(t, 1, cols[FieldLandValue])

	// Missing optional column is skipped.
	cols, err = cm.Resolve([]string{"Parcel ID"})
	require.NoError(t, err)
	_, ok := cols[FieldLandValue]
	require.False(t, ok)

	// Missing required column fails fast with a diagnostic.
	_, err = cm.Resolve([]string{"Land Value"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "Parcel ID")
}
