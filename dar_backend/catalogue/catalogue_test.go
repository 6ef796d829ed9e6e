package catalogue_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"dar_platform/dar_backend/catalogue"
)

func testArtifacts() (map[string]catalogue.RawTable, map[string]int64, map[string]string, map[string][]string, map[string]catalogue.SqlTable) {
	tables := map[string]catalogue.RawTable{
		"Admissions": {
			TableDescription: "Hospital admission episodes",
			ColumnDescriptions: map[string]string{
				"AdmissionId": "Unique admission identifier",
				"ClientRef":   "Reference to the admitted client",
				"Notes":       "Free text clinical notes",
			},
			FreeTextColumns:          []string{"Notes"},
			OtherIdentifiableColumns: []string{"ClientRef"},
			ClientIdColumns:          []string{"ClientRef"},
			DateTimeColumns:          []string{},
			DateOfBirthColumns:       []string{},
		},
		"Demographics": {
			TableDescription: "Client demographic details",
			ColumnDescriptions: map[string]string{
				"ClientRef": "Reference to the client",
				"BirthDate": "Date of birth",
			},
			FreeTextColumns:          []string{},
			OtherIdentifiableColumns: []string{},
			ClientIdColumns:          []string{"ClientRef"},
			DateTimeColumns:          []string{},
			DateOfBirthColumns:       []string{"BirthDate"},
		},
		"StagingScratch": {
			TableDescription:   "Pipeline scratch space",
			ColumnDescriptions: map[string]string{"Junk": "Unused"},
		},
	}

	rowCounts := map[string]int64{"Admissions": 120000, "Demographics": 45000, "StagingScratch": 3}

	classification := map[string]string{
		"Admissions":     "identifiable",
		"Demographics":   "identifiable",
		"StagingScratch": "not-imported",
	}

	primaryKeys := map[string][]string{"Admissions": {"AdmissionId"}}

	sqlStructure := map[string]catalogue.SqlTable{
		"Admissions": {Columns: map[string]catalogue.SqlColumn{
			"AdmissionId": {IsNullable: "NO", DataType: "bigint"},
			"ClientRef":   {IsNullable: "NO", DataType: "varchar"},
			"Notes":       {IsNullable: "YES", DataType: "text"},
		}},
		"Demographics": {Columns: map[string]catalogue.SqlColumn{
			"ClientRef": {IsNullable: "NO", DataType: "varchar"},
			"BirthDate": {IsNullable: "YES", DataType: "date"},
		}},
		"StagingScratch": {Columns: map[string]catalogue.SqlColumn{
			"Junk": {IsNullable: "YES", DataType: "text"},
		}},
	}

	return tables, rowCounts, classification, primaryKeys, sqlStructure
}

func TestBuildIndex(t *testing.T) {
	index, err := catalogue.BuildIndex(testArtifacts())
	assert.NoError(t, err)

	full := index.Search("")
	assert.Len(t, full, 2)
	assert.NotContains(t, full, "StagingScratch")

	admissions := full["Admissions"]
	assert.Equal(t, "Hospital admission episodes", admissions.TableDescription)
	assert.Equal(t, int64(120000), admissions.NumberOfRows)
	assert.Equal(t, "identifiable", admissions.TableClassification)
	assert.Equal(t, []string{"AdmissionId"}, admissions.PrimaryKeys)

	notes := admissions.Columns["Notes"]
	assert.True(t, notes.IsFreeText)
	assert.False(t, notes.IsClientId)
	assert.True(t, notes.IsNullable)
	assert.Equal(t, "text", notes.DataType)

	clientRef := admissions.Columns["ClientRef"]
	assert.True(t, clientRef.IsIdentifiable)
	assert.True(t, clientRef.IsClientId)
	assert.False(t, clientRef.IsNullable)

	demographics := full["Demographics"]
	assert.Nil(t, demographics.PrimaryKeys)
	assert.True(t, demographics.Columns["BirthDate"].IsDate)
}

func TestBuildIndexMissingArtifactEntries(t *testing.T) {
	tables, rowCounts, classification, primaryKeys, sqlStructure := testArtifacts()

	delete(rowCounts, "Admissions")
	_, err := catalogue.BuildIndex(tables, rowCounts, classification, primaryKeys, sqlStructure)
	assert.ErrorContains(t, err, "row count")

	tables, rowCounts, classification, primaryKeys, sqlStructure = testArtifacts()
	delete(classification, "Demographics")
	_, err = catalogue.BuildIndex(tables, rowCounts, classification, primaryKeys, sqlStructure)
	assert.ErrorContains(t, err, "classification")

	tables, rowCounts, classification, primaryKeys, sqlStructure = testArtifacts()
	delete(sqlStructure["Admissions"].Columns, "Notes")
	_, err = catalogue.BuildIndex(tables, rowCounts, classification, primaryKeys, sqlStructure)
	assert.ErrorContains(t, err, "sql structure")
}

func TestSearch(t *testing.T) {
	index, err := catalogue.BuildIndex(testArtifacts())
	assert.NoError(t, err)

	// Matches a column description, case insensitive.
	results := index.Search("CLINICAL notes")
	assert.Len(t, results, 1)
	assert.Contains(t, results, "Admissions")

	// Matches a column name shared by both tables.
	results = index.Search("clientref")
	assert.Len(t, results, 2)

	// Matches a table name.
	results = index.Search("demograph")
	assert.Len(t, results, 1)
	assert.Contains(t, results, "Demographics")

	results = index.Search("no such thing anywhere")
	assert.Empty(t, results)

	// Repeated identical queries return equal results.
	assert.Equal(t, index.Search("clientref"), index.Search("clientref"))

	// Results are copies, mutating one must not affect the index.
	full := index.Search("")
	delete(full, "Admissions")
	assert.Len(t, index.Search(""), 2)

	// The column maps are copies too.
	full = index.Search("")
	delete(full["Admissions"].Columns, "Notes")
	full["Demographics"].Columns["BirthDate"] = catalogue.ColumnRecord{}
	assert.Contains(t, index.Search("")["Admissions"].Columns, "Notes")
	assert.True(t, index.Search("")["Demographics"].Columns["BirthDate"].IsDate)
}
