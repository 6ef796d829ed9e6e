package catalogue

import (
	"fmt"
	"sort"
	"strings"
)

type ColumnRecord struct {
	Description    string `json:"description"`
	IsFreeText     bool   `json:"is_free_text"`
	IsIdentifiable bool   `json:"is_identifiable"`
	IsClientId     bool   `json:"is_client_id"`
	IsDateTime     bool   `json:"is_date_time"`
	IsDate         bool   `json:"is_date"`
	IsNullable     bool   `json:"is_nullable"`
	DataType       string `json:"data_type"`
}

type TableRecord struct {
	TableDescription    string                  `json:"table_description"`
	NumberOfRows        int64                   `json:"number_of_rows"`
	TableClassification string                  `json:"table_classification"`
	PrimaryKeys         []string                `json:"primary_keys"`
	Columns             map[string]ColumnRecord `json:"columns"`
}

// RawTable is the shape of one entry in the catalogue artifact produced by
// the ingestion pipeline. Column sensitivity flags arrive as name lists and
// are folded into per column booleans during indexing.
type RawTable struct {
	TableDescription         string            `json:"table_description"`
	ColumnDescriptions       map[string]string `json:"columns_descriptions"`
	FreeTextColumns          []string          `json:"free_text_columns"`
	OtherIdentifiableColumns []string          `json:"other_identifiable_columns"`
	ClientIdColumns          []string          `json:"client_id"`
	DateTimeColumns          []string          `json:"date_time"`
	DateOfBirthColumns       []string          `json:"date_of_birth"`
}

type SqlColumn struct {
	IsNullable string `json:"is_nullable"`
	DataType   string `json:"data_type"`
}

type SqlTable struct {
	Columns map[string]SqlColumn `json:"columns"`
}

const classificationNotImported = "not-imported"

// Index holds the enriched catalogue and a flattened lowercase search string
// per table. Both are built once at startup and never mutated; refreshing the
// source artifacts requires a full rebuild.
type Index struct {
	catalogue map[string]TableRecord
	search    map[string]string
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// BuildIndex combines the five per table artifacts into catalogue records.
// Tables classified as not-imported are dropped entirely. A table present in
// the catalogue but absent from any of the other artifacts is a fatal error
// since the artifacts are produced together and must agree.
func BuildIndex(
	tables map[string]RawTable,
	rowCounts map[string]int64,
	classification map[string]string,
	primaryKeys map[string][]string,
	sqlStructure map[string]SqlTable,
) (*Index, error) {
	index := &Index{
		catalogue: make(map[string]TableRecord, len(tables)),
		search:    make(map[string]string, len(tables)),
	}

	for tableName, raw := range tables {
		class, ok := classification[tableName]
		if !ok {
			return nil, fmt.Errorf("table %v is missing from the classification artifact", tableName)
		}
		if class == classificationNotImported {
			continue
		}

		rows, ok := rowCounts[tableName]
		if !ok {
			return nil, fmt.Errorf("table %v is missing from the row count artifact", tableName)
		}

		sqlTable, ok := sqlStructure[tableName]
		if !ok {
			return nil, fmt.Errorf("table %v is missing from the sql structure artifact", tableName)
		}

		record := TableRecord{
			TableDescription:    raw.TableDescription,
			NumberOfRows:        rows,
			TableClassification: class,
			Columns:             make(map[string]ColumnRecord, len(raw.ColumnDescriptions)),
		}
		if keys, ok := primaryKeys[tableName]; ok {
			record.PrimaryKeys = keys
		}

		columnNames := make([]string, 0, len(raw.ColumnDescriptions))
		for columnName := range raw.ColumnDescriptions {
			columnNames = append(columnNames, columnName)
		}
		sort.Strings(columnNames)

		searchStrings := []string{strings.ToLower(tableName)}
		for _, columnName := range columnNames {
			description := raw.ColumnDescriptions[columnName]
			searchStrings = append(searchStrings, strings.ToLower(columnName), strings.ToLower(description))

			sqlColumn, ok := sqlTable.Columns[columnName]
			if !ok {
				return nil, fmt.Errorf("column %v of table %v is missing from the sql structure artifact", columnName, tableName)
			}

			record.Columns[columnName] = ColumnRecord{
				Description:    description,
				IsFreeText:     contains(raw.FreeTextColumns, columnName),
				IsIdentifiable: contains(raw.OtherIdentifiableColumns, columnName),
				IsClientId:     contains(raw.ClientIdColumns, columnName),
				IsDateTime:     contains(raw.DateTimeColumns, columnName),
				IsDate:         contains(raw.DateOfBirthColumns, columnName),
				IsNullable:     sqlColumn.IsNullable == "YES",
				DataType:       sqlColumn.DataType,
			}
		}

		index.catalogue[tableName] = record
		index.search[tableName] = strings.Join(searchStrings, "|")
	}

	return index, nil
}

// copyRecord clones a record including its column map so callers cannot
// mutate the index through a result.
func (index *Index) copyRecord(tableName string) TableRecord {
	record := index.catalogue[tableName]
	columns := make(map[string]ColumnRecord, len(record.Columns))
	for columnName, column := range record.Columns {
		columns[columnName] = column
	}
	record.Columns = columns
	return record
}

// Search returns the catalogue entries whose search string contains the query
// as a case insensitive substring. An empty query returns the full catalogue.
func (index *Index) Search(query string) map[string]TableRecord {
	results := make(map[string]TableRecord)

	if query == "" {
		for tableName := range index.catalogue {
			results[tableName] = index.copyRecord(tableName)
		}
		return results
	}

	queryLower := strings.ToLower(query)
	for tableName, searchString := range index.search {
		if strings.Contains(searchString, queryLower) {
			results[tableName] = index.copyRecord(tableName)
		}
	}
	return results
}

func (index *Index) NumTables() int {
	return len(index.catalogue)
}
