package catalogue

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"dar_platform/dar_backend/storage"
)

// Manifest names the artifact files, relative to the storage root, that the
// ingestion pipeline wrote for the current catalogue build.
type Manifest struct {
	Catalogue           string `yaml:"catalogue"`
	RowCounts           string `yaml:"row_counts"`
	TableClassification string `yaml:"table_classification"`
	PrimaryKeys         string `yaml:"primary_keys"`
	SqlStructure        string `yaml:"sql_structure"`
}

func LoadManifest(store storage.Storage, path string) (Manifest, error) {
	file, err := store.Read(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("error opening catalogue manifest: %w", err)
	}
	defer file.Close()

	var manifest Manifest
	if err := yaml.NewDecoder(file).Decode(&manifest); err != nil {
		return Manifest{}, fmt.Errorf("error parsing catalogue manifest %v: %w", path, err)
	}

	if manifest.Catalogue == "" || manifest.RowCounts == "" || manifest.TableClassification == "" || manifest.SqlStructure == "" {
		return Manifest{}, fmt.Errorf("catalogue manifest %v does not name all required artifacts", path)
	}

	return manifest, nil
}

func loadJsonArtifact(store storage.Storage, path string, dest interface{}) error {
	file, err := store.Read(path)
	if err != nil {
		return fmt.Errorf("error opening catalogue artifact: %w", err)
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(dest); err != nil {
		return fmt.Errorf("error parsing catalogue artifact %v: %w", path, err)
	}
	return nil
}

// LoadIndex reads the artifacts named by the manifest and builds the index.
func LoadIndex(store storage.Storage, manifest Manifest) (*Index, error) {
	var tables map[string]RawTable
	if err := loadJsonArtifact(store, manifest.Catalogue, &tables); err != nil {
		return nil, err
	}

	var rowCounts map[string]int64
	if err := loadJsonArtifact(store, manifest.RowCounts, &rowCounts); err != nil {
		return nil, err
	}

	var classification map[string]string
	if err := loadJsonArtifact(store, manifest.TableClassification, &classification); err != nil {
		return nil, err
	}

	primaryKeys := map[string][]string{}
	if manifest.PrimaryKeys != "" {
		if err := loadJsonArtifact(store, manifest.PrimaryKeys, &primaryKeys); err != nil {
			return nil, err
		}
	}

	var sqlStructure map[string]SqlTable
	if err := loadJsonArtifact(store, manifest.SqlStructure, &sqlStructure); err != nil {
		return nil, err
	}

	index, err := BuildIndex(tables, rowCounts, classification, primaryKeys, sqlStructure)
	if err != nil {
		return nil, err
	}

	slog.Info("catalogue index built", "tables", index.NumTables(), "location", store.Location())

	return index, nil
}
