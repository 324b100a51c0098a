package schemaidl

import (
	"encoding/json"
	"fmt"
	"os"
)

// jsonSchema and jsonColumn mirror DatabaseSchema/ColumnDef as an
// ordered, on-disk JSON document — DatabaseSchema.Tables is a map and
// loses column order, so the file format keeps columns as a list.
type jsonSchema struct {
	Name   string                  `json:"name"`
	Tables map[string][]jsonColumn `json:"tables"`
}

type jsonColumn struct {
	Name             string  `json:"name"`
	Type             string  `json:"type"`
	Nullable         bool    `json:"nullable,omitempty"`
	Indexed          bool    `json:"indexed,omitempty"`
	PrimaryKey       bool    `json:"primary_key,omitempty"`
	EncryptedFieldID *uint32 `json:"encrypted_field_id,omitempty"`
	Default          any     `json:"default,omitempty"`
}

// LoadFromFile reads a JSON schema document, in the shape the
// recordb CLI's --schema flag expects, and builds a DatabaseSchema.
func LoadFromFile(path string) (*DatabaseSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schemaidl: reading %q: %w", path, err)
	}

	var doc jsonSchema
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("schemaidl: parsing %q: %w", path, err)
	}

	schema := NewDatabaseSchema(doc.Name)
	for tableName, cols := range doc.Tables {
		def := TableDef{Name: tableName}
		for _, c := range cols {
			col := ColumnDef{
				Name:             c.Name,
				Type:             ValueType(c.Type),
				Nullable:         c.Nullable,
				Indexed:          c.Indexed,
				PrimaryKey:       c.PrimaryKey,
				EncryptedFieldID: c.EncryptedFieldID,
				Default:          c.Default,
			}
			def.Columns = append(def.Columns, col)
			if col.PrimaryKey {
				def.PrimaryKeyColumns = append(def.PrimaryKeyColumns, col.Name)
			}
		}
		if err := schema.AddTable(def); err != nil {
			return nil, err
		}
	}
	return schema, nil
}
