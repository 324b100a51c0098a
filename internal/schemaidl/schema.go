// Package schemaidl provides the data-model contract the schema IDL
// parser produces. The IDL's concrete syntax is an external
// collaborator out of scope for this module; this package only
// carries the contract types (DatabaseSchema, TableDef, ColumnDef)
// plus LoadFromFile, a JSON schema loader used by the CLI wrapper.
// It has no parser for the IDL's column attribute vocabulary.
package schemaidl

import "fmt"

// ValueType enumerates the scalar widths and blob types a column can
// hold, one per rindex.Value tag.
type ValueType string

const (
	TypeBool    ValueType = "bool"
	TypeInt8    ValueType = "int8"
	TypeInt16   ValueType = "int16"
	TypeInt32   ValueType = "int32"
	TypeInt64   ValueType = "int64"
	TypeUint8   ValueType = "uint8"
	TypeUint16  ValueType = "uint16"
	TypeUint32  ValueType = "uint32"
	TypeUint64  ValueType = "uint64"
	TypeFloat32 ValueType = "float32"
	TypeFloat64 ValueType = "float64"
	TypeString  ValueType = "string"
	TypeBytes   ValueType = "bytes"
)

// ColumnDef is {name, type, nullable, indexed, primary_key, optional
// encrypted_field_id, optional default}. PrimaryKey implies Indexed
// and implies unique; Indexed alone permits duplicates.
type ColumnDef struct {
	Name             string
	Type             ValueType
	Nullable         bool
	Indexed          bool
	PrimaryKey       bool
	EncryptedFieldID *uint32
	Default          any
}

// Encrypted reports whether this column carries an encrypted-field
// id, i.e. whether the query bridge must decrypt it after caching a
// row.
func (c ColumnDef) Encrypted() bool {
	return c.EncryptedFieldID != nil
}

// Unique reports whether the column forbids duplicate keys. Primary
// keys imply uniqueness; non-primary indexed columns tolerate
// duplicates.
func (c ColumnDef) Unique() bool {
	return c.PrimaryKey
}

// TableDef is {name, ordered columns, primary_key_columns}. Column
// lookup by name is O(#cols); case-sensitive.
type TableDef struct {
	Name              string
	Columns           []ColumnDef
	PrimaryKeyColumns []string
}

// Column looks up a column by exact, case-sensitive name.
func (t TableDef) Column(name string) (ColumnDef, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnDef{}, false
}

// ColumnIndex returns the ordinal position of a column by name, or -1.
func (t TableDef) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// DatabaseSchema is {name, set of TableDef (names unique)}.
type DatabaseSchema struct {
	Name   string
	Tables map[string]TableDef
}

// NewDatabaseSchema creates an empty schema.
func NewDatabaseSchema(name string) *DatabaseSchema {
	return &DatabaseSchema{Name: name, Tables: make(map[string]TableDef)}
}

// AddTable registers a table definition, rejecting a duplicate name.
func (s *DatabaseSchema) AddTable(t TableDef) error {
	if _, exists := s.Tables[t.Name]; exists {
		return fmt.Errorf("schemaidl: table %q already defined in schema %q", t.Name, s.Name)
	}
	s.Tables[t.Name] = t
	return nil
}
