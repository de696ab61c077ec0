package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"gym-snapshot/internal/catalog"
)

// Scope is the extent of a snapshot. The values are part of the file format.
type Scope string

const (
	ScopeFull      Scope = "completo"
	ScopeSelective Scope = "seletivo"
)

// TimestampFormat is the ISO-8601 layout written to the timestamp field.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// Record is one row of an entity set, keyed by column name. The engine only
// looks at the tenant key; everything else is carried through untouched.
type Record map[string]interface{}

// Document is a self-describing export of some or all entity sets.
// Tables always lists exactly the keys of Data.
type Document struct {
	Timestamp time.Time           `json:"timestamp"`
	Scope     Scope               `json:"tipo"`
	TenantID  *string             `json:"clienteId"`
	Tables    []string            `json:"tabelas"`
	Data      map[string][]Record `json:"data"`
}

type documentJSON struct {
	Timestamp string              `json:"timestamp"`
	Scope     Scope               `json:"tipo"`
	TenantID  *string             `json:"clienteId"`
	Tables    []string            `json:"tabelas"`
	Data      map[string][]Record `json:"data"`
}

// MarshalJSON writes the document in the portable snapshot format.
func (d *Document) MarshalJSON() ([]byte, error) {
	out := documentJSON{
		Timestamp: d.Timestamp.UTC().Format(TimestampFormat),
		Scope:     d.Scope,
		TenantID:  d.TenantID,
		Tables:    d.Tables,
		Data:      make(map[string][]Record, len(d.Data)),
	}
	if out.Tables == nil {
		out.Tables = []string{}
	}
	for name, records := range d.Data {
		if records == nil {
			records = []Record{}
		}
		out.Data[name] = records
	}
	return json.Marshal(out)
}

// ToJSON returns the indented JSON encoding of the document.
func (d *Document) ToJSON() ([]byte, error) {
	raw, err := d.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ParseDocument decodes a snapshot document. Numbers are kept as json.Number
// so integer ids survive unchanged. A missing or non-object data field, or
// bytes that are not JSON at all, yield an InvalidFormat error.
func ParseDocument(data []byte) (*Document, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, NewInvalidFormatError("snapshot is not a JSON object", err)
	}

	rawData, ok := probe["data"]
	if !ok || len(bytes.TrimSpace(rawData)) == 0 || bytes.Equal(bytes.TrimSpace(rawData), []byte("null")) {
		return nil, NewInvalidFormatError("snapshot is missing the data field", nil)
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var in documentJSON
	if err := decoder.Decode(&in); err != nil {
		return nil, NewInvalidFormatError("snapshot does not match the document shape", err)
	}
	if in.Data == nil {
		return nil, NewInvalidFormatError("snapshot data field must be an object", nil)
	}

	doc := &Document{
		Scope:    in.Scope,
		TenantID: in.TenantID,
		Tables:   in.Tables,
		Data:     in.Data,
	}

	if in.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339Nano, in.Timestamp)
		if err != nil {
			return nil, NewInvalidFormatError("snapshot timestamp is not ISO-8601", err).WithContext("timestamp", in.Timestamp)
		}
		doc.Timestamp = ts.UTC()
	}

	if doc.Tables == nil {
		doc.Tables = doc.DataKeys()
	}

	return doc, nil
}

// DataKeys returns the entity set names present in Data, sorted.
func (d *Document) DataKeys() []string {
	keys := make([]string, 0, len(d.Data))
	for name := range d.Data {
		keys = append(keys, name)
	}
	sort.Strings(keys)
	return keys
}

// Includes reports whether the document carries the entity set.
func (d *Document) Includes(name string) bool {
	_, ok := d.Data[name]
	return ok
}

// RowCount returns the number of records across all entity sets.
func (d *Document) RowCount() int {
	total := 0
	for _, records := range d.Data {
		total += len(records)
	}
	return total
}

// Summary returns the number of records per included entity set.
func (d *Document) Summary() map[string]int {
	counts := make(map[string]int, len(d.Data))
	for name, records := range d.Data {
		counts[name] = len(records)
	}
	return counts
}

// Validate checks the document against the catalog before any store mutation.
func (d *Document) Validate(cat *catalog.Catalog) error {
	var errs ValidationErrors

	if d.Data == nil {
		return NewInvalidFormatError("snapshot is missing the data field", nil)
	}

	switch d.Scope {
	case ScopeFull, ScopeSelective, "":
	default:
		errs.Add("tipo", "must be completo or seletivo", string(d.Scope))
	}

	seen := make(map[string]bool, len(d.Tables))
	for _, name := range d.Tables {
		if seen[name] {
			errs.Add("tabelas", "duplicate entity set", name)
			continue
		}
		seen[name] = true
		if !d.Includes(name) {
			errs.Add("tabelas", "listed entity set is missing from data", name)
		}
	}
	for _, name := range d.DataKeys() {
		if !cat.Contains(name) {
			errs.Add("data", "unknown entity set", name)
			continue
		}
		if !seen[name] {
			errs.Add("data", "entity set is not listed in tabelas", name)
		}
	}

	if d.Scope == ScopeFull && len(errs) == 0 {
		for _, name := range cat.Names() {
			if !d.Includes(name) {
				errs.Add("data", "full snapshot is missing an entity set", name)
			}
		}
	}

	if d.Scope == ScopeSelective && d.TenantID != nil {
		d.validateTenantKeys(cat, &errs)
	}

	if errs.HasErrors() {
		return NewInvalidFormatError("snapshot document is inconsistent", errs)
	}
	return nil
}

// validateTenantKeys requires every record of a tenant-scoped set to carry
// the document's tenant id.
func (d *Document) validateTenantKeys(cat *catalog.Catalog, errs *ValidationErrors) {
	tenant := *d.TenantID
	for _, name := range d.DataKeys() {
		set, ok := cat.Lookup(name)
		if !ok || !set.TenantScoped {
			continue
		}
		field := "data." + name + "." + set.TenantKeyField
		for i, record := range d.Data[name] {
			value, present := record[set.TenantKeyField]
			if !present || value == nil {
				errs.Add(field, fmt.Sprintf("record %d is missing the tenant key of %s", i, tenant), record["id"])
				continue
			}
			if got := tenantKeyString(value); got != tenant {
				errs.Add(field, fmt.Sprintf("record %d belongs to tenant %s, not %s", i, got, tenant), record["id"])
			}
		}
	}
}

func tenantKeyString(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

// tenantLabel is used in names and logs.
func (d *Document) tenantLabel() string {
	if d.TenantID == nil {
		return ""
	}
	return *d.TenantID
}

func (d *Document) String() string {
	return fmt.Sprintf("%s snapshot at %s (%d sets, %d records)",
		d.Scope, d.Timestamp.UTC().Format(TimestampFormat), len(d.Data), d.RowCount())
}
