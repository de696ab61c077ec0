package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"gym-snapshot/internal/catalog"
	"gym-snapshot/internal/logging"
)

// DefaultBatchSize is the number of rows written per INSERT statement.
const DefaultBatchSize = 500

// timeLayouts are accepted when a time column arrives as a string.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// tableOps implements EntityOps with plain SQL against one table.
type tableOps struct {
	set       catalog.EntitySet
	schema    TableSchema
	batchSize int
	logger    *logging.Logger
}

func newTableOps(set catalog.EntitySet, schema TableSchema, batchSize int, logger *logging.Logger) *tableOps {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &tableOps{
		set:       set,
		schema:    schema,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Read selects every column of the table, filtered by tenant when asked.
func (t *tableOps) Read(ctx context.Context, q Querier, tenantID string) ([]Record, error) {
	columns := t.schema.ColumnNames()
	quoted := make([]string, len(columns))
	for i, name := range columns {
		quoted[i] = quoteIdent(name)
	}

	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(quoted, ", "), quoteIdent(t.schema.Name))
	var args []interface{}
	if tenantID != "" && t.set.TenantScoped {
		query += fmt.Sprintf(" WHERE %s = ?", quoteIdent(t.set.TenantKeyField))
		args = append(args, tenantID)
	}
	query += fmt.Sprintf(" ORDER BY %s", quoteIdent("id"))

	start := time.Now()
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		t.logSQL(query, time.Since(start), 0, err)
		return nil, fmt.Errorf("failed to read %s: %w", t.schema.Name, err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		values := make([]interface{}, len(columns))
		targets := make([]interface{}, len(columns))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			t.logSQL(query, time.Since(start), int64(len(records)), err)
			return nil, fmt.Errorf("failed to scan %s row: %w", t.schema.Name, err)
		}

		record := make(Record, len(columns))
		for i, col := range t.schema.Columns {
			record[col.Name] = fromDriverValue(col.Kind, values[i])
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		t.logSQL(query, time.Since(start), int64(len(records)), err)
		return nil, fmt.Errorf("failed to iterate %s rows: %w", t.schema.Name, err)
	}

	t.logSQL(query, time.Since(start), int64(len(records)), nil)
	return records, nil
}

// DeleteAll empties the table.
func (t *tableOps) DeleteAll(ctx context.Context, q Querier) (int64, error) {
	query := fmt.Sprintf("DELETE FROM %s", quoteIdent(t.schema.Name))

	start := time.Now()
	result, err := q.ExecContext(ctx, query)
	if err != nil {
		t.logSQL(query, time.Since(start), 0, err)
		return 0, fmt.Errorf("failed to delete from %s: %w", t.schema.Name, err)
	}

	affected, _ := result.RowsAffected()
	t.logSQL(query, time.Since(start), affected, nil)
	return affected, nil
}

// BulkInsert writes records in batches. A batch only groups consecutive
// records with the same set of keys, so a key left out of a record is never
// sent as NULL and column defaults still apply. A key the table does not have
// is an InvalidFormat error.
func (t *tableOps) BulkInsert(ctx context.Context, q Querier, records []Record) (int64, error) {
	var inserted int64
	start := 0
	for start < len(records) {
		shape := recordShape(records[start])
		end := start + 1
		for end < len(records) && end-start < t.batchSize && recordShape(records[end]) == shape {
			end++
		}

		n, err := t.insertBatch(ctx, q, records[start:end], start)
		inserted += n
		if err != nil {
			return inserted, err
		}
		start = end
	}
	return inserted, nil
}

// recordShape identifies the key set of a record.
func recordShape(record Record) string {
	keys := make([]string, 0, len(record))
	for key := range record {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return strings.Join(keys, "\x00")
}

func (t *tableOps) insertBatch(ctx context.Context, q Querier, batch []Record, offset int) (int64, error) {
	present := make(map[string]bool)
	for i, record := range batch {
		for key := range record {
			if _, ok := t.schema.Column(key); !ok {
				return 0, NewInvalidFormatError(
					fmt.Sprintf("record %d of %s has unknown field %q", offset+i, t.schema.Name, key), nil,
				).WithContext("entity_set", t.schema.Name)
			}
			present[key] = true
		}
	}

	var columns []Column
	for _, col := range t.schema.Columns {
		if present[col.Name] {
			columns = append(columns, col)
		}
	}
	if len(columns) == 0 {
		return 0, NewInvalidFormatError(fmt.Sprintf("records of %s carry no fields", t.schema.Name), nil)
	}

	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = quoteIdent(col.Name)
	}
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"

	tuples := make([]string, len(batch))
	args := make([]interface{}, 0, len(batch)*len(columns))
	for i, record := range batch {
		tuples[i] = placeholder
		for _, col := range columns {
			value, err := toDriverValue(col, record[col.Name])
			if err != nil {
				return 0, NewInvalidFormatError(
					fmt.Sprintf("record %d of %s has an invalid %s", offset+i, t.schema.Name, col.Name), err,
				).WithContext("entity_set", t.schema.Name)
			}
			args = append(args, value)
		}
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		quoteIdent(t.schema.Name), strings.Join(quoted, ", "), strings.Join(tuples, ", "))

	start := time.Now()
	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		t.logSQL(query, time.Since(start), 0, err)
		return 0, fmt.Errorf("failed to insert into %s: %w", t.schema.Name, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		affected = int64(len(batch))
	}
	t.logSQL(query, time.Since(start), affected, nil)
	return affected, nil
}

func (t *tableOps) logSQL(query string, duration time.Duration, rows int64, err error) {
	if t.logger == nil {
		return
	}
	t.logger.LogSQLExecution(query, duration, rows, err)
}

// fromDriverValue normalizes what database/sql hands back so that documents
// look the same whichever driver produced them.
func fromDriverValue(kind ColumnKind, value interface{}) interface{} {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		return fromDriverValue(kind, string(v))
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case string:
		switch kind {
		case KindInt:
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				return n
			}
		case KindFloat:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f
			}
		case KindBool:
			if b, err := strconv.ParseBool(v); err == nil {
				return b
			}
		case KindTime:
			if ts, ok := parseTime(v); ok {
				return ts.UTC().Format(time.RFC3339Nano)
			}
		}
		return v
	case int64:
		switch kind {
		case KindBool:
			return v != 0
		case KindFloat:
			return float64(v)
		}
		return v
	case float64:
		if kind == KindInt && v == math.Trunc(v) {
			return int64(v)
		}
		return v
	default:
		return v
	}
}

// toDriverValue converts a document value into something the driver accepts.
func toDriverValue(col Column, value interface{}) (interface{}, error) {
	if value == nil {
		return nil, nil
	}

	switch col.Kind {
	case KindInt:
		switch v := value.(type) {
		case json.Number:
			if n, err := v.Int64(); err == nil {
				return n, nil
			}
			f, err := v.Float64()
			if err != nil || f != math.Trunc(f) {
				return nil, fmt.Errorf("%q is not an integer", v.String())
			}
			return int64(f), nil
		case float64:
			if v != math.Trunc(v) {
				return nil, fmt.Errorf("%v is not an integer", v)
			}
			return int64(v), nil
		case int, int32, int64:
			return v, nil
		case string:
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%q is not an integer", v)
			}
			return n, nil
		}
	case KindFloat:
		switch v := value.(type) {
		case json.Number:
			return v.Float64()
		case float64, float32, int, int64:
			return v, nil
		case string:
			return strconv.ParseFloat(v, 64)
		}
	case KindBool:
		switch v := value.(type) {
		case bool:
			return v, nil
		case json.Number:
			n, err := v.Int64()
			if err != nil {
				return nil, fmt.Errorf("%q is not a boolean", v.String())
			}
			return n != 0, nil
		case int64:
			return v != 0, nil
		case float64:
			return v != 0, nil
		case string:
			return strconv.ParseBool(v)
		}
	case KindTime:
		switch v := value.(type) {
		case time.Time:
			return v, nil
		case string:
			ts, ok := parseTime(v)
			if !ok {
				return nil, fmt.Errorf("%q is not a timestamp", v)
			}
			return ts, nil
		}
	default:
		switch v := value.(type) {
		case string:
			return v, nil
		case json.Number:
			return v.String(), nil
		case bool, int64, float64:
			return fmt.Sprint(v), nil
		case map[string]interface{}, []interface{}:
			encoded, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			return string(encoded), nil
		}
	}

	return nil, fmt.Errorf("unsupported %s value of type %T", col.Kind, value)
}

func parseTime(value string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// sortedKeys is used to produce stable log fields.
func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
