package snapshot

import (
	"encoding/json"
	"sort"
	"strings"
	"testing"

	"gym-snapshot/internal/catalog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocument_MarshalJSON(t *testing.T) {
	doc := &Document{
		Timestamp: fixedTime,
		Scope:     ScopeSelective,
		TenantID:  strPtr("t1"),
		Tables:    []string{catalog.Alunos},
		Data: map[string][]Record{
			catalog.Alunos: {{"id": "a1", "nome": "Carla"}},
		},
	}

	data, err := doc.ToJSON()
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))

	assert.Equal(t, "2024-03-15T10:30:00.123Z", raw["timestamp"])
	assert.Equal(t, "seletivo", raw["tipo"])
	assert.Equal(t, "t1", raw["clienteId"])
	assert.Equal(t, []interface{}{"alunos"}, raw["tabelas"])
	assert.Contains(t, raw["data"], "alunos")
}

func TestDocument_MarshalJSON_EmptySetsAndNullTenant(t *testing.T) {
	doc := emptyFullDocument(catalog.Default())
	doc.Data[catalog.Alunos] = nil

	data, err := doc.ToJSON()
	require.NoError(t, err)

	text := string(data)
	assert.Contains(t, text, `"clienteId": null`)
	assert.Contains(t, text, `"alunos": []`)
}

func TestParseDocument(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{
			name:  "valid selective",
			input: `{"timestamp":"2024-03-15T10:30:00.123Z","tipo":"seletivo","clienteId":"t1","tabelas":["alunos"],"data":{"alunos":[{"id":"a1"}]}}`,
		},
		{
			name:  "missing tabelas derives them from data",
			input: `{"tipo":"seletivo","data":{"medidas":[],"alunos":[]}}`,
		},
		{
			name:    "not json",
			input:   "root:x:0:0:root:/root:/bin/bash",
			wantErr: true,
		},
		{
			name:    "json array",
			input:   `[1,2,3]`,
			wantErr: true,
		},
		{
			name:    "missing data",
			input:   `{"tipo":"completo","tabelas":[]}`,
			wantErr: true,
		},
		{
			name:    "null data",
			input:   `{"tipo":"completo","data":null}`,
			wantErr: true,
		},
		{
			name:    "data is not an object",
			input:   `{"tipo":"completo","data":[1]}`,
			wantErr: true,
		},
		{
			name:    "bad timestamp",
			input:   `{"timestamp":"yesterday","data":{}}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := ParseDocument([]byte(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsInvalidFormat(err), "expected INVALID_FORMAT, got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, doc.DataKeys(), sortedCopy(doc.Tables))
		})
	}
}

func TestParseDocument_KeepsNumbersExact(t *testing.T) {
	doc, err := ParseDocument([]byte(`{"tipo":"seletivo","tabelas":["medidas"],"data":{"medidas":[{"id":"m1","peso":72.5,"duracao":9007199254740993}]}}`))
	require.NoError(t, err)

	record := doc.Data[catalog.Medidas][0]
	assert.Equal(t, json.Number("72.5"), record["peso"])
	assert.Equal(t, json.Number("9007199254740993"), record["duracao"])
}

func TestDocument_Validate(t *testing.T) {
	cat := catalog.Default()

	tests := []struct {
		name     string
		doc      *Document
		wantErr  bool
		contains string
	}{
		{
			name: "empty full snapshot",
			doc:  emptyFullDocument(cat),
		},
		{
			name: "selective subset",
			doc: &Document{
				Scope:  ScopeSelective,
				Tables: []string{catalog.Alunos},
				Data:   map[string][]Record{catalog.Alunos: {}},
			},
		},
		{
			name: "unknown entity set",
			doc: &Document{
				Scope:  ScopeSelective,
				Tables: []string{"pagamentos"},
				Data:   map[string][]Record{"pagamentos": {}},
			},
			wantErr:  true,
			contains: "unknown entity set",
		},
		{
			name: "tabelas lists a set missing from data",
			doc: &Document{
				Scope:  ScopeSelective,
				Tables: []string{catalog.Alunos, catalog.Medidas},
				Data:   map[string][]Record{catalog.Alunos: {}},
			},
			wantErr:  true,
			contains: "missing from data",
		},
		{
			name: "full snapshot missing a set",
			doc: func() *Document {
				doc := emptyFullDocument(cat)
				delete(doc.Data, catalog.Cronogramas)
				doc.Tables = doc.DataKeys()
				return doc
			}(),
			wantErr:  true,
			contains: "full snapshot is missing",
		},
		{
			name: "unknown scope",
			doc: &Document{
				Scope:  Scope("parcial"),
				Tables: []string{},
				Data:   map[string][]Record{},
			},
			wantErr:  true,
			contains: "completo or seletivo",
		},
		{
			name:    "nil data",
			doc:     &Document{Scope: ScopeFull},
			wantErr: true,
		},
		{
			name: "numeric tenant key of another tenant",
			doc: &Document{
				Scope:    ScopeSelective,
				TenantID: strPtr("t1"),
				Tables:   []string{catalog.Clientes, catalog.Alunos, catalog.Cronogramas},
				Data: map[string][]Record{
					catalog.Clientes:    {{"id": "t1"}},
					catalog.Alunos:      {{"id": "a1", "clienteId": "t1"}, {"id": "a2", "clienteId": json.Number("1")}},
					catalog.Cronogramas: {{"id": "cr1", "treinoId": "tr9"}},
				},
			},
			wantErr:  true,
			contains: "belongs to tenant 1",
		},
		{
			name: "record of another tenant",
			doc: &Document{
				Scope:    ScopeSelective,
				TenantID: strPtr("t1"),
				Tables:   []string{catalog.Alunos},
				Data:     map[string][]Record{catalog.Alunos: {{"id": "a9", "clienteId": "t2"}}},
			},
			wantErr:  true,
			contains: "belongs to tenant t2, not t1",
		},
		{
			name: "record without tenant key",
			doc: &Document{
				Scope:    ScopeSelective,
				TenantID: strPtr("t1"),
				Tables:   []string{catalog.Medidas},
				Data:     map[string][]Record{catalog.Medidas: {{"id": "m1", "alunoId": "a1"}}},
			},
			wantErr:  true,
			contains: "missing the tenant key",
		},
		{
			name: "clientes row of another tenant",
			doc: &Document{
				Scope:    ScopeSelective,
				TenantID: strPtr("t1"),
				Tables:   []string{catalog.Clientes},
				Data:     map[string][]Record{catalog.Clientes: {{"id": "t2"}}},
			},
			wantErr:  true,
			contains: "belongs to tenant t2",
		},
		{
			name: "selective for one tenant",
			doc: &Document{
				Scope:    ScopeSelective,
				TenantID: strPtr("t1"),
				Tables:   []string{catalog.Clientes, catalog.Alunos, catalog.Cronogramas},
				Data: map[string][]Record{
					catalog.Clientes:    {{"id": "t1"}},
					catalog.Alunos:      {{"id": "a1", "clienteId": "t1"}, {"id": "a2", "clienteId": []byte("t1")}},
					catalog.Cronogramas: {{"id": "cr1", "treinoId": "tr9"}},
				},
			},
		},
		{
			name: "selective without tenant keeps every row",
			doc: &Document{
				Scope:  ScopeSelective,
				Tables: []string{catalog.Alunos},
				Data:   map[string][]Record{catalog.Alunos: {{"id": "a1", "clienteId": "t1"}, {"id": "a3", "clienteId": "t2"}}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.doc.Validate(cat)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, IsInvalidFormat(err))
			if tt.contains != "" {
				assert.Contains(t, err.Error(), tt.contains)
			}
		})
	}
}

func TestDocument_Summary(t *testing.T) {
	doc := &Document{
		Scope:  ScopeFull,
		Tables: []string{catalog.Alunos, catalog.Medidas},
		Data:   gymFixture(),
	}

	assert.Equal(t, 3, doc.Summary()[catalog.Alunos])
	assert.Equal(t, 2, doc.Summary()[catalog.Medidas])
	assert.Equal(t, 21, doc.RowCount())
	assert.True(t, strings.HasPrefix(doc.String(), "completo snapshot at"))
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
