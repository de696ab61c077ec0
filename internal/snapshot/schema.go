package snapshot

import (
	"fmt"
	"strings"

	"gym-snapshot/internal/catalog"
)

// Dialect selects the SQL flavour used for DDL. Both dialects share the
// same DML: backtick quoting and ? placeholders.
type Dialect string

const (
	DialectMySQL  Dialect = "mysql"
	DialectSQLite Dialect = "sqlite3"
)

// ColumnKind drives value conversion between the driver and the document.
type ColumnKind string

const (
	KindText  ColumnKind = "text"
	KindInt   ColumnKind = "int"
	KindFloat ColumnKind = "float"
	KindBool  ColumnKind = "bool"
	KindTime  ColumnKind = "time"
)

// Column describes one column of an entity set table
type Column struct {
	Name       string
	Kind       ColumnKind
	PrimaryKey bool
	NotNull    bool
	// References names the entity set whose id this column points at.
	References string
}

// TableSchema binds an entity set to its table columns
type TableSchema struct {
	Name    string
	Columns []Column
}

// Column returns the column with the given name.
func (ts TableSchema) Column(name string) (Column, bool) {
	for _, col := range ts.Columns {
		if col.Name == name {
			return col, true
		}
	}
	return Column{}, false
}

// ColumnNames returns the column names in declaration order.
func (ts TableSchema) ColumnNames() []string {
	names := make([]string, len(ts.Columns))
	for i, col := range ts.Columns {
		names[i] = col.Name
	}
	return names
}

func colID() Column { return Column{Name: "id", Kind: KindText, PrimaryKey: true, NotNull: true} }

func colRef(name, target string) Column {
	return Column{Name: name, Kind: KindText, NotNull: true, References: target}
}

// colTenant scopes rows to a tenant. It is not an enforced foreign key: a
// selective restore may bring back rows whose tenant the wipe removed.
func colTenant() Column { return Column{Name: catalog.TenantKey, Kind: KindText, NotNull: true} }

func colText(name string) Column { return Column{Name: name, Kind: KindText} }

func colInt(name string) Column { return Column{Name: name, Kind: KindInt} }

func colFloat(name string) Column { return Column{Name: name, Kind: KindFloat} }

func colBool(name string) Column { return Column{Name: name, Kind: KindBool} }

func colTime(name string) Column { return Column{Name: name, Kind: KindTime} }

// DefaultSchemas returns the table layout of the gym application.
func DefaultSchemas() []TableSchema {
	return []TableSchema{
		{Name: catalog.Clientes, Columns: []Column{
			colID(), colText("nome"), colText("email"), colText("telefone"), colText("plano"),
			colBool("ativo"), colTime("createdAt"), colTime("updatedAt"),
		}},
		{Name: catalog.Usuarios, Columns: []Column{
			colID(), colTenant(), colText("nome"), colText("email"), colText("senha"),
			colText("role"), colBool("ativo"), colTime("createdAt"), colTime("updatedAt"),
		}},
		{Name: catalog.Permissoes, Columns: []Column{
			colID(), colRef("usuarioId", catalog.Usuarios), colText("recurso"),
			colBool("podeVisualizar"), colBool("podeCriar"), colBool("podeEditar"), colBool("podeExcluir"),
		}},
		{Name: catalog.Alunos, Columns: []Column{
			colID(), colTenant(), colText("nome"), colText("email"), colText("telefone"),
			colTime("dataNascimento"), colText("objetivo"), colBool("ativo"),
			colTime("createdAt"), colTime("updatedAt"),
		}},
		{Name: catalog.Medidas, Columns: []Column{
			colID(), colRef("alunoId", catalog.Alunos), colTenant(), colTime("data"),
			colFloat("peso"), colFloat("altura"), colFloat("gorduraCorporal"), colText("observacoes"), colTime("createdAt"),
		}},
		{Name: catalog.Avaliacoes, Columns: []Column{
			colID(), colRef("alunoId", catalog.Alunos), colTenant(), colTime("data"),
			colText("tipo"), colText("resultado"), colText("observacoes"), colTime("createdAt"),
		}},
		{Name: catalog.Exercicios, Columns: []Column{
			colID(), colTenant(), colText("nome"), colText("grupoMuscular"),
			colText("descricao"), colTime("createdAt"),
		}},
		{Name: catalog.Treinos, Columns: []Column{
			colID(), colRef("alunoId", catalog.Alunos), colTenant(), colText("nome"), colText("descricao"),
			colBool("ativo"), colTime("createdAt"),
		}},
		{Name: catalog.TreinoExercicios, Columns: []Column{
			colID(), colRef("treinoId", catalog.Treinos), colRef("exercicioId", catalog.Exercicios),
			colInt("series"), colInt("repeticoes"), colFloat("carga"), colInt("ordem"),
		}},
		{Name: catalog.Cronogramas, Columns: []Column{
			colID(), colRef("treinoId", catalog.Treinos), colInt("diaSemana"), colText("horario"),
		}},
		{Name: catalog.ExecucoesTreino, Columns: []Column{
			colID(), colRef("treinoId", catalog.Treinos), colTenant(), colTime("dataExecucao"),
			colInt("duracao"), colText("observacoes"),
		}},
		{Name: catalog.ExecucoesExercicio, Columns: []Column{
			colID(), colRef("execucaoTreinoId", catalog.ExecucoesTreino), colText("nomeExercicio"),
			colInt("seriesRealizadas"), colInt("repeticoesRealizadas"), colFloat("cargaUtilizada"),
		}},
	}
}

// CreateTableStatement renders the DDL for one table.
func (ts TableSchema) CreateTableStatement(dialect Dialect) string {
	var defs []string
	var primary []string
	for _, col := range ts.Columns {
		def := fmt.Sprintf("%s %s", quoteIdent(col.Name), columnType(dialect, col))
		if col.NotNull {
			def += " NOT NULL"
		}
		defs = append(defs, def)
		if col.PrimaryKey {
			primary = append(primary, quoteIdent(col.Name))
		}
	}
	if len(primary) > 0 {
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(primary, ", ")))
	}
	for _, col := range ts.Columns {
		if col.References == "" {
			continue
		}
		defs = append(defs, fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)",
			quoteIdent(col.Name), quoteIdent(col.References), quoteIdent("id")))
	}

	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)", quoteIdent(ts.Name), strings.Join(defs, ",\n  "))
	if dialect == DialectMySQL {
		stmt += " ENGINE=InnoDB DEFAULT CHARSET=utf8mb4"
	}
	return stmt
}

func columnType(dialect Dialect, col Column) string {
	if dialect == DialectSQLite {
		switch col.Kind {
		case KindInt:
			return "INTEGER"
		case KindFloat:
			return "REAL"
		case KindBool:
			return "BOOLEAN"
		case KindTime:
			return "DATETIME"
		default:
			return "TEXT"
		}
	}

	switch col.Kind {
	case KindInt:
		return "BIGINT"
	case KindFloat:
		return "DOUBLE"
	case KindBool:
		return "TINYINT(1)"
	case KindTime:
		return "DATETIME(3)"
	default:
		if col.PrimaryKey || col.References != "" || col.Name == catalog.TenantKey {
			return "VARCHAR(64)"
		}
		return "TEXT"
	}
}

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
