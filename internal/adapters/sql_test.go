package adapters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/callmap/internal/catalog"
	"github.com/mvp-joe/callmap/internal/confidence"
	"github.com/mvp-joe/callmap/internal/textscan"
)

// Test Plan for SQL:
// - Dialect detection for each marker family, ANSI fallback
// - Postgres function with comment, DEFAULT and RETURNS is guaranteed; SELECT statement
// - Set-returning function is an array with SELECT * FROM
// - T-SQL procedure with unparenthesised parameters and OUTPUT renders EXEC
// - Oracle IN OUT / OUT parameters: OUT excluded from the parameter list and statement
// - Routine names inside comments are ignored
// - Sized types stay attached to their name and unnamed arguments get synthesized names

func TestDetectSQLDialect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		code string
		want string
	}{
		{"mysql backticks", "CREATE PROCEDURE `shop`.`reorder`()", DialectMySQL},
		{"mysql delimiter", "DELIMITER //\nCREATE PROCEDURE p() BEGIN END //", DialectMySQL},
		{"tsql go", "CREATE PROC p AS SELECT 1\nGO", DialectTSQL},
		{"tsql variable", "CREATE PROCEDURE p @id INT AS SELECT @id", DialectTSQL},
		{"postgres dollar quote", "CREATE FUNCTION f() RETURNS int AS $$ SELECT 1 $$ LANGUAGE sql", DialectPostgres},
		{"oracle varchar2", "CREATE PROCEDURE p(x VARCHAR2) IS BEGIN NULL; END;", DialectOracle},
		{"ansi", "CREATE PROCEDURE p() BEGIN END", DialectANSI},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, DetectSQLDialect(tt.code))
		})
	}
}

const postgresSource = `-- Returns the total for an account.
-- @param account_id the account
CREATE OR REPLACE FUNCTION billing.account_total(account_id integer, since date DEFAULT now())
RETURNS numeric AS $$
BEGIN
  RETURN 0;
END;
$$ LANGUAGE plpgsql;

/* CREATE FUNCTION commented_out() RETURNS int */

CREATE FUNCTION billing.open_invoices(integer)
RETURNS SETOF invoice AS $$ SELECT * FROM invoice $$ LANGUAGE sql;
`

func TestSQLAdapter_Postgres(t *testing.T) {
	t.Parallel()

	path := writeArtifact(t, t.TempDir(), "billing.sql", postgresSource)
	invs := extractOne(t, NewSQLAdapter(Deps{}), path)
	assert.Equal(t, []string{"billing.account_total", "billing.open_invoices"}, names(invs))

	total := invs[0]
	assert.Equal(t, confidence.Guaranteed, total.Confidence.Tier)
	assert.Equal(t, "Returns the total for an account.", total.Documentation)
	assert.Equal(t, 3, total.Origin.Line)
	require.Len(t, total.Parameters, 2)
	assert.Equal(t, catalog.Parameter{Name: "account_id", Type: textscan.TypeInteger, NativeType: "integer", Required: true, Description: "the account"}, total.Parameters[0])
	assert.False(t, total.Parameters[1].Required)
	assert.Equal(t, textscan.TypeNumber, total.Return.Type)

	exec, ok := total.Execution.(catalog.SQLExec)
	require.True(t, ok)
	assert.Equal(t, DialectPostgres, exec.Dialect)
	assert.Equal(t, "billing", exec.Schema)
	assert.Equal(t, "account_total", exec.Object)
	assert.Equal(t, "function", exec.ObjectType)
	assert.Equal(t, "SELECT billing.account_total(?, ?)", exec.Statement)

	open := invs[1]
	assert.Equal(t, []string{"arg0"}, paramNames(open.Parameters))
	assert.Equal(t, textscan.TypeArray, open.Return.Type)
	assert.Equal(t, "SELECT * FROM billing.open_invoices(?)", open.Execution.(catalog.SQLExec).Statement)
	assert.Equal(t, confidence.High, open.Confidence.Tier)
}

const tsqlSource = `CREATE PROCEDURE [dbo].[usp_GetOrders]
    @CustomerId INT,
    @Since DATETIME = NULL,
    @Total MONEY OUTPUT
AS
BEGIN
    SELECT @Total = 0
END
GO
`

func TestSQLAdapter_TSQL(t *testing.T) {
	t.Parallel()

	path := writeArtifact(t, t.TempDir(), "orders.sql", tsqlSource)
	invs := extractOne(t, NewSQLAdapter(Deps{}), path)
	require.Len(t, invs, 1)

	proc := invs[0]
	assert.Equal(t, "dbo.usp_GetOrders", proc.Name)
	assert.Equal(t, []string{"CustomerId", "Since", "Total"}, paramNames(proc.Parameters))
	assert.True(t, proc.Parameters[0].Required)
	assert.False(t, proc.Parameters[1].Required)
	assert.Nil(t, proc.Return)
	assert.Equal(t, confidence.Medium, proc.Confidence.Tier)

	exec := proc.Execution.(catalog.SQLExec)
	assert.Equal(t, DialectTSQL, exec.Dialect)
	assert.Equal(t, "procedure", exec.ObjectType)
	assert.Equal(t, "EXEC dbo.usp_GetOrders @CustomerId = @CustomerId, @Since = @Since, @Total = @Total OUTPUT", exec.Statement)
}

func TestScanSQL_OracleModes(t *testing.T) {
	t.Parallel()

	src := `CREATE OR REPLACE PROCEDURE hr.raise_salary(
  p_emp_id IN NUMBER,
  p_pct    IN OUT NOCOPY NUMBER,
  p_new    OUT NUMBER
) IS
BEGIN
  NULL;
END;
`
	routines := ScanSQL(src)
	require.Len(t, routines, 1)
	r := routines[0]
	assert.Equal(t, DialectOracle, r.Dialect)
	assert.Equal(t, []SQLParam{
		{Name: "p_emp_id", Type: "NUMBER", Mode: "IN"},
		{Name: "p_pct", Type: "NUMBER", Mode: "INOUT"},
		{Name: "p_new", Type: "NUMBER", Mode: "OUT"},
	}, r.Params)

	inv := sqlInvocable("hr.sql", r)
	assert.Equal(t, []string{"p_emp_id", "p_pct"}, paramNames(inv.Parameters))
	assert.Equal(t, "CALL hr.raise_salary(?, ?)", inv.Execution.(catalog.SQLExec).Statement)
}

func TestScanSQL_ParameterDeclarations(t *testing.T) {
	t.Parallel()

	src := `CREATE PROCEDURE shop.rename_item(IN item_id INT, IN new_name VARCHAR(50), OUT old_name VARCHAR(50))
BEGIN
  SELECT 1;
END;

CREATE FUNCTION shop.tax(numeric, "rate" numeric(5,2) DEFAULT 0.2) RETURNS numeric AS $$ SELECT 0 $$ LANGUAGE sql;
`
	routines := ScanSQL(src)
	require.Len(t, routines, 2)
	assert.Equal(t, []SQLParam{
		{Name: "item_id", Type: "INT", Mode: "IN"},
		{Name: "new_name", Type: "VARCHAR(50)", Mode: "IN"},
		{Name: "old_name", Type: "VARCHAR(50)", Mode: "OUT"},
	}, routines[0].Params)
	assert.Equal(t, []SQLParam{
		{Name: "arg0", Type: "numeric", Mode: "IN"},
		{Name: "rate", Type: "numeric(5,2)", Mode: "IN", HasDefault: true},
	}, routines[1].Params)

	inv := sqlInvocable("shop.sql", routines[0])
	require.Len(t, inv.Parameters, 2)
	assert.Equal(t, textscan.TypeInteger, inv.Parameters[0].Type)
	assert.Equal(t, catalog.Parameter{Name: "new_name", Type: textscan.TypeString, NativeType: "VARCHAR(50)", Required: true}, inv.Parameters[1])
}
