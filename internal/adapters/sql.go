package adapters

import (
	"context"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/mvp-joe/callmap/internal/catalog"
	"github.com/mvp-joe/callmap/internal/confidence"
	"github.com/mvp-joe/callmap/internal/textscan"
)

// SQLAdapter lists the stored procedures and functions created by a DDL source.
type SQLAdapter struct {
	logger *log.Logger
}

func NewSQLAdapter(deps Deps) *SQLAdapter {
	return &SQLAdapter{logger: deps.logger()}
}

func (a *SQLAdapter) Name() string { return "sql" }

func (a *SQLAdapter) Kinds() []catalog.FileKind {
	return []catalog.FileKind{catalog.KindSQLSource}
}

func (a *SQLAdapter) Policy() catalog.DedupPolicy { return catalog.FirstSeenWins }

func (a *SQLAdapter) Extract(ctx context.Context, path string) ([]catalog.Invocable, error) {
	text, err := readText(path)
	if err != nil {
		return nil, err
	}
	routines := ScanSQL(text)
	if len(routines) == 0 {
		a.logger.Debug("no routines", "adapter", a.Name(), "path", path)
	}
	out := make([]catalog.Invocable, 0, len(routines))
	for _, r := range routines {
		out = append(out, sqlInvocable(path, r))
	}
	return out, nil
}

// SQL dialects recognised by the scanner.
const (
	DialectTSQL     = "tsql"
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
	DialectOracle   = "oracle"
	DialectANSI     = "ansi"
)

// SQLRoutine is one CREATE PROCEDURE or CREATE FUNCTION statement.
type SQLRoutine struct {
	Schema     string
	Name       string
	ObjectType string // "procedure" or "function"
	Dialect    string
	Params     []SQLParam
	Returns    string
	ReturnsSet bool
	Doc        string
	Line       int
}

// SQLParam is one routine parameter. Mode is IN, OUT or INOUT.
type SQLParam struct {
	Name       string
	Type       string
	Mode       string
	HasDefault bool
}

var (
	sqlCreate         = regexp.MustCompile(`(?is)\bCREATE\s+(?:OR\s+(?:REPLACE|ALTER)\s+)?(?:DEFINER\s*=\s*\S+\s+)?(PROCEDURE|PROC|FUNCTION)\s+((?:[\w\[\]"` + "`" + `$]+\.)?[\w\[\]"` + "`" + `$]+)`)
	sqlReturns        = regexp.MustCompile(`(?is)^\s*RETURNS?\s+(SETOF\s+)?(?:@\w+\s+)?(TABLE\b|[\w.]+(?:\s+(?:VARYING|PRECISION|ZONE))*(?:\s*\([\d,\s]*\))?)`)
	sqlTSQLStop       = regexp.MustCompile(`(?i)\b(AS|WITH|RETURNS|FOR)\b`)
	sqlTSQLMarker     = regexp.MustCompile(`(?im)(^\s*GO\s*$|@\w+|\bNVARCHAR\b|\[dbo\])`)
	sqlPostgresMarker = regexp.MustCompile(`(?i)(\$\$|\bLANGUAGE\s+(plpgsql|sql)\b|\bSETOF\b|\$[A-Za-z_]*\$)`)
	sqlMySQLMarker    = regexp.MustCompile("(?i)(`|\\bDELIMITER\\b|\\bDEFINER\\s*=)")
	sqlOracleMarker   = regexp.MustCompile(`(?i)(\bVARCHAR2\b|\bNUMBER\b|\)\s*(IS|AS)\s*$|\bRETURN\s+\w+\s+(IS|AS)\b|\bIN\s+OUT\b)`)
	sqlDefault        = regexp.MustCompile(`(?i)\s*(?:\bDEFAULT\b|:=|=)`)
)

// ScanSQL finds routine definitions in SQL DDL text. It is a pure function of
// its input.
func ScanSQL(text string) []SQLRoutine {
	idx := textscan.NewCommentIndex(text, textscan.SQLSyntax)
	code := idx.Blank(text, 0, len(text))
	dialect := DetectSQLDialect(code)

	var out []SQLRoutine
	for _, m := range sqlCreate.FindAllStringSubmatchIndex(code, -1) {
		schema, name := splitSQLName(code[m[4]:m[5]])
		r := SQLRoutine{
			Schema:     schema,
			Name:       name,
			ObjectType: "procedure",
			Dialect:    dialect,
			Doc:        textscan.DocAbove(text, m[0], idx, textscan.SQLSyntax),
			Line:       textscan.LineOf(text, m[0]),
		}
		if strings.EqualFold(code[m[2]:m[3]], "function") {
			r.ObjectType = "function"
		}

		pos := m[1]
		rest := strings.TrimLeft(code[pos:], " \t\r\n")
		pos = len(code) - len(rest)
		var list string
		switch {
		case strings.HasPrefix(rest, "("):
			closeIdx := matchClose(code, pos, nil, "'")
			if closeIdx < 0 {
				continue
			}
			list = code[pos+1 : closeIdx]
			pos = closeIdx + 1
		case strings.HasPrefix(rest, "@"):
			// T-SQL parameters run unparenthesised up to AS
			stop := sqlTSQLStop.FindStringIndex(rest)
			if stop == nil {
				continue
			}
			list = rest[:stop[0]]
			pos += stop[0]
		}
		r.Params = parseSQLParams(list)

		if rm := sqlReturns.FindStringSubmatchIndex(code[pos:]); rm != nil {
			r.ReturnsSet = rm[2] >= 0
			ret := code[pos+rm[4] : pos+rm[5]]
			if strings.EqualFold(ret, "TABLE") {
				r.ReturnsSet = true
				after := strings.TrimLeft(code[pos+rm[5]:], " \t\r\n")
				if strings.HasPrefix(after, "(") {
					start := len(code) - len(after)
					if closeIdx := matchClose(code, start, nil, "'"); closeIdx > 0 {
						ret = "TABLE(" + collapseSpace(code[start+1:closeIdx]) + ")"
					}
				}
			}
			r.Returns = collapseSpace(ret)
		}
		out = append(out, r)
	}
	return out
}

// DetectSQLDialect guesses the dialect of comment-free SQL text.
func DetectSQLDialect(code string) string {
	switch {
	case sqlMySQLMarker.MatchString(code):
		return DialectMySQL
	case sqlTSQLMarker.MatchString(code):
		return DialectTSQL
	case sqlPostgresMarker.MatchString(code):
		return DialectPostgres
	case sqlOracleMarker.MatchString(code):
		return DialectOracle
	}
	return DialectANSI
}

func splitSQLName(qualified string) (string, string) {
	unquote := func(s string) string { return strings.Trim(s, "[]\"`") }
	if i := strings.LastIndexByte(qualified, '.'); i >= 0 {
		return unquote(qualified[:i]), unquote(qualified[i+1:])
	}
	return "", unquote(qualified)
}

func parseSQLParams(list string) []SQLParam {
	var out []SQLParam
	for i, raw := range textscan.SplitParams(list) {
		p := SQLParam{Mode: "IN"}
		if loc := sqlDefault.FindStringIndex(raw); loc != nil {
			p.HasDefault = true
			raw = raw[:loc[0]]
		}
		toks := strings.Fields(raw)
		mode, toks := leadingSQLMode(toks)
		if len(toks) >= 2 {
			// Oracle puts the mode after the name
			if m, rest := leadingSQLMode(toks[1:]); m != "" {
				mode, toks = m, append([]string{toks[0]}, rest...)
			}
		}
	trailing:
		for len(toks) > 1 {
			switch strings.ToUpper(toks[len(toks)-1]) {
			case "OUTPUT", "OUT":
				mode = "INOUT"
			case "READONLY":
			default:
				break trailing
			}
			toks = toks[:len(toks)-1]
		}
		if mode != "" {
			p.Mode = mode
		}
		kept := toks[:0]
		for _, t := range toks {
			if !strings.EqualFold(t, "NOCOPY") {
				kept = append(kept, t)
			}
		}
		if len(kept) == 0 {
			continue
		}
		c := textscan.CanonicalizeParam(sqlDeclaration(kept), i)
		p.Name, p.Type = c.Name, c.Native
		out = append(out, p)
	}
	return out
}

// sqlDeclaration rewrites name-first tokens into a form the canonicalizer reads
// as name then type. A lone token is an unnamed postgres argument and a sigil
// name already reads that way.
func sqlDeclaration(toks []string) string {
	if len(toks) == 1 || strings.HasPrefix(toks[0], "@") {
		return strings.Join(toks, " ")
	}
	return strings.Trim(toks[0], "\"`[]") + ": " + strings.Join(toks[1:], " ")
}

// leadingSQLMode strips an IN, OUT, INOUT or IN OUT prefix.
func leadingSQLMode(toks []string) (string, []string) {
	if len(toks) == 0 {
		return "", toks
	}
	switch strings.ToUpper(toks[0]) {
	case "IN":
		if len(toks) > 1 && strings.EqualFold(toks[1], "OUT") {
			return "INOUT", toks[2:]
		}
		return "IN", toks[1:]
	case "OUT":
		return "OUT", toks[1:]
	case "INOUT":
		return "INOUT", toks[1:]
	}
	return "", toks
}

// sqlStatement renders the call statement with placeholders.
func sqlStatement(r SQLRoutine, object string, inputs []SQLParam) string {
	if r.Dialect == DialectTSQL {
		if r.ObjectType == "procedure" {
			args := make([]string, len(r.Params))
			for i, p := range r.Params {
				args[i] = "@" + p.Name + " = @" + p.Name
				if p.Mode == "INOUT" {
					args[i] += " OUTPUT"
				}
			}
			return strings.TrimSpace("EXEC " + object + " " + strings.Join(args, ", "))
		}
	}
	marks := make([]string, len(inputs))
	for i := range inputs {
		marks[i] = "?"
	}
	call := object + "(" + strings.Join(marks, ", ") + ")"
	switch {
	case r.ObjectType == "procedure":
		return "CALL " + call
	case r.ReturnsSet:
		return "SELECT * FROM " + call
	}
	return "SELECT " + call
}

func sqlInvocable(path string, r SQLRoutine) catalog.Invocable {
	object := r.Name
	if r.Schema != "" {
		object = r.Schema + "." + r.Name
	}
	dc := textscan.ParseDocComment(r.Doc)

	var inputs []SQLParam
	params := []catalog.Parameter{}
	for _, p := range r.Params {
		if p.Mode == "OUT" {
			continue
		}
		inputs = append(inputs, p)
		param := typedParam(p.Name, p.Type, !p.HasDefault)
		if td, ok := dc.Params[p.Name]; ok {
			param.Description = td.Description
		} else if td, ok := dc.Params["@"+p.Name]; ok {
			param.Description = td.Description
		}
		params = append(params, param)
	}

	inv := catalog.Invocable{
		Name:          object,
		Kind:          catalog.KindSQLSource,
		Parameters:    params,
		Documentation: dc.Summary,
		Origin:        catalog.Origin{Path: path, Line: r.Line},
		Execution: catalog.SQLExec{
			SourcePath: path,
			Object:     r.Name,
			Schema:     r.Schema,
			ObjectType: r.ObjectType,
			Dialect:    r.Dialect,
			Statement:  sqlStatement(r, object, inputs),
		},
	}
	if r.Returns != "" && !strings.EqualFold(r.Returns, "void") && !strings.EqualFold(r.Returns, "trigger") {
		inv.Return = catalog.NewReturn(r.Returns)
		if r.ReturnsSet {
			inv.Return.Type = textscan.TypeArray
		}
	}
	return finish(inv, confidence.Factors{
		Documentation: evidence(dc.Summary != "", "DDL comment"),
		Parameters:    "routine definition",
		ReturnType:    evidence(r.ObjectType == "function" && r.Returns != "", "RETURNS clause"),
	})
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
