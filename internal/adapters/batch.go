package adapters

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/mvp-joe/callmap/internal/catalog"
	"github.com/mvp-joe/callmap/internal/confidence"
	"github.com/mvp-joe/callmap/internal/textscan"
)

// BatchAdapter lists the `call :label` subroutines of a cmd.exe batch file.
// A file without labels is itself the invocable. Arguments are strings and
// batch files return only an exit code.
type BatchAdapter struct {
	logger *log.Logger
}

func NewBatchAdapter(deps Deps) *BatchAdapter {
	return &BatchAdapter{logger: deps.logger()}
}

func (a *BatchAdapter) Name() string { return "batch" }

func (a *BatchAdapter) Kinds() []catalog.FileKind {
	return []catalog.FileKind{catalog.KindBatchScript}
}

func (a *BatchAdapter) Policy() catalog.DedupPolicy { return catalog.FirstSeenWins }

var (
	batchLabel    = regexp.MustCompile(`^\s*:([A-Za-z_][\w.-]*)\s*$`)
	batchRemark   = regexp.MustCompile(`(?i)^\s*@?(?:rem(?:\s|$)|::)(.*)$`)
	batchArg      = regexp.MustCompile(`%(?:~[a-z]*)?([1-9*])`)
	batchNamedArg = regexp.MustCompile(`(?i)^\s*set\s+"?([A-Za-z_]\w*)=%(?:~[a-z]*)?([1-9])"?\s*$`)
)

type batchSection struct {
	name  string
	line  int
	doc   []string
	lines []string
}

func (a *BatchAdapter) Extract(ctx context.Context, path string) ([]catalog.Invocable, error) {
	text, err := readText(path)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	top := &batchSection{name: scriptName(path), line: 1, doc: batchHeader(lines)}
	var sections []*batchSection
	cur := top
	var pending []string
	for i, line := range lines {
		if m := batchRemark.FindStringSubmatch(line); m != nil {
			pending = append(pending, strings.TrimSpace(m[1]))
			continue
		}
		if m := batchLabel.FindStringSubmatch(line); m != nil {
			if strings.EqualFold(m[1], "eof") {
				pending = nil
				continue
			}
			cur = &batchSection{name: m[1], line: i + 1, doc: pending}
			sections = append(sections, cur)
			pending = nil
			continue
		}
		if strings.TrimSpace(line) == "" {
			pending = nil
			continue
		}
		pending = nil
		cur.lines = append(cur.lines, line)
	}

	if len(sections) == 0 {
		return []catalog.Invocable{batchInvocable(path, top, "")}, nil
	}
	out := make([]catalog.Invocable, 0, len(sections))
	for _, s := range sections {
		out = append(out, batchInvocable(path, s, ":"+s.name))
	}
	return out, nil
}

// batchHeader is the first run of remarks in the file, past any echo-off line.
func batchHeader(lines []string) []string {
	var doc []string
	for _, l := range lines {
		t := strings.ToLower(strings.TrimSpace(l))
		if m := batchRemark.FindStringSubmatch(l); m != nil {
			doc = append(doc, strings.TrimSpace(m[1]))
			continue
		}
		if len(doc) == 0 && (t == "" || strings.HasPrefix(t, "@echo")) {
			continue
		}
		break
	}
	return doc
}

func batchInvocable(path string, s *batchSection, function string) catalog.Invocable {
	named := map[int]string{}
	used := map[int]bool{}
	variadic := false
	for _, line := range s.lines {
		if m := batchNamedArg.FindStringSubmatch(line); m != nil {
			n, _ := strconv.Atoi(m[2])
			if _, ok := named[n]; !ok {
				named[n] = m[1]
			}
		}
		for _, m := range batchArg.FindAllStringSubmatch(line, -1) {
			if m[1] == "*" {
				variadic = true
				continue
			}
			n, _ := strconv.Atoi(m[1])
			used[n] = true
		}
	}
	indexes := make([]int, 0, len(used))
	for n := range used {
		indexes = append(indexes, n)
	}
	sort.Ints(indexes)

	dc := textscan.ParseDocComment(strings.Join(s.doc, "\n"))
	covered := len(indexes) > 0 || variadic
	var params []catalog.Parameter
	for _, n := range indexes {
		name := named[n]
		if name == "" {
			name = "arg" + strconv.Itoa(n)
		}
		p := typedParam(name, "string", true)
		if td, ok := dc.Params[name]; ok {
			p.Description = td.Description
		} else {
			covered = false
		}
		params = append(params, p)
	}
	if variadic {
		p := catalog.Parameter{Name: "args", Type: textscan.TypeArray, NativeType: "string..."}
		if td, ok := dc.Params["args"]; ok {
			p.Description = td.Description
		} else {
			covered = false
		}
		params = append(params, p)
	}

	return finish(catalog.Invocable{
		Name:          s.name,
		Kind:          catalog.KindBatchScript,
		Parameters:    params,
		Documentation: dc.Summary,
		Origin:        catalog.Origin{Path: path, Line: s.line},
		Execution: catalog.ProcessInvoke{
			Executable:  "cmd.exe",
			Interpreter: "cmd",
			ScriptPath:  path,
			Function:    function,
			ArgStyle:    "positional",
		},
	}, confidence.Factors{
		Documentation: evidence(dc.Summary != "", "REM comment"),
		Parameters:    evidence(covered, "REM @param"),
	})
}
