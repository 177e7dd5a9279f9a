package adapters

import (
	"context"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/mvp-joe/callmap/internal/catalog"
	"github.com/mvp-joe/callmap/internal/confidence"
	"github.com/mvp-joe/callmap/internal/hosts"
	"github.com/mvp-joe/callmap/internal/textscan"
)

// CLIHelpAdapter describes a native executable from its own help output.
// The help runner only executes the artifact when configuration allows it.
type CLIHelpAdapter struct {
	logger *log.Logger
	help   hosts.HelpRunner
}

func NewCLIHelpAdapter(deps Deps) *CLIHelpAdapter {
	return &CLIHelpAdapter{logger: deps.logger(), help: deps.Hosts.Help}
}

func (a *CLIHelpAdapter) Name() string { return "clihelp" }

func (a *CLIHelpAdapter) Kinds() []catalog.FileKind {
	return []catalog.FileKind{catalog.KindNativeExecutable}
}

func (a *CLIHelpAdapter) Policy() catalog.DedupPolicy { return catalog.FirstSeenWins }

func (a *CLIHelpAdapter) Extract(ctx context.Context, path string) ([]catalog.Invocable, error) {
	if err := statArtifact(path); err != nil {
		return nil, err
	}
	if a.help == nil {
		return nil, nil
	}
	text, err := a.help.Help(ctx, path)
	if err != nil {
		hostFailure(a.logger, a.Name(), path, err)
		return nil, nil
	}
	doc := ParseHelp(text)
	if doc.Usage == "" && len(doc.Options) == 0 && len(doc.Commands) == 0 {
		a.logger.Warn("help output not recognized", "adapter", a.Name(), "path", path)
		return nil, nil
	}
	return helpInvocables(path, doc), nil
}

// HelpDoc is the structure recovered from a command's help text.
type HelpDoc struct {
	Usage       string
	Description string
	Positionals []HelpPositional
	Options     []HelpOption
	Commands    []HelpCommand
}

// HelpPositional is an operand named in the usage line.
type HelpPositional struct {
	Name     string
	Required bool
	Variadic bool
}

// HelpOption is one flag: at least one of Long, Short or Switch is set.
type HelpOption struct {
	Long        string
	Short       string
	Switch      string
	Value       string
	Description string
}

// Name is the option's canonical parameter name.
func (o HelpOption) Name() string {
	switch {
	case o.Long != "":
		return o.Long
	case o.Switch != "":
		return o.Switch
	}
	return o.Short
}

// HelpCommand is a subcommand listed in a commands section.
type HelpCommand struct {
	Name        string
	Description string
}

var (
	usageLine     = regexp.MustCompile(`(?i)^\s*usage:\s*(.*)$`)
	sectionHeader = regexp.MustCompile(`^([A-Za-z][A-Za-z ]*):\s*$`)
	commandEntry  = regexp.MustCompile(`^\s+([a-z][\w-]*)(?:,\s*[\w-]+)*\s{2,}(\S.*)$`)
	columnGap     = regexp.MustCompile(`\s{2,}`)
	placeholderRe = regexp.MustCompile(`[^A-Za-z0-9_]+`)
)

type helpSection int

const (
	sectionNone helpSection = iota
	sectionCommands
	sectionOptions
	sectionOther
)

func classifySection(title string) helpSection {
	t := strings.ToLower(title)
	switch {
	case strings.Contains(t, "command"):
		return sectionCommands
	case strings.Contains(t, "option"), strings.Contains(t, "flag"), strings.Contains(t, "switch"):
		return sectionOptions
	}
	return sectionOther
}

// ParseHelp recovers usage, options and subcommands from help text. It accepts
// GNU (--long, -s), POSIX and Windows (/X) option styles.
func ParseHelp(text string) HelpDoc {
	var doc HelpDoc
	var desc []string
	section := sectionNone
	seen := make(map[string]bool)
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	for i := 0; i < len(lines); i++ {
		line := strings.TrimRight(lines[i], " \t")
		trimmed := strings.TrimSpace(line)

		if m := usageLine.FindStringSubmatch(line); m != nil && doc.Usage == "" {
			usage := strings.TrimSpace(m[1])
			if usage == "" && i+1 < len(lines) {
				i++
				usage = strings.TrimSpace(lines[i])
			}
			doc.Usage = usage
			doc.Positionals = usagePositionals(usage)
			continue
		}
		if m := sectionHeader.FindStringSubmatch(line); m != nil {
			section = classifySection(m[1])
			continue
		}
		if trimmed == "" {
			continue
		}

		if isOptionLine(trimmed) && section != sectionCommands {
			opt := parseOptionLine(trimmed)
			if key := opt.Name(); key != "" && key != "help" && key != "?" && !seen[key] {
				seen[key] = true
				doc.Options = append(doc.Options, opt)
			}
			continue
		}

		switch section {
		case sectionNone:
			desc = append(desc, trimmed)
		case sectionCommands:
			if m := commandEntry.FindStringSubmatch(line); m != nil && m[1] != "help" {
				doc.Commands = append(doc.Commands, HelpCommand{Name: m[1], Description: strings.TrimSpace(m[2])})
			}
		}
	}
	doc.Description = strings.Join(desc, " ")
	return doc
}

func isOptionLine(s string) bool {
	if len(s) < 2 {
		return false
	}
	if s[0] == '-' {
		return s[1] == '-' || isAlnum(s[1])
	}
	return s[0] == '/' && (isAlnum(s[1]) || s[1] == '?')
}

func isAlnum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

func parseOptionLine(s string) HelpOption {
	var opt HelpOption
	spec := s
	if loc := columnGap.FindStringIndex(s); loc != nil {
		spec = s[:loc[0]]
		opt.Description = strings.TrimSpace(s[loc[1]:])
	}
	for _, tok := range strings.FieldsFunc(spec, func(r rune) bool { return r == ',' || r == ' ' || r == '|' }) {
		switch {
		case strings.HasPrefix(tok, "--"):
			name, value, _ := strings.Cut(tok[2:], "=")
			opt.Long = strings.Trim(name, "[")
			if value != "" {
				opt.Value = value
			}
		case strings.HasPrefix(tok, "-") && len(tok) > 1:
			opt.Short = tok[1:]
		case strings.HasPrefix(tok, "/") && len(tok) > 1:
			name, value, _ := strings.Cut(tok[1:], ":")
			opt.Switch = name
			if value != "" {
				opt.Value = value
			}
		default:
			if opt.Value == "" {
				opt.Value = tok
			}
		}
	}
	opt.Value = strings.Trim(opt.Value, "<>[]=")
	return opt
}

// usagePositionals reads operands from a usage line. The first word is the
// program; option groups and command placeholders are skipped.
func usagePositionals(usage string) []HelpPositional {
	groups := usageGroups(usage)
	var out []HelpPositional
	for i, g := range groups {
		if i == 0 {
			continue
		}
		variadic := strings.HasSuffix(g, "...")
		g = strings.TrimSuffix(g, "...")
		required := true
		switch {
		case strings.HasPrefix(g, "[") && strings.HasSuffix(g, "]"):
			required = false
			g = g[1 : len(g)-1]
		case strings.HasPrefix(g, "<") && strings.HasSuffix(g, ">"):
			g = g[1 : len(g)-1]
		case strings.ToUpper(g) == g && strings.ToLower(g) != g:
		default:
			continue // literal word
		}
		g = strings.Trim(g, "<>")
		if strings.HasSuffix(g, "...") {
			variadic = true
			g = strings.TrimSuffix(g, "...")
		}
		if g == "" || strings.HasPrefix(g, "-") || strings.HasPrefix(g, "/") {
			continue
		}
		name := strings.Trim(placeholderRe.ReplaceAllString(strings.ToLower(g), "_"), "_")
		switch name {
		case "", "options", "option", "flags", "flag", "command", "subcommand", "cmd":
			continue
		}
		out = append(out, HelpPositional{Name: name, Required: required, Variadic: variadic})
	}
	return out
}

// usageGroups splits on spaces outside brackets.
func usageGroups(s string) []string {
	var out []string
	depth := 0
	start := -1
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '[' || c == '<' || c == '(' || c == '{':
			depth++
		case c == ']' || c == '>' || c == ')' || c == '}':
			if depth > 0 {
				depth--
			}
		case c == ' ' && depth == 0:
			if start >= 0 {
				out = append(out, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, s[start:])
	}
	return out
}

func argStyle(opts []HelpOption) string {
	for _, o := range opts {
		if o.Switch != "" {
			return "windows"
		}
	}
	for _, o := range opts {
		if o.Long != "" {
			return "gnu"
		}
	}
	return "posix"
}

func helpInvocables(path string, doc HelpDoc) []catalog.Invocable {
	tool := scriptName(path)
	style := argStyle(doc.Options)

	var params []catalog.Parameter
	for _, p := range doc.Positionals {
		param := typedParam(p.Name, "string", p.Required)
		if p.Variadic {
			param.Type = textscan.TypeArray
			param.NativeType = "string..."
		}
		params = append(params, param)
	}
	for _, o := range doc.Options {
		p := catalog.Parameter{Name: o.Name(), Description: o.Description}
		if o.Value == "" {
			p.Type, p.NativeType = textscan.TypeBoolean, "flag"
		} else {
			p.Type, p.NativeType = textscan.SemanticTypeOf(strings.ToLower(o.Value)), o.Value
		}
		params = append(params, p)
	}

	root := catalog.Invocable{
		Name:          tool,
		Kind:          catalog.KindNativeExecutable,
		Signature:     doc.Usage,
		Parameters:    params,
		Documentation: doc.Description,
		Origin:        catalog.Origin{Path: path},
		Execution:     catalog.ProcessInvoke{Executable: path, ArgStyle: style},
	}
	if root.Signature == "" {
		root.Signature = tool
	}
	out := []catalog.Invocable{finish(root, confidence.Factors{
		Documentation: evidence(doc.Description != "", "help text"),
		Parameters:    evidence(doc.Usage != "", "help usage"),
	})}

	for _, c := range doc.Commands {
		inv := catalog.Invocable{
			Name:          tool + " " + c.Name,
			Kind:          catalog.KindNativeExecutable,
			Signature:     tool + " " + c.Name,
			Documentation: c.Description,
			Origin:        catalog.Origin{Path: path},
			Execution:     catalog.ProcessInvoke{Executable: path, Subcommand: c.Name, ArgStyle: style},
		}
		out = append(out, finish(inv, confidence.Factors{
			Documentation: evidence(c.Description != "", "help command list"),
		}))
	}
	return out
}
