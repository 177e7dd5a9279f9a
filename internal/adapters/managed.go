package adapters

import (
	"context"
	"encoding/xml"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/mvp-joe/callmap/internal/catalog"
	"github.com/mvp-joe/callmap/internal/confidence"
	"github.com/mvp-joe/callmap/internal/hosts"
)

// ManagedAdapter lists the public methods of a managed assembly through the
// reflection host and merges the compiler-generated XML documentation file.
type ManagedAdapter struct {
	logger *log.Logger
	host   hosts.ReflectionHost
}

func NewManagedAdapter(deps Deps) *ManagedAdapter {
	return &ManagedAdapter{logger: deps.logger(), host: deps.Hosts.Reflection}
}

func (a *ManagedAdapter) Name() string { return "managed" }

func (a *ManagedAdapter) Kinds() []catalog.FileKind {
	return []catalog.FileKind{catalog.KindManagedAssembly}
}

func (a *ManagedAdapter) Policy() catalog.DedupPolicy { return catalog.FirstSeenWins }

func (a *ManagedAdapter) Extract(ctx context.Context, path string) ([]catalog.Invocable, error) {
	if err := statArtifact(path); err != nil {
		return nil, err
	}
	if a.host == nil {
		return nil, nil
	}
	asm, err := a.host.Reflect(ctx, path)
	if err != nil {
		hostFailure(a.logger, a.Name(), path, err)
		return nil, nil
	}
	if asm == nil {
		return nil, nil
	}

	docs := loadXMLDocs(xmlDocPath(path), a.logger)

	var out []catalog.Invocable
	for _, t := range asm.Types {
		typeName := t.FullName()
		for _, m := range t.Methods {
			out = append(out, managedInvocable(path, typeName, m, docs))
		}
	}
	return out, nil
}

func managedInvocable(path, typeName string, m hosts.ManagedMethod, docs xmlDocs) catalog.Invocable {
	params := make([]catalog.Parameter, 0, len(m.Parameters))
	nativeTypes := make([]string, 0, len(m.Parameters))
	for _, p := range m.Parameters {
		nativeTypes = append(nativeTypes, p.Type)
		if p.IsOut {
			continue
		}
		params = append(params, typedParam(p.Name, p.Type, !p.IsOptional))
	}

	inv := catalog.Invocable{
		Name:       typeName + "." + m.Name,
		Kind:       catalog.KindManagedAssembly,
		Parameters: params,
		Origin:     catalog.Origin{Path: path},
		Execution: catalog.ReflectionCall{
			AssemblyPath: path,
			TypeName:     typeName,
			MethodName:   m.Name,
			IsStatic:     m.IsStatic,
		},
	}
	if !isManagedVoid(m.ReturnType) {
		inv.Return = catalog.NewReturn(m.ReturnType)
	}

	factors := confidence.Factors{
		Parameters: "reflection metadata",
		ReturnType: "reflection metadata",
	}
	if doc, ok := docs.lookup(typeName, m.Name, nativeTypes); ok {
		inv.Documentation = joinDoc(doc.Summary, doc.Remarks)
		for i := range inv.Parameters {
			inv.Parameters[i].Description = doc.param(inv.Parameters[i].Name)
		}
		if inv.Documentation != "" {
			factors.Documentation = "XML documentation"
		}
	}
	return finish(inv, factors)
}

func isManagedVoid(t string) bool {
	return t == "" || t == "System.Void" || t == "void" || t == "Void"
}

// xmlDocPath is the conventional location of the documentation file: the
// assembly path with its extension replaced by .xml.
func xmlDocPath(assembly string) string {
	return strings.TrimSuffix(assembly, filepath.Ext(assembly)) + ".xml"
}

type xmlDocFile struct {
	Members []xmlDocMember `xml:"members>member"`
}

type xmlDocMember struct {
	Name    string        `xml:"name,attr"`
	Summary string        `xml:"summary"`
	Remarks string        `xml:"remarks"`
	Returns string        `xml:"returns"`
	Params  []xmlDocParam `xml:"param"`
}

type xmlDocParam struct {
	Name string `xml:"name,attr"`
	Text string `xml:",chardata"`
}

func (m xmlDocMember) param(name string) string {
	for _, p := range m.Params {
		if p.Name == name {
			return collapseDoc(p.Text)
		}
	}
	return ""
}

// xmlDocs indexes method members ("M:Type.Method(Args)") by "Type.Method", keeping
// every overload's argument list.
type xmlDocs map[string][]xmlDocEntry

type xmlDocEntry struct {
	args   string
	member xmlDocMember
}

func loadXMLDocs(path string, logger *log.Logger) xmlDocs {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var file xmlDocFile
	if err := xml.Unmarshal(data, &file); err != nil {
		logger.Warn("invalid XML documentation file", "path", path, "err", err)
		return nil
	}
	docs := make(xmlDocs)
	for _, m := range file.Members {
		if !strings.HasPrefix(m.Name, "M:") {
			continue
		}
		id := m.Name[2:]
		args := ""
		if i := strings.IndexByte(id, '('); i >= 0 {
			args = strings.TrimSuffix(id[i+1:], ")")
			id = id[:i]
		}
		m.Summary = collapseDoc(m.Summary)
		m.Remarks = collapseDoc(m.Remarks)
		docs[id] = append(docs[id], xmlDocEntry{args: args, member: m})
	}
	logger.Debug("loaded XML documentation", "path", path, "members", len(docs))
	return docs
}

// lookup prefers the overload whose argument list matches exactly, then falls
// back to the first documented overload.
func (d xmlDocs) lookup(typeName, method string, argTypes []string) (xmlDocMember, bool) {
	entries := d[typeName+"."+method]
	if len(entries) == 0 {
		return xmlDocMember{}, false
	}
	want := strings.Join(argTypes, ",")
	for _, e := range entries {
		if e.args == want {
			return e.member, true
		}
	}
	return entries[0].member, true
}

// collapseDoc joins the lines of an XML doc element and trims indentation.
func collapseDoc(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
