package adapters

import (
	"context"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/mvp-joe/callmap/internal/catalog"
	"github.com/mvp-joe/callmap/internal/confidence"
	"github.com/mvp-joe/callmap/internal/hosts"
)

// TypeLibAdapter lists COM interface members described by a type library.
type TypeLibAdapter struct {
	logger *log.Logger
	host   hosts.TypeLibHost
}

func NewTypeLibAdapter(deps Deps) *TypeLibAdapter {
	return &TypeLibAdapter{logger: deps.logger(), host: deps.Hosts.TypeLib}
}

func (a *TypeLibAdapter) Name() string { return "typelib" }

func (a *TypeLibAdapter) Kinds() []catalog.FileKind {
	return []catalog.FileKind{catalog.KindTypeLibrary}
}

func (a *TypeLibAdapter) Policy() catalog.DedupPolicy { return catalog.FirstSeenWins }

func (a *TypeLibAdapter) Extract(ctx context.Context, path string) ([]catalog.Invocable, error) {
	return a.extract(ctx, path, catalog.KindTypeLibrary)
}

func (a *TypeLibAdapter) extract(ctx context.Context, path string, kind catalog.FileKind) ([]catalog.Invocable, error) {
	if err := statArtifact(path); err != nil {
		return nil, err
	}
	if a.host == nil {
		return nil, nil
	}
	lib, err := a.host.Describe(ctx, path)
	if err != nil {
		hostFailure(a.logger, a.Name(), path, err)
		return nil, nil
	}
	if lib == nil {
		return nil, nil
	}

	var out []catalog.Invocable
	for _, iface := range lib.Interfaces {
		co := implementingCoClass(lib, iface.Name)
		for _, m := range iface.Methods {
			out = append(out, comInvocable(path, kind, iface, co, m))
		}
	}
	return out, nil
}

// implementingCoClass returns the first coclass listing iface.
func implementingCoClass(lib *hosts.TypeLibrary, iface string) hosts.CoClass {
	for _, co := range lib.CoClasses {
		for _, name := range co.Interfaces {
			if name == iface {
				return co
			}
		}
	}
	return hosts.CoClass{}
}

func comInvocable(path string, kind catalog.FileKind, iface hosts.ComInterface, co hosts.CoClass, m hosts.ComMethod) catalog.Invocable {
	invokeKind := m.InvokeKind
	if invokeKind == "" {
		invokeKind = "method"
	}

	var params []catalog.Parameter
	retNative := m.ReturnType
	for _, p := range m.Params {
		if p.HasFlag("retval") {
			retNative = strings.TrimSuffix(strings.TrimSpace(p.Type), "*")
			continue
		}
		if p.HasFlag("out") && !p.HasFlag("in") {
			continue
		}
		required := !p.HasFlag("optional") && !p.HasFlag("defaultvalue")
		params = append(params, typedParam(p.Name, p.Type, required))
	}

	exec := catalog.COMDispatch{
		ServerPath:  path,
		Interface:   iface.Name,
		InterfaceID: iface.IID,
		CLSID:       co.CLSID,
		ProgID:      co.ProgID,
		InvokeKind:  invokeKind,
		Member:      m.Name,
	}
	if iface.Dispatch {
		id := m.DispID
		exec.DispID = &id
	}

	inv := catalog.Invocable{
		Name:          iface.Name + "." + accessorName(invokeKind, m.Name),
		Kind:          kind,
		Parameters:    params,
		Documentation: strings.TrimSpace(m.Doc),
		Origin:        catalog.Origin{Path: path},
		Execution:     exec,
	}
	if !isCOMVoid(retNative) {
		inv.Return = catalog.NewReturn(retNative)
	}
	return finish(inv, confidence.Factors{
		Documentation: evidence(inv.Documentation != "", "type library helpstring"),
		Parameters:    "type library",
		ReturnType:    "type library",
	})
}

// accessorName prefixes property accessors with their invoke kind so a
// property's getter and setter get distinct names.
func accessorName(invokeKind, member string) string {
	switch invokeKind {
	case "propget":
		return "get_" + member
	case "propput":
		return "put_" + member
	case "propputref":
		return "putref_" + member
	}
	return member
}

// isCOMVoid treats HRESULT as no value: it is the transport status, not a result.
func isCOMVoid(t string) bool {
	t = strings.TrimSpace(t)
	return t == "" || t == "void" || t == "HRESULT"
}
