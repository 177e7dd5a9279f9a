package adapters

import (
	"context"
	"os"

	"github.com/charmbracelet/log"

	"github.com/mvp-joe/callmap/internal/catalog"
	"github.com/mvp-joe/callmap/internal/confidence"
	"github.com/mvp-joe/callmap/internal/textscan"
)

const (
	nsSOAP11 = "http://schemas.xmlsoap.org/wsdl/soap/"
	nsSOAP12 = "http://schemas.xmlsoap.org/wsdl/soap12/"
)

// WSDLAdapter lists the operations of a WSDL 1.1 document, one per bound
// port. Document/literal wrapped messages are expanded into the wrapper
// element's fields.
type WSDLAdapter struct {
	logger *log.Logger
}

func NewWSDLAdapter(deps Deps) *WSDLAdapter {
	return &WSDLAdapter{logger: deps.logger()}
}

func (a *WSDLAdapter) Name() string { return "wsdl" }

func (a *WSDLAdapter) Kinds() []catalog.FileKind {
	return []catalog.FileKind{catalog.KindWSDL}
}

func (a *WSDLAdapter) Policy() catalog.DedupPolicy { return catalog.FirstSeenWins }

type wsdlDoc struct {
	path         string
	namespace    string
	messages     map[string]*xmlNode
	portTypes    map[string]*xmlNode
	bindings     map[string]*xmlNode
	elements     map[string]*xmlNode
	complexTypes map[string]*xmlNode
}

func (a *WSDLAdapter) Extract(ctx context.Context, path string) ([]catalog.Invocable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	root, err := parseXMLTree(data)
	if err != nil {
		a.logger.Warn("failed to parse", "adapter", a.Name(), "path", path, "err", err)
		return nil, nil
	}
	if root.Name.Local != "definitions" {
		a.logger.Warn("not a WSDL 1.1 document", "adapter", a.Name(), "path", path, "root", root.Name.Local)
		return nil, nil
	}

	d := &wsdlDoc{
		path:         path,
		namespace:    root.attr("targetNamespace"),
		messages:     byName(root.all("message")),
		portTypes:    byName(root.all("portType")),
		bindings:     byName(root.all("binding")),
		elements:     map[string]*xmlNode{},
		complexTypes: map[string]*xmlNode{},
	}
	if types := root.first("types"); types != nil {
		for _, schema := range types.all("schema") {
			for name, el := range byName(schema.all("element")) {
				d.elements[name] = el
			}
			for name, ct := range byName(schema.all("complexType")) {
				d.complexTypes[name] = ct
			}
		}
	}

	var out []catalog.Invocable
	bound := map[string]bool{}
	for _, svc := range root.all("service") {
		for _, port := range svc.all("port") {
			binding := d.bindings[localPart(port.attr("binding"))]
			if binding == nil {
				continue
			}
			endpoint := ""
			if addr := port.first("address"); addr != nil {
				endpoint = addr.attr("location")
			}
			out = append(out, d.bindingOperations(binding, endpoint)...)
			bound[binding.attr("name")] = true
		}
	}
	// bindings no service exposes
	for _, binding := range root.all("binding") {
		if !bound[binding.attr("name")] {
			out = append(out, d.bindingOperations(binding, "")...)
			bound[binding.attr("name")] = true
		}
	}
	if len(bound) == 0 {
		for _, pt := range root.all("portType") {
			for _, op := range pt.all("operation") {
				out = append(out, d.operation(op, nil, "", "", "1.1", "document"))
			}
		}
	}
	return out, nil
}

func byName(nodes []*xmlNode) map[string]*xmlNode {
	m := make(map[string]*xmlNode, len(nodes))
	for _, n := range nodes {
		if name := n.attr("name"); name != "" {
			m[name] = n
		}
	}
	return m
}

func (d *wsdlDoc) bindingOperations(binding *xmlNode, endpoint string) []catalog.Invocable {
	pt := d.portTypes[localPart(binding.attr("type"))]
	if pt == nil {
		return nil
	}
	version, style := "1.1", "document"
	for _, c := range binding.all("binding") {
		if c.Name.Space == nsSOAP12 {
			version = "1.2"
		}
		if s := c.attr("style"); s != "" {
			style = s
		}
	}
	if binding.first("binding") == nil {
		// an HTTP or custom binding: not a SOAP endpoint
		return nil
	}

	bops := byName(binding.all("operation"))
	var out []catalog.Invocable
	for _, op := range pt.all("operation") {
		out = append(out, d.operation(op, bops[op.attr("name")], binding.attr("name"), endpoint, version, style))
	}
	return out
}

func (d *wsdlDoc) operation(op, bop *xmlNode, binding, endpoint, version, style string) catalog.Invocable {
	name := op.attr("name")
	action := ""
	if bop != nil {
		if so := bop.first("operation"); so != nil && (so.Name.Space == nsSOAP11 || so.Name.Space == nsSOAP12) {
			action = so.attr("soapAction")
			if s := so.attr("style"); s != "" {
				style = s
			}
		}
	}

	// A message that resolves but carries no parts establishes nothing.
	var params []catalog.Parameter
	if in := op.first("input"); in != nil {
		if msg := d.messages[localPart(in.attr("message"))]; msg != nil {
			params = d.messageParams(msg)
		}
	}

	var ret *catalog.ReturnType
	if out := op.first("output"); out != nil {
		if msg := d.messages[localPart(out.attr("message"))]; msg != nil {
			ret = d.messageReturn(msg)
		}
	}

	doc := op.childText("documentation")
	inv := catalog.Invocable{
		Name:          name,
		Kind:          catalog.KindWSDL,
		Parameters:    params,
		Return:        ret,
		Documentation: doc,
		Origin:        catalog.Origin{Path: d.path, Line: op.Line},
		Execution: catalog.SOAPCall{
			Endpoint:    endpoint,
			SOAPAction:  action,
			Operation:   name,
			Namespace:   d.namespace,
			Binding:     binding,
			Style:       style,
			SOAPVersion: version,
		},
	}
	return finish(inv, confidence.Factors{
		Documentation: evidence(doc != "", "wsdl:documentation"),
		Parameters:    evidence(len(params) > 0, "input message"),
		ReturnType:    evidence(ret != nil, "output message"),
	})
}

// messageParams expands each part. A part naming a wrapper element yields the
// element's fields; any other part is one parameter.
func (d *wsdlDoc) messageParams(msg *xmlNode) []catalog.Parameter {
	var params []catalog.Parameter
	for _, part := range msg.all("part") {
		if el := part.attr("element"); el != "" {
			if fields, ok := d.elementFields(localPart(el)); ok {
				params = append(params, fields...)
				continue
			}
			params = append(params, typedParam(part.attr("name"), d.elementType(localPart(el)), true))
			continue
		}
		params = append(params, typedParam(part.attr("name"), localPart(part.attr("type")), true))
	}
	return params
}

// messageReturn unwraps a single-part response whose wrapper holds one field.
func (d *wsdlDoc) messageReturn(msg *xmlNode) *catalog.ReturnType {
	parts := msg.all("part")
	if len(parts) == 0 {
		return nil
	}
	if len(parts) > 1 {
		return &catalog.ReturnType{Type: textscan.TypeObject, Native: msg.attr("name")}
	}
	part := parts[0]
	if el := localPart(part.attr("element")); el != "" {
		fields, ok := d.elementFields(el)
		switch {
		case ok && len(fields) == 1:
			return &catalog.ReturnType{Type: fields[0].Type, Native: fields[0].NativeType}
		case ok && len(fields) == 0:
			return nil
		case ok:
			return &catalog.ReturnType{Type: textscan.TypeObject, Native: el}
		}
		return catalog.NewReturn(d.elementType(el))
	}
	return catalog.NewReturn(localPart(part.attr("type")))
}

// elementType is the declared simple type of a global element, else its name.
func (d *wsdlDoc) elementType(name string) string {
	if el := d.elements[name]; el != nil && el.attr("type") != "" {
		return localPart(el.attr("type"))
	}
	return name
}

// elementFields lists the child elements of a global element's complex type.
// ok is false when the element is not a complex type.
func (d *wsdlDoc) elementFields(name string) ([]catalog.Parameter, bool) {
	el := d.elements[name]
	if el == nil {
		return nil, false
	}
	ct := el.first("complexType")
	if ct == nil && el.attr("type") != "" {
		ct = d.complexTypes[localPart(el.attr("type"))]
	}
	if ct == nil {
		return nil, false
	}
	return d.complexFields(ct, 0), true
}

func (d *wsdlDoc) complexFields(ct *xmlNode, depth int) []catalog.Parameter {
	if depth > 8 {
		return nil
	}
	var out []catalog.Parameter
	for _, c := range ct.Children {
		switch c.Name.Local {
		case "sequence", "all":
			out = append(out, d.complexFields(c, depth+1)...)
		case "choice":
			for _, p := range d.complexFields(c, depth+1) {
				p.Required = false
				out = append(out, p)
			}
		case "complexContent":
			if ext := c.first("extension"); ext != nil {
				if base := d.complexTypes[localPart(ext.attr("base"))]; base != nil {
					out = append(out, d.complexFields(base, depth+1)...)
				}
				out = append(out, d.complexFields(ext, depth+1)...)
			}
		case "element":
			out = append(out, xsdField(c))
		}
	}
	return out
}

func xsdField(el *xmlNode) catalog.Parameter {
	name := el.attr("name")
	if name == "" {
		name = localPart(el.attr("ref"))
	}
	native := localPart(el.attr("type"))
	if native == "" {
		native = "object"
	}
	p := typedParam(name, native, el.attr("minOccurs") != "0")
	if doc := el.first("annotation"); doc != nil {
		p.Description = doc.childText("documentation")
	}
	if occurs := el.attr("maxOccurs"); occurs == "unbounded" || (isDigits(occurs) && occurs != "0" && occurs != "1") {
		p.Type = textscan.TypeArray
		p.NativeType = native + "[]"
	}
	return p
}
