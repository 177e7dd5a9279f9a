package adapters

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/magiconair/properties"

	"github.com/mvp-joe/callmap/internal/catalog"
	"github.com/mvp-joe/callmap/internal/confidence"
)

// JNDIAdapter lists the names a Java EE deployment binds or references:
// resource and EJB references in web.xml/ejb-jar.xml, vendor jndi-name
// bindings, Tomcat context resources and jndi.properties destinations.
type JNDIAdapter struct {
	logger *log.Logger
}

func NewJNDIAdapter(deps Deps) *JNDIAdapter {
	return &JNDIAdapter{logger: deps.logger()}
}

func (a *JNDIAdapter) Name() string { return "jndi" }

func (a *JNDIAdapter) Kinds() []catalog.FileKind {
	return []catalog.FileKind{catalog.KindJNDIConfig}
}

func (a *JNDIAdapter) Policy() catalog.DedupPolicy { return catalog.FirstSeenWins }

// jndiEntry is one bound or referenced name before it becomes an invocable.
type jndiEntry struct {
	name         string
	jndiName     string
	resourceType string
	factory      string
	providerURL  string
	doc          string
	line         int
}

func (a *JNDIAdapter) Extract(ctx context.Context, path string) ([]catalog.Invocable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var entries []jndiEntry
	if strings.EqualFold(filepath.Ext(path), ".properties") || !strings.HasPrefix(strings.TrimSpace(string(data)), "<") {
		entries, err = propertyEntries(data)
	} else {
		entries, err = xmlEntries(data)
	}
	if err != nil {
		a.logger.Warn("failed to parse", "adapter", a.Name(), "path", path, "err", err)
		return nil, nil
	}

	out := make([]catalog.Invocable, 0, len(entries))
	for _, e := range entries {
		out = append(out, jndiInvocable(path, e))
	}
	return out, nil
}

// envName qualifies a component-relative reference name.
func envName(name string) string {
	if name == "" || strings.HasPrefix(name, "java:") {
		return name
	}
	return "java:comp/env/" + name
}

// jndiRefs maps standard deployment descriptor reference elements to the
// children holding their name and type. Types are tried in order.
var jndiRefs = map[string]struct {
	name  string
	types []string
}{
	"resource-ref":            {"res-ref-name", []string{"res-type"}},
	"resource-env-ref":        {"resource-env-ref-name", []string{"resource-env-ref-type"}},
	"message-destination-ref": {"message-destination-ref-name", []string{"message-destination-type"}},
	"env-entry":               {"env-entry-name", []string{"env-entry-type"}},
	"ejb-ref":                 {"ejb-ref-name", []string{"remote", "home", "ejb-ref-type"}},
	"ejb-local-ref":           {"ejb-ref-name", []string{"local", "local-home", "ejb-ref-type"}},
	"service-ref":             {"service-ref-name", []string{"service-interface"}},
	"persistence-unit-ref":    {"persistence-unit-ref-name", nil},
	"persistence-context-ref": {"persistence-context-ref-name", nil},
	"data-source":             {"name", []string{"class-name"}},
	"administered-object":     {"name", []string{"interface-name", "class-name"}},
	"jms-connection-factory":  {"name", []string{"interface-name"}},
	"jms-destination":         {"name", []string{"interface-name"}},
	"connection-factory":      {"name", []string{"interface-name"}},
	"mail-session":            {"name", nil},
	"message-destination":     {"message-destination-name", nil},
}

func xmlEntries(data []byte) ([]jndiEntry, error) {
	root, err := parseXMLTree(data)
	if err != nil {
		return nil, err
	}

	var out []jndiEntry
	var visit func(n *xmlNode, parentHandled bool)
	visit = func(n *xmlNode, parentHandled bool) {
		handled := false
		switch n.Name.Local {
		case "Resource", "Environment", "ResourceLink":
			// Tomcat context.xml / server.xml
			if name := n.attr("name"); name != "" {
				e := jndiEntry{
					name:         name,
					jndiName:     envName(name),
					resourceType: n.attr("type"),
					doc:          n.attr("description"),
					line:         n.Line,
				}
				if n.Name.Local == "Resource" {
					e.factory = n.attr("factory")
				}
				if global := n.attr("global"); global != "" {
					e.doc = joinDoc(e.doc, "Links global resource "+global+".")
				}
				out = append(out, e)
				handled = true
			}
		case "jndi-name", "local-jndi-name", "mapped-name", "lookup-name":
			if !parentHandled && n.Text != "" {
				out = append(out, jndiEntry{name: n.Text, jndiName: n.Text, line: n.Line})
			}
		default:
			if ref, ok := jndiRefs[n.Name.Local]; ok {
				if name := n.childText(ref.name); name != "" {
					e := jndiEntry{
						name:     name,
						jndiName: envName(name),
						doc:      n.childText("description"),
						line:     n.Line,
					}
					for _, t := range ref.types {
						if v := n.childText(t); v != "" {
							e.resourceType = v
							break
						}
					}
					// a vendor binding inside the reference names the global target
					for _, b := range []string{"jndi-name", "lookup-name", "mapped-name"} {
						if v := n.childText(b); v != "" {
							e.jndiName = v
							break
						}
					}
					out = append(out, e)
					handled = true
				}
			}
		}
		for _, c := range n.Children {
			visit(c, handled)
		}
	}
	visit(root, false)
	return out, nil
}

const (
	propFactory  = "java.naming.factory.initial"
	propProvider = "java.naming.provider.url"
)

// propertyEntries reads a jndi.properties file. queue.*, topic.* and
// connectionFactoryNames follow the JMS provider conventions; any other key
// mentioning jndi whose value looks like a name is taken as a binding.
func propertyEntries(data []byte) ([]jndiEntry, error) {
	loader := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	props, err := loader.LoadBytes(data)
	if err != nil {
		return nil, err
	}
	text := string(data)
	factory := props.GetString(propFactory, "")
	provider := props.GetString(propProvider, "")

	var out []jndiEntry
	add := func(key, name, typ string) {
		out = append(out, jndiEntry{
			name:         name,
			jndiName:     name,
			resourceType: typ,
			factory:      factory,
			providerURL:  provider,
			line:         propertyLine(text, key),
		})
	}

	keys := props.Keys()
	sort.SliceStable(keys, func(i, j int) bool { return propertyLine(text, keys[i]) < propertyLine(text, keys[j]) })
	for _, key := range keys {
		value := props.GetString(key, "")
		lower := strings.ToLower(key)
		switch {
		case strings.HasPrefix(lower, "java.naming."):
		case strings.HasPrefix(lower, "queue."):
			add(key, key[len("queue."):], "javax.jms.Queue")
		case strings.HasPrefix(lower, "topic."):
			add(key, key[len("topic."):], "javax.jms.Topic")
		case strings.HasPrefix(lower, "dynamicqueues/"), strings.HasPrefix(lower, "dynamictopics/"):
			add(key, key, "")
		case lower == "connectionfactorynames":
			for _, name := range strings.Split(value, ",") {
				if name = strings.TrimSpace(name); name != "" {
					add(key, name, "javax.jms.ConnectionFactory")
				}
			}
		case strings.Contains(lower, "jndi") && looksLikeJNDIName(value):
			add(key, value, "")
		}
	}
	return out, nil
}

func looksLikeJNDIName(v string) bool {
	return strings.HasPrefix(v, "java:") || (strings.Contains(v, "/") && !strings.Contains(v, "://") && !strings.ContainsAny(v, " \t"))
}

// propertyLine is the 1-based line declaring key, or 0.
func propertyLine(text, key string) int {
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, key) {
			continue
		}
		rest := strings.TrimLeft(line[len(key):], " \t")
		if rest == "" || rest[0] == '=' || rest[0] == ':' || len(rest) < len(line[len(key):]) {
			return i + 1
		}
	}
	return 0
}

func jndiInvocable(path string, e jndiEntry) catalog.Invocable {
	inv := catalog.Invocable{
		Name:          e.name,
		Kind:          catalog.KindJNDIConfig,
		Documentation: e.doc,
		Origin:        catalog.Origin{Path: path, Line: e.line},
		Execution: catalog.JNDILookup{
			JNDIName:       e.jndiName,
			ResourceType:   e.resourceType,
			ProviderURL:    e.providerURL,
			ContextFactory: e.factory,
			Descriptor:     path,
		},
	}
	if e.resourceType != "" {
		inv.Return = catalog.NewReturn(e.resourceType)
	}
	// A lookup has no parameter list for a descriptor to establish, so only the
	// description and the declared type count as evidence.
	return finish(inv, confidence.Factors{
		Documentation: evidence(e.doc != "", "description"),
		ReturnType:    evidence(e.resourceType != "", "resource type"),
	})
}
