package rust

import (
	"strings"

	"github.com/Alia5/girgen/internal/codegen/common"
	"github.com/Alia5/girgen/internal/codegen/mapping"
	"github.com/Alia5/girgen/internal/codegen/model"
)

// Templates only ever see the views below. Names are final and every type
// is already mapped, so a template cannot reach back into the model.

type crateView struct {
	Header    string
	Namespace string
	Version   string
	Crate     string
	Alias     string
}

type depView struct {
	Alias      string
	Crate      string
	Namespace  string
	Version    string
	CrateVer   string
	PathToDeps string
}

type cargoView struct {
	crateView
	CrateVersion string
	Deps         []depView
	Libc         bool
	Links        []string
}

type readmeView struct {
	cargoView
	Types      []string
	Functions  int
	Constants  int
	Unmapped   []string
	Suppressed []string
}

type libView struct {
	crateView
	Modules []string
}

type ffiView struct {
	crateView
	mapping.Raw
	Links []string
}

type fnView struct {
	// Indent is prepended to every line of the function.
	Indent     string
	Name       string
	Args       string
	Result     string
	Unsafe     bool
	Deprecated bool
	Doc        []string
	Body       []string
}

type typeView struct {
	crateView
	Name    string
	RawPath string
	Plain   bool
	// Ref, Release and GetType are complete Rust expressions.
	Ref           string
	Release       string
	GetType       string
	Upcasts       []string
	Methods       []fnView
	ManualMethods []string
	Manual        string
	Deprecated    bool
	Doc           []string
}

type memberView struct {
	Name string
	Raw  string
	Doc  []string
}

type enumView struct {
	crateView
	Name       string
	RawPath    string
	Members    []memberView
	Functions  []fnView
	Manual     string
	Deprecated bool
	Doc        []string
}

type callbackView struct {
	crateView
	Name    string
	RawPath string
	Manual  string
	Doc     []string
}

type functionsView struct {
	crateView
	Functions []fnView
	Manual    []string
}

type constantView struct {
	Name string
	Type string
	Raw  string
	Doc  []string
}

type constantsView struct {
	crateView
	Constants []constantView
}

func newCrateView(ns *mapping.Namespace) crateView {
	return crateView{
		Header:    generatedMarker + " from " + ns.Name + "-" + ns.Version + ". DO NOT EDIT.",
		Namespace: ns.Name,
		Version:   ns.Version,
		Crate:     ns.Crate,
		Alias:     ns.Alias,
	}
}

func newCargoView(ns *mapping.Namespace) cargoView {
	v := cargoView{
		crateView:    newCrateView(ns),
		CrateVersion: common.CrateVersion(ns.Version),
		Libc:         ns.Libc,
		Links:        ns.Links,
	}
	for _, d := range ns.Deps {
		v.Deps = append(v.Deps, depView{
			Alias:      d.Alias,
			Crate:      d.Name,
			Namespace:  d.Namespace,
			Version:    d.Version,
			CrateVer:   common.CrateVersion(d.Version),
			PathToDeps: "../" + d.Name,
		})
	}
	return v
}

func newReadmeView(ns *mapping.Namespace) readmeView {
	v := readmeView{
		cargoView:  newCargoView(ns),
		Functions:  len(ns.Functions),
		Constants:  len(ns.Constants),
		Unmapped:   ns.Unmapped,
		Suppressed: ns.Suppressed,
	}
	for _, t := range ns.Types {
		v.Types = append(v.Types, t.Name)
	}
	return v
}

func newLibView(ns *mapping.Namespace) libView {
	v := libView{crateView: newCrateView(ns)}
	for _, t := range ns.Types {
		v.Modules = append(v.Modules, t.File)
	}
	for _, e := range ns.Enums {
		v.Modules = append(v.Modules, e.File)
	}
	for _, c := range ns.Callbacks {
		v.Modules = append(v.Modules, c.File)
	}
	if len(ns.Functions) > 0 || len(ns.ManualFunctions) > 0 {
		v.Modules = append(v.Modules, "functions")
	}
	if len(ns.Constants) > 0 {
		v.Modules = append(v.Modules, "constants")
	}
	return v
}

func newTypeView(ns *mapping.Namespace, t *mapping.Type) typeView {
	v := typeView{
		crateView:     newCrateView(ns),
		Name:          t.Name,
		RawPath:       rawPath(t.Raw),
		Plain:         t.Plain(),
		Upcasts:       t.Upcasts,
		ManualMethods: t.ManualMethods,
		Manual:        t.Manual,
		Deprecated:    t.Deprecated,
		Doc:           docLines(t.Doc),
	}
	if h := t.Handle; h != nil {
		if h.Ref != "" {
			v.Ref = strings.ReplaceAll(h.Ref, "$", "ptr")
		}
		v.Release = strings.ReplaceAll(h.Release, "$", "self.0.as_ptr()")
		v.GetType = h.GetType
	}
	for _, m := range t.Methods {
		v.Methods = append(v.Methods, newFnView(m, "    "))
	}
	return v
}

func newEnumView(ns *mapping.Namespace, e *mapping.Enum) enumView {
	v := enumView{
		crateView:  newCrateView(ns),
		Name:       e.Name,
		RawPath:    rawPath(e.Raw),
		Manual:     e.Manual,
		Deprecated: e.Deprecated,
		Doc:        docLines(e.Doc),
	}
	for _, m := range e.Members {
		v.Members = append(v.Members, memberView{Name: m.Name, Raw: rawPath(m.Raw), Doc: docLines(m.Doc)})
	}
	for _, f := range e.Functions {
		v.Functions = append(v.Functions, newFnView(f, "    "))
	}
	return v
}

func newCallbackView(ns *mapping.Namespace, c *mapping.Callback) callbackView {
	return callbackView{
		crateView: newCrateView(ns),
		Name:      c.Name,
		RawPath:   rawPath(c.Raw),
		Manual:    c.Manual,
		Doc:       docLines(c.Doc),
	}
}

func newFunctionsView(ns *mapping.Namespace) functionsView {
	v := functionsView{crateView: newCrateView(ns), Manual: ns.ManualFunctions}
	for _, f := range ns.Functions {
		v.Functions = append(v.Functions, newFnView(f, ""))
	}
	return v
}

func newConstantsView(ns *mapping.Namespace) constantsView {
	v := constantsView{crateView: newCrateView(ns)}
	for _, c := range ns.Constants {
		v.Constants = append(v.Constants, constantView{Name: c.Name, Type: c.Type, Raw: rawPath(c.Raw), Doc: docLines(c.Doc)})
	}
	return v
}

func newFnView(sig *mapping.Signature, indent string) fnView {
	var args []string
	if sig.Instance != nil {
		args = append(args, sig.Instance.Desc.Target)
	}
	for _, p := range sig.Params {
		args = append(args, p.Name+": "+p.Desc.Target)
	}
	v := fnView{
		Indent:     indent,
		Name:       sig.Name,
		Args:       strings.Join(args, ", "),
		Result:     sig.Result,
		Unsafe:     sig.Unsafe,
		Deprecated: sig.Deprecated,
		Doc:        docLines(sig.Doc),
		Body:       body(sig),
	}
	for _, h := range sig.Hazards {
		var section []string
		switch h {
		case mapping.HazardRaw:
			section = []string{"# Safety", "", "Raw pointers are passed to `" + sig.Symbol + "` unchecked."}
		case mapping.HazardNull:
			section = []string{"# Panics", "", "Debug builds panic when `" + sig.Symbol + "` returns NULL for a value it promised."}
		}
		if len(v.Doc) > 0 {
			v.Doc = append(v.Doc, "")
		}
		v.Doc = append(v.Doc, section...)
	}
	return v
}

// rawPath names an ffi item from a safe module.
func rawPath(name string) string {
	if strings.Contains(name, "::") {
		return name
	}
	return "ffi::" + name
}

func docLines(doc string) []string {
	doc = strings.TrimSpace(doc)
	if doc == "" {
		return nil
	}
	lines := strings.Split(doc, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t\r")
	}
	return lines
}

// templateFor selects the template of a wrapper type by entity kind.
func templateFor(k model.Kind) string {
	switch k {
	case model.KindClass:
		return "class"
	case model.KindInterface:
		return "interface"
	case model.KindUnion:
		return "union"
	}
	return "record"
}
