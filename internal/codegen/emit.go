package codegen

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
	"unicode"

	"lsts.pt/imc/catalog"
)

// goType returns the Go type a typed accessor for a field of kind k
// returns/accepts.
func goType(fd *catalog.FieldDescriptor) string {
	switch fd.Kind {
	case catalog.KindInt8, catalog.KindInt16, catalog.KindInt32, catalog.KindInt64:
		return "int64"
	case catalog.KindUInt8, catalog.KindUInt16, catalog.KindUInt32, catalog.KindUInt64:
		return "uint64"
	case catalog.KindFP32, catalog.KindFP64:
		return "float64"
	case catalog.KindRawData:
		return "[]byte"
	case catalog.KindPlainText:
		return "string"
	case catalog.KindMessage:
		return "*wire.Message"
	case catalog.KindMessageList:
		return "[]*wire.Message"
	}
	return "interface{}"
}

// exportedName converts a schema field or message name (often
// space-separated title case, e.g. "Request ID") into a Go-exported
// identifier.
func exportedName(s string) string {
	var b strings.Builder
	upperNext := true
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			upperNext = true
			continue
		}
		if upperNext {
			b.WriteRune(unicode.ToUpper(r))
			upperNext = false
		} else {
			b.WriteRune(r)
		}
	}
	name := b.String()
	if name == "" {
		return "Field"
	}
	// Schema names may start with a digit (e.g. a "3D" prefix), which is
	// not a legal Go identifier start.
	if name[0] >= '0' && name[0] <= '9' {
		name = "N" + name
	}
	return name
}

type templateField struct {
	GoName    string
	FieldName string // the catalog field name, looked up via Get/Set
	GoType    string
}

type templateMessage struct {
	TypeName string
	Abbrev   string
	Fields   []templateField
}

// Generate emits one typed wrapper type per descriptor into w, in
// package pkg.
func Generate(w io.Writer, pkg string, descs []*catalog.MessageDescriptor) error {
	msgs := make([]templateMessage, 0, len(descs))
	for _, md := range descs {
		fields := make([]templateField, 0, len(md.Fields))
		for i := range md.Fields {
			fd := &md.Fields[i]
			fields = append(fields, templateField{
				GoName:    exportedName(fd.Name),
				FieldName: fd.Name,
				GoType:    goType(fd),
			})
		}
		msgs = append(msgs, templateMessage{
			TypeName: exportedName(md.Abbrev),
			Abbrev:   md.Abbrev,
			Fields:   fields,
		})
	}

	return genTemplate.Execute(w, struct {
		Package  string
		Messages []templateMessage
	}{Package: pkg, Messages: msgs})
}

// GenerateDir wipes and repopulates dir with one generated Go file per
// schema category among descs. overwrite must be true if dir already
// exists and is non-empty.
func GenerateDir(dir, pkg string, descs []*catalog.MessageDescriptor, overwrite bool) (int, error) {
	entries, err := os.ReadDir(dir)
	if err == nil && len(entries) > 0 && !overwrite {
		return 0, fmt.Errorf("codegen: output directory %s is not empty (use --overwrite)", dir)
	}
	if err == nil {
		if err := os.RemoveAll(dir); err != nil {
			return 0, fmt.Errorf("codegen: wiping %s: %w", dir, err)
		}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("codegen: creating %s: %w", dir, err)
	}

	groups := GroupByCategory(descs)
	categories := make([]string, 0, len(groups))
	for cat := range groups {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	files := 0
	for _, cat := range categories {
		stem := CategoryFileName(cat)
		path := filepath.Join(dir, stem+".go")
		f, err := os.Create(path)
		if err != nil {
			return files, fmt.Errorf("codegen: creating %s: %w", path, err)
		}
		err = Generate(f, pkg, groups[cat])
		closeErr := f.Close()
		if err != nil {
			return files, err
		}
		if closeErr != nil {
			return files, closeErr
		}
		files++
	}
	return files, nil
}

var genTemplate = template.Must(template.New("imcgen").Parse(`// Code generated by cmd/imcgen. DO NOT EDIT.

package {{.Package}}

import (
	"fmt"

	"lsts.pt/imc/catalog"
	"lsts.pt/imc/wire"
)
{{range .Messages}}
// {{.TypeName}} is a typed wrapper over the {{.Abbrev}} message: it
// stores nothing of its own and reads/writes through the embedded
// *wire.Message, so it can never drift from what Get/Set would validate.
type {{.TypeName}} struct {
	*wire.Message
}

// New{{.TypeName}} constructs a {{.TypeName}} from cat with every field
// still null.
func New{{.TypeName}}(cat *catalog.Catalog) (*{{.TypeName}}, error) {
	desc, ok := cat.ByAbbrev("{{.Abbrev}}")
	if !ok {
		return nil, fmt.Errorf("imcgen: catalog has no %s message type", "{{.Abbrev}}")
	}
	msg, err := wire.NewMessage(desc, nil)
	if err != nil {
		return nil, err
	}
	return &{{.TypeName}}{Message: msg}, nil
}

// Wrap{{.TypeName}} adapts an already-decoded *wire.Message of this type.
func Wrap{{.TypeName}}(msg *wire.Message) *{{.TypeName}} {
	return &{{.TypeName}}{Message: msg}
}
{{range .Fields}}
func (m *{{$.TypeName}}) {{.GoName}}() {{.GoType}} {
	v, _ := m.Get("{{.FieldName}}")
	out, _ := v.({{.GoType}})
	return out
}

func (m *{{$.TypeName}}) Set{{.GoName}}(v {{.GoType}}) error {
	return m.Message.Set("{{.FieldName}}", v)
}
{{end}}
{{end}}
`))
