package markdown

import (
	"bytes"
	"context"
	_ "embed"
	"strings"
	"sync"
	"text/template"

	"github.com/dmorgan81/sdtool/internal/log"
	"github.com/samber/do"
)

var (
	//go:embed assets/generated.md.tmpl
	generatedTmpl string
	//go:embed assets/list.md.tmpl
	listTmpl string
)

// Generated describes a successful txt2img reply. Image is base64 PNG data.
type Generated struct {
	Image    string
	Prompt   string
	Seed     int64
	Settings string
}

type List struct {
	Heading string
	Items   []string
}

type Templator struct {
	tmpl *template.Template
	once sync.Once
}

func NewTemplator(_ *do.Injector) (*Templator, error) {
	return &Templator{}, nil
}

func (t *Templator) Generated(ctx context.Context, params Generated) (string, error) {
	log.FromContextOrDiscard(ctx).WithGroup("templator").Debug("rendering generated image", "seed", params.Seed)
	return t.execute("generated", params)
}

func (t *Templator) List(ctx context.Context, params List) (string, error) {
	log.FromContextOrDiscard(ctx).WithGroup("templator").Debug("rendering list", "heading", params.Heading, "items", len(params.Items))
	return t.execute("list", params)
}

func (t *Templator) execute(name string, data any) (string, error) {
	t.once.Do(func() {
		t.tmpl = template.Must(template.New("generated").Parse(generatedTmpl))
		template.Must(t.tmpl.New("list").Parse(listTmpl))
	})

	var out bytes.Buffer
	if err := t.tmpl.ExecuteTemplate(&out, name, data); err != nil {
		return "", err
	}
	return strings.TrimRight(out.String(), "\n"), nil
}
