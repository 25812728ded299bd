// Package locale renders notification intents into text. Each language
// is a YAML table keyed by notify.Key; a table missing any key fails to
// load, so there is no silent fallback at render time. Language choice
// falls back in order: the user's stored preference, the Telegram client
// language, the bundle default.
package locale

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"text/template"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"telegram-store-bot/notify"
)

//go:embed locales/*.yaml
var builtin embed.FS

type table struct {
	Code     string            `yaml:"code"`
	Name     string            `yaml:"name"`
	Statuses map[string]string `yaml:"statuses"`
	Buttons  map[string]string `yaml:"buttons"`
	Messages map[string]string `yaml:"messages"`
}

// Locale is one loaded language.
type Locale struct {
	Code string
	Name string

	messages map[notify.Key]*template.Template
	buttons  map[notify.ActionKind]*template.Template
	statuses map[string]string
}

// Bundle is the set of loaded locales.
type Bundle struct {
	locales  map[string]*Locale
	order    []string
	matcher  language.Matcher
	fallback string
}

// Load reads the built-in locale tables.
func Load(fallback string) (*Bundle, error) {
	sub, err := fs.Sub(builtin, "locales")
	if err != nil {
		return nil, err
	}
	return LoadFS(sub, fallback)
}

// LoadFS reads every *.yaml file at the root of fsys. fallback must be one
// of the loaded codes.
func LoadFS(fsys fs.FS, fallback string) (*Bundle, error) {
	files, err := fs.Glob(fsys, "*.yaml")
	if err != nil {
		return nil, fmt.Errorf("locale: %w", err)
	}
	sort.Strings(files)

	b := &Bundle{locales: make(map[string]*Locale), fallback: fallback}
	for _, name := range files {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("locale: %w", err)
		}
		var t table
		if err := yaml.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("locale: %s: %w", name, err)
		}
		if t.Code == "" {
			t.Code = name[:len(name)-len(path.Ext(name))]
		}
		if _, dup := b.locales[t.Code]; dup {
			return nil, fmt.Errorf("locale: %s: duplicate code %q", name, t.Code)
		}
		l, err := compile(t)
		if err != nil {
			return nil, fmt.Errorf("locale: %s: %w", name, err)
		}
		b.locales[t.Code] = l
		b.order = append(b.order, t.Code)
	}
	if _, ok := b.locales[fallback]; !ok {
		return nil, fmt.Errorf("locale: default language %q is not loaded", fallback)
	}

	// The fallback goes first so the matcher returns it when nothing fits.
	tags := []language.Tag{language.Make(fallback)}
	for _, code := range b.order {
		if code != fallback {
			tags = append(tags, language.Make(code))
		}
	}
	b.matcher = language.NewMatcher(tags)
	return b, nil
}

func compile(t table) (*Locale, error) {
	l := &Locale{
		Code:     t.Code,
		Name:     t.Name,
		messages: make(map[notify.Key]*template.Template),
		buttons:  make(map[notify.ActionKind]*template.Template),
		statuses: t.Statuses,
	}
	if l.Name == "" {
		l.Name = t.Code
	}
	funcs := template.FuncMap{"status": l.Status}

	for _, key := range notify.Keys {
		src, ok := t.Messages[string(key)]
		if !ok {
			return nil, fmt.Errorf("missing message %q", key)
		}
		tmpl, err := template.New(string(key)).Funcs(funcs).Option("missingkey=error").Parse(src)
		if err != nil {
			return nil, fmt.Errorf("message %q: %w", key, err)
		}
		l.messages[key] = tmpl
	}
	for _, kind := range notify.ActionKinds {
		src, ok := t.Buttons[string(kind)]
		if !ok {
			return nil, fmt.Errorf("missing button %q", kind)
		}
		tmpl, err := template.New(string(kind)).Option("missingkey=error").Parse(src)
		if err != nil {
			return nil, fmt.Errorf("button %q: %w", kind, err)
		}
		l.buttons[kind] = tmpl
	}
	return l, nil
}

// Status returns the display name of an order status.
func (l *Locale) Status(s string) string {
	if name, ok := l.statuses[s]; ok {
		return name
	}
	return s
}

// Message renders the text for key.
func (l *Locale) Message(key notify.Key, args notify.Args) (string, error) {
	tmpl, ok := l.messages[key]
	if !ok {
		return "", fmt.Errorf("locale %s: unknown message %q", l.Code, key)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, args); err != nil {
		return "", fmt.Errorf("locale %s: render %q: %w", l.Code, key, err)
	}
	return buf.String(), nil
}

// Button renders the label for a.
func (l *Locale) Button(a notify.Action) (string, error) {
	tmpl, ok := l.buttons[a.Kind]
	if !ok {
		return "", fmt.Errorf("locale %s: unknown button %q", l.Code, a.Kind)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, a); err != nil {
		return "", fmt.Errorf("locale %s: render button %q: %w", l.Code, a.Kind, err)
	}
	return buf.String(), nil
}

// Has reports whether code is a loaded locale.
func (b *Bundle) Has(code string) bool {
	_, ok := b.locales[code]
	return ok
}

// Get returns the locale for code, or the default.
func (b *Bundle) Get(code string) *Locale {
	if l, ok := b.locales[code]; ok {
		return l
	}
	return b.locales[b.fallback]
}

// Match picks the locale for a user: the stored preference if loaded,
// otherwise the closest match to the client language, otherwise the
// default.
func (b *Bundle) Match(preference, clientLanguage string) *Locale {
	if l, ok := b.locales[preference]; ok {
		return l
	}
	if clientLanguage == "" {
		return b.locales[b.fallback]
	}
	_, idx, conf := b.matcher.Match(language.Make(clientLanguage))
	if conf == language.No {
		return b.locales[b.fallback]
	}
	tags := b.tagCodes()
	return b.locales[tags[idx]]
}

func (b *Bundle) tagCodes() []string {
	codes := []string{b.fallback}
	for _, code := range b.order {
		if code != b.fallback {
			codes = append(codes, code)
		}
	}
	return codes
}

// Locales returns all loaded locales, default first.
func (b *Bundle) Locales() []*Locale {
	out := make([]*Locale, 0, len(b.locales))
	for _, code := range b.tagCodes() {
		out = append(out, b.locales[code])
	}
	return out
}
