// Package i18n serves the localized texts of the bot from embedded TOML catalogs.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"strings"

	"github.com/BurntSushi/toml"
	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"

	"github.com/m3rciful/topupbot/core/logger"
)

//go:embed locales/*.toml
var localeFS embed.FS

// Default is the language used when none is configured.
const Default = "uz"

// Catalog resolves message ids for one language, falling back to the default one.
type Catalog struct {
	lang      language.Tag
	localizer *goi18n.Localizer
}

var bundle = mustBundle()

func mustBundle() *goi18n.Bundle {
	b, err := newBundle(localeFS)
	if err != nil {
		panic(err)
	}
	return b
}

func newBundle(fsys fs.FS) (*goi18n.Bundle, error) {
	b := goi18n.NewBundle(language.MustParse(Default))
	b.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	files, err := fs.Glob(fsys, "locales/*.toml")
	if err != nil {
		return nil, err
	}
	for _, name := range files {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		if _, err := b.ParseMessageFileBytes(data, path.Base(name)); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
	}
	return b, nil
}

// Languages lists the languages that have a catalog.
func Languages() []string {
	tags := bundle.LanguageTags()
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		out = append(out, t.String())
	}
	return out
}

// New returns the catalog for lang. A blank lang selects Default.
func New(lang string) (*Catalog, error) {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		lang = Default
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return nil, fmt.Errorf("i18n: invalid language %q: %w", lang, err)
	}
	supported := false
	for _, t := range bundle.LanguageTags() {
		if t == tag {
			supported = true
			break
		}
	}
	if !supported {
		return nil, fmt.Errorf("i18n: no catalog for %q", lang)
	}
	return &Catalog{lang: tag, localizer: goi18n.NewLocalizer(bundle, tag.String())}, nil
}

// Language returns the catalog language tag.
func (c *Catalog) Language() string { return c.lang.String() }

// Text renders message id with data. Unknown ids render as the id itself.
func (c *Catalog) Text(id string, data map[string]any) string {
	msg, err := c.localizer.Localize(&goi18n.LocalizeConfig{
		MessageID:    id,
		TemplateData: data,
	})
	if err != nil {
		logger.L.Warn("missing translation",
			slog.String("component", "i18n"),
			slog.String("event", "i18n.miss"),
			slog.String("lang", c.lang.String()),
			slog.String("message_id", id),
		)
		if msg != "" {
			return msg
		}
		return id
	}
	return msg
}
