// Package i18n holds per-locale user-facing messages for error codes.
package i18n

import (
	"bytes"
	"text/template"
)

// Code mirrors the machine-readable error code as a plain string to avoid
// an import cycle with the errors package.
type Code = string

// Catalog maps error codes to user-facing message templates for one locale.
type Catalog struct {
	locale   string
	messages map[Code]string
}

// Locale returns the catalog's locale tag.
func (c *Catalog) Locale() string {
	return c.locale
}

// Format renders the message for code with the given metadata. Templates use
// {{.Key}} placeholders resolved against the metadata map. Unknown codes and
// template failures fall back to the raw code so the caller always gets a
// non-empty message.
func (c *Catalog) Format(code Code, metadata map[string]string) string {
	msg, ok := c.messages[code]
	if !ok {
		return code
	}
	if len(metadata) == 0 {
		return msg
	}
	tmpl, err := template.New(code).Parse(msg)
	if err != nil {
		return msg
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, metadata); err != nil {
		return msg
	}
	return buf.String()
}

var catalogs = map[string]*Catalog{
	"en-US": enUSCatalog,
}

// GetCatalog returns the catalog for the locale, falling back to en-US.
func GetCatalog(locale string) *Catalog {
	if c, ok := catalogs[locale]; ok {
		return c
	}
	return enUSCatalog
}
