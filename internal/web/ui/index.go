// Package ui renders the transfer page and serves its script and stylesheet.
//
// The page is plain HTML; static/app.js drives the /api endpoints from the
// browser. Nothing is inlined, so the page works under a 'self' CSP.
package ui

import (
	"context"
	"embed"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strconv"

	"github.com/a-h/templ"
)

//go:embed static
var staticFiles embed.FS

// StaticPrefix is where Static is mounted.
const StaticPrefix = "/static/"

// Static serves the embedded assets; mount it under StaticPrefix with the
// prefix stripped.
func Static() http.Handler {
	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	return http.FileServer(http.FS(sub))
}

// IndexData is what the transfer page needs from the server.
type IndexData struct {
	Engines       []string
	DefaultEngine string
	MaxFileSize   int64
	RequireAPIKey bool
	ExportSink    string // empty when exports are disabled
}

// Index renders the transfer page.
func Index(d IndexData) templ.Component {
	return layout(d,
		connectionSection(d),
		fileSection(),
		columnsSection(),
		previewSection(),
		transferSection(d),
		apiReference(),
	)
}

func layout(d IndexData, children ...templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &printer{w: w}
		p.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		p.raw(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		p.raw(`<title>Ingest</title><link rel="stylesheet" href="` + StaticPrefix + `app.css"></head>`)
		p.raw("<body")
		p.attr("data-require-api-key", strconv.FormatBool(d.RequireAPIKey))
		p.attr("data-max-file-size", strconv.FormatInt(d.MaxFileSize, 10))
		p.attr("data-export-sink", d.ExportSink)
		p.raw(">")

		p.raw("<h1>Ingest</h1><p class=\"muted\">Move rows between a database table and a CSV file. Uploads up to ")
		p.text(formatBytes(d.MaxFileSize))
		p.raw(".</p>")

		for _, c := range children {
			if p.err != nil {
				break
			}
			p.err = c.Render(ctx, w)
		}

		p.raw(`<script src="` + StaticPrefix + `app.js" defer></script></body></html>`)
		return p.err
	})
}

func connectionSection(d IndexData) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		p := &printer{w: w}
		p.raw("<section id=\"connection-section\"><h2>Connection</h2>")

		p.raw("<label>Direction <select id=\"direction\">")
		p.raw("<option value=\"export\">Database table to file</option>")
		p.raw("<option value=\"import\">File to database table</option>")
		p.raw("</select></label>")

		p.raw("<label>Engine <select id=\"engine\">")
		for _, name := range d.Engines {
			p.raw("<option")
			p.attr("value", name)
			if name == d.DefaultEngine {
				p.raw(" selected")
			}
			p.raw(">")
			p.text(name)
			p.raw("</option>")
		}
		p.raw("</select></label><br>")

		p.field("Host", "host", "text", "localhost")
		p.field("Port", "port", "number", "9000")
		p.field("Database", "database", "text", "default")
		p.field("User", "user", "text", "default")
		p.field("Token", "token", "password", "")
		p.raw("<br><label>Table <input id=\"table\" type=\"text\" list=\"table-options\" autocomplete=\"off\"></label>")
		p.raw("<datalist id=\"table-options\"></datalist>")

		p.raw("<div id=\"api-key-row\" hidden>")
		p.field("API key", "api-key", "password", "")
		p.raw("</div>")

		p.raw("<div class=\"actions\">")
		p.button("test-connection", "Test connection", true)
		p.button("load-tables", "Load tables", true)
		p.button("load-columns", "Load columns", false)
		p.raw("</div></section>")
		return p.err
	})
}

func fileSection() templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		p := &printer{w: w}
		p.raw("<section id=\"file-section\" hidden><h2>File</h2>")
		p.raw("<label>CSV file <input id=\"file\" type=\"file\" accept=\".csv,text/csv\"></label>")
		p.raw("<label>Delimiter <select id=\"delimiter\">")
		for _, o := range []struct{ value, label string }{
			{",", "comma"}, {";", "semicolon"}, {"tab", "tab"}, {"|", "pipe"},
		} {
			p.raw("<option")
			p.attr("value", o.value)
			p.raw(">")
			p.text(o.label)
			p.raw("</option>")
		}
		p.raw("</select></label>")
		p.raw("<label>Charset <input id=\"charset\" type=\"text\" placeholder=\"utf-8\" size=\"10\"></label>")
		p.raw("<div class=\"actions\">")
		p.button("load-file-columns", "Read columns", false)
		p.raw("</div></section>")
		return p.err
	})
}

func columnsSection() templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		p := &printer{w: w}
		p.raw("<section id=\"columns-section\" hidden><h2>Columns</h2>")
		p.raw("<div id=\"columns-list\" class=\"grid\"></div>")
		p.raw("<div class=\"actions\">")
		p.button("select-all", "Select all", true)
		p.button("select-none", "Select none", true)
		p.button("preview", "Preview", false)
		p.raw("</div></section>")
		return p.err
	})
}

func previewSection() templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		p := &printer{w: w}
		p.raw("<section id=\"preview-section\" hidden><h2>Preview</h2>")
		p.raw("<div class=\"scroll\"><table id=\"preview-table\"></table></div></section>")
		return p.err
	})
}

func transferSection(d IndexData) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		p := &printer{w: w}
		p.raw("<section id=\"transfer-section\"><h2>Transfer</h2>")
		if d.ExportSink == "" {
			p.raw("<p class=\"muted\">Exports are disabled on this server.</p>")
		} else {
			p.raw("<p class=\"muted\">Exports are written to the ")
			p.text(d.ExportSink)
			p.raw(" store.</p>")
		}
		p.raw("<div class=\"actions\">")
		p.button("start", "Export table", false)
		p.raw("</div>")
		p.raw("<progress id=\"progress\" max=\"100\" value=\"0\" hidden></progress>")
		p.raw("<div id=\"status\" class=\"status\" role=\"status\" hidden></div>")
		p.raw("<div id=\"result\" hidden></div></section>")
		return p.err
	})
}

type endpoint struct {
	method, path, summary string
}

var endpoints = []endpoint{
	{"POST", "/api/clickhouse/test", "Test a connection configuration"},
	{"POST", "/api/clickhouse/tables", "List tables"},
	{"POST", "/api/clickhouse/columns", "List the columns of a table"},
	{"POST", "/api/clickhouse/preview?columns=a,b", "Preview up to 100 rows"},
	{"POST", "/api/file/columns", "Read the header of an uploaded file"},
	{"POST", "/api/file/preview", "Preview up to 100 lines of an uploaded file"},
	{"POST", "/api/ingest/clickhouse-to-file?columns=a,b", "Export a table to a CSV file"},
	{"POST", "/api/ingest/file-to-clickhouse", "Import a CSV file into a table"},
	{"GET", "/api/exports/{name}", "Download an export"},
	{"GET", "/api/engines", "List supported engines"},
}

func apiReference() templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		p := &printer{w: w}
		p.raw("<details><summary>API</summary><table><tbody>")
		for _, e := range endpoints {
			p.raw("<tr><td>")
			p.text(e.method)
			p.raw("</td><td><code>")
			p.text(e.path)
			p.raw("</code></td><td>")
			p.text(e.summary)
			p.raw("</td></tr>")
		}
		p.raw("</tbody></table></details>")
		return p.err
	})
}

// printer keeps the first write error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) raw(s string) {
	if p.err == nil {
		_, p.err = io.WriteString(p.w, s)
	}
}

func (p *printer) text(s string) {
	p.raw(templ.EscapeString(s))
}

func (p *printer) attr(name, value string) {
	p.raw(" " + name + "=\"")
	p.text(value)
	p.raw("\"")
}

func (p *printer) field(label, id, typ, placeholder string) {
	p.raw("<label>")
	p.text(label)
	p.raw(" <input")
	p.attr("id", id)
	p.attr("type", typ)
	if placeholder != "" {
		p.attr("placeholder", placeholder)
	}
	p.raw("></label>")
}

func (p *printer) button(id, label string, secondary bool) {
	p.raw("<button type=\"button\"")
	p.attr("id", id)
	if secondary {
		p.raw(" class=\"secondary\"")
	}
	p.raw(">")
	p.text(label)
	p.raw("</button>")
}

func formatBytes(n int64) string {
	const mib = 1 << 20
	if n >= mib && n%mib == 0 {
		return fmt.Sprintf("%d MiB", n/mib)
	}
	return fmt.Sprintf("%d bytes", n)
}
