package publish

import (
	"bytes"
	"fmt"
	"html"
	"path/filepath"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

// Body is what a documentation page shows.
type Body struct {
	Database    string
	Generated   time.Time
	Attachments []string // file names, in upload order
	Overview    []byte   // markdown, may be empty
}

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(gmhtml.WithXHTML()),
)

// RenderBody renders a page in Confluence storage format. Diagrams are embedded
// as attachment images and the workbook is linked.
func RenderBody(b Body) (string, error) {
	var sb strings.Builder

	fmt.Fprintf(&sb, "<h1>Database documentation: %s</h1>\n", html.EscapeString(b.Database))
	fmt.Fprintf(&sb, "<p>Generated %s</p>\n", b.Generated.UTC().Format("2006-01-02 15:04:05 UTC"))

	var images, workbooks []string
	for _, name := range b.Attachments {
		switch strings.ToLower(filepath.Ext(name)) {
		case ".png", ".svg":
			images = append(images, name)
		case ".xlsx":
			workbooks = append(workbooks, name)
		}
	}

	if len(images) > 0 {
		sb.WriteString("<h2>Diagrams</h2>\n")
		for _, name := range images {
			fmt.Fprintf(&sb, "<h3>%s</h3>\n<p><ac:image><ri:attachment ri:filename=\"%s\" /></ac:image></p>\n",
				html.EscapeString(name), html.EscapeString(name))
		}
	}

	if len(workbooks) > 0 {
		sb.WriteString("<h2>Data dictionary</h2>\n")
		for _, name := range workbooks {
			fmt.Fprintf(&sb, "<p><ac:link><ri:attachment ri:filename=\"%s\" /><ac:plain-text-link-body><![CDATA[%s]]></ac:plain-text-link-body></ac:link></p>\n",
				html.EscapeString(name), strings.ReplaceAll(name, "]]>", "]]]]><![CDATA[>"))
		}
	}

	if len(bytes.TrimSpace(b.Overview)) > 0 {
		sb.WriteString("<h2>Overview</h2>\n")
		var buf bytes.Buffer
		if err := markdown.Convert(b.Overview, &buf); err != nil {
			return "", fmt.Errorf("failed to render overview: %w", err)
		}
		sb.Write(buf.Bytes())
	}

	if len(b.Attachments) > 0 {
		sb.WriteString("<h2>Attachments</h2>\n<ul>\n")
		for _, name := range b.Attachments {
			fmt.Fprintf(&sb, "<li>%s</li>\n", html.EscapeString(name))
		}
		sb.WriteString("</ul>\n")
	}

	return sb.String(), nil
}
