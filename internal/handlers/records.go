package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"

	"quakeqa/internal/contextutil"
	"quakeqa/internal/quake"
	"quakeqa/internal/storage"
)

// RecordLookup resolves a citation's source identifier to its dataset record.
type RecordLookup interface {
	GetBySource(ctx context.Context, source string) (*storage.QuakeRecord, error)
}

// SegmentLookup lists the segments cut from a record.
type SegmentLookup interface {
	ListBySource(ctx context.Context, source string) ([]*storage.SegmentRecord, error)
}

// RecordHandler serves the dataset record behind a citation, as JSON or as a rendered page.
type RecordHandler struct {
	records  RecordLookup
	segments SegmentLookup
	parser   goldmark.Markdown
	template *template.Template
}

// recordPageData holds template data for rendered record pages.
type recordPageData struct {
	Title   string
	Source  string
	Content template.HTML
}

// RecordResponse is the JSON form of a dataset record.
//
// swagger:model RecordResponse
type RecordResponse struct {
	Source    string            `json:"source"`
	Time      time.Time         `json:"time"`
	Latitude  float64           `json:"latitude"`
	Longitude float64           `json:"longitude"`
	Magnitude float64           `json:"magnitude"`
	DepthKm   float64           `json:"depth_km"`
	Region    string            `json:"region"`
	EventType string            `json:"event_type,omitempty"`
	Text      string            `json:"text"`
	Segments  []SegmentResponse `json:"segments"`
}

// SegmentResponse is one indexed segment of a record.
//
// swagger:model SegmentResponse
type SegmentResponse struct {
	ID         string `json:"id"`
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
}

// NewRecordHandler creates a new handler for serving cited records.
func NewRecordHandler(records RecordLookup, segments SegmentLookup) *RecordHandler {
	tmpl := template.Must(template.New("record").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Title}}</title>
  <style>
    :root {
      color-scheme: dark;
    }
    body {
      font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif;
      margin: 0 auto;
      padding: 2rem;
      max-width: 900px;
      line-height: 1.7;
      background: #050b18;
      color: #e4ecff;
    }
    header {
      margin-bottom: 2rem;
      border-bottom: 1px solid rgba(148, 163, 184, 0.2);
      padding-bottom: 1.5rem;
    }
    h1 {
      margin-top: 0;
      color: #fff;
      font-size: 1.75rem;
    }
    article {
      background: rgba(12, 19, 35, 0.85);
      border: 1px solid rgba(249, 115, 22, 0.25);
      border-radius: 16px;
      padding: 2rem;
    }
    article h2, article h3 {
      color: #fdba74;
      margin-top: 1.5rem;
    }
    table {
      border-collapse: collapse;
      width: 100%;
    }
    th, td {
      text-align: left;
      padding: 0.4rem 0.75rem;
      border-bottom: 1px solid rgba(148, 163, 184, 0.2);
    }
    blockquote {
      border-left: 4px solid rgba(249, 115, 22, 0.6);
      padding-left: 1rem;
      margin-left: 0;
      color: #fed7aa;
    }
    code {
      font-family: 'SFMono-Regular', Consolas, 'Liberation Mono', Menlo, monospace;
      font-size: 0.85rem;
      color: #cbd5ff;
    }
    .meta {
      color: #94a3b8;
      font-size: 0.95rem;
    }
    a {
      color: #60a5fa;
    }
  </style>
</head>
<body>
  <header>
    <h1>{{.Title}}</h1>
    <p class="meta">Source: {{.Source}} &middot; <a href="/">Ask another question</a></p>
  </header>
  <article>{{.Content}}</article>
</body>
</html>`))

	return &RecordHandler{
		records:  records,
		segments: segments,
		parser: goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				extension.Table,
			),
			goldmark.WithParserOptions(
				parser.WithAutoHeadingID(),
			),
		),
		template: tmpl,
	}
}

// ServeHTTP renders the requested record as an HTML page.
//
// swagger:route GET /records/{source} recordPage
//
// # Rendered record page
//
// ---
// produces:
// - text/html
// responses:
//
//	'200':
//	  description: Rendered record
//	'404':
//	  description: Unknown source
func (h *RecordHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	record, segments, status, msg := h.lookup(ctx, chi.URLParam(r, "source"))
	if status != http.StatusOK {
		http.Error(w, msg, status)
		return
	}

	htmlContent, err := h.renderMarkdown([]byte(recordMarkdown(record, segments)))
	if err != nil {
		logger.ErrorContext(ctx, "failed to render markdown", "source", record.Source, "error", err)
		http.Error(w, "failed to render record", http.StatusInternalServerError)
		return
	}

	pageData := recordPageData{
		Title:   fmt.Sprintf("M%s %s", quake.FormatNumber(record.Magnitude), record.Region),
		Source:  record.Source,
		Content: template.HTML(htmlContent),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.template.Execute(w, pageData); err != nil {
		logger.ErrorContext(ctx, "failed to execute record template", "source", record.Source, "error", err)
		http.Error(w, "failed to render record", http.StatusInternalServerError)
		return
	}
}

// ServeJSON returns the requested record and its segments as JSON.
//
// swagger:route GET /api/v1/records/{source} getRecord
//
// # Get a cited record
//
// ---
// produces:
// - application/json
// responses:
//
//	'200':
//	  description: The record
//	  schema:
//	    "$ref": "#/definitions/RecordResponse"
//	'404':
//	  description: Unknown source
func (h *RecordHandler) ServeJSON(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	record, segments, status, msg := h.lookup(ctx, chi.URLParam(r, "source"))
	if status != http.StatusOK {
		writeError(w, status, msg)
		return
	}

	resp := RecordResponse{
		Source:    record.Source,
		Time:      record.OccurredAt,
		Latitude:  record.Latitude,
		Longitude: record.Longitude,
		Magnitude: record.Magnitude,
		DepthKm:   record.DepthKm,
		Region:    record.Region,
		EventType: record.EventType,
		Text:      record.Text,
		Segments:  make([]SegmentResponse, len(segments)),
	}
	for i, s := range segments {
		resp.Segments[i] = SegmentResponse{ID: s.ID, ChunkIndex: s.ChunkIndex, Text: s.Text}
	}
	writeJSON(ctx, w, http.StatusOK, resp)
}

// lookup decodes the source URL parameter and loads the record and its segments.
// A status other than 200 comes with the message to send.
func (h *RecordHandler) lookup(ctx context.Context, rawSource string) (*storage.QuakeRecord, []*storage.SegmentRecord, int, string) {
	logger := contextutil.LoggerFromContext(ctx)

	source, err := url.PathUnescape(strings.TrimSpace(rawSource))
	if err != nil {
		return nil, nil, http.StatusBadRequest, "invalid source encoding"
	}
	if source == "" {
		return nil, nil, http.StatusBadRequest, "source is required"
	}

	record, err := h.records.GetBySource(ctx, source)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			logger.WarnContext(ctx, "unknown record requested", "source", source)
			return nil, nil, http.StatusNotFound, "record not found"
		}
		logger.ErrorContext(ctx, "failed to get record", "source", source, "error", err)
		return nil, nil, http.StatusInternalServerError, "failed to get record"
	}

	segments, err := h.segments.ListBySource(ctx, source)
	if err != nil {
		logger.ErrorContext(ctx, "failed to list segments", "source", source, "error", err)
		return nil, nil, http.StatusInternalServerError, "failed to get record"
	}
	return record, segments, http.StatusOK, ""
}

func (h *RecordHandler) renderMarkdown(content []byte) (string, error) {
	var buf bytes.Buffer
	if err := h.parser.Convert(content, &buf); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	return buf.String(), nil
}

// recordMarkdown lays out a record as a field table, its normalized text and its segments.
func recordMarkdown(r *storage.QuakeRecord, segments []*storage.SegmentRecord) string {
	var b strings.Builder
	b.WriteString("| Field | Value |\n|---|---|\n")
	rows := [][2]string{
		{"Time (UTC)", r.OccurredAt.UTC().Format(quake.DisplayTimeLayout)},
		{"Region", r.Region},
		{"Magnitude", quake.FormatNumber(r.Magnitude)},
		{"Depth (km)", quake.FormatNumber(r.DepthKm)},
		{"Latitude", quake.FormatNumber(r.Latitude)},
		{"Longitude", quake.FormatNumber(r.Longitude)},
	}
	if r.EventType != "" {
		rows = append(rows, [2]string{"Event type", r.EventType})
	}
	for _, row := range rows {
		fmt.Fprintf(&b, "| %s | %s |\n", row[0], escapeCell(row[1]))
	}

	b.WriteString("\n## Indexed text\n\n")
	fmt.Fprintf(&b, "> %s\n", escapeInline(r.Text))

	if len(segments) > 1 {
		b.WriteString("\n## Segments\n\n")
		for _, s := range segments {
			fmt.Fprintf(&b, "%d. %s `%s`\n", s.ChunkIndex+1, escapeInline(s.Text), s.ID)
		}
	}
	return b.String()
}

var inlineEscaper = strings.NewReplacer(
	`\`, `\\`, "`", "\\`", "*", `\*`, "_", `\_`, "[", `\[`, "]", `\]`,
	"<", `\<`, ">", `\>`, "#", `\#`, "\n", " ",
)

func escapeInline(s string) string {
	return inlineEscaper.Replace(s)
}

func escapeCell(s string) string {
	return strings.ReplaceAll(escapeInline(s), "|", `\|`)
}
