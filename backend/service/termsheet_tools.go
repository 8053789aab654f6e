package service

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

const (
	maxSearchMatches = 10
	searchContext    = 5
)

var headingPattern = regexp.MustCompile(`^(#{1,3})\s`)

// termsheetDocument answers the model's lookups against one document's markdown
type termsheetDocument struct {
	lines []string
}

func newTermsheetDocument(markdown string) *termsheetDocument {
	return &termsheetDocument{lines: strings.Split(markdown, "\n")}
}

// Search returns up to ten matching lines, each with five lines of context either side
func (d *termsheetDocument) Search(query string) string {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return "Empty query."
	}

	var matches []int
	for i, line := range d.lines {
		if strings.Contains(strings.ToLower(line), q) {
			matches = append(matches, i)
			if len(matches) == maxSearchMatches {
				break
			}
		}
	}
	if len(matches) == 0 {
		return fmt.Sprintf("No matches found for '%s'.", query)
	}

	chunks := make([]string, 0, len(matches))
	for _, m := range matches {
		start := max(0, m-searchContext)
		end := min(len(d.lines), m+searchContext+1)
		var sb strings.Builder
		for j := start; j < end; j++ {
			marker := "   "
			if j == m {
				marker = ">>>"
			}
			if j > start {
				sb.WriteByte('\n')
			}
			fmt.Fprintf(&sb, "%s %s", marker, d.lines[j])
		}
		chunks = append(chunks, sb.String())
	}

	return fmt.Sprintf("Found %d match(es) for '%s':\n\n%s", len(matches), query, strings.Join(chunks, "\n---\n"))
}

type heading struct {
	line  int
	level int
}

func (d *termsheetDocument) headings() []heading {
	var out []heading
	for i, line := range d.lines {
		if m := headingPattern.FindStringSubmatch(line); m != nil {
			out = append(out, heading{line: i, level: len(m[1])})
		}
	}
	return out
}

// Sections lists every markdown heading with its line index
func (d *termsheetDocument) Sections() string {
	hs := d.headings()
	if len(hs) == 0 {
		return "No markdown headings found in this document."
	}

	var sb strings.Builder
	sb.WriteString("Document sections:")
	for _, h := range hs {
		fmt.Fprintf(&sb, "\n  Line %d: %s", h.line, strings.TrimSpace(d.lines[h.line]))
	}
	return sb.String()
}

// Section returns the best-matching heading's body, up to the next heading
// of the same or a higher level. Headings are scored by the share of query
// terms they contain.
func (d *termsheetDocument) Section(name string) string {
	terms := strings.Fields(strings.ToLower(name))
	hs := d.headings()

	best, bestScore := -1, 0.0
	for i, h := range hs {
		if len(terms) == 0 {
			break
		}
		line := strings.ToLower(d.lines[h.line])
		matched := 0
		for _, t := range terms {
			if strings.Contains(line, t) {
				matched++
			}
		}
		if score := float64(matched) / float64(len(terms)); score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return fmt.Sprintf("No section matching '%s' found. Use list_sections() to see available headings.", name)
	}

	start := hs[best].line
	end := len(d.lines)
	for _, h := range hs[best+1:] {
		if h.level <= hs[best].level {
			end = h.line
			break
		}
	}

	return fmt.Sprintf("Section '%s':\n\n%s", strings.TrimSpace(d.lines[start]), strings.Join(d.lines[start:end], "\n"))
}

// Lines returns the 1-indexed inclusive range, numbered
func (d *termsheetDocument) Lines(start, end int) string {
	from := max(0, start-1)
	to := min(len(d.lines), end)
	if from >= to {
		return "Invalid range. Start must be less than end."
	}

	var sb strings.Builder
	for i := from; i < to; i++ {
		if i > from {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%4d | %s", i+1, d.lines[i])
	}
	return sb.String()
}

// Call dispatches a tool call by name. Unknown tools and bad arguments
// produce a message for the model rather than an error.
func (d *termsheetDocument) Call(name, arguments string) string {
	var args struct {
		Query   string `json:"query"`
		Heading string `json:"heading"`
		Start   int    `json:"start"`
		End     int    `json:"end"`
	}
	if strings.TrimSpace(arguments) != "" {
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return fmt.Sprintf("Error: invalid arguments for %s: %v", name, err)
		}
	}

	switch name {
	case toolSearch:
		return d.Search(args.Query)
	case toolReadSection:
		return d.Section(args.Heading)
	case toolListSections:
		return d.Sections()
	case toolReadLines:
		return d.Lines(args.Start, args.End)
	default:
		return fmt.Sprintf("Error: unknown tool '%s'", name)
	}
}

const (
	toolSearch       = "search_termsheet"
	toolReadSection  = "read_section"
	toolListSections = "list_sections"
	toolReadLines    = "read_lines"
	toolSubmit       = "submit_termsheet"
)

func stringParam(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func functionTool(name, description string, properties map[string]any, required ...string) Tool {
	if required == nil {
		required = []string{}
	}
	return Tool{
		Type: "function",
		Function: ToolFunction{
			Name:        name,
			Description: description,
			Parameters: map[string]any{
				"type":       "object",
				"properties": properties,
				"required":   required,
			},
		},
	}
}

func documentTools() []Tool {
	return []Tool{
		functionTool(toolSearch,
			"Search the termsheet for lines matching a keyword query. Returns matching lines with 5 lines of context. Use it to find values like ISIN, dates or percentages.",
			map[string]any{"query": stringParam("case-insensitive keyword")}, "query"),
		functionTool(toolReadSection,
			"Read a section of the termsheet by its heading. Matching is fuzzy; the exact heading text is not needed.",
			map[string]any{"heading": stringParam("heading to look for")}, "heading"),
		functionTool(toolListSections,
			"List all section headings in the termsheet. Call this first to understand the document structure.",
			map[string]any{}),
		functionTool(toolReadLines,
			"Read a range of lines (1-indexed, inclusive). Use after search_termsheet to widen the context around a match.",
			map[string]any{
				"start": map[string]any{"type": "integer"},
				"end":   map[string]any{"type": "integer"},
			}, "start", "end"),
		submitTool(),
	}
}

func nullable(t string, description string) map[string]any {
	return map[string]any{"type": []string{t, "null"}, "description": description}
}

func submitTool() Tool {
	date := map[string]any{"type": "string", "description": "YYYY-MM-DD"}
	product := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"product_isin":      stringParam("12-character ISIN, e.g. XS3184638594"),
			"sedol":             nullable("string", "7-character SEDOL"),
			"short_description": nullable("string", "product title from the document heading"),
			"issuer":            nullable("string", "short issuer name, e.g. BBVA"),
			"issue_date":        date,
			"currency":          stringParam("3-letter ISO currency code"),
			"maturity":          date,
			"product_type":      nullable("string", "e.g. Phoenix Autocall"),
			"word_description":  nullable("string", "opening paragraph describing the notes"),
		},
		"required": []string{"product_isin", "issue_date", "currency", "maturity"},
	}
	underlying := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"bbg_code":      stringParam("Bloomberg code, e.g. 'UKX Index'"),
			"weight":        nullable("number", "weight as a decimal, only if stated"),
			"initial_price": map[string]any{"type": "number"},
		},
		"required": []string{"bbg_code", "initial_price"},
	}
	event := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"event_type": map[string]any{
				"type": "string",
				"enum": []string{"strike", "coupon", "auto_early_redemption", "knock_in"},
			},
			"event_level_pct":    nullable("number", "barrier or trigger level in percent"),
			"event_strike_pct":   nullable("number", "strike in percent"),
			"event_date":         date,
			"event_amount":       nullable("number", "payment amount or rate in percent"),
			"event_payment_date": nullable("string", "YYYY-MM-DD"),
		},
		"required": []string{"event_type", "event_date"},
	}

	return functionTool(toolSubmit,
		"Submit the complete termsheet extraction once every field has been gathered.",
		map[string]any{
			"product":     product,
			"underlyings": map[string]any{"type": "array", "items": underlying},
			"events":      map[string]any{"type": "array", "items": event},
		}, "product", "underlyings", "events")
}
