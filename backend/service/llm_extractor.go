package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/bluebridge/termsheet-ingest/backend/config"
	"github.com/bluebridge/termsheet-ingest/backend/model"
	"github.com/bluebridge/termsheet-ingest/backend/pkg/logger"
)

// defaultMaxTurns bounds the tool-calling conversation
const defaultMaxTurns = 30

const extractionSystemPrompt = `You are a financial data extraction specialist. You can query a structured product termsheet with search tools. Extract ALL relevant data and submit it with submit_termsheet.

Phase 1, explore: call list_sections() to learn the document structure.

Phase 2, product details:
- product_isin: search "ISIN" (12 characters starting with two letters)
- sedol: search "SEDOL" (7 characters)
- issuer: the SHORT name after "Issuer" (e.g. "BBVA"), not the full legal entity
- currency: the 3-letter currency code
- issue_date and maturity: search "Issue Date" and "Maturity Date"
- short_description: the product title at the top of the document
- product_type: classify the product (e.g. "Phoenix Autocall")
- word_description: the opening paragraph describing the notes

Phase 3, underlyings: for each row of the underlying or basket table
- bbg_code formatted as "[CODE] Index" without square brackets
- initial_price: the initial value
- weight: only if explicitly stated, otherwise null

Phase 4, events. First collect the percentages, which usually sit in prose rather than in the date tables:
put strike percentage, coupon barrier, autocall trigger, knock-in barrier and coupon rate. Use read_lines() around search hits when needed.
- strike: one event on the Strike Date with event_level_pct and event_strike_pct set to the put strike
- coupon: one event per row of the coupon valuation table, event_payment_date from the payment column, event_amount the coupon rate, event_level_pct the coupon barrier. Add a final coupon on the Redemption Valuation Date paid on the Maturity Date.
- auto_early_redemption: one event per row of the autocall table, event_level_pct the trigger, event_amount the redemption percentage
- knock_in: one event on the Redemption Valuation Date paid on the Maturity Date, event_level_pct the knock-in barrier
Every coupon, autocall and knock-in event needs event_level_pct unless it genuinely has no barrier.

Phase 5: call submit_termsheet with the complete extraction. Dates are YYYY-MM-DD. Extract every table row; do not summarise or skip rows.`

const extractionUserPrompt = "Extract all structured product data from this termsheet. Use the search tools to find each required field and work through all 5 phases before submitting."

// chatCompleter is the part of ChatClient the extractor needs
type chatCompleter interface {
	Complete(ctx context.Context, request ChatRequest) (ChatMessage, error)
}

// LLMExtractor turns termsheet markdown into structured data through a
// tool-calling conversation. The model explores the document with search
// tools and finishes by calling submit_termsheet; invalid submissions are
// returned to the model for correction.
type LLMExtractor struct {
	client      chatCompleter
	model       string
	temperature float64
	maxTurns    int
}

func NewLLMExtractor(client chatCompleter, cfg *config.LLMConfig) *LLMExtractor {
	return &LLMExtractor{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTurns:    defaultMaxTurns,
	}
}

// ExtractTermsheet runs the extraction conversation over markdown
func (e *LLMExtractor) ExtractTermsheet(ctx context.Context, markdown string) (*model.TermsheetData, error) {
	if strings.TrimSpace(markdown) == "" {
		return nil, errors.New("no text to extract from")
	}

	log := logger.WithContext(ctx)
	log.Info("starting LLM extraction", "chars", len(markdown), "model", e.model)
	started := time.Now()

	doc := newTermsheetDocument(markdown)
	tools := documentTools()
	messages := []ChatMessage{
		{Role: "system", Content: extractionSystemPrompt},
		{Role: "user", Content: extractionUserPrompt},
	}

	for turn := 0; turn < e.maxTurns; turn++ {
		reply, err := e.client.Complete(ctx, ChatRequest{
			Model:       e.model,
			Messages:    messages,
			Tools:       tools,
			Temperature: e.temperature,
		})
		if err != nil {
			return nil, err
		}
		reply.Role = "assistant"
		messages = append(messages, reply)

		if len(reply.ToolCalls) == 0 {
			// some models answer with the JSON document instead of calling the tool
			if data, err := DecodeTermsheet([]byte(reply.Content)); err == nil {
				log.Info("LLM extraction complete", "turns", turn+1, "elapsed", time.Since(started))
				return data, nil
			}
			messages = append(messages, ChatMessage{
				Role:    "user",
				Content: "Continue with the tools and finish by calling " + toolSubmit + ".",
			})
			continue
		}

		for _, call := range reply.ToolCalls {
			if call.Function.Name != toolSubmit {
				log.Debug("LLM tool call", "tool", call.Function.Name, "arguments", call.Function.Arguments)
				messages = append(messages, toolResult(call.ID, doc.Call(call.Function.Name, call.Function.Arguments)))
				continue
			}

			data, err := DecodeTermsheet([]byte(call.Function.Arguments))
			if err != nil {
				log.Warn("termsheet submission rejected, asking LLM to retry", "error", err)
				messages = append(messages, toolResult(call.ID, submissionError(err)))
				continue
			}

			log.Info("LLM extraction complete",
				"turns", turn+1,
				"elapsed", time.Since(started),
				"isin", data.Product.ISIN,
				"underlyings", len(data.Underlyings),
				"events", len(data.Events),
			)
			return data, nil
		}
	}

	return nil, fmt.Errorf("extraction did not complete within %d turns", e.maxTurns)
}

func toolResult(id, content string) ChatMessage {
	return ChatMessage{Role: "tool", ToolCallID: id, Content: content}
}

func submissionError(err error) string {
	return "Invalid termsheet data format:\n" + err.Error() + `

Please ensure your extraction has:
- product: with valid ISIN, dates, currency, etc.
- underlyings: list of underlyings with bbg_code and initial_price
- events: list of events with valid event_type, dates, and levels`
}

// DecodeTermsheet parses a termsheet document and checks that every
// required field is present. All problems are reported together.
func DecodeTermsheet(raw []byte) (*model.TermsheetData, error) {
	var data model.TermsheetData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	var problems []string
	missing := func(field string) {
		problems = append(problems, field+": field required")
	}

	p := data.Product
	if strings.TrimSpace(p.ISIN) == "" {
		missing("product.product_isin")
	}
	if p.IssueDate.IsZero() {
		missing("product.issue_date")
	}
	if strings.TrimSpace(p.Currency) == "" {
		missing("product.currency")
	}
	if p.Maturity.IsZero() {
		missing("product.maturity")
	}
	for i, u := range data.Underlyings {
		if strings.TrimSpace(u.BBGCode) == "" {
			missing(fmt.Sprintf("underlyings[%d].bbg_code", i))
		}
	}
	for i, ev := range data.Events {
		if !slices.Contains(model.EventTypes, ev.Type) {
			problems = append(problems, fmt.Sprintf("events[%d].event_type: unknown type '%s'", i, ev.Type))
		}
		if ev.Date.IsZero() {
			missing(fmt.Sprintf("events[%d].event_date", i))
		}
	}

	if len(problems) > 0 {
		return nil, errors.New(strings.Join(problems, "\n"))
	}
	return &data, nil
}
