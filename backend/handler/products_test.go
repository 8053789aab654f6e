package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bluebridge/termsheet-ingest/backend/model"
	"github.com/bluebridge/termsheet-ingest/backend/service"
)

type fakeProductStore struct {
	products []model.ProductSummary
	details  map[string]*model.ProductDetail
	approved map[string]bool
	history  map[string][]model.ExtractionMetadata
	err      error
}

func (f *fakeProductStore) List(context.Context) ([]model.ProductSummary, error) {
	return f.products, f.err
}

func (f *fakeProductStore) Get(_ context.Context, isin string) (*model.ProductDetail, error) {
	if f.err != nil {
		return nil, f.err
	}
	d, ok := f.details[isin]
	if !ok {
		return nil, service.ErrProductNotFound
	}
	return d, nil
}

func (f *fakeProductStore) Approve(_ context.Context, isin string) error {
	if f.err != nil {
		return f.err
	}
	if _, ok := f.details[isin]; !ok {
		return service.ErrProductNotFound
	}
	if f.approved[isin] {
		return service.ErrProductAlreadyApproved
	}
	f.approved[isin] = true
	return nil
}

func (f *fakeProductStore) ExtractionHistory(_ context.Context, isin string) ([]model.ExtractionMetadata, error) {
	return f.history[isin], f.err
}

func newFakeProductStore() *fakeProductStore {
	isin := "XS3184638594"
	return &fakeProductStore{
		products: []model.ProductSummary{
			{ISIN: isin, Currency: "GBP", IssueDate: model.NewDate(2025, 1, 10), Maturity: model.NewDate(2031, 1, 10), UnderlyingCount: 1, EventCount: 2},
		},
		details: map[string]*model.ProductDetail{
			isin: {
				Product:     model.Product{ISIN: isin, Currency: "GBP"},
				Underlyings: []model.Underlying{{BBGCode: "UKX Index", InitialPrice: 8200}},
				Events: []model.Event{
					{Type: model.EventStrike, Date: model.NewDate(2025, 1, 10)},
					{Type: model.EventCoupon, Date: model.NewDate(2026, 1, 12)},
				},
			},
		},
		approved: map[string]bool{},
		history: map[string][]model.ExtractionMetadata{
			isin: {{ProductISIN: isin, SourceFilename: "ts.pdf", ExtractedAt: time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC), Status: "success", BlobPath: isin + "/ts.md"}},
		},
	}
}

func productRouter(store ProductStore) *gin.Engine {
	h := NewProductHandler(store)
	router := gin.New()
	router.GET("/api/products", h.List)
	router.GET("/api/products/:isin", h.Get)
	router.PATCH("/api/products/:isin/approve", h.Approve)
	router.GET("/api/products/:isin/extractions", h.Extractions)
	return router
}

func TestProductHandlerList(t *testing.T) {
	router := productRouter(newFakeProductStore())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/products", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var products []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &products); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if len(products) != 1 {
		t.Fatalf("Expected 1 product, got %d", len(products))
	}
	if products[0]["product_isin"] != "XS3184638594" || products[0]["issue_date"] != "2025-01-10" {
		t.Errorf("Unexpected product: %v", products[0])
	}
}

func TestProductHandlerListEmpty(t *testing.T) {
	router := productRouter(&fakeProductStore{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/products", nil))

	if w.Body.String() != "[]" {
		t.Errorf("Expected empty JSON array, got %s", w.Body.String())
	}
}

func TestProductHandlerGet(t *testing.T) {
	router := productRouter(newFakeProductStore())

	tests := []struct {
		name           string
		isin           string
		expectedStatus int
	}{
		{"existing", "XS3184638594", http.StatusOK},
		{"unknown", "GB00B03MLX29", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest("GET", "/api/products/"+tt.isin, nil))

			if w.Code != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			if tt.expectedStatus != http.StatusOK {
				return
			}
			var detail model.ProductDetail
			if err := json.Unmarshal(w.Body.Bytes(), &detail); err != nil {
				t.Fatalf("Failed to parse response: %v", err)
			}
			if len(detail.Underlyings) != 1 || len(detail.Events) != 2 {
				t.Errorf("Unexpected detail: %+v", detail)
			}
		})
	}
}

func TestProductHandlerApprove(t *testing.T) {
	router := productRouter(newFakeProductStore())

	steps := []struct {
		name           string
		isin           string
		expectedStatus int
		expectedError  string
	}{
		{"first approval", "XS3184638594", http.StatusOK, ""},
		{"second approval", "XS3184638594", http.StatusConflict, "Product is already approved"},
		{"unknown product", "GB00B03MLX29", http.StatusNotFound, "Product not found"},
	}

	for _, step := range steps {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("PATCH", "/api/products/"+step.isin+"/approve", nil))

		if w.Code != step.expectedStatus {
			t.Fatalf("%s: expected status %d, got %d", step.name, step.expectedStatus, w.Code)
		}

		var body map[string]any
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s: failed to parse response: %v", step.name, err)
		}
		if step.expectedError != "" {
			if body["error"] != step.expectedError {
				t.Errorf("%s: expected error %q, got %v", step.name, step.expectedError, body["error"])
			}
			continue
		}
		if body["product_isin"] != step.isin || body["approved"] != true {
			t.Errorf("%s: unexpected body %v", step.name, body)
		}
	}
}

func TestProductHandlerStoreError(t *testing.T) {
	router := productRouter(&fakeProductStore{err: errors.New("connection refused")})

	for _, req := range []*http.Request{
		httptest.NewRequest("GET", "/api/products", nil),
		httptest.NewRequest("GET", "/api/products/XS3184638594", nil),
		httptest.NewRequest("PATCH", "/api/products/XS3184638594/approve", nil),
		httptest.NewRequest("GET", "/api/products/XS3184638594/extractions", nil),
	} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusInternalServerError {
			t.Errorf("%s %s: expected status 500, got %d", req.Method, req.URL.Path, w.Code)
		}
	}
}

func TestProductHandlerExtractions(t *testing.T) {
	router := productRouter(newFakeProductStore())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/products/XS3184638594/extractions", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var body struct {
		ProductISIN string                     `json:"product_isin"`
		Extractions []model.ExtractionMetadata `json:"extractions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if len(body.Extractions) != 1 || body.Extractions[0].BlobPath != "XS3184638594/ts.md" {
		t.Errorf("Unexpected history: %+v", body)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/products/GB00B03MLX29/extractions", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}
