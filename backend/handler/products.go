package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bluebridge/termsheet-ingest/backend/model"
	"github.com/bluebridge/termsheet-ingest/backend/pkg/logger"
	"github.com/bluebridge/termsheet-ingest/backend/service"
)

// ProductStore is the read and approval surface of the product repository
type ProductStore interface {
	List(ctx context.Context) ([]model.ProductSummary, error)
	Get(ctx context.Context, isin string) (*model.ProductDetail, error)
	Approve(ctx context.Context, isin string) error
	ExtractionHistory(ctx context.Context, isin string) ([]model.ExtractionMetadata, error)
}

// ProductHandler serves the persisted product views and approval
type ProductHandler struct {
	store ProductStore
}

// NewProductHandler creates a handler over store
func NewProductHandler(store ProductStore) *ProductHandler {
	return &ProductHandler{store: store}
}

// List returns all persisted products, newest issue date first
func (h *ProductHandler) List(c *gin.Context) {
	products, err := h.store.List(c.Request.Context())
	if err != nil {
		logger.Error(c.Request.Context(), "failed to list products", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list products"})
		return
	}
	if products == nil {
		products = []model.ProductSummary{}
	}

	c.JSON(http.StatusOK, products)
}

// Get returns one product with its underlyings and events
func (h *ProductHandler) Get(c *gin.Context) {
	isin := c.Param("isin")

	product, err := h.store.Get(c.Request.Context(), isin)
	if errors.Is(err, service.ErrProductNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}
	if err != nil {
		logger.Error(c.Request.Context(), "failed to load product", "isin", isin, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load product"})
		return
	}

	c.JSON(http.StatusOK, product)
}

// Approve marks an unapproved product as approved
func (h *ProductHandler) Approve(c *gin.Context) {
	isin := c.Param("isin")

	err := h.store.Approve(c.Request.Context(), isin)
	switch {
	case errors.Is(err, service.ErrProductNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	case errors.Is(err, service.ErrProductAlreadyApproved):
		c.JSON(http.StatusConflict, gin.H{"error": "Product is already approved"})
		return
	case err != nil:
		logger.Error(c.Request.Context(), "failed to approve product", "isin", isin, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to approve product"})
		return
	}

	logger.Info(c.Request.Context(), "product approved", "isin", isin)
	c.JSON(http.StatusOK, gin.H{"product_isin": isin, "approved": true})
}

// Extractions returns the extraction audit trail of a product
func (h *ProductHandler) Extractions(c *gin.Context) {
	isin := c.Param("isin")

	history, err := h.store.ExtractionHistory(c.Request.Context(), isin)
	if err != nil {
		logger.Error(c.Request.Context(), "failed to load extraction history", "isin", isin, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load extraction history"})
		return
	}
	if len(history) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"product_isin": isin, "extractions": history})
}
