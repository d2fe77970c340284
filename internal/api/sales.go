package api

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"smartrecipe/internal/auth"
)

var allowedExtensions = map[string]bool{
	".jpeg": true,
	".jpg":  true,
	".png":  true,
	".webp": true,
}

// readImage reads the multipart "image" field, enforcing the size limit and
// extension allow-list.
func (h *Handler) readImage(c *gin.Context) ([]byte, string, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+1<<20)

	file, err := c.FormFile("image")
	if err != nil {
		return nil, "", invalid("image", "No image file provided")
	}
	if file.Size > h.maxUploadBytes {
		return nil, "", invalid("image", fmt.Sprintf("Image exceeds the %d MB limit", h.maxUploadBytes>>20))
	}

	extension := strings.ToLower(filepath.Ext(file.Filename))
	if !allowedExtensions[extension] {
		return nil, "", invalid("image", "Invalid file type. Only JPG, JPEG, PNG and WEBP are allowed.")
	}

	src, err := file.Open()
	if err != nil {
		return nil, "", fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read uploaded file: %w", err)
	}
	if len(data) == 0 {
		return nil, "", invalid("image", "No image file provided")
	}

	contentType := file.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}

// ListSales returns the caller's sale records, newest first.
func (h *Handler) ListSales(c *gin.Context) {
	ctx, cancel := contextWithDBTimeout(c)
	defer cancel()

	records, err := h.saleStore.List(ctx, auth.UserID(c))
	if err != nil {
		h.respondError(c, err, "")
		return
	}
	respondOK(c, http.StatusOK, records)
}

// UploadSale stores a flyer image without structuring it.
func (h *Handler) UploadSale(c *gin.Context) {
	data, contentType, err := h.readImage(c)
	if err != nil {
		h.respondError(c, err, "")
		return
	}

	ctx, cancel := h.pipelineContext(c)
	defer cancel()

	record, err := h.sales.Upload(ctx, auth.UserID(c), data, contentType)
	if err != nil {
		h.respondError(c, err, "PROCESSING_FAILED")
		return
	}
	respondOK(c, http.StatusCreated, record)
}

// ProcessSale runs the full flyer pipeline on an uploaded image.
func (h *Handler) ProcessSale(c *gin.Context) {
	data, _, err := h.readImage(c)
	if err != nil {
		h.respondError(c, err, "")
		return
	}

	ctx, cancel := h.pipelineContext(c)
	defer cancel()

	result, err := h.sales.Process(ctx, auth.UserID(c), data)
	if err != nil {
		h.respondError(c, err, "PROCESSING_FAILED")
		return
	}
	respondOK(c, http.StatusOK, result)
}

// SaleStatus returns the processing status of one record.
func (h *Handler) SaleStatus(c *gin.Context) {
	ctx, cancel := contextWithDBTimeout(c)
	defer cancel()

	status, err := h.saleStore.GetStatus(ctx, auth.UserID(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "")
		return
	}
	respondOK(c, http.StatusOK, status)
}

// DeleteSale removes one record.
func (h *Handler) DeleteSale(c *gin.Context) {
	ctx, cancel := contextWithDBTimeout(c)
	defer cancel()

	if err := h.saleStore.Delete(ctx, auth.UserID(c), c.Param("id")); err != nil {
		h.respondError(c, err, "")
		return
	}
	respondMessage(c, "Sales info deleted")
}
