package api

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Checker-Finance/nextgen-api/pkg/nextgen"
)

// CatalogService is the master-codes surface served by the gateway.
type CatalogService interface {
	Categories(ctx context.Context) (*nextgen.MasterCodes, error)
	CategoriesByPattern(ctx context.Context, pattern string) (*nextgen.MasterCodes, error)
	Details(ctx context.Context, category string, opts nextgen.SearchOptions) ([]nextgen.CodeDetail, error)
	Exists(ctx context.Context, category string) (bool, error)
}

// ClientStatus exposes the NextGen client's state.
type ClientStatus interface {
	Info() nextgen.ClientInfo
	IsAuthenticated() bool
}

// MasterHandler handles the /api/v1/master and /api/v1/client endpoints.
type MasterHandler struct {
	logger  *zap.Logger
	catalog CatalogService
	client  ClientStatus
}

// NewMasterHandler creates a new MasterHandler.
func NewMasterHandler(logger *zap.Logger, catalog CatalogService, client ClientStatus) *MasterHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MasterHandler{
		logger:  logger,
		catalog: catalog,
		client:  client,
	}
}

// ClientInfoHandler returns the masked client configuration.
func (h *MasterHandler) ClientInfoHandler(c *fiber.Ctx) error {
	return c.JSON(h.client.Info())
}

// CodesHandler lists categories, optionally filtered by ?pattern=.
func (h *MasterHandler) CodesHandler(c *fiber.Ctx) error {
	var (
		codes *nextgen.MasterCodes
		err   error
	)
	if pattern := c.Query("pattern"); pattern != "" {
		codes, err = h.catalog.CategoriesByPattern(c.UserContext(), pattern)
	} else {
		codes, err = h.catalog.Categories(c.UserContext())
	}
	if err != nil {
		return h.fail(c, "master.codes", err)
	}
	return c.JSON(codes)
}

// CodeDetailsHandler lists the codes of :category with optional ?search= and ?limit=.
func (h *MasterHandler) CodeDetailsHandler(c *fiber.Ctx) error {
	category := c.Params("category")
	opts := nextgen.SearchOptions{Term: c.Query("search")}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "limit must be an integer"})
		}
		opts.Limit = n
	}

	details, err := h.catalog.Details(c.UserContext(), category, opts)
	if err != nil {
		return h.fail(c, "master.code_details", err, zap.String("category", category))
	}
	return c.JSON(fiber.Map{
		"category":    category,
		"codes":       details,
		"total_count": len(details),
	})
}

// CodeExistsHandler reports whether :category exists.
func (h *MasterHandler) CodeExistsHandler(c *fiber.Ctx) error {
	category := c.Params("category")
	ok, err := h.catalog.Exists(c.UserContext(), category)
	if err != nil {
		return h.fail(c, "master.code_exists", err, zap.String("category", category))
	}
	return c.JSON(fiber.Map{"category": category, "exists": ok})
}

func (h *MasterHandler) fail(c *fiber.Ctx, op string, err error, fields ...zap.Field) error {
	status := statusFor(err)
	fields = append(fields, zap.Int("status", status), zap.Error(err))
	if status >= fiber.StatusInternalServerError {
		h.logger.Error("api."+op+".failed", fields...)
	} else {
		h.logger.Warn("api."+op+".failed", fields...)
	}
	return c.Status(status).JSON(errorBody(err))
}
