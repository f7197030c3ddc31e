package server

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sievedocs/sieve/internal/search"
	"github.com/sievedocs/sieve/models"
)

// Searcher is the pipeline entry point the handler calls.
type Searcher interface {
	Search(ctx context.Context, req models.SearchRequest) (*models.SearchResponse, error)
}

type SearchHandler struct {
	Svc Searcher
}

func (h *SearchHandler) Register(g *echo.Group, secret []byte) {
	g.Use(func(next echo.HandlerFunc) echo.HandlerFunc { return withAuth(next, secret) })
	g.POST("", h.search)
}

func (h *SearchHandler) search(c echo.Context) error {
	var req models.SearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if uid := userID(c); uid != "" {
		req.UserID = uid
	}
	resp, err := h.Svc.Search(c.Request().Context(), req)
	if err != nil {
		if search.IsInvalidInput(err) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, resp)
}
