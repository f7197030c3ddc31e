package server

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
)

// FeedbackStore records per-page helpful/unhelpful votes that feed back into
// ranking.
type FeedbackStore interface {
	RecordFeedback(ctx context.Context, pageID, userID string, helpful bool) error
}

type FeedbackHandler struct {
	Store FeedbackStore
}

func (h *FeedbackHandler) Register(g *echo.Group, secret []byte) {
	g.Use(func(next echo.HandlerFunc) echo.HandlerFunc { return withAuth(next, secret) })
	g.POST("", h.record)
}

func (h *FeedbackHandler) record(c echo.Context) error {
	var req struct {
		PageID  string `json:"page_id"`
		Helpful bool   `json:"helpful"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.PageID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "page_id is required")
	}
	if err := h.Store.RecordFeedback(c.Request().Context(), req.PageID, userID(c), req.Helpful); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
