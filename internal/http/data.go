package http

import (
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/jmehdipour/clinic-crm/internal/http/middleware"
	"github.com/jmehdipour/clinic-crm/internal/rowstore"
	"github.com/jmehdipour/clinic-crm/internal/service/records"
	echo "github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type dataHandlers struct {
	svc *records.Service
	log *zap.Logger
}

var errNoSession = errors.New("no session")

// scope returns the caller's dataset and the requested tab.
func (h *dataHandlers) scope(c echo.Context) (string, string, error) {
	id, ok := middleware.IdentityFromCtx(c)
	if !ok {
		return "", "", errNoSession
	}
	tab, err := h.svc.ResolveTab(c.QueryParam("tab"))
	if err != nil {
		return "", "", err
	}
	return id.Dataset, tab, nil
}

// pathID returns the decoded :id. The router matches on the escaped path only
// when the request has one (e.g. an encoded slash); otherwise the parameter is
// already decoded and must not be unescaped again.
func pathID(c echo.Context) string {
	raw := c.Param("id")
	if c.Request().URL.RawPath == "" {
		return raw
	}
	if id, err := url.PathUnescape(raw); err == nil {
		return id
	}
	return raw
}

// fail maps service and store errors onto responses. Anything unexpected is
// logged and reported as a 500.
func (h *dataHandlers) fail(c echo.Context, op string, err error) error {
	switch {
	case errors.Is(err, errNoSession):
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	case errors.Is(err, records.ErrInvalidTab), errors.Is(err, records.ErrInvalidRow):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, rowstore.ErrDuplicateID):
		return c.JSON(http.StatusConflict, map[string]string{"error": "id already exists"})
	case errors.Is(err, rowstore.ErrRowNotFound), errors.Is(err, rowstore.ErrTabNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "data not found"})
	}
	h.log.Error("data request failed",
		zap.String("op", op),
		zap.String("tab", c.QueryParam("tab")),
		zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
		zap.Error(err))
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "backend error"})
}

// readBody returns the raw request body. Oversized bodies keep the 413 set by
// the body limit middleware.
func readBody(c echo.Context) ([]byte, error) {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return nil, he
		}
		return nil, echo.NewHTTPError(http.StatusBadRequest, "bad request")
	}
	return body, nil
}

func success(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

func (h *dataHandlers) list(c echo.Context) error {
	dataset, tab, err := h.scope(c)
	if err != nil {
		return h.fail(c, "list", err)
	}
	table, err := h.svc.List(c.Request().Context(), dataset, tab)
	if err != nil {
		return h.fail(c, "list", err)
	}
	return c.JSON(http.StatusOK, table)
}

func (h *dataHandlers) create(c echo.Context) error {
	dataset, tab, err := h.scope(c)
	if err != nil {
		return h.fail(c, "create", err)
	}
	body, err := readBody(c)
	if err != nil {
		return err
	}
	row, err := records.ParseCreate(body, h.svc.Now())
	if err != nil {
		return h.fail(c, "create", err)
	}
	if err := h.svc.Create(c.Request().Context(), dataset, tab, row); err != nil {
		return h.fail(c, "create", err)
	}
	return success(c)
}

func (h *dataHandlers) updateAt(c echo.Context) error {
	dataset, tab, err := h.scope(c)
	if err != nil {
		return h.fail(c, "update", err)
	}
	body, err := readBody(c)
	if err != nil {
		return err
	}
	idx, row, err := records.ParsePatch(body, h.svc.Now())
	if err != nil {
		return h.fail(c, "update", err)
	}
	if err := h.svc.UpdateAt(c.Request().Context(), dataset, tab, idx, row); err != nil {
		return h.fail(c, "update", err)
	}
	return success(c)
}

func (h *dataHandlers) deleteAt(c echo.Context) error {
	dataset, tab, err := h.scope(c)
	if err != nil {
		return h.fail(c, "delete", err)
	}
	body, err := readBody(c)
	if err != nil {
		return err
	}
	idx, err := records.ParseDelete(body)
	if err != nil {
		return h.fail(c, "delete", err)
	}
	if err := h.svc.DeleteAt(c.Request().Context(), dataset, tab, idx); err != nil {
		return h.fail(c, "delete", err)
	}
	return success(c)
}

func (h *dataHandlers) get(c echo.Context) error {
	dataset, tab, err := h.scope(c)
	if err != nil {
		return h.fail(c, "get", err)
	}
	row, err := h.svc.Get(c.Request().Context(), dataset, tab, pathID(c))
	if err != nil {
		return h.fail(c, "get", err)
	}
	return c.JSON(http.StatusOK, row)
}

func (h *dataHandlers) replace(c echo.Context) error {
	dataset, tab, err := h.scope(c)
	if err != nil {
		return h.fail(c, "replace", err)
	}
	body, err := readBody(c)
	if err != nil {
		return err
	}
	row, err := records.ParseReplace(body, h.svc.Now())
	if err != nil {
		return h.fail(c, "replace", err)
	}
	if err := h.svc.Replace(c.Request().Context(), dataset, tab, pathID(c), row); err != nil {
		return h.fail(c, "replace", err)
	}
	return success(c)
}

func (h *dataHandlers) delete(c echo.Context) error {
	dataset, tab, err := h.scope(c)
	if err != nil {
		return h.fail(c, "delete_by_id", err)
	}
	if err := h.svc.Delete(c.Request().Context(), dataset, tab, pathID(c)); err != nil {
		return h.fail(c, "delete_by_id", err)
	}
	return success(c)
}
