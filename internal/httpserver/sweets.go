package httpserver

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/sweet_shop/internal/models"
	"github.com/Skotchmaster/sweet_shop/internal/repo"
	"github.com/Skotchmaster/sweet_shop/internal/service"
	"github.com/Skotchmaster/sweet_shop/internal/transport"
	"github.com/Skotchmaster/sweet_shop/internal/util"
	"github.com/Skotchmaster/sweet_shop/pkg/logging"
	middleware "github.com/Skotchmaster/sweet_shop/pkg/middleware/auth"
)

const HeaderTotalCount = "X-Total-Count"

type SweetsHTTP struct {
	Svc *service.InventoryService
}

// ListSweets returns the whole catalog unless page or size is given.
func (h *SweetsHTTP) ListSweets(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "sweets.list")

	page, size := 0, 0
	if c.QueryParam("page") != "" || c.QueryParam("size") != "" {
		var err error
		if page, err = queryInt(c, "page", 1); err != nil {
			return badRequest(l, "list_sweets_error", "page is not an integer", err)
		}
		if size, err = queryInt(c, "size", util.DefaultPageSize); err != nil {
			return badRequest(l, "list_sweets_error", "size is not an integer", err)
		}
	}

	total, items, err := h.Svc.ListSweets(ctx, page, size)
	if err != nil {
		return fail(l, "list_sweets_error", err)
	}

	c.Response().Header().Set(HeaderTotalCount, strconv.FormatInt(total, 10))
	return c.JSON(http.StatusOK, nonNil(items))
}

func (h *SweetsHTTP) GetSweet(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "sweets.get")

	id, err := parseID(c)
	if err != nil {
		return badRequest(l, "get_sweet_error", "id is not a positive integer", err)
	}

	sweet, err := h.Svc.GetSweet(ctx, id)
	if err != nil {
		return fail(l, "get_sweet_error", err)
	}
	return c.JSON(http.StatusOK, sweet)
}

func (h *SweetsHTTP) SearchSweets(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "sweets.search")

	f := repo.SweetFilter{
		Name:     strings.TrimSpace(c.QueryParam("name")),
		Category: strings.TrimSpace(c.QueryParam("category")),
	}
	var err error
	if f.MinPrice, err = queryFloat(c, "minPrice"); err != nil {
		return badRequest(l, "search_sweets_error", "minPrice is not a number", err)
	}
	if f.MaxPrice, err = queryFloat(c, "maxPrice"); err != nil {
		return badRequest(l, "search_sweets_error", "maxPrice is not a number", err)
	}

	items, err := h.Svc.SearchSweets(ctx, f)
	if err != nil {
		return fail(l, "search_sweets_error", err)
	}
	return c.JSON(http.StatusOK, nonNil(items))
}

// TextSearch answers free-text queries from the search index.
func (h *SweetsHTTP) TextSearch(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "sweets.text_search")

	page, err := queryInt(c, "page", 1)
	if err != nil {
		return badRequest(l, "text_search_error", "page is not an integer", err)
	}
	size, err := queryInt(c, "size", util.DefaultPageSize)
	if err != nil {
		return badRequest(l, "text_search_error", "size is not an integer", err)
	}

	total, items, err := h.Svc.TextSearch(ctx, c.QueryParam("q"), page, size)
	if err != nil {
		return fail(l, "text_search_error", err)
	}
	return c.JSON(http.StatusOK, transport.SearchResponse{Total: total, Sweets: nonNil(items)})
}

func (h *SweetsHTTP) CreateSweet(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "sweets.create")

	var req transport.CreateSweetRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "create_sweet_error", "invalid body", err)
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(l, "create_sweet_error", "invalid fields", err)
	}

	sweet, err := h.Svc.CreateSweet(ctx, req)
	if err != nil {
		return fail(l, "create_sweet_error", err)
	}

	l.Info("create_sweet_success", "sweet_id", sweet.ID)
	return c.JSON(http.StatusOK, transport.SweetResponse{Message: MsgSweetCreated, Sweet: sweet})
}

// UpdateSweet serves both PUT and PATCH; absent fields keep their value.
func (h *SweetsHTTP) UpdateSweet(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "sweets.update")

	id, err := parseID(c)
	if err != nil {
		return badRequest(l, "update_sweet_error", "id is not a positive integer", err)
	}

	var req transport.UpdateSweetRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "update_sweet_error", "invalid body", err)
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(l, "update_sweet_error", "invalid fields", err)
	}

	sweet, err := h.Svc.UpdateSweet(ctx, id, req)
	if err != nil {
		return fail(l, "update_sweet_error", err)
	}

	l.Info("update_sweet_success", "sweet_id", id)
	return c.JSON(http.StatusOK, transport.SweetResponse{Message: MsgSweetUpdated, Sweet: sweet})
}

func (h *SweetsHTTP) DeleteSweet(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "sweets.delete")

	id, err := parseID(c)
	if err != nil {
		return badRequest(l, "delete_sweet_error", "id is not a positive integer", err)
	}

	if err := h.Svc.DeleteSweet(ctx, id); err != nil {
		return fail(l, "delete_sweet_error", err)
	}

	l.Info("delete_sweet_success", "sweet_id", id)
	return c.JSON(http.StatusOK, transport.MessageResponse{Message: MsgSweetDeleted})
}

func (h *SweetsHTTP) Purchase(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "sweets.purchase")

	id, qty, err := stockParams(c)
	if err != nil {
		return badRequest(l, "purchase_error", "invalid id or quantity", err)
	}

	userID, _ := middleware.UserID(c)
	sweet, err := h.Svc.Purchase(ctx, id, qty, userID)
	if err != nil {
		return fail(l, "purchase_error", err)
	}

	l.Info("purchase_success", "sweet_id", id, "quantity", qty, "remaining", sweet.Quantity)
	return c.JSON(http.StatusOK, transport.SweetResponse{Message: MsgPurchased, Sweet: sweet})
}

func (h *SweetsHTTP) Restock(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "sweets.restock")

	id, qty, err := stockParams(c)
	if err != nil {
		return badRequest(l, "restock_error", "invalid id or quantity", err)
	}

	userID, _ := middleware.UserID(c)
	sweet, err := h.Svc.Restock(ctx, id, qty, userID)
	if err != nil {
		return fail(l, "restock_error", err)
	}

	l.Info("restock_success", "sweet_id", id, "quantity", qty, "stock", sweet.Quantity)
	return c.JSON(http.StatusOK, transport.SweetResponse{Message: MsgRestocked, Sweet: sweet})
}

func stockParams(c echo.Context) (uint, int, error) {
	id, err := parseID(c)
	if err != nil {
		return 0, 0, err
	}
	var req transport.StockRequest
	if err := c.Bind(&req); err != nil {
		return 0, 0, err
	}
	if err := c.Validate(&req); err != nil {
		return 0, 0, err
	}
	return id, req.Quantity, nil
}

func queryInt(c echo.Context, name string, def int) (int, error) {
	v := strings.TrimSpace(c.QueryParam(name))
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func queryFloat(c echo.Context, name string) (*float64, error) {
	v := strings.TrimSpace(c.QueryParam(name))
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func nonNil(items []models.Sweet) []models.Sweet {
	if items == nil {
		return []models.Sweet{}
	}
	return items
}
