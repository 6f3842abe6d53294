package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	cartsvc "storefront-checkout/internal/service/cart"
	"storefront-checkout/internal/validation"
)

func (h *handlers) getCart(c *gin.Context) {
	cart, err := h.deps.CartSvc.Get(c.Request.Context(), projectFrom(c).ID, resolutionFrom(c).Identity)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (h *handlers) addLine(c *gin.Context) {
	var req validation.AddLineRequest
	if err := validation.BindAndValidate(c, &req, h.deps.Validator); err != nil {
		return
	}
	cart, err := h.deps.CartSvc.AddLine(c.Request.Context(), projectFrom(c).ID, resolutionFrom(c).Identity, cartsvc.AddLineInput{
		ProductID:       req.ProductID,
		Quantity:        req.Quantity,
		FixedPriceCents: req.FixedPriceCents,
		TierKey:         req.TierKey,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (h *handlers) updateLine(c *gin.Context) {
	var req validation.UpdateLineRequest
	if err := validation.BindAndValidate(c, &req, h.deps.Validator); err != nil {
		return
	}
	cart, err := h.deps.CartSvc.SetQuantity(c.Request.Context(), projectFrom(c).ID, resolutionFrom(c).Identity, c.Param("lineId"), req.Quantity)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (h *handlers) removeLine(c *gin.Context) {
	cart, err := h.deps.CartSvc.RemoveLine(c.Request.Context(), projectFrom(c).ID, resolutionFrom(c).Identity, c.Param("lineId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (h *handlers) clearCart(c *gin.Context) {
	cart, err := h.deps.CartSvc.Clear(c.Request.Context(), projectFrom(c).ID, resolutionFrom(c).Identity)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}
