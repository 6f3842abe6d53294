package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	checkoutsvc "storefront-checkout/internal/service/checkout"
	"storefront-checkout/internal/validation"
)

func (h *handlers) quote(c *gin.Context) {
	var req validation.CheckoutRequest
	if err := validation.BindAndValidate(c, &req, h.deps.Validator); err != nil {
		return
	}
	projectID := projectFrom(c).ID
	cart, err := h.deps.CartSvc.Get(c.Request.Context(), projectID, resolutionFrom(c).Identity)
	if err != nil {
		writeError(c, err)
		return
	}
	q, err := h.deps.CheckoutSvc.Quote(c.Request.Context(), projectID, cart, req.ShippingAddress)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

// submitCheckout answers 201 for a new order and 200 when the current order is returned again.
func (h *handlers) submitCheckout(c *gin.Context) {
	var req validation.CheckoutRequest
	if err := validation.BindAndValidate(c, &req, h.deps.Validator); err != nil {
		return
	}
	projectID := projectFrom(c).ID
	owner := resolutionFrom(c).Identity
	cart, err := h.deps.CartSvc.Get(c.Request.Context(), projectID, owner)
	if err != nil {
		writeError(c, err)
		return
	}
	res, err := h.deps.CheckoutSvc.Submit(c.Request.Context(), projectID, owner, cart, checkoutsvc.SubmitInput{
		Shipping:     req.ShippingAddress,
		Billing:      req.BillingAddress,
		ContactEmail: req.ContactEmail,
	})
	if err != nil {
		h.logger.Warnw("checkout rejected", "project_id", projectID, "owner", owner.Key(), "err", err)
		writeError(c, err)
		return
	}
	status := http.StatusCreated
	if res.Decision == checkoutsvc.DecisionResurface {
		status = http.StatusOK
	}
	c.JSON(status, res)
}

func (h *handlers) currentOrder(c *gin.Context) {
	res, err := h.deps.CheckoutSvc.Current(c.Request.Context(), projectFrom(c).ID, resolutionFrom(c).Identity)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handlers) confirmPayment(c *gin.Context) {
	order, err := h.deps.CheckoutSvc.ConfirmPayment(c.Request.Context(), projectFrom(c).ID, c.Param("orderNumber"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}
