package httpserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"storefront-checkout/internal/domain"
	customersvc "storefront-checkout/internal/service/customer"
	"storefront-checkout/internal/service/identity"
	"storefront-checkout/internal/validation"
)

type customerResponse struct {
	Customer *domain.Customer `json:"customer"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// mergeResponse reports the guest cart merge. A failure here never fails the sign-in.
type mergeResponse struct {
	Outcome string       `json:"outcome"`
	Retry   bool         `json:"retry,omitempty"`
	Message string       `json:"message,omitempty"`
	Cart    *domain.Cart `json:"cart,omitempty"`
}

type loginResponse struct {
	Customer *domain.Customer `json:"customer"`
	Token    tokenResponse    `json:"token"`
	Merge    mergeResponse    `json:"merge"`
}

type identityResponse struct {
	Identity     domain.Identity `json:"identity"`
	PendingMerge bool            `json:"pendingMerge"`
	Minted       bool            `json:"minted,omitempty"`
}

func (h *handlers) signup(c *gin.Context) {
	var req validation.SignupRequest
	if err := validation.BindAndValidate(c, &req, h.deps.Validator); err != nil {
		return
	}
	project := projectFrom(c)
	customer, err := h.deps.CustomerSvc.Signup(c.Request.Context(), project.ID, customersvc.SignupInput{
		Email:           req.Email,
		Password:        req.Password,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		DefaultShipping: req.DefaultShipping,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, customerResponse{Customer: customer})
}

// login authenticates the customer and then merges the session's guest cart into the account.
func (h *handlers) login(c *gin.Context) {
	var req validation.LoginRequest
	if err := validation.BindAndValidate(c, &req, h.deps.Validator); err != nil {
		return
	}
	project := projectFrom(c)
	customer, tokens, err := h.deps.CustomerSvc.Login(c.Request.Context(), project.ID, req.Email, req.Password)
	if errors.Is(err, customersvc.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, errorBody(http.StatusUnauthorized, "invalid_customer_account_credentials", "Customer account with the given credentials not found."))
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}

	handle := c.GetHeader(sessionHeader)
	if handle != "" {
		c.Header(sessionHeader, handle)
	}
	c.JSON(http.StatusOK, loginResponse{
		Customer: customer,
		Token: tokenResponse{
			AccessToken:  tokens.Access,
			TokenType:    "Bearer",
			ExpiresIn:    h.deps.CustomerSvc.AccessTTLSeconds(),
			RefreshToken: tokens.Refresh,
		},
		Merge: h.merge(c, project.ID, handle, customer.ID),
	})
}

func (h *handlers) retryMerge(c *gin.Context) {
	project := projectFrom(c)
	c.JSON(http.StatusOK, h.merge(c, project.ID, c.GetHeader(sessionHeader), customerFrom(c).ID))
}

func (h *handlers) merge(c *gin.Context, projectID, handle, accountID string) mergeResponse {
	res, err := h.deps.IdentitySvc.MergeOnLogin(c.Request.Context(), projectID, handle, accountID)
	if err != nil {
		h.logger.Warnw("guest cart merge not confirmed", "project_id", projectID, "customer_id", accountID, "err", err)
		return mergeResponse{
			Outcome: string(identity.MergeFailed),
			Retry:   true,
			Message: "your guest cart is kept and will be merged on retry",
		}
	}
	return mergeResponse{Outcome: string(res.Outcome), Cart: res.Cart}
}

func (h *handlers) logout(c *gin.Context) {
	project := projectFrom(c)
	if err := h.deps.CustomerSvc.Logout(c.Request.Context(), bearerToken(c)); err != nil {
		h.logger.Warnw("revoke access token failed", "project_id", project.ID, "err", err)
	}
	res, err := h.deps.IdentitySvc.SignOut(c.Request.Context(), project.ID, c.GetHeader(sessionHeader))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header(sessionHeader, res.SessionHandle)
	c.JSON(http.StatusOK, identityResponse{Identity: res.Identity, Minted: res.Minted})
}

func (h *handlers) currentIdentity(c *gin.Context) {
	res := resolutionFrom(c)
	c.JSON(http.StatusOK, identityResponse{Identity: res.Identity, PendingMerge: res.PendingMerge, Minted: res.Minted})
}
