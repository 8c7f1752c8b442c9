package http

import (
	"errors"
	"io"
	"net/http"

	"chlumarket/internal/domain"

	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Status  int               `json:"status"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Data    map[string]string `json:"data,omitempty"`
}

type registerRequest struct {
	VendorID              string `json:"vendorId"`
	DIDID                 string `json:"didId"`
	DelegatedPublicKeyRef string `json:"delegatedPublicKeyRef"`
}

// identity picks the vendor id from the current field, the original didId
// field, or the legacy key reference field, in that order.
func (r registerRequest) identity() string {
	switch {
	case r.VendorID != "":
		return r.VendorID
	case r.DIDID != "":
		return r.DIDID
	default:
		return r.DelegatedPublicKeyRef
	}
}

type searchRequest struct {
	Query  map[string]any `json:"query"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

type profileRequest struct {
	Profile     map[string]any      `json:"profile"`
	Signature   *domain.Signature   `json:"signature"`
	IdentityDoc *domain.DIDDocument `json:"identityDoc"`
}

type signatureRequest struct {
	Signature   *domain.Signature   `json:"signature"`
	IdentityDoc *domain.DIDDocument `json:"identityDoc"`
}

func (s *Server) handleWellKnown(c *gin.Context) {
	out, err := s.mkt.WellKnown(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleListVendors(c *gin.Context) {
	ids, err := s.mkt.GetVendorIDs(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ids)
}

func (s *Server) handleRegisterVendor(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	out, err := s.mkt.RegisterVendor(c.Request.Context(), req.identity())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleSearch(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	out, err := s.mkt.Search(c.Request.Context(), req.Query, req.Limit, req.Offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleGetVendor(c *gin.Context) {
	out, err := s.mkt.GetVendor(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleSetProfile(c *gin.Context) {
	s.handleProfile(c, false)
}

func (s *Server) handlePatchProfile(c *gin.Context) {
	s.handleProfile(c, true)
}

func (s *Server) handleProfile(c *gin.Context, patch bool) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	if !checkCreator(c, req.Signature) {
		return
	}
	if req.Profile == nil {
		writeError(c, domain.ValidationError(map[string]string{"profile": "this value is required"}))
		return
	}
	var err error
	if patch {
		err = s.mkt.PatchProfile(c.Request.Context(), req.Profile, *req.Signature, req.IdentityDoc)
	} else {
		err = s.mkt.SetProfile(c.Request.Context(), req.Profile, *req.Signature, req.IdentityDoc)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (s *Server) handleVendorSignature(c *gin.Context) {
	var req signatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	if !checkCreator(c, req.Signature) {
		return
	}
	if err := s.mkt.UpdateVendorSignature(c.Request.Context(), *req.Signature, req.IdentityDoc); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (s *Server) handleCreatePoPR(c *gin.Context) {
	var opts domain.PoPROptions
	if err := c.ShouldBindJSON(&opts); err != nil && !errors.Is(err, io.EOF) {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	out, err := s.mkt.CreatePoPR(c.Request.Context(), c.Param("id"), opts)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleNoRoute(c *gin.Context) {
	writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
}

// checkCreator rejects a signature whose creator is not the vendor named
// in the path.
func checkCreator(c *gin.Context, sig *domain.Signature) bool {
	if sig == nil {
		writeError(c, domain.NewError(domain.ErrInvalidSignature, "signature is required"))
		return false
	}
	if sig.Creator != c.Param("id") {
		writeError(c, domain.NewError(domain.ErrInvalidSignature, "signature creator does not match vendor "+c.Param("id")))
		return false
	}
	return true
}

func writeError(c *gin.Context, err error) {
	de := domain.Normalize(err)
	if de.Status() >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(de.Status(), errorResponse{
		Status:  de.Status(),
		Code:    de.Code(),
		Message: de.Message,
		Data:    de.Data,
	})
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{
		Status:  status,
		Code:    code,
		Message: message,
	})
}
