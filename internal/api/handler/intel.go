package handler

import (
	"context"
	"net/http"
	"net/netip"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/QuantumAegis/internal/intel"
	"github.com/jmerrifield20/QuantumAegis/internal/keyring"
	"go.uber.org/zap"
)

// IPChecker scores an address. *intel.IPChecker satisfies it.
type IPChecker interface {
	Check(ctx context.Context, ip netip.Addr) intel.Decision
}

// KeyLister lists the live public keys. *keyring.Ring satisfies it.
type KeyLister interface {
	PublicKeys() []keyring.PublicKey
}

// IntelHandler exposes the IP decision engine and the key ring.
type IntelHandler struct {
	checker IPChecker
	keys    KeyLister
	logger  *zap.Logger
}

// NewIntelHandler creates a new IntelHandler.
func NewIntelHandler(checker IPChecker, keys KeyLister, logger *zap.Logger) *IntelHandler {
	return &IntelHandler{checker: checker, keys: keys, logger: logger}
}

// Register mounts the intel routes on the given router.
func (h *IntelHandler) Register(r gin.IRouter) {
	r.POST("/intel/ip-check", h.IPCheck)
	r.OPTIONS("/intel/ip-check", optionsOK)
	r.GET("/keys", h.Keys)
	r.OPTIONS("/keys", optionsOK)
}

type ipCheckRequest struct {
	IP string `json:"ip" binding:"required"`
}

// IPCheck handles POST /intel/ip-check.
func (h *IntelHandler) IPCheck(c *gin.Context) {
	var req ipCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be {\"ip\": \"<address>\"}"})
		return
	}

	ip, err := netip.ParseAddr(strings.TrimSpace(req.IP))
	if err != nil {
		h.logger.Debug("ip-check: invalid address", zap.String("ip", req.IP))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid IP address"})
		return
	}

	d := h.checker.Check(c.Request.Context(), ip)
	c.JSON(http.StatusOK, d)
}

// Keys handles GET /keys.
func (h *IntelHandler) Keys(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"algorithm": keyring.Algorithm,
		"keys":      h.keys.PublicKeys(),
	})
}
