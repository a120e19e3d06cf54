package delivery

import (
	"net/http"

	authdto "raid-mail-agent/internal/auth/dto"
	"raid-mail-agent/internal/auth/repository"

	"github.com/gin-gonic/gin"
)

// DeviceHandler registers operator devices for failure alerts
type DeviceHandler struct {
	devices repository.DeviceTokenRepository
}

func NewDeviceHandler(devices repository.DeviceTokenRepository) *DeviceHandler {
	return &DeviceHandler{devices: devices}
}

// RegisterFCMToken POST /api/fcm/register
func (h *DeviceHandler) RegisterFCMToken(c *gin.Context) {
	var req authdto.RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	operator := CurrentOperator(c)
	if err := h.devices.SaveToken(c.Request.Context(), operator, req.Token, req.DeviceInfo); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register device"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "device registered"})
}

// UnregisterFCMToken DELETE /api/fcm/:token
func (h *DeviceHandler) UnregisterFCMToken(c *gin.Context) {
	token := c.Param("token")
	if err := h.devices.DeleteToken(c.Request.Context(), token); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to unregister device"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "device unregistered"})
}
