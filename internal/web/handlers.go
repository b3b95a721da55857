// internal/web/handlers.go
package web

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"pingmon/internal/database"
	"pingmon/internal/monitoring"
)

// DeviceRequest fields are validated by the engine so the API reports the
// same errors as every other caller.
type DeviceRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

type IntervalRequest struct {
	Seconds int `json:"seconds" binding:"required"`
}

// DeviceResponse carries the position used by DELETE /api/devices/:index.
type DeviceResponse struct {
	database.Device
	Index int `json:"index"`
}

// GET /api/devices
func (s *Server) getDevices(c *gin.Context) {
	devices := s.engine.Snapshot()

	response := make([]DeviceResponse, 0, len(devices))
	for i, d := range devices {
		response = append(response, DeviceResponse{Device: d, Index: i})
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  response,
		"count": len(response),
	})
}

// POST /api/devices
func (s *Server) createDevice(c *gin.Context) {
	var req DeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	device, err := s.engine.Add(c.Request.Context(), req.Name, req.Address)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": device})
}

// DELETE /api/devices/:index
func (s *Server) deleteDevice(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "index must be an integer"})
		return
	}

	device, err := s.engine.Remove(c.Request.Context(), index)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": device})
}

// GET /api/monitor
func (s *Server) getMonitor(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.engine.Status()})
}

// POST /api/monitor/start
func (s *Server) startMonitor(c *gin.Context) {
	s.engine.Start(s.baseCtx)
	c.JSON(http.StatusOK, gin.H{"data": s.engine.Status()})
}

// POST /api/monitor/stop blocks until the current probe, if any, finishes.
func (s *Server) stopMonitor(c *gin.Context) {
	s.engine.Stop()
	c.JSON(http.StatusOK, gin.H{"data": s.engine.Status()})
}

// PUT /api/monitor/interval
func (s *Server) setInterval(c *gin.Context) {
	var req IntervalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.engine.SetInterval(req.Seconds); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": s.engine.Status()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, monitoring.ErrInvalidName),
		errors.Is(err, monitoring.ErrInvalidAddress),
		errors.Is(err, monitoring.ErrOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, monitoring.ErrIndexOutOfRange):
		return http.StatusNotFound
	default:
		logrus.WithError(err).Error("Request failed")
		return http.StatusInternalServerError
	}
}
