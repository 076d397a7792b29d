package server

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/danmuck/memdev/internal/auth"
	"github.com/danmuck/memdev/internal/chardev"
	"github.com/danmuck/memdev/internal/device"
	"github.com/danmuck/memdev/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	HeaderCount    = observability.HeaderTransferCount
	HeaderPosition = observability.HeaderTransferPosition
)

// RegisterRoutes installs the daemon routes. Later calls are no-ops.
func (d *Daemon) RegisterRoutes() {
	d.routesOnce.Do(d.registerRoutes)
}

func (d *Daemon) registerRoutes() {
	r := d.router
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(d.Appeared).String(),
			"service": d.Name,
			"version": Version,
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ready":   len(d.Devices.List()) > 0,
			"uptime":  time.Since(d.Appeared).String(),
			"service": d.Name,
			"version": Version,
		})
	})

	api := r.Group("/")
	if d.Auth != nil {
		api.Use(auth.Middleware(d.Auth))
	}

	api.GET("/devices", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"devices": d.Devices.List()})
	})

	api.GET("/devices/:device", func(c *gin.Context) {
		node, ok := d.Devices.Resolve(c.Param("device"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
			return
		}
		c.JSON(http.StatusOK, node)
	})

	api.GET("/devices/:device/contents", func(c *gin.Context) {
		node, ok := d.Devices.Resolve(c.Param("device"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
			return
		}
		snap := node.Buffer.Snapshot()
		if i := bytes.IndexByte(snap, 0); i >= 0 {
			snap = snap[:i]
		}
		c.JSON(http.StatusOK, gin.H{
			"device":   node.Name,
			"capacity": node.Capacity,
			"contents": string(snap),
		})
	})

	api.POST("/devices/:device/open", func(c *gin.Context) {
		info, err := d.Open(c.Param("device"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"session": info.ID, "device": info.Device, "position": info.Position})
	})

	api.GET("/sessions/:session", func(c *gin.Context) {
		id, ok := sessionParam(c)
		if !ok {
			return
		}
		info, err := d.Session(id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, info)
	})

	api.POST("/sessions/:session/read", func(c *gin.Context) {
		id, ok := sessionParam(c)
		if !ok {
			return
		}
		count, err := strconv.Atoi(c.DefaultQuery("count", strconv.Itoa(chardev.DefaultCapacity)))
		if err != nil || count < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "count must be a non-negative integer"})
			return
		}
		out, pos, err := d.Read(id, count)
		if err != nil {
			respondError(c, err)
			return
		}
		c.Header(HeaderCount, strconv.Itoa(len(out)))
		c.Header(HeaderPosition, strconv.FormatInt(pos, 10))
		c.Data(http.StatusOK, "application/octet-stream", out)
	})

	api.POST("/sessions/:session/write", func(c *gin.Context) {
		id, ok := sessionParam(c)
		if !ok {
			return
		}
		body := c.Request.Body
		if d.MaxBodyBytes > 0 {
			body = http.MaxBytesReader(c.Writer, body, d.MaxBodyBytes)
		}
		data, err := io.ReadAll(body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		n, pos, err := d.Write(id, data)
		if err != nil {
			respondError(c, err)
			return
		}
		c.Header(HeaderCount, strconv.Itoa(n))
		c.Header(HeaderPosition, strconv.FormatInt(pos, 10))
		c.JSON(http.StatusOK, gin.H{"written": n, "position": pos})
	})

	api.DELETE("/sessions/:session", func(c *gin.Context) {
		id, ok := sessionParam(c)
		if !ok {
			return
		}
		if err := d.Release(id); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "released"})
	})
}

func sessionParam(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("session"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return 0, false
	}
	return id, true
}

func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, device.ErrNodeNotFound), errors.Is(err, ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, chardev.ErrInvalidPosition):
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
