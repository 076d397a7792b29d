package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/danmuck/memdev/internal/auth"
	"github.com/danmuck/memdev/internal/chardev"
	"github.com/danmuck/memdev/internal/device"
	"github.com/danmuck/memdev/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const Version = "0.1.0"

// Daemon exposes device nodes and their sessions over HTTP. When Auth is set,
// device and session routes require a bearer token.
type Daemon struct {
	Name         string           `json:"name"`
	Addr         string           `json:"addr"`
	Appeared     time.Time        `json:"appeared"`
	MaxBodyBytes int64            `json:"-"`
	Devices      *device.Registry `json:"-"`
	Auth         auth.Validator   `json:"-"`

	router     *gin.Engine
	routesOnce sync.Once
	sessions   *sessionTable
}

func Appear(name, addr string, devices *device.Registry, corsOrigins []string) *Daemon {
	observability.RegisterMetrics()
	if devices == nil {
		devices = device.NewRegistry(nil)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.DeviceRequestLogger(log.Logger))
	r.Use(observability.DeviceRequestMetrics(name))
	r.Use(cors.New(cors.Config{
		AllowOrigins:  normalizeOrigins(corsOrigins),
		AllowMethods:  []string{"GET", "POST", "DELETE"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{HeaderCount, HeaderPosition},
		MaxAge:        12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	return &Daemon{
		Name:     name,
		Addr:     addr,
		Appeared: time.Now(),
		Devices:  devices,
		router:   r,
		sessions: newSessionTable(),
	}
}

func (d *Daemon) HTTPRouter() *gin.Engine {
	return d.router
}

// Open starts a session on the named device.
func (d *Daemon) Open(deviceName string) (SessionInfo, error) {
	node, ok := d.Devices.Resolve(deviceName)
	if !ok {
		return SessionInfo{}, fmt.Errorf("%w: %s", device.ErrNodeNotFound, deviceName)
	}
	entry := d.sessions.add(node.Name, node.Buffer.Open())
	observability.SessionOpened(node.Name)
	log.Info().Str("device", node.Name).Uint64("session", entry.id).Msg("device opened")
	return entry.info(), nil
}

// Session reports the state of an open session.
func (d *Daemon) Session(id uint64) (SessionInfo, error) {
	entry, err := d.sessions.get(id)
	if err != nil {
		return SessionInfo{}, err
	}
	return entry.info(), nil
}

// Read reads up to count bytes at the session cursor.
func (d *Daemon) Read(id uint64, count int) ([]byte, int64, error) {
	entry, err := d.sessions.get(id)
	if err != nil {
		return nil, 0, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	// the transfer never exceeds capacity, so the destination need not either
	out := make([]byte, max(0, min(count, entry.session.Buffer().Capacity())))
	n, err := entry.session.ReadTo(chardev.UserSlice(out), count)
	observability.RecordTransfer(entry.device, observability.DirectionRead, n, err == nil)
	if err != nil {
		log.Error().Str("device", entry.device).Uint64("session", id).Err(err).Msg("device read failed")
		return nil, entry.session.Position(), err
	}
	return out[:n], entry.session.Position(), nil
}

// Write writes data at the session cursor, clamped to the remaining capacity.
func (d *Daemon) Write(id uint64, data []byte) (int, int64, error) {
	entry, err := d.sessions.get(id)
	if err != nil {
		return 0, 0, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	n, err := entry.session.WriteFrom(chardev.UserSlice(data), len(data))
	observability.RecordTransfer(entry.device, observability.DirectionWrite, n, err == nil)
	if err != nil {
		log.Error().Str("device", entry.device).Uint64("session", id).Err(err).Msg("device write failed")
		return 0, entry.session.Position(), err
	}
	return n, entry.session.Position(), nil
}

// Release ends a session.
func (d *Daemon) Release(id uint64) error {
	entry, err := d.sessions.remove(id)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	observability.SessionReleased(entry.device)
	log.Info().Str("device", entry.device).Uint64("session", id).Msg("device closed")
	return entry.session.Release()
}

// ReleaseAll ends every open session.
func (d *Daemon) ReleaseAll() {
	for _, id := range d.sessions.ids() {
		_ = d.Release(id)
	}
}

// Serve registers routes (once) and serves until ctx is done, then shuts down within
// shutdownTimeout and releases open sessions. A nil tlsConfig serves plain HTTP.
func (d *Daemon) Serve(ctx context.Context, tlsConfig *tls.Config, shutdownTimeout time.Duration) error {
	d.RegisterRoutes()
	srv := &http.Server{
		Addr:              d.Addr,
		Handler:           d.router,
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if tlsConfig != nil {
			errCh <- srv.ListenAndServeTLS("", "")
			return
		}
		errCh <- srv.ListenAndServe()
	}()
	log.Info().Str("name", d.Name).Str("addr", d.Addr).Bool("tls", tlsConfig != nil).Msg("daemon serving")

	var err error
	select {
	case err = <-errCh:
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err = srv.Shutdown(shutdownCtx)
		if serveErr := <-errCh; err == nil {
			err = serveErr
		}
	}
	d.ReleaseAll()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
