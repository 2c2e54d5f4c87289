// Package app is the HTTP surface of the scheduling engine.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"interview-scheduler/internal/directory"
	"interview-scheduler/internal/scheduling"
)

// App holds the services the handlers call into.
type App struct {
	Store     scheduling.Store
	Slots     *scheduling.SlotPool
	Bookings  *scheduling.BookingService
	Generator *scheduling.Generator
	Directory scheduling.Directory
	Logger    *zap.Logger
}

// New wires the engine over store. A nil directory resolves nothing.
func New(store scheduling.Store, dir scheduling.Directory, hours scheduling.BusinessHours, observer scheduling.Observer, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir == nil {
		dir = directory.Nop{}
	}

	pool := scheduling.NewSlotPool(store, logger, observer)
	opts := []scheduling.Option{
		scheduling.WithBusinessHours(hours),
		scheduling.WithCandidateSpacing(hours.SlotLength + scheduling.DefaultInterviewBuffer),
	}
	if observer != nil {
		opts = append(opts, scheduling.WithObserver(observer))
	}
	gen, err := scheduling.NewGenerator(pool, hours)
	if err != nil {
		return nil, err
	}

	return &App{
		Store:     store,
		Slots:     pool,
		Bookings:  scheduling.NewBookingService(store, pool, logger, opts...),
		Generator: gen,
		Directory: dir,
		Logger:    logger.Named("app"),
	}, nil
}

func statusFor(err error) int {
	switch scheduling.KindOf(err) {
	case scheduling.KindValidation:
		return http.StatusBadRequest
	case scheduling.KindSlotNotFound, scheduling.KindBookingNotFound:
		return http.StatusNotFound
	case scheduling.KindSlotAlreadyBooked, scheduling.KindInvalidTransition:
		return http.StatusConflict
	}
	if scheduling.IsRetryable(err) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondError writes the error envelope. Internal details stay in the log.
func (a *App) respondError(c *gin.Context, err error) {
	a.respondErrorWith(c, err, nil)
}

func (a *App) respondErrorWith(c *gin.Context, err error, extra gin.H) {
	kind := scheduling.KindOf(err)
	msg := "internal error"
	var se *scheduling.Error
	if errors.As(err, &se) && kind != scheduling.KindInternal {
		msg = se.Message()
	}
	if kind == scheduling.KindInternal && scheduling.IsRetryable(err) {
		msg = "scheduling store unavailable, retry the request"
	}
	_ = c.Error(err)

	body := gin.H{"success": false, "error": msg, "code": string(kind)}
	for k, v := range extra {
		body[k] = v
	}
	c.AbortWithStatusJSON(statusFor(err), body)
}

func badRequest(msg string) error {
	return scheduling.Validation(msg)
}

// HealthHandler reports whether the store answers a ping.
func (a *App) HealthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := a.Store.Ping(ctx); err != nil {
		a.Logger.Warn("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "scheduler": "inactive"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "scheduler": "active"})
}
