package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	authDelivery "raid-mail-agent/internal/auth/delivery"
	authUsecase "raid-mail-agent/internal/auth/usecase"
	conversationDelivery "raid-mail-agent/internal/conversation/delivery"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	authUsecase         authUsecase.AuthUsecase
	conversationHandler *conversationDelivery.ConversationHandler
	deviceHandler       *authDelivery.DeviceHandler
	settingsHandler     *SettingsHandler
}

func NewHandler(authUc authUsecase.AuthUsecase, conversationHandler *conversationDelivery.ConversationHandler, deviceHandler *authDelivery.DeviceHandler, settingsHandler *SettingsHandler) *Handler {
	return &Handler{
		authUsecase:         authUc,
		conversationHandler: conversationHandler,
		deviceHandler:       deviceHandler,
		settingsHandler:     settingsHandler,
	}
}

// Router builds the gin engine with CORS and all routes
func (h *Handler) Router() *gin.Engine {
	r := gin.Default()

	// CORS middleware
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	SetupRoutes(r, h.authUsecase, h.conversationHandler, h.deviceHandler, h.settingsHandler)
	return r
}

// Start serves until ctx ends, then shuts down gracefully
func (h *Handler) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: h.Router()}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[API] Server starting on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Println("[API] Server stopped")
	return nil
}
