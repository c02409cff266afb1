package main

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"messaging-service/internal/handlers"
	"messaging-service/internal/middleware"
	"messaging-service/internal/observability"
	"messaging-service/internal/ws"
)

func newRouter(a *application) (*gin.Engine, error) {
	loc, err := a.cfg.Location()
	if err != nil {
		return nil, err
	}

	router := gin.New()
	// client IPs key the rate limits
	if err := router.SetTrustedProxies(a.cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	router.Use(
		gin.Recovery(),
		otelgin.Middleware(a.cfg.ServiceName),
		observability.RequestID(),
		observability.LoggingMiddleware(a.logger),
		observability.HTTPMetricsMiddleware(),
	)

	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.DebugRoutes{Audit: a.audit, Sockets: a.hub, PublisherMode: a.publisherMode}.Register(router, a.cfg.DebugRoutes)

	authHandler := handlers.NewAuthHandler(a.users, a.issuer)
	userHandler := handlers.NewUserHandler(a.users, a.audit)
	conversationHandler := handlers.NewConversationHandler(a.conversations, a.messages)
	messageHandler := handlers.NewMessageHandler(a.messages)
	notificationHandler := handlers.NewNotificationHandler(a.notifications)
	adminHandler := handlers.NewAdminHandler(a.users, a.audit)
	socketHandler := ws.NewConversationSocketHandler(a.hub, a.issuer, a.users, a.conversations, a.logger)

	authMiddleware := middleware.AuthMiddleware(a.issuer, a.users, a.logger)
	rateLimit := middleware.RateLimit(a.limiter, a.cfg.RateLimitMessages, a.cfg.RateLimitWindow, a.logger)
	throttle := middleware.LoginThrottle(a.cfg.LoginRPS, a.cfg.LoginBurst)

	api := router.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.POST("/register", throttle, authHandler.Register)
	authRoutes.POST("/login", throttle, authHandler.Login)
	authRoutes.POST("/refresh", throttle, authHandler.Refresh)

	users := api.Group("/users", authMiddleware)
	users.GET("", userHandler.List)
	users.GET("/:user_id", userHandler.Get)
	users.DELETE("/me", userHandler.DeleteMe)

	chats := api.Group("/chats")
	if a.cfg.ChatHoursEnabled {
		chats.Use(middleware.RestrictHours(a.cfg.ChatOpenHour, a.cfg.ChatCloseHour, loc, a.now))
	}
	chats.Use(authMiddleware)

	conversations := chats.Group("/conversations")
	conversations.GET("", conversationHandler.List)
	conversations.POST("", conversationHandler.Create)
	conversations.GET("/:conversation_id", conversationHandler.Get)
	conversations.POST("/:conversation_id/participants", conversationHandler.AddParticipant)
	conversations.DELETE("/:conversation_id/participants/:user_id", conversationHandler.RemoveParticipant)
	conversations.GET("/:conversation_id/messages", conversationHandler.ListMessages)
	conversations.POST("/:conversation_id/messages", rateLimit, conversationHandler.CreateMessage)
	conversations.GET("/:conversation_id/threads", conversationHandler.Thread)

	messages := chats.Group("/messages")
	messages.GET("", messageHandler.List)
	messages.POST("", rateLimit, messageHandler.Create)
	messages.GET("/unread", messageHandler.Unread)
	messages.GET("/:message_id", messageHandler.Get)
	messages.PATCH("/:message_id", messageHandler.Update)
	messages.PUT("/:message_id", messageHandler.Update)
	messages.DELETE("/:message_id", messageHandler.Delete)
	messages.POST("/:message_id/read", messageHandler.MarkRead)
	messages.GET("/:message_id/history", messageHandler.History)

	notifications := chats.Group("/notifications")
	notifications.GET("", notificationHandler.List)
	notifications.POST("/:notification_id/seen", notificationHandler.MarkSeen)

	admin := api.Group("/admin", authMiddleware, middleware.RequireRole())
	admin.GET("/users", adminHandler.ListUsers)
	admin.PUT("/users/:user_id/role", adminHandler.SetRole)
	admin.DELETE("/users/:user_id", adminHandler.DeleteUser)

	router.GET("/ws/conversations/:conversation_id", socketHandler.Handle)

	return router, nil
}
