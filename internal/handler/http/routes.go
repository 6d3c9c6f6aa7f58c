package http

import (
	"github.com/gin-gonic/gin"
)

// Register mounts the JSON API under /api. auth requires a logged in user,
// optionalAuth lets anonymous readers through.
func Register(r gin.IRouter, authH *AuthHandler, gameH *GameHandler, auth, optionalAuth gin.HandlerFunc) {
	api := r.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.POST("/register", authH.Register)
	authGroup.POST("/login", authH.Login)
	authGroup.POST("/logout", auth, authH.Logout)

	api.PUT("/users/me/notifications", auth, authH.SetNotifications)

	api.GET("/game", optionalAuth, gameH.List)
	api.GET("/game/:id", optionalAuth, gameH.Get)

	games := api.Group("/game", auth)
	games.POST("", gameH.Create)
	games.POST("/:id/join", gameH.Join)
	games.POST("/:id/leave", gameH.Leave)
	games.POST("/:id/kick", gameH.Kick)
	games.POST("/:id/start", gameH.Start)
	games.POST("/:id/delete", gameH.Delete)
	games.POST("/:id/action", gameH.Action)
}
