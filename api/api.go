/*
Copyright 2024 SuiteSync Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/suitesync/suitesync"
	"github.com/suitesync/suitesync/api/middleware"
	"github.com/suitesync/suitesync/config"
	"github.com/suitesync/suitesync/internal/apierror"
)

type Api struct {
	sync   *suitesync.SuiteSync
	router *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router

	// Webhook ingress authenticates per-connection via HMAC signature,
	// never via the admin key.
	router.POST("/hooks/:connection_id", a.ReceiveWebhook)

	jobs := router.Group("/jobs", middleware.WorkerAuthMiddleware())
	jobs.POST("/ingest", a.TriggerIngest)

	router.GET("/health", a.Health)

	router.POST("/connections", a.CreateConnection)
	router.GET("/connections", a.GetAllConnections)
	router.GET("/connections/:id", a.GetConnection)
	router.PUT("/connections/:id", a.UpdateConnection)
	router.DELETE("/connections/:id", a.ArchiveConnection)

	router.POST("/connections/:id/mappings", a.CreateMapping)
	router.GET("/connections/:id/mappings", a.GetMappingsForConnection)
	router.GET("/connections/:id/mappings/active", a.GetActiveMapping)

	router.GET("/events", a.GetAllEvents)
	router.GET("/events/:id", a.GetEvent)
	router.POST("/events/:id/replay", a.ReplayEvent)

	router.POST("/items/resync", a.ResyncItem)

	return a.router
}

func NewAPI(s *suitesync.SuiteSync) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	r.Use(otelgin.Middleware("SUITESYNC"))
	r.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		r.Use(secureExceptIngress())
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{sync: s, router: r}
}

// secureExceptIngress applies the secret-key middleware to everything but
// the webhook, worker and health endpoints, which carry their own auth.
func secureExceptIngress() gin.HandlerFunc {
	auth := middleware.SecretKeyAuthMiddleware()
	return func(c *gin.Context) {
		path := c.FullPath()
		switch {
		case path == "/", path == "/health":
			c.Next()
		case len(path) >= 7 && path[:7] == "/hooks/":
			c.Next()
		case len(path) >= 6 && path[:6] == "/jobs/":
			c.Next()
		default:
			auth(c)
		}
	}
}

// respondError maps engine errors onto HTTP statuses, exposing the typed
// code and message and nothing else.
func respondError(c *gin.Context, err error) {
	status := apierror.MapErrorToHTTPStatus(err)
	if apiErr, ok := err.(apierror.APIError); ok {
		c.JSON(status, gin.H{"error": apiErr.Message, "code": apiErr.Code})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
