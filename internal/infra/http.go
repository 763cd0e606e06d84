package infra

import (
	"github.com/gofiber/fiber/v3"

	ahttp "github.com/blockpulse/chainwatch-rpc-service/internal/adapter/http"
)

// InitRoutes installs the health and control endpoints.
func InitRoutes(server *fiber.App, src ahttp.Sources) {
	server.Get("/health", ahttp.Health)
	server.Get("/stats", ahttp.Stats(src))
	server.Post("/heal", ahttp.ForceHeal(src))
}
