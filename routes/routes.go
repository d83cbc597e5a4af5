package routes

import (
	"github.com/gofiber/fiber/v2"

	"crm-backend/controllers"
)

// Options carries the optional per-route middleware.
type Options struct {
	// Prefix is prepended to every customer route, e.g. "/api".
	Prefix string
	// Auth guards the customer routes when set.
	Auth fiber.Handler
	// Idempotency runs after Auth so the subject is part of the request hash.
	Idempotency fiber.Handler
}

// Register wires all HTTP routes.
func Register(app *fiber.App, h *controllers.CustomerController, opts Options) {
	// Public
	app.Get("/", controllers.Health)

	api := app.Group(opts.Prefix)
	if opts.Auth != nil {
		api.Use(opts.Auth)
	}
	if opts.Idempotency != nil {
		api.Use(opts.Idempotency)
	}

	// Customers ("/export" before "/:id")
	api.Get("/customers", h.GetCustomers)
	api.Get("/customers/export", h.ExportCustomers)
	api.Post("/customers", h.CreateCustomer)
	api.Get("/customers/:id", h.GetCustomer)
	api.Put("/customers/:id", h.UpdateCustomer)
	api.Delete("/customers/:id", h.DeleteCustomer)
}
