package api

import (
	"github.com/gin-contrib/cors"
	"github.com/wb-go/wbf/ginext"

	"hikenity/cmd/middleware"
	"hikenity/internal/service"
)

type Routers struct {
	Service service.Service
}

func NewRouters(r *Routers) *ginext.Engine {
	app := ginext.New("release")

	app.Use(middleware.Recovery())
	app.Use(middleware.LoggingMiddleware())
	app.Use(cors.Default())

	app.GET("/health", r.Service.Health)

	apiGroup := app.Group("/v1")

	apiGroup.POST("/trips", r.Service.CreateTrip)
	apiGroup.GET("/trips/:id", r.Service.GetTrip)
	apiGroup.POST("/trips/:id/bookings", r.Service.BookTrip)
	apiGroup.GET("/bookings/:id", r.Service.GetBooking)
	apiGroup.POST("/bookings/:id/confirm", r.Service.ConfirmBooking)
	apiGroup.GET("/organisers/:id", r.Service.GetOrganiser)
	apiGroup.PUT("/organisers/:id/certificate", r.Service.UpdateCertificate)

	payments := apiGroup.Group("/payments")
	payments.POST("/intents", r.Service.CreatePaymentIntent)
	payments.POST("/receipt", r.Service.RetrieveReceipt)

	apiGroup.POST("/admin/sweep", r.Service.RunSweep)

	return app
}
