package router

import (
	"net/http"

	"github.com/weddify/backend/internal/auth"
	"github.com/weddify/backend/internal/bookings"
	"github.com/weddify/backend/internal/dashboard"
	"github.com/weddify/backend/internal/middleware"
	"github.com/weddify/backend/internal/models"
	"github.com/weddify/backend/internal/vendors"
)

// New returns an http.Handler that serves the API under /api/v1.
func New(
	authHandler *auth.Handler,
	vendorHandler *vendors.Handler,
	bookingHandler *bookings.Handler,
	dashHandler *dashboard.Handler,
	validator middleware.TokenValidator,
) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"

	authed := middleware.RequireAuth(validator)
	vendorOnly := func(h http.HandlerFunc) http.Handler {
		return authed(middleware.RequireRole(models.RoleVendor, models.RoleAdmin)(h))
	}

	mux.HandleFunc("POST "+base+"/auth/register", authHandler.Register)
	mux.HandleFunc("POST "+base+"/auth/login", authHandler.Login)

	mux.HandleFunc("GET "+base+"/vendors", vendorHandler.ListVendors)
	mux.HandleFunc("GET "+base+"/vendors/{id}", vendorHandler.GetVendor)
	mux.Handle("POST "+base+"/vendors", vendorOnly(vendorHandler.CreateVendor))
	mux.Handle("PATCH "+base+"/vendors/{id}/tier", vendorOnly(vendorHandler.ChangeTier))

	mux.Handle("POST "+base+"/bookings", authed(middleware.RequireRole(models.RoleCustomer)(http.HandlerFunc(bookingHandler.CreateBooking))))
	mux.Handle("GET "+base+"/bookings", authed(http.HandlerFunc(bookingHandler.ListBookings)))
	mux.Handle("GET "+base+"/bookings/{id}", authed(http.HandlerFunc(bookingHandler.GetBooking)))
	mux.Handle("GET "+base+"/bookings/{id}/ledger", authed(http.HandlerFunc(bookingHandler.ListLedger)))
	mux.Handle("POST "+base+"/bookings/{id}/complete", vendorOnly(bookingHandler.MarkCompleted))
	mux.Handle("POST "+base+"/bookings/{id}/cancel", authed(http.HandlerFunc(bookingHandler.Cancel)))

	mux.Handle("GET "+base+"/account/me", authed(http.HandlerFunc(dashHandler.GetMe)))
	mux.Handle("GET "+base+"/dashboard/summary", authed(http.HandlerFunc(dashHandler.GetSummary)))

	return mux
}
