package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/grocerydist/routeledger/internal/config"
	"github.com/grocerydist/routeledger/internal/database"
	"github.com/grocerydist/routeledger/internal/handler"
	"github.com/grocerydist/routeledger/internal/lock"
	mw "github.com/grocerydist/routeledger/internal/middleware"
	"github.com/grocerydist/routeledger/internal/service"
	"github.com/grocerydist/routeledger/internal/ws"
	"github.com/sirupsen/logrus"
)

// New creates a Chi router with all application routes wired up.
// Applies authentication and role-based middleware as needed.
func New(cfg *config.Config, pool service.Pool, hub *ws.Hub, locker lock.Locker, logger logrus.FieldLogger) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})

	queries := database.New(pool)

	authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret, logger)
	authHandler.RegisterRoutes(r)

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/representatives/{id}", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	routeService := service.NewRouteService(pool, func(db database.DBTX) service.RouteStore {
		return database.New(db)
	}, cfg.StoreTimeout, logger)
	paymentService := service.NewPaymentService(pool, func(db database.DBTX) service.PaymentStore {
		return database.New(db)
	}, cfg.StoreTimeout, logger)
	reconciliationService := service.NewReconciliationService(pool, func(db database.DBTX) service.ReconciliationStore {
		return database.New(db)
	}, locker, cfg.StoreTimeout, logger)
	accountabilityService := service.NewAccountabilityService(pool, func(db database.DBTX) service.AccountabilityStore {
		return database.New(db)
	}, cfg.StoreTimeout)

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		routeHandler := handler.NewRouteHandler(routeService, hub, logger)
		reconciliationHandler := handler.NewReconciliationHandler(reconciliationService, hub, logger)
		r.Route("/routes", func(r chi.Router) {
			routeHandler.RegisterRoutes(r)
			reconciliationHandler.RegisterRoutes(r)
		})

		paymentHandler := handler.NewPaymentHandler(paymentService, hub, logger)
		paymentHandler.RegisterRoutes(r)

		representativeHandler := handler.NewRepresentativeHandler(accountabilityService, reconciliationService, hub, logger)
		r.Route("/representatives", representativeHandler.RegisterRoutes)

		userHandler := handler.NewUserHandler(queries, logger)
		r.Route("/users", userHandler.RegisterRoutes)

		retailerHandler := handler.NewRetailerHandler(queries, logger)
		r.Route("/retailers", retailerHandler.RegisterRoutes)
	})

	return r
}
