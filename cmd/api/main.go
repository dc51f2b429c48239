package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"shopify-orders-exporter/internal/application"
	"shopify-orders-exporter/internal/domain"
	"shopify-orders-exporter/internal/infrastructure/metrics"
	"shopify-orders-exporter/internal/infrastructure/pubsub"
	"shopify-orders-exporter/internal/infrastructure/repository"
	shopifyinfra "shopify-orders-exporter/internal/infrastructure/shopify"
	"shopify-orders-exporter/internal/ports"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// contextKey is a type for context keys to avoid collisions
type contextKey string

const (
	shopKey  contextKey = "shop"
	tokenKey contextKey = "access_token"
)

func main() {
	// Initialize logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if err := godotenv.Load(); err != nil {
		logger.Warn().Msg("⚠️  Warning: .env file not found")
	}

	// Required configuration
	apiKey := os.Getenv("SHOPIFY_API_KEY")
	apiSecret := os.Getenv("SHOPIFY_API_SECRET")
	host := os.Getenv("HOST")
	appHandle := os.Getenv("APP_HANDLE")
	if apiKey == "" || apiSecret == "" || host == "" || appHandle == "" {
		logger.Fatal().Msg("SHOPIFY_API_KEY, SHOPIFY_API_SECRET, HOST and APP_HANDLE environment variables are required")
	}

	// Shop store: MongoDB when configured, local JSON file otherwise
	var shopStore ports.ShopStore
	if mongoURI := os.Getenv("MONGODB_URI"); mongoURI != "" {
		client, err := mongo.Connect(context.Background(), options.Client().ApplyURI(mongoURI))
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to MongoDB")
		}
		defer client.Disconnect(context.Background())

		db := client.Database(os.Getenv("MONGODB_DATABASE"))
		shopStore = repository.NewMongoShopRepository(db)
		logger.Info().Msg("Using MongoDB shop store")
	} else {
		shopsFile := os.Getenv("SHOPS_FILE")
		if shopsFile == "" {
			shopsFile = "shops.json"
		}
		shopStore = repository.NewFileShopRepository(shopsFile)
		logger.Info().Str("file", shopsFile).Msg("Using file shop store")
	}

	// State store: Redis when configured, in-memory otherwise
	var stateStore ports.StateStore
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to parse REDIS_URL")
		}
		stateStore = repository.NewRedisStateRepository(redis.NewClient(opts))
		logger.Info().Msg("Using Redis state store")
	} else {
		stateStore = repository.NewMemoryStateRepository()
	}

	// Initialize rate limiter and retry config for Shopify API
	rateLimiter := shopifyinfra.NewRateLimiter(logger)
	retryConfig := shopifyinfra.DefaultRetryConfig()

	shopifyClient := shopifyinfra.NewClientWithOptions(apiKey, apiSecret, rateLimiter, retryConfig, logger)
	verifier := shopifyinfra.NewAuthVerifier(apiSecret)
	tokenValidator := shopifyinfra.NewTokenValidator(shopifyClient, logger)

	// Event bus for install and export lifecycle events
	eventBus := pubsub.NewEventBus(logger)

	// Initialize application services
	installService := application.NewInstallService(
		shopStore,
		stateStore,
		shopifyClient,
		verifier,
		eventBus,
		logger,
		host,
		appHandle,
	)

	exportService := application.NewExportService(
		shopStore,
		shopifyClient,
		tokenValidator,
		eventBus,
		logger,
	)

	// Audit log of lifecycle events
	auditCh := eventBus.Subscribe(context.Background(), nil)
	go func() {
		for event := range auditCh.Events {
			logger.Info().
				Str("type", event.Type).
				Str("shop", event.Shop).
				Time("at", event.At).
				Interface("detail", event.Detail).
				Msg("App event")
		}
	}()

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	// Health check - must be public for monitoring
	r.Get("/health", healthHandler(eventBus))

	// Prometheus metrics
	r.Handle("/metrics", metrics.Handler())

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"), // The URL pointing to API definition
	))
	r.Get("/swagger/doc.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		http.ServeFile(w, r, "./docs/swagger.json")
	})

	// UI and OAuth routes
	r.Get("/", indexHandler())
	r.Get("/auth", installBeginHandler(installService, logger))
	r.Get("/auth/callback", oauthCallbackHandler(installService, logger))
	r.Get("/billing/confirm", billingConfirmHandler(installService, logger))
	r.Get("/shops", shopsHandler(shopStore, logger))

	// CSV export, gated on install and billing
	r.With(requireInstalledAndBilled(exportService, logger)).
		Get("/export-orders", exportOrdersHandler(exportService, logger))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logger.Info().Str("port", port).Msg("Starting API server")
	logger.Info().Msg("Visit " + host + " to start")
	if err := http.ListenAndServe(":"+port, r); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start server")
	}
}

// healthHandler reports liveness plus event bus statistics
func healthHandler(bus *pubsub.EventBus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "ok",
			"events": bus.GetStats(),
		})
	}
}

// installBeginHandler starts the OAuth install flow
func installBeginHandler(installService *application.InstallService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shop := strings.TrimSpace(r.URL.Query().Get("shop"))

		authURL, err := installService.BeginInstall(r.Context(), shop)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidShopDomain) {
				http.Error(w, "Missing or invalid ?shop= parameter (e.g., store.myshopify.com)", http.StatusBadRequest)
				return
			}
			logger.Error().Err(err).Str("shop", shop).Msg("Failed to begin install")
			http.Error(w, "OAuth/Billing initiation error.", http.StatusInternalServerError)
			return
		}

		http.Redirect(w, r, authURL, http.StatusFound)
	}
}

// oauthCallbackHandler handles the OAuth callback
func oauthCallbackHandler(installService *application.InstallService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		shop := query.Get("shop")
		code := query.Get("code")
		state := query.Get("state")

		if shop == "" || code == "" || state == "" {
			http.Error(w, "Missing required query parameters.", http.StatusBadRequest)
			return
		}

		confirmationURL, err := installService.CompleteInstall(r.Context(), shop, code, state, query)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrInvalidState):
				http.Error(w, "Invalid or expired state parameter.", http.StatusBadRequest)
			case errors.Is(err, domain.ErrHMACMismatch):
				http.Error(w, "HMAC validation failed.", http.StatusBadRequest)
			default:
				logger.Error().Err(err).Str("shop", shop).Msg("Failed to complete install")
				http.Error(w, "OAuth/Billing initiation error.", http.StatusInternalServerError)
			}
			return
		}

		// Merchant approves the recurring charge on the confirmation page
		http.Redirect(w, r, confirmationURL, http.StatusFound)
	}
}

// billingConfirmHandler handles the return from the charge confirmation page
func billingConfirmHandler(installService *application.InstallService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shop := strings.TrimSpace(r.URL.Query().Get("shop"))
		chargeParam := strings.TrimSpace(r.URL.Query().Get("charge_id"))

		if !domain.IsShopDomain(shop) {
			http.Error(w, "Missing or invalid shop.", http.StatusBadRequest)
			return
		}
		if chargeParam == "" {
			http.Error(w, "Missing charge_id.", http.StatusBadRequest)
			return
		}
		chargeID, err := strconv.ParseInt(chargeParam, 10, 64)
		if err != nil {
			http.Error(w, "Invalid charge_id.", http.StatusBadRequest)
			return
		}

		adminURL, err := installService.ConfirmBilling(r.Context(), shop, chargeID)
		if err != nil {
			var statusErr *domain.ChargeStatusError
			switch {
			case errors.Is(err, domain.ErrNotInstalled):
				http.Error(w, "App not installed (no access token).", http.StatusBadRequest)
			case errors.As(err, &statusErr):
				http.Error(w, fmt.Sprintf("Charge status is %q. Please approve the subscription.", statusErr.Status), http.StatusPaymentRequired)
			default:
				logger.Error().Err(err).Str("shop", shop).Msg("Failed to confirm billing")
				http.Error(w, "Billing confirmation error.", http.StatusInternalServerError)
			}
			return
		}

		http.Redirect(w, r, adminURL, http.StatusFound)
	}
}

// requireInstalledAndBilled gates a route on a completed install and an
// active recurring charge for the shop in the query string.
func requireInstalledAndBilled(exportService *application.ExportService, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			shop := strings.TrimSpace(r.URL.Query().Get("shop"))

			rec, err := exportService.Authorize(r.Context(), shop)
			if err != nil {
				switch {
				case errors.Is(err, domain.ErrInvalidShopDomain):
					http.Error(w, "Missing or invalid ?shop= parameter.", http.StatusBadRequest)
				case errors.Is(err, domain.ErrNotInstalled):
					http.Error(w, "App not installed for this shop. Install via /auth?shop=STORE.myshopify.com", http.StatusUnauthorized)
				case errors.Is(err, domain.ErrBillingInactive):
					http.Error(w, "Billing inactive. Please approve the $1/month charge via /auth?shop=STORE.myshopify.com", http.StatusPaymentRequired)
				default:
					logger.Error().Err(err).Str("shop", shop).Msg("Export authorization failed")
					http.Error(w, "Internal server error", http.StatusInternalServerError)
				}
				return
			}

			ctx := context.WithValue(r.Context(), shopKey, rec.Domain)
			ctx = context.WithValue(ctx, tokenKey, rec.AccessToken)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// exportOrdersHandler streams the orders CSV as a download
func exportOrdersHandler(exportService *application.ExportService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shop, _ := r.Context().Value(shopKey).(string)
		accessToken, _ := r.Context().Value(tokenKey).(string)
		orderID := strings.TrimSpace(r.URL.Query().Get("orderId"))

		csvContent, err := exportService.ExportOrders(r.Context(), shop, accessToken, orderID)
		if err != nil {
			logger.Error().Err(err).Str("shop", shop).Msg("Failed to generate CSV")
			http.Error(w, "Error generating CSV", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="shopify_orders.csv"`)
		w.Write([]byte(csvContent))
	}
}

// shopsHandler lists installed shops without their tokens
func shopsHandler(shops ports.ShopStore, logger zerolog.Logger) http.HandlerFunc {
	type shopView struct {
		Domain        string    `json:"domain"`
		InstalledAt   time.Time `json:"installedAt"`
		BillingActive bool      `json:"billingActive"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		recs, err := shops.ListShops(r.Context())
		if err != nil {
			logger.Error().Err(err).Msg("Failed to list shops")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		views := make([]shopView, 0, len(recs))
		for _, rec := range recs {
			views = append(views, shopView{
				Domain:        rec.Domain,
				InstalledAt:   rec.InstalledAt,
				BillingActive: rec.BillingActive,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(views)
	}
}

// indexHandler serves the minimal install and export form
func indexHandler() http.HandlerFunc {
	const page = `
    <html>
      <head><title>Orders CSV Exporter</title></head>
      <body style="font-family: sans-serif; max-width: 640px; margin: 40px auto;">
        <h1>Orders CSV Exporter</h1>
        <p>Install the app on a store:</p>
        <form action="/auth" method="GET" style="margin-bottom:20px">
          <input type="text" name="shop" placeholder="store.myshopify.com" style="padding:8px;width:100%" />
          <button type="submit" style="margin-top:10px;padding:8px 12px;">Install</button>
        </form>
        <hr/>
        <p>Export CSV (after install &amp; billing):</p>
        <form action="/export-orders" method="GET">
          <input type="text" name="shop" placeholder="store.myshopify.com" style="padding:8px;width:100%" />
          <input type="text" name="orderId" placeholder="Optional: order ID" style="padding:8px;width:100%; margin-top:10px;" />
          <button type="submit" style="margin-top:10px;padding:8px 12px;">Download CSV</button>
        </form>
      </body>
    </html>
  `

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(page))
	}
}
