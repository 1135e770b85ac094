package main

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"bestsv/db"
	"bestsv/db/migrations"
	"bestsv/internal/cloud"
	"bestsv/internal/handlers"
	"bestsv/internal/mail"
	appmw "bestsv/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

func main() {
	// .env не обязателен, в проде переменные приходят из окружения
	godotenv.Load()

	connString := os.Getenv("POSTGRES_CONN")
	if connString == "" {
		log.Fatal("POSTGRES_CONN env variable is not set")
	}

	dbConn, err := sqlx.Connect("postgres", connString)
	if err != nil {
		log.Fatalf("Cannot connect to DB: %v", err)
	}
	defer dbConn.Close()

	migrations.Run()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET env variable is not set")
	}

	fileRoot := os.Getenv("FILE_STORE_DIR")
	if fileRoot == "" {
		fileRoot = "./files"
	}
	files, err := cloud.NewDiskStore(fileRoot)
	if err != nil {
		log.Fatalf("Cannot init file store: %v", err)
	}

	var mailer mail.OrderMailer = mail.Noop{}
	if host := os.Getenv("SMTP_HOST"); host != "" {
		port, err := strconv.Atoi(os.Getenv("SMTP_PORT"))
		if err != nil {
			log.Fatalf("Invalid SMTP_PORT: %v", err)
		}
		mailer = mail.NewSMTPMailer(host, port,
			os.Getenv("SMTP_USER"), os.Getenv("SMTP_PASSWORD"))
	}

	store := db.NewStorage(dbConn)
	h := handlers.NewHandler(store, files, mailer)

	// Лимит запросов считается в Redis, общий на все реплики
	rdb := redis.NewClient(&redis.Options{
		Addr:     envOr("REDIS_ADDR", "localhost:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
	})
	rateLimit := appmw.RateLimit(rdb, 100, time.Minute)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/ping", h.PingHandler)

		// публичный каталог, без авторизации
		r.Route("/public", func(r chi.Router) {
			r.Get("/orders", h.GetPublicOrdersHandler)
			r.Get("/orders/count", h.GetOrdersCountHandler)
			r.Get("/orders/{orderId}", h.GetPublicOrderHandler)
			r.Get("/categories", h.GetCategoriesHandler)
			r.Get("/categories/{categoryId}/descendants", h.GetCategoryDescendantsHandler)
			r.Get("/evaluations/accounts/{accountId}", h.GetAccountRateStatsHandler)
			r.Get("/evaluations/suppliers/{accountId}", h.GetSupplierRateStatsHandler)
			r.Get("/evaluations/{orderId}/{evalType}", h.GetEvaluationHandler)
		})

		// кабинет покупателя
		r.Route("/user", func(r chi.Router) {
			r.Use(appmw.Authorize([]byte(secret)))
			r.Use(rateLimit)
			r.Post("/orders", h.CreateOrderHandler)
			r.Get("/orders", h.GetUserOrdersHandler)
			r.Delete("/orders/{orderId}", h.WithdrawOrderHandler)
			r.Patch("/orders/{orderId}/description", h.AttachDescriptionFileHandler)
			r.Patch("/orders/details/{orderDetailId}", h.ReviewOrderDetailHandler)
			r.Delete("/negotiations/{orderId}/{supplierId}", h.ResolveNegotiationHandler)
			r.Post("/evaluations", h.CreateEvaluationHandler)
			r.Get("/tags/{orderId}", h.GetOrderTagsHandler)
			r.Post("/tags/{orderId}/{tagId}", h.AddOrderTagHandler)
			r.Delete("/tags/{orderId}/{tagId}", h.RemoveOrderTagHandler)
		})

		// кабинет продавца
		r.Route("/business", func(r chi.Router) {
			r.Use(appmw.Authorize([]byte(secret), "supplier"))
			r.Use(rateLimit)
			r.Get("/orders", h.GetSupplierOrdersHandler)
			r.Patch("/orders/{orderId}", h.ClaimOrderHandler)
			r.Get("/orders/{orderId}/description", h.DownloadDescriptionFileHandler)
			r.Patch("/orders/details/{orderDetailId}", h.UploadDeliverableHandler)
			r.Get("/negotiations/{orderId}", h.GetNegotiationHandler)
			r.Put("/negotiations", h.PutNegotiationHandler)
			r.Put("/negotiations/details", h.PutNegotiationDetailsHandler)
		})
	})

	serverAddr := os.Getenv("SERVER_ADDRESS")
	if serverAddr == "" {
		serverAddr = "0.0.0.0:8080"
	}

	log.Printf("Starting server on %s", serverAddr)
	log.Fatal(http.ListenAndServe(serverAddr, r))
}

func envOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}
