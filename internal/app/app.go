package app

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/8gudbits/WhisperChat/internal/config"
	"github.com/8gudbits/WhisperChat/internal/handlers"
	"github.com/8gudbits/WhisperChat/internal/models"
	"github.com/8gudbits/WhisperChat/internal/services"
	"github.com/8gudbits/WhisperChat/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	log "github.com/sirupsen/logrus"
)

// New builds the fiber app with the control plane and event plane wired to
// the given coordinator. Separated from Run so tests can drive it with
// app.Test.
func New(chat *services.ChatService, conns *handlers.ConnRegistry) *fiber.App {
	app := fiber.New(fiber.Config{AppName: config.AppName})

	// Middleware
	app.Use(logger.New())
	app.Use(recover.New())
	app.Use(cors.New())

	// Routes
	api := app.Group("/api")

	api.Post("/rooms", func(c *fiber.Ctx) error {
		var req models.CreateRoomRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "Invalid request"})
		}
		code, err := chat.CreateRoom(req.Username)
		if err != nil {
			var verr *services.ValidationError
			if errors.As(err, &verr) {
				return c.Status(400).JSON(fiber.Map{"error": verr.Error()})
			}
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(models.CreateRoomResponse{
			RoomCode: code,
			Message:  "Room created successfully",
		})
	})

	api.Get("/rooms/:code/exists", func(c *fiber.Ctx) error {
		return c.JSON(models.RoomExistsResponse{Exists: chat.RoomExists(c.Params("code"))})
	})

	api.Get("/serverinfo", func(c *fiber.Ctx) error {
		return c.JSON(models.ServerInfoResponse{
			Service:         config.AppName,
			Version:         config.Version,
			ActiveRoomCount: chat.ActiveRoomCount(),
		})
	})

	// Health Check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// WebSocket Route
	app.Use("/ws", handlers.WSUpgradeMiddleware)
	app.Get("/ws", handlers.WebSocketHandler(chat, conns))

	return app
}

// Run wires the coordinator, starts the server and blocks until shutdown.
func Run() {
	// Load Env
	if err := utils.LoadEnv(); err != nil {
		log.Warn(".env file not found")
	}
	cfg := config.Load()

	// Coordinator
	conns := handlers.NewConnRegistry()
	registry := services.NewRoomRegistry(cfg.RoomCodeLength)
	sessions := services.NewSessionManager()
	scheduler := services.NewCleanupScheduler(registry, cfg.RoomCleanupDelay)
	pipeline := services.NewImagePipeline(cfg.MaxImageBytes, cfg.MaxImageDimension, cfg.ImageQuality)
	chat := services.NewChatService(registry, sessions, scheduler, pipeline, conns, cfg.ImageWorkers)

	app := New(chat, conns)

	// Start Server
	addr := cfg.Host + ":" + cfg.Port
	log.Infof("%s v%s starting on %s", config.AppName, config.Version, addr)
	go func() {
		if err := app.Listen(addr); err != nil {
			log.Panic(err)
		}
	}()

	// Graceful Shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	<-c // Block until signal
	log.Info("Gracefully shutting down...")
	_ = app.Shutdown()
	log.Info("Server shutdown complete")
}
