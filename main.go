package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberLogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/linht/radioconf/plugins"
	flag "github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// Configuration constants
const (
	// Server timeouts
	ServerReadTimeout  = 30 * time.Second
	ServerWriteTimeout = 30 * time.Second

	// Request documents and sequencer sources are small
	MaxBodySize = 4 * 1024 * 1024

	// Session management (24-hour expiry)
	SessionDuration = 24 * time.Hour
	TokenBytes      = 32
)

type Config struct {
	Server struct {
		Port     string `yaml:"port"`
		Host     string `yaml:"host"`
		Static   string `yaml:"static"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"server"`
	Auth struct {
		PasswordHash string `yaml:"password_hash"`
	} `yaml:"auth"`
	Calculator struct {
		HistorySize int `yaml:"history_size"`
		TimeoutMS   int `yaml:"timeout_ms"`
	} `yaml:"calculator"`
	Library struct {
		Dir string `yaml:"dir"`
	} `yaml:"library"`
	Plugins []string `yaml:"plugins"`
}

// Session represents a simple authenticated session for local use
type Session struct {
	Token     string
	ExpiresAt time.Time
}

var (
	config         Config
	currentSession *Session
	sessionMu      sync.RWMutex
)

func main() {
	configPath := flag.StringP("config", "c", "config.yaml", "server configuration file")
	flag.Parse()

	// Load configuration
	if err := loadConfig(*configPath); err != nil {
		slog.Error("Failed to load config", "error", err, "path", *configPath)
		os.Exit(1)
	}

	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(config.Server.LogLevel),
	}))
	slog.SetDefault(logger)
	slog.Info("Configuration loaded", "path", *configPath)

	app := newApp()

	// Initialize and register plugins
	loaded, err := initPlugins(app)
	if err != nil {
		slog.Error("Failed to initialize plugins", "error", err)
		os.Exit(1)
	}

	addr := config.Server.Host + ":" + config.Server.Port

	// Setup graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		slog.Info("Shutting down server...")
		if err := app.ShutdownWithContext(context.Background()); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
	}()

	slog.Info("Starting radio configurator", "address", addr)
	if err := app.Listen(addr); err != nil {
		slog.Error("Failed to start server", "error", err, "address", addr)
		os.Exit(1)
	}

	for _, p := range loaded {
		if err := p.Shutdown(); err != nil {
			slog.Warn("Plugin shutdown failed", "name", p.Name(), "error", err)
		}
	}
}

func newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		ReadTimeout:  ServerReadTimeout,
		WriteTimeout: ServerWriteTimeout,
		AppName:      "Radio Configurator",
		BodyLimit:    MaxBodySize,
	})

	app.Use(fiberLogger.New(fiberLogger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))

	if config.Server.Static != "" {
		app.Static("/", config.Server.Static)
	}

	// Login/logout endpoints (no auth required for login)
	app.Post("/login", handleLogin)
	app.Post("/logout", handleLogout)

	// Auth middleware for all other API routes
	app.Use("/api", authMiddleware)
	return app
}

func loadConfig(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, &config)
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func handleLogin(c *fiber.Ctx) error {
	var req struct {
		Password string `json:"password"`
	}

	if err := c.BodyParser(&req); err != nil {
		return plugins.SendErrorMessage(c, 400, "Invalid request")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(config.Auth.PasswordHash), []byte(req.Password)); err != nil {
		slog.Warn("Failed login attempt", "ip", c.IP())
		return plugins.SendErrorMessage(c, 401, "Invalid password")
	}

	slog.Info("Successful login", "ip", c.IP())

	// A new login replaces the previous session
	session := &Session{
		Token:     generateToken(),
		ExpiresAt: time.Now().Add(SessionDuration),
	}
	sessionMu.Lock()
	currentSession = session
	sessionMu.Unlock()

	return plugins.SendSuccess(c, fiber.Map{
		"token":   session.Token,
		"expires": session.ExpiresAt.Unix(),
	}, "")
}

func handleLogout(c *fiber.Ctx) error {
	sessionMu.Lock()
	currentSession = nil
	sessionMu.Unlock()
	slog.Info("User logged out", "ip", c.IP())
	return plugins.SendSuccess(c, nil, "")
}

func authMiddleware(c *fiber.Ctx) error {
	// Header first, query parameter for WebSocket clients
	token := c.Get("X-Auth-Token")
	if token == "" {
		token = c.Query("token")
	}

	if !validateToken(token) {
		return plugins.SendErrorMessage(c, 401, "Unauthorized")
	}
	return c.Next()
}

func validateToken(token string) bool {
	if token == "" {
		return false
	}

	sessionMu.RLock()
	defer sessionMu.RUnlock()

	if currentSession == nil || currentSession.Token != token {
		return false
	}
	return time.Now().Before(currentSession.ExpiresAt)
}

func generateToken() string {
	b := make([]byte, TokenBytes)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// pluginConfig returns the config section handed to a plugin factory.
func pluginConfig(name string) map[string]interface{} {
	switch name {
	case "calculator":
		return map[string]interface{}{
			"history_size": config.Calculator.HistorySize,
			"timeout_ms":   config.Calculator.TimeoutMS,
		}
	case "library":
		return map[string]interface{}{
			"dir": config.Library.Dir,
		}
	}
	return map[string]interface{}{}
}

func initPlugins(app *fiber.App) ([]plugins.Plugin, error) {
	names := config.Plugins
	if len(names) == 0 {
		names = plugins.Names()
	}

	var loaded []plugins.Plugin
	for _, name := range names {
		factory, exists := plugins.Get(name)
		if !exists {
			slog.Warn("Unknown plugin", "name", name)
			continue
		}

		plugin, err := factory(pluginConfig(name))
		if err != nil {
			return loaded, err
		}

		plugin.RegisterRoutes(app)
		loaded = append(loaded, plugin)
		slog.Info("Plugin loaded", "name", plugin.Name())
	}
	return loaded, nil
}
