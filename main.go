// chatdesk is a terminal client for the department-scoped company chatbot,
// plus a development backend (`chatdesk serve`) to run it against.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/ankitsolutions/chatdesk/backend"
	"github.com/ankitsolutions/chatdesk/chatclient"
	"github.com/ankitsolutions/chatdesk/config"
	"github.com/ankitsolutions/chatdesk/perplexity"
	"github.com/ankitsolutions/chatdesk/policy"
	"github.com/ankitsolutions/chatdesk/session"
	"github.com/ankitsolutions/chatdesk/storage"
)

func main() {
	envLoaded := godotenv.Load() == nil
	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	if !envLoaded {
		slog.Debug("no .env file found, using environment variables")
	}

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "serve":
		runServe(cfg)
	default:
		runClient(cfg, os.Args[1], os.Args[2:])
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: chatdesk <command> [args]

commands:
  login <username> <password>   authenticate against the backend
  logout                        end the current session
  departments                   list available departments
  conversations                 list past conversations
  send <department> <message>   send a chat message
  activity                      show the local activity log
  serve                         run the development backend`)
}

func runClient(cfg *config.Config, command string, args []string) {
	// A broken state database degrades to a working but non-durable
	// session rather than refusing to start.
	var kv storage.KV
	sqlKV, err := storage.NewSQLite(cfg.StateDB)
	if err != nil {
		slog.Warn("state database unavailable, session will not persist", "error", err)
		kv = storage.NewMemory()
	} else {
		defer sqlKV.Close()
		kv = sqlKV
	}

	sess := session.New(kv)
	client := chatclient.NewClient(cfg.BackendURL, sess)
	ctx := context.Background()

	switch command {
	case "login":
		if len(args) != 2 {
			usage()
			os.Exit(2)
		}
		if !client.Login(ctx, args[0], args[1]) {
			fmt.Println("Invalid username or password")
			os.Exit(1)
		}
		id := sess.Identity()
		fmt.Printf("Logged in as %s (%s)\n", id.Name, strings.ToUpper(id.Role))

	case "logout":
		client.Logout()
		fmt.Println("Logged out")

	case "departments":
		list := client.FetchDepartments(ctx)
		sess.Persist()
		if len(list) == 0 {
			fmt.Println("No departments available")
			return
		}
		for _, d := range list {
			fmt.Printf("%-12s %s\n", d.Key, d.Name)
		}

	case "conversations":
		list := client.FetchConversations(ctx)
		sess.Persist()
		if len(list) == 0 {
			fmt.Println("No conversations available")
			return
		}
		for _, conv := range list {
			preview := conv.UserMessage
			if len(preview) > 30 {
				preview = preview[:30] + "..."
			}
			fmt.Printf("#%-4d %-12s %s\n", conv.ID, conv.Department, preview)
		}

	case "send":
		if len(args) < 2 {
			usage()
			os.Exit(2)
		}
		reply, err := client.SendMessage(ctx, strings.Join(args[1:], " "), args[0])
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		fmt.Println(reply)

	case "activity":
		for _, entry := range sess.Activity() {
			fmt.Printf("%s  %s\n", entry.Timestamp, entry.Description)
		}

	default:
		usage()
		os.Exit(2)
	}
}

func runServe(cfg *config.Config) {
	store, err := backend.NewStore(cfg.BackendDB)
	if err != nil {
		slog.Error("failed to initialize backend store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Seed(ctx); err != nil {
		slog.Error("failed to seed backend store", "error", err)
		os.Exit(1)
	}

	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		slog.Error("failed to initialize policy engine", "error", err)
		os.Exit(1)
	}

	var responder backend.Responder = backend.LocalResponder{}
	if cfg.PerplexityAPIKey != "" {
		responder = perplexity.NewClient(perplexity.DefaultBaseURL, cfg.PerplexityAPIKey, cfg.PerplexityModel, 30*time.Second)
	}

	h := backend.NewHandler(store, policyEngine, responder, cfg.CompanyName)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	h.RegisterRoutes(e)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.ListenPort)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("backend started", "port", cfg.ListenPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown server gracefully", "error", err)
	}
}

func logLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
