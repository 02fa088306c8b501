package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/dpashkov/noteboard/internal/config"
	"github.com/dpashkov/noteboard/internal/events"
	"github.com/dpashkov/noteboard/internal/handlers"
	"github.com/dpashkov/noteboard/internal/httpserver"
	"github.com/dpashkov/noteboard/internal/logging"
	"github.com/dpashkov/noteboard/internal/middleware/csrf"
	loggingmw "github.com/dpashkov/noteboard/internal/middleware/logging"
	"github.com/dpashkov/noteboard/internal/search"
	"github.com/dpashkov/noteboard/internal/session"
	"github.com/dpashkov/noteboard/pkg/db"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := logging.New(cfg.LogLevel)

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	gdb, err := db.Open(initCtx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatalf("db migrate error: %v", err)
	}

	var noteIndex *search.NoteIndex
	if cfg.ESURL != "" {
		es, err := search.NewClient(cfg.ESURL, cfg.ESUser, cfg.ESPassword)
		if err != nil {
			log.Fatalf("elasticsearch init error: %v", err)
		}
		noteIndex = search.NewNoteIndex(es, cfg.NotesIndex)
	} else {
		logger.Info("elasticsearch not configured, note search falls back to the database")
	}

	producer := events.NewProducer(cfg.KafkaBrokers)
	if producer == nil {
		logger.Info("kafka not configured, auth events disabled")
	}
	defer producer.Close()

	sessions := session.NewManager(gdb, cfg.AccessSecret, cfg.RefreshSecret, cfg.AccessTTL, cfg.RefreshTTL)
	cookies := session.CookieWriter{Secure: cfg.SecureCookies}
	sessionMW := &session.Middleware{Manager: sessions, Cookies: cookies}

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second

	e.Use(loggingmw.RequestLogger(logger))
	e.Use(csrf.Middleware(csrf.Config{
		Secure:    cfg.SecureCookies,
		SkipPaths: []string{"/api/v1/auth/sign-up", "/api/v1/auth/sign-in"},
	}))

	httpserver.Register(e, &httpserver.Deps{
		AuthHandler: &handlers.AuthHandler{
			DB:       gdb,
			Sessions: sessions,
			Cookies:  cookies,
			Producer: producer,
		},
		NoteHandler: &handlers.NoteHandler{DB: gdb, Index: noteIndex},
		UserHandler: &handlers.UserHandler{DB: gdb, Sessions: sessions},
		Sessions:    sessionMW,
	})

	go func() {
		addr := fmt.Sprintf(":%d", cfg.ServerPort)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("echo start: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("echo shutdown: %v", err)
	}
}
