package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fpang/filter-studio/internal/auth"
	"github.com/fpang/filter-studio/internal/filtergen"
	"github.com/fpang/filter-studio/internal/logging"
	"github.com/fpang/filter-studio/internal/session"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

//go:embed all:frontend_dist
var frontendFS embed.FS

// CLI flags
var (
	portFlag      int
	modelFlag     string
	withImageFlag bool
)

// Shared state for the handlers. Set once in runMain (or by tests).
var (
	sessions  *session.Manager
	generator filtergen.Generator
)

var rootCmd = &cobra.Command{
	Use:   "filter-web",
	Short: "Web UI for AI cinematic photo filters",
	Long: `Filter Web starts a local web server where you upload a photo, ask
Gemini for a cinematic color-grade filter, and preview the filter applied to
your photo in the browser.

Examples:
  filter-web
  filter-web --port 9090
  filter-web --model gemini-2.5-pro
  filter-web --with-image=false`,
	Run: runMain,
}

func init() {
	rootCmd.Flags().IntVar(&portFlag, "port", 8080, "Port to listen on")
	rootCmd.Flags().StringVarP(&modelFlag, "model", "m", filtergen.DefaultModelName, "Gemini model to use")
	rootCmd.Flags().BoolVar(&withImageFlag, "with-image", true, "Send the photo with the generation request so the grade is tailored to it")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) {
	logging.Init()
	startupBegin := time.Now()

	// Validate the API key at startup. No session exists until the
	// credential is known good.
	apiKey, err := auth.GetAPIKey()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to get API key")
	}

	ctx := context.Background()
	client, err := filtergen.NewClient(ctx, apiKey, modelFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Gemini client")
	}
	if err := auth.ValidateAPIKey(ctx, client.GenAI(), client.Model()); err != nil {
		log.Fatal().Err(err).Msg("Invalid API key")
	}

	sessions = session.NewManager()
	generator = client

	logging.NewStartupLogger("filter-web").
		Config("model", client.Model()).
		Config("port", fmt.Sprintf("%d", portFlag)).
		Feature("withImage", withImageFlag).
		InitDuration(time.Since(startupBegin)).
		Log()

	// Sweep abandoned sessions so a long-lived server does not hoard photos.
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			sessions.Sweep(session.DefaultMaxIdle)
		}
	}()

	mux := http.NewServeMux()

	// API routes
	mux.HandleFunc("/api/session", handleSessionCreate)
	mux.HandleFunc("/api/session/", handleSessionRoutes)

	// Frontend static files (SPA fallback)
	frontendSub, err := fs.Sub(frontendFS, "frontend_dist")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to access embedded frontend")
	}
	fileServer := http.FileServer(http.FS(frontendSub))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// Security headers
		w.Header().Set("Content-Security-Policy", "default-src 'self'; img-src 'self' blob: data:; style-src 'self' 'unsafe-inline'; connect-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		// SPA fallback: if the file doesn't exist, serve index.html
		path := r.URL.Path
		if path != "/" {
			f, err := frontendSub.Open(strings.TrimPrefix(path, "/"))
			if err != nil {
				r.URL.Path = "/"
			} else {
				f.Close()
			}
		}
		fileServer.ServeHTTP(w, r)
	})

	// Wrap with gzip, logging, and CORS for local dev
	handler := gzhttp.GzipHandler(withLogging(withCORS(mux)))

	addr := fmt.Sprintf(":%d", portFlag)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info().Msg("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	log.Info().Int("port", portFlag).Msg("Starting web server")
	fmt.Printf("\n  Filter Studio: http://localhost:%d\n\n", portFlag)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

// --- Middleware ---

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		if strings.HasPrefix(r.URL.Path, "/api/") {
			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Dur("duration", time.Since(start)).
				Msg("API request")
		}
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Only allow localhost origins
		origin := r.Header.Get("Origin")
		if origin != "" && (strings.HasPrefix(origin, "http://localhost:") || strings.HasPrefix(origin, "http://127.0.0.1:")) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
