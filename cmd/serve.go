package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Gatsby0916/reporteval/internal/eval"
	"github.com/Gatsby0916/reporteval/internal/schema"
	"github.com/Gatsby0916/reporteval/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve corrected records and accuracy results over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		s, err := loadSchema()
		if err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(st, s),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func newRouter(st store.Store, s *schema.Schema) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/reports", func(w http.ResponseWriter, req *http.Request) {
		ids, err := st.ListReportIDs(req.Context())
		if err != nil {
			serverError(w, "list reports", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"report_ids": ids})
	})

	r.Get("/reports/{id}", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		rec, log, err := st.GetCorrected(req.Context(), id)
		if err != nil {
			serverError(w, "get corrected record", err)
			return
		}
		if rec == nil {
			http.Error(w, `{"error":"report not found"}`, http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"report_id":      id,
			"record":         rec,
			"correction_log": log,
		})
	})

	r.Get("/reports/{id}/accuracy", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		acc, err := st.GetAccuracy(req.Context(), id)
		if err != nil {
			serverError(w, "get accuracy", err)
			return
		}
		if acc == nil {
			http.Error(w, `{"error":"accuracy result not found"}`, http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, acc)
	})

	r.Get("/summary", func(w http.ResponseWriter, req *http.Request) {
		accs, err := st.ListAccuracies(req.Context())
		if err != nil {
			serverError(w, "list accuracies", err)
			return
		}
		if len(accs) == 0 {
			// Summary statistics are NaN on an empty batch, which JSON
			// cannot carry.
			writeJSON(w, http.StatusOK, map[string]any{"reports": 0})
			return
		}
		writeJSON(w, http.StatusOK, eval.Summarize(accs, s))
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func serverError(w http.ResponseWriter, action string, err error) {
	zap.L().Error(action, zap.Error(err))
	http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
