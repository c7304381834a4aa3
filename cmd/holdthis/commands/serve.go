package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/exp/slog"

	"github.com/rzpsarthak13/holdthis/pkg/holdthis"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the store over HTTP",
	Long: `Serve the store over HTTP.

  POST /         {"cmd": "set|get|clean", "topic": "...", "key": "...", "value": ..., "ttl": "30s"}
  GET  /health   store status
  GET  /metrics  Prometheus metrics`,
	PreRunE:  openCommandStore,
	PostRunE: closeCommandStore,
	RunE: func(cmd *cobra.Command, _ []string) error {
		addr := viper.GetString("addr")
		server := &http.Server{
			Addr:              addr,
			Handler:           newHandler(store, newLogger(viper.GetBool("verbose"))),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.ListenAndServe()
		}()
		fmt.Fprintf(cmd.OutOrStdout(), "serving on %s\n", addr)

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().String("addr", ":3000", wrapString("Address to listen on"))
}

type request struct {
	Cmd   string          `json:"cmd"`
	Topic string          `json:"topic"`
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value,omitempty"`
	TTL   string          `json:"ttl,omitempty"`
	JSON  bool            `json:"json,omitempty"`
}

type record struct {
	Key       string      `json:"key"`
	Value     interface{} `json:"value"`
	ExpiresAt *time.Time  `json:"expires_at,omitempty"`
}

type response struct {
	Records      []record `json:"records,omitempty"`
	RowsAffected int64    `json:"rows_affected,omitempty"`
	Removed      int64    `json:"removed,omitempty"`
	Error        string   `json:"error,omitempty"`
}

type handler struct {
	store  *holdthis.Store
	logger *slog.Logger
}

func newHandler(store *holdthis.Store, logger *slog.Logger) http.Handler {
	h := &handler{store: store, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/", h.command)
	mux.HandleFunc("/health", h.health)
	mux.HandleFunc("/metrics", h.metrics)
	return mux
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"store":     h.store.Stats(),
	})
}

func (h *handler) metrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	h.store.WriteMetrics(w)
}

func (h *handler) command(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, response{Error: "method not allowed"})
		return
	}
	if mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mediaType != "application/json" {
		writeJSON(w, http.StatusUnsupportedMediaType, response{Error: "unsupported media type"})
		return
	}

	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{Error: fmt.Sprintf("invalid JSON: %v", err)})
		return
	}

	resp, err := h.execute(r.Context(), req)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("command failed", slog.String("cmd", req.Cmd), slog.Any("error", err))
		}
		writeJSON(w, status, response{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

var errBadRequest = errors.New("bad request")

func (h *handler) execute(ctx context.Context, req request) (response, error) {
	switch req.Cmd {
	case "set":
		var value interface{}
		if len(req.Value) > 0 {
			if err := json.Unmarshal(req.Value, &value); err != nil {
				return response{}, fmt.Errorf("%w: invalid value: %v", errBadRequest, err)
			}
		}
		var opts []holdthis.SetOption
		if req.TTL != "" {
			ttl, err := time.ParseDuration(req.TTL)
			if err != nil {
				return response{}, fmt.Errorf("%w: invalid ttl: %v", errBadRequest, err)
			}
			opts = append(opts, holdthis.WithTTL(ttl))
		}
		if req.JSON {
			opts = append(opts, holdthis.WithJSON())
		}
		result, err := h.store.Set(ctx, req.Topic, req.Key, value, opts...)
		if err != nil {
			return response{}, err
		}
		return response{RowsAffected: result.RowsAffected}, nil

	case "get":
		records, err := h.store.Get(ctx, req.Topic, req.Key)
		if err != nil {
			return response{}, err
		}
		out := make([]record, len(records))
		for i, rec := range records {
			out[i] = record{Key: rec.Key, Value: rec.Value}
			if !rec.ExpiresAt.IsZero() {
				at := rec.ExpiresAt
				out[i].ExpiresAt = &at
			}
		}
		return response{Records: out}, nil

	case "clean":
		var topics []string
		if req.Topic != "" {
			topics = append(topics, req.Topic)
		}
		removed, err := h.store.Clean(ctx, topics...)
		if err != nil {
			return response{}, err
		}
		return response{Removed: removed}, nil

	default:
		return response{}, fmt.Errorf("%w: unknown cmd %q", errBadRequest, req.Cmd)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, holdthis.ErrInvalidTopic),
		errors.Is(err, holdthis.ErrSerialization):
		return http.StatusBadRequest
	case errors.Is(err, holdthis.ErrSchemaConflict),
		errors.Is(err, holdthis.ErrConstraint):
		return http.StatusConflict
	case errors.Is(err, holdthis.ErrStoreClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
