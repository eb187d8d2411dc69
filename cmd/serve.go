package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atelierlabs/nameplate-cli/internal/blob"
	"github.com/atelierlabs/nameplate-cli/internal/config"
	"github.com/atelierlabs/nameplate-cli/internal/model"
	"github.com/atelierlabs/nameplate-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for uploads and extraction",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		api := &apiServer{
			store:   env.Store,
			blobs:   env.Blobs,
			process: env.Pipeline.ProcessImage,
			cfg:     cfg,
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      api.routes(),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute, // extraction calls block the response
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// apiServer bundles the handler dependencies so tests can swap in fakes.
type apiServer struct {
	store   store.Store
	blobs   blob.Store
	process extractFunc
	cfg     *config.Config
}

func (s *apiServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/images", s.handleUpload)
	r.Post("/images/{id}/extract", s.handleExtract)
	r.Delete("/images/{id}", s.handleDelete)
	r.Get("/predictions", s.handleListPredictions)
	r.Put("/images/{id}/ground-truth", s.handleSetGroundTruth)

	return r
}

func (s *apiServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes + 4096); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read upload")
		return
	}
	contentType, err := validateImageBytes(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	owner := r.FormValue("owner")
	if owner == "" {
		owner = "default"
	}
	mode := s.storageMode(r)

	img := model.Image{
		ID:               uuid.New().String(),
		OwnerID:          owner,
		OriginalFilename: filepath.Base(header.Filename),
		MIMEType:         contentType,
		SizeBytes:        int64(len(data)),
	}
	img.StoragePath = fmt.Sprintf("images/%s/%s%s", owner, img.ID, filepath.Ext(header.Filename))

	if err := s.blobs.Put(r.Context(), mode, img.StoragePath, data, contentType); err != nil {
		zap.L().Error("upload to storage failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "storage write failed")
		return
	}

	saved, err := s.store.CreateImage(r.Context(), img)
	if err != nil {
		zap.L().Error("image record failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "image record failed")
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (s *apiServer) handleExtract(w http.ResponseWriter, r *http.Request) {
	imageID := chi.URLParam(r, "id")

	img, err := s.store.GetImage(r.Context(), imageID)
	if err != nil {
		writeError(w, http.StatusNotFound, "image not found")
		return
	}

	force := r.URL.Query().Get("force") == "true"
	if !force {
		cached, err := s.store.GetPredictionByImage(r.Context(), imageID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "prediction lookup failed")
			return
		}
		if cached != nil {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	opts := pipelineOptions(s.cfg, r.URL.Query().Get("method"), s.storageMode(r) == blob.Ephemeral)
	result, err := s.process(r.Context(), *img, opts)
	if err != nil {
		zap.L().Error("extraction failed",
			zap.String("image_id", imageID), zap.Error(err))
		writeError(w, http.StatusBadGateway, "extraction failed")
		return
	}

	pred, err := s.store.InsertPrediction(r.Context(), model.Prediction{
		ImageID:      img.ID,
		OwnerID:      img.OwnerID,
		Result:       result,
		ModelVersion: s.cfg.Anthropic.Model,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "prediction save failed")
		return
	}
	writeJSON(w, http.StatusOK, pred)
}

func (s *apiServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	img, err := s.store.GetImage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "image not found")
		return
	}

	if err := s.blobs.Delete(r.Context(), s.storageMode(r), img.StoragePath); err != nil {
		zap.L().Warn("object deletion failed, continuing with record",
			zap.String("path", img.StoragePath), zap.Error(err))
	}
	if err := s.store.DeleteImage(r.Context(), img.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "image deletion failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleListPredictions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	preds, err := s.store.ListPredictions(r.Context(), store.PredictionFilter{
		OwnerID: q.Get("owner"),
		Method:  model.Method(q.Get("method")),
		Search:  q.Get("search"),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "prediction listing failed")
		return
	}
	if preds == nil {
		preds = []model.Prediction{}
	}
	writeJSON(w, http.StatusOK, preds)
}

func (s *apiServer) handleSetGroundTruth(w http.ResponseWriter, r *http.Request) {
	img, err := s.store.GetImage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "image not found")
		return
	}

	var body model.GroundTruth
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	body.ImageID = img.ID
	if body.OwnerID == "" {
		body.OwnerID = img.OwnerID
	}

	gt, err := s.store.UpsertGroundTruth(r.Context(), body)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "ground truth save failed")
		return
	}
	writeJSON(w, http.StatusOK, gt)
}

// storageMode reads the storage tier from the request, defaulting to
// production.
func (s *apiServer) storageMode(r *http.Request) blob.Mode {
	if r.URL.Query().Get("ephemeral") == "true" || r.FormValue("ephemeral") == "true" {
		return blob.Ephemeral
	}
	return blob.Production
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
