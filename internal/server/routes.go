package server

import (
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/alotth/audio-transcriber/internal/artifact"
	"github.com/alotth/audio-transcriber/internal/lifecycle"
	"github.com/alotth/audio-transcriber/internal/models"
	"github.com/alotth/audio-transcriber/internal/store"
)

// allowedMimeTypes are the audio/video-container types the ingest endpoint
// accepts.
var allowedMimeTypes = map[string]bool{
	"audio/webm":      true,
	"audio/mp3":       true,
	"audio/mpeg":      true,
	"audio/wav":       true,
	"audio/x-wav":     true,
	"audio/ogg":       true,
	"audio/m4a":       true,
	"audio/x-m4a":     true,
	"audio/aac":       true,
	"audio/mp4":       true,
	"video/webm":      true,
	"video/mp4":       true,
	"application/ogg": true,
}

// registerRoutes sets up all API routes on the Gin router.
func registerRoutes(router *gin.Engine, opts *StartOpts) {
	router.POST("/transcriptions", handleIngest(opts))
	router.GET("/transcriptions", handleList(opts))
	router.GET("/transcriptions/state/:state", handleListByState(opts))
	router.GET("/transcriptions/:id", handleGet(opts))
	router.GET("/transcriptions/:id/download", handleDownload(opts))
	router.POST("/transcriptions/:id/recheck", handleRecheck(opts))
	router.GET("/system/status", handleSystemStatus(opts))
}

// jobResponse is the wire shape for a job record.
type jobResponse struct {
	ID                string     `json:"id"`
	State             string     `json:"state"`
	VendorJobID       string     `json:"vendor_job_id,omitempty"`
	OriginalName      string     `json:"original_name,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	SpeakerCount      int        `json:"speaker_count"`
	TranscriptRef     string     `json:"transcript_ref,omitempty"`
	TranscriptPreview string     `json:"transcript_preview,omitempty"`
	Error             string     `json:"error,omitempty"`
	Stalled           bool       `json:"stalled"`
	Text              string     `json:"text,omitempty"`
}

func toResponse(job *models.Job) jobResponse {
	return jobResponse{
		ID:                job.ID,
		State:             job.State,
		VendorJobID:       job.VendorJobID,
		OriginalName:      job.OriginalName,
		CreatedAt:         job.CreatedAt,
		CompletedAt:       job.CompletedAt,
		SpeakerCount:      job.SpeakerCount,
		TranscriptRef:     job.TranscriptRef,
		TranscriptPreview: job.TranscriptPreview,
		Error:             job.Error,
		Stalled:           job.Stalled(),
	}
}

// handleIngest accepts raw audio plus an original filename, validates it and
// registers a new job. The remote pipeline runs asynchronously; the response
// carries only the job id and its initial state.
func handleIngest(opts *StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		space, err := opts.Artifacts.FreeSpace()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not determine free disk space"})
			return
		}
		if space.Free < uint64(opts.MinFreeBytes) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "insufficient disk space to accept uploads"})
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, opts.MaxUploadBytes+1024)
		file, header, err := c.Request.FormFile("audio")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no audio file received"})
			return
		}
		defer file.Close()

		if header.Size > opts.MaxUploadBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": fmt.Sprintf("file exceeds the %dMB limit", opts.MaxUploadBytes/(1024*1024)),
			})
			return
		}
		if !acceptableUpload(header.Header.Get("Content-Type"), header.Filename) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "unsupported format; use WebM, MP3, WAV, OGG, M4A, AAC or MP4",
			})
			return
		}

		data, err := io.ReadAll(file)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not read uploaded file"})
			return
		}
		if len(data) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "uploaded file is empty"})
			return
		}

		id, err := opts.Manager.Register(lifecycle.RegisterOpts{
			ID:           c.PostForm("id"),
			Audio:        data,
			OriginalName: header.Filename,
		})
		if err != nil {
			if errors.Is(err, store.ErrDuplicateID) {
				c.JSON(http.StatusConflict, gin.H{"error": "job id already submitted", "id": c.PostForm("id")})
				return
			}
			log.Printf("server: ingest: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not register transcription"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"id": id, "state": models.StatePending})
	}
}

// acceptableUpload checks the declared mime type, falling back to the
// filename extension when the producer sent a generic type.
func acceptableUpload(contentType, filename string) bool {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil && allowedMimeTypes[mt] {
		return true
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".webm", ".mp3", ".wav", ".ogg", ".m4a", ".aac", ".mp4":
		return true
	}
	return false
}

// handleList returns every job, metadata only, newest first.
func handleList(opts *StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobs, err := opts.Store.ListAll()
		if err != nil {
			log.Printf("server: list: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list transcriptions"})
			return
		}
		out := make([]jobResponse, len(jobs))
		for i := range jobs {
			out[i] = toResponse(&jobs[i])
		}
		c.JSON(http.StatusOK, gin.H{"transcriptions": out, "count": len(out)})
	}
}

// handleListByState filters jobs by lifecycle state.
func handleListByState(opts *StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		state := c.Param("state")
		if !models.ValidState(state) {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown state %q", state)})
			return
		}
		jobs, err := opts.Store.ListByState(state)
		if err != nil {
			log.Printf("server: list state %s: %v", state, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list transcriptions"})
			return
		}
		out := make([]jobResponse, len(jobs))
		for i := range jobs {
			out[i] = toResponse(&jobs[i])
		}
		c.JSON(http.StatusOK, gin.H{"transcriptions": out, "count": len(out)})
	}
}

// handleGet returns a single job, with the full transcript text inlined when
// completed and readable.
func handleGet(opts *StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, err := opts.Store.Get(c.Param("id"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "transcription not found"})
				return
			}
			log.Printf("server: get: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not fetch transcription"})
			return
		}

		out := toResponse(job)
		if job.State == models.StateCompleted && job.TranscriptRef != "" {
			text, err := opts.Artifacts.GetTranscript(job.TranscriptRef)
			if err != nil {
				log.Printf("server: get %s: read transcript: %v", job.ID, err)
			} else {
				out.Text = text
			}
		}
		c.JSON(http.StatusOK, out)
	}
}

// handleDownload serves the full transcript as a plain-text attachment.
func handleDownload(opts *StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, err := opts.Store.Get(c.Param("id"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "transcription not found"})
				return
			}
			log.Printf("server: download: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not fetch transcription"})
			return
		}
		if job.State != models.StateCompleted || job.TranscriptRef == "" {
			c.JSON(http.StatusNotFound, gin.H{"error": "transcription file not found"})
			return
		}

		text, err := opts.Artifacts.GetTranscript(job.TranscriptRef)
		if err != nil {
			if errors.Is(err, artifact.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "transcription file not found"})
				return
			}
			log.Printf("server: download %s: %v", job.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read transcription file"})
			return
		}

		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", job.TranscriptRef))
		c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(text))
	}
}

// handleRecheck restarts polling for a transcribing job whose automatic loop
// stopped.
func handleRecheck(opts *StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := opts.Manager.Recheck(id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "transcription not found"})
				return
			}
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"id": id, "state": models.StateTranscribing})
	}
}

// handleSystemStatus reports directory health, disk space and in-flight work.
func handleSystemStatus(opts *StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		counts, err := opts.Store.CountByState()
		if err != nil {
			log.Printf("server: system status: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not gather status"})
			return
		}
		space, err := opts.Artifacts.FreeSpace()
		if err != nil {
			log.Printf("server: system status: %v", err)
		}
		c.JSON(http.StatusOK, gin.H{
			"uploads_dir":     artifact.Inspect(opts.Artifacts.UploadsDir()),
			"transcripts_dir": artifact.Inspect(opts.Artifacts.TranscriptsDir()),
			"disk":            space,
			"jobs":            counts,
			"active_polls":    opts.Manager.ActiveLoops(),
		})
	}
}
