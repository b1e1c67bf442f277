package http

import (
	"github.com/gofiber/fiber/v2"

	"subtrack_server/adapter/in/worker"
	"subtrack_server/core/domain"
	"subtrack_server/pkg/response"
)

// SyncHandler starts syncs and serves job status queries.
type SyncHandler struct {
	syncWorker *worker.SyncWorker
	tracker    *worker.JobTracker
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(syncWorker *worker.SyncWorker, tracker *worker.JobTracker) *SyncHandler {
	return &SyncHandler{syncWorker: syncWorker, tracker: tracker}
}

func (h *SyncHandler) Register(app fiber.Router) {
	app.Post("/sync", h.StartSync)
	app.Get("/jobs/:id", h.GetJob)
}

type startSyncRequest struct {
	Full      bool   `json:"full"`
	Direction string `json:"direction"`
}

// StartSync kicks off a background sync and returns its job ID immediately.
func (h *SyncHandler) StartSync(c *fiber.Ctx) error {
	var req startSyncRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return response.BadRequest(c, "invalid request body")
		}
	}

	jobType := domain.JobSyncMetadata
	if req.Full {
		jobType = domain.JobSyncFull
	}

	direction := domain.SyncDirection(req.Direction)
	switch direction {
	case "":
		direction = domain.DirectionRecent
	case domain.DirectionRecent, domain.DirectionOlder:
	default:
		return response.BadRequest(c, "direction must be \"recent\" or \"older\"")
	}

	jobID := h.syncWorker.Start(jobType, direction)
	return response.OK(c, fiber.Map{"job_id": jobID})
}

// GetJob returns the job snapshot.
func (h *SyncHandler) GetJob(c *fiber.Ctx) error {
	job := h.tracker.GetJob(c.Params("id"))
	if job == nil {
		return response.NotFound(c, "job not found")
	}
	return response.OK(c, job)
}
