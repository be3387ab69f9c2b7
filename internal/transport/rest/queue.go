package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/frahmantamala/payment-gateway/internal/jobqueue"
	"github.com/frahmantamala/payment-gateway/internal/transport"
)

const workerStatusRunning = "running"

type QueueStatusReader interface {
	Status(ctx context.Context) (map[string]jobqueue.Counts, jobqueue.Counts, error)
}

type QueueStatusResponse struct {
	Queues       map[string]jobqueue.Counts `json:"queues"`
	Total        jobqueue.Counts            `json:"total"`
	WorkerStatus string                     `json:"worker_status"`
	Timestamp    time.Time                  `json:"timestamp"`
}

// JobsStatusResponse folds delayed jobs into pending.
type JobsStatusResponse struct {
	Pending      int64  `json:"pending"`
	Processing   int64  `json:"processing"`
	Completed    int64  `json:"completed"`
	Failed       int64  `json:"failed"`
	WorkerStatus string `json:"worker_status"`
}

type QueueHandler struct {
	*transport.BaseHandler
	Status QueueStatusReader
}

func NewQueueHandler(base *transport.BaseHandler, status QueueStatusReader) *QueueHandler {
	return &QueueHandler{BaseHandler: base, Status: status}
}

func (h *QueueHandler) QueueStatus(w http.ResponseWriter, r *http.Request) {
	perQueue, total, err := h.Status.Status(r.Context())
	if err != nil {
		h.Logger.Error("failed to read queue status", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, QueueStatusResponse{
		Queues:       perQueue,
		Total:        total,
		WorkerStatus: workerStatusRunning,
		Timestamp:    time.Now().UTC(),
	})
}

// JobsStatus always answers 200; a backend error is reported in worker_status.
func (h *QueueHandler) JobsStatus(w http.ResponseWriter, r *http.Request) {
	_, total, err := h.Status.Status(r.Context())
	if err != nil {
		h.Logger.Warn("failed to read job counts", "error", err)
		h.WriteJSON(w, http.StatusOK, JobsStatusResponse{WorkerStatus: "error: " + err.Error()})
		return
	}

	h.WriteJSON(w, http.StatusOK, JobsStatusResponse{
		Pending:      total.Waiting + total.Delayed,
		Processing:   total.Active,
		Completed:    total.Completed,
		Failed:       total.Failed,
		WorkerStatus: workerStatusRunning,
	})
}
