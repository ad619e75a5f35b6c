// internal/controller/job_controller.go
package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/unclebandit/renewcast-backend/internal/errors"
	"github.com/unclebandit/renewcast-backend/internal/model"
	"github.com/unclebandit/renewcast-backend/internal/service"
)

// Runner is one manually triggerable engine pass (an executor tick or a
// scheduler generation run).
type Runner interface {
	RunOnce(ctx context.Context) (int, error)
}

type JobController struct {
	JobService *service.JobService
	Executor   Runner
	Scheduler  Runner
}

func (c *JobController) CreateJob(w http.ResponseWriter, r *http.Request) {
	tenantID, err := strconv.Atoi(chi.URLParam(r, "tenantID"))
	if err != nil {
		http.Error(w, "invalid tenant id", http.StatusBadRequest)
		return
	}

	var body struct {
		Channel   string `json:"channel"`
		Recipient string `json:"recipient"`
		Message   string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	channel := model.Channel(body.Channel)
	if !channel.Valid() {
		http.Error(w, "invalid channel", http.StatusBadRequest)
		return
	}
	if body.Recipient == "" {
		http.Error(w, "recipient is required", http.StatusBadRequest)
		return
	}

	job, err := c.JobService.CreateDirectJob(r.Context(), tenantID, channel, body.Recipient, body.Message)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(job)
}

func (c *JobController) GetJob(w http.ResponseWriter, r *http.Request) {
	tenantID, err := strconv.Atoi(chi.URLParam(r, "tenantID"))
	if err != nil {
		http.Error(w, "invalid tenant id", http.StatusBadRequest)
		return
	}
	jobID, err := strconv.Atoi(chi.URLParam(r, "jobID"))
	if err != nil {
		http.Error(w, "invalid job id", http.StatusBadRequest)
		return
	}

	job, err := c.JobService.GetJob(r.Context(), tenantID, jobID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	json.NewEncoder(w).Encode(job)
}

func (c *JobController) ListJobs(w http.ResponseWriter, r *http.Request) {
	tenantID, err := strconv.Atoi(chi.URLParam(r, "tenantID"))
	if err != nil {
		http.Error(w, "invalid tenant id", http.StatusBadRequest)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	status := r.URL.Query().Get("status")

	jobs, pagination, err := c.JobService.ListJobs(r.Context(), tenantID, page, pageSize, status)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"data":       jobs,
		"pagination": pagination,
	})
}

func (c *JobController) GetUsage(w http.ResponseWriter, r *http.Request) {
	tenantID, err := strconv.Atoi(chi.URLParam(r, "tenantID"))
	if err != nil {
		http.Error(w, "invalid tenant id", http.StatusBadRequest)
		return
	}

	usage, err := c.JobService.Usage(r.Context(), tenantID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{"data": usage})
}

// RunExecutor lets an operator trigger one executor pass on demand.
func (c *JobController) RunExecutor(w http.ResponseWriter, r *http.Request) {
	processed, err := c.Executor.RunOnce(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(map[string]int{"processed": processed})
}

// RunScheduler triggers one generation pass on demand.
func (c *JobController) RunScheduler(w http.ResponseWriter, r *http.Request) {
	created, err := c.Scheduler.RunOnce(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(map[string]int{"jobs_created": created})
}

func writeDomainError(w http.ResponseWriter, err error) {
	var notFound *appErrors.ErrTenantNotFound
	var jobNotFound *appErrors.ErrJobNotFound
	var notEnabled *appErrors.ErrChannelNotEnabled
	var quotaExceeded *appErrors.ErrQuotaExceeded

	switch {
	case errors.As(err, &notFound), errors.As(err, &jobNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &notEnabled):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.As(err, &quotaExceeded):
		http.Error(w, err.Error(), http.StatusTooManyRequests)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
