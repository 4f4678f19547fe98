package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/pipeline"
	"github.com/poiesic/docflow/ratelimit"
	"github.com/poiesic/docflow/search"
	"github.com/poiesic/docflow/storage"
)

// Rate-limited action names for the read endpoints. Submission uses
// pipeline.SubmitAction inside the producer.
const (
	StatusAction = "status"
	SearchAction = "search"
)

// TaskHandler serves the task lifecycle endpoints.
type TaskHandler struct {
	producer *pipeline.Producer
	jobs     storage.JobRepository
	searcher *search.Searcher
	limiter  *ratelimit.Limiter
}

func NewTaskHandler(producer *pipeline.Producer, jobs storage.JobRepository, searcher *search.Searcher, limiter *ratelimit.Limiter) *TaskHandler {
	return &TaskHandler{
		producer: producer,
		jobs:     jobs,
		searcher: searcher,
		limiter:  limiter,
	}
}

// Submit accepts a document extraction task and returns 202 immediately.
// The task id in the response is the job id for status polling.
func (h *TaskHandler) Submit(c *fiber.Ctx) error {
	var sub pipeline.Submission
	if err := c.BodyParser(&sub); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed request body"})
	}

	status, err := h.producer.Submit(c.Context(), &sub)
	if err != nil {
		return mapErr(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"task_id": status.JobID,
		"status":  "queued",
	})
}

// Status reports the job record for one task. The company_id query
// parameter scopes both the rate limit and the lookup; a job owned by a
// different company reads as not found.
func (h *TaskHandler) Status(c *fiber.Ctx) error {
	taskID := c.Params("taskId")
	if taskID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid task id"})
	}
	companyID := c.Query("company_id")
	if companyID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "company_id is required"})
	}

	if err := h.limiter.Check(c.Context(), companyID, StatusAction); err != nil {
		return mapErr(c, err)
	}

	status, err := h.jobs.Get(c.Context(), taskID)
	if err != nil {
		return mapErr(c, err)
	}
	if status.OwnerID != companyID {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "task not found"})
	}

	return c.Status(fiber.StatusOK).JSON(status)
}

// Search ranks stored catalog points for a company against a free-text
// query. Backends use it to verify storage after a completion webhook,
// or to reconcile after a missed one.
func (h *TaskHandler) Search(c *fiber.Ctx) error {
	companyID := c.Query("company_id")
	if companyID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "company_id is required"})
	}

	if err := h.limiter.Check(c.Context(), companyID, SearchAction); err != nil {
		return mapErr(c, err)
	}

	query := search.Query{
		Text:      c.Query("q"),
		CompanyID: companyID,
		Category:  core.Category(c.Query("category")),
		MaxHits:   c.QueryInt("limit", 10),
	}

	results, err := h.searcher.Find(c.Context(), query)
	if err != nil {
		return mapErr(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"results": results,
		"count":   len(results),
	})
}

func mapErr(c *fiber.Ctx, err error) error {
	if rle, ok := core.IsRateLimited(err); ok {
		retryAfter := int(rle.RetryAfter / time.Second)
		if retryAfter < 1 {
			retryAfter = 1
		}
		c.Set("Retry-After", fmt.Sprintf("%d", retryAfter))
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error":       "rate limit exceeded",
			"retry_after": retryAfter,
		})
	}

	switch {
	case errors.Is(err, core.ErrQueueUnavailable):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "queue unavailable, retry later"})
	case errors.Is(err, storage.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "task not found"})
	case errors.Is(err, core.ErrInvalidSubmission),
		errors.Is(err, core.ErrEmptySourceURL),
		errors.Is(err, core.ErrEmptyCompanyID),
		errors.Is(err, core.ErrInvalidCallbackURL),
		errors.Is(err, search.ErrEmptyQuery):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "something went wrong"})
}
