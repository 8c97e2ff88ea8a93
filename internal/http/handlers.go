/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
    "context"
    "net/http"
    "strconv"

    "github.com/example/sprint-rewind/internal/config"
    "github.com/gin-gonic/gin"
    "github.com/rs/zerolog"
)

type service interface {
    RecomputeSprint(ctx context.Context, sprintID int64) error
    RecomputeOpenSprints(ctx context.Context) (int, int, error)
    GetLastRun(ctx context.Context) (any, error)
}

type Handlers struct {
    cfg config.Config
    log zerolog.Logger
    svc service
    bf  func(ctx context.Context, names []string)
}

func NewHandlers(cfg config.Config, log zerolog.Logger, svc service, rebuild func(ctx context.Context, names []string)) *Handlers {
    return &Handlers{cfg: cfg, log: log, svc: svc, bf: rebuild}
}

func (h *Handlers) Healthz(c *gin.Context) {
    c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handlers) LastRun(c *gin.Context) {
    lr, err := h.svc.GetLastRun(c.Request.Context())
    if err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, lr)
}

// RecomputeSprint queues one sprint's full reconstruction. Runs detached
// from the HTTP request to avoid context cancellation.
func (h *Handlers) RecomputeSprint(c *gin.Context) {
    id, err := strconv.ParseInt(c.Param("sprint"), 10, 64)
    if err != nil || id <= 0 {
        c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sprint id"})
        return
    }
    go func() {
        if err := h.svc.RecomputeSprint(context.Background(), id); err != nil {
            h.log.Error().Err(err).Int64("sprint", id).Msg("recompute failed")
        }
    }()
    c.JSON(http.StatusAccepted, gin.H{"status": "queued", "sprint": id})
}

func (h *Handlers) RecomputeOpen(c *gin.Context) {
    go func() {
        ok, failed, err := h.svc.RecomputeOpenSprints(context.Background())
        if err != nil {
            h.log.Error().Err(err).Msg("recompute open sprints failed")
            return
        }
        h.log.Info().Int("ok", ok).Int("failed", failed).Msg("recompute open sprints done")
    }()
    c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

func (h *Handlers) Rebuild(c *gin.Context) {
    var body struct {
        Sprints []string `json:"sprints"`
    }
    if err := c.ShouldBindJSON(&body); err != nil || len(body.Sprints) == 0 {
        c.JSON(http.StatusBadRequest, gin.H{"error": "body must name at least one sprint"})
        return
    }
    go h.bf(context.Background(), body.Sprints)
    c.JSON(http.StatusAccepted, gin.H{"status": "queued", "sprints": body.Sprints})
}
