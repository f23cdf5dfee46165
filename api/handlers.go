package api

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"

	"gitlab.com/nunet/nosana-node-monitor/internal/jsonx"
	"gitlab.com/nunet/nosana-node-monitor/models"
)

// matches the max in ledgerQuery's binding tag
const maxLedgerLimitText = "1000"

// LedgerResponse is the body of GET /ledger.
type LedgerResponse struct {
	Totals models.Earnings    `json:"totals"`
	Jobs   []models.JobRecord `json:"jobs"`
}

type ledgerQuery struct {
	Finalized *bool `form:"finalized"`
	Limit     int   `form:"limit" binding:"omitempty,min=1,max=1000"`
}

// HandleSnapshot returns the last good snapshot, or 503 before the first
// successful cycle.
func (h *Handler) HandleSnapshot(c *gin.Context) {
	snap, ok := h.source.Snapshot()
	if !ok {
		detail := "no refresh cycle has completed yet"
		if health := h.source.Health(); health.LastError != nil {
			detail = *health.LastError
		}
		abortWithProblem(c, NewUnavailableProblem(detail))
		return
	}
	writeJSON(c, http.StatusOK, snap)
}

// HandleStatus reports cycle health; it is always available.
func (h *Handler) HandleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, h.source.Health())
}

// HandleLedger lists ledger records, most recently finished first.
func (h *Handler) HandleLedger(c *gin.Context) {
	var q ledgerQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		abortWithProblem(c, NewValidationProblem(err))
		return
	}

	ctx := c.Request.Context()
	doc := h.ledger.Document(ctx)
	jobs := make([]models.JobRecord, 0, len(doc.Jobs))
	for _, rec := range doc.Jobs {
		if q.Finalized != nil && rec.Finalized != *q.Finalized {
			continue
		}
		jobs = append(jobs, rec)
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].TimeEnd != jobs[j].TimeEnd {
			return jobs[i].TimeEnd > jobs[j].TimeEnd
		}
		if jobs[i].TimeStart != jobs[j].TimeStart {
			return jobs[i].TimeStart > jobs[j].TimeStart
		}
		return jobs[i].JobID < jobs[j].JobID
	})
	if q.Limit > 0 && len(jobs) > q.Limit {
		jobs = jobs[:q.Limit]
	}

	c.Header("X-Total-Count", strconv.Itoa(len(doc.Jobs)))
	writeJSON(c, http.StatusOK, LedgerResponse{Totals: h.ledger.Totals(ctx), Jobs: jobs})
}

// HandleRefresh queues an immediate cycle.
func (h *Handler) HandleRefresh(c *gin.Context) {
	queued := h.source.RequestRefresh()
	writeJSON(c, http.StatusAccepted, gin.H{"queued": queued})
}

func writeJSON(c *gin.Context, status int, v interface{}) {
	raw, err := jsonx.Marshal(v)
	if err != nil {
		zlog.Sugar().Errorf("encoding response for %s: %v", c.Request.URL.Path, err)
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.Data(status, "application/json; charset=utf-8", raw)
}
