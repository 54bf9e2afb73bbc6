package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"advancedreminders/internal/reminder"

	"github.com/gin-gonic/gin"
)

// Runner runs one reminder pass
type Runner interface {
	Run(ctx context.Context, opts reminder.RunOptions) (*reminder.Summary, error)
}

// ReminderHandler exposes dry runs of the reminder job to operators
type ReminderHandler struct {
	runner Runner
}

func NewReminderHandler(runner Runner) *ReminderHandler {
	return &ReminderHandler{runner: runner}
}

// DryRun evaluates every course without sending anything and returns the
// emails that would go out along with the run log.
//
// Query parameters: now (unix seconds), loglevel=1 for debug output,
// ignoresent=1 to bypass the resend intervals, inactivity=false (with
// loglevel=1) to skip the inactivity trigger.
func (h *ReminderHandler) DryRun(c *gin.Context) {
	opts := reminder.RunOptions{DryRun: true}

	if raw := c.Query("now"); raw != "" {
		sec, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || sec <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "now must be a unix timestamp in seconds"})
			return
		}
		opts.Now = time.Unix(sec, 0)
	}
	opts.Verbose = c.Query("loglevel") == "1"
	opts.IgnoreRateLimit = queryBool(c, "ignoresent", false)
	// inactivity=false only applies together with loglevel=1
	opts.DisableInactivity = opts.Verbose && !queryBool(c, "inactivity", true)

	summary, err := h.runner.Run(c.Request.Context(), opts)
	if err != nil {
		handleError(c, http.StatusInternalServerError, "reminder run failed", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func queryBool(c *gin.Context, key string, def bool) bool {
	raw, ok := c.GetQuery(key)
	if !ok {
		return def
	}
	if raw == "" {
		return true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}
