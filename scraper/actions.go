package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/use-agent/jobsnap/models"
)

// defaultActionTimeout bounds a click when no action timeout is configured.
const defaultActionTimeout = 10 * time.Second

// clickBefore runs the schema's single pre-extraction click under its own
// deadline. A missing element counts as a failed action.
func clickBefore(ctx context.Context, d driver, selector string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultActionTimeout
	}
	actionCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := d.Click(actionCtx, selector); err != nil {
		return categorizeError(ctx, err, models.ErrCodeAction,
			fmt.Sprintf("click on %q failed", selector))
	}
	return nil
}
