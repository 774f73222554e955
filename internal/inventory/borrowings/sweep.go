package borrowings

import (
	"context"
	"log"
	"time"
)

// StartSweeper runs the overdue sweep on a fixed interval until ctx is
// cancelled. One run fires immediately so a restart does not delay overdue
// detection by a full interval.
func StartSweeper(ctx context.Context, svc *Service, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Minute
	}

	run := func() {
		n, err := svc.SweepOverdue(ctx, svc.clock.Now())
		if err != nil {
			log.Printf("[ERROR] sweep: %v", err)
			return
		}
		if n > 0 {
			log.Printf("[INFO] sweep: %d loans flipped to late", n)
		}
	}

	go func() {
		run()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				run()
			}
		}
	}()
}
