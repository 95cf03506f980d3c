package worker

import (
	"context"
	"log"
	"time"

	"github.com/NewProjekBotpy/nubiluXchange-sub002/internal/wallet"
)

// ExpirySweeper periodically transitions overdue pending money requests
// to expired. It is the scheduled-job driver for the request manager.
type ExpirySweeper struct {
	requests *wallet.MoneyRequestService
	interval time.Duration
}

func NewExpirySweeper(requests *wallet.MoneyRequestService, interval time.Duration) *ExpirySweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ExpirySweeper{requests: requests, interval: interval}
}

// Run blocks until the context is cancelled.
func (s *ExpirySweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Printf("[EXPIRY] sweeper running every %s", s.interval)
	for {
		select {
		case <-ctx.Done():
			log.Println("[EXPIRY] sweeper stopped")
			return
		case <-ticker.C:
			count, err := s.requests.ExpireOverdue(ctx)
			if err != nil {
				log.Printf("[EXPIRY] sweep failed: %v", err)
				continue
			}
			if count > 0 {
				log.Printf("[EXPIRY] expired %d overdue money requests", count)
			}
		}
	}
}
