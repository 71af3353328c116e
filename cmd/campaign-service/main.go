// jobmate-campaign-service
//
// Recurring job-search campaigns and the application pipeline:
//   - scans due campaigns on a cron tick, scores postings from every job
//     source and creates new-leads cards above the campaign threshold
//   - enforces the Kanban state machine on card transitions
//   - dispatches side effects (prep kits, notifications) asynchronously
//
// Publishes EVENT_CARD_MOVED to Redis for Gateway SSE forward.
package main

import (
	"fmt"
	"os"
)

const version = "1.0.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "[campaign-service] %v\n", err)
		os.Exit(1)
	}
}
