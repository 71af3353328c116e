package main

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"jobmate/campaign-service/internal/logger"
	"jobmate/campaign-service/internal/scheduler"
)

type scanSummary struct {
	CampaignID string            `json:"campaignId"`
	Outcome    string            `json:"outcome"`
	Skipped    string            `json:"skipped,omitempty"`
	Fetched    int               `json:"fetched"`
	Created    int               `json:"created"`
	Updated    int               `json:"updated"`
	Errors     map[string]string `json:"sourceErrors,omitempty"`
	Error      string            `json:"error,omitempty"`
}

func summarize(r scheduler.ScanResult) scanSummary {
	s := scanSummary{
		CampaignID: r.CampaignID,
		Outcome:    r.Outcome(),
		Skipped:    string(r.Skipped),
		Fetched:    r.Fetched,
		Created:    r.Created,
		Updated:    r.Updated,
	}
	for name, err := range r.SourceErrors {
		if s.Errors == nil {
			s.Errors = make(map[string]string)
		}
		s.Errors[name] = err.Error()
	}
	if r.Err != nil {
		s.Error = r.Err.Error()
	}
	return s
}

func newScanCmd(load loader) *cobra.Command {
	var campaignID string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one scan pass over due campaigns (or one campaign) and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := buildApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.close()

			// Side effects of the new cards still go out before exit.
			a.dispatcher.Start(ctx, a.bus.Subscribe("dispatcher"))

			now := time.Now().UTC()
			var results []scheduler.ScanResult
			if campaignID != "" {
				c, err := a.campaigns.Get(ctx, campaignID)
				if err != nil {
					return err
				}
				results = append(results, a.scheduler.RunCampaign(ctx, c, now))
			} else {
				results, err = a.scheduler.RunDueCampaigns(ctx, now)
				if err != nil {
					return err
				}
			}

			a.bus.Close()
			a.dispatcher.Wait()

			out := make([]scanSummary, 0, len(results))
			for _, r := range results {
				out = append(out, summarize(r))
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			log.Info("scan complete", logger.Int("campaigns", len(results)))
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVar(&campaignID, "campaign", "", "scan only this campaign, due or not")
	return cmd
}
