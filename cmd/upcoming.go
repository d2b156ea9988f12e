package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"ipowatch/internal/schedule"
)

func newUpcomingCmd() *cobra.Command {
	var broker string

	cmd := &cobra.Command{
		Use:   "upcoming",
		Short: "Lists collected schedules that have not passed yet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			today := time.Now().Format("2006-01-02")
			recs, err := rt.store.UpcomingSchedules(cmd.Context(), today, broker)
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no upcoming schedules")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DATE\tSTOCK\tSTATUS\tPRICE\tBROKERS")
			for _, rec := range recs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					rec.GoverningDate(),
					rec.StockName,
					rec.Status,
					priceText(rec),
					brokerText(rec),
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&broker, "broker", "", "only schedules handled by this broker")
	return cmd
}

func priceText(rec schedule.Record) string {
	if !rec.OfferPrice.Valid {
		return "-"
	}
	return rec.OfferPrice.Decimal.String()
}

func brokerText(rec schedule.Record) string {
	if rec.Brokers == nil {
		return "-"
	}
	return *rec.Brokers
}
