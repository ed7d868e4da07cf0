package handlers

import (
	"fmt"
	"time"

	"newsward/internal/config"
	"newsward/internal/notify"

	"github.com/spf13/cobra"
)

// NewNotifyCmd creates the notify command.
func NewNotifyCmd() *cobra.Command {
	var (
		date  string
		topN  int
		force bool
	)
	cmd := &cobra.Command{
		Use:     "notify",
		Aliases: []string{"notifier"},
		Short:   "Send the daily digest notification",
		Long: `Notify delivers the digest for one edition date to the configured
ntfy topic. An edition whose articles were already marked notified is
skipped unless --force is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := config.Get()
			if err := cfg.ValidateNtfy(); err != nil {
				return err
			}
			if date == "" {
				date = time.Now().Format("2006-01-02")
			}

			st, closeDB, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer closeDB()

			n := notify.New(st, cfg.Ntfy, nil)
			sent, err := n.SendDigest(ctx, cfg.Eedition.Slug, date, topN, force)
			if err != nil {
				return err
			}
			if sent == 0 {
				fmt.Println("nothing delivered")
				return nil
			}
			fmt.Printf("digest delivered with %d articles\n", sent)
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "edition date YYYY-MM-DD (default today)")
	cmd.Flags().IntVar(&topN, "top-n", 5, "articles included in the digest, 0 for all")
	cmd.Flags().BoolVar(&force, "force", false, "resend even when the edition was already delivered")
	return cmd
}
