// Command subscribe-urls prints SNS subscriptions that are still waiting for
// confirmation, with the URL an operator can open to confirm each one.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	_ "github.com/lib/pq"

	"github.com/ignite/ses-guard/internal/config"
	"github.com/ignite/ses-guard/internal/domain"
	"github.com/ignite/ses-guard/internal/repository/postgres"
)

// pendingLister is the registry read the command needs.
type pendingLister interface {
	ListPending(ctx context.Context, category domain.SubscriptionCategory) ([]domain.Subscription, error)
}

func main() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Database.URL == "" {
		fmt.Fprintln(os.Stderr, "FATAL: DATABASE_URL is required")
		os.Exit(1)
	}

	var category domain.SubscriptionCategory
	if len(os.Args) > 1 {
		category = domain.SubscriptionCategory(os.Args[1])
		if !category.Valid() {
			fmt.Fprintf(os.Stderr, "FATAL: unknown category %q (bounces, complaints, deliveries)\n", os.Args[1])
			os.Exit(2)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: cannot connect to database: %v\n", err)
		os.Exit(1)
	}

	n, err := run(ctx, postgres.NewSubscriptionRepo(db), category, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
	if n > 0 {
		os.Exit(3)
	}
}

// run writes the pending subscriptions to w and returns how many there were.
func run(ctx context.Context, repo pendingLister, category domain.SubscriptionCategory, w io.Writer) (int, error) {
	subs, err := repo.ListPending(ctx, category)
	if err != nil {
		return 0, fmt.Errorf("list pending subscriptions: %w", err)
	}
	if len(subs) == 0 {
		fmt.Fprintln(w, "✓ No unconfirmed subscriptions")
		return 0, nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tTOPIC\tRECEIVED\tSUBSCRIBE URL")
	for _, s := range subs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Category, s.TopicArn, s.CreatedAt.UTC().Format(time.RFC3339), s.SubscribeURL)
	}
	if err := tw.Flush(); err != nil {
		return 0, err
	}
	fmt.Fprintf(w, "\n%d unconfirmed subscription(s)\n", len(subs))
	return len(subs), nil
}
