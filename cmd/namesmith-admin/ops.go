package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"namesmith-ai-api/internal/application/prompt"
	"namesmith-ai-api/internal/application/quota"
	"namesmith-ai-api/internal/config"
	"namesmith-ai-api/internal/infrastructure/persistence/postgres"
	"namesmith-ai-api/internal/infrastructure/persistence/redis"
)

func newMigrateCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the session and usage tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			client, err := postgres.NewClient(&cfg.Database.Postgres)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer func() { _ = client.Close() }()

			if err := client.AutoMigrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Migrated database %s\n", cfg.Database.Postgres.Database)
			return nil
		},
	}
}

// withRedis 打开 Redis 连接并在 fn 返回后关闭
func withRedis(ctx context.Context, cfg *config.Config, fn func(ctx context.Context, client *redis.Client) error) error {
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() { _ = client.Close() }()
	return fn(ctx, client)
}

func newBudgetCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "budget",
		Short: "Show global spend against the configured budget",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return withRedis(cmd.Context(), cfg, func(ctx context.Context, client *redis.Client) error {
				return printBudget(ctx, cmd, budgetGate(client, cfg))
			})
		},
	}
}

// budgetGate 只读预算视图，不发布告警
func budgetGate(client *redis.Client, cfg *config.Config) *quota.Gate {
	return quota.NewGate(redis.NewCounter(client), redis.NewSpendCounter(client), nil, config.NewStaticManager(cfg))
}

func printBudget(ctx context.Context, cmd *cobra.Command, gate *quota.Gate) error {
	status, err := gate.Budget(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "today: %d / %s cents%s\n", status.DayCents, limitText(status.DayLimit), alertText(status.DayAlerting))
	fmt.Fprintf(out, "month: %d / %s cents%s\n", status.MonthCents, limitText(status.MonthLimit), alertText(status.MonthAlerting))
	return nil
}

func limitText(limit int64) string {
	if limit <= 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d", limit)
}

func alertText(alerting bool) string {
	if alerting {
		return " (over alert threshold)"
	}
	return ""
}

func newMemoCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memo",
		Short: "Memoized generation result maintenance",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "flush",
		Short: "Drop every memoized generation result",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return withRedis(cmd.Context(), cfg, func(ctx context.Context, client *redis.Client) error {
				return flushMemo(ctx, cmd, redis.NewCache(client))
			})
		},
	})
	return cmd
}

func flushMemo(ctx context.Context, cmd *cobra.Command, cache *redis.Cache) error {
	n, err := cache.InvalidatePattern(ctx, prompt.CacheKeyPrefix+"*")
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Flushed %d memoized results\n", n)
	return nil
}
