package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"namesmith-ai-api/internal/application/pricing"
	"namesmith-ai-api/internal/domain/entity"
	"namesmith-ai-api/internal/domain/service"
	"namesmith-ai-api/internal/infrastructure/llm"
)

func newModelsCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List configured models and their availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			registry := llm.NewModelRegistry(cfg)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPROVIDER\tIN/1K\tOUT/1K\tSTATUS")
			for _, d := range registry.List() {
				status := "available"
				if _, err := registry.Available(d.ID); err != nil {
					status = unavailableReason(err)
				}
				fmt.Fprintf(w, "%s\t%s\t%.3f\t%.3f\t%s\n", d.ID, d.Provider, d.InputCostPer1K, d.OutputCostPer1K, status)
			}
			return w.Flush()
		},
	}
}

func unavailableReason(err error) string {
	var genErr *service.GenerationError
	if errors.As(err, &genErr) && genErr.Err != nil {
		return genErr.Err.Error()
	}
	return err.Error()
}

func newQuoteCmd(load configLoader) *cobra.Command {
	var (
		models []string
		text   string
	)

	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Estimate the cost of a generation session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(text) == "" {
				return fmt.Errorf("--prompt is required")
			}
			cfg, err := load()
			if err != nil {
				return err
			}
			if len(models) == 0 && cfg.Generation.DefaultModel != "" {
				models = []string{cfg.Generation.DefaultModel}
			}
			models = entity.DedupeModels(models)
			if len(models) == 0 {
				return fmt.Errorf("--models is required")
			}

			quote, err := pricing.NewEstimator(llm.NewModelRegistry(cfg)).Quote(models, text)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL\tINPUT\tOUTPUT\tCENTS")
			for _, item := range quote.Items {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", item.ModelID, item.InputTokens, item.OutputTokens, item.Cents)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "total: %d cents\n", quote.TotalCents)
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&models, "models", "m", nil, "model IDs to quote (comma separated)")
	cmd.Flags().StringVarP(&text, "prompt", "p", "", "prompt to quote")
	return cmd
}
