package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"aetherflow/internal/challenges"
	"aetherflow/internal/emissions"
	"aetherflow/internal/equivalents"
)

func (a *app) classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <phrase>...",
		Short: "Classify equivalent phrases into display text and icon",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(cmd.OutOrStdout(), equivalents.Annotate(args))
		},
	}
}

func (a *app) challengesCmd() *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "challenges",
		Short: "List the challenge catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			all, err := challenges.Catalog()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), challenges.FilterByCategory(all, category))
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "only show one category (food, clothing, energy, transport)")
	return cmd
}

// categoryInput is one fine-category row of an aggregate input file.
type categoryInput struct {
	Category        string  `json:"category"`
	Emissions       float64 `json:"emissions"`
	Count           int     `json:"count"`
	FractionOfTotal float64 `json:"fraction_of_total"`
}

type groupOutput struct {
	Group           string  `json:"group"`
	Emissions       float64 `json:"emissions"`
	Count           int     `json:"count"`
	FractionOfTotal float64 `json:"fraction_of_total"`
}

type aggregateOutput struct {
	Groups   []groupOutput `json:"groups"`
	Unmapped []string      `json:"unmapped,omitempty"`
}

func (a *app) aggregateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "aggregate <file|->",
		Short: "Reduce fine-category results into the four footprint groups",
		Long: `Aggregate reads a JSON array of {category, emissions, count, fraction_of_total}
objects and prints the Food, Clothing, Energy and Transport totals.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}

			var rows []categoryInput
			if err := json.NewDecoder(r).Decode(&rows); err != nil {
				return fmt.Errorf("decode %s: %w", args[0], err)
			}

			results := make([]emissions.CategoryResult, 0, len(rows))
			for _, row := range rows {
				results = append(results, emissions.CategoryResult{
					Category:        strings.TrimSpace(row.Category),
					Emissions:       row.Emissions,
					Count:           row.Count,
					FractionOfTotal: row.FractionOfTotal,
				})
			}

			out := aggregateOutput{Unmapped: emissions.Unmapped(results)}
			for _, g := range emissions.Aggregate(results) {
				out.Groups = append(out.Groups, groupOutput{
					Group:           g.Group.String(),
					Emissions:       g.Emissions,
					Count:           g.Count,
					FractionOfTotal: g.FractionOfTotal,
				})
			}
			if len(out.Unmapped) > 0 {
				a.logger.Warn("Dropped categories without a footprint group", "categories", out.Unmapped)
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}
