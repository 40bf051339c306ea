package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/kasa/internal/classification"
	"github.com/Veraticus/kasa/internal/cli"
	"github.com/Veraticus/kasa/internal/model"
	"github.com/Veraticus/kasa/internal/payer"
	"github.com/Veraticus/kasa/internal/statement"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func classifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify <amount> <description>",
		Short: "Show how a single transfer would be settled",
		Long: `Resolve the payer of one transfer and print the proposed category
assignments without touching the ledger or the settlement log.

With --offline the ledger is not consulted and only the amount is used to
guess a category.`,
		Args: cobra.MinimumNArgs(2),
		RunE: runClassify,
	}

	cmd.Flags().Bool("offline", false, "do not fetch the payer's ledger account")
	cmd.Flags().String("date", "", "transaction date (YYYY-MM-DD, default today)")

	return cmd
}

func runClassify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	offline, _ := cmd.Flags().GetBool("offline")
	dateFlag, _ := cmd.Flags().GetString("date")

	amount, err := statement.ParseAmount(args[0])
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", args[0], err)
	}
	date := time.Now()
	if dateFlag != "" {
		if date, err = time.Parse(time.DateOnly, dateFlag); err != nil {
			return fmt.Errorf("invalid date %q: %w", dateFlag, err)
		}
	}
	description := strings.Join(args[1:], " ")

	classifier, err := initClassifier()
	if err != nil {
		return err
	}

	extractor, err := initExtractor(false)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}
	var names payer.NameExtractor
	if extractor != nil {
		names = extractor
	}

	// Find the payer
	res, err := payer.NewResolver(names, nil).Resolve(ctx, description)
	switch {
	case errors.Is(err, payer.ErrPOS):
		fmt.Println(cli.FormatWarning("Card terminal payment: the row would be flagged FLAG_POS"))
		return nil
	case err != nil:
		fmt.Println(cli.FormatWarning(fmt.Sprintf("No payer found: %v", err)))
		return nil
	}
	fmt.Println(cli.FormatInfo(fmt.Sprintf("Payer %s (%s, sender %s)", res.Name, res.Channel, res.Sender)))

	if offline {
		c := classifier.InferCategory(amount)
		fmt.Println(cli.FormatInfo(fmt.Sprintf("Amount alone suggests %s", c.Label())))
		return nil
	}

	// Classify against the payer's ledger account
	ledger, err := initGateway()
	if err != nil {
		return fmt.Errorf("failed to create ledger client: %w", err)
	}
	snap, err := ledger.FetchSnapshot(ctx, res.Name)
	if err != nil {
		return fmt.Errorf("failed to fetch ledger account for %s: %w", res.Name, err)
	}
	if snap.Empty() {
		fmt.Println(cli.FormatWarning(fmt.Sprintf("Ledger account of %s has no fees or installments", res.Name)))
	}

	proposals := classification.SortForSettlement(classifier.Classify(amount, date, snap))
	if len(proposals) == 0 {
		fmt.Println(cli.FormatWarning("No owed ledger item matches this amount; nothing would be entered"))
		return nil
	}
	printProposals(amount, proposals)
	return nil
}

func printProposals(amount decimal.Decimal, proposals []model.CategoryAssignment) {
	fmt.Println(cli.FormatTitle(fmt.Sprintf("Proposed settlement of %s TL", amount.StringFixed(2))))
	for _, p := range proposals {
		line := fmt.Sprintf("  %-24s %-22s %s", p.Category.Label(), p.Disposition, p.SettledAmount.StringFixed(2))
		fmt.Println(cli.DispositionStyle(p.Disposition).Render(line))
	}
}
