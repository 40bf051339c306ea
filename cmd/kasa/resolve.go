package main

import (
	"fmt"
	"strings"

	"github.com/Veraticus/kasa/internal/cli"
	"github.com/Veraticus/kasa/internal/escalation"
	"github.com/spf13/cobra"
)

func resolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <message>",
		Short: "Apply an operator reply to the oldest open record",
		Long: `Resolve the oldest open settlement record, flagged or failed, with a
free-text reply the same way a WhatsApp message to the webhook would, and
print the reply the operator would receive.

Example:
  kasa resolve "Ayşe Yılmaz taksit"`,
		Args: cobra.MinimumNArgs(1),
		RunE: runResolve,
	}
}

func runResolve(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer closeStorage(store)

	extractor, err := initExtractor(true)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}
	ledger, err := initGateway()
	if err != nil {
		return fmt.Errorf("failed to create ledger client: %w", err)
	}
	classifier, err := initClassifier()
	if err != nil {
		return err
	}

	resolver, err := escalation.New(escalation.Deps{
		Log:       store,
		Extractor: extractor,
		Settler:   ledger,
		Inferrer:  classifier,
	}, nil)
	if err != nil {
		return err
	}

	out, err := resolver.Resolve(ctx, strings.Join(args, " "))
	if err != nil {
		fmt.Println(cli.FormatError(escalation.FailureMessage(err)))
		return err
	}

	switch out.Kind {
	case escalation.KindResolved:
		fmt.Println(cli.FormatSuccess(out.Reply))
	case escalation.KindNothingPending:
		fmt.Println(cli.FormatInfo(out.Reply))
	default:
		fmt.Println(cli.FormatWarning(out.Reply))
	}
	return nil
}
