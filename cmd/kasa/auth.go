package main

import (
	"fmt"

	"github.com/Veraticus/kasa/internal/cli"
	"github.com/Veraticus/kasa/internal/config"
	"github.com/Veraticus/kasa/internal/sheets"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func authCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authenticate with external services",
		Long:  `Authenticate with external services like Google Sheets.`,
	}

	cmd.AddCommand(authSheetsCmd())

	return cmd
}

func authSheetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sheets",
		Short: "Authorize kasa to write the Google Sheets report",
		Long: `Run the OAuth2 flow for Google Sheets and save the token.

This command will:
1. Start a local callback server
2. Print the Google consent URL to open in your browser
3. Save the token to sheets.token_file

Requires sheets.client_id and sheets.client_secret (or GOOGLE_SHEETS_CLIENT_ID
and GOOGLE_SHEETS_CLIENT_SECRET).`,
		Args: cobra.NoArgs,
		RunE: runAuthSheets,
	}

	cmd.Flags().String("callback", sheets.DefaultCallbackAddr, "local address for the OAuth2 callback")

	return cmd
}

func runAuthSheets(cmd *cobra.Command, _ []string) error {
	callback, _ := cmd.Flags().GetString("callback")

	cfg, err := config.LoadSheetsConfig(viper.GetViper())
	if err != nil {
		return fmt.Errorf("failed to load sheets config: %w", err)
	}
	if cfg.ServiceAccountPath != "" {
		fmt.Println(cli.FormatInfo("A service account is configured; no OAuth2 token is needed"))
		return nil
	}

	_, err = sheets.GetOrCreateToken(cmd.Context(), sheets.OAuth2Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenFile:    cfg.TokenFile,
		CallbackAddr: callback,
	})
	if err != nil {
		return fmt.Errorf("google sheets authorization failed: %w", err)
	}

	fmt.Println(cli.FormatSuccess("Google Sheets authorized, token saved to " + cfg.TokenFile))
	return nil
}
