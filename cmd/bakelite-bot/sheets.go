package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"bakelite_bot/internal/sheets"
)

func newSheetsSetupCmd(load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "sheets-setup",
		Short: "Write the header row of the applicants spreadsheet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			if err := cfg.ValidateSheets(); err != nil {
				return err
			}

			svc, err := sheets.NewService(cmd.Context(), cfg.CredentialsPath, cfg.SpreadsheetID)
			if err != nil {
				return err
			}
			if err := svc.SetupHeaders(cmd.Context()); err != nil {
				return err
			}
			log.Info("spreadsheet headers written", zap.String("spreadsheet_id", cfg.SpreadsheetID))
			return nil
		},
	}
}
