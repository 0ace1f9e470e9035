package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/DoyleJ11/exposed-backend/internal/config"
	"github.com/DoyleJ11/exposed-backend/internal/store"
	"github.com/DoyleJ11/exposed-backend/internal/tokens"
)

// newTokensCmd mints invitations from the command line, printing the same
// CSV the moderator download produces.
func newTokensCmd(envFile *string) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Generate join tokens and print their links as CSV.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*envFile)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			log, err := config.NewLogger(cfg.LogLevel, cfg.LogDev)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			if cfg.Store == store.DriverMemory {
				log.Warn("memory store: generated tokens are lost when this command exits")
			}

			st, err := store.Open(cmd.Context(), cfg.StoreOptions(), log)
			if err != nil {
				return err
			}
			defer st.Close()

			invites, err := tokens.NewIssuer(st, cfg.BaseURL, cfg.TokenTTL, log).Generate(cmd.Context(), count)
			if err != nil {
				return err
			}
			log.Info("tokens written", zap.Int("count", len(invites)))
			return tokens.WriteCSV(cmd.OutOrStdout(), invites)
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of tokens to generate (1-100)")
	return cmd
}
