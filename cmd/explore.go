package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/aspiro/internal/coach"
	"github.com/spigell/aspiro/internal/logger"
	"github.com/spigell/aspiro/internal/orchestrator"
)

var exploreCmd = &cobra.Command{
	Use:   "explore",
	Short: "Explore a career field",
	Run: func(cmd *cobra.Command, _ []string) {
		field, _ := cmd.Flags().GetString("field")

		ctx := context.Background()
		log, config := setup()

		feature := coach.CareerExploration{}
		o := orchestrator.New[coach.CareerExplorationInput](feature, newTransport(config, log), orchestratorOptions(config, log)...)

		in := coach.CareerExplorationInput{CareerField: field}
		if _, err := runStream(ctx, o, in, cmd.OutOrStdout(), feature.Structured(), logger.WithStreamFields(log, feature.Name(), "")); err != nil {
			log.Fatal("exiting", zap.Error(err))
		}
	},
}

func init() {
	rootCmd.AddCommand(exploreCmd)

	exploreCmd.Flags().StringP("field", "f", "", "career field to explore")
}
