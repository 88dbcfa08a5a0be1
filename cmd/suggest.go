package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/aspiro/internal/coach"
	"github.com/spigell/aspiro/internal/logger"
	"github.com/spigell/aspiro/internal/orchestrator"
)

var suggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Suggest roles that fit a resume",
	Run: func(cmd *cobra.Command, _ []string) {
		resume, _ := cmd.Flags().GetString("resume")

		ctx := context.Background()
		log, config := setup()

		feature := coach.RoleSuggestions{Files: resumeFiles(ctx, config, log)}
		o := orchestrator.New[coach.RoleSuggestionsInput](feature, newTransport(config, log), orchestratorOptions(config, log)...)

		in := coach.RoleSuggestionsInput{ResumeFile: resume}
		if _, err := runStream(ctx, o, in, cmd.OutOrStdout(), feature.Structured(), logger.WithStreamFields(log, feature.Name(), "")); err != nil {
			log.Fatal("exiting", zap.Error(err))
		}
	},
}

func init() {
	rootCmd.AddCommand(suggestCmd)

	suggestCmd.Flags().String("resume", "", "resume file (pdf, docx or txt)")
}
