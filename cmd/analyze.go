package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/aspiro/internal/coach"
	"github.com/spigell/aspiro/internal/logger"
	"github.com/spigell/aspiro/internal/orchestrator"
	"github.com/spigell/aspiro/internal/storage"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze a resume against a target role",
	Run: func(cmd *cobra.Command, _ []string) {
		role, _ := cmd.Flags().GetString("role")
		resume, _ := cmd.Flags().GetString("resume")

		ctx := context.Background()
		log, config := setup()
		files := resumeFiles(ctx, config, log)

		feature := coach.ResumeAnalysis{Files: files}
		o := orchestrator.New[coach.ResumeAnalysisInput](feature, newTransport(config, log), orchestratorOptions(config, log)...)

		in := coach.ResumeAnalysisInput{TargetRole: role, ResumeFile: resume}
		if _, err := runStream(ctx, o, in, cmd.OutOrStdout(), feature.Structured(), logger.WithStreamFields(log, feature.Name(), "")); err != nil {
			log.Fatal("exiting", zap.Error(err))
		}
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringP("role", "r", "", "target role to analyze the resume for")
	analyzeCmd.Flags().String("resume", "", "resume file (pdf, docx or txt)")
}

// resumeFiles returns the resume store, or nil when storage is not
// configured. A nil result keeps the interface nil so features can report
// the missing storage.
func resumeFiles(ctx context.Context, config *Config, log *zap.Logger) coach.FileReferencer {
	store, err := newStore(ctx, config, log)
	if err != nil {
		log.Fatal("creating resume storage", zap.Error(err))
	}
	if store == nil {
		return nil
	}
	return store
}

var _ coach.FileReferencer = (*storage.Store)(nil)
