package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/aspiro/internal/coach"
	"github.com/spigell/aspiro/internal/logger"
	"github.com/spigell/aspiro/internal/orchestrator"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the career coach",
	Run: func(cmd *cobra.Command, _ []string) {
		message, _ := cmd.Flags().GetString("message")

		ctx := context.Background()
		log, config := setup()

		feature := coach.Chat{}
		o := orchestrator.New[coach.ChatInput](feature, newTransport(config, log), orchestratorOptions(config, log)...)
		streamLog := logger.WithStreamFields(log, feature.Name(), "")

		send := func(history []coach.ChatTurn, text string) (string, bool) {
			st, err := runStream(ctx, o, coach.ChatInput{Message: text, History: history}, cmd.OutOrStdout(), false, streamLog)
			if err != nil {
				if orchestrator.Classify(err) == orchestrator.KindAuth {
					log.Fatal("exiting", zap.Error(err))
				}
				return "", false
			}
			return st.Text, !st.Aborted && st.Text != ""
		}

		if strings.TrimSpace(message) != "" {
			if _, ok := send(nil, message); !ok {
				log.Fatal("exiting", zap.String("reason", "no answer received"))
			}
			return
		}

		prompt := promptui.Prompt{Label: "You"}
		var history []coach.ChatTurn
		for {
			text, err := prompt.Run()
			if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
				return
			}
			if err != nil {
				log.Fatal("reading a message", zap.Error(err))
			}

			text = strings.TrimSpace(text)
			if text == "" {
				continue
			}
			if text == "exit" || text == "quit" {
				return
			}

			answer, ok := send(history, text)
			fmt.Fprintln(cmd.OutOrStdout())
			if !ok {
				continue
			}

			history = appendTurns(history,
				coach.ChatTurn{Role: coach.RoleUser, Content: text},
				coach.ChatTurn{Role: coach.RoleAssistant, Content: answer},
			)
		}
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringP("message", "m", "", "send a single message and exit")
}

// appendTurns keeps only the most recent turns the backend accepts.
func appendTurns(history []coach.ChatTurn, turns ...coach.ChatTurn) []coach.ChatTurn {
	history = append(history, turns...)
	if extra := len(history) - coach.MaxHistoryTurns; extra > 0 {
		history = history[extra:]
	}
	return history
}
