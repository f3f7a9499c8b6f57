package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/convoflow/convoflow/pkg/convoflow/checkpoint"
	"github.com/convoflow/convoflow/pkg/convoflow/config"
)

var threadCmd = &cobra.Command{
	Use:   "thread <thread-id>",
	Short: "Inspect the checkpoint history of a thread",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		store, err := openStore(cfg.Store)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer store.Close()

		threadID := args[0]
		infos, err := store.List(threadID)
		if err != nil {
			return fmt.Errorf("list checkpoints: %w", err)
		}
		if len(infos) == 0 {
			return fmt.Errorf("no checkpoints for thread %q", threadID)
		}

		showState, _ := cmd.Flags().GetBool("state")

		for _, info := range infos {
			data, err := store.Load(threadID, info.Sequence)
			if err != nil {
				return fmt.Errorf("load checkpoint %d: %w", info.Sequence, err)
			}
			cp, err := checkpoint.Unmarshal(data)
			if err != nil {
				return fmt.Errorf("decode checkpoint %d: %w", info.Sequence, err)
			}

			fmt.Printf("seq=%d  %s  stage=%s  pending=%s  status=%s",
				cp.Sequence,
				cp.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
				cp.StageID, cp.PendingStage, cp.Status)
			if cp.InterruptReason != "" {
				fmt.Printf("  reason=%q", cp.InterruptReason)
			}
			fmt.Println()
			if showState {
				fmt.Printf("  state: %s\n", cp.State)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(threadCmd)
	threadCmd.Flags().Bool("state", false, "Print the serialized state of each checkpoint")
}
