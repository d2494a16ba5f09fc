package client

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KirkDiggler/rpg-skill-engine/internal/handlers/skills/v1alpha1"
)

var (
	eventSession string
	eventActor   string
	eventSkill   string
	eventTargets []string
	eventDice    int
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Send a chat event: a skill use, a dice report or both",
	Long: `Send one event to a session. Examples:

  event --session sess_1 --actor grim --skill grim --targets alice
  event --session sess_1 --actor alice --dice 87`,
	RunE: sendEvent,
}

func init() {
	eventCmd.Flags().StringVar(&eventSession, "session", "", "session id")
	eventCmd.Flags().StringVar(&eventActor, "actor", "", "acting participant id")
	eventCmd.Flags().StringVar(&eventSkill, "skill", "", "skill id to activate")
	eventCmd.Flags().StringSliceVar(&eventTargets, "targets", nil, "target participant ids")
	eventCmd.Flags().IntVar(&eventDice, "dice", 0, "raw dice value to report")
	_ = eventCmd.MarkFlagRequired("session")
	_ = eventCmd.MarkFlagRequired("actor")
}

func sendEvent(cmd *cobra.Command, args []string) error {
	client, cleanup, err := createSkillClient()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req := &v1alpha1.HandleEventRequest{
		SessionID: eventSession,
		ActorID:   eventActor,
		SkillID:   eventSkill,
		TargetIDs: eventTargets,
	}
	if cmd.Flags().Changed("dice") {
		req.Dice = &eventDice
	}

	resp, err := client.HandleEvent(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to handle event: %w", err)
	}

	return printJSON(cmd.OutOrStdout(), resp.Outcome)
}
