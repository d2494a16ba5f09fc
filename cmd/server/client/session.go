package client

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KirkDiggler/rpg-skill-engine/internal/entities/battle"
	"github.com/KirkDiggler/rpg-skill-engine/internal/handlers/skills/v1alpha1"
)

var (
	joinName  string
	joinRoles []string
	joinHP    int
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Create, inspect and populate sessions",
}

var sessionCreateCmd = &cobra.Command{
	Use:   "create [channel-id]",
	Short: "Open a battle in a channel",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, client v1alpha1.SkillEngineClient) error {
			resp, err := client.CreateSession(ctx, &v1alpha1.CreateSessionRequest{ChannelID: args[0]})
			if err != nil {
				return fmt.Errorf("failed to create session: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), resp.Session)
		})
	},
}

var sessionGetCmd = &cobra.Command{
	Use:   "get [session-id]",
	Short: "Show a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, client v1alpha1.SkillEngineClient) error {
			resp, err := client.GetSession(ctx, &v1alpha1.GetSessionRequest{SessionID: args[0]})
			if err != nil {
				return fmt.Errorf("failed to get session: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), resp.Session)
		})
	},
}

var sessionJoinCmd = &cobra.Command{
	Use:   "join [session-id] [participant-id]",
	Short: "Add a participant",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		roles := make([]battle.Role, len(joinRoles))
		for i, r := range joinRoles {
			roles[i] = battle.Role(r)
		}

		return withClient(func(ctx context.Context, client v1alpha1.SkillEngineClient) error {
			resp, err := client.AddParticipant(ctx, &v1alpha1.AddParticipantRequest{
				SessionID: args[0],
				Participant: battle.Participant{
					ID:    args[1],
					Name:  joinName,
					Roles: roles,
					HP:    joinHP,
				},
			})
			if err != nil {
				return fmt.Errorf("failed to add participant: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), resp.Participant)
		})
	},
}

var sessionSaveCmd = &cobra.Command{
	Use:   "save [session-id]",
	Short: "Snapshot a session to the configured store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, client v1alpha1.SkillEngineClient) error {
			resp, err := client.SaveSession(ctx, &v1alpha1.SessionRequest{SessionID: args[0]})
			if err != nil {
				return fmt.Errorf("failed to save session: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved version %d (%d bytes)\n", resp.Version, len(resp.Blob))
			return nil
		})
	},
}

func init() {
	sessionJoinCmd.Flags().StringVar(&joinName, "name", "", "display name")
	sessionJoinCmd.Flags().StringSliceVar(&joinRoles, "roles", []string{string(battle.RoleUser)}, "participant roles")
	sessionJoinCmd.Flags().IntVar(&joinHP, "hp", 100, "starting hit points")

	sessionCmd.AddCommand(sessionCreateCmd)
	sessionCmd.AddCommand(sessionGetCmd)
	sessionCmd.AddCommand(sessionJoinCmd)
	sessionCmd.AddCommand(sessionSaveCmd)
}

func withClient(fn func(ctx context.Context, client v1alpha1.SkillEngineClient) error) error {
	client, cleanup, err := createSkillClient()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return fn(ctx, client)
}
