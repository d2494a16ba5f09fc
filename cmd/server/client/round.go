package client

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KirkDiggler/rpg-skill-engine/internal/handlers/skills/v1alpha1"
)

var roundCmd = &cobra.Command{
	Use:   "round [start|end] [session-id]",
	Short: "Start or end the current round of a session",
	Args:  cobra.ExactArgs(2),
	RunE:  changeRound,
}

func changeRound(cmd *cobra.Command, args []string) error {
	action, sessionID := args[0], args[1]

	client, cleanup, err := createSkillClient()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req := &v1alpha1.SessionRequest{SessionID: sessionID}

	switch action {
	case "start":
		resp, err := client.StartRound(ctx, req)
		if err != nil {
			return fmt.Errorf("failed to start round: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Round %d started\n", resp.Round)
		return nil
	case "end":
		resp, err := client.EndRound(ctx, req)
		if err != nil {
			return fmt.Errorf("failed to end round: %w", err)
		}
		return printJSON(cmd.OutOrStdout(), resp)
	default:
		return fmt.Errorf("unknown round action %q, want start or end", action)
	}
}
