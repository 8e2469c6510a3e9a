package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/cineforum/internal/events"
	"github.com/ziadkadry99/cineforum/internal/gamification"
	"github.com/ziadkadry99/cineforum/internal/users"
)

var demote bool

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage club members",
}

var userPromoteCmd = &cobra.Command{
	Use:   "promote <username>",
	Short: "Grant (or with --demote revoke) admin rights",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		database, err := openDatabase(ctx, cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		if err := users.NewStore(database).SetAdmin(ctx, args[0], !demote); err != nil {
			return err
		}
		if demote {
			fmt.Printf("%s is no longer an admin.\n", args[0])
		} else {
			fmt.Printf("%s is now an admin.\n", args[0])
		}
		return nil
	},
}

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Manage club events",
}

var eventAdvanceCmd = &cobra.Command{
	Use:   "advance <event-id> <viewing|discussion|closed>",
	Short: "Move an event to its next phase",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		to := events.Phase(args[1])
		if !to.Valid() {
			return fmt.Errorf("unknown phase %q", args[1])
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		database, err := openDatabase(ctx, cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		window := time.Duration(cfg.Events.VotingWindowHours) * time.Hour
		svc := events.NewService(events.NewStore(database), gamification.NewEngine(database, nil), nil, window)
		e, err := svc.Advance(ctx, args[0], to)
		if err != nil {
			return err
		}
		fmt.Printf("Event %q is now in phase %s.\n", e.Title, e.Phase)
		return nil
	},
}

func init() {
	userPromoteCmd.Flags().BoolVar(&demote, "demote", false, "revoke admin rights instead")
	userCmd.AddCommand(userPromoteCmd)
	eventCmd.AddCommand(eventAdvanceCmd)
	rootCmd.AddCommand(userCmd, eventCmd)
}
