package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hseinmoussa/tzbuddy/internal/config"
	"github.com/hseinmoussa/tzbuddy/internal/engine"
	"github.com/hseinmoussa/tzbuddy/internal/fileutil"
	"github.com/hseinmoussa/tzbuddy/internal/lang"
	"github.com/hseinmoussa/tzbuddy/internal/store"
)

// platformFlag is the --platform value of the profile commands.
var platformFlag string

func platform() (engine.Platform, error) {
	switch p := engine.Platform(strings.ToLower(platformFlag)); p {
	case engine.Discord, engine.Telegram:
		return p, nil
	default:
		return "", fmt.Errorf("--platform must be discord or telegram, got %q", platformFlag)
	}
}

// withStore opens the app with its store and runs fn.
func withStore(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	a, err := openApp(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(cmd.Context(), a)
}

// ── tz ──────────────────────────────────────────────────────────────────

var tzCmd = &cobra.Command{
	Use:   "tz",
	Short: "Manage a user's timezone",
}

var tzSetCmd = &cobra.Command{
	Use:   "set [user] [timezone]",
	Short: "Set a user's timezone (IANA id, city, abbreviation or UTC offset)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := platform()
		if err != nil {
			return err
		}
		return withStore(cmd, func(ctx context.Context, a *app) error {
			z, err := a.dir.Resolve(args[1])
			if err != nil {
				return fmt.Errorf("%w; try an IANA timezone such as Europe/Berlin", err)
			}
			if err := a.store.SetUserTimezone(ctx, p, args[0], z.ID); err != nil {
				return err
			}
			fmt.Printf("Set %s timezone of %s = %s (%s)\n", p, args[0], z.ID, a.dir.Label(z, lang.EN))
			return nil
		})
	},
}

var tzGetCmd = &cobra.Command{
	Use:   "get [user]",
	Short: "Show a user's timezone",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := platform()
		if err != nil {
			return err
		}
		return withStore(cmd, func(ctx context.Context, a *app) error {
			tz, err := a.store.UserTimezone(ctx, p, args[0])
			if err != nil {
				return err
			}
			if tz == "" {
				fmt.Printf("%s has no timezone set\n", args[0])
				return nil
			}
			fmt.Println(tz)
			return nil
		})
	},
}

var tzClearCmd = &cobra.Command{
	Use:   "clear [user]",
	Short: "Forget a user's timezone",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := platform()
		if err != nil {
			return err
		}
		return withStore(cmd, func(ctx context.Context, a *app) error {
			if err := a.store.ClearUserTimezone(ctx, p, args[0]); err != nil {
				return err
			}
			fmt.Printf("Cleared timezone of %s\n", args[0])
			return nil
		})
	},
}

// ── user ────────────────────────────────────────────────────────────────

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage a user's reply preferences and data",
}

func userFlagCmd(use, short string, set func(ctx context.Context, s *store.Store, p engine.Platform, user string) error, done string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [user]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := platform()
			if err != nil {
				return err
			}
			return withStore(cmd, func(ctx context.Context, a *app) error {
				if err := set(ctx, a.store, p, args[0]); err != nil {
					return err
				}
				fmt.Printf(done+"\n", args[0])
				return nil
			})
		},
	}
}

var userMuteCmd = userFlagCmd("mute", "Stop sending conversions to a user",
	func(ctx context.Context, s *store.Store, p engine.Platform, u string) error { return s.SetMuted(ctx, p, u, true) },
	"Muted %s")

var userUnmuteCmd = userFlagCmd("unmute", "Resume sending conversions to a user",
	func(ctx context.Context, s *store.Store, p engine.Platform, u string) error { return s.SetMuted(ctx, p, u, false) },
	"Unmuted %s")

var userDeleteCmd = userFlagCmd("delete", "Delete everything stored about a user",
	func(ctx context.Context, s *store.Store, p engine.Platform, u string) error { return s.DeleteUser(ctx, p, u) },
	"Deleted data of %s")

var userDMCmd = &cobra.Command{
	Use:   "dm [user] [on|off]",
	Short: "Opt a Telegram user in or out of private conversions",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := platform()
		if err != nil {
			return err
		}
		on, err := onOff(args[1])
		if err != nil {
			return err
		}
		return withStore(cmd, func(ctx context.Context, a *app) error {
			if err := a.store.SetDMEnabled(ctx, p, args[0], on); err != nil {
				return err
			}
			fmt.Printf("DM conversions for %s: %s\n", args[0], args[1])
			return nil
		})
	},
}

var userShowCmd = &cobra.Command{
	Use:   "show [user]",
	Short: "Show a user's stored profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := platform()
		if err != nil {
			return err
		}
		return withStore(cmd, func(ctx context.Context, a *app) error {
			tz, err := a.store.UserTimezone(ctx, p, args[0])
			if err != nil {
				return err
			}
			s, err := a.store.UserSettings(ctx, p, args[0])
			if err != nil {
				return err
			}
			if tz == "" {
				tz = "-"
			}
			fmt.Printf("user:     %s (%s)\ntimezone: %s\nmuted:    %v\ndm:       %v\n", args[0], p, tz, s.Muted, s.DMEnabled)
			return nil
		})
	},
}

func onOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "yes":
		return true, nil
	case "off", "false", "no":
		return false, nil
	}
	return false, fmt.Errorf("want on or off, got %q", s)
}

// ── channel ─────────────────────────────────────────────────────────────

var channelCmd = &cobra.Command{
	Use:   "channel",
	Short: "Manage monitored Discord channels",
}

var channelAddCmd = &cobra.Command{
	Use:   "add [guild] [channel]",
	Short: "Start offering conversions in a channel",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, a *app) error {
			if err := a.store.AddChannel(ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("Monitoring channel %s in guild %s\n", args[1], args[0])
			return nil
		})
	},
}

var channelRemoveCmd = &cobra.Command{
	Use:   "remove [guild] [channel]",
	Short: "Stop offering conversions in a channel",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, a *app) error {
			if err := a.store.RemoveChannel(ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("Stopped monitoring channel %s in guild %s\n", args[1], args[0])
			return nil
		})
	},
}

var channelListCmd = &cobra.Command{
	Use:   "list [guild]",
	Short: "List monitored channels of a guild",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, a *app) error {
			chans, err := a.store.ListChannels(ctx, args[0])
			if err != nil {
				return err
			}
			if len(chans) == 0 {
				fmt.Println("No monitored channels.")
			}
			for _, c := range chans {
				fmt.Println(c)
			}
			return nil
		})
	},
}

// ── group ───────────────────────────────────────────────────────────────

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Manage Telegram group monitoring and timezones",
}

func groupMonitorCmd(use string, on bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [chat]",
		Short: fmt.Sprintf("Turn group monitoring %s", use),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, a *app) error {
				if err := a.store.SetMonitoring(ctx, args[0], on); err != nil {
					return err
				}
				fmt.Printf("Monitoring of %s: %s\n", args[0], use)
				return nil
			})
		},
	}
}

func groupOverrideCmd(use, short string, mode store.OverrideMode) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [chat] [timezone]",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, a *app) error {
				z, err := a.dir.Resolve(args[1])
				if err != nil {
					return err
				}
				if mode == "" {
					err = a.store.ClearOverride(ctx, args[0], z.ID)
				} else {
					err = a.store.SetOverride(ctx, args[0], z.ID, mode)
				}
				if err != nil {
					return err
				}
				fmt.Printf("%s %s for %s\n", use, z.ID, args[0])
				return nil
			})
		},
	}
}

var groupStatusCmd = &cobra.Command{
	Use:   "status [chat]",
	Short: "Show monitoring, members, overrides and active timezones",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, a *app) error {
			chat := args[0]
			on, err := a.store.MonitoringEnabled(ctx, chat)
			if err != nil {
				return err
			}
			members, err := a.store.ListMembers(ctx, chat)
			if err != nil {
				return err
			}
			overrides, err := a.store.ListOverrides(ctx, chat)
			if err != nil {
				return err
			}
			active, err := a.store.ActiveTimezones(ctx, chat)
			if err != nil {
				return err
			}

			fmt.Printf("chat:       %s\nmonitoring: %v\nmembers:    %d\n", chat, on, len(members))
			for tz, mode := range overrides {
				fmt.Printf("override:   %s %s\n", mode, tz)
			}
			fmt.Printf("active:     %s\n", strings.Join(active, ", "))
			if len(active) > a.cfg.MaxActiveTimezones {
				fmt.Printf("            (replies show the first %d)\n", a.cfg.MaxActiveTimezones)
			}
			return nil
		})
	},
}

var groupActiveCmd = &cobra.Command{
	Use:   "active [chat]",
	Short: "List the timezones a group reply converts into",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, a *app) error {
			active, err := a.store.ActiveTimezones(ctx, args[0])
			if err != nil {
				return err
			}
			for _, tz := range active {
				z, err := a.dir.IANA(tz)
				label := tz
				if err == nil {
					label = a.dir.Label(z, lang.EN)
				}
				fmt.Printf("%-24s %s\n", tz, label)
			}
			return nil
		})
	},
}

var groupMembersCmd = &cobra.Command{
	Use:   "members [chat]",
	Short: "List known members of a group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, a *app) error {
			members, err := a.store.ListMembers(ctx, args[0])
			if err != nil {
				return err
			}
			for _, m := range members {
				tz, err := a.store.UserTimezone(ctx, engine.Telegram, m)
				if err != nil {
					return err
				}
				if tz == "" {
					tz = "-"
				}
				fmt.Printf("%-20s %s\n", m, tz)
			}
			return nil
		})
	},
}

// ── events ──────────────────────────────────────────────────────────────

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show recent analytics events",
	RunE:  runEvents,
}

var (
	eventsName     string
	eventsPlatform string
	eventsLimit    int
	eventsJSON     bool
)

func runEvents(cmd *cobra.Command, args []string) error {
	return withStore(cmd, func(ctx context.Context, a *app) error {
		rows, err := a.store.ListEvents(ctx, store.EventFilter{Name: eventsName, Platform: eventsPlatform, Limit: eventsLimit})
		if err != nil {
			return err
		}
		for _, r := range rows {
			if eventsJSON {
				b, err := json.Marshal(r)
				if err != nil {
					return err
				}
				fmt.Println(string(b))
				continue
			}
			meta := ""
			if len(r.Metadata) > 0 {
				b, _ := json.Marshal(r.Metadata)
				meta = string(b)
			}
			fmt.Printf("%s  %-8s %-36s scope=%s user=%s %s\n",
				r.Time.UTC().Format("2006-01-02 15:04:05"), r.Platform, r.Name, r.ScopeID, r.UserID, meta)
		}
		return nil
	})
}

// ── directory ───────────────────────────────────────────────────────────

var directoryCmd = &cobra.Command{
	Use:   "directory",
	Short: "Inspect and extend the city/abbreviation directory",
}

const starterDirectory = `# Extra rows merged over the built-in directory. Later rows win.
#
# cities:
#   - {name: Porto, zone: Europe/Lisbon}
#   - {name: Порту, zone: Europe/Lisbon}
# abbreviations:
#   - {abbr: AMT, zone: Asia/Yerevan}
# labels:
#   - {zone: Europe/Lisbon, en: Lisbon, ru: Лиссабон}
# exclude_cities: [Miami]
# exclude_abbreviations: [IST]
cities: []
`

var directoryInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter directory.yaml if none exists",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DirectoryFilePath()
		created, err := fileutil.AtomicCreate(path, []byte(starterDirectory), 0644)
		if err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		if !created {
			fmt.Printf("%s already exists\n", path)
			return nil
		}
		fmt.Printf("Created %s\n", path)
		return nil
	},
}

var directoryLookupCmd = &cobra.Command{
	Use:   "lookup [name]",
	Short: "Resolve a city, abbreviation, IANA id or UTC offset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		z, err := a.dir.Resolve(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s  en=%s  ru=%s\n", z.ID, a.dir.Label(z, lang.EN), a.dir.Label(z, lang.RU))
		return nil
	},
}

var directoryPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the user directory file path",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(config.DirectoryFilePath())
	},
}

// registerAdmin wires the store-backed admin commands onto root.
func registerAdmin() {
	for _, c := range []*cobra.Command{tzCmd, userCmd} {
		c.PersistentFlags().StringVar(&platformFlag, "platform", string(engine.Telegram), "discord or telegram")
	}

	tzCmd.AddCommand(tzSetCmd, tzGetCmd, tzClearCmd)
	userCmd.AddCommand(userMuteCmd, userUnmuteCmd, userDMCmd, userDeleteCmd, userShowCmd)
	channelCmd.AddCommand(channelAddCmd, channelRemoveCmd, channelListCmd)
	groupCmd.AddCommand(
		groupMonitorCmd("on", true),
		groupMonitorCmd("off", false),
		groupStatusCmd,
		groupOverrideCmd("add-tz", "Always include a timezone in group replies", store.OverrideAdd),
		groupOverrideCmd("remove-tz", "Never include a timezone in group replies", store.OverrideRemove),
		groupOverrideCmd("clear-tz", "Drop an add/remove override", ""),
		groupActiveCmd,
		groupMembersCmd,
	)
	directoryCmd.AddCommand(directoryInitCmd, directoryLookupCmd, directoryPathCmd)

	eventsCmd.Flags().StringVar(&eventsName, "name", "", "only events with this name")
	eventsCmd.Flags().StringVar(&eventsPlatform, "platform", "", "only events of this platform")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 50, "maximum events to show")
	eventsCmd.Flags().BoolVar(&eventsJSON, "json", false, "print one JSON object per event")

	rootCmd.AddCommand(tzCmd, userCmd, channelCmd, groupCmd, eventsCmd, directoryCmd)
}
