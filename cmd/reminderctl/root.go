package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/aatwiz/calendar-reminder/internal/app/bootstrap"
	"github.com/aatwiz/calendar-reminder/internal/calendar"
	appconfig "github.com/aatwiz/calendar-reminder/internal/config"
	"github.com/aatwiz/calendar-reminder/internal/conversation"
	"github.com/aatwiz/calendar-reminder/internal/http/middleware"
	"github.com/aatwiz/calendar-reminder/internal/intent"
	"github.com/aatwiz/calendar-reminder/internal/janitor"
	"github.com/aatwiz/calendar-reminder/internal/phone"
	"github.com/aatwiz/calendar-reminder/internal/reminder"
	"github.com/aatwiz/calendar-reminder/pkg/logging"
)

// services is the slice of the wired app the commands drive.
type services struct {
	Scheduler interface {
		RunOnce(ctx context.Context) (reminder.RunResult, error)
		Upcoming(ctx context.Context) ([]reminder.Preview, error)
	}
	Store    conversation.Store
	Calendar calendar.Service
	Janitor  interface {
		Sweep(ctx context.Context) (janitor.SweepResult, error)
	}
	Config *appconfig.Config
	Close  func()
}

type openAppFunc func(ctx context.Context, verbose bool) (*services, error)

func defaultOpenApp(ctx context.Context, verbose bool) (*services, error) {
	cfg := appconfig.Load()
	level := "warn"
	if verbose {
		level = cfg.LogLevel
	}
	app, err := bootstrap.New(ctx, cfg, prometheus.NewRegistry(), logging.New(level))
	if err != nil {
		return nil, err
	}
	return &services{
		Scheduler: app.Scheduler,
		Store:     app.Store,
		Calendar:  app.Calendar,
		Janitor:   app.Janitor,
		Config:    cfg,
		Close:     app.Close,
	}, nil
}

func newRootCmd(open openAppFunc) *cobra.Command {
	var verbose, asJSON bool

	root := &cobra.Command{
		Use:   "reminderctl",
		Short: "Operate the appointment reminder service",
		Long: `reminderctl runs reminder and cleanup jobs against the configured
calendar and stores, and inspects pending patient conversations.

Configuration is read from the environment (and .env) exactly as the API
server reads it.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at LOG_LEVEL instead of warn")
	root.PersistentFlags().BoolVar(&asJSON, "json", false, "print results as JSON")

	withApp := func(cmd *cobra.Command, fn func(*services) error) error {
		svc, err := open(cmd.Context(), verbose)
		if err != nil {
			return err
		}
		if svc.Close != nil {
			defer svc.Close()
		}
		return fn(svc)
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Send reminders for upcoming appointments once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(svc *services) error {
				res, err := svc.Scheduler.RunOnce(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					return printJSON(out, res)
				}
				fmt.Fprintf(out, "sent=%d failed=%d skipped=%d\n", res.Sent, res.Failed, res.Skipped)
				for _, item := range res.Items {
					fmt.Fprintf(out, "  %-8s %s %s\n", item.Status, item.EventID, item.Reason)
				}
				return nil
			})
		},
	}

	previewCmd := &cobra.Command{
		Use:     "preview",
		Aliases: []string{"upcoming"},
		Short:   "List upcoming events and whether each would get a reminder",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(svc *services) error {
				previews, err := svc.Scheduler.Upcoming(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					return printJSON(out, previews)
				}
				if len(previews) == 0 {
					fmt.Fprintln(out, "no upcoming events")
					return nil
				}
				for _, p := range previews {
					mark := " "
					if p.Eligible {
						mark = "*"
					}
					fmt.Fprintf(out, "%s %-24s %-20s %s\n", mark, p.When, p.Patient, p.Phone)
				}
				return nil
			})
		},
	}

	conversationsCmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv"},
		Short:   "Inspect pending patient conversations",
	}
	conversationsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List conversations awaiting a reply",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(svc *services) error {
				records, err := svc.Store.List(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					return printJSON(out, records)
				}
				if len(records) == 0 {
					fmt.Fprintln(out, "no pending conversations")
					return nil
				}
				for _, r := range records {
					fmt.Fprintf(out, "%-16s %-20s %-28s %s\n", r.Phone, r.PatientName, r.AppointmentTime, r.EventID)
				}
				return nil
			})
		},
	}, &cobra.Command{
		Use:   "delete <phone>",
		Short: "Forget the conversation for a phone number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(svc *services) error {
				key, err := conversation.Key(args[0])
				if err != nil {
					return err
				}
				if err := svc.Store.Delete(cmd.Context(), key); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", key)
				return nil
			})
		},
	})

	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Evict stale conversations and expired appointment links",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(svc *services) error {
				res, err := svc.Janitor.Sweep(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					return printJSON(out, res)
				}
				fmt.Fprintf(out, "conversations evicted: %d\n", res.Conversations)
				if res.Links != nil {
					fmt.Fprintf(out, "links removed: %d of %d\n", res.Links.Removed, res.Links.TotalBefore)
				}
				return nil
			})
		},
	}

	var startFlag, endFlag string
	rescheduleCmd := &cobra.Command{
		Use:   "reschedule <event-id>",
		Short: "Move an appointment to a new time",
		Long: `reschedule rewrites the start and end of a calendar event. Times are
RFC 3339 or "2006-01-02 15:04" in CLINIC_TIMEZONE. Without --end the event
keeps its current duration.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(svc *services) error {
				if svc.Calendar == nil || !svc.Calendar.IsAuthenticated() {
					return calendar.ErrNotAuthenticated
				}
				loc := svc.Config.Location()
				start, err := parseWhen(startFlag, loc)
				if err != nil {
					return fmt.Errorf("--start: %w", err)
				}
				var end time.Time
				if endFlag != "" {
					if end, err = parseWhen(endFlag, loc); err != nil {
						return fmt.Errorf("--end: %w", err)
					}
				}
				ev, err := calendar.Reschedule(cmd.Context(), svc.Calendar, args[0], start, end)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					return printJSON(out, ev)
				}
				fmt.Fprintf(out, "%s %s -> %s\n", ev.Title, ev.Start.In(loc).Format("2006-01-02 15:04"), ev.End.In(loc).Format("15:04"))
				return nil
			})
		},
	}
	rescheduleCmd.Flags().StringVar(&startFlag, "start", "", "new start time")
	rescheduleCmd.Flags().StringVar(&endFlag, "end", "", "new end time")
	_ = rescheduleCmd.MarkFlagRequired("start")

	classifyCmd := &cobra.Command{
		Use:   "classify <reply text>",
		Short: "Show how a patient reply would be interpreted",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), intent.Classify(strings.Join(args, " ")))
			return nil
		},
	}

	normalizeCmd := &cobra.Command{
		Use:   "normalize <phone>",
		Short: "Show the storage key for a phone number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := phone.Normalize(args[0])
			if key == "" {
				return conversation.ErrInvalidPhone
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}

	var subject string
	var ttl time.Duration
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an admin API bearer token signed with ADMIN_JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret := appconfig.Load().AdminJWTSecret
			if secret == "" {
				return errors.New("ADMIN_JWT_SECRET is not set")
			}
			token, err := middleware.IssueAdminToken(secret, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	tokenCmd.Flags().StringVar(&subject, "subject", "reminderctl", "token subject")
	tokenCmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")

	root.AddCommand(runCmd, previewCmd, conversationsCmd, rescheduleCmd, cleanupCmd, classifyCmd, normalizeCmd, tokenCmd)
	return root
}

func parseWhen(v string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02 15:04", v, loc)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
