package main

import (
	"fmt"
	"io"
	"math/rand/v2"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"envelopes/internal/backend"
	"envelopes/internal/cli"
	"envelopes/internal/config"
	"envelopes/internal/core"
	"envelopes/internal/i18n"
	"envelopes/internal/log"
	"envelopes/internal/services"
)

// app opens the backend lazily so that generate works without one.
type app struct {
	cfg *config.Config
	svc *services.ChallengeService
	res *backend.Result
}

func (a *app) service(cmd *cobra.Command) (*services.ChallengeService, error) {
	if a.svc != nil {
		return a.svc, nil
	}
	if a.cfg == nil {
		cli.LoadEnvFile()
		cfg, err := cli.LoadConfig()
		if err != nil {
			return nil, err
		}
		a.cfg = cfg
	}
	logger := cli.SetupLogger("error", log.ComponentCLI)
	res, err := cli.OpenBackend(cmd.Context(), a.cfg, backend.RoleCLI, logger)
	if err != nil {
		return nil, err
	}
	a.res = res
	a.svc = cli.NewChallengeService(a.cfg, res, logger)
	return a.svc, nil
}

func (a *app) language(cmd *cobra.Command) string {
	if lang, _ := cmd.Flags().GetString("lang"); lang != "" {
		return lang
	}
	if a.cfg != nil {
		return a.cfg.DefaultLanguage
	}
	return ""
}

func (a *app) close() {
	if a.svc != nil {
		a.svc.Close()
		a.svc = nil
	}
	if a.res != nil {
		a.res.Cleanup()
		a.res = nil
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "envelopes-cli",
		Short:         "Savings envelope challenge tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("lang", "", "Display language ("+supportedLanguages()+")")

	root.AddCommand(newGenerateCmd(), newStartCmd(a), newProgressCmd(a), newOpenCmd(a),
		newCurrencyCmd(a), newAchievementsCmd(a), newResetCmd(a))
	return root
}

func supportedLanguages() string {
	tags := i18n.Supported()
	names := make([]string, len(tags))
	for i, tag := range tags {
		names[i] = tag.String()
	}
	return strings.Join(names, ", ")
}

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Print a generated envelope set without saving it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			target, _ := cmd.Flags().GetInt64("target")
			days, _ := cmd.Flags().GetInt("days")
			mode, _ := cmd.Flags().GetString("distribution")
			currency, _ := cmd.Flags().GetString("currency")
			lang, _ := cmd.Flags().GetString("lang")

			d, err := core.ParseDistribution(mode)
			if err != nil {
				return err
			}
			p := core.NewChallengeParams{Target: target, Days: days, Currency: currency, Distribution: d}
			if err := p.Validate(); err != nil {
				return err
			}

			var src rand.Source
			if cmd.Flags().Changed("seed") {
				seed, _ := cmd.Flags().GetUint64("seed")
				src = rand.NewPCG(seed, seed)
			}
			envs, stats := core.NewGenerator(src).GenerateWithStats(target, days, d)

			loc := i18n.New(i18n.Match(lang), currency)
			name, _ := loc.DistributionLabel(d)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s, %d days, total %s\n", name, len(envs), loc.FormatAmount(stats.Total))
			printEnvelopes(out, loc, envs)
			fmt.Fprintf(out, "clamped=%t bulk=%t finetune_steps=%d fallback=%t\n",
				stats.Clamped, stats.BulkApplied, stats.FineTuneSteps, stats.UsedFallback)
			return nil
		},
	}
	cmd.Flags().Int64("target", 10000, "Target amount in whole currency units")
	cmd.Flags().Int("days", 30, "Number of envelopes")
	cmd.Flags().String("distribution", string(core.Equal), "equal, progression or random")
	cmd.Flags().String("currency", "RUB", "ISO currency code used for display")
	cmd.Flags().Uint64("seed", 0, "Fixed random seed")
	return cmd
}

func newStartCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Create and save a new challenge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.service(cmd)
			if err != nil {
				return err
			}
			target, _ := cmd.Flags().GetInt64("target")
			days, _ := cmd.Flags().GetInt("days")
			mode, _ := cmd.Flags().GetString("distribution")
			currency, _ := cmd.Flags().GetString("currency")
			if currency == "" && a.cfg != nil {
				currency = a.cfg.DefaultCurrency
			}
			d, err := core.ParseDistribution(mode)
			if err != nil {
				return err
			}

			v, err := svc.Start(cmd.Context(), services.StartParams{Target: target, Days: days, Currency: currency, Distribution: d})
			if err != nil {
				return err
			}
			loc := i18n.New(i18n.Match(a.language(cmd)), v.Challenge.Currency)
			fmt.Fprintf(cmd.OutOrStdout(), "Started challenge %s: %d envelopes, total %s\n",
				v.Code, len(v.Challenge.Envelopes), loc.FormatAmount(v.Progress.Total))
			return nil
		},
	}
	cmd.Flags().Int64("target", 10000, "Target amount in whole currency units")
	cmd.Flags().Int("days", 30, "Number of envelopes")
	cmd.Flags().String("distribution", string(core.Equal), "equal, progression or random")
	cmd.Flags().String("currency", "", "ISO currency code (default from config)")
	return cmd
}

func newProgressCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "progress CODE",
		Short: "Show progress and achievements of a challenge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd)
			if err != nil {
				return err
			}
			v, err := svc.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			lang := a.language(cmd)
			achievements, err := svc.Achievements(cmd.Context(), v.Code, lang)
			if err != nil {
				return err
			}

			loc := i18n.New(i18n.Match(lang), v.Challenge.Currency)
			p := v.Progress
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Challenge %s\n", v.Code)
			fmt.Fprintf(out, "Saved %s of %s (%.1f%%)\n", loc.FormatAmount(p.Saved), loc.FormatAmount(p.Total), p.Percentage)
			fmt.Fprintf(out, "Days %d/%d, remaining %s\n", p.DaysCompleted, p.DaysTotal, loc.FormatAmount(p.Remaining))

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, ach := range achievements {
				mark := " "
				if ach.Unlocked {
					mark = "x"
				}
				fmt.Fprintf(tw, "[%s]\t%s\t%s\n", mark, ach.Title, ach.Description)
			}
			return tw.Flush()
		},
	}
}

func newOpenCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "open CODE ID",
		Short: "Open one envelope",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid envelope id %q", args[1])
			}
			svc, err := a.service(cmd)
			if err != nil {
				return err
			}
			res, err := svc.Open(cmd.Context(), args[0], id)
			if err != nil {
				return err
			}
			v, err := svc.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			lang := a.language(cmd)
			loc := i18n.New(i18n.Match(lang), v.Challenge.Currency)
			out := cmd.OutOrStdout()
			if !res.Opened {
				fmt.Fprintf(out, "Envelope %d was already open\n", id)
				return nil
			}
			fmt.Fprintf(out, "Opened envelope %d: %s (day %d)\n", id, loc.FormatAmount(res.Envelope.Amount), res.Envelope.DayNumber)
			fmt.Fprintf(out, "Saved %s of %s (%.1f%%)\n",
				loc.FormatAmount(res.Progress.Saved), loc.FormatAmount(res.Progress.Total), res.Progress.Percentage)
			if len(res.NewAchievements) == 0 {
				return nil
			}
			achievements, err := svc.Achievements(cmd.Context(), v.Code, lang)
			if err != nil {
				return err
			}
			for _, ach := range achievements {
				for _, unlocked := range res.NewAchievements {
					if ach.ID == unlocked {
						fmt.Fprintf(out, "Achievement unlocked: %s\n", ach.Title)
					}
				}
			}
			return nil
		},
	}
}

func newCurrencyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "currency CODE CURRENCY",
		Short: "Change the display currency of a challenge",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd)
			if err != nil {
				return err
			}
			v, err := svc.SetCurrency(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			loc := i18n.New(i18n.Match(a.language(cmd)), v.Challenge.Currency)
			fmt.Fprintf(cmd.OutOrStdout(), "Challenge %s now in %s, saved %s of %s\n",
				v.Code, v.Challenge.Currency, loc.FormatAmount(v.Progress.Saved), loc.FormatAmount(v.Progress.Total))
			return nil
		},
	}
}

func newAchievementsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "achievements",
		Short: "List every achievement that can be unlocked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.service(cmd)
			if err != nil {
				return err
			}
			currency, _ := cmd.Flags().GetString("currency")
			if currency == "" && a.cfg != nil {
				currency = a.cfg.DefaultCurrency
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, ach := range svc.Catalog(a.language(cmd), currency) {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", ach.ID, ach.Title, ach.Description)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().String("currency", "", "ISO currency code for amount goals (default from config)")
	return cmd
}

func newResetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset CODE",
		Short: "Delete a challenge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd)
			if err != nil {
				return err
			}
			if err := svc.Reset(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Challenge %s deleted\n", args[0])
			return nil
		},
	}
}

func printEnvelopes(w io.Writer, loc *i18n.Localizer, envs []core.Envelope) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "#\tamount\t")
	for _, e := range envs {
		fmt.Fprintf(tw, "%d\t%s\t\n", e.ID, loc.FormatAmount(e.Amount))
	}
	tw.Flush()
}
