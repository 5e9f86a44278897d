package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/knakamura13/twitch-open-cv/internal/config"
	"github.com/knakamura13/twitch-open-cv/internal/resolver"
)

func newResolveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve [channel]",
		Short: "List the channel's stream variants and show which one would be watched",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			pageURL := cfg.StreamURL()
			if len(args) == 1 {
				pageURL = channelURL(cfg, args[0])
			}

			variants, err := ctx.streamLister().Streams(cmd.Context(), pageURL)
			if err != nil {
				if errors.Is(err, resolver.ErrOffline) {
					fmt.Fprintf(cmd.OutOrStdout(), "%s is offline\n", pageURL)
					return nil
				}
				return err
			}
			chosen, chooseErr := resolver.Choose(variants, cfg.Stream.Qualities)

			rows := make([][]string, 0, len(variants))
			for _, v := range variants {
				rows = append(rows, []string{v.Name, v.Type, yesNo(chooseErr == nil && v.Name == chosen.Name), v.URL})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]string{"Variant", "Type", "Chosen", "URL"}, rows))
			if chooseErr != nil {
				fmt.Fprintf(out, "No preferred variant (wanted %s)\n", strings.Join(cfg.Stream.Qualities, ", "))
				return nil
			}
			fmt.Fprintf(out, "Watching %s: %s\n", chosen.Name, chosen.URL)
			return nil
		},
	}
}

// channelURL accepts either a bare channel name or a full page URL.
func channelURL(cfg *config.Config, arg string) string {
	arg = strings.TrimSpace(arg)
	if strings.Contains(arg, "://") {
		return arg
	}
	tmpl := cfg.Stream.URLTemplate
	if tmpl == "" {
		tmpl = config.DefaultURLTemplate
	}
	return fmt.Sprintf(tmpl, arg)
}
