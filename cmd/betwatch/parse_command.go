package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/knakamura13/twitch-open-cv/internal/capture"
	"github.com/knakamura13/twitch-open-cv/internal/hud"
	"github.com/knakamura13/twitch-open-cv/internal/ocr"
)

func newParseCommand(ctx *commandContext) *cobra.Command {
	var (
		imagePath string
		jsonOut   bool
	)
	cmd := &cobra.Command{
		Use:   "parse [text...]",
		Short: "Parse HUD text (arguments, stdin, or an image) into a game status",
		Long: "Parse runs the HUD rules over text given as arguments or on stdin.\n" +
			"With --image it crops the HUD region from a screenshot and runs the\n" +
			"configured OCR backend first.",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var obs hud.Observation
			if imagePath != "" {
				var err error
				if obs, err = observeImage(cmd, ctx, imagePath); err != nil {
					return err
				}
			} else {
				raw, err := readParseInput(cmd, args)
				if err != nil {
					return err
				}
				obs.Raw = raw
				obs.Text = hud.Normalize(raw)
				obs.Status = hud.Parse(obs.Text)
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(obs.Status)
			}
			fmt.Fprintf(out, "Normalized: %q\n", obs.Text)
			fmt.Fprintln(out, renderStatus(obs.Status))
			return nil
		},
	}
	cmd.Flags().StringVar(&imagePath, "image", "", "Screenshot to crop and OCR instead of reading text")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the status as JSON")
	return cmd
}

func readParseInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}

func observeImage(cmd *cobra.Command, cc *commandContext, path string) (hud.Observation, error) {
	cfg, err := cc.ensureConfig()
	if err != nil {
		return hud.Observation{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return hud.Observation{}, err
	}
	img, err := ocr.DecodeImage(data)
	if err != nil {
		return hud.Observation{}, err
	}
	backend, err := newRecognizer(cfg)
	if err != nil {
		return hud.Observation{}, err
	}
	defer backend.close()

	obs := hud.NewExtractor(backend.rec, cfg.OCR.Language, roiFor(cfg)).Observe(cmd.Context(), capture.Frame{Image: img})
	if obs.Err != nil {
		return obs, fmt.Errorf("ocr %s: %w", path, obs.Err)
	}
	return obs, nil
}

func renderStatus(st hud.GameStatus) string {
	rows := [][]string{
		{"Open", yesNo(st.IsOpen)},
		{"Time remaining", fmt.Sprintf("%ds (%d:%02d)", st.TimeRemaining, st.TimeRemaining/60, st.TimeRemaining%60)},
		{"Blue", strconv.Itoa(st.BetTotals.Blue)},
		{"Red", strconv.Itoa(st.BetTotals.Red)},
		{"Rating", strconv.Itoa(st.Rating)},
		{"Region", st.Region},
	}
	return renderTable([]string{"Field", "Value"}, rows)
}
