package resolver

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// Executor abstracts command execution.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) ([]byte, error)
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	return cmd.Output()
}

// Streamlink lists variants by running `streamlink --json`.
type Streamlink struct {
	Binary string
	exec   Executor
}

// NewStreamlink returns a lister using the streamlink binary on PATH.
func NewStreamlink() *Streamlink {
	return &Streamlink{Binary: "streamlink", exec: commandExecutor{}}
}

type streamlinkOutput struct {
	Error   string `json:"error"`
	Streams map[string]struct {
		Type string `json:"type"`
		URL  string `json:"url"`
	} `json:"streams"`
}

// Streams implements Lister. Aliases like "best" are kept so they can be
// used as preferences; they sort after concrete qualities.
func (s *Streamlink) Streams(ctx context.Context, pageURL string) ([]Variant, error) {
	out, runErr := s.exec.Run(ctx, s.Binary, []string{"--json", pageURL})
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var parsed streamlinkOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		if runErr != nil {
			return nil, fmt.Errorf("resolver: run %s: %w", s.Binary, runErr)
		}
		return nil, fmt.Errorf("resolver: parse streamlink output: %w", err)
	}
	if parsed.Error != "" {
		if strings.Contains(strings.ToLower(parsed.Error), "no playable streams") {
			return nil, fmt.Errorf("%w: %s", ErrOffline, parsed.Error)
		}
		return nil, fmt.Errorf("resolver: streamlink: %s", parsed.Error)
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("resolver: run %s: %w", s.Binary, runErr)
		}
	}

	variants := make([]Variant, 0, len(parsed.Streams))
	for name, st := range parsed.Streams {
		variants = append(variants, Variant{Name: name, URL: st.URL, Type: st.Type})
	}
	SortVariants(variants)
	return variants, nil
}

var qualityPattern = regexp.MustCompile(`^(\d+)p(\d+)?$`)

type rank struct {
	height, fps int
	alias       bool
}

func rankOf(name string) rank {
	m := qualityPattern.FindStringSubmatch(name)
	if m == nil {
		return rank{alias: true}
	}
	h, _ := strconv.Atoi(m[1])
	fps := 30
	if m[2] != "" {
		fps, _ = strconv.Atoi(m[2])
	}
	return rank{height: h, fps: fps}
}

// SortVariants orders by resolution then frame rate, best first, with
// aliases and audio-only renditions last in name order.
func SortVariants(vs []Variant) {
	slices.SortFunc(vs, func(a, b Variant) int {
		ra, rb := rankOf(a.Name), rankOf(b.Name)
		if ra.alias != rb.alias {
			if ra.alias {
				return 1
			}
			return -1
		}
		if c := cmp.Compare(rb.height, ra.height); c != 0 {
			return c
		}
		if c := cmp.Compare(rb.fps, ra.fps); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
}
