// Package audio plays short alert tones on the default speakers.
package audio

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

const (
	DefaultSampleRate   = 44100
	defaultFramesPerBuf = 1024 // ~23ms at 44100Hz
	fadeDuration        = 5 * time.Millisecond
)

// ErrNoOutput is returned when no usable output device exists.
var ErrNoOutput = errors.New("audio: no output device")

// Tone is one segment of an alert. Zero Frequency is silence.
type Tone struct {
	Frequency float64
	Duration  time.Duration
	Volume    float64 // 0..1
}

// DefaultAlert is a rising two-note chime.
var DefaultAlert = []Tone{
	{Frequency: 880, Duration: 150 * time.Millisecond, Volume: 0.4},
	{Duration: 60 * time.Millisecond},
	{Frequency: 1320, Duration: 220 * time.Millisecond, Volume: 0.4},
}

// Synthesize renders tones as mono float32 samples. Each tone is faded in
// and out to avoid clicks.
func Synthesize(tones []Tone, sampleRate int) []float32 {
	var out []float32
	fade := int(fadeDuration.Seconds() * float64(sampleRate))
	for _, t := range tones {
		n := int(t.Duration.Seconds() * float64(sampleRate))
		vol := math.Max(0, math.Min(1, t.Volume))
		for i := 0; i < n; i++ {
			if t.Frequency <= 0 {
				out = append(out, 0)
				continue
			}
			env := 1.0
			if fade > 0 {
				env = math.Min(1, math.Min(float64(i)/float64(fade), float64(n-1-i)/float64(fade)))
			}
			s := math.Sin(2 * math.Pi * t.Frequency * float64(i) / float64(sampleRate))
			out = append(out, float32(s*vol*env))
		}
	}
	return out
}

// Player writes tones to an output device. Calls to Play are serialized.
type Player struct {
	mu           sync.Mutex
	sampleRate   int
	framesPerBuf int
	excludedDevs []string
	closed       bool
}

// NewPlayer initializes portaudio. Devices whose names contain any of
// excluded (case-insensitive) are never used.
func NewPlayer(sampleRate int, excluded []string) (*Player, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &Player{
		sampleRate:   sampleRate,
		framesPerBuf: defaultFramesPerBuf,
		excludedDevs: excluded,
	}, nil
}

// Play renders and plays tones, returning when playback finishes or ctx is done.
func (p *Player) Play(ctx context.Context, tones ...Tone) error {
	if len(tones) == 0 {
		tones = DefaultAlert
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("audio: player closed")
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return err
	}
	dev := pickOutput(devices, p.excludedDevs)
	if dev == nil {
		return ErrNoOutput
	}

	buf := make([]float32, p.framesPerBuf)
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultLowOutputLatency,
		},
		SampleRate:      float64(p.sampleRate),
		FramesPerBuffer: p.framesPerBuf,
	}, buf)
	if err != nil {
		return err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return err
	}
	defer func() { _ = stream.Stop() }()

	slog.Debug("playing alert", "device", dev.Name, "tones", len(tones))
	samples := Synthesize(tones, p.sampleRate)
	for off := 0; off < len(samples); off += len(buf) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := copy(buf, samples[off:])
		clear(buf[n:])
		if err := stream.Write(); err != nil {
			return err
		}
	}
	return nil
}

// Close releases portaudio.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return portaudio.Terminate()
}

// pickOutput chooses the best output device, skipping loopback drivers that
// nobody listens to.
func pickOutput(devices []*portaudio.DeviceInfo, excluded []string) *portaudio.DeviceInfo {
	var best *portaudio.DeviceInfo
	for _, dev := range devices {
		if dev == nil || dev.MaxOutputChannels < 1 || isExcluded(dev.Name, excluded) {
			continue
		}
		if classifyDevice(dev.Name) == "virtual" {
			continue
		}
		if best == nil || preferDevice(dev.Name, best.Name) {
			best = dev
		}
	}
	return best
}

func classifyDevice(name string) string {
	for _, kw := range []string{"blackhole", "vb-cable", "loopback", "monitor", "soundflower", "null"} {
		if containsIgnoreCase(name, kw) {
			return "virtual"
		}
	}
	for _, kw := range []string{"speaker", "headphone", "built-in", "output"} {
		if containsIgnoreCase(name, kw) {
			return "speaker"
		}
	}
	return ""
}

func isExcluded(name string, excluded []string) bool {
	for _, ex := range excluded {
		if ex != "" && containsIgnoreCase(name, ex) {
			return true
		}
	}
	return false
}

// preferDevice reports whether name beats current: built-in speakers over
// recognized speakers over anything else.
func preferDevice(name, current string) bool {
	return deviceRank(name) > deviceRank(current)
}

func deviceRank(name string) int {
	switch {
	case containsIgnoreCase(name, "macbook"), containsIgnoreCase(name, "built-in"):
		return 2
	case classifyDevice(name) == "speaker":
		return 1
	default:
		return 0
	}
}

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
