// Package factory is the engine's single construction point for
// talkers, tracks, mixers, and outputs: band parsing builds every talker
// through it so model names stay centrally registered. It only
// constructs; a talker's id and name are assigned afterwards by band.Add.
//
// Grounded on original_source/session/src/factory.rs: a process-wide
// singleton (sync.Once here, Arc<Mutex> there) exposing make_talker/
// make_track/make_mixer/make_output. The registry itself is a pair of
// in-process maps (model name -> constructor, and model name -> label
// and tags); the model list returned by Models is cached with
// patrickmn/go-cache and dropped by Register.
package factory

import (
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/gndl/talkgraph/internal/mixer"
	"github.com/gndl/talkgraph/internal/sink"
	"github.com/gndl/talkgraph/internal/talk"
	"github.com/gndl/talkgraph/internal/talker"
	"github.com/gndl/talkgraph/internal/talker/builtins"
)

// Constructor builds a talker instance for a given chunk size. Model
// parameters beyond chunk size are applied afterward via the talker's
// SetDataFromString/hum wiring.
type Constructor func(chunkSize int) talker.Talker

// ModelInfo describes one registered talker model.
type ModelInfo struct {
	Name  string
	Label string
	Tags  []string
}

// Factory is the process-wide registry and construction point.
type Factory struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
	info         map[string]ModelInfo
	cache        *cache.Cache
	outputGroup  singleflight.Group // collapses concurrent MakeOutput calls for the same kind+path
}

var (
	instance *Factory
	once     sync.Once
)

// Get returns the process-wide factory, registering the built-in models
// on first use.
func Get() *Factory {
	once.Do(func() {
		instance = &Factory{
			constructors: make(map[string]Constructor),
			info:         make(map[string]ModelInfo),
			cache:        cache.New(5*time.Minute, 10*time.Minute),
		}
		instance.registerBuiltins()
	})
	return instance
}

func (f *Factory) registerBuiltins() {
	f.Register(ModelInfo{Name: "sinusoidal", Label: "Sinusoidal oscillator", Tags: []string{"oscillator"}},
		func(chunkSize int) talker.Talker { return builtins.NewSinusoidal(chunkSize) })
	f.Register(ModelInfo{Name: "square", Label: "Square oscillator", Tags: []string{"oscillator"}},
		func(chunkSize int) talker.Talker { return builtins.NewSquare(chunkSize) })
	f.Register(ModelInfo{Name: "bounded_square", Label: "Bounded-range square oscillator", Tags: []string{"oscillator", "lfo"}},
		func(chunkSize int) talker.Talker { return builtins.NewBoundedSquare(chunkSize, 0.01, 20) })
	f.Register(ModelInfo{Name: "adsrp", Label: "ADSR envelope", Tags: []string{"envelope"}},
		func(chunkSize int) talker.Talker { return builtins.NewAdsrp(chunkSize) })
	f.Register(ModelInfo{Name: "speed_modulator", Label: "Speed modulator", Tags: []string{"utility"}},
		func(chunkSize int) talker.Talker { return builtins.NewSpeedModulator(chunkSize) })
	f.Register(ModelInfo{Name: "audio_switch", Label: "Audio switch", Tags: []string{"utility", "router"}},
		func(chunkSize int) talker.Talker { return builtins.NewAudioSwitch(chunkSize, 2) })
	f.Register(ModelInfo{Name: "env_shaper", Label: "Envelope shaper", Tags: []string{"envelope", "utility"}},
		func(chunkSize int) talker.Talker { return builtins.NewEnvShaper(chunkSize) })
	f.Register(ModelInfo{Name: "literal", Label: "Constant value", Tags: []string{"utility"}},
		func(chunkSize int) talker.Talker { return builtins.NewLiteral(chunkSize, 0) })
}

// Register adds or replaces a model's constructor and metadata.
func (f *Factory) Register(info ModelInfo, ctor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constructors[info.Name] = ctor
	f.info[info.Name] = info
	f.cache.Delete("models")
}

// MakeTalker constructs a talker of the named model.
func (f *Factory) MakeTalker(model string, chunkSize int) (talker.Talker, error) {
	f.mu.RLock()
	ctor, ok := f.constructors[model]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("factory: unknown talker model %q", model)
	}
	return ctor(chunkSize), nil
}

// Models returns the registered model catalog. The list is cached for
// the cache's default expiration and dropped by Register.
func (f *Factory) Models() []ModelInfo {
	if cached, ok := f.cache.Get("models"); ok {
		return cached.([]ModelInfo)
	}
	f.mu.RLock()
	out := make([]ModelInfo, 0, len(f.info))
	for _, info := range f.info {
		out = append(out, info)
	}
	f.mu.RUnlock()
	f.cache.Set("models", out, cache.DefaultExpiration)
	return out
}

// MakeTrack builds a mixer track over the given ear.
func (f *Factory) MakeTrack(name string, ear *talk.Ear, channels int) *mixer.Track {
	return mixer.NewTrack(name, ear, channels)
}

// MakeMixer builds a mixer for the given channel count and chunk size.
func (f *Factory) MakeMixer(channels, chunkSize int) *mixer.Mixer {
	return mixer.New(channels, chunkSize)
}

// OutputKind selects an output sink implementation.
type OutputKind string

const (
	OutputNull   OutputKind = "null"
	OutputDevice OutputKind = "device"
	OutputWav    OutputKind = "wav"
)

// OutputParams configures MakeOutput; fields not relevant to the chosen
// kind are ignored.
type OutputParams struct {
	Kind       OutputKind
	Path       string // for OutputWav
	SampleRate uint32
	Channels   int
	BitDepth   int
}

// MakeOutput builds an output sink per params. Concurrent calls for the
// same kind+path (e.g. two band edits racing to open the same wav file)
// are collapsed into a single construction via singleflight, so callers
// never end up with two sinks fighting over one file or device.
func (f *Factory) MakeOutput(params OutputParams) (mixer.Sink, error) {
	key := fmt.Sprintf("%s:%s:%d:%d:%d", params.Kind, params.Path, params.SampleRate, params.Channels, params.BitDepth)
	v, err, _ := f.outputGroup.Do(key, func() (interface{}, error) {
		switch params.Kind {
		case OutputNull, "":
			return sink.NewNull(), nil
		case OutputDevice:
			return sink.NewDevice(sink.DeviceParams{SampleRate: params.SampleRate, Channels: params.Channels})
		case OutputWav:
			depth := params.BitDepth
			if depth == 0 {
				depth = 16
			}
			return sink.NewWavFile(params.Path, int(params.SampleRate), params.Channels, depth)
		default:
			return nil, fmt.Errorf("factory: unknown output kind %q", params.Kind)
		}
	})
	if err != nil {
		return nil, err
	}
	return v.(mixer.Sink), nil
}
