package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"tlplay/internal/iomanager"
	"tlplay/internal/player"
	"tlplay/internal/reader"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Player  PlayerConfig  `yaml:"player"`
	IO      IOConfig      `yaml:"io"`
	Audio   AudioConfig   `yaml:"audio"`
	Reader  ReaderConfig  `yaml:"reader"`
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type PlayerConfig struct {
	ReadAhead       time.Duration `yaml:"read_ahead"`
	ReadBehind      time.Duration `yaml:"read_behind"`
	VideoCacheBytes int64         `yaml:"video_cache_bytes"`
	AudioCacheBytes int64         `yaml:"audio_cache_bytes"`
	Speed           float64       `yaml:"speed"`
	Loop            string        `yaml:"loop"`
	Volume          float64       `yaml:"volume"`
	TickInterval    time.Duration `yaml:"tick_interval"`
	// Resume restores the saved position of a timeline when it is opened.
	Resume bool `yaml:"resume"`
}

type IOConfig struct {
	VideoRequests   int   `yaml:"video_requests"`
	AudioRequests   int   `yaml:"audio_requests"`
	ReadCacheMax    int   `yaml:"read_cache_max"`
	FrameCacheBytes int64 `yaml:"frame_cache_bytes"`
}

type AudioConfig struct {
	SampleRate   int           `yaml:"sample_rate"`
	Channels     int           `yaml:"channels"`
	BufferFrames int           `yaml:"buffer_frames"`
	MuteTimeout  time.Duration `yaml:"mute_timeout"`
}

type ReaderConfig struct {
	Options     map[string]string `yaml:"options"`
	InfoTimeout time.Duration     `yaml:"info_timeout"`
}

type StorageConfig struct {
	// InfoDB caches probe results and playback positions; empty disables.
	InfoDB string `yaml:"info_db"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         6541,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Player: PlayerConfig{
			ReadAhead:       player.DefaultCacheOptions.ReadAhead,
			ReadBehind:      player.DefaultCacheOptions.ReadBehind,
			VideoCacheBytes: player.DefaultCacheOptions.VideoBytes,
			AudioCacheBytes: player.DefaultCacheOptions.AudioBytes,
			Speed:           1,
			Loop:            player.LoopRepeat.String(),
			Volume:          1,
			TickInterval:    10 * time.Millisecond,
		},
		IO: IOConfig{
			VideoRequests:   iomanager.DefaultOptions.VideoRequests,
			AudioRequests:   iomanager.DefaultOptions.AudioRequests,
			ReadCacheMax:    iomanager.DefaultOptions.ReadCacheMax,
			FrameCacheBytes: iomanager.DefaultOptions.FrameCacheBytes,
		},
		Audio: AudioConfig{
			SampleRate:   player.DefaultAudioOptions.SampleRate,
			Channels:     player.DefaultAudioOptions.Channels,
			BufferFrames: player.DefaultAudioOptions.BufferFrames,
			MuteTimeout:  player.DefaultAudioOptions.MuteTimeout,
		},
		Reader: ReaderConfig{
			InfoTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			InfoDB: "data/tlplay.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(fs afero.Fs, path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// PlayerOptions converts the player, io and audio sections.
func (c *Config) PlayerOptions() (player.Options, error) {
	loop, err := player.ParseLoop(c.Player.Loop)
	if err != nil {
		return player.Options{}, err
	}
	opts := player.Options{
		Cache: player.CacheOptions{
			VideoBytes: c.Player.VideoCacheBytes,
			AudioBytes: c.Player.AudioCacheBytes,
			ReadAhead:  c.Player.ReadAhead,
			ReadBehind: c.Player.ReadBehind,
		},
		Audio: player.AudioOptions{
			SampleRate:   c.Audio.SampleRate,
			Channels:     c.Audio.Channels,
			BufferFrames: c.Audio.BufferFrames,
			MuteTimeout:  c.Audio.MuteTimeout,
		},
		IO: iomanager.Options{
			VideoRequests:   c.IO.VideoRequests,
			AudioRequests:   c.IO.AudioRequests,
			ReadCacheMax:    c.IO.ReadCacheMax,
			FrameCacheBytes: c.IO.FrameCacheBytes,
			ReaderOptions:   reader.Options(c.Reader.Options),
		},
		Loop:   loop,
		Speed:  c.Player.Speed,
		Volume: c.Player.Volume,
	}
	if err := opts.Cache.Validate(); err != nil {
		return player.Options{}, err
	}
	return opts, nil
}
