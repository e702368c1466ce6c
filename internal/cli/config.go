package cli

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/pixelmorph/pkg/grid"
	"github.com/matzehuels/pixelmorph/pkg/morph"
)

// fileConfig is the layout of config.toml. Flags given on the command line
// override it.
//
//	[morph]
//	resolution = 48
//	algorithm = "genetic"
//
//	[morph.physics]
//	swirl = 0.5
//
//	[output]
//	fps = 30
//
//	[cache]
//	redis = "localhost:6379"
type fileConfig struct {
	Morph  morph.Config `toml:"morph"`
	Input  inputConfig  `toml:"input"`
	Output outputConfig `toml:"output"`
	Cache  cacheConfig  `toml:"cache"`
	Server serverConfig `toml:"server"`
}

// inputConfig controls how decoded images are prepared.
type inputConfig struct {
	MaxSize int            `toml:"max_size"`
	Crop    grid.CropScale `toml:"crop"`
}

// outputConfig controls GIF recording.
type outputConfig struct {
	FPS      int `toml:"fps"`
	GIFEvery int `toml:"gif_every"`
}

// cacheConfig selects the assignment cache.
type cacheConfig struct {
	Disabled bool   `toml:"disabled"`
	Dir      string `toml:"dir"`
	Redis    string `toml:"redis"`
	RedisDB  int    `toml:"redis_db"`
}

// serverConfig configures the HTTP server.
type serverConfig struct {
	Addr      string `toml:"addr"`
	MaxMorphs int    `toml:"max_morphs"`
}

// defaultFileConfig returns the values used when neither the config file nor
// a flag sets them.
func defaultFileConfig() fileConfig {
	return fileConfig{
		Morph:  morph.DefaultConfig(),
		Input:  inputConfig{MaxSize: defaultMaxSize, Crop: grid.DefaultCropScale},
		Output: outputConfig{FPS: morph.DefaultFPS, GIFEvery: 2},
		Server: serverConfig{Addr: defaultAddr, MaxMorphs: defaultMaxMorphs},
	}
}

// loadConfig reads path over the defaults. An empty path reads the default
// config file if it exists.
func loadConfig(path string) (fileConfig, error) {
	cfg := defaultFileConfig()
	explicit := path != ""
	if !explicit {
		p, err := configFile()
		if err != nil {
			return cfg, nil
		}
		path = p
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	return cfg, nil
}
