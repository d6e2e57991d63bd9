package conf

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sardaralii/music-assistant/log"
	"github.com/spf13/viper"
)

type configOptions struct {
	Address    string
	Port       int
	BaseURL    string
	DataFolder string
	LogLevel   string

	Transcoder transcoderOptions
	Streams    streamOptions
	UPnP       upnpOptions
}

type transcoderOptions struct {
	// FFmpegPath overrides the ffmpeg binary location. Empty means $PATH lookup.
	FFmpegPath string
	// ExtraArgs is a shell-quoted string of additional ffmpeg arguments.
	ExtraArgs string
}

type streamOptions struct {
	// WarmupDelay is how long a broadcast stream waits for near-simultaneous
	// subscribers before producing the first chunk.
	WarmupDelay time.Duration
	// ChunkSize is the read size for broadcast chunks.
	ChunkSize int
}

type upnpOptions struct {
	// Enabled turns on SSDP discovery of UPnP/Sonos speakers.
	Enabled bool
	// DiscoveryInterval is the time between periodic SSDP scans.
	DiscoveryInterval time.Duration
}

// Server holds the loaded server configuration
var Server = &configOptions{}

// Load reads the configuration from file/env into the Server global
func Load() {
	err := viper.Unmarshal(&Server)
	if err != nil {
		fmt.Fprintln(os.Stderr, "FATAL: Error parsing config:", err)
		os.Exit(1)
	}
	log.SetLevelString(Server.LogLevel)
	if Server.Streams.ChunkSize <= 0 {
		Server.Streams.ChunkSize = 32 * 1024
	}
	log.Debug("Configuration loaded", "address", Server.Address, "port", Server.Port,
		"dataFolder", Server.DataFolder)
}

// InitConfig sets up viper defaults and env binding. Called by the CLI before Load.
func InitConfig(cfgFile string) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("music-assistant")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/music-assistant")
	}

	viper.SetEnvPrefix("MA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("address", "0.0.0.0")
	viper.SetDefault("port", 8095)
	viper.SetDefault("baseurl", "")
	viper.SetDefault("datafolder", "./data")
	viper.SetDefault("loglevel", "info")
	viper.SetDefault("transcoder.ffmpegpath", "")
	viper.SetDefault("transcoder.extraargs", "")
	viper.SetDefault("streams.warmupdelay", 250*time.Millisecond)
	viper.SetDefault("streams.chunksize", 32*1024)
	viper.SetDefault("upnp.enabled", true)
	viper.SetDefault("upnp.discoveryinterval", 5*time.Minute)

	err := viper.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintln(os.Stderr, "FATAL: Error reading config file:", err)
			os.Exit(1)
		}
	}
}
