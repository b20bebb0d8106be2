/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Seednode/partycursor/position"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultRoom = "realtime-cursor"
	envPrefix   = "PARTYCURSOR"
)

type Config struct {
	verbose bool
	version bool

	// serve
	bind        string
	maxPeers    int
	port        int
	prefix      string
	profile     bool
	redisAddr   string
	redisPrefix string
	roomTimeout time.Duration
	tlsCert     string
	tlsKey      string

	// join
	duration        time.Duration
	fps             int
	headless        bool
	input           string
	name            string
	reconnect       time.Duration
	room            string
	server          string
	throttle        time.Duration
	tiltSensitivity float64
	userAgent       string
}

func (c *Config) validateServe() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.maxPeers < 1 {
		return fmt.Errorf("invalid max peers (must be at least 1): %d", c.maxPeers)
	}
	if c.roomTimeout < 0 {
		return fmt.Errorf("invalid room timeout (must not be negative): %s", c.roomTimeout)
	}
	return nil
}

func (c *Config) validateJoin() error {
	u, err := url.Parse(c.server)
	if err != nil {
		return fmt.Errorf("invalid server url %q: %w", c.server, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid server url %q (scheme must be ws or wss)", c.server)
	}
	if strings.TrimSpace(c.room) == "" {
		return errors.New("room name must not be empty")
	}
	if strings.TrimSpace(c.name) == "" {
		return errors.New("display name must not be empty")
	}
	if !validRoom.MatchString(c.room) {
		return fmt.Errorf("invalid room name %q (letters, digits, '-' and '_' only, at most 64)", c.room)
	}
	if c.reconnect < 0 {
		return fmt.Errorf("invalid reconnect window (must not be negative): %s", c.reconnect)
	}
	if c.throttle < 0 {
		return fmt.Errorf("invalid throttle (must not be negative): %s", c.throttle)
	}
	if c.tiltSensitivity <= 0 {
		return fmt.Errorf("invalid tilt sensitivity (must be positive): %v", c.tiltSensitivity)
	}
	if c.fps < 1 || c.fps > 240 {
		return fmt.Errorf("invalid fps (must be between 1-240 inclusive): %d", c.fps)
	}
	if c.input != "auto" {
		if _, err := position.ParseStrategy(c.input); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

// strategy resolves --input, falling back to the user agent heuristic.
func (c *Config) strategy() position.Strategy {
	if s, err := position.ParseStrategy(c.input); err == nil {
		return s
	}
	return position.SelectStrategy(c.userAgent)
}

// roomURL is the websocket endpoint of the configured room.
func (c *Config) roomURL() string {
	return strings.TrimSuffix(c.server, "/") + "/room/" + url.PathEscape(c.room) + "/ws"
}

func normalize(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

// bindEnv lets every flag in fs fall back to its PARTYCURSOR_* variable.
func bindEnv(v *viper.Viper, fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})
}

func serveFlags(cfg *Config, fs *pflag.FlagSet) {
	fs.SetNormalizeFunc(normalize)

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: PARTYCURSOR_BIND)")
	fs.IntVar(&cfg.maxPeers, "max-peers", 50, "maximum subscribers per room (env: PARTYCURSOR_MAX_PEERS)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: PARTYCURSOR_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: PARTYCURSOR_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: PARTYCURSOR_PROFILE)")
	fs.StringVar(&cfg.redisAddr, "redis-addr", "", "redis address for relaying rooms between instances (env: PARTYCURSOR_REDIS_ADDR)")
	fs.StringVar(&cfg.redisPrefix, "redis-prefix", "partycursor", "redis channel prefix (env: PARTYCURSOR_REDIS_PREFIX)")
	fs.DurationVar(&cfg.roomTimeout, "room-timeout", 60*time.Minute, "time before idle rooms are closed (env: PARTYCURSOR_ROOM_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: PARTYCURSOR_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: PARTYCURSOR_TLS_KEY)")
}

func joinFlags(cfg *Config, fs *pflag.FlagSet) {
	fs.SetNormalizeFunc(normalize)

	fs.DurationVar(&cfg.duration, "duration", 0, "headless run length, zero to run until interrupted (env: PARTYCURSOR_DURATION)")
	fs.IntVar(&cfg.fps, "fps", 60, "display refresh rate (env: PARTYCURSOR_FPS)")
	fs.BoolVar(&cfg.headless, "headless", false, "drive a synthetic cursor and log frames instead of drawing (env: PARTYCURSOR_HEADLESS)")
	fs.StringVar(&cfg.input, "input", "auto", "input strategy: auto, pointer, orientation or smoothed (env: PARTYCURSOR_INPUT)")
	fs.StringVarP(&cfg.name, "name", "n", "anonymous", "display name shown next to your cursor (env: PARTYCURSOR_NAME)")
	fs.DurationVar(&cfg.reconnect, "reconnect", time.Minute, "how long to keep reconnecting after the channel fails, zero to exit instead (env: PARTYCURSOR_RECONNECT)")
	fs.StringVarP(&cfg.room, "room", "r", defaultRoom, "room to join (env: PARTYCURSOR_ROOM)")
	fs.StringVarP(&cfg.server, "server", "s", "ws://localhost:8080", "hub to connect to (env: PARTYCURSOR_SERVER)")
	fs.DurationVar(&cfg.throttle, "throttle", 50*time.Millisecond, "minimum interval between cursor broadcasts (env: PARTYCURSOR_THROTTLE)")
	fs.Float64Var(&cfg.tiltSensitivity, "tilt-sensitivity", position.DefaultSensitivity, "degrees of tilt that cross the whole screen (env: PARTYCURSOR_TILT_SENSITIVITY)")
	fs.StringVar(&cfg.userAgent, "user-agent", "", "user agent used to pick the input strategy when --input=auto (env: PARTYCURSOR_USER_AGENT)")
}

func newServeCmd(cfg *Config, v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the room hub.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validateServe(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg)
		},
	}

	serveFlags(cfg, cmd.Flags())
	bindEnv(v, cmd.Flags())

	return cmd
}

func newJoinCmd(cfg *Config, v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "join",
		Short: "Join a room and share your cursor.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validateJoin(); err != nil {
				return err
			}
			return JoinRoom(cmd.Context(), cfg)
		},
	}

	joinFlags(cfg, cmd.Flags())
	bindEnv(v, cmd.Flags())

	return cmd
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "partycursor",
		Short:         "Shared realtime cursors, one room at a time.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validateServe(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg)
		},
	}

	pfs := cmd.PersistentFlags()
	pfs.SetNormalizeFunc(normalize)
	pfs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: PARTYCURSOR_VERBOSE)")
	bindEnv(v, pfs)

	fs := cmd.Flags()
	serveFlags(cfg, fs)
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: PARTYCURSOR_VERSION)")
	bindEnv(v, fs)

	cmd.AddCommand(newServeCmd(cfg, v), newJoinCmd(cfg, v))

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("partycursor v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
