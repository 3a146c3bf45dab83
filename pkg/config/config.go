/*
MIT License

Copyright (c) 2025 Mikael Schultz <mikael@conf-t.se>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

// Package config defines the bouncer configuration: global listener
// settings plus one ConnectionClass per "connections" entry. A class is
// the authorization and policy record a client binds to at login.
package config

import (
	"crypto/subtle"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// Defaults applied by ApplyDefaults when a field is absent.
const (
	DefaultListen          = ":57000"
	DefaultClientTimeout   = 60
	DefaultConnectTimeout  = 60
	DefaultDNSTimeout      = 60
	DefaultServerPort      = 6667
	DefaultServerRetry     = 15
	DefaultMaxInitAttempts = 5
	DefaultPingTimeout     = 600
	DefaultChannelRejoin   = 15
	DefaultDCCTimeout      = 300
)

type Config struct {
	Listen         string  `yaml:"listen"          mapstructure:"listen"`
	PIDFile        string  `yaml:"pid_file"        mapstructure:"pid_file"`
	MetricsListen  string  `yaml:"metrics_listen"  mapstructure:"metrics_listen"`
	ClientTimeout  int     `yaml:"client_timeout"  mapstructure:"client_timeout"`
	ConnectTimeout int     `yaml:"connect_timeout" mapstructure:"connect_timeout"`
	DNSTimeout     int     `yaml:"dns_timeout"     mapstructure:"dns_timeout"`
	Classes        []Class `yaml:"connections"     mapstructure:"connections"`
}

// Class is one ConnectionClass: the password clients authenticate with,
// the upstream servers to hold open, and every per-session tunable.
type Class struct {
	Name     string   `yaml:"name"     mapstructure:"name"`
	Password string   `yaml:"password" mapstructure:"password"`
	From     []string `yaml:"from"     mapstructure:"from"`
	Servers  []string `yaml:"servers"  mapstructure:"servers"`
	Join     []string `yaml:"join"     mapstructure:"join"`

	ServerPort            int    `yaml:"server_port"             mapstructure:"server_port"`
	ServerRetry           int    `yaml:"server_retry"            mapstructure:"server_retry"`
	ServerMaxAttempts     int    `yaml:"server_maxattempts"      mapstructure:"server_maxattempts"`
	ServerMaxInitAttempts *int   `yaml:"server_maxinitattempts"  mapstructure:"server_maxinitattempts"`
	ServerKeepalive       Bool   `yaml:"server_keepalive"        mapstructure:"server_keepalive"`
	ServerPingTimeout     *int   `yaml:"server_pingtimeout"      mapstructure:"server_pingtimeout"`
	ServerThrottle        string `yaml:"server_throttle"         mapstructure:"server_throttle"`
	ServerAutoconnect     *Bool  `yaml:"server_autoconnect"      mapstructure:"server_autoconnect"`
	LocalAddress          string `yaml:"local_address"           mapstructure:"local_address"`

	ChannelRejoin         *int `yaml:"channel_rejoin"           mapstructure:"channel_rejoin"`
	ChannelLeaveOnDetach  Bool `yaml:"channel_leave_on_detach"  mapstructure:"channel_leave_on_detach"`
	ChannelRejoinOnAttach Bool `yaml:"channel_rejoin_on_attach" mapstructure:"channel_rejoin_on_attach"`

	IdleMaxtime            int  `yaml:"idle_maxtime"             mapstructure:"idle_maxtime"`
	DisconnectExistingUser Bool `yaml:"disconnect_existing_user" mapstructure:"disconnect_existing_user"`
	DisconnectOnDetach     Bool `yaml:"disconnect_on_detach"     mapstructure:"disconnect_on_detach"`

	InitialModes string `yaml:"initial_modes" mapstructure:"initial_modes"`
	DropModes    string `yaml:"drop_modes"    mapstructure:"drop_modes"`
	RefuseModes  string `yaml:"refuse_modes"  mapstructure:"refuse_modes"`

	AwayMessage    string `yaml:"away_message"    mapstructure:"away_message"`
	QuitMessage    string `yaml:"quit_message"    mapstructure:"quit_message"`
	AttachMessage  string `yaml:"attach_message"  mapstructure:"attach_message"`
	DetachMessage  string `yaml:"detach_message"  mapstructure:"detach_message"`
	DetachNickname string `yaml:"detach_nickname" mapstructure:"detach_nickname"`

	NickKeep         Bool   `yaml:"nick_keep"         mapstructure:"nick_keep"`
	NickservPassword string `yaml:"nickserv_password" mapstructure:"nickserv_password"`
	CTCPReplies      *Bool  `yaml:"ctcp_replies"      mapstructure:"ctcp_replies"`

	LogTimestamp    *Bool      `yaml:"log_timestamp"    mapstructure:"log_timestamp"`
	LogRelativeTime *Bool      `yaml:"log_relativetime" mapstructure:"log_relativetime"`
	LogTimeOffset   int        `yaml:"log_timeoffset"   mapstructure:"log_timeoffset"`
	LogEvents       string     `yaml:"log_events"       mapstructure:"log_events"`
	LogDir          string     `yaml:"log_dir"          mapstructure:"log_dir"`
	LogProgram      string     `yaml:"log_program"      mapstructure:"log_program"`
	ChanLog         LogContext `yaml:"chan_log"         mapstructure:"chan_log"`
	PrivateLog      LogContext `yaml:"private_log"      mapstructure:"private_log"`
	ServerLog       LogContext `yaml:"server_log"       mapstructure:"server_log"`

	RecallHighlight []HighlightRule `yaml:"recall_highlight" mapstructure:"recall_highlight"`

	DCCProxyIncoming    Bool   `yaml:"dcc_proxy_incoming"    mapstructure:"dcc_proxy_incoming"`
	DCCProxyOutgoing    Bool   `yaml:"dcc_proxy_outgoing"    mapstructure:"dcc_proxy_outgoing"`
	DCCProxyPorts       string `yaml:"dcc_proxy_ports"       mapstructure:"dcc_proxy_ports"`
	DCCProxyTimeout     int    `yaml:"dcc_proxy_timeout"     mapstructure:"dcc_proxy_timeout"`
	DCCProxySendReject  *Bool  `yaml:"dcc_proxy_sendreject"  mapstructure:"dcc_proxy_sendreject"`
	DCCSendFast         Bool   `yaml:"dcc_send_fast"         mapstructure:"dcc_send_fast"`
	DCCCaptureDirectory string `yaml:"dcc_capture_directory" mapstructure:"dcc_capture_directory"`
	DCCCaptureAlways    Bool   `yaml:"dcc_capture_always"    mapstructure:"dcc_capture_always"`
	DCCCaptureWithNick  Bool   `yaml:"dcc_capture_withnick"  mapstructure:"dcc_capture_withnick"`
	DCCCaptureMaxSize   int64  `yaml:"dcc_capture_maxsize"   mapstructure:"dcc_capture_maxsize"`
	DCCTunnelIncoming   int    `yaml:"dcc_tunnel_incoming"   mapstructure:"dcc_tunnel_incoming"`
	DCCTunnelOutgoing   int    `yaml:"dcc_tunnel_outgoing"   mapstructure:"dcc_tunnel_outgoing"`

	MOTDLogo  *Bool  `yaml:"motd_logo"  mapstructure:"motd_logo"`
	MOTDFile  string `yaml:"motd_file"  mapstructure:"motd_file"`
	MOTDStats *Bool  `yaml:"motd_stats" mapstructure:"motd_stats"`

	AllowPersist Bool `yaml:"allow_persist"  mapstructure:"allow_persist"`
	AllowJump    Bool `yaml:"allow_jump"     mapstructure:"allow_jump"`
	AllowJumpNew Bool `yaml:"allow_jump_new" mapstructure:"allow_jump_new"`
	AllowHost    Bool `yaml:"allow_host"     mapstructure:"allow_host"`
	AllowDie     Bool `yaml:"allow_die"      mapstructure:"allow_die"`
	AllowUsers   Bool `yaml:"allow_users"    mapstructure:"allow_users"`
	AllowKill    Bool `yaml:"allow_kill"     mapstructure:"allow_kill"`
	AllowNotify  Bool `yaml:"allow_notify"   mapstructure:"allow_notify"`
	AllowDynamic Bool `yaml:"allow_dynamic"  mapstructure:"allow_dynamic"`
}

// LogContext holds the per-context (channel, private, server) log knobs.
// Recall -1 means "everything unless always-on"; MaxSize 0 means no cap.
type LogContext struct {
	Enabled *Bool `yaml:"enabled" mapstructure:"enabled"`
	Always  Bool  `yaml:"always"  mapstructure:"always"`
	MaxSize int   `yaml:"maxsize" mapstructure:"maxsize"`
	Recall  *int  `yaml:"recall"  mapstructure:"recall"`
}

// HighlightRule marks up matching text when logged messages are
// replayed to a reattaching client. Kind is "word" (default) or
// "regex". Channels and ExcludeChannels are glob patterns; exclusions
// win.
type HighlightRule struct {
	Pattern         string   `yaml:"pattern"          mapstructure:"pattern"`
	Kind            string   `yaml:"kind"             mapstructure:"kind"`
	CaseInsensitive Bool     `yaml:"case_insensitive" mapstructure:"case_insensitive"`
	Color           string   `yaml:"color"            mapstructure:"color"`
	Bold            Bool     `yaml:"bold"             mapstructure:"bold"`
	Underline       Bool     `yaml:"underline"        mapstructure:"underline"`
	WholeLine       Bool     `yaml:"whole_line"       mapstructure:"whole_line"`
	Channels        []string `yaml:"channels"         mapstructure:"channels"`
	ExcludeChannels []string `yaml:"exclude_channels" mapstructure:"exclude_channels"`
}

// Bool accepts the relaxed spellings yes|no|true|false|y|n|t|f|1|0 in
// addition to native YAML booleans.
type Bool bool

func (b *Bool) UnmarshalYAML(value *yaml.Node) error {
	v, err := ParseBool(value.Value)
	if err != nil {
		return err
	}
	*b = Bool(v)
	return nil
}

// ParseBool parses the relaxed boolean spellings.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "true", "y", "t", "1", "on":
		return true, nil
	case "no", "false", "n", "f", "0", "off", "":
		return false, nil
	}
	return false, fmt.Errorf("config: invalid boolean %q", s)
}

// boolHook lets viper decode relaxed boolean strings into Bool fields.
func boolHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if to != reflect.TypeOf(Bool(false)) {
		return data, nil
	}
	switch v := data.(type) {
	case bool:
		return Bool(v), nil
	case string:
		b, err := ParseBool(v)
		return Bool(b), err
	case int:
		return Bool(v != 0), nil
	}
	return data, nil
}

// Load unmarshals the configuration viper has already read in, applies
// defaults and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(boolHook))); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFile loads a configuration YAML directly, bypassing viper. Used by
// tests and the gen/info tooling.
func LoadFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills in every absent value.
func (c *Config) ApplyDefaults() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.ClientTimeout == 0 {
		c.ClientTimeout = DefaultClientTimeout
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.DNSTimeout == 0 {
		c.DNSTimeout = DefaultDNSTimeout
	}
	c.PIDFile = ExpandPath(c.PIDFile)
	for i := range c.Classes {
		c.Classes[i].applyDefaults()
	}
}

func (cl *Class) applyDefaults() {
	if cl.ServerPort == 0 {
		cl.ServerPort = DefaultServerPort
	}
	if cl.ServerRetry == 0 {
		cl.ServerRetry = DefaultServerRetry
	}
	if cl.ServerMaxInitAttempts == nil {
		cl.ServerMaxInitAttempts = intp(DefaultMaxInitAttempts)
	}
	if cl.ServerPingTimeout == nil {
		cl.ServerPingTimeout = intp(DefaultPingTimeout)
	}
	if cl.ServerAutoconnect == nil {
		cl.ServerAutoconnect = boolp(true)
	}
	if cl.ChannelRejoin == nil {
		cl.ChannelRejoin = intp(DefaultChannelRejoin)
	}
	if cl.CTCPReplies == nil {
		cl.CTCPReplies = boolp(true)
	}
	if cl.LogTimestamp == nil {
		cl.LogTimestamp = boolp(true)
	}
	if cl.LogRelativeTime == nil {
		cl.LogRelativeTime = boolp(true)
	}
	if cl.LogEvents == "" {
		cl.LogEvents = "all"
	}
	if cl.DCCProxyTimeout == 0 {
		cl.DCCProxyTimeout = DefaultDCCTimeout
	}
	if cl.DCCProxySendReject == nil {
		cl.DCCProxySendReject = boolp(true)
	}
	if cl.MOTDLogo == nil {
		cl.MOTDLogo = boolp(true)
	}
	if cl.MOTDStats == nil {
		cl.MOTDStats = boolp(true)
	}
	for _, lc := range []*LogContext{&cl.ChanLog, &cl.PrivateLog, &cl.ServerLog} {
		if lc.Enabled == nil {
			lc.Enabled = boolp(true)
		}
		if lc.Recall == nil {
			lc.Recall = intp(-1)
		}
	}
	cl.LogDir = ExpandPath(cl.LogDir)
	cl.DCCCaptureDirectory = ExpandPath(cl.DCCCaptureDirectory)
	cl.MOTDFile = ExpandPath(cl.MOTDFile)
}

// Validate checks the configuration for errors that must be fatal at load
// time.
func (c *Config) Validate() error {
	if len(c.Classes) == 0 {
		return fmt.Errorf("config: no connection classes defined")
	}
	for i := range c.Classes {
		cl := &c.Classes[i]
		label := cl.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i+1)
		}
		if cl.Password == "" {
			return fmt.Errorf("config: connection %s: password required", label)
		}
		if len(cl.Servers) == 0 {
			return fmt.Errorf("config: connection %s: at least one server required", label)
		}
		for _, s := range cl.Servers {
			if _, err := ParseServerSpec(s, cl.ServerPort); err != nil {
				return fmt.Errorf("config: connection %s: %w", label, err)
			}
		}
		if cl.ServerThrottle != "" {
			if _, _, err := ParseThrottle(cl.ServerThrottle); err != nil {
				return fmt.Errorf("config: connection %s: %w", label, err)
			}
		}
		if cl.DCCProxyPorts != "" {
			if _, _, err := ParsePortRange(cl.DCCProxyPorts); err != nil {
				return fmt.Errorf("config: connection %s: %w", label, err)
			}
		}
	}
	return nil
}

// ServerSpec is one parsed entry of a class's server list.
type ServerSpec struct {
	Host     string
	Port     int
	Password string
}

func (s ServerSpec) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ParseServerSpec parses "host[:port][:password]".
func ParseServerSpec(spec string, defaultPort int) (ServerSpec, error) {
	s := ServerSpec{Port: defaultPort}
	parts := strings.SplitN(spec, ":", 3)
	s.Host = parts[0]
	if s.Host == "" {
		return s, fmt.Errorf("empty server host in %q", spec)
	}
	if len(parts) >= 2 && parts[1] != "" {
		port, err := strconv.Atoi(parts[1])
		if err != nil || port < 1 || port > 65535 {
			return s, fmt.Errorf("bad server port in %q", spec)
		}
		s.Port = port
	}
	if len(parts) == 3 {
		s.Password = parts[2]
	}
	return s, nil
}

// ParseJoin splits a join entry "name [key]".
func ParseJoin(entry string) (name, key string) {
	fields := strings.Fields(entry)
	if len(fields) == 0 {
		return "", ""
	}
	if len(fields) > 1 {
		key = fields[1]
	}
	return fields[0], key
}

// ParseThrottle parses "N" or "N:S": at most N bytes per S seconds, S
// defaulting to one.
func ParseThrottle(s string) (bytes, period int, err error) {
	period = 1
	parts := strings.SplitN(s, ":", 2)
	bytes, err = strconv.Atoi(parts[0])
	if err != nil || bytes < 0 {
		return 0, 0, fmt.Errorf("bad throttle %q", s)
	}
	if len(parts) == 2 {
		period, err = strconv.Atoi(parts[1])
		if err != nil || period < 1 {
			return 0, 0, fmt.Errorf("bad throttle period %q", s)
		}
	}
	return bytes, period, nil
}

// ParsePortRange parses "lo-hi" (inclusive) or a single port.
func ParsePortRange(s string) (lo, hi int, err error) {
	parts := strings.SplitN(s, "-", 2)
	lo, err = strconv.Atoi(parts[0])
	if err != nil || lo < 1 || lo > 65535 {
		return 0, 0, fmt.Errorf("bad port range %q", s)
	}
	hi = lo
	if len(parts) == 2 {
		hi, err = strconv.Atoi(parts[1])
		if err != nil || hi < lo || hi > 65535 {
			return 0, 0, fmt.Errorf("bad port range %q", s)
		}
	}
	return lo, hi, nil
}

// ExpandPath substitutes a leading "~/" with the user's home directory.
func ExpandPath(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// VerifyPassword compares a candidate against the stored class password.
// Values with a bcrypt prefix are checked as bcrypt hashes, anything else
// with a constant-time literal compare.
func VerifyPassword(candidate, stored string) bool {
	if strings.HasPrefix(stored, "$2a$") || strings.HasPrefix(stored, "$2b$") || strings.HasPrefix(stored, "$2y$") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(candidate)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(stored)) == 1
}

func intp(n int) *int    { return &n }
func boolp(b bool) *Bool { v := Bool(b); return &v }
