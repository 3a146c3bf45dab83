package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// TestLoadFile verifies a complete configuration loads with defaults
// applied where the file is silent.
func TestLoadFile(t *testing.T) {
	cfg, err := LoadFile("testdata/valid_config.yaml")
	require.NoError(t, err)

	assert.Equal(t, ":57000", cfg.Listen)
	assert.Equal(t, "/var/run/ircbounce.pid", cfg.PIDFile)
	assert.Equal(t, ":9090", cfg.MetricsListen)
	assert.Equal(t, 60, cfg.ClientTimeout)
	assert.Equal(t, DefaultConnectTimeout, cfg.ConnectTimeout)

	require.Len(t, cfg.Classes, 1)
	cl := cfg.Classes[0]

	assert.Equal(t, "example", cl.Name)
	assert.Equal(t, "sekrit", cl.Password)
	assert.Equal(t, []string{"*.example.com", "10.0.0.*"}, cl.From)
	assert.Equal(t, []string{"irc.example.com", "irc2.example.com:6697:serverpass"}, cl.Servers)

	assert.Equal(t, 30, cl.ServerRetry)
	assert.Equal(t, 2, *cl.ServerMaxInitAttempts)
	assert.Equal(t, 300, *cl.ServerPingTimeout)
	assert.Equal(t, "1024:10", cl.ServerThrottle)
	assert.Equal(t, 15, *cl.ChannelRejoin)
	assert.False(t, bool(cl.ChannelLeaveOnDetach))
	assert.Equal(t, "*_away", cl.DetachNickname)
	assert.True(t, bool(cl.NickKeep))
	assert.True(t, bool(*cl.CTCPReplies))
	assert.Equal(t, "all,-ctcp", cl.LogEvents)

	assert.True(t, bool(*cl.ChanLog.Enabled))
	assert.Equal(t, 500, cl.ChanLog.MaxSize)
	assert.Equal(t, 128, *cl.ChanLog.Recall)
	assert.Equal(t, -1, *cl.PrivateLog.Recall)

	assert.True(t, bool(cl.DCCProxyIncoming))
	assert.Equal(t, "57100-57199", cl.DCCProxyPorts)
	assert.Equal(t, "/tmp/captures", cl.DCCCaptureDirectory)
	assert.Equal(t, DefaultDCCTimeout, cl.DCCProxyTimeout)
	assert.True(t, bool(*cl.DCCProxySendReject))

	assert.True(t, bool(cl.AllowJump))
	assert.True(t, bool(cl.AllowDie))
	assert.False(t, bool(cl.AllowKill))

	// defaults for fields the file omits
	assert.Equal(t, DefaultServerPort, cl.ServerPort)
	assert.True(t, bool(*cl.ServerAutoconnect))
	assert.True(t, bool(*cl.MOTDLogo))
}

// TestLoadFileErrors verifies missing and malformed files fail.
func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile("testdata/non_existent.yaml")
	assert.Error(t, err)

	_, err = LoadFile("testdata/invalid_config.yaml")
	assert.Error(t, err)
}

// TestValidate verifies the load-time fatal checks.
func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{Classes: []Class{{
			Password: "pw",
			Servers:  []string{"irc.example.com"},
		}}}
		cfg.ApplyDefaults()
		return cfg
	}

	assert.NoError(t, valid().Validate())

	cfg := valid()
	cfg.Classes = nil
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Classes[0].Password = ""
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Classes[0].Servers = nil
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Classes[0].Servers = []string{"irc.example.com:notaport"}
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Classes[0].ServerThrottle = "fast"
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Classes[0].DCCProxyPorts = "200-100"
	assert.Error(t, cfg.Validate())
}

// TestParseServerSpec covers the host[:port][:password] forms.
func TestParseServerSpec(t *testing.T) {
	tests := []struct {
		spec     string
		expected ServerSpec
	}{
		{"irc.example.com", ServerSpec{Host: "irc.example.com", Port: 6667}},
		{"irc.example.com:6697", ServerSpec{Host: "irc.example.com", Port: 6697}},
		{"irc.example.com:6697:pw", ServerSpec{Host: "irc.example.com", Port: 6697, Password: "pw"}},
		{"irc.example.com::pw", ServerSpec{Host: "irc.example.com", Port: 6667, Password: "pw"}},
	}

	for _, test := range tests {
		got, err := ParseServerSpec(test.spec, 6667)
		require.NoError(t, err, test.spec)
		assert.Equal(t, test.expected, got, test.spec)
	}

	for _, spec := range []string{"", ":6667", "host:0", "host:99999"} {
		_, err := ParseServerSpec(spec, 6667)
		assert.Error(t, err, spec)
	}

	s, _ := ParseServerSpec("irc.example.com:6697", 6667)
	assert.Equal(t, "irc.example.com:6697", s.Addr())
}

// TestParseThrottle covers the N and N:S forms.
func TestParseThrottle(t *testing.T) {
	bytes, period, err := ParseThrottle("1024")
	require.NoError(t, err)
	assert.Equal(t, 1024, bytes)
	assert.Equal(t, 1, period)

	bytes, period, err = ParseThrottle("1024:10")
	require.NoError(t, err)
	assert.Equal(t, 1024, bytes)
	assert.Equal(t, 10, period)

	for _, s := range []string{"", "x", "-1", "1024:0", "1024:x"} {
		_, _, err := ParseThrottle(s)
		assert.Error(t, err, s)
	}
}

// TestParsePortRange covers single ports and inclusive ranges.
func TestParsePortRange(t *testing.T) {
	lo, hi, err := ParsePortRange("57100-57199")
	require.NoError(t, err)
	assert.Equal(t, 57100, lo)
	assert.Equal(t, 57199, hi)

	lo, hi, err = ParsePortRange("57100")
	require.NoError(t, err)
	assert.Equal(t, 57100, lo)
	assert.Equal(t, 57100, hi)

	for _, s := range []string{"", "0-10", "20-10", "x-y", "1-99999"} {
		_, _, err := ParsePortRange(s)
		assert.Error(t, err, s)
	}
}

// TestParseJoin covers "name [key]" entries.
func TestParseJoin(t *testing.T) {
	name, key := ParseJoin("#chan")
	assert.Equal(t, "#chan", name)
	assert.Empty(t, key)

	name, key = ParseJoin("#chan sekrit")
	assert.Equal(t, "#chan", name)
	assert.Equal(t, "sekrit", key)

	name, key = ParseJoin("")
	assert.Empty(t, name)
	assert.Empty(t, key)
}

// TestParseBool covers the relaxed boolean spellings.
func TestParseBool(t *testing.T) {
	for _, s := range []string{"yes", "true", "y", "t", "1", "on", "YES"} {
		v, err := ParseBool(s)
		require.NoError(t, err, s)
		assert.True(t, v, s)
	}
	for _, s := range []string{"no", "false", "n", "f", "0", "off", ""} {
		v, err := ParseBool(s)
		require.NoError(t, err, s)
		assert.False(t, v, s)
	}
	_, err := ParseBool("maybe")
	assert.Error(t, err)
}

// TestVerifyPassword covers both the literal and the bcrypt form.
func TestVerifyPassword(t *testing.T) {
	assert.True(t, VerifyPassword("sekrit", "sekrit"))
	assert.False(t, VerifyPassword("sekrit", "other"))
	assert.False(t, VerifyPassword("", "sekrit"))

	hash, err := bcrypt.GenerateFromPassword([]byte("sekrit"), bcrypt.MinCost)
	require.NoError(t, err)
	assert.True(t, VerifyPassword("sekrit", string(hash)))
	assert.False(t, VerifyPassword("wrong", string(hash)))
}
