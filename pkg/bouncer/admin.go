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
package bouncer

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bitcanon/ircbounce/pkg/config"
	"github.com/bitcanon/ircbounce/pkg/irc"
)

// adminCommand dispatches a DIRCPROXY client command. Commands touching
// anything beyond the caller's own session are gated by class permission
// flags.
func (s *Session) adminCommand(m *irc.Message) {
	args := adminArgs(m)
	cmd := ""
	if len(args) > 0 {
		cmd = strings.ToUpper(args[0])
		args = args[1:]
	}

	switch cmd {
	case "", "HELP":
		s.adminHelp()
	case "MOTD":
		s.sendMOTD()
	case "STATUS":
		s.adminStatus()
	case "RECALL":
		s.adminRecall(args)
	case "PERSIST":
		s.adminGated(s.class.AllowPersist, func() {
			s.persist = true
			s.notice("Session will persist after you detach")
		})
	case "DETACH":
		s.adminDetach()
	case "QUIT":
		s.errorClient("Closing Link: " + s.nickname)
		s.quitServer(s.quitMessage())
		s.die()
	case "DIE":
		s.adminGated(s.class.AllowDie, func() {
			s.log.Warn("shutdown requested by client")
			s.srv.Shutdown()
		})
	case "JUMP":
		s.adminGated(s.class.AllowJump, func() { s.adminJump(args, false) })
	case "HOST":
		s.adminGated(s.class.AllowHost, func() { s.adminJump(args, true) })
	case "SERVERS":
		s.adminServers()
	case "USERS":
		s.adminGated(s.class.AllowUsers, s.adminUsers)
	case "KILL":
		s.adminGated(s.class.AllowKill, func() { s.adminKill(args) })
	case "NOTIFY":
		s.adminGated(s.class.AllowNotify, func() { s.adminNotify(args) })
	case "RELOAD":
		s.adminGated(s.class.AllowDie, func() {
			s.notice("Reloading configuration")
			s.srv.RequestReload()
		})
	case "GET":
		s.adminGated(s.class.AllowDynamic, func() { s.adminGet(args) })
	case "SET":
		s.adminGated(s.class.AllowDynamic, func() { s.adminSet(args) })
	default:
		s.notice("Unknown command: " + cmd + " (try HELP)")
	}
}

// adminArgs flattens the command's parameters, splitting a trailing
// parameter into words.
func adminArgs(m *irc.Message) []string {
	var args []string
	args = append(args, m.Params...)
	if m.Trailing != "" {
		args = append(args, strings.Fields(m.Trailing)...)
	}
	return args
}

func (s *Session) adminGated(allowed config.Bool, fn func()) {
	if !allowed {
		s.notice("You are not permitted to use this command")
		return
	}
	fn()
}

func (s *Session) adminHelp() {
	s.notice("Commands: HELP MOTD STATUS RECALL [nick] <lines|ALL> PERSIST DETACH QUIT")
	s.notice("          JUMP [server] HOST <server> SERVERS USERS KILL <user> NOTIFY <user> <text>")
	s.notice("          DIE RELOAD GET <key> SET <key> <value>")
	s.notice("Commands beyond your own session need the matching allow_* flag in your class")
}

func (s *Session) adminStatus() {
	if s.sstat.active() {
		s.notice(fmt.Sprintf("Connected to %s (%s) as %s", s.serverName, s.currentServer.Addr(), s.nickname))
	} else if s.sstat.connected {
		s.notice("Registering with " + s.currentServer.Addr())
	} else {
		s.notice("Not connected to a server")
	}
	for _, ch := range s.channels {
		state := "joined"
		switch {
		case ch.Inactive:
			state = "rejoin pending"
		case ch.Unjoined:
			state = "left until attach"
		}
		s.notice(fmt.Sprintf("  %s (%s)", ch.Name, state))
	}
	if n := len(s.proxies); n > 0 {
		s.notice(fmt.Sprintf("%d DCC transfer(s) in progress", n))
	}
	s.notice("Session up since " + s.startTime.Format("Mon Jan 2 15:04:05 2006"))
}

// adminRecall replays the private log on demand: RECALL <lines|ALL> or
// RECALL <nick> <lines|ALL>.
func (s *Session) adminRecall(args []string) {
	if s.privateLog == nil {
		s.notice("Private message logging is disabled")
		return
	}
	count := -1
	filter := ""
	parse := func(w string) (int, bool) {
		if strings.EqualFold(w, "ALL") {
			return -1, true
		}
		n, err := strconv.Atoi(w)
		return n, err == nil && n >= 0
	}
	switch len(args) {
	case 0:
	case 1:
		n, ok := parse(args[0])
		if ok {
			count = n
		} else {
			filter = args[0]
		}
	default:
		filter = args[0]
		if n, ok := parse(args[1]); ok {
			count = n
		}
	}

	var match func(string) bool
	if filter != "" {
		match = func(nick string) bool { return irc.Equal(nick, filter) }
	}
	entries, err := s.privateLog.Recall(count, match)
	if err != nil {
		s.notice("Recall failed: " + err.Error())
		return
	}
	if len(entries) == 0 {
		s.notice("Nothing to recall")
		return
	}
	now := time.Now()
	for _, e := range entries {
		s.deliverRecall(e, s.nickname, now)
	}
}

func (s *Session) adminDetach() {
	s.notice("Detaching; your session stays connected")
	s.errorClient("Closing Link: detached")
	if s.client != nil {
		s.client.close()
		s.client = nil
	}
	s.cstat = clientStatus{}
	if !s.sstat.active() {
		s.die()
		return
	}
	s.detach()
}

// adminJump moves to another server: the next in the list, a listed one,
// or (HOST) an arbitrary one.
func (s *Session) adminJump(args []string, arbitrary bool) {
	if len(s.class.Servers) == 0 {
		s.notice("No servers configured")
		return
	}
	if len(args) > 0 {
		spec := args[0]
		idx := -1
		if parsed, err := config.ParseServerSpec(spec, s.class.ServerPort); err == nil {
			idx = s.serverListIndex(parsed.Host, parsed.Port)
		}
		switch {
		case idx >= 0:
			s.nextServer = idx
		case arbitrary || bool(s.class.AllowJumpNew):
			s.class.Servers = append(s.class.Servers, spec)
			s.nextServer = len(s.class.Servers) - 1
		default:
			s.notice("Server not in your list: " + spec)
			return
		}
	} else {
		s.nextServer = (s.nextServer + 1) % len(s.class.Servers)
	}
	s.notice("Jumping servers")
	s.quitServer(s.quitMessage())
	// a manual jump starts a fresh attempt cycle
	s.attempts = 0
	s.connectServer()
}

func (s *Session) adminServers() {
	for i, entry := range s.class.Servers {
		marker := " "
		if spec, err := config.ParseServerSpec(entry, s.class.ServerPort); err == nil && spec.Addr() == s.currentServer.Addr() && s.sstat.created {
			marker = "*"
		}
		s.notice(fmt.Sprintf("%s %d. %s", marker, i+1, entry))
	}
}

func (s *Session) adminUsers() {
	for _, info := range s.srv.SessionInfo() {
		s.notice(fmt.Sprintf("%s: class %s, up since %s", info.ID, info.Class, info.Since.Format("Jan 2 15:04")))
	}
}

func (s *Session) adminKill(args []string) {
	if len(args) == 0 {
		s.notice("Usage: KILL <class>")
		return
	}
	target := s.srv.findByClass(args[0])
	if target == nil {
		s.notice("No such user: " + args[0])
		return
	}
	target.post(evControl{fn: func() {
		target.errorClient("Killed")
		target.quitServer("Killed")
		target.die()
	}})
	s.notice("Killed " + args[0])
}

func (s *Session) adminNotify(args []string) {
	if len(args) < 2 {
		s.notice("Usage: NOTIFY <class> <text>")
		return
	}
	target := s.srv.findByClass(args[0])
	if target == nil {
		s.notice("No such user: " + args[0])
		return
	}
	text := strings.Join(args[1:], " ")
	from := s.classLabel()
	target.post(evControl{fn: func() { target.notice("Message from " + from + ": " + text) }})
	s.notice("Notified " + args[0])
}

// Dynamic tunables reachable through GET/SET. Each entry reads and writes
// one class field on the caller's live session.
var dynamicKeys = []string{
	"away_message", "quit_message", "attach_message", "detach_message",
	"detach_nickname", "log_timestamp", "log_relativetime", "dcc_send_fast",
}

func (s *Session) adminGet(args []string) {
	if len(args) == 0 {
		s.notice("Keys: " + strings.Join(dynamicKeys, " "))
		return
	}
	val, ok := s.dynamicValue(args[0])
	if !ok {
		s.notice("Unknown key: " + args[0])
		return
	}
	s.notice(args[0] + " = " + val)
}

func (s *Session) adminSet(args []string) {
	if len(args) < 2 {
		s.notice("Usage: SET <key> <value>")
		return
	}
	key, val := args[0], strings.Join(args[1:], " ")
	if !s.setDynamicValue(key, val) {
		s.notice("Unknown key or bad value: " + key)
		return
	}
	s.notice(key + " set")
}

func (s *Session) dynamicValue(key string) (string, bool) {
	cl := s.class
	switch key {
	case "away_message":
		return cl.AwayMessage, true
	case "quit_message":
		return cl.QuitMessage, true
	case "attach_message":
		return cl.AttachMessage, true
	case "detach_message":
		return cl.DetachMessage, true
	case "detach_nickname":
		return cl.DetachNickname, true
	case "log_timestamp":
		return strconv.FormatBool(bool(*cl.LogTimestamp)), true
	case "log_relativetime":
		return strconv.FormatBool(bool(*cl.LogRelativeTime)), true
	case "dcc_send_fast":
		return strconv.FormatBool(bool(cl.DCCSendFast)), true
	}
	return "", false
}

func (s *Session) setDynamicValue(key, val string) bool {
	cl := s.class
	switch key {
	case "away_message":
		cl.AwayMessage = val
	case "quit_message":
		cl.QuitMessage = val
	case "attach_message":
		cl.AttachMessage = val
	case "detach_message":
		cl.DetachMessage = val
	case "detach_nickname":
		cl.DetachNickname = val
	case "log_timestamp", "log_relativetime", "dcc_send_fast":
		b, err := config.ParseBool(val)
		if err != nil {
			return false
		}
		switch key {
		case "log_timestamp":
			v := config.Bool(b)
			cl.LogTimestamp = &v
		case "log_relativetime":
			v := config.Bool(b)
			cl.LogRelativeTime = &v
		case "dcc_send_fast":
			cl.DCCSendFast = config.Bool(b)
		}
	default:
		return false
	}
	return true
}
