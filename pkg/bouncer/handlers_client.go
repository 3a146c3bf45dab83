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
	"strings"
	"time"

	"github.com/bitcanon/ircbounce/pkg/irc"
	"github.com/bitcanon/ircbounce/pkg/logfile"
)

// handleClientLine processes one line from the attached client.
func (s *Session) handleClientLine(line string) {
	m := irc.ParseMessage(line)
	if m == nil {
		return
	}

	if !s.cstat.authed {
		s.handleClientPreAuth(m)
		return
	}

	switch m.Command {
	case "PASS", "USER":
		// registration is done; swallow

	case "QUIT":
		s.log.Info("client quit")
		s.errorClient("Closing Link: " + s.nickname)
		s.clientLost()

	case "DIRCPROXY":
		s.adminCommand(m)

	case "NICK":
		if nick := m.Param(0); nick != "" {
			s.setNickname = nick
			s.forwardToServer(line)
		}

	case "PING":
		s.allowPong = true
		s.forwardToServer(line)

	case "MOTD":
		s.allowMOTD = true
		s.forwardToServer(line)

	case "AWAY":
		s.awayMessage = m.Text()
		s.forwardToServer(line)

	case "MODE":
		if irc.Equal(m.Param(0), s.nickname) && s.refusedModeChange(m.Param(1)) {
			s.notice("Mode change refused by your connection class")
			return
		}
		s.forwardToServer(line)

	case "JOIN":
		s.clientJoin(m)
		s.forwardToServer(line)

	case "PRIVMSG", "NOTICE":
		s.clientMessage(m, line)

	default:
		s.forwardToServer(line)
	}
}

// forwardToServer passes a line upstream, or tells the client why not.
func (s *Session) forwardToServer(line string) {
	if !s.sstat.active() {
		s.notice("Not connected to server")
		return
	}
	s.sendServer(line)
}

// handleClientPreAuth drives registration: PASS, NICK and USER in any
// order, nothing else recognized until all three have arrived.
func (s *Session) handleClientPreAuth(m *irc.Message) {
	switch m.Command {
	case "PASS":
		if m.Param(0) == "" {
			s.numeric(irc.ErrNotRegistered, ":Not enough parameters")
			return
		}
		s.password = m.Param(0)
		s.cstat.gotPass = true

	case "NICK":
		nick := m.Param(0)
		if nick == "" {
			s.numeric(irc.ErrNoNicknameGiven, ":No nickname given")
			return
		}
		if !irc.IsValidNick(nick) {
			s.numeric(irc.ErrErroneusNickname, nick+" :Erroneous nickname")
			return
		}
		s.nickname = nick
		s.setNickname = nick
		s.cstat.gotNick = true

	case "USER":
		if m.Param(0) == "" {
			s.numeric(irc.ErrNotRegistered, ":Not enough parameters")
			return
		}
		s.username = irc.SanitizeUser(m.Param(0))
		s.realname = m.Text()
		s.cstat.gotUser = true

	case "QUIT":
		s.die()
		return

	default:
		s.numeric(irc.ErrNotRegistered, ":You have not registered")
		return
	}

	if s.cstat.registered() && !s.cstat.authed {
		s.authenticate()
	}
}

// refusedModeChange reports whether a mode change tries to add a letter
// the class refuses.
func (s *Session) refusedModeChange(change string) bool {
	refuse := s.class.RefuseModes
	if refuse == "" {
		return false
	}
	adding := true
	for _, c := range change {
		switch c {
		case '+':
			adding = true
		case '-':
			adding = false
		default:
			if adding && strings.ContainsRune(refuse, c) {
				return true
			}
		}
	}
	return false
}

// clientJoin records channel keys from the client's JOIN so reconnection
// can reuse them.
func (s *Session) clientJoin(m *irc.Message) {
	names := strings.Split(m.Param(0), ",")
	var keys []string
	if m.Param(1) != "" {
		keys = strings.Split(m.Param(1), ",")
	}
	for i, name := range names {
		if name == "" {
			continue
		}
		key := ""
		if i < len(keys) {
			key = keys[i]
		}
		// not on it yet; the server's JOIN echo activates it
		s.addChannel(name, key)
	}
}

// clientMessage handles outbound PRIVMSG/NOTICE: antiidle reset, local
// logging, and outgoing DCC rewriting.
func (s *Session) clientMessage(m *irc.Message, line string) {
	if idle := s.class.IdleMaxtime; idle > 0 {
		s.timers.Del(tmrAntiIdle)
		s.timers.Add(tmrAntiIdle, time.Duration(idle)*time.Second)
	}

	target := m.Param(0)
	if target == "" {
		s.forwardToServer(line)
		return
	}

	text := m.Text()
	plain, payloads := irc.SplitCTCP(text)

	dest := s.privateLog
	destName := ""
	if irc.IsChannel(target) {
		if ch := s.findChannel(target); ch != nil {
			dest = ch.Log
			destName = ch.Name
		}
	}
	event := logfile.EventMessage
	if m.Command == "NOTICE" {
		event = logfile.EventNotice
	}
	if strings.TrimSpace(plain) != "" || len(payloads) == 0 {
		s.logWrite(dest, event, orDefault(destName, target), s.selfPrefix(), plain)
	}

	if len(payloads) == 0 {
		s.forwardToServer(line)
		return
	}

	rewritten, forward := s.rewriteCTCPOut(m, plain, payloads, dest, orDefault(destName, target))
	if forward {
		s.forwardToServer(rewritten)
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
