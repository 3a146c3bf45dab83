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
	"github.com/bitcanon/ircbounce/pkg/logfile"
)

// handleServerLine processes one upstream line: state tracking, logging,
// squelching and rewriting, then forwarding to the attached client.
func (s *Session) handleServerLine(line string) {
	m := irc.ParseMessage(line)
	if m == nil {
		return
	}

	forward := true
	out := line

	switch m.Command {
	case "PING":
		// answer ahead of queued traffic, then let the client see it
		arg := m.Text()
		if arg != "" {
			s.sendServerUrgent("PONG :" + arg)
		} else {
			s.sendServerUrgent("PONG")
		}

	case "PONG":
		ping := *s.class.ServerPingTimeout
		if ping > 0 {
			s.timers.Del(tmrStoned)
			s.timers.Add(tmrStoned, time.Duration(ping)*time.Second)
		}
		if !s.allowPong {
			forward = false
		}
		s.allowPong = false

	case irc.RplWelcome:
		if m.Source != nil {
			s.serverName = m.Source.Name
		}
		if nick := m.Param(0); nick != "" && nick != "*" {
			s.nickname = nick
			if s.setNickname == "" {
				s.setNickname = nick
			}
		}
		s.welcome = append(s.welcome[:0], line)
		forward = s.clientReady()

	case "002", "003":
		s.welcome = append(s.welcome, line)
		forward = s.clientReady()

	case irc.RplMyInfo:
		if m.Param(1) != "" {
			s.serverName = m.Param(1)
		}
		s.serverVersion = m.Param(2)
		s.serverUmodes = m.Param(3)
		s.serverCmodes = m.Param(4)
		s.welcome = append(s.welcome, line)
		forward = s.clientReady()
		s.gotWelcome()

	case irc.RplISupport:
		forward = s.handle005(m, line)

	case irc.RplChannelModeIs:
		if s.consumeModeSquelch(m.Param(1)) {
			forward = false
		}

	case irc.ErrNeedReggedNick:
		if s.consumeModeSquelch(m.Param(1)) {
			forward = false
		}

	case irc.RplMOTDStart, irc.RplMOTD:
		forward = s.allowMOTD

	case irc.RplEndOfMOTD, irc.ErrNoMOTD:
		forward = s.allowMOTD
		s.allowMOTD = false

	case irc.ErrNoRecipient:
		if s.squelch411 {
			s.squelch411 = false
			forward = false
		}

	case irc.ErrNoNicknameGiven, irc.ErrErroneusNickname, irc.ErrNicknameInUse,
		irc.ErrNickCollision, irc.ErrNickTooFast:
		forward = s.nickError(m)

	case irc.ErrUnavailResource:
		// juped: treat as nick-in-use or channel-full depending on target
		target := m.Param(1)
		if irc.IsChannel(target) {
			out = rewriteNumeric(m, irc.ErrChannelIsFull)
			forward = s.channelJoinError(m, true)
		} else {
			out = rewriteNumeric(m, irc.ErrNicknameInUse)
			forward = s.nickError(m)
		}

	case irc.ErrChannelIsFull, irc.ErrInviteOnlyChan, irc.ErrBannedFromChan:
		forward = s.channelJoinError(m, true)

	case irc.ErrNoSuchChannel, irc.ErrCannotSendToChan, irc.ErrBadChannelKey, irc.ErrBadChanMask:
		forward = s.channelJoinError(m, false)

	case "NICK":
		forward = s.serverNick(m)

	case "JOIN":
		forward = s.serverJoin(m)

	case "PART":
		forward = s.serverPart(m)

	case "KICK":
		forward = s.serverKick(m)

	case "QUIT":
		s.serverQuit(m)

	case "MODE":
		s.serverMode(m)

	case "TOPIC":
		s.serverTopic(m)

	case "PRIVMSG", "NOTICE":
		out, forward = s.serverMessage(m, line)

	case "ERROR":
		s.logWrite(s.serverLog, logfile.EventError, "", sourceString(m), m.Text())
		if s.client != nil {
			s.client.send(line)
		}
		return
	}

	if forward && s.clientReady() {
		s.sendClient(out)
	}
}

func (s *Session) clientReady() bool {
	return s.client != nil && s.cstat.ready()
}

func sourceString(m *irc.Message) string {
	if m.Source == nil {
		return ""
	}
	return m.Source.String()
}

// fromSelf reports whether the line's source is our own nickname.
func (s *Session) fromSelf(m *irc.Message) bool {
	return m.Source != nil && irc.Equal(m.Source.Name, s.nickname)
}

// rewriteNumeric re-renders a numeric line under a different code.
func rewriteNumeric(m *irc.Message, code string) string {
	c := *m
	c.Command = code
	return c.String()
}

// consumeModeSquelch removes a channel from the squelch list, reporting
// whether the numeric at hand was the synthetic MODE request's reply.
func (s *Session) consumeModeSquelch(channel string) bool {
	folded := irc.ToLower(channel)
	if s.squelchModes[folded] {
		delete(s.squelchModes, folded)
		return true
	}
	return false
}

// handle005 accumulates capability lines and follows well-formed
// host:port redirects per the jump policy. Malformed redirect tokens are
// stored verbatim and never acted on.
func (s *Session) handle005(m *irc.Message, line string) bool {
	if host, port, ok := parse005Redirect(m); ok {
		target := fmt.Sprintf("%s:%d", host, port)
		if idx := s.serverListIndex(host, port); idx >= 0 {
			if bool(s.class.AllowJump) {
				s.notice("Server redirected us to " + target)
				s.jumpTo(idx)
				return false
			}
		} else if bool(s.class.AllowJumpNew) {
			s.class.Servers = append(s.class.Servers, target)
			s.notice("Server redirected us to " + target)
			s.jumpTo(len(s.class.Servers) - 1)
			return false
		}
	}
	s.supported = append(s.supported, line)
	return s.clientReady()
}

// parse005Redirect detects the old-style bounce form: the final token of
// the capability list is a bare host:port.
func parse005Redirect(m *irc.Message) (string, int, bool) {
	params := m.Params
	if len(params) < 2 {
		return "", 0, false
	}
	tokens := strings.Split(params[len(params)-1], ",")
	last := tokens[len(tokens)-1]
	if strings.Contains(last, "=") {
		return "", 0, false
	}
	host, portStr, found := strings.Cut(last, ":")
	if !found || host == "" {
		return "", 0, false
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, false
	}
	return host, port, true
}

func (s *Session) serverListIndex(host string, port int) int {
	for i, entry := range s.class.Servers {
		spec, err := config.ParseServerSpec(entry, s.class.ServerPort)
		if err != nil {
			continue
		}
		if strings.EqualFold(spec.Host, host) && spec.Port == port {
			return i
		}
	}
	return -1
}

// jumpTo reconnects to the server list entry at idx.
func (s *Session) jumpTo(idx int) {
	s.nextServer = idx
	s.quitServer(s.quitMessage())
	s.connectServer()
}

// nickError recovers from a rejected nickname. An attached client gets
// the error and recovers itself; unattended sessions regenerate.
func (s *Session) nickError(m *irc.Message) bool {
	rejected := m.Param(1)
	fallback := m.Param(0)
	if fallback != "" && fallback != "*" {
		s.nickname = fallback
	} else if rejected != "" {
		s.nickname = ""
	}

	if s.clientReady() {
		return true
	}
	candidate := rejected
	if candidate == "" {
		candidate = s.nickname
	}
	s.changeNick(nextNick(candidate))
	return false
}

// channelJoinError applies the rejoin-if-unattended policy. With a
// client attached the channel is dropped and the error forwarded;
// without one it goes inactive, with a rejoin timer when the failure is
// retryable.
func (s *Session) channelJoinError(m *irc.Message, retryable bool) bool {
	name := m.Param(1)
	ch := s.findChannel(name)
	if ch == nil {
		return true
	}
	reason := m.Text()
	s.logWrite(ch.Log, logfile.EventError, ch.Name, "", "Cannot join channel: "+reason)

	if s.clientReady() {
		s.removeChannel(name)
		return true
	}
	ch.Inactive = true
	if retryable {
		s.scheduleRejoin(ch)
	}
	return false
}

// serverNick tracks nickname changes. A change of our own nickname that
// the bouncer requested is replaced with a synthetic self-NICK so the
// client's view stays consistent.
func (s *Session) serverNick(m *irc.Message) bool {
	newNick := m.Text()
	if !s.fromSelf(m) {
		s.logWrite(s.privateLog, logfile.EventNick, "", sourceString(m), "is now known as "+newNick)
		return true
	}

	oldNick := s.nickname
	s.nickname = newNick
	wasOurs := s.expectingNick
	s.expectingNick = false

	if s.clientReady() {
		s.sendClient(fmt.Sprintf(":%s!%s@%s NICK :%s", oldNick, s.username, s.hostname, newNick))
	}
	if !wasOurs {
		s.setNickname = newNick
	}
	return false
}

// serverJoin tracks channel membership. A self-JOIN triggers the
// synthetic MODE request whose reply is squelched.
func (s *Session) serverJoin(m *irc.Message) bool {
	name := m.Param(0)
	if name == "" {
		name = m.Text()
	}
	if !s.fromSelf(m) {
		if ch := s.findChannel(name); ch != nil {
			s.logWrite(ch.Log, logfile.EventJoin, ch.Name, sourceString(m), "joined the channel")
		}
		return true
	}

	ch := s.addChannel(name, "")
	ch.Inactive = false
	ch.Unjoined = false
	s.timers.Del("rejoin " + irc.ToLower(name))
	s.logWrite(ch.Log, logfile.EventJoin, ch.Name, sourceString(m), "joined the channel")

	s.sendServer("MODE " + name)
	s.squelchModes[irc.ToLower(name)] = true
	return true
}

// serverPart tracks departures. The PART echo of a detach-time leave is
// squelched so state survives for the rejoin on attach.
func (s *Session) serverPart(m *irc.Message) bool {
	name := m.Param(0)
	ch := s.findChannel(name)
	if !s.fromSelf(m) {
		if ch != nil {
			s.logWrite(ch.Log, logfile.EventPart, ch.Name, sourceString(m), "left the channel")
		}
		return true
	}
	if ch != nil && ch.Unjoined {
		return false
	}
	s.removeChannel(name)
	return s.clientReady()
}

// serverKick handles being kicked: rejoin by timer when unattended, drop
// the channel when the client saw it happen.
func (s *Session) serverKick(m *irc.Message) bool {
	name := m.Param(0)
	victim := m.Param(1)
	ch := s.findChannel(name)
	if ch == nil {
		return true
	}
	if !irc.Equal(victim, s.nickname) {
		s.logWrite(ch.Log, logfile.EventKick, ch.Name, sourceString(m), "kicked "+victim)
		return true
	}

	s.logWrite(ch.Log, logfile.EventKick, ch.Name, sourceString(m), "kicked you: "+m.Text())
	if s.clientReady() {
		s.removeChannel(name)
		return true
	}
	s.scheduleRejoin(ch)
	return false
}

func (s *Session) serverQuit(m *irc.Message) {
	s.logWrite(s.privateLog, logfile.EventQuit, "", sourceString(m), "quit: "+m.Text())
}

// serverMode tracks user modes and the channel key parameter so a
// reconnect can rejoin with it.
func (s *Session) serverMode(m *irc.Message) {
	target := m.Param(0)
	if irc.Equal(target, s.nickname) {
		s.applyUserModes(m.Param(1))
		return
	}
	ch := s.findChannel(target)
	if ch == nil {
		return
	}
	s.logWrite(ch.Log, logfile.EventMode, ch.Name, sourceString(m), strings.Join(m.Params[1:], " "))
	s.applyChannelModes(ch, m.Params[1:])
}

// applyUserModes merges a +x-y style change into the session mode set.
func (s *Session) applyUserModes(change string) {
	adding := true
	for _, c := range change {
		switch c {
		case '+':
			adding = true
		case '-':
			adding = false
		default:
			if adding {
				s.modes = addModes(s.modes, string(c))
			} else {
				s.modes = dropModes(s.modes, string(c))
			}
		}
	}
}

// channel mode letters that consume a parameter
const paramModes = "OovbeIlk"

// applyChannelModes walks a channel mode change, tracking only the key.
func (s *Session) applyChannelModes(ch *Channel, params []string) {
	if len(params) == 0 {
		return
	}
	adding := true
	arg := 1
	for _, c := range params[0] {
		switch c {
		case '+':
			adding = true
		case '-':
			adding = false
		case 'k':
			if adding {
				if arg < len(params) {
					ch.Key = params[arg]
				}
			} else {
				ch.Key = ""
			}
			arg++
		default:
			if strings.ContainsRune(paramModes, c) {
				arg++
			}
		}
	}
}

func (s *Session) serverTopic(m *irc.Message) {
	if ch := s.findChannel(m.Param(0)); ch != nil {
		s.logWrite(ch.Log, logfile.EventTopic, ch.Name, sourceString(m), "changed the topic to: "+m.Text())
	}
}

// serverMessage logs, rewrites embedded DCC offers, answers CTCPs while
// detached, and decides whether to forward.
func (s *Session) serverMessage(m *irc.Message, line string) (string, bool) {
	target := m.Param(0)
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
		s.logWrite(dest, event, destName, sourceString(m), plain)
	}

	if len(payloads) == 0 {
		return line, true
	}

	rewritten, forward := s.rewriteCTCPIn(m, plain, payloads, dest, destName)
	return rewritten, forward
}

