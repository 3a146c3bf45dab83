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
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bitcanon/ircbounce/pkg/config"
	"github.com/bitcanon/ircbounce/pkg/dcc"
	"github.com/bitcanon/ircbounce/pkg/irc"
	"github.com/bitcanon/ircbounce/pkg/logfile"
)

// rewriteCTCPIn processes CTCP payloads arriving from the server: ACTION
// logging, DCC offer interception, and canned replies while detached. The
// text outside the payloads is preserved byte for byte.
func (s *Session) rewriteCTCPIn(m *irc.Message, plain string, payloads []irc.CTCP, dest *logfile.LogFile, destName string) (string, bool) {
	source := sourceString(m)

	text := m.Text()
	newText := irc.RewriteCTCP(text, func(c irc.CTCP) (string, bool) {
		switch c.Command {
		case "ACTION":
			s.logWrite(dest, logfile.EventAction, destName, source, c.Args)
			return ctcpBody(c), true

		case "DCC":
			return s.dccFromServer(c, m)

		default:
			s.logWrite(dest, logfile.EventCTCP, destName, source, strings.TrimSpace(c.Command+" "+c.Args))
			if s.client == nil && bool(*s.class.CTCPReplies) {
				s.ctcpReply(m.Source, c)
				return "", false
			}
			return ctcpBody(c), true
		}
	})

	return spliceTrailing(m.Raw, text, newText), newText != ""
}

// rewriteCTCPOut processes CTCP payloads in the client's PRIVMSG/NOTICE
// before forwarding upstream.
func (s *Session) rewriteCTCPOut(m *irc.Message, plain string, payloads []irc.CTCP, dest *logfile.LogFile, destName string) (string, bool) {
	text := m.Text()
	newText := irc.RewriteCTCP(text, func(c irc.CTCP) (string, bool) {
		switch c.Command {
		case "ACTION":
			s.logWrite(dest, logfile.EventAction, destName, s.selfPrefix(), c.Args)
			return ctcpBody(c), true

		case "DCC":
			return s.dccFromClient(c, m)

		default:
			return ctcpBody(c), true
		}
	})

	return spliceTrailing(m.Raw, text, newText), newText != ""
}

// ctcpBody renders a payload back into its undelimited wire body.
func ctcpBody(c irc.CTCP) string {
	if c.Args == "" {
		return c.Command
	}
	return c.Command + " " + c.Args
}

// spliceTrailing swaps the trailing text of a raw line for its rewritten
// form, leaving the rest of the line untouched.
func spliceTrailing(line, oldText, newText string) string {
	if oldText == newText {
		return line
	}
	if strings.HasSuffix(line, oldText) {
		return line[:len(line)-len(oldText)] + newText
	}
	return line
}

// --- incoming (server to client) ---

// dccFromServer dispatches one inbound DCC payload.
func (s *Session) dccFromServer(c irc.CTCP, m *irc.Message) (string, bool) {
	sub := ""
	if fields := strings.Fields(c.Args); len(fields) > 0 {
		sub = strings.ToUpper(fields[0])
	}

	switch sub {
	case irc.DCCChat, irc.DCCSend:
		offer, err := irc.ParseDCCOffer(c.Args)
		if err != nil {
			s.log.WithError(err).Debug("unparseable dcc offer")
			return ctcpBody(c), true
		}
		return s.dccIncomingOffer(offer, m.Source)

	case irc.DCCAccept:
		req, err := irc.ParseDCCResume(c.Args)
		if err != nil || m.Source == nil {
			return ctcpBody(c), true
		}
		key := resumeKey(m.Source.Name, req.Port)
		pending, ok := s.resumes[key]
		if !ok {
			return ctcpBody(c), true
		}
		delete(s.resumes, key)
		s.timers.Del("resume " + key)
		s.startCapture(pending.offer, pending.capturePath, req.Offset)
		return "", false
	}

	// RESUME and anything else negotiates directly with the client
	return ctcpBody(c), true
}

// dccIncomingOffer intercepts a DCC CHAT/SEND from the network: capture it,
// relay it through a local proxy, or drop it when neither applies.
func (s *Session) dccIncomingOffer(o *irc.DCCOffer, src *irc.Prefix) (string, bool) {
	cl := s.class
	if !cl.DCCProxyIncoming {
		return "DCC " + o.Args(), true
	}
	remote := s.dccRemote(o, cl.DCCTunnelIncoming)
	nick := ""
	if src != nil {
		nick = src.Name
	}

	if o.Kind == irc.DCCSend && cl.DCCCaptureDirectory != "" && (s.client == nil || bool(cl.DCCCaptureAlways)) {
		name := irc.SafeBasename(o.Filename)
		if cl.DCCCaptureWithNick && nick != "" {
			name = nick + "." + name
		}
		path := filepath.Join(cl.DCCCaptureDirectory, name)
		if fi, err := os.Stat(path); err == nil && fi.Size() > 0 {
			s.requestResume(o, nick, path, fi.Size())
			return "", false
		}
		s.startCapture(o, path, 0)
		return "", false
	}

	if s.client == nil {
		return "", false
	}

	typ := dcc.TypeChat
	if o.Kind == irc.DCCSend {
		typ = dcc.TypeSendSimple
		if cl.DCCSendFast {
			typ = dcc.TypeSendFast
		}
	}
	addr := visibleAddr(s.client)
	if addr == nil {
		return "", false
	}

	label := fmt.Sprintf("DCC %s from %s", o.Kind, nick)
	p, err := s.startProxy(dcc.Config{
		Type:       typ,
		RemoteAddr: remote,
		RejectMsg:  "DCC request timed out",
		OnReject: func(msg string) {
			s.post(evControl{fn: func() { s.notice(label + " failed: " + msg) }})
		},
	})
	if err != nil {
		s.log.WithError(err).Warn("dcc proxy setup failed")
		s.notice(label + " failed: " + err.Error())
		return "", false
	}

	o.Addr = addr
	o.Port = p.Port()
	return "DCC " + o.Args(), true
}

// requestResume asks the offering peer to resume at the existing file size
// and parks the offer until the matching ACCEPT or the timeout.
func (s *Session) requestResume(o *irc.DCCOffer, nick, path string, size int64) {
	if nick == "" {
		s.startCapture(o, path, 0)
		return
	}
	key := resumeKey(nick, o.Port)
	s.resumes[key] = &resumeRequest{
		offer:       o,
		source:      &irc.Prefix{Name: nick},
		capturePath: path,
		offset:      size,
	}
	req := irc.DCCResumeReq{Kind: irc.DCCResume, Filename: o.Filename, Port: o.Port, Offset: size}
	s.sendServer(fmt.Sprintf("PRIVMSG %s :%s", nick, irc.EncodeCTCP("DCC", req.Args())))
	s.timers.Add("resume "+key, resumeTimeout)
}

// resumeExpire handles a resume negotiation that never got its ACCEPT: the
// existing file is pushed aside and the transfer captured from scratch.
func (s *Session) resumeExpire(key string) {
	req, ok := s.resumes[key]
	if !ok {
		return
	}
	delete(s.resumes, key)
	if err := os.Rename(req.capturePath, dcc.UniqueName(req.capturePath)); err != nil {
		s.log.WithError(err).Warn("cannot set aside partial capture")
	}
	s.startCapture(req.offer, req.capturePath, 0)
}

// startCapture spins up a capture proxy for an inbound SEND.
func (s *Session) startCapture(o *irc.DCCOffer, path string, offset int64) {
	cl := s.class
	label := "DCC SEND of " + o.Filename
	_, err := s.startProxy(dcc.Config{
		Type:         dcc.TypeSendCapture,
		RemoteAddr:   s.dccRemote(o, cl.DCCTunnelIncoming),
		CapturePath:  path,
		CaptureMax:   cl.DCCCaptureMaxSize,
		ResumeOffset: offset,
		RejectMsg:    "Capture failed",
		OnReject: func(msg string) {
			s.post(evControl{fn: func() { s.notice(label + " failed: " + msg) }})
		},
	})
	if err != nil {
		s.log.WithError(err).Warn("dcc capture setup failed")
		s.notice(label + " failed: " + err.Error())
	}
}

// --- outgoing (client to server) ---

// dccFromClient intercepts a DCC offer the client is making to the network.
func (s *Session) dccFromClient(c irc.CTCP, m *irc.Message) (string, bool) {
	sub := ""
	if fields := strings.Fields(c.Args); len(fields) > 0 {
		sub = strings.ToUpper(fields[0])
	}
	if sub != irc.DCCChat && sub != irc.DCCSend {
		return ctcpBody(c), true
	}

	offer, err := irc.ParseDCCOffer(c.Args)
	if err != nil {
		s.log.WithError(err).Debug("unparseable dcc offer")
		return ctcpBody(c), true
	}

	cl := s.class
	if !cl.DCCProxyOutgoing {
		return ctcpBody(c), true
	}
	if !s.sstat.active() {
		return "", false
	}

	typ := dcc.TypeChat
	if offer.Kind == irc.DCCSend {
		typ = dcc.TypeSendSimple
		if cl.DCCSendFast {
			typ = dcc.TypeSendFast
		}
	}
	addr := visibleAddr(s.server)
	if addr == nil {
		s.rejectToClient(m.Param(0), offer)
		return "", false
	}

	target := m.Param(0)
	label := fmt.Sprintf("DCC %s to %s", offer.Kind, target)
	p, err := s.startProxy(dcc.Config{
		Type:       typ,
		RemoteAddr: s.dccRemote(offer, cl.DCCTunnelOutgoing),
		RejectMsg:  "DCC request timed out",
		OnReject: func(msg string) {
			s.post(evControl{fn: func() {
				s.notice(label + " failed: " + msg)
				s.rejectToClient(target, offer)
			}})
		},
	})
	if err != nil {
		s.log.WithError(err).Warn("dcc proxy setup failed")
		s.notice(label + " failed: " + err.Error())
		s.rejectToClient(target, offer)
		return "", false
	}

	offer.Addr = addr
	offer.Port = p.Port()
	return "DCC " + offer.Args(), true
}

// rejectToClient tells the client its offer went nowhere, as if the target
// had declined it.
func (s *Session) rejectToClient(target string, o *irc.DCCOffer) {
	if !bool(*s.class.DCCProxySendReject) || s.client == nil {
		return
	}
	args := "REJECT " + o.Kind + " " + o.Filename
	s.sendClient(fmt.Sprintf(":%s NOTICE %s :%s", target, s.nickname, irc.EncodeCTCP("DCC", args)))
}

// --- shared plumbing ---

// dccRemote resolves the peer endpoint of an offer, honoring a tunnel port
// substitution.
func (s *Session) dccRemote(o *irc.DCCOffer, tunnel int) string {
	if tunnel > 0 {
		return fmt.Sprintf("127.0.0.1:%d", tunnel)
	}
	return net.JoinHostPort(o.Addr.String(), strconv.Itoa(o.Port))
}

// startProxy fills in the class-wide proxy settings and tracks the proxy
// for session teardown.
func (s *Session) startProxy(cfg dcc.Config) (*dcc.Proxy, error) {
	cl := s.class
	if cl.DCCProxyPorts != "" {
		if lo, hi, err := config.ParsePortRange(cl.DCCProxyPorts); err == nil {
			cfg.PortLow, cfg.PortHigh = lo, hi
		}
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Duration(cl.DCCProxyTimeout) * time.Second
	}

	p, err := dcc.New(cfg)
	if err != nil {
		return nil, err
	}

	// drop finished proxies while we are here
	live := s.proxies[:0]
	for _, old := range s.proxies {
		select {
		case <-old.Done():
		default:
			live = append(live, old)
		}
	}
	s.proxies = append(live, p)
	return p, nil
}

// visibleAddr is the IPv4 address the other party can reach us on, taken
// from our side of an established socket.
func visibleAddr(conn *lineConn) net.IP {
	if conn == nil {
		return nil
	}
	tcp, ok := conn.localAddr().(*net.TCPAddr)
	if !ok {
		return nil
	}
	return tcp.IP.To4()
}

// resumeKey indexes a pending resume negotiation.
func resumeKey(nick string, port int) string {
	return irc.ToLower(nick) + ":" + strconv.Itoa(port)
}

// ctcpReply answers common CTCP queries on the client's behalf while it is
// detached.
func (s *Session) ctcpReply(src *irc.Prefix, c irc.CTCP) {
	if src == nil || src.Name == "" {
		return
	}
	var args string
	switch c.Command {
	case "PING", "ECHO":
		args = c.Args
	case "TIME":
		args = time.Now().Format(time.UnixDate)
	case "VERSION":
		args = bouncerName
	case "USERINFO", "FINGER":
		args = s.nickname + " (detached)"
	case "CLIENTINFO":
		args = "PING ECHO TIME VERSION USERINFO FINGER CLIENTINFO ACTION DCC"
	default:
		return
	}
	s.sendServer(fmt.Sprintf("NOTICE %s :%s", src.Name, irc.EncodeCTCP(c.Command, args)))
}
