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

// Package bouncer implements the proxy engine: the client listener and
// session registry, and the per-session dual state machine that holds
// one client leg and one upstream server leg, logging and replaying
// traffic across detach and reattach.
package bouncer

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/bitcanon/ircbounce/pkg/config"
	"github.com/bitcanon/ircbounce/pkg/dcc"
	"github.com/bitcanon/ircbounce/pkg/highlight"
	"github.com/bitcanon/ircbounce/pkg/irc"
	"github.com/bitcanon/ircbounce/pkg/logfile"
	"github.com/bitcanon/ircbounce/pkg/metrics"
)

// bouncerName is the prefix used on synthetic messages from the bouncer
// itself.
const bouncerName = "ircbounce"

// nickGuardTime is the retry interval for restoring a kept nickname.
const nickGuardTime = 60 * time.Second

// resumeTimeout bounds how long a DCC RESUME offer waits for its ACCEPT.
const resumeTimeout = 30 * time.Second

// Timer names. One pending instance per name per session.
const (
	tmrAuth     = "client_auth"
	tmrRecon    = "server_recon"
	tmrPing     = "server_ping"
	tmrStoned   = "server_stoned"
	tmrAntiIdle = "server_antiidle"
	tmrNickKeep = "nick_keep"
)

type clientStatus struct {
	connected   bool
	gotPass     bool
	gotNick     bool
	gotUser     bool
	authed      bool
	sentWelcome bool
}

func (c clientStatus) registered() bool { return c.gotPass && c.gotNick && c.gotUser }
func (c clientStatus) ready() bool {
	return c.connected && c.registered() && c.authed && c.sentWelcome
}

type serverStatus struct {
	created    bool
	connected  bool
	introduced bool
	gotWelcome bool
	seen       bool
}

func (s serverStatus) active() bool {
	return s.created && s.connected && s.introduced && s.gotWelcome
}

// Channel is one channel the session believes it occupies. Inactive
// means the server currently disagrees (kick, failed rejoin) and a
// rejoin timer is working on it; Unjoined means we left at detach and
// rejoin on attach.
type Channel struct {
	Name     string
	Key      string
	Inactive bool
	Unjoined bool
	Log      *logfile.LogFile
}

// Session is one proxy session: at most one client leg, at most one
// server leg, and the state machine between them. All mutation happens
// on the run loop goroutine.
type Session struct {
	id  string
	srv *Server
	log *log.Entry

	events chan event
	ctx    context.Context
	cancel context.CancelFunc
	dead   bool

	client *lineConn
	server *lineConn

	cstat clientStatus
	sstat serverStatus

	class      *config.Class
	timers     *timerSet
	dieOnClose bool
	persist    bool
	startTime  time.Time
	recallHL   *highlight.Highlighter

	// identity
	nickname    string
	setNickname string
	oldNickname string
	username    string
	hostname    string
	realname    string
	modes       string
	awayMessage string

	// pre-auth registration
	password   string
	clientAddr string
	clientHost string

	// server view
	serverName     string
	serverVersion  string
	serverUmodes   string
	serverCmodes   string
	supported      []string
	welcome        []string // numerics 001-004 captured verbatim
	currentServer  config.ServerSpec
	nextServer     int
	attempts       int
	passwordSent   bool
	expectingNick  bool
	allowMOTD      bool
	allowPong      bool
	squelch411     bool
	squelchModes   map[string]bool
	pendingRejoins map[string]bool

	channels   []*Channel
	logDir     string
	serverLog  *logfile.LogFile
	privateLog *logfile.LogFile
	logEvents  logfile.EventSet

	proxies []*dcc.Proxy
	resumes map[string]*resumeRequest
}

// resumeRequest is a pending DCC SEND resume negotiation, keyed by
// "sourcenick:port" and expired by timer.
type resumeRequest struct {
	offer       *irc.DCCOffer
	source      *irc.Prefix
	capturePath string
	rejectMsg   string
	offset      int64
}

// newSession wraps a freshly accepted client connection. dieOnClose is
// set for inherited (inetd) sockets, which have no listener to return to.
func newSession(srv *Server, conn net.Conn, dieOnClose bool) *Session {
	ctx, cancel := context.WithCancel(srv.ctx)
	s := &Session{
		id:             uuid.NewString()[:8],
		srv:            srv,
		events:         make(chan event, 64),
		ctx:            ctx,
		cancel:         cancel,
		dieOnClose:     dieOnClose,
		startTime:      time.Now(),
		squelchModes:   make(map[string]bool),
		pendingRejoins: make(map[string]bool),
		resumes:        make(map[string]*resumeRequest),
	}
	s.log = log.WithField("session", s.id)
	s.timers = newTimerSet(func(name string) { s.post(evTimer{name: name}) })

	s.client = newLineConn(conn, s.post)
	s.cstat.connected = true
	if host, _, err := net.SplitHostPort(conn.RemoteAddr().String()); err == nil {
		s.clientAddr = host
		s.clientHost = host
	}
	s.resolveClientHost()

	timeout := time.Duration(srv.cfg().ClientTimeout) * time.Second
	s.timers.Add(tmrAuth, timeout)

	srv.add(s)
	metrics.Sessions.Inc()
	s.log.WithField("addr", s.clientAddr).Info("client connected")

	go s.run()
	return s
}

// post delivers an event to the loop; drops it if the session is gone.
func (s *Session) post(ev event) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

func (s *Session) run() {
	for {
		select {
		case <-s.ctx.Done():
			s.teardown()
			return
		case ev := <-s.events:
			s.handle(ev)
			if s.dead {
				s.teardown()
				return
			}
		}
	}
}

func (s *Session) handle(ev event) {
	switch ev := ev.(type) {
	case evLine:
		switch ev.from {
		case s.client:
			s.handleClientLine(ev.line)
		case s.server:
			s.handleServerLine(ev.line)
		}
	case evGone:
		switch ev.from {
		case s.client:
			s.clientLost()
		case s.server:
			s.serverLost("Connection to server lost")
		}
	case evTimer:
		s.handleTimer(ev.name)
	case evResolved:
		ev.fn()
	case evServerConn:
		s.serverDialed(ev.conn, ev.err)
	case evControl:
		ev.fn()
	}
}

// die marks the session for teardown at the end of the current event.
func (s *Session) die() { s.dead = true }

func (s *Session) teardown() {
	s.cancel()
	s.timers.DelAll()
	for _, p := range s.proxies {
		p.Close()
	}
	if s.client != nil {
		s.client.close()
	}
	if s.server != nil {
		s.server.close()
	}
	s.closeLogs()
	s.srv.remove(s)
	metrics.Sessions.Dec()
	s.log.Info("session ended")
}

// --- resolver ---

// resolveClientHost reverse-resolves the client address for host-pattern
// auth checks. The reply runs on the loop goroutine and checks nothing
// stale: the session context bounds the lookup.
func (s *Session) resolveClientHost() {
	addr := s.clientAddr
	if addr == "" {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, time.Duration(s.srv.cfg().DNSTimeout)*time.Second)
	go func() {
		defer cancel()
		names, err := net.DefaultResolver.LookupAddr(ctx, addr)
		if err != nil || len(names) == 0 {
			return
		}
		host := strings.TrimSuffix(names[0], ".")
		s.post(evResolved{fn: func() { s.clientHost = host }})
	}()
}

// --- output helpers ---

func (s *Session) sendClient(line string) {
	if s.client != nil {
		s.client.send(line)
		metrics.Lines.WithLabelValues(metrics.DirServerToClient).Inc()
	}
}

func (s *Session) sendServer(line string) {
	if s.server != nil {
		s.server.send(line)
		metrics.Lines.WithLabelValues(metrics.DirClientToServer).Inc()
	}
}

func (s *Session) sendServerUrgent(line string) {
	if s.server != nil {
		s.server.sendUrgent(line)
	}
}

// notice sends a bouncer-originated NOTICE to the client.
func (s *Session) notice(text string) {
	target := s.nickname
	if target == "" {
		target = "*"
	}
	s.sendClient(fmt.Sprintf(":%s NOTICE %s :%s", bouncerName, target, text))
}

// numeric sends a server-style numeric reply to the client.
func (s *Session) numeric(code string, rest string) {
	origin := s.serverName
	if origin == "" {
		origin = bouncerName
	}
	target := s.nickname
	if target == "" {
		target = "*"
	}
	s.sendClient(fmt.Sprintf(":%s %s %s %s", origin, code, target, rest))
}

// selfPrefix is the prefix the client expects on its own echoed commands.
func (s *Session) selfPrefix() string {
	return fmt.Sprintf("%s!%s@%s", s.nickname, s.username, s.hostname)
}

// --- registration and auth ---

// handleTimer dispatches named timer fires.
func (s *Session) handleTimer(name string) {
	switch {
	case name == tmrAuth:
		if !s.cstat.authed {
			s.notice("Authentication timeout")
			s.errorClient("Closing Link: authentication timeout")
			s.die()
		}
	case name == tmrRecon:
		s.reconnect()
	case name == tmrPing:
		s.serverPing()
	case name == tmrStoned:
		s.serverStoned()
	case name == tmrAntiIdle:
		s.antiIdle()
	case name == tmrNickKeep:
		s.nickKeepFire()
	case strings.HasPrefix(name, "rejoin "):
		s.rejoinFire(strings.TrimPrefix(name, "rejoin "))
	case strings.HasPrefix(name, "resume "):
		s.resumeExpire(strings.TrimPrefix(name, "resume "))
	}
}

// errorClient sends an ERROR line and is always forwarded while a client
// socket exists.
func (s *Session) errorClient(text string) {
	if s.client != nil {
		s.client.send("ERROR :" + text)
	}
}

// authenticate runs once PASS, NICK and USER have all arrived: bind the
// first connection class whose password and host patterns admit us.
func (s *Session) authenticate() {
	cfg := s.srv.cfg()
	for i := range cfg.Classes {
		cl := &cfg.Classes[i]
		if !config.VerifyPassword(s.password, cl.Password) {
			continue
		}
		if len(cl.From) > 0 && !irc.Masks(cl.From).MatchAny(s.clientAddr, s.clientHost) {
			continue
		}
		s.bindClass(cl)
		return
	}
	s.numeric(irc.ErrPasswdMismatch, ":Password incorrect")
	s.errorClient("Permission Denied")
	s.die()
}

func (s *Session) bindClass(cl *config.Class) {
	if existing := s.srv.sessionForClass(cl); existing != nil && existing != s {
		s.handoffTo(existing)
		return
	}

	s.class = cl
	s.cstat.authed = true
	if s.hostname == "" {
		s.hostname = s.clientHost
	}
	if s.hostname == "" {
		s.hostname = "localhost"
	}
	s.timers.Del(tmrAuth)
	s.srv.bind(cl, s)
	s.recallHL = highlight.New(cl.RecallHighlight)
	s.setupLogs()
	s.log = s.log.WithField("class", s.classLabel())
	s.log.WithField("nick", s.nickname).Info("client authenticated")

	if bool(*cl.ServerAutoconnect) {
		s.connectServer()
	}
	s.sendWelcome()
	metrics.Attaches.Inc()
}

// rebindClass swaps the class after a configuration reload. Must run
// on the session loop.
func (s *Session) rebindClass(cl *config.Class) {
	s.class = cl
	s.recallHL = highlight.New(cl.RecallHighlight)
}

func (s *Session) classLabel() string {
	if s.class == nil {
		return ""
	}
	if s.class.Name != "" {
		return s.class.Name
	}
	return "default"
}

// handoffTo gives this session's client socket to the existing session
// for that class, evicting its current client. This session then dies
// without touching the connection.
func (s *Session) handoffTo(existing *Session) {
	client := s.client
	nick, user, real := s.setNickname, s.username, s.realname
	dieOnClose := s.dieOnClose
	s.client = nil
	s.die()

	existing.post(evControl{fn: func() {
		existing.adoptClient(client, nick, user, real, dieOnClose)
	}})
}

// adoptClient attaches a new client connection to this session's live
// server state. Runs on this session's loop. Evicting a client that is
// still attached needs the class's consent; reattaching to a detached
// session always works.
func (s *Session) adoptClient(client *lineConn, nick, user, realname string, dieOnClose bool) {
	if s.client != nil {
		if !bool(s.class.DisconnectExistingUser) {
			client.send("ERROR :Already connected")
			client.close()
			return
		}
		s.errorClient("Closing Link: new client attached")
		s.client.close()
	}
	s.client = client
	client.retarget(s.post)
	s.cstat.connected = true
	s.cstat.authed = true
	s.cstat.gotPass = true
	s.cstat.gotNick = true
	s.cstat.gotUser = true
	s.cstat.sentWelcome = false
	s.dieOnClose = s.dieOnClose || dieOnClose
	if user != "" {
		s.username = irc.SanitizeUser(user)
	}
	if realname != "" {
		s.realname = realname
	}
	s.attach(nick)
	metrics.Attaches.Inc()
}

// --- attach / detach ---

// attach replays state to a newly attached client: nickname repair,
// old-nickname restoration, nickserv, away clearing, channel rejoin,
// welcome and log recall.
func (s *Session) attach(clientNick string) {
	s.log.Info("client attached")

	if clientNick != "" && !irc.Equal(clientNick, s.nickname) && s.nickname != "" {
		// correct the client's idea of its own nickname
		s.sendClient(fmt.Sprintf(":%s!%s@%s NICK :%s", clientNick, s.username, s.hostname, s.nickname))
	}
	if s.oldNickname != "" && !irc.Equal(s.oldNickname, s.nickname) {
		s.changeNick(s.oldNickname)
	}
	s.oldNickname = ""

	if s.class.NickservPassword != "" {
		s.sendServer("PRIVMSG NICKSERV :IDENTIFY " + s.class.NickservPassword)
	}
	if s.awayMessage != "" {
		s.sendServer("AWAY")
		s.awayMessage = ""
	}

	for _, ch := range s.channels {
		if ch.Unjoined && bool(s.class.ChannelRejoinOnAttach || s.class.ChannelLeaveOnDetach) {
			s.joinChannel(ch)
		}
	}
	if msg := s.class.AttachMessage; msg != "" {
		s.broadcastToChannels(msg)
	}

	s.sendWelcome()
}

// sendWelcome replays the captured 001-004 numerics, 005 lines, channel
// state and per-context recall to the client.
func (s *Session) sendWelcome() {
	if s.cstat.sentWelcome || s.client == nil || !s.cstat.authed {
		return
	}
	if !s.sstat.active() {
		// welcome follows once the upstream registration completes
		return
	}
	s.cstat.sentWelcome = true

	for _, line := range s.welcome {
		s.sendClient(line)
	}
	for _, line := range s.supported {
		s.sendClient(line)
	}
	s.sendMOTD()

	if s.modes != "" {
		s.sendClient(fmt.Sprintf(":%s MODE %s +%s", s.selfPrefix(), s.nickname, s.modes))
	}

	for _, ch := range s.channels {
		if ch.Inactive || ch.Unjoined {
			continue
		}
		s.sendClient(fmt.Sprintf(":%s JOIN :%s", s.selfPrefix(), ch.Name))
		s.sendServer("TOPIC " + ch.Name)
		s.sendServer("NAMES " + ch.Name)
		s.recallTo(ch.Log, ch.Name, *s.class.ChanLog.Recall, bool(s.class.ChanLog.Always))
	}
	s.recallTo(s.serverLog, s.nickname, *s.class.ServerLog.Recall, bool(s.class.ServerLog.Always))
	s.recallTo(s.privateLog, s.nickname, *s.class.PrivateLog.Recall, bool(s.class.PrivateLog.Always))
}

// clientLost runs when the client leg drops without a QUIT.
func (s *Session) clientLost() {
	if s.client != nil {
		s.client.close()
		s.client = nil
	}
	s.cstat = clientStatus{}

	if !s.sstat.active() || s.class == nil || s.dieOnClose ||
		(!s.persist && bool(s.class.DisconnectOnDetach)) {
		if s.server != nil && s.class != nil {
			s.quitServer(s.quitMessage())
		}
		s.die()
		return
	}
	s.detach()
}

// detach keeps the server leg alive and puts the session into unattended
// mode.
func (s *Session) detach() {
	s.log.Info("client detached")
	metrics.Detaches.Inc()

	s.logWrite(s.serverLog, logfile.EventClient, "", "", "You disconnected")

	if drop := s.class.DropModes; drop != "" {
		if kept := dropModes(s.modes, drop); kept != s.modes {
			removed := diffModes(s.modes, kept)
			s.modes = kept
			s.sendServer(fmt.Sprintf("MODE %s -%s", s.nickname, removed))
		}
	}

	if msg := s.class.DetachMessage; msg != "" {
		s.broadcastToChannels(msg)
	}

	if s.class.ChannelLeaveOnDetach {
		for _, ch := range s.channels {
			if ch.Inactive || ch.Unjoined {
				continue
			}
			s.sendServer("PART " + ch.Name)
			ch.Unjoined = true
		}
	}

	if s.awayMessage == "" {
		if msg := s.class.AwayMessage; msg != "" {
			s.awayMessage = msg
			s.sendServer("AWAY :" + msg)
		}
	}

	if pat := s.class.DetachNickname; pat != "" {
		detachNick := strings.ReplaceAll(pat, "*", s.nickname)
		if len(detachNick) > maxNickLen {
			detachNick = detachNick[:maxNickLen]
		}
		s.oldNickname = s.setNickname
		s.changeNick(detachNick)
	}

	s.openAlwaysLogs()
}

// quitMessage picks the QUIT text for server teardown.
func (s *Session) quitMessage() string {
	if s.class != nil && s.class.QuitMessage != "" {
		return s.class.QuitMessage
	}
	return "Leaving"
}

func (s *Session) quitServer(message string) {
	if s.server == nil {
		return
	}
	s.sendServer("QUIT :" + message)
	s.server.close()
	s.server = nil
	s.sstat = serverStatus{}
	s.delServerTimers()
}

// broadcastToChannels sends a message to every live channel, rendering a
// leading "/me " as a CTCP ACTION.
func (s *Session) broadcastToChannels(msg string) {
	text := msg
	if strings.HasPrefix(msg, "/me ") {
		text = irc.EncodeCTCP("ACTION", strings.TrimPrefix(msg, "/me "))
	}
	for _, ch := range s.channels {
		if ch.Inactive || ch.Unjoined {
			continue
		}
		s.sendServer(fmt.Sprintf("PRIVMSG %s :%s", ch.Name, text))
	}
}

// --- server connection ---

// connectServer resolves and dials the class server at the cursor.
func (s *Session) connectServer() {
	if s.server != nil || s.class == nil {
		return
	}
	if len(s.class.Servers) == 0 {
		s.notice("No servers configured")
		s.die()
		return
	}
	spec, err := config.ParseServerSpec(s.class.Servers[s.nextServer%len(s.class.Servers)], s.class.ServerPort)
	if err != nil {
		s.scheduleReconnect()
		return
	}
	s.currentServer = spec
	s.sstat = serverStatus{seen: s.sstat.seen}
	s.sstat.created = true
	s.attempts++
	metrics.Reconnects.Inc()
	s.log.WithField("server", spec.Addr()).Info("connecting to server")
	s.notice("Connecting to " + spec.Addr())

	dialer := net.Dialer{Timeout: time.Duration(s.srv.cfg().ConnectTimeout) * time.Second}
	if la := s.class.LocalAddress; la != "" {
		if ip := net.ParseIP(la); ip != nil {
			dialer.LocalAddr = &net.TCPAddr{IP: ip}
		}
	}
	ctx := s.ctx
	go func() {
		conn, err := dialer.DialContext(ctx, "tcp", spec.Addr())
		s.post(evServerConn{conn: conn, err: err})
	}()
}

// serverDialed handles the dial outcome on the loop goroutine.
func (s *Session) serverDialed(conn net.Conn, err error) {
	if err != nil {
		s.log.WithError(err).Warn("server connection failed")
		s.notice("Connection failed: " + err.Error())
		s.scheduleReconnect()
		return
	}
	if s.dead || s.server != nil {
		conn.Close()
		return
	}

	s.server = newLineConn(conn, s.post)
	s.sstat.connected = true
	if s.class.ServerThrottle != "" {
		if bytes, period, err := config.ParseThrottle(s.class.ServerThrottle); err == nil {
			s.server.setThrottle(bytes, time.Duration(period)*time.Second)
		}
	}
	if tcp, ok := conn.(*net.TCPConn); ok && bool(s.class.ServerKeepalive) {
		tcp.SetKeepAlive(true)
	}

	s.introduce()
}

// introduce sends the registration commands upstream.
func (s *Session) introduce() {
	if s.currentServer.Password != "" {
		s.sendServer("PASS " + s.currentServer.Password)
		s.passwordSent = true
	}
	nick := s.nickname
	if nick == "" {
		nick = s.setNickname
	}
	if nick == "" {
		nick = fallbackNick
	}
	s.nickname = nick
	user := s.username
	if user == "" {
		user = "user"
	}
	real := s.realname
	if real == "" {
		real = user
	}
	s.sendServer("NICK " + nick)
	s.sendServer(fmt.Sprintf("USER %s 0 * :%s", user, real))
	s.sstat.introduced = true
}

// gotWelcome runs on numeric 004: the upstream registration is complete.
func (s *Session) gotWelcome() {
	s.sstat.gotWelcome = true
	s.sstat.seen = true
	s.attempts = 0

	s.log.WithField("server", s.serverName).Info("connected to server")

	if modes := s.class.InitialModes; modes != "" && s.modes == "" {
		s.sendServer(fmt.Sprintf("MODE %s +%s", s.nickname, strings.TrimPrefix(modes, "+")))
	} else if s.modes != "" {
		s.sendServer(fmt.Sprintf("MODE %s +%s", s.nickname, s.modes))
	}
	if s.awayMessage != "" {
		s.sendServer("AWAY :" + s.awayMessage)
	}
	if s.class.NickservPassword != "" {
		s.sendServer("PRIVMSG NICKSERV :IDENTIFY " + s.class.NickservPassword)
	}

	// first connection: join the configured channel list
	if len(s.channels) == 0 {
		for _, entry := range s.class.Join {
			name, key := config.ParseJoin(entry)
			if name == "" {
				continue
			}
			s.addChannel(name, key)
		}
	}
	for _, ch := range s.channels {
		if ch.Unjoined && s.client == nil {
			continue
		}
		s.joinChannel(ch)
	}

	s.armServerTimers()
	s.sendWelcome()
}

func (s *Session) armServerTimers() {
	ping := *s.class.ServerPingTimeout
	if ping > 0 {
		s.timers.Add(tmrPing, time.Duration(ping)*time.Second/2)
		s.timers.Add(tmrStoned, time.Duration(ping)*time.Second)
	}
	if idle := s.class.IdleMaxtime; idle > 0 {
		s.timers.Add(tmrAntiIdle, time.Duration(idle)*time.Second)
	}
	if s.class.NickKeep {
		s.timers.Add(tmrNickKeep, nickGuardTime)
	}
}

func (s *Session) delServerTimers() {
	s.timers.Del(tmrPing)
	s.timers.Del(tmrStoned)
	s.timers.Del(tmrAntiIdle)
	s.timers.Del(tmrRecon)
	s.timers.Del(tmrNickKeep)
}

func (s *Session) serverPing() {
	if s.sstat.active() {
		s.sendServer("PING :" + s.serverName)
	}
	ping := *s.class.ServerPingTimeout
	if ping > 0 {
		s.timers.Add(tmrPing, time.Duration(ping)*time.Second/2)
	}
}

func (s *Session) serverStoned() {
	s.log.Warn("server stoned, reconnecting")
	s.notice("Server is not responding to PING, reconnecting")
	s.serverLost("Server stoned")
}

func (s *Session) antiIdle() {
	if s.sstat.active() {
		s.sendServer("PRIVMSG")
		s.squelch411 = true
	}
	if idle := s.class.IdleMaxtime; idle > 0 {
		s.timers.Add(tmrAntiIdle, time.Duration(idle)*time.Second)
	}
}

func (s *Session) nickKeepFire() {
	if s.sstat.active() && s.setNickname != "" && !irc.Equal(s.nickname, s.setNickname) {
		s.changeNick(s.setNickname)
	}
	if s.class.NickKeep {
		s.timers.Add(tmrNickKeep, nickGuardTime)
	}
}

func (s *Session) changeNick(nick string) {
	s.expectingNick = true
	s.sendServer("NICK " + nick)
}

// serverLost handles loss of the upstream: synthesize PARTs so the
// client is not confused by post-reconnect JOINs, then arm the retry.
func (s *Session) serverLost(reason string) {
	if s.server != nil {
		s.server.close()
		s.server = nil
	}
	wasActive := s.sstat.active()
	s.sstat = serverStatus{seen: s.sstat.seen}
	s.delServerTimers()
	s.passwordSent = false

	if wasActive {
		s.log.WithField("reason", reason).Warn("lost server connection")
		s.logWrite(s.serverLog, logfile.EventError, "", "", "Lost connection to server: "+reason)
		for _, ch := range s.channels {
			if ch.Inactive || ch.Unjoined {
				continue
			}
			s.logWrite(ch.Log, logfile.EventError, ch.Name, "", "Lost connection to server")
			if s.client != nil && s.cstat.ready() {
				s.sendClient(fmt.Sprintf(":%s PART %s :Lost connection to server", s.selfPrefix(), ch.Name))
			}
		}
		if s.client != nil {
			s.notice("Lost connection to server: " + reason)
		}
	}
	s.scheduleReconnect()
}

// scheduleReconnect arms the retry timer; a pending one is left alone.
func (s *Session) scheduleReconnect() {
	if s.class == nil || s.dead {
		return
	}
	s.timers.Add(tmrRecon, time.Duration(s.class.ServerRetry)*time.Second)
}

// reconnect advances the server cursor and applies the attempt limits.
// Every dial counts as one attempt, so a short server list is cycled
// rather than exhausted before the limit trips.
func (s *Session) reconnect() {
	if s.server != nil || s.class == nil {
		return
	}
	s.nextServer++
	if s.nextServer >= len(s.class.Servers) {
		s.nextServer = 0
	}

	if max := s.class.ServerMaxAttempts; max > 0 && s.attempts >= max {
		s.giveUp("Maximum connection attempts exceeded")
		return
	}
	if max := *s.class.ServerMaxInitAttempts; max > 0 && !s.sstat.seen && s.attempts >= max {
		s.giveUp("Maximum initial connection attempts exceeded")
		return
	}
	s.connectServer()
}

func (s *Session) giveUp(reason string) {
	s.log.WithField("reason", reason).Warn("giving up on server")
	s.notice(reason)
	s.errorClient(reason)
	s.die()
}

// --- channels ---

func (s *Session) findChannel(name string) *Channel {
	for _, ch := range s.channels {
		if irc.Equal(ch.Name, name) {
			return ch
		}
	}
	return nil
}

func (s *Session) addChannel(name, key string) *Channel {
	if ch := s.findChannel(name); ch != nil {
		if key != "" {
			ch.Key = key
		}
		return ch
	}
	ch := &Channel{Name: name, Key: key}
	if bool(*s.class.ChanLog.Enabled) {
		ch.Log = logfile.New(filepath.Join(s.logDir, "chan-"+safeLogName(name)+".log"), s.class.ChanLog.MaxSize)
	}
	s.channels = append(s.channels, ch)
	return ch
}

func (s *Session) removeChannel(name string) {
	for i, ch := range s.channels {
		if irc.Equal(ch.Name, name) {
			if ch.Log != nil {
				ch.Log.Close()
			}
			s.timers.Del("rejoin " + irc.ToLower(ch.Name))
			s.channels = append(s.channels[:i], s.channels[i+1:]...)
			return
		}
	}
}

// joinChannel issues the upstream JOIN with the stored key.
func (s *Session) joinChannel(ch *Channel) {
	if ch.Key != "" {
		s.sendServer(fmt.Sprintf("JOIN %s %s", ch.Name, ch.Key))
	} else {
		s.sendServer("JOIN " + ch.Name)
	}
}

// rejoinFire retries an inactive channel.
func (s *Session) rejoinFire(folded string) {
	for _, ch := range s.channels {
		if irc.ToLower(ch.Name) == folded && ch.Inactive {
			s.joinChannel(ch)
			return
		}
	}
}

// scheduleRejoin arms a channel's rejoin timer per class policy.
func (s *Session) scheduleRejoin(ch *Channel) {
	delay := *s.class.ChannelRejoin
	if delay < 0 {
		return
	}
	ch.Inactive = true
	s.timers.Add("rejoin "+irc.ToLower(ch.Name), time.Duration(delay)*time.Second)
}

// --- logging ---

// setupLogs creates the session log directory and the server/private
// logs.
func (s *Session) setupLogs() {
	cl := s.class
	if cl.LogDir != "" {
		s.logDir = filepath.Join(cl.LogDir, safeLogName(s.classLabel()))
	} else {
		dir, err := os.MkdirTemp("", "ircbounce-")
		if err != nil {
			s.log.WithError(err).Error("cannot create log directory")
			return
		}
		s.logDir = dir
	}
	if err := os.MkdirAll(s.logDir, 0700); err != nil {
		s.log.WithError(err).Error("cannot create log directory")
		return
	}

	set, err := logfile.ParseEventSet(cl.LogEvents)
	if err != nil {
		set, _ = logfile.ParseEventSet("all")
	}
	s.logEvents = set

	if bool(*cl.ServerLog.Enabled) {
		s.serverLog = logfile.New(filepath.Join(s.logDir, "server.log"), cl.ServerLog.MaxSize)
	}
	if bool(*cl.PrivateLog.Enabled) {
		s.privateLog = logfile.New(filepath.Join(s.logDir, "private.log"), cl.PrivateLog.MaxSize)
	}
}

// openAlwaysLogs makes sure always-off contexts have open files while
// detached.
func (s *Session) openAlwaysLogs() {
	for _, l := range []*logfile.LogFile{s.serverLog, s.privateLog} {
		if l != nil {
			l.Open()
		}
	}
	for _, ch := range s.channels {
		if ch.Log != nil {
			ch.Log.Open()
		}
	}
}

func (s *Session) closeLogs() {
	if s.serverLog != nil {
		s.serverLog.Close()
	}
	if s.privateLog != nil {
		s.privateLog.Close()
	}
	for _, ch := range s.channels {
		if ch.Log != nil {
			ch.Log.Close()
		}
	}
	if s.class != nil && s.class.LogDir == "" && s.logDir != "" {
		os.RemoveAll(s.logDir)
	}
}

// logWrite appends an entry if the context log exists and the event kind
// is selected.
func (s *Session) logWrite(l *logfile.LogFile, ev logfile.Event, dest, source, text string) {
	if l == nil || (s.logEvents != nil && !s.logEvents.Contains(ev)) {
		return
	}
	e := logfile.Entry{Time: time.Now(), Event: ev, Dest: dest, Source: source, Text: text}
	if err := l.Write(e); err != nil {
		s.log.WithError(err).Warn("log write failed")
	}
	if s.class != nil && s.class.LogProgram != "" {
		logfile.RunProgram(s.class.LogProgram, e)
	}
}

// recallTo replays a log to the client addressed to target. count -1
// means everything unless the context is always-on, in which case
// nothing automatic.
func (s *Session) recallTo(l *logfile.LogFile, target string, count int, always bool) {
	if l == nil || s.client == nil {
		return
	}
	if count == -1 && always {
		return
	}
	entries, err := l.Recall(count, nil)
	if err != nil {
		s.log.WithError(err).Warn("recall failed")
		return
	}
	now := time.Now()
	for _, e := range entries {
		s.deliverRecall(e, target, now)
	}
}

// deliverRecall renders one recalled entry: message kinds as synthetic
// client lines from the stored source, everything else as a bouncer
// NOTICE.
func (s *Session) deliverRecall(e logfile.Entry, target string, now time.Time) {
	stamp := ""
	if bool(*s.class.LogTimestamp) {
		if bool(*s.class.LogRelativeTime) {
			stamp = logfile.Timestamp(e.Time, now) + " "
		} else {
			stamp = e.Time.Format("[15:04] ")
		}
	}
	text := s.recallHL.Apply(target, e.Text)
	switch e.Event {
	case logfile.EventMessage:
		s.sendClient(fmt.Sprintf(":%s PRIVMSG %s :%s%s", e.Source, target, stamp, text))
	case logfile.EventNotice:
		s.sendClient(fmt.Sprintf(":%s NOTICE %s :%s%s", e.Source, target, stamp, text))
	case logfile.EventAction:
		s.sendClient(fmt.Sprintf(":%s PRIVMSG %s :%s", e.Source, target,
			irc.EncodeCTCP("ACTION", stamp+text)))
	case logfile.EventCTCP:
		s.sendClient(fmt.Sprintf(":%s PRIVMSG %s :%s", e.Source, target,
			irc.EncodeCTCP("CTCP", stamp+e.Text)))
	default:
		s.sendClient(fmt.Sprintf(":%s NOTICE %s :%s%s", bouncerName, target, stamp, e.Text))
	}
}

// --- mode arithmetic ---

// dropModes removes every letter of drop from modes.
func dropModes(modes, drop string) string {
	var sb strings.Builder
	for _, c := range modes {
		if !strings.ContainsRune(drop, c) {
			sb.WriteRune(c)
		}
	}
	return sb.String()
}

// diffModes returns the letters of old missing from kept.
func diffModes(old, kept string) string {
	var sb strings.Builder
	for _, c := range old {
		if !strings.ContainsRune(kept, c) {
			sb.WriteRune(c)
		}
	}
	return sb.String()
}

// addModes merges letters into a sorted mode set.
func addModes(modes, add string) string {
	set := map[rune]bool{}
	for _, c := range modes {
		set[c] = true
	}
	for _, c := range add {
		set[c] = true
	}
	out := make([]rune, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return string(out)
}

// safeLogName folds a channel or class name into a filesystem-safe token.
func safeLogName(name string) string {
	folded := irc.ToLower(name)
	var sb strings.Builder
	for i := 0; i < len(folded); i++ {
		c := folded[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '#' || c == '-' || c == '_' || c == '.' {
			sb.WriteByte(c)
		} else {
			sb.WriteByte('_')
		}
	}
	if sb.Len() == 0 {
		return "log"
	}
	return sb.String()
}
