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
package logfile

import (
	"fmt"
	"strings"
)

// Event is the kind tag of a log entry.
type Event string

const (
	EventMessage Event = "msg"
	EventNotice  Event = "notice"
	EventAction  Event = "action"
	EventCTCP    Event = "ctcp"
	EventJoin    Event = "join"
	EventPart    Event = "part"
	EventKick    Event = "kick"
	EventQuit    Event = "quit"
	EventNick    Event = "nick"
	EventMode    Event = "mode"
	EventTopic   Event = "topic"
	EventClient  Event = "client"
	EventServer  Event = "server"
	EventError   Event = "error"
)

var allEvents = []Event{
	EventMessage, EventNotice, EventAction, EventCTCP,
	EventJoin, EventPart, EventKick, EventQuit,
	EventNick, EventMode, EventTopic,
	EventClient, EventServer, EventError,
}

// IsMessage reports whether the event is delivered on recall as a
// synthetic client line rather than a bouncer NOTICE.
func (e Event) IsMessage() bool {
	switch e {
	case EventMessage, EventNotice, EventAction, EventCTCP:
		return true
	}
	return false
}

// EventSet selects which event kinds are logged.
type EventSet map[Event]bool

// ParseEventSet parses a comma list of "all", "none", "event" and
// "-event" terms, applied left to right.
func ParseEventSet(s string) (EventSet, error) {
	set := EventSet{}
	for _, term := range strings.Split(s, ",") {
		term = strings.ToLower(strings.TrimSpace(term))
		switch {
		case term == "":
		case term == "all":
			for _, e := range allEvents {
				set[e] = true
			}
		case term == "none":
			for e := range set {
				delete(set, e)
			}
		case strings.HasPrefix(term, "-"):
			e, err := eventByName(term[1:])
			if err != nil {
				return nil, err
			}
			delete(set, e)
		default:
			term = strings.TrimPrefix(term, "+")
			e, err := eventByName(term)
			if err != nil {
				return nil, err
			}
			set[e] = true
		}
	}
	return set, nil
}

func eventByName(name string) (Event, error) {
	for _, e := range allEvents {
		if string(e) == name {
			return e, nil
		}
	}
	return "", fmt.Errorf("logfile: unknown event %q", name)
}

// Contains reports whether the event kind is selected.
func (s EventSet) Contains(e Event) bool { return s[e] }
