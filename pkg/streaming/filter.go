package streaming

import (
	"net/url"
	"sort"
	"strings"

	"github.com/phenomenon0/capper-engine/pkg/registry"
)

// Filter is a client's view of its subscription. Empty Cappers or Games
// match every capper or game.
type Filter struct {
	Types   []EventType `json:"types"`
	Cappers []string    `json:"cappers,omitempty"`
	Games   []string    `json:"games,omitempty"`
}

// Request is a subscription change sent by a client:
//
//	{"action":"subscribe","types":["pick"],"cappers":["sharp"],"games":["g1"]}
//
// subscribe adds to each list, unsubscribe removes from it and reset
// returns to every event for every capper and game.
type Request struct {
	Action  string   `json:"action"`
	Types   []string `json:"types"`
	Cappers []string `json:"cappers"`
	Games   []string `json:"games"`
}

// subscription is the matching state behind a Filter. Capper names are
// compared by registry key so "Sharp " and "sharp" are the same capper.
type subscription struct {
	types   map[EventType]bool
	cappers map[string]bool
	games   map[string]bool
}

func newSubscription() *subscription {
	s := &subscription{}
	s.reset()
	return s
}

// subscriptionFromQuery reads ?types=pick,pass&capper=a&game=g1. Repeated or
// comma separated values both work.
func subscriptionFromQuery(q url.Values) *subscription {
	s := newSubscription()
	if types := splitValues(q["types"]); len(types) > 0 {
		s.types = make(map[EventType]bool)
		s.apply(Request{Action: "subscribe", Types: types})
	}
	s.apply(Request{Action: "subscribe", Cappers: splitValues(q["capper"]), Games: splitValues(q["game"])})
	return s
}

func (s *subscription) reset() {
	s.types = make(map[EventType]bool, len(allEvents))
	for _, t := range allEvents {
		s.types[t] = true
	}
	s.cappers = make(map[string]bool)
	s.games = make(map[string]bool)
}

// apply changes the subscription and reports whether the action was known.
// Unknown event types are ignored.
func (s *subscription) apply(req Request) bool {
	var on bool
	switch req.Action {
	case "subscribe":
		on = true
	case "unsubscribe":
	case "reset":
		s.reset()
		return true
	default:
		return false
	}

	set := func(m map[string]bool, k string) {
		if k == "" {
			return
		}
		if on {
			m[k] = true
		} else {
			delete(m, k)
		}
	}
	for _, t := range req.Types {
		if known(EventType(t)) {
			if on {
				s.types[EventType(t)] = true
			} else {
				delete(s.types, EventType(t))
			}
		}
	}
	for _, c := range req.Cappers {
		set(s.cappers, registry.Key(c))
	}
	for _, g := range req.Games {
		set(s.games, strings.TrimSpace(g))
	}
	return true
}

// matches reports whether the event passes the filter. Events that carry no
// capper or game (heartbeats, errors) pass those checks.
func (s *subscription) matches(ev Event) bool {
	if !s.types[ev.Type] {
		return false
	}
	if len(s.cappers) > 0 && ev.Capper != "" && !s.cappers[registry.Key(ev.Capper)] {
		return false
	}
	if len(s.games) > 0 && ev.GameID != "" && !s.games[ev.GameID] {
		return false
	}
	return true
}

func (s *subscription) filter() Filter {
	f := Filter{Cappers: sortedKeys(s.cappers), Games: sortedKeys(s.games)}
	for _, t := range allEvents {
		if s.types[t] {
			f.Types = append(f.Types, t)
		}
	}
	return f
}

func known(t EventType) bool {
	for _, e := range allEvents {
		if e == t {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func splitValues(vals []string) []string {
	var out []string
	for _, v := range vals {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
