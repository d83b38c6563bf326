package engine

import (
	"fmt"

	"github.com/becomeliminal/nim-graph/core"
)

// MessagesKey is the conversation channel every definition declares.
const MessagesKey = "messages"

// State is the named-field mapping threaded through a run.
type State map[string]any

// Update is a partial write returned by a node. Each key is merged into the
// state with the reducer declared for that channel.
type Update map[string]any

// Reducer merges an update value into the current channel value.
type Reducer func(current, update any) (any, error)

// replaceLast is an AppendTurns instruction to swap the final turn.
type replaceLast struct {
	turn core.Turn
}

// ReplaceLast tells AppendTurns to replace the last turn instead of appending.
// On an empty conversation it appends.
func ReplaceLast(t core.Turn) any {
	return replaceLast{turn: t}
}

// AppendTurns appends a core.Turn or []core.Turn to the conversation.
func AppendTurns(current, update any) (any, error) {
	turns, err := asTurns(current)
	if err != nil {
		return nil, err
	}
	out := core.CloneTurns(turns)
	switch u := update.(type) {
	case nil:
	case core.Turn:
		out = append(out, u)
	case []core.Turn:
		out = append(out, u...)
	case replaceLast:
		if len(out) == 0 {
			out = append(out, u.turn)
		} else {
			out[len(out)-1] = u.turn
		}
	default:
		return nil, fmt.Errorf("append turns: unsupported update %T", update)
	}
	return out, nil
}

// Overwrite replaces the channel value.
func Overwrite(_, update any) (any, error) {
	return update, nil
}

// AppendStrings appends a string or []string to a string list channel.
func AppendStrings(current, update any) (any, error) {
	var out []string
	switch c := current.(type) {
	case nil:
	case []string:
		out = append(out, c...)
	default:
		return nil, fmt.Errorf("append strings: channel holds %T", current)
	}
	switch u := update.(type) {
	case nil:
	case string:
		out = append(out, u)
	case []string:
		out = append(out, u...)
	default:
		return nil, fmt.Errorf("append strings: unsupported update %T", update)
	}
	return out, nil
}

func asTurns(v any) ([]core.Turn, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []core.Turn:
		return t, nil
	default:
		return nil, fmt.Errorf("append turns: channel holds %T", v)
	}
}

// Clone returns a copy of the state. Turn slices are copied so nodes can
// not alias the engine's conversation.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		switch tv := v.(type) {
		case []core.Turn:
			out[k] = core.CloneTurns(tv)
		case []string:
			out[k] = append([]string(nil), tv...)
		default:
			out[k] = v
		}
	}
	return out
}

// Messages returns the conversation held in the state.
func Messages(s State) []core.Turn {
	turns, _ := s[MessagesKey].([]core.Turn)
	return turns
}

// LastMessage returns the final turn of the conversation.
func LastMessage(s State) (core.Turn, bool) {
	turns := Messages(s)
	if len(turns) == 0 {
		return core.Turn{}, false
	}
	return turns[len(turns)-1], true
}

// String reads a string channel, or "" when unset.
func (s State) String(key string) string {
	v, _ := s[key].(string)
	return v
}

// Bool reads a bool channel, or false when unset.
func (s State) Bool(key string) bool {
	v, _ := s[key].(bool)
	return v
}

// Strings reads a string list channel.
func (s State) Strings(key string) []string {
	v, _ := s[key].([]string)
	return v
}
