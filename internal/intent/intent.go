// Package intent dispatches structured chat commands against an owner's persons and photos.
package intent

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Action string

const (
	ActionListPhotos   Action = "list_photos"
	ActionRenamePerson Action = "rename_person"
	ActionSendPhotos   Action = "send_photos"
	ActionCountPersons Action = "count_persons"
	ActionListPersons  Action = "list_persons"
	ActionUnknown      Action = "unknown"
)

// Intent is a closed set of commands; only the types in this file implement it.
type Intent interface {
	Action() Action
	intent()
}

type ListPhotos struct {
	PersonName string `json:"person_name"`
}

type RenamePerson struct {
	OldName string `json:"old_name"`
	NewName string `json:"new_name"`
}

type SendPhotos struct {
	PersonName string `json:"person_name"`
	Recipient  string `json:"recipient"`
	Message    string `json:"message,omitempty"`
}

type CountPersons struct{}

type ListPersons struct{}

// Unknown is anything that is not a supported command. Reply carries the
// assistant's free-text answer, if there was one.
type Unknown struct {
	Reply string `json:"reply,omitempty"`
}

func (ListPhotos) Action() Action   { return ActionListPhotos }
func (RenamePerson) Action() Action { return ActionRenamePerson }
func (SendPhotos) Action() Action   { return ActionSendPhotos }
func (CountPersons) Action() Action { return ActionCountPersons }
func (ListPersons) Action() Action  { return ActionListPersons }
func (Unknown) Action() Action      { return ActionUnknown }

func (ListPhotos) intent()   {}
func (RenamePerson) intent() {}
func (SendPhotos) intent()   {}
func (CountPersons) intent() {}
func (ListPersons) intent()  {}
func (Unknown) intent()      {}

// actionAliases maps the names a language model may emit onto actions.
var actionAliases = map[string]Action{
	"list_photos":   ActionListPhotos,
	"show_photos":   ActionListPhotos,
	"rename_person": ActionRenamePerson,
	"send_photos":   ActionSendPhotos,
	"send_email":    ActionSendPhotos,
	"count_persons": ActionCountPersons,
	"count_people":  ActionCountPersons,
	"list_persons":  ActionListPersons,
	"list_folders":  ActionListPersons,
}

type rawIntent struct {
	Action     string `json:"action"`
	PersonName string `json:"person_name"`
	Recipient  string `json:"recipient"`
	Message    string `json:"message"`
	OldName    string `json:"old_name"`
	NewName    string `json:"new_name"`
}

// Parse decodes an {"action": ...} object. Malformed JSON is an error; a
// well-formed object with an unrecognized action yields Unknown.
func Parse(data []byte) (Intent, error) {
	var raw rawIntent
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse intent: %w", err)
	}

	switch actionAliases[strings.ToLower(strings.TrimSpace(raw.Action))] {
	case ActionListPhotos:
		return ListPhotos{PersonName: strings.TrimSpace(raw.PersonName)}, nil
	case ActionRenamePerson:
		return RenamePerson{OldName: strings.TrimSpace(raw.OldName), NewName: strings.TrimSpace(raw.NewName)}, nil
	case ActionSendPhotos:
		return SendPhotos{
			PersonName: strings.TrimSpace(raw.PersonName),
			Recipient:  strings.TrimSpace(raw.Recipient),
			Message:    raw.Message,
		}, nil
	case ActionCountPersons:
		return CountPersons{}, nil
	case ActionListPersons:
		return ListPersons{}, nil
	default:
		return Unknown{}, nil
	}
}

// SplitReply separates an assistant reply into its prose and the last JSON
// object it contains. ok is false when the reply has no object.
func SplitReply(reply string) (text, object string, ok bool) {
	last := strings.LastIndex(reply, "}")
	if last == -1 {
		return strings.TrimSpace(reply), "", false
	}
	first := strings.LastIndex(reply[:last+1], "{")
	if first == -1 {
		return strings.TrimSpace(reply), "", false
	}
	text = strings.TrimSpace(reply[:first])
	if text == "" {
		text = strings.TrimSpace(reply[last+1:])
	}
	return text, reply[first : last+1], true
}
