package dockerlog

import (
	"regexp"

	"github.com/gettakaro/takaro-worker/internal/domain/model"
)

// ParseFunc extracts a structured event from one log line, if the line holds one.
type ParseFunc func(line string) (model.EventType, model.EventPayload, bool)

// Parsers maps the supported game types to their log parsers.
var Parsers = map[string]ParseFunc{
	"minecraft":    parseMinecraft,
	"vintagestory": parseVintageStory,
}

var (
	mcJoin  = regexp.MustCompile(`\[Server thread/INFO\].*: (\w+) joined the game`)
	mcLeave = regexp.MustCompile(`\[Server thread/INFO\].*: (\w+) left the game`)
	mcChat  = regexp.MustCompile(`\[Server thread/INFO\].*: <(\w+)> (.+)`)

	vsJoin  = regexp.MustCompile(`Player (\w+) joins`)
	vsLeave = regexp.MustCompile(`Player (\w+) left`)
	vsChat  = regexp.MustCompile(`\[Server Chat\] \d+ \| (\w+): (.+)`)
)

func parseMinecraft(line string) (model.EventType, model.EventPayload, bool) {
	return match(line, mcJoin, mcLeave, mcChat)
}

func parseVintageStory(line string) (model.EventType, model.EventPayload, bool) {
	return match(line, vsJoin, vsLeave, vsChat)
}

func match(line string, join, leave, chat *regexp.Regexp) (model.EventType, model.EventPayload, bool) {
	if m := join.FindStringSubmatch(line); m != nil {
		return model.EventPlayerConnected, model.EventPayload{Player: player(m[1])}, true
	}
	if m := leave.FindStringSubmatch(line); m != nil {
		return model.EventPlayerDisconnected, model.EventPayload{Player: player(m[1])}, true
	}
	if m := chat.FindStringSubmatch(line); m != nil {
		return model.EventChatMessage, model.EventPayload{Player: player(m[1]), Msg: m[2]}, true
	}
	return "", model.EventPayload{}, false
}

// these logs carry no stable id, the name is the game id
func player(name string) *model.Player {
	return &model.Player{GameID: name, Name: name}
}
