// Package command recognises @-directives in message text and turns them
// into prompts for the command backend.
package command

import (
	"regexp"
	"strings"

	"github.com/s21platform/ticketchat-service/internal/model"
)

var tokens = []struct {
	token string
	typ   model.CommandType
}{
	{token: "@chat", typ: model.CommandChat},
	{token: "@make_plan", typ: model.CommandMakePlan},
	{token: "@dev", typ: model.CommandDev},
}

// A token only counts when whitespace follows it, so "@make_plan" never
// matches as "@make" and "@devops" never matches as "@dev".
var directiveRe = regexp.MustCompile(`(?s)(@chat|@make_plan|@dev)\s+(.*)`)

// Detect scans content for a directive. The earliest directive followed by
// whitespace wins; when none is found the text is checked for a leading
// token, which covers bare directives such as "@dev".
func Detect(content string) model.Command {
	if loc := directiveRe.FindStringSubmatchIndex(content); loc != nil {
		token := content[loc[2]:loc[3]]
		return model.Command{
			Type:    typeOf(token),
			Payload: strings.TrimSpace(content[loc[4]:loc[5]]),
			Token:   token,
		}
	}

	trimmed := strings.TrimSpace(content)
	for _, t := range tokens {
		if strings.HasPrefix(trimmed, t.token) {
			return model.Command{
				Type:    t.typ,
				Payload: strings.TrimSpace(trimmed[len(t.token):]),
				Token:   t.token,
			}
		}
	}

	return model.Command{Type: model.CommandNone, Payload: content}
}

func typeOf(token string) model.CommandType {
	for _, t := range tokens {
		if t.token == token {
			return t.typ
		}
	}
	return model.CommandNone
}
