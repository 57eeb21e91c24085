// Package transcript normalizes a message history so that it satisfies the
// structural rules of one provider family. Repair is pure: the input slice
// is never modified and the relative order of original messages is kept.
package transcript

import (
	"strings"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/model"
)

// ContinuedMarker is the text of every synthetic message inserted by Repair.
const ContinuedMarker = "[continued]"

// systemSeparator joins merged system prompts.
const systemSeparator = "\n\n"

// Repair returns messages rewritten for kind.
//
//   - Anthropic / Google: user and assistant turns strictly alternate,
//     starting with user. Synthetic "[continued]" turns of the opposite role
//     fill the gaps. Tool results count as user turns; system messages stay
//     where they are and do not take part in alternation.
//   - OpenAI: all system messages are merged, in order, into a single
//     leading system message.
//   - Other: returned unchanged (as a copy).
func Repair(messages []core.Content, kind model.ProviderKind) []core.Content {
	if len(messages) == 0 {
		return []core.Content{}
	}
	switch kind {
	case model.KindAnthropic, model.KindGoogle:
		return alternate(messages)
	case model.KindOpenAI:
		return mergeSystem(messages)
	default:
		return core.CloneAll(messages)
	}
}

// IsSynthetic reports whether c was inserted by Repair.
func IsSynthetic(c core.Content) bool {
	return strings.Contains(c.Text(), ContinuedMarker)
}

func synthetic(role string) core.Content {
	return core.NewTextContent(role, ContinuedMarker)
}

// turnRole maps a message role onto the two alternating turn roles.
func turnRole(role string) string {
	if role == core.RoleAssistant {
		return core.RoleAssistant
	}
	return core.RoleUser
}

func opposite(role string) string {
	if role == core.RoleAssistant {
		return core.RoleUser
	}
	return core.RoleAssistant
}

func alternate(messages []core.Content) []core.Content {
	out := make([]core.Content, 0, len(messages)+2)
	prev := ""
	for _, m := range messages {
		if m.Role == core.RoleSystem {
			out = append(out, m.Clone())
			continue
		}
		role := turnRole(m.Role)
		switch {
		case prev == "" && role == core.RoleAssistant:
			out = append(out, synthetic(core.RoleUser))
		case prev == role:
			out = append(out, synthetic(opposite(role)))
		}
		out = append(out, m.Clone())
		prev = role
	}
	return out
}

func mergeSystem(messages []core.Content) []core.Content {
	var texts []string
	rest := make([]core.Content, 0, len(messages))
	for _, m := range messages {
		if m.Role == core.RoleSystem {
			texts = append(texts, m.Text())
			continue
		}
		rest = append(rest, m.Clone())
	}
	if len(texts) == 0 {
		return rest
	}
	out := make([]core.Content, 0, len(rest)+1)
	out = append(out, core.SystemText(strings.Join(texts, systemSeparator)))
	return append(out, rest...)
}
