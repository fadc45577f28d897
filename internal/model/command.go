package model

type CommandType string

const (
	CommandNone     CommandType = "none"
	CommandChat     CommandType = "chat"
	CommandMakePlan CommandType = "make_plan"
	CommandDev      CommandType = "dev"
)

// Command is the transient result of scanning a message for a directive.
type Command struct {
	Type    CommandType
	Payload string
	Token   string
}

func (c Command) Found() bool {
	return c.Type != CommandNone && c.Type != ""
}

const (
	AgentAssistant = "AI Assistant"
	AgentArchitect = "Architect"
	AgentDeveloper = "Developer"
)

// AgentName is the display name replies to the command are written under.
func (t CommandType) AgentName() string {
	switch t {
	case CommandChat:
		return AgentAssistant
	case CommandMakePlan:
		return AgentArchitect
	case CommandDev:
		return AgentDeveloper
	}
	return SenderSystem
}
