package transcript

import "agent-chat-engine/internal/model"

// applySubagentStart attaches or overwrites the subagent record on an
// assistant message. The slot holds exactly one record per turn: a
// later start replaces the previous one, no history is kept.
//
// No envelope in the observed protocol ever marks the record complete;
// absence of further updates after the turn ends is treated as implicit
// completion.
func applySubagentStart(msg *model.Message, agentType, description string) {
	msg.SubagentStatus = &model.SubagentStatus{
		AgentType:   agentType,
		Description: description,
		IsComplete:  false,
	}
}
