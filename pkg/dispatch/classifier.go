package dispatch

import (
	"github.com/zhaopengme/statsbot/pkg/botapi"
	"github.com/zhaopengme/statsbot/pkg/logger"
)

const (
	DefaultActionField = "a"

	KeyForward = "forward"
)

// Classification is a decoded update together with its dispatch key.
type Classification struct {
	UpdateID int
	Key      string
	Update   botapi.Update
}

// Classifier maps updates to keys. Commands win over forwards; callbacks are
// keyed by the action field of their JSON payload.
type Classifier struct {
	ActionField string
}

func NewClassifier(actionField string) *Classifier {
	if actionField == "" {
		actionField = DefaultActionField
	}
	return &Classifier{ActionField: actionField}
}

// Classify returns false for updates that carry nothing the bot handles.
func (c *Classifier) Classify(raw botapi.RawUpdate) (Classification, bool) {
	out := Classification{UpdateID: raw.UpdateID}

	switch {
	case len(raw.Message) > 0 && string(raw.Message) != "null":
		msg, err := botapi.ParseMessage(raw.Message)
		if err != nil {
			logger.DebugCF("dispatch", "Undecodable message", map[string]interface{}{
				"update_id": raw.UpdateID,
				"error":     err.Error(),
			})
			return out, false
		}
		out.Update = msg
		switch {
		case msg.Command != nil:
			out.Key = msg.Command.Name
		case msg.ForwardFromChat != nil:
			out.Key = KeyForward
		default:
			return out, false
		}
		return out, true

	case len(raw.CallbackQuery) > 0 && string(raw.CallbackQuery) != "null":
		cb, err := botapi.ParseCallback(raw.CallbackQuery)
		if err != nil {
			logger.DebugCF("dispatch", "Undecodable callback", map[string]interface{}{
				"update_id": raw.UpdateID,
				"error":     err.Error(),
			})
			return out, false
		}
		action, ok := cb.Data[c.ActionField].(string)
		if !ok || action == "" {
			return out, false
		}
		out.Key = action
		out.Update = cb
		return out, true
	}

	return out, false
}
