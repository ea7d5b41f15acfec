package slack

// Block is one Block Kit block. Built through the helpers below rather
// than a full typed model; the service only uses sections, dividers,
// context lines and button rows.
type Block map[string]any

func SectionBlock(text string) Block {
	return Block{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": text,
		},
	}
}

func DividerBlock() Block {
	return Block{"type": "divider"}
}

func ContextBlock(text string) Block {
	return Block{
		"type": "context",
		"elements": []map[string]any{
			{"type": "mrkdwn", "text": text},
		},
	}
}

type ButtonSpec struct {
	Text     string
	ActionID string
	Value    string
}

// ActionsBlock builds a row of buttons. The block_id carries correlation
// data (the thought id) back through interaction payloads.
func ActionsBlock(blockID string, buttons ...ButtonSpec) Block {
	elements := make([]map[string]any, 0, len(buttons))
	for _, b := range buttons {
		elements = append(elements, map[string]any{
			"type":      "button",
			"text":      map[string]any{"type": "plain_text", "text": b.Text},
			"action_id": b.ActionID,
			"value":     b.Value,
		})
	}
	return Block{
		"type":     "actions",
		"block_id": blockID,
		"elements": elements,
	}
}
