package collab

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/cwrk-planet/collab-service/internal/domain"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const schemaBase = "https://collab-service.local/schemas/events/"

const documentIDSchema = `{"type": "string", "minLength": 1, "maxLength": 256}`

// eventSchemas: JSON Schema (2020-12) для payload каждого входящего события.
var eventSchemas = map[string]string{
	EventJoinDocument: `{
		"type": "object",
		"required": ["documentId", "userId", "displayName"],
		"properties": {
			"documentId": ` + documentIDSchema + `,
			"userId": {"type": "string", "minLength": 1, "maxLength": 256},
			"displayName": {"type": "string", "minLength": 1, "maxLength": 128}
		}
	}`,
	EventLeaveDocument: `{
		"type": "object",
		"required": ["documentId"],
		"properties": {"documentId": ` + documentIDSchema + `}
	}`,
	EventContentChange: `{
		"type": "object",
		"required": ["documentId", "content"],
		"properties": {
			"documentId": ` + documentIDSchema + `,
			"content": {"type": "string"}
		}
	}`,
	EventCursorMove: `{
		"type": "object",
		"required": ["documentId", "position"],
		"properties": {
			"documentId": ` + documentIDSchema + `,
			"position": {"type": "integer", "minimum": 0}
		}
	}`,
	EventTypingStatus: `{
		"type": "object",
		"required": ["documentId", "isTyping"],
		"properties": {
			"documentId": ` + documentIDSchema + `,
			"isTyping": {"type": "boolean"},
			"position": {"type": "integer", "minimum": 0}
		}
	}`,
	EventHeartbeat: `{
		"type": "object",
		"required": ["documentId"],
		"properties": {"documentId": ` + documentIDSchema + `}
	}`,
	EventSyncRequest: `{
		"type": "object",
		"required": ["documentId"],
		"properties": {"documentId": ` + documentIDSchema + `}
	}`,
}

// Validator проверяет payload по схеме события и разбирает его в структуру.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()
	v := &Validator{schemas: make(map[string]*jsonschema.Schema, len(eventSchemas))}

	for event, raw := range eventSchemas {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(raw)))
		if err != nil {
			return nil, fmt.Errorf("parse schema %s: %w", event, err)
		}
		url := schemaBase + event + ".json"
		if err := c.AddResource(url, doc); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", event, err)
		}
		sch, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", event, err)
		}
		v.schemas[event] = sch
	}
	return v, nil
}

// Decode возвращает ошибку, оборачивающую domain.ErrUnknownEvent или domain.ErrValidation.
func (v *Validator) Decode(env Envelope, dst any) error {
	sch, ok := v.schemas[env.Type]
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnknownEvent, env.Type)
	}
	if len(env.Payload) == 0 {
		return fmt.Errorf("%w: %s: missing payload", domain.ErrValidation, env.Type)
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(env.Payload))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrValidation, env.Type, err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrValidation, env.Type, err)
	}
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrValidation, env.Type, err)
	}
	return nil
}
