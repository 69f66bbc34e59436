package realtime

import (
	"encoding/json"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

type frameSchemaRegistry struct {
	once     sync.Once
	initErr  error
	envelope *jsonschema.Schema
	payloads map[string]*jsonschema.Schema
}

var frameSchemas frameSchemaRegistry

func initFrameSchemas() error {
	frameSchemas.once.Do(func() {
		envelope, err := jsonschema.CompileString("frame", frameEnvelopeSchema)
		if err != nil {
			frameSchemas.initErr = err
			return
		}
		frameSchemas.envelope = envelope

		payloads := map[string]string{
			FrameSubscribe:   subscribePayloadSchema,
			FrameUnsubscribe: subscribePayloadSchema,
			FramePing:        emptyPayloadSchema,
			FrameChatMessage: chatMessagePayloadSchema,
			FrameFlagMessage: flagMessagePayloadSchema,
		}
		frameSchemas.payloads = make(map[string]*jsonschema.Schema, len(payloads))
		for name, schema := range payloads {
			compiled, err := jsonschema.CompileString("frame_"+name, schema)
			if err != nil {
				frameSchemas.initErr = err
				return
			}
			frameSchemas.payloads[name] = compiled
		}
	})
	return frameSchemas.initErr
}

// ValidateClientFrame checks an inbound frame against the envelope schema
// and, when the frame type is known, its payload schema. Unknown types pass
// envelope validation and are rejected later by the dispatcher, so that new
// client versions degrade with a frame-level error rather than a disconnect.
func ValidateClientFrame(raw []byte, frame *Frame) error {
	if err := initFrameSchemas(); err != nil {
		return err
	}

	var envelope any
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return err
	}
	if err := frameSchemas.envelope.Validate(envelope); err != nil {
		return err
	}
	if schema := frameSchemas.payloads[frame.Type]; schema != nil {
		var payload any
		if len(frame.Payload) == 0 {
			payload = map[string]any{}
		} else if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			return err
		}
		if err := schema.Validate(payload); err != nil {
			return err
		}
	}
	return nil
}

const frameEnvelopeSchema = `{
  "type": "object",
  "required": ["type"],
  "properties": {
    "type": { "type": "string", "minLength": 1 },
    "payload": {}
  },
  "additionalProperties": false
}`

const subscribePayloadSchema = `{
  "type": "object",
  "required": ["conversationId"],
  "properties": {
    "conversationId": { "type": "string", "minLength": 1 }
  },
  "additionalProperties": false
}`

const emptyPayloadSchema = `{
  "type": "object",
  "additionalProperties": false
}`

const chatMessagePayloadSchema = `{
  "type": "object",
  "required": ["conversationId", "content"],
  "properties": {
    "conversationId": { "type": "string", "minLength": 1 },
    "content": { "type": "string", "minLength": 1, "maxLength": 10000 },
    "metadata": { "type": "object" }
  },
  "additionalProperties": false
}`

const flagMessagePayloadSchema = `{
  "type": "object",
  "required": ["conversationId", "messageId"],
  "properties": {
    "conversationId": { "type": "string", "minLength": 1 },
    "messageId": { "type": "string", "minLength": 1 },
    "reason": { "type": "string", "maxLength": 500 }
  },
  "additionalProperties": false
}`
