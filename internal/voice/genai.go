package voice

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// DefaultModel is the native-audio live model.
const DefaultModel = "gemini-2.5-flash-native-audio-preview-12-2025"

// GenAIDialer opens live sessions with the Gemini API.
type GenAIDialer struct {
	APIKey          string
	Model           string
	VoiceName       string
	InputSampleRate int
}

// Dial connects a live session with audio responses and the device tool.
func (d GenAIDialer) Dial(ctx context.Context, cfg SessionConfig) (Session, error) {
	if d.APIKey == "" {
		return nil, ErrAPIKeyMissing
	}
	model := d.Model
	if model == "" {
		model = DefaultModel
	}
	rate := d.InputSampleRate
	if rate <= 0 {
		rate = 16000
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  d.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	connect := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SystemInstruction:  genai.NewContentFromText(cfg.SystemInstruction, genai.RoleUser),
		Tools:              ToolDeclarations(),
	}
	if d.VoiceName != "" {
		connect.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: d.VoiceName},
			},
		}
	}

	session, err := client.Live.Connect(ctx, model, connect)
	if err != nil {
		return nil, fmt.Errorf("connecting live session: %w", err)
	}
	return &genaiSession{s: session, mime: fmt.Sprintf("audio/pcm;rate=%d", rate)}, nil
}

type genaiSession struct {
	s    *genai.Session
	mime string
}

func (g *genaiSession) SendAudio(pcm []byte) error {
	return g.s.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{Data: pcm, MIMEType: g.mime},
	})
}

func (g *genaiSession) SendToolResponse(results []ToolResult) error {
	responses := make([]*genai.FunctionResponse, 0, len(results))
	for _, r := range results {
		responses = append(responses, &genai.FunctionResponse{
			ID:       r.ID,
			Name:     r.Name,
			Response: map[string]any{"result": r.Result},
		})
	}
	return g.s.SendToolResponse(genai.LiveToolResponseInput{FunctionResponses: responses})
}

func (g *genaiSession) Receive() (Event, error) {
	msg, err := g.s.Receive()
	if err != nil {
		return Event{}, err
	}
	return eventFromMessage(msg), nil
}

func (g *genaiSession) Close() error {
	return g.s.Close()
}

func eventFromMessage(msg *genai.LiveServerMessage) Event {
	var ev Event
	if msg == nil {
		return ev
	}
	if sc := msg.ServerContent; sc != nil {
		ev.TurnComplete = sc.TurnComplete
		ev.Interrupted = sc.Interrupted
		if sc.ModelTurn != nil {
			for _, p := range sc.ModelTurn.Parts {
				if p != nil && p.InlineData != nil {
					ev.Audio = append(ev.Audio, p.InlineData.Data...)
				}
			}
		}
	}
	if tc := msg.ToolCall; tc != nil {
		for _, fc := range tc.FunctionCalls {
			if fc == nil {
				continue
			}
			ev.ToolCalls = append(ev.ToolCalls, ToolCall{ID: fc.ID, Name: fc.Name, Args: fc.Args})
		}
	}
	return ev
}
