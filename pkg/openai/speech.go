package openai

import (
	"context"
	"fmt"
	"io"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
)

const (
	DefaultSpeechModel = string(goopenai.TTSModel1)
	DefaultSpeechVoice = string(goopenai.VoiceNova)
)

type SpeechConfig struct {
	Token   string
	BaseURL string
	Model   string
	Voice   string
	Breaker BreakerConfig
}

type speechClient struct {
	api     *goopenai.Client
	model   goopenai.SpeechModel
	voice   goopenai.SpeechVoice
	breaker *breaker
}

func NewSpeechClient(cfg SpeechConfig) (*speechClient, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("token is empty")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultSpeechModel
	}
	if cfg.Voice == "" {
		cfg.Voice = DefaultSpeechVoice
	}

	apiCfg := goopenai.DefaultConfig(cfg.Token)
	apiCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	apiCfg.HTTPClient = NewHTTPClient()

	return &speechClient{
		api:     goopenai.NewClientWithConfig(apiCfg),
		model:   goopenai.SpeechModel(cfg.Model),
		voice:   goopenai.SpeechVoice(cfg.Voice),
		breaker: newBreaker("openai-speech", cfg.Breaker),
	}, nil
}

// Synthesize returns mp3 audio for text.
func (s *speechClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	var audio []byte
	err := s.breaker.do(func() error {
		resp, err := s.api.CreateSpeech(ctx, goopenai.CreateSpeechRequest{
			Model:          s.model,
			Input:          text,
			Voice:          s.voice,
			ResponseFormat: goopenai.SpeechResponseFormatMp3,
		})
		if err != nil {
			return err
		}
		defer resp.Close()

		audio, err = io.ReadAll(resp)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating speech: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("creating speech: empty audio response")
	}
	return audio, nil
}
