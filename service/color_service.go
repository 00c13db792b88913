package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/langsvg/langsvg/config"
	"github.com/langsvg/langsvg/model"

	log "github.com/sirupsen/logrus"
)

type ColorService interface {
	Palette(ctx context.Context) map[string]string
}

type colorService struct {
	restyClient *resty.Client
	config      config.Config
}

func NewColorService(config config.Config) ColorService {
	return colorService{
		restyClient: resty.New().SetTimeout(10 * time.Second),
		config:      config,
	}
}

// linguist publishes colors as {"Go": {"color": "#00ADD8", "url": "..."}, ...}
type linguistColorEntry struct {
	Color string `json:"color"`
}

// Palette downloads the linguist language color table.
// Any failure falls back to the built-in palette so rendering is never
// blocked on this request
func (s colorService) Palette(ctx context.Context) map[string]string {
	if s.config.Render.ColorsURL == "" {
		return model.DefaultPalette
	}

	res, err := s.restyClient.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		Get(s.config.Render.ColorsURL)

	if err != nil {
		log.WithError(err).Warning("unable to download the language color table. using the built-in palette")
		return model.DefaultPalette
	}

	if res.StatusCode() != 200 {
		log.WithField("status", res.StatusCode()).Warning("unexpected status when downloading the language color table. using the built-in palette")
		return model.DefaultPalette
	}

	var entries map[string]linguistColorEntry

	if err := json.Unmarshal(res.Body(), &entries); err != nil {
		log.WithError(err).Warning("unable to decode the language color table. using the built-in palette")
		return model.DefaultPalette
	}

	palette := make(map[string]string, len(entries))

	for name, entry := range entries {
		if entry.Color != "" {
			palette[name] = entry.Color
		}
	}

	log.WithField("languages", len(palette)).Debug("language color table downloaded")
	return palette
}
