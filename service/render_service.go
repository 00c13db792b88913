package service

import (
	"embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/langsvg/langsvg/config"
	"github.com/langsvg/langsvg/model"

	log "github.com/sirupsen/logrus"
)

//go:embed templates/languages.svg.tmpl
var templateFS embed.FS

type RenderService interface {
	Shares(totals model.LanguageTotals, palette map[string]string) []model.LanguageShare
	Render(shares []model.LanguageShare) (string, error)
	WriteFile(content string) error
}

type renderService struct {
	template *template.Template
	config   config.Config
}

// card geometry, matching the Github language card layout
const (
	cardBaseHeight       = 80
	cardItemHeight       = 21
	cardHeaderPadding    = 34
	legendAnimationDelay = 150
)

func NewRenderService(config config.Config) (RenderService, error) {
	// text/template on purpose: the card is raw SVG markup with inline CSS
	// that html escaping would mangle
	tmpl, err := template.New("languages.svg.tmpl").Funcs(template.FuncMap{
		"width":   func(p float64) string { return fmt.Sprintf("%.3f", p) },
		"percent": func(p float64) string { return fmt.Sprintf("%.2f", p) },
		"delay":   func(i int) int { return i * legendAnimationDelay },
	}).ParseFS(templateFS, "templates/languages.svg.tmpl")

	if err != nil {
		return nil, err
	}

	return renderService{
		template: tmpl,
		config:   config,
	}, nil
}

// Shares applies the visibility threshold policy on top of the raw shares.
// Languages below Render.MinPercentage are either dropped or folded into a
// single "Other" entry appended after the visible languages
func (s renderService) Shares(totals model.LanguageTotals, palette map[string]string) []model.LanguageShare {
	all := model.ComputeShares(totals, palette)

	if s.config.Render.MinPercentage <= 0 {
		return all
	}

	visible := make([]model.LanguageShare, 0, len(all))
	other := model.LanguageShare{
		Name:  model.OtherLanguageName,
		Color: model.DefaultLanguageColor,
	}

	for _, share := range all {
		if share.Percentage >= s.config.Render.MinPercentage {
			visible = append(visible, share)
			continue
		}

		other.Bytes += share.Bytes
		other.Percentage += share.Percentage
	}

	if s.config.Render.GroupOther && other.Bytes > 0 {
		visible = append(visible, other)
	}

	return visible
}

// svgCard is the data handed to the embedded template
type svgCard struct {
	Height              int
	ForeignObjectHeight int
	Shares              []model.LanguageShare
}

// Render produces the SVG document for the given shares.
// The output only depends on the shares slice, so identical input always
// yields byte-identical output.
// An empty slice renders a placeholder card instead of dividing by zero
func (s renderService) Render(shares []model.LanguageShare) (string, error) {
	rows := len(shares)

	if rows == 0 {
		log.Warning("no language data to render. emitting a placeholder card")
		rows = 1
	}

	height := cardBaseHeight + rows*cardItemHeight

	card := svgCard{
		Height:              height,
		ForeignObjectHeight: height - cardHeaderPadding,
		Shares:              shares,
	}

	var out strings.Builder

	if err := s.template.Execute(&out, card); err != nil {
		return "", fmt.Errorf("RENDER_ERROR")
	}

	return out.String(), nil
}

// WriteFile writes the rendered document to the configured output path
func (s renderService) WriteFile(content string) error {
	if err := os.WriteFile(s.config.Render.OutputPath, []byte(content), 0644); err != nil {
		log.WithError(err).Error("unable to write the rendered file")
		return err
	}

	log.WithField("path", s.config.Render.OutputPath).Info("rendered file written")
	return nil
}
