// Package configs owns the per-tenant business config: dashboard tabs and
// components, theme, pipeline stages and booking preferences.
package configs

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/md-rashed-zaman/bizdash/libs/apperr"
	"github.com/md-rashed-zaman/bizdash/services/dashboard-service/internal/pipeline"
	"github.com/md-rashed-zaman/bizdash/services/dashboard-service/internal/validation"
)

type Component struct {
	ID    string         `json:"id" validate:"required,max=64"`
	Type  string         `json:"type" validate:"required,max=64"`
	Title string         `json:"title,omitempty" validate:"max=120"`
	Props map[string]any `json:"props,omitempty"`
}

type Tab struct {
	ID         string      `json:"id" validate:"required,max=64"`
	Label      string      `json:"label" validate:"required,max=60"`
	Icon       string      `json:"icon,omitempty" validate:"max=60"`
	Components []Component `json:"components" validate:"max=40,unique=ID,dive"`
}

type Fonts struct {
	Heading string `json:"heading,omitempty" validate:"max=80"`
	Body    string `json:"body,omitempty" validate:"max=80"`
}

type BusinessConfig struct {
	UserID          string            `json:"user_id"`
	BusinessName    string            `json:"business_name" validate:"max=200"`
	Industry        string            `json:"industry,omitempty" validate:"max=60"`
	Tabs            []Tab             `json:"tabs" validate:"max=20,unique=ID,dive"`
	Colors          map[string]string `json:"colors" validate:"max=20,dive,keys,required,max=40,endkeys,hexcolor"`
	Fonts           Fonts             `json:"fonts"`
	PipelineStages  []pipeline.Stage  `json:"pipeline_stages" validate:"max=50,unique=ID,dive"`
	BookingSettings json.RawMessage   `json:"booking_settings,omitempty"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Validate checks the config and renumbers stages in slice order. It is run
// on every write, whatever produced the new config.
func (c *BusinessConfig) Validate() error {
	c.BusinessName = strings.TrimSpace(c.BusinessName)
	if c.Tabs == nil {
		c.Tabs = []Tab{}
	}
	if c.Colors == nil {
		c.Colors = map[string]string{}
	}
	if c.PipelineStages == nil {
		c.PipelineStages = []pipeline.Stage{}
	}
	if err := validation.Struct(c); err != nil {
		return err
	}
	if raw := bytes.TrimSpace(c.BookingSettings); len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		if raw[0] != '{' {
			return apperr.BadRequest("booking_settings must be an object")
		}
	} else {
		c.BookingSettings = nil
	}
	c.PipelineStages = pipeline.Normalize(c.PipelineStages)
	return nil
}

// Default is the config a tenant sees before onboarding.
func Default(userID string) BusinessConfig {
	t := templates["generic"]
	return BusinessConfig{
		UserID:         userID,
		Industry:       "generic",
		Tabs:           t.tabs(),
		Colors:         map[string]string{"primary": "#2563eb", "background": "#ffffff", "text": "#111827"},
		Fonts:          Fonts{Heading: "Inter", Body: "Inter"},
		PipelineStages: t.stages(),
	}
}
