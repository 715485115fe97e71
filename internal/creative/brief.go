package creative

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// PlatformBrief is one platform's slice of the creative brief.
type PlatformBrief struct {
	Platform    string `json:"platform"`
	Caption     string `json:"caption"`
	ImagePrompt string `json:"image_prompt"`
}

// Brief is the campaign creative brief: the resolved product name plus one
// caption and image prompt per target platform.
type Brief struct {
	ProductName string          `json:"product_name"`
	Platforms   []PlatformBrief `json:"platforms"`
}

// CaptionScore holds quality scores for one caption. Fields are nil when the
// model omitted or returned an unusable value.
type CaptionScore struct {
	Persuasiveness *int    `json:"persuasiveness_score,omitempty"`
	Clarity        *int    `json:"clarity_score,omitempty"`
	Feedback       *string `json:"feedback,omitempty"`
}

var (
	fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*\\n(.*?)\\n```")
	bareJSON   = regexp.MustCompile(`(?s)\{.*\}`)
)

// extractJSON pulls a JSON object out of a model response that may wrap it in
// markdown fences or surrounding prose.
func extractJSON(raw string) ([]byte, error) {
	if m := fencedJSON.FindStringSubmatch(raw); m != nil {
		return []byte(m[1]), nil
	}
	if m := bareJSON.FindString(raw); m != "" {
		return []byte(m), nil
	}
	return nil, fmt.Errorf("no JSON object found in model response")
}

// parseBrief decodes and sanitizes a creative brief response. Platform entries
// missing any required field are dropped rather than failing the brief.
func parseBrief(raw string) (*Brief, error) {
	data, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}
	var b Brief
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode brief: %w", err)
	}
	complete := b.Platforms[:0]
	for _, p := range b.Platforms {
		if p.Platform == "" || p.Caption == "" || p.ImagePrompt == "" {
			continue
		}
		complete = append(complete, p)
	}
	b.Platforms = complete
	return &b, nil
}

// parseScore decodes a caption analytics response, clamping scores to [0,10]
// and dropping values outside the scale.
func parseScore(raw string) (*CaptionScore, error) {
	data, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}
	var s CaptionScore
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode score: %w", err)
	}
	s.Persuasiveness = clampScore(s.Persuasiveness)
	s.Clarity = clampScore(s.Clarity)
	return &s, nil
}

func clampScore(v *int) *int {
	if v == nil || *v < 0 || *v > 10 {
		return nil
	}
	return v
}

// FallbackBrief builds deterministic per-platform briefs from a known product
// name. Used when the brief model call fails but the caller supplied (or the
// page yielded) a usable name, so the run can still produce assets.
func FallbackBrief(productName string, platforms []string) *Brief {
	b := &Brief{ProductName: productName}
	for _, platform := range platforms {
		tone := fallbackTones[platform]
		if tone == "" {
			tone = "an engaging, benefit-driven"
		}
		b.Platforms = append(b.Platforms, PlatformBrief{
			Platform: platform,
			Caption:  fmt.Sprintf("Meet %s — %s pick worth a closer look.", productName, tone),
			ImagePrompt: fmt.Sprintf(
				"A detailed 4K lifestyle scene featuring %s in use, professional photography, vibrant lighting, aspirational setting, no watermarks, no text overlays.",
				productName),
		})
	}
	return b
}

var fallbackTones = map[string]string{
	"Facebook":  "a persuasive, community-favorite",
	"Instagram": "a stylish, scroll-stopping",
	"LinkedIn":  "a professional, productivity-focused",
	"X":         "a punchy, must-see",
}

// VariationPrompt perturbs a base image prompt so A/B variations are
// genuinely distinct renders, not duplicate calls.
func VariationPrompt(base string, variation int) string {
	if variation <= 0 {
		return base
	}
	directive := variationDirectives[(variation-1)%len(variationDirectives)]
	return strings.TrimSpace(base) + fmt.Sprintf(" Variation %d: %s while maintaining product accuracy.", variation, directive)
}

var variationDirectives = []string{
	"Different composition and camera angle",
	"Different lighting mood and color palette",
	"Different setting and background styling",
}
