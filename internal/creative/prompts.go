package creative

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// maxProductText caps how much scraped page text is fed into the brief prompt.
const maxProductText = 4000

const imageAnalysisPrompt = `Analyze this product image in extreme detail. Extract and describe in JSON format:

{
  "product_name": "exact product name or type visible",
  "colors": ["list all exact colors visible in the product"],
  "materials": ["list all materials/textures visible"],
  "design_elements": ["list specific design features, patterns, logos, branding"],
  "features": ["list visible functional features, buttons, ports, etc."],
  "style": "overall aesthetic and style description",
  "unique_details": ["list any unique or distinctive details"],
  "branding": "any visible brand names, logos, or text"
}

Be extremely specific and accurate. This will be used to generate product images that match exactly.`

// briefPrompt builds the creative-director prompt. imageAnalysis is the raw
// JSON analysis of an uploaded product photo, or empty.
func briefPrompt(productText, imageAnalysis string, platforms []string) string {
	productText = truncateText(productText, maxProductText)

	var imageContext string
	if imageAnalysis != "" {
		imageContext = fmt.Sprintf(`
PRODUCT IMAGE ANALYSIS (from uploaded image - USE THESE EXACT DETAILS):
---
%s
---
Image prompts MUST use the exact colors, materials, design elements, and features above. The generated images must match the actual product shown in the uploaded image.
`, imageAnalysis)
	}

	var platformShapes strings.Builder
	for i, p := range platforms {
		if i > 0 {
			platformShapes.WriteString(",\n")
		}
		fmt.Fprintf(&platformShapes, `    {
      "platform": %q,
      "caption": "A compelling ad caption tailored to %s.",
      "image_prompt": "A detailed 4K lifestyle scene featuring the product with its exact features, colors, and materials. Professional photography, aspirational setting, no watermarks, no text overlays."
    }`, p, p)
	}

	return fmt.Sprintf(`You are an expert creative director for a world-class ad agency. Write a complete social media campaign brief based on the provided product text%s.

CRITICAL INSTRUCTIONS:
- IGNORE marketplace noise in the source (e.g. "Add to cart", "Buy now", pricing widgets, shipping notices). Focus solely on the physical product, its features, benefits, brand voice, and target audience.
- All captions MUST be fluent, natural-sounding North American English, benefit-driven and tailored to each platform.
- Image prompts MUST be extremely detailed and include all key product features, materials, colors, and design elements, describing campaign-ready lifestyle scenes (not flat pack shots) with creative mood, lighting, and composition.
- Return ONLY a single valid JSON object. No markdown, comments, or extra text.
%s
PRODUCT TEXT:
---
%s
---

The JSON object MUST have this structure, with unique content per platform:
{
  "product_name": "Product Name",
  "platforms": [
%s
  ]
}`, imageContextSuffix(imageAnalysis), imageContext, productText, platformShapes.String())
}

func imageContextSuffix(imageAnalysis string) string {
	if imageAnalysis != "" {
		return " and image analysis"
	}
	return ""
}

// scorePrompt builds the caption analytics prompt.
func scorePrompt(caption string) string {
	return fmt.Sprintf(`You are a direct-response marketing expert. Analyze the following ad caption. You MUST return ONLY a valid JSON object (no markdown) with this structure: {"persuasiveness_score": <1-10>, "clarity_score": <1-10>, "feedback": "One sentence of feedback."}

CAPTION: %q`, caption)
}

// truncateText cuts s to at most n bytes without splitting a UTF-8 rune.
func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// enhanceImagePrompt wraps a brief's image prompt with the fixed quality and
// style directives used for every render.
func enhanceImagePrompt(prompt string) string {
	return "4K, ultra-photorealistic, studio quality, professional campaign lifestyle scene, " +
		strings.TrimSpace(prompt) +
		", no catalog pack shots, no watermarks, no text overlays, high detail, sharp focus, product features clearly visible"
}
