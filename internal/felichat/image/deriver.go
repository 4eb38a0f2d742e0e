// Package image derives illustration prompts from chat replies and renders
// them through a Stability-compatible text-to-image endpoint.
//
// Image generation is strictly best-effort: any failure here degrades the
// turn to text-only with a warning, it never fails the turn itself.
package image

import "strings"

// ReplyParser splits a raw model reply into the spoken text and an image
// prompt.  The persona prompt instructs the model to append a scene
// description after a marker line; when the model complies, that description
// becomes the image prompt, otherwise a fallback prompt is synthesised from
// the reply itself.
type ReplyParser struct {
	// Marker separates the spoken reply from the scene description.
	Marker string
	// ReplyPrefix is the persona's spoken-reply prefix, stripped from the
	// reply text before it reaches the log, memory, or the fallback prompt.
	ReplyPrefix string
	// FallbackPrompt is prepended to the reply when no marker is present.
	FallbackPrompt string
}

// Parsed is the outcome of splitting one reply.
type Parsed struct {
	// ReplyText is the spoken part shown to the user and stored in memory.
	ReplyText string
	// ImagePrompt is the prompt handed to the image generator.
	ImagePrompt string
	// Derived reports whether the prompt came from the model's own scene
	// description rather than the fallback.
	Derived bool
}

// Parse splits raw into reply text and image prompt.  The spoken-reply
// prefix is stripped in both paths so it never reaches the display log,
// memory, or the fallback prompt.
func (p ReplyParser) Parse(raw string) Parsed {
	raw = strings.TrimSpace(raw)

	if p.Marker != "" {
		if idx := strings.Index(raw, p.Marker); idx >= 0 {
			reply := p.stripPrefix(raw[:idx])
			prompt := strings.TrimSpace(raw[idx+len(p.Marker):])
			if prompt != "" {
				return Parsed{ReplyText: reply, ImagePrompt: prompt, Derived: true}
			}
			// Marker with nothing after it: treat as absent.
			raw = reply
		}
	}

	reply := p.stripPrefix(raw)
	prompt := strings.TrimSpace(p.FallbackPrompt + " " + reply)
	return Parsed{ReplyText: reply, ImagePrompt: prompt, Derived: false}
}

func (p ReplyParser) stripPrefix(s string) string {
	s = strings.TrimSpace(s)
	if p.ReplyPrefix == "" {
		return s
	}
	return strings.TrimSpace(strings.TrimPrefix(s, p.ReplyPrefix))
}
