package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// CompleteJSON runs req in JSON mode and decodes the reply into out.
// Markdown code fences around the object are tolerated.
func CompleteJSON(ctx context.Context, p Provider, req CompletionRequest, out interface{}) error {
	req.JSONMode = true
	resp, err := p.Complete(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(StripFences(resp.Content)), out); err != nil {
		return fmt.Errorf("decoding %s reply: %w", p.Name(), err)
	}
	return nil
}

// StripFences removes a surrounding ```json ... ``` block and whitespace.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
